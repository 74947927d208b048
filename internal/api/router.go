package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/careops/hospital-scheduling/internal/appointment"
	"github.com/careops/hospital-scheduling/internal/billing"
)

type RouterConfig struct {
	Appointments *appointment.Service
	Billing      *billing.Service
	PgPool       *pgxpool.Pool
	Redis        *redis.Client
	Log          *zap.Logger
	Env          string
	Version      string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Log))

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Get("/doctors/{id}/slots", getSlotsHandler(cfg.Appointments))
	r.Get("/doctors/{id}/appointments", listDoctorAppointmentsHandler(cfg.Appointments))
	r.Get("/patients/{id}/appointments", listPatientAppointmentsHandler(cfg.Appointments))

	r.Route("/appointments", func(r chi.Router) {
		r.Post("/", bookAppointmentHandler(cfg.Appointments))
		r.Get("/{id}", getAppointmentHandler(cfg.Appointments))
		r.Post("/{id}/accept", acceptAppointmentHandler(cfg.Appointments))
		r.Post("/{id}/complete", completeAppointmentHandler(cfg.Appointments))
		r.Post("/{id}/cancel", cancelAppointmentHandler(cfg.Appointments))
		r.Post("/{id}/checkin", checkInHandler(cfg.Appointments))
		r.Post("/{id}/payment", updatePaymentHandler(cfg.Appointments))
		r.Post("/{id}/refund", refundHandler(cfg.Appointments))
		r.Get("/{id}/payments", paymentHistoryHandler(cfg.Billing))
	})

	r.Get("/billing/kpis", kpisHandler(cfg.Billing))
	r.Put("/admin/settings/cancellation-window", setCancellationWindowHandler(cfg.Appointments))

	return r
}
