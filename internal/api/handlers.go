package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/careops/hospital-scheduling/internal/appointment"
	"github.com/careops/hospital-scheduling/internal/billing"
	redisclient "github.com/careops/hospital-scheduling/internal/redis"
	"github.com/careops/hospital-scheduling/internal/timefmt"
)

var validate = validator.New()

func decodeAndValidate(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return err
	}
	return validate.Struct(dst)
}

func getSlotsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "id must be a valid UUID")
			return
		}

		start := r.URL.Query().Get("start")
		if start == "" {
			start = timefmt.DateKey(time.Now())
		}

		days := 7
		if v := r.URL.Query().Get("days"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				writeError(w, http.StatusBadRequest, "invalid_days", "days must be a positive integer")
				return
			}
			days = n
		}

		slots, err := svc.GetSlots(r.Context(), doctorID, start, days)
		if err != nil {
			handleServiceError(w, err, svc)
			return
		}
		writeJSON(w, http.StatusOK, slots)
	}
}

func bookAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BookAppointmentRequest
		if err := decodeAndValidate(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
			return
		}

		patientID, _ := uuid.Parse(req.PatientID)
		doctorID, _ := uuid.Parse(req.DoctorID)

		appt, err := svc.Book(r.Context(), patientID, doctorID, req.Date, req.Time)
		if err != nil {
			handleServiceError(w, err, svc)
			return
		}
		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func getAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		appt, err := svc.Get(r.Context(), id)
		if err != nil {
			handleServiceError(w, err, svc)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

// doctorActionHandler covers accept and complete, which share their request
// shape and authorization rule.
func doctorActionHandler(svc *appointment.Service, apply func(ctx context.Context, id, actor uuid.UUID) (*appointment.Appointment, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		var req ActorRequest
		if err := decodeAndValidate(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
			return
		}
		actorID, _ := uuid.Parse(req.DoctorID)

		appt, err := apply(r.Context(), id, actorID)
		if err != nil {
			handleServiceError(w, err, svc)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func acceptAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return doctorActionHandler(svc, svc.Accept)
}

func completeAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return doctorActionHandler(svc, svc.Complete)
}

func cancelAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		var req CancelRequest
		if err := decodeAndValidate(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
			return
		}
		actorID, _ := uuid.Parse(req.ActorID)

		appt, err := svc.Cancel(r.Context(), id, actorID, appointment.Role(req.Role))
		if err != nil {
			handleServiceError(w, err, svc)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func checkInHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		appt, err := svc.CheckIn(r.Context(), id)
		if err != nil {
			handleServiceError(w, err, svc)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func updatePaymentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		var req UpdatePaymentRequest
		if err := decodeAndValidate(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
			return
		}

		appt, err := svc.UpdatePayment(r.Context(), id, appointment.PaymentStatus(req.Status), req.Amount, req.Method, req.ProcessedBy)
		if err != nil {
			handleServiceError(w, err, svc)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func refundHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		var req RefundRequest
		if err := decodeAndValidate(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
			return
		}

		appt, err := svc.Refund(r.Context(), id, req.Amount, req.Reason, req.ProcessedBy)
		if err != nil {
			handleServiceError(w, err, svc)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func listPatientAppointmentsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "id must be a valid UUID")
			return
		}

		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

		appts, err := svc.ListByPatient(r.Context(), patientID, limit, offset)
		if err != nil {
			handleServiceError(w, err, svc)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponses(appts))
	}
}

func listDoctorAppointmentsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "id must be a valid UUID")
			return
		}

		date := r.URL.Query().Get("date")
		if date == "" {
			date = timefmt.DateKey(time.Now())
		}

		appts, err := svc.ListByDoctorDate(r.Context(), doctorID, date)
		if err != nil {
			handleServiceError(w, err, svc)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponses(appts))
	}
}

func paymentHistoryHandler(bsvc *billing.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		entries, err := bsvc.History(r.Context(), id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, toLedgerResponses(entries))
	}
}

func kpisHandler(bsvc *billing.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := time.Now()
		from := now.AddDate(0, -1, 0)
		to := now

		if v := r.URL.Query().Get("from"); v != "" {
			t, err := timefmt.ParseDateKey(v, now.Location())
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_from", "from must be a day_month_year date")
				return
			}
			from = t
		}
		if v := r.URL.Query().Get("to"); v != "" {
			t, err := timefmt.ParseDateKey(v, now.Location())
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_to", "to must be a day_month_year date")
				return
			}
			to = t.AddDate(0, 0, 1)
		}

		kpis, err := bsvc.KPIs(r.Context(), from, to, now)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, kpis)
	}
}

func setCancellationWindowHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CancellationWindowRequest
		if err := decodeAndValidate(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
			return
		}

		window := time.Duration(req.Hours * float64(time.Hour))
		if err := svc.SetCancellationWindow(window); err != nil {
			handleServiceError(w, err, svc)
			return
		}
		writeJSON(w, http.StatusOK, map[string]float64{"hours": svc.CancellationWindow().Hours()})
	}
}

func handleServiceError(w http.ResponseWriter, err error, svc *appointment.Service) {
	switch {
	case errors.Is(err, timefmt.ErrFormat):
		writeError(w, http.StatusBadRequest, "invalid_date_or_time", err.Error())
	case errors.Is(err, appointment.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, appointment.ErrDoctorNotFound):
		writeError(w, http.StatusNotFound, "doctor_not_found", err.Error())
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, appointment.ErrDoctorUnavailable):
		writeError(w, http.StatusConflict, "doctor_unavailable", err.Error())
	case errors.Is(err, appointment.ErrSlotTaken):
		writeError(w, http.StatusConflict, "slot_taken", err.Error())
	case errors.Is(err, appointment.ErrSlotUnavailable):
		writeError(w, http.StatusConflict, "slot_unavailable", err.Error())
	case errors.Is(err, appointment.ErrSlotBeingBooked),
		errors.Is(err, redisclient.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "slot_being_booked", "slot is currently being booked, please retry shortly")
	case errors.Is(err, appointment.ErrAlreadyAccepted):
		writeError(w, http.StatusConflict, "already_accepted", err.Error())
	case errors.Is(err, appointment.ErrAlreadyCancelled):
		writeError(w, http.StatusConflict, "already_cancelled", err.Error())
	case errors.Is(err, appointment.ErrAlreadyCompleted):
		writeError(w, http.StatusConflict, "already_completed", err.Error())
	case errors.Is(err, appointment.ErrAlreadyRefunded):
		writeError(w, http.StatusConflict, "already_refunded", err.Error())
	case errors.Is(err, appointment.ErrStaleState):
		writeError(w, http.StatusConflict, "concurrent_update", err.Error())
	case errors.Is(err, appointment.ErrWithinCancelWindow):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error:       "within_cancellation_window",
			Details:     err.Error(),
			WindowHours: svc.CancellationWindow().Hours(),
		})
	case errors.Is(err, appointment.ErrNotOwner):
		writeError(w, http.StatusForbidden, "not_owner", err.Error())
	case errors.Is(err, appointment.ErrInvalidRole),
		errors.Is(err, appointment.ErrInvalidAmount),
		errors.Is(err, appointment.ErrInvalidTarget):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, appointment.ErrNotPaid):
		writeError(w, http.StatusConflict, "not_paid", err.Error())
	case errors.Is(err, appointment.ErrAmountExceedsTotal):
		writeError(w, http.StatusBadRequest, "amount_exceeds_total", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
