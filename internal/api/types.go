package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/careops/hospital-scheduling/internal/appointment"
	"github.com/careops/hospital-scheduling/internal/billing"
)

type BookAppointmentRequest struct {
	PatientID string `json:"patient_id" validate:"required,uuid4"`
	DoctorID  string `json:"doctor_id" validate:"required,uuid4"`
	Date      string `json:"date" validate:"required"`
	Time      string `json:"time" validate:"required"`
}

type ActorRequest struct {
	DoctorID string `json:"doctor_id" validate:"required,uuid4"`
}

type CancelRequest struct {
	ActorID string `json:"actor_id" validate:"required,uuid4"`
	Role    string `json:"role" validate:"required,oneof=patient doctor staff admin"`
}

type UpdatePaymentRequest struct {
	Status      string  `json:"status" validate:"required,oneof=paid partially_paid unpaid"`
	Amount      float64 `json:"amount" validate:"gte=0"`
	Method      string  `json:"method"`
	ProcessedBy string  `json:"processed_by"`
}

type RefundRequest struct {
	Amount      float64 `json:"amount" validate:"required,gt=0"`
	Reason      string  `json:"reason" validate:"required"`
	ProcessedBy string  `json:"processed_by"`
}

type CancellationWindowRequest struct {
	Hours float64 `json:"hours" validate:"gte=0"`
}

type AppointmentResponse struct {
	ID            uuid.UUID                   `json:"id"`
	PatientID     uuid.UUID                   `json:"patient_id"`
	DoctorID      uuid.UUID                   `json:"doctor_id"`
	Date          string                      `json:"date"`
	Time          string                      `json:"time"`
	Patient       appointment.PatientSnapshot `json:"patient"`
	Doctor        appointment.DoctorSnapshot  `json:"doctor"`
	Amount        float64                     `json:"amount"`
	Status        string                      `json:"status"`
	CheckedIn     bool                        `json:"checked_in"`
	PaymentStatus string                      `json:"payment_status"`
	AmountPaid    float64                     `json:"amount_paid"`
	PaymentMethod string                      `json:"payment_method,omitempty"`
	CreatedAt     time.Time                   `json:"created_at"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:            a.ID,
		PatientID:     a.PatientID,
		DoctorID:      a.DoctorID,
		Date:          a.DateKey,
		Time:          a.Clock,
		Patient:       a.Patient,
		Doctor:        a.Doctor,
		Amount:        a.Amount,
		Status:        string(a.Status),
		CheckedIn:     a.CheckedIn,
		PaymentStatus: string(a.PaymentStatus),
		AmountPaid:    a.AmountPaid,
		PaymentMethod: a.PaymentMethod,
		CreatedAt:     a.CreatedAt,
	}
}

func toAppointmentResponses(appts []appointment.Appointment) []AppointmentResponse {
	out := make([]AppointmentResponse, 0, len(appts))
	for i := range appts {
		out = append(out, toAppointmentResponse(&appts[i]))
	}
	return out
}

type LedgerEntryResponse struct {
	ID          int64     `json:"id"`
	Kind        string    `json:"kind"`
	Amount      float64   `json:"amount"`
	Method      string    `json:"method,omitempty"`
	ProcessedBy string    `json:"processed_by,omitempty"`
	Notes       string    `json:"notes,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func toLedgerResponses(entries []billing.Entry) []LedgerEntryResponse {
	out := make([]LedgerEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, LedgerEntryResponse{
			ID:          e.ID,
			Kind:        string(e.Kind),
			Amount:      e.Amount,
			Method:      e.Method,
			ProcessedBy: e.ProcessedBy,
			Notes:       e.Notes,
			CreatedAt:   e.CreatedAt,
		})
	}
	return out
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`

	// WindowHours carries the active cancellation window on policy
	// rejections so the UI can show it.
	WindowHours float64 `json:"window_hours,omitempty"`
}
