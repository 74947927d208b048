// Package notify is the outbound notification sink. Publishing is
// fire-and-forget: callers log failures and carry on, a failed publish never
// rolls back the state transition that triggered it.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	KeyAppointmentCheckedIn = "appointment.checked_in"
	KeyPaymentReceived      = "payment.received"
	KeyInvoiceOverdue       = "invoice.overdue"
)

type CheckInEvent struct {
	AppointmentID uuid.UUID `json:"appointment_id"`
	PatientID     uuid.UUID `json:"patient_id"`
	DoctorID      uuid.UUID `json:"doctor_id"`
	DateKey       string    `json:"date"`
	Clock         string    `json:"time"`
	CheckedInAt   time.Time `json:"checked_in_at"`
}

type PaymentEvent struct {
	AppointmentID uuid.UUID `json:"appointment_id"`
	PatientID     uuid.UUID `json:"patient_id"`
	Amount        float64   `json:"amount"`
	Method        string    `json:"method,omitempty"`
	Status        string    `json:"status"`
	ReceivedAt    time.Time `json:"received_at"`
}

type InvoiceOverdueEvent struct {
	InvoiceID     uuid.UUID `json:"invoice_id"`
	Number        string    `json:"number"`
	AppointmentID uuid.UUID `json:"appointment_id"`
	PatientID     uuid.UUID `json:"patient_id"`
	Amount        float64   `json:"amount"`
	DueDate       time.Time `json:"due_date"`
}

type Notifier interface {
	AppointmentCheckedIn(ctx context.Context, ev CheckInEvent) error
	PaymentReceived(ctx context.Context, ev PaymentEvent) error
	InvoiceOverdue(ctx context.Context, ev InvoiceOverdueEvent) error
}

// Nop discards every notification. Used in tests and when no broker is
// configured.
type Nop struct{}

func (Nop) AppointmentCheckedIn(context.Context, CheckInEvent) error { return nil }
func (Nop) PaymentReceived(context.Context, PaymentEvent) error { return nil }
func (Nop) InvoiceOverdue(context.Context, InvoiceOverdueEvent) error { return nil }
