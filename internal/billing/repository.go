package billing

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrInvoiceNotFound = errors.New("invoice not found")

// Repository contains all DB interactions needed by the billing service.
// AppendEntry only ever inserts; ledger rows are immutable.
type Repository interface {
	AppendEntry(ctx context.Context, entry *Entry) error
	EntriesByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]Entry, error)
	EntriesBetween(ctx context.Context, from, to time.Time) ([]Entry, error)

	CreateInvoice(ctx context.Context, inv *Invoice) error
	SettleInvoiceByAppointment(ctx context.Context, appointmentID uuid.UUID) error
	CountOverdueInvoices(ctx context.Context, now time.Time) (int, error)
	OverdueInvoicesToRemind(ctx context.Context, now time.Time) ([]Invoice, error)
	MarkInvoiceReminded(ctx context.Context, id uuid.UUID, at time.Time) error

	AppointmentFigures(ctx context.Context, from, to time.Time) ([]AppointmentFigure, error)
}
