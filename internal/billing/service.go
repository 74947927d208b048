package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/careops/hospital-scheduling/internal/notify"
)

// Appointment status literals mirrored from the appointment package; carried
// as strings to keep this package free of a dependency on it.
const (
	statusCancelled      = "cancelled"
	paymentPaid          = "paid"
	paymentPartiallyPaid = "partially_paid"
	paymentRefunded      = "refunded"
)

type Service struct {
	repo     Repository
	notifier notify.Notifier
	log      *zap.Logger
}

func NewService(repo Repository, notifier notify.Notifier, log *zap.Logger) *Service {
	return &Service{
		repo:     repo,
		notifier: notifier,
		log:      log,
	}
}

// Record appends one ledger entry.
func (s *Service) Record(ctx context.Context, entry *Entry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	if err := s.repo.AppendEntry(ctx, entry); err != nil {
		return fmt.Errorf("append ledger entry: %w", err)
	}
	return nil
}

// History returns an appointment's ledger entries in chronological order.
func (s *Service) History(ctx context.Context, appointmentID uuid.UUID) ([]Entry, error) {
	entries, err := s.repo.EntriesByAppointment(ctx, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("load payment history: %w", err)
	}
	return entries, nil
}

// OpenInvoice creates an unpaid invoice for an appointment, due dueIn from
// now.
func (s *Service) OpenInvoice(ctx context.Context, appointmentID, patientID uuid.UUID, amount float64, dueIn time.Duration) (*Invoice, error) {
	now := time.Now()
	inv := &Invoice{
		ID:            uuid.New(),
		Number:        newInvoiceNumber(now),
		AppointmentID: appointmentID,
		PatientID:     patientID,
		Amount:        amount,
		DueDate:       now.Add(dueIn),
		Status:        InvoiceUnpaid,
		CreatedAt:     now,
	}
	if err := s.repo.CreateInvoice(ctx, inv); err != nil {
		return nil, fmt.Errorf("create invoice: %w", err)
	}
	return inv, nil
}

// SettleInvoice marks an appointment's invoice paid. Missing invoice is not
// an error: most appointments are paid before one is ever opened.
func (s *Service) SettleInvoice(ctx context.Context, appointmentID uuid.UUID) error {
	err := s.repo.SettleInvoiceByAppointment(ctx, appointmentID)
	if err != nil && !errors.Is(err, ErrInvoiceNotFound) {
		return fmt.Errorf("settle invoice: %w", err)
	}
	return nil
}

// KPIs aggregates the payment dashboard figures for appointments created in
// [from, to). Today's revenue covers ledger entries since local midnight of
// now: payments and partial payments add, refunds subtract.
func (s *Service) KPIs(ctx context.Context, from, to, now time.Time) (KPIs, error) {
	var out KPIs

	figures, err := s.repo.AppointmentFigures(ctx, from, to)
	if err != nil {
		return out, fmt.Errorf("load appointment figures: %w", err)
	}

	var nonCancelled, succeeded int
	for _, f := range figures {
		if f.Status == statusCancelled {
			continue
		}
		nonCancelled++

		switch f.PaymentStatus {
		case paymentPaid:
			succeeded++
		case paymentPartiallyPaid:
			succeeded++
			out.PendingTotal += f.Amount - f.AmountPaid
		case paymentRefunded:
			// Refunded appointments owe nothing further.
		default:
			out.PendingTotal += f.Amount - f.AmountPaid
		}
	}

	if nonCancelled > 0 {
		out.SuccessRatePercent = float64(succeeded) / float64(nonCancelled) * 100
	}

	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	entries, err := s.repo.EntriesBetween(ctx, midnight, now)
	if err != nil {
		return out, fmt.Errorf("load today's ledger entries: %w", err)
	}
	for _, e := range entries {
		switch e.Kind {
		case KindPayment, KindPartialPayment:
			out.TodayRevenue += e.Amount
		case KindRefund:
			out.TodayRevenue -= e.Amount
		}
	}

	overdue, err := s.repo.CountOverdueInvoices(ctx, now)
	if err != nil {
		return out, fmt.Errorf("count overdue invoices: %w", err)
	}
	out.OverdueInvoices = overdue

	return out, nil
}

// RemindOverdue publishes an overdue notification for every unpaid invoice
// past its due date that has not been reminded yet. Publish failures are
// logged and the invoice is left unstamped so the next sweep retries it.
func (s *Service) RemindOverdue(ctx context.Context, now time.Time) (int, error) {
	invoices, err := s.repo.OverdueInvoicesToRemind(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("find overdue invoices: %w", err)
	}

	reminded := 0
	for _, inv := range invoices {
		ev := notify.InvoiceOverdueEvent{
			InvoiceID:     inv.ID,
			Number:        inv.Number,
			AppointmentID: inv.AppointmentID,
			PatientID:     inv.PatientID,
			Amount:        inv.Amount,
			DueDate:       inv.DueDate,
		}
		if err := s.notifier.InvoiceOverdue(ctx, ev); err != nil {
			s.log.Warn("overdue notification failed",
				zap.String("invoice", inv.Number),
				zap.Error(err),
			)
			continue
		}
		if err := s.repo.MarkInvoiceReminded(ctx, inv.ID, now); err != nil {
			s.log.Warn("failed to stamp invoice reminder",
				zap.String("invoice", inv.Number),
				zap.Error(err),
			)
			continue
		}
		reminded++
	}

	return reminded, nil
}

func newInvoiceNumber(now time.Time) string {
	suffix := strings.ToUpper(uuid.NewString()[:8])
	return fmt.Sprintf("INV-%s-%s", now.Format("200601"), suffix)
}
