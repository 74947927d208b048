package appointment

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/careops/hospital-scheduling/internal/availability"
	"github.com/careops/hospital-scheduling/internal/billing"
	"github.com/careops/hospital-scheduling/internal/config"
	"github.com/careops/hospital-scheduling/internal/notify"
	redisclient "github.com/careops/hospital-scheduling/internal/redis"
	"github.com/careops/hospital-scheduling/internal/timefmt"
)

var (
	ErrDoctorUnavailable  = errors.New("doctor is not accepting appointments")
	ErrSlotUnavailable    = errors.New("slot is not open for booking")
	ErrSlotBeingBooked    = errors.New("slot is currently being booked, please retry")
	ErrAlreadyAccepted    = errors.New("appointment has already been accepted")
	ErrAlreadyCancelled   = errors.New("appointment is cancelled")
	ErrAlreadyCompleted   = errors.New("appointment is already completed")
	ErrAlreadyRefunded    = errors.New("payment has already been refunded")
	ErrWithinCancelWindow = errors.New("appointment is too close to its start time to cancel")
	ErrNotOwner           = errors.New("actor does not own this appointment")
	ErrInvalidRole        = errors.New("unknown actor role")
	ErrInvalidAmount      = errors.New("invalid payment amount")
	ErrInvalidTarget      = errors.New("invalid target payment status")
	ErrNotPaid            = errors.New("appointment has not been fully paid")
	ErrAmountExceedsTotal = errors.New("refund amount exceeds the appointment fee")
)

// DaySlots is one day's bookable times, ordered chronologically.
type DaySlots struct {
	DateKey string   `json:"date"`
	Times   []string `json:"slots"`
}

type Service struct {
	repo     Repository
	locker   redisclient.Locker
	ledger   *billing.Service
	notifier notify.Notifier
	cfg      config.Config
	log      *zap.Logger

	// cancelWindow is nanoseconds, admin-editable at runtime.
	cancelWindow atomic.Int64

	now func() time.Time
}

func NewService(repo Repository, locker redisclient.Locker, ledger *billing.Service, notifier notify.Notifier, cfg config.Config, log *zap.Logger) *Service {
	s := &Service{
		repo:     repo,
		locker:   locker,
		ledger:   ledger,
		notifier: notifier,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
	}
	s.cancelWindow.Store(int64(cfg.CancelWindow))
	return s
}

// CancellationWindow returns the minimum lead time a patient needs to
// self-cancel.
func (s *Service) CancellationWindow() time.Duration {
	return time.Duration(s.cancelWindow.Load())
}

// SetCancellationWindow updates the patient cancellation policy.
func (s *Service) SetCancellationWindow(d time.Duration) error {
	if d < 0 {
		return fmt.Errorf("%w: window must not be negative", ErrInvalidAmount)
	}
	s.cancelWindow.Store(int64(d))
	return nil
}

// GetSlots returns the bookable slots for numDays consecutive days starting
// at startKey, one entry per day. An unavailable or disabled doctor yields
// empty days, not an error.
func (s *Service) GetSlots(ctx context.Context, doctorID uuid.UUID, startKey string, numDays int) ([]DaySlots, error) {
	doctor, err := s.repo.GetDoctorByID(ctx, doctorID)
	if err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load doctor: %w", err)
	}

	if numDays <= 0 {
		numDays = 1
	}
	if numDays > s.cfg.MaxSlotDays {
		numDays = s.cfg.MaxSlotDays
	}

	av := doctor.Availability
	loc := av.Location()

	start, err := timefmt.ParseDateKey(startKey, loc)
	if err != nil {
		return nil, err
	}

	now := s.now()
	days := make([]DaySlots, 0, numDays)

	for i := 0; i < numDays; i++ {
		date := start.AddDate(0, 0, i)
		dateKey := timefmt.DateKey(date)

		day := DaySlots{DateKey: dateKey, Times: []string{}}

		if doctor.Available && av.Enabled {
			booked, err := s.repo.BookedSlots(ctx, doctorID, dateKey)
			if err != nil {
				return nil, fmt.Errorf("load booked slots for %s: %w", dateKey, err)
			}
			if slots := availability.Slots(av, booked, date, now); slots != nil {
				day.Times = slots
			}
		}

		days = append(days, day)
	}

	return days, nil
}

// Book reserves a slot for a patient and creates the appointment. The
// check-then-insert on the booked-slot index runs inside a per-slot
// distributed lock; the index's uniqueness constraint backstops the lock, so
// two concurrent bookings of the same (doctor, date, time) can never both
// succeed.
func (s *Service) Book(ctx context.Context, patientID, doctorID uuid.UUID, dateKey, clock string) (*Appointment, error) {
	patient, err := s.repo.GetPatientByID(ctx, patientID)
	if err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}

	doctor, err := s.repo.GetDoctorByID(ctx, doctorID)
	if err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load doctor: %w", err)
	}
	if !doctor.Available || !doctor.Availability.Enabled {
		return nil, ErrDoctorUnavailable
	}

	loc := doctor.Availability.Location()
	date, err := timefmt.ParseDateKey(dateKey, loc)
	if err != nil {
		return nil, err
	}
	if _, err := timefmt.ParseClock(clock); err != nil {
		return nil, err
	}

	var created *Appointment

	// The schedule check ignores booked slots on purpose: whether the time is
	// already taken is decided by the atomic reservation below, so a race
	// always surfaces as ErrSlotTaken.
	if !containsSlot(availability.Slots(doctor.Availability, nil, date, s.now()), clock) {
		return nil, ErrSlotUnavailable
	}

	err = s.locker.WithSlotLock(ctx, slotLockKey(doctorID, dateKey, clock), func(lockCtx context.Context) error {
		if err := s.repo.ReserveSlot(lockCtx, doctorID, dateKey, clock); err != nil {
			return err
		}

		now := s.now()
		appt := &Appointment{
			ID:            uuid.New(),
			PatientID:     patientID,
			DoctorID:      doctorID,
			DateKey:       dateKey,
			Clock:         clock,
			Patient:       newPatientSnapshot(patient),
			Doctor:        newDoctorSnapshot(doctor),
			Amount:        doctor.Fee,
			Status:        StatusPending,
			PaymentStatus: PaymentUnpaid,
			CreatedAt:     now,
			UpdatedAt:     now,
		}

		if err := s.repo.CreateAppointment(lockCtx, appt); err != nil {
			// Undo the reservation so a failed insert cannot strand the slot.
			if relErr := s.repo.ReleaseSlot(lockCtx, doctorID, dateKey, clock); relErr != nil {
				s.log.Error("failed to release slot after create failure",
					zap.String("doctor", doctorID.String()),
					zap.String("date", dateKey),
					zap.String("time", clock),
					zap.Error(relErr),
				)
			}
			return fmt.Errorf("create appointment: %w", err)
		}

		created = appt
		return nil
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		return nil, err
	}

	return created, nil
}

// Accept moves a pending appointment to accepted. Accepting an already
// accepted appointment is a no-op success.
func (s *Service) Accept(ctx context.Context, id, actorDoctorID uuid.UUID) (*Appointment, error) {
	appt, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.DoctorID != actorDoctorID {
		return nil, ErrNotOwner
	}

	switch appt.Status {
	case StatusAccepted:
		return appt, nil
	case StatusCancelled:
		return nil, ErrAlreadyCancelled
	case StatusCompleted:
		return nil, ErrAlreadyCompleted
	}

	updated, err := s.repo.TransitionStatus(ctx, id, []Status{StatusPending}, StatusAccepted)
	if err != nil {
		return nil, s.resolveStale(ctx, id, err)
	}
	return updated, nil
}

// Complete marks an appointment completed. Prior acceptance is not required;
// completing twice is a no-op success. When the fee has not been fully
// collected an invoice is opened, best-effort.
func (s *Service) Complete(ctx context.Context, id, actorDoctorID uuid.UUID) (*Appointment, error) {
	appt, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.DoctorID != actorDoctorID {
		return nil, ErrNotOwner
	}

	switch appt.Status {
	case StatusCompleted:
		return appt, nil
	case StatusCancelled:
		return nil, ErrAlreadyCancelled
	}

	updated, err := s.repo.TransitionStatus(ctx, id, []Status{StatusPending, StatusAccepted}, StatusCompleted)
	if err != nil {
		return nil, s.resolveStale(ctx, id, err)
	}

	if updated.PaymentStatus != PaymentPaid && updated.PaymentStatus != PaymentRefunded {
		if _, err := s.ledger.OpenInvoice(ctx, updated.ID, updated.PatientID, updated.Amount, s.cfg.InvoiceDueIn); err != nil {
			s.log.Error("failed to open invoice for completed appointment",
				zap.String("appointment", updated.ID.String()),
				zap.Error(err),
			)
		}
	}

	return updated, nil
}

// Cancel cancels an appointment and releases its slot. Patients may only
// cancel their own appointments, only before acceptance, and only outside the
// cancellation window; doctors may cancel their own without restriction;
// staff and admin may cancel any.
func (s *Service) Cancel(ctx context.Context, id, actorID uuid.UUID, role Role) (*Appointment, error) {
	if !role.Valid() {
		return nil, ErrInvalidRole
	}

	appt, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	switch appt.Status {
	case StatusCancelled:
		return nil, ErrAlreadyCancelled
	case StatusCompleted:
		return nil, ErrAlreadyCompleted
	}

	switch role {
	case RolePatient:
		if appt.PatientID != actorID {
			return nil, ErrNotOwner
		}
		if appt.Status == StatusAccepted {
			return nil, ErrAlreadyAccepted
		}
		doctor, err := s.repo.GetDoctorByID(ctx, appt.DoctorID)
		if err != nil {
			return nil, fmt.Errorf("load doctor: %w", err)
		}
		startsAt, err := appt.StartsAt(doctor.Availability.Location())
		if err != nil {
			return nil, err
		}
		if !CancellationAllowed(startsAt, s.now(), s.CancellationWindow()) {
			return nil, ErrWithinCancelWindow
		}
	case RoleDoctor:
		if appt.DoctorID != actorID {
			return nil, ErrNotOwner
		}
	}

	updated, err := s.repo.TransitionStatus(ctx, id, []Status{StatusPending, StatusAccepted}, StatusCancelled)
	if err != nil {
		return nil, s.resolveStale(ctx, id, err)
	}

	if err := s.repo.ReleaseSlot(ctx, appt.DoctorID, appt.DateKey, appt.Clock); err != nil {
		return nil, fmt.Errorf("release slot: %w", err)
	}

	return updated, nil
}

// CheckIn flags the patient as arrived and notifies the front desk sink.
func (s *Service) CheckIn(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	updated, err := s.repo.SetCheckedIn(ctx, id)
	if err != nil {
		return nil, s.resolveStale(ctx, id, err)
	}

	ev := notify.CheckInEvent{
		AppointmentID: updated.ID,
		PatientID:     updated.PatientID,
		DoctorID:      updated.DoctorID,
		DateKey:       updated.DateKey,
		Clock:         updated.Clock,
		CheckedInAt:   s.now(),
	}
	if err := s.notifier.AppointmentCheckedIn(ctx, ev); err != nil {
		s.log.Warn("check-in notification failed",
			zap.String("appointment", updated.ID.String()),
			zap.Error(err),
		)
	}

	return updated, nil
}

// UpdatePayment moves the payment sub-state.
//
// paid settles the full fee and logs only the increment still owed;
// partially_paid adds amount to the cumulative total, which must stay below
// the fee; unpaid is the administrative reset and logs nothing.
func (s *Service) UpdatePayment(ctx context.Context, id uuid.UUID, target PaymentStatus, amount float64, method, processedBy string) (*Appointment, error) {
	appt, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.Status == StatusCancelled {
		return nil, ErrAlreadyCancelled
	}
	if appt.PaymentStatus == PaymentRefunded {
		return nil, ErrAlreadyRefunded
	}

	var (
		updated   *Appointment
		entryKind billing.EntryKind
		logged    float64
	)

	switch target {
	case PaymentPaid:
		increment := appt.Amount - appt.AmountPaid
		updated, err = s.repo.ApplyPayment(ctx, id, appt.AmountPaid, PaymentPaid, appt.Amount, method)
		entryKind, logged = billing.KindPayment, increment

	case PaymentPartial:
		if amount <= 0 {
			return nil, ErrInvalidAmount
		}
		newPaid := appt.AmountPaid + amount
		if newPaid >= appt.Amount {
			return nil, fmt.Errorf("%w: cumulative partial payment must stay below the fee", ErrInvalidAmount)
		}
		updated, err = s.repo.ApplyPayment(ctx, id, appt.AmountPaid, PaymentPartial, newPaid, method)
		entryKind, logged = billing.KindPartialPayment, amount

	case PaymentUnpaid:
		updated, err = s.repo.ApplyPayment(ctx, id, appt.AmountPaid, PaymentUnpaid, 0, "")

	default:
		return nil, ErrInvalidTarget
	}

	if err != nil {
		return nil, s.resolveStale(ctx, id, err)
	}

	if logged > 0 {
		s.appendLedger(ctx, &billing.Entry{
			AppointmentID: updated.ID,
			PatientID:     updated.PatientID,
			Kind:          entryKind,
			Amount:        logged,
			Method:        method,
			ProcessedBy:   processedBy,
		})

		ev := notify.PaymentEvent{
			AppointmentID: updated.ID,
			PatientID:     updated.PatientID,
			Amount:        logged,
			Method:        method,
			Status:        string(updated.PaymentStatus),
			ReceivedAt:    s.now(),
		}
		if nerr := s.notifier.PaymentReceived(ctx, ev); nerr != nil {
			s.log.Warn("payment notification failed",
				zap.String("appointment", updated.ID.String()),
				zap.Error(nerr),
			)
		}
	}

	if updated.PaymentStatus == PaymentPaid {
		if serr := s.ledger.SettleInvoice(ctx, updated.ID); serr != nil {
			s.log.Warn("failed to settle invoice",
				zap.String("appointment", updated.ID.String()),
				zap.Error(serr),
			)
		}
	}

	return updated, nil
}

// Refund refunds up to the full fee of a fully paid appointment and marks the
// payment refunded. It does not cancel the appointment.
func (s *Service) Refund(ctx context.Context, id uuid.UUID, amount float64, reason, processedBy string) (*Appointment, error) {
	appt, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.Status == StatusCancelled {
		return nil, ErrAlreadyCancelled
	}
	if appt.PaymentStatus == PaymentRefunded {
		return nil, ErrAlreadyRefunded
	}
	if appt.PaymentStatus != PaymentPaid {
		return nil, ErrNotPaid
	}
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if amount > appt.Amount {
		return nil, ErrAmountExceedsTotal
	}

	updated, err := s.repo.ApplyPayment(ctx, id, appt.AmountPaid, PaymentRefunded, appt.AmountPaid, appt.PaymentMethod)
	if err != nil {
		return nil, s.resolveStale(ctx, id, err)
	}

	s.appendLedger(ctx, &billing.Entry{
		AppointmentID: updated.ID,
		PatientID:     updated.PatientID,
		Kind:          billing.KindRefund,
		Amount:        amount,
		Method:        updated.PaymentMethod,
		ProcessedBy:   processedBy,
		Notes:         reason,
	})

	return updated, nil
}

// Get retrieves an appointment by ID.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.load(ctx, id)
}

// ListByPatient retrieves a patient's appointments, newest first.
func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	appts, err := s.repo.ListAppointmentsByPatient(ctx, patientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments by patient: %w", err)
	}
	return appts, nil
}

// ListByDoctorDate retrieves a doctor's appointments for one day, ordered by
// slot time.
func (s *Service) ListByDoctorDate(ctx context.Context, doctorID uuid.UUID, dateKey string) ([]Appointment, error) {
	if _, err := timefmt.ParseDateKey(dateKey, time.UTC); err != nil {
		return nil, err
	}
	appts, err := s.repo.ListAppointmentsByDoctorDate(ctx, doctorID, dateKey)
	if err != nil {
		return nil, fmt.Errorf("list appointments by doctor and date: %w", err)
	}
	return appts, nil
}

func (s *Service) load(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	return appt, nil
}

// appendLedger records a payment event, best-effort. A full ledger is the
// goal but a failed append must never roll back the payment itself.
func (s *Service) appendLedger(ctx context.Context, entry *billing.Entry) {
	if err := s.ledger.Record(ctx, entry); err != nil {
		s.log.Error("failed to append payment ledger entry",
			zap.String("appointment", entry.AppointmentID.String()),
			zap.String("kind", string(entry.Kind)),
			zap.Float64("amount", entry.Amount),
			zap.Error(err),
		)
	}
}

// resolveStale maps a lost conditional write to the concrete conflict the
// caller raced against.
func (s *Service) resolveStale(ctx context.Context, id uuid.UUID, err error) error {
	if !errors.Is(err, ErrStaleState) {
		return err
	}
	appt, loadErr := s.repo.GetAppointmentByID(ctx, id)
	if loadErr != nil {
		// A conditional write on an id that never existed is not a conflict.
		if errors.Is(loadErr, ErrAppointmentNotFound) {
			return ErrAppointmentNotFound
		}
		return err
	}
	switch appt.Status {
	case StatusCancelled:
		return ErrAlreadyCancelled
	case StatusCompleted:
		return ErrAlreadyCompleted
	case StatusAccepted:
		return ErrAlreadyAccepted
	}
	return err
}

func slotLockKey(doctorID uuid.UUID, dateKey, clock string) string {
	return fmt.Sprintf("%s:%s:%s", doctorID, dateKey, clock)
}

func containsSlot(slots []string, clock string) bool {
	for _, s := range slots {
		if s == clock {
			return true
		}
	}
	return false
}
