package appointment

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/careops/hospital-scheduling/internal/availability"
)

var (
	ErrPatientNotFound     = errors.New("patient not found")
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrAppointmentNotFound = errors.New("appointment not found")

	// ErrSlotTaken means the (doctor, date, time) slot is already reserved.
	ErrSlotTaken = errors.New("slot already booked")

	// ErrStaleState means a conditional update matched no row: the record
	// changed between the read and the write. The service reloads and maps
	// this to a concrete conflict error.
	ErrStaleState = errors.New("appointment state changed concurrently")
)

// Repository contains all DB interactions needed by the service.
//
// ReserveSlot must be atomic: of two concurrent reservations for the same
// (doctor, date, time), exactly one succeeds and the other gets ErrSlotTaken.
// ReleaseSlot is idempotent. The transition methods apply their precondition
// and mutation in a single conditional write.
type Repository interface {
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)

	// Booking ledger
	BookedSlots(ctx context.Context, doctorID uuid.UUID, dateKey string) (availability.BookedSet, error)
	ReserveSlot(ctx context.Context, doctorID uuid.UUID, dateKey, clock string) error
	ReleaseSlot(ctx context.Context, doctorID uuid.UUID, dateKey, clock string) error

	CreateAppointment(ctx context.Context, appt *Appointment) error
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error)
	ListAppointmentsByDoctorDate(ctx context.Context, doctorID uuid.UUID, dateKey string) ([]Appointment, error)

	// Conditional lifecycle writes
	TransitionStatus(ctx context.Context, id uuid.UUID, from []Status, to Status) (*Appointment, error)
	SetCheckedIn(ctx context.Context, id uuid.UUID) (*Appointment, error)
	ApplyPayment(ctx context.Context, id uuid.UUID, expectPaid float64, status PaymentStatus, newPaid float64, method string) (*Appointment, error)
}
