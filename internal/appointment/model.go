package appointment

import (
	"time"

	"github.com/google/uuid"

	"github.com/careops/hospital-scheduling/internal/availability"
	"github.com/careops/hospital-scheduling/internal/timefmt"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

type PaymentStatus string

const (
	PaymentUnpaid   PaymentStatus = "unpaid"
	PaymentPartial  PaymentStatus = "partially_paid"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
)

// Role identifies who is acting on an appointment. Patients are bound by the
// cancellation window and the accepted-lock; doctors, staff and admins are not.
type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleStaff   Role = "staff"
	RoleAdmin   Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RolePatient, RoleDoctor, RoleStaff, RoleAdmin:
		return true
	}
	return false
}

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	Phone     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Doctor struct {
	ID           uuid.UUID
	Name         string
	Specialty    *string
	Department   *string
	Fee          float64
	Available    bool
	Availability availability.Availability
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PatientSnapshot and DoctorSnapshot are point-in-time copies captured at
// booking. They are never re-fetched from the live records, so an
// appointment's history stays accurate even after the doctor or patient
// record changes.
type PatientSnapshot struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

type DoctorSnapshot struct {
	Name       string `json:"name"`
	Specialty  string `json:"specialty,omitempty"`
	Department string `json:"department,omitempty"`
}

// Appointment is one booked visit. DateKey and Clock are the denormalized
// day_month_year / HH:MM slot identity, immutable once set; rescheduling is a
// cancel plus a fresh booking. Amount is the doctor's fee frozen at booking.
type Appointment struct {
	ID        uuid.UUID
	PatientID uuid.UUID
	DoctorID  uuid.UUID

	DateKey string
	Clock   string

	Patient PatientSnapshot
	Doctor  DoctorSnapshot

	Amount float64

	Status    Status
	CheckedIn bool

	PaymentStatus PaymentStatus
	AmountPaid    float64
	PaymentMethod string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// StartsAt resolves the slot's absolute start instant in loc.
func (a *Appointment) StartsAt(loc *time.Location) (time.Time, error) {
	return timefmt.At(a.DateKey, a.Clock, loc)
}

func newPatientSnapshot(p *Patient) PatientSnapshot {
	s := PatientSnapshot{Name: p.Name}
	if p.Email != nil {
		s.Email = *p.Email
	}
	if p.Phone != nil {
		s.Phone = *p.Phone
	}
	return s
}

func newDoctorSnapshot(d *Doctor) DoctorSnapshot {
	s := DoctorSnapshot{Name: d.Name}
	if d.Specialty != nil {
		s.Specialty = *d.Specialty
	}
	if d.Department != nil {
		s.Department = *d.Department
	}
	return s
}
