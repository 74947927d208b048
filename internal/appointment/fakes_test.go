package appointment

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/careops/hospital-scheduling/internal/availability"
	"github.com/careops/hospital-scheduling/internal/billing"
)

// memRepo is an in-memory Repository with the same atomicity guarantees as
// the Postgres implementation: every method holds the mutex for its whole
// check-and-write, so concurrent reservations and conditional updates behave
// like single conditional statements.
type memRepo struct {
	mu       sync.Mutex
	patients map[uuid.UUID]*Patient
	doctors  map[uuid.UUID]*Doctor
	appts    map[uuid.UUID]*Appointment
	slots    map[string]struct{}
}

func newMemRepo() *memRepo {
	return &memRepo{
		patients: make(map[uuid.UUID]*Patient),
		doctors:  make(map[uuid.UUID]*Doctor),
		appts:    make(map[uuid.UUID]*Appointment),
		slots:    make(map[string]struct{}),
	}
}

func slotKey(doctorID uuid.UUID, dateKey, clock string) string {
	return fmt.Sprintf("%s|%s|%s", doctorID, dateKey, clock)
}

func (r *memRepo) GetPatientByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *memRepo) GetDoctorByID(_ context.Context, id uuid.UUID) (*Doctor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	cp := *d
	return &cp, nil
}

func (r *memRepo) BookedSlots(_ context.Context, doctorID uuid.UUID, dateKey string) (availability.BookedSet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	booked := make(availability.BookedSet)
	prefix := fmt.Sprintf("%s|%s|", doctorID, dateKey)
	for key := range r.slots {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			booked[key[len(prefix):]] = struct{}{}
		}
	}
	return booked, nil
}

func (r *memRepo) ReserveSlot(_ context.Context, doctorID uuid.UUID, dateKey, clock string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := slotKey(doctorID, dateKey, clock)
	if _, taken := r.slots[key]; taken {
		return ErrSlotTaken
	}
	r.slots[key] = struct{}{}
	return nil
}

func (r *memRepo) ReleaseSlot(_ context.Context, doctorID uuid.UUID, dateKey, clock string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.slots, slotKey(doctorID, dateKey, clock))
	return nil
}

func (r *memRepo) slotCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.slots)
}

func (r *memRepo) CreateAppointment(_ context.Context, appt *Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *appt
	r.appts[appt.ID] = &cp
	return nil
}

func (r *memRepo) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *memRepo) ListAppointmentsByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []Appointment
	for _, a := range r.appts {
		if a.PatientID == patientID {
			result = append(result, *a)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	if offset >= len(result) {
		return nil, nil
	}
	result = result[offset:]
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *memRepo) ListAppointmentsByDoctorDate(_ context.Context, doctorID uuid.UUID, dateKey string) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []Appointment
	for _, a := range r.appts {
		if a.DoctorID == doctorID && a.DateKey == dateKey {
			result = append(result, *a)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Clock < result[j].Clock })
	return result, nil
}

func (r *memRepo) TransitionStatus(_ context.Context, id uuid.UUID, from []Status, to Status) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok {
		return nil, ErrStaleState
	}
	matched := false
	for _, st := range from {
		if a.Status == st {
			matched = true
			break
		}
	}
	if !matched {
		return nil, ErrStaleState
	}
	a.Status = to
	a.UpdatedAt = time.Now()
	cp := *a
	return &cp, nil
}

func (r *memRepo) SetCheckedIn(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok || a.Status == StatusCancelled {
		return nil, ErrStaleState
	}
	a.CheckedIn = true
	a.UpdatedAt = time.Now()
	cp := *a
	return &cp, nil
}

func (r *memRepo) ApplyPayment(_ context.Context, id uuid.UUID, expectPaid float64, status PaymentStatus, newPaid float64, method string) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok || a.Status == StatusCancelled || a.AmountPaid != expectPaid {
		return nil, ErrStaleState
	}
	a.PaymentStatus = status
	a.AmountPaid = newPaid
	a.PaymentMethod = method
	a.UpdatedAt = time.Now()
	cp := *a
	return &cp, nil
}

// memBillingRepo is an in-memory billing.Repository.
type memBillingRepo struct {
	mu       sync.Mutex
	entries  []billing.Entry
	invoices []billing.Invoice
	nextID   int64
}

func (r *memBillingRepo) AppendEntry(_ context.Context, entry *billing.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	entry.ID = r.nextID
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *memBillingRepo) EntriesByAppointment(_ context.Context, appointmentID uuid.UUID) ([]billing.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []billing.Entry
	for _, e := range r.entries {
		if e.AppointmentID == appointmentID {
			result = append(result, e)
		}
	}
	return result, nil
}

func (r *memBillingRepo) EntriesBetween(_ context.Context, from, to time.Time) ([]billing.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []billing.Entry
	for _, e := range r.entries {
		if !e.CreatedAt.Before(from) && e.CreatedAt.Before(to) {
			result = append(result, e)
		}
	}
	return result, nil
}

func (r *memBillingRepo) CreateInvoice(_ context.Context, inv *billing.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invoices = append(r.invoices, *inv)
	return nil
}

func (r *memBillingRepo) SettleInvoiceByAppointment(_ context.Context, appointmentID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.invoices {
		if r.invoices[i].AppointmentID == appointmentID && r.invoices[i].Status == billing.InvoiceUnpaid {
			r.invoices[i].Status = billing.InvoicePaid
			return nil
		}
	}
	return billing.ErrInvoiceNotFound
}

func (r *memBillingRepo) CountOverdueInvoices(_ context.Context, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, inv := range r.invoices {
		if inv.Status == billing.InvoiceUnpaid && inv.DueDate.Before(now) {
			count++
		}
	}
	return count, nil
}

func (r *memBillingRepo) OverdueInvoicesToRemind(_ context.Context, now time.Time) ([]billing.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []billing.Invoice
	for _, inv := range r.invoices {
		if inv.Status == billing.InvoiceUnpaid && inv.DueDate.Before(now) && inv.RemindedAt == nil {
			result = append(result, inv)
		}
	}
	return result, nil
}

func (r *memBillingRepo) MarkInvoiceReminded(_ context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.invoices {
		if r.invoices[i].ID == id {
			stamp := at
			r.invoices[i].RemindedAt = &stamp
			return nil
		}
	}
	return billing.ErrInvoiceNotFound
}

func (r *memBillingRepo) AppointmentFigures(_ context.Context, _, _ time.Time) ([]billing.AppointmentFigure, error) {
	return nil, nil
}

func (r *memBillingRepo) entriesFor(appointmentID uuid.UUID) []billing.Entry {
	entries, _ := r.EntriesByAppointment(context.Background(), appointmentID)
	return entries
}

func (r *memBillingRepo) invoicesFor(appointmentID uuid.UUID) []billing.Invoice {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []billing.Invoice
	for _, inv := range r.invoices {
		if inv.AppointmentID == appointmentID {
			result = append(result, inv)
		}
	}
	return result
}

// localLocker serializes critical sections per key with plain mutexes, a
// stand-in for the Redis slot lock.
type localLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newLocalLocker() *localLocker {
	return &localLocker{locks: make(map[string]*sync.Mutex)}
}

func (l *localLocker) WithSlotLock(ctx context.Context, slotKey string, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	m, ok := l.locks[slotKey]
	if !ok {
		m = &sync.Mutex{}
		l.locks[slotKey] = m
	}
	l.mu.Unlock()

	m.Lock()
	defer m.Unlock()
	return fn(ctx)
}
