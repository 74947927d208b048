package appointment

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/careops/hospital-scheduling/internal/availability"
	"github.com/careops/hospital-scheduling/internal/billing"
	"github.com/careops/hospital-scheduling/internal/config"
	"github.com/careops/hospital-scheduling/internal/notify"
)

// Fixtures: a doctor working Mondays 09:00-10:00 UTC in 30-minute slots for a
// 500 fee, and "now" fixed to Sunday 2026-03-01 12:00 UTC. The bookable
// Monday is 2_3_2026 with slots 09:00 and 09:30.
const (
	testDateKey = "2_3_2026"
	testFee     = 500.0
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testDoctor(id uuid.UUID) *Doctor {
	specialty := "Cardiology"
	return &Doctor{
		ID:        id,
		Name:      "Dr. Mercer",
		Specialty: &specialty,
		Fee:       testFee,
		Available: true,
		Availability: availability.Availability{
			Enabled:      true,
			Timezone:     "UTC",
			SlotDuration: 30,
			Weekly: map[string][]availability.Range{
				"monday": {{Start: "09:00", End: "10:00"}},
			},
		},
	}
}

func newTestService(t *testing.T) (*Service, *memRepo, *memBillingRepo) {
	t.Helper()

	repo := newMemRepo()
	billRepo := &memBillingRepo{}
	ledger := billing.NewService(billRepo, notify.Nop{}, zap.NewNop())

	cfg := config.Config{
		CancelWindow: 2 * time.Hour,
		InvoiceDueIn: 14 * 24 * time.Hour,
		MaxSlotDays:  30,
	}

	svc := NewService(repo, newLocalLocker(), ledger, notify.Nop{}, cfg, zap.NewNop())
	svc.now = func() time.Time { return testNow }

	return svc, repo, billRepo
}

func seedPair(repo *memRepo) (patientID, doctorID uuid.UUID) {
	patientID, doctorID = uuid.New(), uuid.New()
	email := "lena@example.com"
	repo.patients[patientID] = &Patient{ID: patientID, Name: "Lena Ortiz", Email: &email}
	repo.doctors[doctorID] = testDoctor(doctorID)
	return patientID, doctorID
}

func mustBook(t *testing.T, svc *Service, patientID, doctorID uuid.UUID) *Appointment {
	t.Helper()
	appt, err := svc.Book(context.Background(), patientID, doctorID, testDateKey, "09:00")
	require.NoError(t, err)
	return appt
}

func TestBookCreatesPendingAppointment(t *testing.T) {
	svc, repo, _ := newTestService(t)
	patientID, doctorID := seedPair(repo)

	appt, err := svc.Book(context.Background(), patientID, doctorID, testDateKey, "09:30")
	require.NoError(t, err)

	assert.Equal(t, StatusPending, appt.Status)
	assert.Equal(t, PaymentUnpaid, appt.PaymentStatus)
	assert.False(t, appt.CheckedIn)
	assert.Equal(t, testFee, appt.Amount)
	assert.Equal(t, testDateKey, appt.DateKey)
	assert.Equal(t, "09:30", appt.Clock)

	// Snapshots are frozen copies, not live references.
	assert.Equal(t, "Lena Ortiz", appt.Patient.Name)
	assert.Equal(t, "lena@example.com", appt.Patient.Email)
	assert.Equal(t, "Dr. Mercer", appt.Doctor.Name)
	assert.Equal(t, "Cardiology", appt.Doctor.Specialty)

	assert.Equal(t, 1, repo.slotCount())
}

func TestBookUnknownParticipants(t *testing.T) {
	svc, repo, _ := newTestService(t)
	patientID, doctorID := seedPair(repo)

	_, err := svc.Book(context.Background(), uuid.New(), doctorID, testDateKey, "09:00")
	assert.ErrorIs(t, err, ErrPatientNotFound)

	_, err = svc.Book(context.Background(), patientID, uuid.New(), testDateKey, "09:00")
	assert.ErrorIs(t, err, ErrDoctorNotFound)
}

func TestBookUnavailableDoctor(t *testing.T) {
	svc, repo, _ := newTestService(t)
	patientID, doctorID := seedPair(repo)
	repo.doctors[doctorID].Available = false

	_, err := svc.Book(context.Background(), patientID, doctorID, testDateKey, "09:00")
	assert.ErrorIs(t, err, ErrDoctorUnavailable)
}

func TestBookOffScheduleSlot(t *testing.T) {
	svc, repo, _ := newTestService(t)
	patientID, doctorID := seedPair(repo)

	// Tuesday is not in the weekly schedule.
	_, err := svc.Book(context.Background(), patientID, doctorID, "3_3_2026", "09:00")
	assert.ErrorIs(t, err, ErrSlotUnavailable)

	// 10:00 would not fit inside the 09:00-10:00 range.
	_, err = svc.Book(context.Background(), patientID, doctorID, testDateKey, "10:00")
	assert.ErrorIs(t, err, ErrSlotUnavailable)
}

func TestBookSameSlotTwice(t *testing.T) {
	svc, repo, _ := newTestService(t)
	patientID, doctorID := seedPair(repo)

	mustBook(t, svc, patientID, doctorID)

	_, err := svc.Book(context.Background(), patientID, doctorID, testDateKey, "09:00")
	assert.ErrorIs(t, err, ErrSlotTaken)
	assert.Equal(t, 1, repo.slotCount())
	assert.Len(t, repo.appts, 1)
}

func TestBookConcurrentSameSlot(t *testing.T) {
	svc, repo, _ := newTestService(t)
	patientID, doctorID := seedPair(repo)

	const attempts = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		taken     int
	)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Book(context.Background(), patientID, doctorID, testDateKey, "09:00")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			default:
				assert.ErrorIs(t, err, ErrSlotTaken)
				taken++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, attempts-1, taken)
	assert.Len(t, repo.appts, 1)
	assert.Equal(t, 1, repo.slotCount())
}

func TestAccept(t *testing.T) {
	svc, repo, _ := newTestService(t)
	patientID, doctorID := seedPair(repo)
	appt := mustBook(t, svc, patientID, doctorID)

	_, err := svc.Accept(context.Background(), appt.ID, uuid.New())
	assert.ErrorIs(t, err, ErrNotOwner)

	updated, err := svc.Accept(context.Background(), appt.ID, doctorID)
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, updated.Status)

	// Re-accepting is a no-op success.
	again, err := svc.Accept(context.Background(), appt.ID, doctorID)
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, again.Status)
}

func TestCompleteWithoutAcceptOpensInvoice(t *testing.T) {
	svc, repo, billRepo := newTestService(t)
	patientID, doctorID := seedPair(repo)
	appt := mustBook(t, svc, patientID, doctorID)

	updated, err := svc.Complete(context.Background(), appt.ID, doctorID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, updated.Status)

	invoices := billRepo.invoicesFor(appt.ID)
	require.Len(t, invoices, 1)
	assert.Equal(t, billing.InvoiceUnpaid, invoices[0].Status)
	assert.Equal(t, testFee, invoices[0].Amount)

	// Re-completing is a no-op and must not open a second invoice.
	_, err = svc.Complete(context.Background(), appt.ID, doctorID)
	require.NoError(t, err)
	assert.Len(t, billRepo.invoicesFor(appt.ID), 1)
}

func TestCompletePaidAppointmentSkipsInvoice(t *testing.T) {
	svc, repo, billRepo := newTestService(t)
	patientID, doctorID := seedPair(repo)
	appt := mustBook(t, svc, patientID, doctorID)

	_, err := svc.UpdatePayment(context.Background(), appt.ID, PaymentPaid, 0, "card", "front-desk")
	require.NoError(t, err)

	_, err = svc.Complete(context.Background(), appt.ID, doctorID)
	require.NoError(t, err)
	assert.Empty(t, billRepo.invoicesFor(appt.ID))
}

func TestPatientCancelOutsideWindow(t *testing.T) {
	svc, repo, _ := newTestService(t)
	patientID, doctorID := seedPair(repo)
	appt := mustBook(t, svc, patientID, doctorID)

	// 21 hours of lead time against a 2-hour window.
	updated, err := svc.Cancel(context.Background(), appt.ID, patientID, RolePatient)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, updated.Status)
	assert.Equal(t, 0, repo.slotCount())
}

func TestPatientCancelWithinWindow(t *testing.T) {
	svc, repo, _ := newTestService(t)
	patientID, doctorID := seedPair(repo)
	appt := mustBook(t, svc, patientID, doctorID)

	// One hour before a 09:00 start is inside the 2-hour window.
	svc.now = func() time.Time { return time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC) }

	_, err := svc.Cancel(context.Background(), appt.ID, patientID, RolePatient)
	assert.ErrorIs(t, err, ErrWithinCancelWindow)

	current, err := svc.Get(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, current.Status)
	assert.Equal(t, 1, repo.slotCount())
}

func TestPatientCancelBlockedAfterAccept(t *testing.T) {
	svc, repo, _ := newTestService(t)
	patientID, doctorID := seedPair(repo)
	appt := mustBook(t, svc, patientID, doctorID)

	_, err := svc.Accept(context.Background(), appt.ID, doctorID)
	require.NoError(t, err)

	_, err = svc.Cancel(context.Background(), appt.ID, patientID, RolePatient)
	assert.ErrorIs(t, err, ErrAlreadyAccepted)

	// Staff are not bound by the accepted-lock or the window.
	updated, err := svc.Cancel(context.Background(), appt.ID, uuid.New(), RoleStaff)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, updated.Status)
	assert.Equal(t, 0, repo.slotCount())
}

func TestDoctorCancelOwnOnly(t *testing.T) {
	svc, repo, _ := newTestService(t)
	patientID, doctorID := seedPair(repo)
	appt := mustBook(t, svc, patientID, doctorID)

	_, err := svc.Cancel(context.Background(), appt.ID, uuid.New(), RoleDoctor)
	assert.ErrorIs(t, err, ErrNotOwner)

	// Doctors skip the window even right before the start time.
	svc.now = func() time.Time { return time.Date(2026, 3, 2, 8, 55, 0, 0, time.UTC) }
	updated, err := svc.Cancel(context.Background(), appt.ID, doctorID, RoleDoctor)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, updated.Status)
}

func TestCancelInvalidRole(t *testing.T) {
	svc, repo, _ := newTestService(t)
	patientID, doctorID := seedPair(repo)
	appt := mustBook(t, svc, patientID, doctorID)

	_, err := svc.Cancel(context.Background(), appt.ID, patientID, Role("receptionist"))
	assert.ErrorIs(t, err, ErrInvalidRole)
}

func TestCancelledIsTerminal(t *testing.T) {
	svc, repo, _ := newTestService(t)
	patientID, doctorID := seedPair(repo)
	appt := mustBook(t, svc, patientID, doctorID)

	_, err := svc.Cancel(context.Background(), appt.ID, uuid.New(), RoleAdmin)
	require.NoError(t, err)

	_, err = svc.Accept(context.Background(), appt.ID, doctorID)
	assert.ErrorIs(t, err, ErrAlreadyCancelled)

	_, err = svc.Complete(context.Background(), appt.ID, doctorID)
	assert.ErrorIs(t, err, ErrAlreadyCancelled)

	_, err = svc.Cancel(context.Background(), appt.ID, uuid.New(), RoleAdmin)
	assert.ErrorIs(t, err, ErrAlreadyCancelled)

	_, err = svc.CheckIn(context.Background(), appt.ID)
	assert.ErrorIs(t, err, ErrAlreadyCancelled)

	_, err = svc.UpdatePayment(context.Background(), appt.ID, PaymentPaid, 0, "cash", "")
	assert.ErrorIs(t, err, ErrAlreadyCancelled)

	current, err := svc.Get(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, current.Status)
	assert.Equal(t, PaymentUnpaid, current.PaymentStatus)
}

func TestReleaseSlotIdempotent(t *testing.T) {
	svc, repo, _ := newTestService(t)
	patientID, doctorID := seedPair(repo)
	appt := mustBook(t, svc, patientID, doctorID)

	_, err := svc.Cancel(context.Background(), appt.ID, patientID, RolePatient)
	require.NoError(t, err)
	require.Equal(t, 0, repo.slotCount())

	// Releasing the already-freed slot again is a no-op, not an error.
	require.NoError(t, repo.ReleaseSlot(context.Background(), doctorID, testDateKey, "09:00"))
	assert.Equal(t, 0, repo.slotCount())

	// The slot is bookable again afterwards.
	again := mustBook(t, svc, patientID, doctorID)
	assert.NotEqual(t, appt.ID, again.ID)
}

func TestCheckIn(t *testing.T) {
	svc, repo, _ := newTestService(t)
	patientID, doctorID := seedPair(repo)
	appt := mustBook(t, svc, patientID, doctorID)

	updated, err := svc.CheckIn(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.True(t, updated.CheckedIn)
	assert.Equal(t, StatusPending, updated.Status)

	_, err = svc.CheckIn(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestPartialThenFullPayment(t *testing.T) {
	svc, repo, billRepo := newTestService(t)
	patientID, doctorID := seedPair(repo)
	appt := mustBook(t, svc, patientID, doctorID)

	updated, err := svc.UpdatePayment(context.Background(), appt.ID, PaymentPartial, 200, "cash", "front-desk")
	require.NoError(t, err)
	assert.Equal(t, PaymentPartial, updated.PaymentStatus)
	assert.Equal(t, 200.0, updated.AmountPaid)

	// Settling afterwards logs only the 300 still owed.
	updated, err = svc.UpdatePayment(context.Background(), appt.ID, PaymentPaid, 0, "card", "front-desk")
	require.NoError(t, err)
	assert.Equal(t, PaymentPaid, updated.PaymentStatus)
	assert.Equal(t, testFee, updated.AmountPaid)

	entries := billRepo.entriesFor(appt.ID)
	require.Len(t, entries, 2)
	assert.Equal(t, billing.KindPartialPayment, entries[0].Kind)
	assert.Equal(t, 200.0, entries[0].Amount)
	assert.Equal(t, billing.KindPayment, entries[1].Kind)
	assert.Equal(t, 300.0, entries[1].Amount)
}

func TestPartialPaymentBounds(t *testing.T) {
	svc, repo, billRepo := newTestService(t)
	patientID, doctorID := seedPair(repo)
	appt := mustBook(t, svc, patientID, doctorID)

	_, err := svc.UpdatePayment(context.Background(), appt.ID, PaymentPartial, 0, "cash", "")
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = svc.UpdatePayment(context.Background(), appt.ID, PaymentPartial, -50, "cash", "")
	assert.ErrorIs(t, err, ErrInvalidAmount)

	// Cumulative partials may never reach the fee; that is what paid is for.
	_, err = svc.UpdatePayment(context.Background(), appt.ID, PaymentPartial, testFee, "cash", "")
	assert.ErrorIs(t, err, ErrInvalidAmount)

	assert.Empty(t, billRepo.entriesFor(appt.ID))
}

func TestPaymentResetLogsNothing(t *testing.T) {
	svc, repo, billRepo := newTestService(t)
	patientID, doctorID := seedPair(repo)
	appt := mustBook(t, svc, patientID, doctorID)

	_, err := svc.UpdatePayment(context.Background(), appt.ID, PaymentPartial, 100, "cash", "")
	require.NoError(t, err)

	updated, err := svc.UpdatePayment(context.Background(), appt.ID, PaymentUnpaid, 0, "", "")
	require.NoError(t, err)
	assert.Equal(t, PaymentUnpaid, updated.PaymentStatus)
	assert.Zero(t, updated.AmountPaid)

	// Only the partial payment made it into the ledger.
	assert.Len(t, billRepo.entriesFor(appt.ID), 1)
}

func TestUpdatePaymentInvalidTarget(t *testing.T) {
	svc, repo, _ := newTestService(t)
	patientID, doctorID := seedPair(repo)
	appt := mustBook(t, svc, patientID, doctorID)

	_, err := svc.UpdatePayment(context.Background(), appt.ID, PaymentStatus("waived"), 0, "", "")
	assert.ErrorIs(t, err, ErrInvalidTarget)

	_, err = svc.UpdatePayment(context.Background(), appt.ID, PaymentRefunded, 0, "", "")
	assert.ErrorIs(t, err, ErrInvalidTarget)
}

func TestFullPaymentSettlesInvoice(t *testing.T) {
	svc, repo, billRepo := newTestService(t)
	patientID, doctorID := seedPair(repo)
	appt := mustBook(t, svc, patientID, doctorID)

	_, err := svc.Complete(context.Background(), appt.ID, doctorID)
	require.NoError(t, err)
	require.Len(t, billRepo.invoicesFor(appt.ID), 1)

	_, err = svc.UpdatePayment(context.Background(), appt.ID, PaymentPaid, 0, "card", "")
	require.NoError(t, err)

	invoices := billRepo.invoicesFor(appt.ID)
	require.Len(t, invoices, 1)
	assert.Equal(t, billing.InvoicePaid, invoices[0].Status)
}

func TestRefund(t *testing.T) {
	svc, repo, billRepo := newTestService(t)
	patientID, doctorID := seedPair(repo)
	appt := mustBook(t, svc, patientID, doctorID)

	// Refunding before full payment is rejected.
	_, err := svc.Refund(context.Background(), appt.ID, 100, "", "admin")
	assert.ErrorIs(t, err, ErrNotPaid)

	_, err = svc.UpdatePayment(context.Background(), appt.ID, PaymentPaid, 0, "card", "")
	require.NoError(t, err)

	_, err = svc.Refund(context.Background(), appt.ID, 0, "", "admin")
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = svc.Refund(context.Background(), appt.ID, testFee+1, "", "admin")
	assert.ErrorIs(t, err, ErrAmountExceedsTotal)

	updated, err := svc.Refund(context.Background(), appt.ID, testFee, "patient complaint", "admin")
	require.NoError(t, err)
	assert.Equal(t, PaymentRefunded, updated.PaymentStatus)
	assert.Equal(t, StatusPending, updated.Status)

	_, err = svc.Refund(context.Background(), appt.ID, testFee, "", "admin")
	assert.ErrorIs(t, err, ErrAlreadyRefunded)

	_, err = svc.UpdatePayment(context.Background(), appt.ID, PaymentPaid, 0, "card", "")
	assert.ErrorIs(t, err, ErrAlreadyRefunded)

	entries := billRepo.entriesFor(appt.ID)
	require.Len(t, entries, 2)
	assert.Equal(t, billing.KindRefund, entries[1].Kind)
	assert.Equal(t, testFee, entries[1].Amount)
	assert.Equal(t, "patient complaint", entries[1].Notes)
}

func TestGetSlots(t *testing.T) {
	svc, repo, _ := newTestService(t)
	patientID, doctorID := seedPair(repo)

	days, err := svc.GetSlots(context.Background(), doctorID, "1_3_2026", 3)
	require.NoError(t, err)
	require.Len(t, days, 3)

	// Sunday and Tuesday have no schedule; Monday carries both slots.
	assert.Equal(t, "1_3_2026", days[0].DateKey)
	assert.Empty(t, days[0].Times)
	assert.Equal(t, testDateKey, days[1].DateKey)
	assert.Equal(t, []string{"09:00", "09:30"}, days[1].Times)
	assert.Empty(t, days[2].Times)

	mustBook(t, svc, patientID, doctorID)

	days, err = svc.GetSlots(context.Background(), doctorID, testDateKey, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"09:30"}, days[0].Times)
}

func TestGetSlotsUnavailableDoctor(t *testing.T) {
	svc, repo, _ := newTestService(t)
	_, doctorID := seedPair(repo)
	repo.doctors[doctorID].Available = false

	days, err := svc.GetSlots(context.Background(), doctorID, testDateKey, 2)
	require.NoError(t, err)
	require.Len(t, days, 2)
	for _, day := range days {
		assert.Empty(t, day.Times)
	}

	_, err = svc.GetSlots(context.Background(), uuid.New(), testDateKey, 1)
	assert.ErrorIs(t, err, ErrDoctorNotFound)
}

func TestGetSlotsClampsWindow(t *testing.T) {
	svc, repo, _ := newTestService(t)
	_, doctorID := seedPair(repo)

	days, err := svc.GetSlots(context.Background(), doctorID, "1_3_2026", 90)
	require.NoError(t, err)
	assert.Len(t, days, 30)

	days, err = svc.GetSlots(context.Background(), doctorID, "1_3_2026", 0)
	require.NoError(t, err)
	assert.Len(t, days, 1)
}

func TestSetCancellationWindow(t *testing.T) {
	svc, repo, _ := newTestService(t)
	patientID, doctorID := seedPair(repo)
	appt := mustBook(t, svc, patientID, doctorID)

	require.Error(t, svc.SetCancellationWindow(-time.Hour))
	require.NoError(t, svc.SetCancellationWindow(48*time.Hour))
	assert.Equal(t, 48*time.Hour, svc.CancellationWindow())

	// 21 hours of lead time is now inside the widened window.
	_, err := svc.Cancel(context.Background(), appt.ID, patientID, RolePatient)
	assert.ErrorIs(t, err, ErrWithinCancelWindow)
}

func TestListByPatient(t *testing.T) {
	svc, repo, _ := newTestService(t)
	patientID, doctorID := seedPair(repo)

	first := mustBook(t, svc, patientID, doctorID)
	second, err := svc.Book(context.Background(), patientID, doctorID, testDateKey, "09:30")
	require.NoError(t, err)

	appts, err := svc.ListByPatient(context.Background(), patientID, 0, 0)
	require.NoError(t, err)
	require.Len(t, appts, 2)

	ids := []uuid.UUID{appts[0].ID, appts[1].ID}
	assert.Contains(t, ids, first.ID)
	assert.Contains(t, ids, second.ID)

	appts, err = svc.ListByPatient(context.Background(), uuid.New(), 20, 0)
	require.NoError(t, err)
	assert.Empty(t, appts)
}

func TestListByDoctorDate(t *testing.T) {
	svc, repo, _ := newTestService(t)
	patientID, doctorID := seedPair(repo)

	late, err := svc.Book(context.Background(), patientID, doctorID, testDateKey, "09:30")
	require.NoError(t, err)
	early := mustBook(t, svc, patientID, doctorID)

	appts, err := svc.ListByDoctorDate(context.Background(), doctorID, testDateKey)
	require.NoError(t, err)
	require.Len(t, appts, 2)
	assert.Equal(t, early.ID, appts[0].ID)
	assert.Equal(t, late.ID, appts[1].ID)

	appts, err = svc.ListByDoctorDate(context.Background(), doctorID, "3_3_2026")
	require.NoError(t, err)
	assert.Empty(t, appts)

	_, err = svc.ListByDoctorDate(context.Background(), doctorID, "2026-03-02")
	assert.Error(t, err)
}
