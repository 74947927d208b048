package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/careops/hospital-scheduling/internal/availability"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const apptColumns = `id, patient_id, doctor_id, slot_date, slot_time,
	patient_snapshot, doctor_snapshot, amount, status, checked_in,
	payment_status, amount_paid, payment_method, created_at, updated_at`

// Helpers

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Email,
		&p.Phone,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return &p, nil
}

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	var avRaw []byte

	err := row.Scan(
		&d.ID,
		&d.Name,
		&d.Specialty,
		&d.Department,
		&d.Fee,
		&d.Available,
		&avRaw,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}

	if len(avRaw) > 0 {
		if err := json.Unmarshal(avRaw, &d.Availability); err != nil {
			return nil, fmt.Errorf("decode availability for doctor %s: %w", d.ID, err)
		}
	}
	return &d, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var patientRaw, doctorRaw []byte

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.DoctorID,
		&a.DateKey,
		&a.Clock,
		&patientRaw,
		&doctorRaw,
		&a.Amount,
		&a.Status,
		&a.CheckedIn,
		&a.PaymentStatus,
		&a.AmountPaid,
		&a.PaymentMethod,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	if len(patientRaw) > 0 {
		if err := json.Unmarshal(patientRaw, &a.Patient); err != nil {
			return nil, fmt.Errorf("decode patient snapshot: %w", err)
		}
	}
	if len(doctorRaw) > 0 {
		if err := json.Unmarshal(doctorRaw, &a.Doctor); err != nil {
			return nil, fmt.Errorf("decode doctor snapshot: %w", err)
		}
	}
	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Interface methods

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, phone, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, specialty, department, fee, available, availability, created_at, updated_at
		FROM doctors
		WHERE id = $1
	`, id)
	return scanDoctor(row)
}

func (r *PgRepository) BookedSlots(ctx context.Context, doctorID uuid.UUID, dateKey string) (availability.BookedSet, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT slot_time
		FROM booked_slots
		WHERE doctor_id = $1 AND slot_date = $2
	`, doctorID, dateKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	booked := make(availability.BookedSet)
	for rows.Next() {
		var clock string
		if err := rows.Scan(&clock); err != nil {
			return nil, err
		}
		booked[clock] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return booked, nil
}

// ReserveSlot claims a slot through the index's primary key: of two
// concurrent inserts exactly one lands, the other hits the conflict clause
// and gets ErrSlotTaken.
func (r *PgRepository) ReserveSlot(ctx context.Context, doctorID uuid.UUID, dateKey, clock string) error {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO booked_slots (doctor_id, slot_date, slot_time, created_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (doctor_id, slot_date, slot_time) DO NOTHING
	`, doctorID, dateKey, clock)
	if err != nil {
		return fmt.Errorf("reserve slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSlotTaken
	}
	return nil
}

// ReleaseSlot is idempotent: releasing an absent slot is a no-op.
func (r *PgRepository) ReleaseSlot(ctx context.Context, doctorID uuid.UUID, dateKey, clock string) error {
	_, err := r.pool.Exec(ctx, `
		DELETE FROM booked_slots
		WHERE doctor_id = $1 AND slot_date = $2 AND slot_time = $3
	`, doctorID, dateKey, clock)
	if err != nil {
		return fmt.Errorf("release slot: %w", err)
	}
	return nil
}

func (r *PgRepository) CreateAppointment(ctx context.Context, appt *Appointment) error {
	patientRaw, err := json.Marshal(appt.Patient)
	if err != nil {
		return fmt.Errorf("encode patient snapshot: %w", err)
	}
	doctorRaw, err := json.Marshal(appt.Doctor)
	if err != nil {
		return fmt.Errorf("encode doctor snapshot: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO appointments (id, patient_id, doctor_id, slot_date, slot_time,
			patient_snapshot, doctor_snapshot, amount, status, checked_in,
			payment_status, amount_paid, payment_method, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, appt.ID, appt.PatientID, appt.DoctorID, appt.DateKey, appt.Clock,
		patientRaw, doctorRaw, appt.Amount, appt.Status, appt.CheckedIn,
		appt.PaymentStatus, appt.AmountPaid, appt.PaymentMethod, appt.CreatedAt, appt.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+apptColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+apptColumns+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, patientID, limit, offset)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) ListAppointmentsByDoctorDate(ctx context.Context, doctorID uuid.UUID, dateKey string) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+apptColumns+`
		FROM appointments
		WHERE doctor_id = $1 AND slot_date = $2
		ORDER BY slot_time
	`, doctorID, dateKey)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

// TransitionStatus applies a lifecycle move only when the current status is
// one of from, in a single conditional update.
func (r *PgRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from []Status, to Status) (*Appointment, error) {
	states := make([]string, len(from))
	for i, st := range from {
		states[i] = string(st)
	}

	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = ANY($3)
		RETURNING `+apptColumns+`
	`, id, to, states)

	appt, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrStaleState
		}
		return nil, err
	}
	return appt, nil
}

func (r *PgRepository) SetCheckedIn(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET checked_in = TRUE,
		    updated_at = now()
		WHERE id = $1
		  AND status <> 'cancelled'
		RETURNING `+apptColumns+`
	`, id)

	appt, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrStaleState
		}
		return nil, err
	}
	return appt, nil
}

// ApplyPayment writes the payment sub-state guarded by the previously read
// amount_paid, so two racing payments cannot both apply.
func (r *PgRepository) ApplyPayment(ctx context.Context, id uuid.UUID, expectPaid float64, status PaymentStatus, newPaid float64, method string) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET payment_status = $2,
		    amount_paid = $3,
		    payment_method = $4,
		    updated_at = now()
		WHERE id = $1
		  AND status <> 'cancelled'
		  AND amount_paid = $5
		RETURNING `+apptColumns+`
	`, id, status, newPaid, method, expectPaid)

	appt, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrStaleState
		}
		return nil, err
	}
	return appt, nil
}
