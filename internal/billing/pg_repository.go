package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	err := row.Scan(
		&e.ID,
		&e.AppointmentID,
		&e.PatientID,
		&e.Kind,
		&e.Amount,
		&e.Method,
		&e.ProcessedBy,
		&e.Notes,
		&e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func collectEntries(rows pgx.Rows) ([]Entry, error) {
	defer rows.Close()

	var result []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) AppendEntry(ctx context.Context, entry *Entry) error {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO payment_logs (appointment_id, patient_id, kind, amount, method, processed_by, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8, now()))
		RETURNING id, created_at
	`, entry.AppointmentID, entry.PatientID, entry.Kind, entry.Amount,
		entry.Method, entry.ProcessedBy, entry.Notes, nullableTime(entry.CreatedAt))

	return row.Scan(&entry.ID, &entry.CreatedAt)
}

func (r *PgRepository) EntriesByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, appointment_id, patient_id, kind, amount, method, processed_by, notes, created_at
		FROM payment_logs
		WHERE appointment_id = $1
		ORDER BY created_at, id
	`, appointmentID)
	if err != nil {
		return nil, err
	}
	return collectEntries(rows)
}

func (r *PgRepository) EntriesBetween(ctx context.Context, from, to time.Time) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, appointment_id, patient_id, kind, amount, method, processed_by, notes, created_at
		FROM payment_logs
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at, id
	`, from, to)
	if err != nil {
		return nil, err
	}
	return collectEntries(rows)
}

func (r *PgRepository) CreateInvoice(ctx context.Context, inv *Invoice) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO invoices (id, number, appointment_id, patient_id, amount, due_date, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, inv.ID, inv.Number, inv.AppointmentID, inv.PatientID, inv.Amount, inv.DueDate, inv.Status, inv.CreatedAt)
	return err
}

func (r *PgRepository) SettleInvoiceByAppointment(ctx context.Context, appointmentID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE invoices
		SET status = 'paid'
		WHERE appointment_id = $1
		  AND status = 'unpaid'
	`, appointmentID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvoiceNotFound
	}
	return nil
}

func (r *PgRepository) CountOverdueInvoices(ctx context.Context, now time.Time) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM invoices
		WHERE status = 'unpaid'
		  AND due_date < $1
	`, now).Scan(&count)
	return count, err
}

func (r *PgRepository) OverdueInvoicesToRemind(ctx context.Context, now time.Time) ([]Invoice, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, number, appointment_id, patient_id, amount, due_date, status, reminded_at, created_at
		FROM invoices
		WHERE status = 'unpaid'
		  AND due_date < $1
		  AND reminded_at IS NULL
		ORDER BY due_date
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Invoice
	for rows.Next() {
		var inv Invoice
		err := rows.Scan(
			&inv.ID,
			&inv.Number,
			&inv.AppointmentID,
			&inv.PatientID,
			&inv.Amount,
			&inv.DueDate,
			&inv.Status,
			&inv.RemindedAt,
			&inv.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		result = append(result, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) MarkInvoiceReminded(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE invoices
		SET reminded_at = $2
		WHERE id = $1
	`, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvoiceNotFound
	}
	return nil
}

func (r *PgRepository) AppointmentFigures(ctx context.Context, from, to time.Time) ([]AppointmentFigure, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT status, payment_status, amount, amount_paid
		FROM appointments
		WHERE created_at >= $1 AND created_at < $2
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []AppointmentFigure
	for rows.Next() {
		var f AppointmentFigure
		if err := rows.Scan(&f.Status, &f.PaymentStatus, &f.Amount, &f.AmountPaid); err != nil {
			return nil, err
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
