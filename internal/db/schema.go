package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// slot_date keys use the legacy day_month_year string format; they are exact
// string matches only, never compared for order in SQL.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS patients (
		id         uuid PRIMARY KEY,
		name       text NOT NULL,
		email      text,
		phone      text,
		created_at timestamptz NOT NULL DEFAULT now(),
		updated_at timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS doctors (
		id           uuid PRIMARY KEY,
		name         text NOT NULL,
		specialty    text,
		department   text,
		fee          double precision NOT NULL DEFAULT 0,
		available    boolean NOT NULL DEFAULT TRUE,
		availability jsonb NOT NULL DEFAULT '{}'::jsonb,
		created_at   timestamptz NOT NULL DEFAULT now(),
		updated_at   timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS booked_slots (
		doctor_id  uuid NOT NULL REFERENCES doctors(id),
		slot_date  text NOT NULL,
		slot_time  text NOT NULL,
		created_at timestamptz NOT NULL DEFAULT now(),
		PRIMARY KEY (doctor_id, slot_date, slot_time)
	)`,
	`CREATE TABLE IF NOT EXISTS appointments (
		id               uuid PRIMARY KEY,
		patient_id       uuid NOT NULL REFERENCES patients(id),
		doctor_id        uuid NOT NULL REFERENCES doctors(id),
		slot_date        text NOT NULL,
		slot_time        text NOT NULL,
		patient_snapshot jsonb NOT NULL DEFAULT '{}'::jsonb,
		doctor_snapshot  jsonb NOT NULL DEFAULT '{}'::jsonb,
		amount           double precision NOT NULL DEFAULT 0,
		status           text NOT NULL DEFAULT 'pending',
		checked_in       boolean NOT NULL DEFAULT FALSE,
		payment_status   text NOT NULL DEFAULT 'unpaid',
		amount_paid      double precision NOT NULL DEFAULT 0,
		payment_method   text NOT NULL DEFAULT '',
		created_at       timestamptz NOT NULL DEFAULT now(),
		updated_at       timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_appointments_patient ON appointments (patient_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_appointments_doctor_date ON appointments (doctor_id, slot_date)`,
	`CREATE TABLE IF NOT EXISTS payment_logs (
		id             bigserial PRIMARY KEY,
		appointment_id uuid NOT NULL REFERENCES appointments(id),
		patient_id     uuid NOT NULL,
		kind           text NOT NULL,
		amount         double precision NOT NULL,
		method         text NOT NULL DEFAULT '',
		processed_by   text NOT NULL DEFAULT '',
		notes          text NOT NULL DEFAULT '',
		created_at     timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_payment_logs_appointment ON payment_logs (appointment_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS invoices (
		id             uuid PRIMARY KEY,
		number         text NOT NULL UNIQUE,
		appointment_id uuid NOT NULL REFERENCES appointments(id),
		patient_id     uuid NOT NULL,
		amount         double precision NOT NULL,
		due_date       timestamptz NOT NULL,
		status         text NOT NULL DEFAULT 'unpaid',
		reminded_at    timestamptz,
		created_at     timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_invoices_due ON invoices (status, due_date)`,
}

// Migrate applies the schema. Statements are idempotent, so running it on
// every startup is safe.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
