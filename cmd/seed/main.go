package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/careops/hospital-scheduling/internal/availability"
	"github.com/careops/hospital-scheduling/internal/db"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	if err := db.Migrate(context.Background(), pool); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	gofakeit.Seed(time.Now().UnixNano())

	if err := seedDoctors(context.Background(), pool, 50); err != nil {
		log.Fatalf("seed doctors: %v", err)
	}
	if err := seedPatients(context.Background(), pool, 2000); err != nil {
		log.Fatalf("seed patients: %v", err)
	}

	log.Println("seed complete")
}

var specialties = []string{
	"Dermatology",
	"Cardiology",
	"General Practice",
	"Orthopedics",
	"Endocrinology",
	"Neurology",
	"Pediatrics",
	"Psychiatry",
	"Ophthalmology",
	"ENT",
}

var departments = []string{"Outpatient", "Surgery", "Emergency", "Diagnostics"}

// fakeAvailability builds a plausible working week: weekday mornings plus
// afternoons for some, with 15/30/60-minute slots.
func fakeAvailability() availability.Availability {
	durations := []int{15, 30, 60}

	av := availability.Availability{
		Enabled:      true,
		Timezone:     "UTC",
		SlotDuration: durations[gofakeit.Number(0, len(durations)-1)],
		Weekly:       make(map[string][]availability.Range),
	}

	for _, day := range []string{"monday", "tuesday", "wednesday", "thursday", "friday"} {
		ranges := []availability.Range{{Start: "09:00", End: "12:00"}}
		if gofakeit.Bool() {
			ranges = append(ranges, availability.Range{Start: "14:00", End: "17:00"})
		}
		av.Weekly[day] = ranges
	}

	return av
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d doctors", count)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		av := fakeAvailability()
		avRaw, err := json.Marshal(av)
		if err != nil {
			return err
		}

		id := uuid.New()
		name := "Dr. " + gofakeit.Name()
		spec := specialties[gofakeit.Number(0, len(specialties)-1)]
		dept := departments[gofakeit.Number(0, len(departments)-1)]
		fee := float64(gofakeit.Number(20, 60)) * 10 // 200..600

		_, err = tx.Exec(ctx, `
			INSERT INTO doctors (id, name, specialty, department, fee, available, availability, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, TRUE, $6, now(), now())
		`, id, name, spec, dept, fee, avRaw)
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Println("doctors seeded")
	return nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d patients", count)

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			id := uuid.New()
			name := gofakeit.Name()
			email := gofakeit.Email()
			phone := gofakeit.Phone()

			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, name, email, phone, created_at, updated_at)
				VALUES ($1, $2, $3, $4, now(), now())
			`, id, name, email, phone)
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		log.Printf("patients seeded: %d/%d", end, count)
	}

	log.Println("patients seeded")
	return nil
}
