// simulate is a load generator for the booking API. It points many workers at
// a deliberately small pool of doctors and days so concurrent requests race
// for the same slots, then reports how many bookings succeeded, how many were
// rejected as conflicts, and the latency distribution. Conflicts are the
// expected outcome of the race, not errors.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/careops/hospital-scheduling/internal/config"
	"github.com/careops/hospital-scheduling/internal/db"
	"github.com/careops/hospital-scheduling/internal/timefmt"
)

type simConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	DoctorLimit  int
	PatientLimit int
	DaysAhead    int
}

func loadSimConfig() simConfig {
	sc := simConfig{
		APIBaseURL:   getEnv("SIM_API_URL", "http://127.0.0.1:8080"),
		Duration:     getDurationEnv("SIM_DURATION", 30*time.Second),
		Workers:      getIntEnv("SIM_WORKERS", 16),
		DoctorLimit:  getIntEnv("SIM_DOCTORS", 3),
		PatientLimit: getIntEnv("SIM_PATIENTS", 200),
		DaysAhead:    getIntEnv("SIM_DAYS_AHEAD", 2),
	}
	return sc
}

type dataPool struct {
	patients []uuid.UUID
	doctors  []uuid.UUID

	mu           sync.RWMutex
	appointments []uuid.UUID
}

func (dp *dataPool) addAppointment(id uuid.UUID) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, id)
}

func (dp *dataPool) randomAppointment() (uuid.UUID, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return uuid.Nil, false
	}
	return dp.appointments[rand.Intn(len(dp.appointments))], true
}

type opMetrics struct {
	mu        sync.Mutex
	total     int64
	success   int64
	conflict  int64
	errored   int64
	latencies []time.Duration
}

func (om *opMetrics) record(latency time.Duration, success, conflict bool) {
	om.mu.Lock()
	defer om.mu.Unlock()
	om.total++
	switch {
	case success:
		om.success++
	case conflict:
		om.conflict++
	default:
		om.errored++
	}
	om.latencies = append(om.latencies, latency)
}

func (om *opMetrics) stats() (avg, p50, p95, max time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.latencies) == 0 {
		return 0, 0, 0, 0
	}

	sorted := make([]time.Duration, len(om.latencies))
	copy(sorted, om.latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum time.Duration
	for _, l := range sorted {
		sum += l
	}
	avg = sum / time.Duration(len(sorted))
	p50 = sorted[len(sorted)*50/100]
	p95 = sorted[min(len(sorted)*95/100, len(sorted)-1)]
	max = sorted[len(sorted)-1]
	return avg, p50, p95, max
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	sc := loadSimConfig()
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	cancel()
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	dp, err := loadPool(context.Background(), pool, sc)
	if err != nil {
		log.Fatalf("load data pool: %v", err)
	}
	log.Printf("data pool: %d doctors, %d patients", len(dp.doctors), len(dp.patients))

	bookings := &opMetrics{}
	accepts := &opMetrics{}
	reads := &opMetrics{}

	client := &http.Client{Timeout: 10 * time.Second}
	runCtx, stopRun := context.WithTimeout(context.Background(), sc.Duration)
	defer stopRun()

	log.Printf("starting %d workers for %s against %s", sc.Workers, sc.Duration, sc.APIBaseURL)

	g, gctx := errgroup.WithContext(runCtx)
	for w := 0; w < sc.Workers; w++ {
		g.Go(func() error {
			rng := rand.New(rand.NewSource(time.Now().UnixNano() ^ rand.Int63()))
			for gctx.Err() == nil {
				switch r := rng.Float64(); {
				case r < 0.6:
					doBook(gctx, client, sc, dp, rng, bookings)
				case r < 0.8:
					doAccept(gctx, client, sc, dp, rng, accepts)
				default:
					doRead(gctx, client, sc, dp, reads)
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	report("bookings", bookings)
	report("accepts", accepts)
	report("reads", reads)
}

func loadPool(ctx context.Context, pool *pgxpool.Pool, sc simConfig) (*dataPool, error) {
	dp := &dataPool{}

	rows, err := pool.Query(ctx, `SELECT id FROM doctors WHERE available LIMIT $1`, sc.DoctorLimit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		dp.doctors = append(dp.doctors, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	prows, err := pool.Query(ctx, `SELECT id FROM patients LIMIT $1`, sc.PatientLimit)
	if err != nil {
		return nil, err
	}
	defer prows.Close()
	for prows.Next() {
		var id uuid.UUID
		if err := prows.Scan(&id); err != nil {
			return nil, err
		}
		dp.patients = append(dp.patients, id)
	}
	if err := prows.Err(); err != nil {
		return nil, err
	}

	if len(dp.doctors) == 0 || len(dp.patients) == 0 {
		return nil, fmt.Errorf("empty data pool, run cmd/seed first")
	}
	return dp, nil
}

type daySlots struct {
	DateKey string   `json:"date"`
	Times   []string `json:"slots"`
}

type bookResponse struct {
	ID uuid.UUID `json:"id"`
}

func doBook(ctx context.Context, client *http.Client, sc simConfig, dp *dataPool, rng *rand.Rand, m *opMetrics) {
	doctorID := dp.doctors[rng.Intn(len(dp.doctors))]
	patientID := dp.patients[rng.Intn(len(dp.patients))]
	date := timefmt.DateKey(time.Now().AddDate(0, 0, 1+rng.Intn(sc.DaysAhead)))

	// Fetch the day's slots, then deliberately pick from the first few so
	// workers pile onto the same times.
	url := fmt.Sprintf("%s/doctors/%s/slots?start=%s&days=1", sc.APIBaseURL, doctorID, date)
	var days []daySlots
	if !getJSON(ctx, client, url, &days) || len(days) == 0 || len(days[0].Times) == 0 {
		return
	}
	slots := days[0].Times
	clock := slots[rng.Intn(min(3, len(slots)))]

	payload := map[string]string{
		"patient_id": patientID.String(),
		"doctor_id":  doctorID.String(),
		"date":       date,
		"time":       clock,
	}

	start := time.Now()
	status, body := postJSON(ctx, client, sc.APIBaseURL+"/appointments", payload)
	latency := time.Since(start)

	switch {
	case status == http.StatusCreated:
		var resp bookResponse
		if json.Unmarshal(body, &resp) == nil {
			dp.addAppointment(resp.ID)
		}
		m.record(latency, true, false)
	case status == http.StatusConflict:
		m.record(latency, false, true)
	default:
		m.record(latency, false, false)
	}
}

func doAccept(ctx context.Context, client *http.Client, sc simConfig, dp *dataPool, rng *rand.Rand, m *opMetrics) {
	id, ok := dp.randomAppointment()
	if !ok {
		return
	}

	// Read the appointment to learn its doctor, then accept as that doctor.
	var appt struct {
		DoctorID uuid.UUID `json:"doctor_id"`
	}
	if !getJSON(ctx, client, fmt.Sprintf("%s/appointments/%s", sc.APIBaseURL, id), &appt) {
		return
	}

	payload := map[string]string{"doctor_id": appt.DoctorID.String()}
	start := time.Now()
	status, _ := postJSON(ctx, client, fmt.Sprintf("%s/appointments/%s/accept", sc.APIBaseURL, id), payload)
	latency := time.Since(start)

	switch {
	case status == http.StatusOK:
		m.record(latency, true, false)
	case status == http.StatusConflict:
		m.record(latency, false, true)
	default:
		m.record(latency, false, false)
	}
}

func doRead(ctx context.Context, client *http.Client, sc simConfig, dp *dataPool, m *opMetrics) {
	id, ok := dp.randomAppointment()
	if !ok {
		return
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/appointments/%s", sc.APIBaseURL, id), nil)
	if err != nil {
		return
	}
	resp, err := client.Do(req)
	latency := time.Since(start)
	if err != nil {
		m.record(latency, false, false)
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	m.record(latency, resp.StatusCode == http.StatusOK, false)
}

func getJSON(ctx context.Context, client *http.Client, url string, dst any) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return false
	}
	return json.NewDecoder(resp.Body).Decode(dst) == nil
}

func postJSON(ctx context.Context, client *http.Client, url string, payload any) (int, []byte) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return 0, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return 0, nil
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, body
}

func report(name string, m *opMetrics) {
	avg, p50, p95, max := m.stats()
	fmt.Printf("%-10s total=%d success=%d conflict=%d error=%d avg=%s p50=%s p95=%s max=%s\n",
		name, m.total, m.success, m.conflict, m.errored, avg, p50, p95, max)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getIntEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getDurationEnv(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
