package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-scheduling/internal/api"
	"github.com/hackgods/clinic-appointment-scheduling/internal/appointment"
	"github.com/hackgods/clinic-appointment-scheduling/pkg/logging"
)

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	BookingRatio float64
	ApproveRatio float64
	CancelRatio  float64
	ReadRatio    float64
	Patients     int
	SlotDays     int
	DaysAhead    int
	SlotMinutes  int
}

type booking struct {
	ID    uuid.UUID
	Owner uuid.UUID
}

type DataPool struct {
	Staff    uuid.UUID
	Patients []uuid.UUID
	Slots    []uuid.UUID
	mu       sync.RWMutex
	bookings []booking // requests the API accepted, possibly cancelled since
}

func (dp *DataPool) AddBooking(b booking) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.bookings = append(dp.bookings, b)
}

func (dp *DataPool) RandomBooking(rng *rand.Rand) (booking, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.bookings) == 0 {
		return booking{}, false
	}
	return dp.bookings[rng.Intn(len(dp.bookings))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	if success {
		atomic.AddInt64(&om.Success, 1)
	} else if conflict {
		atomic.AddInt64(&om.Conflict, 1)
	} else {
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool {
		return latencies[i] < latencies[j]
	})

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]
	p50 = latencies[percentileIndex(len(latencies), 50)]
	p95 = latencies[percentileIndex(len(latencies), 95)]
	return avg, min, max, p50, p95
}

func percentileIndex(n, p int) int {
	idx := n * p / 100
	if idx >= n {
		idx = n - 1
	}
	return idx
}

type Metrics struct {
	Request  OperationMetrics
	Approve  OperationMetrics
	Cancel   OperationMetrics
	ReadByID OperationMetrics
	Upcoming OperationMetrics
	ListDay  OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	logger  *logging.Logger
	metrics Metrics
	dates   []string
}

func main() {
	logger := logging.New(getEnv("LOG_LEVEL", "info"))

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}

	logger.Info("simulator starting",
		"duration", cfg.Duration, "workers", cfg.Workers,
		"request", cfg.BookingRatio, "approve", cfg.ApproveRatio,
		"cancel", cfg.CancelRatio, "read", cfg.ReadRatio)

	sim := &Simulator{
		config: cfg,
		pool:   &DataPool{Staff: uuid.New()},
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := sim.prepare(ctx); err != nil {
		logger.Error("prepare data pool", "error", err)
		os.Exit(1)
	}
	logger.Info("data pool ready", "patients", len(sim.pool.Patients), "slots", len(sim.pool.Slots))

	sim.Run()
	sim.PrintReport()
}

func loadConfig() SimConfig {
	cfg := SimConfig{
		APIBaseURL:   strings.TrimRight(getEnv("SIM_API_BASE_URL", "http://localhost:8080"), "/"),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 10),
		BookingRatio: getFloat("SIM_BOOKING_RATIO", 0.4),
		ApproveRatio: getFloat("SIM_APPROVE_RATIO", 0.2),
		CancelRatio:  getFloat("SIM_CANCEL_RATIO", 0.1),
		ReadRatio:    getFloat("SIM_READ_RATIO", 0.3),
		Patients:     getInt("SIM_PATIENTS", 50),
		SlotDays:     getInt("SIM_SLOT_DAYS", 5),
		DaysAhead:    getInt("SIM_DAYS_AHEAD", 30),
		SlotMinutes:  getInt("SIM_SLOT_MINUTES", 30),
	}

	total := cfg.BookingRatio + cfg.ApproveRatio + cfg.CancelRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.ApproveRatio /= total
		cfg.CancelRatio /= total
		cfg.ReadRatio /= total
	}
	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.Patients <= 0 || cfg.SlotDays <= 0 {
		return fmt.Errorf("SIM_PATIENTS and SIM_SLOT_DAYS must be > 0")
	}
	if cfg.SlotMinutes <= 0 {
		return fmt.Errorf("SIM_SLOT_MINUTES must be > 0")
	}
	// Bookings closer than the patient window could not be cancelled.
	if cfg.DaysAhead < 3 {
		return fmt.Errorf("SIM_DAYS_AHEAD must be >= 3")
	}
	return nil
}

// prepare registers patients and publishes free slots through the API, so
// the simulator needs nothing but a running server.
func (s *Simulator) prepare(ctx context.Context) error {
	gofakeit.Seed(time.Now().UnixNano())

	for len(s.pool.Patients) < s.config.Patients {
		var u api.UserResponse
		status, err := s.call(ctx, http.MethodPost, "/users", uuid.Nil, "", api.RegisterUserRequest{
			Email:    gofakeit.Email(),
			Name:     gofakeit.Name(),
			Password: "simulate-" + gofakeit.Password(true, true, true, false, false, 12),
			Role:     appointment.RolePatient,
		}, &u)
		if err != nil {
			return fmt.Errorf("register patient: %w", err)
		}
		if status == http.StatusConflict {
			continue
		}
		if status != http.StatusCreated {
			return fmt.Errorf("register patient: status %d", status)
		}
		s.pool.Patients = append(s.pool.Patients, u.ID)
	}

	var settings struct {
		Availability appointment.Availability `json:"availability"`
	}
	if status, err := s.call(ctx, http.MethodGet, "/settings", uuid.Nil, "", nil, &settings); err != nil || status != http.StatusOK {
		return fmt.Errorf("load settings: status %d: %v", status, err)
	}
	av := settings.Availability

	day := time.Now().AddDate(0, 0, s.config.DaysAhead)
	for len(s.dates) < s.config.SlotDays {
		if wd := day.Weekday(); wd != time.Saturday && wd != time.Sunday {
			s.dates = append(s.dates, day.Format("2006-01-02"))
		}
		day = day.AddDate(0, 0, 1)
	}

	for _, date := range s.dates {
		for start := av.StartHour; ; {
			end, err := start.AddMinutes(s.config.SlotMinutes)
			if err != nil || end > av.EndHour {
				break
			}
			if av.LunchEnd > av.LunchStart && appointment.IntervalsOverlap(start, end, av.LunchStart, av.LunchEnd) {
				start = av.LunchEnd
				continue
			}

			var slot appointment.Appointment
			status, err := s.call(ctx, http.MethodPost, "/appointments/slots", s.pool.Staff, appointment.RoleStaff,
				api.CreateSlotRequest{Date: date, StartTime: start, EndTime: end}, &slot)
			if err != nil {
				return fmt.Errorf("create slot: %w", err)
			}
			if status == http.StatusCreated {
				s.pool.Slots = append(s.pool.Slots, slot.ID)
			}
			start = end
		}
	}

	if len(s.pool.Slots) == 0 {
		return errors.New("no slots created")
	}
	return nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.logger.Info("starting simulation", "duration", s.config.Duration, "workers", s.config.Workers)

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.logger.Info("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))
	cfg := s.config

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r := rng.Float64()
			switch {
			case r < cfg.BookingRatio:
				s.doRequest(ctx, rng)
			case r < cfg.BookingRatio+cfg.ApproveRatio:
				s.doApprove(ctx, rng)
			case r < cfg.BookingRatio+cfg.ApproveRatio+cfg.CancelRatio:
				s.doCancel(ctx, rng)
			default:
				switch rng.Intn(3) {
				case 0:
					s.doReadByID(ctx, rng)
				case 1:
					s.doUpcoming(ctx, rng)
				case 2:
					s.doListDay(ctx, rng)
				}
			}
		}
	}
}

// doRequest races patients for the same pool of slots; the API must let
// exactly one of them win each slot.
func (s *Simulator) doRequest(ctx context.Context, rng *rand.Rand) {
	slotID := s.pool.Slots[rng.Intn(len(s.pool.Slots))]
	patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	start := time.Now()
	status, err := s.call(ctx, http.MethodPost, "/appointments/"+slotID.String()+"/request", patientID, appointment.RolePatient,
		api.BookingDetailsRequest{Urgency: appointment.UrgencyMedium, Reason: "simulated visit"}, nil)
	latency := time.Since(start)

	success := err == nil && status == http.StatusOK
	if success {
		s.pool.AddBooking(booking{ID: slotID, Owner: patientID})
	}
	s.metrics.Request.Record(latency, success, status == http.StatusConflict)
}

func (s *Simulator) doApprove(ctx context.Context, rng *rand.Rand) {
	b, ok := s.pool.RandomBooking(rng)
	if !ok {
		return
	}

	start := time.Now()
	status, err := s.call(ctx, http.MethodPost, "/appointments/"+b.ID.String()+"/approve", s.pool.Staff, appointment.RoleStaff, nil, nil)
	latency := time.Since(start)

	s.metrics.Approve.Record(latency, err == nil && status == http.StatusOK, status == http.StatusConflict)
}

func (s *Simulator) doCancel(ctx context.Context, rng *rand.Rand) {
	b, ok := s.pool.RandomBooking(rng)
	if !ok {
		return
	}

	start := time.Now()
	status, err := s.call(ctx, http.MethodPost, "/appointments/"+b.ID.String()+"/cancel", b.Owner, appointment.RolePatient, nil, nil)
	latency := time.Since(start)

	conflict := status == http.StatusConflict || status == http.StatusForbidden || status == http.StatusLocked
	s.metrics.Cancel.Record(latency, err == nil && status == http.StatusOK, conflict)
}

func (s *Simulator) doReadByID(ctx context.Context, rng *rand.Rand) {
	slotID := s.pool.Slots[rng.Intn(len(s.pool.Slots))]

	start := time.Now()
	status, err := s.call(ctx, http.MethodGet, "/appointments/"+slotID.String(), s.pool.Staff, appointment.RoleStaff, nil, nil)
	latency := time.Since(start)

	s.metrics.ReadByID.Record(latency, err == nil && status == http.StatusOK, false)
}

func (s *Simulator) doUpcoming(ctx context.Context, rng *rand.Rand) {
	patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	start := time.Now()
	status, err := s.call(ctx, http.MethodGet, "/appointments/upcoming?limit=20", patientID, appointment.RolePatient, nil, nil)
	latency := time.Since(start)

	s.metrics.Upcoming.Record(latency, err == nil && status == http.StatusOK, false)
}

func (s *Simulator) doListDay(ctx context.Context, rng *rand.Rand) {
	date := s.dates[rng.Intn(len(s.dates))]

	start := time.Now()
	status, err := s.call(ctx, http.MethodGet, "/appointments?date="+date, s.pool.Staff, appointment.RoleStaff, nil, nil)
	latency := time.Since(start)

	s.metrics.ListDay.Record(latency, err == nil && status == http.StatusOK, false)
}

// call sends one JSON request as the given identity and decodes a JSON
// response into out when out is non-nil. A zero actor sends no identity.
func (s *Simulator) call(ctx context.Context, method, path string, actor uuid.UUID, role appointment.Role, in, out any) (int, error) {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return 0, err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, body)
	if err != nil {
		return 0, err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if actor != uuid.Nil {
		req.Header.Set(api.HeaderUserID, actor.String())
		req.Header.Set(api.HeaderUserRole, string(role))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if out == nil || resp.StatusCode >= http.StatusBadRequest {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}
	return resp.StatusCode, json.NewDecoder(resp.Body).Decode(out)
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Printf("Patients: %d  Slots: %d\n", len(s.pool.Patients), len(s.pool.Slots))
	fmt.Println()

	printOperationReport("Request booking", &s.metrics.Request)
	printOperationReport("Approve", &s.metrics.Approve)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("Read by ID", &s.metrics.ReadByID)
	printOperationReport("Upcoming for patient", &s.metrics.Upcoming)
	printOperationReport("List by date", &s.metrics.ListDay)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func repeat(s string, n int) string {
	return strings.Repeat(s, n)
}
