// simulate drives concurrent reserve/cancel traffic against the live store
// to exercise the serialization path: many workers race for the same days
// and the same vaccine stock, and the run reports how often the engine
// reported success, a retryable conflict, or a real error.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vaxsched/vaccine-scheduler/internal/config"
	"github.com/vaxsched/vaccine-scheduler/internal/db"
	redisclient "github.com/vaxsched/vaccine-scheduler/internal/redis"
	"github.com/vaxsched/vaccine-scheduler/internal/scheduler"
)

type SimConfig struct {
	Duration    time.Duration
	Workers     int
	CancelRatio float64
	Days        int
	Vaccines    []string
}

func loadSimConfig() SimConfig {
	return SimConfig{
		Duration:    getDuration("SIM_DURATION", 30*time.Second),
		Workers:     getInt("SIM_WORKERS", 16),
		CancelRatio: getFloat("SIM_CANCEL_RATIO", 0.2),
		Days:        getInt("SIM_DAYS", 7),
		Vaccines:    []string{"moderna", "pfizer", "astrazeneca", "janssen"},
	}
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	mu        sync.Mutex
	latencies []time.Duration
}

func (om *OperationMetrics) Record(latency time.Duration, err error) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case err == nil:
		atomic.AddInt64(&om.Success, 1)
	case errors.Is(err, scheduler.ErrConflict),
		errors.Is(err, scheduler.ErrInsufficientStock),
		errors.Is(err, scheduler.ErrNoCaregiverAvailable):
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.latencies = append(om.latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Report(name string) {
	om.mu.Lock()
	defer om.mu.Unlock()

	sort.Slice(om.latencies, func(i, j int) bool { return om.latencies[i] < om.latencies[j] })
	percentile := func(p float64) time.Duration {
		if len(om.latencies) == 0 {
			return 0
		}
		idx := int(p * float64(len(om.latencies)-1))
		return om.latencies[idx]
	}

	log.Printf("%s: total=%d success=%d conflict=%d error=%d p50=%s p95=%s p99=%s",
		name,
		atomic.LoadInt64(&om.Total),
		atomic.LoadInt64(&om.Success),
		atomic.LoadInt64(&om.Conflict),
		atomic.LoadInt64(&om.Error),
		percentile(0.50), percentile(0.95), percentile(0.99),
	)
}

// bookingPool tracks appointments created during the run so cancel traffic
// has something to work with.
type bookingPool struct {
	mu       sync.Mutex
	bookings []booking
}

type booking struct {
	appointmentID int
	patient       string
}

func (bp *bookingPool) Add(id int, patient string) {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	bp.bookings = append(bp.bookings, booking{appointmentID: id, patient: patient})
}

func (bp *bookingPool) TakeRandom(rng *rand.Rand) (booking, bool) {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	if len(bp.bookings) == 0 {
		return booking{}, false
	}
	idx := rng.Intn(len(bp.bookings))
	b := bp.bookings[idx]
	bp.bookings = append(bp.bookings[:idx], bp.bookings[idx+1:]...)
	return b, true
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}
	simCfg := loadSimConfig()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	cancel()
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatalf("connect redis: %v", err)
	}
	defer rdb.Close()

	patients, err := loadPatients(context.Background(), pool)
	if err != nil {
		log.Fatalf("load patients: %v", err)
	}
	if len(patients) == 0 {
		log.Fatal("no patient accounts found, run cmd/seed first")
	}

	store := scheduler.NewPgStore(pool)
	locker := redisclient.NewRedisDayLocker(rdb, cfg.LockTTL)
	engine := scheduler.NewService(store, locker)

	gofakeit.Seed(time.Now().UnixNano())
	log.Printf("simulate starting: workers=%d duration=%s cancel_ratio=%.2f",
		simCfg.Workers, simCfg.Duration, simCfg.CancelRatio)

	runCtx, stop := context.WithTimeout(context.Background(), simCfg.Duration)
	defer stop()

	var (
		reserveMetrics OperationMetrics
		cancelMetrics  OperationMetrics
		bookings       bookingPool
		wg             sync.WaitGroup
	)

	start := time.Now().AddDate(0, 0, 1)
	for w := 0; w < simCfg.Workers; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))

			for runCtx.Err() == nil {
				patient := patients[rng.Intn(len(patients))]
				sess := scheduler.Session{Role: scheduler.RolePatient, Username: patient}

				if rng.Float64() < simCfg.CancelRatio {
					b, ok := bookings.TakeRandom(rng)
					if !ok {
						continue
					}
					cancelSess := scheduler.Session{Role: scheduler.RolePatient, Username: b.patient}
					began := time.Now()
					err := engine.Cancel(runCtx, cancelSess, b.appointmentID)
					cancelMetrics.Record(time.Since(began), err)
					continue
				}

				day := start.AddDate(0, 0, rng.Intn(simCfg.Days))
				vaccine := simCfg.Vaccines[rng.Intn(len(simCfg.Vaccines))]

				began := time.Now()
				bk, err := engine.Reserve(runCtx, sess, day, vaccine)
				reserveMetrics.Record(time.Since(began), err)
				if err == nil {
					bookings.Add(bk.AppointmentID, patient)
				}
			}
		}(time.Now().UnixNano() + int64(w))
	}

	wg.Wait()

	reserveMetrics.Report("reserve")
	cancelMetrics.Report("cancel")
}

func loadPatients(ctx context.Context, pool *pgxpool.Pool) ([]string, error) {
	rows, err := pool.Query(ctx, `
		SELECT username FROM accounts WHERE role = 'patient'
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var patients []string
	for rows.Next() {
		var username string
		if err := rows.Scan(&username); err != nil {
			return nil, err
		}
		patients = append(patients, username)
	}
	return patients, rows.Err()
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

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		fmt.Fprintf(os.Stderr, "invalid duration for %s=%q, using default %s\n", key, v, def)
	}
	return def
}
