package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/vaxsched/vaccine-scheduler/internal/auth"
	"github.com/vaxsched/vaccine-scheduler/internal/config"
	"github.com/vaxsched/vaccine-scheduler/internal/db"
	redisclient "github.com/vaxsched/vaccine-scheduler/internal/redis"
	"github.com/vaxsched/vaccine-scheduler/internal/scheduler"
)

const (
	caregiverCount   = 20
	patientCount     = 200
	availabilityDays = 14
	seedPassword     = "seed-password"
)

var vaccines = map[string]int{
	"moderna":     500,
	"pfizer":      500,
	"astrazeneca": 300,
	"janssen":     200,
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	if err := db.Migrate(context.Background(), pool); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatalf("connect redis: %v", err)
	}
	defer rdb.Close()

	gofakeit.Seed(time.Now().UnixNano())

	store := scheduler.NewPgStore(pool)
	locker := redisclient.NewRedisDayLocker(rdb, cfg.LockTTL)
	engine := scheduler.NewService(store, locker)
	accounts := auth.NewService(auth.NewPgRepository(pool))

	caregivers, err := seedAccounts(context.Background(), accounts, scheduler.RoleCaregiver, caregiverCount)
	if err != nil {
		log.Fatalf("seed caregivers: %v", err)
	}
	if _, err := seedAccounts(context.Background(), accounts, scheduler.RolePatient, patientCount); err != nil {
		log.Fatalf("seed patients: %v", err)
	}

	if err := seedInventory(context.Background(), engine, caregivers[0]); err != nil {
		log.Fatalf("seed inventory: %v", err)
	}
	if err := seedAvailabilities(context.Background(), engine, caregivers); err != nil {
		log.Fatalf("seed availabilities: %v", err)
	}

	log.Println("seed complete")
}

// seedAccounts registers count users through the same code path the CLI
// uses, so stored hashes are real. Usernames are lowercased fake names with
// a numeric suffix to dodge collisions.
func seedAccounts(ctx context.Context, accounts *auth.Service, role scheduler.Role, count int) ([]string, error) {
	log.Printf("seeding %d %ss", count, role)

	usernames := make([]string, 0, count)
	for i := 0; i < count; i++ {
		username := fmt.Sprintf("%s%d", gofakeit.Username(), i)
		if err := accounts.Register(ctx, role, username, seedPassword); err != nil {
			return nil, fmt.Errorf("register %s %s: %w", role, username, err)
		}
		usernames = append(usernames, username)
	}
	return usernames, nil
}

func seedInventory(ctx context.Context, engine *scheduler.Service, caregiver string) error {
	sess := scheduler.Session{Role: scheduler.RoleCaregiver, Username: caregiver}
	for name, doses := range vaccines {
		if err := engine.AddDoses(ctx, sess, name, doses); err != nil {
			return fmt.Errorf("add %d doses of %s: %w", doses, name, err)
		}
		log.Printf("vaccine seeded: %s doses=%d", name, doses)
	}
	return nil
}

func seedAvailabilities(ctx context.Context, engine *scheduler.Service, caregivers []string) error {
	start := time.Now().AddDate(0, 0, 1)
	total := 0

	for _, caregiver := range caregivers {
		sess := scheduler.Session{Role: scheduler.RoleCaregiver, Username: caregiver}
		for d := 0; d < availabilityDays; d++ {
			day := start.AddDate(0, 0, d)
			if err := engine.UploadAvailability(ctx, sess, day); err != nil {
				return fmt.Errorf("upload availability %s %s: %w", caregiver, day.Format(scheduler.DateLayout), err)
			}
			total++
		}
	}

	log.Printf("availabilities seeded: %d", total)
	return nil
}
