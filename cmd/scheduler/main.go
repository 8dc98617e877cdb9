package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vaxsched/vaccine-scheduler/internal/auth"
	"github.com/vaxsched/vaccine-scheduler/internal/cli"
	"github.com/vaxsched/vaccine-scheduler/internal/config"
	"github.com/vaxsched/vaccine-scheduler/internal/db"
	redisclient "github.com/vaxsched/vaccine-scheduler/internal/redis"
	"github.com/vaxsched/vaccine-scheduler/internal/scheduler"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatalf("postgres connection error: %v", err)
	}
	defer pgPool.Close()

	if err := db.Migrate(rootCtx, pgPool); err != nil {
		log.Fatalf("schema migration error: %v", err)
	}

	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatalf("redis connection error: %v", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Printf("error closing redis: %v", err)
		}
	}()

	store := scheduler.NewPgStore(pgPool)
	locker := redisclient.NewRedisDayLocker(rdb, cfg.LockTTL)
	engine := scheduler.NewService(store, locker)
	accounts := auth.NewService(auth.NewPgRepository(pgPool))

	runner := cli.New(engine, accounts, os.Stdout)
	if err := runner.Run(rootCtx, os.Stdin); err != nil {
		log.Fatalf("command loop error: %v", err)
	}
}
