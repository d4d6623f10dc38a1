package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/clinicops/clinic-scheduler/internal/config"
	"github.com/clinicops/clinic-scheduler/internal/db"
	"github.com/clinicops/clinic-scheduler/internal/gcal"
	"github.com/clinicops/clinic-scheduler/internal/observability/metrics"
	redisclient "github.com/clinicops/clinic-scheduler/internal/redis"
	"github.com/clinicops/clinic-scheduler/internal/scheduling"
	"github.com/clinicops/clinic-scheduler/pkg/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	logger := logging.New(cfg.LogLevel)
	logger.Info("reconcile-worker starting up", "env", cfg.Env, "interval", cfg.ReconcileInterval.String())

	loc, err := cfg.Location()
	if err != nil {
		log.Fatalf("clinic timezone error: %v", err)
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
	logger.Info("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatalf("redis connection error: %v", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error("error closing redis", "error", err.Error())
		}
	}()
	logger.Info("connected to Redis")

	calClient, err := gcal.NewGoogleClient(rootCtx, cfg.GCalClientID, cfg.GCalClientSecret, cfg.GCalRefreshToken)
	if err != nil {
		log.Fatalf("calendar client error: %v", err)
	}
	syncer := gcal.NewSyncer(calClient, cfg.ClinicTZ, loc, cfg.RemoteTimeout, logger)

	repo := scheduling.NewPgRepository(pgPool)
	locker := redisclient.NewRedisScheduleLocker(rdb, cfg.LockTTL)
	scheduleMetrics := metrics.NewScheduleMetrics(nil)

	svc, err := scheduling.NewService(repo, locker, syncer, cfg, scheduleMetrics, logger)
	if err != nil {
		log.Fatalf("service init error: %v", err)
	}

	// Run once at startup
	runOnce(rootCtx, svc, cfg.ReconcileBatch, logger)

	ticker := time.NewTicker(cfg.ReconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info("shutdown signal received, stopping reconcile worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, svc, cfg.ReconcileBatch, logger)
		}
	}
}

func runOnce(ctx context.Context, svc *scheduling.Service, batch int, logger *logging.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	start := time.Now()
	if err := svc.ReconcileOrphans(runCtx, batch); err != nil {
		logger.Error("reconcile run error", "error", err.Error())
		return
	}
	logger.Info("reconcile run complete", "duration", time.Since(start).String())
}
