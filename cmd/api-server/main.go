package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/clinicops/clinic-scheduler/internal/api"
	"github.com/clinicops/clinic-scheduler/internal/config"
	"github.com/clinicops/clinic-scheduler/internal/db"
	"github.com/clinicops/clinic-scheduler/internal/gcal"
	"github.com/clinicops/clinic-scheduler/internal/observability/metrics"
	redisclient "github.com/clinicops/clinic-scheduler/internal/redis"
	"github.com/clinicops/clinic-scheduler/internal/scheduling"
	"github.com/clinicops/clinic-scheduler/pkg/logging"
)

const version = "0.3.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	logger := logging.New(cfg.LogLevel)
	logger.Info("api-server starting up", "env", cfg.Env, "http_port", cfg.HTTPPort)

	loc, err := cfg.Location()
	if err != nil {
		log.Fatalf("clinic timezone error: %v", err)
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatalf("postgres connection error: %v", err)
	}
	defer pgPool.Close()
	logger.Info("connected to Postgres")

	// Connect Redis
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

	// Calendar collaborator
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

	router := api.NewRouter(api.RouterConfig{
		Service:  svc,
		Location: loc,
		Logger:   logger,
		PgPool:   pgPool,
		Redis:    rdb,
		Env:      cfg.Env,
		Version:  version,
	})

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		logger.Error("http server error", "error", err.Error())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err.Error())
	}

	logger.Info("api-server stopped")
}
