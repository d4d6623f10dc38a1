package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/clinicops/clinic-scheduler/internal/scheduling"
	"github.com/clinicops/clinic-scheduler/pkg/logging"
)

type RouterConfig struct {
	Service  *scheduling.Service
	Location *time.Location
	Logger   *logging.Logger
	PgPool   *pgxpool.Pool
	Redis    *redis.Client
	Env      string
	Version  string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(AuthUserMiddleware)

	// Health and metrics endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	r.Handle("/metrics", promhttp.Handler())

	// Appointment endpoints
	r.Post("/appointments", createAppointmentHandler(cfg.Service, cfg.Location))
	r.Get("/appointments", listAppointmentsHandler(cfg.Service, cfg.Location))
	r.Get("/appointments/{id}", getAppointmentHandler(cfg.Service, cfg.Location))
	r.Patch("/appointments/{id}", patchAppointmentHandler(cfg.Service, cfg.Location))
	r.Delete("/appointments/{id}", deleteAppointmentHandler(cfg.Service))

	return r
}
