// fieldwatch validates field-agent presence: geofenced clock-in/clock-out,
// device binding, and a background monitor that re-checks on-shift agents
// against their zones.
//
// main wires high-level dependencies and keeps the server lifecycle small.
// Business logic lives in the internal packages.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	attendancehandler "fieldwatch/internal/attendance/handler"
	attendancemetrics "fieldwatch/internal/attendance/metrics"
	"fieldwatch/internal/attendance/service"
	"fieldwatch/internal/attendance/store"
	"fieldwatch/internal/location"
	"fieldwatch/internal/monitor"
	monitormetrics "fieldwatch/internal/monitor/metrics"
	"fieldwatch/internal/notify"
	"fieldwatch/internal/platform/config"
	"fieldwatch/internal/platform/httpserver"
	"fieldwatch/internal/platform/kafka"
	"fieldwatch/internal/platform/logger"
	"fieldwatch/internal/platform/postgres"
	"fieldwatch/internal/platform/redis"
	"fieldwatch/internal/workhours"
	"fieldwatch/internal/zone"
	"fieldwatch/pkg/platform/middleware/auth"
	"fieldwatch/pkg/platform/middleware/metadata"
	"fieldwatch/pkg/platform/middleware/requesttime"
)

func main() {
	log := logger.New()
	cfg, err := config.FromEnv()
	if err != nil {
		log.Error("invalid configuration", "error", err.Error())
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// storage: postgres when configured, in-memory otherwise
	var attendanceStore store.Store
	pool, err := postgres.New(ctx, cfg.Postgres)
	if err != nil {
		log.Error("failed to connect to postgres", "error", err.Error())
		os.Exit(1)
	}
	if pool != nil {
		defer pool.Close()
		pg := store.NewPostgres(pool)
		if err := pg.ApplySchema(ctx); err != nil {
			log.Error("failed to apply schema", "error", err.Error())
			os.Exit(1)
		}
		attendanceStore = pg
		log.Info("using postgres store")
	} else {
		attendanceStore = store.NewMemory()
		log.Warn("DATABASE_URL not set, using in-memory store")
	}

	// location tracking: redis when configured
	var locationStore location.Store
	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		log.Error("failed to connect to redis", "error", err.Error())
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		locationStore = location.NewRedis(redisClient.Client, cfg.Policy.LocationTTL)
		log.Info("using redis location store")
	} else {
		locationStore = location.NewMemory(cfg.Policy.LocationTTL)
		log.Warn("REDIS_URL not set, using in-memory location store")
	}

	// notifications: kafka when configured, structured log otherwise
	var notifier notify.Notifier
	kafkaClient, err := kafka.New(ctx, kafka.Config{
		Brokers:  cfg.Kafka.Brokers,
		ClientID: cfg.Kafka.ClientID,
	})
	if err != nil {
		log.Error("failed to connect to kafka", "error", err.Error())
		os.Exit(1)
	}
	if kafkaClient != nil {
		defer kafkaClient.Close()
		kafkaNotifier := notify.NewKafka(kafkaClient, log)
		if err := kafkaNotifier.EnsureTopics(ctx); err != nil {
			log.Error("failed to ensure kafka topics", "error", err.Error())
			os.Exit(1)
		}
		notifier = kafkaNotifier
		log.Info("using kafka notifier")
	} else {
		notifier = notify.NewLog(log)
		log.Warn("KAFKA_BROKERS not set, alerts go to the log only")
	}

	resolver := zone.New(cfg.Policy.DefaultZoneMarker, log)
	policy := workhours.Policy{
		ArrivalFloor: cfg.Policy.ArrivalFloor,
		Windows:      cfg.Policy.Windows,
	}

	attendanceService := service.New(
		attendanceStore, attendanceStore, attendanceStore,
		resolver, policy,
		service.WithLogger(log),
		service.WithMetrics(attendancemetrics.New()),
	)

	scheduler := monitor.New(
		attendanceStore, locationStore, resolver, policy, notifier,
		monitor.Config{TickInterval: cfg.Policy.TickInterval},
		monitor.WithLogger(log),
		monitor.WithMetrics(monitormetrics.New()),
	)
	scheduler.Start(ctx)

	authValidator := auth.NewValidator(cfg.Server.JWTSigningKey, log)

	router := chi.NewRouter()
	router.Use(metadata.ClientMetadata)
	router.Use(requesttime.Middleware)
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if redisClient != nil {
			if err := redisClient.Health(r.Context()); err != nil {
				http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})
	router.Method(http.MethodGet, "/metrics", promhttp.Handler())
	router.Route("/v1", func(r chi.Router) {
		attendancehandler.New(attendanceService, authValidator, log).Register(r)
		location.NewHandler(locationStore, authValidator, log).Register(r)
	})

	srv := httpserver.New(cfg.Server.Addr, router)
	go func() {
		log.Info("fieldwatch listening", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err.Error())
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err.Error())
	}
	scheduler.Stop()
}
