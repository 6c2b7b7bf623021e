// Package config builds runtime configuration from environment variables so
// main stays lean.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"fieldwatch/internal/workhours"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr          string
	JWTSigningKey string
}

// Policy captures the clock policy and monitoring cadence.
type Policy struct {
	DefaultZoneMarker string
	ArrivalFloor      workhours.TimeOfDay
	Windows           []workhours.Window
	TickInterval      time.Duration
	LocationTTL       time.Duration
}

// Postgres captures the database connection settings.
type Postgres struct {
	URL string
}

// Redis captures the Redis connection settings. An empty URL disables Redis
// and falls back to in-memory location tracking.
type Redis struct {
	URL string
}

// Kafka captures the broker settings. Empty brokers disable Kafka and fall
// back to log-only notifications.
type Kafka struct {
	Brokers  []string
	ClientID string
}

// Config is the full service configuration.
type Config struct {
	Server   Server
	Policy   Policy
	Postgres Postgres
	Redis    Redis
	Kafka    Kafka
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationOr(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

// FromEnv builds the full configuration from environment variables.
func FromEnv() (Config, error) {
	floor, err := workhours.ParseTimeOfDay(envOr("ARRIVAL_FLOOR", "07:30"))
	if err != nil {
		return Config{}, fmt.Errorf("parse ARRIVAL_FLOOR: %w", err)
	}
	windows, err := workhours.ParseWindows(envOr("WORK_WINDOWS", "morning=07:30-12:00,afternoon=13:00-17:30"))
	if err != nil {
		return Config{}, fmt.Errorf("parse WORK_WINDOWS: %w", err)
	}
	tick, err := durationOr("MONITOR_TICK_INTERVAL", 5*time.Minute)
	if err != nil {
		return Config{}, err
	}
	locationTTL, err := durationOr("LOCATION_TTL", 15*time.Minute)
	if err != nil {
		return Config{}, err
	}

	var brokers []string
	if raw := os.Getenv("KAFKA_BROKERS"); raw != "" {
		for _, b := range strings.Split(raw, ",") {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
	}

	return Config{
		Server: Server{
			Addr: envOr("FIELDWATCH_ADDR", ":8080"),
			// should be overridden in production
			JWTSigningKey: envOr("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		},
		Policy: Policy{
			DefaultZoneMarker: envOr("DEFAULT_ZONE_MARKER", "Head Office"),
			ArrivalFloor:      floor,
			Windows:           windows,
			TickInterval:      tick,
			LocationTTL:       locationTTL,
		},
		Postgres: Postgres{URL: os.Getenv("DATABASE_URL")},
		Redis:    Redis{URL: os.Getenv("REDIS_URL")},
		Kafka: Kafka{
			Brokers:  brokers,
			ClientID: envOr("KAFKA_CLIENT_ID", "fieldwatch"),
		},
	}, nil
}
