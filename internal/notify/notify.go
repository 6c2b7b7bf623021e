// Package notify delivers supervisor-facing alerts raised by the monitor.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"fieldwatch/internal/attendance/models"
	"fieldwatch/internal/platform/kafka"
)

// Notifier receives monitor findings. Delivery failures are the notifier's
// problem to report; the monitor never blocks a sweep on them.
type Notifier interface {
	ViolationDetected(ctx context.Context, alert models.ViolationAlert) error
	ShiftForcedClosed(ctx context.Context, shift models.Shift) error
}

// Topics used by the Kafka notifier.
const (
	TopicViolations   = "fieldwatch.violations"
	TopicForcedCloses = "fieldwatch.forced-closes"
)

type violationEnvelope struct {
	AlertID        string    `json:"alert_id"`
	AgentID        string    `json:"agent_id"`
	ShiftID        string    `json:"shift_id"`
	ZoneName       string    `json:"zone_name"`
	DistanceMeters float64   `json:"distance_meters"`
	RadiusMeters   float64   `json:"radius_meters"`
	DetectedAt     time.Time `json:"detected_at"`
}

type forcedCloseEnvelope struct {
	ShiftID   string     `json:"shift_id"`
	AgentID   string     `json:"agent_id"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Reason    string     `json:"reason"`
}

// Kafka publishes alerts to Kafka topics, keyed by agent so per-agent
// ordering is preserved.
type Kafka struct {
	client *kafka.Client
	logger *slog.Logger
}

// NewKafka creates a Kafka notifier.
func NewKafka(client *kafka.Client, logger *slog.Logger) *Kafka {
	return &Kafka{client: client, logger: logger}
}

// EnsureTopics creates the notifier topics at startup.
func (k *Kafka) EnsureTopics(ctx context.Context) error {
	for _, topic := range []string{TopicViolations, TopicForcedCloses} {
		if err := k.client.EnsureTopic(ctx, topic, 3); err != nil {
			return err
		}
	}
	return nil
}

func (k *Kafka) ViolationDetected(ctx context.Context, alert models.ViolationAlert) error {
	payload, err := json.Marshal(violationEnvelope{
		AlertID:        alert.ID.String(),
		AgentID:        alert.AgentID.String(),
		ShiftID:        alert.ShiftID.String(),
		ZoneName:       alert.ZoneName,
		DistanceMeters: alert.DistanceMeters,
		RadiusMeters:   alert.RadiusMeters,
		DetectedAt:     alert.DetectedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal violation alert: %w", err)
	}
	return k.client.Publish(ctx, TopicViolations, []byte(alert.AgentID.String()), payload)
}

func (k *Kafka) ShiftForcedClosed(ctx context.Context, shift models.Shift) error {
	payload, err := json.Marshal(forcedCloseEnvelope{
		ShiftID:   shift.ID.String(),
		AgentID:   shift.AgentID.String(),
		StartedAt: shift.StartedAt,
		EndedAt:   shift.EndedAt,
		Reason:    shift.CloseReason,
	})
	if err != nil {
		return fmt.Errorf("marshal forced close: %w", err)
	}
	return k.client.Publish(ctx, TopicForcedCloses, []byte(shift.AgentID.String()), payload)
}

// Log is the fallback notifier for deployments without Kafka. Every finding
// still lands in the structured log stream.
type Log struct {
	logger *slog.Logger
}

// NewLog creates a log-only notifier.
func NewLog(logger *slog.Logger) *Log {
	return &Log{logger: logger}
}

func (l *Log) ViolationDetected(ctx context.Context, alert models.ViolationAlert) error {
	l.logger.WarnContext(ctx, "zone violation detected",
		"alert_id", alert.ID,
		"agent_id", alert.AgentID,
		"shift_id", alert.ShiftID,
		"zone", alert.ZoneName,
		"distance_m", alert.DistanceMeters,
		"radius_m", alert.RadiusMeters,
	)
	return nil
}

func (l *Log) ShiftForcedClosed(ctx context.Context, shift models.Shift) error {
	l.logger.WarnContext(ctx, "shift force closed",
		"shift_id", shift.ID,
		"agent_id", shift.AgentID,
		"reason", shift.CloseReason,
	)
	return nil
}

var (
	_ Notifier = (*Kafka)(nil)
	_ Notifier = (*Log)(nil)
)
