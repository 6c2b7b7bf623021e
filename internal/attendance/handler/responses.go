package handler

import (
	"time"

	"github.com/google/uuid"

	"fieldwatch/internal/attendance/models"
	"fieldwatch/internal/attendance/service"
)

// clockResponse is returned for both accepted and rejected clock attempts.
// Rejections include the measured distance and the zone geometry so the app
// can tell the agent how far off they are.
type clockResponse struct {
	Accepted           bool      `json:"accepted"`
	Reason             string    `json:"reason,omitempty"`
	DistanceMeters     float64   `json:"distance_meters"`
	RadiusMeters       float64   `json:"radius_meters"`
	ZoneName           string    `json:"zone_name"`
	ZoneSource         string    `json:"zone_source"`
	Adjusted           bool      `json:"adjusted"`
	EffectiveTimestamp time.Time `json:"effective_timestamp,omitzero"`
	EventID            uuid.UUID `json:"event_id"`
	ShiftID            uuid.UUID `json:"shift_id"`
}

func toClockResponse(res *service.ValidationResult) clockResponse {
	return clockResponse{
		Accepted:           res.Accepted,
		Reason:             string(res.Reason),
		DistanceMeters:     res.DistanceMeters,
		RadiusMeters:       res.RadiusMeters,
		ZoneName:           res.ZoneName,
		ZoneSource:         string(res.ZoneSource),
		Adjusted:           res.Adjusted,
		EffectiveTimestamp: res.EffectiveTimestamp,
		EventID:            res.EventID,
		ShiftID:            res.ShiftID,
	}
}

type historyEvent struct {
	ID        uuid.UUID `json:"id"`
	Kind      string    `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
	Outcome   string    `json:"outcome"`
	Reason    string    `json:"reason,omitempty"`
	Adjusted  bool      `json:"adjusted"`
}

type historyResponse struct {
	Events []historyEvent `json:"events"`
}

func toHistoryResponse(events []models.ClockEvent) historyResponse {
	out := historyResponse{Events: make([]historyEvent, 0, len(events))}
	for _, e := range events {
		out.Events = append(out.Events, historyEvent{
			ID:        e.ID,
			Kind:      string(e.Kind),
			Timestamp: e.Timestamp,
			Outcome:   string(e.Outcome),
			Reason:    string(e.RejectReason),
			Adjusted:  e.Adjusted,
		})
	}
	return out
}
