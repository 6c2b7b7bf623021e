// Package location tracks the most recent reported position of each agent.
// The monitor sweep reads these to decide whether an on-shift agent has left
// their zone; positions expire so a silent device reads as "unknown", never
// as a stale fix.
package location

import (
	"context"
	"time"

	"github.com/google/uuid"

	"fieldwatch/internal/geo"
)

// Report is one position sample from an agent device.
type Report struct {
	AgentID    uuid.UUID      `json:"agent_id"`
	Coordinate geo.Coordinate `json:"coordinate"`
	RecordedAt time.Time      `json:"recorded_at"`
}

// Store keeps only the latest report per agent.
type Store interface {
	// SetLatest replaces the agent's current position.
	SetLatest(ctx context.Context, report Report) error
	// Latest returns the agent's current position, or sentinel.ErrNotFound
	// when no fresh report exists.
	Latest(ctx context.Context, agentID uuid.UUID) (Report, error)
	// LatestBatch returns the current positions for the given agents.
	// Agents with no fresh report are simply absent from the result.
	LatestBatch(ctx context.Context, agentIDs []uuid.UUID) (map[uuid.UUID]Report, error)
}
