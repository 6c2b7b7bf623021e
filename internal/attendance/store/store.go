// Package store persists attendance state: the zone catalog, agents and
// their device bindings, the append-only clock event log, shifts, and
// violation alerts.
//
// Implementations return pkg/platform/sentinel errors for infrastructure
// facts (not found, conflict, invalid state); services translate them into
// domain errors at the boundary. Two transitions carry invariants the store
// itself must enforce atomically:
//
//   - RecordArrival must refuse a second open shift for the same agent
//     (sentinel.ErrConflict), even under concurrent calls;
//   - CreateAlertIfAbsent must insert at most one alert per
//     (shift, tick window) pair, even under overlapping sweeps.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"fieldwatch/internal/attendance/models"
)

// Store is the full persistence contract. Consumers (validator, monitor,
// handlers) each depend on the narrow slice of this they use.
type Store interface {
	// Zone catalog. Authoring happens out-of-band; the catalog is read-mostly.
	UpsertZone(ctx context.Context, zone models.Zone) error
	ListZones(ctx context.Context) ([]models.Zone, error)

	// Agents and device bindings.
	UpsertAgent(ctx context.Context, agent models.Agent) error
	FindAgent(ctx context.Context, id uuid.UUID) (models.Agent, error)
	BindDevice(ctx context.Context, agentID uuid.UUID, deviceID, deviceName, deviceFP string) error
	ResetDevice(ctx context.Context, agentID uuid.UUID) error

	// Clock events and shift transitions. Events are append-only; the
	// paired writes are atomic.
	RecordRejection(ctx context.Context, event models.ClockEvent) error
	RecordArrival(ctx context.Context, event models.ClockEvent, shift models.Shift) error
	RecordDeparture(ctx context.Context, event models.ClockEvent, shiftID uuid.UUID, endedAt time.Time) error
	ListEventsByAgent(ctx context.Context, agentID uuid.UUID, limit int) ([]models.ClockEvent, error)

	// Shifts.
	FindOpenShift(ctx context.Context, agentID uuid.UUID) (models.Shift, error)
	ListOpenShifts(ctx context.Context) ([]models.Shift, error)
	ListOpenShiftsStartedBefore(ctx context.Context, cutoff time.Time) ([]models.Shift, error)
	ForceCloseShift(ctx context.Context, shiftID uuid.UUID, endedAt time.Time, reason string) error
	FlagShiftViolation(ctx context.Context, shiftID uuid.UUID) error

	// Violation alerts.
	CreateAlertIfAbsent(ctx context.Context, alert models.ViolationAlert) (bool, error)
	ListUnacknowledgedAlerts(ctx context.Context) ([]models.ViolationAlert, error)
	AcknowledgeAlert(ctx context.Context, alertID uuid.UUID) error
}
