package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"fieldwatch/internal/attendance/models"
	"fieldwatch/pkg/platform/sentinel"
)

// Memory is an in-memory Store. It favors clarity over performance and
// doubles as the test fake across the service and monitor suites. A single
// mutex makes the paired event+shift writes atomic and serializes the
// one-open-shift-per-agent check.
type Memory struct {
	mu     sync.RWMutex
	zones  []models.Zone
	agents map[uuid.UUID]models.Agent
	events []models.ClockEvent
	shifts map[uuid.UUID]models.Shift
	alerts map[uuid.UUID]models.ViolationAlert
	// dedup index for alerts, keyed by shift ID + tick window
	alertKeys map[alertKey]struct{}
}

type alertKey struct {
	shiftID uuid.UUID
	window  int64
}

// NewMemory builds an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		agents:    make(map[uuid.UUID]models.Agent),
		shifts:    make(map[uuid.UUID]models.Shift),
		alerts:    make(map[uuid.UUID]models.ViolationAlert),
		alertKeys: make(map[alertKey]struct{}),
	}
}

func (m *Memory) UpsertZone(_ context.Context, zone models.Zone) error {
	if err := zone.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, z := range m.zones {
		if z.ID == zone.ID {
			m.zones[i] = zone
			return nil
		}
	}
	m.zones = append(m.zones, zone)
	return nil
}

func (m *Memory) ListZones(_ context.Context) ([]models.Zone, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Zone, len(m.zones))
	copy(out, m.zones)
	return out, nil
}

func (m *Memory) UpsertAgent(_ context.Context, agent models.Agent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.agents[agent.ID] = agent
	return nil
}

func (m *Memory) FindAgent(_ context.Context, id uuid.UUID) (models.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	agent, ok := m.agents[id]
	if !ok {
		return models.Agent{}, sentinel.ErrNotFound
	}
	return agent, nil
}

func (m *Memory) BindDevice(_ context.Context, agentID uuid.UUID, deviceID, deviceName, deviceFP string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	agent, ok := m.agents[agentID]
	if !ok {
		return sentinel.ErrNotFound
	}
	agent.BoundDeviceID = deviceID
	agent.BoundDeviceName = deviceName
	agent.BoundDeviceFP = deviceFP
	m.agents[agentID] = agent
	return nil
}

func (m *Memory) ResetDevice(_ context.Context, agentID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	agent, ok := m.agents[agentID]
	if !ok {
		return sentinel.ErrNotFound
	}
	agent.BoundDeviceID = ""
	agent.BoundDeviceName = ""
	agent.BoundDeviceFP = ""
	m.agents[agentID] = agent
	return nil
}

func (m *Memory) RecordRejection(_ context.Context, event models.ClockEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *Memory) RecordArrival(_ context.Context, event models.ClockEvent, shift models.Shift) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.shifts {
		if s.AgentID == shift.AgentID && s.IsOpen() {
			return sentinel.ErrConflict
		}
	}
	m.events = append(m.events, event)
	m.shifts[shift.ID] = shift
	return nil
}

func (m *Memory) RecordDeparture(_ context.Context, event models.ClockEvent, shiftID uuid.UUID, endedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	shift, ok := m.shifts[shiftID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if !shift.IsOpen() {
		return sentinel.ErrInvalidState
	}
	m.events = append(m.events, event)
	shift.DepartureEventID = &event.ID
	shift.EndedAt = &endedAt
	shift.State = models.ShiftClosedNormal
	m.shifts[shiftID] = shift
	return nil
}

func (m *Memory) ListEventsByAgent(_ context.Context, agentID uuid.UUID, limit int) ([]models.ClockEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.ClockEvent
	for i := len(m.events) - 1; i >= 0; i-- {
		if m.events[i].AgentID == agentID {
			out = append(out, m.events[i])
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) FindOpenShift(_ context.Context, agentID uuid.UUID) (models.Shift, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.shifts {
		if s.AgentID == agentID && s.IsOpen() {
			return s, nil
		}
	}
	return models.Shift{}, sentinel.ErrNotFound
}

func (m *Memory) ListOpenShifts(_ context.Context) ([]models.Shift, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Shift
	for _, s := range m.shifts {
		if s.IsOpen() {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

func (m *Memory) ListOpenShiftsStartedBefore(_ context.Context, cutoff time.Time) ([]models.Shift, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Shift
	for _, s := range m.shifts {
		if s.IsOpen() && s.StartedAt.Before(cutoff) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

func (m *Memory) ForceCloseShift(_ context.Context, shiftID uuid.UUID, endedAt time.Time, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	shift, ok := m.shifts[shiftID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if !shift.IsOpen() {
		return sentinel.ErrInvalidState
	}
	shift.EndedAt = &endedAt
	shift.State = models.ShiftClosedForced
	shift.CloseReason = reason
	m.shifts[shiftID] = shift
	return nil
}

func (m *Memory) FlagShiftViolation(_ context.Context, shiftID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	shift, ok := m.shifts[shiftID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if !shift.IsOpen() {
		return sentinel.ErrInvalidState
	}
	shift.State = models.ShiftViolationFlag
	m.shifts[shiftID] = shift
	return nil
}

func (m *Memory) CreateAlertIfAbsent(_ context.Context, alert models.ViolationAlert) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := alertKey{shiftID: alert.ShiftID, window: alert.TickWindow.UnixNano()}
	if _, exists := m.alertKeys[key]; exists {
		return false, nil
	}
	m.alertKeys[key] = struct{}{}
	m.alerts[alert.ID] = alert
	return true, nil
}

func (m *Memory) ListUnacknowledgedAlerts(_ context.Context) ([]models.ViolationAlert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.ViolationAlert
	for _, a := range m.alerts {
		if !a.Acknowledged {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DetectedAt.Before(out[j].DetectedAt) })
	return out, nil
}

func (m *Memory) AcknowledgeAlert(_ context.Context, alertID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	alert, ok := m.alerts[alertID]
	if !ok {
		return sentinel.ErrNotFound
	}
	alert.Acknowledged = true
	m.alerts[alertID] = alert
	return nil
}

var _ Store = (*Memory)(nil)
