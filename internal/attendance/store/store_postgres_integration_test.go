//go:build integration

package store_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"fieldwatch/internal/attendance/models"
	"fieldwatch/internal/attendance/store"
	"fieldwatch/internal/geo"
	"fieldwatch/pkg/platform/sentinel"
	"fieldwatch/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.Postgres
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T(), store.Schema)
	s.store = store.NewPostgres(s.postgres.Pool)
}

func (s *PostgresStoreSuite) SetupTest() {
	err := s.postgres.TruncateTables(context.Background(),
		"violation_alerts", "shifts", "clock_events", "agents", "zones")
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) newAgent() models.Agent {
	ctx := context.Background()
	zone := models.Zone{
		ID:           uuid.New(),
		Name:         "Head Office",
		Center:       geo.Coordinate{Latitude: 5.396534, Longitude: -3.981554},
		RadiusMeters: 200,
	}
	s.Require().NoError(s.store.UpsertZone(ctx, zone))

	agent := models.Agent{ID: uuid.New(), Name: "Aka Kouassi", ZoneID: &zone.ID}
	s.Require().NoError(s.store.UpsertAgent(ctx, agent))
	return agent
}

func arrivalFixture(agentID uuid.UUID, at time.Time) (models.ClockEvent, models.Shift) {
	event := models.ClockEvent{
		ID:        uuid.New(),
		AgentID:   agentID,
		Kind:      models.EventArrival,
		Claimed:   geo.Coordinate{Latitude: 5.396534, Longitude: -3.981554},
		DeviceID:  "device-1",
		Timestamp: at,
		Outcome:   models.OutcomeAccepted,
	}
	shift := models.Shift{
		ID:             uuid.New(),
		AgentID:        agentID,
		ArrivalEventID: event.ID,
		StartedAt:      at,
		State:          models.ShiftOpen,
	}
	return event, shift
}

// TestConcurrentArrivals verifies the partial unique index serializes
// concurrent arrivals: exactly one open shift survives.
func (s *PostgresStoreSuite) TestConcurrentArrivals() {
	ctx := context.Background()
	agent := s.newAgent()
	now := time.Now().UTC().Truncate(time.Microsecond)
	const goroutines = 20

	var wg sync.WaitGroup
	var successes, conflicts atomic.Int32
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			event, shift := arrivalFixture(agent.ID, now)
			switch err := s.store.RecordArrival(ctx, event, shift); {
			case err == nil:
				successes.Add(1)
			default:
				s.ErrorIs(err, sentinel.ErrConflict)
				conflicts.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), successes.Load())
	s.Equal(int32(goroutines-1), conflicts.Load())

	open, err := s.store.ListOpenShifts(ctx)
	s.Require().NoError(err)
	s.Len(open, 1)

	// the losing transactions rolled back their event insert too
	events, err := s.store.ListEventsByAgent(ctx, agent.ID, 50)
	s.Require().NoError(err)
	s.Len(events, 1)
}

func (s *PostgresStoreSuite) TestShiftLifecycle() {
	ctx := context.Background()
	agent := s.newAgent()
	now := time.Now().UTC().Truncate(time.Microsecond)

	event, shift := arrivalFixture(agent.ID, now)
	s.Require().NoError(s.store.RecordArrival(ctx, event, shift))

	s.Run("open shift round-trips", func() {
		open, err := s.store.FindOpenShift(ctx, agent.ID)
		s.Require().NoError(err)
		s.Equal(shift.ID, open.ID)
		s.True(open.StartedAt.Equal(now))
		s.Nil(open.EndedAt)
	})

	s.Run("violation flag keeps the shift open", func() {
		s.Require().NoError(s.store.FlagShiftViolation(ctx, shift.ID))
		open, err := s.store.FindOpenShift(ctx, agent.ID)
		s.Require().NoError(err)
		s.Equal(models.ShiftViolationFlag, open.State)
	})

	s.Run("departure closes the flagged shift", func() {
		left := now.Add(9 * time.Hour)
		departure := models.ClockEvent{
			ID: uuid.New(), AgentID: agent.ID, Kind: models.EventDeparture,
			Claimed:   geo.Coordinate{Latitude: 5.396534, Longitude: -3.981554},
			Timestamp: left, Outcome: models.OutcomeAccepted,
		}
		s.Require().NoError(s.store.RecordDeparture(ctx, departure, shift.ID, left))

		_, err := s.store.FindOpenShift(ctx, agent.ID)
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("closing again is invalid state", func() {
		departure := models.ClockEvent{ID: uuid.New(), AgentID: agent.ID, Kind: models.EventDeparture, Timestamp: now, Outcome: models.OutcomeAccepted}
		err := s.store.RecordDeparture(ctx, departure, shift.ID, now)
		s.Require().ErrorIs(err, sentinel.ErrInvalidState)
	})
}

func (s *PostgresStoreSuite) TestForceCloseStaleShift() {
	ctx := context.Background()
	agent := s.newAgent()
	yesterday := time.Now().UTC().Add(-26 * time.Hour).Truncate(time.Microsecond)

	event, shift := arrivalFixture(agent.ID, yesterday)
	s.Require().NoError(s.store.RecordArrival(ctx, event, shift))

	cutoff := time.Now().UTC().Truncate(time.Microsecond)
	stale, err := s.store.ListOpenShiftsStartedBefore(ctx, cutoff.Add(-2*time.Hour))
	s.Require().NoError(err)
	s.Require().Len(stale, 1)

	s.Require().NoError(s.store.ForceCloseShift(ctx, shift.ID, cutoff, models.ForcedCloseForgottenDeparture))
	_, err = s.store.FindOpenShift(ctx, agent.ID)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestAlertDeduplication() {
	ctx := context.Background()
	agent := s.newAgent()
	window := time.Now().UTC().Truncate(5 * time.Minute)

	alert := models.ViolationAlert{
		ID:             uuid.New(),
		AgentID:        agent.ID,
		ShiftID:        uuid.New(),
		DistanceMeters: 540,
		RadiusMeters:   200,
		ZoneName:       "Head Office",
		DetectedAt:     time.Now().UTC().Truncate(time.Microsecond),
		TickWindow:     window,
	}

	created, err := s.store.CreateAlertIfAbsent(ctx, alert)
	s.Require().NoError(err)
	s.True(created)

	duplicate := alert
	duplicate.ID = uuid.New()
	created, err = s.store.CreateAlertIfAbsent(ctx, duplicate)
	s.Require().NoError(err)
	s.False(created)

	alerts, err := s.store.ListUnacknowledgedAlerts(ctx)
	s.Require().NoError(err)
	s.Require().Len(alerts, 1)

	s.Require().NoError(s.store.AcknowledgeAlert(ctx, alerts[0].ID))
	alerts, err = s.store.ListUnacknowledgedAlerts(ctx)
	s.Require().NoError(err)
	s.Empty(alerts)
}

func (s *PostgresStoreSuite) TestDeviceBinding() {
	ctx := context.Background()
	agent := s.newAgent()

	s.Require().NoError(s.store.BindDevice(ctx, agent.ID, "device-9", "Chrome on Android", "fp-1"))
	found, err := s.store.FindAgent(ctx, agent.ID)
	s.Require().NoError(err)
	s.Equal("device-9", found.BoundDeviceID)
	s.Equal("fp-1", found.BoundDeviceFP)

	s.Require().NoError(s.store.ResetDevice(ctx, agent.ID))
	found, err = s.store.FindAgent(ctx, agent.ID)
	s.Require().NoError(err)
	s.Empty(found.BoundDeviceID)
	s.Empty(found.BoundDeviceFP)

	s.Require().ErrorIs(s.store.BindDevice(ctx, uuid.New(), "x", "y", "z"), sentinel.ErrNotFound)
}
