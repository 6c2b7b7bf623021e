package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"fieldwatch/internal/attendance/models"
	"fieldwatch/internal/attendance/store"
	"fieldwatch/internal/device"
	"fieldwatch/internal/geo"
	"fieldwatch/internal/workhours"
	"fieldwatch/internal/zone"
	dErrors "fieldwatch/pkg/domain-errors"
	"fieldwatch/pkg/requestcontext"
	"fieldwatch/pkg/secrets"
)

var (
	officeCenter = geo.Coordinate{Latitude: 5.396534, Longitude: -3.981554}
	farAway      = geo.Coordinate{Latitude: -1.699557, Longitude: 104.324651}
)

type ServiceSuite struct {
	suite.Suite
	store   *store.Memory
	service *Service
	agentID uuid.UUID
	zoneID  uuid.UUID
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.store = store.NewMemory()
	ctx := context.Background()

	s.zoneID = uuid.New()
	s.Require().NoError(s.store.UpsertZone(ctx, models.Zone{
		ID:           s.zoneID,
		Name:         "Head Office",
		Center:       officeCenter,
		RadiusMeters: 200,
	}))

	s.agentID = uuid.New()
	s.Require().NoError(s.store.UpsertAgent(ctx, models.Agent{
		ID:     s.agentID,
		Name:   "Aka Kouassi",
		ZoneID: &s.zoneID,
	}))

	floor, err := workhours.ParseTimeOfDay("07:30")
	s.Require().NoError(err)
	windows, err := workhours.ParseWindows("morning=07:30-12:00,afternoon=13:00-17:30")
	s.Require().NoError(err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.service = New(
		s.store, s.store, s.store,
		zone.New("Head Office", logger),
		workhours.Policy{ArrivalFloor: floor, Windows: windows},
		WithLogger(logger),
	)
}

func (s *ServiceSuite) clockAt(coord geo.Coordinate, kind models.EventKind, hhmm string) (*ValidationResult, error) {
	ts := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	tod, err := workhours.ParseTimeOfDay(hhmm)
	s.Require().NoError(err)
	return s.service.Validate(context.Background(), ClockRequest{
		AgentID:    s.agentID,
		Kind:       kind,
		Coordinate: coord,
		DeviceID:   "device-1",
		Timestamp:  tod.At(ts),
	})
}

func (s *ServiceSuite) TestAcceptAtZoneCenter() {
	res, err := s.clockAt(officeCenter, models.EventArrival, "08:00")
	s.Require().NoError(err)
	s.True(res.Accepted)
	s.Empty(res.Reason)
	s.Equal("Head Office", res.ZoneName)
	s.Equal(zone.SourceAssigned, res.ZoneSource)
	s.InDelta(0, res.DistanceMeters, 1e-6)
	s.NotEqual(uuid.Nil, res.ShiftID)

	open, err := s.store.FindOpenShift(context.Background(), s.agentID)
	s.Require().NoError(err)
	s.Equal(res.ShiftID, open.ID)
}

func (s *ServiceSuite) TestRejectOutOfZone() {
	res, err := s.clockAt(farAway, models.EventArrival, "08:00")
	s.Require().NoError(err)
	s.False(res.Accepted)
	s.Equal(models.ReasonOutOfZone, res.Reason)
	s.InDelta(12051555, res.DistanceMeters, 1.0)
	s.Equal(200.0, res.RadiusMeters)
	s.Equal("Head Office", res.ZoneName)

	s.Run("no shift opened", func() {
		_, err := s.store.FindOpenShift(context.Background(), s.agentID)
		s.Error(err)
	})

	s.Run("rejection record persisted", func() {
		events, err := s.store.ListEventsByAgent(context.Background(), s.agentID, 10)
		s.Require().NoError(err)
		s.Require().Len(events, 1)
		s.Equal(models.OutcomeRejected, events[0].Outcome)
		s.Equal(models.ReasonOutOfZone, events[0].RejectReason)
	})
}

func (s *ServiceSuite) TestDeviceBindingLifecycle() {
	ctx := context.Background()

	s.Run("first clock-in binds the device", func() {
		res, err := s.clockAt(officeCenter, models.EventArrival, "08:00")
		s.Require().NoError(err)
		s.True(res.Accepted)

		agent, err := s.store.FindAgent(ctx, s.agentID)
		s.Require().NoError(err)
		s.Equal("device-1", agent.BoundDeviceID)
	})

	s.Run("mismatched device is rejected", func() {
		res, err := s.service.Validate(ctx, ClockRequest{
			AgentID:    s.agentID,
			Kind:       models.EventDeparture,
			Coordinate: officeCenter,
			DeviceID:   "device-2",
			Timestamp:  time.Date(2026, 3, 9, 17, 0, 0, 0, time.UTC),
		})
		s.Require().NoError(err)
		s.False(res.Accepted)
		s.Equal(models.ReasonDeviceMismatch, res.Reason)
	})

	s.Run("admin reset allows a new device", func() {
		s.Require().NoError(s.service.ResetDevice(ctx, s.agentID))
		res, err := s.service.Validate(ctx, ClockRequest{
			AgentID:    s.agentID,
			Kind:       models.EventDeparture,
			Coordinate: officeCenter,
			DeviceID:   "device-2",
			Timestamp:  time.Date(2026, 3, 9, 17, 0, 0, 0, time.UTC),
		})
		s.Require().NoError(err)
		s.True(res.Accepted)
	})
}

func (s *ServiceSuite) TestDeviceFingerprintGuardsBinding() {
	const (
		androidUA = "Mozilla/5.0 (Linux; Android 13; Pixel 7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.6099.43 Mobile Safari/537.36"
		patchedUA = "Mozilla/5.0 (Linux; Android 13; Pixel 7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.6099.230 Mobile Safari/537.36"
		iphoneUA  = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1"
	)
	clock := func(ua string, kind models.EventKind, hhmm string) (*ValidationResult, error) {
		tod, err := workhours.ParseTimeOfDay(hhmm)
		s.Require().NoError(err)
		return s.service.Validate(requestcontext.WithUserAgent(context.Background(), ua), ClockRequest{
			AgentID:    s.agentID,
			Kind:       kind,
			Coordinate: officeCenter,
			DeviceID:   "device-1",
			Timestamp:  tod.At(time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)),
		})
	}

	res, err := clock(androidUA, models.EventArrival, "08:00")
	s.Require().NoError(err)
	s.True(res.Accepted)

	agent, err := s.store.FindAgent(context.Background(), s.agentID)
	s.Require().NoError(err)
	s.Equal(device.Fingerprint(androidUA), agent.BoundDeviceFP)

	s.Run("same device id from a different device is rejected", func() {
		res, err := clock(iphoneUA, models.EventDeparture, "17:00")
		s.Require().NoError(err)
		s.False(res.Accepted)
		s.Equal(models.ReasonDeviceMismatch, res.Reason)
	})

	s.Run("browser patch update keeps the binding valid", func() {
		res, err := clock(patchedUA, models.EventDeparture, "17:05")
		s.Require().NoError(err)
		s.True(res.Accepted)
	})
}

func (s *ServiceSuite) TestFingerprintVerification() {
	ctx := context.Background()
	hash, err := secrets.Hash("enrolled-template")
	s.Require().NoError(err)

	agent, err := s.store.FindAgent(ctx, s.agentID)
	s.Require().NoError(err)
	agent.FingerprintHash = hash
	s.Require().NoError(s.store.UpsertAgent(ctx, agent))

	s.Run("matching sample is accepted", func() {
		res, err := s.service.Validate(ctx, ClockRequest{
			AgentID:     s.agentID,
			Kind:        models.EventArrival,
			Coordinate:  officeCenter,
			DeviceID:    "device-1",
			Fingerprint: "enrolled-template",
			Timestamp:   time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC),
		})
		s.Require().NoError(err)
		s.True(res.Accepted)
	})

	s.Run("mismatched sample is rejected", func() {
		res, err := s.service.Validate(ctx, ClockRequest{
			AgentID:     s.agentID,
			Kind:        models.EventDeparture,
			Coordinate:  officeCenter,
			DeviceID:    "device-1",
			Fingerprint: "someone-else",
			Timestamp:   time.Date(2026, 3, 9, 17, 0, 0, 0, time.UTC),
		})
		s.Require().NoError(err)
		s.False(res.Accepted)
		s.Equal(models.ReasonFingerprintMismatch, res.Reason)
	})
}

func (s *ServiceSuite) TestArrivalFloorNormalization() {
	s.Run("early arrival is clamped and flagged", func() {
		res, err := s.clockAt(officeCenter, models.EventArrival, "06:45")
		s.Require().NoError(err)
		s.True(res.Accepted)
		s.True(res.Adjusted)
		s.Equal(7, res.EffectiveTimestamp.Hour())
		s.Equal(30, res.EffectiveTimestamp.Minute())
	})
}

func (s *ServiceSuite) TestShiftStateConsistency() {
	ctx := context.Background()

	s.Run("second arrival over an open shift conflicts", func() {
		_, err := s.clockAt(officeCenter, models.EventArrival, "08:00")
		s.Require().NoError(err)

		_, err = s.clockAt(officeCenter, models.EventArrival, "08:05")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("departure closes the shift", func() {
		res, err := s.clockAt(officeCenter, models.EventDeparture, "17:00")
		s.Require().NoError(err)
		s.True(res.Accepted)

		_, err = s.store.FindOpenShift(ctx, s.agentID)
		s.Error(err)
	})

	s.Run("departure without an open shift is an invariant violation", func() {
		_, err := s.clockAt(officeCenter, models.EventDeparture, "17:10")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})
}

func (s *ServiceSuite) TestConcurrentArrivalsOpenExactlyOneShift() {
	ctx := context.Background()
	const attempts = 8

	var wg sync.WaitGroup
	results := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, results[i] = s.service.Validate(ctx, ClockRequest{
				AgentID:    s.agentID,
				Kind:       models.EventArrival,
				Coordinate: officeCenter,
				DeviceID:   "device-1",
				Timestamp:  time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC),
			})
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
		} else {
			s.True(dErrors.HasCode(err, dErrors.CodeConflict))
		}
	}
	s.Equal(1, succeeded)

	open, err := s.store.ListOpenShifts(ctx)
	s.Require().NoError(err)
	s.Len(open, 1)
}

func (s *ServiceSuite) TestEmptyZoneCatalog() {
	empty := store.NewMemory()
	s.Require().NoError(empty.UpsertAgent(context.Background(), models.Agent{ID: s.agentID}))

	svc := New(
		empty, empty, empty,
		zone.New("Head Office", slog.New(slog.NewTextHandler(io.Discard, nil))),
		s.service.policy,
	)
	_, err := svc.Validate(context.Background(), ClockRequest{
		AgentID:    s.agentID,
		Kind:       models.EventArrival,
		Coordinate: officeCenter,
		DeviceID:   "device-1",
		Timestamp:  time.Now(),
	})
	s.Require().ErrorIs(err, zone.ErrNoZoneConfigured)
}

func (s *ServiceSuite) TestInvalidCoordinateRejectedBeforeComputation() {
	_, err := s.service.Validate(context.Background(), ClockRequest{
		AgentID:    s.agentID,
		Kind:       models.EventArrival,
		Coordinate: geo.Coordinate{Latitude: 120, Longitude: 0},
		DeviceID:   "device-1",
		Timestamp:  time.Now(),
	})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))

	events, err := s.store.ListEventsByAgent(context.Background(), s.agentID, 10)
	s.Require().NoError(err)
	s.Empty(events)
}

func (s *ServiceSuite) TestZeroTimestampUsesRequestTime() {
	ctx := requestcontext.WithTime(context.Background(), time.Date(2026, 3, 9, 9, 15, 0, 0, time.UTC))
	res, err := s.service.Validate(ctx, ClockRequest{
		AgentID:    s.agentID,
		Kind:       models.EventArrival,
		Coordinate: officeCenter,
		DeviceID:   "device-1",
	})
	s.Require().NoError(err)
	s.True(res.Accepted)
	s.Equal(time.Date(2026, 3, 9, 9, 15, 0, 0, time.UTC), res.EffectiveTimestamp)
}
