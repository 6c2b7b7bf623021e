// Package service implements presence validation: the synchronous decision
// that accepts or rejects a clock-in/clock-out attempt based on
// distance-from-zone, device binding, and the work-hour policy.
package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"fieldwatch/internal/attendance/metrics"
	"fieldwatch/internal/attendance/models"
	"fieldwatch/internal/device"
	"fieldwatch/internal/geo"
	"fieldwatch/internal/workhours"
	"fieldwatch/internal/zone"
	dErrors "fieldwatch/pkg/domain-errors"
	"fieldwatch/pkg/platform/sentinel"
	"fieldwatch/pkg/requestcontext"
	"fieldwatch/pkg/secrets"
)

// ZoneCatalog provides the administered zone catalog.
type ZoneCatalog interface {
	ListZones(ctx context.Context) ([]models.Zone, error)
}

// AgentDirectory provides agent lookup and device binding.
type AgentDirectory interface {
	FindAgent(ctx context.Context, id uuid.UUID) (models.Agent, error)
	BindDevice(ctx context.Context, agentID uuid.UUID, deviceID, deviceName, deviceFP string) error
	ResetDevice(ctx context.Context, agentID uuid.UUID) error
}

// ShiftLedger records clock events and shift transitions. The paired writes
// are atomic and RecordArrival enforces the one-open-shift-per-agent
// invariant.
type ShiftLedger interface {
	RecordRejection(ctx context.Context, event models.ClockEvent) error
	RecordArrival(ctx context.Context, event models.ClockEvent, shift models.Shift) error
	RecordDeparture(ctx context.Context, event models.ClockEvent, shiftID uuid.UUID, endedAt time.Time) error
	FindOpenShift(ctx context.Context, agentID uuid.UUID) (models.Shift, error)
	ListEventsByAgent(ctx context.Context, agentID uuid.UUID, limit int) ([]models.ClockEvent, error)
}

// ClockRequest is one clock attempt as supplied by the transport layer.
type ClockRequest struct {
	AgentID     uuid.UUID
	Kind        models.EventKind
	Coordinate  geo.Coordinate
	DeviceID    string
	Fingerprint string    // optional biometric sample
	Timestamp   time.Time // raw claimed time; zero means "now"
}

// ValidationResult is the structured accept/reject decision. Rejections
// carry the measured distance, the zone radius, and the zone name so the
// caller can render an actionable message rather than a bare refusal.
type ValidationResult struct {
	Accepted           bool
	Reason             models.RejectReason
	DistanceMeters     float64
	RadiusMeters       float64
	ZoneName           string
	ZoneSource         zone.Source
	Adjusted           bool
	EffectiveTimestamp time.Time
	EventID            uuid.UUID
	ShiftID            uuid.UUID
}

// Service orchestrates zone resolution, distance computation, device
// binding, and the clock policy into a single validation decision.
type Service struct {
	zones    ZoneCatalog
	agents   AgentDirectory
	ledger   ShiftLedger
	resolver *zone.Resolver
	policy   workhours.Policy
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// New constructs a Service.
func New(zones ZoneCatalog, agents AgentDirectory, ledger ShiftLedger, resolver *zone.Resolver, policy workhours.Policy, opts ...Option) *Service {
	s := &Service{
		zones:    zones,
		agents:   agents,
		ledger:   ledger,
		resolver: resolver,
		policy:   policy,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		tracer:   otel.Tracer("fieldwatch/attendance"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Validate accepts or rejects a single clock event.
//
// Rejections are business outcomes, not errors: they return a populated
// result with Accepted=false and a nil error, and persist nothing beyond
// the rejected event record itself. Errors are reserved for malformed
// input, configuration gaps, and state-consistency violations.
func (s *Service) Validate(ctx context.Context, req ClockRequest) (*ValidationResult, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "attendance.Validate",
		trace.WithAttributes(attribute.String("clock.kind", string(req.Kind))))
	defer span.End()
	defer func() { s.metrics.ObserveValidateLatency(time.Since(start)) }()

	if err := req.Coordinate.Validate(); err != nil {
		return nil, err
	}
	if req.Timestamp.IsZero() {
		req.Timestamp = requestcontext.Now(ctx)
	}

	agent, err := s.agents.FindAgent(ctx, req.AgentID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "agent not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load agent")
	}

	zones, err := s.zones.ListZones(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load zone catalog")
	}
	resolution, err := s.resolver.Resolve(agent, zones)
	if err != nil {
		return nil, err
	}

	distance, err := geo.DistanceMeters(req.Coordinate, resolution.Zone.Center)
	if err != nil {
		return nil, err
	}

	result := &ValidationResult{
		DistanceMeters: distance,
		RadiusMeters:   resolution.Zone.RadiusMeters,
		ZoneName:       resolution.Zone.Name,
		ZoneSource:     resolution.Source,
	}

	if distance > resolution.Zone.RadiusMeters {
		return s.reject(ctx, req, result, models.ReasonOutOfZone)
	}

	if agent.BoundDeviceID != "" {
		if req.DeviceID != agent.BoundDeviceID {
			return s.reject(ctx, req, result, models.ReasonDeviceMismatch)
		}
		// The device ID is client-supplied, so a matching ID alone is weak
		// evidence. The User-Agent fingerprint captured at binding time
		// must match too.
		if agent.BoundDeviceFP != "" && device.Fingerprint(requestcontext.UserAgent(ctx)) != agent.BoundDeviceFP {
			return s.reject(ctx, req, result, models.ReasonDeviceMismatch)
		}
	}

	if agent.FingerprintHash != "" && req.Fingerprint != "" {
		if err := secrets.Verify(req.Fingerprint, agent.FingerprintHash); err != nil {
			if errors.Is(err, secrets.ErrMismatch) {
				return s.reject(ctx, req, result, models.ReasonFingerprintMismatch)
			}
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to verify fingerprint")
		}
	}

	effective, adjusted := s.policy.Normalize(req.Kind, req.Timestamp)
	result.Adjusted = adjusted
	result.EffectiveTimestamp = effective

	event := models.ClockEvent{
		ID:        uuid.New(),
		AgentID:   req.AgentID,
		Kind:      req.Kind,
		Claimed:   req.Coordinate,
		DeviceID:  req.DeviceID,
		Timestamp: effective,
		Outcome:   models.OutcomeAccepted,
		Adjusted:  adjusted,
	}

	switch req.Kind {
	case models.EventArrival:
		shift := models.Shift{
			ID:             uuid.New(),
			AgentID:        req.AgentID,
			ArrivalEventID: event.ID,
			StartedAt:      effective,
			State:          models.ShiftOpen,
		}
		if err := s.ledger.RecordArrival(ctx, event, shift); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				// A second concurrent arrival lost the race, or the caller
				// is out of sync with the store. Either way this is a
				// consistency signal, not an ordinary rejection.
				s.logger.ErrorContext(ctx, "duplicate open shift on arrival",
					"request_id", requestcontext.RequestID(ctx),
					"agent_id", req.AgentID,
				)
				return nil, dErrors.New(dErrors.CodeConflict, "an open shift already exists for this agent")
			}
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record arrival")
		}
		result.ShiftID = shift.ID

	case models.EventDeparture:
		open, err := s.ledger.FindOpenShift(ctx, req.AgentID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				s.logger.ErrorContext(ctx, "departure without an open shift",
					"request_id", requestcontext.RequestID(ctx),
					"agent_id", req.AgentID,
				)
				return nil, dErrors.New(dErrors.CodeInvariantViolation, "no open shift exists for this agent")
			}
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load open shift")
		}
		if err := s.ledger.RecordDeparture(ctx, event, open.ID, effective); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record departure")
		}
		result.ShiftID = open.ID

	default:
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "unknown event kind %q", req.Kind)
	}

	result.Accepted = true
	result.EventID = event.ID
	s.metrics.IncrementOutcome(string(req.Kind), "accepted")

	// First successful clock-in on a device binds it.
	if req.Kind == models.EventArrival && agent.BoundDeviceID == "" && req.DeviceID != "" {
		s.bindFirstDevice(ctx, agent.ID, req.DeviceID)
	}

	s.logger.InfoContext(ctx, "clock event accepted",
		"request_id", requestcontext.RequestID(ctx),
		"agent_id", req.AgentID,
		"kind", req.Kind,
		"zone", result.ZoneName,
		"zone_source", result.ZoneSource,
		"distance_m", result.DistanceMeters,
		"adjusted", adjusted,
	)
	return result, nil
}

// reject persists the rejection record and returns the structured outcome.
// No shift state changes on a rejected attempt.
func (s *Service) reject(ctx context.Context, req ClockRequest, result *ValidationResult, reason models.RejectReason) (*ValidationResult, error) {
	event := models.ClockEvent{
		ID:           uuid.New(),
		AgentID:      req.AgentID,
		Kind:         req.Kind,
		Claimed:      req.Coordinate,
		DeviceID:     req.DeviceID,
		Timestamp:    req.Timestamp,
		Outcome:      models.OutcomeRejected,
		RejectReason: reason,
	}
	if err := s.ledger.RecordRejection(ctx, event); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record rejection")
	}

	result.Reason = reason
	result.EventID = event.ID
	s.metrics.IncrementOutcome(string(req.Kind), string(reason))
	s.logger.InfoContext(ctx, "clock event rejected",
		"request_id", requestcontext.RequestID(ctx),
		"agent_id", req.AgentID,
		"kind", req.Kind,
		"reason", reason,
		"zone", result.ZoneName,
		"distance_m", result.DistanceMeters,
		"radius_m", result.RadiusMeters,
	)
	return result, nil
}

// bindFirstDevice records the binding out of the acceptance path: a binding
// failure is logged, never propagated, since the clock event has already
// been accepted.
func (s *Service) bindFirstDevice(ctx context.Context, agentID uuid.UUID, deviceID string) {
	ua := requestcontext.UserAgent(ctx)
	name := device.FriendlyName(ua)
	var fp string
	if ua != "" {
		fp = device.Fingerprint(ua)
	}
	if err := s.agents.BindDevice(ctx, agentID, deviceID, name, fp); err != nil {
		s.logger.ErrorContext(ctx, "failed to bind device on first clock-in",
			"request_id", requestcontext.RequestID(ctx),
			"agent_id", agentID,
			"error", err,
		)
		return
	}
	s.metrics.IncrementDeviceBindings()
	s.logger.InfoContext(ctx, "device bound to agent",
		"agent_id", agentID,
		"device_name", name,
		"fingerprinted", fp != "",
	)
}

// ResetDevice clears an agent's device binding. Admin-only; the next
// accepted clock-in establishes a new binding.
func (s *Service) ResetDevice(ctx context.Context, agentID uuid.UUID) error {
	if err := s.agents.ResetDevice(ctx, agentID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "agent not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to reset device binding")
	}
	s.logger.InfoContext(ctx, "device binding reset",
		"request_id", requestcontext.RequestID(ctx),
		"agent_id", agentID,
	)
	return nil
}

// History lists an agent's recent clock events, newest first.
func (s *Service) History(ctx context.Context, agentID uuid.UUID, limit int) ([]models.ClockEvent, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	events, err := s.ledger.ListEventsByAgent(ctx, agentID, limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load clock history")
	}
	return events, nil
}
