// Package monitor runs the recurring sweeps over open shifts: the violation
// sweep re-checks each on-shift agent's last known position against their
// zone, and the daily sweep force-closes shifts whose departure was never
// recorded.
package monitor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"fieldwatch/internal/attendance/models"
	"fieldwatch/internal/geo"
	"fieldwatch/internal/location"
	"fieldwatch/internal/monitor/metrics"
	"fieldwatch/internal/notify"
	"fieldwatch/internal/workhours"
	"fieldwatch/internal/zone"
	"fieldwatch/pkg/platform/sentinel"
)

// State is the scheduler's position in one monitoring cycle.
type State string

const (
	StateIdle       State = "idle"
	StateScanning   State = "scanning"
	StateEvaluating State = "evaluating"
)

// Store is the shift and alert storage the scheduler needs.
type Store interface {
	ListZones(ctx context.Context) ([]models.Zone, error)
	FindAgent(ctx context.Context, id uuid.UUID) (models.Agent, error)
	ListOpenShifts(ctx context.Context) ([]models.Shift, error)
	ListOpenShiftsStartedBefore(ctx context.Context, cutoff time.Time) ([]models.Shift, error)
	ForceCloseShift(ctx context.Context, shiftID uuid.UUID, endedAt time.Time, reason string) error
	FlagShiftViolation(ctx context.Context, shiftID uuid.UUID) error
	CreateAlertIfAbsent(ctx context.Context, alert models.ViolationAlert) (bool, error)
}

// Config holds the scheduler cadence settings.
type Config struct {
	// TickInterval is the violation sweep cadence. It also defines the
	// alert dedup window: at most one alert per shift per tick window.
	TickInterval time.Duration
	// OpTimeout bounds every store and notifier call made from a sweep.
	OpTimeout time.Duration
	// Parallelism caps concurrent per-shift evaluations within one sweep.
	Parallelism int
}

// Scheduler drives the recurring sweeps. Logically single-threaded per
// tick: a tick that fires while the previous one is still running is
// skipped, not queued.
type Scheduler struct {
	store     Store
	locations location.Store
	resolver  *zone.Resolver
	policy    workhours.Policy
	notifier  notify.Notifier
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	cfg       Config

	nowFn   func() time.Time
	state   atomic.Value // State
	running atomic.Bool
	// calendar day (in now's location) of the last forced-close sweep
	lastForcedClose atomic.Int64

	done chan struct{}
	wg   sync.WaitGroup
}

type Option func(s *Scheduler)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// WithNow overrides the scheduler clock for deterministic tests.
func WithNow(nowFn func() time.Time) Option {
	return func(s *Scheduler) { s.nowFn = nowFn }
}

// New constructs a Scheduler.
func New(store Store, locations location.Store, resolver *zone.Resolver, policy workhours.Policy, notifier notify.Notifier, cfg Config, opts ...Option) *Scheduler {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 5 * time.Minute
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = 10 * time.Second
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 8
	}
	s := &Scheduler{
		store:     store,
		locations: locations,
		resolver:  resolver,
		policy:    policy,
		notifier:  notifier,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		tracer:    otel.Tracer("fieldwatch/monitor"),
		cfg:       cfg,
		nowFn:     time.Now,
		done:      make(chan struct{}),
	}
	s.state.Store(StateIdle)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State reports the current cycle state.
func (s *Scheduler) State() State {
	return s.state.Load().(State)
}

// Start launches the tick loop. It returns immediately; call Stop to wait
// for a clean shutdown.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.cfg.TickInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.done:
				return
			case <-ticker.C:
				s.tick(ctx)
			}
		}
	}()
}

// Stop terminates the loop and waits for any in-flight sweep to finish.
func (s *Scheduler) Stop() {
	close(s.done)
	s.wg.Wait()
}

// tick runs one cycle unless the previous one is still in flight.
func (s *Scheduler) tick(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		s.metrics.IncrementTicksSkipped()
		s.logger.WarnContext(ctx, "monitor tick skipped, previous sweep still running")
		return
	}
	defer s.running.Store(false)

	s.RunCycle(ctx, s.nowFn())
}

// RunCycle executes the violation sweep (inside work windows) and, once per
// calendar day, the forced-close sweep. Exported for deterministic tests;
// the tick loop is the production caller.
func (s *Scheduler) RunCycle(ctx context.Context, now time.Time) {
	ctx, span := s.tracer.Start(ctx, "monitor.RunCycle")
	defer span.End()

	day := now.Year()*10000 + int(now.Month())*100 + now.Day()
	if last := s.lastForcedClose.Load(); int64(day) > last && s.lastForcedClose.CompareAndSwap(last, int64(day)) {
		if !s.forceCloseStale(ctx, now) {
			// listing failed; release the day so the next tick retries
			// instead of leaving stale shifts open until tomorrow
			s.lastForcedClose.Store(last)
		}
	}

	if !s.policy.InWindow(now) {
		s.logger.DebugContext(ctx, "violation sweep skipped outside work windows")
		return
	}
	s.sweepViolations(ctx, now)
}

// sweepViolations re-checks every open shift with a known position.
func (s *Scheduler) sweepViolations(ctx context.Context, now time.Time) {
	start := time.Now()
	defer func() {
		s.state.Store(StateIdle)
		s.metrics.ObserveSweepDuration(time.Since(start))
	}()

	s.state.Store(StateScanning)
	opCtx, cancel := context.WithTimeout(ctx, s.cfg.OpTimeout)
	defer cancel()

	shifts, err := s.store.ListOpenShifts(opCtx)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to list open shifts", "error", err.Error())
		return
	}
	if len(shifts) == 0 {
		return
	}

	agentIDs := make([]uuid.UUID, len(shifts))
	for i, shift := range shifts {
		agentIDs[i] = shift.AgentID
	}
	positions, err := s.locations.LatestBatch(opCtx, agentIDs)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to load agent positions", "error", err.Error())
		return
	}
	zones, err := s.store.ListZones(opCtx)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to load zone catalog", "error", err.Error())
		return
	}

	s.state.Store(StateEvaluating)
	window := now.Truncate(s.cfg.TickInterval)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Parallelism)
	evaluated := 0
	for _, shift := range shifts {
		report, ok := positions[shift.AgentID]
		if !ok {
			// no fresh position is not a violation
			continue
		}
		evaluated++
		shift := shift
		g.Go(func() error {
			if err := s.evaluateShift(gctx, shift, report.Coordinate, zones, now, window); err != nil {
				s.metrics.IncrementEvalFailures()
				s.logger.ErrorContext(gctx, "shift evaluation failed",
					"shift_id", shift.ID,
					"agent_id", shift.AgentID,
					"error", err.Error(),
				)
			}
			// failures are isolated, never abort the batch
			return nil
		})
	}
	_ = g.Wait()
	s.metrics.AddShiftsEvaluated(evaluated)
}

// evaluateShift runs the same zone resolution and distance check as the
// clock-in path against the agent's last reported position.
func (s *Scheduler) evaluateShift(ctx context.Context, shift models.Shift, position geo.Coordinate, zones []models.Zone, now time.Time, window time.Time) error {
	opCtx, cancel := context.WithTimeout(ctx, s.cfg.OpTimeout)
	defer cancel()

	agent, err := s.store.FindAgent(opCtx, shift.AgentID)
	if err != nil {
		return err
	}
	resolution, err := s.resolver.Resolve(agent, zones)
	if err != nil {
		return err
	}
	distance, err := geo.DistanceMeters(position, resolution.Zone.Center)
	if err != nil {
		return err
	}
	if distance <= resolution.Zone.RadiusMeters {
		return nil
	}

	alert := models.ViolationAlert{
		ID:             uuid.New(),
		AgentID:        shift.AgentID,
		ShiftID:        shift.ID,
		DistanceMeters: distance,
		RadiusMeters:   resolution.Zone.RadiusMeters,
		ZoneName:       resolution.Zone.Name,
		DetectedAt:     now,
		TickWindow:     window,
	}
	created, err := s.store.CreateAlertIfAbsent(opCtx, alert)
	if err != nil {
		return err
	}
	if !created {
		// already alerted in this tick window
		return nil
	}

	if err := s.store.FlagShiftViolation(opCtx, shift.ID); err != nil && !errors.Is(err, sentinel.ErrInvalidState) {
		return err
	}
	s.metrics.IncrementAlertsRaised()
	s.logger.WarnContext(ctx, "zone violation detected",
		"agent_id", alert.AgentID,
		"shift_id", alert.ShiftID,
		"zone", alert.ZoneName,
		"distance_m", alert.DistanceMeters,
		"radius_m", alert.RadiusMeters,
	)

	// fire-and-forget: a notifier failure never fails the sweep
	if err := s.notifier.ViolationDetected(opCtx, alert); err != nil {
		s.logger.ErrorContext(ctx, "failed to dispatch violation alert",
			"alert_id", alert.ID,
			"error", err.Error(),
		)
	}
	return nil
}

// forceCloseStale closes every shift still open from a prior calendar day.
// It runs regardless of work windows: it targets stale prior-day shifts,
// not live positions. Returns false when the stale listing itself failed,
// so the caller can reschedule the sweep within the same day.
func (s *Scheduler) forceCloseStale(ctx context.Context, now time.Time) bool {
	opCtx, cancel := context.WithTimeout(ctx, s.cfg.OpTimeout)
	defer cancel()

	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	stale, err := s.store.ListOpenShiftsStartedBefore(opCtx, midnight)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to list stale open shifts", "error", err.Error())
		return false
	}

	for _, shift := range stale {
		if err := s.store.ForceCloseShift(opCtx, shift.ID, now, models.ForcedCloseForgottenDeparture); err != nil {
			s.logger.ErrorContext(ctx, "failed to force close shift",
				"shift_id", shift.ID,
				"agent_id", shift.AgentID,
				"error", err.Error(),
			)
			continue
		}
		s.metrics.IncrementForcedCloses()
		s.logger.WarnContext(ctx, "shift force closed",
			"shift_id", shift.ID,
			"agent_id", shift.AgentID,
			"started_at", shift.StartedAt,
		)

		closed := shift
		closed.State = models.ShiftClosedForced
		closed.CloseReason = models.ForcedCloseForgottenDeparture
		closed.EndedAt = &now
		if err := s.notifier.ShiftForcedClosed(opCtx, closed); err != nil {
			s.logger.ErrorContext(ctx, "failed to dispatch forced close notice",
				"shift_id", shift.ID,
				"error", err.Error(),
			)
		}
	}
	return true
}
