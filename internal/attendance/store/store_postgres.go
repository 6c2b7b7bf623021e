package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"fieldwatch/internal/attendance/models"
	"fieldwatch/pkg/platform/sentinel"
)

// Schema is the attendance DDL, applied at startup and by integration tests.
//
//go:embed schema.sql
var Schema string

const pgUniqueViolation = "23505"

// Postgres is the production Store. The paired event+shift writes run in a
// transaction; the one-open-shift-per-agent invariant is a partial unique
// index, so concurrent arrivals are serialized by the database, not by the
// application.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres constructs a PostgreSQL-backed store.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// ApplySchema creates the attendance tables if they are missing.
func (p *Postgres) ApplySchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply attendance schema: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

func (p *Postgres) UpsertZone(ctx context.Context, zone models.Zone) error {
	if err := zone.Validate(); err != nil {
		return err
	}
	query := `
		INSERT INTO zones (id, name, center_lat, center_lon, radius_m)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			center_lat = EXCLUDED.center_lat,
			center_lon = EXCLUDED.center_lon,
			radius_m = EXCLUDED.radius_m
	`
	_, err := p.pool.Exec(ctx, query, zone.ID, zone.Name, zone.Center.Latitude, zone.Center.Longitude, zone.RadiusMeters)
	if err != nil {
		return fmt.Errorf("upsert zone: %w", err)
	}
	return nil
}

func (p *Postgres) ListZones(ctx context.Context) ([]models.Zone, error) {
	query := `SELECT id, name, center_lat, center_lon, radius_m FROM zones ORDER BY name, id`
	rows, err := p.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list zones: %w", err)
	}
	defer rows.Close()

	var zones []models.Zone
	for rows.Next() {
		var z models.Zone
		if err := rows.Scan(&z.ID, &z.Name, &z.Center.Latitude, &z.Center.Longitude, &z.RadiusMeters); err != nil {
			return nil, fmt.Errorf("scan zone: %w", err)
		}
		zones = append(zones, z)
	}
	return zones, rows.Err()
}

func (p *Postgres) UpsertAgent(ctx context.Context, agent models.Agent) error {
	query := `
		INSERT INTO agents (id, name, zone_id, bound_device_id, bound_device_name, bound_device_fp, fingerprint_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			zone_id = EXCLUDED.zone_id,
			bound_device_id = EXCLUDED.bound_device_id,
			bound_device_name = EXCLUDED.bound_device_name,
			bound_device_fp = EXCLUDED.bound_device_fp,
			fingerprint_hash = EXCLUDED.fingerprint_hash
	`
	_, err := p.pool.Exec(ctx, query, agent.ID, agent.Name, agent.ZoneID, agent.BoundDeviceID, agent.BoundDeviceName, agent.BoundDeviceFP, agent.FingerprintHash)
	if err != nil {
		return fmt.Errorf("upsert agent: %w", err)
	}
	return nil
}

func (p *Postgres) FindAgent(ctx context.Context, id uuid.UUID) (models.Agent, error) {
	query := `
		SELECT id, name, zone_id, bound_device_id, bound_device_name, bound_device_fp, fingerprint_hash
		FROM agents WHERE id = $1
	`
	var agent models.Agent
	err := p.pool.QueryRow(ctx, query, id).Scan(
		&agent.ID, &agent.Name, &agent.ZoneID,
		&agent.BoundDeviceID, &agent.BoundDeviceName, &agent.BoundDeviceFP, &agent.FingerprintHash,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Agent{}, sentinel.ErrNotFound
	}
	if err != nil {
		return models.Agent{}, fmt.Errorf("find agent: %w", err)
	}
	return agent, nil
}

func (p *Postgres) BindDevice(ctx context.Context, agentID uuid.UUID, deviceID, deviceName, deviceFP string) error {
	query := `UPDATE agents SET bound_device_id = $2, bound_device_name = $3, bound_device_fp = $4 WHERE id = $1`
	tag, err := p.pool.Exec(ctx, query, agentID, deviceID, deviceName, deviceFP)
	if err != nil {
		return fmt.Errorf("bind device: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (p *Postgres) ResetDevice(ctx context.Context, agentID uuid.UUID) error {
	query := `UPDATE agents SET bound_device_id = '', bound_device_name = '', bound_device_fp = '' WHERE id = $1`
	tag, err := p.pool.Exec(ctx, query, agentID)
	if err != nil {
		return fmt.Errorf("reset device: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

const insertEventQuery = `
	INSERT INTO clock_events (id, agent_id, kind, claimed_lat, claimed_lon, device_id, ts, outcome, reject_reason, adjusted)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
`

func insertEvent(ctx context.Context, tx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}, event models.ClockEvent) error {
	_, err := tx.Exec(ctx, insertEventQuery,
		event.ID, event.AgentID, event.Kind,
		event.Claimed.Latitude, event.Claimed.Longitude,
		event.DeviceID, event.Timestamp, event.Outcome, event.RejectReason, event.Adjusted,
	)
	if err != nil {
		return fmt.Errorf("insert clock event: %w", err)
	}
	return nil
}

func (p *Postgres) RecordRejection(ctx context.Context, event models.ClockEvent) error {
	return insertEvent(ctx, p.pool, event)
}

func (p *Postgres) RecordArrival(ctx context.Context, event models.ClockEvent, shift models.Shift) error {
	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		if err := insertEvent(ctx, tx, event); err != nil {
			return err
		}
		query := `
			INSERT INTO shifts (id, agent_id, arrival_event_id, started_at, state)
			VALUES ($1, $2, $3, $4, $5)
		`
		_, err := tx.Exec(ctx, query, shift.ID, shift.AgentID, shift.ArrivalEventID, shift.StartedAt, shift.State)
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		if err != nil {
			return fmt.Errorf("insert shift: %w", err)
		}
		return nil
	})
}

func (p *Postgres) RecordDeparture(ctx context.Context, event models.ClockEvent, shiftID uuid.UUID, endedAt time.Time) error {
	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		query := `
			UPDATE shifts
			SET departure_event_id = $2, ended_at = $3, state = $4
			WHERE id = $1 AND state IN ('open', 'violation_flagged')
		`
		tag, err := tx.Exec(ctx, query, shiftID, event.ID, endedAt, models.ShiftClosedNormal)
		if err != nil {
			return fmt.Errorf("close shift: %w", err)
		}
		if tag.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM shifts WHERE id = $1)`, shiftID).Scan(&exists); err != nil {
				return fmt.Errorf("check shift: %w", err)
			}
			if !exists {
				return sentinel.ErrNotFound
			}
			return sentinel.ErrInvalidState
		}
		return insertEvent(ctx, tx, event)
	})
}

func (p *Postgres) ListEventsByAgent(ctx context.Context, agentID uuid.UUID, limit int) ([]models.ClockEvent, error) {
	query := `
		SELECT id, agent_id, kind, claimed_lat, claimed_lon, device_id, ts, outcome, reject_reason, adjusted
		FROM clock_events
		WHERE agent_id = $1
		ORDER BY ts DESC, id
		LIMIT $2
	`
	rows, err := p.pool.Query(ctx, query, agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("list clock events: %w", err)
	}
	defer rows.Close()

	var events []models.ClockEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func scanEvent(row pgx.Row) (models.ClockEvent, error) {
	var e models.ClockEvent
	err := row.Scan(
		&e.ID, &e.AgentID, &e.Kind,
		&e.Claimed.Latitude, &e.Claimed.Longitude,
		&e.DeviceID, &e.Timestamp, &e.Outcome, &e.RejectReason, &e.Adjusted,
	)
	if err != nil {
		return models.ClockEvent{}, fmt.Errorf("scan clock event: %w", err)
	}
	return e, nil
}

const shiftColumns = `id, agent_id, arrival_event_id, departure_event_id, started_at, ended_at, state, close_reason`

func scanShift(row pgx.Row) (models.Shift, error) {
	var s models.Shift
	err := row.Scan(
		&s.ID, &s.AgentID, &s.ArrivalEventID, &s.DepartureEventID,
		&s.StartedAt, &s.EndedAt, &s.State, &s.CloseReason,
	)
	if err != nil {
		return models.Shift{}, fmt.Errorf("scan shift: %w", err)
	}
	return s, nil
}

func (p *Postgres) FindOpenShift(ctx context.Context, agentID uuid.UUID) (models.Shift, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM shifts
		WHERE agent_id = $1 AND state IN ('open', 'violation_flagged')
	`, shiftColumns)
	shift, err := scanShift(p.pool.QueryRow(ctx, query, agentID))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Shift{}, sentinel.ErrNotFound
	}
	return shift, err
}

func (p *Postgres) listShifts(ctx context.Context, query string, args ...any) ([]models.Shift, error) {
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list shifts: %w", err)
	}
	defer rows.Close()

	var shifts []models.Shift
	for rows.Next() {
		shift, err := scanShift(rows)
		if err != nil {
			return nil, err
		}
		shifts = append(shifts, shift)
	}
	return shifts, rows.Err()
}

func (p *Postgres) ListOpenShifts(ctx context.Context) ([]models.Shift, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM shifts
		WHERE state IN ('open', 'violation_flagged')
		ORDER BY started_at, id
	`, shiftColumns)
	return p.listShifts(ctx, query)
}

func (p *Postgres) ListOpenShiftsStartedBefore(ctx context.Context, cutoff time.Time) ([]models.Shift, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM shifts
		WHERE state IN ('open', 'violation_flagged') AND started_at < $1
		ORDER BY started_at, id
	`, shiftColumns)
	return p.listShifts(ctx, query, cutoff)
}

func (p *Postgres) ForceCloseShift(ctx context.Context, shiftID uuid.UUID, endedAt time.Time, reason string) error {
	query := `
		UPDATE shifts
		SET ended_at = $2, state = $3, close_reason = $4
		WHERE id = $1 AND state IN ('open', 'violation_flagged')
	`
	tag, err := p.pool.Exec(ctx, query, shiftID, endedAt, models.ShiftClosedForced, reason)
	if err != nil {
		return fmt.Errorf("force close shift: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := p.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM shifts WHERE id = $1)`, shiftID).Scan(&exists); err != nil {
			return fmt.Errorf("check shift: %w", err)
		}
		if !exists {
			return sentinel.ErrNotFound
		}
		return sentinel.ErrInvalidState
	}
	return nil
}

func (p *Postgres) FlagShiftViolation(ctx context.Context, shiftID uuid.UUID) error {
	query := `UPDATE shifts SET state = $2 WHERE id = $1 AND state = $3`
	tag, err := p.pool.Exec(ctx, query, shiftID, models.ShiftViolationFlag, models.ShiftOpen)
	if err != nil {
		return fmt.Errorf("flag shift violation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := p.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM shifts WHERE id = $1)`, shiftID).Scan(&exists); err != nil {
			return fmt.Errorf("check shift: %w", err)
		}
		if !exists {
			return sentinel.ErrNotFound
		}
		return sentinel.ErrInvalidState
	}
	return nil
}

// CreateAlertIfAbsent leans on the (shift_id, tick_window) uniqueness
// constraint so concurrent sweeps cannot double-alert.
func (p *Postgres) CreateAlertIfAbsent(ctx context.Context, alert models.ViolationAlert) (bool, error) {
	query := `
		INSERT INTO violation_alerts (id, agent_id, shift_id, distance_m, radius_m, zone_name, detected_at, tick_window, acknowledged)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, FALSE)
		ON CONFLICT (shift_id, tick_window) DO NOTHING
	`
	tag, err := p.pool.Exec(ctx, query,
		alert.ID, alert.AgentID, alert.ShiftID,
		alert.DistanceMeters, alert.RadiusMeters, alert.ZoneName,
		alert.DetectedAt, alert.TickWindow,
	)
	if err != nil {
		return false, fmt.Errorf("create violation alert: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (p *Postgres) ListUnacknowledgedAlerts(ctx context.Context) ([]models.ViolationAlert, error) {
	query := `
		SELECT id, agent_id, shift_id, distance_m, radius_m, zone_name, detected_at, tick_window, acknowledged
		FROM violation_alerts
		WHERE NOT acknowledged
		ORDER BY detected_at, id
	`
	rows, err := p.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list violation alerts: %w", err)
	}
	defer rows.Close()

	var alerts []models.ViolationAlert
	for rows.Next() {
		var a models.ViolationAlert
		if err := rows.Scan(
			&a.ID, &a.AgentID, &a.ShiftID,
			&a.DistanceMeters, &a.RadiusMeters, &a.ZoneName,
			&a.DetectedAt, &a.TickWindow, &a.Acknowledged,
		); err != nil {
			return nil, fmt.Errorf("scan violation alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

func (p *Postgres) AcknowledgeAlert(ctx context.Context, alertID uuid.UUID) error {
	tag, err := p.pool.Exec(ctx, `UPDATE violation_alerts SET acknowledged = TRUE WHERE id = $1`, alertID)
	if err != nil {
		return fmt.Errorf("acknowledge alert: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

var _ Store = (*Postgres)(nil)
