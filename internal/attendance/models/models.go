// Package models defines the attendance domain entities: zones, agents,
// clock events, shifts, and violation alerts.
package models

import (
	"time"

	"github.com/google/uuid"

	"fieldwatch/internal/geo"
	dErrors "fieldwatch/pkg/domain-errors"
)

// Zone is an authorized geographic circle where presence is valid.
// Zones are authored by administrators and immutable during a validation call.
type Zone struct {
	ID           uuid.UUID      `json:"id"`
	Name         string         `json:"name"`
	Center       geo.Coordinate `json:"center"`
	RadiusMeters float64        `json:"radius_meters"`
}

// Validate enforces zone invariants: a usable center and a strictly positive
// radius.
func (z Zone) Validate() error {
	if err := z.Center.Validate(); err != nil {
		return err
	}
	if z.RadiusMeters <= 0 {
		return dErrors.New(dErrors.CodeInvariantViolation, "zone radius must be strictly positive")
	}
	return nil
}

// Agent is a field worker subject to presence validation.
type Agent struct {
	ID              uuid.UUID  `json:"id"`
	Name            string     `json:"name"`
	ZoneID          *uuid.UUID `json:"zone_id,omitempty"`           // assigned zone, optional
	BoundDeviceID   string     `json:"bound_device_id,omitempty"`   // set on first accepted clock-in
	BoundDeviceName string     `json:"bound_device_name,omitempty"` // human-readable, parsed from the binding User-Agent
	BoundDeviceFP   string     `json:"-"`                           // device fingerprint captured at binding time
	FingerprintHash string     `json:"-"`                           // bcrypt hash of the enrolled biometric template, optional
}

// EventKind distinguishes clock-in from clock-out.
type EventKind string

const (
	EventArrival   EventKind = "arrival"
	EventDeparture EventKind = "departure"
)

// ParseEventKind constructs an EventKind from external input.
func ParseEventKind(s string) (EventKind, error) {
	switch EventKind(s) {
	case EventArrival, EventDeparture:
		return EventKind(s), nil
	default:
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "unknown event kind %q", s)
	}
}

// EventOutcome records whether a clock attempt was accepted. Immutable once
// set.
type EventOutcome string

const (
	OutcomeAccepted EventOutcome = "accepted"
	OutcomeRejected EventOutcome = "rejected"
)

// RejectReason is the structured business reason attached to a rejected
// clock event. These are outcomes, not system errors.
type RejectReason string

const (
	ReasonOutOfZone           RejectReason = "out_of_zone"
	ReasonDeviceMismatch      RejectReason = "device_mismatch"
	ReasonFingerprintMismatch RejectReason = "fingerprint_mismatch"
)

// ClockEvent is one clock attempt, accepted or rejected. Created on each
// attempt, never mutated after creation.
type ClockEvent struct {
	ID           uuid.UUID      `json:"id"`
	AgentID      uuid.UUID      `json:"agent_id"`
	Kind         EventKind      `json:"kind"`
	Claimed      geo.Coordinate `json:"claimed"`
	DeviceID     string         `json:"device_id"`
	Timestamp    time.Time      `json:"timestamp"` // effective (possibly adjusted) time for accepted events
	Outcome      EventOutcome   `json:"outcome"`
	RejectReason RejectReason   `json:"reject_reason,omitempty"`
	Adjusted     bool           `json:"adjusted"` // arrival clamped to the policy floor
}

// ShiftState tracks the shift lifecycle. A closed shift is immutable.
type ShiftState string

const (
	ShiftOpen          ShiftState = "open"
	ShiftClosedNormal  ShiftState = "closed"
	ShiftClosedForced  ShiftState = "closed_forced"
	ShiftViolationFlag ShiftState = "violation_flagged"
)

// ForceCloseReason annotates scheduler-initiated shift termination.
const ForcedCloseForgottenDeparture = "forgotten_departure"

// Shift is one agent's arrival-to-departure attendance interval.
// Invariant: at most one open shift per agent at any time.
type Shift struct {
	ID               uuid.UUID  `json:"id"`
	AgentID          uuid.UUID  `json:"agent_id"`
	ArrivalEventID   uuid.UUID  `json:"arrival_event_id"`
	DepartureEventID *uuid.UUID `json:"departure_event_id,omitempty"`
	StartedAt        time.Time  `json:"started_at"`
	EndedAt          *time.Time `json:"ended_at,omitempty"`
	State            ShiftState `json:"state"`
	CloseReason      string     `json:"close_reason,omitempty"`
}

// IsOpen reports whether the shift is still awaiting a departure.
func (s Shift) IsOpen() bool {
	return s.State == ShiftOpen || s.State == ShiftViolationFlag
}

// ViolationAlert records a detected distance breach for an open shift,
// found by periodic monitoring. Created at most once per (shift, tick
// window); mutated only to set Acknowledged.
type ViolationAlert struct {
	ID             uuid.UUID `json:"id"`
	AgentID        uuid.UUID `json:"agent_id"`
	ShiftID        uuid.UUID `json:"shift_id"`
	DistanceMeters float64   `json:"distance_meters"`
	RadiusMeters   float64   `json:"radius_meters"` // zone radius at detection time
	ZoneName       string    `json:"zone_name"`
	DetectedAt     time.Time `json:"detected_at"`
	TickWindow     time.Time `json:"tick_window"` // tick boundary used for dedup
	Acknowledged   bool      `json:"acknowledged"`
}
