// Package workhours normalizes clock timestamps against the configured
// work-hour policy and answers whether a given time falls inside a work
// window. Pure functions over configuration; no I/O.
package workhours

import (
	"fmt"
	"strings"
	"time"

	"fieldwatch/internal/attendance/models"
	dErrors "fieldwatch/pkg/domain-errors"
)

// TimeOfDay is minutes since midnight in the site's local day.
type TimeOfDay int

// ParseTimeOfDay parses "HH:MM".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, dErrors.Newf(dErrors.CodeInvalidInput, "invalid time of day %q", s)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, dErrors.Newf(dErrors.CodeInvalidInput, "time of day %q out of range", s)
	}
	return TimeOfDay(h*60 + m), nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// At anchors the time-of-day onto the calendar date of ref, in ref's
// location.
func (t TimeOfDay) At(ref time.Time) time.Time {
	y, mo, d := ref.Date()
	return time.Date(y, mo, d, int(t)/60, int(t)%60, 0, 0, ref.Location())
}

// of extracts the TimeOfDay of a wall-clock instant.
func of(ts time.Time) TimeOfDay {
	return TimeOfDay(ts.Hour()*60 + ts.Minute())
}

// Window is a named work interval, e.g. morning 07:30-12:00. End is
// exclusive so adjacent windows do not overlap.
type Window struct {
	Name  string
	Start TimeOfDay
	End   TimeOfDay
}

// Policy is the site's clock policy: the earliest accepted arrival and the
// named work windows monitoring is active during.
type Policy struct {
	ArrivalFloor TimeOfDay
	Windows      []Window
}

// ParseWindows parses "name=HH:MM-HH:MM" pairs separated by commas, e.g.
// "morning=07:30-12:00,afternoon=13:00-17:30".
func ParseWindows(s string) ([]Window, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var windows []Window
	for _, part := range strings.Split(s, ",") {
		name, span, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return nil, dErrors.Newf(dErrors.CodeInvalidInput, "invalid work window %q", part)
		}
		from, to, ok := strings.Cut(span, "-")
		if !ok {
			return nil, dErrors.Newf(dErrors.CodeInvalidInput, "invalid work window span %q", span)
		}
		start, err := ParseTimeOfDay(from)
		if err != nil {
			return nil, err
		}
		end, err := ParseTimeOfDay(to)
		if err != nil {
			return nil, err
		}
		if end <= start {
			return nil, dErrors.Newf(dErrors.CodeInvalidInput, "work window %q must end after it starts", part)
		}
		windows = append(windows, Window{Name: strings.TrimSpace(name), Start: start, End: end})
	}
	return windows, nil
}

// Normalize applies the arrival floor to a raw clock timestamp.
//
// Arrivals before the floor are clamped to the floor and flagged adjusted;
// arrivals at or after the floor pass through. Departures are never
// adjusted.
func (p Policy) Normalize(kind models.EventKind, raw time.Time) (effective time.Time, adjusted bool) {
	if kind != models.EventArrival {
		return raw, false
	}
	if of(raw) < p.ArrivalFloor {
		return p.ArrivalFloor.At(raw), true
	}
	return raw, false
}

// InWindow reports whether t falls inside any configured work window. Used
// by the monitor to decide whether the violation sweep is active, never to
// reject clock events.
func (p Policy) InWindow(t time.Time) bool {
	tod := of(t)
	for _, w := range p.Windows {
		if tod >= w.Start && tod < w.End {
			return true
		}
	}
	return false
}
