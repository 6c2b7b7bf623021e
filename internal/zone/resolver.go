// Package zone selects the authorized zone applicable to an agent out of the
// administered catalog.
package zone

import (
	"log/slog"

	"fieldwatch/internal/attendance/models"
	dErrors "fieldwatch/pkg/domain-errors"
)

// ErrNoZoneConfigured is returned when the zone catalog is empty. It is a
// configuration gap, surfaced distinctly so callers never confuse it with an
// out-of-zone rejection.
var ErrNoZoneConfigured = dErrors.New(dErrors.CodeNotFound, "no zone configured for this site")

// Source tags which step of the resolution cascade produced the zone.
type Source string

const (
	SourceAssigned       Source = "assigned"
	SourceDefault        Source = "default"
	SourceFirstAvailable Source = "first_available"
)

// Resolution is the outcome of the cascade: the chosen zone plus how it was
// chosen. The source is surfaced in validation results so policy gaps
// (agents clocking in against a fallback zone) stay visible.
type Resolution struct {
	Zone   models.Zone
	Source Source
}

// Resolver applies the resolution cascade. Agents may be onboarded before a
// zone is explicitly assigned; the design favors best-effort validation over
// hard failure, so every fallback path is logged.
type Resolver struct {
	defaultMarker string
	logger        *slog.Logger
}

// New constructs a Resolver. defaultMarker is the zone name administrators
// use to designate the site-wide default zone.
func New(defaultMarker string, logger *slog.Logger) *Resolver {
	return &Resolver{defaultMarker: defaultMarker, logger: logger}
}

// Resolve selects the applicable zone for the agent:
//  1. the agent's assigned zone, when present in the catalog;
//  2. the zone named like the configured default marker;
//  3. the first zone in stable catalog order.
//
// Fails with ErrNoZoneConfigured when the catalog is empty.
func (r *Resolver) Resolve(agent models.Agent, zones []models.Zone) (Resolution, error) {
	if len(zones) == 0 {
		return Resolution{}, ErrNoZoneConfigured
	}

	if agent.ZoneID != nil {
		for _, z := range zones {
			if z.ID == *agent.ZoneID {
				return Resolution{Zone: z, Source: SourceAssigned}, nil
			}
		}
		// An assigned zone missing from the catalog falls through the
		// cascade like an unassigned agent.
		r.logger.Warn("assigned zone not in catalog, falling back",
			"agent_id", agent.ID,
			"zone_id", *agent.ZoneID,
		)
	}

	for _, z := range zones {
		if z.Name == r.defaultMarker {
			r.logger.Info("agent has no assigned zone, using default zone",
				"agent_id", agent.ID,
				"zone", z.Name,
			)
			return Resolution{Zone: z, Source: SourceDefault}, nil
		}
	}

	first := zones[0]
	r.logger.Warn("no assigned or default zone, using first known zone",
		"agent_id", agent.ID,
		"zone", first.Name,
	)
	return Resolution{Zone: first, Source: SourceFirstAvailable}, nil
}
