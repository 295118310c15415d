// Package sample defines the unit of data the core consumes: one
// (temperature, setpoint) observation per zone per tick, and the
// narrow interface a Sample Source must satisfy to supply it.
package sample

import (
	"time"

	"github.com/kbuckham/zonewatch/internal/zone"
)

// Sample is one observation of a zone's temperature and setpoint.
//
// T is a monotonic timestamp (never decreases for a given zone); Wall is
// the corresponding wall-clock time, carried only for display/reporting.
// Valid is false when the source reports stale, missing, or sentinel
// data — TemperatureF/SetpointF may be NaN in that case.
type Sample struct {
	Zone         zone.Zone
	T            time.Time
	Wall         time.Time
	TemperatureF float64
	SetpointF    float64
	Valid        bool
}

// Source is the abstract provider of the most recent sample for a zone.
// Implementations must never let T decrease for the same zone across
// calls. Fetches are expected to be non-blocking relative to the
// worker's tick cadence; callers apply their own staleness ceiling.
type Source interface {
	GetLatest(z zone.Zone) (Sample, error)
}
