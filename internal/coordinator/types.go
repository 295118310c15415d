// Package coordinator composes the three zone detectors for a single
// production line into a linear cycle (preheat → main → rib), manages
// run-id lifecycle, handles fault recovery and quiet-timeout partial
// closure, and emits the final RunRecord.
package coordinator

import (
	"fmt"
	"time"

	"github.com/kbuckham/zonewatch/internal/detector"
	"github.com/kbuckham/zonewatch/internal/stats"
	"github.com/kbuckham/zonewatch/internal/zone"
)

// TerminationKind is the closed set of reasons a run closes.
type TerminationKind int

const (
	TerminationNone TerminationKind = iota
	TerminationCompleted
	TerminationPartialQuiet
	TerminationFaulted
	TerminationAborted
)

func (k TerminationKind) String() string {
	switch k {
	case TerminationCompleted:
		return "completed"
	case TerminationPartialQuiet:
		return "partial_quiet"
	case TerminationFaulted:
		return "faulted"
	case TerminationAborted:
		return "aborted"
	default:
		return "none"
	}
}

// StageRecord is one zone's finalized (or skipped) stage within a run.
type StageRecord struct {
	Zone      zone.Zone
	StartedAt time.Time
	EndedAt   time.Time
	Outcome   detector.Outcome
	Stats     stats.Snapshot
	SetpointF float64
}

// run is the coordinator's live, in-progress view of a cycle traversal.
type run struct {
	RunID          string
	LineID         string
	StartedAt      time.Time
	CycleOrder     []zone.Zone
	CurrentZoneIdx int
	ZoneRecords    map[zone.Zone][]StageRecord

	Termination  TerminationKind
	TerminatedAt time.Time
	Partial      bool

	// awaitingRecoverySince is non-zero while the current zone has just
	// faulted and the coordinator is waiting (up to 2x Max_ramp_s) for
	// the next zone to start ramping on its own.
	awaitingRecoverySince time.Time
}

func (r *run) closed() bool { return r.Termination != TerminationNone }

// OutputEvent is one observability occurrence produced by a tick:
// a pass-through of a detector Event, or a coordinator-level anomaly,
// recovery, or lifecycle note.
type OutputEvent struct {
	T      time.Time
	Kind   string
	Zone   *zone.Zone
	Detail string
}

func zonePtr(z zone.Zone) *zone.Zone { return &z }

// ZoneRecord is the zone entry of a produced RunRecord — spec's exact
// RunRecord.zones[] field set and types.
type ZoneRecord struct {
	Zone      zone.Zone
	StartedAt time.Time
	EndedAt   time.Time
	Outcome   detector.Outcome
	SamplesN  uint64
	MeanF     float64
	StddevF   float64
	MinF      float64
	MaxF      float64
	SetpointF float64
}

// RunRecord is the bit-exact output contract: run_id, line_id,
// started_at, ended_at, termination, partial, zones[], events[].
type RunRecord struct {
	RunID       string
	LineID      string
	StartedAt   time.Time
	EndedAt     time.Time
	Termination TerminationKind
	Partial     bool
	Zones       []ZoneRecord
	Events      []OutputEvent
}

func (rr RunRecord) String() string {
	return fmt.Sprintf("run %s (%s) line=%s termination=%s partial=%v zones=%d",
		rr.RunID, rr.StartedAt.Format(time.RFC3339), rr.LineID, rr.Termination, rr.Partial, len(rr.Zones))
}
