package detector

import (
	"fmt"
	"time"

	"github.com/kbuckham/zonewatch/internal/zone"
)

// StageKind is the closed set of stages a zone's detector can occupy.
type StageKind int

const (
	StageIdle StageKind = iota
	StageRamp
	StageStable
	StageEnd
)

func (s StageKind) String() string {
	switch s {
	case StageIdle:
		return "idle"
	case StageRamp:
		return "ramp"
	case StageStable:
		return "stable"
	case StageEnd:
		return "end"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// Outcome is the closed set of reasons a stage finalized.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeCompleted
	OutcomeTimedOut
	OutcomeFaulted
	OutcomeSkipped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeTimedOut:
		return "timed_out"
	case OutcomeFaulted:
		return "faulted"
	case OutcomeSkipped:
		return "skipped"
	default:
		return "none"
	}
}

// FaultKind is the closed set of fault reasons the detector can report.
type FaultKind int

const (
	FaultNone FaultKind = iota
	FaultSensorInvalid
	FaultTimeWentBackward
	FaultTimeoutRamp
	FaultTimeoutStage
)

func (f FaultKind) String() string {
	switch f {
	case FaultSensorInvalid:
		return "sensor_invalid"
	case FaultTimeWentBackward:
		return "time_went_backward"
	case FaultTimeoutRamp:
		return "timeout_ramp"
	case FaultTimeoutStage:
		return "timeout_stage"
	default:
		return "none"
	}
}

// EventKind is the closed set of events a detector emits.
type EventKind int

const (
	EventRampStarted EventKind = iota
	EventStable
	EventStageEnded
	EventFault
)

func (k EventKind) String() string {
	switch k {
	case EventRampStarted:
		return "ramp_started"
	case EventStable:
		return "stable"
	case EventStageEnded:
		return "stage_ended"
	case EventFault:
		return "fault"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is one stage-lifecycle occurrence emitted by a zone's detector.
// Only the fields relevant to Kind are meaningful; the rest are zero.
type Event struct {
	Kind      EventKind
	Zone      zone.Zone
	At        time.Time
	Baseline  float64   // EventRampStarted
	Outcome   Outcome   // EventStageEnded
	FaultKind FaultKind // EventFault
	Detail    string
}
