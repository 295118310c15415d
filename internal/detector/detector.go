// Package detector implements the per-zone stage-detection finite state
// machine: it converts one zone's (temperature, setpoint) sample stream
// into RampStarted / Stable / StageEnded / Fault events.
package detector

import (
	"math"
	"time"

	"github.com/kbuckham/zonewatch/internal/config"
	"github.com/kbuckham/zonewatch/internal/sample"
	"github.com/kbuckham/zonewatch/internal/stats"
	"github.com/kbuckham/zonewatch/internal/zone"
)

type pendingSetpoint struct {
	value       float64
	firstSeenAt time.Time
}

// Detector holds one zone's stage-detection state for the lifetime of a
// single run. The coordinator creates one per enabled zone up front and
// replaces it with a fresh IDLE detector each time a run closes; it is
// pure in-memory, never suspends, and never panics on bad input —
// failures surface as Fault events.
type Detector struct {
	zone zone.Zone
	cfg  config.Config

	stage              StageKind
	stageEnteredAt     time.Time // current FSM state entry time
	zoneStageStartedAt time.Time // RAMP entry time, for Max_stage_s

	lastSample sample.Sample
	haveLast   bool

	lastAcceptedSetpoint float64
	haveSetpoint         bool
	pending              *pendingSetpoint

	haveInBand    bool
	inBandSince   time.Time
	haveOutOfBand bool
	outOfBandSince  time.Time
	offBandFromJump bool

	baseline float64

	stats *stats.Running
	ring  *ring

	consecutiveInvalid int
}

// New returns an IDLE detector for the given zone.
func New(z zone.Zone, cfg config.Config) *Detector {
	return &Detector{
		zone:  z,
		cfg:   cfg,
		stage: StageIdle,
		stats: stats.New(),
		ring:  newRing(cfg.RingCapacity()),
	}
}

// Zone returns the zone this detector tracks.
func (d *Detector) Zone() zone.Zone { return d.zone }

// Stage returns the detector's current stage.
func (d *Detector) Stage() StageKind { return d.stage }

// Stats returns a live snapshot of the current stage's running statistics.
func (d *Detector) Stats() stats.Snapshot { return d.stats.Snapshot() }

// StageStartedAt returns when the current RAMP/STABLE stage began (zero
// value before the first RampStarted).
func (d *Detector) StageStartedAt() time.Time { return d.zoneStageStartedAt }

// ConsecutiveInvalid reports the number of consecutive invalid samples
// most recently observed, for coordinator-level sustained-invalidity
// fault decisions (spec's SensorInvalid is a coordinator call, not a
// per-zone one).
func (d *Detector) ConsecutiveInvalid() int { return d.consecutiveInvalid }

// Degraded reports whether the zone has seen more than two consecutive
// invalid samples.
func (d *Detector) Degraded() bool { return d.consecutiveInvalid > 2 }

// QuietSlope fits a trailing-window slope (°F/min) over retained valid
// history, for the coordinator's quiet-timeout computation.
func (d *Detector) QuietSlope(at time.Time, window time.Duration) (float64, int) {
	return leastSquaresSlopePerMinute(d.ring.since(at.Add(-window)))
}

func durationSeconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// Step folds one sample into the detector and returns any events it
// produced. Deterministic: the same sample sequence always yields the
// same event sequence.
func (d *Detector) Step(s sample.Sample) []Event {
	if d.haveLast && s.T.Before(d.lastSample.T) {
		return []Event{{
			Kind:      EventFault,
			Zone:      d.zone,
			At:        d.lastSample.T,
			FaultKind: FaultTimeWentBackward,
			Detail:    "sample time went backward; dropped",
		}}
	}

	if s.Valid {
		d.consecutiveInvalid = 0
		d.ring.push(historyPoint{t: s.T, temp: s.TemperatureF})
	} else {
		d.consecutiveInvalid++
	}

	var events []Event
	switch d.stage {
	case StageIdle:
		events = d.stepIdle(s)
	case StageRamp:
		events = d.stepRamp(s)
	case StageStable:
		events = d.stepStable(s)
	case StageEnd:
		// Terminal for this run; no further transitions.
	}

	d.lastSample = s
	d.haveLast = true
	return events
}

func (d *Detector) stepIdle(s sample.Sample) []Event {
	if !d.haveSetpoint {
		d.lastAcceptedSetpoint = s.SetpointF
		d.haveSetpoint = true
	}

	if !s.Valid {
		return nil
	}

	// Setpoint-jump path: armed by a >= S_min_F jump, confirmed once the
	// new setpoint has persisted for T_sp_sustain_s.
	jumpReady := false
	var jumpBaseline float64
	if math.Abs(s.SetpointF-d.lastAcceptedSetpoint) >= d.cfg.SMinF {
		if d.pending == nil || d.pending.value != s.SetpointF {
			d.pending = &pendingSetpoint{value: s.SetpointF, firstSeenAt: s.T}
		}
		if s.T.Sub(d.pending.firstSeenAt) >= durationSeconds(d.cfg.TSpSustainS) {
			jumpReady = true
			jumpBaseline = s.TemperatureF
		}
	} else {
		d.pending = nil
	}

	// Thermal-ramp path: trailing 60s least-squares slope, >=3 valid samples.
	rampReady := false
	var rampBaseline float64
	window := d.ring.since(s.T.Add(-60 * time.Second))
	slope, n := leastSquaresSlopePerMinute(window)
	if n >= 3 {
		base := minTemp(window)
		if s.TemperatureF-base >= d.cfg.DeltaRampF && slope >= d.cfg.DTMinFPerMin {
			rampReady = true
			rampBaseline = base
		}
	}

	switch {
	case jumpReady:
		// Setpoint jump and thermal ramp triggering together: jump wins.
		d.lastAcceptedSetpoint = s.SetpointF
		d.pending = nil
		return d.enterRamp(s.T, jumpBaseline)
	case rampReady:
		d.lastAcceptedSetpoint = s.SetpointF
		d.pending = nil
		return d.enterRamp(s.T, rampBaseline)
	}

	return nil
}

func (d *Detector) stepRamp(s sample.Sample) []Event {
	var events []Event

	if s.Valid {
		d.stats.Update(s.TemperatureF, s.T)

		if math.Abs(s.TemperatureF-s.SetpointF) <= d.cfg.TolF {
			if !d.haveInBand {
				d.inBandSince = s.T
				d.haveInBand = true
			}
			if s.T.Sub(d.inBandSince) >= durationSeconds(d.cfg.TStableS) {
				return d.enterStable(s.T)
			}
		} else {
			d.haveInBand = false
		}
	} else if d.haveInBand && d.consecutiveInvalid > 2 {
		// A lone invalid tick (or two) does not break continuity toward
		// STABLE; more than two consecutive invalid ticks resets it, so the
		// dwell restarts fresh on resumption instead of letting the pre-gap
		// elapsed time count toward it.
		d.haveInBand = false
	}

	if s.T.Sub(d.stageEnteredAt) > durationSeconds(d.cfg.MaxRampS) {
		events = append(events, d.endStage(s.T, OutcomeFaulted, FaultTimeoutRamp)...)
	}

	return events
}

func (d *Detector) stepStable(s sample.Sample) []Event {
	if s.Valid {
		if math.Abs(s.SetpointF-d.lastAcceptedSetpoint) >= d.cfg.SMinF {
			if s.SetpointF > d.lastAcceptedSetpoint {
				// Upward jump: close the current stage and start a new ramp
				// immediately at the new setpoint.
				events := d.endStage(s.T, OutcomeCompleted, FaultNone)
				d.lastAcceptedSetpoint = s.SetpointF
				events = append(events, d.enterRamp(s.T, s.TemperatureF)...)
				return events
			}
			// Downward jump within Tol_F of the new setpoint is transient
			// noise. A drop of at least DeltaOff_F arms the off-band dwell
			// right away, since the stage is ending even though the
			// still-hot zone has not yet cooled past the new setpoint.
			if d.lastAcceptedSetpoint-s.SetpointF >= d.cfg.DeltaOffF {
				if !d.haveOutOfBand {
					d.outOfBandSince = s.T
					d.haveOutOfBand = true
				}
				d.offBandFromJump = true
			}
			d.lastAcceptedSetpoint = s.SetpointF
		}

		d.stats.Update(s.TemperatureF, s.T)

		diff := s.SetpointF - s.TemperatureF
		if diff >= d.cfg.DeltaOffF {
			if !d.haveOutOfBand {
				d.outOfBandSince = s.T
				d.haveOutOfBand = true
			}
		} else if !d.offBandFromJump {
			d.haveOutOfBand = false
		}

		if d.haveOutOfBand && s.T.Sub(d.outOfBandSince) >= durationSeconds(d.cfg.TOffSustainS) {
			return d.endStage(s.T, OutcomeCompleted, FaultNone)
		}
	} else if d.haveOutOfBand && d.consecutiveInvalid > 2 {
		// Same continuity-reset rule as stepRamp's in-band dwell: more than
		// two consecutive invalid ticks resets the off-band dwell instead of
		// letting the pre-gap elapsed time count toward T_off_sustain_s.
		d.haveOutOfBand = false
		d.offBandFromJump = false
	}

	if s.T.Sub(d.zoneStageStartedAt) > durationSeconds(d.cfg.MaxStageS) {
		return d.endStage(s.T, OutcomeTimedOut, FaultTimeoutStage)
	}

	return nil
}

func (d *Detector) enterRamp(at time.Time, baseline float64) []Event {
	d.stage = StageRamp
	d.stageEnteredAt = at
	d.zoneStageStartedAt = at
	d.baseline = baseline
	d.haveInBand = false
	d.haveOutOfBand = false
	d.offBandFromJump = false
	d.stats = stats.New()
	return []Event{{Kind: EventRampStarted, Zone: d.zone, At: at, Baseline: baseline}}
}

func (d *Detector) enterStable(at time.Time) []Event {
	d.stage = StageStable
	d.stageEnteredAt = at
	d.haveOutOfBand = false
	d.offBandFromJump = false
	return []Event{{Kind: EventStable, Zone: d.zone, At: at}}
}

func (d *Detector) endStage(at time.Time, outcome Outcome, fault FaultKind) []Event {
	var events []Event
	if fault != FaultNone {
		events = append(events, Event{Kind: EventFault, Zone: d.zone, At: at, FaultKind: fault})
	}
	events = append(events, Event{Kind: EventStageEnded, Zone: d.zone, At: at, Outcome: outcome})
	d.stage = StageEnd
	d.stageEnteredAt = at
	return events
}
