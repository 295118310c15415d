package coordinator

import (
	"math"
	"time"

	"github.com/kbuckham/zonewatch/internal/config"
	"github.com/kbuckham/zonewatch/internal/detector"
	"github.com/kbuckham/zonewatch/internal/runid"
	"github.com/kbuckham/zonewatch/internal/sample"
	"github.com/kbuckham/zonewatch/internal/zone"
)

// Coordinator owns one production line's detectors and the run currently
// being assembled from their events. All methods are called from a
// single worker tick goroutine; no internal locking is required (spec's
// "single cooperative task per line" concurrency model).
type Coordinator struct {
	lineID     string
	cfg        config.Config
	cycleOrder []zone.Zone

	detectors map[zone.Zone]*detector.Detector

	run *run

	lastSetpoint map[zone.Zone]float64
}

// New builds a coordinator for lineID with a fresh IDLE detector per
// enabled zone, in canonical cycle order.
func New(lineID string, cfg config.Config) *Coordinator {
	order := zone.EnabledOrder([]zone.Config{
		{Zone: zone.Preheat, Enabled: cfg.Zones.Preheat},
		{Zone: zone.Main, Enabled: cfg.Zones.Main},
		{Zone: zone.Rib, Enabled: cfg.Zones.Rib},
	})

	dets := make(map[zone.Zone]*detector.Detector, len(order))
	for _, z := range order {
		dets[z] = detector.New(z, cfg)
	}

	return &Coordinator{
		lineID:       lineID,
		cfg:          cfg,
		cycleOrder:   order,
		detectors:    dets,
		lastSetpoint: make(map[zone.Zone]float64, len(order)),
	}
}

// LineID returns the production line this coordinator serves.
func (c *Coordinator) LineID() string { return c.lineID }

// HasOpenRun reports whether a run is currently in progress.
func (c *Coordinator) HasOpenRun() bool { return c.run != nil }

func secondsDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// Observe folds one tick's per-zone samples through every zone detector,
// advances the run state machine, and reports (a) the events produced
// this tick, (b) any stage records that finalized this tick, and (c)
// the RunRecord if the run closed this tick (nil otherwise).
func (c *Coordinator) Observe(now time.Time, samples map[zone.Zone]sample.Sample) ([]OutputEvent, []StageRecord, *RunRecord) {
	var events []OutputEvent
	var closedStages []StageRecord

	perZone := make(map[zone.Zone][]detector.Event, len(c.cycleOrder))
	for _, z := range c.cycleOrder {
		sm, ok := samples[z]
		if !ok {
			continue
		}
		perZone[z] = c.detectors[z].Step(sm)
		if sm.Valid {
			c.lastSetpoint[z] = sm.SetpointF
		}
	}

	if c.run == nil {
		events = append(events, c.tryOpenRun(perZone)...)
		if c.run == nil {
			return events, closedStages, nil
		}
	}

	for idx, z := range c.cycleOrder {
		evs := perZone[z]
		if len(evs) == 0 {
			continue
		}
		switch {
		case idx == c.run.CurrentZoneIdx:
			ev, cs := c.handleCurrentZoneBatch(z, evs)
			events = append(events, ev...)
			closedStages = append(closedStages, cs...)
		case idx > c.run.CurrentZoneIdx:
			for _, ev := range evs {
				events = append(events, c.handleFutureZoneEvent(idx, z, ev)...)
			}
		default:
			for _, ev := range evs {
				events = append(events, c.anomaly(ev.At, z, "event from an already-advanced zone ignored"))
			}
		}
	}

	if !c.run.closed() {
		events = append(events, c.checkSustainedInvalidity(now)...)
	}
	if !c.run.closed() {
		events = append(events, c.checkRecoveryDeadline(now)...)
	}
	if !c.run.closed() {
		if ev, closed := c.checkQuiet(now); closed {
			events = append(events, ev...)
		}
	}

	var closedRun *RunRecord
	if c.run.closed() {
		closedStages = append(closedStages, c.fillSkippedStages()...)
		closedRun = c.buildRunRecord(events)
		c.run = nil
	}

	return events, closedStages, closedRun
}

func (c *Coordinator) tryOpenRun(perZone map[zone.Zone][]detector.Event) []OutputEvent {
	var events []OutputEvent

	for idx, z := range c.cycleOrder {
		for evIdx, ev := range perZone[z] {
			if ev.Kind != detector.EventRampStarted {
				continue
			}
			if !c.cfg.AllowMainWithoutPreheat && idx != 0 {
				events = append(events, c.anomaly(ev.At, z, "run start ignored: zone is not first in cycle order"))
				continue
			}

			c.run = &run{
				RunID:          runid.New(),
				LineID:         c.lineID,
				StartedAt:      ev.At,
				CycleOrder:     c.cycleOrder,
				CurrentZoneIdx: idx,
				ZoneRecords:    make(map[zone.Zone][]StageRecord, len(c.cycleOrder)),
			}
			events = append(events, OutputEvent{T: ev.At, Kind: "run_opened", Zone: zonePtr(z), Detail: c.run.RunID})
			events = append(events, c.eventToOutput(ev))
			c.openStage(z, ev.At)

			// This RampStarted already opened the run; drop it so the main
			// per-zone loop below does not process it a second time.
			perZone[z] = append(perZone[z][:evIdx:evIdx], perZone[z][evIdx+1:]...)
			return events
		}
	}

	return events
}

// handleCurrentZoneBatch processes every event the current zone's
// detector produced this tick, in order. A StageEnded immediately
// followed by a RampStarted in the same batch is a same-zone restart
// (the STABLE setpoint-churn-upward case): the cycle position does not
// advance, only a new StageRecord opens.
func (c *Coordinator) handleCurrentZoneBatch(z zone.Zone, evs []detector.Event) ([]OutputEvent, []StageRecord) {
	var events []OutputEvent
	var closed []StageRecord

	for i, ev := range evs {
		events = append(events, c.eventToOutput(ev))

		switch ev.Kind {
		case detector.EventRampStarted:
			c.openStage(z, ev.At)

		case detector.EventStageEnded:
			closed = append(closed, c.closeStage(z, ev))

			if i+1 < len(evs) && evs[i+1].Kind == detector.EventRampStarted {
				continue // same-zone restart; cycle position unchanged
			}

			idx := c.run.CurrentZoneIdx
			if ev.Outcome == detector.OutcomeFaulted {
				if c.cfg.ContinueAfterFaultIfNextRamps && idx+1 < len(c.cycleOrder) {
					c.run.awaitingRecoverySince = ev.At
				} else {
					c.closeRun(TerminationFaulted, ev.At, true)
				}
				return events, closed
			}

			if idx+1 < len(c.cycleOrder) {
				c.run.CurrentZoneIdx = idx + 1
			} else {
				c.closeRun(TerminationCompleted, ev.At, false)
			}
		}
	}

	return events, closed
}

func (c *Coordinator) handleFutureZoneEvent(idx int, z zone.Zone, ev detector.Event) []OutputEvent {
	if ev.Kind != detector.EventRampStarted {
		return nil
	}

	if !c.run.awaitingRecoverySince.IsZero() && idx == c.run.CurrentZoneIdx+1 {
		deadline := 2 * secondsDuration(c.cfg.MaxRampS)
		if ev.At.Sub(c.run.awaitingRecoverySince) <= deadline {
			c.run.CurrentZoneIdx = idx
			c.run.awaitingRecoverySince = time.Time{}
			c.openStage(z, ev.At)
			return []OutputEvent{
				{T: ev.At, Kind: "recovered", Zone: zonePtr(z), Detail: "next zone ramped within recovery window"},
				c.eventToOutput(ev),
			}
		}
	}

	return []OutputEvent{c.anomaly(ev.At, z, "ramp from a future zone queued as a recovery hint only")}
}

func (c *Coordinator) checkSustainedInvalidity(now time.Time) []OutputEvent {
	z := c.cycleOrder[c.run.CurrentZoneIdx]
	det := c.detectors[z]
	if det.Stage() != detector.StageRamp && det.Stage() != detector.StageStable {
		return nil
	}

	threshold := int(c.cfg.MaxRampS / 2 / c.cfg.SamplingPeriodS)
	if det.ConsecutiveInvalid() <= threshold {
		return nil
	}

	return []OutputEvent{{T: now, Kind: "fault", Zone: zonePtr(z), Detail: "sensor_invalid: sustained invalidity exceeded max_ramp_s/2"}}
}

func (c *Coordinator) checkRecoveryDeadline(now time.Time) []OutputEvent {
	if c.run.awaitingRecoverySince.IsZero() {
		return nil
	}
	deadline := 2 * secondsDuration(c.cfg.MaxRampS)
	if now.Sub(c.run.awaitingRecoverySince) <= deadline {
		return nil
	}
	c.closeRun(TerminationFaulted, now, true)
	return []OutputEvent{{T: now, Kind: "run_closed", Detail: "faulted: recovery window elapsed"}}
}

func (c *Coordinator) checkQuiet(now time.Time) ([]OutputEvent, bool) {
	window := secondsDuration(c.cfg.QuietWindowS)

	// The quiet window counts from the run's last stage transition.
	lastActivity := c.run.StartedAt
	for _, recs := range c.run.ZoneRecords {
		for _, r := range recs {
			if r.EndedAt.After(lastActivity) {
				lastActivity = r.EndedAt
			}
		}
	}
	if now.Sub(lastActivity) < window {
		return nil, false
	}

	for _, z := range c.cycleOrder {
		st := c.detectors[z].Stage()
		if st != detector.StageEnd && st != detector.StageIdle {
			return nil, false
		}
		slope, n := c.detectors[z].QuietSlope(now, window)
		if n < 3 {
			return nil, false
		}
		if math.Abs(slope) >= c.cfg.DTQuietFPerMin {
			return nil, false
		}
	}

	partial := false
	for _, z := range c.cycleOrder {
		recs := c.run.ZoneRecords[z]
		if len(recs) == 0 || recs[len(recs)-1].Outcome != detector.OutcomeCompleted {
			partial = true
			break
		}
	}

	kind := TerminationCompleted
	if partial {
		kind = TerminationPartialQuiet
	}
	c.closeRun(kind, now, partial)
	return []OutputEvent{{T: now, Kind: "run_closed", Detail: "quiet timeout: " + kind.String()}}, true
}

// Abort closes the current run (if any) as Aborted, per the control
// surface's abort_run(line_id, reason).
func (c *Coordinator) Abort(now time.Time, reason string) *RunRecord {
	if c.run == nil {
		return nil
	}
	c.closeRun(TerminationAborted, now, true)
	c.fillSkippedStages()
	rr := c.buildRunRecord([]OutputEvent{{T: now, Kind: "run_closed", Detail: "aborted: " + reason}})
	c.run = nil
	return rr
}

func (c *Coordinator) openStage(z zone.Zone, at time.Time) {
	c.run.ZoneRecords[z] = append(c.run.ZoneRecords[z], StageRecord{Zone: z, StartedAt: at})
}

func (c *Coordinator) closeStage(z zone.Zone, ev detector.Event) StageRecord {
	recs := c.run.ZoneRecords[z]
	rec := &recs[len(recs)-1]
	rec.EndedAt = ev.At
	rec.Outcome = ev.Outcome
	rec.Stats = c.detectors[z].Stats()
	rec.SetpointF = c.lastSetpoint[z]
	return *rec
}

func (c *Coordinator) fillSkippedStages() []StageRecord {
	var out []StageRecord
	for _, z := range c.cycleOrder {
		if len(c.run.ZoneRecords[z]) > 0 {
			continue
		}
		rec := StageRecord{Zone: z, Outcome: detector.OutcomeSkipped}
		c.run.ZoneRecords[z] = []StageRecord{rec}
		out = append(out, rec)
	}
	return out
}

func (c *Coordinator) closeRun(kind TerminationKind, at time.Time, partial bool) {
	c.run.Termination = kind
	c.run.TerminatedAt = at
	c.run.Partial = partial

	// Zone state lasts one run: every detector starts over in IDLE.
	for _, z := range c.cycleOrder {
		c.detectors[z] = detector.New(z, c.cfg)
	}
}

func (c *Coordinator) buildRunRecord(events []OutputEvent) *RunRecord {
	zones := make([]ZoneRecord, 0, len(c.cycleOrder))
	for _, z := range c.cycleOrder {
		recs := c.run.ZoneRecords[z]
		if len(recs) == 0 {
			continue
		}
		// The zone's final stage record is the one that matters for the
		// run-level summary; earlier ones (e.g. a completed stage before a
		// mid-stable setpoint-churn restart) already closed their own
		// on_stage_closed notification.
		rec := recs[len(recs)-1]
		zones = append(zones, ZoneRecord{
			Zone:      rec.Zone,
			StartedAt: rec.StartedAt,
			EndedAt:   rec.EndedAt,
			Outcome:   rec.Outcome,
			SamplesN:  rec.Stats.N,
			MeanF:     rec.Stats.Mean,
			StddevF:   rec.Stats.Stddev,
			MinF:      rec.Stats.Min,
			MaxF:      rec.Stats.Max,
			SetpointF: rec.SetpointF,
		})
	}

	return &RunRecord{
		RunID:       c.run.RunID,
		LineID:      c.run.LineID,
		StartedAt:   c.run.StartedAt,
		EndedAt:     c.run.TerminatedAt,
		Termination: c.run.Termination,
		Partial:     c.run.Partial,
		Zones:       zones,
		Events:      events,
	}
}

func (c *Coordinator) eventToOutput(ev detector.Event) OutputEvent {
	detail := ev.Detail
	if ev.Kind == detector.EventFault && detail == "" {
		detail = ev.FaultKind.String()
	}
	if ev.Kind == detector.EventStageEnded && detail == "" {
		detail = ev.Outcome.String()
	}
	z := ev.Zone
	return OutputEvent{T: ev.At, Kind: ev.Kind.String(), Zone: &z, Detail: detail}
}

func (c *Coordinator) anomaly(at time.Time, z zone.Zone, detail string) OutputEvent {
	return OutputEvent{T: at, Kind: "anomaly", Zone: zonePtr(z), Detail: detail}
}
