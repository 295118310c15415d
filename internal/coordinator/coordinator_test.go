package coordinator

import (
	"testing"
	"time"

	"github.com/kbuckham/zonewatch/internal/config"
	"github.com/kbuckham/zonewatch/internal/detector"
	"github.com/kbuckham/zonewatch/internal/sample"
	"github.com/kbuckham/zonewatch/internal/zone"
)

var base = time.Unix(1_700_000_000, 0)

func at(seconds int) time.Time { return base.Add(time.Duration(seconds) * time.Second) }

// fastConfig scales spec.md's default thresholds down to single-digit
// seconds so a coordinator test's tick loop stays short and exact, without
// changing any of the FSM's relational invariants (max_stage_s > max_ramp_s,
// delta_off_f == s_min_f, etc.).
func fastConfig() config.Config {
	return config.Config{
		Version:                       1,
		LineID:                        "line-test",
		Zones:                         config.ZonesConfig{Preheat: true, Main: true, Rib: true},
		SamplingPeriodS:               1,
		TolF:                          5,
		DeltaRampF:                    10,
		DTMinFPerMin:                  5,
		TStableS:                      4,
		DeltaOffF:                     10,
		TOffSustainS:                  3,
		SMinF:                         10,
		TSpSustainS:                   2,
		MaxRampS:                      10,
		MaxStageS:                     100,
		QuietWindowS:                  5,
		DTQuietFPerMin:                2,
		AllowMainWithoutPreheat:       false,
		ContinueAfterFaultIfNextRamps: true,
	}
}

// step is a (temp, setpoint) value that takes effect at-or-after t and
// holds until the next step for the same zone.
type step struct {
	t              int
	temp, setpoint float64
}

func valueAt(steps []step, t int) (float64, float64) {
	temp, sp := 75.0, 75.0
	for _, st := range steps {
		if st.t > t {
			break
		}
		temp, sp = st.temp, st.setpoint
	}
	return temp, sp
}

// samplesAt builds one sample per canonical zone for tick t: a zone not
// present in tracks (or with no step yet due) stays at the flat default
// (75, 75), exactly like a zone idling at ambient with setpoint untouched.
func samplesAt(t int, tracks map[zone.Zone][]step) map[zone.Zone]sample.Sample {
	out := make(map[zone.Zone]sample.Sample, len(zone.CanonicalOrder))
	for _, z := range zone.CanonicalOrder {
		temp, sp := valueAt(tracks[z], t)
		out[z] = sample.Sample{Zone: z, T: at(t), Wall: at(t), TemperatureF: temp, SetpointF: sp, Valid: true}
	}
	return out
}

func TestFullCycleCompletes(t *testing.T) {
	cfg := fastConfig()
	c := New(cfg.LineID, cfg)

	tracks := map[zone.Zone][]step{
		zone.Preheat: {
			{t: 1, temp: 300, setpoint: 300},
			{t: 10, temp: 300, setpoint: 75},
		},
		zone.Main: {
			{t: 15, temp: 280, setpoint: 280},
			{t: 24, temp: 280, setpoint: 75},
		},
		zone.Rib: {
			{t: 29, temp: 260, setpoint: 260},
			{t: 38, temp: 260, setpoint: 75},
		},
	}

	var finalRecord *RunRecord
	for tm := 0; tm <= 41; tm++ {
		_, _, rr := c.Observe(at(tm), samplesAt(tm, tracks))
		if rr != nil {
			finalRecord = rr
		}
	}

	if finalRecord == nil {
		t.Fatalf("run did not close within the observed window")
	}
	if finalRecord.Termination != TerminationCompleted {
		t.Fatalf("termination = %v, want Completed", finalRecord.Termination)
	}
	if finalRecord.Partial {
		t.Fatalf("partial = true, want false for a clean full cycle")
	}
	if len(finalRecord.Zones) != 3 {
		t.Fatalf("zones = %d, want 3", len(finalRecord.Zones))
	}
	for _, zr := range finalRecord.Zones {
		if zr.Outcome != detector.OutcomeCompleted {
			t.Fatalf("zone %v outcome = %v, want Completed", zr.Zone, zr.Outcome)
		}
	}
	if c.HasOpenRun() {
		t.Fatalf("coordinator still reports an open run after closure")
	}
}

func TestRampTimeoutRecoversViaNextZone(t *testing.T) {
	cfg := fastConfig()
	cfg.Zones.Rib = false // only preheat and main matter for this scenario
	c := New(cfg.LineID, cfg)

	tracks := map[zone.Zone][]step{
		zone.Preheat: {
			{t: 1, temp: 75, setpoint: 300}, // never converges; times out
		},
		zone.Main: {
			{t: 16, temp: 280, setpoint: 280},
			{t: 25, temp: 280, setpoint: 75},
		},
	}

	var finalRecord *RunRecord
	for tm := 0; tm <= 28; tm++ {
		_, _, rr := c.Observe(at(tm), samplesAt(tm, tracks))
		if rr != nil {
			finalRecord = rr
		}
	}

	if finalRecord == nil {
		t.Fatalf("run did not close within the observed window")
	}
	if finalRecord.Termination != TerminationCompleted {
		t.Fatalf("termination = %v, want Completed (recovered via main)", finalRecord.Termination)
	}
	if finalRecord.Partial {
		t.Fatalf("partial = true, want false once the cycle recovers and finishes")
	}

	var sawFaultedPreheat, sawCompletedMain bool
	for _, zr := range finalRecord.Zones {
		switch zr.Zone {
		case zone.Preheat:
			sawFaultedPreheat = zr.Outcome == detector.OutcomeFaulted
		case zone.Main:
			sawCompletedMain = zr.Outcome == detector.OutcomeCompleted
		}
	}
	if !sawFaultedPreheat {
		t.Fatalf("expected preheat zone record outcome Faulted, got %+v", finalRecord.Zones)
	}
	if !sawCompletedMain {
		t.Fatalf("expected main zone record outcome Completed, got %+v", finalRecord.Zones)
	}
}

func TestQuietTimeoutClosesPartial(t *testing.T) {
	cfg := fastConfig()
	c := New(cfg.LineID, cfg)

	tracks := map[zone.Zone][]step{
		zone.Preheat: {
			{t: 1, temp: 300, setpoint: 300},
			{t: 10, temp: 300, setpoint: 75},
		},
		// main and rib never ramp; they stay flat and idle.
	}

	var finalRecord *RunRecord
	for tm := 0; tm <= 25; tm++ {
		_, _, rr := c.Observe(at(tm), samplesAt(tm, tracks))
		if rr != nil {
			finalRecord = rr
			break
		}
	}

	if finalRecord == nil {
		t.Fatalf("run did not close via quiet timeout within the observed window")
	}
	if finalRecord.Termination != TerminationPartialQuiet {
		t.Fatalf("termination = %v, want PartialQuiet", finalRecord.Termination)
	}
	if !finalRecord.Partial {
		t.Fatalf("partial = false, want true (main and rib never ran)")
	}
	if len(finalRecord.Zones) != 3 {
		t.Fatalf("zones = %d, want 3 (preheat completed, main/rib skipped)", len(finalRecord.Zones))
	}

	outcomeByZone := make(map[zone.Zone]detector.Outcome, 3)
	for _, zr := range finalRecord.Zones {
		outcomeByZone[zr.Zone] = zr.Outcome
	}
	if outcomeByZone[zone.Preheat] != detector.OutcomeCompleted {
		t.Fatalf("preheat outcome = %v, want Completed", outcomeByZone[zone.Preheat])
	}
	if outcomeByZone[zone.Main] != detector.OutcomeSkipped || outcomeByZone[zone.Rib] != detector.OutcomeSkipped {
		t.Fatalf("main/rib outcomes = %v/%v, want Skipped/Skipped", outcomeByZone[zone.Main], outcomeByZone[zone.Rib])
	}
}

func TestOutOfOrderZoneIgnoredWhenPreheatRequired(t *testing.T) {
	cfg := fastConfig()
	cfg.Zones.Rib = false
	cfg.AllowMainWithoutPreheat = false
	c := New(cfg.LineID, cfg)

	// Main tries to ramp first; with allow_main_without_preheat=false this
	// must be ignored rather than opening a run.
	tracks := map[zone.Zone][]step{
		zone.Main: {
			{t: 1, temp: 280, setpoint: 280},
		},
	}

	var sawAnomaly bool
	for tm := 0; tm <= 5; tm++ {
		ev, _, rr := c.Observe(at(tm), samplesAt(tm, tracks))
		if rr != nil {
			t.Fatalf("run must not open from an out-of-order zone, got %+v", rr)
		}
		for _, e := range ev {
			if e.Kind == "anomaly" {
				sawAnomaly = true
			}
		}
	}
	if c.HasOpenRun() {
		t.Fatalf("coordinator opened a run from the wrong zone")
	}
	if !sawAnomaly {
		t.Fatalf("expected an anomaly event for the out-of-order ramp")
	}

	// Now preheat ramps for real; the run must open normally afterward.
	tracks[zone.Preheat] = []step{{t: 6, temp: 300, setpoint: 300}}
	for tm := 6; tm <= 9; tm++ {
		c.Observe(at(tm), samplesAt(tm, tracks))
	}
	if !c.HasOpenRun() {
		t.Fatalf("expected a run to open once preheat ramps")
	}
}

func TestCheckpointRoundTrip(t *testing.T) {
	cfg := fastConfig()
	cfg.Zones.Rib = false
	c := New(cfg.LineID, cfg)

	tracks := map[zone.Zone][]step{
		zone.Preheat: {
			{t: 1, temp: 300, setpoint: 300},
		},
	}
	for tm := 0; tm <= 6; tm++ {
		c.Observe(at(tm), samplesAt(tm, tracks))
	}
	if !c.HasOpenRun() {
		t.Fatalf("expected an open run before checkpointing")
	}

	cp := c.ToCheckpoint()
	restored := FromCheckpoint(cp, cfg)

	if !restored.HasOpenRun() {
		t.Fatalf("restored coordinator lost its open run")
	}
	if restored.run.RunID != c.run.RunID {
		t.Fatalf("restored run id = %q, want %q", restored.run.RunID, c.run.RunID)
	}
	if restored.run.CurrentZoneIdx != c.run.CurrentZoneIdx {
		t.Fatalf("restored CurrentZoneIdx = %d, want %d", restored.run.CurrentZoneIdx, c.run.CurrentZoneIdx)
	}

	// Replaying the remainder from both must agree: drive the stage to
	// completion and confirm both close with the same termination kind.
	tracks[zone.Preheat] = append(tracks[zone.Preheat], step{t: 10, temp: 300, setpoint: 75})
	var rrOrig, rrRestored *RunRecord
	for tm := 7; tm <= 20; tm++ {
		_, _, rr := c.Observe(at(tm), samplesAt(tm, tracks))
		if rr != nil {
			rrOrig = rr
		}
		_, _, rr2 := restored.Observe(at(tm), samplesAt(tm, tracks))
		if rr2 != nil {
			rrRestored = rr2
		}
	}
	if rrOrig == nil || rrRestored == nil {
		t.Fatalf("expected both coordinators to close the run, got orig=%v restored=%v", rrOrig, rrRestored)
	}
	if rrOrig.Termination != rrRestored.Termination {
		t.Fatalf("termination mismatch after restore: %v vs %v", rrOrig.Termination, rrRestored.Termination)
	}
}

// TestCheckpointReplayMatchesUnsplitRun drives the same tick stream two
// ways — straight through, and split mid-run with a checkpoint/reload in
// between — and requires the resulting RunRecords to agree. This is the
// idempotent-recovery property: splitting a sample stream at any tick
// boundary, saving state, reloading, and replaying the remainder must
// yield the same RunRecord as an uninterrupted run.
func TestCheckpointReplayMatchesUnsplitRun(t *testing.T) {
	cfg := fastConfig()

	tracks := map[zone.Zone][]step{
		zone.Preheat: {
			{t: 1, temp: 300, setpoint: 300},
			{t: 10, temp: 300, setpoint: 75},
		},
		zone.Main: {
			{t: 15, temp: 280, setpoint: 280},
			{t: 24, temp: 280, setpoint: 75},
		},
		zone.Rib: {
			{t: 29, temp: 260, setpoint: 260},
			{t: 38, temp: 260, setpoint: 75},
		},
	}

	unsplit := New(cfg.LineID, cfg)
	var rrUnsplit *RunRecord
	for tm := 0; tm <= 41; tm++ {
		_, _, rr := unsplit.Observe(at(tm), samplesAt(tm, tracks))
		if rr != nil {
			rrUnsplit = rr
		}
	}
	if rrUnsplit == nil {
		t.Fatalf("unsplit run did not close")
	}

	// Split at t=20 — inside the quiet-window ring's retention window — and
	// reload from a checkpoint before replaying the remainder.
	split := New(cfg.LineID, cfg)
	for tm := 0; tm <= 20; tm++ {
		split.Observe(at(tm), samplesAt(tm, tracks))
	}
	restored := FromCheckpoint(split.ToCheckpoint(), cfg)

	var rrSplit *RunRecord
	for tm := 21; tm <= 41; tm++ {
		_, _, rr := restored.Observe(at(tm), samplesAt(tm, tracks))
		if rr != nil {
			rrSplit = rr
		}
	}
	if rrSplit == nil {
		t.Fatalf("split/restored run did not close")
	}

	if rrSplit.Termination != rrUnsplit.Termination || rrSplit.Partial != rrUnsplit.Partial {
		t.Fatalf("split run diverged from unsplit: termination/partial = %v/%v, want %v/%v",
			rrSplit.Termination, rrSplit.Partial, rrUnsplit.Termination, rrUnsplit.Partial)
	}
	if len(rrSplit.Zones) != len(rrUnsplit.Zones) {
		t.Fatalf("split run zone count = %d, want %d", len(rrSplit.Zones), len(rrUnsplit.Zones))
	}

	byZone := make(map[zone.Zone]ZoneRecord, len(rrUnsplit.Zones))
	for _, zr := range rrUnsplit.Zones {
		byZone[zr.Zone] = zr
	}
	for _, zr := range rrSplit.Zones {
		want, ok := byZone[zr.Zone]
		if !ok {
			t.Fatalf("split run has unexpected zone %v", zr.Zone)
		}
		if zr.Outcome != want.Outcome || zr.SamplesN != want.SamplesN || zr.MeanF != want.MeanF {
			t.Fatalf("zone %v diverged after split/restore: %+v, want %+v", zr.Zone, zr, want)
		}
	}
}

func TestAbortClosesOpenRun(t *testing.T) {
	cfg := fastConfig()
	cfg.Zones.Rib = false
	c := New(cfg.LineID, cfg)

	tracks := map[zone.Zone][]step{
		zone.Preheat: {
			{t: 1, temp: 75, setpoint: 300},
		},
	}

	for tm := 0; tm <= 4; tm++ {
		c.Observe(at(tm), samplesAt(tm, tracks))
	}
	if !c.HasOpenRun() {
		t.Fatalf("expected preheat's ramp to have opened a run by t=4")
	}

	rr := c.Abort(at(5), "operator requested stop")
	if rr == nil {
		t.Fatalf("Abort returned nil RunRecord for an open run")
	}
	if rr.Termination != TerminationAborted {
		t.Fatalf("termination = %v, want Aborted", rr.Termination)
	}
	if !rr.Partial {
		t.Fatalf("partial = false, want true for an abort")
	}
	if c.HasOpenRun() {
		t.Fatalf("coordinator still reports an open run after Abort")
	}

	if got := c.Abort(at(6), "no run"); got != nil {
		t.Fatalf("Abort on a closed coordinator should return nil, got %+v", got)
	}
}
