package report

import (
	"bytes"
	"testing"

	"github.com/kbuckham/zonewatch/internal/coordinator"
	"github.com/kbuckham/zonewatch/internal/detector"
	"github.com/kbuckham/zonewatch/internal/zone"
)

func TestWriteYAMLRoundTrip(t *testing.T) {
	rr := coordinator.RunRecord{
		RunID:       "r1",
		LineID:      "line-1",
		Termination: coordinator.TerminationCompleted,
		Zones: []coordinator.ZoneRecord{
			{Zone: zone.Preheat, Outcome: detector.OutcomeCompleted, SamplesN: 10, MeanF: 300},
		},
		Events: []coordinator.OutputEvent{
			{Kind: "ramp_started", Detail: "baseline=75"},
		},
	}

	var buf bytes.Buffer
	if err := WriteYAML(&buf, rr); err != nil {
		t.Fatalf("WriteYAML: %v", err)
	}

	got, err := ReadYAML(&buf)
	if err != nil {
		t.Fatalf("ReadYAML: %v", err)
	}

	if got.RunID != rr.RunID || got.LineID != rr.LineID || got.Termination != rr.Termination {
		t.Fatalf("round-tripped record = %+v, want run_id/line_id/termination to match %+v", got, rr)
	}
	if len(got.Zones) != 1 || got.Zones[0].MeanF != 300 {
		t.Fatalf("round-tripped zones = %+v, want MeanF=300", got.Zones)
	}
	if len(got.Events) != 1 || got.Events[0].Kind != "ramp_started" {
		t.Fatalf("round-tripped events = %+v, want one ramp_started event", got.Events)
	}
}
