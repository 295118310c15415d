package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/kbuckham/zonewatch/internal/coordinator"
	"github.com/kbuckham/zonewatch/internal/detector"
	"github.com/kbuckham/zonewatch/internal/zone"
)

func TestWriteCSVHeaderAndRows(t *testing.T) {
	rr := coordinator.RunRecord{
		RunID:       "r1",
		LineID:      "line-1",
		Termination: coordinator.TerminationCompleted,
		Zones: []coordinator.ZoneRecord{
			{
				Zone:      zone.Preheat,
				StartedAt: time.Unix(1700000000, 0),
				EndedAt:   time.Unix(1700000375, 0),
				Outcome:   detector.OutcomeCompleted,
				SamplesN:  120,
				MeanF:     301.5,
				StddevF:   2.1,
				MinF:      295,
				MaxF:      308,
				SetpointF: 75,
			},
			{
				Zone:    zone.Main,
				Outcome: detector.OutcomeSkipped,
			},
		},
	}

	var buf bytes.Buffer
	if err := WriteCSV(&buf, rr); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 rows, got %d lines: %q", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], "run_id,line_id,zone,started_at") {
		t.Fatalf("unexpected header: %q", lines[0])
	}
	if !strings.Contains(lines[1], "preheat") || !strings.Contains(lines[1], "completed") {
		t.Fatalf("preheat row missing expected fields: %q", lines[1])
	}
	if !strings.Contains(lines[2], "main") || !strings.Contains(lines[2], "skipped") {
		t.Fatalf("main row missing expected fields: %q", lines[2])
	}
}
