// Package report renders a closed RunRecord for operator review.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/kbuckham/zonewatch/internal/coordinator"
)

const timeLayout = "2006-01-02T15:04:05.000"

// WriteCSV renders rr's per-zone stage summary as CSV: one header row,
// then one row per zone, in cycle order. Grounded on the teacher's
// csv.go shape (header row immediately, flush once at the end since a
// closed RunRecord's zone count is small and fixed, unlike the teacher's
// streaming per-sample writer).
func WriteCSV(w io.Writer, rr coordinator.RunRecord) error {
	cw := csv.NewWriter(w)

	header := []string{
		"run_id", "line_id", "zone", "started_at", "ended_at", "outcome",
		"samples_n", "mean_f", "stddev_f", "min_f", "max_f", "setpoint_f",
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, z := range rr.Zones {
		row := []string{
			rr.RunID,
			rr.LineID,
			z.Zone.String(),
			formatTime(z.StartedAt),
			formatTime(z.EndedAt),
			z.Outcome.String(),
			fmt.Sprintf("%d", z.SamplesN),
			fmt.Sprintf("%.2f", z.MeanF),
			fmt.Sprintf("%.2f", z.StddevF),
			fmt.Sprintf("%.2f", z.MinF),
			fmt.Sprintf("%.2f", z.MaxF),
			fmt.Sprintf("%.2f", z.SetpointF),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row for zone %s: %w", z.Zone, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("CSV flush error: %w", err)
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(timeLayout)
}
