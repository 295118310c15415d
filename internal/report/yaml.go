package report

import (
	"fmt"
	"io"

	"github.com/kbuckham/zonewatch/internal/coordinator"
	"gopkg.in/yaml.v3"
)

// WriteYAML renders rr as a human-readable YAML snapshot — the format
// replay's --yaml-out writes when an operator wants the full RunRecord
// (including its event list, which the CSV export omits) rather than
// just the per-zone summary.
func WriteYAML(w io.Writer, rr coordinator.RunRecord) error {
	enc := yaml.NewEncoder(w)
	defer enc.Close()
	if err := enc.Encode(rr); err != nil {
		return fmt.Errorf("failed to encode run record as YAML: %w", err)
	}
	return nil
}

// ReadYAML parses a RunRecord snapshot previously written by WriteYAML.
func ReadYAML(r io.Reader) (coordinator.RunRecord, error) {
	var rr coordinator.RunRecord
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&rr); err != nil {
		return coordinator.RunRecord{}, fmt.Errorf("failed to decode run record YAML: %w", err)
	}
	return rr, nil
}
