package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/kbuckham/zonewatch/internal/coordinator"
	"github.com/kbuckham/zonewatch/internal/report"
	"github.com/kbuckham/zonewatch/internal/sample"
	"github.com/kbuckham/zonewatch/internal/zone"
	"github.com/spf13/cobra"
)

var (
	replayFile    string
	replayCSVOut  string
	replayYAMLOut string
)

// replayZoneSample is the wire shape of one zone's observation within a
// replay tick line.
type replayZoneSample struct {
	TemperatureF float64 `json:"temperature_f"`
	SetpointF    float64 `json:"setpoint_f"`
	Valid        bool    `json:"valid"`
}

// replayTick is one line of the replay file: a wall-clock timestamp and
// every zone's sample at that tick.
type replayTick struct {
	T       time.Time                   `json:"t"`
	Samples map[string]replayZoneSample `json:"samples"`
}

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay a recorded JSON-lines sample stream through the Run Coordinator offline",
	Long: `Reads one JSON object per line — a timestamp plus every zone's
(temperature_F, setpoint_F, valid) sample — and folds each tick through
a fresh Run Coordinator exactly as the live worker would, printing every
RunRecord the replay produces. Useful for exercising the stage grammar
and idempotent-recovery properties without a live line.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if replayFile == "" {
			return fmt.Errorf("--file is required")
		}
		cfg, err := loadConfig(cfgConfigPath)
		if err != nil {
			return err
		}

		f, err := os.Open(replayFile)
		if err != nil {
			return fmt.Errorf("failed to open replay file: %w", err)
		}
		defer f.Close()

		coord := coordinator.New(cfg.LineID, cfg)

		var csvOut *os.File
		if replayCSVOut != "" {
			csvOut, err = os.Create(replayCSVOut)
			if err != nil {
				return fmt.Errorf("failed to create CSV output: %w", err)
			}
			defer csvOut.Close()
		}

		var yamlOut *os.File
		if replayYAMLOut != "" {
			yamlOut, err = os.Create(replayYAMLOut)
			if err != nil {
				return fmt.Errorf("failed to create YAML output: %w", err)
			}
			defer yamlOut.Close()
		}

		scanner := bufio.NewScanner(f)
		lineNo := 0
		runsClosed := 0
		for scanner.Scan() {
			lineNo++
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}

			var tick replayTick
			if err := json.Unmarshal(line, &tick); err != nil {
				return fmt.Errorf("replay file line %d: %w", lineNo, err)
			}

			snapshot := make(map[zone.Zone]sample.Sample, len(tick.Samples))
			for key, zs := range tick.Samples {
				z, err := zone.Parse(key)
				if err != nil {
					return fmt.Errorf("replay file line %d: %w", lineNo, err)
				}
				snapshot[z] = sample.Sample{
					Zone: z, T: tick.T, Wall: tick.T,
					TemperatureF: zs.TemperatureF, SetpointF: zs.SetpointF, Valid: zs.Valid,
				}
			}

			events, _, closedRun := coord.Observe(tick.T, snapshot)
			for _, ev := range events {
				fmt.Printf("[%s] %s %s\n", ev.T.Format(time.RFC3339), ev.Kind, ev.Detail)
			}
			if closedRun != nil {
				runsClosed++
				fmt.Println(closedRun.String())
				if csvOut != nil {
					if err := report.WriteCSV(csvOut, *closedRun); err != nil {
						return fmt.Errorf("failed to write CSV for run %s: %w", closedRun.RunID, err)
					}
				}
				if yamlOut != nil {
					if err := report.WriteYAML(yamlOut, *closedRun); err != nil {
						return fmt.Errorf("failed to write YAML for run %s: %w", closedRun.RunID, err)
					}
				}
			}
		}
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("failed reading replay file: %w", err)
		}

		fmt.Printf("\nReplayed %d ticks, %d run(s) closed", lineNo, runsClosed)
		if coord.HasOpenRun() {
			fmt.Print(", one run still open at end of file")
		}
		fmt.Println()

		return nil
	},
}

func init() {
	replayCmd.Flags().StringVarP(&replayFile, "file", "f", "", "JSON-lines sample stream to replay")
	replayCmd.Flags().StringVarP(&replayCSVOut, "csv-out", "o", "", "Optional CSV file to append each closed RunRecord to")
	replayCmd.Flags().StringVar(&replayYAMLOut, "yaml-out", "", "Optional YAML file to append each closed RunRecord to")
	rootCmd.AddCommand(replayCmd)
}
