package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/kbuckham/zonewatch/internal/coordinator"
	"github.com/kbuckham/zonewatch/internal/sink"
	"github.com/kbuckham/zonewatch/internal/zone"
	"github.com/spf13/cobra"
)

var statusLineID string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show a line's current run and per-zone stage state",
	RunE: func(cmd *cobra.Command, args []string) error {
		if statusLineID == "" {
			return fmt.Errorf("--line is required")
		}

		sk, err := sink.NewFileSink(cfgSinkDir)
		if err != nil {
			return fmt.Errorf("failed to open state sink: %w", err)
		}

		blob, ok, err := sk.LoadRuntimeState(statusLineID)
		if err != nil {
			return fmt.Errorf("failed to read runtime state: %w", err)
		}
		if !ok {
			fmt.Printf("No runtime state recorded yet for line %q.\n", statusLineID)
			return nil
		}

		var cp coordinator.Checkpoint
		if err := json.Unmarshal(blob, &cp); err != nil {
			return fmt.Errorf("failed to decode runtime state: %w", err)
		}

		fmt.Printf("Line: %s\n", cp.LineID)
		if cp.Run == nil {
			fmt.Println("No run currently open.")
		} else {
			fmt.Printf("Open run: %s  started %s  current_zone_idx=%d\n",
				cp.Run.RunID, cp.Run.StartedAt.Format("2006-01-02 15:04:05"), cp.Run.CurrentZoneIdx)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ZONE\tSTAGE\tBASELINE\tCONSECUTIVE_INVALID")
		fmt.Fprintln(w, "----\t-----\t--------\t-------------------")
		for _, z := range zone.CanonicalOrder {
			d, ok := cp.Detectors[z]
			if !ok {
				continue
			}
			fmt.Fprintf(w, "%s\t%s\t%.2f\t%d\n", z, d.Stage, d.Baseline, d.ConsecutiveInvalid)
		}
		w.Flush()

		return nil
	},
}

func init() {
	statusCmd.Flags().StringVarP(&statusLineID, "line", "l", "", "Line ID to inspect")
	rootCmd.AddCommand(statusCmd)
}
