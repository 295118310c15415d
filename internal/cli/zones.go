package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/kbuckham/zonewatch/internal/zone"
	"github.com/spf13/cobra"
)

var zonesCmd = &cobra.Command{
	Use:   "zones",
	Short: "List configured zones and their stage-detection thresholds",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cfgConfigPath)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ZONE\tENABLED")
		fmt.Fprintln(w, "----\t-------")
		for _, z := range zone.CanonicalOrder {
			enabled := false
			switch z {
			case zone.Preheat:
				enabled = cfg.Zones.Preheat
			case zone.Main:
				enabled = cfg.Zones.Main
			case zone.Rib:
				enabled = cfg.Zones.Rib
			}
			fmt.Fprintf(w, "%s\t%v\n", z, enabled)
		}
		w.Flush()

		fmt.Println()
		fmt.Printf("tol_f=%.1f  delta_ramp_f=%.1f  dt_min_f_per_min=%.1f  t_stable_s=%.0f\n",
			cfg.TolF, cfg.DeltaRampF, cfg.DTMinFPerMin, cfg.TStableS)
		fmt.Printf("delta_off_f=%.1f  t_off_sustain_s=%.0f  s_min_f=%.1f  t_sp_sustain_s=%.0f\n",
			cfg.DeltaOffF, cfg.TOffSustainS, cfg.SMinF, cfg.TSpSustainS)
		fmt.Printf("max_ramp_s=%.0f  max_stage_s=%.0f  quiet_window_s=%.0f  dt_quiet_f_per_min=%.1f\n",
			cfg.MaxRampS, cfg.MaxStageS, cfg.QuietWindowS, cfg.DTQuietFPerMin)

		return nil
	},
}

func init() {
	rootCmd.AddCommand(zonesCmd)
}
