package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	reloadLineID string
	reloadFile   string
)

var reloadConfigCmd = &cobra.Command{
	Use:   "reload-config",
	Short: "Queue a config reload for a line's next run",
	Long: `Validates the given config file and queues it for the running
"zonewatch run" process: since a line's config is immutable for the
duration of an open run (spec: configuration ingress), the reload only
takes effect once the current run, if any, has closed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if reloadLineID == "" {
			return fmt.Errorf("--line is required")
		}
		if reloadFile == "" {
			return fmt.Errorf("--file is required")
		}

		if _, err := loadConfig(reloadFile); err != nil {
			return fmt.Errorf("refusing to queue an invalid config: %w", err)
		}

		if err := writeSentinel(reloadPendingPath(cfgSinkDir, reloadLineID), reloadFile); err != nil {
			return err
		}
		fmt.Printf("Config reload queued for line %q from %s\n", reloadLineID, reloadFile)
		return nil
	},
}

func init() {
	reloadConfigCmd.Flags().StringVarP(&reloadLineID, "line", "l", "", "Line ID to reload")
	reloadConfigCmd.Flags().StringVarP(&reloadFile, "file", "f", "", "New YAML config file")
	rootCmd.AddCommand(reloadConfigCmd)
}
