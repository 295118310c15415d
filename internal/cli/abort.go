package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var (
	abortLineID string
	abortReason string
	abortYes    bool
)

var abortCmd = &cobra.Command{
	Use:   "abort",
	Short: "Request that a line's open run be aborted",
	Long: `Signals the running "zonewatch run" process for a line to close its
open run immediately as Aborted. Delivered as a sentinel file in the
sink directory — the run process checks for it every 500 ms.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if abortLineID == "" {
			return fmt.Errorf("--line is required")
		}
		if !abortYes && !confirmPrompt(fmt.Sprintf("Abort the open run on line %q?", abortLineID)) {
			fmt.Println("Aborted request cancelled.")
			return nil
		}

		reason := abortReason
		if reason == "" {
			reason = "operator requested abort via CLI"
		}
		if err := writeSentinel(abortRequestPath(cfgSinkDir, abortLineID), reason); err != nil {
			return err
		}
		fmt.Printf("Abort requested for line %q: %s\n", abortLineID, reason)
		return nil
	},
}

// confirmPrompt asks the user for y/N confirmation, matching the
// teacher's root.go helper.
func confirmPrompt(msg string) bool {
	fmt.Printf("%s (y/N): ", msg)
	reader := bufio.NewReader(os.Stdin)
	line, _ := reader.ReadString('\n')
	line = strings.TrimSpace(strings.ToLower(line))
	return line == "y" || line == "yes"
}

func init() {
	abortCmd.Flags().StringVarP(&abortLineID, "line", "l", "", "Line ID to abort")
	abortCmd.Flags().StringVarP(&abortReason, "reason", "r", "", "Reason recorded on the aborted RunRecord")
	abortCmd.Flags().BoolVarP(&abortYes, "yes", "y", false, "Skip the confirmation prompt")
	rootCmd.AddCommand(abortCmd)
}
