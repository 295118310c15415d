// Package cli implements the control surface: start a line's worker in
// the foreground, inspect its live state, abort an open run, queue a
// config reload for the next run, list configured zones, and replay a
// recorded sample stream offline. One *cobra.Command per file, exactly
// as the teacher's internal/cli package.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/kbuckham/zonewatch/internal/version"
	"github.com/spf13/cobra"
)

var (
	cfgConfigPath string
	cfgSinkDir    string
	cfgVerbose    bool
	cfgLogFile    string
)

// rootCmd is the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:     "zonewatch",
	Short:   "Zonewatch — multi-zone heating cycle monitor",
	Version: version.FullVersion(),
	Long: fmt.Sprintf(`%s v%s
%s

Use subcommands for headless operation (run, status, abort, reload-config, replay, zones).`,
		version.Name, version.Version, version.Description),
}

var aboutCmd = &cobra.Command{
	Use:   "about",
	Short: "Show application information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("%s v%s\n", version.Name, version.FullVersion())
		fmt.Println()
		fmt.Println(version.Description)
		fmt.Println()
		fmt.Printf("Developers:  %s\n", version.Developers)
		fmt.Printf("License:     %s\n", version.License)
		fmt.Println(version.Copyright)
		fmt.Printf("Source:      %s\n", version.URL)
		fmt.Printf("Git hash:    %s\n", version.GitHash)
		fmt.Printf("Built:       %s\n", version.BuildTime)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgConfigPath, "config", "c", "", "Path to the line's YAML config (defaults built in if empty)")
	rootCmd.PersistentFlags().StringVarP(&cfgSinkDir, "sink-dir", "d", "./zonewatch-data", "Directory the file-backed State Sink reads and writes")
	rootCmd.PersistentFlags().BoolVarP(&cfgVerbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&cfgLogFile, "log-file", "", "Write log output to file")
	rootCmd.AddCommand(aboutCmd)

	cobra.OnInitialize(initLogging)
}

func initLogging() {
	level := slog.LevelInfo
	if cfgVerbose {
		level = slog.LevelDebug
	}

	var w io.Writer = os.Stderr
	if cfgLogFile != "" {
		f, err := os.OpenFile(cfgLogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not open log file %s: %v\n", cfgLogFile, err)
		} else {
			w = io.MultiWriter(os.Stderr, f)
		}
	}

	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
