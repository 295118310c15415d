package cli

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kbuckham/zonewatch/internal/sample"
	"github.com/kbuckham/zonewatch/internal/sink"
	"github.com/kbuckham/zonewatch/internal/transport"
	"github.com/kbuckham/zonewatch/internal/worker"
	"github.com/spf13/cobra"
)

var (
	runPort     string
	runBaud     int
	runSimulate bool
	runSimSeed  int64
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start a line's Run Coordinator and keep it ticking until stopped",
	Long: `Connects to a sample source (a serial field controller, or an
in-process simulator) and drives the line's Run Coordinator at its
configured cadence, persisting checkpoints, events and closed runs
through the State Sink until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cfgConfigPath)
		if err != nil {
			return err
		}

		var src sample.Source
		if runSimulate || runPort == "" {
			fmt.Printf("Simulating %s (no --port given)\n", cfg.LineID)
			src = transport.NewSimulator(runSimSeed, cfg.SamplingPeriodS)
		} else {
			conn := transport.NewSerialConn(runPort, runBaud)
			if err := conn.Open(); err != nil {
				return fmt.Errorf("failed to open serial port: %w", err)
			}
			defer conn.Close()
			src = transport.NewSerialModbusSource(conn, nil)
		}

		sk, err := sink.NewFileSink(cfgSinkDir)
		if err != nil {
			return fmt.Errorf("failed to open state sink: %w", err)
		}

		w, err := worker.New(cfg, src, sk)
		if err != nil {
			return fmt.Errorf("failed to construct worker: %w", err)
		}

		fmt.Printf("Zonewatch — line %q, sampling every %s\n", cfg.LineID, cfg.SamplingPeriod())
		if err := w.Start(); err != nil {
			return fmt.Errorf("failed to start worker: %w", err)
		}

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		poll := time.NewTicker(500 * time.Millisecond)
		defer poll.Stop()

		for {
			select {
			case <-sigCh:
				fmt.Println("\nStopping...")
				w.Stop()
				return nil

			case <-poll.C:
				if reason, ok := readAndClearSentinel(abortRequestPath(cfgSinkDir, cfg.LineID)); ok {
					if rr, err := w.AbortRun(reason); err != nil {
						slog.Error("abort request failed", "line", cfg.LineID, "error", err)
					} else if rr != nil {
						fmt.Printf("Run %s aborted: %s\n", rr.RunID, reason)
					}
				}

				if newPath, ok := readAndClearSentinel(reloadPendingPath(cfgSinkDir, cfg.LineID)); ok {
					if w.HasOpenRun() {
						// Put the request back so it is applied once the run closes.
						if err := writeSentinel(reloadPendingPath(cfgSinkDir, cfg.LineID), newPath); err != nil {
							slog.Error("failed to re-queue config reload", "line", cfg.LineID, "error", err)
						}
						slog.Debug("config reload deferred: a run is still open", "line", cfg.LineID)
					} else {
						newCfg, err := loadConfig(newPath)
						if err != nil {
							slog.Error("config reload failed", "line", cfg.LineID, "error", err)
							continue
						}
						w.Stop()
						nw, err := worker.New(newCfg, src, sk)
						if err != nil {
							slog.Error("failed to rebuild worker with reloaded config", "line", cfg.LineID, "error", err)
							continue
						}
						w = nw
						cfg = newCfg
						if err := w.Start(); err != nil {
							slog.Error("failed to restart worker after reload", "line", cfg.LineID, "error", err)
							continue
						}
						fmt.Printf("Config reloaded from %s\n", newPath)
					}
				}
			}
		}
	},
}

func init() {
	runCmd.Flags().StringVarP(&runPort, "port", "p", "", "Serial port for a field controller (e.g. /dev/ttyUSB0, COM3)")
	runCmd.Flags().IntVarP(&runBaud, "baud", "b", transport.DefaultBaudRate, "Serial baud rate")
	runCmd.Flags().BoolVar(&runSimulate, "simulate", false, "Force the in-process simulator even if --port is set")
	runCmd.Flags().Int64Var(&runSimSeed, "sim-seed", 1, "Simulator noise seed")
	rootCmd.AddCommand(runCmd)
}
