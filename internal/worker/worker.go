// Package worker implements the FSM Worker: a monotonic-deadline tick
// loop that fetches one sample snapshot per cadence, folds it through a
// line's Run Coordinator, persists the result through a State Sink, and
// emits a liveness heartbeat.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kbuckham/zonewatch/internal/config"
	"github.com/kbuckham/zonewatch/internal/coordinator"
	"github.com/kbuckham/zonewatch/internal/sample"
	"github.com/kbuckham/zonewatch/internal/sink"
	"github.com/kbuckham/zonewatch/internal/zone"
)

// Worker drives one production line's Run Coordinator at
// cfg.SamplingPeriodS cadence.
type Worker struct {
	cfg    config.Config
	source sample.Source
	sink   sink.Sink

	mu       sync.Mutex
	running  bool
	cancel   context.CancelFunc
	coord    *coordinator.Coordinator
	lastTick time.Time
}

// New constructs a Worker for cfg.LineID, recovering a prior runtime-state
// checkpoint from sk if one exists, so a restart mid-run reconstitutes
// every zone's Welford moments exactly instead of replaying history.
func New(cfg config.Config, source sample.Source, sk sink.Sink) (*Worker, error) {
	coord := coordinator.New(cfg.LineID, cfg)

	blob, ok, err := sk.LoadRuntimeState(cfg.LineID)
	if err != nil {
		return nil, fmt.Errorf("failed to load runtime state for %s: %w", cfg.LineID, err)
	}
	if ok {
		var cp coordinator.Checkpoint
		if err := json.Unmarshal(blob, &cp); err != nil {
			return nil, fmt.Errorf("failed to decode runtime state for %s: %w", cfg.LineID, err)
		}
		coord = coordinator.FromCheckpoint(cp, cfg)
		slog.Info("recovered runtime state", "line", cfg.LineID, "open_run", coord.HasOpenRun())
	}

	return &Worker{cfg: cfg, source: source, sink: sk, coord: coord}, nil
}

// Start begins the tick loop in a goroutine. Calling Start on an already
// running Worker is a no-op. An invalid config is refused with an error
// and the loop does not start.
func (w *Worker) Start() error {
	if err := w.cfg.Validate(); err != nil {
		return fmt.Errorf("config invalid: %w", err)
	}
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.running = true
	w.mu.Unlock()

	go w.loop(ctx)
	slog.Info("worker started", "line", w.cfg.LineID, "period", w.cfg.SamplingPeriod())
	return nil
}

// Stop requests cancellation. The in-flight tick, if any, completes and
// persists before the loop exits; any open run remains open with
// termination=none and resumes on the next Start.
func (w *Worker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	w.cancel()
	w.running = false
	slog.Info("worker stopped", "line", w.cfg.LineID)
}

// IsRunning reports whether the tick loop is active.
func (w *Worker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// LastTick returns the wall-clock time of the most recently completed
// tick — the liveness heartbeat a supervisor polls to detect a stalled
// worker.
func (w *Worker) LastTick() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastTick
}

// HasOpenRun reports whether the line currently has a run in progress.
func (w *Worker) HasOpenRun() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.coord.HasOpenRun()
}

// AbortRun closes any open run as Aborted and persists it immediately,
// for the control surface's explicit abort_run(line_id) call.
func (w *Worker) AbortRun(reason string) (*coordinator.RunRecord, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	rr := w.coord.Abort(time.Now(), reason)
	if rr == nil {
		return nil, nil
	}
	if err := w.sink.OnRunClosed(w.cfg.LineID, *rr); err != nil {
		return rr, fmt.Errorf("failed to persist aborted run: %w", err)
	}
	return rr, w.persistCheckpointLocked()
}

func (w *Worker) persistCheckpointLocked() error {
	blob, err := json.Marshal(w.coord.ToCheckpoint())
	if err != nil {
		return fmt.Errorf("failed to encode runtime state: %w", err)
	}
	if err := w.sink.SaveRuntimeState(w.cfg.LineID, blob); err != nil {
		return fmt.Errorf("failed to save runtime state: %w", err)
	}
	return nil
}

// loop drives ticks on a monotonic deadline schedule: the next deadline
// is last_deadline + period, never now + period, so occasional slow
// ticks do not drift the cadence. A tick that overruns its period fires
// the next tick immediately once, then resynchronizes.
func (w *Worker) loop(ctx context.Context) {
	period := w.cfg.SamplingPeriod()
	deadline := time.Now().Add(period)

	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			w.tick(deadline)
			deadline = deadline.Add(period)
			if d := time.Until(deadline); d > 0 {
				timer.Reset(d)
			} else {
				// Skip any further missed deadlines: one catch-up tick only.
				for !deadline.Add(period).After(time.Now()) {
					deadline = deadline.Add(period)
				}
				timer.Reset(0)
			}
		}
	}
}

// tick runs the four steps of the worker contract once: fetch, fold,
// persist, heartbeat.
func (w *Worker) tick(deadline time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	snapshot := w.fetchSnapshotLocked(now)

	events, closedStages, closedRun := w.coord.Observe(now, snapshot)

	for _, ev := range events {
		if err := w.sink.AppendEvent(w.cfg.LineID, ev); err != nil {
			slog.Warn("failed to append event", "line", w.cfg.LineID, "error", err)
		}
	}
	for _, rec := range closedStages {
		if err := w.sink.OnStageClosed(w.cfg.LineID, rec); err != nil {
			slog.Warn("failed to persist closed stage", "line", w.cfg.LineID, "error", err)
		}
	}
	if closedRun != nil {
		if err := w.sink.OnRunClosed(w.cfg.LineID, *closedRun); err != nil {
			slog.Error("failed to persist closed run", "line", w.cfg.LineID, "run_id", closedRun.RunID, "error", err)
		}
	}
	if err := w.persistCheckpointLocked(); err != nil {
		slog.Warn("failed to persist runtime checkpoint", "line", w.cfg.LineID, "error", err)
	}

	w.lastTick = now
	slog.Debug("heartbeat", "line", w.cfg.LineID, "tick", now, "deadline", deadline)
}

// fetchSnapshotLocked pulls the latest sample per enabled zone, marking
// any sample older than max_age_s invalid rather than trusting stale data.
func (w *Worker) fetchSnapshotLocked(now time.Time) map[zone.Zone]sample.Sample {
	maxAge := w.cfg.MaxAge()
	out := make(map[zone.Zone]sample.Sample, 3)

	for _, z := range zone.EnabledOrder([]zone.Config{
		{Zone: zone.Preheat, Enabled: w.cfg.Zones.Preheat},
		{Zone: zone.Main, Enabled: w.cfg.Zones.Main},
		{Zone: zone.Rib, Enabled: w.cfg.Zones.Rib},
	}) {
		s, err := w.source.GetLatest(z)
		if err != nil {
			slog.Warn("sample source fetch failed", "line", w.cfg.LineID, "zone", z, "error", err)
			out[z] = sample.Sample{Zone: z, T: now, Wall: now, Valid: false}
			continue
		}
		if now.Sub(s.T) > maxAge {
			s.Valid = false
		}
		out[z] = s
	}
	return out
}
