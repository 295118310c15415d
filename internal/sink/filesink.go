package sink

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kbuckham/zonewatch/internal/coordinator"
)

const writeDeadline = 5 * time.Second

// FileSink is the reference Sink: a checkpoint JSON file per line
// (idempotent overwrite via write-then-rename), an append-only JSONL
// event/stage log per line, and one JSON file per closed run record.
// Writes that exceed writeDeadline are buffered in a DegradedQueue
// instead of blocking the caller.
type FileSink struct {
	dir string

	mu       sync.Mutex
	degraded *DegradedQueue
}

// NewFileSink creates (if needed) dir and returns a FileSink rooted there.
func NewFileSink(dir string) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create sink directory %s: %w", dir, err)
	}
	return &FileSink{
		dir:      dir,
		degraded: NewDegradedQueue(1024),
	}, nil
}

func (f *FileSink) checkpointPath(lineID string) string {
	return filepath.Join(f.dir, fmt.Sprintf("checkpoint-%s.json", lineID))
}

func (f *FileSink) eventLogPath(lineID string) string {
	return filepath.Join(f.dir, fmt.Sprintf("events-%s.jsonl", lineID))
}

func (f *FileSink) runRecordPath(lineID, runID string) string {
	return filepath.Join(f.dir, fmt.Sprintf("run-%s-%s.json", lineID, runID))
}

// DegradedQueueLen reports how many writes are buffered awaiting retry,
// for status reporting.
func (f *FileSink) DegradedQueueLen() int { return f.degraded.Len() }

// withDeadline runs fn on its own goroutine and gives it writeDeadline to
// finish; a slow write is abandoned to the caller (who gets an error) and
// queued for retry on a later call, mirroring spec's "retry once on the
// next tick, then degrade" write-timeout behavior. A successful call also
// opportunistically drains anything still buffered from an earlier stall.
func (f *FileSink) withDeadline(terminal bool, fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()

	select {
	case err := <-done:
		if err == nil {
			f.degraded.Drain()
		}
		return err
	case <-time.After(writeDeadline):
		f.degraded.Push(terminal, fn)
		return fmt.Errorf("state sink write exceeded %s deadline; buffered for retry", writeDeadline)
	}
}

func appendJSONLine(path string, v any) error {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		return fmt.Errorf("failed to append to %s: %w", path, err)
	}
	return w.Flush()
}

// SaveRuntimeState overwrites the line's checkpoint blob atomically
// (write to a temp file, then rename) so a reader never observes a
// half-written checkpoint.
func (f *FileSink) SaveRuntimeState(lineID string, blob []byte) error {
	return f.withDeadline(false, func() error {
		f.mu.Lock()
		defer f.mu.Unlock()

		tmp := f.checkpointPath(lineID) + ".tmp"
		if err := os.WriteFile(tmp, blob, 0o644); err != nil {
			return fmt.Errorf("failed to write checkpoint: %w", err)
		}
		if err := os.Rename(tmp, f.checkpointPath(lineID)); err != nil {
			return fmt.Errorf("failed to commit checkpoint: %w", err)
		}
		return nil
	})
}

// LoadRuntimeState returns (blob, true, nil) if a checkpoint exists for
// lineID, or (nil, false, nil) if this is a fresh start.
func (f *FileSink) LoadRuntimeState(lineID string) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	blob, err := os.ReadFile(f.checkpointPath(lineID))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read checkpoint: %w", err)
	}
	return blob, true, nil
}

type eventLogEntry struct {
	Kind  string                   `json:"kind"`
	Event *coordinator.OutputEvent `json:"event,omitempty"`
	Stage *coordinator.StageRecord `json:"stage,omitempty"`
}

// AppendEvent appends one observability event to the line's log.
// Best-effort: a dropped event must not corrupt runtime state.
func (f *FileSink) AppendEvent(lineID string, ev coordinator.OutputEvent) error {
	return f.withDeadline(false, func() error {
		f.mu.Lock()
		defer f.mu.Unlock()
		return appendJSONLine(f.eventLogPath(lineID), eventLogEntry{Kind: "event", Event: &ev})
	})
}

// OnStageClosed appends a finalized stage record to the line's log.
func (f *FileSink) OnStageClosed(lineID string, rec coordinator.StageRecord) error {
	return f.withDeadline(false, func() error {
		f.mu.Lock()
		defer f.mu.Unlock()
		return appendJSONLine(f.eventLogPath(lineID), eventLogEntry{Kind: "stage_closed", Stage: &rec})
	})
}

// OnRunClosed persists the closed run record as its own file. This write
// is terminal: the degraded queue must never drop it, per spec's
// exactly-once on_run_closed guarantee.
func (f *FileSink) OnRunClosed(lineID string, rec coordinator.RunRecord) error {
	return f.withDeadline(true, func() error {
		f.mu.Lock()
		defer f.mu.Unlock()

		blob, err := json.MarshalIndent(rec, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal run record: %w", err)
		}
		if err := os.WriteFile(f.runRecordPath(lineID, rec.RunID), blob, 0o644); err != nil {
			return fmt.Errorf("failed to write run record: %w", err)
		}
		return appendJSONLine(f.eventLogPath(lineID), eventLogEntry{Kind: "run_closed"})
	})
}
