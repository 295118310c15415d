package sink

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kbuckham/zonewatch/internal/coordinator"
)

func TestFileSinkCheckpointRoundTrip(t *testing.T) {
	fs, err := NewFileSink(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileSink: %v", err)
	}

	if _, ok, err := fs.LoadRuntimeState("line-1"); err != nil || ok {
		t.Fatalf("expected no checkpoint on a fresh sink, got ok=%v err=%v", ok, err)
	}

	blob := []byte(`{"stage":"ramp"}`)
	if err := fs.SaveRuntimeState("line-1", blob); err != nil {
		t.Fatalf("SaveRuntimeState: %v", err)
	}

	got, ok, err := fs.LoadRuntimeState("line-1")
	if err != nil || !ok {
		t.Fatalf("expected a checkpoint after save, ok=%v err=%v", ok, err)
	}
	if string(got) != string(blob) {
		t.Fatalf("loaded blob = %q, want %q", got, blob)
	}

	// Overwrite must be idempotent, not append.
	blob2 := []byte(`{"stage":"stable"}`)
	if err := fs.SaveRuntimeState("line-1", blob2); err != nil {
		t.Fatalf("SaveRuntimeState overwrite: %v", err)
	}
	got2, _, _ := fs.LoadRuntimeState("line-1")
	if string(got2) != string(blob2) {
		t.Fatalf("loaded blob after overwrite = %q, want %q", got2, blob2)
	}
}

func TestFileSinkAppendsEventLog(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileSink(dir)
	if err != nil {
		t.Fatalf("NewFileSink: %v", err)
	}

	ev := coordinator.OutputEvent{T: time.Unix(1700000000, 0), Kind: "ramp_started", Detail: "baseline=75"}
	if err := fs.AppendEvent("line-1", ev); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}
	if err := fs.OnStageClosed("line-1", coordinator.StageRecord{SetpointF: 300}); err != nil {
		t.Fatalf("OnStageClosed: %v", err)
	}
	if err := fs.OnRunClosed("line-1", coordinator.RunRecord{RunID: "r1", LineID: "line-1"}); err != nil {
		t.Fatalf("OnRunClosed: %v", err)
	}

	path := filepath.Join(dir, "events-line-1.jsonl")
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading event log: %v", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	var kinds []string
	for {
		var entry eventLogEntry
		if err := dec.Decode(&entry); err != nil {
			break
		}
		kinds = append(kinds, entry.Kind)
	}
	if len(kinds) != 3 || kinds[0] != "event" || kinds[1] != "stage_closed" || kinds[2] != "run_closed" {
		t.Fatalf("event log kinds = %v, want [event stage_closed run_closed]", kinds)
	}

	runPath := filepath.Join(dir, "run-line-1-r1.json")
	if _, err := os.Stat(runPath); err != nil {
		t.Fatalf("expected a run record file: %v", err)
	}
}

func TestDegradedQueueDropsOldestNonTerminalOnOverflow(t *testing.T) {
	q := NewDegradedQueue(2)

	var calls []string
	mk := func(name string) func() error {
		return func() error {
			calls = append(calls, name)
			return errors.New("still failing")
		}
	}

	q.Push(false, mk("a"))
	q.Push(false, mk("b"))
	q.Push(false, mk("c")) // overflow: drops "a"

	if q.Len() != 2 {
		t.Fatalf("queue len = %d, want 2", q.Len())
	}

	q.Drain()
	if len(calls) != 2 || calls[0] != "b" || calls[1] != "c" {
		t.Fatalf("drain order = %v, want [b c] (a must have been dropped)", calls)
	}
}

func TestDegradedQueueNeverDropsTerminal(t *testing.T) {
	q := NewDegradedQueue(1)

	var terminalRetried bool
	q.Push(true, func() error { terminalRetried = true; return errors.New("fail") })
	q.Push(false, func() error { return errors.New("fail") }) // would overflow capacity 1

	if q.Len() < 1 {
		t.Fatalf("terminal entry must survive overflow")
	}

	q.Drain()
	if !terminalRetried {
		t.Fatalf("terminal entry was dropped on overflow: its retry never ran")
	}
	if q.Len() == 0 {
		t.Fatalf("both retries failed; queue should still hold the terminal entry")
	}
}

func TestFileSinkRejectsUnwritableDir(t *testing.T) {
	_, err := NewFileSink(filepath.Join(string(os.PathSeparator), "proc", "zonewatch-should-not-be-creatable"))
	if err == nil {
		t.Fatalf("expected NewFileSink to fail against an unwritable path")
	}
}
