package cli

import (
	"path/filepath"
	"testing"
)

func TestSentinelRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := abortRequestPath(dir, "line-1")

	if _, ok := readAndClearSentinel(path); ok {
		t.Fatalf("expected no sentinel before it is written")
	}

	if err := writeSentinel(path, "operator stop"); err != nil {
		t.Fatalf("writeSentinel: %v", err)
	}

	got, ok := readAndClearSentinel(path)
	if !ok || got != "operator stop" {
		t.Fatalf("readAndClearSentinel = (%q, %v), want (%q, true)", got, ok, "operator stop")
	}

	// Consumed exactly once.
	if _, ok := readAndClearSentinel(path); ok {
		t.Fatalf("sentinel should have been removed after the first read")
	}
}

func TestReloadPendingPathDistinctFromAbort(t *testing.T) {
	dir := t.TempDir()
	if abortRequestPath(dir, "line-1") == reloadPendingPath(dir, "line-1") {
		t.Fatalf("abort and reload sentinels must not collide")
	}
	if filepath.Dir(abortRequestPath(dir, "line-1")) != dir {
		t.Fatalf("sentinel path must live under the sink directory")
	}
}
