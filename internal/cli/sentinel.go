package cli

import (
	"fmt"
	"os"
	"path/filepath"
)

// abortRequestPath and reloadPendingPath are the simple file-based
// signalling channel between a short-lived control-surface invocation
// (abort, reload-config) and the long-running run process watching the
// same sink directory — there is no IPC server in this CLI, so a
// sentinel file plays that role, the way the teacher's --log-file flag
// and tabwriter output are plain filesystem primitives rather than a
// bespoke protocol.
func abortRequestPath(dir, lineID string) string {
	return filepath.Join(dir, fmt.Sprintf("abort-%s.request", lineID))
}

func reloadPendingPath(dir, lineID string) string {
	return filepath.Join(dir, fmt.Sprintf("reload-%s.pending", lineID))
}

func writeSentinel(path, contents string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create sink directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		return fmt.Errorf("failed to write sentinel %s: %w", path, err)
	}
	return nil
}

// readAndClearSentinel returns the sentinel's contents and true if it
// exists, deleting it so the request is consumed exactly once.
func readAndClearSentinel(path string) (string, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	os.Remove(path)
	return string(data), true
}
