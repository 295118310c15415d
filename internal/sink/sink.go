// Package sink implements the State Sink boundary: a narrow persistence
// interface the worker calls once per tick, plus a bounded in-memory
// buffer for write timeouts and a file-backed reference implementation.
package sink

import (
	"sync"

	"github.com/kbuckham/zonewatch/internal/coordinator"
)

// Sink is the boundary the core requires from whatever persists state.
// Implementations must treat OnRunClosed as exactly-once: it is the
// durability point the worker relies on for "never lose a finished run".
type Sink interface {
	SaveRuntimeState(lineID string, blob []byte) error
	LoadRuntimeState(lineID string) ([]byte, bool, error)
	AppendEvent(lineID string, ev coordinator.OutputEvent) error
	OnStageClosed(lineID string, rec coordinator.StageRecord) error
	OnRunClosed(lineID string, rec coordinator.RunRecord) error
}

type queued struct {
	terminal bool
	retry    func() error
}

// DegradedQueue buffers failed Sink writes for retry on a later tick,
// instead of blocking the worker when the underlying store is slow or
// unavailable. Overflow drops the oldest non-terminal entry first;
// terminal entries (on_run_closed) are never dropped.
type DegradedQueue struct {
	mu       sync.Mutex
	capacity int
	items    []queued
}

// NewDegradedQueue returns an empty queue bounded at capacity.
func NewDegradedQueue(capacity int) *DegradedQueue {
	return &DegradedQueue{capacity: capacity}
}

// Push buffers a retry closure. terminal marks a write (on_run_closed)
// that must survive overflow.
func (q *DegradedQueue) Push(terminal bool, retry func() error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) >= q.capacity {
		for i, it := range q.items {
			if !it.terminal {
				q.items = append(q.items[:i], q.items[i+1:]...)
				break
			}
		}
	}
	q.items = append(q.items, queued{terminal: terminal, retry: retry})
}

// Drain retries every buffered write in order, keeping whatever still
// fails (in its original relative order, ahead of anything pushed since).
func (q *DegradedQueue) Drain() {
	q.mu.Lock()
	pending := q.items
	q.items = nil
	q.mu.Unlock()

	if len(pending) == 0 {
		return
	}

	var remaining []queued
	for _, it := range pending {
		if err := it.retry(); err != nil {
			remaining = append(remaining, it)
		}
	}
	if len(remaining) > 0 {
		q.mu.Lock()
		q.items = append(remaining, q.items...)
		q.mu.Unlock()
	}
}

// Len reports how many writes are currently buffered awaiting retry.
func (q *DegradedQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
