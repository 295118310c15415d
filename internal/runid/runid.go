// Package runid generates monotonically sortable run identifiers.
package runid

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// clockNow is overridable in tests.
var clockNow = time.Now

// New returns a ULID-like identifier: a millisecond timestamp prefix
// (so run ids sort lexically in start order) followed by a random UUID
// suffix for uniqueness within the same millisecond.
func New() string {
	ms := clockNow().UnixMilli()
	return fmt.Sprintf("%013d-%s", ms, uuid.New().String())
}
