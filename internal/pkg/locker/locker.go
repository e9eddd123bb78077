package locker

import (
	"context"
	"time"
)

// Locker claims a job exclusively across processes.
//
// Acquire must be atomic across processes (compare-and-set or equivalent).
// It returns false when another holder already owns the key. Locks are
// never released explicitly; they expire after ttl.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// UniqueID returns the lock id derived from key, for diagnostics.
	UniqueID(key string) string
	// Describe returns a human readable description of the lock store.
	Describe() string
}
