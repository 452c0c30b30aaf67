// Package lock provides per-key mutual exclusion used to serialize
// read-modify-write sequences on a single user's affiliate state.
package lock

import (
	"context"
	"errors"
)

// ErrNotAcquired is returned when a lock could not be obtained before the context ended
var ErrNotAcquired = errors.New("lock not acquired")

// Locker hands out exclusive, per-key critical sections. Different keys never
// block each other.
type Locker interface {
	// Acquire blocks until the key is held or ctx is done. The returned release
	// func must be called exactly once.
	Acquire(ctx context.Context, key string) (release func(), err error)
}
