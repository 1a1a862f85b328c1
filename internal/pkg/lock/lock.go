// Package lock provides the per-booking advisory lock taken while a billing
// action is in flight.
package lock

import (
	"context"
	"errors"
	"time"
)

var ErrLocked = errors.New("lock is held")

// Release frees a lock. It is safe to call more than once.
type Release func()

type Locker interface {
	// Acquire takes key for ttl without waiting. It returns ErrLocked when the
	// key is held by someone else.
	Acquire(ctx context.Context, key string, ttl time.Duration) (Release, error)
}
