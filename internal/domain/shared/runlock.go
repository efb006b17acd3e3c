package shared

import (
	"context"
	"time"
)

// RunLocker grants exclusive ownership of a named run (one ingestion run per
// platform at a time).
type RunLocker interface {
	// Acquire tries to take the lock for key. It returns a release function
	// when the lock was taken, or ErrRunInProgress when someone else holds it.
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, err error)

	// Close releases resources held by the locker
	Close() error
}
