package ports

import "context"

// Locker serializes daemon instances over a shared home directory.
// At most one holder at a time; a holder must release explicitly. A crashed
// holder leaves the lock held, and later acquirers fail with
// domain.ErrLockTimeout rather than breaking the lock.
type Locker interface {
	// Acquire takes the lock for key, polling a fixed quantum up to
	// maxWait times while it is held elsewhere.
	Acquire(ctx context.Context, key string, maxWait int) error

	// Release drops the lock. Returns domain.ErrNotLocked if key is not held.
	Release(ctx context.Context, key string) error
}
