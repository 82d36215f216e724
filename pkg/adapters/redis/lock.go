// Package redis provides a Redis-backed Locker for installations whose home
// directory sits on a shared filesystem without dependable lockfile
// semantics (NFS without lock daemons, some parallel filesystems).
//
// It mirrors the file lock's contract exactly: bounded polling at a fixed
// quantum, explicit release, no auto-expiry. A crashed holder leaves the key
// behind and later acquirers time out, the same fail-safe trade-off the
// marker file makes.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	backend "github.com/redis/go-redis/v9"
	"github.com/rs/xid"
	"github.com/stokerproj/stoker/pkg/domain"
	"github.com/stokerproj/stoker/pkg/ports"
)

// Locker implements ports.Locker on Redis SET NX.
type Locker struct {
	client  *backend.Client
	prefix  string
	clock   clock.Clock
	quantum time.Duration
	holder  string
}

var _ ports.Locker = (*Locker)(nil)

// Option configures a Locker.
type Option func(*Locker)

// WithClock substitutes the wall clock, for tests.
func WithClock(c clock.Clock) Option {
	return func(l *Locker) { l.clock = c }
}

// WithQuantum overrides the poll quantum.
func WithQuantum(d time.Duration) Option {
	return func(l *Locker) { l.quantum = d }
}

// NewLocker creates a Redis locker with a fresh holder id.
func NewLocker(client *backend.Client, prefix string, opts ...Option) *Locker {
	l := &Locker{
		client:  client,
		prefix:  prefix,
		clock:   clock.New(),
		quantum: 5 * time.Second,
		holder:  xid.New().String(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Locker) key(name string) string {
	return l.prefix + "lock:" + name
}

// Acquire takes the lock for key, polling up to maxWait times.
func (l *Locker) Acquire(ctx context.Context, key string, maxWait int) error {
	if maxWait < 1 {
		maxWait = 1
	}
	val := fmt.Sprintf("%s %s", l.clock.Now().Format(time.RFC3339), l.holder)

	// No TTL: the lock is held until an explicit Release, matching the
	// file lock. Attempt, then sleep a quantum between retries.
	for attempt := 0; attempt < maxWait; attempt++ {
		if attempt > 0 {
			timer := l.clock.Timer(l.quantum)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
		ok, err := l.client.SetNX(ctx, l.key(key), val, 0).Result()
		if err != nil {
			return fmt.Errorf("redis lock %s: %w", key, err)
		}
		if ok {
			return nil
		}
	}
	return fmt.Errorf("redis lock %s: %w after %d attempts", key, domain.ErrLockTimeout, maxWait)
}

// Release drops the lock. Like the marker file, release is by key, not by
// holder: an operator cleaning up after a crashed daemon uses the same path.
func (l *Locker) Release(ctx context.Context, key string) error {
	n, err := l.client.Del(ctx, l.key(key)).Result()
	if err != nil {
		return fmt.Errorf("redis unlock %s: %w", key, err)
	}
	if n == 0 {
		return fmt.Errorf("redis unlock %s: %w", key, domain.ErrNotLocked)
	}
	return nil
}
