// Package lock implements the advisory directory lock that serializes
// daemon instances over a shared home directory.
//
// The lock is a marker file inside the directory. Presence means locked;
// the content (acquisition time and holder id) is advisory, for operator
// forensics only. A crashed holder leaves the marker behind, and later
// acquirers time out instead of breaking the lock.
package lock

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/xid"
	"github.com/stokerproj/stoker/pkg/domain"
	"github.com/stokerproj/stoker/pkg/ports"
)

// Marker is the lock file name inside a locked directory.
const Marker = ".stoker.lock"

// DefaultQuantum is the fixed wait between acquisition attempts.
const DefaultQuantum = 5 * time.Second

// FileLock locks directories with a marker file. Not re-entrant: a holder
// calling Acquire again waits on its own marker.
type FileLock struct {
	clock   clock.Clock
	quantum time.Duration
	holder  string
}

var _ ports.Locker = (*FileLock)(nil)

// Option configures a FileLock.
type Option func(*FileLock)

// WithClock substitutes the wall clock, for tests.
func WithClock(c clock.Clock) Option {
	return func(l *FileLock) { l.clock = c }
}

// WithQuantum overrides the poll quantum.
func WithQuantum(d time.Duration) Option {
	return func(l *FileLock) { l.quantum = d }
}

// New creates a FileLock with a fresh holder id.
func New(opts ...Option) *FileLock {
	l := &FileLock{
		clock:   clock.New(),
		quantum: DefaultQuantum,
		holder:  xid.New().String(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Locked reports whether dir currently carries a lock marker.
func Locked(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, Marker))
	return err == nil
}

// Acquire takes the lock on dir. While another holder's marker exists it
// polls once per quantum, up to maxWait times, then fails with
// domain.ErrLockTimeout.
func (l *FileLock) Acquire(ctx context.Context, dir string, maxWait int) error {
	if maxWait < 1 {
		maxWait = 1
	}
	if Locked(dir) {
		if err := l.wait(ctx, dir, maxWait); err != nil {
			return err
		}
	}
	content := fmt.Sprintf("%s %s\n", l.clock.Now().Format(time.RFC3339), l.holder)
	if err := os.WriteFile(filepath.Join(dir, Marker), []byte(content), 0644); err != nil {
		return fmt.Errorf("lock %s: %w", dir, err)
	}
	return nil
}

// Release removes the marker. Releasing an unlocked directory is an error.
func (l *FileLock) Release(ctx context.Context, dir string) error {
	err := os.Remove(filepath.Join(dir, Marker))
	if os.IsNotExist(err) {
		return fmt.Errorf("unlock %s: %w", dir, domain.ErrNotLocked)
	}
	return err
}

func (l *FileLock) wait(ctx context.Context, dir string, maxWait int) error {
	timer := l.clock.Timer(l.quantum)
	defer timer.Stop()
	for attempt := 1; attempt < maxWait; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
		if !Locked(dir) {
			return nil
		}
		timer.Reset(l.quantum)
	}
	if Locked(dir) {
		return fmt.Errorf("lock %s: %w after %d attempts", dir, domain.ErrLockTimeout, maxWait)
	}
	return nil
}
