// Package monitor implements the daemon that owns a home directory: it
// discovers new session directories, registers them with the scheduler,
// advances the scheduler on a polling interval, persists recovery state
// between iterations, and reports completed sessions for archival.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stokerproj/stoker/internal/logging"
	"github.com/stokerproj/stoker/internal/store"
	"github.com/stokerproj/stoker/pkg/domain"
	"github.com/stokerproj/stoker/pkg/ports"
	"github.com/stokerproj/stoker/pkg/scheduler"
)

// SnapshotVersion is the schema version this daemon writes and the only one
// it accepts on load. A mismatch is fatal; there is no silent upgrade.
const SnapshotVersion = 1

// StopCondition names an optional loop exit rule.
type StopCondition string

const (
	// StopNever loops until niter is exhausted or the context ends.
	StopNever StopCondition = ""
	// StopNoSession exits once no sessions remain registered.
	StopNoSession StopCondition = "nosession"
)

// CompletionHook is called once per newly completed session, after it has
// been deregistered. Archival of the directory belongs to the hook, not to
// the monitor.
type CompletionHook func(sessionID string) error

// Monitor is the daemon. One instance per home directory; the directory
// lock keeps concurrent instances out.
type Monitor struct {
	home       string
	archive    string
	bundleName string
	lockWait   int

	sched  *scheduler.Scheduler
	store  ports.SnapshotStore
	locker ports.Locker

	registered map[string]bool

	onComplete CompletionHook
	metrics    *Metrics
	logger     *slog.Logger
	clock      clock.Clock
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithLogger sets the monitor's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Monitor) { m.logger = logger }
}

// WithClock substitutes the wall clock, for tests.
func WithClock(c clock.Clock) Option {
	return func(m *Monitor) { m.clock = c }
}

// WithStore overrides the snapshot store (default: stoker.state.json in home).
func WithStore(store ports.SnapshotStore) Option {
	return func(m *Monitor) { m.store = store }
}

// WithLocker overrides the directory locker.
func WithLocker(locker ports.Locker) Option {
	return func(m *Monitor) { m.locker = locker }
}

// WithBundleName overrides the bundle file name looked for in session dirs.
func WithBundleName(name string) Option {
	return func(m *Monitor) { m.bundleName = name }
}

// WithLockWait bounds the lock acquisition wait, in poll quanta.
func WithLockWait(n int) Option {
	return func(m *Monitor) { m.lockWait = n }
}

// WithCompletionHook installs the archival callback.
func WithCompletionHook(hook CompletionHook) Option {
	return func(m *Monitor) { m.onComplete = hook }
}

// WithMetrics installs Prometheus collectors.
func WithMetrics(metrics *Metrics) Option {
	return func(m *Monitor) { m.metrics = metrics }
}

// New creates a Monitor over home, ensuring home and archive exist.
// Relative archive paths are resolved under home. Directory creation
// failures are configuration errors and fatal.
func New(home, archive string, sched *scheduler.Scheduler, locker ports.Locker, opts ...Option) (*Monitor, error) {
	home, err := filepath.Abs(home)
	if err != nil {
		return nil, fmt.Errorf("monitor: resolve home: %w", err)
	}
	if !filepath.IsAbs(archive) {
		archive = filepath.Join(home, archive)
	}

	m := &Monitor{
		home:       home,
		archive:    archive,
		bundleName: domain.DefaultBundleName,
		lockWait:   12,
		sched:      sched,
		locker:     locker,
		registered: make(map[string]bool),
		logger:     logging.NewNop(),
		clock:      clock.New(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.store == nil {
		m.store = store.NewFileStore(filepath.Join(m.home, store.DefaultFileName))
	}

	for _, dir := range []string{m.home, m.archive} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("monitor: create %s: %w", dir, err)
		}
	}
	return m, nil
}

// RunOptions control one invocation of the daemon loop.
type RunOptions struct {
	// NIter bounds the number of iterations; zero means unbounded.
	NIter int
	// Verbose prints the session table to stdout each tick.
	Verbose bool
	// StopCond optionally ends the loop early.
	StopCond StopCondition
	// Interval is the pause between iterations.
	Interval time.Duration
}

// Run executes the daemon loop. It takes the directory lock for the whole
// invocation and restores the previous working directory on the way out,
// error or not.
func (m *Monitor) Run(ctx context.Context, opts RunOptions) (err error) {
	if opts.Interval <= 0 {
		opts.Interval = 10 * time.Second
	}

	prev, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("monitor: getwd: %w", err)
	}
	if err := os.Chdir(m.home); err != nil {
		return fmt.Errorf("monitor: enter home %s: %w", m.home, err)
	}
	defer func() {
		if cerr := os.Chdir(prev); cerr != nil && err == nil {
			err = fmt.Errorf("monitor: restore working directory: %w", cerr)
		}
	}()

	if err := m.locker.Acquire(ctx, m.home, m.lockWait); err != nil {
		return fmt.Errorf("monitor: %w", err)
	}
	defer func() {
		if rerr := m.locker.Release(context.WithoutCancel(ctx), m.home); rerr != nil && err == nil {
			err = fmt.Errorf("monitor: %w", rerr)
		}
	}()

	if err := m.load(ctx); err != nil {
		return err
	}

	for iter := 0; opts.NIter == 0 || iter < opts.NIter; iter++ {
		if iter > 0 {
			if err := m.sleep(ctx, opts.Interval); err != nil {
				return err
			}
		}
		stop, err := m.iterate(ctx, opts)
		if err != nil {
			return err
		}
		if stop {
			break
		}
	}
	return nil
}

// iterate runs one daemon cycle: discover, register, tick, deregister,
// persist, evaluate the stop condition.
func (m *Monitor) iterate(ctx context.Context, opts RunOptions) (stop bool, err error) {
	dirs, err := m.discover()
	if err != nil {
		return false, err
	}
	m.logger.Debug("session directories", "dirs", dirs)

	for _, dir := range dirs {
		if m.registered[dir] {
			continue
		}
		m.logger.Info("new session discovered", "session", dir)
		if err := m.register(dir); err != nil {
			if errors.Is(err, errSessionVanished) {
				m.logger.Warn("session directory vanished during registration", "session", dir)
				continue
			}
			return false, fmt.Errorf("monitor: register %s: %w", dir, err)
		}
		m.registered[dir] = true
	}

	completed, err := m.sched.Tick(ctx)
	if err != nil {
		return false, err
	}
	m.metrics.tick()

	if opts.Verbose {
		fmt.Print(m.sched.TableString())
	}

	for _, id := range completed {
		delete(m.registered, id)
		if err := m.sched.RemoveSession(id); err != nil {
			return false, fmt.Errorf("monitor: deregister %s: %w", id, err)
		}
		m.logger.Info("session complete", "session", id)
		if m.onComplete != nil {
			if err := m.onComplete(id); err != nil {
				return false, fmt.Errorf("monitor: completion hook %s: %w", id, err)
			}
		}
	}
	m.metrics.completed(len(completed))
	m.metrics.observe(m.sched, len(m.registered))

	if err := m.save(ctx); err != nil {
		return false, err
	}

	if opts.StopCond == StopNoSession && len(m.registered) == 0 {
		return true, nil
	}
	return false, nil
}

// Registered returns the currently registered session ids, sorted.
func (m *Monitor) Registered() []string {
	ids := make([]string, 0, len(m.registered))
	for id := range m.registered {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Scheduler exposes the underlying scheduler for read-only consumers
// (the status API).
func (m *Monitor) Scheduler() *scheduler.Scheduler {
	return m.sched
}

func (m *Monitor) sleep(ctx context.Context, d time.Duration) error {
	timer := m.clock.Timer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// load restores registration and scheduler state from the last snapshot.
// No snapshot means first run.
func (m *Monitor) load(ctx context.Context) error {
	snap, err := m.store.Load(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrSnapshotNotFound) {
			m.logger.Info("no snapshot, starting empty")
			return nil
		}
		return fmt.Errorf("monitor: %w", err)
	}
	if snap.Version != SnapshotVersion {
		return fmt.Errorf("monitor: snapshot is version %d, daemon expects %d: %w",
			snap.Version, SnapshotVersion, domain.ErrVersionMismatch)
	}
	if err := m.sched.Restore(snap.Sessions); err != nil {
		return fmt.Errorf("monitor: %w", err)
	}
	m.registered = make(map[string]bool, len(snap.Registered))
	for _, id := range snap.Registered {
		m.registered[id] = true
	}
	m.logger.Info("snapshot restored", "sessions", len(snap.Registered), "saved_at", snap.SavedAt)
	return nil
}

// save persists the full recovery state. Only the lock holder ever writes
// the snapshot.
func (m *Monitor) save(ctx context.Context) error {
	snap := &domain.Snapshot{
		Version:    SnapshotVersion,
		SavedAt:    m.clock.Now(),
		Registered: m.Registered(),
		Sessions:   m.sched.Export(),
	}
	if err := m.store.Save(ctx, snap); err != nil {
		return fmt.Errorf("monitor: %w", err)
	}
	return nil
}
