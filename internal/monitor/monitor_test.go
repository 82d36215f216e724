package monitor_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stokerproj/stoker/internal/archive"
	"github.com/stokerproj/stoker/internal/lock"
	"github.com/stokerproj/stoker/internal/monitor"
	"github.com/stokerproj/stoker/internal/store"
	"github.com/stokerproj/stoker/internal/testutils"
	"github.com/stokerproj/stoker/pkg/domain"
	"github.com/stokerproj/stoker/pkg/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	home      string
	backend   *testutils.FakeBackend
	sched     *scheduler.Scheduler
	mon       *monitor.Monitor
	completed []string
}

func newFixture(t *testing.T, opts ...monitor.Option) *fixture {
	t.Helper()
	f := &fixture{home: t.TempDir(), backend: testutils.NewFakeBackend()}
	f.sched = scheduler.New(f.backend)

	// The hook mirrors production: record, then archive the directory so
	// the next scan does not rediscover the finished session.
	arch := archive.New(f.home, filepath.Join(f.home, "archive"))
	base := []monitor.Option{
		monitor.WithLockWait(2),
		monitor.WithCompletionHook(func(id string) error {
			f.completed = append(f.completed, id)
			return arch.Move(id)
		}),
	}
	locker := lock.New(lock.WithQuantum(time.Millisecond))
	mon, err := monitor.New(f.home, "archive", f.sched, locker, append(base, opts...)...)
	require.NoError(t, err)
	f.mon = mon
	return f
}

func (f *fixture) run(t *testing.T, niter int) error {
	t.Helper()
	return f.mon.Run(context.Background(), monitor.RunOptions{
		NIter:    niter,
		Interval: time.Millisecond,
	})
}

func loadSnapshot(t *testing.T, home string) *domain.Snapshot {
	t.Helper()
	snap, err := store.NewFileStore(filepath.Join(home, store.DefaultFileName)).Load(context.Background())
	require.NoError(t, err)
	return snap
}

func TestRun_CreatesArchiveDir(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.run(t, 1))

	info, err := os.Stat(filepath.Join(f.home, "archive"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

// Two sessions appear in one iteration; both register, and the snapshot
// written that iteration carries exactly those two ids with nothing
// complete yet.
func TestRun_DiscoversNewSessions(t *testing.T) {
	f := newFixture(t)
	testutils.WriteBundle(t, f.home, "alpha", testutils.SimpleBundle(
		[]string{"A", "B"}, map[string][]string{"B": {"A"}}))
	testutils.WriteBundle(t, f.home, "beta", testutils.SimpleBundle(
		[]string{"X"}, nil))

	require.NoError(t, f.run(t, 1))

	assert.Equal(t, []string{"alpha", "beta"}, f.mon.Registered())

	snap := loadSnapshot(t, f.home)
	assert.Equal(t, monitor.SnapshotVersion, snap.Version)
	assert.Equal(t, []string{"alpha", "beta"}, snap.Registered)
	for _, rec := range snap.Sessions {
		for _, j := range rec.Jobs {
			assert.NotEqual(t, domain.StatusComplete, j.Status)
		}
	}
}

func TestRun_CompletedSessionIsDeregistered(t *testing.T) {
	f := newFixture(t)
	testutils.WriteBundle(t, f.home, "alpha", testutils.SimpleBundle([]string{"A"}, nil))
	f.backend.Complete("alpha", "A")

	require.NoError(t, f.run(t, 1))

	assert.Empty(t, f.mon.Registered())
	assert.Equal(t, []string{"alpha"}, f.completed, "completion hook fired once")
	assert.DirExists(t, filepath.Join(f.home, "archive", "alpha"))
	assert.NoDirExists(t, filepath.Join(f.home, "alpha"))

	snap := loadSnapshot(t, f.home)
	assert.Empty(t, snap.Registered)
	assert.Empty(t, snap.Sessions)
}

func TestRun_StopWhenNoSessions(t *testing.T) {
	f := newFixture(t)
	testutils.WriteBundle(t, f.home, "alpha", testutils.SimpleBundle([]string{"A"}, nil))
	f.backend.Complete("alpha", "A")

	// Unbounded iterations, but the stop condition ends the loop after the
	// only session completes.
	err := f.mon.Run(context.Background(), monitor.RunOptions{
		StopCond: monitor.StopNoSession,
		Interval: time.Millisecond,
	})
	require.NoError(t, err)
	assert.Empty(t, f.mon.Registered())
}

func TestRun_SnapshotSurvivesRestart(t *testing.T) {
	f := newFixture(t)
	testutils.WriteBundle(t, f.home, "alpha", testutils.SimpleBundle(
		[]string{"A", "B"}, map[string][]string{"B": {"A"}}))

	// First daemon run dispatches A and persists.
	require.NoError(t, f.run(t, 1))

	// A fresh daemon over the same home restores instead of re-registering.
	restartBackend := testutils.NewFakeBackend()
	restartSched := scheduler.New(restartBackend)
	locker := lock.New(lock.WithQuantum(time.Millisecond))
	mon2, err := monitor.New(f.home, "archive", restartSched, locker, monitor.WithLockWait(2))
	require.NoError(t, err)

	restartBackend.Complete("alpha", "A")
	require.NoError(t, mon2.Run(context.Background(), monitor.RunOptions{
		NIter:    1,
		Interval: time.Millisecond,
	}))

	jobs, err := restartSched.JobsFor("alpha")
	require.NoError(t, err)
	byName := make(map[string]domain.JobStatus)
	for _, j := range jobs {
		byName[j.Name] = j.Status
	}
	assert.Equal(t, domain.StatusComplete, byName["A"])
	assert.Equal(t, domain.StatusWaiting, byName["B"])
	assert.Equal(t, []string{"alpha"}, mon2.Registered())
}

func TestRun_VersionMismatchIsFatal(t *testing.T) {
	f := newFixture(t)

	stale := &domain.Snapshot{Version: monitor.SnapshotVersion + 1}
	data, err := json.Marshal(stale)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(f.home, store.DefaultFileName), data, 0644))

	err = f.run(t, 1)
	assert.ErrorIs(t, err, domain.ErrVersionMismatch)
}

func TestRun_MissingBundleIsFatal(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.MkdirAll(filepath.Join(f.home, "broken"), 0755))

	err := f.run(t, 1)
	assert.ErrorIs(t, err, domain.ErrNoBundle)
}

func TestRun_CyclicBundleIsFatal(t *testing.T) {
	f := newFixture(t)
	testutils.WriteBundle(t, f.home, "looped", testutils.SimpleBundle(
		[]string{"A", "B"}, map[string][]string{"A": {"B"}, "B": {"A"}}))

	err := f.run(t, 1)
	assert.ErrorIs(t, err, domain.ErrCyclicDependency)
}

func TestRun_FailedJobDoesNotStopDaemon(t *testing.T) {
	f := newFixture(t)
	testutils.WriteBundle(t, f.home, "alpha", testutils.SimpleBundle(
		[]string{"A", "B"}, map[string][]string{"B": {"A"}}))
	testutils.WriteBundle(t, f.home, "beta", testutils.SimpleBundle([]string{"X"}, nil))

	f.backend.DispatchErr["alpha/A"] = os.ErrPermission
	f.backend.Complete("beta", "X")

	require.NoError(t, f.run(t, 2))

	// beta completed and left; alpha is stuck but still registered.
	assert.Equal(t, []string{"alpha"}, f.mon.Registered())
	assert.Equal(t, []string{"beta"}, f.completed)

	status, err := f.sched.SessionStatus("alpha")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionFailed, status)
}

func TestRun_SweepsStrayFiles(t *testing.T) {
	f := newFixture(t)
	bundle := testutils.SimpleBundle([]string{"A"}, nil)
	bundle.InputStem = "mgal"
	testutils.WriteBundle(t, f.home, "alpha", bundle)

	stray := filepath.Join(f.home, "mgal_input.inp")
	require.NoError(t, os.WriteFile(stray, []byte("data"), 0644))
	unrelated := filepath.Join(f.home, "notes.txt")
	require.NoError(t, os.WriteFile(unrelated, []byte("keep"), 0644))

	require.NoError(t, f.run(t, 1))

	assert.NoFileExists(t, stray)
	assert.FileExists(t, filepath.Join(f.home, "alpha", "mgal_input.inp"))
	assert.FileExists(t, unrelated)
}

func TestRun_LockHeldElsewhere(t *testing.T) {
	f := newFixture(t)

	other := lock.New(lock.WithQuantum(time.Millisecond))
	require.NoError(t, other.Acquire(context.Background(), f.home, 1))

	err := f.run(t, 1)
	assert.ErrorIs(t, err, domain.ErrLockTimeout)
}

func TestRun_ReleasesLockAndRestoresDir(t *testing.T) {
	f := newFixture(t)
	before, err := os.Getwd()
	require.NoError(t, err)

	require.NoError(t, f.run(t, 1))

	after, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.False(t, lock.Locked(f.home), "lock released on clean exit")
}

func TestRun_ReleasesLockOnError(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.MkdirAll(filepath.Join(f.home, "broken"), 0755))

	err := f.run(t, 1)
	require.Error(t, err)
	assert.False(t, lock.Locked(f.home), "lock released even when the iteration fails")
}
