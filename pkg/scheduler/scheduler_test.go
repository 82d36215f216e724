package scheduler_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stokerproj/stoker/internal/testutils"
	"github.com/stokerproj/stoker/pkg/domain"
	"github.com/stokerproj/stoker/pkg/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestTick_DiamondLifecycle walks the three-job fan-out through its ticks:
// A first, then B and C once A completes, with the documented one-tick
// promotion latency.
func TestTick_DiamondLifecycle(t *testing.T) {
	ctx := context.Background()
	fake := testutils.NewFakeBackend()
	s := scheduler.New(fake)

	require.NoError(t, s.AddJobs("s1", descriptors("A", "B", "C"), map[string][]string{
		"B": {"A"},
		"C": {"A"},
	}))

	// Tick 1: A dispatched and running, B and C untouched.
	completed, err := s.Tick(ctx)
	require.NoError(t, err)
	assert.Empty(t, completed)
	got := jobStatuses(t, s, "s1")
	assert.Equal(t, domain.StatusRunning, got["A"])
	assert.Equal(t, domain.StatusWaiting, got["B"])
	assert.Equal(t, domain.StatusWaiting, got["C"])

	// Tick 2: A's work finished; B and C stay Waiting until next tick.
	fake.Complete("s1", "A")
	completed, err = s.Tick(ctx)
	require.NoError(t, err)
	assert.Empty(t, completed)
	got = jobStatuses(t, s, "s1")
	assert.Equal(t, domain.StatusComplete, got["A"])
	assert.Equal(t, domain.StatusWaiting, got["B"])
	assert.Equal(t, domain.StatusWaiting, got["C"])

	// Tick 3: B and C promoted and dispatched together.
	completed, err = s.Tick(ctx)
	require.NoError(t, err)
	assert.Empty(t, completed)
	got = jobStatuses(t, s, "s1")
	assert.Equal(t, domain.StatusRunning, got["B"])
	assert.Equal(t, domain.StatusRunning, got["C"])

	// Tick 4: both finish; the session is reported complete.
	fake.Complete("s1", "B")
	fake.Complete("s1", "C")
	completed, err = s.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, completed)

	status, err := s.SessionStatus("s1")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionComplete, status)
	assert.False(t, s.HasIncompleteSession())
}

func TestTick_DispatchesAllReadyJobs(t *testing.T) {
	ctx := context.Background()
	fake := testutils.NewFakeBackend()
	s := scheduler.New(fake)

	require.NoError(t, s.AddJobs("s1", descriptors("A", "B", "C"), nil))

	_, err := s.Tick(ctx)
	require.NoError(t, err)
	assert.Len(t, fake.Dispatched(), 3, "every Ready job goes out in the same tick")
}

func TestTick_DispatchFailureIsContained(t *testing.T) {
	ctx := context.Background()
	fake := testutils.NewFakeBackend()
	fake.DispatchErr["s1/A"] = errors.New("spawn refused")
	s := scheduler.New(fake)

	require.NoError(t, s.AddJobs("s1", descriptors("A", "B"), map[string][]string{"B": {"A"}}))
	require.NoError(t, s.AddJobs("s2", descriptors("X"), nil))

	// Several ticks: the failed job stays Failed, its dependent stays
	// Waiting, and the other session keeps moving.
	for i := 0; i < 3; i++ {
		_, err := s.Tick(ctx)
		require.NoError(t, err)
	}
	fake.Complete("s2", "X")
	completed, err := s.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"s2"}, completed)

	got := jobStatuses(t, s, "s1")
	assert.Equal(t, domain.StatusFailed, got["A"])
	assert.Equal(t, domain.StatusWaiting, got["B"], "dependents of a failed job stall, not fail")

	status, err := s.SessionStatus("s1")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionFailed, status)
	assert.True(t, s.HasIncompleteSession(), "failed sessions never count as complete")
}

func TestTick_CompletionCheckFailure(t *testing.T) {
	ctx := context.Background()
	fake := testutils.NewFakeBackend()
	fake.CompleteErr["s1/A"] = errors.New("checker exploded")
	s := scheduler.New(fake)

	require.NoError(t, s.AddJobs("s1", descriptors("A"), nil))

	_, err := s.Tick(ctx)
	require.NoError(t, err)
	got := jobStatuses(t, s, "s1")
	assert.Equal(t, domain.StatusFailed, got["A"])
}

func TestTick_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := scheduler.New(testutils.NewFakeBackend())
	_, err := s.Tick(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_UntilAllComplete(t *testing.T) {
	ctx := context.Background()
	fake := testutils.NewFakeBackend()
	s := scheduler.New(fake)

	require.NoError(t, s.AddJobs("s1", descriptors("A", "B", "C"), map[string][]string{
		"B": {"A"},
		"C": {"B"},
	}))

	// Everything completes on its first poll.
	fake.Complete("s1", "A")
	fake.Complete("s1", "B")
	fake.Complete("s1", "C")

	completed, err := s.Run(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, completed)
	assert.False(t, s.HasIncompleteSession())
}

// A Failed job blocks its dependents forever; an unbounded Run must return
// once nothing can move instead of ticking the stuck session for eternity.
func TestRun_StuckSessionTerminates(t *testing.T) {
	ctx := context.Background()
	fake := testutils.NewFakeBackend()
	fake.DispatchErr["s1/A"] = errors.New("spawn refused")
	s := scheduler.New(fake)

	require.NoError(t, s.AddJobs("s1", descriptors("A", "B"), map[string][]string{"B": {"A"}}))

	completed, err := s.Run(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, completed)
	assert.True(t, s.HasIncompleteSession())

	got := jobStatuses(t, s, "s1")
	assert.Equal(t, domain.StatusFailed, got["A"])
	assert.Equal(t, domain.StatusWaiting, got["B"])
}

func TestSetBackend_AffectsOnlyFutureDispatches(t *testing.T) {
	ctx := context.Background()
	first := testutils.NewFakeBackend()
	s := scheduler.New(first)

	require.NoError(t, s.AddJobs("s1", descriptors("A", "B"), map[string][]string{"B": {"A"}}))

	_, err := s.Tick(ctx)
	require.NoError(t, err)

	second := testutils.NewFakeBackend()
	s.SetBackend(second)

	jobs, err := s.JobsFor("s1")
	require.NoError(t, err)
	for _, j := range jobs {
		if j.Name == "A" {
			assert.Equal(t, "fake-A", j.Descriptor.Handle, "recorded handle survives the switch")
		}
	}

	second.Complete("s1", "A")
	_, err = s.Tick(ctx)
	require.NoError(t, err)
	_, err = s.Tick(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{"s1/B"}, second.Dispatched(), "new dispatches go through the new backend")
}

// TestTick_SafetyInvariant drives randomized DAGs with randomized completion
// timing and checks, every tick, that no job is Running or beyond while a
// predecessor is not Complete.
func TestTick_SafetyInvariant(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewSource(7))

	for trial := 0; trial < 25; trial++ {
		fake := testutils.NewFakeBackend()
		s := scheduler.New(fake)

		n := 3 + rng.Intn(6)
		names := make([]string, n)
		for i := range names {
			names[i] = fmt.Sprintf("j%02d", i)
		}
		// Edges only point backwards, so the graph is acyclic by
		// construction.
		deps := make(map[string][]string)
		for i := 1; i < n; i++ {
			for k := 0; k < i; k++ {
				if rng.Intn(3) == 0 {
					deps[names[i]] = append(deps[names[i]], names[k])
				}
			}
		}
		sid := fmt.Sprintf("trial%d", trial)
		require.NoError(t, s.AddJobs(sid, descriptors(names...), deps))

		for tick := 0; tick < 40; tick++ {
			// Randomly finish some running jobs before the next tick.
			jobs, err := s.JobsFor(sid)
			require.NoError(t, err)
			for _, j := range jobs {
				if j.Status == domain.StatusRunning && rng.Intn(2) == 0 {
					fake.Complete(sid, j.Name)
				}
			}

			_, err = s.Tick(ctx)
			require.NoError(t, err)

			jobs, err = s.JobsFor(sid)
			require.NoError(t, err)
			byName := make(map[string]domain.Job, len(jobs))
			for _, j := range jobs {
				byName[j.Name] = j
			}
			for _, j := range jobs {
				if j.Status != domain.StatusRunning && j.Status != domain.StatusComplete {
					continue
				}
				for _, p := range j.Parents {
					require.Equal(t, domain.StatusComplete, byName[p].Status,
						"trial %d tick %d: %s is %s but parent %s is %s",
						trial, tick, j.Name, j.Status, p, byName[p].Status)
				}
			}
		}
	}
}
