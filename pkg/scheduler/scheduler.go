// Package scheduler implements the dependency-aware orchestration core.
//
// A Scheduler holds any number of independent sessions, each a DAG of jobs.
// Callers drive it with discrete ticks; within one tick the phases run in a
// fixed order: promote, dispatch, poll, aggregate. A job completing in the
// poll phase unlocks its dependents on the next tick, not the current one.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/stokerproj/stoker/internal/logging"
	"github.com/stokerproj/stoker/pkg/domain"
	"github.com/stokerproj/stoker/pkg/ports"
)

// Scheduler advances multiple sessions of dependency-ordered jobs.
// It is safe for concurrent use; the monitor daemon ticks it while the
// status API reads it.
type Scheduler struct {
	mu       sync.RWMutex
	backend  ports.ExecutionBackend
	sessions map[string]*session
	logger   *slog.Logger
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger configures the scheduler's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = logger }
}

// New creates a Scheduler dispatching through the given backend.
func New(backend ports.ExecutionBackend, opts ...Option) *Scheduler {
	s := &Scheduler{
		backend:  backend,
		sessions: make(map[string]*session),
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetBackend swaps the execution backend for subsequently dispatched jobs.
// Jobs already Running keep their recorded handles; only future dispatch and
// polling go through the new backend.
func (s *Scheduler) SetBackend(backend ports.ExecutionBackend) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backend = backend
}

// Tick advances every session one step and returns the sorted ids of
// sessions that are now fully complete. Per-job execution errors are
// contained: they mark the job Failed and never abort the tick.
func (s *Scheduler) Tick(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.promote()
	s.dispatch(ctx)
	s.poll(ctx)

	var completed []string
	for _, id := range s.sortedIDs() {
		if s.sessions[id].status() == domain.SessionComplete {
			completed = append(completed, id)
		}
	}
	return completed, nil
}

// Run executes niter ticks. When niter is zero it runs until every session
// is complete or none can make further progress (a Failed job blocking its
// dependents, say). It returns the union of completed session ids.
func (s *Scheduler) Run(ctx context.Context, niter int) ([]string, error) {
	done := make(map[string]bool)
	for i := 0; niter == 0 || i < niter; i++ {
		if niter == 0 && (!s.HasIncompleteSession() || !s.hasRunnableWork()) {
			break
		}
		ids, err := s.Tick(ctx)
		if err != nil {
			return flatten(done), err
		}
		for _, id := range ids {
			done[id] = true
		}
	}
	return flatten(done), nil
}

// promote moves Waiting jobs whose predecessors are all Complete to Ready.
// Promotion is fully computed before any dispatch happens.
func (s *Scheduler) promote() {
	for _, id := range s.sortedIDs() {
		sn := s.sessions[id]
		for _, name := range sn.sortedJobNames() {
			j := sn.jobs[name]
			if j.Status != domain.StatusWaiting {
				continue
			}
			if sn.parentsComplete(j) {
				j.Status = domain.StatusReady
			}
		}
	}
}

// dispatch hands every Ready job to the backend. All Ready jobs go out in
// the same tick; order between them carries no meaning.
func (s *Scheduler) dispatch(ctx context.Context) {
	for _, id := range s.sortedIDs() {
		sn := s.sessions[id]
		for _, name := range sn.sortedJobNames() {
			j := sn.jobs[name]
			if j.Status != domain.StatusReady {
				continue
			}
			handle, err := s.backend.Dispatch(ctx, j)
			if err != nil {
				j.Status = domain.StatusFailed
				s.logger.Error("dispatch failed", "session", id, "job", name, "err", err)
				continue
			}
			j.Descriptor.Handle = handle
			j.Descriptor.Backend = s.backend.Name()
			j.Status = domain.StatusRunning
			s.logger.Debug("job dispatched", "session", id, "job", name, "handle", handle)
		}
	}
}

// poll asks the backend about every Running job.
func (s *Scheduler) poll(ctx context.Context) {
	for _, id := range s.sortedIDs() {
		sn := s.sessions[id]
		for _, name := range sn.sortedJobNames() {
			j := sn.jobs[name]
			if j.Status != domain.StatusRunning {
				continue
			}
			done, err := s.backend.IsComplete(ctx, j)
			if err != nil {
				j.Status = domain.StatusFailed
				s.logger.Error("completion check failed", "session", id, "job", name, "err", err)
				continue
			}
			if done {
				j.Status = domain.StatusComplete
				s.logger.Debug("job complete", "session", id, "job", name)
			}
		}
	}
}

func (sn *session) parentsComplete(j *domain.Job) bool {
	for _, p := range j.Parents {
		parent, ok := sn.jobs[p]
		if !ok || parent.Status != domain.StatusComplete {
			return false
		}
	}
	return true
}

func (sn *session) sortedJobNames() []string {
	names := make([]string, 0, len(sn.jobs))
	for name := range sn.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Scheduler) sortedIDs() []string {
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// hasRunnableWork reports whether any job could still change state: one that
// is Ready or Running, or Waiting with every predecessor Complete. A session
// stuck behind a Failed job has none.
func (s *Scheduler) hasRunnableWork() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sn := range s.sessions {
		for _, j := range sn.jobs {
			switch j.Status {
			case domain.StatusReady, domain.StatusRunning:
				return true
			case domain.StatusWaiting:
				if sn.parentsComplete(j) {
					return true
				}
			}
		}
	}
	return false
}

// HasIncompleteSession reports whether any registered session still has work
// left. Failed sessions count as incomplete; they never finish on their own.
func (s *Scheduler) HasIncompleteSession() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sn := range s.sessions {
		if sn.status() != domain.SessionComplete {
			return true
		}
	}
	return false
}

// TableString renders a plain-text dump of the session table. Diagnostic
// only; nothing reads it back.
func (s *Scheduler) TableString() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var b strings.Builder
	if len(s.sessions) == 0 {
		b.WriteString("no sessions registered\n")
		return b.String()
	}
	for _, id := range s.sortedIDs() {
		sn := s.sessions[id]
		fmt.Fprintf(&b, "session %s [%s]\n", id, sn.status())
		for _, name := range sn.sortedJobNames() {
			j := sn.jobs[name]
			fmt.Fprintf(&b, "  %-24s %-9s", name, j.Status)
			if len(j.Parents) > 0 {
				fmt.Fprintf(&b, " after %s", strings.Join(j.Parents, ","))
			}
			if j.Descriptor.Handle != "" {
				fmt.Fprintf(&b, " (%s:%s)", j.Descriptor.Backend, j.Descriptor.Handle)
			}
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func flatten(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
