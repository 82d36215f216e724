package scheduler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/stokerproj/stoker/pkg/domain"
)

// session is one registered DAG of jobs.
type session struct {
	id   string
	jobs map[string]*domain.Job
}

func (sn *session) jobList() []domain.Job {
	out := make([]domain.Job, 0, len(sn.jobs))
	for _, j := range sn.jobs {
		out = append(out, j.Clone())
	}
	domain.SortJobs(out)
	return out
}

func (sn *session) status() domain.SessionStatus {
	return domain.AggregateStatus(sn.jobList())
}

// AddJobs registers a new session from its job definitions and dependency
// edges. Validation is atomic: on any error no session or job state is
// created.
//
// Jobs with no predecessors start Ready; all others start Waiting.
func (s *Scheduler) AddJobs(sessionID string, descriptors map[string]domain.Descriptor, deps map[string][]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; ok {
		return fmt.Errorf("session %q: %w", sessionID, domain.ErrDuplicateSession)
	}
	if len(descriptors) == 0 {
		return fmt.Errorf("session %q: no jobs defined", sessionID)
	}

	parents, children, err := buildEdges(descriptors, deps)
	if err != nil {
		return fmt.Errorf("session %q: %w", sessionID, err)
	}
	if cycle := findCycle(descriptors, parents); len(cycle) > 0 {
		return fmt.Errorf("session %q: %w: %s", sessionID, domain.ErrCyclicDependency, strings.Join(cycle, " -> "))
	}

	sn := &session{id: sessionID, jobs: make(map[string]*domain.Job, len(descriptors))}
	for name, desc := range descriptors {
		status := domain.StatusReady
		if len(parents[name]) > 0 {
			status = domain.StatusWaiting
		}
		sn.jobs[name] = &domain.Job{
			Name:       name,
			SessionID:  sessionID,
			Status:     status,
			Parents:    parents[name],
			Children:   children[name],
			Descriptor: desc,
		}
	}
	s.sessions[sessionID] = sn
	s.logger.Info("session registered", "session", sessionID, "jobs", len(sn.jobs))
	return nil
}

// buildEdges resolves the dependency map into sorted predecessor and
// successor lists, rejecting edges that reference undefined jobs.
func buildEdges(descriptors map[string]domain.Descriptor, deps map[string][]string) (parents, children map[string][]string, err error) {
	parents = make(map[string][]string, len(descriptors))
	children = make(map[string][]string, len(descriptors))
	for name, preds := range deps {
		if _, ok := descriptors[name]; !ok {
			return nil, nil, fmt.Errorf("%w: %q in dependency graph", domain.ErrUnknownJob, name)
		}
		seen := make(map[string]bool, len(preds))
		for _, p := range preds {
			if _, ok := descriptors[p]; !ok {
				return nil, nil, fmt.Errorf("%w: %q required by %q", domain.ErrUnknownJob, p, name)
			}
			if p == name {
				return nil, nil, fmt.Errorf("%w: %q depends on itself", domain.ErrCyclicDependency, name)
			}
			if seen[p] {
				continue
			}
			seen[p] = true
			parents[name] = append(parents[name], p)
			children[p] = append(children[p], name)
		}
	}
	for name := range descriptors {
		sort.Strings(parents[name])
		sort.Strings(children[name])
	}
	return parents, children, nil
}

// findCycle runs Kahn's algorithm over the session's graph. It returns an
// empty slice for acyclic graphs, otherwise the sorted names of the jobs
// stuck on the cycle (a witness for the error message, not a walk order).
func findCycle(descriptors map[string]domain.Descriptor, parents map[string][]string) []string {
	indeg := make(map[string]int, len(descriptors))
	succ := make(map[string][]string, len(descriptors))
	for name := range descriptors {
		indeg[name] = len(parents[name])
		for _, p := range parents[name] {
			succ[p] = append(succ[p], name)
		}
	}

	var ready []string
	for name, d := range indeg {
		if d == 0 {
			ready = append(ready, name)
		}
	}
	visited := 0
	for len(ready) > 0 {
		n := ready[len(ready)-1]
		ready = ready[:len(ready)-1]
		visited++
		for _, m := range succ[n] {
			indeg[m]--
			if indeg[m] == 0 {
				ready = append(ready, m)
			}
		}
	}
	if visited == len(descriptors) {
		return nil
	}

	var stuck []string
	for name, d := range indeg {
		if d > 0 {
			stuck = append(stuck, name)
		}
	}
	sort.Strings(stuck)
	return stuck
}

// JobsFor returns copies of a session's job records, sorted by name.
func (s *Scheduler) JobsFor(sessionID string) ([]domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sn, ok := s.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("session %q: %w", sessionID, domain.ErrSessionNotFound)
	}
	return sn.jobList(), nil
}

// SessionStatus returns a session's aggregate status.
func (s *Scheduler) SessionStatus(sessionID string) (domain.SessionStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sn, ok := s.sessions[sessionID]
	if !ok {
		return "", fmt.Errorf("session %q: %w", sessionID, domain.ErrSessionNotFound)
	}
	return sn.status(), nil
}

// SessionIDs returns all registered session ids, sorted.
func (s *Scheduler) SessionIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// RemoveSession deregisters a session, dropping all of its job records.
// The caller owns whatever happens to the session's directory afterwards.
func (s *Scheduler) RemoveSession(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return fmt.Errorf("session %q: %w", sessionID, domain.ErrSessionNotFound)
	}
	delete(s.sessions, sessionID)
	return nil
}

// StatusCounts tallies jobs by status across all sessions.
func (s *Scheduler) StatusCounts() map[domain.JobStatus]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[domain.JobStatus]int)
	for _, sn := range s.sessions {
		for _, j := range sn.jobs {
			counts[j.Status]++
		}
	}
	return counts
}
