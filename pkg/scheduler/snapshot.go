package scheduler

import (
	"fmt"

	"github.com/stokerproj/stoker/pkg/domain"
)

// Export copies the full session table into plain snapshot records.
// Only data crosses this boundary; backend-bound state never does.
func (s *Scheduler) Export() map[string]domain.SessionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]domain.SessionRecord, len(s.sessions))
	for id, sn := range s.sessions {
		rec := domain.SessionRecord{ID: id, Jobs: make(map[string]domain.Job, len(sn.jobs))}
		for name, j := range sn.jobs {
			rec.Jobs[name] = j.Clone()
		}
		out[id] = rec
	}
	return out
}

// Restore rebuilds the session table from snapshot records, replacing any
// current contents. Running jobs stay Running; their descriptors carry the
// handle needed to re-attach polling after a restart.
func (s *Scheduler) Restore(records map[string]domain.SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sessions := make(map[string]*session, len(records))
	for id, rec := range records {
		sn := &session{id: id, jobs: make(map[string]*domain.Job, len(rec.Jobs))}
		for name, j := range rec.Jobs {
			if j.Name != name {
				return fmt.Errorf("restore session %q: job keyed %q named %q", id, name, j.Name)
			}
			jc := j.Clone()
			jc.SessionID = id
			sn.jobs[name] = &jc
		}
		for name, j := range sn.jobs {
			for _, p := range j.Parents {
				if _, ok := sn.jobs[p]; !ok {
					return fmt.Errorf("restore session %q: job %q: %w: parent %q", id, name, domain.ErrUnknownJob, p)
				}
			}
		}
		sessions[id] = sn
	}
	s.sessions = sessions
	return nil
}
