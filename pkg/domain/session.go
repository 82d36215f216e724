package domain

import "time"

// SessionStatus is the aggregate status of one session's jobs.
type SessionStatus string

const (
	// SessionPending means no job has been dispatched yet.
	SessionPending SessionStatus = "pending"
	// SessionRunning means at least one job has left Waiting/Ready and the
	// session is not yet complete.
	SessionRunning SessionStatus = "running"
	// SessionComplete means every job is Complete.
	SessionComplete SessionStatus = "complete"
	// SessionFailed means at least one job is Failed. The session is
	// reported in this state and never silently retried.
	SessionFailed SessionStatus = "failed"
)

// AggregateStatus derives a session's status from its jobs.
// A session is Complete iff every job is Complete. Any Failed job marks the
// whole session Failed, even while other branches are still moving.
func AggregateStatus(jobs []Job) SessionStatus {
	if len(jobs) == 0 {
		return SessionPending
	}
	complete := 0
	started := false
	for _, j := range jobs {
		switch j.Status {
		case StatusFailed:
			return SessionFailed
		case StatusComplete:
			complete++
			started = true
		case StatusRunning:
			started = true
		}
	}
	if complete == len(jobs) {
		return SessionComplete
	}
	if started {
		return SessionRunning
	}
	return SessionPending
}

// SessionRecord is the plain-data form of one session inside a snapshot.
type SessionRecord struct {
	ID   string         `json:"id"`
	Jobs map[string]Job `json:"jobs"`
}

// Snapshot is the durable record of all scheduler and registration state.
// It carries plain data only: no backend-bound or executable state is ever
// serialized, just the descriptors needed to re-attach after a restart.
type Snapshot struct {
	Version    int                      `json:"version"`
	SavedAt    time.Time                `json:"saved_at"`
	Registered []string                 `json:"registered"`
	Sessions   map[string]SessionRecord `json:"sessions"`
}
