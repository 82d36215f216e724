package domain

import "sort"

// JobStatus is the lifecycle state of a single job.
type JobStatus string

const (
	// StatusWaiting means at least one predecessor has not completed yet.
	StatusWaiting JobStatus = "waiting"
	// StatusReady means every predecessor is complete but the job has not
	// been handed to an execution backend.
	StatusReady JobStatus = "ready"
	// StatusRunning means the job's external work has been dispatched.
	StatusRunning JobStatus = "running"
	// StatusComplete means the backend reported the external work done.
	StatusComplete JobStatus = "complete"
	// StatusFailed is terminal. Dependents of a failed job stay Waiting
	// until an operator intervenes.
	StatusFailed JobStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == StatusComplete || s == StatusFailed
}

// Descriptor is the opaque execution handle the scheduler carries for a job.
// The scheduler never interprets Command or Args; it only passes them to the
// selected backend and stores whatever handle the backend returns.
type Descriptor struct {
	// Dir is the job's working directory, relative to the session directory
	// unless absolute.
	Dir string `json:"dir" mapstructure:"dir"`

	// Command and Args describe how to launch the external work.
	Command string   `json:"command" mapstructure:"command"`
	Args    []string `json:"args,omitempty" mapstructure:"args"`

	// DoneFile is the completion marker the backend polls for.
	// Empty means DefaultDoneFile.
	DoneFile string `json:"done_file,omitempty" mapstructure:"done_file"`

	// Handle identifies the dispatched work to the backend that launched it
	// (a pid, a queue id, or a synthetic id for the serial backend).
	Handle string `json:"handle,omitempty" mapstructure:"-"`

	// Backend records which backend dispatched the job, so a reloaded
	// snapshot can re-attach polling to the right strategy.
	Backend string `json:"backend,omitempty" mapstructure:"-"`
}

// DefaultDoneFile is the completion marker used when a descriptor does not
// name its own.
const DefaultDoneFile = ".done"

// Marker returns the descriptor's completion marker file name.
func (d Descriptor) Marker() string {
	if d.DoneFile != "" {
		return d.DoneFile
	}
	return DefaultDoneFile
}

// Job is one node in a session's dependency graph.
type Job struct {
	Name      string    `json:"name"`
	SessionID string    `json:"session_id"`
	Status    JobStatus `json:"status"`

	// Parents are predecessor job names; all must be Complete before this
	// job may run. Children is the derived successor set.
	Parents  []string `json:"parents,omitempty"`
	Children []string `json:"children,omitempty"`

	Descriptor Descriptor `json:"descriptor"`
}

// Clone returns a deep copy, safe to hand out of the scheduler.
func (j Job) Clone() Job {
	c := j
	c.Parents = append([]string(nil), j.Parents...)
	c.Children = append([]string(nil), j.Children...)
	c.Descriptor.Args = append([]string(nil), j.Descriptor.Args...)
	return c
}

// SortJobs orders jobs by name, for stable table output and tests.
func SortJobs(jobs []Job) {
	sort.Slice(jobs, func(i, k int) bool { return jobs[i].Name < jobs[k].Name })
}
