package ports

import (
	"context"

	"github.com/stokerproj/stoker/pkg/domain"
)

// ExecutionBackend is the strategy that knows how to launch and poll one
// job's external work. The scheduler fires Dispatch once per job and then
// polls IsComplete every tick; it never blocks on the work itself.
type ExecutionBackend interface {
	// Name identifies the backend in descriptors and diagnostics.
	Name() string

	// Dispatch launches the job's external work and returns a handle the
	// backend can later use to identify it (pid, queue id, synthetic id).
	// Dispatch must not wait for the work to finish, except in debug
	// backends that are documented to run inline.
	Dispatch(ctx context.Context, job *domain.Job) (handle string, err error)

	// IsComplete reports whether the job's external work has finished.
	// An error marks the job Failed; it does not abort the scheduling loop.
	IsComplete(ctx context.Context, job *domain.Job) (bool, error)
}
