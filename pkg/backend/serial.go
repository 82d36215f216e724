package backend

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"

	"github.com/rs/xid"
	"github.com/stokerproj/stoker/pkg/domain"
	"github.com/stokerproj/stoker/pkg/ports"
)

// Serial runs each job's command synchronously inside the daemon process.
// It exists for debugging and for machines without a batch queue; a tick
// dispatching through Serial blocks until the job finishes.
type Serial struct {
	BaseDir string

	mu   sync.Mutex
	done map[string]bool // handle -> finished without error
}

var _ ports.ExecutionBackend = (*Serial)(nil)

// NewSerial creates a Serial backend rooted at baseDir.
func NewSerial(baseDir string) *Serial {
	return &Serial{BaseDir: baseDir, done: make(map[string]bool)}
}

// Name implements ports.ExecutionBackend.
func (b *Serial) Name() string { return "serial" }

// Dispatch runs the command to completion and records the outcome under a
// synthetic handle.
func (b *Serial) Dispatch(ctx context.Context, job *domain.Job) (string, error) {
	if job.Descriptor.Command == "" {
		return "", fmt.Errorf("job %q: empty command", job.Name)
	}
	dir := resolveDir(b.BaseDir, job)
	if _, err := os.Stat(dir); err != nil {
		return "", fmt.Errorf("job %q: %w", job.Name, err)
	}

	handle := xid.New().String()
	cmd := exec.CommandContext(ctx, job.Descriptor.Command, job.Descriptor.Args...)
	cmd.Dir = dir
	err := cmd.Run()

	b.mu.Lock()
	b.done[handle] = err == nil
	b.mu.Unlock()
	if err != nil {
		return "", fmt.Errorf("job %q: %w", job.Name, err)
	}
	return handle, nil
}

// IsComplete reports the recorded outcome for the handle. A handle this
// backend has no record of (a restart lost the in-memory table) falls back
// to the marker-file predicate.
func (b *Serial) IsComplete(ctx context.Context, job *domain.Job) (bool, error) {
	b.mu.Lock()
	ok, known := b.done[job.Descriptor.Handle]
	b.mu.Unlock()
	if known {
		return ok, nil
	}
	return markerExists(resolveDir(b.BaseDir, job), job.Descriptor.Marker())
}
