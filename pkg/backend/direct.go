// Package backend provides the execution strategies the scheduler dispatches
// jobs through: direct subprocess launch, an in-process serial mode for
// debugging, and batch-queue submission.
package backend

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/stokerproj/stoker/pkg/domain"
	"github.com/stokerproj/stoker/pkg/ports"
)

// Direct launches each job's command as a detached subprocess in the job's
// directory. Dispatch is fire-and-forget; completion is observed through the
// job's marker file, written by the external work itself.
type Direct struct {
	// BaseDir resolves relative job directories. Empty means the current
	// working directory (the daemon sits in the home directory while running).
	BaseDir string
}

var _ ports.ExecutionBackend = (*Direct)(nil)

// NewDirect creates a Direct backend rooted at baseDir.
func NewDirect(baseDir string) *Direct {
	return &Direct{BaseDir: baseDir}
}

// Name implements ports.ExecutionBackend.
func (b *Direct) Name() string { return "direct" }

// Dispatch starts the job's command and returns its pid as the handle.
// It does not block on the work; a background goroutine reaps the child
// when it exits.
func (b *Direct) Dispatch(ctx context.Context, job *domain.Job) (string, error) {
	if job.Descriptor.Command == "" {
		return "", fmt.Errorf("job %q: empty command", job.Name)
	}
	dir := b.jobDir(job)
	if _, err := os.Stat(dir); err != nil {
		return "", fmt.Errorf("job %q: %w", job.Name, err)
	}

	cmd := exec.Command(job.Descriptor.Command, job.Descriptor.Args...)
	cmd.Dir = dir
	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("job %q: start: %w", job.Name, err)
	}
	pid := cmd.Process.Pid
	// Fire-and-forget, but reap: without the Wait every finished child
	// stays a zombie for the daemon's lifetime. The exit status is
	// discarded; completion is only ever the marker file.
	go func() { _ = cmd.Wait() }()
	return strconv.Itoa(pid), nil
}

// IsComplete reports whether the job's completion marker exists.
func (b *Direct) IsComplete(ctx context.Context, job *domain.Job) (bool, error) {
	return markerExists(b.jobDir(job), job.Descriptor.Marker())
}

func (b *Direct) jobDir(job *domain.Job) string {
	return resolveDir(b.BaseDir, job)
}

func resolveDir(base string, job *domain.Job) string {
	dir := job.Descriptor.Dir
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(base, job.SessionID, dir)
}

func markerExists(dir, marker string) (bool, error) {
	_, err := os.Stat(filepath.Join(dir, marker))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}
