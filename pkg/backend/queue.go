package backend

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/stokerproj/stoker/pkg/domain"
	"github.com/stokerproj/stoker/pkg/ports"
)

// Queue submits jobs to a batch queue through a configured submit command
// (qsub style). The submit command receives the job's command and args and
// prints the queue id on stdout; that id becomes the job's handle.
//
// Completion is still the marker-file predicate: the queued work writes the
// marker when it finishes, so the scheduler does not need to speak the
// queue's polling dialect.
type Queue struct {
	BaseDir string

	// SubmitCmd is the queue submission binary, e.g. "qsub" or "sbatch".
	SubmitCmd string
	// SubmitArgs are prepended before the job's own command line.
	SubmitArgs []string
}

var _ ports.ExecutionBackend = (*Queue)(nil)

// NewQueue creates a Queue backend submitting through submitCmd.
func NewQueue(baseDir, submitCmd string, submitArgs ...string) *Queue {
	return &Queue{BaseDir: baseDir, SubmitCmd: submitCmd, SubmitArgs: submitArgs}
}

// Name implements ports.ExecutionBackend.
func (b *Queue) Name() string { return "queue" }

// Dispatch runs the submit command and returns the trimmed first line of
// its output as the queue handle.
func (b *Queue) Dispatch(ctx context.Context, job *domain.Job) (string, error) {
	if b.SubmitCmd == "" {
		return "", fmt.Errorf("job %q: no submit command configured", job.Name)
	}
	if job.Descriptor.Command == "" {
		return "", fmt.Errorf("job %q: empty command", job.Name)
	}
	dir := resolveDir(b.BaseDir, job)
	if _, err := os.Stat(dir); err != nil {
		return "", fmt.Errorf("job %q: %w", job.Name, err)
	}

	args := append(append([]string{}, b.SubmitArgs...), job.Descriptor.Command)
	args = append(args, job.Descriptor.Args...)
	cmd := exec.CommandContext(ctx, b.SubmitCmd, args...)
	cmd.Dir = dir
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("job %q: submit: %w", job.Name, err)
	}

	id := firstLine(out.String())
	if id == "" {
		return "", fmt.Errorf("job %q: submit produced no queue id", job.Name)
	}
	return id, nil
}

// IsComplete reports whether the job's completion marker exists.
func (b *Queue) IsComplete(ctx context.Context, job *domain.Job) (bool, error) {
	return markerExists(resolveDir(b.BaseDir, job), job.Descriptor.Marker())
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
