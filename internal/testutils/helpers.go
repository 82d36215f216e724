// Package testutils holds shared test fixtures: a controllable fake
// execution backend and helpers for laying out session directories.
package testutils

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stokerproj/stoker/pkg/domain"
	"github.com/stretchr/testify/require"
)

// FakeBackend is an ExecutionBackend whose completions the test controls.
// Jobs are keyed session/name.
type FakeBackend struct {
	mu sync.Mutex

	// DispatchErr and CompleteErr inject failures per job key.
	DispatchErr map[string]error
	CompleteErr map[string]error

	dispatched []string
	completed  map[string]bool
}

// NewFakeBackend creates an empty fake backend.
func NewFakeBackend() *FakeBackend {
	return &FakeBackend{
		DispatchErr: make(map[string]error),
		CompleteErr: make(map[string]error),
		completed:   make(map[string]bool),
	}
}

func key(sessionID, name string) string { return sessionID + "/" + name }

// Name implements ports.ExecutionBackend.
func (b *FakeBackend) Name() string { return "fake" }

// Dispatch records the dispatch and returns a synthetic handle.
func (b *FakeBackend) Dispatch(ctx context.Context, job *domain.Job) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	k := key(job.SessionID, job.Name)
	if err := b.DispatchErr[k]; err != nil {
		return "", err
	}
	b.dispatched = append(b.dispatched, k)
	return "fake-" + job.Name, nil
}

// IsComplete reports whatever the test marked via Complete.
func (b *FakeBackend) IsComplete(ctx context.Context, job *domain.Job) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	k := key(job.SessionID, job.Name)
	if err := b.CompleteErr[k]; err != nil {
		return false, err
	}
	return b.completed[k], nil
}

// Complete marks a job's external work as finished.
func (b *FakeBackend) Complete(sessionID, name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.completed[key(sessionID, name)] = true
}

// Dispatched returns the dispatch log, in order.
func (b *FakeBackend) Dispatched() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.dispatched...)
}

// WriteBundle lays out a session directory under home with the given bundle.
func WriteBundle(t *testing.T, home, sessionID string, bundle *domain.Bundle) string {
	t.Helper()

	dir := filepath.Join(home, sessionID)
	require.NoError(t, os.MkdirAll(dir, 0755))
	for name := range bundle.Ingredients {
		require.NoError(t, os.MkdirAll(filepath.Join(dir, name), 0755))
	}

	data, err := json.Marshal(bundle)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, domain.DefaultBundleName), data, 0644))
	return dir
}

// SimpleBundle builds a bundle where every job runs the same command and the
// dependency map is exactly deps.
func SimpleBundle(jobs []string, deps map[string][]string) *domain.Bundle {
	ingredients := make(map[string]map[string]any, len(jobs))
	for _, name := range jobs {
		ingredients[name] = map[string]any{
			"dir":     name,
			"command": "true",
		}
	}
	return &domain.Bundle{Dependencies: deps, Ingredients: ingredients}
}
