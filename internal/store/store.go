// Package store persists the daemon's recovery snapshot as a single JSON
// file, written atomically so a crash mid-save never leaves a torn snapshot.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/stokerproj/stoker/pkg/domain"
	"github.com/stokerproj/stoker/pkg/ports"
)

// DefaultFileName is the snapshot file inside a daemon's home directory.
const DefaultFileName = "stoker.state.json"

// FileStore reads and writes one snapshot file.
type FileStore struct {
	Path string
}

var _ ports.SnapshotStore = (*FileStore)(nil)

// NewFileStore creates a store for the snapshot at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

// Save atomically overwrites the snapshot: write to a temp file in the same
// directory, then rename over the target.
func (f *FileStore) Save(ctx context.Context, snap *domain.Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	dir := filepath.Dir(f.Path)
	tmp, err := os.CreateTemp(dir, ".snapshot-*")
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("save snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("save snapshot: %w", err)
	}
	if err := os.Rename(tmpName, f.Path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// Load reads the last saved snapshot. A missing file means first run.
func (f *FileStore) Load(ctx context.Context) (*domain.Snapshot, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", f.Path, domain.ErrSnapshotNotFound)
		}
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	var snap domain.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", f.Path, domain.ErrSnapshotCorrupt, err)
	}
	return &snap, nil
}
