package ports

import (
	"context"

	"github.com/stokerproj/stoker/pkg/domain"
)

// SnapshotStore persists the daemon's full recovery state between iterations.
type SnapshotStore interface {
	// Save atomically overwrites the prior snapshot.
	Save(ctx context.Context, snap *domain.Snapshot) error

	// Load returns the last saved snapshot.
	// Returns domain.ErrSnapshotNotFound on first run and
	// domain.ErrSnapshotCorrupt if the file cannot be decoded.
	Load(ctx context.Context) (*domain.Snapshot, error)
}
