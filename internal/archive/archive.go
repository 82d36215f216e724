// Package archive moves completed session directories out of the daemon's
// home. It is the collaborator behind the monitor's completion hook; the
// scheduling core itself never touches a completed session's directory.
package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Archiver relocates session directories from home into the archive
// directory.
type Archiver struct {
	Home    string
	Archive string
}

// New creates an Archiver.
func New(home, archiveDir string) *Archiver {
	return &Archiver{Home: home, Archive: archiveDir}
}

// Move renames the session's directory into the archive. If a directory of
// the same name was archived before, a timestamp suffix keeps both.
func (a *Archiver) Move(sessionID string) error {
	from := filepath.Join(a.Home, sessionID)
	to := filepath.Join(a.Archive, sessionID)

	if _, err := os.Stat(to); err == nil {
		to = fmt.Sprintf("%s.%s", to, time.Now().Format("20060102T150405"))
	}
	if err := os.Rename(from, to); err != nil {
		return fmt.Errorf("archive %s: %w", sessionID, err)
	}
	return nil
}
