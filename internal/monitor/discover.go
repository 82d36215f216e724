package monitor

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/stokerproj/stoker/pkg/domain"
)

// errSessionVanished marks a directory that disappeared between the scan and
// registration. Not fatal; the next tick simply will not see it.
var errSessionVanished = errors.New("session directory vanished")

// discover lists the immediate subdirectories of home, excluding the archive
// directory (created here if missing). Results are sorted.
func (m *Monitor) discover() ([]string, error) {
	if err := os.MkdirAll(m.archive, 0755); err != nil {
		return nil, fmt.Errorf("monitor: create archive %s: %w", m.archive, err)
	}

	entries, err := os.ReadDir(m.home)
	if err != nil {
		return nil, fmt.Errorf("monitor: scan %s: %w", m.home, err)
	}

	var dirs []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if filepath.Join(m.home, e.Name()) == m.archive {
			continue
		}
		dirs = append(dirs, e.Name())
	}
	sort.Strings(dirs)
	return dirs, nil
}

// register loads a session directory's bundle and adds its jobs to the
// scheduler. A malformed bundle or graph is fatal: skipping it silently
// would leave the session perpetually unprocessed.
func (m *Monitor) register(dir string) error {
	sessionDir := filepath.Join(m.home, dir)
	if _, err := os.Stat(sessionDir); err != nil {
		if os.IsNotExist(err) {
			return errSessionVanished
		}
		return err
	}

	bundlePath := filepath.Join(sessionDir, m.bundleName)
	data, err := os.ReadFile(bundlePath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", domain.ErrNoBundle, bundlePath)
		}
		return err
	}

	bundle, err := domain.DecodeBundle(data)
	if err != nil {
		return err
	}

	if bundle.InputStem != "" {
		if err := m.sweepStrayFiles(sessionDir, bundle.InputStem); err != nil {
			return err
		}
	}

	descriptors, err := bundle.Descriptors()
	if err != nil {
		return err
	}
	return m.sched.AddJobs(dir, descriptors, bundle.Dependencies)
}

// sweepStrayFiles moves home-level files carrying the session's input stem
// into the session directory. Collaborators drop inputs and logs next to
// the session directory; they belong inside it.
func (m *Monitor) sweepStrayFiles(sessionDir, stem string) error {
	entries, err := os.ReadDir(m.home)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.Contains(e.Name(), stem) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		from := filepath.Join(m.home, name)
		to := filepath.Join(sessionDir, name)
		if err := os.Rename(from, to); err != nil {
			return fmt.Errorf("sweep %s: %w", name, err)
		}
		m.logger.Debug("stray file swept", "file", name, "session", filepath.Base(sessionDir))
	}
	return nil
}
