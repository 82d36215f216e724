package domain

import "errors"

// ErrCyclicDependency is returned when a session's dependency graph contains a cycle.
var ErrCyclicDependency = errors.New("cyclic dependency")

// ErrUnknownJob is returned when a dependency edge references a job that is not defined.
var ErrUnknownJob = errors.New("unknown job")

// ErrDuplicateSession is returned when a session id is registered twice.
var ErrDuplicateSession = errors.New("session already registered")

// ErrSessionNotFound is returned when a session id is not in the table.
var ErrSessionNotFound = errors.New("session not found")

// ErrLockTimeout is returned when the directory lock stays held past the wait bound.
var ErrLockTimeout = errors.New("lock wait timed out")

// ErrNotLocked is returned when releasing a lock that is not held.
var ErrNotLocked = errors.New("directory not locked")

// ErrSnapshotNotFound is returned when no snapshot file exists yet (first run).
var ErrSnapshotNotFound = errors.New("snapshot not found")

// ErrSnapshotCorrupt is returned when a snapshot file cannot be decoded.
var ErrSnapshotCorrupt = errors.New("snapshot corrupt")

// ErrVersionMismatch is returned when a snapshot's schema version does not
// match the running daemon's. There is no silent upgrade path.
var ErrVersionMismatch = errors.New("snapshot version mismatch")

// ErrNoBundle is returned when a session directory has no job bundle file.
var ErrNoBundle = errors.New("no job bundle in session directory")
