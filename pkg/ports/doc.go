/*
Package ports defines the driven ports (interfaces) of the stoker core.

These interfaces decouple the scheduler and the monitor daemon from concrete
implementations, so storage, locking, and job execution can be swapped
without touching the orchestration logic.

# Key Interfaces

  - ExecutionBackend: launches and polls a job's external work.
  - Locker: mutual exclusion over a shared home directory.
  - SnapshotStore: durable persistence of the recovery snapshot.
*/
package ports
