/*
Package domain holds the core data model of the stoker scheduler: jobs and
their dependency edges, session aggregates, the plain-data snapshot used for
crash recovery, and the session bundle exchanged with external collaborators.

Nothing in this package performs IO or scheduling; it is shared vocabulary
for the scheduler core, the execution backends, and the monitor daemon.
*/
package domain
