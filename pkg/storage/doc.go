/*
Package storage provides BoltDB-backed persistence for the scheduling
core's authoritative records.

Store implements one bucket per entity (agents, sessions, kernels, resource
groups, quota policies, domains/groups, dependency edges), serializing each
row as JSON keyed by its natural identity (agent ID, session ID, ...).
Secondary lookups (by resource group, by access key, by session) are plain
full-bucket scans with an in-memory filter rather than a maintained index,
matching the scale BoltDB is meant for here: this is the single-writer
repository behind one resource group's scheduling lock, not a general query
engine.

Create* calls upsert: writing the same ID again replaces the row.
pkg/repository replicates each Store call as its own raft command, so a
multi-entity write (a scheduling commit touching one session, several
kernels, and one or more agents) is not atomic: a partial write is undone
by the scheduler's rollback or corrected by pkg/accounting's recalculation.
*/
package storage
