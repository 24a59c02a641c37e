// Package statestore holds the scheduling core's ephemeral, TTL-bounded
// state: per-keypair concurrency counters and the distributed locks that
// serialize one resource group's scheduling tick across manager replicas.
// Unlike pkg/storage, nothing here needs to survive a full cluster restart;
// it is recomputed or re-acquired as needed, which is why it lives in a
// key-value store with native expiry rather than the raft-replicated
// repository.
package statestore

import (
	"context"
	"time"
)

// Lock IDs for the named distributed locks the dispatcher and its
// supporting timers acquire. Each is scoped by resource group name except
// the global timers.
const (
	LockSchedule            = "schedule"
	LockStartSession        = "start"
	LockCheckPrecondition   = "check_precond"
	LockScaleTimer          = "scale_timer"
	LockSessionStatusUpdate = "session_status_update_timer"
)

// Store is the ephemeral state boundary: concurrency counters and
// distributed locks. Implementations must make lock acquisition atomic
// (SET NX PX semantics) so that two manager replicas racing for the same
// resource group's tick never both proceed.
type Store interface {
	// IncrConcurrency atomically increments the count of USER_OCCUPYING
	// sessions for accessKey and returns the new value.
	IncrConcurrency(ctx context.Context, accessKey string) (int64, error)
	// DecrConcurrency atomically decrements the count, floored at zero.
	DecrConcurrency(ctx context.Context, accessKey string) (int64, error)
	// GetConcurrency returns the current count, 0 if never set.
	GetConcurrency(ctx context.Context, accessKey string) (int64, error)
	// SetConcurrency overwrites the counter to an externally recomputed
	// value; used by a full-scan recalculation, not the scheduling tick.
	SetConcurrency(ctx context.Context, accessKey string, value int64) error

	// AcquireLock attempts to take the named, TTL-bounded lock, scoped by
	// resource group (empty for cluster-global locks). Returns false
	// without error if another holder currently has it.
	AcquireLock(ctx context.Context, lockID, resourceGroup string, ttl time.Duration) (bool, error)
	// ReleaseLock releases a lock this process holds. Releasing a lock
	// this process doesn't hold is a no-op.
	ReleaseLock(ctx context.Context, lockID, resourceGroup string) error

	// NextRoundRobinIndex atomically advances and returns the persistent
	// round-robin cursor for a resource group, wrapping modulo agentCount.
	NextRoundRobinIndex(ctx context.Context, resourceGroup string, agentCount int) (int, error)

	Close() error
}
