/*
Package scheduler runs the admission-and-placement loop that turns PENDING
sessions into RUNNING ones.

Each resource group ticks independently under its own schedule lock, so one
slow or stuck group never blocks another's progress:

	┌────────────────────────────────────────────────────────────┐
	│                      Dispatcher.Tick                       │
	└────────────────┬───────────────────────────────────────────┘
	                 │
	                 ▼  for each resource group
	┌────────────────────────────────────────────────────────────┐
	│ 1. Acquire schedule lock (silent skip if already held)     │
	│ 2. Partition sessions: existing vs. PENDING candidates     │
	│    (flushing any candidate past pending_timeout)           │
	│ 3. Load the group's policy + selector plugins              │
	│ 4. Loop: policy picks next candidate                       │
	│      → run every admission predicate                       │
	│      → place onto an agent (single- or multi-node)         │
	│      → commit reservation + kernel/session writes          │
	│      → publish session.scheduled                           │
	└──────────────────────────────────────────────────────────────┘

Admission and placement only reserve capacity; they do not talk to agents.
Dispatcher.StartSession is the separate settlement step that actually pulls
images and creates containers via pkg/agentrpc, then reconciles each agent's
occupied_slots against what the agent's devices actually handed back.

# Division of labor

Dispatcher sequences the tick and owns persistence; it defers every policy
decision to pkg/scheduler/policy (which session to try next, out of a
resource group's queue) and pkg/scheduler/selector (which agent, among the
slot-compatible survivors, should host it). Predicate checks live in
pkg/scheduler/predicate and always run to completion, never short-circuit,
so a session that fails predicate N still accumulates predicates 1..N-1's
results in status_data.

# Partial-commit rollback

pkg/repository applies each write as its own raft command; there is no
cross-table transaction spanning a reservation plus its kernel and session
writes. commitPlacement tracks which agent reservations it has actually
persisted (not just attempted) and rolls back only those on a later
failure, so a crash between two agents' reservation writes during a
multi-node placement never double-subtracts from the agent whose write
never went through.

# See also

  - pkg/scheduler/predicate - admission checks
  - pkg/scheduler/policy - queueing order
  - pkg/scheduler/selector - agent choice
  - pkg/agentrpc - the fleet boundary StartSession calls into
  - pkg/accounting - full-scan repair for drift this package's own
    rollback paths don't cover (a crash after commit, before settlement)
*/
package scheduler
