package types

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// SchedulingError is implemented by every structured error the allocation
// and scheduling subsystems raise. Permanent errors cancel the session;
// non-permanent ones are recorded and retried on a later tick.
type SchedulingError interface {
	error
	Permanent() bool
}

// InsufficientResource is raised when the free capacity across candidate
// devices falls short of a requested slot quantity.
type InsufficientResource struct {
	SlotName          string
	Requested         decimal.Decimal
	TotalAllocatable  decimal.Decimal
	PartialAllocation map[string]decimal.Decimal // device id -> committed amount, for diagnostics
}

func (e *InsufficientResource) Error() string {
	return fmt.Sprintf("insufficient resource for slot %q: requested %s, allocatable %s",
		e.SlotName, e.Requested, e.TotalAllocatable)
}

// Permanent is false: the scheduler may succeed against a different agent or
// on a later tick once more capacity frees up.
func (e *InsufficientResource) Permanent() bool { return false }

// InvalidResourceCombination is raised when two requested slots are mutually
// exclusive under an AllocMap's exclusive_slot_types patterns.
type InvalidResourceCombination struct {
	SlotA, SlotB string
	Pattern      string
}

func (e *InvalidResourceCombination) Error() string {
	return fmt.Sprintf("slots %q and %q are mutually exclusive (pattern %q)", e.SlotA, e.SlotB, e.Pattern)
}

// Permanent is true: requesting the same combination again will never
// succeed.
func (e *InvalidResourceCombination) Permanent() bool { return true }

// InvalidResourceArgument is raised for malformed slot requests, e.g. a
// "unique" slot requested with quantity != 1.
type InvalidResourceArgument struct {
	SlotName string
	Reason   string
}

func (e *InvalidResourceArgument) Error() string {
	return fmt.Sprintf("invalid resource argument for slot %q: %s", e.SlotName, e.Reason)
}

// Permanent is true.
func (e *InvalidResourceArgument) Permanent() bool { return true }

// NotMultipleOfQuantum is raised by fractional allocation when a strictly
// positive request quantizes down to zero.
type NotMultipleOfQuantum struct {
	SlotName  string
	Requested decimal.Decimal
	Quantum   decimal.Decimal
}

func (e *NotMultipleOfQuantum) Error() string {
	return fmt.Sprintf("requested %s of slot %q rounds to zero at quantum %s", e.Requested, e.SlotName, e.Quantum)
}

// Permanent is true for this session: the request can never be satisfied at
// this quantum.
func (e *NotMultipleOfQuantum) Permanent() bool { return true }

// InstanceNotAvailable is raised when no agent satisfies architecture,
// exclusivity, topology, or capacity constraints.
type InstanceNotAvailable struct {
	Reason string
}

func (e *InstanceNotAvailable) Error() string {
	return fmt.Sprintf("no available instance: %s", e.Reason)
}

// Permanent is false: retried on the next tick as agent capacity changes.
func (e *InstanceNotAvailable) Permanent() bool { return false }

// RejectedByHook is raised by a plugin-level veto. Whether it cancels the
// session outright depends on what the hook itself reports.
type RejectedByHook struct {
	HookName      string
	Reason        string
	IsPermanent   bool
}

func (e *RejectedByHook) Error() string {
	return fmt.Sprintf("rejected by hook %q: %s", e.HookName, e.Reason)
}

// Permanent reports the hook's own verdict.
func (e *RejectedByHook) Permanent() bool { return e.IsPermanent }

// AgentError wraps an RPC or agent-side failure.
type AgentError struct {
	AgentID string
	Op      string
	Err     error
}

func (e *AgentError) Error() string {
	return fmt.Sprintf("agent %s: %s failed: %v", e.AgentID, e.Op, e.Err)
}

func (e *AgentError) Unwrap() error { return e.Err }

// Permanent is false: recovered by rolling back and cancelling the affected
// kernel(s), not the whole tick.
func (e *AgentError) Permanent() bool { return false }

// SchedulerError signals an internal invariant violation. It is fatal for
// the current tick: the tick aborts and the schedule-group lock is
// released without masking the error.
type SchedulerError struct {
	Reason string
}

func (e *SchedulerError) Error() string {
	return fmt.Sprintf("scheduler invariant violated: %s", e.Reason)
}

// Permanent is true in the sense that retrying the same tick logic without
// fixing the invariant will fail again; the dispatcher does not retry this
// tick, it moves on to the next.
func (e *SchedulerError) Permanent() bool { return true }

var (
	_ SchedulingError = (*InsufficientResource)(nil)
	_ SchedulingError = (*InvalidResourceCombination)(nil)
	_ SchedulingError = (*InvalidResourceArgument)(nil)
	_ SchedulingError = (*NotMultipleOfQuantum)(nil)
	_ SchedulingError = (*InstanceNotAvailable)(nil)
	_ SchedulingError = (*RejectedByHook)(nil)
	_ SchedulingError = (*AgentError)(nil)
	_ SchedulingError = (*SchedulerError)(nil)
)
