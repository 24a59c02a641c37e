// Package scheduler is the dispatcher: the per-tick procedure that turns
// PENDING sessions into SCHEDULED ones by running every admission predicate,
// picking one candidate at a time via a resource group's queueing policy,
// and assigning it to an agent via the group's selector. It owns none of
// the policy or selector logic itself (pkg/scheduler/policy and
// pkg/scheduler/selector do); Dispatcher only sequences the tick and
// persists its outcome.
package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/cuemby/warren/pkg/agentrpc"
	"github.com/cuemby/warren/pkg/events"
	"github.com/cuemby/warren/pkg/metrics"
	"github.com/cuemby/warren/pkg/scheduler/policy"
	"github.com/cuemby/warren/pkg/scheduler/predicate"
	"github.com/cuemby/warren/pkg/scheduler/selector"
	"github.com/cuemby/warren/pkg/statestore"
	"github.com/cuemby/warren/pkg/types"
)

// lockTTL bounds how long one resource group's tick may hold the schedule
// lock; a tick that runs longer than this has its lock stolen by the next
// manager replica to try, rather than wedging the resource group forever on
// a crashed holder.
const lockTTL = 30 * time.Second

// Dispatcher runs the scheduling tick across every resource group.
type Dispatcher struct {
	Repo   Store
	State  statestore.Store
	Agents agentrpc.AgentRPC
	Events *events.Broker

	// Now lets tests pin the clock; defaults to time.Now.
	Now func() time.Time
}

func (d *Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// Tick runs one scheduling pass over every resource group. A resource group
// whose lock is already held by another replica is skipped silently; it is
// retried on the next call to Tick.
func (d *Dispatcher) Tick(ctx context.Context) error {
	groups, err := d.Repo.ListResourceGroups()
	if err != nil {
		return fmt.Errorf("scheduler: list resource groups: %w", err)
	}
	for _, rg := range groups {
		if err := d.tickResourceGroup(ctx, rg); err != nil {
			return fmt.Errorf("scheduler: resource group %s: %w", rg.Name, err)
		}
	}
	return nil
}

func (d *Dispatcher) tickResourceGroup(ctx context.Context, rg *types.ResourceGroup) error {
	acquired, err := d.State.AcquireLock(ctx, statestore.LockSchedule, rg.Name, lockTTL)
	if err != nil {
		return fmt.Errorf("acquire schedule lock: %w", err)
	}
	if !acquired {
		// Another replica is already ticking this resource group; abandon
		// silently and retry on the next tick rather than contend for it.
		return nil
	}
	defer func() { _ = d.State.ReleaseLock(ctx, statestore.LockSchedule, rg.Name) }()

	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.SchedulingTickDuration, rg.Name)

	sessions, err := d.Repo.ListSessionsByResourceGroup(rg.Name)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}
	existing, candidates := d.partition(ctx, rg, sessions)

	pol, err := policy.New(rg.SchedulerPolicy, rg.SchedulerOpts)
	if err != nil {
		return fmt.Errorf("load policy: %w", err)
	}
	sel, err := selector.New(rg.AgentSelector, d.State)
	if err != nil {
		return fmt.Errorf("load selector: %w", err)
	}

	for len(candidates) > 0 {
		agents, err := d.Repo.ListAgentsByResourceGroup(rg.Name)
		if err != nil {
			return fmt.Errorf("list agents: %w", err)
		}
		totalCapacity := sumAvailable(agents)

		sessionID := pol.PickSession(totalCapacity, candidates, existing)
		session, idx := findSession(candidates, sessionID)
		if session == nil {
			// A misbehaving policy returned an ID not in candidates; drop the
			// whole remaining queue for this tick rather than loop forever.
			break
		}
		candidates = removeAt(candidates, idx)

		if d.attemptSchedule(ctx, rg, session, agents, sel) {
			existing = append(existing, session)
			pol.UpdateAllocation(session)
		}
	}
	return nil
}

// partition splits a resource group's sessions into existing (anything past
// PENDING) and candidates (still PENDING), flushing any candidate whose
// reserved start deadline is not at play here but whose pending_timeout has
// elapsed straight to CANCELLED.
func (d *Dispatcher) partition(ctx context.Context, rg *types.ResourceGroup, sessions []*types.Session) (existing, candidates []*types.Session) {
	for _, s := range sessions {
		if s.Status != types.SessionStatusPending {
			existing = append(existing, s)
			continue
		}
		if rg.PendingTimeout > 0 && d.now().Sub(s.CreatedAt) > rg.PendingTimeout {
			d.cancelTimedOut(ctx, s)
			continue
		}
		candidates = append(candidates, s)
	}
	return existing, candidates
}

func (d *Dispatcher) cancelTimedOut(ctx context.Context, s *types.Session) {
	s.Status = types.SessionStatusCancelled
	s.StatusInfo = types.StatusInfoPendingTimeout
	s.StatusHistory = append(s.StatusHistory, types.StatusHistoryEntry{
		Status: string(types.SessionStatusCancelled), At: d.now(), Reason: s.StatusInfo,
	})
	_ = d.Repo.UpdateSession(s)
	metrics.SessionsCancelledTotal.WithLabelValues(s.ResourceGroup, "pending_timeout").Inc()
	d.publish(ctx, types.EventSessionCancelled, s, s.StatusInfo)
}

// attemptSchedule runs every predicate against session and, if all pass,
// places and commits it. It returns true iff the session was scheduled
// (policy.UpdateAllocation and the existing/candidates bookkeeping is the
// caller's responsibility either way).
func (d *Dispatcher) attemptSchedule(ctx context.Context, rg *types.ResourceGroup, session *types.Session, agents []*types.Agent, sel selector.Selector) bool {
	pc := &predicate.Context{Repo: d.Repo, State: d.State, Now: d.Now}
	results, concurrencyReserved := d.runPredicates(ctx, pc, session)

	failed, permanent := firstFailure(results)
	if failed != nil {
		if concurrencyReserved {
			_, _ = d.State.DecrConcurrency(ctx, session.AccessKey)
		}
		d.recordPredicateFailure(ctx, session, results, permanent, failed.Message)
		return false
	}

	placement, err := d.place(ctx, rg, session, agents, sel)
	if err != nil {
		if concurrencyReserved {
			_, _ = d.State.DecrConcurrency(ctx, session.AccessKey)
		}
		d.recordUnplaceable(ctx, session, err)
		return false
	}

	if err := d.commitPlacement(ctx, session, placement); err != nil {
		// commitPlacement rolls back any of its own partial writes internally;
		// nothing further to undo here.
		if concurrencyReserved {
			_, _ = d.State.DecrConcurrency(ctx, session.AccessKey)
		}
		d.recordUnplaceable(ctx, session, err)
		return false
	}

	metrics.SessionsScheduledTotal.WithLabelValues(rg.Name).Inc()
	d.publish(ctx, types.EventSessionScheduled, session, "")
	return true
}

// runPredicates runs every predicate unconditionally (no short-circuit),
// matching predicate.All's contract, and reports whether the concurrency
// predicate reserved a slot that a later caller may need to release.
func (d *Dispatcher) runPredicates(ctx context.Context, pc *predicate.Context, session *types.Session) ([]types.PredicateResult, bool) {
	results := make([]types.PredicateResult, 0, len(predicate.All))
	concurrencyReserved := false
	for _, p := range predicate.All {
		res, err := p.Check(ctx, pc, session)
		if err != nil {
			results = append(results, types.PredicateResult{Name: p.Name, Passed: false, Message: err.Error()})
			continue
		}
		if p.Name == "concurrency" && res.Passed {
			concurrencyReserved = true
		}
		results = append(results, types.PredicateResult{
			Name: p.Name, Passed: res.Passed, Message: res.Message, Permanent: res.Permanent,
		})
	}
	return results, concurrencyReserved
}

func firstFailure(results []types.PredicateResult) (*types.PredicateResult, bool) {
	var first *types.PredicateResult
	permanent := false
	for i := range results {
		if !results[i].Passed {
			if first == nil {
				first = &results[i]
			}
			if results[i].Permanent {
				permanent = true
			}
		}
	}
	return first, permanent
}

func (d *Dispatcher) recordPredicateFailure(ctx context.Context, session *types.Session, results []types.PredicateResult, permanent bool, message string) {
	if session.StatusData.Scheduler == nil {
		session.StatusData.Scheduler = &types.SchedulerStatusData{}
	}
	session.StatusData.Scheduler.Retries++
	session.StatusData.Scheduler.FailedPredicates = append(session.StatusData.Scheduler.FailedPredicates, results...)
	for _, r := range results {
		if !r.Passed {
			metrics.PredicateFailuresTotal.WithLabelValues(r.Name, strconv.FormatBool(r.Permanent)).Inc()
		}
	}

	session.StatusInfo = types.StatusInfoPredicateChecksFailed

	if permanent {
		session.Status = types.SessionStatusCancelled
		session.StatusHistory = append(session.StatusHistory, types.StatusHistoryEntry{
			Status: string(types.SessionStatusCancelled), At: d.now(), Reason: session.StatusInfo,
		})
		_ = d.Repo.UpdateSession(session)
		metrics.SessionsCancelledTotal.WithLabelValues(session.ResourceGroup, "predicate_failure").Inc()
		d.publish(ctx, types.EventSessionCancelled, session, message)
		return
	}
	_ = d.Repo.UpdateSession(session)
}

func (d *Dispatcher) recordUnplaceable(ctx context.Context, session *types.Session, err error) {
	if session.StatusData.Scheduler == nil {
		session.StatusData.Scheduler = &types.SchedulerStatusData{}
	}
	session.StatusData.Scheduler.Retries++
	session.StatusData.Scheduler.FailedPredicates = append(session.StatusData.Scheduler.FailedPredicates, types.PredicateResult{
		Name: "agent_placement", Passed: false, Message: err.Error(),
	})
	session.StatusInfo = types.StatusInfoNoAvailableInstances
	_ = d.Repo.UpdateSession(session)
}

func (d *Dispatcher) publish(_ context.Context, eventType types.EventType, session *types.Session, message string) {
	if d.Events == nil {
		return
	}
	d.Events.Publish(&types.Event{
		Type: eventType, Timestamp: d.now(), SessionID: session.ID, Message: message,
	})
}

func sumAvailable(agents []*types.Agent) types.ResourceSlot {
	total := types.ResourceSlot{}
	for _, a := range agents {
		total = total.Add(a.AvailableSlots)
	}
	return total
}

func findSession(sessions []*types.Session, id types.SessionID) (*types.Session, int) {
	for i, s := range sessions {
		if s.ID == id {
			return s, i
		}
	}
	return nil, -1
}

func removeAt(sessions []*types.Session, idx int) []*types.Session {
	out := make([]*types.Session, 0, len(sessions)-1)
	out = append(out, sessions[:idx]...)
	return append(out, sessions[idx+1:]...)
}
