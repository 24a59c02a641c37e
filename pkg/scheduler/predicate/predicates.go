package predicate

import (
	"context"

	"github.com/cuemby/warren/pkg/types"
)

// CheckFunc evaluates one predicate against a pending session.
type CheckFunc func(ctx context.Context, pc *Context, session *types.Session) (Result, error)

// Predicate pairs a stable name (recorded in status_data) with its check.
type Predicate struct {
	Name  string
	Check CheckFunc
}

// All is the in-order list of predicates the dispatcher runs against every
// pending session. Order matters only for readability of accumulated
// status_data entries; every predicate always runs regardless of earlier
// failures.
var All = []Predicate{
	{"reserved_batch_session", checkReservedBatchSession},
	{"dependencies", checkDependencies},
	{"concurrency", checkConcurrency},
	{"keypair_resource_limit", checkKeypairResourceLimit},
	{"user_resource_limit", checkUserResourceLimit},
	{"group_resource_limit", checkGroupResourceLimit},
	{"domain_resource_limit", checkDomainResourceLimit},
	{"pending_session_count_limit", checkPendingSessionCountLimit},
	{"pending_session_resource_limit", checkPendingSessionResourceLimit},
	{"scaling_group", checkScalingGroup},
}

func checkReservedBatchSession(_ context.Context, pc *Context, session *types.Session) (Result, error) {
	if session.Type != types.SessionTypeBatch || session.StartsAt == nil {
		return pass(), nil
	}
	if pc.now().Before(*session.StartsAt) {
		return fail(false, "reserved batch session starts at %s", session.StartsAt.Format("2006-01-02T15:04:05Z07:00")), nil
	}
	return pass(), nil
}

func checkDependencies(_ context.Context, pc *Context, session *types.Session) (Result, error) {
	edges, err := pc.Repo.ListDependencies(session.ID)
	if err != nil {
		return Result{}, err
	}
	for _, edge := range edges {
		predecessor, err := pc.Repo.GetSession(edge.Predecessor)
		if err != nil {
			return fail(false, "predecessor %s not found", edge.Predecessor), nil
		}
		if predecessor.Status != types.SessionStatusTerminated {
			return fail(false, "predecessor %s has not terminated successfully (status %s)", edge.Predecessor, predecessor.Status), nil
		}
	}
	return pass(), nil
}

// checkConcurrency atomically reserves one concurrency slot for the
// session's access key. On any later predicate failure the dispatcher must
// call pc.State.DecrConcurrency for this access key to undo the
// reservation, since this is the only predicate with a side effect.
func checkConcurrency(ctx context.Context, pc *Context, session *types.Session) (Result, error) {
	policy, err := pc.Repo.GetKeypairResourcePolicy(session.AccessKey)
	if err != nil {
		return fail(true, "no resource policy for access key %s", session.AccessKey), nil
	}

	used, err := pc.State.IncrConcurrency(ctx, session.AccessKey)
	if err != nil {
		return Result{}, err
	}
	if int(used) > policy.MaxConcurrentSessions {
		_, _ = pc.State.DecrConcurrency(ctx, session.AccessKey)
		return fail(false, "concurrency limit %d exceeded for access key %s", policy.MaxConcurrentSessions, session.AccessKey), nil
	}
	return pass(), nil
}

func checkKeypairResourceLimit(_ context.Context, pc *Context, session *types.Session) (Result, error) {
	policy, err := pc.Repo.GetKeypairResourcePolicy(session.AccessKey)
	if err != nil {
		return fail(true, "no resource policy for access key %s", session.AccessKey), nil
	}
	sessions, err := pc.Repo.ListSessionsByAccessKey(session.AccessKey)
	if err != nil {
		return Result{}, err
	}
	occupied := occupancyOf(sessions)
	if !occupied.Add(session.RequestedSlots).LessThanOrEqual(policy.TotalResourceSlots) {
		return fail(false, "keypair %s resource limit exceeded", session.AccessKey), nil
	}
	return pass(), nil
}

func checkUserResourceLimit(_ context.Context, pc *Context, session *types.Session) (Result, error) {
	policy, err := pc.Repo.GetUserResourcePolicy(session.AccessKey)
	if err != nil {
		// No user-scoped policy is configured for this access key; treat as
		// unbounded rather than blocking every session on missing config.
		return pass(), nil
	}
	sessions, err := pc.Repo.ListSessionsByAccessKey(session.AccessKey)
	if err != nil {
		return Result{}, err
	}
	occupied := occupancyOf(sessions)
	if !occupied.Add(session.RequestedSlots).LessThanOrEqual(policy.TotalResourceSlots) {
		return fail(false, "user resource limit exceeded for access key %s", session.AccessKey), nil
	}
	return pass(), nil
}

func checkGroupResourceLimit(_ context.Context, pc *Context, session *types.Session) (Result, error) {
	group, err := pc.Repo.GetGroup(session.Group)
	if err != nil {
		return pass(), nil
	}
	sessions, err := pc.Repo.ListSessions()
	if err != nil {
		return Result{}, err
	}
	var scoped []*types.Session
	for _, s := range sessions {
		if s.Group == session.Group {
			scoped = append(scoped, s)
		}
	}
	occupied := occupancyOf(scoped)
	if !occupied.Add(session.RequestedSlots).LessThanOrEqual(group.TotalResourceSlots) {
		return fail(false, "group %s resource limit exceeded", session.Group), nil
	}
	return pass(), nil
}

func checkDomainResourceLimit(_ context.Context, pc *Context, session *types.Session) (Result, error) {
	domain, err := pc.Repo.GetDomain(session.Domain)
	if err != nil {
		return pass(), nil
	}
	sessions, err := pc.Repo.ListSessions()
	if err != nil {
		return Result{}, err
	}
	var scoped []*types.Session
	for _, s := range sessions {
		if s.Domain == session.Domain {
			scoped = append(scoped, s)
		}
	}
	occupied := occupancyOf(scoped)
	if !occupied.Add(session.RequestedSlots).LessThanOrEqual(domain.TotalResourceSlots) {
		return fail(false, "domain %s resource limit exceeded", session.Domain), nil
	}
	return pass(), nil
}

func checkPendingSessionCountLimit(_ context.Context, pc *Context, session *types.Session) (Result, error) {
	policy, err := pc.Repo.GetKeypairResourcePolicy(session.AccessKey)
	if err != nil {
		return fail(true, "no resource policy for access key %s", session.AccessKey), nil
	}
	if policy.MaxPendingSessionCount <= 0 {
		return pass(), nil
	}
	sessions, err := pc.Repo.ListSessionsByAccessKey(session.AccessKey)
	if err != nil {
		return Result{}, err
	}
	count := 0
	for _, s := range sessions {
		if s.Status == types.SessionStatusPending {
			count++
		}
	}
	if count > policy.MaxPendingSessionCount {
		return fail(false, "pending session count limit %d exceeded for access key %s", policy.MaxPendingSessionCount, session.AccessKey), nil
	}
	return pass(), nil
}

func checkPendingSessionResourceLimit(_ context.Context, pc *Context, session *types.Session) (Result, error) {
	policy, err := pc.Repo.GetKeypairResourcePolicy(session.AccessKey)
	if err != nil {
		return fail(true, "no resource policy for access key %s", session.AccessKey), nil
	}
	if policy.MaxPendingSessionResourceSlots == nil {
		return pass(), nil
	}
	sessions, err := pc.Repo.ListSessionsByAccessKey(session.AccessKey)
	if err != nil {
		return Result{}, err
	}
	total := session.RequestedSlots.Clone()
	for _, s := range sessions {
		if s.Status == types.SessionStatusPending && s.ID != session.ID {
			total = total.Add(s.RequestedSlots)
		}
	}
	if !total.LessThanOrEqual(policy.MaxPendingSessionResourceSlots) {
		return fail(false, "pending session resource limit exceeded for access key %s", session.AccessKey), nil
	}
	return pass(), nil
}

// checkScalingGroup is permanent: a session requesting a resource group its
// keypair isn't allowed to use, or that doesn't accept its session type,
// will never clear this predicate by waiting.
func checkScalingGroup(_ context.Context, pc *Context, session *types.Session) (Result, error) {
	policy, err := pc.Repo.GetKeypairResourcePolicy(session.AccessKey)
	if err != nil {
		return fail(true, "no resource policy for access key %s", session.AccessKey), nil
	}
	allowed := false
	for _, rg := range policy.AllowedResourceGroups {
		if rg == session.ResourceGroup {
			allowed = true
			break
		}
	}
	if !allowed {
		return fail(true, "resource group %s not in allowed list for access key %s", session.ResourceGroup, session.AccessKey), nil
	}

	rg, err := pc.Repo.GetResourceGroup(session.ResourceGroup)
	if err != nil {
		return fail(true, "resource group %s does not exist", session.ResourceGroup), nil
	}
	for _, t := range rg.AllowedSessionTypes {
		if t == session.Type {
			return pass(), nil
		}
	}
	return fail(true, "resource group %s does not accept session type %s", session.ResourceGroup, session.Type), nil
}

// occupancyOf sums OccupyingSlots over every session still occupying
// resources (scheduled through terminating), the same USEROccupyingStatuses
// set that gates the concurrency counter.
func occupancyOf(sessions []*types.Session) types.ResourceSlot {
	total := types.ResourceSlot{}
	for _, s := range sessions {
		if types.USEROccupyingStatuses[s.Status] {
			total = total.Add(s.OccupyingSlots)
		}
	}
	return total
}
