package scheduler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/cuemby/warren/pkg/agentrpc"
	"github.com/cuemby/warren/pkg/events"
	"github.com/cuemby/warren/pkg/statestore"
	"github.com/cuemby/warren/pkg/types"
	"github.com/stretchr/testify/require"
)

// fakeStore is an in-memory Store for dispatcher tests, covering both the
// embedded predicate.Store surface and the additional resource-group/agent/
// kernel read-writes the dispatcher itself needs.
type fakeStore struct {
	keypairPolicies map[string]*types.KeypairResourcePolicy
	userPolicies    map[string]*types.UserResourcePolicy
	groups          map[string]*types.Group
	domains         map[string]*types.Domain
	resourceGroups  map[string]*types.ResourceGroup
	sessions        map[types.SessionID]*types.Session
	agents          map[types.AgentID]*types.Agent
	kernels         map[types.KernelID]*types.Kernel
	dependencies    []types.DependencyEdge
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		keypairPolicies: make(map[string]*types.KeypairResourcePolicy),
		userPolicies:    make(map[string]*types.UserResourcePolicy),
		groups:          make(map[string]*types.Group),
		domains:         make(map[string]*types.Domain),
		resourceGroups:  make(map[string]*types.ResourceGroup),
		sessions:        make(map[types.SessionID]*types.Session),
		agents:          make(map[types.AgentID]*types.Agent),
		kernels:         make(map[types.KernelID]*types.Kernel),
	}
}

func (f *fakeStore) GetKeypairResourcePolicy(name string) (*types.KeypairResourcePolicy, error) {
	p, ok := f.keypairPolicies[name]
	if !ok {
		return nil, fmt.Errorf("keypair resource policy not found: %s", name)
	}
	return p, nil
}
func (f *fakeStore) GetUserResourcePolicy(name string) (*types.UserResourcePolicy, error) {
	p, ok := f.userPolicies[name]
	if !ok {
		return nil, fmt.Errorf("user resource policy not found: %s", name)
	}
	return p, nil
}
func (f *fakeStore) GetGroup(id string) (*types.Group, error) {
	g, ok := f.groups[id]
	if !ok {
		return nil, fmt.Errorf("group not found: %s", id)
	}
	return g, nil
}
func (f *fakeStore) GetDomain(name string) (*types.Domain, error) {
	d, ok := f.domains[name]
	if !ok {
		return nil, fmt.Errorf("domain not found: %s", name)
	}
	return d, nil
}
func (f *fakeStore) GetResourceGroup(name string) (*types.ResourceGroup, error) {
	rg, ok := f.resourceGroups[name]
	if !ok {
		return nil, fmt.Errorf("resource group not found: %s", name)
	}
	return rg, nil
}
func (f *fakeStore) GetSession(id types.SessionID) (*types.Session, error) {
	s, ok := f.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session not found: %s", id)
	}
	return s, nil
}
func (f *fakeStore) ListSessions() ([]*types.Session, error) {
	out := make([]*types.Session, 0, len(f.sessions))
	for _, s := range f.sessions {
		out = append(out, s)
	}
	return out, nil
}
func (f *fakeStore) ListSessionsByAccessKey(accessKey string) ([]*types.Session, error) {
	var out []*types.Session
	for _, s := range f.sessions {
		if s.AccessKey == accessKey {
			out = append(out, s)
		}
	}
	return out, nil
}
func (f *fakeStore) ListDependencies(dependent types.SessionID) ([]types.DependencyEdge, error) {
	var out []types.DependencyEdge
	for _, e := range f.dependencies {
		if e.Dependent == dependent {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeStore) ListResourceGroups() ([]*types.ResourceGroup, error) {
	out := make([]*types.ResourceGroup, 0, len(f.resourceGroups))
	for _, rg := range f.resourceGroups {
		out = append(out, rg)
	}
	return out, nil
}
func (f *fakeStore) ListSessionsByResourceGroup(rg string) ([]*types.Session, error) {
	var out []*types.Session
	for _, s := range f.sessions {
		if s.ResourceGroup == rg {
			out = append(out, s)
		}
	}
	return out, nil
}
func (f *fakeStore) ListAgentsByResourceGroup(rg string) ([]*types.Agent, error) {
	var out []*types.Agent
	for _, a := range f.agents {
		if a.ResourceGroup == rg {
			out = append(out, a)
		}
	}
	return out, nil
}
func (f *fakeStore) GetAgent(id types.AgentID) (*types.Agent, error) {
	a, ok := f.agents[id]
	if !ok {
		return nil, fmt.Errorf("agent not found: %s", id)
	}
	return a, nil
}
func (f *fakeStore) UpdateAgent(a *types.Agent) error { f.agents[a.ID] = a; return nil }
func (f *fakeStore) UpdateSession(s *types.Session) error {
	f.sessions[s.ID] = s
	return nil
}
func (f *fakeStore) CreateKernel(k *types.Kernel) error { f.kernels[k.ID] = k; return nil }
func (f *fakeStore) UpdateKernel(k *types.Kernel) error { f.kernels[k.ID] = k; return nil }
func (f *fakeStore) ListKernelsBySession(sessionID types.SessionID) ([]*types.Kernel, error) {
	var out []*types.Kernel
	for _, k := range f.kernels {
		if k.SessionID == sessionID {
			out = append(out, k)
		}
	}
	return out, nil
}

func slots(cpu float64) types.ResourceSlot {
	return types.NewResourceSlot(map[string]float64{"cpu": cpu})
}

func newTestDispatcher(store *fakeStore) *Dispatcher {
	fixed := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	return &Dispatcher{
		Repo:   store,
		State:  statestore.NewMemoryStore(),
		Agents: agentrpc.NewFake(),
		Events: events.NewBroker(),
		Now:    func() time.Time { return fixed },
	}
}

func seedResourceGroup(store *fakeStore, name string) {
	store.resourceGroups[name] = &types.ResourceGroup{
		Name:            name,
		SchedulerPolicy: "fifo",
		AgentSelector:   "dispersed",
		AllowedSessionTypes: []types.SessionType{types.SessionTypeInteractive},
	}
}

func seedAgent(store *fakeStore, id types.AgentID, rg string, cpu float64) *types.Agent {
	a := &types.Agent{
		ID: id, Address: string(id) + ":6001", Architecture: "x86_64",
		ResourceGroup: rg, Status: types.AgentStatusAlive,
		AvailableSlots: slots(cpu),
	}
	store.agents[id] = a
	return a
}

func seedSingleNodeSession(store *fakeStore, id types.SessionID, rg string, cpu float64) *types.Session {
	s := &types.Session{
		ID: id, AccessKey: "ak1", ResourceGroup: rg, Status: types.SessionStatusPending,
		Type:        types.SessionTypeInteractive,
		ClusterMode: types.ClusterModeSingleNode, RequestedSlots: slots(cpu), CreatedAt: time.Now(),
	}
	store.sessions[id] = s
	if _, ok := store.keypairPolicies["ak1"]; !ok {
		store.keypairPolicies["ak1"] = &types.KeypairResourcePolicy{
			Name: "ak1", MaxConcurrentSessions: 10, TotalResourceSlots: slots(100),
			AllowedResourceGroups: []string{rg},
		}
	}
	k := &types.Kernel{
		ID: types.KernelID(string(id) + "-main"), SessionID: id, ClusterRole: types.ClusterRoleMain,
		Architecture: "x86_64", Image: "test-image", RequestedSlots: slots(cpu),
		ResourceSpec: &types.KernelResourceSpec{Slots: slots(cpu)},
		Status:       types.KernelStatusPending,
	}
	store.kernels[k.ID] = k
	return s
}

func TestDispatcherSchedulesSingleNodeSession(t *testing.T) {
	store := newFakeStore()
	seedResourceGroup(store, "default")
	agent := seedAgent(store, "agent-1", "default", 4)
	session := seedSingleNodeSession(store, "sess-1", "default", 2)

	d := newTestDispatcher(store)
	require.NoError(t, d.Tick(context.Background()))

	got, err := store.GetSession("sess-1")
	require.NoError(t, err)
	require.Equal(t, types.SessionStatusScheduled, got.Status)
	require.Equal(t, []types.AgentID{"agent-1"}, got.AgentIDs)

	refreshed, err := store.GetAgent(agent.ID)
	require.NoError(t, err)
	require.True(t, refreshed.OccupiedSlots.Get("cpu").Equal(slots(2).Get("cpu")))

	kernels, err := store.ListKernelsBySession(session.ID)
	require.NoError(t, err)
	require.Len(t, kernels, 1)
	require.Equal(t, types.KernelStatusScheduled, kernels[0].Status)
	require.Equal(t, agent.ID, kernels[0].AgentID)
}

func TestDispatcherCancelsPermanentPredicateFailure(t *testing.T) {
	store := newFakeStore()
	seedResourceGroup(store, "default")
	seedAgent(store, "agent-1", "default", 4)
	session := seedSingleNodeSession(store, "sess-1", "default", 2)
	session.Type = types.SessionTypeInteractive
	store.keypairPolicies["ak1"] = &types.KeypairResourcePolicy{
		Name: "ak1", AllowedResourceGroups: []string{"other-group-only"},
	}

	d := newTestDispatcher(store)
	require.NoError(t, d.Tick(context.Background()))

	got, err := store.GetSession("sess-1")
	require.NoError(t, err)
	require.Equal(t, types.SessionStatusCancelled, got.Status)
	require.Equal(t, types.StatusInfoPredicateChecksFailed, got.StatusInfo)
}

func TestDispatcherLeavesUnplaceableSessionPendingForRetry(t *testing.T) {
	store := newFakeStore()
	seedResourceGroup(store, "default")
	seedAgent(store, "agent-1", "default", 1) // too small for the session
	seedSingleNodeSession(store, "sess-1", "default", 4)

	d := newTestDispatcher(store)
	require.NoError(t, d.Tick(context.Background()))

	got, err := store.GetSession("sess-1")
	require.NoError(t, err)
	require.Equal(t, types.SessionStatusPending, got.Status)
	require.Equal(t, types.StatusInfoNoAvailableInstances, got.StatusInfo)
	require.NotNil(t, got.StatusData.Scheduler)
	require.Equal(t, 1, got.StatusData.Scheduler.Retries)
}

func TestDispatcherSkipsResourceGroupWhenLockHeld(t *testing.T) {
	store := newFakeStore()
	seedResourceGroup(store, "default")
	seedAgent(store, "agent-1", "default", 4)
	seedSingleNodeSession(store, "sess-1", "default", 2)

	d := newTestDispatcher(store)
	ok, err := d.State.AcquireLock(context.Background(), statestore.LockSchedule, "default", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, d.Tick(context.Background()))

	got, err := store.GetSession("sess-1")
	require.NoError(t, err)
	require.Equal(t, types.SessionStatusPending, got.Status, "locked resource group must be skipped, not scheduled")
}

func TestDispatcherFlushesPendingTimeoutToCancelled(t *testing.T) {
	store := newFakeStore()
	store.resourceGroups["default"] = &types.ResourceGroup{
		Name: "default", SchedulerPolicy: "fifo", AgentSelector: "dispersed",
		PendingTimeout: time.Minute,
	}
	seedAgent(store, "agent-1", "default", 4)
	session := seedSingleNodeSession(store, "sess-1", "default", 2)
	session.CreatedAt = time.Date(2026, 7, 31, 11, 0, 0, 0, time.UTC) // 1h before fixed Now

	d := newTestDispatcher(store)
	require.NoError(t, d.Tick(context.Background()))

	got, err := store.GetSession("sess-1")
	require.NoError(t, err)
	require.Equal(t, types.SessionStatusCancelled, got.Status)
	require.Equal(t, types.StatusInfoPendingTimeout, got.StatusInfo)
}

func TestStartSessionSettlesActualSlotsAndMarksRunning(t *testing.T) {
	store := newFakeStore()
	seedResourceGroup(store, "default")
	agent := seedAgent(store, "agent-1", "default", 4)
	session := seedSingleNodeSession(store, "sess-1", "default", 2)

	d := newTestDispatcher(store)
	require.NoError(t, d.Tick(context.Background()))

	fake := d.Agents.(*agentrpc.Fake)
	fake.ActualSlotsOverride["sess-1-main"] = slots(2.5)

	require.NoError(t, d.StartSession(context.Background(), session.ID))

	got, err := store.GetSession(session.ID)
	require.NoError(t, err)
	require.Equal(t, types.SessionStatusRunning, got.Status)

	kernels, err := store.ListKernelsBySession(session.ID)
	require.NoError(t, err)
	require.Len(t, kernels, 1)
	require.Equal(t, types.KernelStatusRunning, kernels[0].Status)
	require.NotEmpty(t, kernels[0].ContainerID)

	refreshed, err := store.GetAgent(agent.ID)
	require.NoError(t, err)
	require.True(t, refreshed.OccupiedSlots.Get("cpu").Equal(slots(2.5).Get("cpu")),
		"agent occupied_slots must reflect the agent's actual, rounded allocation")
}

func TestStartSessionFailureCancelsKernelsAndReleasesReservation(t *testing.T) {
	store := newFakeStore()
	seedResourceGroup(store, "default")
	agent := seedAgent(store, "agent-1", "default", 4)
	session := seedSingleNodeSession(store, "sess-1", "default", 2)

	d := newTestDispatcher(store)
	require.NoError(t, d.Tick(context.Background()))

	fake := d.Agents.(*agentrpc.Fake)
	fake.FailCreateFor["sess-1-main"] = "image pull failed"

	err := d.StartSession(context.Background(), session.ID)
	require.Error(t, err)

	got, err := store.GetSession(session.ID)
	require.NoError(t, err)
	require.Equal(t, types.SessionStatusCancelled, got.Status)

	kernels, err := store.ListKernelsBySession(session.ID)
	require.NoError(t, err)
	require.Equal(t, types.KernelStatusCancelled, kernels[0].Status)
	require.Equal(t, types.StatusInfoFailedToStart, kernels[0].StatusInfo)
	require.Equal(t, types.StatusInfoFailedToStart, got.StatusInfo)
	require.NotNil(t, got.StatusData.Error)

	refreshed, err := store.GetAgent(agent.ID)
	require.NoError(t, err)
	require.True(t, refreshed.OccupiedSlots.IsZero(), "reservation must be released after a failed start")
}

// TestFailSessionDestroysAndRollsBackAlreadyCreatedKernels exercises the
// multi-agent case directly: one kernel already RUNNING on an earlier agent
// when a later agent's kernel fails to create. The all-or-nothing invariant
// requires the earlier kernel to be destroyed and its reservation released
// too, not left running with a live reservation.
func TestFailSessionDestroysAndRollsBackAlreadyCreatedKernels(t *testing.T) {
	store := newFakeStore()
	seedResourceGroup(store, "default")
	agent1 := seedAgent(store, "agent-1", "default", 4)
	agent2 := seedAgent(store, "agent-2", "default", 4)

	session := &types.Session{
		ID: "sess-1", AccessKey: "ak1", ResourceGroup: "default",
		Status: types.SessionStatusPreparing, ClusterMode: types.ClusterModeMultiNode,
		RequestedSlots: slots(4), CreatedAt: time.Now(),
	}
	store.sessions[session.ID] = session

	mainKernel := &types.Kernel{
		ID: "sess-1-main", SessionID: session.ID, ClusterRole: types.ClusterRoleMain, ClusterIdx: 0,
		Architecture: "x86_64", Image: "test-image", RequestedSlots: slots(2),
		AgentID: agent1.ID, AgentAddr: agent1.Address,
		Status: types.KernelStatusRunning, OccupiedSlots: slots(2),
	}
	subKernel := &types.Kernel{
		ID: "sess-1-sub0", SessionID: session.ID, ClusterRole: types.ClusterRoleSub, ClusterIdx: 1,
		Architecture: "x86_64", Image: "test-image", RequestedSlots: slots(2),
		AgentID: agent2.ID, AgentAddr: agent2.Address,
		Status: types.KernelStatusScheduled,
	}
	store.kernels[mainKernel.ID] = mainKernel
	store.kernels[subKernel.ID] = subKernel

	agent1.OccupiedSlots = slots(2)
	agent2.OccupiedSlots = slots(2)

	d := newTestDispatcher(store)
	d.failSession(context.Background(), session.ID, []*types.Kernel{mainKernel, subKernel}, fmt.Errorf("agent-2 unreachable"))

	fake := d.Agents.(*agentrpc.Fake)
	require.Contains(t, fake.Destroyed, mainKernel.ID, "the already-running kernel on the earlier agent must be torn down")

	refreshedMain := store.kernels[mainKernel.ID]
	require.Equal(t, types.KernelStatusCancelled, refreshedMain.Status)
	require.Equal(t, types.StatusInfoFailedToStart, refreshedMain.StatusInfo)

	refreshedSub := store.kernels[subKernel.ID]
	require.Equal(t, types.KernelStatusCancelled, refreshedSub.Status)

	refreshedAgent1, err := store.GetAgent(agent1.ID)
	require.NoError(t, err)
	require.True(t, refreshedAgent1.OccupiedSlots.IsZero(), "earlier agent's reservation must be released too")

	refreshedAgent2, err := store.GetAgent(agent2.ID)
	require.NoError(t, err)
	require.True(t, refreshedAgent2.OccupiedSlots.IsZero())

	gotSession, err := store.GetSession(session.ID)
	require.NoError(t, err)
	require.Equal(t, types.SessionStatusCancelled, gotSession.Status)
	require.Equal(t, types.StatusInfoFailedToStart, gotSession.StatusInfo)
	require.NotNil(t, gotSession.StatusData.Error)
	require.Equal(t, "agent-2 unreachable", gotSession.StatusData.Error.Repr)
}
