package accounting

import (
	"context"
	"testing"

	"github.com/cuemby/warren/pkg/statestore"
	"github.com/cuemby/warren/pkg/types"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	agents   map[types.AgentID]*types.Agent
	kernels  map[types.AgentID][]*types.Kernel
	sessions []*types.Session
}

func (f *fakeStore) ListAgents() ([]*types.Agent, error) {
	out := make([]*types.Agent, 0, len(f.agents))
	for _, a := range f.agents {
		out = append(out, a)
	}
	return out, nil
}

func (f *fakeStore) UpdateAgent(a *types.Agent) error {
	f.agents[a.ID] = a
	return nil
}

func (f *fakeStore) ListKernelsByAgent(agentID types.AgentID) ([]*types.Kernel, error) {
	return f.kernels[agentID], nil
}

func (f *fakeStore) ListSessions() ([]*types.Session, error) {
	return f.sessions, nil
}

func slots(cpu float64) types.ResourceSlot {
	return types.NewResourceSlot(map[string]float64{"cpu": cpu})
}

func TestRecalcCorrectsDriftedAgent(t *testing.T) {
	agent := &types.Agent{ID: "agent-1", ResourceGroup: "default", OccupiedSlots: slots(4)}
	store := &fakeStore{
		agents: map[types.AgentID]*types.Agent{"agent-1": agent},
		kernels: map[types.AgentID][]*types.Kernel{
			"agent-1": {
				{ID: "k1", AgentID: "agent-1", Status: types.KernelStatusRunning, OccupiedSlots: slots(2)},
				{ID: "k2", AgentID: "agent-1", Status: types.KernelStatusTerminated, OccupiedSlots: slots(2)},
			},
		},
	}
	r := NewRecalculator(store, statestore.NewMemoryStore(), 0)

	require.NoError(t, r.Recalc(context.Background(), true))
	require.True(t, store.agents["agent-1"].OccupiedSlots.Sub(slots(2)).IsZero())
}

func TestRecalcLeavesCorrectAgentUntouched(t *testing.T) {
	agent := &types.Agent{ID: "agent-1", ResourceGroup: "default", OccupiedSlots: slots(2)}
	store := &fakeStore{
		agents: map[types.AgentID]*types.Agent{"agent-1": agent},
		kernels: map[types.AgentID][]*types.Kernel{
			"agent-1": {{ID: "k1", AgentID: "agent-1", Status: types.KernelStatusRunning, OccupiedSlots: slots(2)}},
		},
	}
	r := NewRecalculator(store, statestore.NewMemoryStore(), 0)

	require.NoError(t, r.Recalc(context.Background(), true))
	require.True(t, store.agents["agent-1"].OccupiedSlots.Sub(slots(2)).IsZero())
}

func TestRecalcDeltaSkipsIdleAgents(t *testing.T) {
	idle := &types.Agent{ID: "agent-idle", ResourceGroup: "default", OccupiedSlots: slots(3)}
	store := &fakeStore{
		agents:  map[types.AgentID]*types.Agent{"agent-idle": idle},
		kernels: map[types.AgentID][]*types.Kernel{"agent-idle": nil},
	}
	r := NewRecalculator(store, statestore.NewMemoryStore(), 0)

	require.NoError(t, r.Recalc(context.Background(), false))
	// Stale drift on an agent with zero occupying kernels is left for the
	// next full-scan pass, not corrected by the delta path.
	require.True(t, store.agents["agent-idle"].OccupiedSlots.Sub(slots(3)).IsZero())
}

func TestRecalcSetsConcurrencyFromOccupyingSessions(t *testing.T) {
	store := &fakeStore{
		agents: map[types.AgentID]*types.Agent{},
		sessions: []*types.Session{
			{ID: "s1", AccessKey: "ak1", Status: types.SessionStatusRunning},
			{ID: "s2", AccessKey: "ak1", Status: types.SessionStatusPreparing},
			{ID: "s3", AccessKey: "ak1", Status: types.SessionStatusTerminated},
			{ID: "s4", AccessKey: "ak2", Status: types.SessionStatusPending},
		},
	}
	state := statestore.NewMemoryStore()
	r := NewRecalculator(store, state, 0)

	require.NoError(t, r.Recalc(context.Background(), true))

	used, err := state.GetConcurrency(context.Background(), "ak1")
	require.NoError(t, err)
	require.EqualValues(t, 2, used)

	used, err = state.GetConcurrency(context.Background(), "ak2")
	require.NoError(t, err)
	require.EqualValues(t, 0, used)
}

func TestRecalcIsIdempotent(t *testing.T) {
	agent := &types.Agent{ID: "agent-1", ResourceGroup: "default", OccupiedSlots: slots(9)}
	store := &fakeStore{
		agents: map[types.AgentID]*types.Agent{"agent-1": agent},
		kernels: map[types.AgentID][]*types.Kernel{
			"agent-1": {{ID: "k1", AgentID: "agent-1", Status: types.KernelStatusRunning, OccupiedSlots: slots(2)}},
		},
	}
	r := NewRecalculator(store, statestore.NewMemoryStore(), 0)

	require.NoError(t, r.Recalc(context.Background(), true))
	first := store.agents["agent-1"].OccupiedSlots.Clone()
	require.NoError(t, r.Recalc(context.Background(), true))
	require.True(t, first.Sub(store.agents["agent-1"].OccupiedSlots).IsZero())
}
