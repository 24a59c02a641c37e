package selector

import (
	"context"
	"testing"

	"github.com/cuemby/warren/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func agentWith(id string, available, occupied map[string]float64) *types.Agent {
	return &types.Agent{
		ID:             types.AgentID(id),
		AvailableSlots: types.NewResourceSlot(available),
		OccupiedSlots:  types.NewResourceSlot(occupied),
	}
}

func TestLegacyPrefersExactFitAgent(t *testing.T) {
	exact := agentWith("exact", map[string]float64{"cpu": 4}, nil)
	withExtra := agentWith("extra", map[string]float64{"cpu": 4, "cuda.device": 1}, nil)
	requested := types.NewResourceSlot(map[string]float64{"cpu": 2})

	l := Legacy{}
	id, err := l.Select(context.Background(), []*types.Agent{withExtra, exact}, requested, Options{})
	require.NoError(t, err)
	assert.Equal(t, types.AgentID("exact"), id)
}

func TestConcentratedPacksOntoLeastRemaining(t *testing.T) {
	full := agentWith("tight", map[string]float64{"cpu": 4}, map[string]float64{"cpu": 2})  // remaining 2
	empty := agentWith("loose", map[string]float64{"cpu": 8}, map[string]float64{"cpu": 0}) // remaining 8
	requested := types.NewResourceSlot(map[string]float64{"cpu": 1})

	c := Concentrated{}
	id, err := c.Select(context.Background(), []*types.Agent{empty, full}, requested, Options{ResourcePriority: []string{"cpu"}})
	require.NoError(t, err)
	assert.Equal(t, types.AgentID("tight"), id)
}

func TestDispersedSpreadsToMostRemaining(t *testing.T) {
	full := agentWith("tight", map[string]float64{"cpu": 4}, map[string]float64{"cpu": 2})
	empty := agentWith("loose", map[string]float64{"cpu": 8}, map[string]float64{"cpu": 0})
	requested := types.NewResourceSlot(map[string]float64{"cpu": 1})

	d := Dispersed{}
	id, err := d.Select(context.Background(), []*types.Agent{full, empty}, requested, Options{ResourcePriority: []string{"cpu"}})
	require.NoError(t, err)
	assert.Equal(t, types.AgentID("loose"), id)
}

type fakeRRStore struct{ next int }

func (f *fakeRRStore) NextRoundRobinIndex(_ context.Context, _ string, agentCount int) (int, error) {
	idx := f.next % agentCount
	f.next++
	return idx, nil
}

func TestRoundRobinAdvancesCursor(t *testing.T) {
	store := &fakeRRStore{}
	rr := &RoundRobin{state: store, fallback: &Dispersed{}}
	agents := []*types.Agent{agentWith("a", map[string]float64{"cpu": 4}, nil), agentWith("b", map[string]float64{"cpu": 4}, nil)}
	opts := Options{ResourceGroup: "default", Architecture: "x86_64"}

	first, err := rr.Select(context.Background(), agents, types.ResourceSlot{}, opts)
	require.NoError(t, err)
	second, err := rr.Select(context.Background(), agents, types.ResourceSlot{}, opts)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestEndpointReplicaPenaltySpreadsAcrossAgents(t *testing.T) {
	a := agentWith("a", map[string]float64{"cpu": 4}, nil)
	b := agentWith("b", map[string]float64{"cpu": 4}, nil)
	requested := types.NewResourceSlot(map[string]float64{"cpu": 1})

	d := Dispersed{}
	opts := Options{
		ResourcePriority:           []string{"cpu"},
		KernelCountsAtSameEndpoint: map[types.AgentID]int{"a": 2},
	}
	id, err := d.Select(context.Background(), []*types.Agent{a, b}, requested, opts)
	require.NoError(t, err)
	assert.Equal(t, types.AgentID("b"), id)
}
