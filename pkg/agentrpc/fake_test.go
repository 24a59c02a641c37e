package agentrpc

import (
	"context"
	"testing"

	"github.com/cuemby/warren/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeCreateKernelsEchoesRequestedSlots(t *testing.T) {
	f := NewFake()
	spec := KernelSpec{
		KernelID: "k1",
		ResourceSpec: &types.KernelResourceSpec{
			Slots: types.NewResourceSlot(map[string]float64{"cpu": 2}),
		},
	}

	results, err := f.CreateKernels(context.Background(), "agent-1:6001", []KernelSpec{spec})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, types.KernelID("k1"), results[0].KernelID)
	assert.True(t, results[0].ActualSlots.Get("cpu").Equal(spec.ResourceSpec.Slots.Get("cpu")))
	assert.Empty(t, results[0].Err)
}

func TestFakeCreateKernelsHonorsOverrideAndFailure(t *testing.T) {
	f := NewFake()
	f.ActualSlotsOverride["k-rounded"] = types.NewResourceSlot(map[string]float64{"cuda.shares": 0.5})
	f.FailCreateFor["k-bad"] = "image not found"

	specs := []KernelSpec{
		{KernelID: "k-rounded", ResourceSpec: &types.KernelResourceSpec{Slots: types.NewResourceSlot(map[string]float64{"cuda.shares": 0.75})}},
		{KernelID: "k-bad", ResourceSpec: &types.KernelResourceSpec{Slots: types.NewResourceSlot(map[string]float64{"cpu": 1})}},
	}
	results, err := f.CreateKernels(context.Background(), "agent-1:6001", specs)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.True(t, results[0].ActualSlots.Get("cuda.shares").Equal(f.ActualSlotsOverride["k-rounded"].Get("cuda.shares")))
	assert.Equal(t, "image not found", results[1].Err)
}

func TestFakeFailAgentsRejectsEveryCall(t *testing.T) {
	f := NewFake()
	f.FailAgents["agent-down:6001"] = true

	_, err := f.CreateKernels(context.Background(), "agent-down:6001", nil)
	assert.Error(t, err)

	err = f.DestroyKernel(context.Background(), "agent-down:6001", "k1", "cleanup")
	assert.Error(t, err)
}
