package alloc

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/warren/pkg/affinity"
	"github.com/cuemby/warren/pkg/types"
)

func devKey(name, id string) types.DeviceKey {
	return types.DeviceKey{Name: name, ID: types.DeviceID(id)}
}

func countSlots(slotName string, capacities map[string]int64) map[types.DeviceKey]types.DeviceSlot {
	out := make(map[types.DeviceKey]types.DeviceSlot, len(capacities))
	for id, cap := range capacities {
		out[devKey(slotName, id)] = types.DeviceSlot{
			SlotType: types.SlotTypeCount,
			SlotName: slotName,
			Capacity: decimal.NewFromInt(cap),
		}
	}
	return out
}

func TestDiscreteFillSingleSlot(t *testing.T) {
	cfg := Config{DeviceSlots: countSlots("cpu", map[string]int64{"d0": 4, "d1": 4})}
	m, err := NewDiscreteMap(cfg, Fill)
	require.NoError(t, err)

	got, err := m.Allocate(types.NewResourceSlot(map[string]float64{"cpu": 5}), nil)
	require.NoError(t, err)
	assert.True(t, got["cpu"][devKey("cpu", "d0")].Equal(decimal.NewFromInt(4)))
	assert.True(t, got["cpu"][devKey("cpu", "d1")].Equal(decimal.NewFromInt(1)))
}

func TestDiscreteEvenly(t *testing.T) {
	cfg := Config{DeviceSlots: countSlots("cpu", map[string]int64{"d0": 4, "d1": 4, "d2": 4})}
	m, err := NewDiscreteMap(cfg, Evenly)
	require.NoError(t, err)

	got, err := m.Allocate(types.NewResourceSlot(map[string]float64{"cpu": 7}), nil)
	require.NoError(t, err)
	assert.True(t, got["cpu"][devKey("cpu", "d0")].Equal(decimal.NewFromInt(3)))
	assert.True(t, got["cpu"][devKey("cpu", "d1")].Equal(decimal.NewFromInt(2)))
	assert.True(t, got["cpu"][devKey("cpu", "d2")].Equal(decimal.NewFromInt(2)))
}

func TestDiscreteInsufficientLeavesNoPartialCommit(t *testing.T) {
	cfg := Config{DeviceSlots: countSlots("cpu", map[string]int64{"d0": 4})}
	m, err := NewDiscreteMap(cfg, Fill)
	require.NoError(t, err)

	_, err = m.Allocate(types.NewResourceSlot(map[string]float64{"cpu": 5}), nil)
	require.Error(t, err)
	var insufficient *types.InsufficientResource
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, "cpu", insufficient.SlotName)
	assert.True(t, insufficient.TotalAllocatable.Equal(decimal.NewFromInt(4)))

	assert.True(t, m.allocFor("cpu", devKey("cpu", "d0")).IsZero(), "a failed allocate must not leave partial commits")
}

func TestDiscreteFreeUndoesAllocate(t *testing.T) {
	cfg := Config{DeviceSlots: countSlots("cpu", map[string]int64{"d0": 4, "d1": 4})}
	m, err := NewDiscreteMap(cfg, Fill)
	require.NoError(t, err)

	got, err := m.Allocate(types.NewResourceSlot(map[string]float64{"cpu": 5}), nil)
	require.NoError(t, err)

	m.Free(got)
	assert.True(t, m.allocFor("cpu", devKey("cpu", "d0")).IsZero())
	assert.True(t, m.allocFor("cpu", devKey("cpu", "d1")).IsZero())
}

func TestDiscreteUniqueSlotRejectsNonOneQuantity(t *testing.T) {
	slots := countSlots("gpu", map[string]int64{"g0": 1})
	slot := slots[devKey("gpu", "g0")]
	slot.SlotType = types.SlotTypeUnique
	slots[devKey("gpu", "g0")] = slot

	m, err := NewDiscreteMap(Config{DeviceSlots: slots}, Fill)
	require.NoError(t, err)

	_, err = m.Allocate(types.NewResourceSlot(map[string]float64{"gpu": 2}), nil)
	require.Error(t, err)
	var invalid *types.InvalidResourceArgument
	require.ErrorAs(t, err, &invalid)
}

func TestExclusiveSlotCombinationRejected(t *testing.T) {
	slots := countSlots("cuda.shares", map[string]int64{"g0": 4})
	for k, v := range countSlots("cuda.device", map[string]int64{"g0": 1}) {
		slots[k] = v
	}
	m, err := NewDiscreteMap(Config{
		DeviceSlots:        slots,
		ExclusiveSlotTypes: []string{"cuda.*"},
	}, Fill)
	require.NoError(t, err)

	_, err = m.Allocate(types.NewResourceSlot(map[string]float64{"cuda.shares": 1, "cuda.device": 1}), nil)
	require.Error(t, err)
	var combo *types.InvalidResourceCombination
	require.ErrorAs(t, err, &combo)
}

func TestAffinityHintPrefersSameNUMANode(t *testing.T) {
	devices := []types.Device{
		{Name: "cpu", ID: "cpu0", NUMANode: intp(0)},
		{Name: "cpu", ID: "cpu1", NUMANode: intp(0)},
		{Name: "cpu", ID: "cpu2", NUMANode: intp(0)},
		{Name: "cpu", ID: "cpu3", NUMANode: intp(0)},
		{Name: "cpu", ID: "cpu4", NUMANode: intp(1)},
		{Name: "cpu", ID: "cpu5", NUMANode: intp(1)},
		{Name: "cpu", ID: "cpu6", NUMANode: intp(1)},
		{Name: "cpu", ID: "cpu7", NUMANode: intp(1)},
		{Name: "cuda", ID: "gpu0", NUMANode: intp(0)},
		{Name: "cuda", ID: "gpu1", NUMANode: intp(1)},
	}
	m := affinity.Build(devices)

	slots := countSlots("cpu", map[string]int64{
		"cpu0": 1, "cpu1": 1, "cpu2": 1, "cpu3": 1,
		"cpu4": 1, "cpu5": 1, "cpu6": 1, "cpu7": 1,
	})
	am, err := NewDiscreteMap(Config{DeviceSlots: slots, AffinityMap: m}, Fill)
	require.NoError(t, err)

	gpu0 := types.Device{Name: "cuda", ID: "gpu0", NUMANode: intp(0)}
	hint := &types.AffinityHint{Devices: []types.Device{gpu0}, Policy: types.AffinityPreferSingleNode}

	got, err := am.Allocate(types.NewResourceSlot(map[string]float64{"cpu": 2}), hint)
	require.NoError(t, err)
	for devID := range got["cpu"] {
		assert.Contains(t, []types.DeviceID{"cpu0", "cpu1", "cpu2", "cpu3"}, devID,
			"allocation must favor devices on gpu0's NUMA node (0)")
	}
}

func intp(n int) *int { return &n }

func TestDeviceMaskExcludesDevice(t *testing.T) {
	cfg := Config{
		DeviceSlots: countSlots("cpu", map[string]int64{"d0": 4, "d1": 4}),
		DeviceMask:  []types.DeviceKey{devKey("cpu", "d0")},
	}
	m, err := NewDiscreteMap(cfg, Fill)
	require.NoError(t, err)

	got, err := m.Allocate(types.NewResourceSlot(map[string]float64{"cpu": 3}), nil)
	require.NoError(t, err)
	_, usedMasked := got["cpu"][devKey("cpu", "d0")]
	assert.False(t, usedMasked, "masked device must never receive allocation")
	assert.True(t, got["cpu"][devKey("cpu", "d1")].Equal(decimal.NewFromInt(3)))
}
