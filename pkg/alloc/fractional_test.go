package alloc

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/warren/pkg/types"
)

func fractionSlots(slotName string, capacities map[string]string) map[types.DeviceKey]types.DeviceSlot {
	out := make(map[types.DeviceKey]types.DeviceSlot, len(capacities))
	for id, cap := range capacities {
		out[devKey(slotName, id)] = types.DeviceSlot{
			SlotType: types.SlotTypeBytes,
			SlotName: slotName,
			Capacity: decimal.RequireFromString(cap),
		}
	}
	return out
}

func TestFractionalEvenlyAcrossTwoGPUs(t *testing.T) {
	cfg := FractionalConfig{
		Config:      Config{DeviceSlots: fractionSlots("cuda.shares", map[string]string{"g0": "1.00", "g1": "1.00"})},
		QuantumSize: decimal.RequireFromString("0.01"),
	}
	m, err := NewFractionalMap(cfg, Evenly)
	require.NoError(t, err)

	got, err := m.AllocateWithMinMemory(
		types.NewResourceSlot(map[string]float64{"cuda.shares": 1.50}),
		nil,
		decimal.RequireFromString("0.10"),
	)
	require.NoError(t, err)
	assert.True(t, got["cuda.shares"][devKey("cuda.shares", "g0")].Equal(decimal.RequireFromString("0.75")))
	assert.True(t, got["cuda.shares"][devKey("cuda.shares", "g1")].Equal(decimal.RequireFromString("0.75")))
}

func TestFractionalFitsSmallestSufficientDevice(t *testing.T) {
	// g0 has tighter headroom than g1; a request that fits on both should
	// land on the tighter-fitting device, leaving g1 fully free.
	cfg := FractionalConfig{
		Config: Config{DeviceSlots: fractionSlots("cuda.shares", map[string]string{
			"g0": "0.90",
			"g1": "1.00",
		})},
		QuantumSize: decimal.RequireFromString("0.01"),
	}
	m, err := NewFractionalMap(cfg, Evenly)
	require.NoError(t, err)

	got, err := m.AllocateWithMinMemory(
		types.NewResourceSlot(map[string]float64{"cuda.shares": 0.80}),
		nil,
		decimal.RequireFromString("0.10"),
	)
	require.NoError(t, err)
	alloc := got["cuda.shares"]
	require.Len(t, alloc, 1)
	assert.True(t, alloc[devKey("cuda.shares", "g0")].Equal(decimal.RequireFromString("0.80")))
}

func TestFractionalNotMultipleOfQuantum(t *testing.T) {
	cfg := FractionalConfig{
		Config:      Config{DeviceSlots: fractionSlots("cuda.shares", map[string]string{"g0": "1.00"})},
		QuantumSize: decimal.RequireFromString("0.10"),
	}
	m, err := NewFractionalMap(cfg, Fill)
	require.NoError(t, err)

	_, err = m.AllocateWithMinMemory(
		types.NewResourceSlot(map[string]float64{"cuda.shares": 0.01}),
		nil,
		decimal.Zero,
	)
	require.Error(t, err)
	var notMultiple *types.NotMultipleOfQuantum
	require.ErrorAs(t, err, &notMultiple)
}

func TestFractionalMinMemoryExcludesSliver(t *testing.T) {
	cfg := FractionalConfig{
		Config: Config{DeviceSlots: fractionSlots("cuda.shares", map[string]string{
			"g0": "0.05",
			"g1": "1.00",
		})},
		QuantumSize: decimal.RequireFromString("0.01"),
	}
	m, err := NewFractionalMap(cfg, Evenly)
	require.NoError(t, err)

	got, err := m.AllocateWithMinMemory(
		types.NewResourceSlot(map[string]float64{"cuda.shares": 0.50}),
		nil,
		decimal.RequireFromString("0.10"),
	)
	require.NoError(t, err)
	_, tookSliver := got["cuda.shares"][devKey("cuda.shares", "g0")]
	assert.False(t, tookSliver, "device below min_memory floor must be excluded as a candidate")
}

func TestFractionalInsufficientLeavesNoPartialCommit(t *testing.T) {
	cfg := FractionalConfig{
		Config:      Config{DeviceSlots: fractionSlots("cuda.shares", map[string]string{"g0": "1.00"})},
		QuantumSize: decimal.RequireFromString("0.01"),
	}
	m, err := NewFractionalMap(cfg, Fill)
	require.NoError(t, err)

	_, err = m.AllocateWithMinMemory(
		types.NewResourceSlot(map[string]float64{"cuda.shares": 2.00}),
		nil,
		decimal.Zero,
	)
	require.Error(t, err)
	var insufficient *types.InsufficientResource
	require.ErrorAs(t, err, &insufficient)
	assert.True(t, m.allocFor("cuda.shares", devKey("cuda.shares", "g0")).IsZero())
}

func TestFractionalFreeUndoesAllocate(t *testing.T) {
	cfg := FractionalConfig{
		Config:      Config{DeviceSlots: fractionSlots("cuda.shares", map[string]string{"g0": "1.00", "g1": "1.00"})},
		QuantumSize: decimal.RequireFromString("0.01"),
	}
	m, err := NewFractionalMap(cfg, Evenly)
	require.NoError(t, err)

	got, err := m.AllocateWithMinMemory(
		types.NewResourceSlot(map[string]float64{"cuda.shares": 1.50}),
		nil,
		decimal.RequireFromString("0.10"),
	)
	require.NoError(t, err)

	m.Free(got)
	assert.True(t, m.allocFor("cuda.shares", devKey("cuda.shares", "g0")).IsZero())
	assert.True(t, m.allocFor("cuda.shares", devKey("cuda.shares", "g1")).IsZero())
}
