package types

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResourceSlotArithmetic(t *testing.T) {
	a := NewResourceSlot(map[string]float64{"cpu": 4, "mem": 1024})
	b := NewResourceSlot(map[string]float64{"cpu": 1, "cuda.shares": 0.5})

	sum := a.Add(b)
	assert.True(t, sum.Get("cpu").Equal(decimal.NewFromFloat(5)))
	assert.True(t, sum.Get("mem").Equal(decimal.NewFromFloat(1024)))
	assert.True(t, sum.Get("cuda.shares").Equal(decimal.NewFromFloat(0.5)))

	diff := a.Sub(b)
	assert.True(t, diff.Get("cpu").Equal(decimal.NewFromFloat(3)))
	assert.True(t, diff.Get("cuda.shares").Equal(decimal.NewFromFloat(-0.5)))
}

func TestResourceSlotLessThanOrEqual(t *testing.T) {
	a := NewResourceSlot(map[string]float64{"cpu": 2})
	b := NewResourceSlot(map[string]float64{"cpu": 4, "mem": 1})
	assert.True(t, a.LessThanOrEqual(b))
	assert.False(t, b.LessThanOrEqual(a))
}

func TestSlotRegistryAddOnly(t *testing.T) {
	r := NewSlotRegistry()
	require.NoError(t, r.Add("cuda.shares", SlotTypeCount))
	require.NoError(t, r.Add("cuda.shares", SlotTypeCount)) // idempotent re-add

	err := r.Add("cuda.shares", SlotTypeBytes)
	require.Error(t, err, "conflicting re-registration must fail")

	_, err = r.TypeOf("cuda.device")
	require.Error(t, err, "unknown slot keys must error")
}

func TestSlotRegistryValidateUniqueSlot(t *testing.T) {
	r := NewSlotRegistry()
	require.NoError(t, r.Add("cuda.device", SlotTypeUnique))

	ok := NewResourceSlot(map[string]float64{"cuda.device": 1, "cpu": 1})
	require.NoError(t, r.Validate(ok))

	bad := NewResourceSlot(map[string]float64{"cuda.device": 2})
	err := r.Validate(bad)
	require.Error(t, err)
	var invalidArg *InvalidResourceArgument
	require.ErrorAs(t, err, &invalidArg)
}

func TestDeriveStatus(t *testing.T) {
	running := &Kernel{Status: KernelStatusRunning}
	preparing := &Kernel{Status: KernelStatusPreparing}
	terminated := &Kernel{Status: KernelStatusTerminated}
	cancelled := &Kernel{Status: KernelStatusCancelled}

	assert.Equal(t, SessionStatusRunning, DeriveStatus([]*Kernel{running, running}))
	assert.Equal(t, SessionStatusTerminated, DeriveStatus([]*Kernel{terminated, cancelled}))
	assert.Equal(t, SessionStatusPreparing, DeriveStatus([]*Kernel{running, preparing}))
	assert.Equal(t, SessionStatusPending, DeriveStatus(nil))
}
