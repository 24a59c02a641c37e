package types

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSpec() *KernelResourceSpec {
	return &KernelResourceSpec{
		ScratchSize: 1024 * 1024 * 1024,
		Mounts: []MountTriple{
			{Source: "vfolder1", Target: "/home/work/vfolder1", Perm: MountRW},
			{Source: "model", Target: "/models", Perm: MountRO},
		},
		Slots: ResourceSlot{
			"cpu":         decimal.NewFromInt(4),
			"mem":         decimal.NewFromInt(8589934592),
			"cuda.shares": decimal.NewFromFloat(2.00),
		},
		UnifiedDevices: []UnifiedDevice{
			{DeviceName: "cuda", SlotName: "cuda.shares"},
		},
		Shares: map[string]map[DeviceID]decimal.Decimal{
			"cpu": {
				"0": decimal.NewFromInt(1),
				"1": decimal.NewFromInt(1),
				"2": decimal.NewFromInt(1),
				"3": decimal.NewFromInt(1),
			},
			"mem": {
				"root": decimal.NewFromInt(8589934592),
			},
			"cuda.shares": {
				"gpu-0": decimal.NewFromFloat(1.50),
				"gpu-1": decimal.NewFromFloat(0.50),
			},
		},
	}
}

func sampleSlotTypes() map[string]SlotType {
	return map[string]SlotType{
		"cpu":         SlotTypeCount,
		"mem":         SlotTypeBytes,
		"cuda.shares": SlotTypeCount,
	}
}

func TestKernelResourceSpecRoundTrip(t *testing.T) {
	spec := sampleSpec()
	types := sampleSlotTypes()

	text, err := spec.Write(types)
	require.NoError(t, err)

	parsed, warnings, err := ParseKernelResourceSpec(text, types)
	require.NoError(t, err)
	assert.Empty(t, warnings)

	assert.Equal(t, spec.ScratchSize, parsed.ScratchSize)
	assert.ElementsMatch(t, spec.Mounts, parsed.Mounts)
	assert.ElementsMatch(t, spec.UnifiedDevices, parsed.UnifiedDevices)

	for name, want := range spec.Slots {
		got, ok := parsed.Slots[name]
		require.True(t, ok, "missing slot %s", name)
		assert.True(t, want.Equal(got), "slot %s: want %s got %s", name, want, got)
	}

	for name, devices := range spec.Shares {
		gotDevices, ok := parsed.Shares[name]
		require.True(t, ok, "missing shares for slot %s", name)
		for id, want := range devices {
			got, ok := gotDevices[id]
			require.True(t, ok, "missing device %s for slot %s", id, name)
			assert.True(t, want.Equal(got), "shares[%s][%s]: want %s got %s", name, id, want, got)
		}
	}
}

func TestKernelResourceSpecTolerance(t *testing.T) {
	raw := "\n  SCRATCH_SIZE=512m  \n\nMOUNTS=\nSLOTS={\"cpu\":\"1\"}\nUNIFIED_DEVICES=[]\nCPU_SHARES=0:1\nNVIDIA.UNKNOWN_SHARES=gpu-0:1\n"
	spec, warnings, err := ParseKernelResourceSpec(raw, map[string]SlotType{"cpu": SlotTypeCount})
	require.NoError(t, err)
	assert.Equal(t, int64(512*1024*1024), spec.ScratchSize)
	assert.Empty(t, spec.Mounts)
	assert.NotEmpty(t, warnings, "unknown *_SHARES key should be tolerated but reported")
}

func TestFormatParseBinarySizeRoundTrip(t *testing.T) {
	cases := []int64{0, 1, 1023, 1024, 1024 * 1024, 5_000_000_000, 8 * 1024 * 1024 * 1024}
	for _, n := range cases {
		s := formatBinarySize(n)
		got, err := parseBinarySize(s)
		require.NoError(t, err)
		assert.Equal(t, n, got, "round trip for %d via %q", n, s)
	}
}
