package alloc

import (
	"fmt"
	"sort"

	"github.com/gobwas/glob"
	"github.com/shopspring/decimal"

	"github.com/cuemby/warren/pkg/affinity"
	"github.com/cuemby/warren/pkg/types"
)

// Strategy selects how a requested quantity is spread across candidate
// devices once the candidate set is known.
type Strategy int

const (
	// Fill packs the request onto the fewest devices, most-free-first.
	Fill Strategy = iota
	// Evenly spreads the request as uniformly as possible across devices.
	Evenly
)

// Map is implemented by DiscreteMap and FractionalMap.
type Map interface {
	// Allocate picks devices for the requested slot quantities and commits
	// the allocation in place. hint, if non-nil, biases device ordering
	// toward the session's already-chosen devices.
	Allocate(requested types.ResourceSlot, hint *types.AffinityHint) (map[string]map[types.DeviceKey]decimal.Decimal, error)
	// Apply commits an allocation restored from persistent storage without
	// re-running device selection, e.g. on manager restart.
	Apply(existing map[string]map[types.DeviceKey]decimal.Decimal)
	// Free releases a previously committed allocation.
	Free(existing map[string]map[types.DeviceKey]decimal.Decimal)
	// Clear resets all allocations to zero, keeping device_slots as-is.
	Clear()
}

// deviceAlloc pairs a device key with its current committed allocation for
// one slot, used while picking candidates in most-free-first order.
type deviceAlloc struct {
	key   types.DeviceKey
	alloc decimal.Decimal
}

// base holds the state and helpers shared by DiscreteMap and FractionalMap.
type base struct {
	deviceSlots      map[types.DeviceKey]types.DeviceSlot
	slotTypes        map[string]types.SlotType
	deviceMask       map[types.DeviceKey]bool
	exclusivePatterns []glob.Glob
	exclusiveRaw     []string
	allocations      map[string]map[types.DeviceKey]decimal.Decimal
	affinityMap      *affinity.Map
}

// Config is the shared constructor input for DiscreteMap and FractionalMap.
type Config struct {
	// DeviceSlots enumerates every device's capacity for the slot name it
	// serves, keyed by device identity.
	DeviceSlots map[types.DeviceKey]types.DeviceSlot
	// DeviceMask lists devices excluded from allocation, e.g. administratively
	// cordoned hardware.
	DeviceMask []types.DeviceKey
	// ExclusiveSlotTypes lists slot names or glob patterns (matched with
	// github.com/gobwas/glob) that can never be requested together, e.g.
	// a pattern "cuda.*" preventing "cuda.shares" and "cuda.device" from
	// being requested in the same kernel.
	ExclusiveSlotTypes []string
	// AffinityMap, if set, enables NUMA-aware device ordering.
	AffinityMap *affinity.Map
}

func newBase(cfg Config) (base, error) {
	b := base{
		deviceSlots: make(map[types.DeviceKey]types.DeviceSlot, len(cfg.DeviceSlots)),
		slotTypes:   make(map[string]types.SlotType),
		deviceMask:  make(map[types.DeviceKey]bool, len(cfg.DeviceMask)),
		exclusiveRaw: append([]string(nil), cfg.ExclusiveSlotTypes...),
		allocations: make(map[string]map[types.DeviceKey]decimal.Decimal),
		affinityMap: cfg.AffinityMap,
	}
	for k, v := range cfg.DeviceSlots {
		b.deviceSlots[k] = v
		b.slotTypes[v.SlotName] = v.SlotType
	}
	for _, k := range cfg.DeviceMask {
		b.deviceMask[k] = true
	}
	for _, pat := range cfg.ExclusiveSlotTypes {
		g, err := glob.Compile(pat)
		if err != nil {
			return base{}, fmt.Errorf("alloc: invalid exclusive slot type pattern %q: %w", pat, err)
		}
		b.exclusivePatterns = append(b.exclusivePatterns, g)
	}
	b.clear()
	return b, nil
}

// clear resets every device's committed allocation to zero.
func (b *base) clear() {
	b.allocations = make(map[string]map[types.DeviceKey]decimal.Decimal)
	for key, slot := range b.deviceSlots {
		if _, ok := b.allocations[slot.SlotName]; !ok {
			b.allocations[slot.SlotName] = make(map[types.DeviceKey]decimal.Decimal)
		}
		b.allocations[slot.SlotName][key] = decimal.Zero
	}
}

// Clear implements Map.
func (b *base) Clear() { b.clear() }

func (b *base) allocFor(slotName string, key types.DeviceKey) decimal.Decimal {
	if per, ok := b.allocations[slotName]; ok {
		return per[key]
	}
	return decimal.Zero
}

func (b *base) setAlloc(slotName string, key types.DeviceKey, v decimal.Decimal) {
	per, ok := b.allocations[slotName]
	if !ok {
		per = make(map[types.DeviceKey]decimal.Decimal)
		b.allocations[slotName] = per
	}
	per[key] = v
}

// matchesExclusive reports whether a slot name belongs to the given pattern
// set, either by exact match or glob.
func (b *base) matchesExclusive(name string) bool {
	for _, raw := range b.exclusiveRaw {
		if raw == name {
			return true
		}
	}
	for _, g := range b.exclusivePatterns {
		if g.Match(name) {
			return true
		}
	}
	return false
}

// checkExclusive reports whether slot names a and b can never be requested
// together.
func (b *base) checkExclusive(a, b2 string) bool {
	if len(b.exclusiveRaw) == 0 || a == b2 {
		return false
	}
	return b.matchesExclusive(a) && b.matchesExclusive(b2)
}

// checkExclusiveCombination validates that no two requested slots are
// mutually exclusive, returning the first violation found.
func (b *base) checkExclusiveCombination(requested types.ResourceSlot) error {
	names := requested.SortedKeys()
	for i := range names {
		for j := range names {
			if i == j {
				continue
			}
			if b.checkExclusive(names[i], names[j]) {
				return &types.InvalidResourceCombination{SlotA: names[i], SlotB: names[j]}
			}
		}
	}
	return nil
}

// pruneZero removes non-positive entries, mirroring the source allocator's
// "prune zero alloc slots" step: a session that does not request a slot at
// all must not be charged for devices it never touches.
func pruneZero(requested types.ResourceSlot) types.ResourceSlot {
	out := make(types.ResourceSlot, len(requested))
	for k, v := range requested {
		if v.IsPositive() {
			out[k] = v
		}
	}
	return out
}

// candidates returns the devices serving slotName, sorted most-free-first,
// honoring the device mask and (when hint is given) NUMA affinity ordering.
func (b *base) candidates(hint *types.AffinityHint, slotName string) []deviceAlloc {
	deviceName := deviceNamePrefix(slotName)
	per := b.allocations[slotName]

	// bySlack sorts most-free-first. When tieBreakByID is false, ties keep
	// the relative order of keys as given (used for affinity-ordered input,
	// so NUMA grouping survives the slack sort); when true, ties break on
	// device id for a fully deterministic order with no affinity hint.
	bySlack := func(keys []types.DeviceKey, tieBreakByID bool) []deviceAlloc {
		out := make([]deviceAlloc, 0, len(keys))
		for _, k := range keys {
			if b.deviceMask[k] {
				continue
			}
			out = append(out, deviceAlloc{key: k, alloc: per[k]})
		}
		sort.SliceStable(out, func(i, j int) bool {
			slackI := b.deviceSlots[out[i].key].Capacity.Sub(out[i].alloc)
			slackJ := b.deviceSlots[out[j].key].Capacity.Sub(out[j].alloc)
			if !slackI.Equal(slackJ) {
				return slackI.GreaterThan(slackJ)
			}
			if tieBreakByID {
				return out[i].key.ID < out[j].key.ID
			}
			return false
		})
		return out
	}

	allKeys := make([]types.DeviceKey, 0, len(per))
	for k := range per {
		allKeys = append(allKeys, k)
	}
	sort.Slice(allKeys, func(i, j int) bool { return allKeys[i].ID < allKeys[j].ID })

	if hint == nil || len(hint.Devices) == 0 || b.affinityMap == nil {
		return bySlack(allKeys, true)
	}

	groups := b.affinityMap.GetDistanceOrderedNeighbors(hint.Devices, deviceName)
	seen := make(map[types.DeviceKey]bool, len(allKeys))
	ordered := make([]types.DeviceKey, 0, len(allKeys))
	for _, group := range groups {
		for _, dd := range group {
			k := dd.Device.Key()
			if _, ok := per[k]; !ok || seen[k] {
				continue
			}
			seen[k] = true
			ordered = append(ordered, k)
		}
	}
	for _, k := range allKeys {
		if !seen[k] {
			ordered = append(ordered, k)
		}
	}
	return bySlack(ordered, false)
}

// deviceNamePrefix extracts the device class from a slot name, e.g.
// "cuda.shares" -> "cuda", "cpu" -> "cpu".
func deviceNamePrefix(slotName string) string {
	for i, r := range slotName {
		if r == '.' {
			return slotName[:i]
		}
	}
	return slotName
}

// totalAllocatable sums the free capacity across a candidate set.
func totalAllocatable(slots map[types.DeviceKey]types.DeviceSlot, cands []deviceAlloc) decimal.Decimal {
	total := decimal.Zero
	for _, c := range cands {
		total = total.Add(slots[c.key].Capacity.Sub(c.alloc))
	}
	return total
}

// distribute splits numItems as evenly as possible across len(groups)
// buckets: base=numItems/len(groups), and the first (numItems mod
// len(groups)) buckets get one extra, matching the source allocator's
// divmod-based spread.
func distribute(numItems int, groups []types.DeviceKey) map[types.DeviceKey]int {
	n := len(groups)
	out := make(map[types.DeviceKey]int, n)
	if n == 0 {
		return out
	}
	base := numItems / n
	extra := numItems % n
	for i, g := range groups {
		v := base
		if i < extra {
			v++
		}
		out[g] = v
	}
	return out
}

// roundDown truncates amount to the nearest multiple of quantum at or below
// it (quantum > 0), computed as Floor(amount/quantum)*quantum; a zero
// quantum returns amount unchanged.
func roundDown(amount, quantum decimal.Decimal) decimal.Decimal {
	if quantum.IsZero() {
		return amount
	}
	quot := amount.Div(quantum).Floor()
	return quot.Mul(quantum)
}
