package alloc

import (
	"github.com/shopspring/decimal"

	"github.com/cuemby/warren/pkg/types"
)

// DiscreteMap allocates whole-unit devices: SlotTypeCount or SlotTypeUnique
// capacities with no fractional sharing, e.g. pinned GPUs or CPU cores.
type DiscreteMap struct {
	base
	strategy Strategy
}

// NewDiscreteMap builds a DiscreteMap using the given allocation strategy.
func NewDiscreteMap(cfg Config, strategy Strategy) (*DiscreteMap, error) {
	b, err := newBase(cfg)
	if err != nil {
		return nil, err
	}
	return &DiscreteMap{base: b, strategy: strategy}, nil
}

var _ Map = (*DiscreteMap)(nil)

// Allocate implements Map.
func (m *DiscreteMap) Allocate(requested types.ResourceSlot, hint *types.AffinityHint) (map[string]map[types.DeviceKey]decimal.Decimal, error) {
	req := pruneZero(requested)

	if err := m.checkExclusiveCombination(req); err != nil {
		return nil, err
	}
	for _, name := range req.SortedKeys() {
		if m.slotTypes[name] == types.SlotTypeUnique && !req[name].Equal(decimal.NewFromInt(1)) {
			return nil, &types.InvalidResourceArgument{SlotName: name, Reason: "unique slot must request exactly 1"}
		}
	}

	if m.strategy == Fill {
		return m.allocateByFilling(req, hint)
	}
	return m.allocateEvenly(req, hint)
}

func (m *DiscreteMap) allocateByFilling(requested types.ResourceSlot, hint *types.AffinityHint) (map[string]map[types.DeviceKey]decimal.Decimal, error) {
	result := make(map[string]map[types.DeviceKey]decimal.Decimal, len(requested))
	for _, slotName := range requested.SortedKeys() {
		requestedAlloc := requested[slotName]
		cands := m.candidates(hint, slotName)

		total := totalAllocatable(m.deviceSlots, cands)
		if total.LessThan(requestedAlloc) {
			return nil, &types.InsufficientResource{
				SlotName:         slotName,
				Requested:        requestedAlloc,
				TotalAllocatable: total,
			}
		}

		slotAlloc := make(map[types.DeviceKey]decimal.Decimal)
		remaining := requestedAlloc
		for _, c := range cands {
			allocatable := m.deviceSlots[c.key].Capacity.Sub(c.alloc)
			if allocatable.IsPositive() {
				allocated := decimal.Min(remaining, allocatable)
				slotAlloc[c.key] = allocated
				m.setAlloc(slotName, c.key, c.alloc.Add(allocated))
				remaining = remaining.Sub(allocated)
			}
			if remaining.IsZero() {
				break
			}
		}
		result[slotName] = slotAlloc
	}
	return result, nil
}

func (m *DiscreteMap) allocateEvenly(requested types.ResourceSlot, hint *types.AffinityHint) (map[string]map[types.DeviceKey]decimal.Decimal, error) {
	result := make(map[string]map[types.DeviceKey]decimal.Decimal, len(requested))
	for _, slotName := range requested.SortedKeys() {
		requestedAlloc := requested[slotName]
		newAlloc := make(map[types.DeviceKey]decimal.Decimal)
		remaining := requestedAlloc

		repeats := 0
		for remaining.IsPositive() {
			if repeats >= 100 {
				return nil, &types.SchedulerError{Reason: "alloc: too many repeats until allocation converged for slot " + slotName}
			}

			cands := m.candidates(hint, slotName)
			total := decimal.Zero
			for _, c := range cands {
				committed := newAlloc[c.key]
				total = total.Add(m.deviceSlots[c.key].Capacity.Sub(c.alloc).Sub(committed))
			}
			if total.LessThan(remaining) {
				return nil, &types.InsufficientResource{
					SlotName:         slotName,
					Requested:        requestedAlloc,
					TotalAllocatable: total,
				}
			}

			nonzero := make([]types.DeviceKey, 0, len(cands))
			for _, c := range cands {
				committed := newAlloc[c.key]
				if m.deviceSlots[c.key].Capacity.Sub(c.alloc).Sub(committed).IsPositive() {
					nonzero = append(nonzero, c.key)
				}
			}
			if len(nonzero) == 0 {
				return nil, &types.InsufficientResource{
					SlotName:         slotName,
					Requested:        requestedAlloc,
					TotalAllocatable: total,
				}
			}

			remainingInt := remaining.IntPart()
			initial := distribute(int(remainingInt), nonzero)
			for _, c := range cands {
				committed := newAlloc[c.key]
				headroom := m.deviceSlots[c.key].Capacity.Sub(c.alloc).Sub(committed)
				want := decimal.NewFromInt(int64(initial[c.key]))
				diff := decimal.Min(headroom, want)
				if diff.IsZero() {
					continue
				}
				newAlloc[c.key] = committed.Add(diff)
				remaining = remaining.Sub(diff)
				if remaining.IsZero() {
					break
				}
			}
			repeats++
		}

		slotAlloc := make(map[types.DeviceKey]decimal.Decimal, len(newAlloc))
		for k, v := range newAlloc {
			if v.IsPositive() {
				m.setAlloc(slotName, k, m.allocFor(slotName, k).Add(v))
				slotAlloc[k] = v
			}
		}
		result[slotName] = slotAlloc
	}
	return result, nil
}

// Apply implements Map.
func (m *DiscreteMap) Apply(existing map[string]map[types.DeviceKey]decimal.Decimal) {
	for slotName, per := range existing {
		for key, v := range per {
			m.setAlloc(slotName, key, m.allocFor(slotName, key).Add(v))
		}
	}
}

// Free implements Map.
func (m *DiscreteMap) Free(existing map[string]map[types.DeviceKey]decimal.Decimal) {
	for slotName, per := range existing {
		for key, v := range per {
			m.setAlloc(slotName, key, m.allocFor(slotName, key).Sub(v))
		}
	}
}
