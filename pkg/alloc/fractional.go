package alloc

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/cuemby/warren/pkg/types"
)

// defaultQuantum is the smallest resource increment a device advertises when
// none is given explicitly.
var defaultQuantum = decimal.NewFromFloat(0.01)

// defaultMinMemory is the allocate() default for the min-memory floor below
// which a device is not considered a candidate at all.
var defaultMinMemory = decimal.NewFromFloat(0.01)

// FractionalMap allocates devices whose capacity is a continuous decimal
// quantity, e.g. a GPU sliced into cuda.shares. Every allocation is
// quantized down to QuantumSize before being returned or committed, so a
// request smaller than one device's quantum yields NotMultipleOfQuantum
// rather than a silently-zero allocation.
type FractionalMap struct {
	base
	strategy Strategy
	quantum  decimal.Decimal
}

// FractionalConfig extends Config with the fractional-specific quantum size.
type FractionalConfig struct {
	Config
	// QuantumSize is the smallest increment an allocation is rounded down
	// to. Defaults to 0.01 when zero.
	QuantumSize decimal.Decimal
}

// NewFractionalMap builds a FractionalMap using the given strategy.
func NewFractionalMap(cfg FractionalConfig, strategy Strategy) (*FractionalMap, error) {
	b, err := newBase(cfg.Config)
	if err != nil {
		return nil, err
	}
	q := cfg.QuantumSize
	if q.IsZero() {
		q = defaultQuantum
	}
	return &FractionalMap{base: b, strategy: strategy, quantum: q}, nil
}

var _ Map = (*FractionalMap)(nil)

// Allocate implements Map. minMemory defaults to 0.01 if not overridden by a
// caller that needs a different floor (none currently do; the field exists
// to keep this in step with the source allocator's keyword argument).
func (m *FractionalMap) Allocate(requested types.ResourceSlot, hint *types.AffinityHint) (map[string]map[types.DeviceKey]decimal.Decimal, error) {
	return m.AllocateWithMinMemory(requested, hint, defaultMinMemory)
}

// AllocateWithMinMemory is Allocate with an explicit min-memory floor below
// which a device's remaining capacity is not considered usable at all.
func (m *FractionalMap) AllocateWithMinMemory(requested types.ResourceSlot, hint *types.AffinityHint, minMemory decimal.Decimal) (map[string]map[types.DeviceKey]decimal.Decimal, error) {
	req := pruneZero(requested)

	if err := m.checkExclusiveCombination(req); err != nil {
		return nil, err
	}

	var calculated map[string]map[types.DeviceKey]decimal.Decimal
	var err error
	if m.strategy == Fill {
		calculated, err = m.allocateByFilling(req, hint)
	} else {
		calculated, err = m.allocateEvenly(req, hint, minMemory)
	}
	if err != nil {
		return nil, err
	}

	actual := make(map[string]map[types.DeviceKey]decimal.Decimal, len(calculated))
	for slotName, perDevice := range calculated {
		out := make(map[types.DeviceKey]decimal.Decimal, len(perDevice))
		sum := decimal.Zero
		for key, v := range perDevice {
			m.setAlloc(slotName, key, roundDown(m.allocFor(slotName, key), m.quantum))
			rounded := roundDown(v, m.quantum)
			out[key] = rounded
			sum = sum.Add(rounded)
		}
		if sum.IsZero() && req[slotName].IsPositive() {
			return nil, &types.NotMultipleOfQuantum{SlotName: slotName, Requested: req[slotName], Quantum: m.quantum}
		}
		actual[slotName] = out
	}
	return actual, nil
}

func (m *FractionalMap) allocateByFilling(requested types.ResourceSlot, hint *types.AffinityHint) (map[string]map[types.DeviceKey]decimal.Decimal, error) {
	result := make(map[string]map[types.DeviceKey]decimal.Decimal, len(requested))
	for _, slotName := range requested.SortedKeys() {
		requestedAlloc := requested[slotName]

		if m.slotTypes[slotName] == types.SlotTypeUnique && !requestedAlloc.Equal(decimal.NewFromInt(1)) {
			return nil, &types.InvalidResourceArgument{SlotName: slotName, Reason: "unique slot must request exactly 1"}
		}

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
			if !remaining.IsPositive() {
				break
			}
		}
		result[slotName] = slotAlloc
	}
	return result, nil
}

// evenness returns a score where higher (toward zero) is more even: the
// negative sum of adjacent gaps once allocations are sorted.
func evenness(alloc map[types.DeviceKey]decimal.Decimal) decimal.Decimal {
	vals := make([]decimal.Decimal, 0, len(alloc))
	for _, v := range alloc {
		vals = append(vals, v)
	}
	sort.Slice(vals, func(i, j int) bool { return vals[i].LessThan(vals[j]) })
	score := decimal.Zero
	for i := 0; i+1 < len(vals); i++ {
		diff := vals[i+1].Sub(vals[i])
		if diff.IsNegative() {
			diff = diff.Neg()
		}
		score = score.Add(diff)
	}
	return score.Neg()
}

// fragmentation counts devices left with a sliver of capacity between the
// quantum and minMemory: too small to be usable but too large to ignore.
func (m *FractionalMap) fragmentation(slots map[types.DeviceKey]types.DeviceSlot, alloc map[types.DeviceKey]decimal.Decimal, minMemory decimal.Decimal) int {
	count := 0
	for key, v := range alloc {
		leftover := slots[key].Capacity.Sub(v)
		if leftover.GreaterThan(m.quantum) && leftover.LessThan(minMemory) {
			count++
		}
	}
	return count
}

// allocateAcrossWindow fills devices from the tail of the window (smallest
// headroom first) whenever a device cannot absorb an even share, then
// spreads what remains evenly across the devices still in play.
func (m *FractionalMap) allocateAcrossWindow(window []deviceAlloc, remaining decimal.Decimal) map[types.DeviceKey]decimal.Decimal {
	out := make(map[types.DeviceKey]decimal.Decimal)
	n := len(window)
	idx := n - 1
	for n > 0 {
		c := window[idx]
		allocatable := m.deviceSlots[c.key].Capacity.Sub(c.alloc)
		share := remaining.Div(decimal.NewFromInt(int64(n)))
		if allocatable.GreaterThanOrEqual(share) {
			break
		}
		out[c.key] = allocatable
		remaining = remaining.Sub(allocatable)
		idx--
		n--
	}
	if n > 0 {
		distributeEvenly(window[:n], remaining, m.quantum, out)
	}
	return out
}

// distributeEvenly splits remaining across the devices in window as evenly
// as the quantum allows, handing any leftover quantum-sized remainder to the
// first devices in window order.
func distributeEvenly(window []deviceAlloc, remaining, quantum decimal.Decimal, out map[types.DeviceKey]decimal.Decimal) {
	n := decimal.NewFromInt(int64(len(window)))
	share := roundDown(remaining.Div(n), quantum)
	for _, c := range window {
		out[c.key] = share
	}
	distributed := share.Mul(n)
	remainder := remaining.Sub(distributed)
	steps := 0
	if !quantum.IsZero() {
		steps = int(remainder.Div(quantum).Round(0).IntPart())
	}
	for i := 0; i < steps && i < len(window); i++ {
		out[window[i].key] = out[window[i].key].Add(quantum)
	}
}

type windowCandidate struct {
	alloc         map[types.DeviceKey]decimal.Decimal
	evennessScore decimal.Decimal
	negDeviceCount int
	negFragments  int
}

func (m *FractionalMap) allocateEvenly(requested types.ResourceSlot, hint *types.AffinityHint, minMemory decimal.Decimal) (map[string]map[types.DeviceKey]decimal.Decimal, error) {
	minMem := minMemory
	result := make(map[string]map[types.DeviceKey]decimal.Decimal, len(requested))

	for _, slotName := range requested.SortedKeys() {
		requestedAlloc := requested[slotName]
		cands := m.candidates(hint, slotName)

		usable := cands[:0:0]
		for _, c := range cands {
			if m.deviceSlots[c.key].Capacity.Sub(c.alloc).GreaterThanOrEqual(minMem) {
				usable = append(usable, c)
			}
		}
		cands = usable

		total := totalAllocatable(m.deviceSlots, cands)
		if len(cands) == 0 || total.LessThan(requestedAlloc) {
			return nil, &types.InsufficientResource{
				SlotName:         slotName,
				Requested:        requestedAlloc,
				TotalAllocatable: total,
			}
		}

		var slotAlloc map[types.DeviceKey]decimal.Decimal
		firstHeadroom := m.deviceSlots[cands[0].key].Capacity.Sub(cands[0].alloc)
		if requestedAlloc.LessThanOrEqual(firstHeadroom) {
			// Fits entirely on a single device: prefer the one with the
			// least slack that can still take it, i.e. scan from the
			// tightest-fitting end of the candidate list.
			for i := len(cands) - 1; i >= 0; i-- {
				allocatable := m.deviceSlots[cands[i].key].Capacity.Sub(cands[i].alloc)
				if requestedAlloc.LessThanOrEqual(allocatable) {
					// Among devices with the same headroom, take the one
					// listed first.
					for i > 0 && m.deviceSlots[cands[i-1].key].Capacity.Sub(cands[i-1].alloc).Equal(allocatable) {
						i--
					}
					slotAlloc = map[types.DeviceKey]decimal.Decimal{cands[i].key: requestedAlloc}
					break
				}
			}
		} else {
			slotAlloc = m.bestWindowAllocation(cands, requestedAlloc, minMem)
		}

		for key, v := range slotAlloc {
			m.setAlloc(slotName, key, m.allocFor(slotName, key).Add(v))
		}
		result[slotName] = slotAlloc
	}
	return result, nil
}

// bestWindowAllocation implements the source allocator's sliding-window
// search: starting from the minimum number of devices that can cover
// remaining, grow the window one device at a time (in most-free-first
// order) scoring each candidate by (evenness, device count, fragmentation),
// stopping early once perfect evenness (score 0) is reached since larger
// windows cannot improve on it.
func (m *FractionalMap) bestWindowAllocation(cands []deviceAlloc, remaining, minMemory decimal.Decimal) map[types.DeviceKey]decimal.Decimal {
	minDevices := 0
	allocated := decimal.Zero
	for i, c := range cands {
		minDevices = i + 1
		allocated = allocated.Add(m.deviceSlots[c.key].Capacity.Sub(c.alloc))
		if allocated.GreaterThanOrEqual(remaining) {
			break
		}
	}

	var best *windowCandidate
	for windowSize := minDevices; windowSize <= len(cands); windowSize++ {
		var windowBest *windowCandidate
		maxSlide := len(cands) - windowSize
		for start := 0; start <= maxSlide; start++ {
			window := cands[start : start+windowSize]
			windowTotal := totalAllocatable(m.deviceSlots, window)
			if windowTotal.LessThan(remaining) {
				break
			}
			allocCandidate := m.allocateAcrossWindow(window, remaining)
			score := evenness(allocCandidate)
			if windowBest != nil && score.LessThan(windowBest.evennessScore) {
				break
			}
			cand := &windowCandidate{
				alloc:          allocCandidate,
				evennessScore:  score,
				negDeviceCount: -len(allocCandidate),
				negFragments:   -m.fragmentation(m.deviceSlots, allocCandidate, minMemory),
			}
			if windowBest == nil || better(cand, windowBest) {
				windowBest = cand
			}
		}
		if windowBest == nil {
			continue
		}
		if best == nil || better(windowBest, best) {
			best = windowBest
		}
		if windowBest.evennessScore.IsZero() {
			break
		}
	}
	if best == nil {
		return map[types.DeviceKey]decimal.Decimal{}
	}
	return best.alloc
}

// better orders two window candidates by (evenness, device count,
// fragmentation) ascending, matching the source allocator's sort key.
func better(a, b *windowCandidate) bool {
	if !a.evennessScore.Equal(b.evennessScore) {
		return a.evennessScore.GreaterThan(b.evennessScore)
	}
	if a.negDeviceCount != b.negDeviceCount {
		return a.negDeviceCount > b.negDeviceCount
	}
	return a.negFragments > b.negFragments
}

// Apply implements Map.
func (m *FractionalMap) Apply(existing map[string]map[types.DeviceKey]decimal.Decimal) {
	for slotName, per := range existing {
		for key, v := range per {
			m.setAlloc(slotName, key, m.allocFor(slotName, key).Add(v))
		}
	}
}

// Free implements Map.
func (m *FractionalMap) Free(existing map[string]map[types.DeviceKey]decimal.Decimal) {
	for slotName, per := range existing {
		for key, v := range per {
			m.setAlloc(slotName, key, m.allocFor(slotName, key).Sub(v))
		}
	}
}
