package types

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// SlotType classifies how a slot name's quantity behaves.
type SlotType string

const (
	// SlotTypeCount is an integer-like quantity, e.g. cpu cores.
	SlotTypeCount SlotType = "count"
	// SlotTypeBytes is a memory/disk quantity.
	SlotTypeBytes SlotType = "bytes"
	// SlotTypeUnique must be exactly 1 per allocation, e.g. a pinned device.
	SlotTypeUnique SlotType = "unique"
)

// ResourceSlot maps a slot name (cpu, mem, cuda.shares, ...) to a non-negative
// decimal quantity. The zero value is an empty, valid slot.
type ResourceSlot map[string]decimal.Decimal

// NewResourceSlot builds a ResourceSlot from plain float64 values. Intended
// for tests and config parsing; production code should build Decimal values
// directly to avoid float rounding surprises.
func NewResourceSlot(values map[string]float64) ResourceSlot {
	s := make(ResourceSlot, len(values))
	for k, v := range values {
		s[k] = decimal.NewFromFloat(v)
	}
	return s
}

// Clone returns a deep copy.
func (s ResourceSlot) Clone() ResourceSlot {
	out := make(ResourceSlot, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Get returns the quantity for a slot name, or zero if absent.
func (s ResourceSlot) Get(name string) decimal.Decimal {
	if v, ok := s[name]; ok {
		return v
	}
	return decimal.Zero
}

// Add returns the componentwise sum of s and other.
func (s ResourceSlot) Add(other ResourceSlot) ResourceSlot {
	out := make(ResourceSlot, len(s)+len(other))
	for k, v := range s {
		out[k] = v
	}
	for k, v := range other {
		out[k] = out[k].Add(v)
	}
	return out
}

// Sub returns the componentwise difference s - other. Negative results are
// retained; callers that require non-negative results should check
// other.LessThanOrEqual(s) first.
func (s ResourceSlot) Sub(other ResourceSlot) ResourceSlot {
	out := make(ResourceSlot, len(s)+len(other))
	for k, v := range s {
		out[k] = v
	}
	for k, v := range other {
		out[k] = out[k].Sub(v)
	}
	return out
}

// LessThanOrEqual reports whether every key present in s or other satisfies
// s[key] <= other[key] (missing keys are treated as zero).
func (s ResourceSlot) LessThanOrEqual(other ResourceSlot) bool {
	for k := range unionKeys(s, other) {
		if s.Get(k).GreaterThan(other.Get(k)) {
			return false
		}
	}
	return true
}

// IsZero reports whether every quantity in s is zero.
func (s ResourceSlot) IsZero() bool {
	for _, v := range s {
		if !v.IsZero() {
			return false
		}
	}
	return true
}

// NonZero returns a copy of s with zero-valued entries removed.
func (s ResourceSlot) NonZero() ResourceSlot {
	out := make(ResourceSlot, len(s))
	for k, v := range s {
		if !v.IsZero() {
			out[k] = v
		}
	}
	return out
}

// SortedKeys returns the slot names in s, sorted for deterministic iteration.
func (s ResourceSlot) SortedKeys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func unionKeys(a, b ResourceSlot) map[string]struct{} {
	out := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		out[k] = struct{}{}
	}
	for k := range b {
		out[k] = struct{}{}
	}
	return out
}

// SlotRegistry is the process-wide, add-only registry of known slot names and
// their types. Per the design note on the source's mutable global
// known_slot_types dict, this is owned explicitly by the scheduling context
// and passed around rather than mutated as a package-level global; reads are
// point-in-time snapshots.
type SlotRegistry struct {
	types map[string]SlotType
}

// NewSlotRegistry builds a registry seeded with the intrinsic slots every
// deployment has regardless of compute-plugin configuration.
func NewSlotRegistry() *SlotRegistry {
	r := &SlotRegistry{types: make(map[string]SlotType)}
	r.add("cpu", SlotTypeCount)
	r.add("mem", SlotTypeBytes)
	return r
}

func (r *SlotRegistry) add(name string, t SlotType) {
	r.types[name] = t
}

// Add registers a slot name's type, e.g. on agent heartbeat/compute-plugin
// registration. Re-registering the same name with the same type is a no-op;
// registering it with a conflicting type is an error since the registry is
// add-only.
func (r *SlotRegistry) Add(name string, t SlotType) error {
	if existing, ok := r.types[name]; ok {
		if existing != t {
			return fmt.Errorf("slot %q already registered as %s, cannot reregister as %s", name, existing, t)
		}
		return nil
	}
	r.types[name] = t
	return nil
}

// Reload replaces the registry contents wholesale, e.g. on manager restart
// after reading all agents' advertised slot types.
func (r *SlotRegistry) Reload(snapshot map[string]SlotType) {
	next := make(map[string]SlotType, len(snapshot))
	for k, v := range snapshot {
		next[k] = v
	}
	r.types = next
}

// Snapshot returns a read-only copy of the current slot-name -> type map.
func (r *SlotRegistry) Snapshot() map[string]SlotType {
	out := make(map[string]SlotType, len(r.types))
	for k, v := range r.types {
		out[k] = v
	}
	return out
}

// TypeOf returns the registered type for a slot name, or an error if the
// slot name is unknown (spec: "Unknown slot keys raise an error at
// validation time").
func (r *SlotRegistry) TypeOf(name string) (SlotType, error) {
	t, ok := r.types[name]
	if !ok {
		return "", fmt.Errorf("unknown slot key: %q", name)
	}
	return t, nil
}

// Validate checks that every key in slots is known to the registry and that
// any "unique" slot carries a quantity of exactly 1.
func (r *SlotRegistry) Validate(slots ResourceSlot) error {
	for _, name := range slots.SortedKeys() {
		t, err := r.TypeOf(name)
		if err != nil {
			return err
		}
		if t == SlotTypeUnique && !slots[name].Equal(decimal.NewFromInt(1)) {
			return &InvalidResourceArgument{SlotName: name, Reason: "unique slot must request exactly 1"}
		}
	}
	return nil
}
