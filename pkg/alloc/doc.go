// Package alloc implements per-agent device allocation: given a set of
// requested slot quantities (e.g. "cuda.shares": 2.5) and the free capacity
// of each device on an agent, it decides which devices absorb the request.
//
// Two allocation strategies apply to two device-capacity shapes:
//
//   - Discrete devices (slot type SlotTypeCount/SlotTypeUnique
//     with whole-unit capacities, e.g. a pinned GPU or a CPU core) are handled
//     by DiscreteMap.
//   - Fractional devices (capacities expressed as an arbitrary decimal, e.g.
//     a shared GPU sliced by cuda.shares) are handled by FractionalMap, which
//     additionally quantizes every allocation down to a configured quantum
//     size and, under the Evenly strategy, scores candidate device windows
//     by evenness and fragmentation before picking one.
//
// Both strategies share: zero-pruning of the request, mutual-exclusion
// checking between slot names (exclusive_slot_types, matched with
// github.com/gobwas/glob so a pattern like "cuda.*" can veto combining
// "cuda.shares" with "cuda.device"), a device mask of administratively
// disabled devices, and affinity-aware device ordering via pkg/affinity:
// with a hint, devices in the NUMA groups nearest the session's
// already-chosen devices are listed first, and the most-free-first sort
// keeps that order among equally free devices. hint.Policy is not read, so
// AffinityInterleaved orders devices the same way AffinityPreferSingleNode
// does (groups one after another, not interleaved).
package alloc
