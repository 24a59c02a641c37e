package selector

import (
	"context"
	"fmt"

	"github.com/cuemby/warren/pkg/types"
	"github.com/shopspring/decimal"
)

// sentinelMissing is the value substituted for a slot an agent doesn't
// advertise at all, chosen large enough that it always loses a maximize
// comparison against any real slot quantity (mirroring the original's use
// of ±sys.maxsize as a standing-in for ±infinity).
var sentinelMissing = decimal.New(-1, 30)

// numExtras counts slot names the agent advertises a positive quantity of
// but the session didn't request at all — specialized hardware the
// requester doesn't need, which Legacy/Concentrated/Dispersed all penalize
// to prefer an exact-fit agent.
func numExtras(agent *types.Agent, requested types.ResourceSlot) int {
	n := 0
	for name, qty := range agent.AvailableSlots {
		if requested.Get(name).IsZero() && qty.GreaterThan(decimal.Zero) {
			n++
		}
	}
	return n
}

// rankKind picks which per-slot quantity a strategy compares on.
type rankKind int

const (
	rankAvailable      rankKind = iota // Legacy: raw advertised capacity
	rankRemaining                      // Dispersed: available - occupied
	rankNegRemaining                   // Concentrated: -(available - occupied)
)

// rankKey builds the maximize-lexicographic comparison tuple for one agent:
// [-endpointReplicas, -numExtras, v(key0), v(key1), ...] in priority order.
// Every strategy picks the agent with the greatest tuple, so higher is
// always better here. The endpoint-replica term is zero unless
// opts.KernelCountsAtSameEndpoint is set, in which case an agent already
// hosting N replicas of the same inference endpoint is penalized by N.
func rankKey(agent *types.Agent, requested types.ResourceSlot, opts Options, kind rankKind) []decimal.Decimal {
	keys := orderedKeys(requested, effectivePriority(opts.ResourcePriority, requested))
	out := make([]decimal.Decimal, 0, len(keys)+2)
	out = append(out, decimal.NewFromInt(int64(-opts.KernelCountsAtSameEndpoint[agent.ID])))
	out = append(out, decimal.NewFromInt(int64(-numExtras(agent, requested))))
	remaining := agent.FreeSlots()
	for _, key := range keys {
		switch kind {
		case rankAvailable:
			if v, ok := agent.AvailableSlots[key]; ok {
				out = append(out, v)
			} else {
				out = append(out, sentinelMissing)
			}
		case rankRemaining:
			if _, ok := agent.AvailableSlots[key]; ok {
				out = append(out, remaining.Get(key))
			} else {
				out = append(out, sentinelMissing)
			}
		case rankNegRemaining:
			if _, ok := agent.AvailableSlots[key]; ok {
				out = append(out, remaining.Get(key).Neg())
			} else {
				out = append(out, sentinelMissing)
			}
		}
	}
	return out
}

// greater reports whether a lexicographically outranks b (both built by
// rankKey over the same priority order, so they're equal length).
func greater(a, b []decimal.Decimal) bool {
	for i := range a {
		if a[i].Equal(b[i]) {
			continue
		}
		return a[i].GreaterThan(b[i])
	}
	return false
}

func pickByRank(agents []*types.Agent, requested types.ResourceSlot, opts Options, kind rankKind) (types.AgentID, error) {
	if len(agents) == 0 {
		return "", fmt.Errorf("selector: no candidate agents")
	}
	best := agents[0]
	bestKey := rankKey(best, requested, opts, kind)
	for _, agent := range agents[1:] {
		key := rankKey(agent, requested, opts, kind)
		if greater(key, bestKey) {
			best, bestKey = agent, key
		}
	}
	return best.ID, nil
}

// Legacy maximizes (-num_extras, available_slots_by_priority...), favoring
// agents that advertise exactly the requested slot types.
type Legacy struct{}

func (Legacy) Select(_ context.Context, agents []*types.Agent, requested types.ResourceSlot, opts Options) (types.AgentID, error) {
	return pickByRank(agents, requested, opts, rankAvailable)
}

// Concentrated minimizes (num_extras, remaining_slots_by_priority...),
// packing sessions onto the fewest agents.
type Concentrated struct{}

func (Concentrated) Select(_ context.Context, agents []*types.Agent, requested types.ResourceSlot, opts Options) (types.AgentID, error) {
	return pickByRank(agents, requested, opts, rankNegRemaining)
}

// Dispersed maximizes (-num_extras, remaining_slots_by_priority...),
// spreading sessions across agents.
type Dispersed struct{}

func (Dispersed) Select(_ context.Context, agents []*types.Agent, requested types.ResourceSlot, opts Options) (types.AgentID, error) {
	return pickByRank(agents, requested, opts, rankRemaining)
}
