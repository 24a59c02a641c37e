package selector

import (
	"context"

	"github.com/cuemby/warren/pkg/types"
)

// Selector chooses which of a set of already slot-compatible agents should
// host a session's (or a multi-node session's kernel's) requested slots.
// Compatibility filtering (remaining >= requested) happens before Select is
// called; Select only orders the survivors.
type Selector interface {
	Select(ctx context.Context, agents []*types.Agent, requestedSlots types.ResourceSlot, opts Options) (types.AgentID, error)
}

// Options carries per-call context a strategy may use to bias its choice.
type Options struct {
	// ResourcePriority orders slot names for comparator tie-breaking, e.g.
	// ["cuda.device", "cuda.shares", "cpu", "mem"].
	ResourcePriority []string
	// ResourceGroup and Architecture scope RoundRobin's persistent cursor.
	ResourceGroup string
	Architecture  string
	// KernelCountsAtSameEndpoint, set for inference sessions with
	// enforce_spreading_endpoint_replica, maps an agent already hosting a
	// replica of the same endpoint to how many it hosts, so the selector
	// can penalize agents that already have one.
	KernelCountsAtSameEndpoint map[types.AgentID]int
}

// New constructs the named built-in selector.
func New(name string, state roundRobinStore) (Selector, error) {
	switch name {
	case "legacy":
		return &Legacy{}, nil
	case "concentrated":
		return &Concentrated{}, nil
	case "dispersed":
		return &Dispersed{}, nil
	case "roundrobin":
		return &RoundRobin{state: state, fallback: &Dispersed{}}, nil
	default:
		return nil, errUnknownSelector(name)
	}
}

type errUnknownSelector string

func (e errUnknownSelector) Error() string { return "selector: unknown agent selector " + string(e) }

// roundRobinStore is the narrow statestore surface RoundRobin needs.
type roundRobinStore interface {
	NextRoundRobinIndex(ctx context.Context, resourceGroup string, agentCount int) (int, error)
}
