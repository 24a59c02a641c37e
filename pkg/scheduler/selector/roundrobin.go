package selector

import (
	"context"
	"fmt"

	"github.com/cuemby/warren/pkg/types"
)

// RoundRobin maintains a persistent per-(resource-group, architecture)
// cursor and hands out agents[index mod len(agents)] in turn. It only
// makes sense for single-node placement; multi-node kernel assignment
// falls back to Dispersed, matching the original's rationale that a
// rotating cursor doesn't compose sensibly with spreading several kernels
// of the same session across agents in one call.
type RoundRobin struct {
	state    roundRobinStore
	fallback Selector
}

func (r *RoundRobin) Select(ctx context.Context, agents []*types.Agent, requested types.ResourceSlot, opts Options) (types.AgentID, error) {
	if len(agents) == 0 {
		return "", fmt.Errorf("selector: no candidate agents")
	}
	if opts.ResourceGroup == "" {
		return r.fallback.Select(ctx, agents, requested, opts)
	}
	cursorKey := opts.ResourceGroup + "/" + opts.Architecture
	idx, err := r.state.NextRoundRobinIndex(ctx, cursorKey, len(agents))
	if err != nil {
		return "", fmt.Errorf("round robin index: %w", err)
	}
	return agents[idx%len(agents)].ID, nil
}
