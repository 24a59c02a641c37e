package scheduler

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/cuemby/warren/pkg/scheduler/selector"
	"github.com/cuemby/warren/pkg/types"
)

// placement is the outcome of choosing agents for one session's kernels,
// before it is persisted. reservations records exactly what was added to
// each agent's OccupiedSlots so a later failure can subtract the same
// amounts back out.
type placement struct {
	kernels      []*types.Kernel
	kernelAgent  map[types.KernelID]*types.Agent
	reservations map[types.AgentID]types.ResourceSlot
}

// place chooses an agent for every one of session's kernels. Single-node
// sessions get one agent for the whole session (the pinned agent in
// session.AgentIDs if already set, otherwise the selector's pick); it
// requires every kernel to share one architecture, since they land in the
// same container host's process namespace. Multi-node sessions pick per
// kernel, reloading each agent's free capacity between picks so two kernels
// of the same session never double-book one agent's last sliver of
// capacity.
func (d *Dispatcher) place(ctx context.Context, rg *types.ResourceGroup, session *types.Session, agents []*types.Agent, sel selector.Selector) (*placement, error) {
	kernels, err := d.Repo.ListKernelsBySession(session.ID)
	if err != nil {
		return nil, fmt.Errorf("list kernels: %w", err)
	}
	if len(kernels) == 0 {
		return nil, fmt.Errorf("session %s has no kernels", session.ID)
	}

	opts := selector.Options{
		ResourcePriority: splitCSV(rg.SelectorOpts["resource_priority"]),
		ResourceGroup:    rg.Name,
	}
	if session.EnforceSpreadingEndpointReplica && session.EndpointID != "" {
		counts, err := d.endpointReplicaCounts(session.EndpointID)
		if err != nil {
			return nil, fmt.Errorf("endpoint replica counts: %w", err)
		}
		opts.KernelCountsAtSameEndpoint = counts
	}

	if session.ClusterMode == types.ClusterModeSingleNode {
		return d.placeSingleNode(ctx, session, kernels, agents, sel, opts)
	}
	return d.placeMultiNode(ctx, session, kernels, agents, sel, opts)
}

func (d *Dispatcher) placeSingleNode(ctx context.Context, session *types.Session, kernels []*types.Kernel, agents []*types.Agent, sel selector.Selector, opts selector.Options) (*placement, error) {
	arch := kernels[0].Architecture
	for _, k := range kernels[1:] {
		if k.Architecture != arch {
			return nil, fmt.Errorf("single-node session %s has kernels of mixed architecture", session.ID)
		}
	}
	opts.Architecture = arch

	var chosen *types.Agent
	if len(session.AgentIDs) == 1 {
		for _, a := range agents {
			if a.ID == session.AgentIDs[0] {
				chosen = a
				break
			}
		}
		if chosen == nil {
			return nil, fmt.Errorf("pinned agent %s not found in resource group", session.AgentIDs[0])
		}
		if !session.RequestedSlots.LessThanOrEqual(chosen.FreeSlots()) {
			return nil, fmt.Errorf("pinned agent %s has insufficient capacity", chosen.ID)
		}
	} else {
		candidates := filterSufficient(agents, arch, session.RequestedSlots)
		if len(candidates) == 0 {
			return nil, fmt.Errorf("no agent in resource group has capacity for session %s", session.ID)
		}
		agentID, err := sel.Select(ctx, candidates, session.RequestedSlots, opts)
		if err != nil {
			return nil, fmt.Errorf("select agent: %w", err)
		}
		chosen, _ = findAgent(agents, agentID)
		if chosen == nil {
			return nil, fmt.Errorf("selector returned unknown agent %s", agentID)
		}
	}

	p := &placement{
		kernels:      kernels,
		kernelAgent:  make(map[types.KernelID]*types.Agent, len(kernels)),
		reservations: map[types.AgentID]types.ResourceSlot{chosen.ID: session.RequestedSlots},
	}
	for _, k := range kernels {
		p.kernelAgent[k.ID] = chosen
	}
	return p, nil
}

func (d *Dispatcher) placeMultiNode(ctx context.Context, session *types.Session, kernels []*types.Kernel, agents []*types.Agent, sel selector.Selector, opts selector.Options) (*placement, error) {
	ordered := append([]*types.Kernel(nil), kernels...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ClusterIdx < ordered[j].ClusterIdx })

	// Scratch copies so tentative reservations made earlier in this loop are
	// visible to later picks without touching the caller's agent slice until
	// the whole session's placement succeeds.
	scratch := make(map[types.AgentID]*types.Agent, len(agents))
	for _, a := range agents {
		cp := *a
		cp.OccupiedSlots = a.OccupiedSlots.Clone()
		scratch[a.ID] = &cp
	}

	p := &placement{
		kernels:      ordered,
		kernelAgent:  make(map[types.KernelID]*types.Agent, len(ordered)),
		reservations: make(map[types.AgentID]types.ResourceSlot),
	}

	for _, k := range ordered {
		current := make([]*types.Agent, 0, len(scratch))
		for _, a := range scratch {
			current = append(current, a)
		}
		kernelOpts := opts
		kernelOpts.Architecture = k.Architecture
		// RoundRobin falls back to Dispersed when no resource group is given.
		kernelOpts.ResourceGroup = ""
		candidates := filterSufficient(current, k.Architecture, k.RequestedSlots)
		if len(candidates) == 0 {
			return nil, fmt.Errorf("no agent has capacity for kernel %s of session %s", k.ID, session.ID)
		}
		agentID, err := sel.Select(ctx, candidates, k.RequestedSlots, kernelOpts)
		if err != nil {
			return nil, fmt.Errorf("select agent for kernel %s: %w", k.ID, err)
		}
		chosen := scratch[agentID]
		if chosen == nil {
			return nil, fmt.Errorf("selector returned unknown agent %s", agentID)
		}
		chosen.OccupiedSlots = chosen.OccupiedSlots.Add(k.RequestedSlots)
		p.kernelAgent[k.ID] = findOriginal(agents, agentID)
		p.reservations[agentID] = p.reservations[agentID].Add(k.RequestedSlots)
	}
	return p, nil
}

// commitPlacement persists the agent reservations and the session/kernel
// status writes. There is no cross-table transaction here: each write goes
// through the repository's own raft-applied command, so a crash mid-commit
// can leave a partial write; the reconciliation pass (pkg/accounting)
// repairs any such drift by recomputing agent.OccupiedSlots from kernels'
// occupying statuses on its next full scan.
func (d *Dispatcher) commitPlacement(_ context.Context, session *types.Session, p *placement) error {
	committed := make(map[types.AgentID]types.ResourceSlot, len(p.reservations))
	for agentID, delta := range p.reservations {
		agent, err := d.Repo.GetAgent(agentID)
		if err != nil {
			d.rollback(committed)
			return fmt.Errorf("get agent %s: %w", agentID, err)
		}
		agent.OccupiedSlots = agent.OccupiedSlots.Add(delta)
		if err := d.Repo.UpdateAgent(agent); err != nil {
			d.rollback(committed)
			return fmt.Errorf("reserve on agent %s: %w", agentID, err)
		}
		committed[agentID] = delta
	}

	agentIDSet := make(map[types.AgentID]bool)
	for _, kernel := range p.kernels {
		agent := p.kernelAgent[kernel.ID]
		if agent == nil {
			continue
		}
		kernel.AgentID = agent.ID
		kernel.AgentAddr = agent.Address
		kernel.Status = types.KernelStatusScheduled
		if err := d.Repo.UpdateKernel(kernel); err != nil {
			d.rollback(committed)
			return fmt.Errorf("update kernel %s: %w", kernel.ID, err)
		}
		agentIDSet[agent.ID] = true
	}

	session.AgentIDs = session.AgentIDs[:0]
	for id := range agentIDSet {
		session.AgentIDs = append(session.AgentIDs, id)
	}
	session.Status = types.SessionStatusScheduled
	session.StatusHistory = append(session.StatusHistory, types.StatusHistoryEntry{
		Status: string(types.SessionStatusScheduled), At: d.now(),
	})
	if err := d.Repo.UpdateSession(session); err != nil {
		d.rollback(committed)
		return fmt.Errorf("update session %s: %w", session.ID, err)
	}
	return nil
}

// rollback subtracts back every reservation that was actually persisted to
// an agent, best-effort — used when a later step of commitPlacement fails
// and the whole session's placement must be undone.
func (d *Dispatcher) rollback(committed map[types.AgentID]types.ResourceSlot) {
	for agentID, delta := range committed {
		agent, err := d.Repo.GetAgent(agentID)
		if err != nil {
			continue
		}
		agent.OccupiedSlots = agent.OccupiedSlots.Sub(delta)
		_ = d.Repo.UpdateAgent(agent)
	}
}

func filterSufficient(agents []*types.Agent, architecture string, requested types.ResourceSlot) []*types.Agent {
	out := make([]*types.Agent, 0, len(agents))
	for _, a := range agents {
		if a.Status != types.AgentStatusAlive {
			continue
		}
		if architecture != "" && a.Architecture != architecture {
			continue
		}
		if requested.LessThanOrEqual(a.FreeSlots()) {
			out = append(out, a)
		}
	}
	return out
}

func findAgent(agents []*types.Agent, id types.AgentID) (*types.Agent, int) {
	for i, a := range agents {
		if a.ID == id {
			return a, i
		}
	}
	return nil, -1
}

func findOriginal(agents []*types.Agent, id types.AgentID) *types.Agent {
	a, _ := findAgent(agents, id)
	return a
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// endpointReplicaCounts returns, for every agent currently hosting a kernel
// of an INFERENCE session bound to endpointID, the number of such kernels —
// the spreading penalty selector.Options.KernelCountsAtSameEndpoint expects.
func (d *Dispatcher) endpointReplicaCounts(endpointID string) (map[types.AgentID]int, error) {
	sessions, err := d.Repo.ListSessions()
	if err != nil {
		return nil, err
	}
	counts := make(map[types.AgentID]int)
	for _, s := range sessions {
		if s.EndpointID != endpointID || s.Status.IsTerminal() {
			continue
		}
		for _, k := range s.Kernels {
			if k.AgentID != "" {
				counts[k.AgentID]++
			}
		}
	}
	return counts, nil
}
