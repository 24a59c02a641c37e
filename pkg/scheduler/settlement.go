package scheduler

import (
	"context"
	"fmt"

	"github.com/cuemby/warren/pkg/agentrpc"
	"github.com/cuemby/warren/pkg/metrics"
	"github.com/cuemby/warren/pkg/types"
)

// StartSession is the settlement step: it pulls images and creates
// containers for every kernel of a SCHEDULED session, reconciles each
// agent's occupied_slots against what the agent actually handed back (device
// quantum rounding can make actual != requested), and advances the session
// toward RUNNING. A failure partway through cancels every kernel of the
// session with failed-to-start and releases the session's reservations,
// rather than leaving a half-started cluster behind.
func (d *Dispatcher) StartSession(ctx context.Context, sessionID types.SessionID) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.SessionStartDuration)

	kernels, err := d.Repo.ListKernelsBySession(sessionID)
	if err != nil {
		return fmt.Errorf("list kernels: %w", err)
	}

	byAgent := make(map[types.AgentID][]*types.Kernel)
	for _, k := range kernels {
		if k.Status != types.KernelStatusScheduled {
			continue
		}
		byAgent[k.AgentID] = append(byAgent[k.AgentID], k)
	}

	for agentID, agentKernels := range byAgent {
		if err := d.startKernelsOnAgent(ctx, agentID, agentKernels); err != nil {
			metrics.KernelsFailedToStartTotal.Add(float64(len(agentKernels)))
			d.failSession(ctx, sessionID, kernels, err)
			return err
		}
	}

	session, err := d.Repo.GetSession(sessionID)
	if err != nil {
		return fmt.Errorf("get session: %w", err)
	}
	session.Status = types.SessionStatusRunning
	session.StatusHistory = append(session.StatusHistory, types.StatusHistoryEntry{
		Status: string(types.SessionStatusRunning), At: d.now(),
	})
	if err := d.Repo.UpdateSession(session); err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	d.publish(ctx, types.EventSessionStarted, session, "")
	return nil
}

func (d *Dispatcher) startKernelsOnAgent(ctx context.Context, agentID types.AgentID, kernels []*types.Kernel) error {
	agent, err := d.Repo.GetAgent(agentID)
	if err != nil {
		return fmt.Errorf("get agent %s: %w", agentID, err)
	}

	images := map[string]bool{}
	for _, k := range kernels {
		if images[k.Image] {
			continue
		}
		if err := d.Agents.CheckAndPullImage(ctx, agent.Address, k.Image, k.Architecture); err != nil {
			return fmt.Errorf("pull image %s on agent %s: %w", k.Image, agentID, err)
		}
		images[k.Image] = true
	}

	specs := make([]agentrpc.KernelSpec, len(kernels))
	for i, k := range kernels {
		specs[i] = agentrpc.KernelSpec{
			KernelID:     k.ID,
			SessionID:    k.SessionID,
			ClusterRole:  k.ClusterRole,
			ClusterIdx:   k.ClusterIdx,
			Architecture: k.Architecture,
			Image:        k.Image,
			ResourceSpec: k.ResourceSpec,
		}
		if k.ResourceSpec != nil {
			specs[i].Mounts = k.ResourceSpec.Mounts
		}
	}

	results, err := d.Agents.CreateKernels(ctx, agent.Address, specs)
	if err != nil {
		return fmt.Errorf("create kernels on agent %s: %w", agentID, err)
	}

	byID := make(map[types.KernelID]agentrpc.KernelResult, len(results))
	for _, r := range results {
		byID[r.KernelID] = r
	}

	settlement := types.ResourceSlot{}
	for _, k := range kernels {
		result, ok := byID[k.ID]
		if !ok {
			return fmt.Errorf("agent %s did not return a result for kernel %s", agentID, k.ID)
		}
		if result.Err != "" {
			return fmt.Errorf("agent %s failed to start kernel %s: %s", agentID, k.ID, result.Err)
		}

		settlement = settlement.Add(result.ActualSlots.Sub(k.RequestedSlots))

		k.ContainerID = result.ContainerID
		k.OccupiedSlots = result.ActualSlots
		k.Status = types.KernelStatusRunning
		now := d.now()
		k.StartedAt = &now
		if err := d.Repo.UpdateKernel(k); err != nil {
			return fmt.Errorf("update kernel %s: %w", k.ID, err)
		}
	}

	if !settlement.IsZero() {
		for _, slot := range settlement.NonZero().SortedKeys() {
			metrics.SettlementDriftTotal.WithLabelValues(slot).Inc()
		}
		agent.OccupiedSlots = agent.OccupiedSlots.Add(settlement)
		if err := d.Repo.UpdateAgent(agent); err != nil {
			return fmt.Errorf("settle agent %s: %w", agentID, err)
		}
	}
	return nil
}

// failSession cancels every kernel of a session that failed to start and
// releases every reservation commitPlacement (and, for kernels already
// created on an earlier agent, startKernelsOnAgent's settlement) made for
// it. A creation failure on one agent must not leave an earlier agent's
// kernels running with live reservations — the session fails all-or-nothing.
func (d *Dispatcher) failSession(ctx context.Context, sessionID types.SessionID, kernels []*types.Kernel, cause error) {
	committed := make(map[types.AgentID]types.ResourceSlot)
	for _, k := range kernels {
		if k.AgentID == "" {
			continue
		}

		if k.Status == types.KernelStatusRunning {
			_ = d.Agents.DestroyKernel(ctx, k.AgentAddr, k.ID, types.StatusInfoFailedToStart)
			committed[k.AgentID] = committed[k.AgentID].Add(k.OccupiedSlots)
		} else {
			committed[k.AgentID] = committed[k.AgentID].Add(k.RequestedSlots)
		}

		k.Status = types.KernelStatusCancelled
		k.StatusInfo = types.StatusInfoFailedToStart
		_ = d.Repo.UpdateKernel(k)
	}
	d.rollback(committed)

	session, err := d.Repo.GetSession(sessionID)
	if err != nil {
		return
	}
	session.Status = types.SessionStatusCancelled
	session.StatusInfo = types.StatusInfoFailedToStart
	session.StatusData.Error = &types.ErrorStatusData{
		Src: "scheduler", Name: "AgentError", Repr: cause.Error(),
	}
	session.StatusHistory = append(session.StatusHistory, types.StatusHistoryEntry{
		Status: string(types.SessionStatusCancelled), At: d.now(), Reason: session.StatusInfo,
	})
	_ = d.Repo.UpdateSession(session)
	d.publish(ctx, types.EventSessionCancelled, session, cause.Error())
}
