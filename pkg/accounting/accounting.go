// Package accounting keeps agent.occupied_slots and each keypair's
// concurrency counter consistent with the kernel table. The scheduler and
// settlement paths update both incrementally as kernels transition in and
// out of occupying states, but incremental bookkeeping can drift under a
// crashed write, a lost event, or a manual repository edit — Recalculator
// periodically re-derives the truth from the kernel table itself and
// overwrites whatever the incremental path produced.
package accounting

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/warren/pkg/log"
	"github.com/cuemby/warren/pkg/metrics"
	"github.com/cuemby/warren/pkg/statestore"
	"github.com/cuemby/warren/pkg/types"
	"github.com/rs/zerolog"
)

// Store is the repository surface Recalculator needs: every agent and
// session/kernel, keyed for a full re-derivation.
type Store interface {
	ListAgents() ([]*types.Agent, error)
	UpdateAgent(a *types.Agent) error
	ListKernelsByAgent(agentID types.AgentID) ([]*types.Kernel, error)
	ListSessions() ([]*types.Session, error)
}

// Recalculator runs recalc_resource_usage on a timer.
type Recalculator struct {
	Repo   Store
	State  statestore.Store
	Now    func() time.Time
	logger zerolog.Logger

	interval time.Duration
	stopCh   chan struct{}
	once     sync.Once
}

// NewRecalculator returns a Recalculator that runs a full-scan pass every
// interval when started.
func NewRecalculator(repo Store, state statestore.Store, interval time.Duration) *Recalculator {
	return &Recalculator{
		Repo:     repo,
		State:    state,
		interval: interval,
		logger:   log.WithComponent("accounting"),
		stopCh:   make(chan struct{}),
	}
}

func (r *Recalculator) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// Start begins the periodic full-scan loop in a background goroutine.
func (r *Recalculator) Start() {
	go r.run()
}

// Stop ends the loop. Safe to call multiple times.
func (r *Recalculator) Stop() {
	r.once.Do(func() { close(r.stopCh) })
}

func (r *Recalculator) run() {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info().Dur("interval", r.interval).Msg("accounting recalculator started")
	for {
		select {
		case <-ticker.C:
			if err := r.Recalc(context.Background(), true); err != nil {
				r.logger.Error().Err(err).Msg("full-scan recalculation failed")
			}
		case <-r.stopCh:
			r.logger.Info().Msg("accounting recalculator stopped")
			return
		}
	}
}

// Recalc re-derives agent.occupied_slots and every keypair's concurrency
// counter from the kernel table and overwrites both. With doFullscan
// false, only agents that currently hold at least one occupying kernel are
// touched, matching the spec's do_fullscan=false contract for the
// lighter-weight path run after a single kernel transition rather than on
// the periodic timer.
func (r *Recalculator) Recalc(ctx context.Context, doFullscan bool) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.ReconciliationDuration)

	agents, err := r.Repo.ListAgents()
	if err != nil {
		return fmt.Errorf("accounting: list agents: %w", err)
	}

	concurrency := make(map[string]int64)
	corrections := make(map[string]int)

	for _, agent := range agents {
		kernels, err := r.Repo.ListKernelsByAgent(agent.ID)
		if err != nil {
			return fmt.Errorf("accounting: list kernels for agent %s: %w", agent.ID, err)
		}

		occupied := types.ResourceSlot{}
		occupying := 0
		for _, k := range kernels {
			if !types.OccupyingStatuses[k.Status] {
				continue
			}
			occupied = occupied.Add(k.OccupiedSlots)
			occupying++
		}

		if !doFullscan && occupying == 0 {
			continue
		}

		if !occupied.Sub(agent.OccupiedSlots).IsZero() {
			r.logger.Warn().
				Str("agent_id", string(agent.ID)).
				Interface("was", agent.OccupiedSlots).
				Interface("recomputed", occupied).
				Msg("correcting agent occupied_slots drift")
			agent.OccupiedSlots = occupied
			if err := r.Repo.UpdateAgent(agent); err != nil {
				return fmt.Errorf("accounting: update agent %s: %w", agent.ID, err)
			}
			corrections[agent.ResourceGroup]++
		}
	}

	sessions, err := r.Repo.ListSessions()
	if err != nil {
		return fmt.Errorf("accounting: list sessions: %w", err)
	}
	for _, s := range sessions {
		if types.USEROccupyingStatuses[s.Status] {
			concurrency[s.AccessKey]++
		} else if doFullscan {
			if _, ok := concurrency[s.AccessKey]; !ok {
				concurrency[s.AccessKey] = 0
			}
		}
	}
	for accessKey, used := range concurrency {
		if err := r.State.SetConcurrency(ctx, accessKey, used); err != nil {
			return fmt.Errorf("accounting: set concurrency for %s: %w", accessKey, err)
		}
	}

	for rg, n := range corrections {
		metrics.ReconciliationCorrectionsTotal.WithLabelValues(rg).Add(float64(n))
	}
	return nil
}
