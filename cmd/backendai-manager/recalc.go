package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cuemby/warren/pkg/accounting"
	"github.com/cuemby/warren/pkg/cluster"
	"github.com/cuemby/warren/pkg/config"
	"github.com/cuemby/warren/pkg/log"
	"github.com/cuemby/warren/pkg/repository"
	"github.com/cuemby/warren/pkg/storage"
	"github.com/hashicorp/raft"
	"github.com/spf13/cobra"
)

// recalcCmd runs recalc_resource_usage once against an already-bootstrapped
// node's on-disk state and exits, for operators who suspect drift between
// the kernel table and agent.occupied_slots / keypair concurrency counters.
var recalcCmd = &cobra.Command{
	Use:   "recalc",
	Short: "Recompute agent occupied_slots and keypair concurrency, then exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgPath, _ := cmd.Flags().GetString("config")
		if cfgPath == "" {
			return fmt.Errorf("recalc: --config is required")
		}
		fullscan, _ := cmd.Flags().GetBool("fullscan")

		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		log.Init(log.Config{Level: log.Level(cfg.Logging.Level), JSONOutput: cfg.Logging.JSONOutput})

		store, err := storage.NewBoltStore(cfg.Node.DataDir)
		if err != nil {
			return fmt.Errorf("recalc: open storage: %w", err)
		}
		defer store.Close()

		clu := cluster.New(cluster.Config{
			NodeID:   cfg.Node.ID,
			BindAddr: cfg.Node.BindAddr,
			DataDir:  cfg.Node.DataDir,
		})
		fsm := repository.NewFSM(store)
		if err := clu.Bootstrap(fsm); err != nil && !errors.Is(err, raft.ErrCantBootstrap) {
			return fmt.Errorf("recalc: %w", err)
		}
		defer clu.Shutdown()

		if err := awaitLeadership(clu, 10*time.Second); err != nil {
			return fmt.Errorf("recalc: %w", err)
		}

		repo := repository.New(clu, store)

		state, err := newStateStore(cfg)
		if err != nil {
			return err
		}
		defer state.Close()

		recalculator := accounting.NewRecalculator(repo, state, cfg.Scheduler.LockTTL)
		return recalculator.Recalc(context.Background(), fullscan)
	},
}

func init() {
	recalcCmd.Flags().Bool("fullscan", true, "Recompute every agent and keypair, not just agents with currently-occupying kernels")
}

// awaitLeadership polls until clu has a raft leader elected, which a
// single-node cluster resuming from its own on-disk log does almost
// immediately. recalc writes through raft.Apply, which fails against a
// leaderless cluster once the repository's per-apply timeout runs out.
func awaitLeadership(clu *cluster.Cluster, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if clu.LeaderAddr() != "" {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("no raft leader elected within %s", timeout)
}
