package main

import (
	"fmt"

	"github.com/cuemby/warren/pkg/cluster"
	"github.com/cuemby/warren/pkg/config"
	"github.com/cuemby/warren/pkg/log"
	"github.com/cuemby/warren/pkg/repository"
	"github.com/cuemby/warren/pkg/storage"
	"github.com/spf13/cobra"
)

// bootstrapCmd initializes a brand-new single-node cluster's on-disk state
// and exits, without starting the scheduling loop or any RPC servers. It
// exists for first-time setup scripts that want bootstrap and serve as two
// separate, auditable steps.
var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Initialize a new single-node cluster and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgPath, _ := cmd.Flags().GetString("config")
		if cfgPath == "" {
			return fmt.Errorf("bootstrap: --config is required")
		}
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		log.Init(log.Config{Level: log.Level(cfg.Logging.Level), JSONOutput: cfg.Logging.JSONOutput})

		store, err := storage.NewBoltStore(cfg.Node.DataDir)
		if err != nil {
			return fmt.Errorf("bootstrap: open storage: %w", err)
		}
		defer store.Close()

		clu := cluster.New(cluster.Config{
			NodeID:   cfg.Node.ID,
			BindAddr: cfg.Node.BindAddr,
			DataDir:  cfg.Node.DataDir,
		})
		fsm := repository.NewFSM(store)
		if err := clu.Bootstrap(fsm); err != nil {
			return fmt.Errorf("bootstrap: %w", err)
		}
		return clu.Shutdown()
	},
}
