package main

import (
	"fmt"

	"github.com/cuemby/warren/pkg/config"
	"github.com/spf13/cobra"
)

// joinCmd runs the same daemon as serve, after pointing this node at an
// existing leader instead of bootstrapping a new cluster.
var joinCmd = &cobra.Command{
	Use:   "join",
	Short: "Run this node as a manager replica, joining an existing cluster",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgPath, _ := cmd.Flags().GetString("config")
		if cfgPath == "" {
			return fmt.Errorf("join: --config is required")
		}
		leader, _ := cmd.Flags().GetString("leader")
		if leader == "" {
			return fmt.Errorf("join: --leader is required")
		}
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		cfg.Node.Join = leader
		return runManager(cfg)
	},
}

func init() {
	joinCmd.Flags().String("leader", "", "Control-plane address of an existing cluster member (required)")
}
