package main

import (
	"fmt"
	"os"

	"github.com/cuemby/warren/pkg/log"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "backendai-manager",
	Short: "Backend.AI manager: session scheduling and resource allocation",
	Long: `backendai-manager runs the session-scheduling and resource-allocation
core: a raft-replicated fleet of manager replicas that admit, place, and
settle compute sessions onto a fleet of agent nodes.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"backendai-manager version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("config", "", "Path to the manager config file (required)")
	cobra.OnInitialize(initLoggingFromEnv)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(bootstrapCmd)
	rootCmd.AddCommand(joinCmd)
	rootCmd.AddCommand(recalcCmd)
}

// initLoggingFromEnv sets a sane default before the config file (which
// carries the real level) is loaded; serveCmd/bootstrapCmd re-init once
// they've read it.
func initLoggingFromEnv() {
	log.Init(log.Config{Level: log.InfoLevel})
}
