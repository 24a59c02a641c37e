// Package config is the manager's YAML configuration file, loaded once at
// startup by cmd/backendai-manager and passed down to pkg/cluster,
// pkg/statestore, pkg/log, and the scheduling loop.
package config
