// Package config loads the manager's YAML configuration file: cluster
// identity, the raft data directory, the statestore backend (in-memory or
// Redis) backing locks and concurrency counters, the scheduler tick and
// lock lifetime, logging, and the metrics endpoint.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level manager configuration file shape.
type Config struct {
	Node       NodeConfig       `yaml:"node"`
	StateStore StateStoreConfig `yaml:"state_store"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// NodeConfig identifies this manager replica within the raft cluster.
type NodeConfig struct {
	ID       string `yaml:"id"`
	BindAddr string `yaml:"bind_addr"`
	DataDir  string `yaml:"data_dir"`

	// ControlAddr is where this node listens for inter-manager control-plane
	// RPCs (currently just RequestJoin). Raft's own TCP transport owns
	// BindAddr, so control traffic needs a separate listener.
	ControlAddr string `yaml:"control_addr"`

	// Join, if set, names the control address of an existing leader to
	// join instead of bootstrapping a new single-node cluster.
	Join string `yaml:"join"`
}

// StateStoreConfig selects and configures the backend behind
// pkg/statestore.Store: schedule locks, concurrency counters, and the
// round-robin selector cursor.
type StateStoreConfig struct {
	// Backend is "memory" or "redis". Defaults to "memory".
	Backend string `yaml:"backend"`

	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig configures statestore.NewRedisStore. Only read when
// StateStoreConfig.Backend is "redis".
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`

	// SentinelMasterName is accepted by Validate in place of Addr but is not
	// read when the store is built: the Redis statestore always dials Addr.
	SentinelMasterName string `yaml:"sentinel_master_name"`
}

// SchedulerConfig tunes the dispatcher tick and schedule-lock lifetime.
type SchedulerConfig struct {
	TickInterval time.Duration `yaml:"tick_interval"`
	LockTTL      time.Duration `yaml:"lock_ttl"`
}

// LoggingConfig maps directly onto pkg/log.Config.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	JSONOutput bool   `yaml:"json_output"`
}

// MetricsConfig controls the /metrics HTTP endpoint. CollectInterval is
// parsed but not read: metrics.Collector samples on a fixed 15-second
// interval.
type MetricsConfig struct {
	Addr            string        `yaml:"addr"`
	CollectInterval time.Duration `yaml:"collect_interval"`
}

// Default returns a Config usable for a single-node development cluster:
// in-memory statestore, a 2-second tick, info logging.
func Default() Config {
	return Config{
		Node: NodeConfig{
			ID:          "manager-1",
			BindAddr:    "127.0.0.1:7000",
			ControlAddr: "127.0.0.1:7001",
			DataDir:     "./data",
		},
		StateStore: StateStoreConfig{Backend: "memory"},
		Scheduler: SchedulerConfig{
			TickInterval: 2 * time.Second,
			LockTTL:      30 * time.Second,
		},
		Logging: LoggingConfig{Level: "info"},
		Metrics: MetricsConfig{
			Addr:            ":9090",
			CollectInterval: 15 * time.Second,
		},
	}
}

// Load reads and parses path, filling in Default()'s values for anything
// left zero in the file.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first configuration error that would otherwise
// surface as a confusing failure deep in cluster bootstrap or dialing.
func (c Config) Validate() error {
	if c.Node.ID == "" {
		return fmt.Errorf("config: node.id is required")
	}
	if c.Node.BindAddr == "" {
		return fmt.Errorf("config: node.bind_addr is required")
	}
	if c.Node.DataDir == "" {
		return fmt.Errorf("config: node.data_dir is required")
	}
	if c.Node.ControlAddr == "" {
		return fmt.Errorf("config: node.control_addr is required")
	}
	switch c.StateStore.Backend {
	case "", "memory":
	case "redis":
		if c.StateStore.Redis.Addr == "" && c.StateStore.Redis.SentinelMasterName == "" {
			return fmt.Errorf("config: state_store.redis.addr or sentinel_master_name is required for the redis backend")
		}
	default:
		return fmt.Errorf("config: unknown state_store.backend %q", c.StateStore.Backend)
	}
	if c.Scheduler.TickInterval <= 0 {
		return fmt.Errorf("config: scheduler.tick_interval must be positive")
	}
	return nil
}
