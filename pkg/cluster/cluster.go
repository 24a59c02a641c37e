package cluster

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/cuemby/warren/pkg/metrics"
	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
)

// LeaderClient is how a joining node reaches the current leader to be added
// as a voter. The concrete implementation (a gRPC call against the
// leader's control-plane address) lives in pkg/clusterrpc, not here, so
// this package stays free of transport
// concerns beyond raft's own TCP transport.
type LeaderClient interface {
	RequestJoin(ctx context.Context, leaderAddr, nodeID, bindAddr string) error
}

// Config holds the construction parameters for a Cluster node.
type Config struct {
	NodeID   string
	BindAddr string
	DataDir  string
}

// Cluster is one raft node: the replicated log, its local stores, and the
// handful of administrative operations (bootstrap, join, membership change)
// that sit outside the regular command-apply path.
type Cluster struct {
	nodeID   string
	bindAddr string
	dataDir  string

	raft *raft.Raft
}

// New creates a Cluster from cfg but does not start raft; call
// Bootstrap or Join to do that.
func New(cfg Config) *Cluster {
	return &Cluster{
		nodeID:   cfg.NodeID,
		bindAddr: cfg.BindAddr,
		dataDir:  cfg.DataDir,
	}
}

func (c *Cluster) raftConfig() *raft.Config {
	cfg := raft.DefaultConfig()
	cfg.LocalID = raft.ServerID(c.nodeID)

	// Hashicorp's defaults (HeartbeatTimeout=ElectionTimeout=1s,
	// LeaderLeaseTimeout=500ms) target WAN deployments; a scheduling core
	// with a 10s tick interval wants faster failure detection than that so
	// a lost leader doesn't stall an entire tick.
	cfg.HeartbeatTimeout = 500 * time.Millisecond
	cfg.ElectionTimeout = 500 * time.Millisecond
	cfg.CommitTimeout = 50 * time.Millisecond
	cfg.LeaderLeaseTimeout = 250 * time.Millisecond
	return cfg
}

func (c *Cluster) newRaft(fsm raft.FSM) (*raft.Raft, *raft.NetworkTransport, error) {
	addr, err := net.ResolveTCPAddr("tcp", c.bindAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve bind address: %w", err)
	}

	transport, err := raft.NewTCPTransport(c.bindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return nil, nil, fmt.Errorf("create transport: %w", err)
	}

	snapshotStore, err := raft.NewFileSnapshotStore(c.dataDir, 2, os.Stderr)
	if err != nil {
		return nil, nil, fmt.Errorf("create snapshot store: %w", err)
	}

	logStore, err := raftboltdb.NewBoltStore(filepath.Join(c.dataDir, "raft-log.db"))
	if err != nil {
		return nil, nil, fmt.Errorf("create log store: %w", err)
	}

	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(c.dataDir, "raft-stable.db"))
	if err != nil {
		return nil, nil, fmt.Errorf("create stable store: %w", err)
	}

	r, err := raft.NewRaft(c.raftConfig(), fsm, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		return nil, nil, fmt.Errorf("create raft: %w", err)
	}
	return r, transport, nil
}

// Bootstrap initializes a brand-new single-node cluster with fsm as its
// state machine.
func (c *Cluster) Bootstrap(fsm raft.FSM) error {
	r, transport, err := c.newRaft(fsm)
	if err != nil {
		return err
	}
	c.raft = r

	configuration := raft.Configuration{
		Servers: []raft.Server{
			{ID: raft.ServerID(c.nodeID), Address: transport.LocalAddr()},
		},
	}
	if err := c.raft.BootstrapCluster(configuration).Error(); err != nil {
		return fmt.Errorf("bootstrap cluster: %w", err)
	}
	return nil
}

// Join starts this node's raft instance and asks the leader (via client) to
// add it as a voter. fsm starts out empty; it is populated by raft's
// snapshot restore and subsequent log replay.
func (c *Cluster) Join(ctx context.Context, leaderAddr string, fsm raft.FSM, client LeaderClient) error {
	r, _, err := c.newRaft(fsm)
	if err != nil {
		return err
	}
	c.raft = r

	if err := client.RequestJoin(ctx, leaderAddr, c.nodeID, c.bindAddr); err != nil {
		return fmt.Errorf("request join from leader %s: %w", leaderAddr, err)
	}
	return nil
}

// AddVoter adds a new node as a full voting member. Only the leader may
// call this.
func (c *Cluster) AddVoter(nodeID, address string) error {
	if c.raft == nil {
		return fmt.Errorf("cluster: raft not initialized")
	}
	if !c.IsLeader() {
		return fmt.Errorf("cluster: not the leader, current leader is %s", c.LeaderAddr())
	}
	if err := c.raft.AddVoter(raft.ServerID(nodeID), raft.ServerAddress(address), 0, 10*time.Second).Error(); err != nil {
		return fmt.Errorf("add voter %s: %w", nodeID, err)
	}
	return nil
}

// RemoveServer removes a node from the cluster's voter set, e.g. on
// decommission.
func (c *Cluster) RemoveServer(nodeID string) error {
	if c.raft == nil {
		return fmt.Errorf("cluster: raft not initialized")
	}
	if !c.IsLeader() {
		return fmt.Errorf("cluster: not the leader")
	}
	if err := c.raft.RemoveServer(raft.ServerID(nodeID), 0, 10*time.Second).Error(); err != nil {
		return fmt.Errorf("remove server %s: %w", nodeID, err)
	}
	return nil
}

// Servers returns the current raft membership.
func (c *Cluster) Servers() ([]raft.Server, error) {
	if c.raft == nil {
		return nil, fmt.Errorf("cluster: raft not initialized")
	}
	future := c.raft.GetConfiguration()
	if err := future.Error(); err != nil {
		return nil, fmt.Errorf("get configuration: %w", err)
	}
	return future.Configuration().Servers, nil
}

// IsLeader reports whether this node currently holds raft leadership.
func (c *Cluster) IsLeader() bool {
	return c.raft != nil && c.raft.State() == raft.Leader
}

// LeaderAddr returns the advertised address of the current leader, or "" if
// unknown.
func (c *Cluster) LeaderAddr() string {
	if c.raft == nil {
		return ""
	}
	return string(c.raft.Leader())
}

// Stats returns a snapshot of raft's internal counters, for the
// cluster-status RPC and /metrics endpoint.
func (c *Cluster) Stats() map[string]any {
	if c.raft == nil {
		return nil
	}
	stats := map[string]any{
		"state":           c.raft.State().String(),
		"last_log_index":  c.raft.LastIndex(),
		"applied_index":   c.raft.AppliedIndex(),
		"leader":          string(c.raft.Leader()),
	}
	if cfg := c.raft.GetConfiguration(); cfg.Error() == nil {
		stats["peers"] = uint64(len(cfg.Configuration().Servers))
	} else {
		stats["peers"] = uint64(0)
	}
	return stats
}

// Apply replicates data through the raft log and returns whatever the FSM's
// Apply returned for this entry. The caller (pkg/repository) is responsible
// for interpreting a non-nil response as a domain error.
func (c *Cluster) Apply(data []byte, timeout time.Duration) (any, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.RaftCommitDuration)

	if c.raft == nil {
		return nil, fmt.Errorf("cluster: raft not initialized")
	}
	future := c.raft.Apply(data, timeout)
	if err := future.Error(); err != nil {
		return nil, fmt.Errorf("apply command: %w", err)
	}
	return future.Response(), nil
}

// Shutdown gracefully stops the raft instance.
func (c *Cluster) Shutdown() error {
	if c.raft == nil {
		return nil
	}
	if err := c.raft.Shutdown().Error(); err != nil {
		return fmt.Errorf("shutdown raft: %w", err)
	}
	return nil
}

// NodeID returns this node's raft server ID.
func (c *Cluster) NodeID() string { return c.nodeID }
