package metrics

import (
	"time"

	"github.com/cuemby/warren/pkg/cluster"
	"github.com/cuemby/warren/pkg/repository"
	"github.com/cuemby/warren/pkg/types"
)

// Collector periodically samples repository and cluster state into the
// gauges in metrics.go; the counters and histograms elsewhere in this
// package are updated inline by the components that cause them (the
// dispatcher, the settlement step, the reconciliation pass).
type Collector struct {
	repo    *repository.Repository
	cluster *cluster.Cluster
	stopCh  chan struct{}
}

// NewCollector returns a Collector sampling repo and clu every 15 seconds.
func NewCollector(repo *repository.Repository, clu *cluster.Cluster) *Collector {
	return &Collector{repo: repo, cluster: clu, stopCh: make(chan struct{})}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectAgentMetrics()
	c.collectSessionAndKernelMetrics()
	c.collectRaftMetrics()
}

func (c *Collector) collectAgentMetrics() {
	agents, err := c.repo.ListAgents()
	if err != nil {
		return
	}

	counts := make(map[[2]string]int)
	occupied := make(map[[2]string]float64)
	available := make(map[[2]string]float64)
	for _, a := range agents {
		counts[[2]string{a.ResourceGroup, string(a.Status)}]++
		for _, slot := range a.OccupiedSlots.SortedKeys() {
			occupied[[2]string{a.ResourceGroup, slot}] += a.OccupiedSlots.Get(slot).InexactFloat64()
		}
		for _, slot := range a.AvailableSlots.SortedKeys() {
			available[[2]string{a.ResourceGroup, slot}] += a.AvailableSlots.Get(slot).InexactFloat64()
		}
	}

	for k, v := range counts {
		AgentsTotal.WithLabelValues(k[0], k[1]).Set(float64(v))
	}
	for k, v := range occupied {
		ResourceSlotsOccupied.WithLabelValues(k[0], k[1]).Set(v)
	}
	for k, v := range available {
		ResourceSlotsAvailable.WithLabelValues(k[0], k[1]).Set(v)
	}
}

func (c *Collector) collectSessionAndKernelMetrics() {
	sessions, err := c.repo.ListSessions()
	if err != nil {
		return
	}

	sessionCounts := make(map[types.SessionStatus]int)
	kernelCounts := make(map[types.KernelStatus]int)
	for _, s := range sessions {
		sessionCounts[s.Status]++
		kernels, err := c.repo.ListKernelsBySession(s.ID)
		if err != nil {
			continue
		}
		for _, k := range kernels {
			kernelCounts[k.Status]++
		}
	}

	for status, count := range sessionCounts {
		SessionsTotal.WithLabelValues(string(status)).Set(float64(count))
	}
	for status, count := range kernelCounts {
		KernelsTotal.WithLabelValues(string(status)).Set(float64(count))
	}
}

func (c *Collector) collectRaftMetrics() {
	if c.cluster.IsLeader() {
		RaftLeader.Set(1)
	} else {
		RaftLeader.Set(0)
	}

	stats := c.cluster.Stats()
	if stats == nil {
		return
	}
	if lastIndex, ok := stats["last_log_index"].(uint64); ok {
		RaftLogIndex.Set(float64(lastIndex))
	}
	if appliedIndex, ok := stats["applied_index"].(uint64); ok {
		RaftAppliedIndex.Set(float64(appliedIndex))
	}
	if peers, ok := stats["peers"].(uint64); ok {
		RaftPeers.Set(float64(peers))
	}
}
