package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Fleet metrics
	AgentsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "backendai_agents_total",
			Help: "Total number of agents by resource group and status",
		},
		[]string{"resource_group", "status"},
	)

	SessionsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "backendai_sessions_total",
			Help: "Total number of sessions by status",
		},
		[]string{"status"},
	)

	KernelsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "backendai_kernels_total",
			Help: "Total number of kernels by status",
		},
		[]string{"status"},
	)

	ResourceSlotsOccupied = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "backendai_resource_slots_occupied",
			Help: "Occupied resource slots by resource group and slot name",
		},
		[]string{"resource_group", "slot"},
	)

	ResourceSlotsAvailable = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "backendai_resource_slots_available",
			Help: "Available (advertised) resource slots by resource group and slot name",
		},
		[]string{"resource_group", "slot"},
	)

	// Raft metrics
	RaftLeader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "backendai_raft_is_leader",
			Help: "Whether this node is the Raft leader (1 = leader, 0 = follower)",
		},
	)

	RaftPeers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "backendai_raft_peers_total",
			Help: "Total number of Raft peers in the cluster",
		},
	)

	RaftLogIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "backendai_raft_log_index",
			Help: "Current Raft log index",
		},
	)

	RaftAppliedIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "backendai_raft_applied_index",
			Help: "Last applied Raft log index",
		},
	)

	RaftApplyDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "backendai_raft_apply_duration_seconds",
			Help:    "Time taken to apply a Raft log entry in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	RaftCommitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "backendai_raft_commit_duration_seconds",
			Help:    "Time taken to commit a Raft log entry in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backendai_api_requests_total",
			Help: "Total number of API requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "backendai_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// Scheduler metrics
	SchedulingTickDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "backendai_scheduling_tick_duration_seconds",
			Help:    "Time taken for one dispatcher tick of a resource group",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"resource_group"},
	)

	SessionsScheduledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backendai_sessions_scheduled_total",
			Help: "Total number of sessions successfully scheduled onto an agent",
		},
		[]string{"resource_group"},
	)

	SessionsCancelledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backendai_sessions_cancelled_total",
			Help: "Total number of sessions cancelled, by reason",
		},
		[]string{"resource_group", "reason"},
	)

	PredicateFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backendai_predicate_failures_total",
			Help: "Total number of admission predicate failures by predicate name",
		},
		[]string{"predicate", "permanent"},
	)

	// Settlement metrics
	SessionStartDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "backendai_session_start_duration_seconds",
			Help:    "Time taken to settle a scheduled session into RUNNING",
			Buckets: prometheus.DefBuckets,
		},
	)

	KernelsFailedToStartTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "backendai_kernels_failed_to_start_total",
			Help: "Total number of kernels that failed during agent-side creation",
		},
	)

	SettlementDriftTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backendai_settlement_drift_total",
			Help: "Total number of non-zero actual-vs-requested slot corrections applied during settlement",
		},
		[]string{"slot"},
	)

	// Accounting metrics
	ReconciliationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "backendai_reconciliation_duration_seconds",
			Help:    "Time taken for a full-scan resource usage reconciliation pass",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReconciliationCorrectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backendai_reconciliation_corrections_total",
			Help: "Total number of agents whose occupied_slots were corrected by a reconciliation pass",
		},
		[]string{"resource_group"},
	)
)

func init() {
	prometheus.MustRegister(AgentsTotal)
	prometheus.MustRegister(SessionsTotal)
	prometheus.MustRegister(KernelsTotal)
	prometheus.MustRegister(ResourceSlotsOccupied)
	prometheus.MustRegister(ResourceSlotsAvailable)

	prometheus.MustRegister(RaftLeader)
	prometheus.MustRegister(RaftPeers)
	prometheus.MustRegister(RaftLogIndex)
	prometheus.MustRegister(RaftAppliedIndex)
	prometheus.MustRegister(RaftApplyDuration)
	prometheus.MustRegister(RaftCommitDuration)

	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)

	prometheus.MustRegister(SchedulingTickDuration)
	prometheus.MustRegister(SessionsScheduledTotal)
	prometheus.MustRegister(SessionsCancelledTotal)
	prometheus.MustRegister(PredicateFailuresTotal)

	prometheus.MustRegister(SessionStartDuration)
	prometheus.MustRegister(KernelsFailedToStartTotal)
	prometheus.MustRegister(SettlementDriftTotal)

	prometheus.MustRegister(ReconciliationDuration)
	prometheus.MustRegister(ReconciliationCorrectionsTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
