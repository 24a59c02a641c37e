/*
Package metrics provides Prometheus metrics collection and exposition for the
manager.

The metrics package defines and registers every manager metric using the
Prometheus client library, providing observability into fleet composition,
session/kernel lifecycle, scheduling throughput, settlement drift, and raft
health. Metrics are exposed via HTTP for scraping by Prometheus servers.

# Architecture

	┌──────────────────── METRICS SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │          Prometheus Registry                │          │
	│  │  - Global DefaultRegistry                   │          │
	│  │  - MustRegister at package init             │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Metric Categories                 │          │
	│  │                                              │          │
	│  │  Fleet: agents, resource slots (sampled)    │          │
	│  │  Sessions/Kernels: counts by status         │          │
	│  │  Raft: leader status, log index, peers      │          │
	│  │  API: request count, duration               │          │
	│  │  Scheduler: tick duration, scheduled/        │          │
	│  │    cancelled/predicate-failure counts       │          │
	│  │  Settlement: start duration, failures,       │          │
	│  │    actual-vs-requested drift                │          │
	│  │  Accounting: reconciliation duration,        │          │
	│  │    corrections applied                       │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │          HTTP Metrics Endpoint              │          │
	│  │  - Path: /metrics                           │          │
	│  │  - Format: Prometheus text exposition       │          │
	│  │  - Handler: promhttp.Handler()              │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

Two update styles coexist. Gauges that summarize repository/cluster state
(agent counts, occupied/available slots, session/kernel counts, raft index)
are sampled on a timer by Collector, since computing them on every write
would mean re-scanning the whole fleet on every scheduling tick. Counters
and histograms that mark a specific event (a session got scheduled, a
predicate failed, settlement observed drift) are incremented inline by the
component that caused them, since sampling would miss events that happen
and clear between ticks.

# Core Components

Collector: samples repository + cluster state into the gauges below.

	collector := metrics.NewCollector(repo, clu)
	collector.Start()  // samples every 15 seconds
	defer collector.Stop()

Timer: a stopwatch for histogram observations.

	timer := metrics.NewTimer()
	// ... do work ...
	timer.ObserveDuration(metrics.SessionStartDuration)

# Metric Reference

## Fleet Gauges

backendai_agents_total{resource_group, status}:
  - Agent count by resource group and ALIVE/LOST/TERMINATED status.

backendai_resource_slots_occupied{resource_group, slot}:
backendai_resource_slots_available{resource_group, slot}:
  - Summed agent.OccupiedSlots / agent.AvailableSlots per resource group,
    one series per slot name (cpu, mem, cuda.shares, ...).

## Session/Kernel Gauges

backendai_sessions_total{status}:
backendai_kernels_total{status}:
  - Count by lifecycle status (PENDING, SCHEDULED, ..., RUNNING, ...).

## Raft Gauges

backendai_raft_is_leader:
backendai_raft_peers_total:
backendai_raft_log_index:
backendai_raft_applied_index:
  - Mirrors pkg/cluster.Cluster.Stats() and IsLeader().

## API

backendai_api_requests_total{method, status}:
backendai_api_request_duration_seconds{method}:

## Scheduler

backendai_scheduling_tick_duration_seconds{resource_group}:
  - One observation per Dispatcher.tickResourceGroup call that acquired
    the resource group's schedule lock.

backendai_sessions_scheduled_total{resource_group}:
backendai_sessions_cancelled_total{resource_group, reason}:
backendai_predicate_failures_total{predicate, permanent}:

## Settlement

backendai_session_start_duration_seconds:
  - One observation per Dispatcher.StartSession call.

backendai_kernels_failed_to_start_total:
backendai_settlement_drift_total{slot}:
  - Incremented whenever an agent's actual allocation for a slot differs
    from what was requested (device quantum rounding).

## Accounting

backendai_reconciliation_duration_seconds:
backendai_reconciliation_corrections_total{resource_group}:
  - One increment per agent whose occupied_slots a reconciliation pass
    (full-scan or delta) had to
    correct away from what commit-time bookkeeping alone produced.

# Best Practices

1. Collector interval
  - Default 15s balances freshness against repository scan cost.
  - A larger fleet (>1000 agents) may want 30-60s instead.

2. Inline vs. sampled
  - Never add a new gauge updated inline from a hot path (scheduling tick,
    settlement) — sample it from Collector instead, the same way
    backendai_agents_total is.
  - Counters marking a specific event belong inline, at the point the
    event is known, not reconstructed later from sampled state.

# See also

  - pkg/scheduler - emits the scheduling and settlement metrics
  - pkg/accounting - emits the reconciliation metrics
  - pkg/cluster - raft stats this package's Collector samples
*/
package metrics
