// Package repository is the raft state machine for the scheduling core's
// authoritative records (agents, sessions, kernels, resource groups, quota
// policies, dependency edges) and the typed façade the rest of the core
// calls instead of touching pkg/storage or pkg/cluster directly.
//
// Every mutation goes through Repository's Create*/Update*/Delete* methods,
// which marshal a Command, replicate it via the cluster, and let the FSM's
// Apply unmarshal it back into a pkg/storage call on the commit path — so a
// write only takes effect once a majority of raft voters have it durably
// logged. Reads bypass raft entirely and hit the local BoltStore, matching
// raft's usual linearizable-write/local-read trade-off.
package repository
