// Package cluster wraps hashicorp/raft into the consensus layer backing
// pkg/repository: one manager replica is elected leader, every mutating
// command is replicated through the raft log before pkg/repository applies
// it to local storage, and read paths are served straight from the local
// BoltDB without going through raft.
//
// This package owns only the raft node and its on-disk log/stable/snapshot
// stores; it knows nothing about agents, sessions, or kernels. The state
// machine that actually interprets committed log entries lives in
// pkg/repository, injected here as a raft.FSM.
package cluster
