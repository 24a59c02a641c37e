// Package types defines the core data model shared by the allocation,
// affinity, scheduling, and storage subsystems: resource slots, devices,
// agents, sessions, kernels, and the on-disk KernelResourceSpec artifact.
package types
