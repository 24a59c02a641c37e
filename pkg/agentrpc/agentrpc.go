// Package agentrpc is the dispatcher's boundary to the fleet: the narrow set
// of calls it makes against whichever agent a session's kernels land on, and
// the settlement data those calls return. It does not implement an agent
// daemon; AgentRPC is a client interface, with a gRPC implementation for
// production and an in-memory fake for dispatcher tests.
package agentrpc

import (
	"context"

	"github.com/cuemby/warren/pkg/types"
)

// KernelSpec is one kernel's creation request, addressed to the agent
// already chosen for it by the selector.
type KernelSpec struct {
	KernelID     types.KernelID
	SessionID    types.SessionID
	ClusterRole  types.ClusterRole
	ClusterIdx   int
	Architecture string
	Image        string
	ResourceSpec *types.KernelResourceSpec
	Environment  map[string]string
	Mounts       []types.MountTriple
}

// KernelResult is what the agent reports back after attempting to create
// one kernel. ActualSlots may differ from the spec's requested slots (e.g.
// fractional shares rounded down to the device's allocation quantum); the
// dispatcher's settlement step reconciles agent.OccupiedSlots against this,
// not against what was requested.
type KernelResult struct {
	KernelID    types.KernelID
	ContainerID string
	ActualSlots types.ResourceSlot
	Err         string
}

// HWInfo is an agent's self-reported capacity and live container set,
// gathered on join and periodically thereafter to detect drift between the
// repository's view of an agent and its true state.
type HWInfo struct {
	Architecture   string
	AvailableSlots types.ResourceSlot
	SlotTypes      map[string]types.SlotType
	NUMATopology   []types.Device
	LiveContainers []types.LiveContainer
}

// AgentRPC is everything the dispatcher and its supporting timers need to
// call on a remote agent. Every method is addressed by the agent's
// advertised address rather than a held connection, so a single AgentRPC
// implementation can multiplex many agents.
type AgentRPC interface {
	// CheckAndPullImage asks the agent to ensure image is present locally for
	// architecture, pulling it if not. Called before CreateKernels so a slow
	// pull doesn't hold a session's reservation lock.
	CheckAndPullImage(ctx context.Context, agentAddr, image, architecture string) error

	// CreateKernels asks the agent to create every kernel in specs as one
	// atomic request (all-or-nothing from the dispatcher's perspective: a
	// partial per-kernel Err still returns a full KernelResult slice so the
	// dispatcher can roll back precisely).
	CreateKernels(ctx context.Context, agentAddr string, specs []KernelSpec) ([]KernelResult, error)

	// DestroyKernel asks the agent to stop and remove a kernel's container.
	DestroyKernel(ctx context.Context, agentAddr string, kernelID types.KernelID, reason string) error

	// RestartKernel asks the agent to restart a kernel's container in place,
	// keeping its resource reservation.
	RestartKernel(ctx context.Context, agentAddr string, kernelID types.KernelID) error

	// GatherHWInfo asks the agent to report its current capacity and live
	// containers, used to detect and repair drift against the repository.
	GatherHWInfo(ctx context.Context, agentAddr string) (HWInfo, error)

	// CreateLocalNetwork asks the agent to create a container network scoped
	// to one multi-node session, so its kernels can reach each other.
	CreateLocalNetwork(ctx context.Context, agentAddr, networkName string) error

	// DestroyLocalNetwork tears down a network created by CreateLocalNetwork.
	DestroyLocalNetwork(ctx context.Context, agentAddr, networkName string) error

	// UpdateScalingGroup tells the agent which resource group it now belongs
	// to, following an administrative reassignment.
	UpdateScalingGroup(ctx context.Context, agentAddr, resourceGroup string) error
}
