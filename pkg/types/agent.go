package types

import "time"

// AgentID identifies an agent node.
type AgentID string

// AgentStatus is the lifecycle status of an agent row.
type AgentStatus string

const (
	AgentStatusAlive      AgentStatus = "ALIVE"
	AgentStatusLost       AgentStatus = "LOST"
	AgentStatusTerminated AgentStatus = "TERMINATED"
)

// Agent is the authoritative record of one fleet node's advertised and
// occupied resource slots. occupied_slots <= available_slots holds
// componentwise at steady state; a transient violation is permitted only
// between an in-progress allocation and its completion, and must be
// repaired by the settlement step.
type Agent struct {
	ID                    AgentID
	Address               string
	Architecture          string
	ResourceGroup         string
	Status                AgentStatus
	AvailableSlots        ResourceSlot
	OccupiedSlots         ResourceSlot
	ComputePluginVersions map[string]string
	LastHeartbeat         time.Time
	CreatedAt             time.Time
}

// FreeSlots returns AvailableSlots - OccupiedSlots. The result may be
// momentarily negative for a slot between an in-progress allocation and its
// settlement; the result is not floored at zero.
func (a *Agent) FreeSlots() ResourceSlot {
	return a.AvailableSlots.Sub(a.OccupiedSlots)
}

// HeartbeatPayload is what an agent sends on its periodic heartbeat: its
// advertised capacity and the live containers it is currently hosting, used
// to rebuild AllocMap state by replaying each KernelResourceSpec.
type HeartbeatPayload struct {
	AgentID               AgentID
	Address               string
	Architecture          string
	ResourceGroup         string
	AvailableSlots        ResourceSlot
	SlotTypes             map[string]SlotType
	Version               string
	ComputePluginVersions map[string]string
	NUMATopology          []Device
	LiveContainers        []LiveContainer
}

// LiveContainer pairs a running container id with the resource spec that was
// written to its config volume at creation time.
type LiveContainer struct {
	ContainerID string
	KernelID    KernelID
	Spec        *KernelResourceSpec
}

// ResourceGroup (a.k.a. scaling group) names a pool of agents sharing one
// queueing policy and one agent-selector strategy.
type ResourceGroup struct {
	Name                string
	SchedulerPolicy     string // e.g. "fifo", "lifo", "drf", "mof", "priority"
	AgentSelector       string // e.g. "legacy", "concentrated", "dispersed", "roundrobin"
	SchedulerOpts       map[string]string
	SelectorOpts        map[string]string
	AllowedSessionTypes []SessionType
	PendingTimeout      time.Duration
}
