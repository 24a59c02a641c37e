package types

// KeypairResourcePolicy bounds what one access key may consume and how many
// sessions it may keep pending or concurrently occupying resources.
type KeypairResourcePolicy struct {
	Name                 string
	TotalResourceSlots    ResourceSlot
	MaxConcurrentSessions int
	MaxPendingSessionCount int
	MaxPendingSessionResourceSlots ResourceSlot
	AllowedResourceGroups []string
}

// UserResourcePolicy bounds total resource occupancy at the user scope.
type UserResourcePolicy struct {
	Name               string
	TotalResourceSlots ResourceSlot
}

// Group is an organizational pool of keypairs sharing a resource policy.
type Group struct {
	ID                 string
	Name               string
	Domain             string
	TotalResourceSlots ResourceSlot
}

// Domain is the top-level organizational scope bounding total resource
// occupancy across all its groups.
type Domain struct {
	Name               string
	TotalResourceSlots ResourceSlot
}

// DependencyEdge records that Dependent cannot be scheduled until
// Predecessor has reached SessionStatusTerminated with a successful exit.
type DependencyEdge struct {
	Dependent   SessionID
	Predecessor SessionID
}
