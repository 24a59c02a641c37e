package types

import "github.com/shopspring/decimal"

// DeviceID identifies a device within one agent's device class, e.g.
// "cuda:0" or "0" for a bare CPU core index.
type DeviceID string

// Device is an abstract compute unit identified by (device_name, device_id).
// Equality and hashing follow that pair; two Device values with the same
// Name and ID are considered the same device even if other fields differ.
type Device struct {
	Name     string // device_name, e.g. "cpu", "cuda", "mem"
	ID       DeviceID
	Location string // hardware location string, e.g. PCI bus address
	Memory   int64  // capacity in bytes, 0 if not applicable
	NumCores int    // processing-unit count, 0 if not applicable
	NUMANode *int   // nil when the host reports no NUMA topology
}

// Key returns the (device_name, device_id) identity used for equality,
// hashing, and map keys throughout the allocation and affinity subsystems.
func (d Device) Key() DeviceKey {
	return DeviceKey{Name: d.Name, ID: d.ID}
}

// DeviceKey is the comparable identity of a Device, suitable as a map key.
type DeviceKey struct {
	Name string
	ID   DeviceID
}

// DeviceSlot records one device's capacity for one slot within an AllocMap.
type DeviceSlot struct {
	SlotType SlotType
	SlotName string
	Capacity decimal.Decimal
}

// AffinityPolicy guides how a new allocation is clustered relative to a
// session's previously chosen devices.
type AffinityPolicy string

const (
	// AffinityPreferSingleNode chains all same-NUMA devices back to back.
	AffinityPreferSingleNode AffinityPolicy = "prefer-single-node"
	// AffinityInterleaved interleaves devices round-robin across NUMA groups.
	AffinityInterleaved AffinityPolicy = "interleaved"
)

// AffinityHint carries the devices already chosen for a session (if any)
// plus the policy guiding how the next kernel's allocation should be
// clustered relative to them.
type AffinityHint struct {
	Devices []Device
	Policy  AffinityPolicy
}
