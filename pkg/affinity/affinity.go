// Package affinity models the NUMA topology of one agent's devices and
// answers "given these already-chosen devices, which devices of the
// requested class are closest?"
//
// The underlying model is an undirected complete graph on all devices where
// the edge weight between two devices is the absolute difference of their
// NUMA node ids (missing NUMA node treated as 0). Per the design note in
// spec.md §9 ("a hand-rolled adjacency structure suffices"), this package
// does not pull in a general graph library: the weight function is a pure
// computation, so no edges are ever materialized, and the only structural
// operation the three queries need — grouping devices by NUMA node — falls
// out of that weight function directly, since two devices are at distance 0
// iff they share a NUMA node.
package affinity

import (
	"sort"

	"github.com/cuemby/warren/pkg/types"
)

// Map holds the devices enumerated on one host and answers topology
// queries over them. Built once per agent on device enumeration.
type Map struct {
	devices []types.Device
	byKey   map[types.DeviceKey]types.Device
}

// Build constructs the affinity map for the given devices.
func Build(devices []types.Device) *Map {
	m := &Map{
		devices: append([]types.Device(nil), devices...),
		byKey:   make(map[types.DeviceKey]types.Device, len(devices)),
	}
	for _, d := range devices {
		m.byKey[d.Key()] = d
	}
	return m
}

func numaNode(d types.Device) int {
	if d.NUMANode == nil {
		return 0
	}
	return *d.NUMANode
}

func distance(a, b types.Device) int {
	diff := numaNode(a) - numaNode(b)
	if diff < 0 {
		diff = -diff
	}
	return diff
}

// DeviceDistance pairs a device with its NUMA distance from some reference.
type DeviceDistance struct {
	Device   types.Device
	Distance int
}

// GetLargestDeviceClusterWithLowestDistanceFromSrcDevice returns, among
// devices named deviceName other than src, those at the lowest NUMA
// distance from src (ties are all same-weight devices sharing src's socket
// when one exists). Because the induced "same distance from src" subgraph
// is always a star centered on src, its only connected component other than
// src itself is exactly this lowest-distance set, so there is never a
// genuine tie to break on component size.
func (m *Map) GetLargestDeviceClusterWithLowestDistanceFromSrcDevice(deviceName string, src types.Device) []DeviceDistance {
	var best []DeviceDistance
	minDist := -1
	for _, d := range m.devices {
		if d.Key() == src.Key() || d.Name != deviceName {
			continue
		}
		w := distance(src, d)
		switch {
		case minDist == -1 || w < minDist:
			minDist = w
			best = []DeviceDistance{{Device: d, Distance: w}}
		case w == minDist:
			best = append(best, DeviceDistance{Device: d, Distance: w})
		}
	}
	sort.Slice(best, func(i, j int) bool { return best[i].Device.ID < best[j].Device.ID })
	return best
}

// GetDeviceClustersWithLowestDistance groups all devices named deviceName
// into zero-distance (same NUMA node) clusters, returned largest first.
func (m *Map) GetDeviceClustersWithLowestDistance(deviceName string) [][]DeviceDistance {
	groups := make(map[int][]types.Device)
	for _, d := range m.devices {
		if d.Name != deviceName {
			continue
		}
		groups[numaNode(d)] = append(groups[numaNode(d)], d)
	}

	clusters := make([][]DeviceDistance, 0, len(groups))
	for _, devices := range groups {
		sort.Slice(devices, func(i, j int) bool { return devices[i].ID < devices[j].ID })
		cluster := make([]DeviceDistance, len(devices))
		for i, d := range devices {
			cluster[i] = DeviceDistance{Device: d, Distance: 0}
		}
		clusters = append(clusters, cluster)
	}

	sort.SliceStable(clusters, func(i, j int) bool {
		if len(clusters[i]) != len(clusters[j]) {
			return len(clusters[i]) > len(clusters[j])
		}
		return clusters[i][0].Device.ID < clusters[j][0].Device.ID
	})
	return clusters
}

// GetDistanceOrderedNeighbors returns, for each NUMA-colocated group among
// srcDevices, the nearest cluster of deviceName devices to that group
// (picking one representative per group, since all members of a zero-
// distance group have identical distances to any third device). If
// srcDevices is empty, it falls back to the zero-distance clusters of
// deviceName itself, i.e. GetDeviceClustersWithLowestDistance.
func (m *Map) GetDistanceOrderedNeighbors(srcDevices []types.Device, deviceName string) [][]DeviceDistance {
	if len(srcDevices) == 0 {
		return m.GetDeviceClustersWithLowestDistance(deviceName)
	}

	groups := make(map[int][]types.Device)
	order := make([]int, 0)
	for _, d := range srcDevices {
		n := numaNode(d)
		if _, ok := groups[n]; !ok {
			order = append(order, n)
		}
		groups[n] = append(groups[n], d)
	}
	sort.Ints(order)

	result := make([][]DeviceDistance, 0, len(order))
	for _, n := range order {
		representative := groups[n][0]
		result = append(result, m.GetLargestDeviceClusterWithLowestDistanceFromSrcDevice(deviceName, representative))
	}
	return result
}

// AllOf returns every device named deviceName known to this map, sorted by
// device id. Used by callers that need the full candidate set before
// splitting it into primary/secondary affinity clusters.
func (m *Map) AllOf(deviceName string) []types.Device {
	out := make([]types.Device, 0)
	for _, d := range m.devices {
		if d.Name == deviceName {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
