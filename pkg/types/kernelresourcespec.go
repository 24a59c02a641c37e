package types

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// MountPerm is the access permission of a mount triple.
type MountPerm string

const (
	MountRO MountPerm = "ro"
	MountRW MountPerm = "rw"
)

// MountTriple is one entry of the MOUNTS line: src:dst:perm.
type MountTriple struct {
	Source string
	Target string
	Perm   MountPerm
}

// UnifiedDevice pairs a device name with the slot name it is addressed by,
// e.g. ("cuda", "cuda.shares").
type UnifiedDevice struct {
	DeviceName string
	SlotName   string
}

// KernelResourceSpec is the persistent, round-trippable per-kernel
// allocation artifact written to the container's config volume
// (resource.txt) and re-read on manager restart.
type KernelResourceSpec struct {
	ScratchSize    int64
	Mounts         []MountTriple
	Slots          ResourceSlot
	UnifiedDevices []UnifiedDevice
	// Shares is slot name -> device id -> committed amount, i.e. the
	// per-device breakdown behind each *_SHARES line.
	Shares map[string]map[DeviceID]decimal.Decimal
}

// Write serializes the spec to its line-oriented KEY=VALUE form. slotTypes
// tells Write which slots are bytes-typed (formatted with a binary suffix
// when it round-trips exactly) versus count/fractional (formatted as plain
// decimals).
func (s *KernelResourceSpec) Write(slotTypes map[string]SlotType) (string, error) {
	var b strings.Builder

	fmt.Fprintf(&b, "SCRATCH_SIZE=%s\n", formatBinarySize(s.ScratchSize))

	mounts := make([]string, 0, len(s.Mounts))
	for _, m := range s.Mounts {
		mounts = append(mounts, fmt.Sprintf("%s:%s:%s", m.Source, m.Target, m.Perm))
	}
	fmt.Fprintf(&b, "MOUNTS=%s\n", strings.Join(mounts, ","))

	slotsJSON := make(map[string]string, len(s.Slots))
	for k, v := range s.Slots {
		slotsJSON[k] = v.String()
	}
	slotsBytes, err := json.Marshal(slotsJSON)
	if err != nil {
		return "", fmt.Errorf("marshal SLOTS: %w", err)
	}
	fmt.Fprintf(&b, "SLOTS=%s\n", string(slotsBytes))

	unified := make([][2]string, 0, len(s.UnifiedDevices))
	for _, u := range s.UnifiedDevices {
		unified = append(unified, [2]string{u.DeviceName, u.SlotName})
	}
	unifiedBytes, err := json.Marshal(unified)
	if err != nil {
		return "", fmt.Errorf("marshal UNIFIED_DEVICES: %w", err)
	}
	fmt.Fprintf(&b, "UNIFIED_DEVICES=%s\n", string(unifiedBytes))

	slotNames := make([]string, 0, len(s.Shares))
	for name := range s.Shares {
		slotNames = append(slotNames, name)
	}
	sort.Strings(slotNames)

	for _, name := range slotNames {
		devices := s.Shares[name]
		deviceIDs := make([]string, 0, len(devices))
		for id := range devices {
			deviceIDs = append(deviceIDs, string(id))
		}
		sort.Strings(deviceIDs)

		isBytes := slotTypes[name] == SlotTypeBytes
		parts := make([]string, 0, len(deviceIDs))
		for _, id := range deviceIDs {
			amount := devices[DeviceID(id)]
			var formatted string
			if isBytes {
				formatted = formatBinarySize(amount.IntPart())
			} else {
				formatted = amount.String()
			}
			parts = append(parts, fmt.Sprintf("%s:%s", id, formatted))
		}
		fmt.Fprintf(&b, "%s_SHARES=%s\n", strings.ToUpper(name), strings.Join(parts, ","))
	}

	return b.String(), nil
}

// ParseKernelResourceSpec parses the line-oriented KEY=VALUE form back into
// a KernelResourceSpec. It tolerates trailing whitespace, blank lines, and
// arbitrary key ordering. Lines matching *_SHARES whose slot name is not
// recognized from a prior SLOTS line are tolerated and reported back via
// warnings rather than rejected.
func ParseKernelResourceSpec(data string, slotTypes map[string]SlotType) (*KernelResourceSpec, []string, error) {
	spec := &KernelResourceSpec{
		Shares: make(map[string]map[DeviceID]decimal.Decimal),
	}
	var warnings []string
	shareLines := make(map[string]string)

	for _, rawLine := range strings.Split(data, "\n") {
		line := strings.TrimSpace(rawLine)
		if line == "" {
			continue
		}
		idx := strings.Index(line, "=")
		if idx < 0 {
			warnings = append(warnings, fmt.Sprintf("malformed line, no '=': %q", line))
			continue
		}
		key := line[:idx]
		value := line[idx+1:]

		switch {
		case key == "SCRATCH_SIZE":
			n, err := parseBinarySize(value)
			if err != nil {
				return nil, warnings, fmt.Errorf("parse SCRATCH_SIZE: %w", err)
			}
			spec.ScratchSize = n

		case key == "MOUNTS":
			if value != "" {
				for _, entry := range strings.Split(value, ",") {
					parts := strings.SplitN(entry, ":", 3)
					if len(parts) != 3 {
						return nil, warnings, fmt.Errorf("malformed mount triple: %q", entry)
					}
					spec.Mounts = append(spec.Mounts, MountTriple{
						Source: parts[0],
						Target: parts[1],
						Perm:   MountPerm(parts[2]),
					})
				}
			}

		case key == "SLOTS":
			var raw map[string]string
			if err := json.Unmarshal([]byte(value), &raw); err != nil {
				return nil, warnings, fmt.Errorf("parse SLOTS: %w", err)
			}
			spec.Slots = make(ResourceSlot, len(raw))
			for k, v := range raw {
				d, err := decimal.NewFromString(v)
				if err != nil {
					return nil, warnings, fmt.Errorf("parse SLOTS[%s]: %w", k, err)
				}
				spec.Slots[k] = d
			}

		case key == "UNIFIED_DEVICES":
			var raw [][2]string
			if err := json.Unmarshal([]byte(value), &raw); err != nil {
				return nil, warnings, fmt.Errorf("parse UNIFIED_DEVICES: %w", err)
			}
			for _, pair := range raw {
				spec.UnifiedDevices = append(spec.UnifiedDevices, UnifiedDevice{DeviceName: pair[0], SlotName: pair[1]})
			}

		case strings.HasSuffix(key, "_SHARES"):
			shareLines[key] = value

		default:
			warnings = append(warnings, fmt.Sprintf("unknown key: %q", key))
		}
	}

	for key, value := range shareLines {
		slotName := sharesKeyToSlotName(key, spec.Slots)
		if _, known := spec.Slots[slotName]; !known {
			warnings = append(warnings, fmt.Sprintf("unknown *_SHARES line tolerated: %s", key))
		}
		isBytes := slotTypes[slotName] == SlotTypeBytes
		devices := make(map[DeviceID]decimal.Decimal)
		if value != "" {
			for _, entry := range strings.Split(value, ",") {
				parts := strings.SplitN(entry, ":", 2)
				if len(parts) != 2 {
					warnings = append(warnings, fmt.Sprintf("malformed share entry in %s: %q", key, entry))
					continue
				}
				var amount decimal.Decimal
				var err error
				if isBytes {
					n, perr := parseBinarySize(parts[1])
					err = perr
					amount = decimal.NewFromInt(n)
				} else {
					amount, err = decimal.NewFromString(parts[1])
				}
				if err != nil {
					warnings = append(warnings, fmt.Sprintf("malformed amount in %s: %q", key, entry))
					continue
				}
				devices[DeviceID(parts[0])] = amount
			}
		}
		spec.Shares[slotName] = devices
	}

	return spec, warnings, nil
}

// sharesKeyToSlotName reverses the strings.ToUpper(name)+"_SHARES"
// transform. Because uppercasing is lossy for names already containing
// non-letter characters, it checks known slot names from the SLOTS line
// first, falling back to a lowercase guess.
func sharesKeyToSlotName(key string, known ResourceSlot) string {
	trimmed := strings.TrimSuffix(key, "_SHARES")
	for name := range known {
		if strings.EqualFold(name, trimmed) {
			return name
		}
	}
	return strings.ToLower(trimmed)
}

var binarySizeUnits = []struct {
	suffix string
	factor int64
}{
	{"t", 1024 * 1024 * 1024 * 1024},
	{"g", 1024 * 1024 * 1024},
	{"m", 1024 * 1024},
	{"k", 1024},
}

// formatBinarySize renders n bytes using the largest unit suffix that
// divides n exactly, so parseBinarySize(formatBinarySize(n)) == n always.
func formatBinarySize(n int64) string {
	if n == 0 {
		return "0"
	}
	for _, u := range binarySizeUnits {
		if n%u.factor == 0 {
			return strconv.FormatInt(n/u.factor, 10) + u.suffix
		}
	}
	return strconv.FormatInt(n, 10)
}

// parseBinarySize parses a byte count with an optional binary suffix
// (k, m, g, t; case-insensitive), or a bare integer byte count.
func parseBinarySize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty size")
	}
	lower := strings.ToLower(s)
	for _, u := range binarySizeUnits {
		if strings.HasSuffix(lower, u.suffix) {
			numPart := s[:len(s)-1]
			n, err := strconv.ParseInt(numPart, 10, 64)
			if err != nil {
				return 0, fmt.Errorf("parse binary size %q: %w", s, err)
			}
			return n * u.factor, nil
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse binary size %q: %w", s, err)
	}
	return n, nil
}
