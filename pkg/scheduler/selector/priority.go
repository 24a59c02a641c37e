package selector

import (
	"sort"
	"strings"

	"github.com/cuemby/warren/pkg/types"
)

// effectivePriority returns priority with each requested slot's exact name
// inserted immediately after its device prefix (the part before the first
// "."), when the exact name is absent from priority but the prefix is
// present. This keeps e.g. "cuda.shares" ordered right after "cuda.device"
// even if only the device-class prefix was configured, without disturbing
// any other entry's relative order.
func effectivePriority(priority []string, requested types.ResourceSlot) []string {
	out := append([]string(nil), priority...)
	keys := requested.SortedKeys()
	for i, j := 0, len(keys)-1; i < j; i, j = i+1, j-1 {
		keys[i], keys[j] = keys[j], keys[i] // descending, matching the original's `sorted(..., reverse=True)`
	}
	for _, key := range keys {
		if contains(out, key) {
			continue
		}
		prefix := devicePrefix(key)
		if idx := indexOf(out, prefix); idx >= 0 {
			out = append(out, "")
			copy(out[idx+2:], out[idx+1:])
			out[idx+1] = key
		}
	}
	return out
}

func devicePrefix(slotName string) string {
	if i := strings.IndexByte(slotName, '.'); i >= 0 {
		return slotName[:i]
	}
	return slotName
}

func contains(xs []string, v string) bool {
	return indexOf(xs, v) >= 0
}

func indexOf(xs []string, v string) int {
	for i, x := range xs {
		if x == v {
			return i
		}
	}
	return -1
}

// slotIndex returns v's position in priority, or len(priority) (a sentinel
// "after everything named") if absent.
func slotIndex(priority []string, v string) int {
	if i := indexOf(priority, v); i >= 0 {
		return i
	}
	return len(priority)
}

// orderedKeys returns requested's slot names sorted ascending by their
// position in priority (unlisted names sort after all listed ones, and tie
// among themselves alphabetically for determinism).
func orderedKeys(requested types.ResourceSlot, priority []string) []string {
	keys := requested.SortedKeys()
	sort.SliceStable(keys, func(i, j int) bool {
		pi, pj := slotIndex(priority, keys[i]), slotIndex(priority, keys[j])
		if pi != pj {
			return pi < pj
		}
		return keys[i] < keys[j]
	})
	return keys
}
