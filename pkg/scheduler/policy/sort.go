package policy

import (
	"sort"

	"github.com/cuemby/warren/pkg/types"
)

// sortByCreatedAt orders sessions by CreatedAt, ascending if oldest is true
// and descending otherwise. Ties break by SessionID for determinism.
func sortByCreatedAt(sessions []*types.Session, oldest bool) {
	sort.SliceStable(sessions, func(i, j int) bool {
		a, b := sessions[i], sessions[j]
		if a.CreatedAt.Equal(b.CreatedAt) {
			return a.ID < b.ID
		}
		if oldest {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
}
