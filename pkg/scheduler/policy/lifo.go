package policy

import "github.com/cuemby/warren/pkg/types"

// LIFO returns the newest pending session.
type LIFO struct{}

func (l *LIFO) PickSession(_ types.ResourceSlot, pending, _ []*types.Session) types.SessionID {
	if len(pending) == 0 {
		return ""
	}
	newest := oldestFirst(pending) // ascending by CreatedAt
	return newest[len(newest)-1].ID
}

func (l *LIFO) UpdateAllocation(*types.Session) {}
