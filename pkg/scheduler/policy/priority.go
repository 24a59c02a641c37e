package policy

import "github.com/cuemby/warren/pkg/types"

// Priority orders by (priority desc, created_at asc) and returns the first
// pending session under that order.
type Priority struct{}

func (p *Priority) PickSession(_ types.ResourceSlot, pending, _ []*types.Session) types.SessionID {
	if len(pending) == 0 {
		return ""
	}
	best := pending[0]
	for _, s := range pending[1:] {
		if higherPriority(s, best) {
			best = s
		}
	}
	return best.ID
}

func (p *Priority) UpdateAllocation(*types.Session) {}

func higherPriority(a, b *types.Session) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}
