package policy

import (
	"github.com/cuemby/warren/pkg/types"
	"github.com/shopspring/decimal"
)

// DRF implements Dominant Resource Fairness: it tracks each access key's
// dominant share (the largest ratio of occupied-to-total across any single
// slot) and always picks a pending session belonging to whoever currently
// has the least dominant share. The share map only ever grows within a
// dispatcher's lifetime — PickSession recomputes it from existing sessions
// each call (idempotent, since updates only take the max), and
// UpdateAllocation folds in a just-scheduled session immediately so the
// next pick in the same tick sees it.
type DRF struct {
	perUserDominantShare map[string]decimal.Decimal
	totalCapacity        types.ResourceSlot
}

// NewDRF builds an empty DRF policy.
func NewDRF() *DRF {
	return &DRF{perUserDominantShare: make(map[string]decimal.Decimal)}
}

func (d *DRF) PickSession(totalCapacity types.ResourceSlot, pending, existing []*types.Session) types.SessionID {
	d.totalCapacity = totalCapacity

	for _, s := range existing {
		d.bumpShare(s.AccessKey, s.OccupyingSlots)
	}

	usersWithPending := make(map[string]struct{}, len(pending))
	for _, s := range pending {
		usersWithPending[s.AccessKey] = struct{}{}
	}
	if len(usersWithPending) == 0 {
		return ""
	}

	var leastUser string
	var leastShare decimal.Decimal
	first := true
	for ak := range usersWithPending {
		share := d.perUserDominantShare[ak]
		if first || share.LessThan(leastShare) {
			leastUser, leastShare, first = ak, share, false
		}
	}

	for _, s := range pending {
		if s.AccessKey == leastUser {
			return s.ID
		}
	}
	return ""
}

func (d *DRF) UpdateAllocation(session *types.Session) {
	d.bumpShare(session.AccessKey, session.RequestedSlots)
}

// bumpShare raises perUserDominantShare[accessKey] to the dominant share
// implied by slots against the last-seen total capacity, if that's higher
// than what's already recorded. Slots with zero total capacity are skipped
// rather than dividing by zero.
func (d *DRF) bumpShare(accessKey string, slots types.ResourceSlot) {
	dominant := decimal.Zero
	for name, qty := range slots {
		capQty := d.totalCapacity.Get(name)
		if capQty.IsZero() {
			continue
		}
		share := qty.Div(capQty)
		if share.GreaterThan(dominant) {
			dominant = share
		}
	}
	if existing, ok := d.perUserDominantShare[accessKey]; !ok || dominant.GreaterThan(existing) {
		d.perUserDominantShare[accessKey] = dominant
	}
}
