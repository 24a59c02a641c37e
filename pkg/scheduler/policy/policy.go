package policy

import "github.com/cuemby/warren/pkg/types"

// Policy picks which pending session a dispatcher tick should attempt to
// schedule next, out of one resource group's queue. PickSession is called
// once per scheduling attempt within a tick, before predicates run;
// UpdateAllocation is called after a
// session clears every predicate and is committed, so stateful policies
// (DRF) can fold the newly allocated session into their bookkeeping before
// the next PickSession call in the same tick.
type Policy interface {
	// PickSession returns the session id to attempt next, or "" if the
	// queue is empty. totalCapacity is the resource group's aggregate
	// agent capacity; pending and existing are this resource group's
	// sessions in those two states.
	PickSession(totalCapacity types.ResourceSlot, pending, existing []*types.Session) types.SessionID
	// UpdateAllocation folds a just-scheduled session into any stateful
	// bookkeeping the policy keeps across PickSession calls.
	UpdateAllocation(session *types.Session)
}

// New constructs the named built-in policy. config carries policy-specific
// options (currently only FIFO's "num_retries_to_skip").
func New(name string, config map[string]string) (Policy, error) {
	switch name {
	case "fifo":
		return NewFIFO(config), nil
	case "lifo":
		return &LIFO{}, nil
	case "drf":
		return NewDRF(), nil
	case "mof":
		// MOF queues FIFO; agent choice is the MOF selector's concern.
		return NewFIFO(config), nil
	case "priority":
		return &Priority{}, nil
	default:
		return nil, errUnknownPolicy(name)
	}
}

type errUnknownPolicy string

func (e errUnknownPolicy) Error() string { return "policy: unknown scheduler policy " + string(e) }
