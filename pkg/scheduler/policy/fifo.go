package policy

import (
	"strconv"

	"github.com/cuemby/warren/pkg/types"
)

// FIFO returns the oldest pending session, skipping ones that have already
// failed predicates num_retries_to_skip times or more — unless every
// candidate would be skipped, in which case it falls back to the first
// skipped session rather than starving the queue.
type FIFO struct {
	numRetriesToSkip int
}

// NewFIFO builds a FIFO policy from its "num_retries_to_skip" config value
// (default 0, meaning strict FIFO with no retry-skipping).
func NewFIFO(config map[string]string) *FIFO {
	f := &FIFO{}
	if v, ok := config["num_retries_to_skip"]; ok {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			f.numRetriesToSkip = n
		}
	}
	return f
}

func (f *FIFO) PickSession(_ types.ResourceSlot, pending, _ []*types.Session) types.SessionID {
	ordered := oldestFirst(pending)
	if f.numRetriesToSkip == 0 {
		if len(ordered) == 0 {
			return ""
		}
		return ordered[0].ID
	}

	var skipped []*types.Session
	for _, s := range ordered {
		if retriesOf(s) >= f.numRetriesToSkip {
			skipped = append(skipped, s)
			continue
		}
		return s.ID
	}
	if len(skipped) > 0 {
		return skipped[0].ID
	}
	return ""
}

func (f *FIFO) UpdateAllocation(*types.Session) {}

func retriesOf(s *types.Session) int {
	if s.StatusData.Scheduler == nil {
		return 0
	}
	return s.StatusData.Scheduler.Retries
}

func oldestFirst(sessions []*types.Session) []*types.Session {
	out := make([]*types.Session, len(sessions))
	copy(out, sessions)
	sortByCreatedAt(out, true)
	return out
}
