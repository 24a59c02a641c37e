package types

import "time"

// SessionID identifies a session.
type SessionID string

// SessionType classifies the workload a session runs.
type SessionType string

const (
	SessionTypeInteractive SessionType = "INTERACTIVE"
	SessionTypeBatch       SessionType = "BATCH"
	SessionTypeInference   SessionType = "INFERENCE"
	SessionTypeSystem      SessionType = "SYSTEM"
)

// ClusterMode determines whether a session's kernels are placed on one
// agent or distributed across agents.
type ClusterMode string

const (
	ClusterModeSingleNode ClusterMode = "SINGLE_NODE"
	ClusterModeMultiNode  ClusterMode = "MULTI_NODE"
)

// SessionStatus is one point in the session lifecycle state machine.
type SessionStatus string

const (
	SessionStatusPending     SessionStatus = "PENDING"
	SessionStatusScheduled   SessionStatus = "SCHEDULED"
	SessionStatusPreparing   SessionStatus = "PREPARING"
	SessionStatusPrepared    SessionStatus = "PREPARED"
	SessionStatusCreating    SessionStatus = "CREATING"
	SessionStatusRunning     SessionStatus = "RUNNING"
	SessionStatusTerminating SessionStatus = "TERMINATING"
	SessionStatusTerminated  SessionStatus = "TERMINATED"
	SessionStatusCancelled   SessionStatus = "CANCELLED"
	SessionStatusError       SessionStatus = "ERROR"
)

// Status-info slugs: the short machine-readable strings status_info holds,
// enumerated in spec.md §7. Callers must use these, not a human sentence —
// status_info is matched literally by operators and automation.
const (
	StatusInfoPendingTimeout        = "pending-timeout"
	StatusInfoPredicateChecksFailed = "predicate-checks-failed"
	StatusInfoNoAvailableInstances  = "no-available-instances"
	StatusInfoFailedToStart         = "failed-to-start"
	StatusInfoSchedulerError        = "scheduler-error"
)

// sessionStatusRank orders non-terminal statuses by "earliest" for the
// join-of-kernels rule: session status is the earliest non-terminal status
// among its kernels, unless all kernels are terminal.
var sessionStatusRank = map[SessionStatus]int{
	SessionStatusPending:     0,
	SessionStatusScheduled:   1,
	SessionStatusPreparing:   2,
	SessionStatusPrepared:    3,
	SessionStatusCreating:    4,
	SessionStatusRunning:     5,
	SessionStatusTerminating: 6,
}

// IsTerminal reports whether a kernel/session status is a terminal state.
func (s SessionStatus) IsTerminal() bool {
	switch s {
	case SessionStatusTerminated, SessionStatusCancelled, SessionStatusError:
		return true
	default:
		return false
	}
}

// USEROccupyingStatuses are the session statuses that count against a
// keypair's concurrency_used counter.
var USEROccupyingStatuses = map[SessionStatus]bool{
	SessionStatusScheduled:   true,
	SessionStatusPreparing:   true,
	SessionStatusPrepared:    true,
	SessionStatusCreating:    true,
	SessionStatusRunning:     true,
	SessionStatusTerminating: true,
}

// StatusHistoryEntry records one transition in a session's or kernel's
// status-history trail.
type StatusHistoryEntry struct {
	Status    string
	At        time.Time
	Reason    string
}

// StatusData is the machine-readable envelope attached to a session on
// predicate failure, cancellation, or error; status_data in spec.md §7.
type StatusData struct {
	Scheduler *SchedulerStatusData `json:"scheduler,omitempty"`
	Error     *ErrorStatusData     `json:"error,omitempty"`
}

// SchedulerStatusData accumulates predicate pass/fail results across
// retries so status_data carries every failing reason, not just the last.
type SchedulerStatusData struct {
	Retries       int                `json:"retries"`
	FailedPredicates []PredicateResult `json:"failed_predicates,omitempty"`
}

// PredicateResult is one predicate's verdict for a single scheduling
// attempt.
type PredicateResult struct {
	Name      string `json:"name"`
	Passed    bool   `json:"passed"`
	Message   string `json:"message,omitempty"`
	Permanent bool   `json:"permanent,omitempty"`
}

// ErrorStatusData is the {src, name, repr} record an unexpected exception
// is wrapped into before a session transitions to CANCELLED/ERROR.
type ErrorStatusData struct {
	Src  string `json:"src"`
	Name string `json:"name"`
	Repr string `json:"repr"`
}

// Session is a logical group of 1..N kernels scheduled atomically.
type Session struct {
	ID               SessionID
	Name             string
	Type             SessionType
	ClusterMode      ClusterMode
	ClusterSize      int
	RequestedSlots   ResourceSlot
	OccupyingSlots   ResourceSlot
	AccessKey        string
	Domain           string
	Group            string
	ResourceGroup    string
	VFolderMounts    []string
	Environment      map[string]string
	Priority         int
	Status           SessionStatus
	StatusInfo       string
	StatusData       StatusData
	StatusHistory    []StatusHistoryEntry
	StartsAt         *time.Time // nil unless this is a reserved batch session
	CreatedAt        time.Time
	Kernels          []*Kernel
	AgentIDs         []AgentID

	// EnforceSpreadingEndpointReplica, set for INFERENCE sessions bound to a
	// model-serving endpoint, asks the agent selector to spread replicas of
	// the same endpoint across distinct agents where possible.
	EndpointID                      string
	EnforceSpreadingEndpointReplica bool
}

// DeriveStatus computes the session's status as the join of its kernels'
// statuses: RUNNING iff all kernels RUNNING; TERMINATED iff all kernels are
// in {TERMINATED, CANCELLED}; otherwise the earliest non-terminal status
// among the kernels wins.
func DeriveStatus(kernels []*Kernel) SessionStatus {
	if len(kernels) == 0 {
		return SessionStatusPending
	}

	allRunning := true
	allTerminal := true
	best := -1
	bestStatus := SessionStatusPending

	for _, k := range kernels {
		if k.Status != KernelStatusRunning {
			allRunning = false
		}
		if k.Status != KernelStatusTerminated && k.Status != KernelStatusCancelled {
			allTerminal = false
		}
		rank, known := sessionStatusRank[SessionStatus(k.Status)]
		if known && (best == -1 || rank < best) {
			best = rank
			bestStatus = SessionStatus(k.Status)
		}
	}

	if allRunning {
		return SessionStatusRunning
	}
	if allTerminal {
		return SessionStatusTerminated
	}
	if best == -1 {
		return SessionStatusTerminating
	}
	return bestStatus
}
