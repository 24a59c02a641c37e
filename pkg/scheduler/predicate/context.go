package predicate

import (
	"fmt"
	"time"

	"github.com/cuemby/warren/pkg/statestore"
	"github.com/cuemby/warren/pkg/types"
)

// Store is the narrow read surface predicates need. *repository.Repository
// satisfies it directly (its Get*/List* methods delegate straight to
// storage.Store with the same signatures), which keeps this package free
// of any dependency on raft — predicate tests run against a plain fake
// instead of a live cluster.
type Store interface {
	GetKeypairResourcePolicy(name string) (*types.KeypairResourcePolicy, error)
	GetUserResourcePolicy(name string) (*types.UserResourcePolicy, error)
	GetGroup(id string) (*types.Group, error)
	GetDomain(name string) (*types.Domain, error)
	GetResourceGroup(name string) (*types.ResourceGroup, error)
	GetSession(id types.SessionID) (*types.Session, error)
	ListSessions() ([]*types.Session, error)
	ListSessionsByAccessKey(accessKey string) ([]*types.Session, error)
	ListDependencies(dependent types.SessionID) ([]types.DependencyEdge, error)
}

// Result is one predicate's verdict for a single scheduling attempt.
type Result struct {
	Passed    bool
	Message   string
	Permanent bool
}

func pass() Result { return Result{Passed: true} }

func fail(permanent bool, format string, args ...any) Result {
	return Result{Passed: false, Message: fmt.Sprintf(format, args...), Permanent: permanent}
}

// Context carries everything a predicate needs to read quota state and
// write back concurrency-counter reservations, scoped to one dispatcher
// tick. Now is injectable so reserved_batch_session is deterministic under
// test.
type Context struct {
	Repo  Store
	State statestore.Store
	Now   func() time.Time
}

func (c *Context) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}
