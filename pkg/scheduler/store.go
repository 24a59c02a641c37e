package scheduler

import (
	"github.com/cuemby/warren/pkg/scheduler/predicate"
	"github.com/cuemby/warren/pkg/types"
)

// Store is the dispatcher's read/write surface over the repository: the
// predicate read surface plus the writes and resource-group/agent/kernel
// listings a tick needs. *repository.Repository satisfies it directly, the
// same way it satisfies the narrower predicate.Store.
type Store interface {
	predicate.Store

	ListResourceGroups() ([]*types.ResourceGroup, error)
	ListSessionsByResourceGroup(rg string) ([]*types.Session, error)
	ListAgentsByResourceGroup(rg string) ([]*types.Agent, error)
	GetAgent(id types.AgentID) (*types.Agent, error)
	UpdateAgent(a *types.Agent) error
	UpdateSession(s *types.Session) error
	CreateKernel(k *types.Kernel) error
	UpdateKernel(k *types.Kernel) error
	ListKernelsBySession(sessionID types.SessionID) ([]*types.Kernel, error)
}
