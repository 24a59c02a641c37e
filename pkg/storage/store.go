package storage

import (
	"github.com/cuemby/warren/pkg/types"
)

// Store is the persistence boundary for the scheduling core's authoritative
// records: agents, sessions, kernels, resource groups, and the quota
// policies predicates check against. Implementations must make Create*
// calls upsert (create-or-replace by ID), matching the teacher's BoltDB
// store convention.
type Store interface {
	// Agents
	CreateAgent(agent *types.Agent) error
	GetAgent(id types.AgentID) (*types.Agent, error)
	ListAgents() ([]*types.Agent, error)
	ListAgentsByResourceGroup(rg string) ([]*types.Agent, error)
	UpdateAgent(agent *types.Agent) error
	DeleteAgent(id types.AgentID) error

	// Sessions
	CreateSession(session *types.Session) error
	GetSession(id types.SessionID) (*types.Session, error)
	ListSessions() ([]*types.Session, error)
	ListSessionsByStatus(status types.SessionStatus) ([]*types.Session, error)
	ListSessionsByResourceGroup(rg string) ([]*types.Session, error)
	ListSessionsByAccessKey(accessKey string) ([]*types.Session, error)
	UpdateSession(session *types.Session) error
	DeleteSession(id types.SessionID) error

	// Kernels
	CreateKernel(kernel *types.Kernel) error
	GetKernel(id types.KernelID) (*types.Kernel, error)
	ListKernels() ([]*types.Kernel, error)
	ListKernelsBySession(sessionID types.SessionID) ([]*types.Kernel, error)
	ListKernelsByAgent(agentID types.AgentID) ([]*types.Kernel, error)
	UpdateKernel(kernel *types.Kernel) error
	DeleteKernel(id types.KernelID) error

	// Resource groups
	CreateResourceGroup(rg *types.ResourceGroup) error
	GetResourceGroup(name string) (*types.ResourceGroup, error)
	ListResourceGroups() ([]*types.ResourceGroup, error)
	UpdateResourceGroup(rg *types.ResourceGroup) error
	DeleteResourceGroup(name string) error

	// Quota policies
	CreateKeypairResourcePolicy(p *types.KeypairResourcePolicy) error
	GetKeypairResourcePolicy(name string) (*types.KeypairResourcePolicy, error)
	ListKeypairResourcePolicies() ([]*types.KeypairResourcePolicy, error)
	CreateUserResourcePolicy(p *types.UserResourcePolicy) error
	GetUserResourcePolicy(name string) (*types.UserResourcePolicy, error)
	ListUserResourcePolicies() ([]*types.UserResourcePolicy, error)
	CreateGroup(g *types.Group) error
	GetGroup(id string) (*types.Group, error)
	ListGroups() ([]*types.Group, error)
	CreateDomain(d *types.Domain) error
	GetDomain(name string) (*types.Domain, error)
	ListDomains() ([]*types.Domain, error)

	// Dependency edges, for the dependencies predicate.
	AddDependencyEdge(edge types.DependencyEdge) error
	ListDependencies(dependent types.SessionID) ([]types.DependencyEdge, error)
	ListAllDependencies() ([]types.DependencyEdge, error)

	// Utility
	Close() error
}
