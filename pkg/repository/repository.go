package repository

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cuemby/warren/pkg/cluster"
	"github.com/cuemby/warren/pkg/storage"
	"github.com/cuemby/warren/pkg/types"
)

// applyTimeout bounds how long a single raft.Apply may block; a command
// that hasn't committed by then fails the caller rather than wedging a
// dispatcher tick indefinitely.
const applyTimeout = 5 * time.Second

// Repository is the typed boundary between the scheduling core and its
// replicated state: writes go through raft via the embedded cluster,
// reads go straight to the local store.
type Repository struct {
	cluster *cluster.Cluster
	store   storage.Store
}

// New returns a Repository. Both cluster and store must already be wired
// to the same FSM (cluster's raft.FSM must be NewFSM(store)).
func New(c *cluster.Cluster, store storage.Store) *Repository {
	return &Repository{cluster: c, store: store}
}

func (r *Repository) apply(op string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("repository: marshal %s payload: %w", op, err)
	}
	cmd := Command{Op: op, Data: data}
	raw, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("repository: marshal %s command: %w", op, err)
	}
	resp, err := r.cluster.Apply(raw, applyTimeout)
	if err != nil {
		return err
	}
	if resp != nil {
		if ferr, ok := resp.(error); ok && ferr != nil {
			return ferr
		}
	}
	return nil
}

// Agents

func (r *Repository) CreateAgent(a *types.Agent) error { return r.apply(opCreateAgent, a) }
func (r *Repository) UpdateAgent(a *types.Agent) error { return r.apply(opUpdateAgent, a) }
func (r *Repository) DeleteAgent(id types.AgentID) error { return r.apply(opDeleteAgent, id) }

func (r *Repository) GetAgent(id types.AgentID) (*types.Agent, error) { return r.store.GetAgent(id) }
func (r *Repository) ListAgents() ([]*types.Agent, error)             { return r.store.ListAgents() }
func (r *Repository) ListAgentsByResourceGroup(rg string) ([]*types.Agent, error) {
	return r.store.ListAgentsByResourceGroup(rg)
}

// Sessions

func (r *Repository) CreateSession(s *types.Session) error { return r.apply(opCreateSession, s) }
func (r *Repository) UpdateSession(s *types.Session) error { return r.apply(opUpdateSession, s) }
func (r *Repository) DeleteSession(id types.SessionID) error {
	return r.apply(opDeleteSession, id)
}

func (r *Repository) GetSession(id types.SessionID) (*types.Session, error) {
	return r.store.GetSession(id)
}
func (r *Repository) ListSessions() ([]*types.Session, error) { return r.store.ListSessions() }
func (r *Repository) ListSessionsByStatus(status types.SessionStatus) ([]*types.Session, error) {
	return r.store.ListSessionsByStatus(status)
}
func (r *Repository) ListSessionsByResourceGroup(rg string) ([]*types.Session, error) {
	return r.store.ListSessionsByResourceGroup(rg)
}
func (r *Repository) ListSessionsByAccessKey(accessKey string) ([]*types.Session, error) {
	return r.store.ListSessionsByAccessKey(accessKey)
}

// Kernels

func (r *Repository) CreateKernel(k *types.Kernel) error { return r.apply(opCreateKernel, k) }
func (r *Repository) UpdateKernel(k *types.Kernel) error { return r.apply(opUpdateKernel, k) }
func (r *Repository) DeleteKernel(id types.KernelID) error {
	return r.apply(opDeleteKernel, id)
}

func (r *Repository) GetKernel(id types.KernelID) (*types.Kernel, error) {
	return r.store.GetKernel(id)
}
func (r *Repository) ListKernelsBySession(sessionID types.SessionID) ([]*types.Kernel, error) {
	return r.store.ListKernelsBySession(sessionID)
}
func (r *Repository) ListKernelsByAgent(agentID types.AgentID) ([]*types.Kernel, error) {
	return r.store.ListKernelsByAgent(agentID)
}

// Resource groups

func (r *Repository) CreateResourceGroup(rg *types.ResourceGroup) error {
	return r.apply(opCreateResourceGroup, rg)
}
func (r *Repository) UpdateResourceGroup(rg *types.ResourceGroup) error {
	return r.apply(opUpdateResourceGroup, rg)
}
func (r *Repository) DeleteResourceGroup(name string) error {
	return r.apply(opDeleteResourceGroup, name)
}

func (r *Repository) GetResourceGroup(name string) (*types.ResourceGroup, error) {
	return r.store.GetResourceGroup(name)
}
func (r *Repository) ListResourceGroups() ([]*types.ResourceGroup, error) {
	return r.store.ListResourceGroups()
}

// Quota policies. These are seeded by admin configuration far less often
// than agents/sessions/kernels churn, so there is no Update op: a policy
// change is a create that overwrites by name, matching the store's upsert
// convention.

func (r *Repository) CreateKeypairResourcePolicy(p *types.KeypairResourcePolicy) error {
	return r.apply(opCreateKeypairResourcePolicy, p)
}
func (r *Repository) GetKeypairResourcePolicy(name string) (*types.KeypairResourcePolicy, error) {
	return r.store.GetKeypairResourcePolicy(name)
}

func (r *Repository) CreateUserResourcePolicy(p *types.UserResourcePolicy) error {
	return r.apply(opCreateUserResourcePolicy, p)
}
func (r *Repository) GetUserResourcePolicy(name string) (*types.UserResourcePolicy, error) {
	return r.store.GetUserResourcePolicy(name)
}

func (r *Repository) CreateGroup(g *types.Group) error { return r.apply(opCreateGroup, g) }
func (r *Repository) GetGroup(id string) (*types.Group, error) { return r.store.GetGroup(id) }

func (r *Repository) CreateDomain(d *types.Domain) error { return r.apply(opCreateDomain, d) }
func (r *Repository) GetDomain(name string) (*types.Domain, error) {
	return r.store.GetDomain(name)
}

// Dependency edges

func (r *Repository) AddDependencyEdge(edge types.DependencyEdge) error {
	return r.apply(opAddDependencyEdge, edge)
}
func (r *Repository) ListDependencies(dependent types.SessionID) ([]types.DependencyEdge, error) {
	return r.store.ListDependencies(dependent)
}
