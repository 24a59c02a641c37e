package repository

import (
	"fmt"

	"github.com/cuemby/warren/pkg/types"
)

// fakeStore is a minimal in-memory storage.Store for exercising the FSM
// without an on-disk BoltDB file.
type fakeStore struct {
	agents          map[types.AgentID]*types.Agent
	sessions        map[types.SessionID]*types.Session
	kernels         map[types.KernelID]*types.Kernel
	resourceGroups  map[string]*types.ResourceGroup
	keypairPolicies map[string]*types.KeypairResourcePolicy
	userPolicies    map[string]*types.UserResourcePolicy
	groups          map[string]*types.Group
	domains         map[string]*types.Domain
	dependencies    []types.DependencyEdge
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		agents:          make(map[types.AgentID]*types.Agent),
		sessions:        make(map[types.SessionID]*types.Session),
		kernels:         make(map[types.KernelID]*types.Kernel),
		resourceGroups:  make(map[string]*types.ResourceGroup),
		keypairPolicies: make(map[string]*types.KeypairResourcePolicy),
		userPolicies:    make(map[string]*types.UserResourcePolicy),
		groups:          make(map[string]*types.Group),
		domains:         make(map[string]*types.Domain),
	}
}

func (f *fakeStore) CreateAgent(a *types.Agent) error { f.agents[a.ID] = a; return nil }
func (f *fakeStore) GetAgent(id types.AgentID) (*types.Agent, error) {
	a, ok := f.agents[id]
	if !ok {
		return nil, fmt.Errorf("agent not found: %s", id)
	}
	return a, nil
}
func (f *fakeStore) ListAgents() ([]*types.Agent, error) {
	out := make([]*types.Agent, 0, len(f.agents))
	for _, a := range f.agents {
		out = append(out, a)
	}
	return out, nil
}
func (f *fakeStore) ListAgentsByResourceGroup(rg string) ([]*types.Agent, error) {
	var out []*types.Agent
	for _, a := range f.agents {
		if a.ResourceGroup == rg {
			out = append(out, a)
		}
	}
	return out, nil
}
func (f *fakeStore) UpdateAgent(a *types.Agent) error { f.agents[a.ID] = a; return nil }
func (f *fakeStore) DeleteAgent(id types.AgentID) error { delete(f.agents, id); return nil }

func (f *fakeStore) CreateSession(s *types.Session) error { f.sessions[s.ID] = s; return nil }
func (f *fakeStore) GetSession(id types.SessionID) (*types.Session, error) {
	s, ok := f.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session not found: %s", id)
	}
	return s, nil
}
func (f *fakeStore) ListSessions() ([]*types.Session, error) {
	out := make([]*types.Session, 0, len(f.sessions))
	for _, s := range f.sessions {
		out = append(out, s)
	}
	return out, nil
}
func (f *fakeStore) ListSessionsByStatus(status types.SessionStatus) ([]*types.Session, error) {
	var out []*types.Session
	for _, s := range f.sessions {
		if s.Status == status {
			out = append(out, s)
		}
	}
	return out, nil
}
func (f *fakeStore) ListSessionsByResourceGroup(rg string) ([]*types.Session, error) {
	var out []*types.Session
	for _, s := range f.sessions {
		if s.ResourceGroup == rg {
			out = append(out, s)
		}
	}
	return out, nil
}
func (f *fakeStore) ListSessionsByAccessKey(accessKey string) ([]*types.Session, error) {
	var out []*types.Session
	for _, s := range f.sessions {
		if s.AccessKey == accessKey {
			out = append(out, s)
		}
	}
	return out, nil
}
func (f *fakeStore) UpdateSession(s *types.Session) error { f.sessions[s.ID] = s; return nil }
func (f *fakeStore) DeleteSession(id types.SessionID) error { delete(f.sessions, id); return nil }

func (f *fakeStore) CreateKernel(k *types.Kernel) error { f.kernels[k.ID] = k; return nil }
func (f *fakeStore) GetKernel(id types.KernelID) (*types.Kernel, error) {
	k, ok := f.kernels[id]
	if !ok {
		return nil, fmt.Errorf("kernel not found: %s", id)
	}
	return k, nil
}
func (f *fakeStore) ListKernels() ([]*types.Kernel, error) {
	out := make([]*types.Kernel, 0, len(f.kernels))
	for _, k := range f.kernels {
		out = append(out, k)
	}
	return out, nil
}
func (f *fakeStore) ListKernelsBySession(sessionID types.SessionID) ([]*types.Kernel, error) {
	var out []*types.Kernel
	for _, k := range f.kernels {
		if k.SessionID == sessionID {
			out = append(out, k)
		}
	}
	return out, nil
}
func (f *fakeStore) ListKernelsByAgent(agentID types.AgentID) ([]*types.Kernel, error) {
	var out []*types.Kernel
	for _, k := range f.kernels {
		if k.AgentID == agentID {
			out = append(out, k)
		}
	}
	return out, nil
}
func (f *fakeStore) UpdateKernel(k *types.Kernel) error { f.kernels[k.ID] = k; return nil }
func (f *fakeStore) DeleteKernel(id types.KernelID) error { delete(f.kernels, id); return nil }

func (f *fakeStore) CreateResourceGroup(rg *types.ResourceGroup) error {
	f.resourceGroups[rg.Name] = rg
	return nil
}
func (f *fakeStore) GetResourceGroup(name string) (*types.ResourceGroup, error) {
	rg, ok := f.resourceGroups[name]
	if !ok {
		return nil, fmt.Errorf("resource group not found: %s", name)
	}
	return rg, nil
}
func (f *fakeStore) ListResourceGroups() ([]*types.ResourceGroup, error) {
	out := make([]*types.ResourceGroup, 0, len(f.resourceGroups))
	for _, rg := range f.resourceGroups {
		out = append(out, rg)
	}
	return out, nil
}
func (f *fakeStore) UpdateResourceGroup(rg *types.ResourceGroup) error {
	f.resourceGroups[rg.Name] = rg
	return nil
}
func (f *fakeStore) DeleteResourceGroup(name string) error {
	delete(f.resourceGroups, name)
	return nil
}

func (f *fakeStore) CreateKeypairResourcePolicy(p *types.KeypairResourcePolicy) error {
	f.keypairPolicies[p.Name] = p
	return nil
}
func (f *fakeStore) GetKeypairResourcePolicy(name string) (*types.KeypairResourcePolicy, error) {
	p, ok := f.keypairPolicies[name]
	if !ok {
		return nil, fmt.Errorf("keypair resource policy not found: %s", name)
	}
	return p, nil
}
func (f *fakeStore) ListKeypairResourcePolicies() ([]*types.KeypairResourcePolicy, error) {
	out := make([]*types.KeypairResourcePolicy, 0, len(f.keypairPolicies))
	for _, p := range f.keypairPolicies {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeStore) CreateUserResourcePolicy(p *types.UserResourcePolicy) error {
	f.userPolicies[p.Name] = p
	return nil
}
func (f *fakeStore) GetUserResourcePolicy(name string) (*types.UserResourcePolicy, error) {
	p, ok := f.userPolicies[name]
	if !ok {
		return nil, fmt.Errorf("user resource policy not found: %s", name)
	}
	return p, nil
}
func (f *fakeStore) ListUserResourcePolicies() ([]*types.UserResourcePolicy, error) {
	out := make([]*types.UserResourcePolicy, 0, len(f.userPolicies))
	for _, p := range f.userPolicies {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeStore) CreateGroup(g *types.Group) error { f.groups[g.ID] = g; return nil }
func (f *fakeStore) GetGroup(id string) (*types.Group, error) {
	g, ok := f.groups[id]
	if !ok {
		return nil, fmt.Errorf("group not found: %s", id)
	}
	return g, nil
}
func (f *fakeStore) ListGroups() ([]*types.Group, error) {
	out := make([]*types.Group, 0, len(f.groups))
	for _, g := range f.groups {
		out = append(out, g)
	}
	return out, nil
}

func (f *fakeStore) CreateDomain(d *types.Domain) error { f.domains[d.Name] = d; return nil }
func (f *fakeStore) GetDomain(name string) (*types.Domain, error) {
	d, ok := f.domains[name]
	if !ok {
		return nil, fmt.Errorf("domain not found: %s", name)
	}
	return d, nil
}
func (f *fakeStore) ListDomains() ([]*types.Domain, error) {
	out := make([]*types.Domain, 0, len(f.domains))
	for _, d := range f.domains {
		out = append(out, d)
	}
	return out, nil
}

func (f *fakeStore) AddDependencyEdge(edge types.DependencyEdge) error {
	f.dependencies = append(f.dependencies, edge)
	return nil
}
func (f *fakeStore) ListDependencies(dependent types.SessionID) ([]types.DependencyEdge, error) {
	var out []types.DependencyEdge
	for _, e := range f.dependencies {
		if e.Dependent == dependent {
			out = append(out, e)
		}
	}
	return out, nil
}
func (f *fakeStore) ListAllDependencies() ([]types.DependencyEdge, error) {
	return f.dependencies, nil
}

func (f *fakeStore) Close() error { return nil }
