package repository

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/cuemby/warren/pkg/storage"
	"github.com/cuemby/warren/pkg/types"
	"github.com/hashicorp/raft"
)

// Command is one replicated state change: an opaque op name plus its
// JSON-encoded payload, applied to the local store once committed.
type Command struct {
	Op   string          `json:"op"`
	Data json.RawMessage `json:"data"`
}

const (
	opCreateAgent = "create_agent"
	opUpdateAgent = "update_agent"
	opDeleteAgent = "delete_agent"

	opCreateSession = "create_session"
	opUpdateSession = "update_session"
	opDeleteSession = "delete_session"

	opCreateKernel = "create_kernel"
	opUpdateKernel = "update_kernel"
	opDeleteKernel = "delete_kernel"

	opCreateResourceGroup = "create_resource_group"
	opUpdateResourceGroup = "update_resource_group"
	opDeleteResourceGroup = "delete_resource_group"

	opCreateKeypairResourcePolicy = "create_keypair_resource_policy"
	opCreateUserResourcePolicy    = "create_user_resource_policy"
	opCreateGroup                 = "create_group"
	opCreateDomain                = "create_domain"

	opAddDependencyEdge = "add_dependency_edge"
)

// FSM implements raft.FSM over a pkg/storage.Store: committed log entries
// are unmarshaled Commands dispatched to the matching store call.
type FSM struct {
	mu    sync.RWMutex
	store storage.Store
}

// NewFSM returns an FSM backed by store.
func NewFSM(store storage.Store) *FSM {
	return &FSM{store: store}
}

// Apply applies one committed raft log entry. The returned value is either
// nil (success) or an error, per raft.FSM's contract of an arbitrary
// interface{} response inspected by the caller of raft.Apply.
func (f *FSM) Apply(log *raft.Log) interface{} {
	var cmd Command
	if err := json.Unmarshal(log.Data, &cmd); err != nil {
		return fmt.Errorf("repository: unmarshal command: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch cmd.Op {
	case opCreateAgent:
		var v types.Agent
		if err := json.Unmarshal(cmd.Data, &v); err != nil {
			return err
		}
		return f.store.CreateAgent(&v)
	case opUpdateAgent:
		var v types.Agent
		if err := json.Unmarshal(cmd.Data, &v); err != nil {
			return err
		}
		return f.store.UpdateAgent(&v)
	case opDeleteAgent:
		var id types.AgentID
		if err := json.Unmarshal(cmd.Data, &id); err != nil {
			return err
		}
		return f.store.DeleteAgent(id)

	case opCreateSession:
		var v types.Session
		if err := json.Unmarshal(cmd.Data, &v); err != nil {
			return err
		}
		return f.store.CreateSession(&v)
	case opUpdateSession:
		var v types.Session
		if err := json.Unmarshal(cmd.Data, &v); err != nil {
			return err
		}
		return f.store.UpdateSession(&v)
	case opDeleteSession:
		var id types.SessionID
		if err := json.Unmarshal(cmd.Data, &id); err != nil {
			return err
		}
		return f.store.DeleteSession(id)

	case opCreateKernel:
		var v types.Kernel
		if err := json.Unmarshal(cmd.Data, &v); err != nil {
			return err
		}
		return f.store.CreateKernel(&v)
	case opUpdateKernel:
		var v types.Kernel
		if err := json.Unmarshal(cmd.Data, &v); err != nil {
			return err
		}
		return f.store.UpdateKernel(&v)
	case opDeleteKernel:
		var id types.KernelID
		if err := json.Unmarshal(cmd.Data, &id); err != nil {
			return err
		}
		return f.store.DeleteKernel(id)

	case opCreateResourceGroup:
		var v types.ResourceGroup
		if err := json.Unmarshal(cmd.Data, &v); err != nil {
			return err
		}
		return f.store.CreateResourceGroup(&v)
	case opUpdateResourceGroup:
		var v types.ResourceGroup
		if err := json.Unmarshal(cmd.Data, &v); err != nil {
			return err
		}
		return f.store.UpdateResourceGroup(&v)
	case opDeleteResourceGroup:
		var name string
		if err := json.Unmarshal(cmd.Data, &name); err != nil {
			return err
		}
		return f.store.DeleteResourceGroup(name)

	case opCreateKeypairResourcePolicy:
		var v types.KeypairResourcePolicy
		if err := json.Unmarshal(cmd.Data, &v); err != nil {
			return err
		}
		return f.store.CreateKeypairResourcePolicy(&v)
	case opCreateUserResourcePolicy:
		var v types.UserResourcePolicy
		if err := json.Unmarshal(cmd.Data, &v); err != nil {
			return err
		}
		return f.store.CreateUserResourcePolicy(&v)
	case opCreateGroup:
		var v types.Group
		if err := json.Unmarshal(cmd.Data, &v); err != nil {
			return err
		}
		return f.store.CreateGroup(&v)
	case opCreateDomain:
		var v types.Domain
		if err := json.Unmarshal(cmd.Data, &v); err != nil {
			return err
		}
		return f.store.CreateDomain(&v)

	case opAddDependencyEdge:
		var v types.DependencyEdge
		if err := json.Unmarshal(cmd.Data, &v); err != nil {
			return err
		}
		return f.store.AddDependencyEdge(v)

	default:
		return fmt.Errorf("repository: unknown command op %q", cmd.Op)
	}
}

// Snapshot captures the full store contents for raft log compaction.
func (f *FSM) Snapshot() (raft.FSMSnapshot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	snap := &Snapshot{}
	var err error
	if snap.Agents, err = f.store.ListAgents(); err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	if snap.Sessions, err = f.store.ListSessions(); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	if snap.Kernels, err = f.store.ListKernels(); err != nil {
		return nil, fmt.Errorf("list kernels: %w", err)
	}
	if snap.ResourceGroups, err = f.store.ListResourceGroups(); err != nil {
		return nil, fmt.Errorf("list resource groups: %w", err)
	}
	if snap.KeypairResourcePolicies, err = f.store.ListKeypairResourcePolicies(); err != nil {
		return nil, fmt.Errorf("list keypair resource policies: %w", err)
	}
	if snap.UserResourcePolicies, err = f.store.ListUserResourcePolicies(); err != nil {
		return nil, fmt.Errorf("list user resource policies: %w", err)
	}
	if snap.Groups, err = f.store.ListGroups(); err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	if snap.Domains, err = f.store.ListDomains(); err != nil {
		return nil, fmt.Errorf("list domains: %w", err)
	}
	if snap.Dependencies, err = f.store.ListAllDependencies(); err != nil {
		return nil, fmt.Errorf("list dependencies: %w", err)
	}
	return snap, nil
}

// Restore replaces the store contents with a previously captured snapshot,
// on node start or after installing a leader-sent snapshot.
func (f *FSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()

	var snap Snapshot
	if err := json.NewDecoder(rc).Decode(&snap); err != nil {
		return fmt.Errorf("repository: decode snapshot: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for _, v := range snap.Agents {
		if err := f.store.CreateAgent(v); err != nil {
			return fmt.Errorf("restore agent %s: %w", v.ID, err)
		}
	}
	for _, v := range snap.Sessions {
		if err := f.store.CreateSession(v); err != nil {
			return fmt.Errorf("restore session %s: %w", v.ID, err)
		}
	}
	for _, v := range snap.Kernels {
		if err := f.store.CreateKernel(v); err != nil {
			return fmt.Errorf("restore kernel %s: %w", v.ID, err)
		}
	}
	for _, v := range snap.ResourceGroups {
		if err := f.store.CreateResourceGroup(v); err != nil {
			return fmt.Errorf("restore resource group %s: %w", v.Name, err)
		}
	}
	for _, v := range snap.KeypairResourcePolicies {
		if err := f.store.CreateKeypairResourcePolicy(v); err != nil {
			return fmt.Errorf("restore keypair resource policy %s: %w", v.Name, err)
		}
	}
	for _, v := range snap.UserResourcePolicies {
		if err := f.store.CreateUserResourcePolicy(v); err != nil {
			return fmt.Errorf("restore user resource policy %s: %w", v.Name, err)
		}
	}
	for _, v := range snap.Groups {
		if err := f.store.CreateGroup(v); err != nil {
			return fmt.Errorf("restore group %s: %w", v.ID, err)
		}
	}
	for _, v := range snap.Domains {
		if err := f.store.CreateDomain(v); err != nil {
			return fmt.Errorf("restore domain %s: %w", v.Name, err)
		}
	}
	for _, v := range snap.Dependencies {
		if err := f.store.AddDependencyEdge(v); err != nil {
			return fmt.Errorf("restore dependency edge %s/%s: %w", v.Dependent, v.Predecessor, err)
		}
	}
	return nil
}

// Snapshot is the full-state JSON payload raft persists and replays.
type Snapshot struct {
	Agents                  []*types.Agent
	Sessions                []*types.Session
	Kernels                 []*types.Kernel
	ResourceGroups          []*types.ResourceGroup
	KeypairResourcePolicies []*types.KeypairResourcePolicy
	UserResourcePolicies    []*types.UserResourcePolicy
	Groups                  []*types.Group
	Domains                 []*types.Domain
	Dependencies            []types.DependencyEdge
}

// Persist writes the snapshot to sink as JSON.
func (s *Snapshot) Persist(sink raft.SnapshotSink) error {
	err := func() error {
		if err := json.NewEncoder(sink).Encode(s); err != nil {
			return err
		}
		return sink.Close()
	}()
	if err != nil {
		sink.Cancel()
	}
	return err
}

// Release is a no-op: Snapshot holds no resources beyond its in-memory data.
func (s *Snapshot) Release() {}

var _ raft.FSM = (*FSM)(nil)
