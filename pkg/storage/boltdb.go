package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/cuemby/warren/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names
	bucketAgents                  = []byte("agents")
	bucketSessions                = []byte("sessions")
	bucketKernels                 = []byte("kernels")
	bucketResourceGroups          = []byte("resource_groups")
	bucketKeypairResourcePolicies = []byte("keypair_resource_policies")
	bucketUserResourcePolicies    = []byte("user_resource_policies")
	bucketGroups                  = []byte("groups")
	bucketDomains                 = []byte("domains")
	bucketDependencies            = []byte("dependencies")
)

// BoltStore implements Store using an embedded BoltDB file.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if absent) the BoltDB-backed store under
// dataDir.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "backendai-manager.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketAgents,
			bucketSessions,
			bucketKernels,
			bucketResourceGroups,
			bucketKeypairResourcePolicies,
			bucketUserResourcePolicies,
			bucketGroups,
			bucketDomains,
			bucketDependencies,
		}
		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Agent operations

func (s *BoltStore) CreateAgent(agent *types.Agent) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAgents)
		data, err := json.Marshal(agent)
		if err != nil {
			return err
		}
		return b.Put([]byte(agent.ID), data)
	})
}

func (s *BoltStore) GetAgent(id types.AgentID) (*types.Agent, error) {
	var agent types.Agent
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAgents)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("agent not found: %s", id)
		}
		return json.Unmarshal(data, &agent)
	})
	if err != nil {
		return nil, err
	}
	return &agent, nil
}

func (s *BoltStore) ListAgents() ([]*types.Agent, error) {
	var agents []*types.Agent
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAgents)
		return b.ForEach(func(k, v []byte) error {
			var agent types.Agent
			if err := json.Unmarshal(v, &agent); err != nil {
				return err
			}
			agents = append(agents, &agent)
			return nil
		})
	})
	return agents, err
}

func (s *BoltStore) ListAgentsByResourceGroup(rg string) ([]*types.Agent, error) {
	agents, err := s.ListAgents()
	if err != nil {
		return nil, err
	}
	var filtered []*types.Agent
	for _, a := range agents {
		if a.ResourceGroup == rg {
			filtered = append(filtered, a)
		}
	}
	return filtered, nil
}

func (s *BoltStore) UpdateAgent(agent *types.Agent) error {
	return s.CreateAgent(agent) // upsert
}

func (s *BoltStore) DeleteAgent(id types.AgentID) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAgents).Delete([]byte(id))
	})
}

// Session operations

func (s *BoltStore) CreateSession(session *types.Session) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSessions)
		data, err := json.Marshal(session)
		if err != nil {
			return err
		}
		return b.Put([]byte(session.ID), data)
	})
}

func (s *BoltStore) GetSession(id types.SessionID) (*types.Session, error) {
	var session types.Session
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSessions)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("session not found: %s", id)
		}
		return json.Unmarshal(data, &session)
	})
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *BoltStore) ListSessions() ([]*types.Session, error) {
	var sessions []*types.Session
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSessions)
		return b.ForEach(func(k, v []byte) error {
			var session types.Session
			if err := json.Unmarshal(v, &session); err != nil {
				return err
			}
			sessions = append(sessions, &session)
			return nil
		})
	})
	return sessions, err
}

func (s *BoltStore) ListSessionsByStatus(status types.SessionStatus) ([]*types.Session, error) {
	sessions, err := s.ListSessions()
	if err != nil {
		return nil, err
	}
	var filtered []*types.Session
	for _, sess := range sessions {
		if sess.Status == status {
			filtered = append(filtered, sess)
		}
	}
	return filtered, nil
}

func (s *BoltStore) ListSessionsByResourceGroup(rg string) ([]*types.Session, error) {
	sessions, err := s.ListSessions()
	if err != nil {
		return nil, err
	}
	var filtered []*types.Session
	for _, sess := range sessions {
		if sess.ResourceGroup == rg {
			filtered = append(filtered, sess)
		}
	}
	return filtered, nil
}

func (s *BoltStore) ListSessionsByAccessKey(accessKey string) ([]*types.Session, error) {
	sessions, err := s.ListSessions()
	if err != nil {
		return nil, err
	}
	var filtered []*types.Session
	for _, sess := range sessions {
		if sess.AccessKey == accessKey {
			filtered = append(filtered, sess)
		}
	}
	return filtered, nil
}

func (s *BoltStore) UpdateSession(session *types.Session) error {
	return s.CreateSession(session)
}

func (s *BoltStore) DeleteSession(id types.SessionID) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSessions).Delete([]byte(id))
	})
}

// Kernel operations

func (s *BoltStore) CreateKernel(kernel *types.Kernel) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketKernels)
		data, err := json.Marshal(kernel)
		if err != nil {
			return err
		}
		return b.Put([]byte(kernel.ID), data)
	})
}

func (s *BoltStore) GetKernel(id types.KernelID) (*types.Kernel, error) {
	var kernel types.Kernel
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketKernels)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("kernel not found: %s", id)
		}
		return json.Unmarshal(data, &kernel)
	})
	if err != nil {
		return nil, err
	}
	return &kernel, nil
}

// ListKernels returns every kernel row, e.g. for a raft snapshot.
func (s *BoltStore) ListKernels() ([]*types.Kernel, error) {
	var kernels []*types.Kernel
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketKernels)
		return b.ForEach(func(k, v []byte) error {
			var kernel types.Kernel
			if err := json.Unmarshal(v, &kernel); err != nil {
				return err
			}
			kernels = append(kernels, &kernel)
			return nil
		})
	})
	return kernels, err
}

func (s *BoltStore) ListKernelsBySession(sessionID types.SessionID) ([]*types.Kernel, error) {
	kernels, err := s.ListKernels()
	if err != nil {
		return nil, err
	}
	var filtered []*types.Kernel
	for _, k := range kernels {
		if k.SessionID == sessionID {
			filtered = append(filtered, k)
		}
	}
	return filtered, nil
}

func (s *BoltStore) ListKernelsByAgent(agentID types.AgentID) ([]*types.Kernel, error) {
	kernels, err := s.ListKernels()
	if err != nil {
		return nil, err
	}
	var filtered []*types.Kernel
	for _, k := range kernels {
		if k.AgentID == agentID {
			filtered = append(filtered, k)
		}
	}
	return filtered, nil
}

func (s *BoltStore) UpdateKernel(kernel *types.Kernel) error {
	return s.CreateKernel(kernel)
}

func (s *BoltStore) DeleteKernel(id types.KernelID) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketKernels).Delete([]byte(id))
	})
}

// Resource group operations

func (s *BoltStore) CreateResourceGroup(rg *types.ResourceGroup) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketResourceGroups)
		data, err := json.Marshal(rg)
		if err != nil {
			return err
		}
		return b.Put([]byte(rg.Name), data)
	})
}

func (s *BoltStore) GetResourceGroup(name string) (*types.ResourceGroup, error) {
	var rg types.ResourceGroup
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketResourceGroups)
		data := b.Get([]byte(name))
		if data == nil {
			return fmt.Errorf("resource group not found: %s", name)
		}
		return json.Unmarshal(data, &rg)
	})
	if err != nil {
		return nil, err
	}
	return &rg, nil
}

func (s *BoltStore) ListResourceGroups() ([]*types.ResourceGroup, error) {
	var groups []*types.ResourceGroup
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketResourceGroups)
		return b.ForEach(func(k, v []byte) error {
			var rg types.ResourceGroup
			if err := json.Unmarshal(v, &rg); err != nil {
				return err
			}
			groups = append(groups, &rg)
			return nil
		})
	})
	return groups, err
}

func (s *BoltStore) UpdateResourceGroup(rg *types.ResourceGroup) error {
	return s.CreateResourceGroup(rg)
}

func (s *BoltStore) DeleteResourceGroup(name string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketResourceGroups).Delete([]byte(name))
	})
}

// Quota policy operations

func (s *BoltStore) CreateKeypairResourcePolicy(p *types.KeypairResourcePolicy) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketKeypairResourcePolicies)
		data, err := json.Marshal(p)
		if err != nil {
			return err
		}
		return b.Put([]byte(p.Name), data)
	})
}

func (s *BoltStore) GetKeypairResourcePolicy(name string) (*types.KeypairResourcePolicy, error) {
	var p types.KeypairResourcePolicy
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketKeypairResourcePolicies)
		data := b.Get([]byte(name))
		if data == nil {
			return fmt.Errorf("keypair resource policy not found: %s", name)
		}
		return json.Unmarshal(data, &p)
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *BoltStore) ListKeypairResourcePolicies() ([]*types.KeypairResourcePolicy, error) {
	var policies []*types.KeypairResourcePolicy
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketKeypairResourcePolicies)
		return b.ForEach(func(k, v []byte) error {
			var p types.KeypairResourcePolicy
			if err := json.Unmarshal(v, &p); err != nil {
				return err
			}
			policies = append(policies, &p)
			return nil
		})
	})
	return policies, err
}

func (s *BoltStore) CreateUserResourcePolicy(p *types.UserResourcePolicy) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketUserResourcePolicies)
		data, err := json.Marshal(p)
		if err != nil {
			return err
		}
		return b.Put([]byte(p.Name), data)
	})
}

func (s *BoltStore) GetUserResourcePolicy(name string) (*types.UserResourcePolicy, error) {
	var p types.UserResourcePolicy
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketUserResourcePolicies)
		data := b.Get([]byte(name))
		if data == nil {
			return fmt.Errorf("user resource policy not found: %s", name)
		}
		return json.Unmarshal(data, &p)
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *BoltStore) ListUserResourcePolicies() ([]*types.UserResourcePolicy, error) {
	var policies []*types.UserResourcePolicy
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketUserResourcePolicies)
		return b.ForEach(func(k, v []byte) error {
			var p types.UserResourcePolicy
			if err := json.Unmarshal(v, &p); err != nil {
				return err
			}
			policies = append(policies, &p)
			return nil
		})
	})
	return policies, err
}

func (s *BoltStore) CreateGroup(g *types.Group) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketGroups)
		data, err := json.Marshal(g)
		if err != nil {
			return err
		}
		return b.Put([]byte(g.ID), data)
	})
}

func (s *BoltStore) GetGroup(id string) (*types.Group, error) {
	var g types.Group
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketGroups)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("group not found: %s", id)
		}
		return json.Unmarshal(data, &g)
	})
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (s *BoltStore) ListGroups() ([]*types.Group, error) {
	var groups []*types.Group
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketGroups)
		return b.ForEach(func(k, v []byte) error {
			var g types.Group
			if err := json.Unmarshal(v, &g); err != nil {
				return err
			}
			groups = append(groups, &g)
			return nil
		})
	})
	return groups, err
}

func (s *BoltStore) CreateDomain(d *types.Domain) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDomains)
		data, err := json.Marshal(d)
		if err != nil {
			return err
		}
		return b.Put([]byte(d.Name), data)
	})
}

func (s *BoltStore) GetDomain(name string) (*types.Domain, error) {
	var d types.Domain
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDomains)
		data := b.Get([]byte(name))
		if data == nil {
			return fmt.Errorf("domain not found: %s", name)
		}
		return json.Unmarshal(data, &d)
	})
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *BoltStore) ListDomains() ([]*types.Domain, error) {
	var domains []*types.Domain
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDomains)
		return b.ForEach(func(k, v []byte) error {
			var d types.Domain
			if err := json.Unmarshal(v, &d); err != nil {
				return err
			}
			domains = append(domains, &d)
			return nil
		})
	})
	return domains, err
}

// Dependency edges

func (s *BoltStore) AddDependencyEdge(edge types.DependencyEdge) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDependencies)
		data, err := json.Marshal(edge)
		if err != nil {
			return err
		}
		key := fmt.Sprintf("%s/%s", edge.Dependent, edge.Predecessor)
		return b.Put([]byte(key), data)
	})
}

func (s *BoltStore) ListDependencies(dependent types.SessionID) ([]types.DependencyEdge, error) {
	var edges []types.DependencyEdge
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDependencies)
		return b.ForEach(func(k, v []byte) error {
			var edge types.DependencyEdge
			if err := json.Unmarshal(v, &edge); err != nil {
				return err
			}
			if edge.Dependent == dependent {
				edges = append(edges, edge)
			}
			return nil
		})
	})
	return edges, err
}

// ListAllDependencies returns every dependency edge, e.g. for a raft
// snapshot.
func (s *BoltStore) ListAllDependencies() ([]types.DependencyEdge, error) {
	var edges []types.DependencyEdge
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDependencies)
		return b.ForEach(func(k, v []byte) error {
			var edge types.DependencyEdge
			if err := json.Unmarshal(v, &edge); err != nil {
				return err
			}
			edges = append(edges, edge)
			return nil
		})
	})
	return edges, err
}
