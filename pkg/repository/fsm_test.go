package repository

import (
	"bytes"
	"encoding/json"
	"io"
	"testing"

	"github.com/cuemby/warren/pkg/types"
	"github.com/hashicorp/raft"
	"github.com/stretchr/testify/require"
)

func applyCmd(t *testing.T, fsm *FSM, op string, payload any) interface{} {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	raw, err := json.Marshal(Command{Op: op, Data: data})
	require.NoError(t, err)
	return fsm.Apply(&raft.Log{Data: raw})
}

func TestFSMCreateAndUpdateAgent(t *testing.T) {
	store := newFakeStore()
	fsm := NewFSM(store)

	agent := &types.Agent{ID: "agent-1", ResourceGroup: "default", Status: types.AgentStatusAlive}
	resp := applyCmd(t, fsm, opCreateAgent, agent)
	require.Nil(t, resp)

	got, err := store.GetAgent("agent-1")
	require.NoError(t, err)
	require.Equal(t, types.AgentStatusAlive, got.Status)

	agent.Status = types.AgentStatusLost
	resp = applyCmd(t, fsm, opUpdateAgent, agent)
	require.Nil(t, resp)

	got, err = store.GetAgent("agent-1")
	require.NoError(t, err)
	require.Equal(t, types.AgentStatusLost, got.Status)
}

func TestFSMDeleteSession(t *testing.T) {
	store := newFakeStore()
	fsm := NewFSM(store)

	session := &types.Session{ID: "sess-1", Status: types.SessionStatusPending}
	require.Nil(t, applyCmd(t, fsm, opCreateSession, session))

	require.Nil(t, applyCmd(t, fsm, opDeleteSession, session.ID))

	_, err := store.GetSession("sess-1")
	require.Error(t, err)
}

func TestFSMUnknownOpReturnsError(t *testing.T) {
	store := newFakeStore()
	fsm := NewFSM(store)

	resp := applyCmd(t, fsm, "not_a_real_op", map[string]string{})
	require.Error(t, resp.(error))
}

func TestFSMSnapshotRoundTrip(t *testing.T) {
	store := newFakeStore()
	fsm := NewFSM(store)

	require.Nil(t, applyCmd(t, fsm, opCreateAgent, &types.Agent{ID: "agent-1", ResourceGroup: "default"}))
	require.Nil(t, applyCmd(t, fsm, opCreateSession, &types.Session{ID: "sess-1", Status: types.SessionStatusPending}))
	require.Nil(t, applyCmd(t, fsm, opCreateKernel, &types.Kernel{ID: "kernel-1", SessionID: "sess-1"}))
	require.Nil(t, applyCmd(t, fsm, opAddDependencyEdge, types.DependencyEdge{Dependent: "sess-1", Predecessor: "sess-0"}))

	snap, err := fsm.Snapshot()
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, snap.Persist(&nopSink{&buf}))

	restoreStore := newFakeStore()
	restoreFSM := NewFSM(restoreStore)
	require.NoError(t, restoreFSM.Restore(io.NopCloser(&buf)))

	agents, err := restoreStore.ListAgents()
	require.NoError(t, err)
	require.Len(t, agents, 1)

	sessions, err := restoreStore.ListSessions()
	require.NoError(t, err)
	require.Len(t, sessions, 1)

	kernels, err := restoreStore.ListKernels()
	require.NoError(t, err)
	require.Len(t, kernels, 1)

	deps, err := restoreStore.ListAllDependencies()
	require.NoError(t, err)
	require.Len(t, deps, 1)
}

// nopSink adapts a bytes.Buffer to raft.SnapshotSink for testing Persist.
type nopSink struct {
	*bytes.Buffer
}

func (s *nopSink) ID() string         { return "test" }
func (s *nopSink) Cancel() error      { return nil }
func (s *nopSink) Close() error       { return nil }
