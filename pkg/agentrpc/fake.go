package agentrpc

import (
	"context"
	"fmt"
	"sync"

	"github.com/cuemby/warren/pkg/types"
)

// Fake is an in-memory AgentRPC for dispatcher tests. It records every call
// it receives and lets a test script per-kernel or per-agent failures and
// actual-slot variance (e.g. a device rounding a fractional share down),
// without standing up a real agent daemon or network connection.
type Fake struct {
	mu sync.Mutex

	// FailCreateFor, keyed by kernel ID, makes CreateKernels report that
	// kernel as failed (Err set, zero ActualSlots) instead of succeeding.
	FailCreateFor map[types.KernelID]string

	// ActualSlotsOverride, keyed by kernel ID, replaces the echoed
	// RequestedSlots with a different actual allocation, modeling device
	// rounding. Kernels absent from this map get ActualSlots == requested.
	ActualSlotsOverride map[types.KernelID]types.ResourceSlot

	// FailAgents makes every call addressed to that agent address return an
	// error, modeling an unreachable or crashed agent.
	FailAgents map[string]bool

	Created   []KernelSpec
	Destroyed []types.KernelID
	Restarted []types.KernelID
	Networks  map[string]bool
}

// NewFake returns a ready-to-use Fake with all maps initialized.
func NewFake() *Fake {
	return &Fake{
		FailCreateFor:       make(map[types.KernelID]string),
		ActualSlotsOverride: make(map[types.KernelID]types.ResourceSlot),
		FailAgents:          make(map[string]bool),
		Networks:            make(map[string]bool),
	}
}

func (f *Fake) checkAgent(addr string) error {
	if f.FailAgents[addr] {
		return fmt.Errorf("agentrpc fake: agent %s unreachable", addr)
	}
	return nil
}

func (f *Fake) CheckAndPullImage(_ context.Context, agentAddr, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.checkAgent(agentAddr)
}

func (f *Fake) CreateKernels(_ context.Context, agentAddr string, specs []KernelSpec) ([]KernelResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkAgent(agentAddr); err != nil {
		return nil, err
	}

	results := make([]KernelResult, 0, len(specs))
	for _, spec := range specs {
		f.Created = append(f.Created, spec)
		if reason, failed := f.FailCreateFor[spec.KernelID]; failed {
			results = append(results, KernelResult{KernelID: spec.KernelID, Err: reason})
			continue
		}
		actual := spec.ResourceSpec.Slots
		if override, ok := f.ActualSlotsOverride[spec.KernelID]; ok {
			actual = override
		}
		results = append(results, KernelResult{
			KernelID:    spec.KernelID,
			ContainerID: "fake-" + string(spec.KernelID),
			ActualSlots: actual,
		})
	}
	return results, nil
}

func (f *Fake) DestroyKernel(_ context.Context, agentAddr string, kernelID types.KernelID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkAgent(agentAddr); err != nil {
		return err
	}
	f.Destroyed = append(f.Destroyed, kernelID)
	return nil
}

func (f *Fake) RestartKernel(_ context.Context, agentAddr string, kernelID types.KernelID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkAgent(agentAddr); err != nil {
		return err
	}
	f.Restarted = append(f.Restarted, kernelID)
	return nil
}

func (f *Fake) GatherHWInfo(_ context.Context, agentAddr string) (HWInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkAgent(agentAddr); err != nil {
		return HWInfo{}, err
	}
	return HWInfo{}, nil
}

func (f *Fake) CreateLocalNetwork(_ context.Context, agentAddr, networkName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkAgent(agentAddr); err != nil {
		return err
	}
	f.Networks[networkName] = true
	return nil
}

func (f *Fake) DestroyLocalNetwork(_ context.Context, agentAddr, networkName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkAgent(agentAddr); err != nil {
		return err
	}
	delete(f.Networks, networkName)
	return nil
}

func (f *Fake) UpdateScalingGroup(_ context.Context, agentAddr, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.checkAgent(agentAddr)
}
