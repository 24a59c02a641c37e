package agentrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/warren/pkg/types"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// The method* constants are the gRPC method paths for the agent operations. There is no
// generated service stub in this tree (the fleet-side agent daemon is out of
// scope here); requests and responses instead travel as structpb.Struct,
// built from the same Go structs the fake implementation uses directly, so
// the wire payload and the in-memory fake never drift apart.
const (
	methodCheckAndPullImage  = "/warren.agent.v1.AgentService/CheckAndPullImage"
	methodCreateKernels      = "/warren.agent.v1.AgentService/CreateKernels"
	methodDestroyKernel      = "/warren.agent.v1.AgentService/DestroyKernel"
	methodRestartKernel      = "/warren.agent.v1.AgentService/RestartKernel"
	methodGatherHWInfo       = "/warren.agent.v1.AgentService/GatherHWInfo"
	methodCreateLocalNetwork = "/warren.agent.v1.AgentService/CreateLocalNetwork"
	methodDestroyLocalNetwork = "/warren.agent.v1.AgentService/DestroyLocalNetwork"
	methodUpdateScalingGroup = "/warren.agent.v1.AgentService/UpdateScalingGroup"
)

// Client is a gRPC-backed AgentRPC that dials lazily and caches one
// connection per agent address, since the dispatcher calls the same agents
// repeatedly across ticks.
type Client struct {
	dialTimeout time.Duration

	mu    sync.Mutex
	conns map[string]*grpc.ClientConn
}

// NewClient returns a Client with no open connections; they are established
// on first use per agent address.
func NewClient() *Client {
	return &Client{
		dialTimeout: 5 * time.Second,
		conns:       make(map[string]*grpc.ClientConn),
	}
}

func (c *Client) connFor(addr string) (*grpc.ClientConn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if conn, ok := c.conns[addr]; ok {
		return conn, nil
	}
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("agentrpc: dial %s: %w", addr, err)
	}
	c.conns[addr] = conn
	return conn, nil
}

// Close releases every cached connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var firstErr error
	for addr, conn := range c.conns {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("agentrpc: close %s: %w", addr, err)
		}
		delete(c.conns, addr)
	}
	return firstErr
}

// toStruct round-trips v through JSON into a structpb.Struct, the payload
// shape carried over the wire for every method below.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("agentrpc: marshal request: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("agentrpc: unmarshal request to map: %w", err)
	}
	return structpb.NewStruct(m)
}

func fromStruct(s *structpb.Struct, out any) error {
	data, err := json.Marshal(s.AsMap())
	if err != nil {
		return fmt.Errorf("agentrpc: marshal response: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("agentrpc: unmarshal response: %w", err)
	}
	return nil
}

func (c *Client) invoke(ctx context.Context, addr, method string, req any, resp any) error {
	conn, err := c.connFor(addr)
	if err != nil {
		return err
	}
	reqStruct, err := toStruct(req)
	if err != nil {
		return err
	}
	respStruct := &structpb.Struct{}
	if err := conn.Invoke(ctx, method, reqStruct, respStruct); err != nil {
		return fmt.Errorf("agentrpc: %s: %w", method, err)
	}
	if resp == nil {
		return nil
	}
	return fromStruct(respStruct, resp)
}

func (c *Client) CheckAndPullImage(ctx context.Context, agentAddr, image, architecture string) error {
	req := map[string]string{"image": image, "architecture": architecture}
	return c.invoke(ctx, agentAddr, methodCheckAndPullImage, req, nil)
}

func (c *Client) CreateKernels(ctx context.Context, agentAddr string, specs []KernelSpec) ([]KernelResult, error) {
	var resp struct {
		Results []KernelResult `json:"results"`
	}
	req := struct {
		Specs []KernelSpec `json:"specs"`
	}{Specs: specs}
	if err := c.invoke(ctx, agentAddr, methodCreateKernels, req, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

func (c *Client) DestroyKernel(ctx context.Context, agentAddr string, kernelID types.KernelID, reason string) error {
	req := map[string]string{"kernel_id": string(kernelID), "reason": reason}
	return c.invoke(ctx, agentAddr, methodDestroyKernel, req, nil)
}

func (c *Client) RestartKernel(ctx context.Context, agentAddr string, kernelID types.KernelID) error {
	req := map[string]string{"kernel_id": string(kernelID)}
	return c.invoke(ctx, agentAddr, methodRestartKernel, req, nil)
}

func (c *Client) GatherHWInfo(ctx context.Context, agentAddr string) (HWInfo, error) {
	var resp HWInfo
	if err := c.invoke(ctx, agentAddr, methodGatherHWInfo, struct{}{}, &resp); err != nil {
		return HWInfo{}, err
	}
	return resp, nil
}

func (c *Client) CreateLocalNetwork(ctx context.Context, agentAddr, networkName string) error {
	req := map[string]string{"network_name": networkName}
	return c.invoke(ctx, agentAddr, methodCreateLocalNetwork, req, nil)
}

func (c *Client) DestroyLocalNetwork(ctx context.Context, agentAddr, networkName string) error {
	req := map[string]string{"network_name": networkName}
	return c.invoke(ctx, agentAddr, methodDestroyLocalNetwork, req, nil)
}

func (c *Client) UpdateScalingGroup(ctx context.Context, agentAddr, resourceGroup string) error {
	req := map[string]string{"resource_group": resourceGroup}
	return c.invoke(ctx, agentAddr, methodUpdateScalingGroup, req, nil)
}
