// Package clusterrpc is the inter-manager control-plane RPC a joining
// raft node uses to ask the current leader to add it as a voter. Like
// pkg/agentrpc, there is no generated service stub; the request travels as
// a structpb.Struct built from a plain Go struct, keeping the wire payload
// and the in-process handler from drifting apart.
package clusterrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

const methodRequestJoin = "/warren.cluster.v1.ClusterService/RequestJoin"

// joinRequest is the wire shape of a RequestJoin call.
type joinRequest struct {
	NodeID   string `json:"node_id"`
	BindAddr string `json:"bind_addr"`
}

// Client dials a leader's control-plane address and issues RequestJoin. It
// satisfies pkg/cluster.LeaderClient.
type Client struct {
	dialTimeout time.Duration
}

// NewClient returns a ready Client.
func NewClient() *Client {
	return &Client{dialTimeout: 5 * time.Second}
}

// RequestJoin asks the node at leaderAddr to add (nodeID, bindAddr) as a
// raft voter.
func (c *Client) RequestJoin(ctx context.Context, leaderAddr, nodeID, bindAddr string) error {
	dialCtx, cancel := context.WithTimeout(ctx, c.dialTimeout)
	defer cancel()
	conn, err := grpc.NewClient(leaderAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("clusterrpc: dial %s: %w", leaderAddr, err)
	}
	defer conn.Close()

	req, err := toStruct(joinRequest{NodeID: nodeID, BindAddr: bindAddr})
	if err != nil {
		return err
	}
	resp := &structpb.Struct{}
	if err := conn.Invoke(dialCtx, methodRequestJoin, req, resp); err != nil {
		return fmt.Errorf("clusterrpc: request join on %s: %w", leaderAddr, err)
	}
	return nil
}

// AddVoter is the leader-side hook a Server calls once a join request
// validates: typically pkg/cluster.Cluster.AddVoter.
type AddVoter func(nodeID, bindAddr string) error

// Server answers RequestJoin calls against a single AddVoter hook. Register
// it on a *grpc.Server with RegisterService.
type Server struct {
	addVoter AddVoter
}

// NewServer returns a Server that calls addVoter for every join request.
func NewServer(addVoter AddVoter) *Server {
	return &Server{addVoter: addVoter}
}

func handleRequestJoin(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	reqStruct := &structpb.Struct{}
	if err := dec(reqStruct); err != nil {
		return nil, err
	}
	var req joinRequest
	if err := fromStruct(reqStruct, &req); err != nil {
		return nil, err
	}
	handler := func(ctx context.Context, _ any) (any, error) {
		if err := srv.(*Server).addVoter(req.NodeID, req.BindAddr); err != nil {
			return nil, fmt.Errorf("clusterrpc: add voter %s: %w", req.NodeID, err)
		}
		return &structpb.Struct{}, nil
	}
	if interceptor == nil {
		return handler(ctx, reqStruct)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodRequestJoin}
	return interceptor(ctx, reqStruct, info, handler)
}

// ServiceDesc registers handleRequestJoin as a unary RPC without a
// generated stub, the server-side mirror of Client.RequestJoin's raw
// conn.Invoke call. Register with grpcServer.RegisterService(&ServiceDesc, server).
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: "warren.cluster.v1.ClusterService",
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "RequestJoin",
			Handler:    handleRequestJoin,
		},
	},
}

func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("clusterrpc: marshal request: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("clusterrpc: unmarshal request to map: %w", err)
	}
	return structpb.NewStruct(m)
}

func fromStruct(s *structpb.Struct, out any) error {
	data, err := json.Marshal(s.AsMap())
	if err != nil {
		return fmt.Errorf("clusterrpc: marshal response: %w", err)
	}
	return json.Unmarshal(data, out)
}
