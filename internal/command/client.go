package command

import (
	"context"

	"github.com/signalsfoundry/flock-simulator/internal/sim/state"
	"github.com/signalsfoundry/flock-simulator/model"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/dynamicpb"
	"google.golang.org/protobuf/types/known/emptypb"
)

// Client is a typed client for the flock service.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) invoke(ctx context.Context, method string, in, out interface{}, opts ...grpc.CallOption) error {
	return c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...)
}

// IssueMove orders the agents toward target.
func (c *Client) IssueMove(ctx context.Context, ids []string, target model.Vec3, opts ...grpc.CallOption) (state.CommandResult, error) {
	out := dynamicpb.NewMessage(commandResultDesc)
	if err := c.invoke(ctx, "IssueMove", EncodeMoveRequest(MoveRequest{AgentIDs: ids, Target: target}), out, opts...); err != nil {
		return state.CommandResult{}, err
	}
	return DecodeCommandResult(out)
}

// GetAgentState fetches one agent.
func (c *Client) GetAgentState(ctx context.Context, id string, opts ...grpc.CallOption) (state.AgentView, error) {
	out := dynamicpb.NewMessage(agentStateDesc)
	if err := c.invoke(ctx, "GetAgentState", EncodeAgentRequest(id), out, opts...); err != nil {
		return state.AgentView{}, err
	}
	return DecodeAgent(out)
}

// ListFlocks fetches the live flocks.
func (c *Client) ListFlocks(ctx context.Context, opts ...grpc.CallOption) ([]state.FlockView, error) {
	out := dynamicpb.NewMessage(flockListDesc)
	if err := c.invoke(ctx, "ListFlocks", &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return DecodeFlocks(out)
}

// Snapshot fetches the whole world state.
func (c *Client) Snapshot(ctx context.Context, opts ...grpc.CallOption) (state.Snapshot, error) {
	out := dynamicpb.NewMessage(snapshotDesc)
	if err := c.invoke(ctx, "Snapshot", &emptypb.Empty{}, out, opts...); err != nil {
		return state.Snapshot{}, err
	}
	return DecodeSnapshot(out)
}
