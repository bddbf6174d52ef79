package command

import (
	"context"

	"github.com/signalsfoundry/flock-simulator/internal/logging"
	"github.com/signalsfoundry/flock-simulator/internal/sim/state"
	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/dynamicpb"
	"google.golang.org/protobuf/types/known/emptypb"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "flock.v1.FlockService"

// FlockServiceServer is the server API for flock.v1.FlockService. Requests
// arrive decoded and validated; responses are encoded by the registered
// handlers.
type FlockServiceServer interface {
	IssueMove(context.Context, MoveRequest) (state.CommandResult, error)
	GetAgentState(ctx context.Context, id string) (state.AgentView, error)
	ListFlocks(context.Context) ([]state.FlockView, error)
	Snapshot(context.Context) (state.Snapshot, error)
}

// RegisterFlockServiceServer registers srv on s.
func RegisterFlockServiceServer(s grpc.ServiceRegistrar, srv FlockServiceServer) {
	s.RegisterService(&FlockService_ServiceDesc, srv)
}

// FlockService_ServiceDesc describes flock.v1.FlockService for grpc.
var FlockService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*FlockServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "IssueMove",
			Handler: unaryHandler("IssueMove", func() proto.Message { return dynamicpb.NewMessage(moveRequestDesc) },
				func(ctx context.Context, srv FlockServiceServer, in proto.Message) (proto.Message, error) {
					req, err := DecodeMoveRequest(in)
					if err != nil {
						return nil, ToStatusError(err)
					}
					res, err := srv.IssueMove(ctx, req)
					if err != nil {
						return nil, err
					}
					return EncodeCommandResult(res), nil
				}),
		},
		{
			MethodName: "GetAgentState",
			Handler: unaryHandler("GetAgentState", func() proto.Message { return dynamicpb.NewMessage(agentRequestDesc) },
				func(ctx context.Context, srv FlockServiceServer, in proto.Message) (proto.Message, error) {
					id, err := DecodeAgentID(in)
					if err != nil {
						return nil, ToStatusError(err)
					}
					view, err := srv.GetAgentState(ctx, id)
					if err != nil {
						return nil, err
					}
					return EncodeAgent(view), nil
				}),
		},
		{
			MethodName: "ListFlocks",
			Handler: unaryHandler("ListFlocks", func() proto.Message { return new(emptypb.Empty) },
				func(ctx context.Context, srv FlockServiceServer, _ proto.Message) (proto.Message, error) {
					flocks, err := srv.ListFlocks(ctx)
					if err != nil {
						return nil, err
					}
					return EncodeFlocks(flocks), nil
				}),
		},
		{
			MethodName: "Snapshot",
			Handler: unaryHandler("Snapshot", func() proto.Message { return new(emptypb.Empty) },
				func(ctx context.Context, srv FlockServiceServer, _ proto.Message) (proto.Message, error) {
					snap, err := srv.Snapshot(ctx)
					if err != nil {
						return nil, err
					}
					return EncodeSnapshot(snap), nil
				}),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: SchemaFile,
}

type unaryCall func(ctx context.Context, srv FlockServiceServer, in proto.Message) (proto.Message, error)

// unaryHandler decodes into a fresh request message and runs call behind
// the server's interceptor chain, so decode failures are counted like any
// other RPC error.
func unaryHandler(method string, newRequest func() proto.Message, call unaryCall) func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	fullMethod := "/" + ServiceName + "/" + method
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := newRequest()
		if err := dec(in); err != nil {
			return nil, err
		}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(ctx, srv.(FlockServiceServer), req.(proto.Message))
		}
		if interceptor == nil {
			return handler(ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		return interceptor(ctx, in, info, handler)
	}
}

// FlockService implements FlockServiceServer on top of a state.Host.
type FlockService struct {
	host *state.Host
	log  logging.Logger
}

// NewFlockService wires the service to a host and optional logger.
func NewFlockService(host *state.Host, log logging.Logger) *FlockService {
	if log == nil {
		log = logging.Noop()
	}
	return &FlockService{host: host, log: log}
}

func (s *FlockService) ensureReady() error {
	if s == nil || s.host == nil {
		return ToStatusError(ErrNotReady)
	}
	return nil
}

func (s *FlockService) logger(ctx context.Context) logging.Logger {
	if l := logging.LoggerFromContext(ctx); l != nil {
		return l
	}
	return s.log
}

// IssueMove orders the named agents toward the target point.
func (s *FlockService) IssueMove(ctx context.Context, req MoveRequest) (state.CommandResult, error) {
	if err := s.ensureReady(); err != nil {
		return state.CommandResult{}, err
	}

	ctx, span := StartChildSpan(ctx, "FlockService.IssueMove", attribute.Int("selection_size", len(req.AgentIDs)))
	defer span.End()

	res, err := s.host.IssueMove(ctx, req.AgentIDs, req.Target)
	if err != nil {
		s.logger(ctx).Warn(ctx, "IssueMove failed", logging.Err(err))
		return state.CommandResult{}, ToStatusError(err)
	}
	return res, nil
}

// GetAgentState returns one agent's pose and movement state.
func (s *FlockService) GetAgentState(ctx context.Context, id string) (state.AgentView, error) {
	if err := s.ensureReady(); err != nil {
		return state.AgentView{}, err
	}
	view, err := s.host.AgentState(id)
	if err != nil {
		return state.AgentView{}, ToStatusError(err)
	}
	return view, nil
}

// ListFlocks returns every live flock.
func (s *FlockService) ListFlocks(ctx context.Context) ([]state.FlockView, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	return s.host.Flocks(), nil
}

// Snapshot returns the whole world state.
func (s *FlockService) Snapshot(ctx context.Context) (state.Snapshot, error) {
	if err := s.ensureReady(); err != nil {
		return state.Snapshot{}, err
	}
	return s.host.Snapshot(), nil
}
