package command

import (
	"errors"

	"github.com/signalsfoundry/flock-simulator/internal/sim/state"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	// ErrInvalidRequest is used for malformed request messages.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrNotReady indicates the service was built without a host.
	ErrNotReady = errors.New("flock service is not initialised")
)

// ToStatusError maps simulator errors onto gRPC status codes.
func ToStatusError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, state.ErrAgentNotFound):
		return status.Error(codes.NotFound, err.Error())

	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, state.ErrEmptySelection),
		errors.Is(err, state.ErrInvalidTarget):
		return status.Error(codes.InvalidArgument, err.Error())

	case errors.Is(err, state.ErrAgentExists):
		return status.Error(codes.AlreadyExists, err.Error())

	case errors.Is(err, state.ErrFlockAlloc):
		return status.Error(codes.ResourceExhausted, err.Error())

	case errors.Is(err, ErrNotReady):
		return status.Error(codes.FailedPrecondition, err.Error())

	default:
		return status.Error(codes.Internal, err.Error())
	}
}
