package command

import (
	"errors"
	"fmt"
	"testing"

	"github.com/signalsfoundry/flock-simulator/internal/sim/state"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestToStatusError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want codes.Code
	}{
		{"not found", fmt.Errorf("lookup: %w", state.ErrAgentNotFound), codes.NotFound},
		{"empty selection", fmt.Errorf("%w: [x]", state.ErrEmptySelection), codes.InvalidArgument},
		{"invalid request", ErrInvalidRequest, codes.InvalidArgument},
		{"invalid target", fmt.Errorf("%w: [NaN 0 0]", state.ErrInvalidTarget), codes.InvalidArgument},
		{"exists", state.ErrAgentExists, codes.AlreadyExists},
		{"alloc", state.ErrFlockAlloc, codes.ResourceExhausted},
		{"not ready", ErrNotReady, codes.FailedPrecondition},
		{"unknown", errors.New("boom"), codes.Internal},
		{"already status", status.Error(codes.Unavailable, "down"), codes.Unavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := status.Code(ToStatusError(tt.err)); got != tt.want {
				t.Fatalf("code = %v, want %v", got, tt.want)
			}
		})
	}
	if ToStatusError(nil) != nil {
		t.Fatalf("nil error must map to nil")
	}
}
