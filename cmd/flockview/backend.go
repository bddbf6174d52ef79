package main

import (
	"context"
	"time"

	"github.com/signalsfoundry/flock-simulator/core"
	"github.com/signalsfoundry/flock-simulator/internal/command"
	"github.com/signalsfoundry/flock-simulator/internal/logging"
	"github.com/signalsfoundry/flock-simulator/internal/sim/state"
	"github.com/signalsfoundry/flock-simulator/internal/tuning"
	"github.com/signalsfoundry/flock-simulator/model"
	"github.com/signalsfoundry/flock-simulator/timectrl"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// backend is the world the viewer draws and commands.
type backend interface {
	Snapshot(ctx context.Context) (state.Snapshot, error)
	IssueMove(ctx context.Context, ids []string, target model.Vec3) (state.CommandResult, error)
	// Bounds reports the map extent when the backend knows it.
	Bounds() (core.Bounds, bool)
	// HeightAt samples terrain height, or returns 0 when unknown.
	HeightAt(p model.Vec2) float64
	Close() error
}

// localBackend runs a scenario in-process at its real tick rate.
type localBackend struct {
	host   *state.Host
	cancel context.CancelFunc
	done   <-chan struct{}
}

func newLocalBackend(sc *tuning.Scenario, log logging.Logger) (*localBackend, error) {
	host, err := state.NewHostFromScenario(sc, log)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	tc := timectrl.NewFixedRate(time.Now().UTC(), sc.Tuning.TickRateHz, timectrl.RealTime)
	script := state.NewScript(host, sc.Commands, log)
	tc.AddListener(func(uint64, time.Time) {
		if !script.Done() {
			script.Apply(ctx)
		}
		host.Step(ctx)
	})
	return &localBackend{host: host, cancel: cancel, done: tc.Start(ctx, 0)}, nil
}

func (b *localBackend) Snapshot(context.Context) (state.Snapshot, error) {
	return b.host.Snapshot(), nil
}

func (b *localBackend) IssueMove(ctx context.Context, ids []string, target model.Vec3) (state.CommandResult, error) {
	return b.host.IssueMove(ctx, ids, target)
}

func (b *localBackend) Bounds() (core.Bounds, bool) { return b.host.MapBounds() }

func (b *localBackend) HeightAt(p model.Vec2) float64 {
	return b.host.HeightAt(p)
}

func (b *localBackend) Close() error {
	b.cancel()
	<-b.done
	b.host.Close()
	return nil
}

// remoteBackend drives a flock server over gRPC.
type remoteBackend struct {
	conn   *grpc.ClientConn
	client *command.Client
}

func newRemoteBackend(addr string) (*remoteBackend, error) {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(command.RequestIDUnaryClientInterceptor()),
	)
	if err != nil {
		return nil, err
	}
	return &remoteBackend{conn: conn, client: command.NewClient(conn)}, nil
}

func (b *remoteBackend) Snapshot(ctx context.Context) (state.Snapshot, error) {
	return b.client.Snapshot(ctx)
}

func (b *remoteBackend) IssueMove(ctx context.Context, ids []string, target model.Vec3) (state.CommandResult, error) {
	return b.client.IssueMove(ctx, ids, target)
}

func (b *remoteBackend) Bounds() (core.Bounds, bool) { return core.Bounds{}, false }

// Terrain is not exposed over gRPC; only the marker's height depends on it.
func (b *remoteBackend) HeightAt(model.Vec2) float64 { return 0 }

func (b *remoteBackend) Close() error { return b.conn.Close() }
