package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/signalsfoundry/flock-simulator/internal/command"
	"github.com/signalsfoundry/flock-simulator/internal/journal"
	"github.com/signalsfoundry/flock-simulator/internal/logging"
	"github.com/signalsfoundry/flock-simulator/internal/observability"
	"github.com/signalsfoundry/flock-simulator/internal/observer"
	"github.com/signalsfoundry/flock-simulator/internal/sim/state"
	"github.com/signalsfoundry/flock-simulator/internal/tuning"
	"github.com/signalsfoundry/flock-simulator/timectrl"
	"google.golang.org/grpc"
)

// Config holds the server's flag-derived settings.
type Config struct {
	ListenAddress  string
	HTTPAddress    string
	ScenarioPath   string
	JournalDir     string
	LogLevel       string
	LogFormat      string
	Accelerated    bool
	AllowRemoteObs bool
}

const demoScenario = `
name: demo
map:
  min: [-200, -200]
  max: [200, 200]
agents:
  - {id: u1, position: [-20, 0, -20], max_speed: 30}
  - {id: u2, position: [-10, 0, -20], max_speed: 30}
  - {id: u3, position: [0, 0, -20], max_speed: 30}
  - {id: u4, position: [-20, 0, -10], max_speed: 30}
  - {id: u5, position: [-10, 0, -10], max_speed: 30}
  - {id: u6, position: [0, 0, -10], max_speed: 30}
  - {id: tower, position: [40, 0, 40], stationary: true, selection_radius: 4}
`

func main() {
	cfg := Config{}
	flag.StringVar(&cfg.ListenAddress, "grpc-addr", ":50051", "TCP address the command gRPC server listens on")
	flag.StringVar(&cfg.HTTPAddress, "http-addr", ":9090", "HTTP address for /metrics and the observer stream (empty disables)")
	flag.StringVar(&cfg.ScenarioPath, "scenario", "", "Path to a YAML scenario (defaults to a built-in demo)")
	flag.StringVar(&cfg.JournalDir, "journal", "", "Directory for the event index and tick trace (empty disables)")
	flag.BoolVar(&cfg.Accelerated, "accelerated", false, "Step as fast as possible instead of in real time")
	flag.BoolVar(&cfg.AllowRemoteObs, "observer-allow-remote", false, "Accept observer connections from non-loopback addresses")
	flag.Parse()
	cfg.LogLevel = os.Getenv("LOG_LEVEL")
	cfg.LogFormat = os.Getenv("LOG_FORMAT")

	log := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lis, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		log.Error(ctx, "failed to listen for gRPC", logging.String("addr", cfg.ListenAddress), logging.Err(err))
		os.Exit(1)
	}

	if err := run(ctx, cfg, log, lis); err != nil {
		log.Error(ctx, "flock server exited", logging.Err(err))
		os.Exit(1)
	}
}

// run serves until ctx is cancelled. It owns lis.
func run(ctx context.Context, cfg Config, log logging.Logger, lis net.Listener) error {
	sc, err := loadScenario(cfg.ScenarioPath)
	if err != nil {
		return err
	}

	tracingCfg := observability.TracingConfigFromEnv().ForScenario(sc.Name, sc.Tuning.TickRateHz)
	shutdownTracing, err := observability.InitTracing(ctx, tracingCfg, log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	reg := prometheus.NewRegistry()
	simMetrics, err := observability.NewSimCollector(reg)
	if err != nil {
		return fmt.Errorf("sim metrics: %w", err)
	}
	rpcMetrics, err := observability.NewCommandCollector(reg)
	if err != nil {
		return fmt.Errorf("rpc metrics: %w", err)
	}

	hostOpts := []state.HostOption{
		state.WithMetricsRecorder(simMetrics),
		state.WithTracer(observability.Tracer("github.com/signalsfoundry/flock-simulator/internal/sim/state")),
	}
	if cfg.JournalDir != "" {
		j, err := journal.Open(cfg.JournalDir)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer func() {
			if n := j.Dropped(); n > 0 {
				log.Warn(context.Background(), "journal dropped records", logging.Uint64("dropped", n))
			}
			if err := j.Close(); err != nil {
				log.Warn(context.Background(), "journal close failed", logging.Err(err))
			}
		}()
		hostOpts = append(hostOpts, state.WithJournal(j))
	}

	host, err := state.NewHostFromScenario(sc, log, hostOpts...)
	if err != nil {
		return err
	}
	defer host.Close()

	server := command.NewServer(host, log, rpcMetrics)
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(lis)
	}()
	log.Info(ctx, "starting flock gRPC server",
		logging.String("addr", lis.Addr().String()),
		logging.String("scenario", sc.Name),
		logging.Int("agents", len(sc.Agents)),
	)

	var opts []observer.Option
	if cfg.AllowRemoteObs {
		opts = append(opts, observer.WithAllowRemote())
	}
	httpSrv := serveHTTP(ctx, cfg.HTTPAddress, simMetrics, observer.NewServer(host, log, opts...), log)

	simCtx, cancelSim := context.WithCancel(ctx)
	simDone := make(chan struct{})
	go func() {
		defer close(simDone)
		runSimLoop(simCtx, newTickDriver(sc, cfg.Accelerated), host, state.NewScript(host, sc.Commands, log), log)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			runErr = fmt.Errorf("grpc serve: %w", err)
		}
	}

	log.Info(context.Background(), "shutting down flock server")
	cancelSim()
	<-simDone
	server.GracefulStop()

	if httpSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}
	return runErr
}

func loadScenario(path string) (*tuning.Scenario, error) {
	if path == "" {
		return tuning.ParseScenario([]byte(demoScenario))
	}
	return tuning.LoadScenario(path)
}

func newTickDriver(sc *tuning.Scenario, accelerated bool) *timectrl.TimeController {
	mode := timectrl.RealTime
	if accelerated {
		mode = timectrl.Accelerated
	}
	return timectrl.NewFixedRate(time.Now().UTC(), sc.Tuning.TickRateHz, mode)
}

// runSimLoop steps host on every tick of tc until ctx is cancelled. Scripted
// commands due at the current tick are issued before the tick is stepped.
func runSimLoop(ctx context.Context, tc *timectrl.TimeController, host *state.Host, script *state.Script, log logging.Logger) {
	tc.AddListener(func(uint64, time.Time) {
		if script != nil && !script.Done() {
			script.Apply(ctx)
		}
		host.Step(ctx)
	})
	log.Debug(ctx, "simulation loop started", logging.String("mode", tc.Mode.String()))
	<-tc.Start(ctx, 0)
	log.Debug(context.Background(), "simulation loop stopped", logging.Uint64("ticks", tc.Ticks()))
}

func serveHTTP(ctx context.Context, addr string, metrics *observability.SimCollector, obs *observer.Server, log logging.Logger) *http.Server {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	obs.Register(mux)

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn(context.Background(), "http server exited", logging.Err(err))
		}
	}()
	log.Info(ctx, "serving metrics and observer stream", logging.String("addr", addr))
	return srv
}
