package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/signalsfoundry/flock-simulator/internal/journal"
	"github.com/signalsfoundry/flock-simulator/internal/logging"
	"github.com/signalsfoundry/flock-simulator/internal/sim/state"
	"github.com/signalsfoundry/flock-simulator/internal/tuning"
	"github.com/signalsfoundry/flock-simulator/timectrl"
)

type options struct {
	scenario    string
	duration    time.Duration
	journalDir  string
	reportEvery int
	realTime    bool
}

func main() {
	var opts options
	flag.StringVar(&opts.scenario, "scenario", "configs/squads.yaml", "Path to a YAML scenario")
	flag.DurationVar(&opts.duration, "duration", 10*time.Second, "Simulated duration")
	flag.StringVar(&opts.journalDir, "journal", "", "Directory for the event index and tick trace (empty disables)")
	flag.IntVar(&opts.reportEvery, "report-every", 30, "Print agent states every N ticks (0 prints only the final state)")
	flag.BoolVar(&opts.realTime, "realtime", false, "Tick at the scenario's rate instead of as fast as possible")
	flag.Parse()

	log := logging.NewFromEnv()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := simulate(ctx, opts, os.Stdout, log); err != nil {
		log.Error(ctx, "simulation failed", logging.Err(err))
		os.Exit(1)
	}
}

// simulate runs the scenario for opts.duration of simulated time, printing
// periodic state reports to out.
func simulate(ctx context.Context, opts options, out io.Writer, log logging.Logger) error {
	sc, err := tuning.LoadScenario(opts.scenario)
	if err != nil {
		return err
	}

	var hostOpts []state.HostOption
	if opts.journalDir != "" {
		j, err := journal.Open(opts.journalDir)
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

	mode := timectrl.Accelerated
	if opts.realTime {
		mode = timectrl.RealTime
	}
	tc := timectrl.NewFixedRate(time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC), sc.Tuning.TickRateHz, mode)
	script := state.NewScript(host, sc.Commands, log)

	tc.AddListener(func(uint64, time.Time) {
		script.Apply(ctx)
		snap := host.Step(ctx)
		if opts.reportEvery > 0 && snap.Tick%uint64(opts.reportEvery) == 0 {
			report(out, snap)
		}
	})

	fmt.Fprintf(out, "Running scenario %q: %d agents, %d commands, duration=%s, mode=%v\n",
		sc.Name, len(sc.Agents), len(sc.Commands), opts.duration, mode)
	<-tc.Start(ctx, opts.duration)

	final := host.Snapshot()
	fmt.Fprintln(out, "Final state:")
	report(out, final)
	return nil
}

func report(out io.Writer, snap state.Snapshot) {
	counts := snap.CountByState()
	fmt.Fprintf(out, "[tick %5d] flocks=%d moving=%d settling=%d arrived=%d markers=%d\n",
		snap.Tick, len(snap.Flocks), counts["MOVING"], counts["SETTLING"], counts["ARRIVED"], len(snap.Markers))
	for _, a := range snap.Agents {
		fmt.Fprintf(out, "  %-10s %-8s pos=(%7.2f, %6.2f, %7.2f) vel=(%6.2f, %6.2f) flock=%d\n",
			a.ID, a.State, a.Position.X(), a.Position.Y(), a.Position.Z(), a.Velocity.X(), a.Velocity.Y(), a.FlockID)
	}
}
