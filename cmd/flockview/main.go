package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/gdamore/tcell/v2"
	"github.com/signalsfoundry/flock-simulator/internal/logging"
	"github.com/signalsfoundry/flock-simulator/internal/tuning"
)

func main() {
	scenarioPath := flag.String("scenario", "configs/squads.yaml", "Scenario to run in-process")
	serverAddr := flag.String("server", "", "Address of a flock server to drive instead of a local scenario")
	flag.Parse()

	// The terminal belongs to the viewer; logs would corrupt it.
	log := logging.Noop()

	b, err := openBackend(*scenarioPath, *serverAddr, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start: %v\n", err)
		os.Exit(1)
	}
	defer b.Close()

	screen, err := tcell.NewScreen()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize terminal: %v\n", err)
		os.Exit(1)
	}
	if err := screen.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize terminal: %v\n", err)
		os.Exit(1)
	}
	defer screen.Fini()
	screen.EnableMouse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	newViewer(screen, b).run(ctx)
}

func openBackend(scenarioPath, serverAddr string, log logging.Logger) (backend, error) {
	if serverAddr != "" {
		return newRemoteBackend(serverAddr)
	}
	sc, err := tuning.LoadScenario(scenarioPath)
	if err != nil {
		return nil, err
	}
	return newLocalBackend(sc, log)
}
