package main

import (
	"testing"

	"github.com/signalsfoundry/flock-simulator/internal/logging"
	"github.com/signalsfoundry/flock-simulator/internal/sim/state"
	"github.com/signalsfoundry/flock-simulator/internal/tuning"
)

func newDemoHost(t *testing.T, sc *tuning.Scenario) *state.Host {
	t.Helper()
	host, err := state.NewHostFromScenario(sc, logging.Noop())
	if err != nil {
		t.Fatalf("NewHostFromScenario: %v", err)
	}
	t.Cleanup(host.Close)
	return host
}
