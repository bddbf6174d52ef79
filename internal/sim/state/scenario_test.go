package state

import (
	"context"
	"testing"

	"github.com/signalsfoundry/flock-simulator/internal/logging"
	"github.com/signalsfoundry/flock-simulator/internal/tuning"
)

func TestNewHostFromScenario(t *testing.T) {
	sc, err := tuning.ParseScenario([]byte(`
name: pair
tuning:
  tick_rate_hz: 20
map:
  min: [-50, -50]
  max: [50, 50]
  height: 2
agents:
  - id: a
    position: [0, 0, 0]
    max_speed: 20
  - id: b
    position: [80, 0, 3]
    max_speed: 20
`))
	if err != nil {
		t.Fatalf("ParseScenario: %v", err)
	}

	h, err := NewHostFromScenario(sc, logging.Noop())
	if err != nil {
		t.Fatalf("NewHostFromScenario: %v", err)
	}
	defer h.Close()

	if got := h.Params().TickRate; got != 20 {
		t.Fatalf("tick rate = %d, want 20", got)
	}
	b, err := h.AgentState("b")
	if err != nil {
		t.Fatalf("AgentState: %v", err)
	}
	if b.Position.X() != 50 || b.Position.Y() != 2 || b.Position.Z() != 3 {
		t.Fatalf("b position = %+v, want clamped to (50, 2, 3)", b.Position)
	}
	bounds, ok := h.MapBounds()
	if !ok || bounds.Max.X() != 50 {
		t.Fatalf("MapBounds = %+v, %v", bounds, ok)
	}

	if _, err := h.IssueMove(context.Background(), []string{"a", "b"}, b.Position); err != nil {
		t.Fatalf("IssueMove: %v", err)
	}
	if len(h.Flocks()) != 1 {
		t.Fatalf("flocks = %d, want 1", len(h.Flocks()))
	}
}

func TestNewHostFromScenarioNil(t *testing.T) {
	if _, err := NewHostFromScenario(nil, logging.Noop()); err == nil {
		t.Fatalf("expected error for nil scenario")
	}
}

func TestScriptIssuesCommandsAtTheirTick(t *testing.T) {
	sc, err := tuning.ParseScenario([]byte(`
agents:
  - id: a
    position: [0, 0, 0]
    max_speed: 30
  - id: b
    position: [3, 0, 0]
    max_speed: 30
commands:
  - tick: 2
    agents: [b]
    target: [-40, 0, 0]
  - tick: 0
    agents: [a]
    target: [40, 0, 0]
`))
	if err != nil {
		t.Fatalf("ParseScenario: %v", err)
	}
	h, err := NewHostFromScenario(sc, logging.Noop())
	if err != nil {
		t.Fatalf("NewHostFromScenario: %v", err)
	}
	defer h.Close()

	ctx := context.Background()
	script := NewScript(h, sc.Commands, logging.Noop())
	if n := script.Apply(ctx); n != 1 {
		t.Fatalf("issued at tick 0 = %d, want 1", n)
	}
	if len(h.Flocks()) != 1 {
		t.Fatalf("flocks = %d, want 1", len(h.Flocks()))
	}

	h.Step(ctx)
	if n := script.Apply(ctx); n != 0 {
		t.Fatalf("issued at tick 1 = %d, want 0", n)
	}
	h.Step(ctx)
	if n := script.Apply(ctx); n != 1 {
		t.Fatalf("issued at tick 2 = %d, want 1", n)
	}
	if !script.Done() {
		t.Fatalf("script should be done")
	}
	if len(h.Flocks()) != 2 {
		t.Fatalf("flocks = %d, want 2", len(h.Flocks()))
	}
}
