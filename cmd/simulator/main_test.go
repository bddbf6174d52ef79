package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/signalsfoundry/flock-simulator/internal/journal"
	"github.com/signalsfoundry/flock-simulator/internal/logging"
)

const testScenario = `
name: line-up
tuning:
  tick_rate_hz: 30
map:
  min: [-100, -100]
  max: [100, 100]
agents:
  - {id: a, position: [0, 0, 0], max_speed: 30}
  - {id: b, position: [4, 0, 0], max_speed: 30}
  - {id: c, position: [0, 0, 4], max_speed: 30}
commands:
  - tick: 0
    agents: [a, b, c]
    target: [30, 0, 0]
`

func writeScenario(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	if err := os.WriteFile(path, []byte(testScenario), 0o644); err != nil {
		t.Fatalf("write scenario: %v", err)
	}
	return path
}

// TestSimulateSettlesGroup runs a short accelerated scenario end to end.
func TestSimulateSettlesGroup(t *testing.T) {
	journalDir := t.TempDir()
	opts := options{
		scenario:    writeScenario(t),
		duration:    10 * time.Second,
		journalDir:  journalDir,
		reportEvery: 0,
	}

	var out strings.Builder
	if err := simulate(context.Background(), opts, &out, logging.Noop()); err != nil {
		t.Fatalf("simulate: %v", err)
	}

	text := out.String()
	if !strings.Contains(text, `Running scenario "line-up"`) {
		t.Fatalf("missing header in output:\n%s", text)
	}
	_, final, ok := strings.Cut(text, "Final state:")
	if !ok {
		t.Fatalf("missing final report in output:\n%s", text)
	}
	if !strings.Contains(final, "flocks=0 moving=0 settling=0 arrived=3") {
		t.Fatalf("expected the group to settle and disband, final report:\n%s", final)
	}

	idx, err := journal.OpenSQLite(filepath.Join(journalDir, "index.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer idx.Close()
	events, err := idx.MotionEvents(context.Background(), "a")
	if err != nil {
		t.Fatalf("MotionEvents: %v", err)
	}
	if len(events) < 2 || events[0].Event != "motion_start" {
		t.Fatalf("events for a = %+v, want motion_start followed by motion_end", events)
	}

	files, err := journal.TraceFiles(filepath.Join(journalDir, "trace"))
	if err != nil {
		t.Fatalf("TraceFiles: %v", err)
	}
	if len(files) == 0 {
		t.Fatalf("expected a tick trace file")
	}
}

func TestSimulateMissingScenario(t *testing.T) {
	opts := options{scenario: filepath.Join(t.TempDir(), "nope.yaml"), duration: time.Second}
	var out strings.Builder
	if err := simulate(context.Background(), opts, &out, logging.Noop()); err == nil {
		t.Fatalf("expected error for missing scenario")
	}
}

func TestBundledScenarioRuns(t *testing.T) {
	opts := options{
		scenario:    filepath.Join("..", "..", "configs", "squads.yaml"),
		duration:    2 * time.Second,
		reportEvery: 30,
	}
	var out strings.Builder
	if err := simulate(context.Background(), opts, &out, logging.Noop()); err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if !strings.Contains(out.String(), "[tick    30]") {
		t.Fatalf("expected a periodic report at tick 30, output:\n%s", out.String())
	}
}
