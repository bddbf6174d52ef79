package core

import (
	"testing"

	"github.com/signalsfoundry/flock-simulator/model"
)

type motionRecord struct {
	ev model.MotionEvent
	id string
}

type recordingNotifier struct {
	events []motionRecord
}

func (r *recordingNotifier) Emit(ev model.MotionEvent, id string) {
	r.events = append(r.events, motionRecord{ev: ev, id: id})
}

func (r *recordingNotifier) count(ev model.MotionEvent, id string) int {
	n := 0
	for _, e := range r.events {
		if e.ev == ev && e.id == id {
			n++
		}
	}
	return n
}

func testMap() *FlatMap {
	return &FlatMap{
		Bounds: Bounds{Min: model.Vec2{-1000, -1000}, Max: model.Vec2{1000, 1000}},
		Height: 2,
	}
}

func newTestSim(t *testing.T, opts ...Option) (*Simulation, *recordingNotifier) {
	t.Helper()
	rec := &recordingNotifier{}
	sim, err := NewSimulation(testMap(), rec, opts...)
	if err != nil {
		t.Fatalf("NewSimulation: %v", err)
	}
	return sim, rec
}

func unit(id string, x, z float64) *model.Agent {
	return &model.Agent{
		ID:              id,
		Position:        model.Vec3{x, 0, z},
		Rotation:        model.IdentityQuat,
		MaxSpeed:        30,
		SelectionRadius: 1,
	}
}

func mustState(t *testing.T, sim *Simulation, id string) MovementState {
	t.Helper()
	ms, ok := sim.MovementState(id)
	if !ok {
		t.Fatalf("no movement state for %q", id)
	}
	return ms
}

func assertNoEmptyFlocks(t *testing.T, sim *Simulation) {
	t.Helper()
	for _, f := range sim.Flocks() {
		if f.Len() == 0 {
			t.Fatalf("tick %d: flock %d is empty", sim.Tick(), f.ID())
		}
	}
}
