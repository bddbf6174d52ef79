package core

import (
	"errors"
	"testing"

	"github.com/signalsfoundry/flock-simulator/model"
)

func TestIssueMoveCommandSkipsIneligibleAgents(t *testing.T) {
	sim, rec := newTestSim(t)

	mobile := unit("mobile", 0, 0)
	building := unit("building", 5, 0)
	building.Stationary = true
	crate := unit("crate", 10, 0)
	crate.MaxSpeed = 0

	if !sim.IssueMoveCommand([]*model.Agent{mobile, building, crate}, model.Vec2{50, 0}) {
		t.Fatalf("IssueMoveCommand returned false")
	}

	flocks := sim.Flocks()
	if len(flocks) != 1 {
		t.Fatalf("live flocks = %d, want 1", len(flocks))
	}
	if ids := flocks[0].MemberIDs(); len(ids) != 1 || ids[0] != "mobile" {
		t.Fatalf("members = %v, want [mobile]", ids)
	}
	for _, id := range []string{"building", "crate"} {
		if sim.FlockOf(id) != nil {
			t.Fatalf("%s should never join a flock", id)
		}
		if _, ok := sim.MovementState(id); ok {
			t.Fatalf("%s should have no movement state", id)
		}
	}
	if rec.count(model.MotionStart, "mobile") != 1 || len(rec.events) != 1 {
		t.Fatalf("events = %+v, want one motion start for mobile", rec.events)
	}
}

func TestIssueMoveCommandRegroupsAgents(t *testing.T) {
	sim, _ := newTestSim(t)
	a, b, c := unit("a", 0, 0), unit("b", 3, 0), unit("c", 6, 0)

	sim.IssueMoveCommand([]*model.Agent{a, b}, model.Vec2{100, 0})
	sim.IssueMoveCommand([]*model.Agent{c}, model.Vec2{-100, 0})
	first := sim.FlockOf("a")

	// Moving a and b out empties their flock, which must be destroyed.
	sim.IssueMoveCommand([]*model.Agent{a, b}, model.Vec2{0, 100})

	if len(sim.Flocks()) != 2 {
		t.Fatalf("live flocks = %d, want 2", len(sim.Flocks()))
	}
	for _, f := range sim.Flocks() {
		if f == first {
			t.Fatalf("emptied flock %d still registered", first.ID())
		}
	}

	// Partial regroup leaves the remainder in place.
	sim.IssueMoveCommand([]*model.Agent{a}, model.Vec2{1, 1})
	fb := sim.FlockOf("b")
	if fb == nil || fb.Len() != 1 || fb.Contains("a") {
		t.Fatalf("b's flock should keep only b")
	}
	if fa := sim.FlockOf("a"); fa == nil || fa == fb || fa.Target() != (model.Vec2{1, 1}) {
		t.Fatalf("a should lead its own flock to (1,1)")
	}
	assertMembershipUnique(t, sim, "a", "b", "c")
}

func TestIssueMoveCommandDuplicateSelection(t *testing.T) {
	sim, rec := newTestSim(t)
	a := unit("a", 0, 0)

	sim.IssueMoveCommand([]*model.Agent{a, a}, model.Vec2{10, 0})

	if f := sim.FlockOf("a"); f == nil || f.Len() != 1 {
		t.Fatalf("duplicate selection should admit a once")
	}
	if rec.count(model.MotionStart, "a") != 1 {
		t.Fatalf("motion start emitted %d times, want 1", rec.count(model.MotionStart, "a"))
	}
}

func TestIssueMoveCommandPreservesVelocityMidTransit(t *testing.T) {
	sim, rec := newTestSim(t)
	a := unit("a", 0, 0)

	sim.IssueMoveCommand([]*model.Agent{a}, model.Vec2{100, 0})
	sim.Run(5)

	before := mustState(t, sim, "a")
	if before.Velocity.Len() == 0 {
		t.Fatalf("agent should be moving after 5 ticks")
	}

	sim.IssueMoveCommand([]*model.Agent{a}, model.Vec2{0, 100})

	after := mustState(t, sim, "a")
	if after.Velocity != before.Velocity {
		t.Fatalf("velocity = %+v, want unchanged %+v", after.Velocity, before.Velocity)
	}
	if after.State != StateMoving {
		t.Fatalf("state = %v, want MOVING", after.State)
	}
	if got := rec.count(model.MotionStart, "a"); got != 1 {
		t.Fatalf("motion start count = %d, want 1 (agent never stopped)", got)
	}
	if len(sim.Flocks()) != 1 {
		t.Fatalf("live flocks = %d, want 1", len(sim.Flocks()))
	}
}

func TestIssueMoveCommandRestartsArrivedAgent(t *testing.T) {
	sim, rec := newTestSim(t)
	a := unit("a", 0, 0)

	sim.IssueMoveCommand([]*model.Agent{a}, model.Vec2{1, 0})
	sim.Run(2)
	if st := mustState(t, sim, "a").State; st != StateArrived {
		t.Fatalf("state = %v, want ARRIVED", st)
	}

	sim.IssueMoveCommand([]*model.Agent{a}, model.Vec2{50, 0})

	if st := mustState(t, sim, "a").State; st != StateMoving {
		t.Fatalf("state = %v, want MOVING", st)
	}
	if got := rec.count(model.MotionStart, "a"); got != 2 {
		t.Fatalf("motion start count = %d, want 2", got)
	}
}

func TestIssueMoveCommandAllIneligibleRegistersEmptyFlock(t *testing.T) {
	sim, rec := newTestSim(t)
	wall := unit("wall", 0, 0)
	wall.Stationary = true

	if !sim.IssueMoveCommand([]*model.Agent{wall}, model.Vec2{10, 0}) {
		t.Fatalf("IssueMoveCommand returned false")
	}
	if len(sim.Flocks()) != 1 || sim.Flocks()[0].Len() != 0 {
		t.Fatalf("expected one empty flock right after the command")
	}

	sim.OnSimulationTick()
	if len(sim.Flocks()) != 0 {
		t.Fatalf("empty flock should be disbanded on the next tick")
	}
	if len(rec.events) != 0 {
		t.Fatalf("no notifications expected, got %+v", rec.events)
	}
}

func TestIssueMoveCommandAllocationFailure(t *testing.T) {
	sim, _ := newTestSim(t, WithMaxFlocks(1))
	a, b := unit("a", 0, 0), unit("b", 20, 0)

	if !sim.IssueMoveCommand([]*model.Agent{a}, model.Vec2{100, 0}) {
		t.Fatalf("first command should succeed")
	}
	if sim.IssueMoveCommand([]*model.Agent{b}, model.Vec2{100, 0}) {
		t.Fatalf("second command should fail with the registry full")
	}
	if _, ok := sim.MovementState("b"); ok {
		t.Fatalf("failed command must not create movement state")
	}

	// Regrouping a frees its old flock first, so this one fits.
	if !sim.IssueMoveCommand([]*model.Agent{a}, model.Vec2{-100, 0}) {
		t.Fatalf("regroup should succeed after cleanup frees a slot")
	}

	_, err := sim.CommandMove([]*model.Agent{b}, model.Vec3{5, 0, 0})
	if !errors.Is(err, ErrFlockAlloc) {
		t.Fatalf("CommandMove error = %v, want ErrFlockAlloc", err)
	}
}

func TestCommandMovePlacesMarker(t *testing.T) {
	sim, _ := newTestSim(t)
	a := unit("a", 0, 0)

	if f, err := sim.CommandMove(nil, model.Vec3{1, 0, 0}); f != nil || err != nil {
		t.Fatalf("empty selection should be ignored, got %v, %v", f, err)
	}
	if len(sim.Markers()) != 0 {
		t.Fatalf("empty selection should not place a marker")
	}

	f, err := sim.CommandMove([]*model.Agent{a}, model.Vec3{40, 3, -7})
	if err != nil {
		t.Fatalf("CommandMove: %v", err)
	}
	if f.Target() != (model.Vec2{40, -7}) {
		t.Fatalf("target = %+v, want ground projection of the click", f.Target())
	}
	markers := sim.Markers()
	if len(markers) != 1 || markers[0].Position != (model.Vec3{40, 3, -7}) {
		t.Fatalf("markers = %+v", markers)
	}

	sim.Run(int(sim.Params().MarkerLifetimeTicks) - 1)
	if len(sim.Markers()) != 1 {
		t.Fatalf("marker expired early")
	}
	sim.OnSimulationTick()
	if len(sim.Markers()) != 0 {
		t.Fatalf("marker should expire after its lifetime")
	}
}

func TestFlockRemoveKeepsOrder(t *testing.T) {
	f := newFlock(1, model.Vec2{})
	for _, id := range []string{"a", "b", "c", "d"} {
		f.add(unit(id, 0, 0))
	}
	if !f.remove("b") || f.remove("b") {
		t.Fatalf("remove should succeed once")
	}
	ids := f.MemberIDs()
	want := []string{"a", "c", "d"}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("members = %v, want %v", ids, want)
		}
	}
	if !f.Contains("d") || f.index["d"] != 2 {
		t.Fatalf("index not rebuilt after removal: %v", f.index)
	}
}

func assertMembershipUnique(t *testing.T, sim *Simulation, ids ...string) {
	t.Helper()
	for _, id := range ids {
		n := 0
		for _, f := range sim.Flocks() {
			if f.Contains(id) {
				n++
			}
		}
		if n > 1 {
			t.Fatalf("%s belongs to %d flocks", id, n)
		}
	}
}
