package core

import (
	"math"
	"math/rand"
	"testing"

	"github.com/signalsfoundry/flock-simulator/model"
)

func TestSingleAgentArrivesMonotonically(t *testing.T) {
	sim, rec := newTestSim(t)
	a := unit("a", 0, 0)
	target := model.Vec2{100, 0}

	if !sim.IssueMoveCommand([]*model.Agent{a}, target) {
		t.Fatalf("IssueMoveCommand returned false")
	}

	prev := model.Distance(a.GroundPosition(), target)
	arrivedAt := 0
	for i := 1; i <= 400; i++ {
		sim.OnSimulationTick()
		ms := mustState(t, sim, "a")
		dist := model.Distance(a.GroundPosition(), target)

		if ms.State == StateSettling {
			t.Fatalf("tick %d: lone agent entered SETTLING", i)
		}
		if dist >= prev {
			t.Fatalf("tick %d: distance %v did not decrease from %v", i, dist, prev)
		}
		prev = dist

		if ms.State == StateArrived {
			arrivedAt = i
			break
		}
	}
	if arrivedAt == 0 {
		t.Fatalf("agent never arrived, distance left %v", prev)
	}

	ms := mustState(t, sim, "a")
	if prev >= sim.Params().ArriveThreshold {
		t.Fatalf("final distance %v, want < %v", prev, sim.Params().ArriveThreshold)
	}
	if ms.Velocity != (model.Vec2{}) {
		t.Fatalf("final velocity = %+v, want zero", ms.Velocity)
	}
	if a.Position.Y() != 2 {
		t.Fatalf("height = %v, want terrain height 2", a.Position.Y())
	}
	if got := rec.count(model.MotionStart, "a"); got != 1 {
		t.Fatalf("motion start count = %d, want 1", got)
	}
	if got := rec.count(model.MotionEnd, "a"); got != 1 {
		t.Fatalf("motion end count = %d, want 1", got)
	}

	// Disband takes effect on the following tick.
	if len(sim.Flocks()) != 1 {
		t.Fatalf("flock should still be live on the arrival tick")
	}
	sim.OnSimulationTick()
	if len(sim.Flocks()) != 0 {
		t.Fatalf("fully arrived flock should be disbanded")
	}
	sim.OnSimulationTick()
	if len(sim.Flocks()) != 0 {
		t.Fatalf("disbanded flock came back")
	}
}

func TestVelocityCappedAtMaxTickSpeed(t *testing.T) {
	sim, _ := newTestSim(t)
	a := unit("a", 0, 0)
	a.MaxSpeed = 15

	sim.IssueMoveCommand([]*model.Agent{a}, model.Vec2{500, 0})
	sim.Run(60)

	v := mustState(t, sim, "a").Velocity.Len()
	if v > 0.5+tol {
		t.Fatalf("|v| = %v exceeds max tick speed 0.5", v)
	}
	if v < 0.49 {
		t.Fatalf("|v| = %v, expected agent near cruise speed", v)
	}
}

func TestOrientationFollowsVelocity(t *testing.T) {
	sim, _ := newTestSim(t)
	a := unit("a", 0, 0)

	sim.IssueMoveCommand([]*model.Agent{a}, model.Vec2{100, 0})
	sim.OnSimulationTick()

	if yaw := model.Yaw(a.Rotation); math.Abs(yaw-(-math.Pi/2)) > 1e-9 {
		t.Fatalf("yaw = %v, want -pi/2 for travel along +X", yaw)
	}

	b := unit("b", 0, 0)
	sim.IssueMoveCommand([]*model.Agent{b}, model.Vec2{0, 100})
	sim.OnSimulationTick()
	if yaw := model.Yaw(b.Rotation); math.Abs(yaw) > 1e-9 {
		t.Fatalf("yaw = %v, want 0 for travel along +Z", yaw)
	}
}

func TestOrientationUnchangedWhenStill(t *testing.T) {
	sim, _ := newTestSim(t)
	a := unit("a", 3, 3)
	a.Rotation = model.YawQuat(1.25)

	// Target is the current position: no steering, no rotation change.
	sim.IssueMoveCommand([]*model.Agent{a}, model.Vec2{3, 3})
	sim.OnSimulationTick()

	if a.Rotation != model.YawQuat(1.25) {
		t.Fatalf("rotation changed for a stationary agent: %+v", a.Rotation)
	}
	if st := mustState(t, sim, "a").State; st != StateArrived {
		t.Fatalf("state = %v, want ARRIVED", st)
	}
}

func TestPositionClampedToMapAndSampledHeight(t *testing.T) {
	hf, err := NewHeightFieldMap(
		Bounds{Min: model.Vec2{}, Max: model.Vec2{10, 10}},
		2, 2, []float64{0, 10, 0, 10},
	)
	if err != nil {
		t.Fatalf("NewHeightFieldMap: %v", err)
	}
	sim, err := NewSimulation(hf, nil)
	if err != nil {
		t.Fatalf("NewSimulation: %v", err)
	}
	a := unit("a", 9.8, 5)

	sim.IssueMoveCommand([]*model.Agent{a}, model.Vec2{50, 5})
	sim.Run(10)

	if a.Position.X() != 10 || a.Position.Z() != 5 {
		t.Fatalf("position = %+v, want clamped to x=10", a.Position)
	}
	if math.Abs(a.Position.Y()-10) > tol {
		t.Fatalf("height = %v, want 10 at the east edge", a.Position.Y())
	}
}

func TestSeparationPreventsCollapse(t *testing.T) {
	sim, _ := newTestSim(t)
	a, b := unit("a", 0, 0), unit("b", 3, 0)

	sim.IssueMoveCommand([]*model.Agent{a, b}, model.Vec2{100, 0})
	for i := 1; i <= 30; i++ {
		sim.OnSimulationTick()
		d := model.Distance(a.GroundPosition(), b.GroundPosition())
		if d <= a.SelectionRadius+b.SelectionRadius {
			t.Fatalf("tick %d: agents overlap at distance %v", i, d)
		}
	}
}

func TestSettlingOnlyNextToStoppedFlockmates(t *testing.T) {
	sim, _ := newTestSim(t)
	a, b := unit("a", 0, 0), unit("b", 40, 0)
	sim.IssueMoveCommand([]*model.Agent{a, b}, model.Vec2{})

	flock := sim.FlockOf("a")
	prev := map[string]ArrivalState{"a": StateMoving, "b": StateMoving}
	sawSettling := false

	for i := 1; i <= 200 && len(sim.Flocks()) > 0; i++ {
		sim.OnSimulationTick()
		for _, ag := range []*model.Agent{a, b} {
			st := mustState(t, sim, ag.ID).State
			if st == StateSettling && prev[ag.ID] != StateSettling {
				sawSettling = true
				ok := false
				for _, adj := range AdjacentMembers(ag, flock, sim.Params().AdjacencySepDist) {
					if s := mustState(t, sim, adj.ID).State; s == StateSettling || s == StateArrived {
						ok = true
					}
				}
				if !ok {
					t.Fatalf("tick %d: %s entered SETTLING with no stopped neighbour", i, ag.ID)
				}
			}
			prev[ag.ID] = st
		}
	}
	if !sawSettling {
		t.Fatalf("b should settle next to the arrived agent")
	}
	if len(sim.Flocks()) != 0 {
		t.Fatalf("flock should disband once both agents stop")
	}
	if st := mustState(t, sim, "b").State; st != StateArrived {
		t.Fatalf("b ended in %v, want ARRIVED", st)
	}
	if d := model.Distance(b.GroundPosition(), model.Vec2{}); d < sim.Params().ArriveThreshold {
		t.Fatalf("b should stop short of the occupied target, got distance %v", d)
	}
}

func TestArrivalOverwrittenBySettlingKeepsNotification(t *testing.T) {
	sim, rec := newTestSim(t)
	a, b := unit("a", 0, 0), unit("b", 3, 0)
	sim.IssueMoveCommand([]*model.Agent{a, b}, model.Vec2{})

	sim.OnSimulationTick()

	if st := mustState(t, sim, "a").State; st != StateArrived {
		t.Fatalf("a state = %v, want ARRIVED", st)
	}
	bs := mustState(t, sim, "b")
	if bs.State != StateSettling {
		t.Fatalf("b state = %v, want SETTLING after arriving next to a", bs.State)
	}
	if bs.Velocity != (model.Vec2{}) {
		t.Fatalf("b velocity = %+v, want zero from the arrival", bs.Velocity)
	}
	if rec.count(model.MotionEnd, "b") != 1 {
		t.Fatalf("b motion end count = %d, want 1", rec.count(model.MotionEnd, "b"))
	}

	// The settling agent stops again and reports a second motion end.
	sim.OnSimulationTick()
	if st := mustState(t, sim, "b").State; st != StateArrived {
		t.Fatalf("b state = %v, want ARRIVED", st)
	}
	if rec.count(model.MotionEnd, "b") != 2 {
		t.Fatalf("b motion end count = %d, want 2", rec.count(model.MotionEnd, "b"))
	}

	sim.OnSimulationTick()
	if len(sim.Flocks()) != 0 {
		t.Fatalf("flock should be disbanded")
	}
}

func TestNoEmptyFlocksAfterTicks(t *testing.T) {
	sim, _ := newTestSim(t)
	rng := rand.New(rand.NewSource(7))

	agents := make([]*model.Agent, 12)
	for i := range agents {
		agents[i] = unit(string(rune('a'+i)), rng.Float64()*100, rng.Float64()*100)
	}
	agents[3].Stationary = true

	for i := 0; i < 300; i++ {
		if i%25 == 0 {
			var sel []*model.Agent
			for _, a := range agents {
				if rng.Intn(3) == 0 {
					sel = append(sel, a)
				}
			}
			sim.IssueMoveCommand(sel, model.Vec2{rng.Float64() * 200, rng.Float64() * 200})
			for _, a := range sel {
				if !a.CanFlock() {
					continue
				}
				if st := mustState(t, sim, a.ID).State; st != StateMoving {
					t.Fatalf("%s state after command = %v, want MOVING", a.ID, st)
				}
			}
			assertMembershipUnique(t, sim, "a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k", "l")
		}
		sim.OnSimulationTick()
		assertNoEmptyFlocks(t, sim)
		if sim.FlockOf("d") != nil {
			t.Fatalf("stationary agent joined a flock")
		}
	}
}

func TestTicksAreDeterministic(t *testing.T) {
	build := func() (*Simulation, []*model.Agent) {
		sim, _ := newTestSim(t)
		var agents []*model.Agent
		for i := 0; i < 9; i++ {
			agents = append(agents, unit(string(rune('a'+i)), float64(i%3)*4, float64(i/3)*4))
		}
		sim.IssueMoveCommand(agents, model.Vec2{60, 30})
		return sim, agents
	}

	s1, a1 := build()
	s2, a2 := build()
	s1.Run(150)
	s2.Run(150)

	for i := range a1 {
		if a1[i].Position != a2[i].Position {
			t.Fatalf("agent %s diverged: %+v vs %+v", a1[i].ID, a1[i].Position, a2[i].Position)
		}
		m1, _ := s1.MovementState(a1[i].ID)
		m2, _ := s2.MovementState(a2[i].ID)
		if m1 != m2 {
			t.Fatalf("agent %s state diverged: %+v vs %+v", a1[i].ID, m1, m2)
		}
	}
}

func TestTickListenersAndShutdown(t *testing.T) {
	sim, _ := newTestSim(t)
	var seen []uint64
	sim.RegisterTickListener(func(tick uint64) { seen = append(seen, tick) })

	sim.IssueMoveCommand([]*model.Agent{unit("a", 0, 0)}, model.Vec2{10, 0})
	sim.Run(3)
	if len(seen) != 3 || seen[2] != 3 || sim.Tick() != 3 {
		t.Fatalf("listener saw %v, tick=%d", seen, sim.Tick())
	}

	sim.Shutdown()
	if len(sim.Flocks()) != 0 || len(sim.TrackedAgents()) != 0 {
		t.Fatalf("Shutdown should drop flocks and states")
	}
}

func TestNewSimulationRequiresMap(t *testing.T) {
	if _, err := NewSimulation(nil, nil); err != ErrNoMapService {
		t.Fatalf("NewSimulation(nil) error = %v, want ErrNoMapService", err)
	}
}
