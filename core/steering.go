package core

import (
	"fmt"

	"github.com/signalsfoundry/flock-simulator/model"
)

// SteeringEngine computes the per-agent steering forces. It only reads the
// movement store; the tick integrator owns all writes.
type SteeringEngine struct {
	p      Params
	states StateReader
}

// NewSteeringEngine binds the behaviours to a parameter set and a state source.
func NewSteeringEngine(p Params, states StateReader) *SteeringEngine {
	return &SteeringEngine{p: p, states: states}
}

func (e *SteeringEngine) velocity(a *model.Agent) model.Vec2 {
	return mustGet(e.states, a.ID).Velocity
}

// desiredVelocity points from the agent to the flock target at full per-tick speed.
func (e *SteeringEngine) desiredVelocity(a *model.Agent, f *Flock, tickRate int) (model.Vec2, float64) {
	toTarget := f.target.Sub(a.GroundPosition())
	dist := toTarget.Len()
	return model.Normal(toTarget).Mul(a.MaxSpeed / float64(tickRate)), dist
}

// Seek steers the agent straight at the flock target.
func (e *SteeringEngine) Seek(a *model.Agent, f *Flock, tickRate int) model.Vec2 {
	desired, _ := e.desiredVelocity(a, f, tickRate)
	return desired.Sub(e.velocity(a))
}

// Arrive is Seek with a linear slow-down inside the slowing radius.
func (e *SteeringEngine) Arrive(a *model.Agent, f *Flock, tickRate int) model.Vec2 {
	desired, dist := e.desiredVelocity(a, f, tickRate)
	if dist < e.p.SlowingRadius {
		desired = desired.Mul(dist / e.p.SlowingRadius)
	}
	return model.Truncate(desired.Sub(e.velocity(a)), e.p.MaxForce)
}

// Alignment steers towards the mean velocity of moving neighbours.
func (e *SteeringEngine) Alignment(a *model.Agent, f *Flock, tickRate int) model.Vec2 {
	var sum model.Vec2
	count := 0
	for _, n := range NeighboursWithin(a, f, e.p.AlignRadius) {
		v := e.velocity(n)
		if v.Len() < e.p.Epsilon {
			continue
		}
		sum = sum.Add(v)
		count++
	}
	if count == 0 {
		return model.Vec2{}
	}
	return model.Truncate(sum.Mul(1/float64(count)).Sub(e.velocity(a)), e.p.MaxForce)
}

// Cohesion steers towards the centroid of nearby flockmates.
func (e *SteeringEngine) Cohesion(a *model.Agent, f *Flock, tickRate int) model.Vec2 {
	neighbours := NeighboursWithin(a, f, e.p.CohesionRadius)
	if len(neighbours) == 0 {
		return model.Vec2{}
	}
	var com model.Vec2
	for _, n := range neighbours {
		com = com.Add(n.GroundPosition())
	}
	com = com.Mul(1 / float64(len(neighbours)))
	return model.Truncate(com.Sub(a.GroundPosition()), e.p.MaxForce)
}

// Separation pushes the agent away from flockmates within its selection
// radius plus bufferDist. Closer neighbours push harder, falling off
// linearly to nothing at the radius.
func (e *SteeringEngine) Separation(a *model.Agent, f *Flock, tickRate int, bufferDist float64) model.Vec2 {
	radius := a.SelectionRadius + bufferDist
	pos := a.GroundPosition()

	var sum model.Vec2
	neighbours := NeighboursWithin(a, f, radius)
	if len(neighbours) == 0 {
		return model.Vec2{}
	}
	for _, n := range neighbours {
		diff := n.GroundPosition().Sub(pos)
		frac := 1 - diff.Len()/radius
		sum = sum.Add(diff.Mul(frac))
	}
	return model.Truncate(sum.Mul(-1/float64(len(neighbours))), e.p.MaxForce)
}

// Total combines the behaviours according to the agent's arrival state and
// caps the result at MaxForce.
func (e *SteeringEngine) Total(a *model.Agent, f *Flock, tickRate int) model.Vec2 {
	ms := mustGet(e.states, a.ID)

	var force model.Vec2
	switch ms.State {
	case StateMoving:
		separation := e.Separation(a, f, tickRate, e.p.MoveSeparationBuffer)
		force = force.
			Add(separation.Mul(e.p.MoveSeparationScale)).
			Add(e.Arrive(a, f, tickRate).Mul(e.p.MoveArriveScale)).
			Add(e.Cohesion(a, f, tickRate).Mul(e.p.MoveCohesionScale)).
			Add(e.Alignment(a, f, tickRate).Mul(e.p.MoveAlignScale))
	case StateSettling:
		separation := e.Separation(a, f, tickRate, e.p.SettleSeparationBuffer)
		force = separation.Mul(e.p.SettleSeparationScale)
	case StateArrived:
	default:
		panic(fmt.Sprintf("core: agent %q in unknown arrival state %v", a.ID, ms.State))
	}
	return model.Truncate(force, e.p.MaxForce)
}
