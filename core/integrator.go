package core

import (
	"fmt"

	"github.com/signalsfoundry/flock-simulator/internal/logging"
	"github.com/signalsfoundry/flock-simulator/model"
)

// OnSimulationTick advances every live flock by one fixed tick.
//
// Flocks whose members have all arrived are disbanded before any member is
// integrated. Members are integrated one at a time in flock order and each
// write is visible to the members processed after it within the same tick.
func (s *Simulation) OnSimulationTick() {
	s.tick++
	tickRate := s.params.TickRate

	// Walk backwards so disbanding a flock leaves the unvisited indices intact.
	for i := s.flocks.Len() - 1; i >= 0; i-- {
		flock := s.flocks.flocks[i]

		if s.allArrived(flock) {
			s.flocks.removeAt(i)
			s.logDebug("flock disbanded",
				logging.Uint64("flock_id", flock.id),
				logging.Uint64("tick", s.tick),
			)
			continue
		}

		for _, agent := range flock.members {
			s.integrate(agent, flock, tickRate)
		}
	}

	s.expireMarkers()

	for _, fn := range s.tickListeners {
		fn(s.tick)
	}
}

// allArrived reports whether every member has arrived. An empty flock
// qualifies vacuously.
func (s *Simulation) allArrived(f *Flock) bool {
	for _, m := range f.members {
		if mustGet(s.states, m.ID).State != StateArrived {
			return false
		}
	}
	return true
}

func (s *Simulation) integrate(agent *model.Agent, flock *Flock, tickRate int) {
	force := s.steering.Total(agent, flock, tickRate)
	accel := force.Mul(1 / s.params.Mass)

	ms := mustGet(s.states, agent.ID)
	newVelocity := model.Truncate(ms.Velocity.Add(accel), s.params.maxTickSpeed(agent.MaxSpeed))

	pos := s.mapSvc.ClampToMapBounds(agent.GroundPosition().Add(newVelocity))
	agent.Position = model.OnGround(pos, s.mapSvc.HeightAt(pos))
	if newVelocity.Len() > s.params.Epsilon {
		agent.Rotation = headingFromVelocity(newVelocity)
	}

	ms.Velocity = newVelocity
	s.states.Set(agent.ID, ms)

	s.transition(agent, flock, newVelocity)
}

// transition applies the arrival state machine to an agent that has just
// been integrated.
//
// From MOVING the arrival check runs first and the adjacency check runs
// after it unconditionally, so an agent that has just arrived next to a
// settling or arrived flockmate ends the tick SETTLING. Its motion-end
// notification has already been sent at that point and stands.
func (s *Simulation) transition(agent *model.Agent, flock *Flock, newVelocity model.Vec2) {
	ms := mustGet(s.states, agent.ID)

	switch ms.State {
	case StateMoving:
		if model.Distance(agent.GroundPosition(), flock.target) < s.params.ArriveThreshold {
			s.arrive(agent.ID)
		}
		for _, adj := range AdjacentMembers(agent, flock, s.params.AdjacencySepDist) {
			st := mustGet(s.states, adj.ID).State
			if st == StateArrived || st == StateSettling {
				ms = mustGet(s.states, agent.ID)
				ms.State = StateSettling
				s.states.Set(agent.ID, ms)
				s.logDebug("agent settling",
					logging.String("agent_id", agent.ID),
					logging.String("adjacent_to", adj.ID),
				)
				break
			}
		}
	case StateSettling:
		if newVelocity.Len() < s.params.SettleStopTolerance*agent.MaxSpeed {
			s.arrive(agent.ID)
		}
	case StateArrived:
	default:
		panic(fmt.Sprintf("core: agent %q in unknown arrival state %v", agent.ID, ms.State))
	}
}

func (s *Simulation) arrive(id string) {
	s.states.Set(id, MovementState{State: StateArrived})
	s.emit(model.MotionEnd, id)
}
