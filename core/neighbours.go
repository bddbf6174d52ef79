package core

import "github.com/signalsfoundry/flock-simulator/model"

// NeighboursWithin returns the flock members other than agent whose ground
// distance to it is strictly less than radius, in member order.
func NeighboursWithin(agent *model.Agent, flock *Flock, radius float64) []*model.Agent {
	pos := agent.GroundPosition()
	var out []*model.Agent
	for _, m := range flock.members {
		if m == agent {
			continue
		}
		if model.Distance(pos, m.GroundPosition()) < radius {
			out = append(out, m)
		}
	}
	return out
}

// AdjacentMembers returns the flock members touching agent: those whose
// ground distance is at most the sum of both selection radii plus sepDist.
func AdjacentMembers(agent *model.Agent, flock *Flock, sepDist float64) []*model.Agent {
	pos := agent.GroundPosition()
	var out []*model.Agent
	for _, m := range flock.members {
		if m == agent {
			continue
		}
		limit := agent.SelectionRadius + m.SelectionRadius + sepDist
		if model.Distance(pos, m.GroundPosition()) <= limit {
			out = append(out, m)
		}
	}
	return out
}
