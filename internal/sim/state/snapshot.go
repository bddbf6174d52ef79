package state

import (
	"github.com/signalsfoundry/flock-simulator/core"
	"github.com/signalsfoundry/flock-simulator/internal/journal"
	"github.com/signalsfoundry/flock-simulator/model"
)

// StateIdle is reported for agents that have never been commanded.
const StateIdle = "IDLE"

// Snapshot is a consistent, copied view of the world after a tick.
type Snapshot struct {
	Tick    uint64
	Agents  []AgentView
	Flocks  []FlockView
	Markers []core.Marker
}

// AgentView is a copy of an agent's pose and movement state.
type AgentView struct {
	ID              string
	Name            string
	Position        model.Vec3
	Yaw             float64
	Velocity        model.Vec2
	State           string
	FlockID         uint64
	MaxSpeed        float64
	SelectionRadius float64
	Stationary      bool
}

// FlockView describes one live flock.
type FlockView struct {
	ID      uint64
	Target  model.Vec2
	Members []string
}

// CountByState tallies commanded agents by arrival state.
func (s Snapshot) CountByState() map[string]int {
	counts := map[string]int{
		core.StateMoving.String():   0,
		core.StateSettling.String(): 0,
		core.StateArrived.String():  0,
	}
	for _, a := range s.Agents {
		if a.State == StateIdle {
			continue
		}
		counts[a.State]++
	}
	return counts
}

// Agent returns the view of the agent with the given ID.
func (s Snapshot) Agent(id string) (AgentView, bool) {
	for _, a := range s.Agents {
		if a.ID == id {
			return a, true
		}
	}
	return AgentView{}, false
}

// TraceEntry converts the snapshot into a tick trace line. Agents that were
// never commanded are left out.
func (s Snapshot) TraceEntry() journal.TickEntry {
	e := journal.TickEntry{Tick: s.Tick, Flocks: len(s.Flocks), Markers: len(s.Markers)}
	for _, a := range s.Agents {
		if a.State == StateIdle {
			continue
		}
		e.Agents = append(e.Agents, journal.AgentSample{
			ID:    a.ID,
			Pos:   [3]float64{a.Position.X(), a.Position.Y(), a.Position.Z()},
			Yaw:   a.Yaw,
			Vel:   [2]float64{a.Velocity.X(), a.Velocity.Y()},
			State: a.State,
			Flock: a.FlockID,
		})
	}
	return e
}

func (h *Host) snapshotLocked() Snapshot {
	agents := h.store.ListAgents()
	snap := Snapshot{
		Tick:    h.sim.Tick(),
		Agents:  make([]AgentView, 0, len(agents)),
		Flocks:  h.flocksLocked(),
		Markers: h.sim.Markers(),
	}
	for _, a := range agents {
		snap.Agents = append(snap.Agents, h.agentViewLocked(a))
	}
	return snap
}

func (h *Host) agentViewLocked(a *model.Agent) AgentView {
	v := AgentView{
		ID:              a.ID,
		Name:            a.Name,
		Position:        a.Position,
		Yaw:             model.Yaw(a.Rotation),
		State:           StateIdle,
		MaxSpeed:        a.MaxSpeed,
		SelectionRadius: a.SelectionRadius,
		Stationary:      a.Stationary,
	}
	if ms, ok := h.sim.MovementState(a.ID); ok {
		v.Velocity = ms.Velocity
		v.State = ms.State.String()
	}
	if f := h.sim.FlockOf(a.ID); f != nil {
		v.FlockID = f.ID()
	}
	return v
}

func (h *Host) flocksLocked() []FlockView {
	flocks := h.sim.Flocks()
	out := make([]FlockView, 0, len(flocks))
	for _, f := range flocks {
		out = append(out, FlockView{ID: f.ID(), Target: f.Target(), Members: f.MemberIDs()})
	}
	return out
}
