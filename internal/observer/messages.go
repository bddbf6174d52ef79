package observer

import "github.com/signalsfoundry/flock-simulator/internal/sim/state"

// Version is the observer wire protocol version.
const Version = "1.0"

// BootstrapResponse is served by the bootstrap endpoint so a viewer can size
// its canvas before the first tick arrives.
type BootstrapResponse struct {
	ProtocolVersion string      `json:"protocol_version"`
	Tick            uint64      `json:"tick"`
	TickRateHz      int         `json:"tick_rate_hz"`
	Agents          int         `json:"agents"`
	Bounds          *BoundsMsg  `json:"bounds,omitempty"`
	Flocks          []FlockMsg  `json:"flocks"`
	Markers         []MarkerMsg `json:"markers"`
}

// BoundsMsg is the map's ground-plane extent.
type BoundsMsg struct {
	Min [2]float64 `json:"min"`
	Max [2]float64 `json:"max"`
}

// TickMsg carries one tick's world state.
type TickMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	Tick            uint64      `json:"tick"`
	Agents          []AgentMsg  `json:"agents"`
	Flocks          []FlockMsg  `json:"flocks"`
	Markers         []MarkerMsg `json:"markers"`
}

type AgentMsg struct {
	ID         string     `json:"id"`
	Pos        [3]float64 `json:"pos"`
	Yaw        float64    `json:"yaw"`
	Vel        [2]float64 `json:"vel"`
	State      string     `json:"state"`
	Flock      uint64     `json:"flock,omitempty"`
	Radius     float64    `json:"radius"`
	Stationary bool       `json:"stationary,omitempty"`
}

type FlockMsg struct {
	ID      uint64     `json:"id"`
	Target  [2]float64 `json:"target"`
	Members []string   `json:"members"`
}

type MarkerMsg struct {
	ID  uint64     `json:"id"`
	Pos [3]float64 `json:"pos"`
	Age uint64     `json:"age"`
}

// NewTickMsg converts a host snapshot to its wire form.
func NewTickMsg(s state.Snapshot) TickMsg {
	msg := TickMsg{
		Type:            "TICK",
		ProtocolVersion: Version,
		Tick:            s.Tick,
		Agents:          make([]AgentMsg, 0, len(s.Agents)),
		Flocks:          flockMsgs(s.Flocks),
		Markers:         markerMsgs(s),
	}
	for _, a := range s.Agents {
		msg.Agents = append(msg.Agents, AgentMsg{
			ID:         a.ID,
			Pos:        [3]float64{a.Position.X(), a.Position.Y(), a.Position.Z()},
			Yaw:        a.Yaw,
			Vel:        [2]float64{a.Velocity.X(), a.Velocity.Y()},
			State:      a.State,
			Flock:      a.FlockID,
			Radius:     a.SelectionRadius,
			Stationary: a.Stationary,
		})
	}
	return msg
}

func flockMsgs(flocks []state.FlockView) []FlockMsg {
	out := make([]FlockMsg, 0, len(flocks))
	for _, f := range flocks {
		out = append(out, FlockMsg{ID: f.ID, Target: [2]float64{f.Target.X(), f.Target.Y()}, Members: f.Members})
	}
	return out
}

func markerMsgs(s state.Snapshot) []MarkerMsg {
	out := make([]MarkerMsg, 0, len(s.Markers))
	for _, m := range s.Markers {
		out = append(out, MarkerMsg{
			ID:  m.ID,
			Pos: [3]float64{m.Position.X(), m.Position.Y(), m.Position.Z()},
			Age: s.Tick - m.PlacedAt,
		})
	}
	return out
}
