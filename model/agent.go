package model

// Agent represents a mobile unit on the map that can be selected and
// ordered to move. Position is in world space: X and Z span the ground
// plane, Y is terrain height.
type Agent struct {
	ID   string
	Name string

	Position Vec3
	Rotation Quat

	// MaxSpeed is in distance units per second; the simulator divides it by
	// the tick rate to get a per-tick velocity cap.
	MaxSpeed float64
	// SelectionRadius approximates the agent's footprint on the ground plane.
	SelectionRadius float64
	// Stationary marks agents that can never move (buildings, props).
	Stationary bool
}

// GroundPosition returns the agent's position projected onto the XZ plane.
func (a *Agent) GroundPosition() Vec2 {
	return XZ(a.Position)
}

// CanFlock reports whether the agent may be admitted into a flock.
// Stationary agents and agents with no speed are skipped silently.
func (a *Agent) CanFlock() bool {
	return a != nil && !a.Stationary && a.MaxSpeed != 0
}

// MotionEvent identifies the notifications emitted when an agent starts or
// stops moving.
type MotionEvent int

const (
	MotionStart MotionEvent = iota
	MotionEnd
)

func (e MotionEvent) String() string {
	switch e {
	case MotionStart:
		return "motion_start"
	case MotionEnd:
		return "motion_end"
	default:
		return "unknown"
	}
}
