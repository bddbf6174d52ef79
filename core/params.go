package core

// Params holds the steering and arrival constants for a simulation. All
// distances are in world units; velocities are per tick.
type Params struct {
	// TickRate is the number of simulation ticks per second.
	TickRate int

	// Mass is shared by every agent, so equal forces give equal accelerations.
	Mass float64
	// Epsilon is the speed below which a velocity counts as stationary.
	Epsilon float64
	// MaxForce caps every individual behaviour and the composite force.
	MaxForce float64

	MoveSeparationScale   float64
	MoveArriveScale       float64
	MoveCohesionScale     float64
	MoveAlignScale        float64
	SettleSeparationScale float64

	ArriveThreshold        float64
	MoveSeparationBuffer   float64
	SettleSeparationBuffer float64
	CohesionRadius         float64
	AlignRadius            float64
	SlowingRadius          float64
	AdjacencySepDist       float64

	// SettleStopTolerance is multiplied by an agent's max speed to decide
	// when a settling agent has come to rest.
	SettleStopTolerance float64

	// MarkerLifetimeTicks is how long a move marker stays on the map.
	MarkerLifetimeTicks uint64
}

// DefaultParams returns the engine's stock tuning: a 30 Hz tick and the
// force weights and radii the RTS units were balanced against.
func DefaultParams() Params {
	return Params{
		TickRate: 30,

		Mass:     1.0,
		Epsilon:  1.0 / 1024,
		MaxForce: 1.0,

		MoveSeparationScale:   1.6,
		MoveArriveScale:       0.7,
		MoveCohesionScale:     0.1,
		MoveAlignScale:        0.1,
		SettleSeparationScale: 3.2,

		ArriveThreshold:        5.0,
		MoveSeparationBuffer:   8.0,
		SettleSeparationBuffer: 14.0,
		CohesionRadius:         25.0,
		AlignRadius:            10.0,
		SlowingRadius:          10.0,
		AdjacencySepDist:       10.0,

		SettleStopTolerance: 0.05,

		MarkerLifetimeTicks: 48,
	}
}

// maxTickSpeed is the per-tick velocity cap for an agent with the given max speed.
func (p Params) maxTickSpeed(maxSpeed float64) float64 {
	return maxSpeed / float64(p.TickRate)
}
