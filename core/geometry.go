package core

import (
	"math"

	"github.com/signalsfoundry/flock-simulator/model"
)

// headingFromVelocity returns the orientation that points an agent's model
// along its ground velocity. Models face +Z at rest, hence the quarter-turn
// offset from the atan2 angle.
func headingFromVelocity(v model.Vec2) model.Quat {
	angle := math.Atan2(v.Y(), v.X()) - math.Pi/2
	return model.YawQuat(angle)
}
