package core

import (
	"math"
	"testing"

	"github.com/signalsfoundry/flock-simulator/model"
)

func TestHeadingFromVelocity(t *testing.T) {
	tests := []struct {
		name string
		v    model.Vec2
		yaw  float64
	}{
		{"forward +Z", model.Vec2{0, 1}, 0},
		{"+X", model.Vec2{1, 0}, -math.Pi / 2},
		{"-X", model.Vec2{-1, 0}, math.Pi / 2},
		{"diagonal", model.Vec2{1, 1}, -math.Pi / 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := model.Yaw(headingFromVelocity(tt.v))
			if math.Abs(got-tt.yaw) > 1e-9 {
				t.Fatalf("yaw = %v, want %v", got, tt.yaw)
			}
		})
	}
}
