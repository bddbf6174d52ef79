package model

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Vec2 is a ground-plane vector. Its second component carries the world Z
// axis.
type Vec2 = mgl64.Vec2

// Vec3 is a world-space position: X and Z span the ground, Y is height.
type Vec3 = mgl64.Vec3

// Quat is an orientation quaternion.
type Quat = mgl64.Quat

// IdentityQuat is the zero rotation.
var IdentityQuat = mgl64.QuatIdent()

var up = mgl64.Vec3{0, 1, 0}

// XZ projects v onto the ground plane.
func XZ(v Vec3) Vec2 { return Vec2{v[0], v[2]} }

// OnGround lifts a ground point to world space at the given height.
func OnGround(p Vec2, height float64) Vec3 { return Vec3{p[0], height, p[1]} }

// Distance returns the straight-line distance between two ground points.
func Distance(a, b Vec2) float64 { return a.Sub(b).Len() }

// Normal returns v scaled to unit length. Unlike mgl64's Normalize, the zero
// vector stays zero.
func Normal(v Vec2) Vec2 {
	l := v.Len()
	if l == 0 {
		return Vec2{}
	}
	return Vec2{v[0] / l, v[1] / l}
}

// Truncate rescales v to exactly maxLen when it is longer than maxLen and
// returns it unchanged otherwise.
func Truncate(v Vec2, maxLen float64) Vec2 {
	if v.Len() > maxLen {
		return Normal(v).Mul(maxLen)
	}
	return v
}

// Finite reports whether every component of v is a real number.
func Finite(v Vec3) bool {
	for _, c := range v {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}

// YawQuat returns a rotation of rad radians about the vertical axis.
func YawQuat(rad float64) Quat {
	return mgl64.QuatRotate(rad, up)
}

// Yaw extracts the rotation about the vertical axis, in radians.
func Yaw(q Quat) float64 {
	return 2 * math.Atan2(q.V[1], q.W)
}
