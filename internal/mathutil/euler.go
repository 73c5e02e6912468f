package mathutil

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// QuatToEuler decomposes a unit quaternion into roll (X), pitch (Y) and yaw
// (Z) in radians. Pitch is clamped to ±π/2 at the poles.
func QuatToEuler(q mgl32.Quat) mgl32.Vec3 {
	x, y, z, w := q.V[0], q.V[1], q.V[2], q.W

	roll := math32.Atan2(2*(w*x+y*z), 1-2*(x*x+y*y))

	var pitch float32
	sinp := 2 * (w*y - z*x)
	if math32.Abs(sinp) >= 1 {
		pitch = math32.Copysign(math32.Pi/2, sinp)
	} else {
		pitch = math32.Asin(sinp)
	}

	yaw := math32.Atan2(2*(w*z+x*y), 1-2*(y*y+z*z))
	return mgl32.Vec3{roll, pitch, yaw}
}
