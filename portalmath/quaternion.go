package portalmath

import (
	"math"

	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/pthm-cable/portalcore/portaltypes"
)

// RotateFromTo returns the shortest-arc rotation that carries unit vector
// from onto unit vector to. Used for the ordinary transform-through-portal
// rotation, where a slightly unstable 180-degree edge case is acceptable
// because the fallback axis only matters for exactly-opposite vectors.
func RotateFromTo(from, to portaltypes.Vec3) portaltypes.Quat {
	from = rl.Vector3Normalize(from)
	to = rl.Vector3Normalize(to)

	d := rl.Vector3DotProduct(from, to)
	if d >= 1-1e-6 {
		return rl.QuaternionIdentity()
	}
	if d <= -1+1e-6 {
		// Opposite vectors: pick any axis perpendicular to `from`.
		axis := rl.Vector3CrossProduct(portaltypes.Vec3{X: 1}, from)
		if rl.Vector3Length(axis) < Epsilon {
			axis = rl.Vector3CrossProduct(portaltypes.Vec3{Y: 1}, from)
		}
		axis = rl.Vector3Normalize(axis)
		return rl.QuaternionFromAxisAngle(axis, math.Pi)
	}

	axis := rl.Vector3Normalize(rl.Vector3CrossProduct(from, to))
	angle := float32(math.Acos(float64(d)))
	return rl.QuaternionFromAxisAngle(axis, angle)
}

// MatrixToQuaternion converts an orthonormal basis matrix to a quaternion
// using the trace/largest-diagonal branch selection (Shepperd's method).
// calculate_portal_camera requires this precise conversion rather than
// RotateFromTo, because reconstructing a virtual camera's full orientation
// (not just one axis alignment) needs the basis's twist around the forward
// axis, which a from/to rotation discards.
func MatrixToQuaternion(m portaltypes.Mat4) portaltypes.Quat {
	// raylib's Matrix is column-major with fields M0..M15; extract the
	// 3x3 rotation block.
	m00, m01, m02 := m.M0, m.M4, m.M8
	m10, m11, m12 := m.M1, m.M5, m.M9
	m20, m21, m22 := m.M2, m.M6, m.M10

	trace := m00 + m11 + m22

	var x, y, z, w float32
	switch {
	case trace > 0:
		s := float32(math.Sqrt(float64(trace+1))) * 2
		w = 0.25 * s
		x = (m21 - m12) / s
		y = (m02 - m20) / s
		z = (m10 - m01) / s
	case m00 > m11 && m00 > m22:
		s := float32(math.Sqrt(float64(1+m00-m11-m22))) * 2
		w = (m21 - m12) / s
		x = 0.25 * s
		y = (m01 + m10) / s
		z = (m02 + m20) / s
	case m11 > m22:
		s := float32(math.Sqrt(float64(1+m11-m00-m22))) * 2
		w = (m02 - m20) / s
		x = (m01 + m10) / s
		y = 0.25 * s
		z = (m12 + m21) / s
	default:
		s := float32(math.Sqrt(float64(1+m22-m00-m11))) * 2
		w = (m10 - m01) / s
		x = (m02 + m20) / s
		y = (m12 + m21) / s
		z = 0.25 * s
	}

	return rl.QuaternionNormalize(portaltypes.Quat{X: x, Y: y, Z: z, W: w})
}
