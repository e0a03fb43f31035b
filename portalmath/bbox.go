package portalmath

import (
	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/pthm-cable/portalcore/portaltypes"
)

// BoundingBoxAnalysis summarizes how an entity's local AABB, placed by t,
// straddles a portal plane.
type BoundingBoxAnalysis struct {
	FrontCount    int
	BackCount     int
	Total         int
	CrossingRatio float32
}

// localCorners returns the 8 corners of the AABB [min, max] in local space.
func localCorners(min, max portaltypes.Vec3) [8]portaltypes.Vec3 {
	return [8]portaltypes.Vec3{
		{X: min.X, Y: min.Y, Z: min.Z},
		{X: max.X, Y: min.Y, Z: min.Z},
		{X: min.X, Y: max.Y, Z: min.Z},
		{X: max.X, Y: max.Y, Z: min.Z},
		{X: min.X, Y: min.Y, Z: max.Z},
		{X: max.X, Y: min.Y, Z: max.Z},
		{X: min.X, Y: max.Y, Z: max.Z},
		{X: max.X, Y: max.Y, Z: max.Z},
	}
}

// worldCorners transforms the 8 local AABB corners into world space.
func worldCorners(min, max portaltypes.Vec3, t portaltypes.Transform) [8]portaltypes.Vec3 {
	local := localCorners(min, max)
	var world [8]portaltypes.Vec3
	for i, c := range local {
		scaled := rl.Vector3Multiply(c, t.Scale)
		rotated := rl.Vector3RotateByQuaternion(scaled, t.Rotation)
		world[i] = rl.Vector3Add(rotated, t.Position)
	}
	return world
}

// AnalyzeEntityBoundingBox classifies each of the 8 world-space AABB
// corners against plane.Normal through plane.Center. A corner within eps
// of the plane is conservatively counted on both sides, preventing
// hysteresis flicker right at the boundary.
func AnalyzeEntityBoundingBox(
	min, max portaltypes.Vec3,
	t portaltypes.Transform,
	plane portaltypes.PortalPlane,
) BoundingBoxAnalysis {
	corners := worldCorners(min, max, t)

	var front, back int
	for _, c := range corners {
		d := rl.Vector3DotProduct(rl.Vector3Subtract(c, plane.Center), plane.Normal)
		switch {
		case d > Epsilon:
			front++
		case d < -Epsilon:
			back++
		default:
			front++
			back++
		}
	}

	return BoundingBoxAnalysis{
		FrontCount:    front,
		BackCount:     back,
		Total:         len(corners),
		CrossingRatio: float32(back) / float32(len(corners)),
	}
}

// DetermineCrossingState debounces an entity's crossing state from one
// bounding-box analysis and the previous state.
func DetermineCrossingState(analysis BoundingBoxAnalysis, previous portaltypes.CrossingState) portaltypes.CrossingState {
	switch {
	case analysis.FrontCount > 0 && analysis.BackCount > 0:
		return portaltypes.Crossing
	case analysis.BackCount == analysis.Total && previous == portaltypes.Crossing:
		return portaltypes.Teleported
	case analysis.FrontCount == analysis.Total:
		return portaltypes.NotTouching
	default:
		return previous
	}
}

// DoesEntityIntersectPortal reports whether the entity's world AABB
// actually overlaps the portal's bounded rectangle, not just its infinite
// plane: both sides of the plane must be populated, and the corners'
// projection onto the plane's (right, up) axes must overlap the portal's
// [-w/2, w/2] x [-h/2, h/2] rectangle.
func DoesEntityIntersectPortal(
	min, max portaltypes.Vec3,
	t portaltypes.Transform,
	plane portaltypes.PortalPlane,
) bool {
	analysis := AnalyzeEntityBoundingBox(min, max, t, plane)
	if analysis.FrontCount == 0 || analysis.BackCount == 0 {
		return false
	}

	corners := worldCorners(min, max, t)
	var minR, maxR, minU, maxU float32
	for i, c := range corners {
		rel := rl.Vector3Subtract(c, plane.Center)
		r := rl.Vector3DotProduct(rel, plane.Right)
		u := rl.Vector3DotProduct(rel, plane.Up)
		if i == 0 {
			minR, maxR, minU, maxU = r, r, u, u
			continue
		}
		if r < minR {
			minR = r
		}
		if r > maxR {
			maxR = r
		}
		if u < minU {
			minU = u
		}
		if u > maxU {
			maxU = u
		}
	}

	halfW := plane.Width / 2
	halfH := plane.Height / 2
	return maxR >= -halfW && minR <= halfW && maxU >= -halfH && minU <= halfH
}
