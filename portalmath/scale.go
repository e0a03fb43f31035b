// Package portalmath is the pure-geometry core of the portal engine:
// point/direction/transform/physics mapping through a pair of oriented
// portal planes, AABB crossing analysis, and portal-camera math. Every
// function here is a function of its arguments only; the package holds no
// state and performs no I/O.
package portalmath

import (
	"math"

	"github.com/pthm-cable/portalcore/portaltypes"
)

// Epsilon is the default tolerance used when a caller does not supply one.
// Functions with a tunable tolerance (e.g. the area-ratio clamp) take an
// explicit epsilon; this constant is the fallback for call sites that
// don't.
const Epsilon = 1e-4

// ScaleFactor returns the area-ratio scale applied when mapping geometry
// from src to dst: sqrt(area(dst)/area(src)). If src's area is smaller than
// eps, the mapping is undefined and the function conservatively returns 1
// rather than dividing by (near) zero.
func ScaleFactor(src, dst portaltypes.PortalPlane, eps float32) float32 {
	srcArea := src.Area()
	if srcArea < eps {
		return 1
	}
	ratio := float64(dst.Area() / srcArea)
	if ratio < 0 {
		return 1
	}
	return float32(math.Sqrt(ratio))
}
