package portalmath

import (
	"math"
	"testing"

	"github.com/pthm-cable/portalcore/portaltypes"
)

const testEps = 1e-3

func approxVec(t *testing.T, label string, got, want portaltypes.Vec3) {
	t.Helper()
	if math.Abs(float64(got.X-want.X)) > testEps ||
		math.Abs(float64(got.Y-want.Y)) > testEps ||
		math.Abs(float64(got.Z-want.Z)) > testEps {
		t.Errorf("%s: got (%f,%f,%f), want (%f,%f,%f)", label, got.X, got.Y, got.Z, want.X, want.Y, want.Z)
	}
}

// axisAlignedPortalPair builds a canonical pair: P at (-5,0,0) facing +X,
// Q at (5,0,0) facing -X, both 2x3.
func axisAlignedPortalPair() (p, q portaltypes.PortalPlane) {
	p = portaltypes.PortalPlane{
		Center: portaltypes.Vec3{X: -5, Y: 0, Z: 0},
		Normal: portaltypes.Vec3{X: 1, Y: 0, Z: 0},
		Up:     portaltypes.Vec3{X: 0, Y: 1, Z: 0},
		Right:  portaltypes.Vec3{X: 0, Y: 0, Z: 1},
		Width:  2, Height: 3,
	}
	q = portaltypes.PortalPlane{
		Center: portaltypes.Vec3{X: 5, Y: 0, Z: 0},
		Normal: portaltypes.Vec3{X: -1, Y: 0, Z: 0},
		Up:     portaltypes.Vec3{X: 0, Y: 1, Z: 0},
		Right:  portaltypes.Vec3{X: 0, Y: 0, Z: -1},
		Width:  2, Height: 3,
	}
	return p, q
}

func TestTransformPointThroughPortal_AxisAligned(t *testing.T) {
	p, q := axisAlignedPortalPair()

	got := TransformPointThroughPortal(portaltypes.Vec3{X: -3, Y: 0, Z: 0}, p, q, portaltypes.FaceA, portaltypes.FaceB)
	approxVec(t, "point", got, portaltypes.Vec3{X: 3, Y: 0, Z: 0})
}

func TestTransformDirectionThroughPortal_VelocityPreserved(t *testing.T) {
	p, q := axisAlignedPortalPair()

	got := TransformDirectionThroughPortal(portaltypes.Vec3{X: -1, Y: 0, Z: 0}, p, q, portaltypes.FaceA, portaltypes.FaceB)
	approxVec(t, "direction", got, portaltypes.Vec3{X: -1, Y: 0, Z: 0})
}

func TestTransformPhysicsStateThroughPortal_MagnitudePreserved(t *testing.T) {
	p, q := axisAlignedPortalPair()

	ps := portaltypes.PhysicsState{
		LinearVelocity: portaltypes.Vec3{X: -2, Y: 0, Z: 0},
		Mass:           5,
		Friction:       0.3,
	}
	out := TransformPhysicsStateThroughPortal(ps, p, q, portaltypes.FaceA, portaltypes.FaceB)
	approxVec(t, "linear velocity", out.LinearVelocity, portaltypes.Vec3{X: -2, Y: 0, Z: 0})
	if out.Mass != 5 || out.Friction != 0.3 {
		t.Errorf("expected scalar material properties copied unchanged, got mass=%f friction=%f", out.Mass, out.Friction)
	}
}

func TestScaleFactor_EqualAreaIsOne(t *testing.T) {
	p, q := axisAlignedPortalPair()
	s := ScaleFactor(p, q, Epsilon)
	if math.Abs(float64(s-1)) > testEps {
		t.Errorf("expected scale 1 for equal-area portals, got %f", s)
	}
}

func TestScaleFactor_DegenerateSourceClampsToOne(t *testing.T) {
	p, q := axisAlignedPortalPair()
	p.Width = 0
	s := ScaleFactor(p, q, Epsilon)
	if s != 1 {
		t.Errorf("expected degenerate source area to clamp scale to 1, got %f", s)
	}
}

func TestTransformPointThroughPortal_AsymmetricFaces(t *testing.T) {
	p, q := axisAlignedPortalPair()

	// A->A: entering the front of P emerges from the back of Q's face A,
	// i.e. the forward offset lands on the -normal side of Q.
	got := TransformPointThroughPortal(portaltypes.Vec3{X: -3, Y: 0, Z: 0}, p, q, portaltypes.FaceA, portaltypes.FaceA)
	approxVec(t, "A->A point", got, portaltypes.Vec3{X: 7, Y: 0, Z: 0})

	// B->B mirrors both decomposition and reconstruction, landing at the
	// same world point as A->A for this symmetric pair.
	got = TransformPointThroughPortal(portaltypes.Vec3{X: -3, Y: 0, Z: 0}, p, q, portaltypes.FaceB, portaltypes.FaceB)
	approxVec(t, "B->B point", got, portaltypes.Vec3{X: 7, Y: 0, Z: 0})
}

func TestTransformPointThroughPortal_RoundTripIsIdentity(t *testing.T) {
	p, q := axisAlignedPortalPair()

	start := portaltypes.Vec3{X: -3.7, Y: 0.9, Z: -0.4}
	mid := TransformPointThroughPortal(start, p, q, portaltypes.FaceA, portaltypes.FaceB)
	back := TransformPointThroughPortal(mid, q, p, portaltypes.FaceA, portaltypes.FaceB)
	approxVec(t, "round trip", back, start)
}

func TestTransformPhysicsStateWithPortalVelocity_InheritsRelativeMotion(t *testing.T) {
	p, q := axisAlignedPortalPair()

	ps := portaltypes.PhysicsState{LinearVelocity: portaltypes.Vec3{X: -1, Y: 0, Z: 0}}
	srcPortalPhysics := portaltypes.PhysicsState{} // stationary source portal
	dstPortalPhysics := portaltypes.PhysicsState{LinearVelocity: portaltypes.Vec3{X: 0, Y: 2, Z: 0}}

	out := TransformPhysicsStateWithPortalVelocity(ps, p, q, portaltypes.FaceA, portaltypes.FaceB, srcPortalPhysics, dstPortalPhysics)

	// Base transform of (-1,0,0) velocity -> (-1,0,0); plus moving-portal
	// delta (0,2,0) - transform(0,0,0) = (0,2,0).
	approxVec(t, "linear velocity with portal motion", out.LinearVelocity, portaltypes.Vec3{X: -1, Y: 2, Z: 0})
}
