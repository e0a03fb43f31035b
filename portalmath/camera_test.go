package portalmath

import (
	"math"
	"testing"

	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/pthm-cable/portalcore/portaltypes"
)

func TestMatrixToQuaternion_Identity(t *testing.T) {
	m := portaltypes.Mat4{M0: 1, M5: 1, M10: 1, M15: 1}
	q := MatrixToQuaternion(m)
	id := rl.QuaternionIdentity()
	if math.Abs(float64(q.W-id.W)) > testEps {
		t.Errorf("expected identity quaternion, got %+v", q)
	}
}

func TestCalculatePortalCamera_PositionMapsLikeAPoint(t *testing.T) {
	p, q := axisAlignedPortalPair()
	cam := portaltypes.CameraParams{
		Position: portaltypes.Vec3{X: -3, Y: 0, Z: 0},
		Rotation: rl.QuaternionIdentity(),
		FovY:     1, Aspect: 16.0 / 9, Near: 0.1, Far: 100,
	}

	out := CalculatePortalCamera(cam, p, q, portaltypes.FaceA, portaltypes.FaceB)
	approxVec(t, "camera position", out.Position, portaltypes.Vec3{X: 3, Y: 0, Z: 0})
	if out.FovY != cam.FovY || out.Aspect != cam.Aspect {
		t.Errorf("expected camera params other than pose to pass through unchanged")
	}
}

// rotatedAxes returns the world-space camera basis encoded by q.
func rotatedAxes(q portaltypes.Quat) (right, up, forward portaltypes.Vec3) {
	right = rl.Vector3RotateByQuaternion(portaltypes.Vec3{X: 1}, q)
	up = rl.Vector3RotateByQuaternion(portaltypes.Vec3{Y: 1}, q)
	forward = rl.Vector3RotateByQuaternion(portaltypes.Vec3{Z: -1}, q)
	return right, up, forward
}

func TestCalculatePortalCamera_RotationFacingThePortal(t *testing.T) {
	p, q := axisAlignedPortalPair()

	// Camera yawed 90 degrees about +Y: forward (-1,0,0), looking straight
	// into P's face A. The virtual camera must keep flying out of Q's face
	// B: forward still (-1,0,0), up preserved, right flipped through the
	// pair's mirrored Right axes.
	cam := portaltypes.CameraParams{
		Position: portaltypes.Vec3{X: -3, Y: 0, Z: 0},
		Rotation: rl.QuaternionFromAxisAngle(portaltypes.Vec3{Y: 1}, math.Pi/2),
	}

	out := CalculatePortalCamera(cam, p, q, portaltypes.FaceA, portaltypes.FaceB)
	right, up, forward := rotatedAxes(out.Rotation)
	approxVec(t, "virtual forward", forward, portaltypes.Vec3{X: -1, Y: 0, Z: 0})
	approxVec(t, "virtual up", up, portaltypes.Vec3{X: 0, Y: 1, Z: 0})
	approxVec(t, "virtual right", right, portaltypes.Vec3{X: 0, Y: 0, Z: -1})
}

func TestCalculatePortalCamera_RotationSidewaysCamera(t *testing.T) {
	p, q := axisAlignedPortalPair()

	// Identity orientation: forward (0,0,-1), sliding along the portal
	// plane. Through the pair the forward direction maps onto (0,0,1) and
	// the reconstructed basis stays a proper upright rotation (180 degrees
	// about Y), never a mirror.
	cam := portaltypes.CameraParams{
		Position: portaltypes.Vec3{X: -3, Y: 0, Z: 0},
		Rotation: rl.QuaternionIdentity(),
	}

	out := CalculatePortalCamera(cam, p, q, portaltypes.FaceA, portaltypes.FaceB)
	right, up, forward := rotatedAxes(out.Rotation)
	approxVec(t, "virtual forward", forward, portaltypes.Vec3{X: 0, Y: 0, Z: 1})
	approxVec(t, "virtual up", up, portaltypes.Vec3{X: 0, Y: 1, Z: 0})
	approxVec(t, "virtual right", right, portaltypes.Vec3{X: -1, Y: 0, Z: 0})

	// Right-handedness of the rebuilt basis: right x up == -forward's
	// local Z, i.e. cross(right, up) points along -forward.
	cross := rl.Vector3CrossProduct(right, up)
	approxVec(t, "basis handedness", cross, rl.Vector3Scale(forward, -1))
}

func TestIsPortalRecursive_SelfFacingPair(t *testing.T) {
	// Two portals facing each other with the camera in front of p1 (its
	// orientation plays no part): not recursive, because the line of sight
	// from the virtual camera to p1's center runs against p1's normal.
	p, q := axisAlignedPortalPair()
	cam := portaltypes.CameraParams{
		Position: portaltypes.Vec3{X: -3, Y: 0, Z: 0},
		Rotation: rl.QuaternionIdentity(),
	}
	if IsPortalRecursive(cam, p, q, portaltypes.FaceA, portaltypes.FaceB) {
		t.Errorf("expected a straight through-facing pair not to be recursive")
	}
}
