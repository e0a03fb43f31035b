package portalmath

import (
	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/pthm-cable/portalcore/portaltypes"
)

// CalculatePortalCamera transforms a camera pose through a portal pair.
// Position uses the ordinary point transform; rotation is rebuilt from the
// camera's transformed local axes (not from RotateFromTo, which only
// aligns one axis and would let the camera twist arbitrarily around its
// own forward vector) via MatrixToQuaternion's stable trace/diagonal
// branch selection.
func CalculatePortalCamera(
	cam portaltypes.CameraParams,
	src, dst portaltypes.PortalPlane,
	faceSrc, faceDst portaltypes.Face,
) portaltypes.CameraParams {
	up := rl.Vector3RotateByQuaternion(portaltypes.Vec3{Y: 1}, cam.Rotation)
	forward := rl.Vector3RotateByQuaternion(portaltypes.Vec3{Z: -1}, cam.Rotation)

	tForward := TransformDirectionThroughPortal(forward, src, dst, faceSrc, faceDst)
	tUp := TransformDirectionThroughPortal(up, src, dst, faceSrc, faceDst)

	// Rebuild an orthonormal right-handed basis from the transformed
	// forward and up, deriving right by cross product. The raw direction
	// map can be improper (a mirror) for pairs whose local axes encode
	// opposite handedness; deriving right here absorbs that flip into the
	// right axis and keeps the virtual camera upright.
	tUp = rl.Vector3Subtract(tUp, rl.Vector3Scale(tForward, rl.Vector3DotProduct(tUp, tForward)))
	if rl.Vector3Length(tUp) < Epsilon {
		right := rl.Vector3RotateByQuaternion(portaltypes.Vec3{X: 1}, cam.Rotation)
		tRight := TransformDirectionThroughPortal(right, src, dst, faceSrc, faceDst)
		tUp = rl.Vector3CrossProduct(rl.Vector3Scale(tForward, -1), tRight)
	}
	tUp = rl.Vector3Normalize(tUp)

	localZ := rl.Vector3Scale(tForward, -1)
	tRight := rl.Vector3CrossProduct(tUp, localZ)
	m := portaltypes.Mat4{
		M0: tRight.X, M1: tRight.Y, M2: tRight.Z,
		M4: tUp.X, M5: tUp.Y, M6: tUp.Z,
		M8: localZ.X, M9: localZ.Y, M10: localZ.Z,
		M15: 1,
	}

	return portaltypes.CameraParams{
		Position: TransformPointThroughPortal(cam.Position, src, dst, faceSrc, faceDst),
		Rotation: MatrixToQuaternion(m),
		FovY:     cam.FovY,
		Aspect:   cam.Aspect,
		Near:     cam.Near,
		Far:      cam.Far,
	}
}

// IsPortalRecursive reports whether looking into p1 through its twin p2
// would show p1 itself: the virtual camera formed by transforming cam
// through (p1, p2) has p1's center in front of it along p1's own normal.
func IsPortalRecursive(
	cam portaltypes.CameraParams,
	p1, p2 portaltypes.PortalPlane,
	faceP1, faceP2 portaltypes.Face,
) bool {
	virtual := CalculatePortalCamera(cam, p1, p2, faceP1, faceP2)
	los := rl.Vector3Subtract(p1.Center, virtual.Position)
	if rl.Vector3Length(los) < Epsilon {
		return true
	}
	return rl.Vector3DotProduct(rl.Vector3Normalize(los), p1.Normal) > 0
}
