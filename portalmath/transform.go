package portalmath

import (
	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/pthm-cable/portalcore/portaltypes"
)

// TransformPointThroughPortal maps a world point from the source portal's
// local frame into the destination portal's local frame, flipping the
// forward axis so that "front of source maps to back of destination".
func TransformPointThroughPortal(
	p portaltypes.Vec3,
	src, dst portaltypes.PortalPlane,
	faceSrc, faceDst portaltypes.Face,
) portaltypes.Vec3 {
	rel := rl.Vector3Subtract(p, src.Center)
	r := rl.Vector3DotProduct(rel, src.Right)
	u := rl.Vector3DotProduct(rel, src.Up)
	f := rl.Vector3DotProduct(rel, src.FaceNormal(faceSrc))

	s := ScaleFactor(src, dst, Epsilon)

	out := dst.Center
	out = rl.Vector3Add(out, rl.Vector3Scale(dst.Right, s*r))
	out = rl.Vector3Add(out, rl.Vector3Scale(dst.Up, s*u))
	out = rl.Vector3Add(out, rl.Vector3Scale(dst.FaceNormal(faceDst), s*-f))
	return out
}

// TransformDirectionThroughPortal maps a direction vector through the
// portal pair: same basis decomposition as the point transform, but
// without translation or scale, re-normalized on the way out. The forward
// component keeps its sign — the front-maps-to-back flip applies to
// positions only, so a velocity carried into the source face leaves the
// destination face still pointing away from it.
func TransformDirectionThroughPortal(
	d portaltypes.Vec3,
	src, dst portaltypes.PortalPlane,
	faceSrc, faceDst portaltypes.Face,
) portaltypes.Vec3 {
	r := rl.Vector3DotProduct(d, src.Right)
	u := rl.Vector3DotProduct(d, src.Up)
	f := rl.Vector3DotProduct(d, src.FaceNormal(faceSrc))

	out := rl.Vector3Add(
		rl.Vector3Scale(dst.Right, r),
		rl.Vector3Add(
			rl.Vector3Scale(dst.Up, u),
			rl.Vector3Scale(dst.FaceNormal(faceDst), f),
		),
	)
	if rl.Vector3Length(out) < Epsilon {
		return out
	}
	return rl.Vector3Normalize(out)
}

// TransformThroughPortal maps a full rigid transform through the portal
// pair: position via TransformPointThroughPortal, scale multiplied by the
// area-ratio factor, and rotation built by pre-multiplying t.Rotation with
// the rotation that carries the source face normal onto the *negated*
// destination face normal (front-maps-to-back, same as the point mapping).
func TransformThroughPortal(
	t portaltypes.Transform,
	src, dst portaltypes.PortalPlane,
	faceSrc, faceDst portaltypes.Face,
) portaltypes.Transform {
	s := ScaleFactor(src, dst, Epsilon)
	faceRot := RotateFromTo(src.FaceNormal(faceSrc), rl.Vector3Scale(dst.FaceNormal(faceDst), -1))

	return portaltypes.Transform{
		Position: TransformPointThroughPortal(t.Position, src, dst, faceSrc, faceDst),
		Rotation: rl.QuaternionMultiply(faceRot, t.Rotation),
		Scale:    rl.Vector3Scale(t.Scale, s),
	}
}

// TransformPhysicsStateThroughPortal maps linear and angular velocity as
// directions (magnitude preserved) and copies scalar material properties
// (mass, friction, restitution, damping) unchanged.
func TransformPhysicsStateThroughPortal(
	ps portaltypes.PhysicsState,
	src, dst portaltypes.PortalPlane,
	faceSrc, faceDst portaltypes.Face,
) portaltypes.PhysicsState {
	out := ps
	out.LinearVelocity = transformVelocityDirection(ps.LinearVelocity, src, dst, faceSrc, faceDst)
	out.AngularVelocity = transformVelocityDirection(ps.AngularVelocity, src, dst, faceSrc, faceDst)
	return out
}

// transformVelocityDirection transforms v's direction through the portal
// pair and re-applies v's original magnitude: velocities map as
// directions, never rescaled by the portal area ratio.
func transformVelocityDirection(
	v portaltypes.Vec3,
	src, dst portaltypes.PortalPlane,
	faceSrc, faceDst portaltypes.Face,
) portaltypes.Vec3 {
	mag := rl.Vector3Length(v)
	if mag < Epsilon {
		return v
	}
	dir := TransformDirectionThroughPortal(rl.Vector3Normalize(v), src, dst, faceSrc, faceDst)
	return rl.Vector3Scale(dir, mag)
}

// TransformPhysicsStateWithPortalVelocity extends
// TransformPhysicsStateThroughPortal to account for moving/rotating
// portals: the entity inherits the relative motion between the two
// portals. Linear velocity gains dst.LinearVelocity -
// transform(src.LinearVelocity). Angular velocity is a pseudovector: after
// the entity's own angular velocity has been mapped as a direction, the
// difference of the two portals' angular velocities (both already in the
// world frame) is added with no extra magnitude rescale.
func TransformPhysicsStateWithPortalVelocity(
	ps portaltypes.PhysicsState,
	src, dst portaltypes.PortalPlane,
	faceSrc, faceDst portaltypes.Face,
	srcPortalPhysics, dstPortalPhysics portaltypes.PhysicsState,
) portaltypes.PhysicsState {
	out := TransformPhysicsStateThroughPortal(ps, src, dst, faceSrc, faceDst)

	transformedSrcPortalVel := transformVelocityDirection(srcPortalPhysics.LinearVelocity, src, dst, faceSrc, faceDst)
	linDiff := rl.Vector3Subtract(dstPortalPhysics.LinearVelocity, transformedSrcPortalVel)
	out.LinearVelocity = rl.Vector3Add(out.LinearVelocity, linDiff)

	angDiff := rl.Vector3Subtract(dstPortalPhysics.AngularVelocity, srcPortalPhysics.AngularVelocity)
	out.AngularVelocity = rl.Vector3Add(out.AngularVelocity, angDiff)

	return out
}
