// Package portal defines the Portal value type: an oriented plane with
// A/B faces, a linked-twin id, and the pure geometric predicates that
// operate on it. Portal is a value object — construction, linking, and
// destruction are owned by portalmgr; nothing here mutates global state.
package portal

import (
	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/pthm-cable/portalcore/portaltypes"
)

// Portal is a single portal plane plus its link and activity state.
type Portal struct {
	ID                portaltypes.PortalId
	Plane             portaltypes.PortalPlane
	LinkedPortalID    portaltypes.PortalId
	IsActive          bool
	IsRecursive       bool
	PhysicsState      portaltypes.PhysicsState
	MaxRecursionDepth int
}

// IsLinked reports whether this portal currently has a twin.
func (p *Portal) IsLinked() bool {
	return p.LinkedPortalID.Valid()
}

// IsFacingPosition reports whether pos lies in the outward half-space of
// the given face: face_normal(face) . (pos - center) > 0.
func (p *Portal) IsFacingPosition(pos portaltypes.Vec3, face portaltypes.Face) bool {
	rel := rl.Vector3Subtract(pos, p.Plane.Center)
	return rl.Vector3DotProduct(p.Plane.FaceNormal(face), rel) > 0
}

// IsPointInBounds reports whether pos, projected onto the portal's local
// (right, up) axes, falls within the portal's rectangle.
func (p *Portal) IsPointInBounds(pos portaltypes.Vec3) bool {
	rel := rl.Vector3Subtract(pos, p.Plane.Center)
	r := rl.Vector3DotProduct(rel, p.Plane.Right)
	u := rl.Vector3DotProduct(rel, p.Plane.Up)
	halfW := p.Plane.Width / 2
	halfH := p.Plane.Height / 2
	return r >= -halfW && r <= halfW && u >= -halfH && u <= halfH
}
