// Package portaltypes defines the core data model shared by every portal
// engine package: scalar math aliases, opaque identifiers, and the plain
// value types that describe portals, transforms, and physics state.
//
// Nothing in this package owns state or performs I/O; it exists so that
// portalmath, portal, comass, clipping, logical, teleport, and portalmgr can
// all agree on the same wire shapes without importing one another.
package portaltypes

import (
	rl "github.com/gen2brain/raylib-go/raylib"
)

// Vec3, Quat and Mat4 reuse raylib's own vector math types. They are plain
// value structs with no GPU or window dependency, so using them here keeps
// every portal computation compatible with a raylib-based renderer without
// forcing a translation layer at the host boundary.
type (
	Vec3 = rl.Vector3
	Quat = rl.Quaternion
	Mat4 = rl.Matrix
)

// Transform is a rigid-plus-scale pose: position, rotation, and a uniform
// or per-axis scale factor.
type Transform struct {
	Position Vec3
	Rotation Quat
	Scale    Vec3
}

// PhysicsState is the subset of rigid-body state the engine cares about.
// The host physics engine owns the full simulation; this is only the part
// that crosses the library boundary.
type PhysicsState struct {
	LinearVelocity    Vec3
	AngularVelocity   Vec3
	Mass              float32
	AppliedForce      Vec3
	AppliedTorque     Vec3
	CenterOfMassLocal Vec3
	InertiaDiagonal   Vec3
	Friction          float32
	Restitution       float32
	LinearDamping     float32
	AngularDamping    float32
}

// PortalId, EntityId and LogicalEntityId are opaque unsigned handles.
// EntityId is host-assigned; LogicalEntityId is library-assigned and
// monotonically increasing. Zero is reserved as the "invalid" sentinel for
// all three, matching the host's convention that id 0 never names a real
// object.
type (
	PortalId        uint32
	EntityId        uint32
	LogicalEntityId uint32
)

// Invalid sentinels.
const (
	InvalidPortalID        PortalId        = 0
	InvalidEntityID        EntityId        = 0
	InvalidLogicalEntityID LogicalEntityId = 0
)

// Valid reports whether an id is not the invalid sentinel.
func (id PortalId) Valid() bool        { return id != InvalidPortalID }
func (id EntityId) Valid() bool        { return id != InvalidEntityID }
func (id LogicalEntityId) Valid() bool { return id != InvalidLogicalEntityID }

// Face identifies one of the two oriented sides of a portal plane.
type Face uint8

const (
	FaceA Face = iota
	FaceB
)

// Opposite returns the other face of the same portal.
func (f Face) Opposite() Face {
	if f == FaceA {
		return FaceB
	}
	return FaceA
}

func (f Face) String() string {
	if f == FaceA {
		return "A"
	}
	return "B"
}

// PortalPlane is an oriented rectangular plane in world space.
// Invariant: Right, Up and Normal are mutually perpendicular unit vectors.
// The face-A normal is Normal; face-B's is -Normal.
type PortalPlane struct {
	Center     Vec3
	Normal     Vec3
	Up         Vec3
	Right      Vec3
	Width      float32
	Height     float32
	ActiveFace Face
}

// FaceNormal returns the outward normal for the given face of this plane.
func (p PortalPlane) FaceNormal(face Face) Vec3 {
	if face == FaceA {
		return p.Normal
	}
	return rl.Vector3Scale(p.Normal, -1)
}

// Area returns the portal rectangle's area.
func (p PortalPlane) Area() float32 {
	return p.Width * p.Height
}

// EntityType tags the role of a node within an entity chain.
type EntityType uint8

const (
	EntityMain EntityType = iota
	EntityGhost
	EntityHybrid
	EntityLogical
)

func (t EntityType) String() string {
	switch t {
	case EntityMain:
		return "main"
	case EntityGhost:
		return "ghost"
	case EntityHybrid:
		return "hybrid"
	case EntityLogical:
		return "logical"
	default:
		return "unknown"
	}
}

// MergeStrategy selects how LogicalEntityManager combines the physics of
// every member of a chain into one unified state.
type MergeStrategy uint8

const (
	MainPriority MergeStrategy = iota
	GhostPriority
	MostRestrictive
	WeightedAverage
	ForceSummation
	PhysicsSimulation
	CustomLogic
)

func (s MergeStrategy) String() string {
	switch s {
	case MainPriority:
		return "main_priority"
	case GhostPriority:
		return "ghost_priority"
	case MostRestrictive:
		return "most_restrictive"
	case WeightedAverage:
		return "weighted_average"
	case ForceSummation:
		return "force_summation"
	case PhysicsSimulation:
		return "physics_simulation"
	case CustomLogic:
		return "custom_logic"
	default:
		return "unknown"
	}
}

// CrossingState tracks an entity's progress through a portal boundary.
type CrossingState uint8

const (
	NotTouching CrossingState = iota
	Crossing
	Teleported
)

func (s CrossingState) String() string {
	switch s {
	case NotTouching:
		return "not_touching"
	case Crossing:
		return "crossing"
	case Teleported:
		return "teleported"
	default:
		return "unknown"
	}
}

// CameraParams describes a camera pose for portal-camera math and frustum
// tests. FovY is in radians; Aspect is width/height.
type CameraParams struct {
	Position Vec3
	Rotation Quat
	FovY     float32
	Aspect   float32
	Near     float32
	Far      float32
}

// CenterOfMassType selects which policy CenterOfMassManager uses to resolve
// an entity's center of mass.
type CenterOfMassType uint8

const (
	GeometricCenter CenterOfMassType = iota
	PhysicsCenter
	CustomPoint
	BoneAttachment
	WeightedAverageCOM
	DynamicCalculated
)

func (t CenterOfMassType) String() string {
	switch t {
	case GeometricCenter:
		return "geometric_center"
	case PhysicsCenter:
		return "physics_center"
	case CustomPoint:
		return "custom_point"
	case BoneAttachment:
		return "bone_attachment"
	case WeightedAverageCOM:
		return "weighted_average"
	case DynamicCalculated:
		return "dynamic_calculated"
	default:
		return "unknown"
	}
}
