// Package hostiface declares the capability sets a host must (or may)
// implement to drive the portal engine, and the small data types those
// calls pass across the library boundary. Only PhysicsDataProvider and
// PhysicsManipulator are required; the engine must survive a host that
// implements only those two, guarding every optional-interface call site.
package hostiface

import (
	"github.com/pthm-cable/portalcore/portaltypes"
)

// EntityDescription is host-supplied metadata the engine needs to ask for
// a correctly-shaped ghost or chain-node entity without understanding what
// the entity actually renders as.
type EntityDescription struct {
	SourceEntityID portaltypes.EntityId
	MeshID         string
	CollisionShape string
	BoundsMin      portaltypes.Vec3
	BoundsMax      portaltypes.Vec3
}

// ChainNodeDescriptor is what the engine hands to the host when asking it
// to create a new ghost for a chain.
type ChainNodeDescriptor struct {
	Source            EntityDescription
	Transform         portaltypes.Transform
	Physics           portaltypes.PhysicsState
	EntryPortal       portaltypes.PortalId
	ExitPortal        portaltypes.PortalId
	EntryFace         portaltypes.Face
	ExitFace          portaltypes.Face
	RequiresClipping  bool
	LogicalEntityHint portaltypes.LogicalEntityId
}

// GhostEntitySnapshot is one entry in a ghost-sync batch.
type GhostEntitySnapshot struct {
	MainID                 portaltypes.EntityId
	GhostID                portaltypes.EntityId
	MainTransform          portaltypes.Transform
	GhostTransform         portaltypes.Transform
	MainPhysics            portaltypes.PhysicsState
	GhostPhysics           portaltypes.PhysicsState
	SourceFace             portaltypes.Face
	TargetFace             portaltypes.Face
	SyncPriority           int
	RequiresImmediateSync  bool
	TimestampSeconds       float64
}

// PhysicsConstraintState is what the host reports back when asked whether
// an entity's movement is currently constrained (e.g. by a collision).
type PhysicsConstraintState struct {
	IsBlocked      bool
	BlockingNormal portaltypes.Vec3
	AllowedVelocity portaltypes.Vec3
}

// CenterOfMassConfig selects and parameterizes one of the six
// center-of-mass resolution policies for an entity.
type CenterOfMassConfig struct {
	Type                   portaltypes.CenterOfMassType
	CustomPointLocal       portaltypes.Vec3
	BoneName               string
	WeightedPointsLocal    []portaltypes.Vec3
	WeightedPointMasses    []float32
	AutoUpdateOnMeshChange bool
	UpdateFrequencyHz      float32
}

// TeleportProbe is an optional extension of PhysicsManipulator for hosts
// that can test a manual-teleport target for obstructions (typically a
// shape sweep or raycast at the destination). PortalManager type-asserts
// for it before the bypass teleport's final write; hosts without it get
// the unchecked write.
type TeleportProbe interface {
	IsTeleportTargetBlocked(id portaltypes.EntityId, target portaltypes.Transform) bool
}

// BoneSource is an optional extension of PhysicsDataProvider for hosts
// whose entities carry a skeleton. CenterOfMassManager type-asserts for
// this before resolving a BoneAttachment config; a host that omits it
// simply falls back to the geometric center, same as a missing bone name.
type BoneSource interface {
	GetBoneWorldPosition(id portaltypes.EntityId, boneName string) (portaltypes.Vec3, bool)
}

// PhysicsDataProvider is the host's read side: everything the engine needs
// to query about an entity's current state. Required.
type PhysicsDataProvider interface {
	GetEntityTransform(id portaltypes.EntityId) (portaltypes.Transform, bool)
	GetEntityPhysicsState(id portaltypes.EntityId) (portaltypes.PhysicsState, bool)
	GetEntityBounds(id portaltypes.EntityId) (min, max portaltypes.Vec3, ok bool)
	IsEntityValid(id portaltypes.EntityId) bool
	GetEntityDescription(id portaltypes.EntityId) (EntityDescription, bool)
	CalculateEntityCenterOfMass(id portaltypes.EntityId) (portaltypes.Vec3, bool)
	HasCenterOfMassConfig(id portaltypes.EntityId) bool
	GetEntityCenterOfMassConfig(id portaltypes.EntityId) (CenterOfMassConfig, bool)
}

// BatchDataProvider is an optional extension of PhysicsDataProvider for
// hosts that can answer whole-chain state queries in one call. Managers
// that iterate every chain member each tick type-assert for it and fall
// back to per-entity calls when absent.
type BatchDataProvider interface {
	GetEntityTransforms(ids []portaltypes.EntityId) ([]portaltypes.Transform, []bool)
	GetEntityPhysicsStates(ids []portaltypes.EntityId) ([]portaltypes.PhysicsState, []bool)
}

// PhysicsManipulator is the host's write side: everything the engine needs
// to mutate entity state or ask for entities to be created/destroyed.
// Required.
type PhysicsManipulator interface {
	SetEntityTransform(id portaltypes.EntityId, t portaltypes.Transform)
	SetEntityPhysicsState(id portaltypes.EntityId, ps portaltypes.PhysicsState)
	SetEntityCollisionEnabled(id portaltypes.EntityId, enabled bool)
	SetEntityVisible(id portaltypes.EntityId, visible bool)
	SetEntityVelocity(id portaltypes.EntityId, v portaltypes.Vec3)
	SetEntityAngularVelocity(id portaltypes.EntityId, v portaltypes.Vec3)

	CreateGhostEntity(source portaltypes.EntityId, t portaltypes.Transform, ps portaltypes.PhysicsState) portaltypes.EntityId
	CreateFullFunctionalGhost(desc EntityDescription, t portaltypes.Transform, ps portaltypes.PhysicsState, srcFace, dstFace portaltypes.Face) portaltypes.EntityId
	CreateChainNodeEntity(desc ChainNodeDescriptor) portaltypes.EntityId
	DestroyGhostEntity(id portaltypes.EntityId)
	DestroyChainNodeEntity(id portaltypes.EntityId)
	UpdateGhostEntity(id portaltypes.EntityId, t portaltypes.Transform, ps portaltypes.PhysicsState)
	SetGhostEntityBounds(id portaltypes.EntityId, min, max portaltypes.Vec3)
	SyncGhostEntities(batch []GhostEntitySnapshot)

	SwapEntityRoles(a, b portaltypes.EntityId) bool
	SwapEntityRolesWithFaces(a, b portaltypes.EntityId, srcFace, dstFace portaltypes.Face) bool
	SetEntityFunctionalState(id portaltypes.EntityId, functional bool)
	CopyAllEntityProperties(src, dst portaltypes.EntityId) bool

	SetEntityCenterOfMass(id portaltypes.EntityId, localOffset portaltypes.Vec3)
	SetEntityClippingPlane(id portaltypes.EntityId, plane portaltypes.Vec3, distance float32)
	DisableEntityClipping(id portaltypes.EntityId)
	SetEntitiesClippingStates(ids []portaltypes.EntityId, planes []portaltypes.Vec3, distances []float32, enabled []bool)

	SetEntityPhysicsEngineControlled(id portaltypes.EntityId, controlled bool)
	DetectEntityCollisionConstraints(id portaltypes.EntityId) (PhysicsConstraintState, bool)
	ForceSetEntityPhysicsState(id portaltypes.EntityId, t portaltypes.Transform, ps portaltypes.PhysicsState)
	ForceSetEntitiesPhysicsStates(ids []portaltypes.EntityId, ts []portaltypes.Transform, pss []portaltypes.PhysicsState)

	CreatePhysicsSimulationProxy(desc EntityDescription, t portaltypes.Transform, ps portaltypes.PhysicsState) portaltypes.EntityId
	ApplyForceToProxy(id portaltypes.EntityId, force portaltypes.Vec3)
	ApplyTorqueToProxy(id portaltypes.EntityId, torque portaltypes.Vec3)
	ClearForcesOnProxy(id portaltypes.EntityId)
	SetProxyPhysicsMaterial(id portaltypes.EntityId, friction, restitution float32)
	DestroyPhysicsSimulationProxy(id portaltypes.EntityId)

	GetEntityAppliedForces(id portaltypes.EntityId) (force, torque portaltypes.Vec3)
}

// RenderQuery is the optional read side of the render-facing interfaces.
type RenderQuery interface {
	GetMainCamera() portaltypes.CameraParams
	IsPointInViewFrustum(p portaltypes.Vec3, cam portaltypes.CameraParams) bool
}

// RenderManipulator is the optional write side of the render-facing
// interfaces.
type RenderManipulator interface {
	SetEntityRenderEnabled(id portaltypes.EntityId, enabled bool)
	SetClippingPlane(normal portaltypes.Vec3, distance float32)
	DisableClippingPlane()
	RenderPortalRecursiveView(portalID portaltypes.PortalId, depth int)
}

// PortalEventHandler is the optional set of lifecycle callbacks the host
// may implement to react to engine events. A false return from any of
// these indicates the host refused or failed the request; the engine logs
// and continues rather than treating it as fatal.
type PortalEventHandler interface {
	OnEntityTeleportBegin(entity portaltypes.EntityId, src, dst portaltypes.PortalId) bool
	OnEntityTeleportComplete(entity portaltypes.EntityId, src, dst portaltypes.PortalId) bool
	OnGhostEntityCreated(original, ghost portaltypes.EntityId, portalID portaltypes.PortalId) bool
	OnGhostEntityDestroyed(original, ghost portaltypes.EntityId) bool
	OnEntityRolesSwapped(oldMain, oldGhost, newMain, newGhost portaltypes.EntityId, portalID portaltypes.PortalId, mainTransform, ghostTransform portaltypes.Transform) bool
	OnPortalsLinked(a, b portaltypes.PortalId) bool
	OnPortalsUnlinked(a, b portaltypes.PortalId) bool
	OnPortalRecursiveState(id portaltypes.PortalId, recursive bool) bool
	OnLogicalEntityCreated(id portaltypes.LogicalEntityId) bool
	OnLogicalEntityDestroyed(id portaltypes.LogicalEntityId) bool
	OnLogicalEntityConstrained(id portaltypes.LogicalEntityId, c PhysicsConstraintState) bool
	OnLogicalEntityConstraintReleased(id portaltypes.LogicalEntityId) bool
	OnLogicalEntityStateMerged(id portaltypes.LogicalEntityId, strategy portaltypes.MergeStrategy) bool
}
