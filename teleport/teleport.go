// Package teleport implements TeleportManager: the per-entity chain
// lifecycle (extend on intersect-start, migrate main on center-cross,
// shrink on exit, fully-passed completion), the ghost snapshot cache, and
// the batch-vs-individual ghost sync scheduler. It integrates with
// logical.Manager and clipping.Manager but never talks to a renderer.
package teleport

import (
	"fmt"
	"log/slog"
	"strings"

	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/pthm-cable/portalcore/clipping"
	"github.com/pthm-cable/portalcore/hostiface"
	"github.com/pthm-cable/portalcore/logical"
	"github.com/pthm-cable/portalcore/portal"
	"github.com/pthm-cable/portalcore/portalmath"
	"github.com/pthm-cable/portalcore/portaltypes"
)

// ChainNode is one segment of a traversed chain.
type ChainNode struct {
	EntityID         portaltypes.EntityId
	EntityType       portaltypes.EntityType
	EntryPortal      portaltypes.PortalId
	ExitPortal       portaltypes.PortalId
	ChainPosition    int
	SegmentLength    float32
	Transform        portaltypes.Transform
	Physics          portaltypes.PhysicsState
	RequiresClipping bool
	ClippingPlanes   []clipping.Plane
	EntryFace        portaltypes.Face
	ExitFace         portaltypes.Face
	IsConstrained    bool
	ConstraintState  hostiface.PhysicsConstraintState
}

// ChainState is the full record of one logical body's traversal.
// TeleportManager uniquely owns every ChainState, keyed by the chain's
// original (non-ghost) entity. Per-entity crossing status is a derived
// read-only view over a ChainState rather than a second stored struct;
// Query below reconstructs that view on demand.
type ChainState struct {
	LogicalEntityID       portaltypes.LogicalEntityId
	OriginalEntityID      portaltypes.EntityId
	Chain                 []ChainNode
	MainPosition          int
	TotalChainLength      int
	CenterOfMassWorldPos  portaltypes.Vec3
	UnifiedPhysicsState   portaltypes.PhysicsState
	TotalAppliedForce     portaltypes.Vec3
	TotalAppliedTorque    portaltypes.Vec3
	IsActivelyTeleporting bool
	ChainVersion          uint32
	LastUpdateTimestamp   float64
	EnableBatchSync       bool
	SyncGroupID           uint32

	CrossingState      portaltypes.CrossingState
	TransitionProgress float32
}

// Query is the per-entity teleport view: crossing status derived from the
// owning chain, rather than a second stored copy.
type Query struct {
	EntityID           portaltypes.EntityId
	LogicalEntityID    portaltypes.LogicalEntityId
	CrossingState      portaltypes.CrossingState
	TransitionProgress float32
	IsTeleporting      bool
	ChainLength        int
	MainPosition       int
}

// PortalLookup is the minimal view of the portal table TeleportManager
// needs; PortalManager satisfies it.
type PortalLookup interface {
	GetPortal(id portaltypes.PortalId) (portal.Portal, bool)
}

type ghostSyncInfo struct {
	priority          int
	requiresImmediate bool
	enableBatch       bool
}

// Manager implements TeleportManager.
type Manager struct {
	provider    hostiface.PhysicsDataProvider
	manipulator hostiface.PhysicsManipulator
	events      hostiface.PortalEventHandler // optional
	portals     PortalLookup
	clip        *clipping.Manager
	logic       *logical.Manager // optional; nil disables logical-entity integration

	useLogicalEntityControl bool
	log                     *slog.Logger

	chains          map[portaltypes.EntityId]*ChainState
	ghostToOriginal map[portaltypes.EntityId]portaltypes.EntityId
	ghostSync       map[portaltypes.EntityId]*ghostSyncInfo

	syncFrequencyHz float32
	accumBatch      float32
	accumIndividual float32
	clockSec        float64
}

// New creates a TeleportManager. logic may be nil to disable the
// logical-entity integration entirely (ghost sync then always runs from
// the snapshot cache).
func New(provider hostiface.PhysicsDataProvider, manipulator hostiface.PhysicsManipulator, events hostiface.PortalEventHandler, portals PortalLookup, clip *clipping.Manager, logic *logical.Manager, useLogicalEntityControl bool, log *slog.Logger, syncFrequencyHz float32) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		provider:                provider,
		manipulator:             manipulator,
		events:                  events,
		portals:                 portals,
		clip:                    clip,
		logic:                   logic,
		useLogicalEntityControl: useLogicalEntityControl && logic != nil,
		log:                     log,
		chains:                  make(map[portaltypes.EntityId]*ChainState),
		ghostToOriginal:         make(map[portaltypes.EntityId]portaltypes.EntityId),
		ghostSync:               make(map[portaltypes.EntityId]*ghostSyncInfo),
		syncFrequencyHz:         syncFrequencyHz,
	}
}

func (m *Manager) portalPlane(id portaltypes.PortalId) (portaltypes.PortalPlane, bool) {
	p, ok := m.portals.GetPortal(id)
	if !ok {
		return portaltypes.PortalPlane{}, false
	}
	return p.Plane, true
}

// resolveOriginal maps any chain member (ghost or original) to its chain.
func (m *Manager) resolveOriginal(entity portaltypes.EntityId) (portaltypes.EntityId, *ChainState, bool) {
	if orig, ok := m.ghostToOriginal[entity]; ok {
		c, ok := m.chains[orig]
		return orig, c, ok
	}
	if c, ok := m.chains[entity]; ok {
		return entity, c, true
	}
	return portaltypes.InvalidEntityID, nil, false
}

// resolveOrCreateChain resolves entity to its chain, creating a
// single-node MAIN chain if none exists yet. The original entity gets a
// self-mapping in ghostToOriginal, so resolveOriginal finds the chain from
// the original or from any ghost currently in it.
func (m *Manager) resolveOrCreateChain(entity portaltypes.EntityId) (portaltypes.EntityId, *ChainState) {
	if orig, c, ok := m.resolveOriginal(entity); ok {
		return orig, c
	}
	t, _ := m.provider.GetEntityTransform(entity)
	ps, _ := m.provider.GetEntityPhysicsState(entity)
	c := &ChainState{
		OriginalEntityID: entity,
		Chain: []ChainNode{{
			EntityID:   entity,
			EntityType: portaltypes.EntityMain,
			Transform:  t,
			Physics:    ps,
		}},
		MainPosition:     0,
		TotalChainLength: 1,
	}
	m.chains[entity] = c
	m.ghostToOriginal[entity] = entity
	return entity, c
}

// OnIntersectStart extends the chain with a new ghost node at the far side
// of target_portal, or does nothing if that node already exists.
func (m *Manager) OnIntersectStart(entity portaltypes.EntityId, sourcePortal, targetPortal portaltypes.PortalId, faceSrc, faceDst portaltypes.Face) {
	srcPlane, okSrc := m.portalPlane(sourcePortal)
	dstPlane, okDst := m.portalPlane(targetPortal)
	if !okSrc || !okDst {
		m.log.Warn("teleport: on_intersect_start with unknown portal", slog.Uint64("source", uint64(sourcePortal)), slog.Uint64("target", uint64(targetPortal)))
		return
	}

	original, chain := m.resolveOrCreateChain(entity)

	for _, n := range chain.Chain {
		if n.ExitPortal == targetPortal {
			return
		}
	}

	mainNode := chain.Chain[m.mainIndex(chain)]
	newTransform := portalmath.TransformThroughPortal(mainNode.Transform, srcPlane, dstPlane, faceSrc, faceDst)
	newPhysics := portalmath.TransformPhysicsStateThroughPortal(mainNode.Physics, srcPlane, dstPlane, faceSrc, faceDst)

	desc, _ := m.provider.GetEntityDescription(original)
	ghostID := m.manipulator.CreateChainNodeEntity(hostiface.ChainNodeDescriptor{
		Source:            desc,
		Transform:         newTransform,
		Physics:           newPhysics,
		EntryPortal:       sourcePortal,
		ExitPortal:        targetPortal,
		EntryFace:         faceSrc,
		ExitFace:          faceDst,
		RequiresClipping:  true,
		LogicalEntityHint: chain.LogicalEntityID,
	})
	if !ghostID.Valid() {
		// Host refused to create the ghost: the chain is not extended and
		// no event fires. This is the safe no-op path.
		m.log.Warn("teleport: host refused chain node creation",
			slog.Uint64("entity_id", uint64(original)), slog.Uint64("target", uint64(targetPortal)))
		return
	}

	chain.Chain = append(chain.Chain, ChainNode{
		EntityID:         ghostID,
		EntityType:       portaltypes.EntityGhost,
		EntryPortal:      sourcePortal,
		ExitPortal:       targetPortal,
		ChainPosition:    len(chain.Chain),
		Transform:        newTransform,
		Physics:          newPhysics,
		RequiresClipping: true,
		EntryFace:        faceSrc,
		ExitFace:         faceDst,
	})
	chain.TotalChainLength = len(chain.Chain)
	chain.ChainVersion++
	chain.IsActivelyTeleporting = true
	chain.CrossingState = portaltypes.Crossing
	chain.EnableBatchSync = true
	if chain.SyncGroupID == 0 {
		chain.SyncGroupID = uint32(targetPortal)
	}

	m.ghostToOriginal[ghostID] = original
	m.ghostSync[ghostID] = &ghostSyncInfo{enableBatch: true}

	if m.events != nil {
		m.events.OnGhostEntityCreated(original, ghostID, targetPortal)
		m.events.OnEntityTeleportBegin(original, sourcePortal, targetPortal)
	}

	m.syncLogicalMembership(chain)
	m.recomputeClipping(chain)
}

// OnCenterCrossed migrates MAIN forward by one node when the crossing
// entity is the current main and a next node exists.
func (m *Manager) OnCenterCrossed(entity portaltypes.EntityId, portalID portaltypes.PortalId, faceCrossed portaltypes.Face) {
	_, chain, ok := m.resolveOriginal(entity)
	if !ok {
		return
	}

	idx := indexOfNode(chain, entity)
	if idx == -1 || idx != chain.MainPosition || chain.MainPosition+1 >= len(chain.Chain) {
		return
	}

	oldMain := chain.Chain[chain.MainPosition].EntityID
	newMain := chain.Chain[chain.MainPosition+1].EntityID

	// The host's role swap must preserve each entity's own physical state;
	// only the control role changes. A refusal leaves the chain untouched:
	// no retag, no version bump, no event.
	opposite := faceCrossed.Opposite()
	if !m.manipulator.SwapEntityRolesWithFaces(oldMain, newMain, faceCrossed, opposite) {
		m.log.Warn("teleport: host refused role swap",
			slog.Uint64("old_main", uint64(oldMain)), slog.Uint64("new_main", uint64(newMain)))
		return
	}

	chain.Chain[chain.MainPosition].EntityType = portaltypes.EntityGhost
	chain.Chain[chain.MainPosition+1].EntityType = portaltypes.EntityMain
	chain.MainPosition++

	m.manipulator.SetEntityFunctionalState(newMain, true)

	if m.events != nil {
		mainT, _ := m.provider.GetEntityTransform(newMain)
		ghostT, _ := m.provider.GetEntityTransform(oldMain)
		// newMain was the ghost before this swap and oldMain becomes the
		// ghost after it; the call reports both roles' before/after ids.
		m.events.OnEntityRolesSwapped(oldMain, newMain, newMain, oldMain, portalID, mainT, ghostT)
	}

	chain.ChainVersion++
	m.syncLogicalMembership(chain)
	m.recomputeClipping(chain)
}

// OnFullyPassed marks the entity's derived teleport state complete without
// destroying any chain node.
func (m *Manager) OnFullyPassed(entity portaltypes.EntityId, portalID portaltypes.PortalId) {
	_, chain, ok := m.resolveOriginal(entity)
	if !ok {
		return
	}
	chain.CrossingState = portaltypes.Teleported
	chain.IsActivelyTeleporting = false
	chain.TransitionProgress = 1.0
}

// OnExitPortal shrinks the chain from the front: the oldest trailing
// segment is always the one removed, regardless of which member actually
// reported the exit.
func (m *Manager) OnExitPortal(entity portaltypes.EntityId, portalID portaltypes.PortalId) {
	original, chain, ok := m.resolveOriginal(entity)
	if !ok {
		return
	}
	if len(chain.Chain) == 0 {
		return
	}

	removed := chain.Chain[0]
	m.manipulator.DestroyChainNodeEntity(removed.EntityID)
	delete(m.ghostToOriginal, removed.EntityID)
	delete(m.ghostSync, removed.EntityID)
	if m.events != nil {
		m.events.OnGhostEntityDestroyed(original, removed.EntityID)
	}

	chain.Chain = chain.Chain[1:]
	if chain.MainPosition > 0 {
		chain.MainPosition--
	}
	for i := range chain.Chain {
		chain.Chain[i].ChainPosition = i
	}
	chain.TotalChainLength = len(chain.Chain)
	chain.ChainVersion++

	if len(chain.Chain) == 1 {
		if chain.Chain[0].EntityType == portaltypes.EntityGhost {
			chain.Chain[0].EntityType = portaltypes.EntityMain
			chain.MainPosition = 0
			m.manipulator.SetEntityFunctionalState(chain.Chain[0].EntityID, true)
		}
		chain.IsActivelyTeleporting = false
		chain.CrossingState = portaltypes.Teleported
		chain.TransitionProgress = 1.0
		if m.events != nil {
			m.events.OnEntityTeleportComplete(chain.Chain[0].EntityID, chain.Chain[0].EntryPortal, chain.Chain[0].ExitPortal)
		}
	}

	if len(chain.Chain) == 0 {
		if m.useLogicalEntityControl && chain.LogicalEntityID.Valid() {
			m.logic.Destroy(chain.LogicalEntityID)
		}
		delete(m.ghostToOriginal, original)
		delete(m.chains, original)
		return
	}

	m.syncLogicalMembership(chain)
	m.recomputeClipping(chain)
}

// mainIndex returns chain.MainPosition clamped into the chain's bounds.
// An out-of-range value is a structural invariant violation; it is
// repaired in place and logged rather than allowed to index past the
// slice.
func (m *Manager) mainIndex(chain *ChainState) int {
	idx := chain.MainPosition
	if idx >= 0 && idx < len(chain.Chain) {
		return idx
	}
	m.log.Warn("teleport: main_position out of range, clamping",
		slog.Int("main_position", idx), slog.Int("chain_length", len(chain.Chain)),
		slog.Uint64("entity_id", uint64(chain.OriginalEntityID)))
	if idx < 0 {
		idx = 0
	} else {
		idx = len(chain.Chain) - 1
	}
	chain.MainPosition = idx
	return idx
}

func indexOfNode(chain *ChainState, entity portaltypes.EntityId) int {
	for i, n := range chain.Chain {
		if n.EntityID == entity {
			return i
		}
	}
	return -1
}

// syncLogicalMembership keeps a chain's logical entity membership and
// strategy in step with its structure: actively teleporting chains merge
// by force summation, chains longer than three nodes move to the physics
// simulation proxy, and everything else takes the weighted average.
func (m *Manager) syncLogicalMembership(chain *ChainState) {
	if !m.useLogicalEntityControl {
		return
	}

	strategy := portaltypes.WeightedAverage
	switch {
	case chain.IsActivelyTeleporting:
		strategy = portaltypes.ForceSummation
	case len(chain.Chain) > 3:
		strategy = portaltypes.PhysicsSimulation
	}

	ids := make([]portaltypes.EntityId, len(chain.Chain))
	weights := make([]float32, len(chain.Chain))
	for i, n := range chain.Chain {
		ids[i] = n.EntityID
		weights[i] = 1
	}

	if !chain.LogicalEntityID.Valid() {
		chain.LogicalEntityID = m.logic.CreateMultiEntityLogicalControl(ids, weights, strategy)
		return
	}
	m.logic.SetControlledEntities(chain.LogicalEntityID, ids, weights)
	m.logic.SetStrategy(chain.LogicalEntityID, strategy)
}

// recomputeClipping re-derives multi-segment clip planes for the chain and
// writes the result back onto each node.
func (m *Manager) recomputeClipping(chain *ChainState) {
	if m.clip == nil {
		return
	}
	mainIdx := m.mainIndex(chain)
	segments := make([]clipping.SegmentInput, len(chain.Chain))
	for i, n := range chain.Chain {
		segments[i] = clipping.SegmentInput{
			EntityID: n.EntityID,
			Position: n.Transform.Position,
			IsMain:   i == mainIdx,
		}
	}
	cam := m.estimateCameraPosition(chain)
	results := m.clip.Apply(segments, cam)
	for i, r := range results {
		chain.Chain[i].RequiresClipping = r.Visible
		chain.Chain[i].ClippingPlanes = r.Planes
	}
}

// estimateCameraPosition offsets backward and above the MAIN node's
// position, unless the host has registered a precise camera query.
func (m *Manager) estimateCameraPosition(chain *ChainState) portaltypes.Vec3 {
	if rq, ok := m.provider.(hostiface.RenderQuery); ok {
		return rq.GetMainCamera().Position
	}
	main := chain.Chain[m.mainIndex(chain)].Transform
	back := rl.Vector3RotateByQuaternion(portaltypes.Vec3{Z: -1}, main.Rotation)
	offset := rl.Vector3Add(rl.Vector3Scale(back, 3), portaltypes.Vec3{Y: 1.5})
	return rl.Vector3Add(main.Position, offset)
}

// Update advances the ghost sync scheduler. Chains under active logical
// entity control skip the snapshot cache entirely — the logical entity's
// sync-back is authoritative for them.
func (m *Manager) Update(dt float32) {
	m.clockSec += float64(dt)
	if m.syncFrequencyHz <= 0 {
		return
	}
	period := 1 / m.syncFrequencyHz
	m.accumBatch += dt
	m.accumIndividual += dt

	doBatch := m.accumBatch >= period/2
	doIndividual := m.accumIndividual >= period
	if doBatch {
		m.accumBatch -= period / 2
	}
	if doIndividual {
		m.accumIndividual -= period
	}

	batches := make(map[uint32][]hostiface.GhostEntitySnapshot)

	for _, chain := range m.chains {
		if m.useLogicalEntityControl && chain.LogicalEntityID.Valid() {
			continue
		}
		mainNode := chain.Chain[m.mainIndex(chain)]
		mainT, _ := m.provider.GetEntityTransform(mainNode.EntityID)
		mainP, _ := m.provider.GetEntityPhysicsState(mainNode.EntityID)

		for _, n := range chain.Chain {
			if n.EntityType != portaltypes.EntityGhost {
				continue
			}
			info := m.ghostSync[n.EntityID]
			if info == nil {
				info = &ghostSyncInfo{enableBatch: true}
				m.ghostSync[n.EntityID] = info
			}

			ghostT, _ := m.provider.GetEntityTransform(n.EntityID)
			ghostP, _ := m.provider.GetEntityPhysicsState(n.EntityID)
			snapshot := hostiface.GhostEntitySnapshot{
				MainID:                mainNode.EntityID,
				GhostID:               n.EntityID,
				MainTransform:         mainT,
				GhostTransform:        ghostT,
				MainPhysics:           mainP,
				GhostPhysics:          ghostP,
				SourceFace:            n.EntryFace,
				TargetFace:            n.ExitFace,
				SyncPriority:          info.priority,
				RequiresImmediateSync: info.requiresImmediate,
				TimestampSeconds:      m.clockSec,
			}

			switch {
			case info.priority >= highPrioritySyncThreshold || info.requiresImmediate:
				m.manipulator.UpdateGhostEntity(n.EntityID, ghostT, ghostP)
			case info.enableBatch:
				if doBatch {
					batches[chain.SyncGroupID] = append(batches[chain.SyncGroupID], snapshot)
				}
			default:
				if doIndividual {
					m.manipulator.UpdateGhostEntity(n.EntityID, ghostT, ghostP)
				}
			}
		}
	}

	for _, batch := range batches {
		m.manipulator.SyncGhostEntities(batch)
	}
}

const highPrioritySyncThreshold = 8

// Query returns the legacy per-entity teleport view for the chain entity
// belongs to.
func (m *Manager) Query(entity portaltypes.EntityId) (Query, bool) {
	orig, chain, ok := m.resolveOriginal(entity)
	if !ok {
		return Query{}, false
	}
	return Query{
		EntityID:           orig,
		LogicalEntityID:    chain.LogicalEntityID,
		CrossingState:      chain.CrossingState,
		TransitionProgress: chain.TransitionProgress,
		IsTeleporting:      chain.IsActivelyTeleporting,
		ChainLength:        len(chain.Chain),
		MainPosition:       chain.MainPosition,
	}, true
}

// ChainFor returns the full chain state for diagnostics/testing.
func (m *Manager) ChainFor(original portaltypes.EntityId) (*ChainState, bool) {
	c, ok := m.chains[original]
	return c, ok
}

// SetGhostSyncPriority lets the host mark a ghost as high priority or
// requiring an immediate (non-batched) sync.
func (m *Manager) SetGhostSyncPriority(ghost portaltypes.EntityId, priority int, requiresImmediate, enableBatch bool) {
	m.ghostSync[ghost] = &ghostSyncInfo{priority: priority, requiresImmediate: requiresImmediate, enableBatch: enableBatch}
}

// DebugString renders the chain one node per line for diagnostics.
func (c *ChainState) DebugString() string {
	var b strings.Builder
	fmt.Fprintf(&b, "chain entity=%d logical=%d version=%d main=%d state=%s\n",
		c.OriginalEntityID, c.LogicalEntityID, c.ChainVersion, c.MainPosition, c.CrossingState)
	for i, n := range c.Chain {
		fmt.Fprintf(&b, "  [%d] id=%d type=%s entry=%d exit=%d pos=(%.2f,%.2f,%.2f)\n",
			i, n.EntityID, n.EntityType, n.EntryPortal, n.ExitPortal,
			n.Transform.Position.X, n.Transform.Position.Y, n.Transform.Position.Z)
	}
	return b.String()
}
