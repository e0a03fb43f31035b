// Package portalmgr implements PortalManager: the top-level façade that
// owns every Portal, the registered-entity set, and the four managers
// built on top of them. It is the only entry point a host needs — it
// receives the four physics events, drives the per-frame update pass, and
// produces render-pass descriptors for recursive portal rendering.
package portalmgr

import (
	"errors"
	"log/slog"

	"github.com/pthm-cable/portalcore/clipping"
	"github.com/pthm-cable/portalcore/comass"
	"github.com/pthm-cable/portalcore/engconfig"
	"github.com/pthm-cable/portalcore/hostiface"
	"github.com/pthm-cable/portalcore/logical"
	"github.com/pthm-cable/portalcore/portal"
	"github.com/pthm-cable/portalcore/portalmath"
	"github.com/pthm-cable/portalcore/portaltypes"
	"github.com/pthm-cable/portalcore/teleport"
)

// ErrProviderRequired is returned by New when either required host
// capability set is missing. The engine never partially starts.
var ErrProviderRequired = errors.New("portalmgr: PhysicsDataProvider and PhysicsManipulator are required")

// TeleportResult is the typed outcome of a manual TeleportEntity call.
type TeleportResult uint8

const (
	TeleportOK TeleportResult = iota
	TeleportFailedInvalidPortal
	TeleportFailedInvalidEntity
	TeleportFailedBlocked
)

func (r TeleportResult) String() string {
	switch r {
	case TeleportOK:
		return "ok"
	case TeleportFailedInvalidPortal:
		return "failed_invalid_portal"
	case TeleportFailedInvalidEntity:
		return "failed_invalid_entity"
	case TeleportFailedBlocked:
		return "failed_blocked"
	default:
		return "unknown"
	}
}

// RenderPass is one recursive portal view the renderer should draw, in the
// order produced by CalculateRenderPasses: each portal's passes run from
// shallowest to deepest, and the order between portals is not defined.
type RenderPass struct {
	VirtualCamera  portaltypes.CameraParams
	ClippingPlane  clipping.Plane
	UseStencil     bool
	StencilRef     int
	SourcePortalID portaltypes.PortalId
	RecursionDepth int
}

// Manager implements PortalManager. It is the single owner of every
// Portal; TeleportManager, LogicalEntityManager, CenterOfMassManager and
// MultiSegmentClippingManager are its sub-managers, constructed and wired
// together here.
type Manager struct {
	provider    hostiface.PhysicsDataProvider
	manipulator hostiface.PhysicsManipulator
	events      hostiface.PortalEventHandler // optional

	cfg *engconfig.Config
	log *slog.Logger

	portals            map[portaltypes.PortalId]*portal.Portal
	nextPortalID       portaltypes.PortalId
	registeredEntities map[portaltypes.EntityId]bool

	comass   *comass.Manager
	clip     *clipping.Manager
	logic    *logical.Manager
	teleport *teleport.Manager
}

// New creates a PortalManager, wiring CenterOfMassManager,
// MultiSegmentClippingManager, LogicalEntityManager and TeleportManager
// from a single loaded engconfig.Config. provider and manipulator are
// required (ErrProviderRequired otherwise); events may be nil, and a nil
// cfg falls back to the embedded defaults.
func New(provider hostiface.PhysicsDataProvider, manipulator hostiface.PhysicsManipulator, events hostiface.PortalEventHandler, cfg *engconfig.Config, log *slog.Logger) (*Manager, error) {
	if provider == nil || manipulator == nil {
		return nil, ErrProviderRequired
	}
	if cfg == nil {
		var err error
		cfg, err = engconfig.Default()
		if err != nil {
			return nil, err
		}
	}
	if log == nil {
		log = slog.Default()
	}
	m := &Manager{
		provider:           provider,
		manipulator:        manipulator,
		events:             events,
		cfg:                cfg,
		log:                log,
		portals:            make(map[portaltypes.PortalId]*portal.Portal),
		registeredEntities: make(map[portaltypes.EntityId]bool),
	}

	m.comass = comass.New(provider, log, cfg.CenterMass.DefaultUpdateFrequencyHz)
	m.clip = clipping.New(clipping.FromEngineConfig(cfg), m, log)
	m.logic = logical.New(provider, manipulator, events, log, cfg.Logical.UpdateFrequencyHz, cfg.Logical.MinEffectiveMass)
	m.teleport = teleport.New(provider, manipulator, events, m, m.clip, m.logic, true, log, cfg.Sync.DefaultSyncFrequencyHz)

	return m, nil
}

// CenterOfMass, Clipping, Logical and Teleport expose the sub-managers for
// hosts that need direct access (e.g. to call comass.SetConfig or
// teleport.SetGhostSyncPriority) without PortalManager re-declaring every
// one of their methods.
func (m *Manager) CenterOfMass() *comass.Manager { return m.comass }
func (m *Manager) Clipping() *clipping.Manager   { return m.clip }
func (m *Manager) Logical() *logical.Manager     { return m.logic }
func (m *Manager) Teleport() *teleport.Manager   { return m.teleport }

// ApplyClipping implements clipping.Sink. The host clipping API models one
// active plane per entity, so only the last plane of a node's list is
// sent: the back plane for a node that has one, otherwise its only plane
// (the front plane of the chain's last node).
func (m *Manager) ApplyClipping(id portaltypes.EntityId, planes []clipping.Plane) {
	if len(planes) == 0 {
		m.manipulator.DisableEntityClipping(id)
		return
	}
	p := planes[len(planes)-1]
	m.manipulator.SetEntityClippingPlane(id, p.Normal, p.D)
}

// ClearClipping implements clipping.Sink.
func (m *Manager) ClearClipping(id portaltypes.EntityId) {
	m.manipulator.DisableEntityClipping(id)
}

// CreatePortal allocates a new, unlinked portal plane. maxRecursionDepth
// falls back to the configured default when 0.
func (m *Manager) CreatePortal(plane portaltypes.PortalPlane, maxRecursionDepth int) portaltypes.PortalId {
	if maxRecursionDepth <= 0 {
		maxRecursionDepth = m.cfg.Portal.DefaultMaxRecursionDepth
	}
	m.nextPortalID++
	id := m.nextPortalID
	m.portals[id] = &portal.Portal{
		ID:                id,
		Plane:             plane,
		IsActive:          true,
		MaxRecursionDepth: maxRecursionDepth,
	}
	return id
}

// LinkPortals forms a bidirectional pair between a and b. Each portal may
// have at most one twin; linking replaces any previous link on either side.
func (m *Manager) LinkPortals(a, b portaltypes.PortalId) bool {
	pa, okA := m.portals[a]
	pb, okB := m.portals[b]
	if !okA || !okB {
		return false
	}
	if pa.LinkedPortalID.Valid() && pa.LinkedPortalID != b {
		m.UnlinkPortals(a, pa.LinkedPortalID)
	}
	if pb.LinkedPortalID.Valid() && pb.LinkedPortalID != a {
		m.UnlinkPortals(b, pb.LinkedPortalID)
	}
	pa.LinkedPortalID = b
	pb.LinkedPortalID = a
	if m.events != nil {
		m.events.OnPortalsLinked(a, b)
	}
	return true
}

// UnlinkPortals removes the bidirectional link between a and b, if any.
func (m *Manager) UnlinkPortals(a, b portaltypes.PortalId) {
	pa, okA := m.portals[a]
	pb, okB := m.portals[b]
	if okA && pa.LinkedPortalID == b {
		pa.LinkedPortalID = portaltypes.InvalidPortalID
	}
	if okB && pb.LinkedPortalID == a {
		pb.LinkedPortalID = portaltypes.InvalidPortalID
	}
	if (okA || okB) && m.events != nil {
		m.events.OnPortalsUnlinked(a, b)
	}
}

// DestroyPortal removes id from the portal table, unlinking its twin first.
func (m *Manager) DestroyPortal(id portaltypes.PortalId) {
	p, ok := m.portals[id]
	if !ok {
		return
	}
	if p.LinkedPortalID.Valid() {
		m.UnlinkPortals(id, p.LinkedPortalID)
	}
	delete(m.portals, id)
}

// SetPortalRecursive updates a portal's cached recursive flag, firing the
// host notification on change. CalculateRenderPasses recomputes this flag
// itself each frame; this setter exists for hosts that want to query or
// force it independently of a render pass.
func (m *Manager) SetPortalRecursive(id portaltypes.PortalId, recursive bool) {
	p, ok := m.portals[id]
	if !ok || p.IsRecursive == recursive {
		return
	}
	p.IsRecursive = recursive
	if m.events != nil {
		m.events.OnPortalRecursiveState(id, recursive)
	}
}

// GetPortal implements teleport.PortalLookup and is the read-only accessor
// hosts use to inspect portal state.
func (m *Manager) GetPortal(id portaltypes.PortalId) (portal.Portal, bool) {
	p, ok := m.portals[id]
	if !ok {
		return portal.Portal{}, false
	}
	return *p, true
}

// RegisterEntity/UnregisterEntity track which external entities the engine
// is allowed to teleport. PortalManager does not otherwise require
// registration (TeleportManager lazily creates a chain for any entity it's
// told about), but hosts use this set to scope frustum/intersection tests.
func (m *Manager) RegisterEntity(id portaltypes.EntityId) { m.registeredEntities[id] = true }
func (m *Manager) UnregisterEntity(id portaltypes.EntityId) {
	delete(m.registeredEntities, id)
}
func (m *Manager) IsEntityRegistered(id portaltypes.EntityId) bool {
	return m.registeredEntities[id]
}

// OnIntersectStart, OnCenterCrossed, OnFullyPassed and OnExitPortal
// implement IPortalPhysicsEventReceiver: each checks that every portal id
// it is given exists and, if so, forwards to TeleportManager.
func (m *Manager) OnIntersectStart(entity portaltypes.EntityId, sourcePortal, targetPortal portaltypes.PortalId, faceSrc, faceDst portaltypes.Face) {
	if _, ok := m.portals[sourcePortal]; !ok {
		return
	}
	if _, ok := m.portals[targetPortal]; !ok {
		return
	}
	m.teleport.OnIntersectStart(entity, sourcePortal, targetPortal, faceSrc, faceDst)
}

func (m *Manager) OnCenterCrossed(entity portaltypes.EntityId, portalID portaltypes.PortalId, faceCrossed portaltypes.Face) {
	if _, ok := m.portals[portalID]; !ok {
		return
	}
	m.teleport.OnCenterCrossed(entity, portalID, faceCrossed)
}

func (m *Manager) OnFullyPassed(entity portaltypes.EntityId, portalID portaltypes.PortalId) {
	if _, ok := m.portals[portalID]; !ok {
		return
	}
	m.teleport.OnFullyPassed(entity, portalID)
}

func (m *Manager) OnExitPortal(entity portaltypes.EntityId, portalID portaltypes.PortalId) {
	if _, ok := m.portals[portalID]; !ok {
		return
	}
	m.teleport.OnExitPortal(entity, portalID)
}

// TeleportEntity is the manual bypass path: it directly writes the
// transformed transform and physics state through (src, dst) without
// creating a chain node, for hosts that want an instant teleport with none
// of the continuous-crossing machinery. Hosts implementing
// hostiface.TeleportProbe get a say before the write; a blocked target
// leaves the entity where it was.
func (m *Manager) TeleportEntity(entity portaltypes.EntityId, src, dst portaltypes.PortalId, faceSrc, faceDst portaltypes.Face) TeleportResult {
	srcP, ok := m.portals[src]
	if !ok {
		return TeleportFailedInvalidPortal
	}
	dstP, ok := m.portals[dst]
	if !ok {
		return TeleportFailedInvalidPortal
	}
	t, ok := m.provider.GetEntityTransform(entity)
	if !ok {
		return TeleportFailedInvalidEntity
	}
	ps, _ := m.provider.GetEntityPhysicsState(entity)

	newT := portalmath.TransformThroughPortal(t, srcP.Plane, dstP.Plane, faceSrc, faceDst)
	newPs := portalmath.TransformPhysicsStateThroughPortal(ps, srcP.Plane, dstP.Plane, faceSrc, faceDst)

	if probe, ok := m.manipulator.(hostiface.TeleportProbe); ok {
		if probe.IsTeleportTargetBlocked(entity, newT) {
			return TeleportFailedBlocked
		}
	}

	m.manipulator.SetEntityTransform(entity, newT)
	m.manipulator.SetEntityPhysicsState(entity, newPs)
	return TeleportOK
}

// Update advances the engine by one frame: TeleportManager's ghost sync
// scheduler, then LogicalEntityManager's merge/constrain/sync-back pass,
// then CenterOfMassManager's auto-update invalidation sweep, in that
// strict order.
func (m *Manager) Update(dt float32) {
	m.teleport.Update(dt)
	m.logic.Update(dt)
	m.comass.UpdateAutoUpdateEntities(dt)
}

// CalculateRenderPasses walks every linked portal visible to cam (as
// reported by the host's RenderQuery, if registered) and produces one
// RenderPass per visible portal, recursing up to each portal's own
// max_recursion_depth and stopping early at any portal IsPortalRecursive
// detects would just show itself.
func (m *Manager) CalculateRenderPasses(cam portaltypes.CameraParams, rq hostiface.RenderQuery) []RenderPass {
	var passes []RenderPass
	for _, p := range m.portals {
		if !p.IsActive || !p.LinkedPortalID.Valid() {
			continue
		}
		if rq != nil && !rq.IsPointInViewFrustum(p.Plane.Center, cam) {
			continue
		}
		m.appendRenderPasses(&passes, cam, p, 0, rq)
	}
	return passes
}

func (m *Manager) appendRenderPasses(passes *[]RenderPass, cam portaltypes.CameraParams, src *portal.Portal, depth int, rq hostiface.RenderQuery) {
	dst, ok := m.portals[src.LinkedPortalID]
	if !ok || !dst.IsActive {
		return
	}

	virtual := portalmath.CalculatePortalCamera(cam, src.Plane, dst.Plane, portaltypes.FaceA, portaltypes.FaceB)
	recursive := portalmath.IsPortalRecursive(cam, src.Plane, dst.Plane, portaltypes.FaceA, portaltypes.FaceB)
	m.SetPortalRecursive(src.ID, recursive)

	inward := dst.Plane.FaceNormal(portaltypes.FaceB)
	*passes = append(*passes, RenderPass{
		VirtualCamera:  virtual,
		ClippingPlane:  clipping.NewPlaneFromPoint(inward, dst.Plane.Center),
		UseStencil:     true,
		StencilRef:     depth + 1,
		SourcePortalID: src.ID,
		RecursionDepth: depth,
	})

	if recursive {
		return
	}
	if depth+1 >= src.MaxRecursionDepth {
		return
	}
	if rq != nil && !rq.IsPointInViewFrustum(dst.Plane.Center, virtual) {
		return
	}
	m.appendRenderPasses(passes, virtual, dst, depth+1, rq)
}
