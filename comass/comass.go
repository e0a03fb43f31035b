// Package comass implements CenterOfMassManager: per-entity center-of-mass
// resolution under one of six policies, with caching and host-driven
// mesh-change invalidation.
package comass

import (
	"log/slog"

	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/pthm-cable/portalcore/hostiface"
	"github.com/pthm-cable/portalcore/portaltypes"
)

// Result is a resolved center-of-mass computation.
type Result struct {
	LocalPos        portaltypes.Vec3
	WorldPos        portaltypes.Vec3
	IsValid         bool
	CalculationTick uint64
}

type entry struct {
	cfg    hostiface.CenterOfMassConfig
	hasCfg bool
	cached Result
	fresh  bool
}

// Manager resolves and caches center-of-mass results per entity.
type Manager struct {
	provider hostiface.PhysicsDataProvider
	log      *slog.Logger

	entries map[portaltypes.EntityId]*entry

	tick           uint64
	accumulatedSec float32
	updateHz       float32
}

// New creates a CenterOfMassManager. provider is required; log may be nil
// (slog.Default() is used).
func New(provider hostiface.PhysicsDataProvider, log *slog.Logger, updateFrequencyHz float32) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		provider: provider,
		log:      log,
		entries:  make(map[portaltypes.EntityId]*entry),
		updateHz: updateFrequencyHz,
	}
}

// SetConfig installs or replaces an entity's center-of-mass config and
// invalidates its cache.
func (m *Manager) SetConfig(id portaltypes.EntityId, cfg hostiface.CenterOfMassConfig) {
	e := m.entryFor(id)
	e.cfg = cfg
	e.hasCfg = true
	e.fresh = false
}

// OnMeshChanged invalidates an entity's cached result if its config asks
// to auto-update on mesh change.
func (m *Manager) OnMeshChanged(id portaltypes.EntityId) {
	e, ok := m.entries[id]
	if !ok {
		return
	}
	if e.hasCfg && e.cfg.AutoUpdateOnMeshChange {
		e.fresh = false
	}
}

// Invalidate forces the next Resolve to recompute.
func (m *Manager) Invalidate(id portaltypes.EntityId) {
	if e, ok := m.entries[id]; ok {
		e.fresh = false
	}
}

func (m *Manager) entryFor(id portaltypes.EntityId) *entry {
	e, ok := m.entries[id]
	if !ok {
		e = &entry{}
		m.entries[id] = e
	}
	return e
}

// Resolve returns the entity's current center of mass, computing and
// caching it if necessary. DynamicCalculated configs always recompute.
func (m *Manager) Resolve(id portaltypes.EntityId) Result {
	e := m.entryFor(id)
	if e.hasCfg && e.cfg.Type == portaltypes.DynamicCalculated {
		e.cached = m.computeSafe(id, e)
		e.cached.CalculationTick = m.tick
		e.fresh = true
		return e.cached
	}
	if !e.fresh {
		e.cached = m.computeSafe(id, e)
		e.cached.CalculationTick = m.tick
		e.fresh = true
	}
	return e.cached
}

// computeSafe wraps compute with a recover so that any policy-specific
// panic (a misbehaving host callback, a nil map, ...) degrades to the
// geometric-center fallback instead of crossing the library boundary.
func (m *Manager) computeSafe(id portaltypes.EntityId, e *entry) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Warn("center of mass computation panicked, falling back to geometric center",
				slog.Uint64("entity_id", uint64(id)), slog.Any("recover", r))
			result = m.geometricCenter(id)
			result.IsValid = true
		}
	}()

	if !e.hasCfg {
		// No locally-installed config: the host itself may carry one.
		if m.provider.HasCenterOfMassConfig(id) {
			if cfg, ok := m.provider.GetEntityCenterOfMassConfig(id); ok {
				e.cfg = cfg
				e.hasCfg = true
				return m.compute(id, cfg)
			}
		}
		return m.geometricCenter(id)
	}
	return m.compute(id, e.cfg)
}

func (m *Manager) compute(id portaltypes.EntityId, cfg hostiface.CenterOfMassConfig) Result {
	switch cfg.Type {
	case portaltypes.GeometricCenter:
		return m.geometricCenter(id)
	case portaltypes.PhysicsCenter, portaltypes.DynamicCalculated:
		return m.physicsCenter(id)
	case portaltypes.CustomPoint:
		return m.worldFromLocal(id, cfg.CustomPointLocal)
	case portaltypes.BoneAttachment:
		return m.boneCenter(id, cfg)
	case portaltypes.WeightedAverageCOM:
		return m.weightedAverage(id, cfg)
	default:
		return m.geometricCenter(id)
	}
}

func (m *Manager) worldFromLocal(id portaltypes.EntityId, local portaltypes.Vec3) Result {
	t, ok := m.provider.GetEntityTransform(id)
	if !ok {
		return Result{IsValid: false}
	}
	world := rl.Vector3Add(t.Position, rl.Vector3RotateByQuaternion(rl.Vector3Multiply(local, t.Scale), t.Rotation))
	return Result{LocalPos: local, WorldPos: world, IsValid: true}
}

func (m *Manager) geometricCenter(id portaltypes.EntityId) Result {
	min, max, ok := m.provider.GetEntityBounds(id)
	if !ok {
		return Result{IsValid: false}
	}
	local := rl.Vector3Scale(rl.Vector3Add(min, max), 0.5)
	return m.worldFromLocal(id, local)
}

func (m *Manager) physicsCenter(id portaltypes.EntityId) Result {
	world, ok := m.provider.CalculateEntityCenterOfMass(id)
	if !ok {
		m.log.Warn("physics center of mass unavailable, falling back to geometric center", slog.Uint64("entity_id", uint64(id)))
		r := m.geometricCenter(id)
		r.IsValid = true
		return r
	}
	return Result{WorldPos: world, IsValid: true}
}

func (m *Manager) boneCenter(id portaltypes.EntityId, cfg hostiface.CenterOfMassConfig) Result {
	if cfg.BoneName == "" {
		m.log.Warn("bone attachment config has no bone name, falling back to geometric center", slog.Uint64("entity_id", uint64(id)))
		r := m.geometricCenter(id)
		r.IsValid = true
		return r
	}
	src, ok := m.provider.(hostiface.BoneSource)
	if !ok {
		m.log.Warn("host does not implement BoneSource, falling back to geometric center", slog.Uint64("entity_id", uint64(id)))
		r := m.geometricCenter(id)
		r.IsValid = true
		return r
	}
	world, ok := src.GetBoneWorldPosition(id, cfg.BoneName)
	if !ok {
		m.log.Warn("named bone not found, falling back to geometric center",
			slog.Uint64("entity_id", uint64(id)), slog.String("bone", cfg.BoneName))
		r := m.geometricCenter(id)
		r.IsValid = true
		return r
	}
	return Result{WorldPos: world, IsValid: true}
}

func (m *Manager) weightedAverage(id portaltypes.EntityId, cfg hostiface.CenterOfMassConfig) Result {
	if len(cfg.WeightedPointsLocal) == 0 {
		r := m.geometricCenter(id)
		r.IsValid = true
		return r
	}
	if len(cfg.WeightedPointMasses) == 0 || allZero(cfg.WeightedPointMasses) {
		// Missing mass distribution: fall back to the first configured
		// point (an empty point list already took the geometric center).
		return m.worldFromLocal(id, cfg.WeightedPointsLocal[0])
	}

	var sumMass float32
	var weighted portaltypes.Vec3
	for i, p := range cfg.WeightedPointsLocal {
		mass := float32(0)
		if i < len(cfg.WeightedPointMasses) {
			mass = cfg.WeightedPointMasses[i]
		}
		weighted = rl.Vector3Add(weighted, rl.Vector3Scale(p, mass))
		sumMass += mass
	}
	if sumMass < 1e-6 {
		return m.worldFromLocal(id, cfg.WeightedPointsLocal[0])
	}
	local := rl.Vector3Scale(weighted, 1/sumMass)
	return m.worldFromLocal(id, local)
}

func allZero(xs []float32) bool {
	for _, x := range xs {
		if x != 0 {
			return false
		}
	}
	return true
}

// UpdateAutoUpdateEntities advances the internal accumulator by dt and, at
// updateHz, invalidates the cache of every entity whose config enables
// auto-update-on-mesh-change, so the next Resolve recomputes. This mirrors
// the "auto-update pass runs at update_frequency Hz" requirement without
// needing to know about mesh events the host didn't report.
func (m *Manager) UpdateAutoUpdateEntities(dt float32) {
	if m.updateHz <= 0 {
		return
	}
	m.accumulatedSec += dt
	period := 1 / m.updateHz
	if m.accumulatedSec < period {
		return
	}
	m.accumulatedSec -= period
	m.tick++

	for _, e := range m.entries {
		if e.hasCfg && e.cfg.AutoUpdateOnMeshChange {
			e.fresh = false
		}
	}
}
