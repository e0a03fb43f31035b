// Package logical implements LogicalEntityManager: it merges the transform,
// velocity, force, and torque of every member of a chain into one unified
// physics state under a chosen strategy, collects per-member collision
// constraints, and pushes the unified state back to the members.
package logical

import (
	"fmt"
	"log/slog"
	"strings"

	rl "github.com/gen2brain/raylib-go/raylib"
	"gonum.org/v1/gonum/mat"

	"github.com/pthm-cable/portalcore/hostiface"
	"github.com/pthm-cable/portalcore/portaltypes"
)

// State is the full set of member bookkeeping and the currently-unified
// physics/transform the manager maintains for a chain.
type State struct {
	LogicalID          portaltypes.LogicalEntityId
	ControlledEntities []portaltypes.EntityId
	EntityWeights      []float32
	PrimaryEntityID    portaltypes.EntityId

	TotalMass    float32
	CenterOfMass portaltypes.Vec3

	SegmentForces  []portaltypes.Vec3
	SegmentTorques []portaltypes.Vec3

	UnifiedTransform portaltypes.Transform
	UnifiedPhysics   portaltypes.PhysicsState
	Constrained      bool
	ConstraintState  hostiface.PhysicsConstraintState

	MergeStrategy        portaltypes.MergeStrategy
	MainWeight           float32
	GhostWeight          float32
	UsePhysicsSimulation bool
	IgnoreEnginePhysics  bool

	SimulationProxyEntity portaltypes.EntityId
	HasSimulationProxy    bool
}

// DebugString renders the logical entity's membership and unified state
// one line per record for diagnostics.
func (s *State) DebugString() string {
	var b strings.Builder
	fmt.Fprintf(&b, "logical id=%d strategy=%s mass=%.3f com=(%.2f,%.2f,%.2f) constrained=%v\n",
		s.LogicalID, s.MergeStrategy, s.TotalMass,
		s.CenterOfMass.X, s.CenterOfMass.Y, s.CenterOfMass.Z, s.Constrained)
	for i, e := range s.ControlledEntities {
		w := float32(1)
		if i < len(s.EntityWeights) {
			w = s.EntityWeights[i]
		}
		fmt.Fprintf(&b, "  [%d] entity=%d weight=%.2f\n", i, e, w)
	}
	return b.String()
}

// Manager owns every LogicalEntityState and the EntityId -> LogicalEntityId
// side table.
type Manager struct {
	provider    hostiface.PhysicsDataProvider
	manipulator hostiface.PhysicsManipulator
	events      hostiface.PortalEventHandler // optional, may be nil
	log         *slog.Logger

	states          map[portaltypes.LogicalEntityId]*State
	entityToLogical map[portaltypes.EntityId]portaltypes.LogicalEntityId
	nextID          portaltypes.LogicalEntityId

	updateHz         float32
	accumulatedSec   float32
	minEffectiveMass float32
}

// New creates a LogicalEntityManager. events may be nil — every call site
// guards it with a nil check before invoking a callback.
func New(provider hostiface.PhysicsDataProvider, manipulator hostiface.PhysicsManipulator, events hostiface.PortalEventHandler, log *slog.Logger, updateFrequencyHz, minEffectiveMass float32) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		provider:         provider,
		manipulator:      manipulator,
		events:           events,
		log:              log,
		states:           make(map[portaltypes.LogicalEntityId]*State),
		entityToLogical:  make(map[portaltypes.EntityId]portaltypes.LogicalEntityId),
		updateHz:         updateFrequencyHz,
		minEffectiveMass: minEffectiveMass,
	}
}

func (m *Manager) allocID() portaltypes.LogicalEntityId {
	m.nextID++
	return m.nextID
}

// Create merges a main/ghost pair under strategy, with the strategy's
// default weights.
func (m *Manager) Create(main, ghost portaltypes.EntityId, strategy portaltypes.MergeStrategy) portaltypes.LogicalEntityId {
	mainWeight, ghostWeight, usePhysicsSim := defaultWeights(strategy)
	return m.createWithEntities([]portaltypes.EntityId{main, ghost}, []float32{mainWeight, ghostWeight}, strategy, usePhysicsSim)
}

func defaultWeights(strategy portaltypes.MergeStrategy) (mainWeight, ghostWeight float32, usePhysicsSim bool) {
	switch strategy {
	case portaltypes.MainPriority:
		return 1, 0, false
	case portaltypes.GhostPriority:
		return 0, 1, false
	case portaltypes.WeightedAverage:
		return 0.5, 0.5, false
	case portaltypes.ForceSummation:
		return 1, 1, false
	case portaltypes.PhysicsSimulation:
		return 1, 1, true
	default:
		return 0.5, 0.5, false
	}
}

// CreateMultiEntityLogicalControl generalizes Create to an arbitrary chain
// of members and explicit weights.
func (m *Manager) CreateMultiEntityLogicalControl(entities []portaltypes.EntityId, weights []float32, strategy portaltypes.MergeStrategy) portaltypes.LogicalEntityId {
	_, _, usePhysicsSim := defaultWeights(strategy)
	return m.createWithEntities(entities, weights, strategy, usePhysicsSim)
}

func (m *Manager) createWithEntities(entities []portaltypes.EntityId, weights []float32, strategy portaltypes.MergeStrategy, usePhysicsSim bool) portaltypes.LogicalEntityId {
	id := m.allocID()
	mainWeight, ghostWeight := float32(0), float32(0)
	if len(weights) > 0 {
		mainWeight = weights[0]
	}
	if len(weights) > 1 {
		ghostWeight = weights[1]
	}

	s := &State{
		LogicalID:            id,
		ControlledEntities:   append([]portaltypes.EntityId(nil), entities...),
		EntityWeights:        append([]float32(nil), weights...),
		PrimaryEntityID:      firstOrZero(entities),
		MergeStrategy:        strategy,
		MainWeight:           mainWeight,
		GhostWeight:          ghostWeight,
		UsePhysicsSimulation: usePhysicsSim,
	}

	m.states[id] = s
	for _, e := range entities {
		m.entityToLogical[e] = id
		m.manipulator.SetEntityPhysicsEngineControlled(e, false)
	}

	m.recomputeChainMassProperties(s)
	m.merge(s)

	if m.events != nil {
		m.events.OnLogicalEntityCreated(id)
	}
	return id
}

func firstOrZero(ids []portaltypes.EntityId) portaltypes.EntityId {
	if len(ids) == 0 {
		return portaltypes.InvalidEntityID
	}
	return ids[0]
}

// Destroy restores engine control to every member and removes all side
// tables for the logical entity.
func (m *Manager) Destroy(id portaltypes.LogicalEntityId) {
	s, ok := m.states[id]
	if !ok {
		return
	}
	for _, e := range s.ControlledEntities {
		m.manipulator.SetEntityPhysicsEngineControlled(e, true)
		delete(m.entityToLogical, e)
	}
	if s.HasSimulationProxy {
		m.manipulator.DestroyPhysicsSimulationProxy(s.SimulationProxyEntity)
	}
	delete(m.states, id)
	if m.events != nil {
		m.events.OnLogicalEntityDestroyed(id)
	}
}

// LogicalIDFor returns the logical entity controlling the given member, if
// any.
func (m *Manager) LogicalIDFor(entity portaltypes.EntityId) (portaltypes.LogicalEntityId, bool) {
	id, ok := m.entityToLogical[entity]
	return id, ok
}

// SetStrategy changes an existing logical entity's merge strategy, used by
// TeleportManager when a chain's state (actively teleporting, length > 3,
// ...) calls for a different merge behavior than the one it was created
// with.
func (m *Manager) SetStrategy(id portaltypes.LogicalEntityId, strategy portaltypes.MergeStrategy) {
	if s, ok := m.states[id]; ok {
		s.MergeStrategy = strategy
	}
}

// SetControlledEntities replaces the member list of an existing logical
// entity (used by TeleportManager to keep the logical entity's membership
// in sync with chain structure). Members leaving the set get engine
// control back; members joining it give engine control up, so no entity
// is ever left double-governed or ungoverned.
func (m *Manager) SetControlledEntities(id portaltypes.LogicalEntityId, entities []portaltypes.EntityId, weights []float32) {
	s, ok := m.states[id]
	if !ok {
		return
	}

	next := make(map[portaltypes.EntityId]bool, len(entities))
	for _, e := range entities {
		next[e] = true
	}
	prev := make(map[portaltypes.EntityId]bool, len(s.ControlledEntities))
	for _, e := range s.ControlledEntities {
		prev[e] = true
		delete(m.entityToLogical, e)
		if !next[e] {
			m.manipulator.SetEntityPhysicsEngineControlled(e, true)
		}
	}

	s.ControlledEntities = append([]portaltypes.EntityId(nil), entities...)
	s.EntityWeights = append([]float32(nil), weights...)
	for _, e := range entities {
		m.entityToLogical[e] = id
		if !prev[e] {
			m.manipulator.SetEntityPhysicsEngineControlled(e, false)
		}
	}
}

// memberData is one member's sampled state during a mass-property pass.
type memberData struct {
	pos  portaltypes.Vec3
	mass float32
	ps   portaltypes.PhysicsState
	ok   bool
}

// recomputeChainMassProperties aggregates total mass, center of mass, and
// (via the parallel-axis theorem, using gonum/mat for the 3x3 tensor
// arithmetic) the unified inertia tensor's diagonal.
func (m *Manager) recomputeChainMassProperties(s *State) {
	members := make([]memberData, len(s.ControlledEntities))
	var total float32
	var weightedPos portaltypes.Vec3

	for i, e := range s.ControlledEntities {
		t, tok := m.provider.GetEntityTransform(e)
		ps, pok := m.provider.GetEntityPhysicsState(e)
		w := float32(1)
		if i < len(s.EntityWeights) {
			w = s.EntityWeights[i]
		}
		effMass := ps.Mass * w
		members[i] = memberData{pos: t.Position, mass: effMass, ps: ps, ok: tok && pok}
		if !members[i].ok {
			continue
		}
		total += effMass
		weightedPos = rl.Vector3Add(weightedPos, rl.Vector3Scale(t.Position, effMass))
	}

	if total < m.minEffectiveMass {
		// Degenerate effective mass: fall back to an unweighted geometric
		// mean of positions with mass 1.
		var sum portaltypes.Vec3
		n := 0
		for _, md := range members {
			if !md.ok {
				continue
			}
			sum = rl.Vector3Add(sum, md.pos)
			n++
		}
		if n == 0 {
			s.TotalMass = 1
			return
		}
		s.CenterOfMass = rl.Vector3Scale(sum, 1/float32(n))
		s.TotalMass = 1
		s.UnifiedPhysics.InertiaDiagonal = portaltypes.Vec3{X: 1, Y: 1, Z: 1}
		return
	}

	s.TotalMass = total
	s.CenterOfMass = rl.Vector3Scale(weightedPos, 1/total)
	s.UnifiedPhysics.InertiaDiagonal = aggregateInertia(members, s.CenterOfMass)
}

// aggregateInertia sums each member's own diagonal inertia tensor, shifted
// to the shared center of mass by the parallel-axis theorem
// (I' = I + m(|d|^2 * Id3 - d*d^T)), and returns the resulting tensor's
// diagonal. gonum/mat carries the 3x3 linear algebra; the engine's
// PhysicsState only models a diagonal tensor, so off-diagonal coupling
// terms introduced by the shift are computed but intentionally discarded
// when read back out — see DESIGN.md.
func aggregateInertia(members []memberData, com portaltypes.Vec3) portaltypes.Vec3 {
	total := mat.NewDense(3, 3, nil)
	for _, md := range members {
		if !md.ok {
			continue
		}
		d := rl.Vector3Subtract(md.pos, com)
		local := mat.NewDiagDense(3, []float64{
			float64(md.ps.InertiaDiagonal.X),
			float64(md.ps.InertiaDiagonal.Y),
			float64(md.ps.InertiaDiagonal.Z),
		})

		dvec := []float64{float64(d.X), float64(d.Y), float64(d.Z)}
		dSq := dvec[0]*dvec[0] + dvec[1]*dvec[1] + dvec[2]*dvec[2]

		shift := mat.NewDense(3, 3, nil)
		for r := 0; r < 3; r++ {
			for c := 0; c < 3; c++ {
				v := -dvec[r] * dvec[c]
				if r == c {
					v += dSq
				}
				shift.Set(r, c, v*float64(md.mass))
			}
		}

		var shifted mat.Dense
		shifted.Add(local, shift)
		total.Add(total, &shifted)
	}

	return portaltypes.Vec3{
		X: float32(total.At(0, 0)),
		Y: float32(total.At(1, 1)),
		Z: float32(total.At(2, 2)),
	}
}

// Update advances the manager's rate-limited tick. Every logical entity is
// re-merged at most updateHz times per second.
func (m *Manager) Update(dt float32) {
	if m.updateHz <= 0 {
		m.updateOnce()
		return
	}
	m.accumulatedSec += dt
	period := 1 / m.updateHz
	for m.accumulatedSec >= period {
		m.accumulatedSec -= period
		m.updateOnce()
	}
}

func (m *Manager) updateOnce() {
	for _, s := range m.states {
		m.recomputeChainMassProperties(s)
		m.merge(s)
		m.distributeConstraints(s)
		m.syncBack(s)
	}
}

// merge dispatches to the strategy-specific combination step. The choice
// depends on the strategy alone, whatever the number of controlled
// members: MainPriority takes the first member's state and GhostPriority
// the last member's.
func (m *Manager) merge(s *State) {
	s.SegmentForces = make([]portaltypes.Vec3, len(s.ControlledEntities))
	s.SegmentTorques = make([]portaltypes.Vec3, len(s.ControlledEntities))

	transforms, physics := m.collectMembers(s.ControlledEntities)
	for i := range s.ControlledEntities {
		s.SegmentForces[i] = physics[i].AppliedForce
		s.SegmentTorques[i] = physics[i].AppliedTorque
	}

	switch s.MergeStrategy {
	case portaltypes.ForceSummation:
		m.mergeForceSummation(s, transforms, physics)
	case portaltypes.WeightedAverage:
		m.mergeWeightedAverage(s, transforms, physics)
	case portaltypes.PhysicsSimulation:
		m.mergeForceSummation(s, transforms, physics)
		m.mergePhysicsSimulationProxy(s)
	case portaltypes.MostRestrictive:
		m.mergeMostRestrictive(s, transforms, physics)
	case portaltypes.MainPriority:
		m.mergePriority(s, transforms, physics, 0)
	case portaltypes.GhostPriority:
		m.mergePriority(s, transforms, physics, lastIndex(len(transforms)))
	default:
		m.mergeWeightedAverage(s, transforms, physics)
	}

	if m.events != nil {
		m.events.OnLogicalEntityStateMerged(s.LogicalID, s.MergeStrategy)
	}
}

// collectMembers samples every member's transform and physics state, in
// one batch call when the host implements hostiface.BatchDataProvider and
// per-entity otherwise.
func (m *Manager) collectMembers(ids []portaltypes.EntityId) ([]portaltypes.Transform, []portaltypes.PhysicsState) {
	if bp, ok := m.provider.(hostiface.BatchDataProvider); ok {
		ts, _ := bp.GetEntityTransforms(ids)
		pss, _ := bp.GetEntityPhysicsStates(ids)
		if len(ts) == len(ids) && len(pss) == len(ids) {
			return ts, pss
		}
	}
	ts := make([]portaltypes.Transform, len(ids))
	pss := make([]portaltypes.PhysicsState, len(ids))
	for i, e := range ids {
		ts[i], _ = m.provider.GetEntityTransform(e)
		pss[i], _ = m.provider.GetEntityPhysicsState(e)
	}
	return ts, pss
}

func lastIndex(n int) int {
	if n == 0 {
		return 0
	}
	return n - 1
}

func (m *Manager) weightOf(s *State, i int) float32 {
	if i < len(s.EntityWeights) {
		return s.EntityWeights[i]
	}
	return 1
}

func (m *Manager) mergePriority(s *State, transforms []portaltypes.Transform, physics []portaltypes.PhysicsState, idx int) {
	if idx >= len(transforms) {
		return
	}
	s.UnifiedTransform = transforms[idx]
	s.UnifiedPhysics = physics[idx]
}

func (m *Manager) mergeForceSummation(s *State, transforms []portaltypes.Transform, physics []portaltypes.PhysicsState) {
	var totalForce, totalTorque, velSum, angVelSum portaltypes.Vec3
	var weightSum float32
	for i, ps := range physics {
		w := m.weightOf(s, i)
		totalForce = rl.Vector3Add(totalForce, rl.Vector3Scale(ps.AppliedForce, w))

		lever := rl.Vector3CrossProduct(rl.Vector3Subtract(transforms[i].Position, s.CenterOfMass), ps.AppliedForce)
		totalTorque = rl.Vector3Add(totalTorque, rl.Vector3Add(rl.Vector3Scale(ps.AppliedTorque, w), lever))

		velSum = rl.Vector3Add(velSum, rl.Vector3Scale(ps.LinearVelocity, w))
		angVelSum = rl.Vector3Add(angVelSum, rl.Vector3Scale(ps.AngularVelocity, w))
		weightSum += w
	}
	if weightSum < 1e-6 {
		weightSum = 1
	}

	unified := s.UnifiedPhysics
	unified.AppliedForce = totalForce
	unified.AppliedTorque = totalTorque
	unified.LinearVelocity = rl.Vector3Scale(velSum, 1/weightSum)
	unified.AngularVelocity = rl.Vector3Scale(angVelSum, 1/weightSum)
	unified.Mass = s.TotalMass
	s.UnifiedPhysics = unified
	s.UnifiedTransform = transformAt(transforms, s.PrimaryEntityID, s.ControlledEntities)
}

func (m *Manager) mergeWeightedAverage(s *State, transforms []portaltypes.Transform, physics []portaltypes.PhysicsState) {
	var weightSum float32
	var pos, vel, angVel, force, torque portaltypes.Vec3
	for i, ps := range physics {
		w := m.weightOf(s, i)
		pos = rl.Vector3Add(pos, rl.Vector3Scale(transforms[i].Position, w))
		vel = rl.Vector3Add(vel, rl.Vector3Scale(ps.LinearVelocity, w))
		angVel = rl.Vector3Add(angVel, rl.Vector3Scale(ps.AngularVelocity, w))
		force = rl.Vector3Add(force, rl.Vector3Scale(ps.AppliedForce, w))
		torque = rl.Vector3Add(torque, rl.Vector3Scale(ps.AppliedTorque, w))
		weightSum += w
	}
	if weightSum < 1e-6 {
		weightSum = 1
	}
	inv := 1 / weightSum

	unified := s.UnifiedPhysics
	unified.LinearVelocity = rl.Vector3Scale(vel, inv)
	unified.AngularVelocity = rl.Vector3Scale(angVel, inv)
	unified.AppliedForce = rl.Vector3Scale(force, inv)
	unified.AppliedTorque = rl.Vector3Scale(torque, inv)
	unified.Mass = s.TotalMass
	s.UnifiedPhysics = unified

	t := s.UnifiedTransform
	t.Position = rl.Vector3Scale(pos, inv)
	if len(transforms) > 0 {
		t.Rotation = transforms[0].Rotation
		t.Scale = transforms[0].Scale
	}
	s.UnifiedTransform = t
}

func (m *Manager) mergeMostRestrictive(s *State, transforms []portaltypes.Transform, physics []portaltypes.PhysicsState) {
	// Still sum forces/torques (so any blocked member halts the whole
	// logical entity), but take the slowest member as the representative
	// transform and base velocity.
	m.mergeForceSummation(s, transforms, physics)

	slowest := 0
	slowestSpeed := float32(-1)
	for i, ps := range physics {
		speed := rl.Vector3Length(ps.LinearVelocity)
		if slowestSpeed < 0 || speed < slowestSpeed {
			slowestSpeed = speed
			slowest = i
		}
	}
	if slowest < len(transforms) {
		s.UnifiedTransform.Position = transforms[slowest].Position
		s.UnifiedTransform.Rotation = transforms[slowest].Rotation
		s.UnifiedPhysics.LinearVelocity = physics[slowest].LinearVelocity
		s.UnifiedPhysics.AngularVelocity = physics[slowest].AngularVelocity
	}
}

func (m *Manager) mergePhysicsSimulationProxy(s *State) {
	if !s.HasSimulationProxy {
		desc := hostiface.EntityDescription{}
		s.SimulationProxyEntity = m.manipulator.CreatePhysicsSimulationProxy(desc, s.UnifiedTransform, s.UnifiedPhysics)
		s.HasSimulationProxy = true
	}
	m.manipulator.ApplyForceToProxy(s.SimulationProxyEntity, s.UnifiedPhysics.AppliedForce)
	m.manipulator.ApplyTorqueToProxy(s.SimulationProxyEntity, s.UnifiedPhysics.AppliedTorque)

	// The external integrator is assumed to have run between the previous
	// frame's proxy update and this one; pull its resulting state back as
	// the authoritative unified state.
	if t, ok := m.provider.GetEntityTransform(s.SimulationProxyEntity); ok {
		s.UnifiedTransform = t
	}
	if ps, ok := m.provider.GetEntityPhysicsState(s.SimulationProxyEntity); ok {
		s.UnifiedPhysics = ps
	}
}

func transformAt(transforms []portaltypes.Transform, primary portaltypes.EntityId, entities []portaltypes.EntityId) portaltypes.Transform {
	for i, e := range entities {
		if e == primary && i < len(transforms) {
			return transforms[i]
		}
	}
	if len(transforms) > 0 {
		return transforms[0]
	}
	return portaltypes.Transform{Rotation: rl.QuaternionIdentity(), Scale: portaltypes.Vec3{X: 1, Y: 1, Z: 1}}
}

// distributeConstraints queries every member's collision constraints and,
// if any report blocked, removes the blocked component of the unified
// velocity and applies the combined allowed velocity.
func (m *Manager) distributeConstraints(s *State) {
	var blockedCount int
	var normalSum, allowedSum portaltypes.Vec3

	for _, e := range s.ControlledEntities {
		c, ok := m.manipulator.DetectEntityCollisionConstraints(e)
		if !ok || !c.IsBlocked {
			continue
		}
		blockedCount++
		normalSum = rl.Vector3Add(normalSum, c.BlockingNormal)
		allowedSum = rl.Vector3Add(allowedSum, c.AllowedVelocity)
	}

	wasConstrained := s.Constrained
	if blockedCount == 0 {
		if wasConstrained && m.events != nil {
			m.events.OnLogicalEntityConstraintReleased(s.LogicalID)
		}
		s.Constrained = false
		return
	}

	normal := rl.Vector3Normalize(normalSum)
	allowed := rl.Vector3Scale(allowedSum, 1/float32(blockedCount))

	v := s.UnifiedPhysics.LinearVelocity
	along := rl.Vector3DotProduct(v, normal)
	if along < 0 {
		v = rl.Vector3Subtract(v, rl.Vector3Scale(normal, along))
	}
	v = rl.Vector3Add(v, allowed)
	s.UnifiedPhysics.LinearVelocity = v

	s.Constrained = true
	s.ConstraintState = hostiface.PhysicsConstraintState{IsBlocked: true, BlockingNormal: normal, AllowedVelocity: allowed}
	if m.events != nil {
		m.events.OnLogicalEntityConstrained(s.LogicalID, s.ConstraintState)
	}
}

// syncBack writes the unified state to every member, preserving each
// member's rigid offset from the shared center of mass.
func (m *Manager) syncBack(s *State) {
	ids := make([]portaltypes.EntityId, len(s.ControlledEntities))
	ts := make([]portaltypes.Transform, len(s.ControlledEntities))
	pss := make([]portaltypes.PhysicsState, len(s.ControlledEntities))

	for i, e := range s.ControlledEntities {
		t, _ := m.provider.GetEntityTransform(e)
		offset := rl.Vector3Subtract(t.Position, s.CenterOfMass)

		target := s.UnifiedTransform
		target.Position = rl.Vector3Add(s.UnifiedTransform.Position, offset)

		ids[i] = e
		ts[i] = target
		pss[i] = s.UnifiedPhysics
	}
	m.manipulator.ForceSetEntitiesPhysicsStates(ids, ts, pss)
}
