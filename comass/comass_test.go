package comass

import (
	"testing"

	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/pthm-cable/portalcore/hostiface"
	"github.com/pthm-cable/portalcore/portaltypes"
)

// fakeProvider is a minimal in-package test double for
// hostiface.PhysicsDataProvider.
type fakeProvider struct {
	transforms map[portaltypes.EntityId]portaltypes.Transform
	bounds     map[portaltypes.EntityId][2]portaltypes.Vec3
	physicsCOM map[portaltypes.EntityId]portaltypes.Vec3
	hostCfgs   map[portaltypes.EntityId]hostiface.CenterOfMassConfig
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		transforms: make(map[portaltypes.EntityId]portaltypes.Transform),
		bounds:     make(map[portaltypes.EntityId][2]portaltypes.Vec3),
		physicsCOM: make(map[portaltypes.EntityId]portaltypes.Vec3),
		hostCfgs:   make(map[portaltypes.EntityId]hostiface.CenterOfMassConfig),
	}
}

func (f *fakeProvider) GetEntityTransform(id portaltypes.EntityId) (portaltypes.Transform, bool) {
	t, ok := f.transforms[id]
	if !ok {
		return portaltypes.Transform{Rotation: rl.QuaternionIdentity(), Scale: portaltypes.Vec3{X: 1, Y: 1, Z: 1}}, true
	}
	return t, ok
}

func (f *fakeProvider) GetEntityPhysicsState(portaltypes.EntityId) (portaltypes.PhysicsState, bool) {
	return portaltypes.PhysicsState{}, true
}

func (f *fakeProvider) GetEntityBounds(id portaltypes.EntityId) (portaltypes.Vec3, portaltypes.Vec3, bool) {
	b, ok := f.bounds[id]
	if !ok {
		return portaltypes.Vec3{}, portaltypes.Vec3{}, false
	}
	return b[0], b[1], true
}

func (f *fakeProvider) IsEntityValid(portaltypes.EntityId) bool { return true }

func (f *fakeProvider) GetEntityDescription(portaltypes.EntityId) (hostiface.EntityDescription, bool) {
	return hostiface.EntityDescription{}, true
}

func (f *fakeProvider) CalculateEntityCenterOfMass(id portaltypes.EntityId) (portaltypes.Vec3, bool) {
	v, ok := f.physicsCOM[id]
	return v, ok
}

func (f *fakeProvider) HasCenterOfMassConfig(id portaltypes.EntityId) bool {
	_, ok := f.hostCfgs[id]
	return ok
}

func (f *fakeProvider) GetEntityCenterOfMassConfig(id portaltypes.EntityId) (hostiface.CenterOfMassConfig, bool) {
	cfg, ok := f.hostCfgs[id]
	return cfg, ok
}

func TestResolve_GeometricCenter(t *testing.T) {
	p := newFakeProvider()
	p.bounds[1] = [2]portaltypes.Vec3{{X: -2, Y: -2, Z: -2}, {X: 2, Y: 2, Z: 2}}
	p.transforms[1] = portaltypes.Transform{Position: portaltypes.Vec3{X: 10}, Rotation: rl.QuaternionIdentity(), Scale: portaltypes.Vec3{X: 1, Y: 1, Z: 1}}

	m := New(p, nil, 10)
	m.SetConfig(1, hostiface.CenterOfMassConfig{Type: portaltypes.GeometricCenter})

	r := m.Resolve(1)
	if !r.IsValid {
		t.Fatalf("expected valid result")
	}
	if r.WorldPos.X != 10 {
		t.Errorf("expected geometric center at entity origin (10,0,0), got %+v", r.WorldPos)
	}
}

func TestResolve_MissingBoundsIsInvalid(t *testing.T) {
	p := newFakeProvider()
	m := New(p, nil, 10)
	m.SetConfig(2, hostiface.CenterOfMassConfig{Type: portaltypes.GeometricCenter})

	r := m.Resolve(2)
	if r.IsValid {
		t.Errorf("expected invalid result when host has no bounds for the entity")
	}
}

func TestResolve_BoneAttachmentFallsBackWithoutBoneSource(t *testing.T) {
	p := newFakeProvider()
	p.bounds[3] = [2]portaltypes.Vec3{{X: -1, Y: -1, Z: -1}, {X: 1, Y: 1, Z: 1}}

	m := New(p, nil, 10)
	m.SetConfig(3, hostiface.CenterOfMassConfig{Type: portaltypes.BoneAttachment, BoneName: "spine"})

	r := m.Resolve(3)
	if !r.IsValid {
		t.Errorf("expected fallback to geometric center to still report valid=true")
	}
}

func TestResolve_WeightedAverageEmptyFallsBackToGeometric(t *testing.T) {
	p := newFakeProvider()
	p.bounds[4] = [2]portaltypes.Vec3{{X: -4, Y: 0, Z: 0}, {X: 0, Y: 0, Z: 0}}

	m := New(p, nil, 10)
	m.SetConfig(4, hostiface.CenterOfMassConfig{Type: portaltypes.WeightedAverageCOM})

	r := m.Resolve(4)
	if !r.IsValid || r.WorldPos.X != -2 {
		t.Errorf("expected empty weighted list to fall back to geometric center (-2,0,0), got valid=%v pos=%+v", r.IsValid, r.WorldPos)
	}
}

func TestResolve_AdoptsHostSuppliedConfig(t *testing.T) {
	p := newFakeProvider()
	p.hostCfgs[6] = hostiface.CenterOfMassConfig{Type: portaltypes.CustomPoint, CustomPointLocal: portaltypes.Vec3{X: 1, Y: 2, Z: 3}}
	p.transforms[6] = portaltypes.Transform{Rotation: rl.QuaternionIdentity(), Scale: portaltypes.Vec3{X: 1, Y: 1, Z: 1}}

	m := New(p, nil, 10)
	r := m.Resolve(6)
	if !r.IsValid {
		t.Fatalf("expected valid result from the host's own config")
	}
	if r.WorldPos.X != 1 || r.WorldPos.Y != 2 || r.WorldPos.Z != 3 {
		t.Errorf("expected host custom point (1,2,3), got %+v", r.WorldPos)
	}
}

func TestResolve_CachesUntilInvalidated(t *testing.T) {
	p := newFakeProvider()
	p.bounds[5] = [2]portaltypes.Vec3{{X: 0, Y: 0, Z: 0}, {X: 2, Y: 2, Z: 2}}

	m := New(p, nil, 10)
	m.SetConfig(5, hostiface.CenterOfMassConfig{Type: portaltypes.GeometricCenter})

	first := m.Resolve(5)

	// Mutate the underlying bounds without invalidating: cached value
	// should not change.
	p.bounds[5] = [2]portaltypes.Vec3{{X: 100, Y: 100, Z: 100}, {X: 102, Y: 102, Z: 102}}
	second := m.Resolve(5)
	if second.WorldPos != first.WorldPos {
		t.Errorf("expected cached result to be stable until invalidated")
	}

	m.Invalidate(5)
	third := m.Resolve(5)
	if third.WorldPos == first.WorldPos {
		t.Errorf("expected invalidated result to recompute")
	}
}
