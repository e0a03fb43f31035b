// Package clipping implements MultiSegmentClippingManager: for a chain of
// N members it computes the N-1 mid-planes that slice a single logical
// body into the correct per-segment clip regions, plus per-node alpha,
// stencil, and LOD visibility. It never touches a renderer directly —
// callers inject a Sink that receives the computed per-entity clip state.
package clipping

import (
	"log/slog"
	"sort"

	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/pthm-cable/portalcore/engconfig"
	"github.com/pthm-cable/portalcore/portaltypes"
)

// Plane is a clip plane in point-normal form, carrying its signed distance
// from the origin (D = dot(Normal, Point)) so it can be compared cheaply
// and handed to a host's SetEntityClippingPlane(normal, distance) call.
type Plane struct {
	Normal portaltypes.Vec3
	D      float32
}

// NewPlaneFromPoint builds a plane through point with the given normal.
func NewPlaneFromPoint(normal, point portaltypes.Vec3) Plane {
	n := rl.Vector3Normalize(normal)
	return Plane{Normal: n, D: rl.Vector3DotProduct(n, point)}
}

// Side returns which half-space p falls in relative to the plane: positive
// on the normal side, negative on the other, zero exactly on it.
func (pl Plane) Side(p portaltypes.Vec3) float32 {
	return rl.Vector3DotProduct(pl.Normal, p) - pl.D
}

// coincident reports whether two planes are near-parallel AND near the
// same offset, the only condition under which deduplication is allowed.
// Merely parallel planes at different offsets separate distinct segments
// and must never be merged.
func coincident(a, b Plane, angleEps, distEps float32) bool {
	dot := rl.Vector3DotProduct(a.Normal, b.Normal)
	if dot < 1-angleEps {
		return false
	}
	return absf(a.D-b.D) <= distEps
}

func absf(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

// SegmentInput is one member of a chain, in the order the chain holds it.
type SegmentInput struct {
	EntityID portaltypes.EntityId
	Position portaltypes.Vec3
	IsMain   bool
}

// NodeClipping is the resolved clip state for one chain member.
type NodeClipping struct {
	EntityID   portaltypes.EntityId
	Planes     []Plane
	Alpha      float32
	StencilRef int
	Visible    bool
}

// Config bundles the tunables MultiSegmentClippingManager needs; callers
// typically populate this from engconfig.ClippingConfig.
type Config struct {
	MinSegmentVisibilityThreshold float32
	MaxVisibleSegments            int
	LODDistanceFalloff            float32
	AlphaStepPerSegment           float32
	MinAlpha                      float32
	PlaneParallelEps              float32
	PlaneCoincidentDistanceEps    float32
}

// DefaultConfig returns the engine's stock tunables, matching the
// embedded engconfig defaults.
func DefaultConfig() Config {
	return Config{
		MinSegmentVisibilityThreshold: 0.05,
		MaxVisibleSegments:            6,
		LODDistanceFalloff:            0.01,
		AlphaStepPerSegment:           0.2,
		MinAlpha:                      0.3,
		PlaneParallelEps:              0.001,
		PlaneCoincidentDistanceEps:    0.01,
	}
}

// FromEngineConfig builds a clipping Config from the host's loaded
// engconfig.Config, pulling the plane-coincidence tolerances from the
// shared epsilon block rather than duplicating them.
func FromEngineConfig(cfg *engconfig.Config) Config {
	return Config{
		MinSegmentVisibilityThreshold: cfg.Clipping.MinSegmentVisibilityThreshold,
		MaxVisibleSegments:            cfg.Clipping.MaxVisibleSegments,
		LODDistanceFalloff:            cfg.Clipping.LODDistanceFalloff,
		AlphaStepPerSegment:           cfg.Clipping.AlphaStepPerSegment,
		MinAlpha:                      cfg.Clipping.MinAlpha,
		PlaneParallelEps:              cfg.Epsilon.PlaneParallel,
		PlaneCoincidentDistanceEps:    cfg.Epsilon.PlaneCoincident,
	}
}

// Sink receives the clip state the manager computes. It is the engine's
// only interaction with rendering; the manager never calls into a
// renderer itself.
type Sink interface {
	ApplyClipping(id portaltypes.EntityId, planes []Plane)
	ClearClipping(id portaltypes.EntityId)
}

// Manager computes multi-segment clip planes for chains.
type Manager struct {
	cfg  Config
	sink Sink
	log  *slog.Logger
}

// New creates a MultiSegmentClippingManager. sink may be nil if the caller
// only wants Compute's return value without dispatching to a renderer.
func New(cfg Config, sink Sink, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{cfg: cfg, sink: sink, log: log}
}

// midPlanes builds the L-1 mid-planes between consecutive chain members.
func midPlanes(chain []SegmentInput) []Plane {
	planes := make([]Plane, 0, len(chain)-1)
	for i := 0; i+1 < len(chain); i++ {
		a, b := chain[i].Position, chain[i+1].Position
		mid := rl.Vector3Scale(rl.Vector3Add(a, b), 0.5)
		dir := rl.Vector3Subtract(b, a)
		if rl.Vector3Length(dir) < 1e-6 {
			// Degenerate (two members at the same position): reuse the
			// previous plane's normal so the chain still produces L-1
			// planes rather than a zero-vector normal.
			if len(planes) > 0 {
				planes = append(planes, NewPlaneFromPoint(planes[len(planes)-1].Normal, mid))
				continue
			}
			planes = append(planes, NewPlaneFromPoint(portaltypes.Vec3{X: 1}, mid))
			continue
		}
		planes = append(planes, NewPlaneFromPoint(rl.Vector3Normalize(dir), mid))
	}
	return planes
}

// dedup merges only planes that are both near-parallel and near-coincident
// in offset.
func (m *Manager) dedup(planes []Plane) []Plane {
	if len(planes) < 2 {
		return planes
	}
	out := make([]Plane, 0, len(planes))
	out = append(out, planes[0])
	for _, p := range planes[1:] {
		if coincident(out[len(out)-1], p, m.cfg.PlaneParallelEps, m.cfg.PlaneCoincidentDistanceEps) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// alphaFor returns the base (pre-LOD) alpha for chain index i.
func (m *Manager) alphaFor(i, mainIndex int) float32 {
	if i == mainIndex {
		return 1.0
	}
	dist := i - mainIndex
	if dist < 0 {
		dist = -dist
	}
	a := 1.0 - m.cfg.AlphaStepPerSegment*float32(dist)
	if a < m.cfg.MinAlpha {
		return m.cfg.MinAlpha
	}
	return a
}

// Compute produces the per-node clip descriptors for a chain. cameraPos is
// used only for LOD alpha falloff and visibility culling.
func (m *Manager) Compute(chain []SegmentInput, cameraPos portaltypes.Vec3) []NodeClipping {
	if len(chain) == 0 {
		return nil
	}

	mainIndex := 0
	for i, s := range chain {
		if s.IsMain {
			mainIndex = i
			break
		}
	}

	results := make([]NodeClipping, len(chain))
	for i, s := range chain {
		results[i] = NodeClipping{EntityID: s.EntityID, StencilRef: i + 1}
	}

	if len(chain) < 2 {
		dist := rl.Vector3Length(rl.Vector3Subtract(chain[0].Position, cameraPos))
		results[0].Alpha = m.lodAlpha(1.0, dist)
		results[0].Visible = results[0].Alpha >= m.cfg.MinSegmentVisibilityThreshold
		return m.capVisible(results)
	}

	planes := m.dedup(midPlanes(chain))

	// Node i's descriptor: {front_plane_{i-1}, back_plane_i}, each plane's
	// positive half-space oriented toward node i. Planes here are already
	// oriented from i to i+1 (normal points from i toward i+1), so node i
	// sees plane_{i-1} as-is (it's on the positive side) and plane_i
	// flipped (it's on the negative side of the i->i+1 normal).
	for i := range chain {
		var nodePlanes []Plane
		if i-1 >= 0 && i-1 < len(planes) {
			nodePlanes = append(nodePlanes, planes[i-1])
		}
		if i < len(planes) {
			flipped := planes[i]
			flipped.Normal = rl.Vector3Scale(flipped.Normal, -1)
			flipped.D = -flipped.D
			nodePlanes = append(nodePlanes, flipped)
		}
		results[i].Planes = nodePlanes

		dist := rl.Vector3Length(rl.Vector3Subtract(chain[i].Position, cameraPos))
		results[i].Alpha = m.lodAlpha(m.alphaFor(i, mainIndex), dist)
		results[i].Visible = results[i].Alpha >= m.cfg.MinSegmentVisibilityThreshold
	}

	return m.capVisible(results)
}

func (m *Manager) lodAlpha(base, distanceToCamera float32) float32 {
	falloff := 1 - m.cfg.LODDistanceFalloff*distanceToCamera
	if falloff < 0.1 {
		falloff = 0.1
	}
	return base * falloff
}

// capVisible enforces MaxVisibleSegments by dropping the lowest-alpha
// visible segments first, logging how many were dropped (no silent
// truncation).
func (m *Manager) capVisible(results []NodeClipping) []NodeClipping {
	if m.cfg.MaxVisibleSegments <= 0 {
		return results
	}
	visible := 0
	for _, r := range results {
		if r.Visible {
			visible++
		}
	}
	if visible <= m.cfg.MaxVisibleSegments {
		return results
	}

	order := make([]int, 0, len(results))
	for i, r := range results {
		if r.Visible {
			order = append(order, i)
		}
	}
	sort.Slice(order, func(a, b int) bool { return results[order[a]].Alpha > results[order[b]].Alpha })

	dropped := 0
	for _, idx := range order[m.cfg.MaxVisibleSegments:] {
		results[idx].Visible = false
		dropped++
	}
	m.log.Debug("clipping: dropped lowest-alpha segments over the visible cap",
		slog.Int("dropped", dropped), slog.Int("cap", m.cfg.MaxVisibleSegments))
	return results
}

// Apply computes the chain's clip state and dispatches it through the
// injected Sink: ApplyClipping for visible nodes, ClearClipping for
// culled ones. No-op if no Sink was configured.
func (m *Manager) Apply(chain []SegmentInput, cameraPos portaltypes.Vec3) []NodeClipping {
	results := m.Compute(chain, cameraPos)
	if m.sink == nil {
		return results
	}
	for _, r := range results {
		if r.Visible {
			m.sink.ApplyClipping(r.EntityID, r.Planes)
		} else {
			m.sink.ClearClipping(r.EntityID)
		}
	}
	return results
}
