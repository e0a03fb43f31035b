// Package engconfig provides configuration loading for the portal engine.
// The host owns the loaded *Config and passes it explicitly to
// portalmgr.New; the library keeps no process-wide mutable state.
package engconfig

import (
	_ "embed"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds every tunable parameter of the portal engine.
type Config struct {
	Epsilon    EpsilonConfig    `yaml:"epsilon"`
	Portal     PortalConfig     `yaml:"portal"`
	Clipping   ClippingConfig   `yaml:"clipping"`
	Logical    LogicalConfig    `yaml:"logical"`
	CenterMass CenterMassConfig `yaml:"center_of_mass"`
	Sync       SyncConfig       `yaml:"sync"`
}

// EpsilonConfig holds the small tolerances used throughout portalmath and
// the managers built on top of it.
type EpsilonConfig struct {
	AreaRatio       float32 `yaml:"area_ratio"`
	PlaneParallel   float32 `yaml:"plane_parallel"`
	PlaneCoincident float32 `yaml:"plane_coincident_distance"`
}

// PortalConfig holds portal-level defaults.
type PortalConfig struct {
	DefaultMaxRecursionDepth int `yaml:"default_max_recursion_depth"`
}

// ClippingConfig holds MultiSegmentClippingManager tunables.
type ClippingConfig struct {
	MinSegmentVisibilityThreshold float32 `yaml:"min_segment_visibility_threshold"`
	MaxVisibleSegments            int     `yaml:"max_visible_segments"`
	LODDistanceFalloff            float32 `yaml:"lod_distance_falloff"`
	AlphaStepPerSegment           float32 `yaml:"alpha_step_per_segment"`
	MinAlpha                      float32 `yaml:"min_alpha"`
}

// LogicalConfig holds LogicalEntityManager tunables.
type LogicalConfig struct {
	UpdateFrequencyHz    float32 `yaml:"update_frequency_hz"`
	MultiMemberThreshold int     `yaml:"multi_member_threshold"`
	MinEffectiveMass     float32 `yaml:"min_effective_mass"`
}

// CenterMassConfig holds CenterOfMassManager tunables.
type CenterMassConfig struct {
	DefaultUpdateFrequencyHz float32 `yaml:"default_update_frequency_hz"`
}

// SyncConfig holds TeleportManager ghost-sync scheduling tunables.
type SyncConfig struct {
	DefaultSyncFrequencyHz float32 `yaml:"default_sync_frequency_hz"`
}

// Default returns the engine's embedded default configuration.
func Default() (*Config, error) {
	return Load(nil)
}

// Load parses the embedded defaults, then overlays an optional YAML
// overlay read from r (nil means defaults only). Only fields present in
// the overlay are replaced, following yaml.v3's unmarshal-into-existing-
// struct semantics.
func Load(r io.Reader) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("engconfig: parsing embedded defaults: %w", err)
	}
	if r != nil {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("engconfig: reading overlay: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("engconfig: parsing overlay: %w", err)
		}
	}
	return cfg, nil
}

// LoadFile is a convenience wrapper over Load for the common case of a
// config file on disk.
func LoadFile(path string) (*Config, error) {
	if path == "" {
		return Default()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("engconfig: opening %s: %w", path, err)
	}
	defer f.Close()
	return Load(f)
}
