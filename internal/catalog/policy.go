package catalog

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Policy holds the tunable rules for dedup, confidence scoring and query
// bounds. Every constant the engine applies lives here rather than inline.
type Policy struct {
	Dedup       DedupPolicy      `yaml:"dedup"`
	Confidence  ConfidencePolicy `yaml:"confidence"`
	Cameras     QueryPolicy      `yaml:"cameras"`
	SpeedLimits QueryPolicy      `yaml:"speed_limits"`
	Hazards     QueryPolicy      `yaml:"hazards"`
	Segments    QueryPolicy      `yaml:"hazard_segments"`
	Zones       QueryPolicy      `yaml:"zones"`
	Route       RoutePolicy      `yaml:"route"`
}

// DedupPolicy bounds the nearest-entity probe for point candidates.
type DedupPolicy struct {
	PointToleranceM float64 `yaml:"point_tolerance_m"`
}

// ConfidencePolicy holds the per-source presets and the verification deltas.
type ConfidencePolicy struct {
	ImportPreset    float64 `yaml:"import_preset"`
	OSMPreset       float64 `yaml:"osm_preset"`
	UserPreset      float64 `yaml:"user_preset"`
	ConfirmDelta    float64 `yaml:"confirm_delta"`
	ConfirmCap      float64 `yaml:"confirm_cap"`
	ContradictDelta float64 `yaml:"contradict_delta"`
}

// QueryPolicy bounds one entity type's radius queries. Out-of-range requests
// are rejected, never clamped.
type QueryPolicy struct {
	DefaultRadiusM float64 `yaml:"default_radius_m"`
	MaxRadiusM     float64 `yaml:"max_radius_m"`
	DefaultLimit   int     `yaml:"default_limit"`
	MaxLimit       int     `yaml:"max_limit"`
}

// RoutePolicy holds the corridor widths for route queries.
type RoutePolicy struct {
	CameraBufferM     float64 `yaml:"camera_buffer_m"`
	SpeedLimitBufferM float64 `yaml:"speed_limit_buffer_m"`
}

// DefaultPolicy returns the stock rule set.
func DefaultPolicy() Policy {
	return Policy{
		Dedup: DedupPolicy{PointToleranceM: 10},
		Confidence: ConfidencePolicy{
			ImportPreset:    0.80,
			OSMPreset:       0.85,
			UserPreset:      0.50,
			ConfirmDelta:    0.05,
			ConfirmCap:      0.95,
			ContradictDelta: 0.10,
		},
		Cameras:     QueryPolicy{DefaultRadiusM: 1000, MaxRadiusM: 100_000, DefaultLimit: 100, MaxLimit: 500},
		SpeedLimits: QueryPolicy{DefaultRadiusM: 500, MaxRadiusM: 5_000, DefaultLimit: 100, MaxLimit: 500},
		Hazards:     QueryPolicy{DefaultRadiusM: 1000, MaxRadiusM: 5_000, DefaultLimit: 100, MaxLimit: 500},
		Segments:    QueryPolicy{DefaultRadiusM: 1000, MaxRadiusM: 5_000, DefaultLimit: 100, MaxLimit: 500},
		Zones:       QueryPolicy{DefaultRadiusM: 300, MaxRadiusM: 5_000, DefaultLimit: 100, MaxLimit: 500},
		Route:       RoutePolicy{CameraBufferM: 100, SpeedLimitBufferM: 50},
	}
}

// LoadPolicy reads policy overrides from a YAML file. Keys absent from the
// file keep their defaults; a missing file (or empty path) means pure
// defaults.
func LoadPolicy(path string) (Policy, error) {
	pol := DefaultPolicy()
	if path == "" {
		return pol, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return pol, nil
		}
		return pol, eris.Wrapf(err, "catalog: read policy %s", path)
	}

	// The YAML has a top-level "policy" key.
	wrapper := struct {
		Policy *Policy `yaml:"policy"`
	}{Policy: &pol}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return DefaultPolicy(), eris.Wrap(err, "catalog: parse policy")
	}
	return pol, nil
}
