package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadPolicy_EmptyPathUsesDefaults(t *testing.T) {
	pol, err := LoadPolicy("")
	require.NoError(t, err)
	assert.Equal(t, DefaultPolicy(), pol)
}

func TestLoadPolicy_MissingFileUsesDefaults(t *testing.T) {
	pol, err := LoadPolicy(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultPolicy(), pol)
}

func TestLoadPolicy_PartialFileKeepsDefaultsForAbsentKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	content := `policy:
  dedup:
    point_tolerance_m: 25
  confidence:
    user_preset: 0.4
  cameras:
    max_radius_m: 20000
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	pol, err := LoadPolicy(path)
	require.NoError(t, err)

	assert.Equal(t, 25.0, pol.Dedup.PointToleranceM)
	assert.InDelta(t, 0.4, pol.Confidence.UserPreset, 1e-9)
	assert.Equal(t, 20_000.0, pol.Cameras.MaxRadiusM)

	// Everything the file does not mention keeps its default.
	def := DefaultPolicy()
	assert.Equal(t, def.Confidence.ImportPreset, pol.Confidence.ImportPreset)
	assert.Equal(t, def.Confidence.ConfirmDelta, pol.Confidence.ConfirmDelta)
	assert.Equal(t, def.Cameras.DefaultRadiusM, pol.Cameras.DefaultRadiusM)
	assert.Equal(t, def.Zones, pol.Zones)
	assert.Equal(t, def.Route, pol.Route)
}

func TestLoadPolicy_BadYAMLFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("policy: [not: a map"), 0o644))

	_, err := LoadPolicy(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse policy")
}

func TestDefaultPolicy_CoreConstants(t *testing.T) {
	pol := DefaultPolicy()

	assert.Equal(t, 10.0, pol.Dedup.PointToleranceM)
	assert.InDelta(t, 0.05, pol.Confidence.ConfirmDelta, 1e-9)
	assert.InDelta(t, 0.95, pol.Confidence.ConfirmCap, 1e-9)
	assert.InDelta(t, 0.10, pol.Confidence.ContradictDelta, 1e-9)
	assert.Equal(t, 100_000.0, pol.Cameras.MaxRadiusM)
	assert.Equal(t, 100.0, pol.Route.CameraBufferM)
	assert.Equal(t, 50.0, pol.Route.SpeedLimitBufferM)
}
