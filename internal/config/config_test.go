package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 32633, cfg.Tiles.SRID)
	assert.Equal(t, 25832, cfg.Analysis.SRID)
	assert.Equal(t, []float64{512, 512}, cfg.Tiles.TileSize)
	assert.Equal(t, 1, cfg.Tiles.ZoomLevel)
	assert.True(t, cfg.Tiles.SwapAxes)
	assert.False(t, cfg.Tiles.FlipY)
	assert.InDelta(t, 0.01, cfg.Clean.SnapTolerance, 1e-12)
	assert.InDelta(t, 250.0, cfg.Clean.SimplifyTolerance, 1e-12)
	assert.Len(t, cfg.Analysis.StatePrefixes, 10)
	assert.False(t, cfg.Analysis.Reproject)
	assert.Equal(t, "vg250_gem", cfg.Inputs.Admin.Layer)
	assert.Equal(t, "municipalities", cfg.Output.UnitsLayer)
	assert.Equal(t, "historical_polygon", cfg.Output.HistoricalLayer)
	assert.Equal(t, []string{"Catholic"}, cfg.Attributes.Confessions)
	assert.Zero(t, cfg.Attributes.ReferenceYear)
	assert.Equal(t, "start_rel", cfg.Attributes.StartKey)
	assert.Equal(t, "end_rel", cfg.Attributes.EndKey)
	assert.NoError(t, cfg.Validate("run"))
	assert.NoError(t, cfg.Validate("fetch"))
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
log:
  level: debug
  format: console
tiles:
  flip_y: true
  rows: 4
analysis:
  reproject: true
  state_prefixes: ["16"]
attributes:
  reference_year: 1648
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.True(t, cfg.Tiles.FlipY)
	assert.Equal(t, 4, cfg.Tiles.Rows)
	assert.True(t, cfg.Analysis.Reproject)
	assert.Equal(t, []string{"16"}, cfg.Analysis.StatePrefixes)
	assert.Equal(t, 1648, cfg.Attributes.ReferenceYear)
	// Defaults still apply for unset values
	assert.Equal(t, 10, cfg.Tiles.Cols)
}

func TestLoadExplicitPath(t *testing.T) {
	chdirTemp(t)
	path := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("output:\n  path: out/x.gpkg\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "out/x.gpkg", cfg.Output.Path)
}

func TestLoadExplicitPathMissing(t *testing.T) {
	chdirTemp(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("HRE_LOG_LEVEL", "warn")
	t.Setenv("HRE_ANALYSIS_WORKERS", "8")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, 8, cfg.Analysis.Workers)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

func validRun() *Config {
	cfg := &Config{}
	cfg.Tiles.UpperLeft = []float64{0, 10}
	cfg.Tiles.LowerRight = []float64{10, 0}
	cfg.Tiles.BaseExtent = []float64{10, 10}
	cfg.Tiles.TileSize = []float64{5, 5}
	cfg.Tiles.ZoomFactors = []float64{1}
	cfg.Tiles.Rows = 2
	cfg.Tiles.Cols = 2
	cfg.Tiles.MaxSkipFraction = 0.5
	cfg.Tiles.SRID = 25832
	cfg.Analysis.SRID = 25832
	cfg.Analysis.Workers = 2
	cfg.Inputs.Admin.SRID = 25832
	cfg.Inputs.Admin.Path = "admin.gpkg"
	cfg.Output.Path = "out.gpkg"
	cfg.Output.UnitsLayer = "municipalities"
	cfg.Output.HistoricalLayer = "historical_polygon"
	return cfg
}

func TestValidateRun_OK(t *testing.T) {
	assert.NoError(t, validRun().Validate("run"))
}

func TestValidateRun_BadTransform(t *testing.T) {
	cfg := validRun()
	cfg.Tiles.UpperLeft = []float64{1}
	cfg.Tiles.ZoomLevel = 3

	err := cfg.Validate("run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tiles.upper_left must have exactly 2 values")
	assert.Contains(t, err.Error(), "tiles.zoom_level")
}

func TestValidateRun_SameLayerNames(t *testing.T) {
	cfg := validRun()
	cfg.Output.HistoricalLayer = cfg.Output.UnitsLayer

	err := cfg.Validate("run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "distinct")
}

func TestValidateRun_Bounds(t *testing.T) {
	cfg := validRun()
	cfg.Analysis.Workers = 0
	cfg.Tiles.MaxSkipFraction = 1.5
	cfg.Clean.MinHoleArea = -1

	err := cfg.Validate("run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "analysis.workers")
	assert.Contains(t, err.Error(), "max_skip_fraction")
	assert.Contains(t, err.Error(), "clean tolerances")
}

func TestValidateFetch(t *testing.T) {
	cfg := &Config{}
	err := cfg.Validate("fetch")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch.tiles_base_url is required")

	cfg.Fetch.TilesBaseURL = "http://example"
	cfg.Fetch.Concurrency = 2
	cfg.Tiles.Dir = "tiles"
	assert.NoError(t, cfg.Validate("fetch"))
}

func TestValidateUnknownMode(t *testing.T) {
	err := validRun().Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}
