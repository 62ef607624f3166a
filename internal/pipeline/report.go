package pipeline

import (
	"os"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/hre-border/internal/clean"
	"github.com/sells-group/hre-border/internal/config"
	"github.com/sells-group/hre-border/internal/distance"
	"github.com/sells-group/hre-border/internal/merge"
)

// Report records the parameters and counts of one run.
type Report struct {
	StartedAt  time.Time       `yaml:"started_at"`
	DurationMS int64           `yaml:"duration_ms"`
	Output     string          `yaml:"output"`
	Parameters Parameters      `yaml:"parameters"`
	Tiles      TileCounts      `yaml:"tiles"`
	Clean      clean.Report    `yaml:"clean"`
	Selection  SelectionCounts `yaml:"selection"`
	Units      UnitCounts      `yaml:"units"`
	Distance   distance.Stats  `yaml:"distance"`
	Merge      merge.Stats     `yaml:"merge"`
	Stages     []StageTiming   `yaml:"stages"`
}

// Parameters are the settings that change the measurement.
type Parameters struct {
	TilesSRID         int      `yaml:"tiles_srid"`
	AnalysisSRID      int      `yaml:"analysis_srid"`
	Reproject         bool     `yaml:"reproject"`
	SwapAxes          bool     `yaml:"swap_axes"`
	FlipY             bool     `yaml:"flip_y"`
	ZoomLevel         int      `yaml:"zoom_level"`
	SnapTolerance     float64  `yaml:"snap_tolerance"`
	MinHoleArea       float64  `yaml:"min_hole_area"`
	SimplifyTolerance float64  `yaml:"simplify_tolerance"`
	StatePrefixes     []string `yaml:"state_prefixes"`
	Confessions       []string `yaml:"confessions"`
}

// TileCounts summarizes reconstruction.
type TileCounts struct {
	Grid       int `yaml:"grid"`
	Parsed     int `yaml:"parsed"`
	Missing    int `yaml:"missing"`
	Failed     int `yaml:"failed"`
	Degenerate int `yaml:"degenerate"`
	Fragments  int `yaml:"fragments"`
}

// SelectionCounts summarizes confession selection.
type SelectionCounts struct {
	Regions  int `yaml:"regions"`
	Selected int `yaml:"selected"`
}

// UnitCounts summarizes the administrative boundary source.
type UnitCounts struct {
	Loaded  int `yaml:"loaded"`
	InScope int `yaml:"in_scope"`
}

// StageTiming is the wall time of one stage.
type StageTiming struct {
	Name       string `yaml:"name"`
	DurationMS int64  `yaml:"duration_ms"`
}

func newReport(cfg *config.Config) *Report {
	return &Report{
		StartedAt: time.Now().UTC(),
		Parameters: Parameters{
			TilesSRID:         cfg.Tiles.SRID,
			AnalysisSRID:      cfg.Analysis.SRID,
			Reproject:         cfg.Analysis.Reproject,
			SwapAxes:          cfg.Tiles.SwapAxes,
			FlipY:             cfg.Tiles.FlipY,
			ZoomLevel:         cfg.Tiles.ZoomLevel,
			SnapTolerance:     cfg.Clean.SnapTolerance,
			MinHoleArea:       cfg.Clean.MinHoleArea,
			SimplifyTolerance: cfg.Clean.SimplifyTolerance,
			StatePrefixes:     cfg.Analysis.StatePrefixes,
			Confessions:       cfg.Attributes.Confessions,
		},
	}
}

// WriteFile stores the report as YAML.
func (r *Report) WriteFile(path string) error {
	data, err := yaml.Marshal(r)
	if err != nil {
		return eris.Wrap(err, "pipeline: marshal report")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "pipeline: write report %s", path)
	}
	return nil
}
