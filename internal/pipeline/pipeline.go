// Package pipeline composes the border stages into one run: tiles to
// fragments, fragments to the historical region, clipping, signed
// distances, attribute merge and the GeoPackage artifact.
package pipeline

import (
	"context"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/hre-border/internal/atlas"
	"github.com/sells-group/hre-border/internal/boundary"
	"github.com/sells-group/hre-border/internal/clean"
	"github.com/sells-group/hre-border/internal/clip"
	"github.com/sells-group/hre-border/internal/config"
	"github.com/sells-group/hre-border/internal/distance"
	"github.com/sells-group/hre-border/internal/gpkg"
	"github.com/sells-group/hre-border/internal/merge"
	"github.com/sells-group/hre-border/internal/model"
	"github.com/sells-group/hre-border/internal/reproject"
	"github.com/sells-group/hre-border/internal/tables"
)

// Pipeline runs the stages in order. Each stage consumes the previous
// stage's output and nothing is shared between stages.
type Pipeline struct {
	cfg *config.Config
	log *zap.Logger
}

// New creates a Pipeline for cfg.
func New(cfg *config.Config) *Pipeline {
	return &Pipeline{
		cfg: cfg,
		log: zap.L().With(zap.String("component", "pipeline")),
	}
}

// Result is the outcome of a full run.
type Result struct {
	Rows       []model.MergedRow
	Region     model.ClippedRegion
	Simplified model.ClippedRegion
	Report     *Report
}

// stage runs fn, records its duration in the report and logs the outcome.
func (p *Pipeline) stage(rep *Report, name string, fn func() error) error {
	start := time.Now()
	err := fn()
	d := time.Since(start)
	rep.Stages = append(rep.Stages, StageTiming{Name: name, DurationMS: d.Milliseconds()})
	if err != nil {
		p.log.Error("pipeline: stage failed",
			zap.String("stage", name),
			zap.Int64("duration_ms", d.Milliseconds()),
			zap.Error(err),
		)
		return eris.Wrapf(err, "pipeline: %s", name)
	}
	p.log.Info("pipeline: stage complete",
		zap.String("stage", name),
		zap.Int64("duration_ms", d.Milliseconds()),
	)
	return nil
}

// Reconstruct checks the control points and reads the tile grid.
func (p *Pipeline) Reconstruct(ctx context.Context) (atlas.ReconstructResult, error) {
	tc := p.cfg.Tiles
	t, err := atlas.NewTransform(tc)
	if err != nil {
		return atlas.ReconstructResult{}, err
	}
	cps := atlas.ControlPointsFromConfig(tc.ControlPoints)
	if err := t.CheckControlPoints(cps, tc.ControlTolerance); err != nil {
		return atlas.ReconstructResult{}, err
	}
	if len(cps) > 0 {
		p.log.Info("control points verified",
			zap.String("convention", t.Convention()),
			zap.Float64("residual", t.Residual(cps)),
		)
	}
	return atlas.Reconstruct(ctx, atlas.ReconstructOptions{
		Dir:             tc.Dir,
		Charset:         tc.Charset,
		Rows:            tc.Rows,
		Cols:            tc.Cols,
		Transform:       t,
		MaxSkipFraction: tc.MaxSkipFraction,
	})
}

// Run executes every stage and writes the artifact to cfg.Output.Path.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	cfg := p.cfg
	rep := newReport(cfg)
	started := time.Now()
	p.log.Info("pipeline: starting run", zap.String("output", cfg.Output.Path))

	norm := clean.New(clean.Options{
		SnapTolerance:     cfg.Clean.SnapTolerance,
		MinHoleArea:       cfg.Clean.MinHoleArea,
		SimplifyTolerance: cfg.Clean.SimplifyTolerance,
		QuadSegments:      cfg.Clean.QuadSegments,
	})

	var (
		recon    atlas.ReconstructResult
		regions  []model.RegionPolygon
		hist     model.HistoricalRegion
		units    []model.AdministrativeUnit
		region   model.ClippedRegion
		religion []model.ReligionRecord
		election []model.ElectionRecord
		rows     []model.MergedRow
		simple   model.ClippedRegion
	)

	stages := []struct {
		name string
		fn   func() error
	}{
		{"reconstruct", func() error {
			var err error
			recon, err = p.Reconstruct(ctx)
			rep.Tiles = TileCounts{
				Grid:       recon.Tiles,
				Parsed:     recon.Parsed,
				Missing:    recon.Missing,
				Failed:     recon.Failed,
				Degenerate: recon.Degenerate,
				Fragments:  len(recon.Fragments),
			}
			return err
		}},
		{"normalize", func() error {
			var err error
			regions, rep.Clean, err = norm.Normalize(recon.Fragments)
			return err
		}},
		{"select", func() error {
			sel, err := p.selector()
			if err != nil {
				return err
			}
			hist, err = norm.Union(regions, sel.Include, model.SRID(cfg.Tiles.SRID))
			rep.Selection = SelectionCounts{Regions: len(regions), Selected: len(hist.RegionIDs)}
			return err
		}},
		{"load_units", func() error {
			var err error
			units, err = boundary.Load(ctx, boundary.OptionsFromConfig(cfg.Inputs.Admin, cfg.Clean.QuadSegments))
			if err != nil {
				return err
			}
			rep.Units = UnitCounts{Loaded: len(units), InScope: boundary.MarkScope(units, cfg.Analysis.StatePrefixes)}
			return nil
		}},
		{"align_crs", func() error {
			var err error
			hist, err = reproject.Align(hist, model.SRID(cfg.Analysis.SRID), cfg.Analysis.Reproject)
			return err
		}},
		{"clip", func() error {
			country, err := clip.CountryBoundary(units, model.SRID(cfg.Analysis.SRID), cfg.Clean.QuadSegments)
			if err != nil {
				return err
			}
			region, err = clip.Clip(hist, country)
			return err
		}},
		{"distance", func() error {
			var err error
			units, rep.Distance, err = distance.Assign(ctx, units, region, distance.Options{Workers: cfg.Analysis.Workers})
			return err
		}},
		{"load_tables", func() error {
			var err error
			religion, election, err = p.loadTables(ctx)
			return err
		}},
		{"merge", func() error {
			rows, rep.Merge = merge.Merge(units, religion, election, merge.Options{
				ReligionKey: merge.ByARS,
				ElectionKey: merge.ByAGS,
			})
			return nil
		}},
		{"simplify", func() error {
			mp, err := norm.Simplify(region.Geometry)
			if err != nil {
				return err
			}
			simple = model.ClippedRegion{SRID: region.SRID, Geometry: mp, Curve: region.Curve}
			return nil
		}},
		{"write", func() error {
			return gpkg.Write(ctx, cfg.Output.Path,
				UnitsLayer(cfg.Output.UnitsLayer, model.SRID(cfg.Analysis.SRID), rows, tables.ElectionColumns(election)),
				HistoricalLayer(cfg.Output.HistoricalLayer, simple, len(hist.RegionIDs)),
			)
		}},
	}

	for _, s := range stages {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "pipeline: run")
		}
		if err := p.stage(rep, s.name, s.fn); err != nil {
			return nil, err
		}
	}

	rep.Output = cfg.Output.Path
	rep.DurationMS = time.Since(started).Milliseconds()
	if cfg.Output.Report {
		if err := rep.WriteFile(ReportPath(cfg.Output.Path)); err != nil {
			return nil, err
		}
	}

	p.log.Info("pipeline: run complete",
		zap.Int("rows", len(rows)),
		zap.Int("in_scope", rep.Distance.InScope),
		zap.Int64("duration_ms", rep.DurationMS),
	)
	return &Result{Rows: rows, Region: region, Simplified: simple, Report: rep}, nil
}

// selector builds the confession filter. Without an attribute directory
// every region is selected.
func (p *Pipeline) selector() (atlas.Selector, error) {
	ac := p.cfg.Attributes
	accept := make([]atlas.Confession, 0, len(ac.Confessions))
	for _, c := range ac.Confessions {
		accept = append(accept, atlas.Confession(strings.TrimSpace(c)))
	}
	if ac.Dir == "" {
		p.log.Warn("no attribute directory configured, selecting every region")
		return atlas.Selector{}, nil
	}
	attrs, err := atlas.LoadAttributes(ac.Dir, p.cfg.Tiles.Charset)
	if err != nil {
		return atlas.Selector{}, err
	}
	if ac.ReferenceYear != 0 {
		p.log.Info("dating confession selection", zap.Int("year", ac.ReferenceYear))
	}
	return atlas.Selector{
		Attributes: attrs,
		Key:        ac.Key,
		Accept:     accept,
		Year:       ac.ReferenceYear,
		StartKey:   ac.StartKey,
		EndKey:     ac.EndKey,
	}, nil
}

// loadTables reads the religion and election tables. An unset path
// yields no records, so every unit gets null columns for that table.
func (p *Pipeline) loadTables(ctx context.Context) ([]model.ReligionRecord, []model.ElectionRecord, error) {
	in := p.cfg.Inputs

	var religion []model.ReligionRecord
	if in.Religion.Path != "" {
		var err error
		religion, err = tables.LoadReligion(in.Religion.Path, tables.ReligionOptions{
			Sheet:      in.Religion.Sheet,
			HeaderRows: in.Religion.HeaderRows,
		})
		if err != nil {
			return nil, nil, err
		}
	}

	var election []model.ElectionRecord
	if in.Election.Path != "" {
		delim, _ := utf8.DecodeRuneInString(in.Election.Delimiter)
		if delim == utf8.RuneError {
			delim = ','
		}
		var err error
		election, err = tables.LoadElection(ctx, in.Election.Path, tables.ElectionOptions{
			KeyColumn:  in.Election.KeyColumn,
			YearColumn: in.Election.YearColumn,
			Parties:    in.Election.Parties,
			Delimiter:  delim,
			KeyWidth:   in.Election.KeyWidth,
		})
		if err != nil {
			return nil, nil, err
		}
	}

	p.log.Info("attribute tables loaded",
		zap.Int("religion", len(religion)),
		zap.Int("election", len(election)),
	)
	return religion, election, nil
}

// ReportPath returns the run report location for an artifact path.
func ReportPath(output string) string {
	return strings.TrimSuffix(output, filepath.Ext(output)) + ".report.yaml"
}

