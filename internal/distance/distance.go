// Package distance assigns every in-scope administrative unit the signed
// distance from its centroid to the historical border.
package distance

import (
	"context"
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geos"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/hre-border/internal/geometry"
	"github.com/sells-group/hre-border/internal/model"
)

// Options configures Assign.
type Options struct {
	Workers int
}

// Stats summarizes an assignment.
type Stats struct {
	Units      int `yaml:"units"`
	InScope    int `yaml:"in_scope"`
	Inside     int `yaml:"inside"`
	Outside    int `yaml:"outside"`
	OnBoundary int `yaml:"on_boundary"`
	Unassigned int `yaml:"unassigned"`
}

// Assign returns a copy of units with centroid, unsigned distance and
// signed distance set for in-scope units. The sign is positive when the
// centroid lies inside the clipped historical region or on its boundary
// and negative otherwise. Units out of scope, or in scope without a
// usable geometry, keep nil values.
//
// Every unit must share the CRS of region; a mismatch fails before any
// distance is computed.
func Assign(ctx context.Context, units []model.AdministrativeUnit, region model.ClippedRegion, opts Options) ([]model.AdministrativeUnit, Stats, error) {
	for _, u := range units {
		if !u.InScope {
			continue
		}
		if err := model.CheckSRID("administrative unit "+u.AGS, u.SRID, region.SRID); err != nil {
			return nil, Stats{}, err
		}
	}
	if region.Curve == nil || region.Curve.NumLineStrings() == 0 {
		return nil, Stats{}, eris.New("distance: border curve is empty")
	}

	out := make([]model.AdministrativeUnit, len(units))
	copy(out, units)

	workers := max(opts.Workers, 1)
	chunk := (len(out) + workers - 1) / workers
	g, gctx := errgroup.WithContext(ctx)
	for start := 0; start < len(out); start += chunk {
		end := min(start+chunk, len(out))
		g.Go(func() error {
			return assignRange(gctx, out[start:end], region)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, Stats{}, eris.Wrap(err, "distance: assign")
	}

	st := summarize(out)
	zap.L().With(zap.String("component", "distance")).Info("signed distances assigned",
		zap.Int("units", st.Units),
		zap.Int("in_scope", st.InScope),
		zap.Int("inside", st.Inside),
		zap.Int("outside", st.Outside),
		zap.Int("on_boundary", st.OnBoundary),
		zap.Int("unassigned", st.Unassigned),
	)
	return out, st, nil
}

// assignRange works on its own GEOS context; GEOS contexts are not safe to
// share between goroutines.
func assignRange(ctx context.Context, units []model.AdministrativeUnit, region model.ClippedRegion) error {
	gctx := geos.NewContext()
	curve, err := geometry.ToGEOS(gctx, region.Curve)
	if err != nil {
		return err
	}
	area, err := geometry.ToGEOS(gctx, region.Geometry)
	if err != nil {
		return err
	}

	for i := range units {
		if err := ctx.Err(); err != nil {
			return err
		}
		u := &units[i]
		u.CentroidX, u.CentroidY, u.DistanceToBorder, u.SignedDistance = nil, nil, nil, nil
		if !u.InScope || u.Geometry == nil || u.Geometry.NumPolygons() == 0 {
			continue
		}
		if err := assignUnit(gctx, u, curve, area); err != nil {
			zap.L().Warn("distance: skipping unit", zap.String("ags", u.AGS), zap.Error(err))
		}
	}
	return nil
}

func assignUnit(gctx *geos.Context, u *model.AdministrativeUnit, curve, area *geos.Geom) error {
	g, err := geometry.ToGEOS(gctx, u.Geometry)
	if err != nil {
		return err
	}
	c, err := geometry.Do("centroid", g.Centroid)
	if err != nil {
		return err
	}
	ct, err := geometry.FromGEOS(c)
	if err != nil {
		return err
	}
	pt, ok := ct.(*geom.Point)
	if !ok || len(pt.FlatCoords()) < 2 {
		return eris.New("distance: centroid is not a point")
	}
	x, y := pt.X(), pt.Y()

	d, err := geometry.Measure("distance", func() float64 { return curve.Distance(c) })
	if err != nil {
		return err
	}
	inside, err := geometry.Test("covers", func() bool { return area.Covers(c) })
	if err != nil {
		return err
	}
	if math.IsNaN(d) || math.IsInf(d, 0) {
		return eris.Errorf("distance: invalid distance %v", d)
	}

	signed := d
	if !inside {
		signed = -d
	}
	u.CentroidX, u.CentroidY = &x, &y
	u.DistanceToBorder = &d
	u.SignedDistance = &signed
	return nil
}

func summarize(units []model.AdministrativeUnit) Stats {
	st := Stats{Units: len(units)}
	for _, u := range units {
		if !u.InScope {
			continue
		}
		st.InScope++
		switch {
		case u.SignedDistance == nil:
			st.Unassigned++
		case *u.SignedDistance == 0:
			st.OnBoundary++
		case *u.SignedDistance > 0:
			st.Inside++
		default:
			st.Outside++
		}
	}
	return st
}
