// Package clip restricts the historical region to the present-day country
// and extracts the part of its outline that runs inside the country.
package clip

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geos"
	"go.uber.org/zap"

	"github.com/sells-group/hre-border/internal/geometry"
	"github.com/sells-group/hre-border/internal/model"
)

// Country is the dissolved outline of the in-scope administrative units.
type Country struct {
	SRID     model.SRID
	Units    int
	Geometry *geom.MultiPolygon
}

// CountryBoundary unions the geometry of all in-scope units. All units
// must share srid.
func CountryBoundary(units []model.AdministrativeUnit, srid model.SRID, quadSegs int) (Country, error) {
	parts := geom.NewMultiPolygon(geom.XY)
	count := 0
	for _, u := range units {
		if !u.InScope || u.Geometry == nil {
			continue
		}
		if err := model.CheckSRID("administrative unit "+u.AGS, u.SRID, srid); err != nil {
			return Country{}, err
		}
		if err := geometry.AppendPolygons(parts, u.Geometry); err != nil {
			return Country{}, err
		}
		count++
	}
	if count == 0 {
		return Country{}, eris.New("clip: no in-scope administrative units")
	}

	ctx := geos.NewContext()
	g, err := geometry.Union(ctx, parts, quadSegs)
	if err != nil {
		return Country{}, eris.Wrap(err, "clip: union country")
	}
	mp, err := toMultiPolygon(g)
	if err != nil {
		return Country{}, err
	}
	return Country{SRID: srid, Units: count, Geometry: mp}, nil
}

// Clip intersects the historical region with the country and returns the
// clipped polygon and the historical outline inside the country. Both
// inputs must share a CRS.
func Clip(hist model.HistoricalRegion, country Country) (model.ClippedRegion, error) {
	if err := model.CheckSRID("historical region", hist.SRID, country.SRID); err != nil {
		return model.ClippedRegion{}, err
	}
	ctx := geos.NewContext()
	hg, err := geometry.ToGEOS(ctx, hist.Geometry)
	if err != nil {
		return model.ClippedRegion{}, err
	}
	cg, err := geometry.ToGEOS(ctx, country.Geometry)
	if err != nil {
		return model.ClippedRegion{}, err
	}

	scoped, err := geometry.Do("intersection", func() *geos.Geom { return hg.Intersection(cg) })
	if err != nil {
		return model.ClippedRegion{}, eris.Wrap(err, "clip: region")
	}
	outline, err := geometry.Do("boundary", hg.Boundary)
	if err != nil {
		return model.ClippedRegion{}, eris.Wrap(err, "clip: outline")
	}
	inside, err := geometry.Do("intersection", func() *geos.Geom { return outline.Intersection(cg) })
	if err != nil {
		return model.ClippedRegion{}, eris.Wrap(err, "clip: curve")
	}

	poly, err := toMultiPolygon(scoped)
	if err != nil {
		return model.ClippedRegion{}, err
	}
	ct, err := geometry.FromGEOS(inside)
	if err != nil {
		return model.ClippedRegion{}, err
	}
	curve, err := geometry.Lines(ct)
	if err != nil {
		return model.ClippedRegion{}, err
	}

	zap.L().With(zap.String("component", "clip")).Info("historical region clipped",
		zap.Float64("area_km2", poly.Area()/1e6),
		zap.Int("curve_parts", curve.NumLineStrings()),
		zap.Float64("curve_km", curve.Length()/1e3),
	)
	return model.ClippedRegion{SRID: hist.SRID, Geometry: poly, Curve: curve}, nil
}

func toMultiPolygon(g *geos.Geom) (*geom.MultiPolygon, error) {
	t, err := geometry.FromGEOS(g)
	if err != nil {
		return nil, err
	}
	return geometry.Polygons(t)
}
