// Package geometry bridges go-geom values and GEOS for the overlay
// operations (union, buffer, intersection, validity) that go-geom lacks.
// Geometries cross the boundary as little-endian WKB.
package geometry

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"
	"github.com/twpayne/go-geos"
	"go.uber.org/zap"
)

// ToGEOS converts g into a GEOS geometry owned by ctx.
func ToGEOS(ctx *geos.Context, g geom.T) (*geos.Geom, error) {
	data, err := wkb.Marshal(g, wkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "geometry: marshal WKB")
	}
	gg, err := ctx.NewGeomFromWKB(data)
	if err != nil {
		return nil, eris.Wrap(err, "geometry: parse WKB into GEOS")
	}
	return gg, nil
}

// FromGEOS converts a GEOS geometry back into go-geom.
func FromGEOS(g *geos.Geom) (geom.T, error) {
	if g == nil {
		return nil, eris.New("geometry: nil GEOS geometry")
	}
	t, err := wkb.Unmarshal(g.ToWKB())
	if err != nil {
		return nil, eris.Wrap(err, "geometry: unmarshal GEOS WKB")
	}
	return t, nil
}

// Do runs a GEOS operation and turns a GEOS panic or nil result into an error.
func Do(op string, fn func() *geos.Geom) (g *geos.Geom, err error) {
	defer func() {
		if r := recover(); r != nil {
			g = nil
			err = eris.Errorf("geometry: %s: %v", op, r)
		}
	}()
	g = fn()
	if g == nil {
		return nil, eris.Errorf("geometry: %s: no result", op)
	}
	return g, nil
}

// Test runs a GEOS predicate and turns a GEOS panic into an error.
func Test(op string, fn func() bool) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			err = eris.Errorf("geometry: %s: %v", op, r)
		}
	}()
	return fn(), nil
}

// Measure runs a GEOS measurement and turns a GEOS panic into an error.
func Measure(op string, fn func() float64) (v float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			v = 0
			err = eris.Errorf("geometry: %s: %v", op, r)
		}
	}()
	return fn(), nil
}

// Union dissolves the polygons of mp into a single valid polygonal geometry.
// When the unary union fails on invalid input each part is repaired with a
// zero-width buffer and the union is retried once.
func Union(ctx *geos.Context, mp *geom.MultiPolygon, quadSegs int) (*geos.Geom, error) {
	g, err := ToGEOS(ctx, mp)
	if err != nil {
		return nil, err
	}
	u, err := Do("unary union", g.UnaryUnion)
	if err == nil {
		return u, nil
	}

	repaired, err := repairParts(ctx, mp, func(part *geos.Geom) (*geos.Geom, error) {
		return Do("buffer(0)", func() *geos.Geom { return part.Buffer(0, quadSegs) })
	})
	if err != nil {
		return nil, err
	}
	g, err = ToGEOS(ctx, repaired)
	if err != nil {
		return nil, err
	}
	u, err = Do("unary union", g.UnaryUnion)
	if err != nil {
		return nil, eris.Wrap(err, "geometry: union after repair")
	}
	return u, nil
}

// repairParts applies fix to every polygon of mp. Parts fix cannot repair
// are left out of the result and logged.
func repairParts(ctx *geos.Context, mp *geom.MultiPolygon, fix func(*geos.Geom) (*geos.Geom, error)) (*geom.MultiPolygon, error) {
	repaired := geom.NewMultiPolygon(geom.XY)
	for i := 0; i < mp.NumPolygons(); i++ {
		part, err := ToGEOS(ctx, mp.Polygon(i))
		if err != nil {
			return nil, err
		}
		fixed, err := fix(part)
		if err != nil {
			zap.L().Warn("skipping unrepairable part in union",
				zap.String("component", "geometry"),
				zap.Int("part", i),
				zap.Float64("area", mp.Polygon(i).Area()),
				zap.Error(err),
			)
			continue
		}
		t, err := FromGEOS(fixed)
		if err != nil {
			return nil, err
		}
		if err := AppendPolygons(repaired, t); err != nil {
			return nil, err
		}
	}
	return repaired, nil
}
