package geometry

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// Polygons collects the polygonal parts of g into a new MultiPolygon.
// Points and lines inside collections are dropped.
func Polygons(g geom.T) (*geom.MultiPolygon, error) {
	mp := geom.NewMultiPolygon(geom.XY)
	if err := AppendPolygons(mp, g); err != nil {
		return nil, err
	}
	return mp, nil
}

// AppendPolygons pushes every polygonal part of g onto mp.
func AppendPolygons(mp *geom.MultiPolygon, g geom.T) error {
	switch t := g.(type) {
	case nil:
		return nil
	case *geom.Polygon:
		if t.NumLinearRings() == 0 {
			return nil
		}
		if err := mp.Push(toXYPolygon(t)); err != nil {
			return eris.Wrap(err, "geometry: push polygon")
		}
	case *geom.MultiPolygon:
		for i := 0; i < t.NumPolygons(); i++ {
			if err := AppendPolygons(mp, t.Polygon(i)); err != nil {
				return err
			}
		}
	case *geom.GeometryCollection:
		for _, part := range t.Geoms() {
			if err := AppendPolygons(mp, part); err != nil {
				return err
			}
		}
	}
	return nil
}

// Lines collects the linear parts of g into a new MultiLineString.
func Lines(g geom.T) (*geom.MultiLineString, error) {
	mls := geom.NewMultiLineString(geom.XY)
	if err := appendLines(mls, g); err != nil {
		return nil, err
	}
	return mls, nil
}

func appendLines(mls *geom.MultiLineString, g geom.T) error {
	switch t := g.(type) {
	case nil:
		return nil
	case *geom.LineString:
		if t.NumCoords() < 2 {
			return nil
		}
		ls := geom.NewLineStringFlat(geom.XY, xyFlat(t.Layout(), t.FlatCoords()))
		if err := mls.Push(ls); err != nil {
			return eris.Wrap(err, "geometry: push linestring")
		}
	case *geom.LinearRing:
		ls := geom.NewLineStringFlat(geom.XY, xyFlat(t.Layout(), t.FlatCoords()))
		if err := mls.Push(ls); err != nil {
			return eris.Wrap(err, "geometry: push ring")
		}
	case *geom.MultiLineString:
		for i := 0; i < t.NumLineStrings(); i++ {
			if err := appendLines(mls, t.LineString(i)); err != nil {
				return err
			}
		}
	case *geom.GeometryCollection:
		for _, part := range t.Geoms() {
			if err := appendLines(mls, part); err != nil {
				return err
			}
		}
	}
	return nil
}

// toXYPolygon drops any Z or M ordinates so parts from different sources
// can share one XY MultiPolygon.
func toXYPolygon(p *geom.Polygon) *geom.Polygon {
	if p.Layout() == geom.XY {
		return p
	}
	ends := make([]int, 0, p.NumLinearRings())
	flat := xyFlat(p.Layout(), p.FlatCoords())
	n := 0
	for i := 0; i < p.NumLinearRings(); i++ {
		n += p.LinearRing(i).NumCoords() * 2
		ends = append(ends, n)
	}
	return geom.NewPolygonFlat(geom.XY, flat, ends)
}

func xyFlat(layout geom.Layout, flat []float64) []float64 {
	stride := layout.Stride()
	if stride == 2 {
		out := make([]float64, len(flat))
		copy(out, flat)
		return out
	}
	out := make([]float64, 0, len(flat)/stride*2)
	for i := 0; i+1 < len(flat); i += stride {
		out = append(out, flat[i], flat[i+1])
	}
	return out
}

// Area returns the planar area of mp.
func Area(mp *geom.MultiPolygon) float64 {
	if mp == nil {
		return 0
	}
	return mp.Area()
}
