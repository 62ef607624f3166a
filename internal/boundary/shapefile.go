package boundary

import (
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"go.uber.org/zap"

	"github.com/sells-group/hre-border/internal/model"
)

// LoadShapefile reads polygon records of a shapefile. Shapefiles carry no
// EPSG code, so the units are tagged with opts.SRID after the .prj sidecar
// has been checked against it.
func LoadShapefile(opts Options) ([]model.AdministrativeUnit, error) {
	if err := checkPRJ(opts.Path, opts.SRID); err != nil {
		return nil, err
	}
	reader, err := shp.Open(opts.Path)
	if err != nil {
		return nil, eris.Wrapf(err, "boundary: open shapefile %s", opts.Path)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	fieldIdx := make(map[string]int, len(fields))
	for i, f := range fields {
		name := strings.TrimRight(f.String(), "\x00")
		fieldIdx[strings.ToLower(name)] = i
	}
	attr := func(col string) string {
		idx, ok := fieldIdx[strings.ToLower(col)]
		if !ok || col == "" {
			return ""
		}
		return strings.TrimSpace(strings.TrimRight(reader.Attribute(idx), "\x00"))
	}

	var units []model.AdministrativeUnit
	var skipped int
	for reader.Next() {
		_, shape := reader.Shape()
		mp := shapeToMultiPolygon(shape)
		if mp == nil {
			skipped++
			continue
		}
		units = append(units, model.AdministrativeUnit{
			AGS:      attr(opts.AGSColumn),
			ARS:      attr(opts.ARSColumn),
			Name:     attr(opts.NameColumn),
			State:    attr(opts.StateColumn),
			SRID:     opts.SRID,
			Geometry: mp,
		})
	}

	if skipped > 0 {
		zap.L().With(zap.String("component", "boundary")).Debug("skipped shapefile records",
			zap.String("path", opts.Path),
			zap.Int("skipped", skipped),
		)
	}
	return units, nil
}

func shapeToMultiPolygon(shape shp.Shape) *geom.MultiPolygon {
	switch s := shape.(type) {
	case *shp.Polygon:
		return ringsToMultiPolygon(s.NumParts, s.Parts, s.Points)
	case *shp.PolygonZ:
		return ringsToMultiPolygon(s.NumParts, s.Parts, s.Points)
	case *shp.PolygonM:
		return ringsToMultiPolygon(s.NumParts, s.Parts, s.Points)
	default:
		return nil
	}
}

// ringsToMultiPolygon groups shapefile rings into polygons. Clockwise rings
// are shells; counter-clockwise rings are holes of the shell containing
// their first vertex, or of the preceding shell when none contains it.
func ringsToMultiPolygon(numParts int32, parts []int32, points []shp.Point) *geom.MultiPolygon {
	if numParts == 0 || len(points) == 0 {
		return nil
	}

	var shells [][]float64
	holes := make(map[int][][]float64)
	for i := int32(0); i < numParts; i++ {
		start := parts[i]
		end := int32(len(points))
		if i+1 < numParts {
			end = parts[i+1]
		}
		if end-start < 4 {
			continue
		}
		ring := make([]float64, 0, 2*(end-start))
		for j := start; j < end; j++ {
			ring = append(ring, points[j].X, points[j].Y)
		}

		if !xy.IsRingCounterClockwise(geom.XY, ring) {
			shells = append(shells, ring)
			continue
		}
		owner := len(shells) - 1
		first := geom.Coord{ring[0], ring[1]}
		for k, shell := range shells {
			if xy.IsPointInRing(geom.XY, first, shell) {
				owner = k
				break
			}
		}
		if owner < 0 {
			// A hole before any shell; treat it as a shell.
			shells = append(shells, ring)
			continue
		}
		holes[owner] = append(holes[owner], ring)
	}

	mp := geom.NewMultiPolygon(geom.XY)
	for k, shell := range shells {
		flat := append([]float64(nil), shell...)
		ends := []int{len(flat)}
		for _, h := range holes[k] {
			flat = append(flat, h...)
			ends = append(ends, len(flat))
		}
		if err := mp.Push(geom.NewPolygonFlat(geom.XY, flat, ends)); err != nil {
			zap.L().Debug("boundary: skipping malformed polygon part", zap.Int("part", k), zap.Error(err))
		}
	}
	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}
