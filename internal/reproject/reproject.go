// Package reproject transforms polygon geometries between coordinate
// reference systems with PROJ. It is only used when explicitly enabled;
// otherwise a CRS mismatch between layers stops the pipeline.
package reproject

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-proj/v10"
	"go.uber.org/zap"

	"github.com/sells-group/hre-border/internal/model"
)

// Transformer converts XY coordinates from one EPSG code to another.
type Transformer struct {
	From model.SRID
	To   model.SRID
	pj   *proj.PJ
}

// New creates a transformer between two EPSG codes. Both systems must use
// easting/northing axis order.
func New(from, to model.SRID) (*Transformer, error) {
	pj, err := proj.NewCRSToCRS(from.String(), to.String(), nil)
	if err != nil {
		return nil, eris.Wrapf(err, "reproject: create %s -> %s", from, to)
	}
	return &Transformer{From: from, To: to, pj: pj}, nil
}

// MultiPolygon returns a copy of mp with every vertex transformed.
func (t *Transformer) MultiPolygon(mp *geom.MultiPolygon) (*geom.MultiPolygon, error) {
	if mp == nil {
		return nil, nil
	}
	stride := mp.Stride()
	src := mp.FlatCoords()
	flat := make([]float64, len(src))
	copy(flat, src)
	for i := 0; i+1 < len(flat); i += stride {
		c, err := t.pj.Forward(proj.Coord{flat[i], flat[i+1], 0, 0})
		if err != nil {
			return nil, eris.Wrapf(err, "reproject: vertex %d", i/stride)
		}
		flat[i], flat[i+1] = c[0], c[1]
	}
	return geom.NewMultiPolygonFlat(mp.Layout(), flat, mp.Endss()), nil
}

// Region reprojects a historical region into the transformer's target CRS.
func (t *Transformer) Region(h model.HistoricalRegion) (model.HistoricalRegion, error) {
	if err := model.CheckSRID("historical region", h.SRID, t.From); err != nil {
		return model.HistoricalRegion{}, err
	}
	mp, err := t.MultiPolygon(h.Geometry)
	if err != nil {
		return model.HistoricalRegion{}, err
	}
	zap.L().With(zap.String("component", "reproject")).Info("historical region reprojected",
		zap.String("from", t.From.String()),
		zap.String("to", t.To.String()),
		zap.Int("vertices", len(mp.FlatCoords())/mp.Stride()),
	)
	return model.HistoricalRegion{SRID: t.To, RegionIDs: h.RegionIDs, Geometry: mp}, nil
}

// Align returns h unchanged when it is already in target, reprojects it
// when enabled is true, and fails with ErrCRSMismatch otherwise.
func Align(h model.HistoricalRegion, target model.SRID, enabled bool) (model.HistoricalRegion, error) {
	if h.SRID == target {
		return h, nil
	}
	if !enabled {
		return model.HistoricalRegion{}, eris.Wrapf(model.CheckSRID("historical region", h.SRID, target),
			"reproject: disabled, set analysis.reproject to transform %s", h.SRID)
	}
	t, err := New(h.SRID, target)
	if err != nil {
		return model.HistoricalRegion{}, err
	}
	return t.Region(h)
}
