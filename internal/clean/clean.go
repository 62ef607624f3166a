// Package clean turns raw tile fragments into valid, dissolved region
// polygons and combines selected regions into the historical region.
package clean

import (
	"math"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geos"
	"go.uber.org/zap"

	"github.com/sells-group/hre-border/internal/geometry"
	"github.com/sells-group/hre-border/internal/model"
)

// ErrNoValidRegions is returned when no region survives cleaning or
// selection.
var ErrNoValidRegions = eris.New("clean: no valid regions")

// mitreLimit bounds mitre spikes at sharp vertices, as a multiple of the
// buffer width. Sharper corners are bevelled.
const mitreLimit = 5.0

// Options holds the cleaning tolerances, in CRS units.
type Options struct {
	// SnapTolerance is the vertex grid size and the width of the
	// closing used to seal slivers between tiles. 0 disables snapping.
	SnapTolerance float64
	// MinHoleArea drops interior rings smaller than this area.
	MinHoleArea float64
	// SimplifyTolerance is used by Simplify only.
	SimplifyTolerance float64
	QuadSegments      int
}

// Report counts what Normalize did.
type Report struct {
	Regions  int   `yaml:"regions"`
	Repaired int   `yaml:"repaired"`
	Dropped  []int `yaml:"dropped,omitempty"`
}

// Normalizer cleans region geometry. It owns a GEOS context and is not
// safe for concurrent use.
type Normalizer struct {
	ctx  *geos.Context
	opts Options
	log  *zap.Logger
}

// New returns a Normalizer.
func New(opts Options) *Normalizer {
	if opts.QuadSegments <= 0 {
		opts.QuadSegments = 8
	}
	return &Normalizer{
		ctx:  geos.NewContext(),
		opts: opts,
		log:  zap.L().With(zap.String("component", "clean")),
	}
}

// Normalize dissolves the fragments of each region, repairs invalid
// rings, snaps vertices, drops small holes and re-validates. Regions that
// cannot be made valid are dropped and reported. The output is ordered by
// region id and is never simplified.
func (n *Normalizer) Normalize(fragments []model.Fragment) ([]model.RegionPolygon, Report, error) {
	byRegion := make(map[int][]model.Fragment)
	for _, f := range fragments {
		byRegion[f.RegionID] = append(byRegion[f.RegionID], f)
	}
	ids := make([]int, 0, len(byRegion))
	for id := range byRegion {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	var rep Report
	out := make([]model.RegionPolygon, 0, len(ids))
	for _, id := range ids {
		frags := byRegion[id]
		mp, repaired, err := n.normalizeRegion(frags)
		if err != nil {
			n.log.Warn("dropping region", zap.Int("region_id", id), zap.Int("fragments", len(frags)), zap.Error(err))
			rep.Dropped = append(rep.Dropped, id)
			continue
		}
		if repaired {
			rep.Repaired++
		}
		out = append(out, model.RegionPolygon{
			RegionID:  id,
			Title:     frags[0].Title,
			Fragments: len(frags),
			Geometry:  mp,
		})
	}
	rep.Regions = len(out)

	n.log.Info("regions normalized",
		zap.Int("regions", rep.Regions),
		zap.Int("repaired", rep.Repaired),
		zap.Int("dropped", len(rep.Dropped)),
	)
	if len(out) == 0 {
		return nil, rep, ErrNoValidRegions
	}
	return out, rep, nil
}

func (n *Normalizer) normalizeRegion(frags []model.Fragment) (*geom.MultiPolygon, bool, error) {
	parts := geom.NewMultiPolygon(geom.XY)
	for _, f := range frags {
		if err := parts.Push(f.Polygon); err != nil {
			return nil, false, eris.Wrap(err, "clean: collect fragments")
		}
	}

	g, err := n.Dissolve(parts)
	if err != nil {
		return nil, false, err
	}
	return n.finish(g)
}

// finish runs a dissolved geometry through repair, snapping, the hole
// filter and a final repair.
func (n *Normalizer) finish(g *geos.Geom) (*geom.MultiPolygon, bool, error) {
	g, repaired, err := n.Repair(g)
	if err != nil {
		return nil, false, err
	}
	mp, err := n.Snap(g)
	if err != nil {
		return nil, false, err
	}
	mp = FilterHoles(mp, n.opts.MinHoleArea)

	g, err = geometry.ToGEOS(n.ctx, mp)
	if err != nil {
		return nil, false, err
	}
	g, again, err := n.Repair(g)
	if err != nil {
		return nil, false, err
	}
	if g.IsEmpty() {
		return nil, false, eris.New("clean: region is empty after cleaning")
	}
	out, err := n.toMultiPolygon(g)
	if err != nil {
		return nil, false, err
	}
	return out, repaired || again, nil
}

// Dissolve unions the parts into one polygonal geometry.
func (n *Normalizer) Dissolve(parts *geom.MultiPolygon) (*geos.Geom, error) {
	return geometry.Union(n.ctx, parts, n.opts.QuadSegments)
}

// Repair returns g unchanged when valid. Otherwise it applies a
// zero-width buffer and falls back to MakeValid, keeping only polygonal
// parts, when the buffer is invalid or empty.
func (n *Normalizer) Repair(g *geos.Geom) (*geos.Geom, bool, error) {
	valid, err := geometry.Test("is valid", g.IsValid)
	if err != nil {
		return nil, false, err
	}
	if valid {
		return g, false, nil
	}
	reason := g.IsValidReason()

	fixed, err := geometry.Do("buffer(0)", func() *geos.Geom { return g.Buffer(0, n.opts.QuadSegments) })
	if err != nil || fixed.IsEmpty() || !fixed.IsValid() {
		n.log.Debug("buffer(0) repair failed, trying make valid", zap.String("reason", reason), zap.Error(err))
		fixed, err = geometry.Do("make valid", g.MakeValid)
		if err == nil {
			fixed, err = n.polygonal(fixed)
		}
		if err != nil {
			return nil, false, eris.Wrapf(err, "clean: repair %s", reason)
		}
	}
	if !fixed.IsValid() {
		return nil, false, eris.Errorf("clean: still invalid after repair: %s", fixed.IsValidReason())
	}
	n.log.Debug("repaired geometry", zap.String("reason", reason))
	return fixed, true, nil
}

// polygonal drops the point and line parts MakeValid may emit.
func (n *Normalizer) polygonal(g *geos.Geom) (*geos.Geom, error) {
	mp, err := n.toMultiPolygon(g)
	if err != nil {
		return nil, err
	}
	return geometry.ToGEOS(n.ctx, mp)
}

// Snap rounds vertices to a grid of SnapTolerance, drops repeated
// vertices and closes gaps narrower than twice the tolerance with a
// buffer out and back in. Both buffers use mitre joins so convex corners
// come back unchanged.
func (n *Normalizer) Snap(g *geos.Geom) (*geom.MultiPolygon, error) {
	tol := n.opts.SnapTolerance
	if tol <= 0 {
		return n.toMultiPolygon(g)
	}
	mp, err := n.toMultiPolygon(g)
	if err != nil {
		return nil, err
	}
	snapped := SnapToGrid(mp, tol)

	sg, err := geometry.ToGEOS(n.ctx, snapped)
	if err != nil {
		return nil, err
	}
	sg, _, err = n.Repair(sg)
	if err != nil {
		return nil, err
	}
	closed, err := geometry.Do("closing", func() *geos.Geom {
		out := sg.BufferWithStyle(tol, n.opts.QuadSegments, geos.BufCapStyleSquare, geos.BufJoinStyleMitre, mitreLimit)
		return out.BufferWithStyle(-tol, n.opts.QuadSegments, geos.BufCapStyleSquare, geos.BufJoinStyleMitre, mitreLimit)
	})
	if err != nil {
		return nil, err
	}
	return n.toMultiPolygon(closed)
}

// Simplify reduces vertex density while keeping topology. The result is
// for display and storage; distances are measured on the unsimplified
// geometry. An invalid result falls back to the input.
func (n *Normalizer) Simplify(mp *geom.MultiPolygon) (*geom.MultiPolygon, error) {
	if n.opts.SimplifyTolerance <= 0 {
		return mp, nil
	}
	g, err := geometry.ToGEOS(n.ctx, mp)
	if err != nil {
		return nil, err
	}
	s, err := geometry.Do("simplify", func() *geos.Geom { return g.TopologyPreserveSimplify(n.opts.SimplifyTolerance) })
	if err != nil {
		return nil, err
	}
	if !s.IsValid() || s.IsEmpty() {
		n.log.Warn("simplified geometry invalid, keeping original", zap.String("reason", s.IsValidReason()))
		return mp, nil
	}
	return n.toMultiPolygon(s)
}

// Union dissolves the selected regions into the historical region and
// cleans the result the same way Normalize cleans a region.
func (n *Normalizer) Union(regions []model.RegionPolygon, include func(model.RegionPolygon) bool, srid model.SRID) (model.HistoricalRegion, error) {
	parts := geom.NewMultiPolygon(geom.XY)
	var ids []int
	for _, r := range regions {
		if include != nil && !include(r) {
			continue
		}
		if err := geometry.AppendPolygons(parts, r.Geometry); err != nil {
			return model.HistoricalRegion{}, err
		}
		ids = append(ids, r.RegionID)
	}
	if len(ids) == 0 {
		return model.HistoricalRegion{}, eris.Wrap(ErrNoValidRegions, "no region selected")
	}

	g, err := n.Dissolve(parts)
	if err != nil {
		return model.HistoricalRegion{}, err
	}
	mp, _, err := n.finish(g)
	if err != nil {
		return model.HistoricalRegion{}, eris.Wrap(err, "clean: historical region")
	}
	n.log.Info("historical region assembled",
		zap.Int("regions", len(ids)),
		zap.Int("polygons", mp.NumPolygons()),
		zap.Float64("area_km2", mp.Area()/1e6),
	)
	return model.HistoricalRegion{SRID: srid, RegionIDs: ids, Geometry: mp}, nil
}

func (n *Normalizer) toMultiPolygon(g *geos.Geom) (*geom.MultiPolygon, error) {
	t, err := geometry.FromGEOS(g)
	if err != nil {
		return nil, err
	}
	return geometry.Polygons(t)
}

// SnapToGrid rounds every vertex of mp to the nearest multiple of tol and
// drops consecutive duplicates. Rings left with fewer than four vertices
// are removed, and so are polygons whose shell collapses.
func SnapToGrid(mp *geom.MultiPolygon, tol float64) *geom.MultiPolygon {
	out := geom.NewMultiPolygon(geom.XY)
	for i := 0; i < mp.NumPolygons(); i++ {
		p := mp.Polygon(i)
		var flat []float64
		var ends []int
		for j := 0; j < p.NumLinearRings(); j++ {
			ring := snapRing(p.LinearRing(j).FlatCoords(), p.Stride(), tol)
			if len(ring) < 8 {
				if j == 0 {
					break
				}
				continue
			}
			flat = append(flat, ring...)
			ends = append(ends, len(flat))
		}
		if len(ends) == 0 {
			continue
		}
		_ = out.Push(geom.NewPolygonFlat(geom.XY, flat, ends))
	}
	return out
}

func snapRing(coords []float64, stride int, tol float64) []float64 {
	out := make([]float64, 0, len(coords)/stride*2)
	for i := 0; i+1 < len(coords); i += stride {
		x := math.Round(coords[i]/tol) * tol
		y := math.Round(coords[i+1]/tol) * tol
		if n := len(out); n >= 2 && out[n-2] == x && out[n-1] == y {
			continue
		}
		out = append(out, x, y)
	}
	return out
}

// FilterHoles drops interior rings whose area is below minArea. Shells and
// kept holes are copied unchanged.
func FilterHoles(mp *geom.MultiPolygon, minArea float64) *geom.MultiPolygon {
	out := geom.NewMultiPolygon(mp.Layout())
	for i := 0; i < mp.NumPolygons(); i++ {
		p := mp.Polygon(i)
		if p.NumLinearRings() == 0 {
			continue
		}
		var flat []float64
		var ends []int
		for j := 0; j < p.NumLinearRings(); j++ {
			ring := p.LinearRing(j)
			if j > 0 && ring.Area() < minArea {
				continue
			}
			flat = append(flat, ring.FlatCoords()...)
			ends = append(ends, len(flat))
		}
		_ = out.Push(geom.NewPolygonFlat(p.Layout(), flat, ends))
	}
	return out
}
