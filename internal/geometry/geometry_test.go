package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geos"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func square(x0, y0, size float64) *geom.Polygon {
	return geom.NewPolygonFlat(geom.XY, []float64{
		x0, y0, x0 + size, y0, x0 + size, y0 + size, x0, y0 + size, x0, y0,
	}, []int{10})
}

func TestRoundTrip(t *testing.T) {
	ctx := geos.NewContext()
	g, err := ToGEOS(ctx, square(0, 0, 2))
	require.NoError(t, err)
	assert.InDelta(t, 4.0, g.Area(), 1e-9)

	back, err := FromGEOS(g)
	require.NoError(t, err)
	p, ok := back.(*geom.Polygon)
	require.True(t, ok)
	assert.InDelta(t, 4.0, p.Area(), 1e-9)
}

func TestUnionAdjacentSquares(t *testing.T) {
	ctx := geos.NewContext()
	mp := geom.NewMultiPolygon(geom.XY)
	require.NoError(t, mp.Push(square(0, 0, 1)))
	require.NoError(t, mp.Push(square(1, 0, 1)))

	u, err := Union(ctx, mp, 8)
	require.NoError(t, err)
	assert.True(t, u.IsValid())
	assert.InDelta(t, 2.0, u.Area(), 1e-9)

	back, err := FromGEOS(u)
	require.NoError(t, err)
	polys, err := Polygons(back)
	require.NoError(t, err)
	assert.Equal(t, 1, polys.NumPolygons())
}

func TestUnionRepairsBowtie(t *testing.T) {
	ctx := geos.NewContext()
	bowtie := geom.NewPolygonFlat(geom.XY, []float64{0, 0, 2, 2, 2, 0, 0, 2, 0, 0}, []int{10})
	mp := geom.NewMultiPolygon(geom.XY)
	require.NoError(t, mp.Push(bowtie))
	require.NoError(t, mp.Push(square(5, 5, 1)))

	u, err := Union(ctx, mp, 8)
	require.NoError(t, err)
	assert.True(t, u.IsValid())
}

func TestRepairPartsLogsSkippedPart(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	ctx := geos.NewContext()
	mp := geom.NewMultiPolygon(geom.XY)
	require.NoError(t, mp.Push(square(0, 0, 1)))
	require.NoError(t, mp.Push(square(5, 5, 2)))

	calls := 0
	out, err := repairParts(ctx, mp, func(g *geos.Geom) (*geos.Geom, error) {
		calls++
		if calls == 2 {
			return Do("buffer(0)", func() *geos.Geom { panic("topology exception") })
		}
		return g, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, out.NumPolygons())
	assert.InDelta(t, 1.0, out.Area(), 1e-9)

	entries := logs.FilterMessage("skipping unrepairable part in union").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, int64(1), fields["part"])
	assert.InDelta(t, 4.0, fields["area"], 1e-9)
	assert.Contains(t, fields["error"], "topology exception")
}

func TestDoRecoversPanic(t *testing.T) {
	g, err := Do("boom", func() *geos.Geom { panic("bad geometry") })
	assert.Nil(t, g)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	_, err = Do("nil result", func() *geos.Geom { return nil })
	require.Error(t, err)
}

func TestPolygonsFromCollection(t *testing.T) {
	gc := geom.NewGeometryCollection()
	require.NoError(t, gc.Push(square(0, 0, 1)))
	require.NoError(t, gc.Push(geom.NewPointFlat(geom.XY, []float64{5, 5})))
	require.NoError(t, gc.Push(geom.NewLineStringFlat(geom.XY, []float64{0, 0, 1, 1})))

	mp, err := Polygons(gc)
	require.NoError(t, err)
	assert.Equal(t, 1, mp.NumPolygons())

	mls, err := Lines(gc)
	require.NoError(t, err)
	assert.Equal(t, 1, mls.NumLineStrings())
}

func TestPolygonsDropsZ(t *testing.T) {
	p := geom.NewPolygonFlat(geom.XYZ, []float64{0, 0, 1, 1, 0, 1, 1, 1, 1, 0, 1, 1, 0, 0, 1}, []int{15})
	mp, err := Polygons(p)
	require.NoError(t, err)
	require.Equal(t, 1, mp.NumPolygons())
	assert.Equal(t, geom.XY, mp.Layout())
	assert.InDelta(t, 0.5, Area(mp), 1e-9)
}
