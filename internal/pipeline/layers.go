package pipeline

import (
	"github.com/sells-group/hre-border/internal/gpkg"
	"github.com/sells-group/hre-border/internal/model"
)

var unitColumns = []gpkg.Column{
	{Name: "ags", Type: gpkg.Text},
	{Name: "ars", Type: gpkg.Text},
	{Name: "name", Type: gpkg.Text},
	{Name: "state", Type: gpkg.Text},
	{Name: "in_scope", Type: gpkg.Boolean},
	{Name: "centroid_x", Type: gpkg.Real},
	{Name: "centroid_y", Type: gpkg.Real},
	{Name: "distance_to_border", Type: gpkg.Real},
	{Name: "signed_distance", Type: gpkg.Real},
	{Name: "region_code", Type: gpkg.Text},
	{Name: "region_name", Type: gpkg.Text},
	{Name: "total_population", Type: gpkg.Real},
	{Name: "protestant", Type: gpkg.Real},
	{Name: "catholic", Type: gpkg.Real},
	{Name: "none", Type: gpkg.Real},
}

// UnitsLayer renders the merged rows as a feature layer. Election values
// follow the fixed columns in electionCols order; units without a match
// get NULL in every column of that table.
func UnitsLayer(name string, srid model.SRID, rows []model.MergedRow, electionCols []string) gpkg.Layer {
	cols := make([]gpkg.Column, 0, len(unitColumns)+len(electionCols))
	cols = append(cols, unitColumns...)
	for _, c := range electionCols {
		cols = append(cols, gpkg.Column{Name: c, Type: gpkg.Real})
	}

	features := make([]gpkg.Feature, 0, len(rows))
	for _, r := range rows {
		u := r.Unit
		vals := make([]any, 0, len(cols))
		vals = append(vals,
			u.AGS, u.ARS, u.Name, u.StateCode(), u.InScope,
			optional(u.CentroidX), optional(u.CentroidY),
			optional(u.DistanceToBorder), optional(u.SignedDistance),
		)
		if rel := r.Religion; rel != nil {
			vals = append(vals, rel.RegionCode, rel.RegionName, rel.TotalPopulation, rel.Protestant, rel.Catholic, rel.None)
		} else {
			vals = append(vals, nil, nil, nil, nil, nil, nil)
		}
		for _, c := range electionCols {
			if r.Election == nil {
				vals = append(vals, nil)
				continue
			}
			if v, ok := r.Election.Values[c]; ok {
				vals = append(vals, v)
			} else {
				vals = append(vals, nil)
			}
		}

		f := gpkg.Feature{Values: vals}
		if u.Geometry != nil {
			f.Geometry = u.Geometry
		}
		features = append(features, f)
	}

	return gpkg.Layer{
		Name:         name,
		Description:  "Administrative units with signed distance to the historical border",
		GeometryType: "MULTIPOLYGON",
		SRID:         int(srid),
		Columns:      cols,
		Features:     features,
	}
}

// HistoricalLayer renders the clipped historical polygon as a single
// feature layer.
func HistoricalLayer(name string, region model.ClippedRegion, regions int) gpkg.Layer {
	var area, border float64
	f := gpkg.Feature{}
	if region.Geometry != nil {
		area = region.Geometry.Area()
		f.Geometry = region.Geometry
	}
	if region.Curve != nil {
		border = region.Curve.Length()
	}
	f.Values = []any{regions, area, border}
	return gpkg.Layer{
		Name:         name,
		Description:  "Historical Catholic territory clipped to the country",
		GeometryType: "MULTIPOLYGON",
		SRID:         int(region.SRID),
		Columns: []gpkg.Column{
			{Name: "regions", Type: gpkg.Integer},
			{Name: "area", Type: gpkg.Real},
			{Name: "border_length", Type: gpkg.Real},
		},
		Features: []gpkg.Feature{f},
	}
}

func optional(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
