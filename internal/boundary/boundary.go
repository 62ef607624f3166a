// Package boundary loads present-day administrative units from a
// GeoPackage layer or an ESRI shapefile.
package boundary

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geos"
	"go.uber.org/zap"

	"github.com/sells-group/hre-border/internal/config"
	"github.com/sells-group/hre-border/internal/geometry"
	"github.com/sells-group/hre-border/internal/model"
)

// Options maps a boundary source onto AdministrativeUnit fields.
type Options struct {
	Path         string
	Layer        string
	SRID         model.SRID
	AGSColumn    string
	ARSColumn    string
	NameColumn   string
	StateColumn  string
	QuadSegments int
}

// OptionsFromConfig builds loader options from the admin input section.
func OptionsFromConfig(in config.AdminInput, quadSegs int) Options {
	return Options{
		Path:         in.Path,
		Layer:        in.Layer,
		SRID:         model.SRID(in.SRID),
		AGSColumn:    in.AGSColumn,
		ARSColumn:    in.ARSColumn,
		NameColumn:   in.NameCol,
		StateColumn:  in.StateCol,
		QuadSegments: quadSegs,
	}
}

// Load reads the administrative units at opts.Path, choosing the reader by
// file extension, and merges rows that share an AGS.
func Load(ctx context.Context, opts Options) ([]model.AdministrativeUnit, error) {
	var (
		units []model.AdministrativeUnit
		err   error
	)
	switch strings.ToLower(filepath.Ext(opts.Path)) {
	case ".gpkg":
		units, err = LoadGeoPackage(ctx, opts)
	case ".shp":
		units, err = LoadShapefile(opts)
	default:
		return nil, eris.Errorf("boundary: unsupported source %s", opts.Path)
	}
	if err != nil {
		return nil, err
	}

	deduped, merged, err := Dedupe(units, opts.QuadSegments)
	if err != nil {
		return nil, err
	}
	zap.L().With(zap.String("component", "boundary")).Info("administrative units loaded",
		zap.String("path", opts.Path),
		zap.Int("rows", len(units)),
		zap.Int("units", len(deduped)),
		zap.Int("merged", merged),
	)
	return deduped, nil
}

// Dedupe collapses units sharing an AGS into one unit whose geometry is the
// union of the rows. The first row supplies the attributes. Units without
// an AGS are kept as they are. The result is ordered by AGS.
func Dedupe(units []model.AdministrativeUnit, quadSegs int) ([]model.AdministrativeUnit, int, error) {
	groups := make(map[string][]int)
	var order []string
	var keyless []model.AdministrativeUnit
	for i, u := range units {
		if u.AGS == "" {
			keyless = append(keyless, u)
			continue
		}
		if _, ok := groups[u.AGS]; !ok {
			order = append(order, u.AGS)
		}
		groups[u.AGS] = append(groups[u.AGS], i)
	}
	sort.Strings(order)

	gctx := geos.NewContext()
	out := make([]model.AdministrativeUnit, 0, len(order)+len(keyless))
	merged := 0
	for _, ags := range order {
		idx := groups[ags]
		u := units[idx[0]]
		if len(idx) > 1 {
			parts := geom.NewMultiPolygon(geom.XY)
			for _, i := range idx {
				if units[i].SRID != u.SRID {
					return nil, 0, model.CheckSRID("administrative unit "+ags, units[i].SRID, u.SRID)
				}
				if err := geometry.AppendPolygons(parts, units[i].Geometry); err != nil {
					return nil, 0, err
				}
			}
			g, err := geometry.Union(gctx, parts, quadSegs)
			if err != nil {
				return nil, 0, eris.Wrapf(err, "boundary: merge rows of %s", ags)
			}
			t, err := geometry.FromGEOS(g)
			if err != nil {
				return nil, 0, err
			}
			mp, err := geometry.Polygons(t)
			if err != nil {
				return nil, 0, err
			}
			u.Geometry = mp
			merged += len(idx) - 1
		}
		out = append(out, u)
	}
	return append(out, keyless...), merged, nil
}

// MarkScope flags the units whose state code is one of prefixes and
// returns how many are in scope.
func MarkScope(units []model.AdministrativeUnit, prefixes []string) int {
	allowed := make(map[string]bool, len(prefixes))
	for _, p := range prefixes {
		allowed[strings.TrimSpace(p)] = true
	}
	n := 0
	for i := range units {
		units[i].InScope = allowed[units[i].StateCode()]
		if units[i].InScope {
			n++
		}
	}
	return n
}

// stringValue renders an attribute value read from a source as text.
// Integral floats lose their fraction so numeric keys stay comparable.
func stringValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case []byte:
		return strings.TrimSpace(string(t))
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}
