package boundary

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/hre-border/internal/geometry"
	"github.com/sells-group/hre-border/internal/gpkg"
	"github.com/sells-group/hre-border/internal/model"
)

// LoadGeoPackage reads the units of one GeoPackage layer. The layer's
// registered SRS must equal opts.SRID.
func LoadGeoPackage(ctx context.Context, opts Options) ([]model.AdministrativeUnit, error) {
	r, err := gpkg.Open(opts.Path)
	if err != nil {
		return nil, eris.Wrap(err, "boundary: open geopackage")
	}
	defer r.Close() //nolint:errcheck

	li, err := r.Layer(ctx, opts.Layer)
	if err != nil {
		return nil, eris.Wrap(err, "boundary: find layer")
	}
	if err := model.CheckSRID("layer "+li.Name, model.SRID(li.SRID), opts.SRID); err != nil {
		return nil, err
	}

	var units []model.AdministrativeUnit
	err = r.Features(ctx, li.Name, func(rec gpkg.Record) error {
		mp, err := geometry.Polygons(rec.Geometry)
		if err != nil {
			return eris.Wrapf(err, "boundary: feature %d", rec.FID)
		}
		prop := func(name string) string {
			if name == "" {
				return ""
			}
			for k, v := range rec.Properties {
				if strings.EqualFold(k, name) {
					return stringValue(v)
				}
			}
			return ""
		}
		units = append(units, model.AdministrativeUnit{
			AGS:      prop(opts.AGSColumn),
			ARS:      prop(opts.ARSColumn),
			Name:     prop(opts.NameColumn),
			State:    prop(opts.StateColumn),
			SRID:     opts.SRID,
			Geometry: mp,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return units, nil
}
