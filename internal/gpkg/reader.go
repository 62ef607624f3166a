package gpkg

import (
	"context"
	"database/sql"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// LayerInfo describes a feature table registered in gpkg_contents.
type LayerInfo struct {
	Name           string
	GeometryColumn string
	GeometryType   string
	SRID           int
}

// Record is one feature read back from a layer.
type Record struct {
	FID        int64
	Geometry   geom.T
	Properties map[string]any
}

// Reader provides read-only access to a GeoPackage.
type Reader struct {
	db *sql.DB
}

// Open opens an existing GeoPackage read-only.
func Open(path string) (*Reader, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, eris.Wrapf(err, "gpkg: open %s", path)
	}
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, eris.Wrapf(err, "gpkg: open %s", path)
	}
	if err := db.Ping(); err != nil {
		db.Close() //nolint:errcheck
		return nil, eris.Wrapf(err, "gpkg: open %s", path)
	}
	return &Reader{db: db}, nil
}

// Close releases the underlying database handle.
func (r *Reader) Close() error {
	return r.db.Close()
}

// Layers lists the feature layers ordered by name.
func (r *Reader) Layers(ctx context.Context) ([]LayerInfo, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT c.table_name, g.column_name, g.geometry_type_name, g.srs_id
		FROM gpkg_contents c
		JOIN gpkg_geometry_columns g ON g.table_name = c.table_name
		WHERE c.data_type = 'features'
		ORDER BY c.table_name`)
	if err != nil {
		return nil, eris.Wrap(err, "gpkg: list layers")
	}
	defer rows.Close() //nolint:errcheck

	var out []LayerInfo
	for rows.Next() {
		var li LayerInfo
		if err := rows.Scan(&li.Name, &li.GeometryColumn, &li.GeometryType, &li.SRID); err != nil {
			return nil, eris.Wrap(err, "gpkg: scan layer")
		}
		out = append(out, li)
	}
	return out, eris.Wrap(rows.Err(), "gpkg: list layers")
}

// Layer returns the metadata of the named layer. An empty name selects
// the only layer of a single-layer package.
func (r *Reader) Layer(ctx context.Context, name string) (LayerInfo, error) {
	layers, err := r.Layers(ctx)
	if err != nil {
		return LayerInfo{}, err
	}
	if name == "" {
		if len(layers) != 1 {
			return LayerInfo{}, eris.Errorf("gpkg: %d layers present, a layer name is required", len(layers))
		}
		return layers[0], nil
	}
	for _, l := range layers {
		if strings.EqualFold(l.Name, name) {
			return l, nil
		}
	}
	return LayerInfo{}, eris.Errorf("gpkg: layer %q not found", name)
}

// Count returns the number of rows in a layer.
func (r *Reader) Count(ctx context.Context, name string) (int64, error) {
	li, err := r.Layer(ctx, name)
	if err != nil {
		return 0, err
	}
	var n int64
	err = r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+quoteIdent(li.Name)).Scan(&n)
	return n, eris.Wrapf(err, "gpkg: count %s", li.Name)
}

// Features streams every feature of a layer to fn in fid order.
func (r *Reader) Features(ctx context.Context, name string, fn func(Record) error) error {
	li, err := r.Layer(ctx, name)
	if err != nil {
		return err
	}
	pk, err := r.primaryKey(ctx, li.Name)
	if err != nil {
		return err
	}

	query := "SELECT * FROM " + quoteIdent(li.Name)
	if pk != "" {
		query += " ORDER BY " + quoteIdent(pk)
	}
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return eris.Wrapf(err, "gpkg: read %s", li.Name)
	}
	defer rows.Close() //nolint:errcheck

	cols, err := rows.Columns()
	if err != nil {
		return eris.Wrapf(err, "gpkg: columns %s", li.Name)
	}

	var n int64
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return eris.Wrapf(err, "gpkg: scan %s", li.Name)
		}

		n++
		rec := Record{FID: n, Properties: make(map[string]any, len(cols))}
		for i, c := range cols {
			switch {
			case strings.EqualFold(c, pk):
				if id, ok := vals[i].(int64); ok {
					rec.FID = id
				}
			case strings.EqualFold(c, li.GeometryColumn):
				blob, ok := vals[i].([]byte)
				if !ok || len(blob) == 0 {
					continue
				}
				g, _, err := DecodeGeometry(blob)
				if err != nil {
					return eris.Wrapf(err, "gpkg: %s row %d", li.Name, n)
				}
				rec.Geometry = g
			default:
				rec.Properties[c] = vals[i]
			}
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return eris.Wrapf(rows.Err(), "gpkg: read %s", li.Name)
}

func (r *Reader) primaryKey(ctx context.Context, table string) (string, error) {
	rows, err := r.db.QueryContext(ctx, "PRAGMA table_info("+quoteIdent(table)+")")
	if err != nil {
		return "", eris.Wrapf(err, "gpkg: table info %s", table)
	}
	defer rows.Close() //nolint:errcheck

	for rows.Next() {
		var (
			cid     int
			name    string
			typ     string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return "", eris.Wrapf(err, "gpkg: table info %s", table)
		}
		if pk == 1 {
			return name, nil
		}
	}
	return "", eris.Wrapf(rows.Err(), "gpkg: table info %s", table)
}
