// Package gpkg reads and writes OGC GeoPackage files on top of the pure-Go
// SQLite driver.
package gpkg

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	_ "modernc.org/sqlite" // register sqlite driver
)

const (
	applicationID = 1196444487 // "GPKG"
	userVersion   = 10300
)

// ColumnType is the SQLite affinity of an attribute column.
type ColumnType string

// Attribute column types.
const (
	Text    ColumnType = "TEXT"
	Real    ColumnType = "REAL"
	Integer ColumnType = "INTEGER"
	Boolean ColumnType = "BOOLEAN"
)

// Column describes one attribute column of a feature layer.
type Column struct {
	Name string
	Type ColumnType
}

// Feature is one row: a geometry plus values aligned with Layer.Columns.
// A nil value is stored as NULL.
type Feature struct {
	Geometry geom.T
	Values   []any
}

// Layer is a feature table to be written.
type Layer struct {
	Name         string
	Description  string
	GeometryType string // e.g. MULTIPOLYGON, MULTILINESTRING
	SRID         int
	Columns      []Column
	Features     []Feature
}

const coreSchema = `
CREATE TABLE gpkg_spatial_ref_sys (
	srs_name                 TEXT NOT NULL,
	srs_id                   INTEGER PRIMARY KEY,
	organization             TEXT NOT NULL,
	organization_coordsys_id INTEGER NOT NULL,
	definition               TEXT NOT NULL,
	description              TEXT
);

CREATE TABLE gpkg_contents (
	table_name  TEXT NOT NULL PRIMARY KEY,
	data_type   TEXT NOT NULL,
	identifier  TEXT UNIQUE,
	description TEXT DEFAULT '',
	last_change DATETIME NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
	min_x       DOUBLE,
	min_y       DOUBLE,
	max_x       DOUBLE,
	max_y       DOUBLE,
	srs_id      INTEGER,
	CONSTRAINT fk_gc_r_srs_id FOREIGN KEY (srs_id) REFERENCES gpkg_spatial_ref_sys(srs_id)
);

CREATE TABLE gpkg_geometry_columns (
	table_name         TEXT NOT NULL,
	column_name        TEXT NOT NULL,
	geometry_type_name TEXT NOT NULL,
	srs_id             INTEGER NOT NULL,
	z                  TINYINT NOT NULL,
	m                  TINYINT NOT NULL,
	CONSTRAINT pk_geom_cols PRIMARY KEY (table_name, column_name),
	CONSTRAINT fk_gc_tn FOREIGN KEY (table_name) REFERENCES gpkg_contents(table_name),
	CONSTRAINT fk_gc_srs FOREIGN KEY (srs_id) REFERENCES gpkg_spatial_ref_sys(srs_id)
);
`

// Write creates a GeoPackage at path containing layers. The file is built
// under a temporary name in the same directory and renamed into place only
// after every layer was written, so a failed run never leaves a partial
// file at path. The temporary file is kept on failure for inspection.
func Write(ctx context.Context, path string, layers ...Layer) error {
	if len(layers) == 0 {
		return eris.New("gpkg: no layers to write")
	}
	seen := make(map[string]bool, len(layers))
	for _, l := range layers {
		if l.Name == "" {
			return eris.New("gpkg: layer name is empty")
		}
		if seen[strings.ToLower(l.Name)] {
			return eris.Errorf("gpkg: duplicate layer %q", l.Name)
		}
		seen[strings.ToLower(l.Name)] = true
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "gpkg: create directory %s", dir)
	}
	tmp := filepath.Join(dir, fmt.Sprintf(".%s.tmp-%s", filepath.Base(path), uuid.NewString()))

	log := zap.L().With(zap.String("component", "gpkg"), zap.String("path", path))

	if err := writeFile(ctx, tmp, layers); err != nil {
		log.Error("geopackage write failed, temporary file kept", zap.String("tmp", tmp), zap.Error(err))
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return eris.Wrapf(err, "gpkg: rename %s", tmp)
	}

	for _, l := range layers {
		log.Info("layer written", zap.String("layer", l.Name), zap.Int("features", len(l.Features)))
	}
	return nil
}

func writeFile(ctx context.Context, path string, layers []Layer) (err error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return eris.Wrap(err, "gpkg: open")
	}
	db.SetMaxOpenConns(1)
	defer func() {
		if cerr := db.Close(); cerr != nil && err == nil {
			err = eris.Wrap(cerr, "gpkg: close")
		}
	}()

	pragmas := []string{
		fmt.Sprintf("PRAGMA application_id=%d", applicationID),
		fmt.Sprintf("PRAGMA user_version=%d", userVersion),
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return eris.Wrapf(err, "gpkg: exec %s", p)
		}
	}
	if _, err := db.ExecContext(ctx, coreSchema); err != nil {
		return eris.Wrap(err, "gpkg: create core tables")
	}

	srids := []int{-1, 0, 4326}
	for _, l := range layers {
		srids = append(srids, l.SRID)
	}
	for _, srid := range srids {
		name, org, code, def := srsRow(srid)
		if _, err := db.ExecContext(ctx,
			`INSERT OR IGNORE INTO gpkg_spatial_ref_sys (srs_name, srs_id, organization, organization_coordsys_id, definition) VALUES (?, ?, ?, ?, ?)`,
			name, srid, org, code, def); err != nil {
			return eris.Wrapf(err, "gpkg: register srs %d", srid)
		}
	}

	for _, l := range layers {
		if err := writeLayer(ctx, db, l); err != nil {
			return err
		}
	}
	return nil
}

func writeLayer(ctx context.Context, db *sql.DB, l Layer) error {
	cols := []string{"fid INTEGER PRIMARY KEY AUTOINCREMENT NOT NULL", "geom " + l.GeometryType}
	names := []string{"geom"}
	for _, c := range l.Columns {
		cols = append(cols, quoteIdent(c.Name)+" "+string(c.Type))
		names = append(names, quoteIdent(c.Name))
	}
	table := quoteIdent(l.Name)

	if _, err := db.ExecContext(ctx, fmt.Sprintf("CREATE TABLE %s (%s)", table, strings.Join(cols, ", "))); err != nil {
		return eris.Wrapf(err, "gpkg: create table %s", l.Name)
	}

	bounds := geom.NewBounds(geom.XY)
	for _, f := range l.Features {
		if f.Geometry != nil && len(f.Geometry.FlatCoords()) > 0 {
			bounds.Extend(f.Geometry)
		}
	}
	var minX, minY, maxX, maxY any
	if !bounds.IsEmpty() {
		minX, minY, maxX, maxY = bounds.Min(0), bounds.Min(1), bounds.Max(0), bounds.Max(1)
	}

	if _, err := db.ExecContext(ctx,
		`INSERT INTO gpkg_contents (table_name, data_type, identifier, description, min_x, min_y, max_x, max_y, srs_id) VALUES (?, 'features', ?, ?, ?, ?, ?, ?, ?)`,
		l.Name, l.Name, l.Description, minX, minY, maxX, maxY, l.SRID); err != nil {
		return eris.Wrapf(err, "gpkg: register contents %s", l.Name)
	}
	if _, err := db.ExecContext(ctx,
		`INSERT INTO gpkg_geometry_columns (table_name, column_name, geometry_type_name, srs_id, z, m) VALUES (?, 'geom', ?, ?, 0, 0)`,
		l.Name, l.GeometryType, l.SRID); err != nil {
		return eris.Wrapf(err, "gpkg: register geometry column %s", l.Name)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "gpkg: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", ")
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(names, ", "), placeholders))
	if err != nil {
		return eris.Wrapf(err, "gpkg: prepare insert %s", l.Name)
	}
	defer stmt.Close() //nolint:errcheck

	for i, f := range l.Features {
		if len(f.Values) != len(l.Columns) {
			return eris.Errorf("gpkg: layer %s feature %d has %d values, want %d", l.Name, i, len(f.Values), len(l.Columns))
		}
		args := make([]any, 0, len(names))
		if f.Geometry == nil {
			args = append(args, nil)
		} else {
			blob, err := EncodeGeometry(f.Geometry, l.SRID)
			if err != nil {
				return eris.Wrapf(err, "gpkg: layer %s feature %d", l.Name, i)
			}
			args = append(args, blob)
		}
		args = append(args, f.Values...)
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return eris.Wrapf(err, "gpkg: insert %s feature %d", l.Name, i)
		}
	}

	return eris.Wrapf(tx.Commit(), "gpkg: commit %s", l.Name)
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
