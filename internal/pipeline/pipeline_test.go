package pipeline

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
	"github.com/twpayne/go-geom"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/hre-border/internal/atlas"
	"github.com/sells-group/hre-border/internal/config"
	"github.com/sells-group/hre-border/internal/gpkg"
	"github.com/sells-group/hre-border/internal/model"
)

func square(x, y, size float64) *geom.MultiPolygon {
	return geom.NewMultiPolygonFlat(geom.XY, []float64{
		x, y, x + size, y, x + size, y + size, x, y + size, x, y,
	}, [][]int{{10}})
}

func area(coords string, id int, title string) string {
	return `<area shape="poly" coords="` + coords + `" href="javascript:show_popup(` +
		strconv.Itoa(id) + `);" id="` + strconv.Itoa(id) + `_area" title="` + title + `">`
}

// fixture lays out a one-tile atlas whose pixel grid maps 1:1 onto world
// units with y pointing down from y=100, four in-scope units forming the
// square (0,0)-(20,20), and one out-of-scope unit.
type fixture struct {
	dir string
	cfg *config.Config
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	dir := t.TempDir()
	tilesDir := filepath.Join(dir, "TILES_0")
	attrDir := filepath.Join(dir, "ATTRIBUTES_0")
	require.NoError(t, os.MkdirAll(tilesDir, 0o755))
	require.NoError(t, os.MkdirAll(attrDir, 0o755))

	tile := "document.write('" +
		area("0,90,10,90,10,100,0,100", 1, "Hochstift W&#252;rzburg") +
		area("10,90,20,90,20,100,10,100", 2, "Markgraftum Ansbach") +
		area("50,50,51,51", 3, "Line") +
		"');"
	require.NoError(t, os.WriteFile(filepath.Join(tilesDir, atlas.TileName(0, 0)), []byte(tile), 0o644))

	attrs := `add_content(1,"Konf||roman-catholic,Name||Wuerzburg")` + "\n" +
		`add_content(2,"Konf||lutheran")`
	require.NoError(t, os.WriteFile(filepath.Join(attrDir, "0.JS"), []byte(attrs), 0o644))

	adminPath := filepath.Join(dir, "admin.gpkg")
	unit := func(mp *geom.MultiPolygon, ags, name, state string) gpkg.Feature {
		return gpkg.Feature{Geometry: mp, Values: []any{ags, ags + "0000", name, state}}
	}
	require.NoError(t, gpkg.Write(context.Background(), adminPath, gpkg.Layer{
		Name:         "vg250_gem",
		GeometryType: "MULTIPOLYGON",
		SRID:         25832,
		Columns: []gpkg.Column{
			{Name: "AGS", Type: gpkg.Text},
			{Name: "ARS", Type: gpkg.Text},
			{Name: "GEN", Type: gpkg.Text},
			{Name: "SN_L", Type: gpkg.Text},
		},
		Features: []gpkg.Feature{
			unit(square(0, 0, 10), "01001000", "Inside", "01"),
			unit(square(10, 0, 10), "01002000", "East", "01"),
			unit(square(0, 10, 10), "05001000", "North", "05"),
			unit(square(10, 10, 10), "05002000", "Corner", "05"),
			unit(square(30, 0, 10), "12001000", "Elsewhere", "12"),
		},
	}))

	electionPath := filepath.Join(dir, "election.csv")
	require.NoError(t, os.WriteFile(electionPath, []byte(
		"ags,election_year,cdu_csu,spd\n"+
			"1001000,1990,0.5,0.3\n"+
			"5002000,1990,0.4,0.4\n"), 0o644))

	religionPath := filepath.Join(dir, "religion.xlsx")
	writeReligion(t, religionPath)

	cfg := &config.Config{
		Tiles: config.TilesConfig{
			Dir:             tilesDir,
			SRID:            25832,
			UpperLeft:       []float64{0, 100},
			LowerRight:      []float64{100, 0},
			BaseExtent:      []float64{100, 100},
			ZoomFactors:     []float64{1},
			TileSize:        []float64{100, 100},
			SwapAxes:        true,
			Rows:            1,
			Cols:            1,
			MaxSkipFraction: 0.5,
		},
		Attributes: config.AttributesConfig{Dir: attrDir, Key: "Konf", Confessions: []string{"Catholic"}},
		Clean:      config.CleanConfig{SnapTolerance: 0.01, MinHoleArea: 1, SimplifyTolerance: 0.5, QuadSegments: 8},
		Analysis:   config.AnalysisConfig{SRID: 25832, StatePrefixes: []string{"01", "05"}, Workers: 2},
		Inputs: config.InputsConfig{
			Admin: config.AdminInput{
				Path: adminPath, Layer: "vg250_gem", SRID: 25832,
				AGSColumn: "AGS", ARSColumn: "ARS", NameCol: "GEN", StateCol: "SN_L",
			},
			Religion: config.ReligionInput{Path: religionPath, Sheet: "Religion", HeaderRows: 3},
			Election: config.ElectionInput{
				Path: electionPath, KeyColumn: "ags", YearColumn: "election_year",
				Delimiter: ",", KeyWidth: 8,
			},
		},
		Output: config.OutputConfig{
			Path:            filepath.Join(dir, "out", "merged.gpkg"),
			UnitsLayer:      "municipalities",
			HistoricalLayer: "historical_polygon",
			Report:          true,
		},
	}
	return fixture{dir: dir, cfg: cfg}
}

func writeReligion(t *testing.T, path string) {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Religion")
	require.NoError(t, err)
	for _, title := range []string{"Zensus 2011", "Religion", ""} {
		sheet.AddRow().AddCell().SetString(title)
	}
	hr := sheet.AddRow()
	for _, h := range []string{"Code", "Name", "Art", "Einheit", "Insgesamt", "e", "Evangelisch", "e", "Katholisch", "e", "Ohne", "e"} {
		hr.AddCell().SetString(h)
	}
	row := sheet.AddRow()
	for _, v := range []string{"010010000000", "Inside", "Personen", "Anzahl", "1000", "", "200", "", "700", "", "100", ""} {
		row.AddCell().SetString(v)
	}
	require.NoError(t, f.Save(path))
}

func readUnits(t *testing.T, path, layer string) map[string]gpkg.Record {
	t.Helper()
	r, err := gpkg.Open(path)
	require.NoError(t, err)
	defer r.Close() //nolint:errcheck

	out := make(map[string]gpkg.Record)
	require.NoError(t, r.Features(context.Background(), layer, func(rec gpkg.Record) error {
		out[rec.Properties["ags"].(string)] = rec
		return nil
	}))
	return out
}

func TestRunEndToEnd(t *testing.T) {
	fx := newFixture(t)

	res, err := New(fx.cfg).Run(context.Background())
	require.NoError(t, err)

	// One row per unit.
	require.Len(t, res.Rows, 5)
	assert.Equal(t, 4, res.Report.Units.InScope)
	assert.Equal(t, 2, res.Report.Selection.Regions)
	assert.Equal(t, 1, res.Report.Selection.Selected)
	assert.Equal(t, 1, res.Report.Tiles.Degenerate)
	assert.Equal(t, 1, res.Report.Distance.Inside)
	assert.Equal(t, 3, res.Report.Distance.Outside)
	assert.Equal(t, 1, res.Report.Merge.ReligionMatched)
	assert.Equal(t, 2, res.Report.Merge.ElectionMatched)
	assert.InDelta(t, 100.0, res.Region.Geometry.Area(), 1e-6)

	units := readUnits(t, fx.cfg.Output.Path, "municipalities")
	require.Len(t, units, 5)

	want := map[string]float64{
		"01001000": 5,
		"01002000": -5,
		"05001000": -5,
		"05002000": -math.Sqrt(50),
	}
	for ags, d := range want {
		assert.InDelta(t, d, units[ags].Properties["signed_distance"], 1e-6, ags)
	}
	assert.Nil(t, units["12001000"].Properties["signed_distance"])
	assert.Nil(t, units["12001000"].Properties["distance_to_border"])

	assert.InDelta(t, 700.0, units["01001000"].Properties["catholic"], 1e-9)
	assert.Nil(t, units["01002000"].Properties["catholic"])
	assert.InDelta(t, 0.5, units["01001000"].Properties["cdu_csu_1990"], 1e-9)
	assert.InDelta(t, 0.4, units["05002000"].Properties["spd_1990"], 1e-9)
	assert.Nil(t, units["05001000"].Properties["spd_1990"])

	r, err := gpkg.Open(fx.cfg.Output.Path)
	require.NoError(t, err)
	defer r.Close() //nolint:errcheck
	hist, err := r.Layer(context.Background(), "historical_polygon")
	require.NoError(t, err)
	assert.Equal(t, 25832, hist.SRID)
	n, err := r.Count(context.Background(), "historical_polygon")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	data, err := os.ReadFile(ReportPath(fx.cfg.Output.Path))
	require.NoError(t, err)
	var rep Report
	require.NoError(t, yaml.Unmarshal(data, &rep))
	assert.Equal(t, fx.cfg.Output.Path, rep.Output)
	assert.Equal(t, 25832, rep.Parameters.AnalysisSRID)
	assert.Len(t, rep.Stages, 11)
}

func TestRunCRSMismatchIsFatal(t *testing.T) {
	fx := newFixture(t)
	fx.cfg.Tiles.SRID = 32633

	_, err := New(fx.cfg).Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrCRSMismatch))

	_, statErr := os.Stat(fx.cfg.Output.Path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRunTooManySkippedTiles(t *testing.T) {
	fx := newFixture(t)
	bad := "document.write('" + area("1,2,3", 1, "Broken") + "');"
	require.NoError(t, os.WriteFile(filepath.Join(fx.cfg.Tiles.Dir, atlas.TileName(0, 0)), []byte(bad), 0o644))

	_, err := New(fx.cfg).Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, atlas.ErrTooManySkipped))
}

func TestRunWithoutAttributesSelectsAll(t *testing.T) {
	fx := newFixture(t)
	fx.cfg.Attributes.Dir = ""
	fx.cfg.Inputs.Religion.Path = ""
	fx.cfg.Inputs.Election.Path = ""
	fx.cfg.Output.Report = false

	res, err := New(fx.cfg).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Report.Selection.Selected)
	assert.InDelta(t, 200.0, res.Region.Geometry.Area(), 1e-6)
	assert.Equal(t, 0, res.Report.Merge.ReligionMatched)

	_, err = os.Stat(ReportPath(fx.cfg.Output.Path))
	assert.True(t, os.IsNotExist(err))
}

func TestRunControlPointMismatch(t *testing.T) {
	fx := newFixture(t)
	fx.cfg.Tiles.ControlPoints = []config.ControlPoint{{Row: 0, Col: 0, PX: 0, PY: 0, X: 0, Y: 0}}
	fx.cfg.Tiles.ControlTolerance = 1

	_, err := New(fx.cfg).Run(context.Background())
	assert.Error(t, err)
}

func TestRunCancelled(t *testing.T) {
	fx := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(fx.cfg).Run(ctx)
	assert.Error(t, err)
}

func TestReportPath(t *testing.T) {
	assert.Equal(t, "bld/out.report.yaml", ReportPath("bld/out.gpkg"))
	assert.Equal(t, "out.report.yaml", ReportPath("out"))
}

func TestUnitsLayerNulls(t *testing.T) {
	d := 3.0
	rows := []model.MergedRow{
		{Unit: model.AdministrativeUnit{AGS: "01001000", SignedDistance: &d, InScope: true}},
		{
			Unit:     model.AdministrativeUnit{AGS: "01002000", Geometry: square(0, 0, 1)},
			Election: &model.ElectionRecord{Key: "01002000", Values: map[string]float64{"spd_1990": 0.3}},
		},
	}
	l := UnitsLayer("units", 25832, rows, []string{"cdu_1990", "spd_1990"})
	require.Len(t, l.Features, 2)
	assert.Len(t, l.Columns, len(unitColumns)+2)

	f0 := l.Features[0]
	assert.Nil(t, f0.Geometry)
	assert.Equal(t, 3.0, f0.Values[8])
	assert.Nil(t, f0.Values[len(f0.Values)-1])

	f1 := l.Features[1]
	assert.Nil(t, f1.Values[8])
	assert.Nil(t, f1.Values[len(f1.Values)-2])
	assert.Equal(t, 0.3, f1.Values[len(f1.Values)-1])
}
