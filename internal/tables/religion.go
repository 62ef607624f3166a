package tables

import (
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/hre-border/internal/fetcher"
	"github.com/sells-group/hre-border/internal/model"
)

// ReligionColumns is the positional schema of the census religion sheet.
// Columns ending in "_e" hold footnote flags and are discarded.
var ReligionColumns = []string{
	"Region_Code", "Region_Name", "Population_Type", "Unit", "Total_Population",
	"Protestant_e", "Protestant", "Catholic_e", "Catholic", "None_e", "None", "final_e",
}

// ReligionCompactColumns is the schema of a religion table that has
// already been reduced to the kept columns.
var ReligionCompactColumns = []string{
	"Region_Code", "Region_Name", "Total_Population", "Protestant", "Catholic", "None",
}

// religionLayout maps record fields to column positions.
type religionLayout struct {
	columns    []string
	code, name int
	total      int
	protestant int
	catholic   int
	none       int
}

var (
	censusLayout = religionLayout{
		columns:    ReligionColumns,
		code:       0,
		name:       1,
		total:      4,
		protestant: 6,
		catholic:   8,
		none:       10,
	}
	compactLayout = religionLayout{
		columns:    ReligionCompactColumns,
		code:       0,
		name:       1,
		total:      2,
		protestant: 3,
		catholic:   4,
		none:       5,
	}
)

// ReligionOptions configures LoadReligion.
type ReligionOptions struct {
	Sheet string
	// HeaderRows is the number of title rows above the column header row.
	HeaderRows int
}

// LoadReligion reads the census religion spreadsheet.
func LoadReligion(path string, opts ReligionOptions) ([]model.ReligionRecord, error) {
	rows, err := fetcher.ReadXLSX(path, fetcher.XLSXOptions{SheetName: opts.Sheet, SkipRows: opts.HeaderRows})
	if err != nil {
		return nil, eris.Wrap(err, "tables: read religion")
	}
	return ParseReligion(rows)
}

// ParseReligion validates the header row (rows[0]) and converts the data
// rows. The column count picks the schema: ReligionColumns for the census
// sheet, ReligionCompactColumns for a reduced table. Any other width is a
// schema mismatch. A header that uses any schema name must use all of them
// in schema order. Non-numeric share values count as 0; rows without code
// and name are skipped; the first record per region code wins.
func ParseReligion(rows [][]string) ([]model.ReligionRecord, error) {
	if len(rows) == 0 {
		return nil, eris.Wrap(ErrSchemaMismatch, "religion: no header row")
	}
	layout, err := checkReligionHeader(rows[0])
	if err != nil {
		return nil, err
	}

	log := zap.L().With(zap.String("component", "tables"))
	seen := make(map[string]struct{})
	var out []model.ReligionRecord
	var duplicates, short int
	for _, row := range rows[1:] {
		if len(row) <= layout.name {
			short++
			continue
		}
		code := strings.TrimSpace(row[layout.code])
		name := strings.TrimSpace(row[layout.name])
		if code == "" && name == "" {
			continue
		}
		if _, dup := seen[code]; dup {
			duplicates++
			continue
		}
		seen[code] = struct{}{}

		out = append(out, model.ReligionRecord{
			RegionCode:      code,
			RegionName:      name,
			TotalPopulation: cellNumber(row, layout.total),
			Protestant:      cellNumber(row, layout.protestant),
			Catholic:        cellNumber(row, layout.catholic),
			None:            cellNumber(row, layout.none),
		})
	}

	log.Info("religion table loaded",
		zap.Int("columns", len(layout.columns)),
		zap.Int("records", len(out)),
		zap.Int("duplicates", duplicates),
		zap.Int("short_rows", short),
	)
	return out, nil
}

func checkReligionHeader(header []string) (religionLayout, error) {
	// Trailing empty cells are formatting, not columns.
	n := len(header)
	for n > 0 && strings.TrimSpace(header[n-1]) == "" {
		n--
	}
	var layout religionLayout
	switch n {
	case len(ReligionColumns):
		layout = censusLayout
	case len(ReligionCompactColumns):
		layout = compactLayout
	default:
		return religionLayout{}, eris.Wrapf(ErrSchemaMismatch, "religion: header has %d columns, expected %d or %d",
			n, len(ReligionColumns), len(ReligionCompactColumns))
	}

	named := false
	for _, cell := range header[:n] {
		for _, col := range layout.columns {
			if strings.EqualFold(strings.TrimSpace(cell), col) {
				named = true
			}
		}
	}
	if !named {
		return layout, nil
	}
	for i, col := range layout.columns {
		if !strings.EqualFold(strings.TrimSpace(header[i]), col) {
			return religionLayout{}, eris.Wrapf(ErrSchemaMismatch, "religion: column %d is %q, expected %q", i, header[i], col)
		}
	}
	return layout, nil
}

func cellNumber(row []string, i int) float64 {
	if i >= len(row) {
		return 0
	}
	v, _ := parseNumber(row[i])
	return v
}
