package tables

import (
	"context"
	"fmt"
	"os"
	"slices"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/hre-border/internal/fetcher"
	"github.com/sells-group/hre-border/internal/model"
)

// ElectionOptions configures LoadElection.
type ElectionOptions struct {
	KeyColumn string
	// YearColumn, when present, suffixes every value column with the year.
	YearColumn string
	// Parties restricts the value columns. Empty means every column
	// other than the key and year.
	Parties   []string
	Delimiter rune
	Charset   string
	KeyWidth  int
}

// LoadElection reads a long election table (one row per unit and year)
// and pivots it to one record per unit.
func LoadElection(ctx context.Context, path string, opts ElectionOptions) ([]model.ElectionRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "tables: open election table")
	}
	defer f.Close() //nolint:errcheck

	headerCh := make(chan []string, 1)
	rowCh, errCh := fetcher.StreamCSV(ctx, f, fetcher.CSVOptions{
		Delimiter:  opts.Delimiter,
		HasHeader:  true,
		HeaderCh:   headerCh,
		TrimSpace:  true,
		LazyQuotes: true,
		Charset:    opts.Charset,
	})

	var rows [][]string
	for row := range rowCh {
		rows = append(rows, row)
	}
	if err := <-errCh; err != nil {
		return nil, eris.Wrap(err, "tables: read election table")
	}
	// The header is sent before any row, so it is buffered by now.
	var header []string
	select {
	case header = <-headerCh:
	default:
		return nil, eris.Wrap(ErrSchemaMismatch, "election: empty table")
	}
	return PivotElection(header, rows, opts)
}

// PivotElection turns long rows into one ElectionRecord per key with
// values named "<column>_<year>". Non-numeric cells are left out. When a
// key and year repeat, the first row wins.
func PivotElection(header []string, rows [][]string, opts ElectionOptions) ([]model.ElectionRecord, error) {
	keyIdx := slices.Index(header, opts.KeyColumn)
	if keyIdx < 0 {
		return nil, eris.Wrapf(ErrSchemaMismatch, "election: key column %q not in header", opts.KeyColumn)
	}
	yearIdx := -1
	if opts.YearColumn != "" {
		yearIdx = slices.Index(header, opts.YearColumn)
	}

	var valueIdx []int
	if len(opts.Parties) > 0 {
		for _, p := range opts.Parties {
			i := slices.Index(header, p)
			if i < 0 {
				return nil, eris.Wrapf(ErrSchemaMismatch, "election: party column %q not in header", p)
			}
			valueIdx = append(valueIdx, i)
		}
	} else {
		for i := range header {
			if i != keyIdx && i != yearIdx {
				valueIdx = append(valueIdx, i)
			}
		}
	}

	byKey := make(map[string]*model.ElectionRecord)
	var order []string
	seen := make(map[string]struct{})
	duplicates := 0
	for _, row := range rows {
		if keyIdx >= len(row) {
			continue
		}
		key := NormalizeKey(row[keyIdx], opts.KeyWidth)
		if key == "" {
			continue
		}
		suffix := ""
		if yearIdx >= 0 && yearIdx < len(row) {
			year := strings.TrimSuffix(strings.TrimSpace(row[yearIdx]), ".0")
			if year != "" {
				suffix = "_" + year
			}
		}
		if _, dup := seen[key+suffix]; dup {
			duplicates++
			continue
		}
		seen[key+suffix] = struct{}{}

		rec, ok := byKey[key]
		if !ok {
			rec = &model.ElectionRecord{Key: key, Values: make(map[string]float64)}
			byKey[key] = rec
			order = append(order, key)
		}
		for _, i := range valueIdx {
			if i >= len(row) {
				continue
			}
			if v, ok := parseNumber(row[i]); ok {
				rec.Values[fmt.Sprintf("%s%s", header[i], suffix)] = v
			}
		}
	}

	out := make([]model.ElectionRecord, 0, len(order))
	for _, k := range order {
		out = append(out, *byKey[k])
	}
	zap.L().With(zap.String("component", "tables")).Info("election table pivoted",
		zap.Int("rows", len(rows)),
		zap.Int("units", len(out)),
		zap.Int("duplicates", duplicates),
	)
	return out, nil
}

// ElectionColumns returns the sorted union of value names across records.
func ElectionColumns(recs []model.ElectionRecord) []string {
	set := make(map[string]struct{})
	for _, r := range recs {
		for k := range r.Values {
			set[k] = struct{}{}
		}
	}
	cols := make([]string, 0, len(set))
	for k := range set {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}
