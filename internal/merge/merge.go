// Package merge left-joins attribute tables onto the administrative units.
package merge

import (
	"go.uber.org/zap"

	"github.com/sells-group/hre-border/internal/model"
)

// Key extracts a join key from a unit.
type Key func(model.AdministrativeUnit) string

// ByAGS joins on the municipality key.
func ByAGS(u model.AdministrativeUnit) string { return u.AGS }

// ByARS joins on the regional key.
func ByARS(u model.AdministrativeUnit) string { return u.ARS }

// LeftJoin attaches each right-hand record whose key matches a row.
// Unmatched rows are kept once with nothing attached; a row whose key
// matches several records is emitted once per record. It returns the
// joined rows and the number of rows that found a match.
func LeftJoin[T any](rows []model.MergedRow, recs []T, left Key, right func(T) string, attach func(*model.MergedRow, *T)) ([]model.MergedRow, int) {
	index := make(map[string][]int, len(recs))
	for i, r := range recs {
		k := right(r)
		index[k] = append(index[k], i)
	}

	out := make([]model.MergedRow, 0, len(rows))
	matched := 0
	for _, row := range rows {
		hits := index[left(row.Unit)]
		if len(hits) == 0 {
			out = append(out, row)
			continue
		}
		matched++
		for _, i := range hits {
			r := row
			rec := recs[i]
			attach(&r, &rec)
			out = append(out, r)
		}
	}
	return out, matched
}

// Options selects the join keys.
type Options struct {
	ReligionKey Key
	ElectionKey Key
}

// Stats counts join coverage.
type Stats struct {
	Rows            int `yaml:"rows"`
	ReligionMatched int `yaml:"religion_matched"`
	ElectionMatched int `yaml:"election_matched"`
	ReligionFanOut  int `yaml:"religion_fan_out"`
	ElectionFanOut  int `yaml:"election_fan_out"`
}

// Merge joins the religion and election records onto units. With
// deduplicated inputs the result has exactly one row per unit, in unit
// order.
func Merge(units []model.AdministrativeUnit, religion []model.ReligionRecord, election []model.ElectionRecord, opts Options) ([]model.MergedRow, Stats) {
	if opts.ReligionKey == nil {
		opts.ReligionKey = ByARS
	}
	if opts.ElectionKey == nil {
		opts.ElectionKey = ByAGS
	}

	rows := make([]model.MergedRow, len(units))
	for i, u := range units {
		rows[i] = model.MergedRow{Unit: u}
	}

	var st Stats
	before := len(rows)
	rows, st.ReligionMatched = LeftJoin(rows, religion, opts.ReligionKey,
		func(r model.ReligionRecord) string { return r.RegionCode },
		func(row *model.MergedRow, r *model.ReligionRecord) { row.Religion = r })
	st.ReligionFanOut = len(rows) - before

	before = len(rows)
	rows, st.ElectionMatched = LeftJoin(rows, election, opts.ElectionKey,
		func(r model.ElectionRecord) string { return r.Key },
		func(row *model.MergedRow, r *model.ElectionRecord) { row.Election = r })
	st.ElectionFanOut = len(rows) - before
	st.Rows = len(rows)

	log := zap.L().With(zap.String("component", "merge"))
	log.Info("attributes merged",
		zap.Int("units", len(units)),
		zap.Int("rows", st.Rows),
		zap.Int("religion_matched", st.ReligionMatched),
		zap.Int("election_matched", st.ElectionMatched),
	)
	if st.ReligionFanOut > 0 || st.ElectionFanOut > 0 {
		log.Warn("duplicate join keys multiplied rows",
			zap.Int("religion_fan_out", st.ReligionFanOut),
			zap.Int("election_fan_out", st.ElectionFanOut),
		)
	}
	return rows, st
}
