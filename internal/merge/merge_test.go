package merge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/hre-border/internal/model"
)

func units() []model.AdministrativeUnit {
	return []model.AdministrativeUnit{
		{AGS: "01001000", ARS: "010010000000"},
		{AGS: "05111000", ARS: "051110000000"},
		{AGS: "09162000", ARS: "091620000000"},
	}
}

func TestMergeOneRowPerUnit(t *testing.T) {
	religion := []model.ReligionRecord{
		{RegionCode: "051110000000", Catholic: 10},
		{RegionCode: "010010000000", Catholic: 5},
		{RegionCode: "999", Catholic: 1},
	}
	election := []model.ElectionRecord{
		{Key: "09162000", Values: map[string]float64{"cdu_1990": 0.4}},
	}

	rows, st := Merge(units(), religion, election, Options{})
	require.Len(t, rows, 3)
	assert.Equal(t, Stats{Rows: 3, ReligionMatched: 2, ElectionMatched: 1}, st)

	assert.Equal(t, "01001000", rows[0].Unit.AGS)
	require.NotNil(t, rows[0].Religion)
	assert.Equal(t, 5.0, rows[0].Religion.Catholic)
	assert.Nil(t, rows[0].Election)

	assert.Equal(t, 10.0, rows[1].Religion.Catholic)
	assert.Nil(t, rows[2].Religion)
	require.NotNil(t, rows[2].Election)
	assert.Equal(t, 0.4, rows[2].Election.Values["cdu_1990"])
}

func TestMergeDuplicateKeysFanOut(t *testing.T) {
	religion := []model.ReligionRecord{
		{RegionCode: "010010000000", Catholic: 1},
		{RegionCode: "010010000000", Catholic: 2},
	}
	rows, st := Merge(units(), religion, nil, Options{})
	assert.Len(t, rows, 4)
	assert.Equal(t, 1, st.ReligionFanOut)
	assert.Equal(t, 1.0, rows[0].Religion.Catholic)
	assert.Equal(t, 2.0, rows[1].Religion.Catholic)
	assert.Equal(t, rows[0].Unit.AGS, rows[1].Unit.AGS)
}

func TestMergeNoTables(t *testing.T) {
	rows, st := Merge(units(), nil, nil, Options{})
	assert.Len(t, rows, 3)
	assert.Zero(t, st.ReligionMatched)
	for _, r := range rows {
		assert.Nil(t, r.Religion)
		assert.Nil(t, r.Election)
	}
}

func TestMergeCustomKey(t *testing.T) {
	religion := []model.ReligionRecord{{RegionCode: "05111000", Catholic: 3}}
	rows, st := Merge(units(), religion, nil, Options{ReligionKey: ByAGS})
	assert.Equal(t, 1, st.ReligionMatched)
	assert.Equal(t, 3.0, rows[1].Religion.Catholic)
}

func TestLeftJoinRecordsAreIndependent(t *testing.T) {
	rows := []model.MergedRow{{Unit: model.AdministrativeUnit{AGS: "a"}}, {Unit: model.AdministrativeUnit{AGS: "b"}}}
	recs := []model.ElectionRecord{{Key: "a", Values: map[string]float64{"x": 1}}, {Key: "b", Values: map[string]float64{"x": 2}}}
	out, matched := LeftJoin(rows, recs, ByAGS,
		func(r model.ElectionRecord) string { return r.Key },
		func(row *model.MergedRow, r *model.ElectionRecord) { row.Election = r })
	assert.Equal(t, 2, matched)
	assert.Equal(t, 1.0, out[0].Election.Values["x"])
	assert.Equal(t, 2.0, out[1].Election.Values["x"])
}
