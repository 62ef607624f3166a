package atlas

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/hre-border/internal/model"
)

const attrFixture = `add_content(12,"HT_NAME||&quot;Hochstift W&#252;rzburg&quot;,Konf||roman-catholic,Geb||Franken");
add_content(13,"HT_NAME||Markgrafschaft Ansbach,Konf||lutheran");
add_content(14,"broken entry");`

func TestParseAttributes(t *testing.T) {
	attrs, err := ParseAttributes(strings.NewReader(attrFixture), "")
	require.NoError(t, err)
	require.Len(t, attrs, 3)

	assert.Equal(t, "Hochstift Würzburg", attrs[12]["HT_NAME"])
	assert.Equal(t, "roman-catholic", attrs[12]["Konf"])
	assert.Equal(t, "Franken", attrs[12]["Geb"])
	assert.Equal(t, "lutheran", attrs[13]["Konf"])
	assert.Empty(t, attrs[14])
}

func TestCleanKey(t *testing.T) {
	assert.Equal(t, "Region_Name", cleanKey(` "Region Name" `))
	assert.Equal(t, "Konf", cleanKey("&#Konf"))
}

func TestLoadAttributes(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "0.JS"), []byte(`add_content(1,"Konf||lutheran");`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "1.JS"), []byte(`add_content(1,"Konf||roman-catholic");add_content(2,"Konf||calvinist");`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte(`add_content(3,"Konf||x");`), 0o644))

	attrs, err := LoadAttributes(dir, "")
	require.NoError(t, err)
	assert.Len(t, attrs, 2)
	assert.Equal(t, "roman-catholic", attrs[1]["Konf"])

	_, err = LoadAttributes(t.TempDir(), "")
	assert.Error(t, err)
}

func TestClassify(t *testing.T) {
	tests := map[string]Confession{
		"roman-catholic":                   Catholic,
		"Roman-Catholic (prince-bishopric)": Catholic,
		"lutheran":                         Protestant,
		"reformed / calvinist":             Protestant,
		"roman-catholic and lutheran":      Mixed,
		"mixed":                            Mixed,
		"secular":                          Unclear,
		"":                                 Unclear,
		"jewish":                           Unclear,
	}
	for label, want := range tests {
		assert.Equal(t, want, Classify(label), label)
	}
}

func TestSelector(t *testing.T) {
	s := Selector{
		Attributes: Attributes{1: {"Konf": "roman-catholic"}, 2: {"Konf": "lutheran"}},
		Key:        "Konf",
		Accept:     []Confession{Catholic},
	}
	assert.True(t, s.Include(model.RegionPolygon{RegionID: 1}))
	assert.False(t, s.Include(model.RegionPolygon{RegionID: 2}))
	assert.False(t, s.Include(model.RegionPolygon{RegionID: 3}))
	assert.True(t, Selector{}.Include(model.RegionPolygon{RegionID: 3}))
}

func TestSelectorReferenceYear(t *testing.T) {
	attrs := Attributes{
		// Catholic throughout.
		1: {"Konf": "roman-catholic", "start_rel": "1500", "end_rel": "1800"},
		// Catholic until the 1555 settlement turned it Lutheran.
		2: {"Konf": "roman-catholic", "start_rel": "1400", "end_rel": "1555"},
		// Catholic again from 1600.
		3: {"Konf": "roman-catholic", "start_rel": "1600.0", "end_rel": "1700"},
		// No dates.
		4: {"Konf": "roman-catholic"},
		5: {"Konf": "lutheran", "start_rel": "1500", "end_rel": "1800"},
	}
	selected := func(year int) []int {
		s := Selector{
			Attributes: attrs,
			Key:        "Konf",
			Accept:     []Confession{Catholic},
			Year:       year,
			StartKey:   "start_rel",
			EndKey:     "end_rel",
		}
		var ids []int
		for id := 1; id <= 5; id++ {
			if s.Include(model.RegionPolygon{RegionID: id}) {
				ids = append(ids, id)
			}
		}
		return ids
	}

	assert.Equal(t, []int{1}, selected(1555))
	assert.Equal(t, []int{1, 3}, selected(1648))
	assert.Equal(t, []int{1, 2, 3, 4}, selected(0))

	s := Selector{Key: "Konf", Year: 1555, StartKey: "start_rel", EndKey: "end_rel"}
	assert.Equal(t, Unclear, s.Confession(attrs[2]))
	assert.Equal(t, Unclear, s.Confession(attrs[4]))
	assert.Equal(t, Catholic, s.Confession(map[string]string{"Konf": "roman-catholic", "start_rel": "1555", "end_rel": "1556"}))
}

func TestParseYear(t *testing.T) {
	for in, want := range map[string]int{"1555": 1555, " 1648.0": 1648, "1555-09-25": 1555, "-50": -50} {
		y, ok := parseYear(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, y, in)
	}
	for _, in := range []string{"", "x", "-"} {
		_, ok := parseYear(in)
		assert.False(t, ok, in)
	}
}
