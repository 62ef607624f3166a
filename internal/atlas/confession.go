package atlas

import (
	"strconv"
	"strings"

	"github.com/sells-group/hre-border/internal/model"
)

// Confession is the denomination class of an atlas region.
type Confession string

// Confession classes.
const (
	Catholic   Confession = "Catholic"
	Protestant Confession = "Protestant"
	Mixed      Confession = "Mixed"
	Unclear    Confession = "Unclear"
)

var protestantKeywords = []string{"lutheran", "calvinist", "reformed", "free"}

// Classify maps a free-text confession label from the atlas to a class.
func Classify(label string) Confession {
	s := strings.ToLower(label)
	if s == "" || containsAny(s, "secular", "unclear", "radical") {
		return Unclear
	}
	protestant := containsAny(s, protestantKeywords...)
	switch {
	case strings.Contains(s, "roman-catholic") && protestant:
		return Mixed
	case strings.Contains(s, "roman-catholic"):
		return Catholic
	case protestant:
		return Protestant
	case strings.Contains(s, "mixed"):
		return Mixed
	}
	return Unclear
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// Selector decides which regions make up the historical region.
type Selector struct {
	Attributes Attributes
	Key        string
	Accept     []Confession
	// Year, when non-zero, dates the selection: a region counts as
	// Unclear unless its StartKey <= Year < EndKey interval holds.
	Year     int
	StartKey string
	EndKey   string
}

// Include reports whether region r is selected. Without attributes every
// region is selected.
func (s Selector) Include(r model.RegionPolygon) bool {
	if s.Attributes == nil {
		return true
	}
	fields, ok := s.Attributes[r.RegionID]
	if !ok {
		return false
	}
	c := s.Confession(fields)
	for _, a := range s.Accept {
		if c == a {
			return true
		}
	}
	return false
}

// Confession classifies a region's attribute fields, as of Year when set.
// A missing or unparsable start or end year is Unclear.
func (s Selector) Confession(fields map[string]string) Confession {
	if s.Year != 0 {
		start, okStart := parseYear(fields[s.StartKey])
		end, okEnd := parseYear(fields[s.EndKey])
		if !okStart || !okEnd || s.Year < start || s.Year >= end {
			return Unclear
		}
	}
	return Classify(fields[s.Key])
}

// parseYear reads the leading integer of v, so "1555", "1555.0" and
// "1555-09-25" all give 1555.
func parseYear(v string) (int, bool) {
	v = strings.TrimSpace(v)
	end := 0
	if strings.HasPrefix(v, "-") {
		end = 1
	}
	for end < len(v) && v[end] >= '0' && v[end] <= '9' {
		end++
	}
	y, err := strconv.Atoi(v[:end])
	if err != nil {
		return 0, false
	}
	return y, true
}
