// Package tables loads the tabular inputs joined onto the administrative
// units: census religion shares and harmonized election results.
package tables

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrSchemaMismatch is returned when an input table does not have the
// expected columns.
var ErrSchemaMismatch = eris.New("tables: schema mismatch")

// parseNumber reads a table cell as a number. It accepts a decimal comma
// and returns false for placeholders such as "-", "/" or ".".
func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if strings.Contains(s, ",") && !strings.Contains(s, ".") {
		s = strings.ReplaceAll(s, ",", ".")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// NormalizeKey trims k and restores leading zeros of all-digit keys
// shorter than width.
func NormalizeKey(k string, width int) string {
	k = strings.TrimSpace(k)
	if strings.HasSuffix(k, ".0") {
		k = strings.TrimSuffix(k, ".0")
	}
	if width <= 0 || len(k) >= width || !allDigits(k) {
		return k
	}
	return strings.Repeat("0", width-len(k)) + k
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
