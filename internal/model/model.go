// Package model holds the domain types shared by the border pipeline stages.
package model

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// SRID is an EPSG coordinate reference system code.
type SRID int

func (s SRID) String() string {
	return fmt.Sprintf("EPSG:%d", int(s))
}

// ErrCRSMismatch is returned when two layers meet in a spatial predicate or
// merge without sharing a coordinate reference system.
var ErrCRSMismatch = eris.New("model: coordinate reference system mismatch")

// CheckSRID returns ErrCRSMismatch wrapped with context when got differs from want.
func CheckSRID(layer string, got, want SRID) error {
	if got != want {
		return eris.Wrapf(ErrCRSMismatch, "%s is %s, expected %s", layer, got, want)
	}
	return nil
}

// Fragment is a single clickable area parsed from one atlas tile, already
// transformed into world coordinates.
type Fragment struct {
	RegionID int
	Title    string
	Row      int
	Col      int
	Polygon  *geom.Polygon
}

// RegionPolygon is the cleaned union of all fragments of one atlas region.
type RegionPolygon struct {
	RegionID  int
	Title     string
	Fragments int
	Geometry  *geom.MultiPolygon
}

// HistoricalRegion is the dissolved polygon of all selected regions.
type HistoricalRegion struct {
	SRID      SRID
	RegionIDs []int
	Geometry  *geom.MultiPolygon
}

// ClippedRegion is the historical region restricted to the present-day
// country boundary, together with the portion of its outline that lies
// inside that boundary. Distances are measured to Curve only.
type ClippedRegion struct {
	SRID     SRID
	Geometry *geom.MultiPolygon
	Curve    *geom.MultiLineString
}

// AdministrativeUnit is one present-day municipality.
type AdministrativeUnit struct {
	AGS      string
	ARS      string
	Name     string
	State    string
	SRID     SRID
	Geometry *geom.MultiPolygon
	InScope  bool

	// Set by the distance stage for in-scope units.
	CentroidX        *float64
	CentroidY        *float64
	DistanceToBorder *float64
	SignedDistance   *float64
}

// StateCode returns the two-digit state prefix of the unit, derived from
// the regional key when no explicit state code is known.
func (u AdministrativeUnit) StateCode() string {
	if len(u.State) == 2 {
		return u.State
	}
	for _, key := range []string{u.ARS, u.AGS} {
		if len(key) >= 2 {
			return key[:2]
		}
	}
	return ""
}

// ReligionRecord is one row of the census religion table.
type ReligionRecord struct {
	RegionCode      string
	RegionName      string
	TotalPopulation float64
	Protestant      float64
	Catholic        float64
	None            float64
}

// ElectionRecord is one administrative unit's election results pivoted to
// wide form. Values are keyed by "<party>_<year>".
type ElectionRecord struct {
	Key    string
	Values map[string]float64
}

// MergedRow is an administrative unit with its joined attribute records.
// A nil record means the unit had no match in that table.
type MergedRow struct {
	Unit     AdministrativeUnit
	Religion *ReligionRecord
	Election *ElectionRecord
}
