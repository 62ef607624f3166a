package atlas

import (
	"html"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/hre-border/internal/fetcher"
	"github.com/sells-group/hre-border/internal/model"
)

var areaPattern = regexp.MustCompile(`coords="([^"]+)" href="javascript:show_popup\((\d+)\);" id="(\d+)_area" title="([^"]+)"`)

// TileResult is what one tile file yields.
type TileResult struct {
	Fragments []model.Fragment
	// Degenerate counts areas with fewer than three distinct vertices.
	Degenerate int
}

// ParseTile extracts the clickable areas of tile (row, col) and converts
// them to world-coordinate polygons. A malformed coordinate list fails the
// whole tile.
func ParseTile(r io.Reader, charset string, row, col int, t Transform) (TileResult, error) {
	decoded, err := fetcher.DecodeCharset(r, charset)
	if err != nil {
		return TileResult{}, err
	}
	content, err := io.ReadAll(decoded)
	if err != nil {
		return TileResult{}, eris.Wrap(err, "atlas: read tile")
	}

	var res TileResult
	for _, m := range areaPattern.FindAllStringSubmatch(string(content), -1) {
		regionID, err := strconv.Atoi(m[2])
		if err != nil {
			return TileResult{}, eris.Wrapf(err, "atlas: tile %d_%d: region id %q", row, col, m[2])
		}
		px, err := parsePixels(m[1])
		if err != nil {
			return TileResult{}, eris.Wrapf(err, "atlas: tile %d_%d region %d", row, col, regionID)
		}
		poly := buildPolygon(px, row, col, t)
		if poly == nil {
			res.Degenerate++
			continue
		}
		res.Fragments = append(res.Fragments, model.Fragment{
			RegionID: regionID,
			Title:    html.UnescapeString(m[4]),
			Row:      row,
			Col:      col,
			Polygon:  poly,
		})
	}
	return res, nil
}

func parsePixels(coords string) ([]float64, error) {
	parts := strings.Split(coords, ",")
	if len(parts)%2 != 0 {
		return nil, eris.Errorf("odd number of pixel values (%d)", len(parts))
	}
	out := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, eris.Wrapf(err, "pixel value %q", p)
		}
		out[i] = float64(v)
	}
	return out, nil
}

// buildPolygon returns nil when the area has fewer than three distinct
// vertices.
func buildPolygon(px []float64, row, col int, t Transform) *geom.Polygon {
	flat := make([]float64, 0, len(px)+2)
	distinct := make(map[[2]float64]struct{}, len(px)/2)
	for i := 0; i+1 < len(px); i += 2 {
		x, y := t.ToWorld(row, col, px[i], px[i+1])
		n := len(flat)
		if n >= 2 && flat[n-2] == x && flat[n-1] == y {
			continue
		}
		flat = append(flat, x, y)
		distinct[[2]float64{x, y}] = struct{}{}
	}
	if len(distinct) < 3 {
		return nil
	}
	if n := len(flat); flat[0] != flat[n-2] || flat[1] != flat[n-1] {
		flat = append(flat, flat[0], flat[1])
	}
	return geom.NewPolygonFlat(geom.XY, flat, []int{len(flat)})
}
