// Package atlas reconstructs region polygons from the digital atlas map
// tiles and reads the per-region attribute files.
package atlas

import (
	"fmt"
	"math"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/sells-group/hre-border/internal/config"
)

// Transform maps tile pixel coordinates to world coordinates in the
// tile set's projected CRS.
//
// With SwapAxes set, the row index advances along x and the column index
// along y, which is how the atlas tile names are laid out. FlipY measures
// pixel y upward from the tile bottom instead of downward from its top.
type Transform struct {
	UpperLeft  [2]float64
	LowerRight [2]float64
	BaseExtent [2]float64
	Zoom       float64
	TileWidth  float64
	TileHeight float64
	SwapAxes   bool
	FlipY      bool
}

// NewTransform builds a Transform from the tile configuration.
func NewTransform(cfg config.TilesConfig) (Transform, error) {
	if len(cfg.UpperLeft) != 2 || len(cfg.LowerRight) != 2 || len(cfg.BaseExtent) != 2 || len(cfg.TileSize) != 2 {
		return Transform{}, eris.New("atlas: corner, extent and tile size must have two values each")
	}
	if cfg.ZoomLevel < 0 || cfg.ZoomLevel >= len(cfg.ZoomFactors) {
		return Transform{}, eris.Errorf("atlas: zoom level %d out of range", cfg.ZoomLevel)
	}
	t := Transform{
		UpperLeft:  [2]float64{cfg.UpperLeft[0], cfg.UpperLeft[1]},
		LowerRight: [2]float64{cfg.LowerRight[0], cfg.LowerRight[1]},
		BaseExtent: [2]float64{cfg.BaseExtent[0], cfg.BaseExtent[1]},
		Zoom:       cfg.ZoomFactors[cfg.ZoomLevel],
		TileWidth:  cfg.TileSize[0],
		TileHeight: cfg.TileSize[1],
		SwapAxes:   cfg.SwapAxes,
		FlipY:      cfg.FlipY,
	}
	if err := t.validate(); err != nil {
		return Transform{}, err
	}
	return t, nil
}

func (t Transform) validate() error {
	if t.LowerRight[1] == t.UpperLeft[1] {
		return eris.New("atlas: upper-left and lower-right share a y coordinate")
	}
	if t.Zoom <= 0 || t.BaseExtent[1] <= 0 {
		return eris.New("atlas: zoom factor and base extent must be positive")
	}
	if t.TileWidth <= 0 || t.TileHeight <= 0 {
		return eris.New("atlas: tile size must be positive")
	}
	return nil
}

// Scale returns pixels per world unit at the configured zoom.
func (t Transform) Scale() float64 {
	return math.Abs(t.BaseExtent[1] * t.Zoom / (t.LowerRight[1] - t.UpperLeft[1]))
}

// ToWorld converts pixel (x, y) of tile (row, col) to world coordinates.
func (t Transform) ToWorld(row, col int, x, y float64) (float64, float64) {
	if t.FlipY {
		y = t.TileHeight - y
	}
	var gx, gy float64
	if t.SwapAxes {
		gx = float64(row)*t.TileWidth + x
		gy = float64(col)*t.TileHeight + y
	} else {
		gx = float64(col)*t.TileWidth + x
		gy = float64(row)*t.TileHeight + y
	}
	s := t.Scale()
	return t.UpperLeft[0] + gx/s, t.UpperLeft[1] - gy/s
}

// Convention names the axis handling of t.
func (t Transform) Convention() string {
	return fmt.Sprintf("swap_axes=%t flip_y=%t", t.SwapAxes, t.FlipY)
}

// ControlPoint is a tile pixel with a known world position.
type ControlPoint struct {
	Row, Col int
	PX, PY   float64
	X, Y     float64
}

// ControlPointsFromConfig converts configured control points.
func ControlPointsFromConfig(cps []config.ControlPoint) []ControlPoint {
	out := make([]ControlPoint, len(cps))
	for i, cp := range cps {
		out[i] = ControlPoint{Row: cp.Row, Col: cp.Col, PX: cp.PX, PY: cp.PY, X: cp.X, Y: cp.Y}
	}
	return out
}

// Residual returns the largest distance between a transformed control
// point and its known world position.
func (t Transform) Residual(cps []ControlPoint) float64 {
	var worst float64
	for _, cp := range cps {
		x, y := t.ToWorld(cp.Row, cp.Col, cp.PX, cp.PY)
		if d := math.Hypot(x-cp.X, y-cp.Y); d > worst {
			worst = d
		}
	}
	return worst
}

// Candidate is one axis convention and its control point residual.
type Candidate struct {
	Transform Transform
	Residual  float64
}

// Calibrate scores every axis convention against the control points,
// best first.
func (t Transform) Calibrate(cps []ControlPoint) []Candidate {
	var out []Candidate
	for _, swap := range []bool{true, false} {
		for _, flip := range []bool{false, true} {
			c := t
			c.SwapAxes, c.FlipY = swap, flip
			out = append(out, Candidate{Transform: c, Residual: c.Residual(cps)})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Residual < out[j].Residual })
	return out
}

// CheckControlPoints fails when the configured convention misses any
// control point by more than tolerance. The error names the best
// alternative convention when one fits.
func (t Transform) CheckControlPoints(cps []ControlPoint, tolerance float64) error {
	if len(cps) == 0 {
		return nil
	}
	residual := t.Residual(cps)
	if residual <= tolerance {
		return nil
	}
	best := t.Calibrate(cps)[0]
	if best.Residual <= tolerance {
		return eris.Errorf("atlas: control point residual %.1f exceeds %.1f with %s; %s fits with residual %.1f",
			residual, tolerance, t.Convention(), best.Transform.Convention(), best.Residual)
	}
	return eris.Errorf("atlas: control point residual %.1f exceeds %.1f and no axis convention fits (best %s at %.1f)",
		residual, tolerance, best.Transform.Convention(), best.Residual)
}
