package atlas

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/hre-border/internal/model"
)

// ErrTooManySkipped is returned when more tiles failed to parse than the
// configured fraction allows.
var ErrTooManySkipped = eris.New("atlas: too many tiles skipped")

// TileName returns the file name of tile (row, col).
func TileName(row, col int) string {
	return fmt.Sprintf("%d_%d.JS", row, col)
}

// ReconstructOptions configures Reconstruct.
type ReconstructOptions struct {
	Dir       string
	Charset   string
	Rows      int
	Cols      int
	Transform Transform
	// MaxSkipFraction bounds the share of the grid that may fail to read
	// or parse. Missing tiles do not count.
	MaxSkipFraction float64
}

// ReconstructResult summarizes a reconstruction.
type ReconstructResult struct {
	Fragments  []model.Fragment
	Tiles      int
	Parsed     int
	Missing    int
	Failed     int
	Degenerate int
}

// Reconstruct reads every tile of the rows x cols grid in dir and returns
// the world-coordinate fragments in tile order.
func Reconstruct(ctx context.Context, opts ReconstructOptions) (ReconstructResult, error) {
	log := zap.L().With(zap.String("component", "atlas"))
	res := ReconstructResult{Tiles: opts.Rows * opts.Cols}
	if res.Tiles <= 0 {
		return res, eris.New("atlas: empty tile grid")
	}

	for row := 0; row < opts.Rows; row++ {
		for col := 0; col < opts.Cols; col++ {
			if err := ctx.Err(); err != nil {
				return res, eris.Wrap(err, "atlas: reconstruct")
			}
			path := filepath.Join(opts.Dir, TileName(row, col))
			tile, err := readTile(path, opts.Charset, row, col, opts.Transform)
			switch {
			case errors.Is(err, fs.ErrNotExist):
				res.Missing++
				log.Debug("tile missing", zap.String("path", path))
				continue
			case err != nil:
				res.Failed++
				log.Warn("skipping tile", zap.String("path", path), zap.Error(err))
				continue
			}
			res.Parsed++
			res.Degenerate += tile.Degenerate
			res.Fragments = append(res.Fragments, tile.Fragments...)
		}
	}

	log.Info("tiles reconstructed",
		zap.Int("tiles", res.Tiles),
		zap.Int("parsed", res.Parsed),
		zap.Int("missing", res.Missing),
		zap.Int("failed", res.Failed),
		zap.Int("degenerate", res.Degenerate),
		zap.Int("fragments", len(res.Fragments)),
	)

	if frac := float64(res.Failed) / float64(res.Tiles); frac > opts.MaxSkipFraction {
		return res, eris.Wrapf(ErrTooManySkipped, "%d of %d tiles failed (limit %.0f%%)", res.Failed, res.Tiles, opts.MaxSkipFraction*100)
	}
	if len(res.Fragments) == 0 {
		return res, eris.Errorf("atlas: no fragments found in %s", opts.Dir)
	}
	return res, nil
}

func readTile(path, charset string, row, col int, t Transform) (TileResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return TileResult{}, err
	}
	defer f.Close() //nolint:errcheck
	return ParseTile(f, charset, row, col, t)
}
