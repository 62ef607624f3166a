package atlas

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/hre-border/internal/fetcher"
	"github.com/sells-group/hre-border/internal/resilience"
)

// DownloadOptions configures Download.
type DownloadOptions struct {
	TilesBaseURL      string
	AttributesBaseURL string
	Zoom              int
	Rows              int
	Cols              int
	AttributeFiles    int
	TilesDir          string
	AttributesDir     string
	Concurrency       int
	Breaker           resilience.CircuitBreakerConfig
}

// DownloadResult counts download outcomes.
type DownloadResult struct {
	Downloaded int
	Failed     int
	// Rejected downloads were not attempted because the circuit was open.
	Rejected int
}

type job struct {
	url  string
	path string
}

// Download fetches the tile grid of one zoom level and the attribute files.
// Individual failures are logged and counted; only cancellation is an error.
func Download(ctx context.Context, f fetcher.Fetcher, opts DownloadOptions) (DownloadResult, error) {
	log := zap.L().With(zap.String("component", "atlas"))

	var jobs []job
	if opts.TilesBaseURL != "" && opts.TilesDir != "" {
		if err := os.MkdirAll(opts.TilesDir, 0o755); err != nil {
			return DownloadResult{}, eris.Wrap(err, "atlas: create tiles dir")
		}
		base := fmt.Sprintf("%s/TILES_%d", strings.TrimRight(opts.TilesBaseURL, "/"), opts.Zoom)
		for row := 0; row < opts.Rows; row++ {
			for col := 0; col < opts.Cols; col++ {
				name := TileName(row, col)
				jobs = append(jobs, job{url: base + "/" + name, path: filepath.Join(opts.TilesDir, name)})
			}
		}
	}
	if opts.AttributesBaseURL != "" && opts.AttributesDir != "" && opts.AttributeFiles > 0 {
		if err := os.MkdirAll(opts.AttributesDir, 0o755); err != nil {
			return DownloadResult{}, eris.Wrap(err, "atlas: create attributes dir")
		}
		base := strings.TrimRight(opts.AttributesBaseURL, "/")
		for i := 0; i < opts.AttributeFiles; i++ {
			name := fmt.Sprintf("%d.JS", i)
			jobs = append(jobs, job{url: base + "/" + name, path: filepath.Join(opts.AttributesDir, name)})
		}
	}

	breaker := resilience.NewCircuitBreaker(opts.Breaker)
	var downloaded, failed, rejected atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(opts.Concurrency, 1))
	for _, j := range jobs {
		g.Go(func() error {
			err := breaker.Execute(gctx, func(ctx context.Context) error {
				_, err := f.DownloadToFile(ctx, j.url, j.path)
				return err
			})
			switch {
			case gctx.Err() != nil:
				return gctx.Err()
			case eris.Is(err, resilience.ErrCircuitOpen):
				rejected.Add(1)
			case err != nil:
				failed.Add(1)
				log.Warn("download failed", zap.String("url", j.url), zap.Error(err))
			default:
				downloaded.Add(1)
			}
			return nil
		})
	}
	err := g.Wait()

	res := DownloadResult{
		Downloaded: int(downloaded.Load()),
		Failed:     int(failed.Load()),
		Rejected:   int(rejected.Load()),
	}
	log.Info("download finished",
		zap.Int("files", len(jobs)),
		zap.Int("downloaded", res.Downloaded),
		zap.Int("failed", res.Failed),
		zap.Int("rejected", res.Rejected),
	)
	if err != nil {
		return res, eris.Wrap(err, "atlas: download")
	}
	return res, nil
}
