package atlas

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/hre-border/internal/fetcher"
	"github.com/sells-group/hre-border/internal/resilience"
)

func writeTile(t *testing.T, dir string, row, col int, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, TileName(row, col)), []byte(content), 0o644))
}

func TestReconstruct(t *testing.T) {
	dir := t.TempDir()
	writeTile(t, dir, 0, 0, area("0,0,10,0,10,10,0,10", 4, "A"))
	writeTile(t, dir, 1, 0, area("0,0,10,0,10,10,0,10", 4, "A")+area("0,0,3,3", 5, "B"))
	writeTile(t, dir, 1, 1, area("0,0,x", 6, "C"))

	res, err := Reconstruct(context.Background(), ReconstructOptions{
		Dir: dir, Rows: 2, Cols: 2, Transform: testTransform(), MaxSkipFraction: 0.5,
	})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Tiles)
	assert.Equal(t, 2, res.Parsed)
	assert.Equal(t, 1, res.Missing)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.Degenerate)
	require.Len(t, res.Fragments, 2)
	assert.Equal(t, 0, res.Fragments[0].Row)
	assert.Equal(t, 1, res.Fragments[1].Row)
}

func TestReconstructTooManyFailures(t *testing.T) {
	dir := t.TempDir()
	writeTile(t, dir, 0, 0, area("0,0,10,0,10,10", 1, "A"))
	writeTile(t, dir, 0, 1, area("bad", 1, "A"))

	_, err := Reconstruct(context.Background(), ReconstructOptions{
		Dir: dir, Rows: 1, Cols: 2, Transform: testTransform(), MaxSkipFraction: 0.25,
	})
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrTooManySkipped))
}

func TestReconstructNoFragments(t *testing.T) {
	_, err := Reconstruct(context.Background(), ReconstructOptions{
		Dir: t.TempDir(), Rows: 2, Cols: 2, Transform: testTransform(), MaxSkipFraction: 0.5,
	})
	assert.Error(t, err)
}

func TestReconstructCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Reconstruct(ctx, ReconstructOptions{Dir: t.TempDir(), Rows: 1, Cols: 1, Transform: testTransform()})
	assert.Error(t, err)
}

func TestDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/TILES_1/1_1.JS"):
			w.WriteHeader(http.StatusNotFound)
		case strings.Contains(r.URL.Path, "/TILES_1/"), strings.Contains(r.URL.Path, "/ATTR/"):
			_, _ = w.Write([]byte(r.URL.Path))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	defer srv.Close()

	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{RatePerSecond: 1000, Retry: resilience.RetryConfig{MaxAttempts: 1}})
	tiles := filepath.Join(t.TempDir(), "TILES_1")
	attrs := filepath.Join(t.TempDir(), "attributes")

	res, err := Download(context.Background(), f, DownloadOptions{
		TilesBaseURL:      srv.URL,
		AttributesBaseURL: srv.URL + "/ATTR/",
		Zoom:              1,
		Rows:              2,
		Cols:              2,
		AttributeFiles:    3,
		TilesDir:          tiles,
		AttributesDir:     attrs,
		Concurrency:       2,
		Breaker:           resilience.CircuitBreakerConfig{FailureThreshold: 10},
	})
	require.NoError(t, err)
	assert.Equal(t, 6, res.Downloaded)
	assert.Equal(t, 1, res.Failed)
	assert.Zero(t, res.Rejected)

	data, err := os.ReadFile(filepath.Join(tiles, "0_1.JS"))
	require.NoError(t, err)
	assert.Equal(t, "/TILES_1/0_1.JS", string(data))
	assert.FileExists(t, filepath.Join(attrs, "2.JS"))
	assert.NoFileExists(t, filepath.Join(tiles, "1_1.JS"))
}

func TestDownloadBreakerRejects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{RatePerSecond: 1000, Retry: resilience.RetryConfig{MaxAttempts: 1}})
	res, err := Download(context.Background(), f, DownloadOptions{
		TilesBaseURL: srv.URL,
		Zoom:         1,
		Rows:         3,
		Cols:         3,
		TilesDir:     t.TempDir(),
		Concurrency:  1,
		Breaker:      resilience.CircuitBreakerConfig{FailureThreshold: 2},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Failed)
	assert.Equal(t, 7, res.Rejected)
}
