// Package fetcher downloads remote files and reads the tabular inputs
// (CSV, XLSX) of the pipeline.
package fetcher

import (
	"context"
	"io"
)

// Fetcher downloads remote data.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile fetches the URL into path and returns the bytes written.
	// A partially written file never replaces an existing one.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)
}
