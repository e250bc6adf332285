// Package fetcher downloads remote inputs and decodes the tabular and
// archive formats the loaders read (CSV, XLSX, JSON and ZIP).
package fetcher

import (
	"context"
	"io"
)

// Fetcher downloads remote data.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile fetches the URL and writes it to path. Returns bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)

	// GetJSON fetches the URL and decodes the JSON body into out.
	GetJSON(ctx context.Context, url string, out any) error
}
