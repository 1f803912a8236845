// Package fetcher retrieves road safety datasets from remote mirrors and
// decodes the formats they ship in: CSV and XLSX registry exports, Overpass
// JSON, raw OSM XML, and zipped shapefile bundles.
package fetcher

import (
	"context"
	"io"
)

// Fetcher retrieves a dataset by URL.
type Fetcher interface {
	// Download returns the body of the dataset at url. The caller must
	// close the returned reader.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile writes the dataset at url to path and reports the
	// number of bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)
}
