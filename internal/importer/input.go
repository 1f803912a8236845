package importer

import (
	"context"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/waypoint-labs/roadwatch/internal/fetcher"
)

// datasetExt returns the lowercased file extension of a location, ignoring
// any URL query string.
func datasetExt(location string) string {
	if u, err := url.Parse(location); err == nil && u.Scheme != "" {
		return strings.ToLower(filepath.Ext(u.Path))
	}
	return strings.ToLower(filepath.Ext(location))
}

// open returns a reader for a dataset location, which may be a local file
// path, an http(s) URL, or an ftp URL.
func open(ctx context.Context, f fetcher.Fetcher, location string) (io.ReadCloser, error) {
	switch {
	case strings.HasPrefix(location, "http://"), strings.HasPrefix(location, "https://"):
		return f.Download(ctx, location)
	case strings.HasPrefix(location, "ftp://"):
		return fetcher.NewFTPFetcher(fetcher.FTPOptions{}).Download(ctx, location)
	default:
		file, err := os.Open(location)
		if err != nil {
			return nil, eris.Wrapf(err, "importer: open %s", location)
		}
		return file, nil
	}
}

// localPath materializes a dataset location as a file on disk. Remote inputs
// are downloaded to a temp file; cleanup removes it. Local paths are returned
// as-is with a no-op cleanup.
func localPath(ctx context.Context, f fetcher.Fetcher, location string) (path string, cleanup func(), err error) {
	if !strings.HasPrefix(location, "http://") && !strings.HasPrefix(location, "https://") {
		return location, func() {}, nil
	}
	tmp, err := os.CreateTemp("", "roadwatch-import-*"+filepath.Ext(location))
	if err != nil {
		return "", nil, eris.Wrap(err, "importer: create temp file")
	}
	name := tmp.Name()
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return "", nil, eris.Wrap(err, "importer: close temp file")
	}
	if _, err := f.DownloadToFile(ctx, location, name); err != nil {
		os.Remove(name)
		return "", nil, err
	}
	return name, func() { os.Remove(name) }, nil
}
