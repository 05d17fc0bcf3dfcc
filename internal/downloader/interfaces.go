package downloader

import (
	"context"
	"io"
)

// Downloader fetches media content from URLs.
type Downloader interface {
	// Download streams the resource at url. Caller is responsible for closing the reader.
	Download(ctx context.Context, url, referer string) (io.ReadCloser, *ProbeResult, error)

	// Probe sizes a resource with a one-byte range request without downloading it.
	Probe(ctx context.Context, url, referer string) (*ProbeResult, error)
}

// ProbeResult contains information about a media URL.
type ProbeResult struct {
	StatusCode  int
	ContentType string
	// TotalSize is the full resource length, -1 when the server did not say.
	TotalSize int64
}
