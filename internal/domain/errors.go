package domain

import "errors"

// Domain errors.
var (
	// ErrNoURLProvided is returned when an extraction is requested without a page URL.
	ErrNoURLProvided = errors.New("no URL provided")

	// ErrRenderFailed is returned when the page could not be rendered.
	ErrRenderFailed = errors.New("page render failed")

	// ErrNoCandidates is returned when rendering produced no media candidates.
	ErrNoCandidates = errors.New("no video URLs found")

	// ErrNoValidCandidates is returned when every candidate failed probing.
	ErrNoValidCandidates = errors.New("no valid video URLs found")

	// ErrExtractionNotFound is returned when an extraction id is unknown.
	ErrExtractionNotFound = errors.New("video not found")

	// ErrBadIndex is returned when a quality index is out of range.
	ErrBadIndex = errors.New("invalid quality index")

	// ErrStreamUnsupported is returned when a download of an adaptive stream is requested.
	ErrStreamUnsupported = errors.New("HLS streams require ffmpeg or yt-dlp; copy the URL and use a download tool")

	// ErrFetchFailed is returned when the upstream media request fails.
	ErrFetchFailed = errors.New("download failed")

	// ErrURLExpired is returned when the media URL is no longer authorized.
	ErrURLExpired = errors.New("media URL has expired")

	// ErrRateLimited is returned when rate limited by the media host.
	ErrRateLimited = errors.New("rate limited")
)

// RenderError carries the rendering engine's message for a failed page load.
type RenderError struct {
	Message string
}

func (e *RenderError) Error() string {
	return e.Message
}

// Unwrap lets errors.Is match ErrRenderFailed.
func (e *RenderError) Unwrap() error {
	return ErrRenderFailed
}

// StreamUnsupportedError reports the manifest URL a caller can hand to an
// external tool.
type StreamUnsupportedError struct {
	URL string
}

func (e *StreamUnsupportedError) Error() string {
	return ErrStreamUnsupported.Error()
}

func (e *StreamUnsupportedError) Unwrap() error {
	return ErrStreamUnsupported
}
