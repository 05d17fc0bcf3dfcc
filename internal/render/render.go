// Package render is the narrow browser capability the extractor drives:
// open a page, observe its network responses, click, evaluate script, close.
package render

import (
	"context"
	"errors"
	"strings"
)

// ErrNoBody is returned when a response body is unavailable.
var ErrNoBody = errors.New("response body unavailable")

// Resource types reported for API-style exchanges.
const (
	ResourceXHR   = "XHR"
	ResourceFetch = "Fetch"
)

// Response is one network response observed during a page visit.
type Response struct {
	URL          string
	ResourceType string
	MimeType     string

	body func(ctx context.Context) ([]byte, error)
}

// NewResponse builds a Response whose body is produced lazily by body.
// A nil body makes Body return ErrNoBody.
func NewResponse(url, resourceType, mimeType string, body func(ctx context.Context) ([]byte, error)) Response {
	return Response{
		URL:          url,
		ResourceType: resourceType,
		MimeType:     mimeType,
		body:         body,
	}
}

// IsAPI reports whether the response came from an XHR or fetch call.
func (r Response) IsAPI() bool {
	return strings.EqualFold(r.ResourceType, ResourceXHR) || strings.EqualFold(r.ResourceType, ResourceFetch)
}

// Body fetches the response text.
func (r Response) Body(ctx context.Context) (string, error) {
	if r.body == nil {
		return "", ErrNoBody
	}
	b, err := r.body(ctx)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Browser opens isolated pages.
type Browser interface {
	NewPage(ctx context.Context) (Page, error)
}

// Page is one isolated browsing context.
type Page interface {
	// OnResponse registers the observer for every network response. It must be
	// called before Navigate. The handler may run on multiple goroutines.
	OnResponse(handler func(Response))

	// Navigate loads url and returns once the initial document is ready.
	Navigate(ctx context.Context, url string) error

	// Interact waits for waitFor (when set) and clicks the first selector that
	// matches. It returns the clicked selector, or "" when nothing matched.
	Interact(ctx context.Context, waitFor string, selectors []string) (string, error)

	// Evaluate runs script in the page and decodes its result into out.
	Evaluate(ctx context.Context, script string, out any) error

	// Close tears the browsing context down. It is safe to call more than once.
	Close() error
}
