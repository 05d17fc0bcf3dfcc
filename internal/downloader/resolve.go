package downloader

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/brotli"
	"golang.org/x/net/publicsuffix"
)

// maxResolveBody caps how much of the landing page is parsed for metadata.
const maxResolveBody = 2 << 20

// Resolution is the outcome of following a page URL's redirects.
type Resolution struct {
	FinalURL string
	// Title and Thumbnail come from the landing page's meta tags, when present.
	Title     string
	Thumbnail string
}

// Resolver follows redirects with a plain GET before the page is rendered.
type Resolver struct {
	client    *http.Client
	userAgent string
	locale    string
}

// NewResolver creates a Resolver whose requests are bounded by timeout.
func NewResolver(timeout time.Duration, userAgent, locale string) (*Resolver, error) {
	jar, err := cookiejar.New(&cookiejar.Options{
		PublicSuffixList: publicsuffix.List,
	})
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	return &Resolver{
		client: &http.Client{
			Timeout: timeout,
			Jar:     jar,
		},
		userAgent: userAgent,
		locale:    locale,
	}, nil
}

// Resolve returns the URL pageURL ends up at after redirects, plus any
// og:title / og:image metadata on the landing page. A non-2xx landing page
// still yields its final URL.
func (r *Resolver) Resolve(ctx context.Context, pageURL string) (*Resolution, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", r.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Encoding", "gzip, br")
	if r.locale != "" {
		req.Header.Set("Accept-Language", r.locale+",en;q=0.5")
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	res := &Resolution{FinalURL: resp.Request.URL.String()}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return res, nil
	}

	body, err := decodeBody(resp)
	if err != nil {
		return res, nil
	}
	defer body.Close()

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(body, maxResolveBody))
	if err != nil {
		return res, nil
	}

	res.Title = metaContent(doc, "og:title")
	if res.Title == "" {
		res.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	res.Thumbnail = metaContent(doc, "og:image")

	return res, nil
}

func metaContent(doc *goquery.Document, property string) string {
	content, _ := doc.Find(fmt.Sprintf(`meta[property=%q]`, property)).First().Attr("content")
	return strings.TrimSpace(content)
}

// decodeBody undoes the Content-Encoding requested in Resolve.
func decodeBody(resp *http.Response) (io.ReadCloser, error) {
	switch strings.ToLower(resp.Header.Get("Content-Encoding")) {
	case "gzip":
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip reader: %w", err)
		}
		return zr, nil
	case "br":
		return io.NopCloser(brotli.NewReader(resp.Body)), nil
	default:
		return io.NopCloser(resp.Body), nil
	}
}
