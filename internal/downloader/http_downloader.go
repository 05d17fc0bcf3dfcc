package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/iconidentify/mediagrab/internal/config"
	"github.com/iconidentify/mediagrab/internal/domain"
)

// contentRangeTotal captures the complete length in "bytes 0-0/12345".
var contentRangeTotal = regexp.MustCompile(`/(\d+)`)

// StatusError reports an unexpected upstream status code.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d", e.Code)
}

// HTTPDownloader implements Downloader using HTTP requests.
type HTTPDownloader struct {
	// client is used for probes with an overall timeout
	client *http.Client
	// streamClient is used for streaming downloads without overall timeout
	streamClient *http.Client
	userAgent    string
	probeAgent   string
	cfg          config.DownloadConfig
	logger       *slog.Logger
}

// NewHTTPDownloader creates a new HTTP-based media downloader.
func NewHTTPDownloader(cfg config.DownloadConfig, probeCfg config.ProbeConfig) *HTTPDownloader {
	// Transport for streaming downloads - no overall timeout, but header timeout
	streamTransport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		ResponseHeaderTimeout: cfg.Timeout,
	}

	probeAgent := probeCfg.UserAgent
	if probeAgent == "" {
		probeAgent = cfg.UserAgent
	}

	return &HTTPDownloader{
		client: &http.Client{
			Timeout: probeCfg.Timeout,
		},
		streamClient: &http.Client{
			Transport: streamTransport,
		},
		userAgent:  cfg.UserAgent,
		probeAgent: probeAgent,
		cfg:        cfg,
		logger:     slog.Default(),
	}
}

// SetLogger sets the logger for download progress reporting.
func (d *HTTPDownloader) SetLogger(logger *slog.Logger) {
	d.logger = logger
}

// Download fetches media from url, retrying rate-limited and transient failures.
// Returns a progress-tracking reader for large file streaming.
func (d *HTTPDownloader) Download(ctx context.Context, url, referer string) (io.ReadCloser, *ProbeResult, error) {
	type result struct {
		body io.ReadCloser
		info *ProbeResult
	}

	retryCfg := downloadRetryConfig(d.cfg)
	retryCfg.OnRetry = func(attempt int, delay time.Duration, err error) {
		d.logger.Warn("download attempt failed, retrying",
			"url", url,
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)
	}

	res, err := RetryWithCheck(ctx, retryCfg, func() (result, error) {
		body, info, err := d.downloadOnce(ctx, url, referer)
		return result{body: body, info: info}, err
	}, isRetryableError)
	if err != nil {
		return nil, nil, fmt.Errorf("download failed after retries: %w", err)
	}

	return res.body, res.info, nil
}

func (d *HTTPDownloader) downloadOnce(ctx context.Context, url, referer string) (io.ReadCloser, *ProbeResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("create request: %w", err)
	}

	// Set headers to mimic browser request
	req.Header.Set("User-Agent", d.userAgent)
	req.Header.Set("Accept", "video/mp4,video/*;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	if referer != "" {
		req.Header.Set("Referer", referer)
	}

	// Use streamClient for downloads (no overall timeout)
	resp, err := d.streamClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("send request: %w", err)
	}

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		return nil, nil, domain.ErrURLExpired
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		resp.Body.Close()
		return nil, nil, domain.ErrRateLimited
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		resp.Body.Close()
		return nil, nil, &StatusError{Code: resp.StatusCode}
	}

	size := resp.ContentLength
	if size < 0 {
		// Try to parse from header
		if cl := resp.Header.Get("Content-Length"); cl != "" {
			if n, err := strconv.ParseInt(cl, 10, 64); err == nil {
				size = n
			}
		}
	}

	info := &ProbeResult{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		TotalSize:   size,
	}

	// Wrap with progress reader for large downloads
	return newProgressReader(resp.Body, size, d.cfg.ReadTimeout, d.logger, url), info, nil
}

// Probe issues a HEAD request for the first byte and reports the total size
// from Content-Range, falling back to Content-Length. Any transport failure
// or non-2xx status is returned as an error.
func (d *HTTPDownloader) Probe(ctx context.Context, url, referer string) (*ProbeResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", d.probeAgent)
	req.Header.Set("Range", "bytes=0-0")
	if referer != "" {
		req.Header.Set("Referer", referer)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode}
	}

	return &ProbeResult{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		TotalSize:   totalSize(resp),
	}, nil
}

// totalSize reads the complete resource length from a range response.
func totalSize(resp *http.Response) int64 {
	if cr := resp.Header.Get("Content-Range"); cr != "" {
		if m := contentRangeTotal.FindStringSubmatch(cr); m != nil {
			if n, err := strconv.ParseInt(m[1], 10, 64); err == nil {
				return n
			}
		}
	}
	if resp.ContentLength >= 0 {
		return resp.ContentLength
	}
	if cl := resp.Header.Get("Content-Length"); cl != "" {
		if n, err := strconv.ParseInt(cl, 10, 64); err == nil {
			return n
		}
	}
	return -1
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, domain.ErrRateLimited) {
		return true
	}
	// URL expired is not retryable
	if errors.Is(err, domain.ErrURLExpired) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 500
	}
	// Network errors are retryable
	return true
}

// progressReader wraps an io.ReadCloser to track download progress
// and detect stalls (no data for readTimeout).
type progressReader struct {
	reader      io.ReadCloser
	total       int64
	downloaded  int64
	readTimeout time.Duration
	lastRead    time.Time
	lastLog     time.Time
	logger      *slog.Logger
	url         string
	mu          sync.Mutex
	closed      bool
}

func newProgressReader(r io.ReadCloser, total int64, readTimeout time.Duration, logger *slog.Logger, url string) *progressReader {
	now := time.Now()
	return &progressReader{
		reader:      r,
		total:       total,
		readTimeout: readTimeout,
		lastRead:    now,
		lastLog:     now,
		logger:      logger,
		url:         url,
	}
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.reader.Read(buf)

	p.mu.Lock()
	defer p.mu.Unlock()

	if n > 0 {
		p.downloaded += int64(n)
		p.lastRead = time.Now()

		// Log progress every 30 seconds
		if time.Since(p.lastLog) > 30*time.Second {
			p.logProgress()
			p.lastLog = time.Now()
		}
	}

	// Check for stall on any read (including zero-byte reads)
	if err == nil && n == 0 && p.readTimeout > 0 && time.Since(p.lastRead) > p.readTimeout {
		return n, fmt.Errorf("download stalled: no data received for %v", p.readTimeout)
	}

	return n, err
}

func (p *progressReader) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true

	// Log final progress
	if p.downloaded > 0 {
		p.logProgress()
	}
	p.mu.Unlock()

	return p.reader.Close()
}

func (p *progressReader) logProgress() {
	if p.total > 0 {
		pct := float64(p.downloaded) / float64(p.total) * 100
		p.logger.Info("download progress",
			"downloaded", humanize.IBytes(uint64(p.downloaded)),
			"total", humanize.IBytes(uint64(p.total)),
			"percent", fmt.Sprintf("%.1f%%", pct),
		)
	} else {
		p.logger.Info("download progress",
			"downloaded", humanize.IBytes(uint64(p.downloaded)),
		)
	}
}
