package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/iconidentify/mediagrab/internal/config"
	"github.com/iconidentify/mediagrab/internal/domain"
)

func testConfig() config.DownloadConfig {
	return config.DownloadConfig{
		Timeout:       5 * time.Second,
		RetryDelay:    10 * time.Millisecond,
		MaxRetryDelay: 100 * time.Millisecond,
		UserAgent:     "test-agent",
	}
}

func testProbeConfig() config.ProbeConfig {
	return config.ProbeConfig{
		Timeout: 2 * time.Second,
		MinSize: 1 << 20,
	}
}

func newTestDownloader() *HTTPDownloader {
	dl := NewHTTPDownloader(testConfig(), testProbeConfig())
	dl.SetLogger(testLogger())
	return dl
}

func TestNewHTTPDownloader(t *testing.T) {
	dl := newTestDownloader()

	if dl.userAgent != "test-agent" {
		t.Errorf("userAgent = %q, want %q", dl.userAgent, "test-agent")
	}
	// Probe agent falls back to the download agent.
	if dl.probeAgent != "test-agent" {
		t.Errorf("probeAgent = %q, want %q", dl.probeAgent, "test-agent")
	}
	if dl.client.Timeout != 2*time.Second {
		t.Errorf("client.Timeout = %v, want 2s", dl.client.Timeout)
	}
}

func TestHTTPDownloader_Download_Success(t *testing.T) {
	content := []byte("video content data here")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s, want GET", r.Method)
		}
		if ua := r.Header.Get("User-Agent"); ua != "test-agent" {
			t.Errorf("User-Agent = %q, want %q", ua, "test-agent")
		}
		if ref := r.Header.Get("Referer"); ref != "https://site.example/" {
			t.Errorf("Referer = %q", ref)
		}
		w.Header().Set("Content-Type", "video/mp4")
		w.Header().Set("Content-Length", "23")
		w.Write(content)
	}))
	defer server.Close()

	reader, info, err := newTestDownloader().Download(context.Background(), server.URL, "https://site.example/")
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	defer reader.Close()

	if info.TotalSize != 23 {
		t.Errorf("TotalSize = %d, want 23", info.TotalSize)
	}
	if info.ContentType != "video/mp4" {
		t.Errorf("ContentType = %q, want video/mp4", info.ContentType)
	}

	data, _ := io.ReadAll(reader)
	if string(data) != string(content) {
		t.Errorf("content = %q, want %q", string(data), string(content))
	}
}

func TestHTTPDownloader_Download_PartialContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPartialContent)
		w.Write([]byte("partial"))
	}))
	defer server.Close()

	reader, info, err := newTestDownloader().Download(context.Background(), server.URL, "")
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	reader.Close()

	if info.StatusCode != http.StatusPartialContent {
		t.Errorf("StatusCode = %d, want 206", info.StatusCode)
	}
}

func TestHTTPDownloader_Download_Expired(t *testing.T) {
	for _, code := range []int{http.StatusForbidden, http.StatusUnauthorized} {
		t.Run(http.StatusText(code), func(t *testing.T) {
			var attempts atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				attempts.Add(1)
				w.WriteHeader(code)
			}))
			defer server.Close()

			_, _, err := newTestDownloader().Download(context.Background(), server.URL, "")
			if !errors.Is(err, domain.ErrURLExpired) {
				t.Fatalf("error = %v, want ErrURLExpired", err)
			}
			if got := attempts.Load(); got != 1 {
				t.Errorf("attempts = %d, want 1", got)
			}
		})
	}
}

func TestHTTPDownloader_Download_RateLimited(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte("success"))
	}))
	defer server.Close()

	reader, _, err := newTestDownloader().Download(context.Background(), server.URL, "")
	if err != nil {
		t.Fatalf("Download should succeed after retries: %v", err)
	}
	reader.Close()

	if got := attempts.Load(); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
}

func TestHTTPDownloader_Download_RateLimitedExhausted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, _, err := newTestDownloader().Download(context.Background(), server.URL, "")
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Errorf("error = %v, want ErrRateLimited", err)
	}
}

func TestHTTPDownloader_Download_NotFoundNotRetried(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, _, err := newTestDownloader().Download(context.Background(), server.URL, "")

	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusNotFound {
		t.Fatalf("error = %v, want StatusError 404", err)
	}
	if got := attempts.Load(); got != 1 {
		t.Errorf("attempts = %d, want 1", got)
	}
}

func TestHTTPDownloader_Download_ServerErrorRetried(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	reader, _, err := newTestDownloader().Download(context.Background(), server.URL, "")
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	reader.Close()

	if got := attempts.Load(); got != 2 {
		t.Errorf("attempts = %d, want 2", got)
	}
}

func TestHTTPDownloader_Download_ContextCanceled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.Write([]byte("delayed"))
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, _, err := newTestDownloader().Download(ctx, server.URL, ""); err == nil {
		t.Error("expected error for canceled context")
	}
}

func TestHTTPDownloader_Download_NetworkError(t *testing.T) {
	_, _, err := newTestDownloader().Download(context.Background(), "http://127.0.0.1:1/video.mp4", "")
	if err == nil {
		t.Error("expected error for unreachable host")
	}
}

func TestHTTPDownloader_Probe_ContentRange(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("method = %s, want HEAD", r.Method)
		}
		if rng := r.Header.Get("Range"); rng != "bytes=0-0" {
			t.Errorf("Range = %q, want bytes=0-0", rng)
		}
		if ref := r.Header.Get("Referer"); ref != "https://site.example/" {
			t.Errorf("Referer = %q", ref)
		}
		w.Header().Set("Content-Type", "video/mp4")
		w.Header().Set("Content-Range", "bytes 0-0/5242880")
		w.WriteHeader(http.StatusPartialContent)
	}))
	defer server.Close()

	result, err := newTestDownloader().Probe(context.Background(), server.URL, "https://site.example/")
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	if result.TotalSize != 5242880 {
		t.Errorf("TotalSize = %d, want 5242880", result.TotalSize)
	}
	if result.ContentType != "video/mp4" {
		t.Errorf("ContentType = %q, want video/mp4", result.ContentType)
	}
}

func TestHTTPDownloader_Probe_ContentLengthFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "2097152")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	result, err := newTestDownloader().Probe(context.Background(), server.URL, "")
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	if result.TotalSize != 2097152 {
		t.Errorf("TotalSize = %d, want 2097152", result.TotalSize)
	}
}

func TestHTTPDownloader_Probe_UnknownRangeTotal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Range", "bytes 0-0/*")
		w.Header().Set("Content-Length", "1")
		w.WriteHeader(http.StatusPartialContent)
	}))
	defer server.Close()

	result, err := newTestDownloader().Probe(context.Background(), server.URL, "")
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	if result.TotalSize != 1 {
		t.Errorf("TotalSize = %d, want 1", result.TotalSize)
	}
}

func TestHTTPDownloader_Probe_NonSuccess(t *testing.T) {
	for _, code := range []int{http.StatusNotFound, http.StatusForbidden, http.StatusInternalServerError} {
		t.Run(fmt.Sprint(code), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(code)
			}))
			defer server.Close()

			_, err := newTestDownloader().Probe(context.Background(), server.URL, "")
			var se *StatusError
			if !errors.As(err, &se) || se.Code != code {
				t.Errorf("error = %v, want StatusError %d", err, code)
			}
		})
	}
}

func TestHTTPDownloader_Probe_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	probeCfg := testProbeConfig()
	probeCfg.Timeout = 20 * time.Millisecond
	dl := NewHTTPDownloader(testConfig(), probeCfg)

	if _, err := dl.Probe(context.Background(), server.URL, ""); err == nil {
		t.Error("expected timeout error")
	}
}

func TestHTTPDownloader_Probe_UserAgentOverride(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); ua != "probe-agent" {
			t.Errorf("User-Agent = %q, want probe-agent", ua)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	probeCfg := testProbeConfig()
	probeCfg.UserAgent = "probe-agent"
	dl := NewHTTPDownloader(testConfig(), probeCfg)

	if _, err := dl.Probe(context.Background(), server.URL, ""); err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limited", domain.ErrRateLimited, true},
		{"wrapped rate limited", fmt.Errorf("get: %w", domain.ErrRateLimited), true},
		{"url expired", domain.ErrURLExpired, false},
		{"canceled", context.Canceled, false},
		{"deadline", fmt.Errorf("send request: %w", context.DeadlineExceeded), false},
		{"not found", &StatusError{Code: 404}, false},
		{"bad gateway", &StatusError{Code: 502}, true},
		{"network", errors.New("connection reset by peer"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isRetryableError(tt.err); got != tt.want {
				t.Errorf("isRetryableError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestProgressReader_CloseIdempotent(t *testing.T) {
	var closes atomic.Int32
	rc := &countingCloser{Reader: nil, closes: &closes}
	pr := newProgressReader(rc, 10, time.Second, testLogger(), "https://cdn.example/v.mp4")

	pr.Close()
	pr.Close()

	if got := closes.Load(); got != 1 {
		t.Errorf("underlying Close calls = %d, want 1", got)
	}
}

type countingCloser struct {
	io.Reader
	closes *atomic.Int32
}

func (c *countingCloser) Close() error {
	c.closes.Add(1)
	return nil
}
