package extractor

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"slices"
	"testing"
	"time"

	"github.com/iconidentify/mediagrab/internal/classify"
	"github.com/iconidentify/mediagrab/internal/config"
	"github.com/iconidentify/mediagrab/internal/domain"
	"github.com/iconidentify/mediagrab/internal/downloader"
	"github.com/iconidentify/mediagrab/internal/render"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testBrowserConfig() config.BrowserConfig {
	return config.BrowserConfig{
		ResolveTimeout:    time.Second,
		NavigationTimeout: time.Second,
		PlayerWait:        100 * time.Millisecond,
		ClickTimeout:      100 * time.Millisecond,
		SettleDuration:    time.Millisecond,
		EvaluateTimeout:   time.Second,
	}
}

// fakePage replays a fixed response stream during Navigate.
type fakePage struct {
	responses   []render.Response
	navigateErr error
	clicked     string
	interactErr error
	harvest     []string
	harvestErr  error
	meta        map[string]string
	metaErr     error

	handler      func(render.Response)
	navigatedURL string
	closed       int
}

func (p *fakePage) OnResponse(handler func(render.Response)) { p.handler = handler }

func (p *fakePage) Navigate(ctx context.Context, url string) error {
	p.navigatedURL = url
	for _, r := range p.responses {
		p.handler(r)
	}
	return p.navigateErr
}

func (p *fakePage) Interact(ctx context.Context, waitFor string, selectors []string) (string, error) {
	return p.clicked, p.interactErr
}

func (p *fakePage) Evaluate(ctx context.Context, script string, out any) error {
	var v any
	switch script {
	case HarvestScript:
		if p.harvestErr != nil {
			return p.harvestErr
		}
		v = p.harvest
	case MetadataScript:
		if p.metaErr != nil {
			return p.metaErr
		}
		v = p.meta
	default:
		return errors.New("unexpected script")
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

func (p *fakePage) Close() error {
	p.closed++
	return nil
}

type fakeBrowser struct {
	page *fakePage
	err  error
}

func (b *fakeBrowser) NewPage(ctx context.Context) (render.Page, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.page, nil
}

type fakeResolver struct {
	res *downloader.Resolution
	err error
}

func (r *fakeResolver) Resolve(ctx context.Context, pageURL string) (*downloader.Resolution, error) {
	return r.res, r.err
}

func newTestExtractor(page *fakePage, resolver Resolver) *Extractor {
	return New(&fakeBrowser{page: page}, resolver, classify.Default(), testBrowserConfig(), testLogger())
}

func bodyOf(s string) func(ctx context.Context) ([]byte, error) {
	return func(ctx context.Context) ([]byte, error) { return []byte(s), nil }
}

func TestExtractor_Extract_CollectsCandidates(t *testing.T) {
	page := &fakePage{
		responses: []render.Response{
			render.NewResponse("https://ads.trafficjunky.net/preroll.mp4", "Media", "video/mp4", nil),
			render.NewResponse("https://cv.phncdn.com/videos/720P_4000K.mp4?t=1", "Media", "video/mp4", nil),
			render.NewResponse("https://cdn.other.example/480p.m3u8", "XHR", "application/vnd.apple.mpegurl", nil),
			render.NewResponse("https://cv.phncdn.com/thumb.jpg", "Image", "image/jpeg", nil),
			render.NewResponse("https://site.example/api/video", render.ResourceXHR, "application/json",
				bodyOf(`{"src":"https:\/\/ev.phncdn.com\/videos\/1080P_8000K.mp4?v=2"}`)),
			render.NewResponse("https://doubleclick.net/api", render.ResourceFetch, "application/json",
				bodyOf(`{"src":"https://ev.phncdn.com/videos/240P.mp4"}`)),
		},
		clicked: ".mgp_playButton",
		harvest: []string{
			`https:\/\/di.phncdn.com\/videos\/480P_2000K.mp4`,
			"https://ads.exoclick.com/banner.mp4",
			"https://site.example/about",
		},
		meta: map[string]string{"title": "Sunset", "thumbnail": "https://img.example/t.jpg"},
	}

	capture, err := newTestExtractor(page, nil).Extract(context.Background(), "https://site.example/view?v=1")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	want := []string{
		"https://cv.phncdn.com/videos/720P_4000K.mp4?t=1",
		"https://cdn.other.example/480p.m3u8",
		"https://ev.phncdn.com/videos/1080P_8000K.mp4?v=2",
		"https://di.phncdn.com/videos/480P_2000K.mp4",
	}
	if !slices.Equal(capture.Candidates, want) {
		t.Errorf("Candidates = %v, want %v", capture.Candidates, want)
	}
	if capture.Title != "Sunset" {
		t.Errorf("Title = %q, want Sunset", capture.Title)
	}
	if capture.Thumbnail != "https://img.example/t.jpg" {
		t.Errorf("Thumbnail = %q", capture.Thumbnail)
	}
	if page.closed != 1 {
		t.Errorf("page closed %d times, want 1", page.closed)
	}
}

func TestExtractor_Extract_UsesResolvedURL(t *testing.T) {
	page := &fakePage{
		responses: []render.Response{
			render.NewResponse("https://cv.phncdn.com/v/720p.mp4", "Media", "", nil),
		},
	}
	resolver := &fakeResolver{res: &downloader.Resolution{FinalURL: "https://www.site.example/view?v=1"}}

	capture, err := newTestExtractor(page, resolver).Extract(context.Background(), "https://site.example/s/abc")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if page.navigatedURL != "https://www.site.example/view?v=1" {
		t.Errorf("navigated to %q", page.navigatedURL)
	}
	if capture.PageURL != "https://site.example/s/abc" {
		t.Errorf("PageURL = %q", capture.PageURL)
	}
	if capture.FinalURL != "https://www.site.example/view?v=1" {
		t.Errorf("FinalURL = %q", capture.FinalURL)
	}
}

func TestExtractor_Extract_ResolverFailureFallsBack(t *testing.T) {
	page := &fakePage{}
	resolver := &fakeResolver{err: errors.New("dial tcp: timeout")}

	capture, err := newTestExtractor(page, resolver).Extract(context.Background(), "https://site.example/view")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if page.navigatedURL != "https://site.example/view" {
		t.Errorf("navigated to %q, want original url", page.navigatedURL)
	}
	if len(capture.Candidates) != 0 {
		t.Errorf("Candidates = %v, want none", capture.Candidates)
	}
}

func TestExtractor_Extract_BrowserStartFailure(t *testing.T) {
	ex := New(&fakeBrowser{err: errors.New("chrome not found")}, nil, classify.Default(), testBrowserConfig(), testLogger())

	_, err := ex.Extract(context.Background(), "https://site.example/view")
	if !errors.Is(err, domain.ErrRenderFailed) {
		t.Fatalf("error = %v, want ErrRenderFailed", err)
	}
	var re *domain.RenderError
	if !errors.As(err, &re) || re.Message != "chrome not found" {
		t.Errorf("RenderError = %+v", re)
	}
}

func TestExtractor_Extract_NavigationFailureWithoutCandidates(t *testing.T) {
	page := &fakePage{navigateErr: errors.New("net::ERR_NAME_NOT_RESOLVED")}

	_, err := newTestExtractor(page, nil).Extract(context.Background(), "https://nowhere.example/")
	var re *domain.RenderError
	if !errors.As(err, &re) {
		t.Fatalf("error = %v, want RenderError", err)
	}
	if re.Message != "net::ERR_NAME_NOT_RESOLVED" {
		t.Errorf("Message = %q", re.Message)
	}
	if page.closed != 1 {
		t.Errorf("page closed %d times, want 1", page.closed)
	}
}

func TestExtractor_Extract_NavigationFailureKeepsCandidates(t *testing.T) {
	page := &fakePage{
		responses: []render.Response{
			render.NewResponse("https://cv.phncdn.com/v/1080p.mp4", "Media", "", nil),
		},
		navigateErr: context.DeadlineExceeded,
	}
	resolver := &fakeResolver{res: &downloader.Resolution{FinalURL: "https://site.example/v", Title: "From Resolve"}}

	capture, err := newTestExtractor(page, resolver).Extract(context.Background(), "https://site.example/v")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(capture.Candidates) != 1 {
		t.Errorf("Candidates = %v, want 1", capture.Candidates)
	}
	if capture.Title != "From Resolve" {
		t.Errorf("Title = %q, want From Resolve", capture.Title)
	}
	if page.closed != 1 {
		t.Errorf("page closed %d times, want 1", page.closed)
	}
}

func TestExtractor_Extract_MetadataFallbacks(t *testing.T) {
	tests := []struct {
		name          string
		meta          map[string]string
		metaErr       error
		resolution    *downloader.Resolution
		wantTitle     string
		wantThumbnail string
	}{
		{
			name:          "evaluate error uses resolution metadata",
			metaErr:       errors.New("execution context destroyed"),
			resolution:    &downloader.Resolution{Title: "OG Title", Thumbnail: "https://img.example/og.jpg"},
			wantTitle:     "OG Title",
			wantThumbnail: "https://img.example/og.jpg",
		},
		{
			name:      "nothing anywhere uses default title",
			metaErr:   errors.New("execution context destroyed"),
			wantTitle: domain.DefaultTitle,
		},
		{
			name:          "empty page title falls through",
			meta:          map[string]string{"title": "", "thumbnail": "https://img.example/poster.jpg"},
			resolution:    &downloader.Resolution{Title: "OG Title"},
			wantTitle:     "OG Title",
			wantThumbnail: "https://img.example/poster.jpg",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := &fakePage{meta: tt.meta, metaErr: tt.metaErr}
			var resolver Resolver
			if tt.resolution != nil {
				resolver = &fakeResolver{res: tt.resolution}
			}

			capture, err := newTestExtractor(page, resolver).Extract(context.Background(), "https://site.example/v")
			if err != nil {
				t.Fatalf("Extract failed: %v", err)
			}
			if capture.Title != tt.wantTitle {
				t.Errorf("Title = %q, want %q", capture.Title, tt.wantTitle)
			}
			if capture.Thumbnail != tt.wantThumbnail {
				t.Errorf("Thumbnail = %q, want %q", capture.Thumbnail, tt.wantThumbnail)
			}
		})
	}
}

func TestExtractor_Extract_InteractionAndHarvestErrorsDegrade(t *testing.T) {
	page := &fakePage{
		responses: []render.Response{
			render.NewResponse("https://cv.phncdn.com/v/720p.mp4", "Media", "", nil),
		},
		interactErr: errors.New("waiting for selector: context deadline exceeded"),
		harvestErr:  errors.New("flashvars is not defined"),
	}

	capture, err := newTestExtractor(page, nil).Extract(context.Background(), "https://site.example/v")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(capture.Candidates) != 1 {
		t.Errorf("Candidates = %v, want 1", capture.Candidates)
	}
}

func TestExtractor_Extract_HandlerPanicContained(t *testing.T) {
	page := &fakePage{
		responses: []render.Response{
			render.NewResponse("https://site.example/api/bad", render.ResourceXHR, "", func(ctx context.Context) ([]byte, error) {
				panic("malformed response")
			}),
			render.NewResponse("https://cv.phncdn.com/v/720p.mp4", "Media", "", nil),
		},
	}

	capture, err := newTestExtractor(page, nil).Extract(context.Background(), "https://site.example/v")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if !slices.Equal(capture.Candidates, []string{"https://cv.phncdn.com/v/720p.mp4"}) {
		t.Errorf("Candidates = %v", capture.Candidates)
	}
}

func TestExtractor_Extract_CanceledDuringSettle(t *testing.T) {
	cfg := testBrowserConfig()
	cfg.SettleDuration = time.Minute
	page := &fakePage{}
	ex := New(&fakeBrowser{page: page}, nil, classify.Default(), cfg, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := ex.Extract(ctx, "https://site.example/v")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v, want DeadlineExceeded", err)
	}
	if page.closed != 1 {
		t.Errorf("page closed %d times, want 1", page.closed)
	}
}
