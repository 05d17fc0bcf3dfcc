// Package extractor renders a page in a browser and collects the media URLs
// its network traffic and player scripts reveal.
package extractor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/iconidentify/mediagrab/internal/classify"
	"github.com/iconidentify/mediagrab/internal/config"
	"github.com/iconidentify/mediagrab/internal/domain"
	"github.com/iconidentify/mediagrab/internal/downloader"
	"github.com/iconidentify/mediagrab/internal/render"
)

// Resolver follows a page URL's redirects ahead of rendering.
type Resolver interface {
	Resolve(ctx context.Context, pageURL string) (*downloader.Resolution, error)
}

// Capture is everything one page visit produced. Candidates may contain
// duplicates and are in observation order.
type Capture struct {
	PageURL    string
	FinalURL   string
	Candidates []string
	Title      string
	Thumbnail  string
}

// Extractor drives a render.Browser through one page visit per call.
type Extractor struct {
	browser    render.Browser
	resolver   Resolver
	classifier *classify.Classifier
	cfg        config.BrowserConfig
	logger     *slog.Logger
}

// New creates an Extractor.
func New(browser render.Browser, resolver Resolver, classifier *classify.Classifier, cfg config.BrowserConfig, logger *slog.Logger) *Extractor {
	return &Extractor{
		browser:    browser,
		resolver:   resolver,
		classifier: classifier,
		cfg:        cfg,
		logger:     logger,
	}
}

// Extract visits pageURL and returns the observed candidates with page
// metadata. It fails only when the browser cannot start, or navigation fails
// before any candidate was seen; every later problem degrades the result.
func (e *Extractor) Extract(ctx context.Context, pageURL string) (*Capture, error) {
	logger := e.logger.With("page_url", pageURL)

	finalURL := pageURL
	var fallback downloader.Resolution
	if res, err := e.resolve(ctx, pageURL); err != nil {
		logger.Debug("redirect resolution failed, using original url", "error", err)
	} else if res != nil {
		fallback = *res
		if res.FinalURL != "" {
			finalURL = res.FinalURL
		}
		logger.Debug("resolved final url", "final_url", finalURL)
	}

	page, err := e.browser.NewPage(ctx)
	if err != nil {
		return nil, &domain.RenderError{Message: err.Error()}
	}
	defer func() {
		if err := page.Close(); err != nil {
			logger.Warn("failed to close page", "error", err)
		}
	}()

	found := &candidateSet{}
	page.OnResponse(e.observe(ctx, logger, found))

	capture := &Capture{
		PageURL:  pageURL,
		FinalURL: finalURL,
	}

	navCtx, cancel := withTimeout(ctx, e.cfg.NavigationTimeout)
	err = page.Navigate(navCtx, finalURL)
	cancel()
	if err != nil {
		if found.len() == 0 {
			return nil, &domain.RenderError{Message: err.Error()}
		}
		logger.Warn("navigation failed after candidates were seen", "error", err, "candidates", found.len())
		capture.Candidates = found.list()
		e.applyMetadata(capture, metadata{}, fallback)
		return capture, nil
	}

	e.interact(ctx, page, logger)

	if err := e.settle(ctx); err != nil {
		return nil, err
	}

	e.harvest(ctx, page, logger, found)

	var meta metadata
	evalCtx, cancel := withTimeout(ctx, e.cfg.EvaluateTimeout)
	if err := page.Evaluate(evalCtx, MetadataScript, &meta); err != nil {
		logger.Warn("metadata extraction failed", "error", err)
		meta = metadata{}
	}
	cancel()

	capture.Candidates = found.list()
	e.applyMetadata(capture, meta, fallback)

	logger.Info("page visit complete", "candidates", len(capture.Candidates), "title", capture.Title)
	return capture, nil
}

func (e *Extractor) resolve(ctx context.Context, pageURL string) (*downloader.Resolution, error) {
	if e.resolver == nil {
		return nil, fmt.Errorf("no resolver configured")
	}
	rctx, cancel := withTimeout(ctx, e.cfg.ResolveTimeout)
	defer cancel()
	return e.resolver.Resolve(rctx, pageURL)
}

// observe returns the response handler. It records media response URLs and
// scans API bodies for embedded media URLs. Panics are contained so one bad
// response cannot abort the visit.
func (e *Extractor) observe(ctx context.Context, logger *slog.Logger, found *candidateSet) func(render.Response) {
	return func(resp render.Response) {
		defer func() {
			if r := recover(); r != nil {
				logger.Warn("response handler panic", "url", resp.URL, "panic", r)
			}
		}()

		v := e.classifier.Classify(resp.URL)
		if v.Noise {
			return
		}

		if v.Accepted() {
			if v.UnknownCDN() {
				logger.Debug("media url on unknown cdn", "url", resp.URL)
			} else {
				logger.Debug("media url", "url", resp.URL)
			}
			found.add(resp.URL)
			return
		}

		if !resp.IsAPI() {
			return
		}

		bodyCtx, cancel := withTimeout(ctx, e.cfg.EvaluateTimeout)
		defer cancel()
		body, err := resp.Body(bodyCtx)
		if err != nil {
			logger.Debug("api body unavailable", "url", resp.URL, "error", err)
			return
		}
		if urls := e.classifier.ScanBody(body); len(urls) > 0 {
			logger.Debug("media urls in api body", "url", resp.URL, "count", len(urls))
			found.add(urls...)
		}
	}
}

// interact clicks the first play control it finds. Nothing here is fatal.
func (e *Extractor) interact(ctx context.Context, page render.Page, logger *slog.Logger) {
	ictx, cancel := withTimeout(ctx, e.cfg.PlayerWait+e.cfg.ClickTimeout)
	defer cancel()

	clicked, err := page.Interact(ictx, PlayerContainerSelector, PlayerSelectors)
	switch {
	case err != nil:
		logger.Debug("could not interact with player", "error", err)
	case clicked == "":
		logger.Debug("no play control found")
	default:
		logger.Debug("clicked play control", "selector", clicked)
	}
}

// settle waits the configured dwell so lazily loaded traffic can arrive.
func (e *Extractor) settle(ctx context.Context) error {
	if e.cfg.SettleDuration <= 0 {
		return nil
	}
	t := time.NewTimer(e.cfg.SettleDuration)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("settle: %w", ctx.Err())
	case <-t.C:
		return nil
	}
}

// harvest evaluates HarvestScript and keeps the URLs the classifier accepts.
func (e *Extractor) harvest(ctx context.Context, page render.Page, logger *slog.Logger, found *candidateSet) {
	evalCtx, cancel := withTimeout(ctx, e.cfg.EvaluateTimeout)
	defer cancel()

	var raw []string
	if err := page.Evaluate(evalCtx, HarvestScript, &raw); err != nil {
		logger.Warn("script extraction failed", "error", err)
		return
	}

	kept := 0
	for _, u := range raw {
		u = classify.Unescape(u)
		if !e.classifier.AcceptHarvested(u) {
			continue
		}
		found.add(u)
		kept++
	}
	logger.Debug("harvested script urls", "found", len(raw), "kept", kept)
}

// applyMetadata fills title and thumbnail from the page, then the resolution
// fetch, then defaults.
func (e *Extractor) applyMetadata(c *Capture, meta metadata, fallback downloader.Resolution) {
	c.Title = meta.Title
	if c.Title == "" {
		c.Title = fallback.Title
	}
	if c.Title == "" {
		c.Title = domain.DefaultTitle
	}

	c.Thumbnail = meta.Thumbnail
	if c.Thumbnail == "" {
		c.Thumbnail = fallback.Thumbnail
	}
}

// withTimeout bounds ctx by d; a non-positive d leaves it unbounded.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// candidateSet collects URLs from concurrent response handlers.
type candidateSet struct {
	mu   sync.Mutex
	urls []string
}

func (s *candidateSet) add(urls ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.urls = append(s.urls, urls...)
}

func (s *candidateSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.urls)
}

func (s *candidateSet) list() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.urls))
	copy(out, s.urls)
	return out
}
