package render

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/iconidentify/mediagrab/internal/config"
)

// readyCheckTimeout bounds the document readiness probe after a slow load.
const readyCheckTimeout = 3 * time.Second

// ChromeBrowser launches a fresh headless Chrome per page.
type ChromeBrowser struct {
	cfg    config.BrowserConfig
	logger *slog.Logger
}

// NewChromeBrowser creates a chromedp-backed Browser.
func NewChromeBrowser(cfg config.BrowserConfig, logger *slog.Logger) *ChromeBrowser {
	return &ChromeBrowser{cfg: cfg, logger: logger}
}

// allocatorOptions builds the exec allocator flags for one browser process.
func (b *ChromeBrowser) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", b.cfg.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("mute-audio", true),
	)
	if b.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(b.cfg.UserAgent))
	}
	if b.cfg.ViewportWidth > 0 && b.cfg.ViewportHeight > 0 {
		opts = append(opts, chromedp.WindowSize(b.cfg.ViewportWidth, b.cfg.ViewportHeight))
	}
	if b.cfg.Locale != "" {
		opts = append(opts, chromedp.Flag("lang", b.cfg.Locale))
	}
	if b.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(b.cfg.ExecPath))
	}
	return opts
}

// NewPage starts a browser process and opens an isolated tab with network
// events enabled.
func (b *ChromeBrowser) NewPage(ctx context.Context) (Page, error) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, b.allocatorOptions()...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)

	p := &chromePage{
		ctx:      browserCtx,
		cancel:   func() { cancelBrowser(); cancelAlloc() },
		pending:  make(map[network.RequestID]Response),
		logger:   b.logger,
		domReady: newReadySignal(),
	}

	chromedp.ListenTarget(browserCtx, p.handleEvent)

	actions := []chromedp.Action{network.Enable(), page.Enable()}
	if b.cfg.ViewportWidth > 0 && b.cfg.ViewportHeight > 0 {
		actions = append(actions, chromedp.EmulateViewport(int64(b.cfg.ViewportWidth), int64(b.cfg.ViewportHeight)))
	}
	if err := chromedp.Run(browserCtx, actions...); err != nil {
		p.Close()
		return nil, fmt.Errorf("start browser: %w", err)
	}

	return p, nil
}

// chromePage implements Page on a chromedp tab.
type chromePage struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger

	mu      sync.Mutex
	handler func(Response)
	// API responses are held until loading finishes so their body can be read.
	pending map[network.RequestID]Response
	closed  bool

	// domReady fires on DOMContentLoaded for the current navigation.
	domReady *readySignal

	handlers sync.WaitGroup
}

func (p *chromePage) OnResponse(handler func(Response)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handler = handler
}

// handleEvent runs on the chromedp event loop and must not block.
func (p *chromePage) handleEvent(ev any) {
	switch e := ev.(type) {
	case *network.EventResponseReceived:
		if e.Response == nil {
			return
		}
		resp := Response{
			URL:          e.Response.URL,
			ResourceType: string(e.Type),
			MimeType:     e.Response.MimeType,
		}
		if e.Type == network.ResourceTypeXHR || e.Type == network.ResourceTypeFetch {
			p.mu.Lock()
			p.pending[e.RequestID] = resp
			p.mu.Unlock()
			return
		}
		p.emit(resp)

	case *network.EventLoadingFinished:
		if resp, ok := p.takePending(e.RequestID); ok {
			resp.body = p.bodyFetcher(e.RequestID)
			p.emit(resp)
		}

	case *page.EventDomContentEventFired:
		p.domReady.fire()

	case *network.EventLoadingFailed:
		if resp, ok := p.takePending(e.RequestID); ok {
			p.emit(resp)
		}
	}
}

func (p *chromePage) takePending(id network.RequestID) (Response, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	resp, ok := p.pending[id]
	if ok {
		delete(p.pending, id)
	}
	return resp, ok
}

func (p *chromePage) emit(resp Response) {
	p.mu.Lock()
	handler := p.handler
	closed := p.closed
	if handler != nil && !closed {
		p.handlers.Add(1)
	}
	p.mu.Unlock()

	if handler == nil || closed {
		return
	}

	go func() {
		defer p.handlers.Done()
		handler(resp)
	}()
}

func (p *chromePage) bodyFetcher(id network.RequestID) func(ctx context.Context) ([]byte, error) {
	return func(ctx context.Context) ([]byte, error) {
		runCtx, cancel := p.bind(ctx)
		defer cancel()

		var body []byte
		err := chromedp.Run(runCtx, chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			body, err = network.GetResponseBody(id).Do(ctx)
			return err
		}))
		if err != nil {
			return nil, fmt.Errorf("get response body: %w", err)
		}
		return body, nil
	}
}

// bind derives a context for chromedp.Run from the tab context, carrying the
// caller's deadline and cancellation.
func (p *chromePage) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	var runCtx context.Context
	var cancel context.CancelFunc
	if d, ok := ctx.Deadline(); ok {
		runCtx, cancel = context.WithDeadline(p.ctx, d)
	} else {
		runCtx, cancel = context.WithCancel(p.ctx)
	}
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

// Navigate loads url and returns once the document structure is parsed
// (DOMContentLoaded). It does not wait for the load event.
func (p *chromePage) Navigate(ctx context.Context, url string) error {
	runCtx, cancel := p.bind(ctx)
	defer cancel()

	p.domReady.reset()

	issue := func(ctx context.Context) error {
		return chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
			_, _, errorText, err := page.Navigate(url).Do(ctx)
			if err != nil {
				return err
			}
			if errorText != "" {
				return errors.New(errorText)
			}
			return nil
		}))
	}

	if err := awaitDocument(runCtx, issue, p.domReady, p.documentReady); err != nil {
		return fmt.Errorf("navigate: %w", err)
	}
	return nil
}

// awaitDocument issues a navigation and waits for ready to fire. When ctx
// ends first, a document that reports itself interactive still counts.
func awaitDocument(ctx context.Context, issue func(context.Context) error, ready *readySignal, documentReady func() bool) error {
	if err := issue(ctx); err != nil {
		return err
	}

	err := ready.wait(ctx)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) && documentReady() {
		return nil
	}
	return err
}

// readySignal is a resettable one-shot event.
type readySignal struct {
	mu    sync.Mutex
	ch    chan struct{}
	fired bool
}

func newReadySignal() *readySignal {
	return &readySignal{ch: make(chan struct{})}
}

func (r *readySignal) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fired {
		r.ch = make(chan struct{})
		r.fired = false
	}
}

func (r *readySignal) fire() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.fired {
		r.fired = true
		close(r.ch)
	}
}

func (r *readySignal) wait(ctx context.Context) error {
	r.mu.Lock()
	ch := r.ch
	r.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *chromePage) documentReady() bool {
	ctx, cancel := context.WithTimeout(p.ctx, readyCheckTimeout)
	defer cancel()

	var state string
	if err := chromedp.Run(ctx, chromedp.Evaluate(`document.readyState`, &state)); err != nil {
		return false
	}
	return state == "interactive" || state == "complete"
}

func (p *chromePage) Interact(ctx context.Context, waitFor string, selectors []string) (string, error) {
	runCtx, cancel := p.bind(ctx)
	defer cancel()

	if waitFor != "" {
		if err := chromedp.Run(runCtx, chromedp.WaitReady(waitFor, chromedp.ByQuery)); err != nil {
			return "", fmt.Errorf("wait for player: %w", err)
		}
	}

	var lastErr error
	for _, sel := range selectors {
		quoted, err := json.Marshal(sel)
		if err != nil {
			continue
		}
		var count int
		if err := chromedp.Run(runCtx, chromedp.Evaluate(fmt.Sprintf("document.querySelectorAll(%s).length", quoted), &count)); err != nil {
			lastErr = err
			continue
		}
		if count == 0 {
			continue
		}
		if err := chromedp.Run(runCtx, chromedp.Click(sel, chromedp.ByQuery)); err != nil {
			lastErr = err
			continue
		}
		return sel, nil
	}
	return "", lastErr
}

func (p *chromePage) Evaluate(ctx context.Context, script string, out any) error {
	runCtx, cancel := p.bind(ctx)
	defer cancel()

	if err := chromedp.Run(runCtx, chromedp.Evaluate(script, out)); err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}
	return nil
}

func (p *chromePage) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.cancel()
	p.handlers.Wait()
	return nil
}
