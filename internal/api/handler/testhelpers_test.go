package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/iconidentify/mediagrab/internal/domain"
	"github.com/iconidentify/mediagrab/internal/service"
)

// testLogger returns a silent logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// withURLParams attaches chi route parameters to a request.
func withURLParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// mockExtractionService is a test implementation of ExtractionService.
type mockExtractionService struct {
	records     map[domain.ExtractionID]*domain.Extraction
	extractErr  error
	retrieveErr error
	deleteErr   error
	media       *service.Media

	// blockExtract makes Extract wait for the context the way a render does.
	blockExtract bool

	extractedURL  string
	retrievedID   domain.ExtractionID
	retrievedIdx  int
	retrieveCalls int
}

func newMockExtractionService() *mockExtractionService {
	return &mockExtractionService{
		records: make(map[domain.ExtractionID]*domain.Extraction),
	}
}

func (m *mockExtractionService) Extract(ctx context.Context, pageURL string) (*domain.Extraction, error) {
	m.extractedURL = pageURL
	if m.blockExtract {
		<-ctx.Done()
		return nil, &domain.RenderError{Message: ctx.Err().Error()}
	}
	if m.extractErr != nil {
		return nil, m.extractErr
	}
	if strings.TrimSpace(pageURL) == "" {
		return nil, domain.ErrNoURLProvided
	}
	record := sampleExtraction(pageURL)
	m.records[record.ID] = record
	return record, nil
}

func (m *mockExtractionService) Get(ctx context.Context, id domain.ExtractionID) (*domain.Extraction, error) {
	if record, ok := m.records[id]; ok {
		return record, nil
	}
	return nil, domain.ErrExtractionNotFound
}

func (m *mockExtractionService) Delete(ctx context.Context, id domain.ExtractionID) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	if _, ok := m.records[id]; !ok {
		return domain.ErrExtractionNotFound
	}
	delete(m.records, id)
	return nil
}

func (m *mockExtractionService) Retrieve(ctx context.Context, id domain.ExtractionID, index int) (*service.Media, error) {
	m.retrieveCalls++
	m.retrievedID = id
	m.retrievedIdx = index
	if m.retrieveErr != nil {
		return nil, m.retrieveErr
	}
	return m.media, nil
}

// mockStore is a test implementation of StoreCounter.
type mockStore struct {
	count int
	err   error
}

func (m *mockStore) Count(ctx context.Context) (int, error) {
	return m.count, m.err
}

// trackingBody records whether the handler closed the media body.
type trackingBody struct {
	io.Reader
	closed bool
}

func (b *trackingBody) Close() error {
	b.closed = true
	return nil
}

func sampleExtraction(pageURL string) *domain.Extraction {
	return &domain.Extraction{
		ID:        domain.NewExtractionID(pageURL),
		SourceURL: pageURL,
		Title:     "Sunset",
		Thumbnail: "https://img.example/t.jpg",
		Referer:   "https://site.example/",
		Qualities: []domain.Quality{
			{URL: "https://cdn.example/1080p.mp4", Label: "1080p", SizeBytes: 5 << 20, IsValid: true},
			{URL: "https://cdn.example/720p/master.m3u8", Label: "720p", IsStream: true, IsValid: true},
		},
	}
}
