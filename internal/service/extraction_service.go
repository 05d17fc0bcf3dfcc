package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/iconidentify/mediagrab/internal/config"
	"github.com/iconidentify/mediagrab/internal/domain"
	"github.com/iconidentify/mediagrab/internal/downloader"
	"github.com/iconidentify/mediagrab/internal/extractor"
	"github.com/iconidentify/mediagrab/internal/repository"
)

// defaultContentType is served when the media host does not name a video type.
const defaultContentType = "video/mp4"

// PageExtractor renders a page and reports the media candidates it saw.
type PageExtractor interface {
	Extract(ctx context.Context, pageURL string) (*extractor.Capture, error)
}

// CandidateProber validates and ranks candidates.
type CandidateProber interface {
	ProbeAll(ctx context.Context, candidates []string, referer string) []domain.Quality
}

// MediaFetcher streams a media resource.
type MediaFetcher interface {
	Download(ctx context.Context, url, referer string) (io.ReadCloser, *downloader.ProbeResult, error)
}

// ExtractionService runs the extraction pipeline and serves stored results.
type ExtractionService struct {
	extractor PageExtractor
	prober    CandidateProber
	fetcher   MediaFetcher
	repo      repository.ExtractionRepository
	probeCfg  config.ProbeConfig
	logger    *slog.Logger
}

// NewExtractionService creates a new extraction service.
func NewExtractionService(
	ex PageExtractor,
	prober CandidateProber,
	fetcher MediaFetcher,
	repo repository.ExtractionRepository,
	probeCfg config.ProbeConfig,
	logger *slog.Logger,
) *ExtractionService {
	return &ExtractionService{
		extractor: ex,
		prober:    prober,
		fetcher:   fetcher,
		repo:      repo,
		probeCfg:  probeCfg,
		logger:    logger,
	}
}

// Media is an open download ready to be streamed to a client.
type Media struct {
	Body        io.ReadCloser
	Size        int64
	ContentType string
	Filename    string
	Quality     domain.Quality
}

// Extract renders pageURL, probes what it found and stores the ranked result.
func (s *ExtractionService) Extract(ctx context.Context, pageURL string) (*domain.Extraction, error) {
	pageURL = strings.TrimSpace(pageURL)
	if pageURL == "" {
		return nil, domain.ErrNoURLProvided
	}

	runID := "run_" + uuid.New().String()[:8]
	logger := s.logger.With("run_id", runID, "page_url", pageURL)
	start := time.Now()

	logger.Info("extraction started")

	capture, err := s.extractor.Extract(ctx, pageURL)
	if err != nil {
		logger.Error("page render failed", "error", err)
		if !errors.Is(err, domain.ErrRenderFailed) {
			err = &domain.RenderError{Message: err.Error()}
		}
		return nil, err
	}

	candidates := lo.Uniq(capture.Candidates)
	if len(candidates) == 0 {
		logger.Warn("no candidates found")
		return nil, domain.ErrNoCandidates
	}

	referer := s.referer(capture.FinalURL)
	logger.Info("probing candidates", "candidates", len(candidates), "referer", referer)

	qualities := s.prober.ProbeAll(ctx, candidates, referer)
	if len(qualities) == 0 {
		logger.Warn("no valid candidates", "candidates", len(candidates))
		return nil, domain.ErrNoValidCandidates
	}

	record := &domain.Extraction{
		ID:        domain.NewExtractionID(pageURL),
		SourceURL: pageURL,
		Title:     capture.Title,
		Thumbnail: capture.Thumbnail,
		Referer:   referer,
		Qualities: qualities,
		CreatedAt: time.Now(),
	}

	if err := s.repo.Save(ctx, record); err != nil {
		return nil, fmt.Errorf("save extraction: %w", err)
	}

	logger.Info("extraction completed",
		"video_id", record.ID,
		"qualities", len(qualities),
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return record, nil
}

// Get returns a stored extraction.
func (s *ExtractionService) Get(ctx context.Context, id domain.ExtractionID) (*domain.Extraction, error) {
	return s.repo.Get(ctx, id)
}

// Delete removes a stored extraction.
func (s *ExtractionService) Delete(ctx context.Context, id domain.ExtractionID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("extraction deleted", "video_id", id)
	return nil
}

// Retrieve opens the download for one quality of a stored extraction. The
// caller must close Media.Body.
func (s *ExtractionService) Retrieve(ctx context.Context, id domain.ExtractionID, index int) (*Media, error) {
	record, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	q, err := record.QualityAt(index)
	if err != nil {
		return nil, err
	}

	if q.IsStream {
		return nil, &domain.StreamUnsupportedError{URL: q.URL}
	}

	s.logger.Info("download started", "video_id", id, "quality", q.Label)

	body, info, err := s.fetcher.Download(ctx, q.URL, record.Referer)
	if err != nil {
		s.logger.Error("download failed", "video_id", id, "quality", q.Label, "error", err)
		return nil, fmt.Errorf("%w: %w", domain.ErrFetchFailed, err)
	}

	contentType := info.ContentType
	if !strings.HasPrefix(contentType, "video/") {
		contentType = defaultContentType
	}

	return &Media{
		Body:        body,
		Size:        info.TotalSize,
		ContentType: contentType,
		Filename:    q.Filename(),
		Quality:     q,
	}, nil
}

// Count returns the number of stored extractions.
func (s *ExtractionService) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}

// referer returns the configured override, or the origin of the rendered page.
func (s *ExtractionService) referer(pageURL string) string {
	if s.probeCfg.Referer != "" {
		return s.probeCfg.Referer
	}
	u, err := url.Parse(pageURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host + "/"
}
