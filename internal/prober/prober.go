// Package prober validates candidate media URLs and ranks the survivors by
// quality.
package prober

import (
	"cmp"
	"context"
	"log/slog"
	"slices"

	"github.com/samber/lo"

	"github.com/iconidentify/mediagrab/internal/classify"
	"github.com/iconidentify/mediagrab/internal/config"
	"github.com/iconidentify/mediagrab/internal/domain"
	"github.com/iconidentify/mediagrab/internal/downloader"
)

// SizeProber sizes a remote resource without downloading it.
type SizeProber interface {
	Probe(ctx context.Context, url, referer string) (*downloader.ProbeResult, error)
}

// Prober turns candidate URLs into ranked, valid qualities.
type Prober struct {
	sizer   SizeProber
	minSize int64
	logger  *slog.Logger
}

// New creates a Prober. Resources must be strictly larger than cfg.MinSize
// to be kept.
func New(sizer SizeProber, cfg config.ProbeConfig, logger *slog.Logger) *Prober {
	return &Prober{
		sizer:   sizer,
		minSize: cfg.MinSize,
		logger:  logger,
	}
}

// ProbeAll dedupes candidates, probes them one at a time in order and returns
// the valid ones sorted by descending quality. Equal qualities keep probe
// order. Streams are kept without a request. A candidate whose probe fails
// is dropped.
func (p *Prober) ProbeAll(ctx context.Context, candidates []string, referer string) []domain.Quality {
	unique := lo.Uniq(candidates)

	results := make([]domain.Quality, 0, len(unique))
	for _, u := range unique {
		q, ok := p.probeOne(ctx, u, referer)
		if !ok {
			continue
		}
		results = append(results, q)
	}

	valid := lo.Filter(results, func(q domain.Quality, _ int) bool {
		return q.IsValid
	})
	Rank(valid)

	p.logger.Debug("probe complete",
		"candidates", len(unique),
		"probed", len(results),
		"valid", len(valid),
	)
	return valid
}

func (p *Prober) probeOne(ctx context.Context, url, referer string) (domain.Quality, bool) {
	q := domain.Quality{
		URL:   url,
		Label: domain.ParseQuality(url),
	}

	if classify.IsStream(url) {
		q.IsStream = true
		q.IsValid = true
		return q, true
	}

	res, err := p.sizer.Probe(ctx, url, referer)
	if err != nil {
		p.logger.Debug("probe failed", "url", url, "error", err)
		return q, false
	}

	q.SizeBytes = max(res.TotalSize, 0)
	q.IsValid = q.SizeBytes > p.minSize
	return q, true
}

// Rank sorts qualities by descending numeric quality in place. Unknown
// sorts last and ties keep their relative order.
func Rank(qualities []domain.Quality) {
	slices.SortStableFunc(qualities, func(a, b domain.Quality) int {
		return cmp.Compare(b.Rank(), a.Rank())
	})
}
