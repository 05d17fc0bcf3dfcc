package repository

import (
	"context"
	"time"

	"github.com/iconidentify/mediagrab/internal/domain"
)

// ExtractionRepository stores the latest extraction per page.
// Save overwrites unconditionally; concurrent saves for one id are
// last-writer-wins.
type ExtractionRepository interface {
	// Save stores an extraction under its ID, replacing any previous one.
	Save(ctx context.Context, e *domain.Extraction) error

	// Get retrieves an extraction by ID. Expired entries are not found.
	Get(ctx context.Context, id domain.ExtractionID) (*domain.Extraction, error)

	// Delete removes an extraction.
	Delete(ctx context.Context, id domain.ExtractionID) error

	// Count returns the number of stored extractions.
	Count(ctx context.Context) (int, error)

	// EvictExpired removes entries older than the TTL as of now and returns
	// how many were removed. Without a TTL it removes nothing.
	EvictExpired(ctx context.Context, now time.Time) (int, error)
}
