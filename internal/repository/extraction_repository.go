package repository

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/iconidentify/mediagrab/internal/config"
	"github.com/iconidentify/mediagrab/internal/domain"
)

// InMemoryExtractionRepository implements ExtractionRepository using in-memory storage.
type InMemoryExtractionRepository struct {
	mu          sync.RWMutex
	extractions map[domain.ExtractionID]*domain.Extraction
	ttl         time.Duration
	maxEntries  int
	now         func() time.Time
}

// NewInMemoryExtractionRepository creates a new in-memory extraction repository.
// Zero TTL and MaxEntries keep entries for the life of the process.
func NewInMemoryExtractionRepository(cfg config.StoreConfig) *InMemoryExtractionRepository {
	return &InMemoryExtractionRepository{
		extractions: make(map[domain.ExtractionID]*domain.Extraction),
		ttl:         cfg.TTL,
		maxEntries:  cfg.MaxEntries,
		now:         time.Now,
	}
}

// Save stores a copy of e, evicting the oldest entries past MaxEntries.
func (r *InMemoryExtractionRepository) Save(ctx context.Context, e *domain.Extraction) error {
	stored := cloneExtraction(e)
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = r.now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.extractions[stored.ID] = stored

	for r.maxEntries > 0 && len(r.extractions) > r.maxEntries {
		r.evictOldestLocked(stored.ID)
	}

	return nil
}

// Get retrieves an extraction by ID.
func (r *InMemoryExtractionRepository) Get(ctx context.Context, id domain.ExtractionID) (*domain.Extraction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.extractions[id]
	if !ok || r.expired(e, r.now()) {
		return nil, domain.ErrExtractionNotFound
	}

	return cloneExtraction(e), nil
}

// Delete removes an extraction.
func (r *InMemoryExtractionRepository) Delete(ctx context.Context, id domain.ExtractionID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.extractions[id]; !ok {
		return domain.ErrExtractionNotFound
	}
	delete(r.extractions, id)

	return nil
}

// Count returns the number of stored extractions, expired ones included
// until they are swept.
func (r *InMemoryExtractionRepository) Count(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.extractions), nil
}

// EvictExpired removes entries older than the TTL.
func (r *InMemoryExtractionRepository) EvictExpired(ctx context.Context, now time.Time) (int, error) {
	if r.ttl <= 0 {
		return 0, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, e := range r.extractions {
		if r.expired(e, now) {
			delete(r.extractions, id)
			removed++
		}
	}

	return removed, nil
}

func (r *InMemoryExtractionRepository) expired(e *domain.Extraction, now time.Time) bool {
	return r.ttl > 0 && now.Sub(e.CreatedAt) > r.ttl
}

// evictOldestLocked removes the oldest entry other than keep.
func (r *InMemoryExtractionRepository) evictOldestLocked(keep domain.ExtractionID) {
	var oldest *domain.Extraction
	for id, e := range r.extractions {
		if id == keep {
			continue
		}
		if oldest == nil || e.CreatedAt.Before(oldest.CreatedAt) {
			oldest = e
		}
	}
	if oldest != nil {
		delete(r.extractions, oldest.ID)
	}
}

func cloneExtraction(e *domain.Extraction) *domain.Extraction {
	c := *e
	c.Qualities = slices.Clone(e.Qualities)
	return &c
}
