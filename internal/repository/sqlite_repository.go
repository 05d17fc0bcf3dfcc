package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/iconidentify/mediagrab/internal/config"
	"github.com/iconidentify/mediagrab/internal/domain"
)

// SQLiteExtractionRepository implements ExtractionRepository on a SQLite file,
// so extractions survive restarts.
type SQLiteExtractionRepository struct {
	db         *sql.DB
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

// NewSQLiteExtractionRepository opens (or creates) the database at cfg.SQLitePath.
func NewSQLiteExtractionRepository(cfg config.StoreConfig) (*SQLiteExtractionRepository, error) {
	db, err := sql.Open("sqlite", cfg.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS extractions (
			id TEXT PRIMARY KEY,
			source_url TEXT NOT NULL,
			title TEXT NOT NULL,
			thumbnail TEXT,
			referer TEXT,
			qualities TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_extractions_created_at ON extractions(created_at);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	return &SQLiteExtractionRepository{
		db:         db,
		ttl:        cfg.TTL,
		maxEntries: cfg.MaxEntries,
		now:        time.Now,
	}, nil
}

// Close closes the database.
func (r *SQLiteExtractionRepository) Close() error {
	return r.db.Close()
}

// Save upserts e and trims the table to MaxEntries, newest first.
func (r *SQLiteExtractionRepository) Save(ctx context.Context, e *domain.Extraction) error {
	qualities, err := json.Marshal(e.Qualities)
	if err != nil {
		return fmt.Errorf("marshal qualities: %w", err)
	}

	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = r.now()
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO extractions (id, source_url, title, thumbnail, referer, qualities, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID.String(), e.SourceURL, e.Title, e.Thumbnail, e.Referer, string(qualities), createdAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert extraction: %w", err)
	}

	if r.maxEntries > 0 {
		_, err = r.db.ExecContext(ctx, `
			DELETE FROM extractions WHERE id NOT IN (
				SELECT id FROM extractions ORDER BY created_at DESC, rowid DESC LIMIT ?
			)`, r.maxEntries)
		if err != nil {
			return fmt.Errorf("trim extractions: %w", err)
		}
	}

	return nil
}

// Get retrieves an extraction by ID.
func (r *SQLiteExtractionRepository) Get(ctx context.Context, id domain.ExtractionID) (*domain.Extraction, error) {
	var (
		e         domain.Extraction
		rawID     string
		thumbnail sql.NullString
		referer   sql.NullString
		qualities string
		createdAt int64
	)

	err := r.db.QueryRowContext(ctx, `
		SELECT id, source_url, title, thumbnail, referer, qualities, created_at
		FROM extractions WHERE id = ?`, id.String(),
	).Scan(&rawID, &e.SourceURL, &e.Title, &thumbnail, &referer, &qualities, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrExtractionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query extraction: %w", err)
	}

	e.ID = domain.ExtractionID(rawID)
	e.Thumbnail = thumbnail.String
	e.Referer = referer.String
	e.CreatedAt = time.Unix(0, createdAt)

	if r.ttl > 0 && r.now().Sub(e.CreatedAt) > r.ttl {
		return nil, domain.ErrExtractionNotFound
	}

	if err := json.Unmarshal([]byte(qualities), &e.Qualities); err != nil {
		return nil, fmt.Errorf("unmarshal qualities: %w", err)
	}

	return &e, nil
}

// Delete removes an extraction.
func (r *SQLiteExtractionRepository) Delete(ctx context.Context, id domain.ExtractionID) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM extractions WHERE id = ?", id.String())
	if err != nil {
		return fmt.Errorf("delete extraction: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return domain.ErrExtractionNotFound
	}
	return nil
}

// Count returns the number of stored extractions.
func (r *SQLiteExtractionRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM extractions").Scan(&n); err != nil {
		return 0, fmt.Errorf("count extractions: %w", err)
	}
	return n, nil
}

// EvictExpired removes entries older than the TTL.
func (r *SQLiteExtractionRepository) EvictExpired(ctx context.Context, now time.Time) (int, error) {
	if r.ttl <= 0 {
		return 0, nil
	}

	cutoff := now.Add(-r.ttl).UnixNano()
	result, err := r.db.ExecContext(ctx, "DELETE FROM extractions WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("evict extractions: %w", err)
	}

	n, _ := result.RowsAffected()
	return int(n), nil
}
