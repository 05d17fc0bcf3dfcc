package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/iconidentify/mediagrab/internal/repository"
)

// ErrShutdownTimeout is returned when the sweeper doesn't stop within timeout.
var ErrShutdownTimeout = errors.New("sweeper shutdown timed out")

// Sweeper periodically evicts expired extractions from the store.
type Sweeper struct {
	interval time.Duration
	repo     repository.ExtractionRepository
	logger   *slog.Logger
	now      func() time.Time

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// Config holds sweeper configuration.
type Config struct {
	Interval time.Duration
}

// NewSweeper creates a new store sweeper.
func NewSweeper(cfg Config, repo repository.ExtractionRepository, logger *slog.Logger) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Sweeper{
		interval: cfg.Interval,
		repo:     repo,
		logger:   logger,
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the sweep loop.
func (s *Sweeper) Start() {
	s.logger.Info("starting store sweeper", "interval", s.interval)

	s.wg.Add(1)
	go s.run()
}

// Stop gracefully stops the sweep loop.
func (s *Sweeper) Stop(timeout time.Duration) error {
	s.logger.Info("stopping store sweeper")
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("store sweeper stopped gracefully")
		return nil
	case <-time.After(timeout):
		return ErrShutdownTimeout
	}
}

func (s *Sweeper) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			s.logger.Info("sweeper stopping")
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

// sweep runs one eviction pass.
func (s *Sweeper) sweep() {
	removed, err := s.repo.EvictExpired(s.ctx, s.now())
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.logger.Error("failed to evict expired extractions", "error", err)
		}
		return
	}
	if removed > 0 {
		s.logger.Info("evicted expired extractions", "count", removed)
	}
}
