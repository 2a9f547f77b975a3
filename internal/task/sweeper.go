package task

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/storyfab/storyfab-api/internal/domain"
	"github.com/storyfab/storyfab-api/internal/storage"
	"github.com/storyfab/storyfab-api/internal/store"
)

// Sweeper periodically reclaims failed books past a retention age: their
// stored artifacts (page images, cover, assembled output) are deleted first,
// then the book row itself. The sweep is idempotent; missing artifacts are
// tolerated so a rerun over half-cleaned books converges.
// Books in processing or completed are never touched regardless of age.
type Sweeper struct {
	books     store.BookStore
	pages     store.PageStore
	storage   storage.Storage
	interval  time.Duration
	retention time.Duration
	logger    *slog.Logger
	scheduler gocron.Scheduler
}

// NewSweeper creates a recovery sweeper that runs every interval and removes
// failed books older than retention.
// If logger is nil, a default logger will be used.
func NewSweeper(
	books store.BookStore,
	pages store.PageStore,
	artifactStorage storage.Storage,
	interval time.Duration,
	retention time.Duration,
	logger *slog.Logger,
) (*Sweeper, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("sweep interval must be positive, got %s", interval)
	}
	if retention <= 0 {
		return nil, fmt.Errorf("retention must be positive, got %s", retention)
	}
	if logger == nil {
		logger = slog.Default()
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	return &Sweeper{
		books:     books,
		pages:     pages,
		storage:   artifactStorage,
		interval:  interval,
		retention: retention,
		logger:    logger.With(slog.String("component", "recovery_sweeper")),
		scheduler: scheduler,
	}, nil
}

// Start schedules the periodic sweep and begins running it.
func (s *Sweeper) Start() error {
	_, err := s.scheduler.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(func() {
			if err := s.Sweep(context.Background()); err != nil {
				s.logger.Error("sweep run failed", "error", err)
			}
		}),
		gocron.WithName("failed-book-sweep"),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule sweep job: %w", err)
	}

	s.scheduler.Start()
	s.logger.Info("recovery sweeper started",
		"interval", s.interval.String(),
		"retention", s.retention.String())
	return nil
}

// Stop shuts the scheduler down, waiting for a running sweep to finish.
func (s *Sweeper) Stop() error {
	return s.scheduler.Shutdown()
}

// Sweep performs one pass: find failed books whose last update precedes the
// retention cutoff, reclaim their artifacts, delete their records.
func (s *Sweeper) Sweep(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-s.retention)

	stale, err := s.books.FindByStatusOlderThan(ctx, domain.BookStatusFailed, cutoff)
	if err != nil {
		return fmt.Errorf("failed to find stale failed books: %w", err)
	}

	if len(stale) == 0 {
		s.logger.Debug("sweep found nothing to reclaim")
		return nil
	}

	s.logger.Info("sweeping stale failed books", "count", len(stale))

	for _, book := range stale {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.reclaim(ctx, book); err != nil {
			// One stubborn book must not block the rest of the sweep.
			s.logger.Error("failed to reclaim book",
				"book_id", book.ID,
				"error", err)
		}
	}

	return nil
}

// reclaim deletes one failed book's artifacts and records.
func (s *Sweeper) reclaim(ctx context.Context, book *domain.Book) error {
	pages, err := s.pages.FindByBookID(ctx, book.ID)
	if err != nil {
		return fmt.Errorf("failed to load pages: %w", err)
	}

	for _, page := range pages {
		if !page.HasImage() {
			continue
		}
		if err := s.storage.Delete(ctx, page.ImageRef); err != nil {
			return fmt.Errorf("failed to delete page image %s: %w", page.ImageRef, err)
		}
	}

	if book.CoverImage != "" {
		if err := s.storage.Delete(ctx, book.CoverImage); err != nil {
			return fmt.Errorf("failed to delete cover image: %w", err)
		}
	}
	if book.PDFFile != "" {
		if err := s.storage.Delete(ctx, book.PDFFile); err != nil {
			return fmt.Errorf("failed to delete assembled output: %w", err)
		}
	}

	// Pages go with the book via cascade.
	if err := s.books.Delete(ctx, book.ID); err != nil {
		if store.IsNotFoundError(err) {
			// Already reclaimed by a previous run.
			return nil
		}
		return fmt.Errorf("failed to delete book record: %w", err)
	}

	s.logger.Info("reclaimed stale failed book",
		"book_id", book.ID,
		"user_id", book.UserID,
		"pages", len(pages))
	return nil
}
