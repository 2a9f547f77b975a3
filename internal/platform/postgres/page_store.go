package postgres

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/storyfab/storyfab-api/internal/domain"
	"github.com/storyfab/storyfab-api/internal/platform/logger"
	"github.com/storyfab/storyfab-api/internal/store"
)

// PostgresPageStore implements the store.PageStore interface
// using a PostgreSQL database as the storage backend.
type PostgresPageStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresPageStore creates a new PostgreSQL implementation of the
// PageStore interface.
// If logger is nil, a default logger will be used.
func NewPostgresPageStore(db store.DBTX, logger *slog.Logger) *PostgresPageStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresPageStore{
		db:     db,
		logger: logger.With(slog.String("component", "page_store")),
	}
}

// Ensure PostgresPageStore implements store.PageStore interface
var _ store.PageStore = (*PostgresPageStore)(nil)

// UpsertByNumber implements store.PageStore.UpsertByNumber
// A conflict on (book_id, page_number) replaces the existing page content,
// so regenerating a book overwrites stale partial output.
func (s *PostgresPageStore) UpsertByNumber(ctx context.Context, page *domain.Page) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := page.Validate(); err != nil {
		log.Warn("page validation failed during upsert",
			slog.String("error", err.Error()),
			slog.Int64("book_id", page.BookID),
			slog.Int("page_number", page.PageNumber))
		return err
	}

	query := `
		INSERT INTO pages (book_id, page_number, text, image_prompt, image_ref, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (book_id, page_number) DO UPDATE
		SET text = EXCLUDED.text,
		    image_prompt = EXCLUDED.image_prompt,
		    image_ref = EXCLUDED.image_ref,
		    updated_at = EXCLUDED.updated_at
		RETURNING id
	`
	err := s.db.QueryRowContext(
		ctx,
		query,
		page.BookID,
		page.PageNumber,
		page.TextContent,
		page.ImagePrompt,
		page.ImageRef,
		page.CreatedAt,
		page.UpdatedAt,
	).Scan(&page.ID)

	if err != nil {
		log.Error("failed to upsert page",
			slog.String("error", err.Error()),
			slog.Int64("book_id", page.BookID),
			slog.Int("page_number", page.PageNumber))
		return MapError(err)
	}

	log.Debug("page upserted",
		slog.Int64("book_id", page.BookID),
		slog.Int("page_number", page.PageNumber),
		slog.Bool("has_image", page.HasImage()))
	return nil
}

// FindByBookID implements store.PageStore.FindByBookID
// Returns an empty slice if the book has no pages.
func (s *PostgresPageStore) FindByBookID(ctx context.Context, bookID int64) ([]*domain.Page, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT id, book_id, page_number, text, image_prompt, image_ref, created_at, updated_at
		FROM pages
		WHERE book_id = $1
		ORDER BY page_number ASC
	`

	rows, err := s.db.QueryContext(ctx, query, bookID)
	if err != nil {
		log.Error("failed to query pages by book",
			slog.String("error", err.Error()),
			slog.Int64("book_id", bookID))
		return nil, MapError(err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			log.Error("failed to close rows", slog.String("error", err.Error()))
		}
	}()

	pages := []*domain.Page{}
	for rows.Next() {
		var page domain.Page
		err := rows.Scan(
			&page.ID,
			&page.BookID,
			&page.PageNumber,
			&page.TextContent,
			&page.ImagePrompt,
			&page.ImageRef,
			&page.CreatedAt,
			&page.UpdatedAt,
		)
		if err != nil {
			log.Error("failed to scan page row",
				slog.String("error", err.Error()),
				slog.Int64("book_id", bookID))
			return nil, err
		}
		pages = append(pages, &page)
	}

	if err := rows.Err(); err != nil {
		log.Error("error after scanning page rows",
			slog.String("error", err.Error()),
			slog.Int64("book_id", bookID))
		return nil, err
	}

	return pages, nil
}

// DeleteByBookID implements store.PageStore.DeleteByBookID
// Deleting zero pages is not an error: a freshly created book has none.
func (s *PostgresPageStore) DeleteByBookID(ctx context.Context, bookID int64) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	_, err := s.db.ExecContext(ctx, `DELETE FROM pages WHERE book_id = $1`, bookID)
	if err != nil {
		log.Error("failed to delete pages by book",
			slog.String("error", err.Error()),
			slog.Int64("book_id", bookID))
		return MapError(err)
	}

	log.Debug("pages deleted for book", slog.Int64("book_id", bookID))
	return nil
}

// WithTx implements store.PageStore.WithTx
// It returns a new PageStore that uses the provided transaction.
func (s *PostgresPageStore) WithTx(tx *sql.Tx) store.PageStore {
	return &PostgresPageStore{
		db:     tx,
		logger: s.logger,
	}
}
