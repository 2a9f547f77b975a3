package store

import (
	"context"
	"database/sql"

	"github.com/storyfab/storyfab-api/internal/domain"
)

// PageStore defines the interface for page persistence.
type PageStore interface {
	// UpsertByNumber inserts the page or, when a page with the same
	// (book_id, page_number) pair already exists, replaces its content.
	// Re-running a generation therefore overwrites prior partial output
	// instead of duplicating pages.
	UpsertByNumber(ctx context.Context, page *domain.Page) error

	// FindByBookID returns all pages of a book ordered by page number.
	FindByBookID(ctx context.Context, bookID int64) ([]*domain.Page, error)

	// DeleteByBookID removes all pages belonging to a book.
	DeleteByBookID(ctx context.Context, bookID int64) error

	// WithTx returns a new PageStore instance that uses the provided
	// transaction. The transaction is created and managed by the caller.
	WithTx(tx *sql.Tx) PageStore
}
