package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/storyfab/storyfab-api/internal/domain"
)

// BookStore defines the interface for book persistence.
type BookStore interface {
	// Create saves a new book and fills in its generated ID.
	// Returns validation errors from the domain Book if data is invalid.
	Create(ctx context.Context, book *domain.Book) error

	// GetByID retrieves a book by its ID.
	// Returns ErrBookNotFound if the book does not exist.
	GetByID(ctx context.Context, id int64) (*domain.Book, error)

	// Update saves changes to an existing book's attributes.
	// Returns ErrBookNotFound if the book does not exist.
	Update(ctx context.Context, book *domain.Book) error

	// UpdateStatus transitions the book's status. The transition is validated
	// against the domain transition table before the write; illegal pairs
	// return a BusinessRuleError and leave the row untouched.
	UpdateStatus(ctx context.Context, id int64, status domain.BookStatus) error

	// Delete removes a book and, via cascade, its pages.
	// Returns ErrBookNotFound if the book does not exist.
	Delete(ctx context.Context, id int64) error

	// FindByUser returns the user's books, newest first.
	FindByUser(ctx context.Context, userID int64, limit, offset int) ([]*domain.Book, error)

	// CountByUser returns the number of books owned by the user.
	CountByUser(ctx context.Context, userID int64) (int, error)

	// FindByStatusOlderThan returns books in the given status whose last
	// update precedes cutoff. Used by the recovery sweeper.
	FindByStatusOlderThan(ctx context.Context, status domain.BookStatus, cutoff time.Time) ([]*domain.Book, error)

	// WithTx returns a new BookStore instance that uses the provided
	// transaction. The transaction is created and managed by the caller.
	WithTx(tx *sql.Tx) BookStore
}
