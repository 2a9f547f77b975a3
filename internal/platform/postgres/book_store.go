package postgres

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/storyfab/storyfab-api/internal/domain"
	"github.com/storyfab/storyfab-api/internal/platform/logger"
	"github.com/storyfab/storyfab-api/internal/store"
)

// PostgresBookStore implements the store.BookStore interface
// using a PostgreSQL database as the storage backend.
type PostgresBookStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresBookStore creates a new PostgreSQL implementation of the
// BookStore interface. It accepts a database connection or transaction that
// should be initialized and managed by the caller.
// If logger is nil, a default logger will be used.
func NewPostgresBookStore(db store.DBTX, logger *slog.Logger) *PostgresBookStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresBookStore{
		db:     db,
		logger: logger.With(slog.String("component", "book_store")),
	}
}

// Ensure PostgresBookStore implements store.BookStore interface
var _ store.BookStore = (*PostgresBookStore)(nil)

// Create implements store.BookStore.Create
// It saves a new book to the database, handling domain validation.
// Returns validation errors from the domain Book if data is invalid.
// Returns store.ErrInvalidEntity if the owning user doesn't exist.
func (s *PostgresBookStore) Create(ctx context.Context, book *domain.Book) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := book.Validate(); err != nil {
		log.Warn("book validation failed during create",
			slog.String("error", err.Error()),
			slog.Int64("user_id", book.UserID))
		return err
	}

	query := `
		INSERT INTO books (user_id, title, description, page_count, style, status, cover_image, pdf_file, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`
	err := s.db.QueryRowContext(
		ctx,
		query,
		book.UserID,
		book.Title,
		book.Description,
		book.PageCount,
		book.Style,
		book.Status,
		book.CoverImage,
		book.PDFFile,
		book.CreatedAt,
		book.UpdatedAt,
	).Scan(&book.ID)

	if err != nil {
		log.Error("failed to create book",
			slog.String("error", err.Error()),
			slog.Int64("user_id", book.UserID))
		return MapError(err)
	}

	log.Info("book created successfully",
		slog.Int64("book_id", book.ID),
		slog.Int64("user_id", book.UserID),
		slog.String("status", string(book.Status)))
	return nil
}

// GetByID implements store.BookStore.GetByID
// Returns store.ErrBookNotFound if the book does not exist.
func (s *PostgresBookStore) GetByID(ctx context.Context, id int64) (*domain.Book, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT id, user_id, title, description, page_count, style, status, cover_image, pdf_file, created_at, updated_at
		FROM books
		WHERE id = $1
	`

	book, err := scanBook(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("book not found", slog.Int64("book_id", id))
			return nil, store.ErrBookNotFound
		}
		log.Error("failed to get book by ID",
			slog.String("error", err.Error()),
			slog.Int64("book_id", id))
		return nil, MapError(err)
	}

	return book, nil
}

// Update implements store.BookStore.Update
// It saves changes to an existing book's attributes.
// Returns store.ErrBookNotFound if the book does not exist.
func (s *PostgresBookStore) Update(ctx context.Context, book *domain.Book) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := book.Validate(); err != nil {
		log.Warn("book validation failed during update",
			slog.String("error", err.Error()),
			slog.Int64("book_id", book.ID))
		return err
	}

	book.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE books
		SET title = $1, description = $2, page_count = $3, style = $4, status = $5,
		    cover_image = $6, pdf_file = $7, updated_at = $8
		WHERE id = $9
	`

	result, err := s.db.ExecContext(
		ctx,
		query,
		book.Title,
		book.Description,
		book.PageCount,
		book.Style,
		book.Status,
		book.CoverImage,
		book.PDFFile,
		book.UpdatedAt,
		book.ID,
	)
	if err != nil {
		log.Error("failed to update book",
			slog.String("error", err.Error()),
			slog.Int64("book_id", book.ID))
		return MapError(err)
	}

	if err := CheckRowsAffected(result, "book"); err != nil {
		log.Debug("book not found for update", slog.Int64("book_id", book.ID))
		return store.ErrBookNotFound
	}

	log.Info("book updated successfully",
		slog.Int64("book_id", book.ID),
		slog.String("status", string(book.Status)))
	return nil
}

// UpdateStatus implements store.BookStore.UpdateStatus
// The status change is validated against the domain transition table by
// loading the current row first; illegal transitions leave the row untouched.
// Returns store.ErrBookNotFound if the book does not exist.
func (s *PostgresBookStore) UpdateStatus(ctx context.Context, id int64, status domain.BookStatus) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	book, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := domain.ValidateTransition(book.Status, status); err != nil {
		log.Warn("rejected book status transition",
			slog.Int64("book_id", id),
			slog.String("from", string(book.Status)),
			slog.String("to", string(status)))
		return err
	}

	query := `
		UPDATE books
		SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4
	`

	result, err := s.db.ExecContext(ctx, query, status, time.Now().UTC(), id, book.Status)
	if err != nil {
		log.Error("failed to update book status",
			slog.String("error", err.Error()),
			slog.Int64("book_id", id),
			slog.String("status", string(status)))
		return MapError(err)
	}

	// The status predicate guards against a concurrent transition between
	// the read and the write.
	if err := CheckRowsAffected(result, "book"); err != nil {
		log.Warn("book status changed concurrently, update skipped",
			slog.Int64("book_id", id),
			slog.String("expected", string(book.Status)))
		return store.ErrUpdateFailed
	}

	log.Info("book status updated",
		slog.Int64("book_id", id),
		slog.String("from", string(book.Status)),
		slog.String("to", string(status)))
	return nil
}

// Delete implements store.BookStore.Delete
// Pages are removed by the ON DELETE CASCADE constraint.
// Returns store.ErrBookNotFound if the book does not exist.
func (s *PostgresBookStore) Delete(ctx context.Context, id int64) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	result, err := s.db.ExecContext(ctx, `DELETE FROM books WHERE id = $1`, id)
	if err != nil {
		log.Error("failed to delete book",
			slog.String("error", err.Error()),
			slog.Int64("book_id", id))
		return MapError(err)
	}

	if err := CheckRowsAffected(result, "book"); err != nil {
		log.Debug("book not found for delete", slog.Int64("book_id", id))
		return store.ErrBookNotFound
	}

	log.Info("book deleted", slog.Int64("book_id", id))
	return nil
}

// FindByUser implements store.BookStore.FindByUser
// Returns an empty slice if the user has no books.
func (s *PostgresBookStore) FindByUser(ctx context.Context, userID int64, limit, offset int) ([]*domain.Book, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT id, user_id, title, description, page_count, style, status, cover_image, pdf_file, created_at, updated_at
		FROM books
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := s.db.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		log.Error("failed to query books by user",
			slog.String("error", err.Error()),
			slog.Int64("user_id", userID))
		return nil, MapError(err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			log.Error("failed to close rows", slog.String("error", err.Error()))
		}
	}()

	books, err := collectBooks(rows)
	if err != nil {
		log.Error("failed to scan book rows",
			slog.String("error", err.Error()),
			slog.Int64("user_id", userID))
		return nil, err
	}

	return books, nil
}

// CountByUser implements store.BookStore.CountByUser
func (s *PostgresBookStore) CountByUser(ctx context.Context, userID int64) (int, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM books WHERE user_id = $1`, userID).Scan(&count)
	if err != nil {
		log.Error("failed to count books by user",
			slog.String("error", err.Error()),
			slog.Int64("user_id", userID))
		return 0, MapError(err)
	}

	return count, nil
}

// FindByStatusOlderThan implements store.BookStore.FindByStatusOlderThan
func (s *PostgresBookStore) FindByStatusOlderThan(
	ctx context.Context,
	status domain.BookStatus,
	cutoff time.Time,
) ([]*domain.Book, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT id, user_id, title, description, page_count, style, status, cover_image, pdf_file, created_at, updated_at
		FROM books
		WHERE status = $1 AND updated_at < $2
		ORDER BY updated_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, status, cutoff)
	if err != nil {
		log.Error("failed to query books by status",
			slog.String("error", err.Error()),
			slog.String("status", string(status)))
		return nil, MapError(err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			log.Error("failed to close rows", slog.String("error", err.Error()))
		}
	}()

	books, err := collectBooks(rows)
	if err != nil {
		log.Error("failed to scan book rows",
			slog.String("error", err.Error()),
			slog.String("status", string(status)))
		return nil, err
	}

	return books, nil
}

// WithTx implements store.BookStore.WithTx
// It returns a new BookStore that uses the provided transaction.
func (s *PostgresBookStore) WithTx(tx *sql.Tx) store.BookStore {
	return &PostgresBookStore{
		db:     tx,
		logger: s.logger,
	}
}

// rowScanner abstracts *sql.Row and *sql.Rows for shared scanning code.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanBook(row rowScanner) (*domain.Book, error) {
	var book domain.Book
	var status, style string

	err := row.Scan(
		&book.ID,
		&book.UserID,
		&book.Title,
		&book.Description,
		&book.PageCount,
		&style,
		&status,
		&book.CoverImage,
		&book.PDFFile,
		&book.CreatedAt,
		&book.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	book.Style = domain.BookStyle(style)
	book.Status = domain.BookStatus(status)
	return &book, nil
}

func collectBooks(rows *sql.Rows) ([]*domain.Book, error) {
	books := []*domain.Book{}
	for rows.Next() {
		book, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		books = append(books, book)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return books, nil
}
