package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/storyfab/storyfab-api/internal/domain"
	"github.com/storyfab/storyfab-api/internal/events"
	"github.com/storyfab/storyfab-api/internal/platform/logger"
	"github.com/storyfab/storyfab-api/internal/store"
	"github.com/storyfab/storyfab-api/internal/task"
)

// BookServiceError is a custom error type for book service errors.
type BookServiceError struct {
	Operation string
	Message   string
	Err       error
}

// Error implements the error interface for BookServiceError.
func (e *BookServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("book service %s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("book service %s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *BookServiceError) Unwrap() error {
	return e.Err
}

// NewBookServiceError creates a new BookServiceError.
func NewBookServiceError(operation, message string, err error) *BookServiceError {
	return &BookServiceError{
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}

// BookUpdate carries the mutable book attributes for an update. Nil fields
// are left unchanged.
type BookUpdate struct {
	Title       *string
	Description *string
	PageCount   *int
	Style       *domain.BookStyle
}

// GenerationStarted describes a freshly dispatched generation job.
type GenerationStarted struct {
	TaskID string `json:"task_id"`
	BookID int64  `json:"book_id"`
	Status string `json:"status"`
}

// GenerationStatus is the pollable view of a generation job for clients that
// missed the push updates.
type GenerationStatus struct {
	TaskID       string `json:"task_id"`
	BookID       int64  `json:"book_id"`
	Status       string `json:"status"`
	Progress     int    `json:"progress"`
	CurrentStep  string `json:"current_step,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// BookService provides book-related operations with ownership enforcement.
type BookService interface {
	// CreateBook creates a draft book for the user, enforcing the per-user
	// book quota.
	CreateBook(ctx context.Context, userID int64, title, description string,
		pageCount int, style domain.BookStyle) (*domain.Book, error)

	// GetBook retrieves a book, verifying it belongs to the user.
	GetBook(ctx context.Context, userID, bookID int64) (*domain.Book, error)

	// ListBooks returns the user's books (newest first) and the total count.
	ListBooks(ctx context.Context, userID int64, limit, offset int) ([]*domain.Book, int, error)

	// UpdateBook applies the update to an editable (draft or failed) book.
	UpdateBook(ctx context.Context, userID, bookID int64, update BookUpdate) (*domain.Book, error)

	// DeleteBook removes a book and its pages. Books with an active
	// generation job cannot be deleted.
	DeleteBook(ctx context.Context, userID, bookID int64) error

	// GetBookPages returns a book's pages, verifying ownership.
	GetBookPages(ctx context.Context, userID, bookID int64) ([]*domain.Page, error)

	// StartGeneration dispatches a background generation job for the book.
	// Only draft and failed books may be generated.
	StartGeneration(ctx context.Context, userID, bookID int64) (*GenerationStarted, error)

	// GetGenerationStatus returns the durable state of a generation job.
	GetGenerationStatus(ctx context.Context, userID int64, taskID uuid.UUID) (*GenerationStatus, error)
}

// generationPayload is the event payload carrying the pre-allocated task id.
type generationPayload struct {
	TaskID string `json:"task_id"`
	BookID int64  `json:"book_id"`
	UserID int64  `json:"user_id"`
}

// bookServiceImpl implements the BookService interface
type bookServiceImpl struct {
	books   store.BookStore
	pages   store.PageStore
	users   store.UserStore
	tasks   task.TaskStore
	emitter events.EventEmitter
	logger  *slog.Logger
}

// Ensure bookServiceImpl implements BookService
var _ BookService = (*bookServiceImpl)(nil)

// NewBookService creates a new BookService.
// It returns an error if any of the required dependencies are nil.
func NewBookService(
	books store.BookStore,
	pages store.PageStore,
	users store.UserStore,
	tasks task.TaskStore,
	emitter events.EventEmitter,
	logger *slog.Logger,
) (BookService, error) {
	if books == nil {
		return nil, errors.New("book store cannot be nil")
	}
	if pages == nil {
		return nil, errors.New("page store cannot be nil")
	}
	if users == nil {
		return nil, errors.New("user store cannot be nil")
	}
	if tasks == nil {
		return nil, errors.New("task store cannot be nil")
	}
	if emitter == nil {
		return nil, errors.New("event emitter cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &bookServiceImpl{
		books:   books,
		pages:   pages,
		users:   users,
		tasks:   tasks,
		emitter: emitter,
		logger:  logger.With(slog.String("component", "book_service")),
	}, nil
}

// CreateBook implements BookService.CreateBook
func (s *bookServiceImpl) CreateBook(
	ctx context.Context,
	userID int64,
	title, description string,
	pageCount int,
	style domain.BookStyle,
) (*domain.Book, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: user %d", domain.ErrNotFound, userID)
	}

	count, err := s.books.CountByUser(ctx, userID)
	if err != nil {
		return nil, NewBookServiceError("create", "failed to count user books", err)
	}
	if count >= user.MaxBooks {
		return nil, &domain.BusinessRuleError{
			Rule: "book_quota",
			Message: fmt.Sprintf("user has reached the maximum of %d books",
				user.MaxBooks),
		}
	}

	book, err := domain.NewBook(userID, title, description, pageCount, style)
	if err != nil {
		return nil, err
	}

	if err := s.books.Create(ctx, book); err != nil {
		log.Error("failed to create book",
			slog.String("error", err.Error()),
			slog.Int64("user_id", userID))
		return nil, NewBookServiceError("create", "failed to save book", err)
	}

	log.Info("book created",
		slog.Int64("book_id", book.ID),
		slog.Int64("user_id", userID))
	return book, nil
}

// GetBook implements BookService.GetBook
func (s *bookServiceImpl) GetBook(ctx context.Context, userID, bookID int64) (*domain.Book, error) {
	book, err := s.books.GetByID(ctx, bookID)
	if err != nil {
		return nil, err
	}
	if book.UserID != userID {
		return nil, ErrNotOwned
	}
	return book, nil
}

// ListBooks implements BookService.ListBooks
func (s *bookServiceImpl) ListBooks(
	ctx context.Context,
	userID int64,
	limit, offset int,
) ([]*domain.Book, int, error) {
	books, err := s.books.FindByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, 0, NewBookServiceError("list", "failed to list books", err)
	}

	total, err := s.books.CountByUser(ctx, userID)
	if err != nil {
		return nil, 0, NewBookServiceError("list", "failed to count books", err)
	}

	return books, total, nil
}

// UpdateBook implements BookService.UpdateBook
// Only draft and failed books are editable; attribute validation runs on the
// merged result before anything is written.
func (s *bookServiceImpl) UpdateBook(
	ctx context.Context,
	userID, bookID int64,
	update BookUpdate,
) (*domain.Book, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	book, err := s.GetBook(ctx, userID, bookID)
	if err != nil {
		return nil, err
	}

	if !book.IsEditable() {
		return nil, &domain.BusinessRuleError{
			Rule: "book_editable",
			Message: fmt.Sprintf("books in status %q cannot be edited",
				book.Status),
			Allowed: []string{string(domain.BookStatusDraft), string(domain.BookStatusFailed)},
		}
	}

	if update.Title != nil {
		book.Title = *update.Title
	}
	if update.Description != nil {
		book.Description = *update.Description
	}
	if update.PageCount != nil {
		book.PageCount = *update.PageCount
	}
	if update.Style != nil {
		book.Style = *update.Style
	}

	if err := book.Validate(); err != nil {
		return nil, err
	}

	if err := s.books.Update(ctx, book); err != nil {
		log.Error("failed to update book",
			slog.String("error", err.Error()),
			slog.Int64("book_id", bookID))
		return nil, NewBookServiceError("update", "failed to save book", err)
	}

	return book, nil
}

// DeleteBook implements BookService.DeleteBook
func (s *bookServiceImpl) DeleteBook(ctx context.Context, userID, bookID int64) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	book, err := s.GetBook(ctx, userID, bookID)
	if err != nil {
		return err
	}

	if book.IsProcessing() {
		return &domain.BusinessRuleError{
			Rule:    "book_delete",
			Message: "books cannot be deleted while generation is running",
		}
	}

	if err := s.books.Delete(ctx, bookID); err != nil {
		log.Error("failed to delete book",
			slog.String("error", err.Error()),
			slog.Int64("book_id", bookID))
		return NewBookServiceError("delete", "failed to delete book", err)
	}

	log.Info("book deleted",
		slog.Int64("book_id", bookID),
		slog.Int64("user_id", userID))
	return nil
}

// GetBookPages implements BookService.GetBookPages
func (s *bookServiceImpl) GetBookPages(
	ctx context.Context,
	userID, bookID int64,
) ([]*domain.Page, error) {
	if _, err := s.GetBook(ctx, userID, bookID); err != nil {
		return nil, err
	}
	return s.pages.FindByBookID(ctx, bookID)
}

// StartGeneration implements BookService.StartGeneration
// The task id is allocated here, before the event is emitted, so the client
// can poll the status endpoint immediately.
func (s *bookServiceImpl) StartGeneration(
	ctx context.Context,
	userID, bookID int64,
) (*GenerationStarted, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	book, err := s.GetBook(ctx, userID, bookID)
	if err != nil {
		return nil, err
	}

	// Generation may start from draft or failed. A processing book already
	// has a job; a completed book must be reset through the edit flow first.
	if !book.IsEditable() {
		return nil, &domain.BusinessRuleError{
			Rule: "generation_start",
			Message: fmt.Sprintf("generation cannot start for a book in status %q",
				book.Status),
			Allowed: []string{string(domain.BookStatusDraft), string(domain.BookStatusFailed)},
		}
	}

	// Claim the book before anything is enqueued. The conditional status
	// update only succeeds against the status read above, so of two racing
	// dispatches exactly one wins the claim and enqueues a job.
	if err := s.books.UpdateStatus(ctx, bookID, domain.BookStatusProcessing); err != nil {
		if errors.Is(err, store.ErrUpdateFailed) || errors.Is(err, domain.ErrBusinessRule) {
			return nil, &domain.BusinessRuleError{
				Rule:    "generation_start",
				Message: "a generation job was already started for this book",
				Allowed: []string{string(domain.BookStatusDraft), string(domain.BookStatusFailed)},
			}
		}
		return nil, NewBookServiceError("generate", "failed to claim book for generation", err)
	}

	taskID := uuid.New()
	event, err := events.NewTaskRequestEvent(task.TaskTypeBookGeneration, generationPayload{
		TaskID: taskID.String(),
		BookID: bookID,
		UserID: userID,
	})
	if err != nil {
		s.releaseClaim(ctx, bookID, book.Status, log)
		return nil, NewBookServiceError("generate", "failed to build task event", err)
	}

	if err := s.emitter.EmitEvent(ctx, event); err != nil {
		log.Error("failed to emit generation event",
			slog.String("error", err.Error()),
			slog.Int64("book_id", bookID),
			slog.String("task_id", taskID.String()))
		s.releaseClaim(ctx, bookID, book.Status, log)
		return nil, NewBookServiceError("generate", "failed to dispatch generation job", err)
	}

	log.Info("generation job dispatched",
		slog.Int64("book_id", bookID),
		slog.String("task_id", taskID.String()))

	return &GenerationStarted{
		TaskID: taskID.String(),
		BookID: bookID,
		Status: string(domain.BookStatusProcessing),
	}, nil
}

// releaseClaim rolls a claimed book back to its pre-dispatch status after a
// failed dispatch. Best effort: if the rollback loses a race the book is
// already moving again and the claim no longer matters.
func (s *bookServiceImpl) releaseClaim(
	ctx context.Context,
	bookID int64,
	previous domain.BookStatus,
	log *slog.Logger,
) {
	if err := s.books.UpdateStatus(ctx, bookID, previous); err != nil {
		log.Error("failed to release generation claim",
			slog.String("error", err.Error()),
			slog.Int64("book_id", bookID),
			slog.String("status", string(previous)))
	}
}

// GetGenerationStatus implements BookService.GetGenerationStatus
// Ownership is checked against the user id recorded in the task payload.
func (s *bookServiceImpl) GetGenerationStatus(
	ctx context.Context,
	userID int64,
	taskID uuid.UUID,
) (*GenerationStatus, error) {
	record, err := s.tasks.GetTaskByID(ctx, taskID)
	if err != nil {
		if store.IsNotFoundError(err) {
			return nil, fmt.Errorf("%w: task %s", domain.ErrNotFound, taskID)
		}
		return nil, NewBookServiceError("status", "failed to load task record", err)
	}

	var payload generationPayload
	if err := json.Unmarshal(record.Payload, &payload); err != nil {
		return nil, NewBookServiceError("status", "failed to decode task payload", err)
	}
	if payload.UserID != userID {
		return nil, ErrNotOwned
	}

	return &GenerationStatus{
		TaskID:       record.ID.String(),
		BookID:       payload.BookID,
		Status:       string(record.Status),
		Progress:     record.Progress,
		CurrentStep:  record.CurrentStep,
		ErrorMessage: record.ErrorMessage,
	}, nil
}
