package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/storyfab/storyfab-api/internal/domain"
	"github.com/storyfab/storyfab-api/internal/generation"
	"github.com/storyfab/storyfab-api/internal/notification"
	"github.com/storyfab/storyfab-api/internal/storage"
	"github.com/storyfab/storyfab-api/internal/store"
)

// Progress checkpoints, fixed percentages mapped to step boundaries.
const (
	progressLoad      = 20
	progressText      = 40
	progressDecompose = 60
	progressImages    = 80
	progressDone      = 100
)

// Step labels carried in progress checkpoints.
const (
	stepLoad      = "load"
	stepText      = "text_generation"
	stepDecompose = "decomposition"
	stepImages    = "image_generation"
	stepFinalize  = "finalize"
	stepFailed    = "failed"
)

// Common errors
var (
	ErrNilBookDirectory   = errors.New("book directory cannot be nil")
	ErrNilPageWriter      = errors.New("page writer cannot be nil")
	ErrNilUserDirectory   = errors.New("user directory cannot be nil")
	ErrNilTextGenerator   = errors.New("text generator cannot be nil")
	ErrNilImageGenerator  = errors.New("image generator cannot be nil")
	ErrNilStorage         = errors.New("storage cannot be nil")
	ErrNilProgressSink    = errors.New("progress sink cannot be nil")
	ErrNilResultNotifier  = errors.New("result notifier cannot be nil")
	ErrNilLogger          = errors.New("logger cannot be nil")
	ErrEmptyBookID        = errors.New("book ID cannot be empty")
	ErrEmptyUserID        = errors.New("user ID cannot be empty")
	errAllImagesFailed    = errors.New("no page illustration could be generated")
	errPersistenceFailure = errors.New("failed to persist generated pages")
)

// BookDirectory defines the book operations the pipeline needs.
type BookDirectory interface {
	// GetBook retrieves a book by its ID
	GetBook(ctx context.Context, bookID int64) (*domain.Book, error)

	// UpdateBook saves changes to a book's attributes
	UpdateBook(ctx context.Context, book *domain.Book) error

	// UpdateBookStatus transitions a book's status
	UpdateBookStatus(ctx context.Context, bookID int64, status domain.BookStatus) error
}

// PageWriter defines the page persistence operation the pipeline needs.
type PageWriter interface {
	// UpsertPage creates or replaces a page keyed by (book, page number)
	UpsertPage(ctx context.Context, page *domain.Page) error
}

// UserDirectory defines the user lookup the pipeline needs.
type UserDirectory interface {
	// GetUser retrieves a user by ID
	GetUser(ctx context.Context, userID int64) (*domain.User, error)
}

// ResultNotifier delivers the terminal success notification for a job.
type ResultNotifier interface {
	NotifyGenerationComplete(ctx context.Context, user *domain.User, book *domain.Book, taskID string)
}

// BookGenerationDeps bundles the collaborators of a BookGenerationTask.
type BookGenerationDeps struct {
	Books          BookDirectory
	Pages          PageWriter
	Users          UserDirectory
	TextGenerator  generation.TextGenerator
	ImageGenerator generation.ImageGenerator
	Storage        storage.Storage
	Progress       ProgressSink
	Notifier       ResultNotifier
	Logger         *slog.Logger

	// ImageFanOut bounds how many page illustrations are generated
	// concurrently within one job. Values below 1 mean sequential.
	ImageFanOut int
}

func (d BookGenerationDeps) validate() error {
	switch {
	case d.Books == nil:
		return ErrNilBookDirectory
	case d.Pages == nil:
		return ErrNilPageWriter
	case d.Users == nil:
		return ErrNilUserDirectory
	case d.TextGenerator == nil:
		return ErrNilTextGenerator
	case d.ImageGenerator == nil:
		return ErrNilImageGenerator
	case d.Storage == nil:
		return ErrNilStorage
	case d.Progress == nil:
		return ErrNilProgressSink
	case d.Notifier == nil:
		return ErrNilResultNotifier
	case d.Logger == nil:
		return ErrNilLogger
	}
	return nil
}

// bookGenerationPayload represents the serialized data stored in the task
type bookGenerationPayload struct {
	BookID int64 `json:"book_id"`
	UserID int64 `json:"user_id"`
}

// BookGenerationTask implements the Task interface for generating a book:
// story text, page decomposition, per-page illustrations, persistence and
// the terminal status transition.
type BookGenerationTask struct {
	id     uuid.UUID
	bookID int64
	userID int64
	deps   BookGenerationDeps
	logger *slog.Logger
	status TaskStatus
}

// NewBookGenerationTask creates a new book generation task with the given
// pre-allocated task ID. The ID is allocated at dispatch time so clients can
// poll for status before the first worker picks the job up.
func NewBookGenerationTask(
	taskID uuid.UUID,
	bookID int64,
	userID int64,
	deps BookGenerationDeps,
) (*BookGenerationTask, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if taskID == uuid.Nil {
		taskID = uuid.New()
	}
	if bookID <= 0 {
		return nil, ErrEmptyBookID
	}
	if userID <= 0 {
		return nil, ErrEmptyUserID
	}

	return &BookGenerationTask{
		id:     taskID,
		bookID: bookID,
		userID: userID,
		deps:   deps,
		logger: deps.Logger.With(
			"task_type", TaskTypeBookGeneration,
			"task_id", taskID,
			"book_id", bookID,
		),
		status: TaskStatusPending,
	}, nil
}

// ID returns the task's unique identifier
func (t *BookGenerationTask) ID() uuid.UUID {
	return t.id
}

// Type returns the task type identifier
func (t *BookGenerationTask) Type() string {
	return TaskTypeBookGeneration
}

// BookID returns the target book's identifier.
func (t *BookGenerationTask) BookID() int64 {
	return t.bookID
}

// UserID returns the owning user's identifier.
func (t *BookGenerationTask) UserID() int64 {
	return t.userID
}

// Payload returns the task data as a byte slice
func (t *BookGenerationTask) Payload() []byte {
	data, err := json.Marshal(bookGenerationPayload{BookID: t.bookID, UserID: t.userID})
	if err != nil {
		t.logger.Error("failed to marshal task payload", "error", err)
		return []byte{}
	}
	return data
}

// Status returns the current task status
func (t *BookGenerationTask) Status() TaskStatus {
	return t.status
}

// Execute runs one attempt of the generation pipeline. Attempts are
// idempotent: pages are upserted by page number and the book's status walks
// failed -> processing on re-entry, so a retried run converges instead of
// duplicating work.
func (t *BookGenerationTask) Execute(ctx context.Context) error {
	t.status = TaskStatusProcessing
	t.logger.Info("starting book generation")

	if err := ctx.Err(); err != nil {
		t.status = TaskStatusFailed
		return fmt.Errorf("%w: attempt cancelled before start: %v", domain.ErrTimeout, err)
	}

	// Step 1: load book and owner. Missing rows are terminal; any other
	// load error is a transient persistence fault and stays retryable.
	book, err := t.deps.Books.GetBook(ctx, t.bookID)
	if err != nil {
		t.status = TaskStatusFailed
		t.logger.Error("failed to load book", "error", err)
		if store.IsNotFoundError(err) {
			return fmt.Errorf("%w: book %d", domain.ErrNotFound, t.bookID)
		}
		return domain.NewExternalServiceError("persistence", err)
	}

	user, err := t.deps.Users.GetUser(ctx, t.userID)
	if err != nil {
		var failErr error
		if store.IsNotFoundError(err) {
			failErr = fmt.Errorf("%w: user %d", domain.ErrNotFound, t.userID)
		} else {
			failErr = domain.NewExternalServiceError("persistence", err)
		}
		t.fail(ctx, book, 0, failErr)
		return failErr
	}

	// Dispatch claims the book into processing before the job is queued,
	// so a first attempt finds it there already. Retry attempts re-enter
	// with the book marked failed; move it back to processing.
	if !book.IsProcessing() {
		if err := book.TransitionTo(domain.BookStatusProcessing); err != nil {
			t.status = TaskStatusFailed
			t.logger.Error("book not in a runnable state", "status", string(book.Status))
			return err
		}
		if err := t.deps.Books.UpdateBookStatus(ctx, t.bookID, domain.BookStatusProcessing); err != nil {
			t.status = TaskStatusFailed
			return fmt.Errorf("failed to mark book as processing: %w", err)
		}
	}

	t.checkpoint(ctx, progressLoad, stepLoad, "Loaded book and owner")

	// Step 2: story text. Transient service faults are retryable, the
	// rest (config, blocked content, malformed output) fail terminally.
	story, err := t.deps.TextGenerator.GenerateStory(ctx, book)
	if err != nil {
		classified := classifyGenerationError("story_generation", err)
		t.fail(ctx, book, progressLoad, classified)
		return classified
	}

	t.checkpoint(ctx, progressText, stepText, "Story text generated")

	// Step 3: decomposition. Never fails, degrades to sequential chunks.
	chunks := SplitStory(story, book.PageCount)
	t.checkpoint(ctx, progressDecompose, stepDecompose,
		fmt.Sprintf("Story split into %d pages", len(chunks)))

	// Step 4: per-page illustrations with bounded fan-out. A single
	// page's failure is recovered locally: the page keeps a null image
	// reference and the loop continues.
	t.checkpoint(ctx, progressImages, stepImages, "Generating page illustrations")
	prompts := buildImagePrompts(book, chunks)
	locators := t.generateImages(ctx, book, chunks, prompts)

	if err := ctx.Err(); err != nil {
		timeoutErr := fmt.Errorf("%w: attempt cancelled during image generation: %v", domain.ErrTimeout, err)
		t.fail(ctx, book, progressImages, timeoutErr)
		return timeoutErr
	}

	// Step 5: persistence, serialized per book to keep page numbers
	// race-free. Each page commits independently; a failure partway is
	// recoverable because the next attempt upserts over it.
	withImage := 0
	for i, chunk := range chunks {
		page, err := domain.NewPage(book.ID, chunk.Number, chunk.Text, prompts[i])
		if err != nil {
			failErr := fmt.Errorf("invalid generated page %d: %w", chunk.Number, err)
			t.fail(ctx, book, progressImages, failErr)
			return failErr
		}
		page.ImageRef = locators[i]
		if page.HasImage() {
			withImage++
		}

		if err := t.deps.Pages.UpsertPage(ctx, page); err != nil {
			classified := domain.NewExternalServiceError("persistence",
				fmt.Errorf("%w: page %d: %v", errPersistenceFailure, chunk.Number, err))
			t.fail(ctx, book, progressImages, classified)
			return classified
		}
	}

	// Losing every illustration points at the image service being down,
	// not at bad pages. Pages are already persisted, so a retry only has
	// to fill the images in.
	if len(chunks) > 0 && withImage == 0 {
		classified := domain.NewExternalServiceError("image_generation", errAllImagesFailed)
		t.fail(ctx, book, progressImages, classified)
		return classified
	}

	// Step 6: finalize.
	if book.CoverImage == "" {
		for _, locator := range locators {
			if locator != "" {
				book.CoverImage = locator
				break
			}
		}
	}
	if err := book.TransitionTo(domain.BookStatusCompleted); err != nil {
		t.fail(ctx, book, progressImages, err)
		return err
	}
	if err := t.deps.Books.UpdateBook(ctx, book); err != nil {
		classified := domain.NewExternalServiceError("persistence", err)
		t.fail(ctx, book, progressImages, classified)
		return classified
	}

	t.checkpoint(ctx, progressDone, stepFinalize, "Book generation complete")
	t.deps.Notifier.NotifyGenerationComplete(ctx, user, book, t.id.String())

	t.status = TaskStatusCompleted
	t.logger.Info("book generation completed",
		"pages", len(chunks),
		"pages_with_image", withImage)
	return nil
}

// checkpoint publishes a progress event for the running job.
func (t *BookGenerationTask) checkpoint(ctx context.Context, progress int, step, message string) {
	t.deps.Progress.Publish(ctx, t.userID, notification.GenerationUpdate{
		BookID:      t.bookID,
		TaskID:      t.id.String(),
		Status:      string(domain.BookStatusProcessing),
		Progress:    progress,
		Message:     message,
		CurrentStep: step,
	})
}

// fail marks the book failed and publishes a failure checkpoint with the
// progress frozen at the last successful step. The runner decides whether
// the attempt is retried; the book must never stay in processing either way.
func (t *BookGenerationTask) fail(ctx context.Context, book *domain.Book, progress int, cause error) {
	t.status = TaskStatusFailed
	t.logger.Error("book generation attempt failed", "error", cause)

	if book.Status != domain.BookStatusFailed {
		if err := t.deps.Books.UpdateBookStatus(ctx, t.bookID, domain.BookStatusFailed); err != nil {
			t.logger.Error("failed to mark book as failed", "error", err)
		} else {
			book.Status = domain.BookStatusFailed
		}
	}

	t.deps.Progress.Publish(ctx, t.userID, notification.GenerationUpdate{
		BookID:      t.bookID,
		TaskID:      t.id.String(),
		Status:      string(domain.BookStatusFailed),
		Progress:    progress,
		Message:     summarize(cause),
		CurrentStep: stepFailed,
	})
}

// generateImages renders one illustration per page with bounded concurrency
// and uploads each to storage. The returned slice is indexed like chunks; an
// empty locator marks a page whose illustration failed.
func (t *BookGenerationTask) generateImages(
	ctx context.Context,
	book *domain.Book,
	chunks []PageChunk,
	prompts []string,
) []string {
	locators := make([]string, len(chunks))

	fanOut := t.deps.ImageFanOut
	if fanOut < 1 {
		fanOut = 1
	}
	sem := make(chan struct{}, fanOut)
	var wg sync.WaitGroup

	for i := range chunks {
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()

			pageNumber := chunks[idx].Number
			data, err := t.deps.ImageGenerator.GenerateImage(ctx, prompts[idx], book.Style)
			if err != nil {
				t.logger.Warn("page illustration failed, continuing without image",
					"page_number", pageNumber,
					"error", err)
				return
			}

			name := fmt.Sprintf("books/%d/page_%d.png", book.ID, pageNumber)
			locator, err := t.deps.Storage.Upload(ctx, data, name)
			if err != nil {
				t.logger.Warn("page illustration upload failed, continuing without image",
					"page_number", pageNumber,
					"error", err)
				return
			}

			locators[idx] = locator
		}(i)
	}

	wg.Wait()
	return locators
}

// buildImagePrompts derives one illustration prompt per page from the page
// text and the book's style, bounded to the domain prompt length.
func buildImagePrompts(book *domain.Book, chunks []PageChunk) []string {
	prompts := make([]string, len(chunks))
	for i, chunk := range chunks {
		scene := strings.TrimSpace(chunk.Text)
		if scene == "" {
			scene = book.Title
		}
		prompt := fmt.Sprintf("Children's book illustration, %s style: %s", book.Style, scene)
		runes := []rune(prompt)
		if len(runes) > domain.MaxImagePromptLength {
			prompt = string(runes[:domain.MaxImagePromptLength])
		}
		prompts[i] = prompt
	}
	return prompts
}

// classifyGenerationError maps generator errors onto the retry taxonomy:
// transient faults become retryable external service errors, everything else
// stays terminal.
func classifyGenerationError(service string, err error) error {
	if errors.Is(err, generation.ErrTransientFailure) {
		return domain.NewExternalServiceError(service, err)
	}
	return fmt.Errorf("%s failed: %w", service, err)
}

// summarize renders an error chain into a short human-readable message for
// push events.
func summarize(err error) string {
	if err == nil {
		return "generation failed"
	}
	msg := err.Error()
	const maxLen = 300
	if len(msg) > maxLen {
		msg = msg[:maxLen] + "..."
	}
	return msg
}

// Ensure BookGenerationTask implements the Task interface
var _ Task = (*BookGenerationTask)(nil)
