package task

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/storyfab/storyfab-api/internal/domain"
	"github.com/storyfab/storyfab-api/internal/notification"
)

// FailureNotifier delivers the durable terminal-failure notification.
type FailureNotifier interface {
	NotifyGenerationFailed(
		ctx context.Context,
		user *domain.User,
		book *domain.Book,
		taskID string,
		progress int,
		reason string,
	)
}

// jobDetails is implemented by tasks that target a book on behalf of a user.
type jobDetails interface {
	BookID() int64
	UserID() int64
}

// NotificationHooks translates runner lifecycle callbacks into user-facing
// notifications: push-only retry updates and the durable terminal-failure
// notice. Success notifications are sent by the pipeline itself, which
// already holds the loaded book and owner.
type NotificationHooks struct {
	store    TaskStore
	books    BookDirectory
	users    UserDirectory
	registry *notification.Registry
	notifier FailureNotifier
	logger   *slog.Logger
}

// NewNotificationHooks creates hooks over the given collaborators.
// If logger is nil, a default logger will be used.
func NewNotificationHooks(
	store TaskStore,
	books BookDirectory,
	users UserDirectory,
	registry *notification.Registry,
	notifier FailureNotifier,
	logger *slog.Logger,
) *NotificationHooks {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationHooks{
		store:    store,
		books:    books,
		users:    users,
		registry: registry,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "notification_hooks")),
	}
}

// Ensure NotificationHooks implements Hooks
var _ Hooks = (*NotificationHooks)(nil)

// OnSuccess implements Hooks. The pipeline sends its own completion
// notification, so only a log entry is left to write here.
func (h *NotificationHooks) OnSuccess(ctx context.Context, t Task) {
	h.logger.InfoContext(ctx, "task finished",
		"task_id", t.ID(),
		"task_type", t.Type())
}

// OnRetry implements Hooks: pushes a best-effort "retrying" update to the
// owner's open channels. The pipeline has already pushed a failed checkpoint
// for the attempt, so the status here must say the job is being retried, not
// pretend it is back to plain processing.
func (h *NotificationHooks) OnRetry(ctx context.Context, t Task, attempt int, delay time.Duration, err error) {
	details, ok := t.(jobDetails)
	if !ok {
		return
	}

	progress, step := h.lastCheckpoint(ctx, t)
	h.registry.SendToUser(details.UserID(), notification.NewGenerationUpdateEvent(notification.GenerationUpdate{
		BookID:      details.BookID(),
		TaskID:      t.ID().String(),
		Status:      string(TaskStatusRetrying),
		Progress:    progress,
		Message:     fmt.Sprintf("Attempt %d failed, retrying in %s", attempt, delay.Round(time.Second)),
		CurrentStep: step,
	}))
}

// OnFailure implements Hooks: loads the book and owner and sends the durable
// terminal-failure notification.
func (h *NotificationHooks) OnFailure(ctx context.Context, t Task, err error) {
	details, ok := t.(jobDetails)
	if !ok {
		return
	}

	book, loadErr := h.books.GetBook(ctx, details.BookID())
	if loadErr != nil {
		h.logger.ErrorContext(ctx, "cannot notify failure, book missing",
			"task_id", t.ID(),
			"book_id", details.BookID(),
			"error", loadErr)
		return
	}
	user, loadErr := h.users.GetUser(ctx, details.UserID())
	if loadErr != nil {
		h.logger.ErrorContext(ctx, "cannot notify failure, user missing",
			"task_id", t.ID(),
			"user_id", details.UserID(),
			"error", loadErr)
		return
	}

	progress, _ := h.lastCheckpoint(ctx, t)
	h.notifier.NotifyGenerationFailed(ctx, user, book, t.ID().String(), progress, summarize(err))
}

// lastCheckpoint reads the task's durable record for the most recent
// progress value and step label.
func (h *NotificationHooks) lastCheckpoint(ctx context.Context, t Task) (int, string) {
	record, err := h.store.GetTaskByID(ctx, t.ID())
	if err != nil {
		return 0, ""
	}
	return record.Progress, record.CurrentStep
}
