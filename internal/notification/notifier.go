package notification

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/storyfab/storyfab-api/internal/domain"
)

// EmailSender delivers durable notifications that survive a closed push
// channel. Implementations may hand off to a real mail provider.
type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// LogEmailSender is an EmailSender that only records the message in the
// structured log. It stands in where no mail provider is configured.
type LogEmailSender struct {
	logger *slog.Logger
}

// NewLogEmailSender creates a log-only email sender.
// If logger is nil, a default logger will be used.
func NewLogEmailSender(logger *slog.Logger) *LogEmailSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogEmailSender{logger: logger.With(slog.String("component", "email_sender"))}
}

// Send implements EmailSender.
func (s *LogEmailSender) Send(ctx context.Context, to, subject, body string) error {
	s.logger.InfoContext(ctx, "email notification",
		slog.String("to", to),
		slog.String("subject", subject),
		slog.String("body", body))
	return nil
}

var _ EmailSender = (*LogEmailSender)(nil)

// Notifier pairs best-effort push delivery with a durable email notice for
// the terminal outcomes of a generation job.
type Notifier struct {
	registry *Registry
	email    EmailSender
	logger   *slog.Logger
}

// NewNotifier creates a Notifier over the given registry and email sender.
// If logger is nil, a default logger will be used.
func NewNotifier(registry *Registry, email EmailSender, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		registry: registry,
		email:    email,
		logger:   logger.With(slog.String("component", "notifier")),
	}
}

// NotifyGenerationComplete announces a finished book to the owner on every
// open channel and by durable email.
func (n *Notifier) NotifyGenerationComplete(ctx context.Context, user *domain.User, book *domain.Book, taskID string) {
	message := fmt.Sprintf("Your book %q is ready!", book.Title)

	n.registry.SendToUser(user.ID, NewGenerationUpdateEvent(GenerationUpdate{
		BookID:      book.ID,
		TaskID:      taskID,
		Status:      string(domain.BookStatusCompleted),
		Progress:    100,
		Message:     message,
		CurrentStep: "finalize",
	}))

	if err := n.email.Send(ctx, user.Email, "Book generation complete", message); err != nil {
		n.logger.WarnContext(ctx, "failed to send completion email",
			slog.Int64("user_id", user.ID),
			slog.Int64("book_id", book.ID),
			slog.String("error", err.Error()))
	}
}

// NotifyGenerationFailed announces a terminally failed generation with the
// last error summary.
func (n *Notifier) NotifyGenerationFailed(
	ctx context.Context,
	user *domain.User,
	book *domain.Book,
	taskID string,
	progress int,
	reason string,
) {
	message := fmt.Sprintf("Generation of %q failed: %s", book.Title, reason)

	n.registry.SendToUser(user.ID, NewGenerationUpdateEvent(GenerationUpdate{
		BookID:      book.ID,
		TaskID:      taskID,
		Status:      string(domain.BookStatusFailed),
		Progress:    progress,
		Message:     message,
		CurrentStep: "failed",
	}))

	if err := n.email.Send(ctx, user.Email, "Book generation failed", message); err != nil {
		n.logger.WarnContext(ctx, "failed to send failure email",
			slog.Int64("user_id", user.ID),
			slog.Int64("book_id", book.ID),
			slog.String("error", err.Error()))
	}
}
