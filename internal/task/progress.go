package task

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/storyfab/storyfab-api/internal/notification"
)

// ProgressSink receives the pipeline's progress checkpoints. The production
// sink records them durably and pushes them to the owner's open channels;
// tests substitute a recorder.
type ProgressSink interface {
	Publish(ctx context.Context, userID int64, update notification.GenerationUpdate)
}

// StatusPublisher is the production ProgressSink: every checkpoint updates
// the task's durable record (for polling clients) and is pushed over the
// notification registry (for connected ones). Push delivery is best effort;
// a failed durable write is logged but never stops the pipeline.
type StatusPublisher struct {
	store    TaskStore
	registry *notification.Registry
	logger   *slog.Logger
}

// NewStatusPublisher creates a StatusPublisher.
// If logger is nil, a default logger will be used.
func NewStatusPublisher(store TaskStore, registry *notification.Registry, logger *slog.Logger) *StatusPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &StatusPublisher{
		store:    store,
		registry: registry,
		logger:   logger.With(slog.String("component", "status_publisher")),
	}
}

// Ensure StatusPublisher implements ProgressSink
var _ ProgressSink = (*StatusPublisher)(nil)

// Publish implements ProgressSink.
func (p *StatusPublisher) Publish(ctx context.Context, userID int64, update notification.GenerationUpdate) {
	taskID, err := uuid.Parse(update.TaskID)
	if err == nil {
		if err := p.store.UpdateTaskProgress(ctx, taskID, update.Progress, update.CurrentStep); err != nil {
			p.logger.WarnContext(ctx, "failed to record task progress",
				slog.String("task_id", update.TaskID),
				slog.String("error", err.Error()))
		}
	} else {
		p.logger.WarnContext(ctx, "checkpoint carries malformed task id",
			slog.String("task_id", update.TaskID))
	}

	p.registry.SendToUser(userID, notification.NewGenerationUpdateEvent(update))
}
