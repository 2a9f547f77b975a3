package task

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/storyfab/storyfab-api/internal/events"
)

// TaskFactoryEventHandler implements the events.EventHandler interface
// to turn task request events into queued jobs. Services publish the event
// with a pre-allocated task id; the handler builds the executable task and
// submits it to the runner.
type TaskFactoryEventHandler struct {
	factory *BookGenerationTaskFactory
	runner  *TaskRunner
	logger  *slog.Logger
}

// generationRequestPayload mirrors the payload the book service emits.
type generationRequestPayload struct {
	TaskID string `json:"task_id"`
	BookID int64  `json:"book_id"`
	UserID int64  `json:"user_id"`
}

// NewTaskFactoryEventHandler creates a new event handler that uses the given
// task factory to create tasks and submits them to the provided task runner.
func NewTaskFactoryEventHandler(
	factory *BookGenerationTaskFactory,
	runner *TaskRunner,
	logger *slog.Logger,
) *TaskFactoryEventHandler {
	return &TaskFactoryEventHandler{
		factory: factory,
		runner:  runner,
		logger:  logger.With("component", "task_factory_event_handler"),
	}
}

// HandleEvent processes events by creating and submitting tasks.
func (h *TaskFactoryEventHandler) HandleEvent(ctx context.Context, event *events.TaskRequestEvent) error {
	if event.Type != TaskTypeBookGeneration {
		h.logger.Debug("ignoring event with unsupported type",
			"event_type", event.Type,
			"event_id", event.ID)
		return nil
	}

	var payload generationRequestPayload
	if err := event.UnmarshalPayload(&payload); err != nil {
		h.logger.Error("failed to unmarshal payload", "error", err, "event_id", event.ID)
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	taskID, err := uuid.Parse(payload.TaskID)
	if err != nil {
		h.logger.Error("invalid task ID in payload",
			"error", err,
			"task_id", payload.TaskID,
			"event_id", event.ID)
		return fmt.Errorf("invalid task ID: %w", err)
	}

	task, err := h.factory.CreateTask(taskID, payload.BookID, payload.UserID)
	if err != nil {
		h.logger.Error("failed to create task",
			"error", err,
			"book_id", payload.BookID,
			"event_id", event.ID)
		return fmt.Errorf("failed to create task: %w", err)
	}

	if err := h.runner.Submit(ctx, task); err != nil {
		h.logger.Error("failed to submit task",
			"error", err,
			"task_id", taskID,
			"book_id", payload.BookID,
			"event_id", event.ID)
		return fmt.Errorf("failed to submit task: %w", err)
	}

	h.logger.Info("task created and submitted successfully",
		"task_id", taskID,
		"book_id", payload.BookID,
		"event_id", event.ID)
	return nil
}

// Ensure TaskFactoryEventHandler implements events.EventHandler
var _ events.EventHandler = (*TaskFactoryEventHandler)(nil)
