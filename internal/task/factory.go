package task

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// BookGenerationTaskFactory creates BookGenerationTask instances with a
// fixed set of collaborators. One factory serves both fresh dispatches and
// the revival of recovered task records.
type BookGenerationTaskFactory struct {
	deps BookGenerationDeps
}

// NewBookGenerationTaskFactory creates a new factory with the given
// collaborators.
func NewBookGenerationTaskFactory(deps BookGenerationDeps) (*BookGenerationTaskFactory, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	return &BookGenerationTaskFactory{deps: deps}, nil
}

// CreateTask builds an executable generation task for the given book and
// owner under the pre-allocated task ID.
func (f *BookGenerationTaskFactory) CreateTask(taskID uuid.UUID, bookID, userID int64) (*BookGenerationTask, error) {
	return NewBookGenerationTask(taskID, bookID, userID, f.deps)
}

// Revive rebuilds an executable task from its durable record. It satisfies
// the runner's ReviveFunc signature.
func (f *BookGenerationTaskFactory) Revive(record *TaskRecord) (Task, error) {
	if record.Type != TaskTypeBookGeneration {
		return nil, fmt.Errorf("unknown task type %q", record.Type)
	}

	var payload bookGenerationPayload
	if err := json.Unmarshal(record.Payload, &payload); err != nil {
		return nil, fmt.Errorf("malformed payload for task %s: %w", record.ID, err)
	}

	return NewBookGenerationTask(record.ID, payload.BookID, payload.UserID, f.deps)
}
