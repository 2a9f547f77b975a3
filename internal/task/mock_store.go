package task

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/storyfab/storyfab-api/internal/store"
)

// MockTaskStore implements the TaskStore interface for testing
type MockTaskStore struct {
	mutex          sync.RWMutex
	records        map[uuid.UUID]*TaskRecord
	SaveFn         func(ctx context.Context, task Task) error
	UpdateStatusFn func(ctx context.Context, taskID uuid.UUID, status TaskStatus, errorMsg string) error
}

// NewMockTaskStore creates a new MockTaskStore with default implementations
func NewMockTaskStore() *MockTaskStore {
	s := &MockTaskStore{
		records: make(map[uuid.UUID]*TaskRecord),
	}

	s.SaveFn = func(ctx context.Context, task Task) error {
		s.mutex.Lock()
		defer s.mutex.Unlock()

		now := time.Now().UTC()
		s.records[task.ID()] = &TaskRecord{
			ID:        task.ID(),
			Type:      task.Type(),
			Payload:   task.Payload(),
			Status:    task.Status(),
			CreatedAt: now,
			UpdatedAt: now,
		}
		return nil
	}

	s.UpdateStatusFn = func(ctx context.Context, taskID uuid.UUID, status TaskStatus, errorMsg string) error {
		s.mutex.Lock()
		defer s.mutex.Unlock()

		record, exists := s.records[taskID]
		if !exists {
			return nil // Treat "not found" as a no-op for testing simplicity
		}
		record.Status = status
		record.ErrorMessage = errorMsg
		record.UpdatedAt = time.Now().UTC()
		return nil
	}

	return s
}

// SaveTask persists a task to the mock store
func (s *MockTaskStore) SaveTask(ctx context.Context, task Task) error {
	return s.SaveFn(ctx, task)
}

// UpdateTaskStatus updates the status of a task in the mock store
func (s *MockTaskStore) UpdateTaskStatus(
	ctx context.Context,
	taskID uuid.UUID,
	status TaskStatus,
	errorMsg string,
) error {
	return s.UpdateStatusFn(ctx, taskID, status, errorMsg)
}

// UpdateTaskProgress updates the progress of a task in the mock store
func (s *MockTaskStore) UpdateTaskProgress(
	ctx context.Context,
	taskID uuid.UUID,
	progress int,
	currentStep string,
) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	record, exists := s.records[taskID]
	if !exists {
		return store.ErrTaskNotFound
	}
	record.Progress = progress
	record.CurrentStep = currentStep
	record.UpdatedAt = time.Now().UTC()
	return nil
}

// GetTaskByID retrieves a task record from the mock store
func (s *MockTaskStore) GetTaskByID(ctx context.Context, taskID uuid.UUID) (*TaskRecord, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	record, exists := s.records[taskID]
	if !exists {
		return nil, store.ErrTaskNotFound
	}
	copied := *record
	return &copied, nil
}

// GetPendingTasks retrieves all tasks with "pending" status
func (s *MockTaskStore) GetPendingTasks(ctx context.Context) ([]*TaskRecord, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var pending []*TaskRecord
	for _, record := range s.records {
		if record.Status == TaskStatusPending {
			copied := *record
			pending = append(pending, &copied)
		}
	}
	return pending, nil
}

// GetProcessingTasks retrieves tasks in "processing" or "retrying" status
func (s *MockTaskStore) GetProcessingTasks(ctx context.Context, olderThan time.Duration) ([]*TaskRecord, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var processing []*TaskRecord
	now := time.Now().UTC()
	for _, record := range s.records {
		if record.Status != TaskStatusProcessing && record.Status != TaskStatusRetrying {
			continue
		}
		if olderThan == 0 || now.Sub(record.UpdatedAt) > olderThan {
			copied := *record
			processing = append(processing, &copied)
		}
	}
	return processing, nil
}

// StatusOf reports the current durable status of a task, for assertions.
func (s *MockTaskStore) StatusOf(taskID uuid.UUID) (TaskStatus, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	record, exists := s.records[taskID]
	if !exists {
		return "", false
	}
	return record.Status, true
}

// WithTx implements TaskStore.WithTx for the mock store
// In the mock implementation, we just return the same store instance
func (s *MockTaskStore) WithTx(tx *sql.Tx) TaskStore {
	return s
}

// Ensure MockTaskStore implements TaskStore
var _ TaskStore = (*MockTaskStore)(nil)
