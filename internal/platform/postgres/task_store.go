package postgres

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/storyfab/storyfab-api/internal/platform/logger"
	"github.com/storyfab/storyfab-api/internal/store"
	"github.com/storyfab/storyfab-api/internal/task"
)

// PostgresTaskStore implements the task.TaskStore interface
// using a PostgreSQL database as the storage backend.
type PostgresTaskStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresTaskStore creates a new PostgreSQL implementation of the
// TaskStore interface.
// If logger is nil, a default logger will be used.
func NewPostgresTaskStore(db store.DBTX, logger *slog.Logger) *PostgresTaskStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresTaskStore{
		db:     db,
		logger: logger.With(slog.String("component", "task_store")),
	}
}

// Ensure PostgresTaskStore implements task.TaskStore interface
var _ task.TaskStore = (*PostgresTaskStore)(nil)

const taskColumns = `id, type, payload, status, progress, current_step, error_message, created_at, updated_at`

// SaveTask implements task.TaskStore.SaveTask
// Re-saving an existing task resets its row so a re-dispatched job starts
// from a clean pending record.
func (s *PostgresTaskStore) SaveTask(ctx context.Context, t task.Task) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	now := time.Now().UTC()
	query := `
		INSERT INTO tasks (id, type, payload, status, progress, current_step, error_message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, '', '', $5, $5)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status,
		    payload = EXCLUDED.payload,
		    progress = 0,
		    current_step = '',
		    error_message = '',
		    updated_at = EXCLUDED.updated_at
	`
	// The payload is JSON; sending it as text lets the jsonb column accept
	// it without a bytea cast.
	_, err := s.db.ExecContext(ctx, query, t.ID(), t.Type(), string(t.Payload()), t.Status(), now)
	if err != nil {
		log.Error("failed to save task",
			slog.String("error", err.Error()),
			slog.String("task_id", t.ID().String()),
			slog.String("task_type", t.Type()))
		return MapError(err)
	}

	log.Debug("task saved",
		slog.String("task_id", t.ID().String()),
		slog.String("task_type", t.Type()))
	return nil
}

// UpdateTaskStatus implements task.TaskStore.UpdateTaskStatus
func (s *PostgresTaskStore) UpdateTaskStatus(
	ctx context.Context,
	taskID uuid.UUID,
	status task.TaskStatus,
	errorMsg string,
) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		UPDATE tasks
		SET status = $1, error_message = $2, updated_at = $3
		WHERE id = $4
	`
	result, err := s.db.ExecContext(ctx, query, status, errorMsg, time.Now().UTC(), taskID)
	if err != nil {
		log.Error("failed to update task status",
			slog.String("error", err.Error()),
			slog.String("task_id", taskID.String()),
			slog.String("status", string(status)))
		return MapError(err)
	}

	if err := CheckRowsAffected(result, "task"); err != nil {
		return err
	}

	log.Debug("task status updated",
		slog.String("task_id", taskID.String()),
		slog.String("status", string(status)))
	return nil
}

// UpdateTaskProgress implements task.TaskStore.UpdateTaskProgress
func (s *PostgresTaskStore) UpdateTaskProgress(
	ctx context.Context,
	taskID uuid.UUID,
	progress int,
	currentStep string,
) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		UPDATE tasks
		SET progress = $1, current_step = $2, updated_at = $3
		WHERE id = $4
	`
	result, err := s.db.ExecContext(ctx, query, progress, currentStep, time.Now().UTC(), taskID)
	if err != nil {
		log.Error("failed to update task progress",
			slog.String("error", err.Error()),
			slog.String("task_id", taskID.String()))
		return MapError(err)
	}

	return CheckRowsAffected(result, "task")
}

// GetTaskByID implements task.TaskStore.GetTaskByID
// Returns store.ErrTaskNotFound if the task does not exist.
func (s *PostgresTaskStore) GetTaskByID(ctx context.Context, taskID uuid.UUID) (*task.TaskRecord, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`

	record, err := scanTask(s.db.QueryRowContext(ctx, query, taskID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("task not found", slog.String("task_id", taskID.String()))
			return nil, store.ErrTaskNotFound
		}
		log.Error("failed to get task by ID",
			slog.String("error", err.Error()),
			slog.String("task_id", taskID.String()))
		return nil, MapError(err)
	}

	return record, nil
}

// GetPendingTasks implements task.TaskStore.GetPendingTasks
// Returns pending tasks oldest first so recovery preserves submission order.
func (s *PostgresTaskStore) GetPendingTasks(ctx context.Context) ([]*task.TaskRecord, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE status = $1
		ORDER BY created_at ASC
	`
	return s.queryTasks(ctx, query, task.TaskStatusPending)
}

// GetProcessingTasks implements task.TaskStore.GetProcessingTasks
// Covers both "processing" and "retrying": a crash can strand a task in
// either state.
func (s *PostgresTaskStore) GetProcessingTasks(
	ctx context.Context,
	olderThan time.Duration,
) ([]*task.TaskRecord, error) {
	if olderThan > 0 {
		query := `
			SELECT ` + taskColumns + `
			FROM tasks
			WHERE status IN ($1, $2) AND updated_at < $3
			ORDER BY created_at ASC
		`
		cutoff := time.Now().UTC().Add(-olderThan)
		return s.queryTasks(ctx, query, task.TaskStatusProcessing, task.TaskStatusRetrying, cutoff)
	}

	query := `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE status IN ($1, $2)
		ORDER BY created_at ASC
	`
	return s.queryTasks(ctx, query, task.TaskStatusProcessing, task.TaskStatusRetrying)
}

// WithTx implements task.TaskStore.WithTx
// It returns a new TaskStore that uses the provided transaction.
func (s *PostgresTaskStore) WithTx(tx *sql.Tx) task.TaskStore {
	return &PostgresTaskStore{
		db:     tx,
		logger: s.logger,
	}
}

// queryTasks runs a multi-row task query and collects the records.
func (s *PostgresTaskStore) queryTasks(
	ctx context.Context,
	query string,
	args ...any,
) ([]*task.TaskRecord, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to query tasks", slog.String("error", err.Error()))
		return nil, MapError(err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			log.Error("failed to close rows", slog.String("error", err.Error()))
		}
	}()

	records := []*task.TaskRecord{}
	for rows.Next() {
		record, err := scanTask(rows)
		if err != nil {
			log.Error("failed to scan task row", slog.String("error", err.Error()))
			return nil, err
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		log.Error("error after scanning task rows", slog.String("error", err.Error()))
		return nil, err
	}

	return records, nil
}

// scanTask scans one task row into a TaskRecord.
func scanTask(row rowScanner) (*task.TaskRecord, error) {
	var record task.TaskRecord
	err := row.Scan(
		&record.ID,
		&record.Type,
		&record.Payload,
		&record.Status,
		&record.Progress,
		&record.CurrentStep,
		&record.ErrorMessage,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &record, nil
}
