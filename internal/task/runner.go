package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/storyfab/storyfab-api/internal/domain"
)

// ReviveFunc rebuilds an executable Task from its durable record. The runner
// uses it during boot recovery and when resetting stuck tasks.
type ReviveFunc func(record *TaskRecord) (Task, error)

// TaskRunnerConfig holds configuration for the task runner
type TaskRunnerConfig struct {
	// WorkerCount determines how many concurrent workers process tasks
	WorkerCount int

	// QueueSize determines the buffer size for the in-memory task queue
	QueueSize int

	// MaxAttempts bounds how many times one task is executed before it is
	// failed terminally. Only retryable errors trigger further attempts.
	MaxAttempts int

	// RetryDelay is the base delay between attempts; the actual delay is
	// jittered by up to ±50%.
	RetryDelay time.Duration

	// SoftTimeLimit is the per-attempt duration after which a warning is
	// logged. The attempt keeps running.
	SoftTimeLimit time.Duration

	// HardTimeLimit is the per-attempt duration after which the attempt's
	// context is cancelled. The resulting failure is retryable.
	HardTimeLimit time.Duration

	// StuckTaskAge defines how long a task can be in processing state
	// before it's considered stuck and reset
	StuckTaskAge time.Duration

	// StuckTaskCheckInterval defines how often to check for stuck tasks
	// If zero, defaults to 5 minutes
	StuckTaskCheckInterval time.Duration
}

// DefaultTaskRunnerConfig returns a TaskRunnerConfig with reasonable defaults
func DefaultTaskRunnerConfig() TaskRunnerConfig {
	return TaskRunnerConfig{
		WorkerCount:            2,
		QueueSize:              100,
		MaxAttempts:            3,
		RetryDelay:             5 * time.Second,
		SoftTimeLimit:          10 * time.Minute,
		HardTimeLimit:          20 * time.Minute,
		StuckTaskAge:           30 * time.Minute,
		StuckTaskCheckInterval: 5 * time.Minute,
	}
}

// TaskRunner manages background task processing: a worker pool draining the
// queue, the per-task retry and timeout policy, boot recovery and the stuck
// task monitor.
type TaskRunner struct {
	store      TaskStore
	queue      *TaskQueue
	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	config     TaskRunnerConfig
	logger     *slog.Logger
	hooks      Hooks
	reviver    ReviveFunc
	rng        *rand.Rand
	rngMu      sync.Mutex
}

// NewTaskRunner creates a new TaskRunner
func NewTaskRunner(store TaskStore, config TaskRunnerConfig, logger *slog.Logger) *TaskRunner {
	if config.StuckTaskCheckInterval == 0 {
		config.StuckTaskCheckInterval = 5 * time.Minute
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &TaskRunner{
		store:      store,
		queue:      NewTaskQueue(config.QueueSize, logger),
		ctx:        ctx,
		cancelFunc: cancel,
		config:     config,
		logger:     logger,
		hooks:      NopHooks{},
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetHooks installs the lifecycle hooks invoked on success, terminal failure
// and retry. Must be called before Start.
func (r *TaskRunner) SetHooks(hooks Hooks) {
	if hooks == nil {
		hooks = NopHooks{}
	}
	r.hooks = hooks
}

// SetReviver installs the function that rebuilds executable tasks from
// durable records. Must be called before Start for recovery to requeue work.
func (r *TaskRunner) SetReviver(reviver ReviveFunc) {
	r.reviver = reviver
}

// Submit adds a new task to the queue
func (r *TaskRunner) Submit(ctx context.Context, task Task) error {
	// Save task to database first
	if err := r.store.SaveTask(ctx, task); err != nil {
		return fmt.Errorf("failed to save task: %w", err)
	}

	if err := r.queue.Enqueue(task); err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	return nil
}

// Start initializes the worker pool and begins processing tasks
func (r *TaskRunner) Start() error {
	// Recover unfinished tasks from previous runs
	if err := r.Recover(); err != nil {
		return fmt.Errorf("failed to recover tasks: %w", err)
	}

	for i := 0; i < r.config.WorkerCount; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}

	r.wg.Add(1)
	go r.stuckTaskMonitor()

	return nil
}

// Stop gracefully shuts down the task runner
func (r *TaskRunner) Stop() {
	r.cancelFunc()
	r.wg.Wait()
	r.queue.Close()
}

// Recover loads any unfinished tasks from the database and requeues them.
// Tasks interrupted mid-flight are reset to pending; their pipeline is
// idempotent so a rerun converges instead of duplicating work.
func (r *TaskRunner) Recover() error {
	ctx := context.Background()

	pending, err := r.store.GetPendingTasks(ctx)
	if err != nil {
		return fmt.Errorf("failed to get pending tasks: %w", err)
	}

	// Tasks in "processing" or "retrying" were interrupted by a crash.
	interrupted, err := r.store.GetProcessingTasks(ctx, 0)
	if err != nil {
		return fmt.Errorf("failed to get processing tasks: %w", err)
	}

	r.logger.Info("recovering unfinished tasks",
		"pending_count", len(pending),
		"interrupted_count", len(interrupted))

	for _, record := range pending {
		r.requeueRecord(ctx, record)
	}

	for _, record := range interrupted {
		if err := r.store.UpdateTaskStatus(ctx, record.ID, TaskStatusPending, "reset after recovery"); err != nil {
			r.logger.Error("failed to reset interrupted task status",
				"task_id", record.ID,
				"task_type", record.Type,
				"error", err)
			continue
		}
		r.requeueRecord(ctx, record)
	}

	return nil
}

// requeueRecord revives a durable record into an executable task and
// enqueues it. Records that cannot be revived are failed terminally so they
// are not re-examined on every boot.
func (r *TaskRunner) requeueRecord(ctx context.Context, record *TaskRecord) {
	if r.reviver == nil {
		r.logger.Warn("no reviver installed, leaving task pending",
			"task_id", record.ID,
			"task_type", record.Type)
		return
	}

	task, err := r.reviver(record)
	if err != nil {
		r.logger.Error("failed to revive task, marking failed",
			"task_id", record.ID,
			"task_type", record.Type,
			"error", err)
		if updateErr := r.store.UpdateTaskStatus(ctx, record.ID, TaskStatusFailed,
			fmt.Sprintf("unrecoverable: %v", err)); updateErr != nil {
			r.logger.Error("failed to mark unrecoverable task as failed",
				"task_id", record.ID,
				"error", updateErr)
		}
		return
	}

	if err := r.queue.Enqueue(task); err != nil {
		r.logger.Error("failed to requeue task",
			"task_id", record.ID,
			"task_type", record.Type,
			"error", err)
	}
}

// worker processes tasks from the queue
func (r *TaskRunner) worker(id int) {
	defer r.wg.Done()

	r.logger.Debug("starting worker", "worker_id", id)

	for {
		select {
		case <-r.ctx.Done():
			r.logger.Debug("stopping worker", "worker_id", id)
			return

		case task, ok := <-r.queue.GetChannel():
			if !ok {
				r.logger.Debug("task channel closed, stopping worker", "worker_id", id)
				return
			}

			r.processTask(task, id)
		}
	}
}

// processTask runs a single task through the attempt loop: execute with time
// limits, retry on retryable errors up to MaxAttempts, then resolve a
// terminal status either way.
func (r *TaskRunner) processTask(task Task, workerID int) {
	ctx := context.Background()
	logger := r.logger.With(
		"task_id", task.ID(),
		"task_type", task.Type(),
		"worker_id", workerID,
	)

	if err := r.store.UpdateTaskStatus(ctx, task.ID(), TaskStatusProcessing, ""); err != nil {
		logger.Error("failed to update task status to processing", "error", err)
		return
	}

	var lastErr error
	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		logger.Info("processing task", "attempt", attempt, "max_attempts", r.config.MaxAttempts)

		lastErr = r.runAttempt(ctx, task, logger)
		if lastErr == nil {
			logger.Info("task completed successfully", "attempt", attempt)
			if err := r.store.UpdateTaskStatus(ctx, task.ID(), TaskStatusCompleted, ""); err != nil {
				logger.Error("failed to update task status to completed", "error", err)
			}
			r.hooks.OnSuccess(ctx, task)
			return
		}

		logger.Error("task attempt failed", "attempt", attempt, "error", lastErr)

		if !domain.IsRetryable(lastErr) {
			logger.Warn("non-retryable error, failing task immediately")
			break
		}
		if attempt == r.config.MaxAttempts {
			logger.Warn("maximum attempts reached", "max_attempts", r.config.MaxAttempts)
			break
		}

		delay := r.jitteredDelay()
		if err := r.store.UpdateTaskStatus(ctx, task.ID(), TaskStatusRetrying, lastErr.Error()); err != nil {
			logger.Error("failed to update task status to retrying", "error", err)
		}
		r.hooks.OnRetry(ctx, task, attempt, delay, lastErr)

		logger.Info("retrying task after delay", "delay", delay.String())
		select {
		case <-time.After(delay):
		case <-r.ctx.Done():
			logger.Warn("runner shutting down during retry delay, leaving task for recovery")
			return
		}

		if err := r.store.UpdateTaskStatus(ctx, task.ID(), TaskStatusProcessing, ""); err != nil {
			logger.Error("failed to update task status to processing", "error", err)
		}
	}

	if err := r.store.UpdateTaskStatus(ctx, task.ID(), TaskStatusFailed, lastErr.Error()); err != nil {
		logger.Error("failed to update task status to failed", "error", err)
	}
	r.hooks.OnFailure(ctx, task, lastErr)
}

// runAttempt executes the task once under the configured time limits.
// Exceeding the hard limit cancels the attempt's context and yields a
// retryable timeout error.
func (r *TaskRunner) runAttempt(parent context.Context, task Task, logger *slog.Logger) error {
	ctx := parent
	cancel := func() {}
	if r.config.HardTimeLimit > 0 {
		ctx, cancel = context.WithTimeout(parent, r.config.HardTimeLimit)
	}
	defer cancel()

	var softTimer *time.Timer
	if r.config.SoftTimeLimit > 0 {
		softTimer = time.AfterFunc(r.config.SoftTimeLimit, func() {
			logger.Warn("task exceeded soft time limit",
				"soft_limit", r.config.SoftTimeLimit.String())
		})
		defer softTimer.Stop()
	}

	err := task.Execute(ctx)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: hard time limit %s exceeded: %v",
			domain.ErrTimeout, r.config.HardTimeLimit, err)
	}
	return err
}

// jitteredDelay returns the base retry delay scaled by a random factor in
// [0.5, 1.5).
func (r *TaskRunner) jitteredDelay() time.Duration {
	base := r.config.RetryDelay
	if base <= 0 {
		base = 5 * time.Second
	}

	r.rngMu.Lock()
	factor := 0.5 + r.rng.Float64()
	r.rngMu.Unlock()

	return time.Duration(float64(base) * factor)
}

// stuckTaskMonitor periodically checks for tasks that have been in
// "processing" state for too long and resets them
func (r *TaskRunner) stuckTaskMonitor() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.StuckTaskCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return

		case <-ticker.C:
			ctx := context.Background()

			stuck, err := r.store.GetProcessingTasks(ctx, r.config.StuckTaskAge)
			if err != nil {
				r.logger.Error("failed to check for stuck tasks", "error", err)
				continue
			}

			if len(stuck) == 0 {
				continue
			}

			r.logger.Info("found stuck tasks", "count", len(stuck))

			for _, record := range stuck {
				if err := r.store.UpdateTaskStatus(ctx, record.ID, TaskStatusPending,
					"reset after being stuck in processing state"); err != nil {
					r.logger.Error("failed to reset stuck task status",
						"task_id", record.ID,
						"task_type", record.Type,
						"error", err)
					continue
				}
				r.requeueRecord(ctx, record)
			}
		}
	}
}
