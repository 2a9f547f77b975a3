package task

import (
	"context"
	"time"
)

// Hooks receives lifecycle callbacks from the runner as a job moves through
// its attempts. Implementations compose concerns (logging, push
// notifications) without the runner knowing about any of them.
type Hooks interface {
	// OnSuccess fires after the task completed and its durable record was
	// marked completed.
	OnSuccess(ctx context.Context, t Task)

	// OnFailure fires after the task failed terminally: either a
	// non-retryable error or the last allowed attempt.
	OnFailure(ctx context.Context, t Task, err error)

	// OnRetry fires before the runner sleeps ahead of the next attempt.
	// attempt is the 1-based number of the attempt that just failed.
	OnRetry(ctx context.Context, t Task, attempt int, delay time.Duration, err error)
}

// NopHooks is a Hooks implementation that does nothing.
type NopHooks struct{}

func (NopHooks) OnSuccess(context.Context, Task)                          {}
func (NopHooks) OnFailure(context.Context, Task, error)                   {}
func (NopHooks) OnRetry(context.Context, Task, int, time.Duration, error) {}

var _ Hooks = NopHooks{}

// MultiHooks fans lifecycle callbacks out to several Hooks in order.
type MultiHooks []Hooks

func (m MultiHooks) OnSuccess(ctx context.Context, t Task) {
	for _, h := range m {
		h.OnSuccess(ctx, t)
	}
}

func (m MultiHooks) OnFailure(ctx context.Context, t Task, err error) {
	for _, h := range m {
		h.OnFailure(ctx, t, err)
	}
}

func (m MultiHooks) OnRetry(ctx context.Context, t Task, attempt int, delay time.Duration, err error) {
	for _, h := range m {
		h.OnRetry(ctx, t, attempt, delay, err)
	}
}

var _ Hooks = MultiHooks(nil)
