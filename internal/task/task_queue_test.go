package task

import (
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func queueLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEnqueueAndConsume(t *testing.T) {
	t.Parallel()

	queue := NewTaskQueue(4, queueLogger())
	task := NewMockTask(uuid.New(), "mock", nil)

	require.NoError(t, queue.Enqueue(task))

	got := <-queue.GetChannel()
	assert.Equal(t, task.ID(), got.ID())
}

func TestEnqueueFullQueue(t *testing.T) {
	t.Parallel()

	queue := NewTaskQueue(1, queueLogger())
	require.NoError(t, queue.Enqueue(NewMockTask(uuid.New(), "mock", nil)))

	err := queue.Enqueue(NewMockTask(uuid.New(), "mock", nil))
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestEnqueueClosedQueue(t *testing.T) {
	t.Parallel()

	queue := NewTaskQueue(1, queueLogger())
	queue.Close()

	err := queue.Enqueue(NewMockTask(uuid.New(), "mock", nil))
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestCloseTwiceIsSafe(t *testing.T) {
	t.Parallel()

	queue := NewTaskQueue(1, queueLogger())
	queue.Close()
	queue.Close()
}
