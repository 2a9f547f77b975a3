package events

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	events []*TaskRequestEvent
	err    error
}

func (h *recordingHandler) HandleEvent(_ context.Context, event *TaskRequestEvent) error {
	h.events = append(h.events, event)
	return h.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewTaskRequestEvent(t *testing.T) {
	t.Parallel()

	event, err := NewTaskRequestEvent("book_generation", map[string]int64{"book_id": 42})
	require.NoError(t, err)

	assert.NotEqual(t, event.ID.String(), "00000000-0000-0000-0000-000000000000")
	assert.Equal(t, "book_generation", event.Type)
	assert.False(t, event.CreatedAt.IsZero())

	var payload struct {
		BookID int64 `json:"book_id"`
	}
	require.NoError(t, event.UnmarshalPayload(&payload))
	assert.Equal(t, int64(42), payload.BookID)
}

func TestEmitEventDeliversToAllHandlers(t *testing.T) {
	t.Parallel()

	emitter := NewInMemoryEventEmitter(testLogger())
	first := &recordingHandler{}
	second := &recordingHandler{}
	emitter.RegisterHandler(first)
	emitter.RegisterHandler(second)

	event, err := NewTaskRequestEvent("book_generation", map[string]int64{"book_id": 1})
	require.NoError(t, err)

	require.NoError(t, emitter.EmitEvent(context.Background(), event))
	assert.Len(t, first.events, 1)
	assert.Len(t, second.events, 1)
}

func TestEmitEventContinuesPastFailingHandler(t *testing.T) {
	t.Parallel()

	emitter := NewInMemoryEventEmitter(testLogger())
	failing := &recordingHandler{err: errors.New("handler exploded")}
	healthy := &recordingHandler{}
	emitter.RegisterHandler(failing)
	emitter.RegisterHandler(healthy)

	event, err := NewTaskRequestEvent("book_generation", map[string]int64{"book_id": 2})
	require.NoError(t, err)

	err = emitter.EmitEvent(context.Background(), event)
	assert.EqualError(t, err, "handler exploded")
	assert.Len(t, healthy.events, 1, "later handlers still receive the event")
}

func TestEmitEventNoHandlers(t *testing.T) {
	t.Parallel()

	emitter := NewInMemoryEventEmitter(testLogger())

	event, err := NewTaskRequestEvent("book_generation", nil)
	require.NoError(t, err)

	assert.NoError(t, emitter.EmitEvent(context.Background(), event))
}
