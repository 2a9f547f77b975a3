package notification

import (
	"context"
	"sync"
	"testing"

	"github.com/storyfab/storyfab-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingEmailSender struct {
	mu       sync.Mutex
	subjects []string
	bodies   []string
}

func (s *recordingEmailSender) Send(_ context.Context, _, subject, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subjects = append(s.subjects, subject)
	s.bodies = append(s.bodies, body)
	return nil
}

func TestNotifyGenerationComplete(t *testing.T) {
	t.Parallel()

	registry := testRegistry()
	ch := newFakeChannel()
	registry.Register(1, ch)
	email := &recordingEmailSender{}
	notifier := NewNotifier(registry, email, nil)

	user := &domain.User{ID: 1, Email: "reader@example.com"}
	book := &domain.Book{ID: 10, UserID: 1, Title: "The Brave Fox"}

	notifier.NotifyGenerationComplete(context.Background(), user, book, "task-abc")

	require.Equal(t, 1, ch.delivered())
	event := ch.events[0]
	assert.Equal(t, EventTypeGenerationUpdate, event.Type)
	require.NotNil(t, event.Data)
	assert.Equal(t, int64(10), event.Data.BookID)
	assert.Equal(t, "task-abc", event.Data.TaskID)
	assert.Equal(t, "completed", event.Data.Status)
	assert.Equal(t, 100, event.Data.Progress)
	assert.Positive(t, event.Timestamp)

	require.Len(t, email.subjects, 1)
	assert.Equal(t, "Book generation complete", email.subjects[0])
	assert.Contains(t, email.bodies[0], "The Brave Fox")
}

func TestNotifyGenerationFailed(t *testing.T) {
	t.Parallel()

	registry := testRegistry()
	ch := newFakeChannel()
	registry.Register(2, ch)
	email := &recordingEmailSender{}
	notifier := NewNotifier(registry, email, nil)

	user := &domain.User{ID: 2, Email: "reader@example.com"}
	book := &domain.Book{ID: 11, UserID: 2, Title: "Lost at Sea"}

	notifier.NotifyGenerationFailed(context.Background(), user, book, "task-xyz", 40, "text generation failed")

	require.Equal(t, 1, ch.delivered())
	event := ch.events[0]
	require.NotNil(t, event.Data)
	assert.Equal(t, "failed", event.Data.Status)
	assert.Equal(t, 40, event.Data.Progress, "progress sticks at the last checkpoint")
	assert.Contains(t, event.Data.Message, "text generation failed")

	require.Len(t, email.subjects, 1)
	assert.Equal(t, "Book generation failed", email.subjects[0])
}

func TestNotifyWithoutOpenChannelStillEmails(t *testing.T) {
	t.Parallel()

	registry := testRegistry()
	email := &recordingEmailSender{}
	notifier := NewNotifier(registry, email, nil)

	user := &domain.User{ID: 3, Email: "offline@example.com"}
	book := &domain.Book{ID: 12, UserID: 3, Title: "Quiet Night"}

	notifier.NotifyGenerationComplete(context.Background(), user, book, "task-1")
	assert.Len(t, email.subjects, 1)
}
