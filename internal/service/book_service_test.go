package service

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/storyfab/storyfab-api/internal/domain"
	"github.com/storyfab/storyfab-api/internal/events"
	"github.com/storyfab/storyfab-api/internal/store"
	"github.com/storyfab/storyfab-api/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- fakes ------------------------------------------------------------------

type stubBookStore struct {
	mu              sync.Mutex
	nextID          int64
	books           map[int64]*domain.Book
	updateStatusErr error
}

func newStubBookStore(books ...*domain.Book) *stubBookStore {
	s := &stubBookStore{books: make(map[int64]*domain.Book), nextID: 100}
	for _, b := range books {
		copied := *b
		s.books[b.ID] = &copied
	}
	return s
}

func (s *stubBookStore) Create(_ context.Context, book *domain.Book) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	book.ID = s.nextID
	copied := *book
	s.books[book.ID] = &copied
	return nil
}

func (s *stubBookStore) GetByID(_ context.Context, id int64) (*domain.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	book, ok := s.books[id]
	if !ok {
		return nil, store.ErrBookNotFound
	}
	copied := *book
	return &copied, nil
}

func (s *stubBookStore) Update(_ context.Context, book *domain.Book) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.books[book.ID]; !ok {
		return store.ErrBookNotFound
	}
	copied := *book
	s.books[book.ID] = &copied
	return nil
}

func (s *stubBookStore) UpdateStatus(_ context.Context, id int64, status domain.BookStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateStatusErr != nil {
		return s.updateStatusErr
	}
	book, ok := s.books[id]
	if !ok {
		return store.ErrBookNotFound
	}
	if err := domain.ValidateTransition(book.Status, status); err != nil {
		return err
	}
	book.Status = status
	return nil
}

func (s *stubBookStore) status(id int64) domain.BookStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.books[id].Status
}

func (s *stubBookStore) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.books[id]; !ok {
		return store.ErrBookNotFound
	}
	delete(s.books, id)
	return nil
}

func (s *stubBookStore) FindByUser(_ context.Context, userID int64, _, _ int) ([]*domain.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*domain.Book{}
	for _, book := range s.books {
		if book.UserID == userID {
			copied := *book
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *stubBookStore) CountByUser(_ context.Context, userID int64) (int, error) {
	books, _ := s.FindByUser(context.Background(), userID, 0, 0)
	return len(books), nil
}

func (s *stubBookStore) FindByStatusOlderThan(
	_ context.Context,
	_ domain.BookStatus,
	_ time.Time,
) ([]*domain.Book, error) {
	return nil, nil
}

func (s *stubBookStore) WithTx(_ *sql.Tx) store.BookStore { return s }

type stubPageStore struct {
	pages []*domain.Page
}

func (s *stubPageStore) UpsertByNumber(_ context.Context, _ *domain.Page) error { return nil }
func (s *stubPageStore) FindByBookID(_ context.Context, _ int64) ([]*domain.Page, error) {
	return s.pages, nil
}
func (s *stubPageStore) DeleteByBookID(_ context.Context, _ int64) error { return nil }
func (s *stubPageStore) WithTx(_ *sql.Tx) store.PageStore                { return s }

type stubUserStore struct {
	users map[int64]*domain.User
}

func newStubUserStore(users ...*domain.User) *stubUserStore {
	s := &stubUserStore{users: make(map[int64]*domain.User)}
	for _, u := range users {
		s.users[u.ID] = u
	}
	return s
}

func (s *stubUserStore) Create(_ context.Context, _ *domain.User) error { return nil }
func (s *stubUserStore) GetByID(_ context.Context, id int64) (*domain.User, error) {
	user, ok := s.users[id]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	return user, nil
}
func (s *stubUserStore) GetByEmail(_ context.Context, _ string) (*domain.User, error) {
	return nil, store.ErrUserNotFound
}
func (s *stubUserStore) WithTx(_ *sql.Tx) store.UserStore { return s }

type recordingEmitter struct {
	mu     sync.Mutex
	events []*events.TaskRequestEvent
	err    error
}

func (e *recordingEmitter) EmitEvent(_ context.Context, event *events.TaskRequestEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return e.err
	}
	e.events = append(e.events, event)
	return nil
}

// --- fixture ----------------------------------------------------------------

type serviceFixture struct {
	books   *stubBookStore
	pages   *stubPageStore
	users   *stubUserStore
	tasks   *task.MockTaskStore
	emitter *recordingEmitter
	svc     BookService
}

func newServiceFixture(t *testing.T, books ...*domain.Book) *serviceFixture {
	t.Helper()

	f := &serviceFixture{
		books: newStubBookStore(books...),
		pages: &stubPageStore{},
		users: newStubUserStore(&domain.User{
			ID:       1,
			Email:    "owner@example.com",
			MaxBooks: 3,
		}),
		tasks:   task.NewMockTaskStore(),
		emitter: &recordingEmitter{},
	}

	svc, err := NewBookService(f.books, f.pages, f.users, f.tasks, f.emitter, nil)
	require.NoError(t, err)
	f.svc = svc
	return f
}

func draftBook(id, userID int64) *domain.Book {
	return &domain.Book{
		ID:        id,
		UserID:    userID,
		Title:     "A Tale",
		PageCount: 5,
		Style:     domain.BookStyleCartoon,
		Status:    domain.BookStatusDraft,
	}
}

// --- tests ------------------------------------------------------------------

func TestCreateBook(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)

	book, err := f.svc.CreateBook(context.Background(), 1, "The Brave Fox", "", 5, domain.BookStyleCartoon)
	require.NoError(t, err)
	assert.NotZero(t, book.ID)
	assert.Equal(t, domain.BookStatusDraft, book.Status)
}

func TestCreateBookEnforcesQuota(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t,
		draftBook(1, 1), draftBook(2, 1), draftBook(3, 1))

	_, err := f.svc.CreateBook(context.Background(), 1, "One Too Many", "", 5, domain.BookStyleCartoon)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrBusinessRule)
}

func TestCreateBookValidatesAttributes(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)

	_, err := f.svc.CreateBook(context.Background(), 1, "Too Long", "", 50, domain.BookStyleCartoon)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrBusinessRule)
}

func TestGetBookChecksOwnership(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t, draftBook(10, 2))

	_, err := f.svc.GetBook(context.Background(), 1, 10)
	assert.ErrorIs(t, err, ErrNotOwned)
}

func TestGetBookNotFound(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)

	_, err := f.svc.GetBook(context.Background(), 1, 404)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUpdateBookOnlyWhenEditable(t *testing.T) {
	t.Parallel()

	processing := draftBook(10, 1)
	processing.Status = domain.BookStatusProcessing
	f := newServiceFixture(t, processing)

	title := "New Title"
	_, err := f.svc.UpdateBook(context.Background(), 1, 10, BookUpdate{Title: &title})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrBusinessRule)
}

func TestUpdateBookAppliesPartialUpdate(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t, draftBook(10, 1))

	pageCount := 8
	book, err := f.svc.UpdateBook(context.Background(), 1, 10, BookUpdate{PageCount: &pageCount})
	require.NoError(t, err)
	assert.Equal(t, 8, book.PageCount)
	assert.Equal(t, "A Tale", book.Title, "unset fields keep their value")
}

func TestDeleteBookRejectedWhileProcessing(t *testing.T) {
	t.Parallel()

	processing := draftBook(10, 1)
	processing.Status = domain.BookStatusProcessing
	f := newServiceFixture(t, processing)

	err := f.svc.DeleteBook(context.Background(), 1, 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrBusinessRule)
}

func TestStartGenerationEmitsEventWithTaskID(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t, draftBook(10, 1))

	started, err := f.svc.StartGeneration(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(10), started.BookID)
	assert.Equal(t, string(domain.BookStatusProcessing), started.Status)
	require.NotEmpty(t, started.TaskID)
	assert.Equal(t, domain.BookStatusProcessing, f.books.status(10),
		"dispatch claims the book before the job is queued")

	require.Len(t, f.emitter.events, 1)
	event := f.emitter.events[0]
	assert.Equal(t, task.TaskTypeBookGeneration, event.Type)

	var payload generationPayload
	require.NoError(t, event.UnmarshalPayload(&payload))
	assert.Equal(t, started.TaskID, payload.TaskID)
	assert.Equal(t, int64(10), payload.BookID)
	assert.Equal(t, int64(1), payload.UserID)
}

func TestStartGenerationRejectsActiveAndCompletedBooks(t *testing.T) {
	t.Parallel()

	for _, status := range []domain.BookStatus{domain.BookStatusProcessing, domain.BookStatusCompleted} {
		book := draftBook(10, 1)
		book.Status = status
		f := newServiceFixture(t, book)

		_, err := f.svc.StartGeneration(context.Background(), 1, 10)
		require.Error(t, err, "status %s", status)
		assert.ErrorIs(t, err, domain.ErrBusinessRule)
		assert.Empty(t, f.emitter.events)
	}
}

func TestStartGenerationAllowedFromFailed(t *testing.T) {
	t.Parallel()

	failed := draftBook(10, 1)
	failed.Status = domain.BookStatusFailed
	f := newServiceFixture(t, failed)

	_, err := f.svc.StartGeneration(context.Background(), 1, 10)
	assert.NoError(t, err)
	assert.Equal(t, domain.BookStatusProcessing, f.books.status(10))
}

func TestStartGenerationRejectsDoubleDispatch(t *testing.T) {
	t.Parallel()

	// Two dispatches before any worker picks the job up: the first claims
	// the book, the second must be turned away with a single job enqueued.
	f := newServiceFixture(t, draftBook(10, 1))

	_, err := f.svc.StartGeneration(context.Background(), 1, 10)
	require.NoError(t, err)

	_, err = f.svc.StartGeneration(context.Background(), 1, 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrBusinessRule)

	assert.Len(t, f.emitter.events, 1, "only one job may be enqueued per book")
	assert.Equal(t, domain.BookStatusProcessing, f.books.status(10))
}

func TestStartGenerationLostClaimRaceRejected(t *testing.T) {
	t.Parallel()

	// The editable check passed but the conditional status write lost a
	// race with a concurrent dispatch; no event may be emitted.
	f := newServiceFixture(t, draftBook(10, 1))
	f.books.updateStatusErr = store.ErrUpdateFailed

	_, err := f.svc.StartGeneration(context.Background(), 1, 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrBusinessRule)
	assert.Empty(t, f.emitter.events)
}

func TestStartGenerationReleasesClaimWhenDispatchFails(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t, draftBook(10, 1))
	f.emitter.err = errors.New("queue unavailable")

	_, err := f.svc.StartGeneration(context.Background(), 1, 10)
	require.Error(t, err)
	assert.Equal(t, domain.BookStatusDraft, f.books.status(10),
		"a failed dispatch hands the book back")
}

func TestGetGenerationStatus(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t, draftBook(10, 1))

	started, err := f.svc.StartGeneration(context.Background(), 1, 10)
	require.NoError(t, err)
	taskID := uuid.MustParse(started.TaskID)

	// Simulate the runner having persisted the record.
	generated := task.NewMockTask(taskID, task.TaskTypeBookGeneration, []byte(`{"book_id":10,"user_id":1}`))
	require.NoError(t, f.tasks.SaveTask(context.Background(), generated))
	require.NoError(t, f.tasks.UpdateTaskStatus(context.Background(), taskID, task.TaskStatusProcessing, ""))
	require.NoError(t, f.tasks.UpdateTaskProgress(context.Background(), taskID, 40, "text_generation"))

	status, err := f.svc.GetGenerationStatus(context.Background(), 1, taskID)
	require.NoError(t, err)
	assert.Equal(t, started.TaskID, status.TaskID)
	assert.Equal(t, int64(10), status.BookID)
	assert.Equal(t, "processing", status.Status)
	assert.Equal(t, 40, status.Progress)
	assert.Equal(t, "text_generation", status.CurrentStep)
}

func TestGetGenerationStatusChecksOwnership(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t, draftBook(10, 1))

	taskID := uuid.New()
	generated := task.NewMockTask(taskID, task.TaskTypeBookGeneration, []byte(`{"book_id":10,"user_id":1}`))
	require.NoError(t, f.tasks.SaveTask(context.Background(), generated))

	_, err := f.svc.GetGenerationStatus(context.Background(), 2, taskID)
	assert.ErrorIs(t, err, ErrNotOwned)
}

func TestGetGenerationStatusUnknownTask(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)

	_, err := f.svc.GetGenerationStatus(context.Background(), 1, uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
