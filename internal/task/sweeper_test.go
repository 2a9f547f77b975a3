package task

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/storyfab/storyfab-api/internal/domain"
	"github.com/storyfab/storyfab-api/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memBookStore is an in-memory store.BookStore for sweeper tests.
type memBookStore struct {
	mu    sync.Mutex
	books map[int64]*domain.Book
}

func newMemBookStore(books ...*domain.Book) *memBookStore {
	s := &memBookStore{books: make(map[int64]*domain.Book)}
	for _, b := range books {
		copied := *b
		s.books[b.ID] = &copied
	}
	return s
}

func (s *memBookStore) Create(_ context.Context, book *domain.Book) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *book
	s.books[book.ID] = &copied
	return nil
}

func (s *memBookStore) GetByID(_ context.Context, id int64) (*domain.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	book, ok := s.books[id]
	if !ok {
		return nil, store.ErrBookNotFound
	}
	copied := *book
	return &copied, nil
}

func (s *memBookStore) Update(_ context.Context, book *domain.Book) error {
	return s.Create(context.Background(), book)
}

func (s *memBookStore) UpdateStatus(_ context.Context, id int64, status domain.BookStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	book, ok := s.books[id]
	if !ok {
		return store.ErrBookNotFound
	}
	book.Status = status
	return nil
}

func (s *memBookStore) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.books[id]; !ok {
		return store.ErrBookNotFound
	}
	delete(s.books, id)
	return nil
}

func (s *memBookStore) FindByUser(_ context.Context, userID int64, _, _ int) ([]*domain.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Book
	for _, book := range s.books {
		if book.UserID == userID {
			copied := *book
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *memBookStore) CountByUser(_ context.Context, userID int64) (int, error) {
	books, _ := s.FindByUser(context.Background(), userID, 0, 0)
	return len(books), nil
}

func (s *memBookStore) FindByStatusOlderThan(
	_ context.Context,
	status domain.BookStatus,
	cutoff time.Time,
) ([]*domain.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Book
	for _, book := range s.books {
		if book.Status == status && book.UpdatedAt.Before(cutoff) {
			copied := *book
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *memBookStore) WithTx(_ *sql.Tx) store.BookStore { return s }

func (s *memBookStore) has(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.books[id]
	return ok
}

// memPageStore is an in-memory store.PageStore for sweeper tests.
type memPageStore struct {
	mu    sync.Mutex
	pages map[int64][]*domain.Page
}

func newMemPageStore() *memPageStore {
	return &memPageStore{pages: make(map[int64][]*domain.Page)}
}

func (s *memPageStore) UpsertByNumber(_ context.Context, page *domain.Page) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *page
	s.pages[page.BookID] = append(s.pages[page.BookID], &copied)
	return nil
}

func (s *memPageStore) FindByBookID(_ context.Context, bookID int64) ([]*domain.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*domain.Page(nil), s.pages[bookID]...), nil
}

func (s *memPageStore) DeleteByBookID(_ context.Context, bookID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pages, bookID)
	return nil
}

func (s *memPageStore) WithTx(_ *sql.Tx) store.PageStore { return s }

var (
	_ store.BookStore = (*memBookStore)(nil)
	_ store.PageStore = (*memPageStore)(nil)
)

func staleBook(id int64, status domain.BookStatus, age time.Duration) *domain.Book {
	return &domain.Book{
		ID:        id,
		UserID:    1,
		Title:     "stale",
		PageCount: 5,
		Style:     domain.BookStyleCartoon,
		Status:    status,
		UpdatedAt: time.Now().UTC().Add(-age),
	}
}

func TestSweepReclaimsOldFailedBooks(t *testing.T) {
	t.Parallel()

	old := staleBook(1, domain.BookStatusFailed, 48*time.Hour)
	old.CoverImage = "books/1/page_1.png"
	books := newMemBookStore(old)

	pages := newMemPageStore()
	require.NoError(t, pages.UpsertByNumber(context.Background(), &domain.Page{
		BookID: 1, PageNumber: 1, ImageRef: "books/1/page_1.png",
	}))
	require.NoError(t, pages.UpsertByNumber(context.Background(), &domain.Page{
		BookID: 1, PageNumber: 2,
	}))

	artifacts := newFakeStorage()
	artifacts.uploads["books/1/page_1.png"] = []byte("png")

	sweeper, err := NewSweeper(books, pages, artifacts, time.Hour, 24*time.Hour, queueLogger())
	require.NoError(t, err)

	require.NoError(t, sweeper.Sweep(context.Background()))

	assert.False(t, books.has(1), "stale failed book deleted")
	assert.Empty(t, artifacts.uploads, "stored artifacts removed")
	assert.Contains(t, artifacts.deletes, "books/1/page_1.png")
}

func TestSweepLeavesRecentAndActiveBooksAlone(t *testing.T) {
	t.Parallel()

	books := newMemBookStore(
		staleBook(1, domain.BookStatusFailed, time.Hour),        // failed but young
		staleBook(2, domain.BookStatusProcessing, 48*time.Hour), // old but active
		staleBook(3, domain.BookStatusCompleted, 48*time.Hour),  // old but completed
	)

	sweeper, err := NewSweeper(books, newMemPageStore(), newFakeStorage(), time.Hour, 24*time.Hour, queueLogger())
	require.NoError(t, err)

	require.NoError(t, sweeper.Sweep(context.Background()))

	assert.True(t, books.has(1))
	assert.True(t, books.has(2))
	assert.True(t, books.has(3))
}

func TestSweepIsIdempotent(t *testing.T) {
	t.Parallel()

	books := newMemBookStore(staleBook(1, domain.BookStatusFailed, 48*time.Hour))
	sweeper, err := NewSweeper(books, newMemPageStore(), newFakeStorage(), time.Hour, 24*time.Hour, queueLogger())
	require.NoError(t, err)

	require.NoError(t, sweeper.Sweep(context.Background()))
	require.NoError(t, sweeper.Sweep(context.Background()))
	assert.False(t, books.has(1))
}

func TestNewSweeperRejectsBadDurations(t *testing.T) {
	t.Parallel()

	_, err := NewSweeper(newMemBookStore(), newMemPageStore(), newFakeStorage(), 0, time.Hour, queueLogger())
	assert.Error(t, err)

	_, err = NewSweeper(newMemBookStore(), newMemPageStore(), newFakeStorage(), time.Hour, -time.Minute, queueLogger())
	assert.Error(t, err)
}
