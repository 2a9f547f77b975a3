package task

import (
	"context"

	"github.com/storyfab/storyfab-api/internal/domain"
	"github.com/storyfab/storyfab-api/internal/store"
)

// StoreBookDirectory adapts a store.BookStore to the narrow BookDirectory
// interface the pipeline and hooks consume.
type StoreBookDirectory struct {
	books store.BookStore
}

// NewStoreBookDirectory wraps the given book store.
func NewStoreBookDirectory(books store.BookStore) *StoreBookDirectory {
	return &StoreBookDirectory{books: books}
}

// Ensure StoreBookDirectory implements BookDirectory
var _ BookDirectory = (*StoreBookDirectory)(nil)

// GetBook implements BookDirectory.
func (d *StoreBookDirectory) GetBook(ctx context.Context, bookID int64) (*domain.Book, error) {
	return d.books.GetByID(ctx, bookID)
}

// UpdateBook implements BookDirectory.
func (d *StoreBookDirectory) UpdateBook(ctx context.Context, book *domain.Book) error {
	return d.books.Update(ctx, book)
}

// UpdateBookStatus implements BookDirectory.
func (d *StoreBookDirectory) UpdateBookStatus(ctx context.Context, bookID int64, status domain.BookStatus) error {
	return d.books.UpdateStatus(ctx, bookID, status)
}

// StorePageWriter adapts a store.PageStore to the pipeline's PageWriter.
type StorePageWriter struct {
	pages store.PageStore
}

// NewStorePageWriter wraps the given page store.
func NewStorePageWriter(pages store.PageStore) *StorePageWriter {
	return &StorePageWriter{pages: pages}
}

// Ensure StorePageWriter implements PageWriter
var _ PageWriter = (*StorePageWriter)(nil)

// UpsertPage implements PageWriter.
func (w *StorePageWriter) UpsertPage(ctx context.Context, page *domain.Page) error {
	return w.pages.UpsertByNumber(ctx, page)
}

// StoreUserDirectory adapts a store.UserStore to the pipeline's UserDirectory.
type StoreUserDirectory struct {
	users store.UserStore
}

// NewStoreUserDirectory wraps the given user store.
func NewStoreUserDirectory(users store.UserStore) *StoreUserDirectory {
	return &StoreUserDirectory{users: users}
}

// Ensure StoreUserDirectory implements UserDirectory
var _ UserDirectory = (*StoreUserDirectory)(nil)

// GetUser implements UserDirectory.
func (d *StoreUserDirectory) GetUser(ctx context.Context, userID int64) (*domain.User, error) {
	return d.users.GetByID(ctx, userID)
}
