package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/storyfab/storyfab-api/internal/api/shared"
	"github.com/storyfab/storyfab-api/internal/domain"
	"github.com/storyfab/storyfab-api/internal/service"
)

// Default pagination bounds for the book list endpoint.
const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// BookHandler handles book-related API requests.
type BookHandler struct {
	books     service.BookService
	validator *validator.Validate
}

// NewBookHandler creates a new BookHandler with the given dependencies.
func NewBookHandler(books service.BookService) *BookHandler {
	return &BookHandler{
		books:     books,
		validator: validator.New(),
	}
}

// Create handles POST /books.
func (h *BookHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := shared.UserID(r.Context())
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req CreateBookRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	book, err := h.books.CreateBook(r.Context(), userID,
		req.Title, req.Description, req.PageCount, domain.BookStyle(req.Style))
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusCreated, book)
}

// List handles GET /books.
func (h *BookHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := shared.UserID(r.Context())
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}

	limit := queryInt(r, "limit", defaultListLimit)
	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	books, total, err := h.books.ListBooks(r.Context(), userID, limit, offset)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, BookListResponse{
		Books:  books,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

// Get handles GET /books/{bookID}, returning the book and its pages.
func (h *BookHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, bookID, ok := h.userAndBookID(w, r)
	if !ok {
		return
	}

	book, err := h.books.GetBook(r.Context(), userID, bookID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	pages, err := h.books.GetBookPages(r.Context(), userID, bookID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, BookDetailResponse{
		Book:  book,
		Pages: pages,
	})
}

// Update handles PUT /books/{bookID}.
func (h *BookHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, bookID, ok := h.userAndBookID(w, r)
	if !ok {
		return
	}

	var req UpdateBookRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	update := service.BookUpdate{
		Title:       req.Title,
		Description: req.Description,
		PageCount:   req.PageCount,
	}
	if req.Style != nil {
		style := domain.BookStyle(*req.Style)
		update.Style = &style
	}

	book, err := h.books.UpdateBook(r.Context(), userID, bookID, update)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, book)
}

// Delete handles DELETE /books/{bookID}.
func (h *BookHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, bookID, ok := h.userAndBookID(w, r)
	if !ok {
		return
	}

	if err := h.books.DeleteBook(r.Context(), userID, bookID); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Generate handles POST /books/{bookID}/generate.
func (h *BookHandler) Generate(w http.ResponseWriter, r *http.Request) {
	userID, bookID, ok := h.userAndBookID(w, r)
	if !ok {
		return
	}

	started, err := h.books.StartGeneration(r.Context(), userID, bookID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusAccepted, started)
}

// GenerationStatus handles GET /books/generation-status/{taskID}.
func (h *BookHandler) GenerationStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := shared.UserID(r.Context())
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}

	taskID, err := uuid.Parse(chi.URLParam(r, "taskID"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid task ID")
		return
	}

	status, err := h.books.GetGenerationStatus(r.Context(), userID, taskID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, status)
}

// userAndBookID extracts the authenticated user and the bookID path
// parameter, writing an error response when either is missing.
func (h *BookHandler) userAndBookID(w http.ResponseWriter, r *http.Request) (int64, int64, bool) {
	userID, ok := shared.UserID(r.Context())
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Authentication required")
		return 0, 0, false
	}

	bookID, err := strconv.ParseInt(chi.URLParam(r, "bookID"), 10, 64)
	if err != nil || bookID <= 0 {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid book ID")
		return 0, 0, false
	}

	return userID, bookID, true
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
