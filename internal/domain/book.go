package domain

import (
	"fmt"
	"strings"
	"time"
)

// BookStatus represents the lifecycle state of a book.
type BookStatus string

// Possible book status values.
const (
	BookStatusDraft      BookStatus = "draft"
	BookStatusProcessing BookStatus = "processing"
	BookStatusCompleted  BookStatus = "completed"
	BookStatusFailed     BookStatus = "failed"
)

// BookStyle represents the illustration style used for generation.
type BookStyle string

// Available book styles.
const (
	BookStyleCartoon   BookStyle = "cartoon"
	BookStyleRealistic BookStyle = "realistic"
	BookStyleManga     BookStyle = "manga"
	BookStyleClassic   BookStyle = "classic"
)

// Validation limits for book attributes.
const (
	MinTitleLength       = 3
	MaxTitleLength       = 200
	MaxDescriptionLength = 1000
	MinPageCount         = 5
	MaxPageCount         = 20
)

// statusTransitions is the single source of truth for legal status changes.
// Completed books may be reprocessed; failed books may be edited (back to
// draft) or retried (back to processing).
var statusTransitions = map[BookStatus][]BookStatus{
	BookStatusDraft:      {BookStatusProcessing, BookStatusFailed},
	BookStatusProcessing: {BookStatusCompleted, BookStatusFailed, BookStatusDraft},
	BookStatusCompleted:  {BookStatusProcessing},
	BookStatusFailed:     {BookStatusDraft, BookStatusProcessing},
}

// AllowedTransitions returns the statuses reachable from current.
func AllowedTransitions(current BookStatus) []BookStatus {
	return statusTransitions[current]
}

// CanTransition reports whether current -> next is a legal status change.
func CanTransition(current, next BookStatus) bool {
	for _, allowed := range statusTransitions[current] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ValidateTransition checks current -> next against the transition table and
// returns a BusinessRuleError naming the disallowed pair and the allowed set.
func ValidateTransition(current, next BookStatus) error {
	if !isValidBookStatus(next) {
		return NewValidationError("status", fmt.Sprintf("invalid status %q", next))
	}
	if !CanTransition(current, next) {
		allowed := make([]string, 0, len(statusTransitions[current]))
		for _, s := range statusTransitions[current] {
			allowed = append(allowed, string(s))
		}
		return &BusinessRuleError{
			Rule:    "book_status_transition",
			Message: fmt.Sprintf("invalid status transition: %s -> %s", current, next),
			Allowed: allowed,
		}
	}
	return nil
}

// Book represents a generated multi-page book and its lifecycle state.
// Status is never mutated directly; all changes go through TransitionTo.
type Book struct {
	ID          int64      `json:"id"`
	UserID      int64      `json:"user_id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	PageCount   int        `json:"page_count"`
	Style       BookStyle  `json:"style"`
	Status      BookStatus `json:"status"`
	CoverImage  string     `json:"cover_image,omitempty"`
	PDFFile     string     `json:"pdf_file,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// NewBook creates a draft book owned by userID. Returns a validation error if
// any attribute is out of range.
func NewBook(userID int64, title, description string, pageCount int, style BookStyle) (*Book, error) {
	now := time.Now().UTC()
	book := &Book{
		UserID:      userID,
		Title:       strings.TrimSpace(title),
		Description: strings.TrimSpace(description),
		PageCount:   pageCount,
		Style:       style,
		Status:      BookStatusDraft,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := book.Validate(); err != nil {
		return nil, err
	}

	return book, nil
}

// Validate checks all book attributes. Attribute validation is independent of
// the status state machine and applies on every write.
func (b *Book) Validate() error {
	if b.UserID <= 0 {
		return NewValidationError("user_id", "owner is required")
	}

	title := strings.TrimSpace(b.Title)
	if len(title) < MinTitleLength {
		return NewValidationError("title",
			fmt.Sprintf("title must have at least %d characters", MinTitleLength))
	}
	if len(title) > MaxTitleLength {
		return NewValidationError("title",
			fmt.Sprintf("title must have at most %d characters", MaxTitleLength))
	}

	if len(b.Description) > MaxDescriptionLength {
		return NewValidationError("description",
			fmt.Sprintf("description must have at most %d characters", MaxDescriptionLength))
	}

	if b.PageCount < MinPageCount || b.PageCount > MaxPageCount {
		return &BusinessRuleError{
			Rule: "book_page_limit",
			Message: fmt.Sprintf("books must have between %d and %d pages, got %d",
				MinPageCount, MaxPageCount, b.PageCount),
		}
	}

	if !isValidBookStyle(b.Style) {
		return NewValidationError("style", fmt.Sprintf("invalid style %q", b.Style))
	}

	if !isValidBookStatus(b.Status) {
		return NewValidationError("status", fmt.Sprintf("invalid status %q", b.Status))
	}

	return nil
}

// TransitionTo moves the book to next, validating the change against the
// transition table. Illegal pairs are rejected, never silently coerced.
func (b *Book) TransitionTo(next BookStatus) error {
	if err := ValidateTransition(b.Status, next); err != nil {
		return err
	}
	b.Status = next
	b.UpdatedAt = time.Now().UTC()
	return nil
}

// IsEditable reports whether attributes (title, page count, style, ...) may
// still change. Only draft and failed books are editable.
func (b *Book) IsEditable() bool {
	return b.Status == BookStatusDraft || b.Status == BookStatusFailed
}

// IsProcessing reports whether a generation job is active for this book.
func (b *Book) IsProcessing() bool {
	return b.Status == BookStatusProcessing
}

func isValidBookStatus(status BookStatus) bool {
	switch status {
	case BookStatusDraft, BookStatusProcessing, BookStatusCompleted, BookStatusFailed:
		return true
	default:
		return false
	}
}

func isValidBookStyle(style BookStyle) bool {
	switch style {
	case BookStyleCartoon, BookStyleRealistic, BookStyleManga, BookStyleClassic:
		return true
	default:
		return false
	}
}
