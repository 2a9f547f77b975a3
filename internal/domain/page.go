package domain

import (
	"fmt"
	"strings"
	"time"
)

// Validation limits for page content.
const (
	MaxPageTextLength    = 2000
	MaxImagePromptLength = 1000
)

// Page is one page of a book. Pages are produced by the generation pipeline,
// never created directly by API clients. An empty ImageRef is a valid,
// recoverable state: image generation is best-effort per page.
type Page struct {
	ID          int64     `json:"id"`
	BookID      int64     `json:"book_id"`
	PageNumber  int       `json:"page_number"`
	TextContent string    `json:"text_content,omitempty"`
	ImageRef    string    `json:"image_url,omitempty"`
	ImagePrompt string    `json:"image_prompt,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewPage creates a page for bookID at position pageNumber.
func NewPage(bookID int64, pageNumber int, text, imagePrompt string) (*Page, error) {
	now := time.Now().UTC()
	page := &Page{
		BookID:      bookID,
		PageNumber:  pageNumber,
		TextContent: strings.TrimSpace(text),
		ImagePrompt: strings.TrimSpace(imagePrompt),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := page.Validate(); err != nil {
		return nil, err
	}

	return page, nil
}

// Validate checks page attributes against the content limits.
func (p *Page) Validate() error {
	if p.BookID <= 0 {
		return NewValidationError("book_id", "page must belong to a book")
	}

	if p.PageNumber <= 0 {
		return NewValidationError("page_number", "page number must be positive")
	}

	if len(p.TextContent) > MaxPageTextLength {
		return NewValidationError("text_content",
			fmt.Sprintf("page text must have at most %d characters", MaxPageTextLength))
	}

	if len(p.ImagePrompt) > MaxImagePromptLength {
		return NewValidationError("image_prompt",
			fmt.Sprintf("image prompt must have at most %d characters", MaxImagePromptLength))
	}

	return nil
}

// ValidateAgainstBook additionally checks that the page number fits within
// the owning book's page count.
func (p *Page) ValidateAgainstBook(book *Book) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if p.PageNumber > book.PageCount {
		return NewValidationError("page_number",
			fmt.Sprintf("page %d exceeds the book's page count (%d)", p.PageNumber, book.PageCount))
	}
	return nil
}

// HasImage reports whether an image was generated and stored for this page.
func (p *Page) HasImage() bool {
	return p.ImageRef != ""
}
