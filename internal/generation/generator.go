package generation

import (
	"context"

	"github.com/storyfab/storyfab-api/internal/domain"
)

// TextGenerator defines the interface for generating story text.
// This interface serves as a boundary between the application core and
// external AI/LLM services.
type TextGenerator interface {
	// GenerateStory produces the full story text for a book based on its
	// title, description, style and page count. The returned text contains
	// one chunk per page, delimited by page markers that the pipeline's
	// decomposition step understands.
	//
	// Errors are classified by the sentinels in errors.go:
	// ErrTransientFailure for temporary service faults (safe to retry),
	// ErrInvalidConfig for setup problems (never retried),
	// ErrContentBlocked and ErrInvalidResponse for unusable responses.
	GenerateStory(ctx context.Context, book *domain.Book) (string, error)
}

// ImageGenerator defines the interface for producing a page illustration.
type ImageGenerator interface {
	// GenerateImage renders an illustration from the given prompt in the
	// given style and returns the encoded image bytes.
	GenerateImage(ctx context.Context, prompt string, style domain.BookStyle) ([]byte, error)
}
