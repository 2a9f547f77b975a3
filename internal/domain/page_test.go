package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPage(t *testing.T) {
	t.Parallel()

	t.Run("valid page without image", func(t *testing.T) {
		t.Parallel()

		page, err := NewPage(1, 1, "Once upon a time", "a kite over a meadow")

		require.NoError(t, err)
		assert.False(t, page.HasImage(), "a page without an image reference is valid")
	})

	t.Run("non positive page number", func(t *testing.T) {
		t.Parallel()

		for _, n := range []int{0, -1} {
			_, err := NewPage(1, n, "text", "")
			assert.ErrorIs(t, err, ErrValidation, "page number %d", n)
		}
	})

	t.Run("text too long", func(t *testing.T) {
		t.Parallel()

		_, err := NewPage(1, 1, strings.Repeat("a", MaxPageTextLength+1), "")
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("prompt too long", func(t *testing.T) {
		t.Parallel()

		_, err := NewPage(1, 1, "text", strings.Repeat("p", MaxImagePromptLength+1))
		assert.ErrorIs(t, err, ErrValidation)
	})
}

func TestPageValidateAgainstBook(t *testing.T) {
	t.Parallel()

	book := &Book{UserID: 1, Title: "Short Book", PageCount: 5, Style: BookStyleManga, Status: BookStatusDraft}

	page, err := NewPage(1, 5, "last page", "")
	require.NoError(t, err)
	assert.NoError(t, page.ValidateAgainstBook(book))

	over, err := NewPage(1, 6, "too far", "")
	require.NoError(t, err)
	assert.ErrorIs(t, over.ValidateAgainstBook(book), ErrValidation)
}
