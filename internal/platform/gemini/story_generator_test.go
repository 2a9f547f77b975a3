package gemini

import (
	"io"
	"log/slog"
	"testing"
	"text/template"

	"github.com/storyfab/storyfab-api/internal/domain"
	"github.com/storyfab/storyfab-api/internal/generation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStoryGenerator(t *testing.T) *StoryGenerator {
	t.Helper()

	tmpl, err := template.New("story").Parse(storyPromptTemplate)
	require.NoError(t, err)

	// Construct without a live client: prompt building never touches the API.
	return &StoryGenerator{
		logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		promptTemplate: tmpl,
		model:          "gemini-1.5-flash",
	}
}

func TestCreatePrompt(t *testing.T) {
	t.Parallel()

	g := testStoryGenerator(t)

	book := &domain.Book{
		Title:       "The Brave Fox",
		Description: "A fox learns to swim.",
		PageCount:   7,
		Style:       domain.BookStyleCartoon,
	}

	prompt, err := g.createPrompt(book)
	require.NoError(t, err)

	assert.Contains(t, prompt, `"The Brave Fox"`)
	assert.Contains(t, prompt, "A fox learns to swim.")
	assert.Contains(t, prompt, "cartoon")
	assert.Contains(t, prompt, "Write exactly 7 pages")
	assert.Contains(t, prompt, "PAGE 1:")
	assert.Contains(t, prompt, "PAGE 7.")
}

func TestCreatePromptOmitsEmptyDescription(t *testing.T) {
	t.Parallel()

	g := testStoryGenerator(t)

	book := &domain.Book{
		Title:     "The Brave Fox",
		PageCount: 5,
		Style:     domain.BookStyleManga,
	}

	prompt, err := g.createPrompt(book)
	require.NoError(t, err)
	assert.NotContains(t, prompt, "Story premise:")
}

func TestCreatePromptValidation(t *testing.T) {
	t.Parallel()

	g := testStoryGenerator(t)

	_, err := g.createPrompt(nil)
	assert.Error(t, err)

	_, err = g.createPrompt(&domain.Book{PageCount: 5, Style: domain.BookStyleCartoon})
	assert.ErrorIs(t, err, generation.ErrInvalidConfig)
}
