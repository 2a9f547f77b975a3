package task

import (
	"fmt"
	"strings"
	"testing"

	"github.com/storyfab/storyfab-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitStoryWithMarkers(t *testing.T) {
	t.Parallel()

	text := `PAGE 1:
The fox woke up early.

PAGE 2:
She walked to the river.

PAGE 3:
The water was cold.`

	chunks := SplitStory(text, 3)
	require.Len(t, chunks, 3)
	assert.Equal(t, 1, chunks[0].Number)
	assert.Equal(t, "The fox woke up early.", chunks[0].Text)
	assert.Equal(t, "She walked to the river.", chunks[1].Text)
	assert.Equal(t, "The water was cold.", chunks[2].Text)
}

func TestSplitStoryMarkersCaseInsensitive(t *testing.T) {
	t.Parallel()

	text := "page 1: one\npage 2: two"
	chunks := SplitStory(text, 2)
	require.Len(t, chunks, 2)
	assert.Equal(t, "one", chunks[0].Text)
	assert.Equal(t, "two", chunks[1].Text)
}

func TestSplitStoryWithoutMarkersFallsBackToSequential(t *testing.T) {
	t.Parallel()

	text := "First paragraph.\n\nSecond paragraph.\n\nThird paragraph.\n\nFourth paragraph.\n\nFifth paragraph."

	chunks := SplitStory(text, 5)
	require.Len(t, chunks, 5)
	for i, chunk := range chunks {
		assert.Equal(t, i+1, chunk.Number)
		assert.NotEmpty(t, chunk.Text)
	}
	assert.Equal(t, "First paragraph.", chunks[0].Text)
}

func TestSplitStoryPadsMissingPages(t *testing.T) {
	t.Parallel()

	text := "PAGE 1: only one chunk came back"
	chunks := SplitStory(text, 5)
	require.Len(t, chunks, 5)
	assert.NotEmpty(t, chunks[0].Text)
	for _, chunk := range chunks[1:] {
		assert.Empty(t, chunk.Text)
	}
	assert.Equal(t, 5, chunks[4].Number)
}

func TestSplitStoryTruncatesExtraPages(t *testing.T) {
	t.Parallel()

	var b strings.Builder
	for i := 1; i <= 8; i++ {
		fmt.Fprintf(&b, "PAGE %d:\ntext %d\n\n", i, i)
	}

	chunks := SplitStory(b.String(), 5)
	require.Len(t, chunks, 5)
	assert.Equal(t, "text 5", chunks[4].Text)
}

func TestSplitStoryDuplicateMarkersRenumberedSequentially(t *testing.T) {
	t.Parallel()

	text := "PAGE 1: alpha\nPAGE 1: beta\nPAGE 3: gamma"
	chunks := SplitStory(text, 3)
	require.Len(t, chunks, 3)
	assert.Equal(t, "alpha", chunks[0].Text)
	assert.Equal(t, "beta", chunks[1].Text)
	assert.Equal(t, "gamma", chunks[2].Text)
}

func TestSplitStoryClampsOverlongText(t *testing.T) {
	t.Parallel()

	text := "PAGE 1: " + strings.Repeat("a", domain.MaxPageTextLength+500)
	chunks := SplitStory(text, 1)
	require.Len(t, chunks, 1)
	assert.Len(t, []rune(chunks[0].Text), domain.MaxPageTextLength)
}

func TestSplitStorySingleBlobWithoutParagraphs(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("abcde ", 100)
	chunks := SplitStory(text, 5)
	require.Len(t, chunks, 5)
	for _, chunk := range chunks {
		assert.NotEmpty(t, chunk.Text)
	}
}

func TestSplitStoryZeroPages(t *testing.T) {
	t.Parallel()

	assert.Nil(t, SplitStory("anything", 0))
}
