package task

import (
	"regexp"
	"strings"

	"github.com/storyfab/storyfab-api/internal/domain"
)

// pageMarkerPattern matches the "PAGE N:" markers the story generator is
// instructed to emit. Must stay in sync with the prompt template.
var pageMarkerPattern = regexp.MustCompile(`(?mi)^\s*PAGE\s+(\d+)\s*:\s*`)

// PageChunk is one page's worth of story text after decomposition.
type PageChunk struct {
	Number int
	Text   string
}

// SplitStory decomposes the generated story text into exactly pageCount
// chunks. Parsing is best-effort: marker chunks are numbered sequentially in
// the order they appear, unmarked text is divided evenly, too few chunks are
// padded and too many are truncated. It never fails; a degenerate input
// yields degenerate pages, not an aborted job.
func SplitStory(text string, pageCount int) []PageChunk {
	if pageCount <= 0 {
		return nil
	}

	raw := splitByMarkers(text)
	if len(raw) == 0 {
		raw = splitEvenly(text, pageCount)
	}

	chunks := make([]PageChunk, 0, pageCount)
	for i := 0; i < pageCount && i < len(raw); i++ {
		chunks = append(chunks, PageChunk{
			Number: i + 1,
			Text:   clampText(raw[i]),
		})
	}

	// Pad missing chunks so the page set is always complete.
	for len(chunks) < pageCount {
		chunks = append(chunks, PageChunk{Number: len(chunks) + 1, Text: ""})
	}

	return chunks
}

// splitByMarkers extracts the text between successive "PAGE N:" markers.
// Chunks are taken in the order they appear; the caller renumbers them
// 1..n, so duplicate or out-of-order marker numbers cannot corrupt the page
// set.
func splitByMarkers(text string) []string {
	matches := pageMarkerPattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return nil
	}

	out := make([]string, 0, len(matches))
	for i, m := range matches {
		start := m[1]
		end := len(text)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		out = append(out, strings.TrimSpace(text[start:end]))
	}
	return out
}

// splitEvenly divides unmarked text into count chunks on paragraph
// boundaries, falling back to flat character ranges for a single blob.
func splitEvenly(text string, count int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	paragraphs := []string{}
	for _, p := range strings.Split(text, "\n\n") {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			paragraphs = append(paragraphs, trimmed)
		}
	}

	if len(paragraphs) >= count {
		// Distribute paragraphs round-robin style into count buckets,
		// preserving order.
		out := make([]string, count)
		perChunk := len(paragraphs) / count
		extra := len(paragraphs) % count
		idx := 0
		for i := 0; i < count; i++ {
			take := perChunk
			if i < extra {
				take++
			}
			out[i] = strings.Join(paragraphs[idx:idx+take], "\n\n")
			idx += take
		}
		return out
	}

	// Too few paragraphs: slice the raw text into equal character ranges.
	runes := []rune(text)
	out := make([]string, 0, count)
	size := (len(runes) + count - 1) / count
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, strings.TrimSpace(string(runes[start:end])))
	}
	return out
}

// clampText bounds a page text to the domain's maximum length.
func clampText(text string) string {
	runes := []rune(text)
	if len(runes) <= domain.MaxPageTextLength {
		return text
	}
	return string(runes[:domain.MaxPageTextLength])
}
