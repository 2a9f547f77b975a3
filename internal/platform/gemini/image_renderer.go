package gemini

import (
	"bytes"
	"context"
	"fmt"
	"hash/fnv"
	"image"
	"image/color"
	"image/png"
	"log/slog"

	"github.com/storyfab/storyfab-api/internal/domain"
	"github.com/storyfab/storyfab-api/internal/generation"
)

// Rendered illustration dimensions.
const (
	imageWidth  = 512
	imageHeight = 512
)

// stylePalettes maps each book style to a base color used for the
// placeholder illustration gradient.
var stylePalettes = map[domain.BookStyle]color.RGBA{
	domain.BookStyleCartoon:   {R: 255, G: 183, B: 77, A: 255},
	domain.BookStyleRealistic: {R: 96, G: 125, B: 139, A: 255},
	domain.BookStyleManga:     {R: 120, G: 144, B: 156, A: 255},
	domain.BookStyleClassic:   {R: 141, G: 110, B: 99, A: 255},
}

// PlaceholderImageRenderer implements generation.ImageGenerator with a
// deterministic local renderer: a gradient derived from the prompt hash and
// the style palette. It stands in for a real image model so the pipeline,
// storage and notification paths can be exercised end to end.
type PlaceholderImageRenderer struct {
	logger *slog.Logger
}

// NewPlaceholderImageRenderer creates a new placeholder renderer.
// If logger is nil, a default logger will be used.
func NewPlaceholderImageRenderer(logger *slog.Logger) *PlaceholderImageRenderer {
	if logger == nil {
		logger = slog.Default()
	}
	return &PlaceholderImageRenderer{
		logger: logger.With(slog.String("component", "image_renderer")),
	}
}

// Ensure PlaceholderImageRenderer implements generation.ImageGenerator
var _ generation.ImageGenerator = (*PlaceholderImageRenderer)(nil)

// GenerateImage renders a PNG illustration from the prompt and style.
// The same (prompt, style) pair always produces the same bytes, which keeps
// retried pipeline runs idempotent at the storage layer.
func (r *PlaceholderImageRenderer) GenerateImage(
	ctx context.Context,
	prompt string,
	style domain.BookStyle,
) ([]byte, error) {
	if prompt == "" {
		return nil, fmt.Errorf("%w: image prompt cannot be empty", generation.ErrGenerationFailed)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", generation.ErrTransientFailure, err)
	}

	base, ok := stylePalettes[style]
	if !ok {
		base = stylePalettes[domain.BookStyleCartoon]
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(prompt))
	seed := h.Sum32()

	img := image.NewRGBA(image.Rect(0, 0, imageWidth, imageHeight))
	for y := 0; y < imageHeight; y++ {
		for x := 0; x < imageWidth; x++ {
			// Vertical gradient over the style color, offset by the prompt
			// hash so different pages look distinct.
			shade := uint8((uint32(y) + seed) % 128)
			img.SetRGBA(x, y, color.RGBA{
				R: blend(base.R, shade),
				G: blend(base.G, shade),
				B: blend(base.B, shade),
				A: 255,
			})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("%w: failed to encode image: %v", generation.ErrGenerationFailed, err)
	}

	r.logger.DebugContext(ctx, "rendered placeholder illustration",
		"style", string(style),
		"bytes", buf.Len())
	return buf.Bytes(), nil
}

func blend(base, shade uint8) uint8 {
	v := uint16(base) + uint16(shade)
	if v > 255 {
		return 255
	}
	return uint8(v)
}
