package gemini

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"strings"
	"text/template"
	"time"

	"github.com/storyfab/storyfab-api/internal/config"
	"github.com/storyfab/storyfab-api/internal/domain"
	"github.com/storyfab/storyfab-api/internal/generation"
	"google.golang.org/genai"
)

// StoryGenerator implements the generation.TextGenerator interface using
// Google's Gemini API to produce the full story text for a book.
type StoryGenerator struct {
	logger *slog.Logger
	config config.LLMConfig

	// promptTemplate is the parsed template for creating story prompts
	promptTemplate *template.Template

	client *genai.Client
	model  string
}

// NewStoryGenerator creates a new instance of StoryGenerator with the
// provided dependencies.
//
// Configuration problems (missing API key or model name) are reported as
// generation.ErrInvalidConfig so callers can treat them as non-retryable.
func NewStoryGenerator(ctx context.Context, logger *slog.Logger, cfg config.LLMConfig) (*StoryGenerator, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", generation.ErrInvalidConfig)
	}

	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", generation.ErrInvalidConfig)
	}

	promptTemplate, err := template.New("story").Parse(storyPromptTemplate)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse prompt template: %v",
			generation.ErrInvalidConfig, err)
	}

	clientConfig := &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v",
			generation.ErrInvalidConfig, err)
	}

	return &StoryGenerator{
		logger:         logger.With(slog.String("component", "story_generator")),
		config:         cfg,
		promptTemplate: promptTemplate,
		client:         client,
		model:          cfg.ModelName,
	}, nil
}

// Ensure StoryGenerator implements generation.TextGenerator
var _ generation.TextGenerator = (*StoryGenerator)(nil)

// GenerateStory produces the story text for the given book, one chunk per
// page delimited by "PAGE N:" markers.
func (g *StoryGenerator) GenerateStory(ctx context.Context, book *domain.Book) (string, error) {
	prompt, err := g.createPrompt(book)
	if err != nil {
		return "", err
	}

	return g.callGeminiWithRetry(ctx, prompt)
}

// createPrompt renders the story prompt template for the book.
func (g *StoryGenerator) createPrompt(book *domain.Book) (string, error) {
	if book == nil {
		return "", errors.New("book cannot be nil")
	}
	if book.Title == "" {
		return "", fmt.Errorf("%w: book title cannot be empty", generation.ErrInvalidConfig)
	}

	data := storyPromptData{
		Title:       book.Title,
		Description: book.Description,
		Style:       string(book.Style),
		PageCount:   book.PageCount,
	}

	var promptBuffer bytes.Buffer
	if err := g.promptTemplate.Execute(&promptBuffer, data); err != nil {
		return "", fmt.Errorf("failed to execute prompt template: %w", err)
	}

	return promptBuffer.String(), nil
}

// callGeminiWithRetry makes a call to the Gemini API with exponential backoff
// retry logic.
//
// It attempts to call the API up to config.MaxRetries times, using
// exponential backoff with jitter between retries for transient errors.
// Permanent errors (content blocked by safety filters, malformed responses)
// are returned immediately without retrying.
func (g *StoryGenerator) callGeminiWithRetry(ctx context.Context, prompt string) (string, error) {
	maxRetries := g.config.MaxRetries
	baseDelaySeconds := g.config.RetryDelaySeconds
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	if maxRetries < 0 {
		g.logger.WarnContext(ctx, "invalid max retries value, using default", "max_retries", 3)
		maxRetries = 3
	}
	if baseDelaySeconds < 1 {
		g.logger.WarnContext(ctx, "invalid retry delay value, using default", "base_delay_seconds", 2)
		baseDelaySeconds = 2
	}

	for attempt := 0; ; attempt++ {
		attemptNum := attempt + 1
		g.logger.InfoContext(ctx, "making Gemini API call",
			"attempt", attemptNum,
			"max_attempts", maxRetries+1)

		text, transient, err := g.generateOnce(ctx, prompt)
		if err == nil {
			g.logger.InfoContext(ctx, "Gemini API call successful",
				"attempt", attemptNum,
				"text_length", len(text))
			return text, nil
		}

		g.logger.ErrorContext(ctx, "Gemini API call failed",
			"attempt", attemptNum,
			"error", err)

		if !transient {
			return "", err
		}

		if attempt >= maxRetries {
			return "", fmt.Errorf("%w: exceeded maximum retry attempts (%d): %v",
				generation.ErrTransientFailure, maxRetries, err)
		}

		// delay = baseDelay * (2^attempt) * (0.5 + rand(0, 0.5))
		backoffSeconds := float64(baseDelaySeconds) * math.Pow(2, float64(attempt))
		jitterFactor := 0.5 + rng.Float64()*0.5
		delay := time.Duration(backoffSeconds * jitterFactor * float64(time.Second))

		g.logger.InfoContext(ctx, "retrying after delay",
			"attempt", attemptNum,
			"delay", delay.String())

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			g.logger.WarnContext(ctx, "API call cancelled during retry delay",
				"attempt", attemptNum,
				"ctx_err", ctx.Err())
			return "", fmt.Errorf("%w: %v", generation.ErrTransientFailure, ctx.Err())
		}
	}
}

// generateOnce performs a single API call and classifies the outcome.
// The transient flag reports whether a failure is safe to retry.
func (g *StoryGenerator) generateOnce(ctx context.Context, prompt string) (text string, transient bool, err error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	if err != nil {
		// Network and service errors are assumed transient.
		return "", true, fmt.Errorf("%w: %v", generation.ErrTransientFailure, err)
	}

	if resp == nil || len(resp.Candidates) == 0 {
		return "", false, fmt.Errorf("%w: no content generated", generation.ErrInvalidResponse)
	}

	if resp.Candidates[0].FinishReason == genai.FinishReasonSafety {
		return "", false, fmt.Errorf("%w: story prompt rejected", generation.ErrContentBlocked)
	}

	text = strings.TrimSpace(resp.Text())
	if text == "" {
		return "", false, fmt.Errorf("%w: empty content in response", generation.ErrInvalidResponse)
	}

	return text, false, nil
}
