package caption

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"github.com/fpang/catalog-post-automation/internal/catalog"
)

// DefaultGeminiModel is the Gemini model used when none is configured.
const DefaultGeminiModel = "gemini-2.5-flash"

// ContentGenerator is the subset of *genai.Models the Gemini backend uses.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiGenerator writes captions with the Gemini API.
type GeminiGenerator struct {
	models  ContentGenerator
	model   string
	timeout time.Duration
	website string
}

// NewGeminiGenerator creates a Gemini-backed Generator using the given API key.
func NewGeminiGenerator(ctx context.Context, apiKey, model string, timeout time.Duration, website string) (*GeminiGenerator, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize genai client: %w", err)
	}
	return NewGeminiGeneratorWith(client.Models, model, timeout, website), nil
}

// NewGeminiGeneratorWith wraps an existing content generator.
func NewGeminiGeneratorWith(models ContentGenerator, model string, timeout time.Duration, website string) *GeminiGenerator {
	if model == "" {
		model = DefaultGeminiModel
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &GeminiGenerator{models: models, model: model, timeout: timeout, website: website}
}

// Generate implements Generator.
func (g *GeminiGenerator) Generate(ctx context.Context, req Request) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	prompt := Prompt(req, g.website)
	contents := []*genai.Content{{Role: "user", Parts: []*genai.Part{{Text: prompt}}}}
	config := &genai.GenerateContentConfig{Temperature: genai.Ptr[float32](0.7)}
	if req.Kind == catalog.KindRecipe {
		config.Temperature = genai.Ptr[float32](0)
	}

	callStart := time.Now()
	log.Debug().
		Str("model", g.model).
		Str("productId", req.ItemID).
		Int("promptLength", len(prompt)).
		Msg("Starting Gemini API call for caption generation")

	resp, err := g.models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		log.Error().Err(err).Dur("duration", time.Since(callStart)).Msg("Failed to generate caption from Gemini")
		return "", &GenerationError{ItemID: req.ItemID, Backend: "gemini", Err: err}
	}
	if resp == nil {
		return "", &GenerationError{ItemID: req.ItemID, Backend: "gemini", Err: ErrEmptyCaption}
	}

	text := resp.Text()
	log.Debug().
		Int("responseLength", len(text)).
		Dur("duration", time.Since(callStart)).
		Msg("Gemini API response received for caption generation")

	return finish(req, "gemini", text)
}
