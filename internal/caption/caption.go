// Package caption produces marketing captions for catalog items using a
// language model. Two backends exist: a local Ollama subprocess and the
// Gemini API.
package caption

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/fpang/catalog-post-automation/internal/assets"
	"github.com/fpang/catalog-post-automation/internal/catalog"
)

// DefaultWebsite is printed in recipe captions as the place to find the
// full recipe.
const DefaultWebsite = "www.hagengrote.de"

// ErrEmptyCaption is returned (wrapped in a GenerationError) when the model
// produced nothing usable after cleanup.
var ErrEmptyCaption = errors.New("empty caption")

// Request describes the item a caption is written for. Description must
// already be plain text (see catalog.PlainText).
type Request struct {
	ItemID      string
	Name        string
	Description string
	Kind        catalog.Kind
}

// Generator turns a Request into a finished caption.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// GenerationError reports a failed caption generation for one item.
type GenerationError struct {
	ItemID  string
	Backend string
	Err     error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("caption generation failed for %s (%s): %v", e.ItemID, e.Backend, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

var thinkBlock = regexp.MustCompile(`(?s)<think>.*?</think>`)

// Clean removes every <think>...</think> reasoning segment from raw model
// output and trims surrounding whitespace.
func Clean(raw string) string {
	return strings.TrimSpace(thinkBlock.ReplaceAllString(raw, ""))
}

// Prompt renders the prompt for req. Recipes use the recipe-of-the-week
// template; everything else gets the brand-voice product template.
func Prompt(req Request, website string) string {
	data := assets.PromptData{
		Name:        req.Name,
		Description: req.Description,
	}
	if req.Kind == catalog.KindRecipe {
		if website == "" {
			website = DefaultWebsite
		}
		data.Code = req.ItemID
		data.Website = website
		return assets.RenderRecipeCaptionPrompt(data)
	}
	return assets.RenderProductCaptionPrompt(data)
}

// finish cleans raw output and turns an empty result into a GenerationError.
func finish(req Request, backend, raw string) (string, error) {
	caption := Clean(raw)
	if caption == "" {
		return "", &GenerationError{ItemID: req.ItemID, Backend: backend, Err: ErrEmptyCaption}
	}
	return caption, nil
}
