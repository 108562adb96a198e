// Package assets provides embedded static assets for the application.
//
// Prompt templates are stored as text files under prompts/ and embedded at compile time.

package assets

import (
	"bytes"
	_ "embed"
	"text/template"
)

// CaptionMaxLength is Instagram's caption limit, passed to the model as a
// soft bound.
const CaptionMaxLength = 2200

//go:embed prompts/product-caption.txt
var productCaptionTemplate string

//go:embed prompts/recipe-caption.txt
var recipeCaptionTemplate string

// Pre-parsed templates. template.Must panics on malformed templates,
// catching errors at program startup rather than at call time.
var (
	productPromptTmpl = template.Must(template.New("product").Parse(productCaptionTemplate))
	recipePromptTmpl  = template.Must(template.New("recipe").Parse(recipeCaptionTemplate))
)

// PromptData holds the dynamic data injected into caption prompt templates.
type PromptData struct {
	Name        string
	Description string

	// Code and Website are only used by the recipe template.
	Code    string
	Website string

	MaxLength int
}

// RenderProductCaptionPrompt renders the brand-voice prompt for a catalog product.
func RenderProductCaptionPrompt(data PromptData) string {
	return renderTemplate(productPromptTmpl, data)
}

// RenderRecipeCaptionPrompt renders the recipe-of-the-week prompt.
func RenderRecipeCaptionPrompt(data PromptData) string {
	return renderTemplate(recipePromptTmpl, data)
}

func renderTemplate(tmpl *template.Template, data PromptData) string {
	if data.MaxLength == 0 {
		data.MaxLength = CaptionMaxLength
	}
	var buf bytes.Buffer
	// Template execution errors are not expected with our simple templates,
	// but we handle them gracefully by returning whatever was rendered.
	_ = tmpl.Execute(&buf, data)
	return buf.String()
}
