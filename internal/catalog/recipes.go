package catalog

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
)

// ERP recipe export columns. The marketing table links article numbers to
// text records; the text table carries the recipe name and HTML body.
const (
	colNumber   = "NUMMER"
	colTextKey  = "TEXT_KZ"
	colTextNo   = "TEXTNR"
	colKeyword  = "STICHWORT"
	colInternet = "INTERNET"
	colName     = "BANAME"
)

// RecipePrefix marks recipe article numbers in the ERP.
const RecipePrefix = "R"

// draftKeyword marks recipe texts that are not released ("fr…" keywords).
var draftKeyword = regexp.MustCompile(`(?i)^fr`)

// RecipeSources locates the two ERP tables that make up the recipe feed.
type RecipeSources struct {
	TextsPath     string
	MarketingPath string
	ImageBaseURL  string
	Options       FeedOptions
}

// LoadRecipes joins the marketing and text tables and returns every
// released recipe with web content. Item IDs are the ERP article numbers
// (e.g. "R944").
func LoadRecipes(ctx context.Context, src RecipeSources) ([]Item, error) {
	texts, err := ReadTable(ctx, src.TextsPath, src.Options)
	if err != nil {
		return nil, err
	}
	for _, col := range []string{colTextNo, colInternet, colName} {
		if !texts.Has(col) {
			return nil, &FeedError{Path: src.TextsPath, Err: fmt.Errorf("missing %q column", col)}
		}
	}
	marketing, err := ReadTable(ctx, src.MarketingPath, src.Options)
	if err != nil {
		return nil, err
	}
	for _, col := range []string{colNumber, colTextKey} {
		if !marketing.Has(col) {
			return nil, &FeedError{Path: src.MarketingPath, Err: fmt.Errorf("missing %q column", col)}
		}
	}

	byTextNo := make(map[string][]string, len(texts.Rows))
	for _, row := range texts.Rows {
		byTextNo[texts.Get(row, colTextNo)] = row
	}

	var items []Item
	for _, m := range marketing.Rows {
		number := marketing.Get(m, colNumber)
		if !strings.HasPrefix(number, RecipePrefix) {
			continue
		}
		row, ok := byTextNo[marketing.Get(m, colTextKey)]
		if !ok {
			continue
		}
		body := texts.Get(row, colInternet)
		if body == "" || draftKeyword.MatchString(texts.Get(row, colKeyword)) {
			continue
		}
		name := texts.Get(row, colName)
		items = append(items, Item{
			ID:          number,
			Title:       name,
			Description: body,
			Kind:        KindRecipe,
			ImageURLs:   []string{RecipePhotoURL(src.ImageBaseURL, name, number)},
		})
	}

	log.Info().Int("recipes", len(items)).Msg("Recipe export loaded")
	return items, nil
}

// RecipePhotoURL builds the shop URL of a recipe's hero image:
// <base>/<Name-With-Dashes>-_-<number>.jpg, normalized like shop media names.
func RecipePhotoURL(base, name, number string) string {
	file := strings.Join(strings.Fields(name), "-") + "-_-" + number + ".jpg"
	return NormalizeImageURL(strings.TrimRight(base, "/") + "/" + file)
}
