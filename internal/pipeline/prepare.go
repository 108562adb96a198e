package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/fpang/catalog-post-automation/internal/approval"
	"github.com/fpang/catalog-post-automation/internal/caption"
	"github.com/fpang/catalog-post-automation/internal/catalog"
	"github.com/fpang/catalog-post-automation/internal/publishlog"
	"github.com/fpang/catalog-post-automation/internal/selector"
)

// Profile is a named preparation policy.
type Profile struct {
	Name     string
	Criteria selector.Criteria
	// Limit is the number of posts to stage per run.
	Limit int
}

// PrepareProducts selects eligible products, generates their captions and
// stages them for approval, up to the profile's limit.
func (r *Runner) PrepareProducts(ctx context.Context, profile Profile) (*Report, error) {
	return r.run(ctx, "prepare-"+profile.Name, func(ctx context.Context, logger zerolog.Logger, report *Report) error {
		items, err := r.deps.Catalog.Products(ctx)
		if err != nil {
			return fmt.Errorf("load products: %w", err)
		}
		published, err := r.publishedSet(ctx)
		if err != nil {
			return err
		}
		staged, err := r.stagedSet(ctx)
		if err != nil {
			return err
		}

		sel := selector.New(profile.Criteria, r.opts.SelectorOptions...)
		for item := range sel.Eligible(items, published, staged) {
			if report.Prepared >= profile.Limit {
				break
			}
			if err := r.prepare(ctx, logger, report, item); err != nil {
				return err
			}
		}

		if report.Prepared == 0 {
			logger.Warn().Int("candidates", len(items)).Msg("No eligible products")
		}
		return nil
	})
}

// PrepareRecipe stages the first recipe of the configured rotation that has
// not been posted or staged yet.
func (r *Runner) PrepareRecipe(ctx context.Context) (*Report, error) {
	return r.run(ctx, "recipe", func(ctx context.Context, logger zerolog.Logger, report *Report) error {
		recipes, err := r.deps.Catalog.Recipes(ctx)
		if err != nil {
			return fmt.Errorf("load recipes: %w", err)
		}
		byID := make(map[string]catalog.Item, len(recipes))
		for _, item := range recipes {
			byID[item.ID] = item
		}
		published, err := r.publishedSet(ctx)
		if err != nil {
			return err
		}
		staged, err := r.stagedSet(ctx)
		if err != nil {
			return err
		}

		for _, raw := range r.opts.RecipeIDs {
			id := recipeID(raw)
			if published(id) || staged(id) {
				report.Skipped++
				continue
			}
			item, ok := byID[id]
			if !ok {
				logger.Warn().Str("productId", id).Msg("Recipe not found in export or not released")
				report.Skipped++
				continue
			}
			if err := r.prepare(ctx, logger, report, item); err != nil {
				return err
			}
			if report.Prepared > 0 {
				return nil
			}
		}

		logger.Warn().Int("rotation", len(r.opts.RecipeIDs)).Msg("Recipe rotation exhausted")
		return nil
	})
}

// recipeID normalises "944" and "r944" to "R944".
func recipeID(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(strings.ToUpper(raw), catalog.RecipePrefix) {
		return catalog.RecipePrefix + raw[len(catalog.RecipePrefix):]
	}
	return catalog.RecipePrefix + raw
}

// prepare captions and stages one item. Caption failures are per-item;
// staging and log failures are returned.
func (r *Runner) prepare(ctx context.Context, logger zerolog.Logger, report *Report, item catalog.Item) error {
	description := catalog.PlainText(item.Description)

	text, err := r.deps.Captions.Generate(ctx, caption.Request{
		ItemID:      item.ID,
		Name:        item.Title,
		Description: description,
		Kind:        item.Kind,
	})
	if err != nil {
		return r.recordFailure(ctx, logger, report, item.ID, err)
	}

	rec := approval.Record{
		ProductID:   item.ID,
		Title:       item.Title,
		Description: description,
		Caption:     text,
		ImageURLs:   item.ImageURLs,
	}
	if err := rec.Validate(); err != nil {
		return r.recordFailure(ctx, logger, report, item.ID, err)
	}
	if err := r.deps.Staging.Stage(ctx, rec); err != nil {
		return fmt.Errorf("stage %s: %w", item.ID, err)
	}
	if err := r.deps.Log.RecordOutcome(ctx, item.ID, publishlog.StatusPrepared); err != nil {
		return fmt.Errorf("record prepared %s: %w", item.ID, err)
	}

	report.Prepared++
	logger.Info().
		Str("productId", item.ID).
		Str("kind", string(item.Kind)).
		Int("images", len(item.ImageURLs)).
		Int("captionLength", len(text)).
		Msg("Post prepared")
	return nil
}
