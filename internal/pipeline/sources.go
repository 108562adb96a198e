package pipeline

import (
	"context"

	"github.com/fpang/catalog-post-automation/internal/catalog"
)

// FeedCatalog reads products and recipes from the shop's export files.
type FeedCatalog struct {
	ProductsPath string
	Options      catalog.FeedOptions
	Recipe       catalog.RecipeSources
}

var _ Catalog = (*FeedCatalog)(nil)

// Products implements Catalog.
func (f *FeedCatalog) Products(ctx context.Context) ([]catalog.Item, error) {
	return catalog.LoadProducts(ctx, f.ProductsPath, f.Options)
}

// Recipes implements Catalog.
func (f *FeedCatalog) Recipes(ctx context.Context) ([]catalog.Item, error) {
	return catalog.LoadRecipes(ctx, f.Recipe)
}
