// Package saved mirrors the user's saved recipes. It is the single place the
// views ask whether a recipe is saved.
package saved

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/pageza/pantrycam/internal/cache"
	"github.com/pageza/pantrycam/internal/types"
)

const key = "saved-recipes"

// Lister fetches the authoritative saved collection.
type Lister interface {
	ListSavedRecipes(ctx context.Context) (*types.SavedRecipesPage, error)
}

// Recipes is a read-through mirror of the saved collection. It is shared by
// every view for the lifetime of a session and is only ever refreshed by
// refetching.
type Recipes struct {
	cache *cache.Cache[types.SavedRecipesPage]
}

// New creates the mirror. Nothing is fetched until the first Read.
func New(api Lister, log zerolog.Logger) *Recipes {
	fetch := func(ctx context.Context, _ string) (types.SavedRecipesPage, error) {
		page, err := api.ListSavedRecipes(ctx)
		if err != nil {
			return types.SavedRecipesPage{}, err
		}
		return *page, nil
	}
	return &Recipes{cache: cache.New(fetch, log.With().Str("component", "saved").Logger())}
}

// Read returns the last fetched collection, fetching it if it was never
// loaded.
func (r *Recipes) Read(ctx context.Context) ([]types.Recipe, error) {
	page, err := r.cache.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return page.Recipes, nil
}

// Invalidate marks the mirror stale and schedules a refetch.
func (r *Recipes) Invalidate() {
	r.cache.Invalidate(key)
}

// IsSaved reports whether id is in the mirror. Recipes without an id are
// never saved.
func (r *Recipes) IsSaved(id string) bool {
	if id == "" {
		return false
	}
	page, ok := r.cache.Peek(key)
	if !ok {
		return false
	}
	for _, rec := range page.Recipes {
		if rec.ID == id {
			return true
		}
	}
	return false
}

// Total is the server-reported count from the last fetch.
func (r *Recipes) Total() int {
	page, _ := r.cache.Peek(key)
	return page.Total
}

// Stale reports whether a refetch is still pending.
func (r *Recipes) Stale() bool {
	return r.cache.Stale(key)
}

// Subscribe registers fn for every freshly fetched collection.
func (r *Recipes) Subscribe(fn func(types.SavedRecipesPage)) func() {
	return r.cache.Subscribe(func(_ string, page types.SavedRecipesPage) {
		fn(page)
	})
}

func (r *Recipes) Close() {
	r.cache.Close()
}
