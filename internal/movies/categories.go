package movies

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/five82/marquee/internal/api"
	"github.com/five82/marquee/internal/logging"
	"github.com/five82/marquee/internal/query"
)

// CategoriesKey holds the category reference list.
var CategoriesKey = query.Key{"categories"}

// CategorySource fetches the category list. *api.Client satisfies it.
type CategorySource interface {
	Categories(ctx context.Context) ([]api.Category, error)
}

// Catalog serves category reference data through the cache.
type Catalog struct {
	source CategorySource
	cache  *query.Cache
	log    zerolog.Logger
}

// NewCatalog returns a Catalog.
func NewCatalog(source CategorySource, cache *query.Cache) *Catalog {
	return &Catalog{source: source, cache: cache, log: logging.Component("catalog")}
}

// Load returns the categories, fetching at most once per staleness window.
func (c *Catalog) Load(ctx context.Context) ([]api.Category, error) {
	return query.Fetch(ctx, c.cache, query.Query[[]api.Category]{
		Key:       CategoriesKey,
		StaleTime: query.StaleCategories,
		Fn: func(ctx context.Context) ([]api.Category, error) {
			cats, err := c.source.Categories(ctx)
			if err != nil {
				c.log.Warn().Err(err).Msg("fetch categories failed")
				return nil, err
			}
			return cats, nil
		},
	})
}

// Cached returns whatever category list is in the cache.
func (c *Catalog) Cached() []api.Category {
	cats, _ := query.Get[[]api.Category](c.cache, CategoriesKey)
	return cats
}

// Entry exposes the cache entry for status rendering.
func (c *Catalog) Entry() query.Entry {
	e, _ := c.cache.Entry(CategoriesKey)
	return e
}

// Lookup returns a name lookup over cats.
func Lookup(cats []api.Category) func(id string) (string, bool) {
	names := make(map[string]string, len(cats))
	for _, c := range cats {
		names[c.ID] = c.Name
	}
	return func(id string) (string, bool) {
		name, ok := names[id]
		return name, ok
	}
}

// CategoryName returns the name for id, or "Unknown".
func CategoryName(cats []api.Category, id string) string {
	for _, c := range cats {
		if c.ID == id {
			return c.Name
		}
	}
	return "Unknown"
}
