package movies

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/five82/marquee/internal/api"
	"github.com/five82/marquee/internal/logging"
	"github.com/five82/marquee/internal/query"
)

// RecommendationsPrefix matches recommendation entries for every user.
var RecommendationsPrefix = query.Key{"recommendations"}

// RecommendationSource fetches recommendations. *api.Client satisfies it.
type RecommendationSource interface {
	Recommendations(ctx context.Context, userID string) ([]api.RecommendedMovie, error)
}

// Identity reports the signed-in user. *session.Holder satisfies it.
type Identity interface {
	UserID() string
}

// Recommendations serves the signed-in user's recommendations.
type Recommendations struct {
	source   RecommendationSource
	cache    *query.Cache
	identity Identity
	log      zerolog.Logger
}

// NewRecommendations returns a Recommendations controller.
func NewRecommendations(source RecommendationSource, cache *query.Cache, identity Identity) *Recommendations {
	return &Recommendations{
		source:   source,
		cache:    cache,
		identity: identity,
		log:      logging.Component("recommendations"),
	}
}

func (r *Recommendations) key(userID string) query.Key {
	return query.Key{"recommendations", userID}
}

// Load fetches recommendations. Without a signed-in user it returns
// query.ErrDisabled and makes no request.
func (r *Recommendations) Load(ctx context.Context) ([]api.RecommendedMovie, error) {
	userID := r.identity.UserID()
	return query.Fetch(ctx, r.cache, query.Query[[]api.RecommendedMovie]{
		Key:       r.key(userID),
		StaleTime: query.StaleRecommendations,
		Disabled:  userID == "",
		Fn: func(ctx context.Context) ([]api.RecommendedMovie, error) {
			recs, err := r.source.Recommendations(ctx, userID)
			if err != nil {
				r.log.Warn().Err(err).Str("user", userID).Msg("fetch recommendations failed")
				return nil, err
			}
			r.log.Debug().Str("user", userID).Int("count", len(recs)).Msg("fetched recommendations")
			return recs, nil
		},
	})
}

// Entry returns the signed-in user's cache entry.
func (r *Recommendations) Entry() query.Entry {
	userID := r.identity.UserID()
	if userID == "" {
		return query.Entry{}
	}
	e, _ := r.cache.Entry(r.key(userID))
	return e
}
