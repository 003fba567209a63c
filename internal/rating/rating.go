// Package rating submits star ratings with an optimistic cache update and a
// rollback to the last server-confirmed value on failure.
package rating

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/five82/marquee/internal/api"
	"github.com/five82/marquee/internal/logging"
	"github.com/five82/marquee/internal/movies"
	"github.com/five82/marquee/internal/query"
)

var (
	// ErrAuthRequired is returned when no user is signed in. The rate
	// endpoint is not called.
	ErrAuthRequired = errors.New("sign in to rate movies")
	// ErrInvalidRating is returned for stars outside 1..5.
	ErrInvalidRating = errors.New("rating must be between 1 and 5")
)

// Outcome describes how a submission ended.
type Outcome int

const (
	// Confirmed means the server accepted the rating.
	Confirmed Outcome = iota
	// RolledBack means the call failed and the cache was restored.
	RolledBack
	// Superseded means the call failed while a newer submission for the
	// same movie was pending, so the cache was left alone.
	Superseded
)

func (o Outcome) String() string {
	switch o {
	case Confirmed:
		return "confirmed"
	case RolledBack:
		return "rolled back"
	case Superseded:
		return "superseded"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result reports one submission.
type Result struct {
	MovieID string
	Stars   int
	Outcome Outcome
}

// Submitter calls the rate endpoint. *api.Client satisfies it.
type Submitter interface {
	RateMovie(ctx context.Context, movieID string, req api.RateRequest) (api.MessageResponse, error)
}

// Identity reports the signed-in user. *session.Holder satisfies it.
type Identity interface {
	UserID() string
}

// Controller runs rating submissions against the shared cache.
type Controller struct {
	client   Submitter
	cache    *query.Cache
	identity Identity
	log      zerolog.Logger

	mu       sync.Mutex
	seq      uint64
	latest   map[string]uint64
	baseline map[string]int
}

// NewController returns a Controller.
func NewController(client Submitter, cache *query.Cache, identity Identity) *Controller {
	return &Controller{
		client:   client,
		cache:    cache,
		identity: identity,
		log:      logging.Component("rating"),
		latest:   make(map[string]uint64),
		baseline: make(map[string]int),
	}
}

// Submit rates movieID with stars. The cached movie lists show the new
// rating immediately. On success the movie and recommendation queries are
// invalidated; on failure the last confirmed rating is restored unless a
// newer submission for the movie is pending.
func (c *Controller) Submit(ctx context.Context, movieID string, stars int) (Result, error) {
	res := Result{MovieID: movieID, Stars: stars}
	if stars < 1 || stars > 5 {
		return res, ErrInvalidRating
	}
	userID := c.identity.UserID()
	if userID == "" {
		return res, ErrAuthRequired
	}

	c.mu.Lock()
	c.seq++
	seq := c.seq
	if _, pending := c.latest[movieID]; !pending {
		c.baseline[movieID] = c.cachedRating(movieID, userID)
	}
	c.latest[movieID] = seq
	query.UpdateAll(c.cache, movies.Prefix, func(_ query.Key, pages []api.MoviePage) []api.MoviePage {
		return ApplyOptimistic(pages, movieID, userID, stars)
	})
	c.mu.Unlock()

	_, err := c.client.RateMovie(ctx, movieID, api.RateRequest{UserID: userID, Rating: stars})

	c.mu.Lock()
	isLatest := c.latest[movieID] == seq
	if err != nil {
		if isLatest {
			prev := c.baseline[movieID]
			query.UpdateAll(c.cache, movies.Prefix, func(_ query.Key, pages []api.MoviePage) []api.MoviePage {
				return Revert(pages, movieID, userID, prev)
			})
			delete(c.latest, movieID)
			delete(c.baseline, movieID)
			res.Outcome = RolledBack
		} else {
			res.Outcome = Superseded
		}
		c.mu.Unlock()
		c.log.Warn().Err(err).Str("movie", movieID).Int("stars", stars).Stringer("outcome", res.Outcome).Msg("rating failed")
		return res, fmt.Errorf("rate movie %s: %w", movieID, err)
	}
	c.baseline[movieID] = stars
	if isLatest {
		delete(c.latest, movieID)
		delete(c.baseline, movieID)
	}
	c.mu.Unlock()

	res.Outcome = Confirmed
	c.log.Debug().Str("movie", movieID).Int("stars", stars).Msg("rating confirmed")
	if err := errors.Join(
		c.cache.Invalidate(ctx, movies.Prefix),
		c.cache.Invalidate(ctx, movies.RecommendationsPrefix),
	); err != nil {
		c.log.Debug().Err(err).Msg("refresh after rating failed")
	}
	return res, nil
}

// Pending reports whether a submission for movieID is in flight.
func (c *Controller) Pending(movieID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.latest[movieID]
	return ok
}

// cachedRating returns the user's rating for movieID from the first cached
// list containing it.
func (c *Controller) cachedRating(movieID, userID string) int {
	for _, e := range c.cache.Entries(movies.Prefix) {
		pages, _ := e.Data.([]api.MoviePage)
		for _, p := range pages {
			for _, m := range p.Movies {
				if m.ID == movieID {
					return DisplayRating(m, userID)
				}
			}
		}
	}
	return 0
}

// DisplayRating is the rating to show userID for m: the pending or patched
// userRating when set, otherwise the user's entry in ratings.
func DisplayRating(m api.Movie, userID string) int {
	if m.UserRating > 0 {
		return m.UserRating
	}
	return m.RatingBy(userID)
}

// ApplyOptimistic returns pages with userID's rating for movieID set to
// stars. The input is not modified.
func ApplyOptimistic(pages []api.MoviePage, movieID, userID string, stars int) []api.MoviePage {
	return patch(pages, movieID, func(m api.Movie) api.Movie {
		ratings := make([]api.Rating, 0, len(m.Ratings)+1)
		for _, r := range m.Ratings {
			if r.UserID != userID {
				ratings = append(ratings, r)
			}
		}
		m.Ratings = append(ratings, api.Rating{UserID: userID, Rating: stars})
		m.UserRating = stars
		return m
	})
}

// Revert returns pages with userID's rating for movieID restored to prev.
// A prev of 0 removes the user's rating. The input is not modified.
func Revert(pages []api.MoviePage, movieID, userID string, prev int) []api.MoviePage {
	if prev > 0 {
		return ApplyOptimistic(pages, movieID, userID, prev)
	}
	return patch(pages, movieID, func(m api.Movie) api.Movie {
		ratings := make([]api.Rating, 0, len(m.Ratings))
		for _, r := range m.Ratings {
			if r.UserID != userID {
				ratings = append(ratings, r)
			}
		}
		m.Ratings = ratings
		m.UserRating = 0
		return m
	})
}

// patch copies only the pages and movie it changes.
func patch(pages []api.MoviePage, movieID string, fn func(api.Movie) api.Movie) []api.MoviePage {
	out := pages
	copied := false
	for pi, p := range pages {
		for mi, m := range p.Movies {
			if m.ID != movieID {
				continue
			}
			if !copied {
				out = append([]api.MoviePage(nil), pages...)
				copied = true
			}
			page := out[pi]
			page.Movies = append([]api.Movie(nil), page.Movies...)
			page.Movies[mi] = fn(m.Clone())
			out[pi] = page
		}
	}
	return out
}
