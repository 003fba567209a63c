// Package query provides the keyed, staleness-aware cache that sits between
// the REST client and the controllers.
//
// # Overview
//
// Every piece of server state the client shows (movie pages, categories,
// recommendations, the user's profile) lives in a Cache entry addressed by a
// Key such as Key{"movies", "heat"}. Controllers read through Fetch, which
// returns fresh cached data or runs the query's fetcher:
//
//	pages, err := query.Fetch(ctx, cache, query.Query[[]api.MoviePage]{
//		Key:       query.Key{"movies", term},
//		StaleTime: query.StaleMovies,
//		Fn:        fetchPages,
//	})
//
// # Entry lifecycle
//
//	idle ──fetch──→ loading ──ok──→ success ──refetch──→ loading
//	                   └──err──→ error ──refetch──→ loading
//	success ──SetData──→ success
//
// A failed refetch keeps the previous data next to the error so views can
// keep showing it.
//
// # Concurrency
//
// The Cache is safe for concurrent use. Concurrent fetches of one key collapse
// into a single fetcher call (singleflight). Invalidate and RevalidateStale
// refetch matching entries in parallel (errgroup).
//
// Each entry carries an epoch. Remove and Clear drop entries, so a fetch that
// started before them finds a different epoch (or no entry) when it settles
// and its result is discarded instead of resurrecting data for a logged-out
// user.
//
// # Notifications
//
// OnChange registers a callback invoked, outside the lock, after any entry
// changes. The UI uses it to schedule a redraw.
package query
