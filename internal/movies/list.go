package movies

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/five82/marquee/internal/api"
	"github.com/five82/marquee/internal/debounce"
	"github.com/five82/marquee/internal/logging"
	"github.com/five82/marquee/internal/query"
)

// DefaultSearchDelay is the quiet period before a typed search term is
// applied.
const DefaultSearchDelay = 500 * time.Millisecond

// Source fetches catalog pages. *api.Client satisfies it.
type Source interface {
	Movies(ctx context.Context, q api.MovieQuery) (api.MoviePage, error)
}

// KeyFor returns the cache key holding the pages loaded for term.
func KeyFor(term string) query.Key {
	return query.Key{"movies", term}
}

// Prefix matches every movie list entry regardless of term.
var Prefix = query.Key{"movies"}

// Options configures a List.
type Options struct {
	Source      Source
	Cache       *query.Cache
	PageSize    int
	SearchDelay time.Duration
	// Notify is called after list-local state changes (search input,
	// category tab, load-more progress). Cache changes are reported by the
	// cache itself.
	Notify func()
}

// List is the infinite-scroll movie list controller.
type List struct {
	source    Source
	cache     *query.Cache
	pageSize  int
	debouncer *debounce.Debouncer
	notify    func()
	log       zerolog.Logger

	mu          sync.Mutex
	input       string
	term        string
	generation  uint64
	category    string
	loadingMore bool
	moreErr     error
	sentinel    bool
}

// NewList builds a List. It does not fetch until Load is called.
func NewList(opts Options) *List {
	size := opts.PageSize
	if size < 1 {
		size = api.DefaultPageLimit
	}
	delay := opts.SearchDelay
	if delay <= 0 {
		delay = DefaultSearchDelay
	}
	notify := opts.Notify
	if notify == nil {
		notify = func() {}
	}
	return &List{
		source:    opts.Source,
		cache:     opts.Cache,
		pageSize:  size,
		debouncer: debounce.New(delay),
		notify:    notify,
		log:       logging.Component("movies"),
	}
}

// View is what the movie screen renders.
type View struct {
	Input       string
	Term        string
	Category    string
	Movies      []api.Movie
	Loaded      int
	TotalMovies int
	Status      query.Status
	Err         error
	Refreshing  bool
	HasMore     bool
	LoadingMore bool
	MoreErr     error
}

// Loading reports whether the first page for the term is still on its way.
func (v View) Loading() bool {
	return v.Loaded == 0 && (v.Status == query.StatusIdle || v.Status == query.StatusLoading)
}

// Load fetches the current term's pages, serving them from the cache while
// fresh.
func (l *List) Load(ctx context.Context) error {
	l.mu.Lock()
	term := l.term
	l.mu.Unlock()
	_, err := query.Fetch(ctx, l.cache, l.queryFor(term))
	return err
}

func (l *List) queryFor(term string) query.Query[[]api.MoviePage] {
	return query.Query[[]api.MoviePage]{
		Key:       KeyFor(term),
		StaleTime: query.StaleMovies,
		Fn: func(ctx context.Context) ([]api.MoviePage, error) {
			return l.fetchPages(ctx, term)
		},
		Merge: keepAppended,
	}
}

// keepAppended keeps pages that LoadMore appended while a refetch of the
// earlier pages was running.
func keepAppended(cached, fetched []api.MoviePage) []api.MoviePage {
	n := len(fetched)
	if n == 0 || len(cached) <= n || !fetched[n-1].HasMore() {
		return fetched
	}
	out := make([]api.MoviePage, 0, len(cached))
	out = append(out, fetched...)
	return append(out, cached[n:]...)
}

// fetchPages refetches every page already loaded for term, or the first
// page when none are.
func (l *List) fetchPages(ctx context.Context, term string) ([]api.MoviePage, error) {
	loaded, _ := query.Get[[]api.MoviePage](l.cache, KeyFor(term))
	want := max(len(loaded), 1)

	pages := make([]api.MoviePage, 0, want)
	for page := 1; page <= want; page++ {
		p, err := l.source.Movies(ctx, api.MovieQuery{Page: page, Limit: l.pageSize, Search: term})
		if err != nil {
			return nil, err
		}
		pages = append(pages, p)
		if !p.HasMore() {
			break
		}
	}
	l.log.Debug().Str("term", term).Int("pages", len(pages)).Msg("fetched movie pages")
	return pages, nil
}

// SetSearch records the typed term and applies it once input has been quiet
// for the search delay. Each call cancels the previously scheduled one.
func (l *List) SetSearch(ctx context.Context, term string) {
	l.mu.Lock()
	l.input = term
	l.mu.Unlock()
	l.notify()

	l.debouncer.Trigger(func() {
		if err := l.ApplySearch(ctx, term); err != nil && !errors.Is(err, context.Canceled) {
			l.log.Debug().Err(err).Str("term", term).Msg("search fetch failed")
		}
	})
}

// ApplySearch switches the list to term immediately and loads its first
// page. Pages accumulated for the previous term are no longer shown, and
// late results for it are ignored.
func (l *List) ApplySearch(ctx context.Context, term string) error {
	term = strings.TrimSpace(term)
	l.mu.Lock()
	l.input = term
	if term == l.term {
		l.mu.Unlock()
		return nil
	}
	l.term = term
	l.generation++
	l.loadingMore = false
	l.moreErr = nil
	l.sentinel = false
	l.mu.Unlock()
	l.notify()

	return l.Load(ctx)
}

// CancelSearch drops a pending debounced term.
func (l *List) CancelSearch() {
	l.debouncer.Stop()
}

// SelectCategory filters the accumulated movies by category id. An empty id
// shows everything. Loaded pages are kept.
func (l *List) SelectCategory(id string) {
	l.mu.Lock()
	changed := l.category != id
	l.category = id
	l.mu.Unlock()
	if changed {
		l.notify()
	}
}

// LoadMore fetches the next page and appends it. It is a no-op while a load
// is running or when no pages remain.
func (l *List) LoadMore(ctx context.Context) error {
	l.mu.Lock()
	term := l.term
	entry, _ := l.cache.Entry(KeyFor(term))
	pages, _ := entry.Data.([]api.MoviePage)
	if l.loadingMore || entry.Fetching || len(pages) == 0 || !pages[len(pages)-1].HasMore() {
		l.mu.Unlock()
		return nil
	}
	gen := l.generation
	next := len(pages) + 1
	l.loadingMore = true
	l.moreErr = nil
	l.mu.Unlock()
	l.notify()

	page, err := l.source.Movies(ctx, api.MovieQuery{Page: next, Limit: l.pageSize, Search: term})

	l.mu.Lock()
	if gen != l.generation {
		l.mu.Unlock()
		l.log.Debug().Str("term", term).Int("page", next).Msg("discarding page for previous search")
		return nil
	}
	l.loadingMore = false
	if err != nil {
		l.moreErr = err
		l.mu.Unlock()
		l.notify()
		return err
	}
	l.mu.Unlock()

	appended := false
	query.Update(l.cache, KeyFor(term), func(old []api.MoviePage, _ bool) []api.MoviePage {
		if len(old) != next-1 {
			return old
		}
		appended = true
		out := make([]api.MoviePage, 0, next)
		out = append(out, old...)
		return append(out, page)
	})
	if !appended {
		l.log.Debug().Int("page", next).Msg("page list changed during load; dropping page")
	}
	l.notify()
	return nil
}

// SentinelVisible reports the visibility of the end-of-list marker. Loading
// is triggered on the transition to visible.
func (l *List) SentinelVisible(ctx context.Context, visible bool) error {
	l.mu.Lock()
	rising := visible && !l.sentinel
	l.sentinel = visible
	l.mu.Unlock()
	if !rising {
		return nil
	}
	return l.LoadMore(ctx)
}

// Retry re-runs whichever fetch last failed.
func (l *List) Retry(ctx context.Context) error {
	l.mu.Lock()
	moreFailed := l.moreErr != nil
	term := l.term
	l.mu.Unlock()

	if moreFailed {
		return l.LoadMore(ctx)
	}
	if _, err := l.cache.Refetch(ctx, KeyFor(term)); err != nil {
		if errors.Is(err, query.ErrNoFetcher) {
			return l.Load(ctx)
		}
		return err
	}
	return nil
}

// Snapshot returns the current view of the list.
func (l *List) Snapshot() View {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, _ := l.cache.Entry(KeyFor(l.term))
	pages, _ := entry.Data.([]api.MoviePage)
	all := Flatten(pages)

	v := View{
		Input:       l.input,
		Term:        l.term,
		Category:    l.category,
		Movies:      FilterByCategory(all, l.category),
		Loaded:      len(all),
		Status:      entry.Status,
		Err:         entry.Err,
		Refreshing:  entry.Fetching && len(all) > 0,
		LoadingMore: l.loadingMore,
		MoreErr:     l.moreErr,
	}
	if n := len(pages); n > 0 {
		v.HasMore = pages[n-1].HasMore()
		v.TotalMovies = pages[n-1].TotalMovies
	}
	return v
}

// RatedByUser returns the loaded movies userID has rated, highest rating
// first.
func (l *List) RatedByUser(userID string) []api.Movie {
	l.mu.Lock()
	entry, _ := l.cache.Entry(KeyFor(l.term))
	l.mu.Unlock()
	pages, _ := entry.Data.([]api.MoviePage)
	return RatedBy(Flatten(pages), userID)
}

// Flatten concatenates pages in order.
func Flatten(pages []api.MoviePage) []api.Movie {
	var out []api.Movie
	for _, p := range pages {
		out = append(out, p.Movies...)
	}
	return out
}

// FilterByCategory keeps movies tagged with id. An empty id keeps all.
func FilterByCategory(movies []api.Movie, id string) []api.Movie {
	if id == "" {
		return movies
	}
	out := make([]api.Movie, 0, len(movies))
	for _, m := range movies {
		if m.HasCategory(id) {
			out = append(out, m)
		}
	}
	return out
}

// RatedBy keeps movies rated by userID, sorted by that rating descending.
func RatedBy(movies []api.Movie, userID string) []api.Movie {
	if userID == "" {
		return nil
	}
	var out []api.Movie
	for _, m := range movies {
		if m.RatingBy(userID) > 0 {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RatingBy(userID) > out[j].RatingBy(userID)
	})
	return out
}
