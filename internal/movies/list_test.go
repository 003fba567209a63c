package movies

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/five82/marquee/internal/api"
	"github.com/five82/marquee/internal/query"
)

// fakeSource serves a catalog of total movies per term, pageSize per page.
type fakeSource struct {
	mu       sync.Mutex
	total    int
	calls    []api.MovieQuery
	failNext error
	gates    map[string]chan struct{}
	// pageGates holds requests for a page number until closed.
	pageGates map[int]chan struct{}
}

func (f *fakeSource) Movies(ctx context.Context, q api.MovieQuery) (api.MoviePage, error) {
	f.mu.Lock()
	f.calls = append(f.calls, q)
	gate := f.gates[q.Search]
	if g := f.pageGates[q.Page]; g != nil {
		gate = g
	}
	err := f.failNext
	f.failNext = nil
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return api.MoviePage{}, ctx.Err()
		}
	}
	if err != nil {
		return api.MoviePage{}, err
	}

	totalPages := (f.total + q.Limit - 1) / q.Limit
	page := api.MoviePage{CurrentPage: q.Page, TotalPages: totalPages, TotalMovies: f.total}
	for i := (q.Page - 1) * q.Limit; i < q.Page*q.Limit && i < f.total; i++ {
		cat := "c-odd"
		if i%2 == 0 {
			cat = "c-even"
		}
		page.Movies = append(page.Movies, api.Movie{
			ID:         fmt.Sprintf("%s-%d", q.Search, i),
			Title:      fmt.Sprintf("%s movie %d", q.Search, i),
			Categories: []string{cat},
		})
	}
	return page, nil
}

func (f *fakeSource) Calls() []api.MovieQuery {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]api.MovieQuery(nil), f.calls...)
}

func newTestList(src *fakeSource) *List {
	return NewList(Options{
		Source:      src,
		Cache:       query.NewCache(),
		PageSize:    3,
		SearchDelay: 20 * time.Millisecond,
	})
}

func ids(movies []api.Movie) []string {
	out := make([]string, 0, len(movies))
	for _, m := range movies {
		out = append(out, m.ID)
	}
	return out
}

func TestList_SearchBurstIssuesOneFetchWithFinalTerm(t *testing.T) {
	src := &fakeSource{total: 5}
	l := newTestList(src)
	ctx := context.Background()

	for _, term := range []string{"h", "he", "hea", "heat"} {
		l.SetSearch(ctx, term)
		time.Sleep(2 * time.Millisecond)
	}
	if got := l.Snapshot().Input; got != "heat" {
		t.Fatalf("Input = %q, want heat", got)
	}

	waitFor(t, func() bool { return len(l.Snapshot().Movies) > 0 })
	time.Sleep(40 * time.Millisecond)

	calls := src.Calls()
	if len(calls) != 1 {
		t.Fatalf("fetch calls = %d (%v), want 1", len(calls), calls)
	}
	if calls[0].Search != "heat" || calls[0].Page != 1 || calls[0].Limit != 3 {
		t.Fatalf("call = %+v, want heat page 1 limit 3", calls[0])
	}
	if l.Snapshot().Term != "heat" {
		t.Fatalf("Term = %q, want heat", l.Snapshot().Term)
	}
}

func TestList_LoadMoreAppendsAndResetReplaces(t *testing.T) {
	src := &fakeSource{total: 7}
	l := newTestList(src)
	ctx := context.Background()

	if err := l.Load(ctx); err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	for l.Snapshot().HasMore {
		if err := l.LoadMore(ctx); err != nil {
			t.Fatalf("LoadMore returned error: %v", err)
		}
	}
	appended := ids(l.Snapshot().Movies)
	want := []string{"-0", "-1", "-2", "-3", "-4", "-5", "-6"}
	if fmt.Sprint(appended) != fmt.Sprint(want) {
		t.Fatalf("appended = %v, want %v", appended, want)
	}

	// LoadMore at the end is a no-op.
	before := len(src.Calls())
	if err := l.LoadMore(ctx); err != nil {
		t.Fatalf("LoadMore returned error: %v", err)
	}
	if len(src.Calls()) != before {
		t.Fatal("LoadMore fetched with no pages remaining")
	}

	// Switching term replaces the accumulated pages.
	if err := l.ApplySearch(ctx, "x"); err != nil {
		t.Fatalf("ApplySearch returned error: %v", err)
	}
	v := l.Snapshot()
	if fmt.Sprint(ids(v.Movies)) != fmt.Sprint([]string{"x-0", "x-1", "x-2"}) {
		t.Fatalf("after reset = %v, want first page of x only", ids(v.Movies))
	}

	// Invalidation refetches pages 1..n and yields the same flat sequence.
	if err := l.ApplySearch(ctx, ""); err != nil {
		t.Fatalf("ApplySearch returned error: %v", err)
	}
	if err := l.cache.Invalidate(ctx, Prefix); err != nil {
		t.Fatalf("Invalidate returned error: %v", err)
	}
	if got := ids(l.Snapshot().Movies); fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("after refetch = %v, want %v", got, want)
	}
}

func TestList_LateResultForOldTermIsIgnored(t *testing.T) {
	src := &fakeSource{total: 4, gates: map[string]chan struct{}{"a": make(chan struct{})}}
	l := newTestList(src)
	ctx := context.Background()

	errA := make(chan error, 1)
	go func() { errA <- l.ApplySearch(ctx, "a") }()
	waitFor(t, func() bool { return len(src.Calls()) == 1 })

	if err := l.ApplySearch(ctx, "b"); err != nil {
		t.Fatalf("ApplySearch(b) returned error: %v", err)
	}
	close(src.gates["a"])
	if err := <-errA; err != nil {
		t.Fatalf("ApplySearch(a) returned error: %v", err)
	}

	v := l.Snapshot()
	if v.Term != "b" {
		t.Fatalf("Term = %q, want b", v.Term)
	}
	for _, m := range v.Movies {
		if m.ID[0] != 'b' {
			t.Fatalf("movie %q from old term shown after switching to b", m.ID)
		}
	}
	if len(v.Movies) != 3 {
		t.Fatalf("movies = %v, want first page of b", ids(v.Movies))
	}
}

func TestList_LoadMoreForOldTermIsDiscarded(t *testing.T) {
	src := &fakeSource{total: 6}
	l := newTestList(src)
	ctx := context.Background()
	if err := l.ApplySearch(ctx, "a"); err != nil {
		t.Fatalf("ApplySearch returned error: %v", err)
	}

	gate := make(chan struct{})
	src.mu.Lock()
	src.gates = map[string]chan struct{}{"a": gate}
	src.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- l.LoadMore(ctx) }()
	waitFor(t, func() bool { return l.Snapshot().LoadingMore })

	src.mu.Lock()
	src.gates = nil
	src.mu.Unlock()
	if err := l.ApplySearch(ctx, "b"); err != nil {
		t.Fatalf("ApplySearch returned error: %v", err)
	}
	if l.Snapshot().LoadingMore {
		t.Fatal("LoadingMore carried over to new term")
	}

	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("LoadMore returned error: %v", err)
	}
	if got := ids(l.Snapshot().Movies); len(got) != 3 || got[0] != "b-0" {
		t.Fatalf("movies = %v, want only b page 1", got)
	}
	if pages, _ := query.Get[[]api.MoviePage](l.cache, KeyFor("a")); len(pages) != 1 {
		t.Fatalf("cached a pages = %d, want 1", len(pages))
	}
}

func TestList_RefetchDuringLoadMoreKeepsAppendedPage(t *testing.T) {
	src := &fakeSource{total: 7}
	l := newTestList(src)
	ctx := context.Background()
	if err := l.Load(ctx); err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	page1 := make(chan struct{})
	page2 := make(chan struct{})
	src.mu.Lock()
	src.pageGates = map[int]chan struct{}{1: page1, 2: page2}
	src.mu.Unlock()

	more := make(chan error, 1)
	go func() { more <- l.LoadMore(ctx) }()
	waitFor(t, func() bool { return l.Snapshot().LoadingMore })

	// A refetch sized for one page starts while page 2 is on its way.
	refetch := make(chan error, 1)
	go func() { refetch <- l.Retry(ctx) }()
	waitFor(t, func() bool { return l.Snapshot().Refreshing })

	close(page2)
	if err := <-more; err != nil {
		t.Fatalf("LoadMore returned error: %v", err)
	}
	if got := l.Snapshot().Loaded; got != 6 {
		t.Fatalf("Loaded after LoadMore = %d, want 6", got)
	}

	close(page1)
	if err := <-refetch; err != nil {
		t.Fatalf("Retry returned error: %v", err)
	}
	v := l.Snapshot()
	want := []string{"-0", "-1", "-2", "-3", "-4", "-5"}
	if fmt.Sprint(ids(v.Movies)) != fmt.Sprint(want) {
		t.Fatalf("movies after refetch = %v, want %v", ids(v.Movies), want)
	}
	if !v.HasMore {
		t.Fatal("HasMore = false, want true with page 3 remaining")
	}
}

func TestKeepAppended(t *testing.T) {
	page := func(n int) api.MoviePage {
		return api.MoviePage{CurrentPage: n, TotalPages: 3}
	}
	last := api.MoviePage{CurrentPage: 1, TotalPages: 1}

	tests := []struct {
		name    string
		cached  []api.MoviePage
		fetched []api.MoviePage
		want    int
	}{
		{"same length", []api.MoviePage{page(1), page(2)}, []api.MoviePage{page(1), page(2)}, 2},
		{"keeps appended", []api.MoviePage{page(1), page(2)}, []api.MoviePage{page(1)}, 2},
		{"catalog shrank", []api.MoviePage{page(1), page(2)}, []api.MoviePage{last}, 1},
		{"nothing fetched", []api.MoviePage{page(1)}, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := keepAppended(tt.cached, tt.fetched); len(got) != tt.want {
				t.Fatalf("len = %d, want %d", len(got), tt.want)
			}
		})
	}
}

func TestList_SentinelIsEdgeTriggered(t *testing.T) {
	src := &fakeSource{total: 9}
	l := newTestList(src)
	ctx := context.Background()
	if err := l.Load(ctx); err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	_ = l.SentinelVisible(ctx, true)
	_ = l.SentinelVisible(ctx, true)
	if got := l.Snapshot().Loaded; got != 6 {
		t.Fatalf("Loaded = %d after staying visible, want 6", got)
	}
	_ = l.SentinelVisible(ctx, false)
	_ = l.SentinelVisible(ctx, true)
	if got := l.Snapshot().Loaded; got != 9 {
		t.Fatalf("Loaded = %d after second edge, want 9", got)
	}
}

func TestList_CategoryFilterKeepsPages(t *testing.T) {
	src := &fakeSource{total: 6}
	l := newTestList(src)
	ctx := context.Background()
	_ = l.Load(ctx)
	_ = l.LoadMore(ctx)

	l.SelectCategory("c-even")
	v := l.Snapshot()
	if fmt.Sprint(ids(v.Movies)) != fmt.Sprint([]string{"-0", "-2", "-4"}) {
		t.Fatalf("filtered = %v", ids(v.Movies))
	}
	if v.Loaded != 6 {
		t.Fatalf("Loaded = %d, want 6", v.Loaded)
	}
	l.SelectCategory("")
	if got := len(l.Snapshot().Movies); got != 6 {
		t.Fatalf("unfiltered = %d, want 6", got)
	}
}

func TestList_RetryAfterFailures(t *testing.T) {
	boom := errors.New("boom")
	src := &fakeSource{total: 6, failNext: boom}
	l := newTestList(src)
	ctx := context.Background()

	if err := l.Load(ctx); !errors.Is(err, boom) {
		t.Fatalf("Load err = %v, want boom", err)
	}
	if v := l.Snapshot(); v.Status != query.StatusError || v.Err == nil {
		t.Fatalf("snapshot = %+v, want error status", v)
	}
	if err := l.Retry(ctx); err != nil {
		t.Fatalf("Retry returned error: %v", err)
	}
	if got := l.Snapshot().Loaded; got != 3 {
		t.Fatalf("Loaded after retry = %d, want 3", got)
	}

	src.mu.Lock()
	src.failNext = boom
	src.mu.Unlock()
	if err := l.LoadMore(ctx); !errors.Is(err, boom) {
		t.Fatalf("LoadMore err = %v, want boom", err)
	}
	v := l.Snapshot()
	if v.MoreErr == nil || v.Loaded != 3 {
		t.Fatalf("snapshot = %+v, want MoreErr with pages kept", v)
	}
	if err := l.Retry(ctx); err != nil {
		t.Fatalf("Retry returned error: %v", err)
	}
	if got := l.Snapshot().Loaded; got != 6 {
		t.Fatalf("Loaded after retry = %d, want 6", got)
	}
}

func TestRatedBy_SortsHighestFirst(t *testing.T) {
	movies := []api.Movie{
		{ID: "a", Ratings: []api.Rating{{UserID: "u", Rating: 3}}},
		{ID: "b"},
		{ID: "c", Ratings: []api.Rating{{UserID: "u", Rating: 5}}},
		{ID: "d", Ratings: []api.Rating{{UserID: "x", Rating: 4}}},
	}
	if got := ids(RatedBy(movies, "u")); fmt.Sprint(got) != "[c a]" {
		t.Fatalf("RatedBy = %v, want [c a]", got)
	}
	if RatedBy(movies, "") != nil {
		t.Fatal("RatedBy with no user should be nil")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
