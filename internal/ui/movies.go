package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/five82/marquee/internal/api"
	"github.com/five82/marquee/internal/movies"
	"github.com/five82/marquee/internal/prefs"
	"github.com/five82/marquee/internal/query"
	"github.com/five82/marquee/internal/rating"
)

const (
	tabAll       = "All"
	tabMyRatings = "My Ratings"
)

// movieState is the movie screen state.
type movieState struct {
	search    textinput.Model
	searching bool

	tab     int
	wantTab string

	cursor   int
	offset   int
	term     string
	sentinel bool
}

func newMovieState(lastTab string) movieState {
	search := textinput.New()
	search.Prompt = ""
	search.Placeholder = "title"
	search.CharLimit = 100
	return movieState{search: search, wantTab: strings.TrimSpace(lastTab)}
}

// reset forgets everything tied to the previous session.
func (s *movieState) reset() {
	s.search.SetValue("")
	s.search.Blur()
	s.searching = false
	s.tab = 0
	s.cursor = 0
	s.offset = 0
	s.term = ""
	s.sentinel = false
}

// followTerm resets the cursor when the applied search term changes.
func (s *movieState) followTerm(term string) {
	if term == s.term {
		return
	}
	s.term = term
	s.cursor = 0
	s.offset = 0
	s.sentinel = false
}

// clamp keeps the cursor on an item and inside the window of rows.
func (s *movieState) clamp(n, rows int) {
	s.cursor = max(min(s.cursor, n-1), 0)
	if s.cursor < s.offset {
		s.offset = s.cursor
	}
	if rows > 0 && s.cursor >= s.offset+rows {
		s.offset = s.cursor - rows + 1
	}
	s.offset = max(min(s.offset, n-rows), 0)
}

type movieTab struct {
	label      string
	categoryID string
	mine       bool
}

// movieTabs returns All, one tab per category and, when signed in, the
// user's rated movies.
func (m Model) movieTabs() []movieTab {
	tabs := []movieTab{{label: tabAll}}
	for _, c := range m.catalog.Cached() {
		tabs = append(tabs, movieTab{label: c.Name, categoryID: c.ID})
	}
	if m.authed {
		tabs = append(tabs, movieTab{label: tabMyRatings, mine: true})
	}
	return tabs
}

func (m Model) currentTab() movieTab {
	tabs := m.movieTabs()
	return tabs[max(min(m.browse.tab, len(tabs)-1), 0)]
}

// selectTab activates tab idx, wrapping around the ends.
func (m *Model) selectTab(idx int) {
	tabs := m.movieTabs()
	n := len(tabs)
	idx = ((idx % n) + n) % n
	m.browse.tab = idx
	m.browse.cursor = 0
	m.browse.offset = 0
	m.browse.wantTab = ""
	m.movies.SelectCategory(tabs[idx].categoryID)
}

// restoreTab applies the remembered tab once categories are known.
func (m *Model) restoreTab() {
	want := m.browse.wantTab
	if want == "" || want == tabAll {
		m.browse.wantTab = ""
		return
	}
	if len(m.catalog.Cached()) == 0 {
		return
	}
	for i, t := range m.movieTabs() {
		if strings.EqualFold(t.label, want) {
			m.selectTab(i)
			return
		}
	}
	m.browse.wantTab = ""
}

// visibleMovies returns the rows for the current tab.
func (m Model) visibleMovies(view movies.View) []api.Movie {
	if m.currentTab().mine {
		return m.movies.RatedByUser(m.session.UserID())
	}
	return view.Movies
}

func (m Model) sidePane() bool {
	return m.width >= LayoutSidePaneWidth
}

// movieListRows is how many movie rows fit on screen.
func (m Model) movieListRows() int {
	rows := m.contentHeight() - movieChromeRows - movieDetailRows
	if !m.sidePane() {
		rows -= recsBelowRows
	}
	return max(rows, 3)
}

// syncSentinel reports whether the end of the list is on screen, starting a
// page load when it comes into view.
func (m *Model) syncSentinel() tea.Cmd {
	visible := false
	if m.ready && m.screen == ScreenMovies && m.authed && !m.currentTab().mine {
		view := m.movies.Snapshot()
		n := len(m.visibleMovies(view))
		rows := m.movieListRows()
		m.browse.clamp(n, rows)
		visible = view.Status == query.StatusSuccess && m.browse.offset+rows >= n
	}
	if visible == m.browse.sentinel {
		return nil
	}
	m.browse.sentinel = visible
	if !visible {
		_ = m.movies.SentinelVisible(m.ctx, false)
		return nil
	}
	ctx, list := m.ctx, m.movies
	return func() tea.Msg {
		return moreResultMsg{err: list.SentinelVisible(ctx, true)}
	}
}

func loadMoreCmd(ctx context.Context, list *movies.List) tea.Cmd {
	return func() tea.Msg {
		return moreResultMsg{err: list.LoadMore(ctx)}
	}
}

type rateResultMsg struct {
	title string
	res   rating.Result
	err   error
}

func rateCmd(ctx context.Context, c *rating.Controller, movie api.Movie, stars int) tea.Cmd {
	return func() tea.Msg {
		res, err := c.Submit(ctx, movie.ID, stars)
		return rateResultMsg{title: movie.Title, res: res, err: err}
	}
}

func (m Model) handleRateResult(msg rateResultMsg) (tea.Model, tea.Cmd) {
	switch {
	case msg.err == nil:
		return m, m.setFlash(flashSuccess, fmt.Sprintf("Rated %s %s", msg.title, stars(msg.res.Stars)))
	case errors.Is(msg.err, rating.ErrAuthRequired):
		return m, m.setFlash(flashError, "Please sign in to rate movies.")
	case msg.res.Outcome == rating.Superseded:
		return m, nil
	default:
		return m, m.setFlash(flashError, "Couldn't save rating for "+msg.title+": "+api.Message(msg.err))
	}
}

// handleMoviesKey processes keyboard input for the movie screen.
func (m Model) handleMoviesKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	s := &m.browse
	if s.searching {
		switch {
		case key.Matches(msg, m.keys.Escape):
			s.searching = false
			s.search.Blur()
			return m, nil
		case key.Matches(msg, m.keys.Submit):
			s.searching = false
			s.search.Blur()
			m.movies.CancelSearch()
			term := s.search.Value()
			return m, loadCmd(m.ctx, "search", func(ctx context.Context) error {
				return m.movies.ApplySearch(ctx, term)
			})
		}
		before := s.search.Value()
		var cmd tea.Cmd
		s.search, cmd = s.search.Update(msg)
		if v := s.search.Value(); v != before {
			m.movies.SetSearch(m.ctx, v)
		}
		return m, cmd
	}

	view := m.movies.Snapshot()
	items := m.visibleMovies(view)
	rows := m.movieListRows()

	switch {
	case key.Matches(msg, m.keys.Search):
		s.searching = true
		return m, s.search.Focus()
	case key.Matches(msg, m.keys.Escape):
		if view.Term == "" && s.search.Value() == "" {
			return m, nil
		}
		s.search.SetValue("")
		m.movies.CancelSearch()
		return m, loadCmd(m.ctx, "search", func(ctx context.Context) error {
			return m.movies.ApplySearch(ctx, "")
		})
	case key.Matches(msg, m.keys.PrevTab):
		m.selectTab(s.tab - 1)
		m.saveTab()
		return m, m.syncSentinel()
	case key.Matches(msg, m.keys.NextTab):
		m.selectTab(s.tab + 1)
		m.saveTab()
		return m, m.syncSentinel()
	case key.Matches(msg, m.keys.Retry):
		return m, m.retryMovies(view)
	case key.Matches(msg, m.keys.Rate):
		if len(items) == 0 {
			return m, nil
		}
		n := int(msg.String()[0] - '0')
		movie := items[max(min(s.cursor, len(items)-1), 0)]
		return m, rateCmd(m.ctx, m.rating, movie, n)
	case key.Matches(msg, m.keys.Down):
		if s.cursor >= len(items)-1 && view.HasMore && !m.currentTab().mine {
			return m, loadMoreCmd(m.ctx, m.movies)
		}
		s.cursor++
	case key.Matches(msg, m.keys.Up):
		s.cursor--
	case key.Matches(msg, m.keys.Top):
		s.cursor = 0
	case key.Matches(msg, m.keys.Bottom):
		s.cursor = len(items) - 1
	case key.Matches(msg, m.keys.PageDown):
		s.cursor += rows / 2
	case key.Matches(msg, m.keys.PageUp):
		s.cursor -= rows / 2
	default:
		return m, nil
	}
	s.clamp(len(items), rows)
	return m, m.syncSentinel()
}

func (m *Model) saveTab() {
	label := m.currentTab().label
	m.savePrefs(func(p *prefs.Prefs) { p.LastTab = label })
}

// retryMovies re-runs whichever movie screen fetch failed.
func (m Model) retryMovies(view movies.View) tea.Cmd {
	var cmds []tea.Cmd
	if view.Err != nil || view.MoreErr != nil {
		cmds = append(cmds, loadCmd(m.ctx, "retry", m.movies.Retry))
	}
	if m.catalog.Entry().Err != nil {
		cmds = append(cmds, loadCatalogCmd(m.ctx, m.catalog))
	}
	if m.recs.Entry().Err != nil {
		cmds = append(cmds, loadRecsCmd(m.ctx, m.recs))
	}
	if len(cmds) == 0 {
		return nil
	}
	return tea.Batch(cmds...)
}

// renderMovies renders the search bar, category tabs, movie list and
// recommendations.
func (m Model) renderMovies() string {
	view := m.movies.Snapshot()
	items := m.visibleMovies(view)
	s := m.browse
	s.clamp(len(items), m.movieListRows())

	listWidth := m.width - 2
	if m.sidePane() {
		listWidth = m.width - SidePaneWidth - 3
	}

	var b strings.Builder
	b.WriteString(m.renderSearchBar(view))
	b.WriteString("\n")
	b.WriteString(m.renderTabs(listWidth))
	b.WriteString("\n\n")
	b.WriteString(m.renderMovieList(view, items, s, listWidth))
	left := b.String()

	recs := m.renderRecommendations(SidePaneWidth)
	if m.sidePane() {
		return lipgloss.JoinHorizontal(lipgloss.Top, " "+left, " ", recs)
	}
	return lipgloss.JoinVertical(lipgloss.Left, " "+left, recs)
}

func (m Model) renderSearchBar(view movies.View) string {
	styles := m.theme.Styles()
	label := styles.MutedText.Render("Search ")
	if m.browse.searching {
		label = styles.AccentText.Bold(true).Render("Search ")
		return label + m.browse.search.View()
	}
	if view.Term == "" && view.Input == "" {
		return label + styles.FaintText.Render("press / to search titles")
	}
	text := styles.Text.Render(view.Input)
	if view.Input != view.Term {
		text += " " + m.spinner.View()
	}
	return label + text
}

func (m Model) renderTabs(width int) string {
	styles := m.theme.Styles()
	tabs := m.movieTabs()
	current := max(min(m.browse.tab, len(tabs)-1), 0)

	parts := make([]string, 0, len(tabs))
	for i, t := range tabs {
		if i == current {
			parts = append(parts, styles.Selected.Bold(true).Render(" "+t.label+" "))
			continue
		}
		parts = append(parts, styles.MutedText.Render(" "+t.label+" "))
	}

	// Keep the active tab on screen when the row overflows.
	start := 0
	for start < current && lipgloss.Width(strings.Join(parts[start:current+1], "")) > width {
		start++
	}
	line := strings.Join(parts[start:], "")
	if start > 0 {
		line = styles.FaintText.Render("‹") + line
	}
	return lipgloss.NewStyle().MaxWidth(width).Render(line)
}

func (m Model) renderMovieList(view movies.View, items []api.Movie, s movieState, width int) string {
	styles := m.theme.Styles()
	rows := m.movieListRows()
	userID := m.session.UserID()
	tab := m.currentTab()

	var b strings.Builder
	titleWidth := max(width-40, 12)
	header := fmt.Sprintf("  %s  %s  %s  %s", padRight("Title", titleWidth), "Year", padRight("Yours", 7), "Avg")
	b.WriteString(styles.FaintText.Render(header))
	b.WriteString("\n")

	switch {
	case view.Loading():
		b.WriteString("  " + m.spinner.View() + " " + styles.MutedText.Render("Loading movies..."))
		b.WriteString(strings.Repeat("\n", rows))
	case view.Err != nil && view.Loaded == 0:
		b.WriteString("  " + styles.DangerText.Render("Couldn't load movies: "+api.Message(view.Err)))
		b.WriteString("\n  " + styles.FaintText.Render("press r to retry"))
		b.WriteString(strings.Repeat("\n", rows-1))
	case len(items) == 0:
		b.WriteString("  " + styles.MutedText.Render(m.emptyMessage(view, tab)))
		b.WriteString(strings.Repeat("\n", rows))
	default:
		end := min(s.offset+rows, len(items))
		for i := s.offset; i < end; i++ {
			b.WriteString(m.renderMovieRow(items[i], userID, titleWidth, i == s.cursor))
			b.WriteString("\n")
		}
		b.WriteString(strings.Repeat("\n", rows-(end-s.offset)))
	}

	b.WriteString("\n")
	if len(items) > 0 {
		b.WriteString(m.renderMovieDetail(items[s.cursor], width))
	} else {
		b.WriteString(strings.Repeat("\n", movieDetailRows))
	}
	b.WriteString(m.renderListStatus(view, items, tab))
	return b.String()
}

func (m Model) emptyMessage(view movies.View, tab movieTab) string {
	switch {
	case tab.mine:
		return "You haven't rated any of the loaded movies yet."
	case view.Term != "":
		return fmt.Sprintf("No movies match %q.", view.Term)
	case tab.categoryID != "" && view.HasMore:
		return "No loaded movies in " + tab.label + " yet. Scroll to load more."
	default:
		return "No movies found."
	}
}

func (m Model) renderMovieRow(movie api.Movie, userID string, titleWidth int, selected bool) string {
	styles := m.theme.Styles()
	yours := rating.DisplayRating(movie, userID)
	pending := m.rating.Pending(movie.ID)

	title := padRight(truncate(movie.Title, titleWidth), titleWidth)
	starText := stars(yours)
	if pending {
		starText += "*"
	} else {
		starText += " "
	}
	avg := formatAverage(movie.AverageRating)

	if selected {
		line := "▸ " + title + "  " + formatYear(movie.ReleaseYear) + "  " + starText + "  " + avg
		return styles.Selected.Render(line)
	}
	starStyle := styles.StarText
	if yours == 0 {
		starStyle = styles.FaintText
	}
	return "  " + styles.Text.Render(title) + "  " +
		styles.MutedText.Render(formatYear(movie.ReleaseYear)) + "  " +
		starStyle.Render(starText) + "  " +
		styles.InfoText.Render(avg)
}

func (m Model) renderMovieDetail(movie api.Movie, width int) string {
	styles := m.theme.Styles()
	cats := make([]string, 0, len(movie.Categories))
	all := m.catalog.Cached()
	for _, id := range movie.Categories {
		cats = append(cats, movies.CategoryName(all, id))
	}
	ratedBy := len(movie.Ratings)

	lines := []string{
		styles.AccentText.Bold(true).Render(truncate(movie.Title, width-2)),
		styles.MutedText.Render(truncate(strings.Join(cats, ", ")+fmt.Sprintf("  (%d ratings)", ratedBy), width-2)),
		styles.Text.Render(truncate(movie.Description, width-2)),
	}
	return " " + strings.Join(lines, "\n ") + "\n"
}

func (m Model) renderListStatus(view movies.View, items []api.Movie, tab movieTab) string {
	styles := m.theme.Styles()
	var parts []string
	if tab.mine {
		parts = append(parts, styles.MutedText.Render(fmt.Sprintf("%d rated", len(items))))
	} else if view.TotalMovies > 0 {
		parts = append(parts, styles.MutedText.Render(fmt.Sprintf("Loaded %d of %d", view.Loaded, view.TotalMovies)))
	}

	switch {
	case view.LoadingMore:
		parts = append(parts, m.spinner.View()+" "+styles.MutedText.Render("Loading more..."))
	case view.MoreErr != nil:
		parts = append(parts, styles.DangerText.Render("Couldn't load more: "+api.Message(view.MoreErr)+" (r to retry)"))
	case view.Refreshing:
		parts = append(parts, m.spinner.View()+" "+styles.MutedText.Render("Refreshing..."))
	case view.Err != nil && view.Loaded > 0:
		parts = append(parts, styles.WarningText.Render("Showing cached results: "+api.Message(view.Err)))
	case !view.HasMore && view.Loaded > 0 && !tab.mine:
		parts = append(parts, styles.FaintText.Render("End of list"))
	}
	return " " + strings.Join(parts, styles.FaintText.Render("  •  "))
}

// renderRecommendations renders the signed-in user's recommendations.
func (m Model) renderRecommendations(width int) string {
	styles := m.theme.Styles()
	entry := m.recs.Entry()
	recs, _ := entry.Data.([]api.RecommendedMovie)

	limit := recsBelowRows - 2
	if m.sidePane() {
		limit = max((m.contentHeight()-4)/3, 1)
	}

	var b strings.Builder
	b.WriteString(styles.AccentText.Bold(true).Render("Recommended for you"))
	b.WriteString("\n")
	switch {
	case !m.authed:
		b.WriteString(styles.FaintText.Render("Sign in for recommendations."))
	case !entry.HasData() && entry.Err != nil:
		b.WriteString(styles.DangerText.Render(truncate("Couldn't load: "+api.Message(entry.Err), width-4)))
	case !entry.HasData():
		b.WriteString(m.spinner.View() + " " + styles.MutedText.Render("Loading..."))
	case len(recs) == 0:
		b.WriteString(styles.MutedText.Render("Rate a few movies to get recommendations."))
	default:
		for i, r := range recs {
			if i >= limit {
				b.WriteString(styles.FaintText.Render(fmt.Sprintf("+%d more", len(recs)-limit)))
				break
			}
			if m.sidePane() {
				b.WriteString(styles.Text.Render(truncate(r.Title, width-12)) + " " +
					styles.MutedText.Render(formatYear(r.ReleaseYear)) + " " +
					styles.InfoText.Render(formatAverage(r.AverageRating)) + "\n")
				b.WriteString(styles.FaintText.Render(truncate(string(r.Categories), width-4)) + "\n")
				b.WriteString(styles.MutedText.Render(truncate(r.Description, width-4)))
				if i < len(recs)-1 {
					b.WriteString("\n")
				}
				continue
			}
			b.WriteString(styles.Text.Render(truncate(r.Title, 40)) + "  " +
				styles.FaintText.Render(truncate(string(r.Categories), 30)) + "  " +
				styles.InfoText.Render(formatAverage(r.AverageRating)))
			if i < len(recs)-1 {
				b.WriteString("\n")
			}
		}
	}

	panel := styles.Panel
	if m.sidePane() {
		return panel.Width(width).Height(max(m.contentHeight()-2, 3)).Render(b.String())
	}
	return panel.Width(max(m.width-4, 20)).Render(b.String())
}
