package ui

import (
	"net/url"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/five82/marquee/internal/profile"
	"github.com/five82/marquee/internal/query"
)

// renderHeader renders the status bar.
func (m Model) renderHeader() string {
	// Header uses Surface background
	styles := m.theme.Styles().WithBackground(m.theme.Surface)
	bg := NewBgStyle(m.theme.Surface)
	compact := m.width < LayoutCompactWidth

	parts := []string{
		bg.Render("marquee", styles.Logo),
		bg.Render(m.screen.String(), styles.AccentText.Bold(true)),
	}

	// Signed-in user
	if m.authed {
		parts = append(parts, bg.Render("●", styles.SuccessText)+bg.Space()+bg.Render(m.userLabel(compact), styles.Text))
	} else {
		parts = append(parts, bg.Render("○ signed out", styles.MutedText))
	}

	// Query status badge
	status := m.screenStatus()
	parts = append(parts, styles.StatusStyle(status).Render(strings.ToUpper(status)))

	// Backend
	if !compact && m.apiBaseURL != "" {
		parts = append(parts,
			bg.Render("api", styles.FaintText)+bg.Space()+
				bg.Render(displayHost(m.apiBaseURL), styles.MutedText))
	}

	// Flash message
	if m.flash != "" {
		maxLen := 80
		if compact {
			maxLen = 40
		}
		style := styles.InfoText
		switch m.flashKind {
		case flashSuccess:
			style = styles.SuccessText
		case flashError:
			style = styles.DangerText
		}
		parts = append(parts, bg.Render(truncate(m.flash, maxLen), style))
	}

	return lipgloss.NewStyle().
		Background(lipgloss.Color(m.theme.Surface)).
		Foreground(lipgloss.Color(m.theme.Text)).
		Width(m.width).
		MaxWidth(m.width).
		Render(bg.Join(parts, "  "))
}

// userLabel names the signed-in user from the cached profile.
func (m Model) userLabel(compact bool) string {
	p, ok := m.profile.Profile()
	switch {
	case ok && p.Name != "" && !compact:
		return p.Name + " <" + p.Email + ">"
	case ok && p.Name != "":
		return truncate(p.Name, 20)
	case ok && p.Email != "":
		return p.Email
	default:
		return "signed in"
	}
}

// screenStatus summarizes the current screen's queries as one of the
// theme's status names.
func (m Model) screenStatus() string {
	switch m.screen {
	case ScreenLogin:
		return ternary(m.login.submitting, "pending", "idle")
	case ScreenSignup:
		if m.signup.submitting {
			return "pending"
		}
		return entryStatus(m.catalog.Entry())
	case ScreenMovies:
		view := m.movies.Snapshot()
		for _, movie := range m.visibleMovies(view) {
			if m.rating.Pending(movie.ID) {
				return "pending"
			}
		}
		switch {
		case view.Loading() || view.Refreshing || view.LoadingMore:
			return "loading"
		case view.Err != nil && view.Loaded > 0:
			return "stale"
		case view.Err != nil || view.MoreErr != nil:
			return "error"
		case view.Status == query.StatusSuccess:
			return "success"
		}
		return "idle"
	case ScreenProfile:
		view := m.profile.Snapshot()
		switch {
		case view.State == profile.Saving:
			return "pending"
		case view.Status == query.StatusLoading:
			return "loading"
		case view.Err != nil && view.HasProfile:
			return "stale"
		case view.Err != nil:
			return "error"
		case view.HasProfile:
			return "success"
		}
	}
	return "idle"
}

func entryStatus(e query.Entry) string {
	switch {
	case e.Fetching || e.Status == query.StatusLoading:
		return "loading"
	case e.Err != nil && e.HasData():
		return "stale"
	case e.Err != nil:
		return "error"
	case e.Status == query.StatusSuccess:
		return "success"
	}
	return "idle"
}

// displayHost trims the scheme from the API base URL.
func displayHost(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return truncateMiddle(raw, 40)
	}
	return truncateMiddle(u.Host+strings.TrimSuffix(u.Path, "/"), 40)
}

// truncateMiddle shortens a string by replacing the middle with an ellipsis.
func truncateMiddle(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit || limit < 5 {
		return s
	}
	half := (limit - 3) / 2
	return string(r[:half]) + "..." + string(r[len(r)-(limit-3-half):])
}

// renderCommandBar renders the command hints bar.
func (m Model) renderCommandBar() string {
	// Command bar uses Surface background
	styles := m.theme.Styles().WithBackground(m.theme.Surface)
	bg := NewBgStyle(m.theme.Surface)

	type cmd struct{ key, desc string }
	var commands []cmd

	switch m.screen {
	case ScreenLogin:
		commands = []cmd{
			{"enter", "Sign in"},
			{"tab", "Next field"},
			{"ctrl+n", "Create account"},
			{"ctrl+c", "Quit"},
		}
	case ScreenSignup:
		commands = []cmd{
			{"tab", "Next field"},
			{"space", "Toggle category"},
			{"ctrl+s", "Submit"},
			{"esc", "Back"},
		}
	case ScreenProfile:
		if m.profEdit.editing {
			commands = []cmd{
				{"tab", "Next field"},
				{"space", "Toggle category"},
				{"ctrl+o", "Avatar"},
				{"ctrl+s", "Save"},
				{"esc", "Cancel"},
			}
			break
		}
		commands = []cmd{
			{"e", "Edit"},
			{"m", "Movies"},
			{"X", "Sign out"},
			{"T", "Theme"},
			{"?", "More"},
		}
	default: // ScreenMovies
		if m.browse.searching {
			commands = []cmd{
				{"enter", "Search now"},
				{"esc", "Done"},
			}
			break
		}
		commands = []cmd{
			{"/", "Search"},
			{"j/k", "Navigate"},
			{"[/]", m.currentTab().label},
			{"1-5", "Rate"},
			{"r", "Retry"},
			{"p", "Profile"},
			{"X", "Sign out"},
			{"?", "More"},
		}
	}

	colon := bg.Render(":", styles.FaintText)
	sep := bg.Spaces(2)

	segments := make([]string, 0, len(commands))
	for _, c := range commands {
		segments = append(segments,
			bg.Render(c.key, styles.AccentText)+colon+bg.Render(c.desc, styles.MutedText))
	}

	return lipgloss.NewStyle().
		Background(lipgloss.Color(m.theme.Surface)).
		Width(m.width).
		MaxWidth(m.width).
		Render(bg.Space() + strings.Join(segments, sep))
}
