package ui

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/five82/marquee/internal/account"
	"github.com/five82/marquee/internal/logging"
	"github.com/five82/marquee/internal/movies"
	"github.com/five82/marquee/internal/prefs"
	"github.com/five82/marquee/internal/profile"
	"github.com/five82/marquee/internal/query"
	"github.com/five82/marquee/internal/rating"
	"github.com/five82/marquee/internal/session"
)

// Screen is the active top-level screen.
type Screen int

const (
	ScreenLogin Screen = iota
	ScreenSignup
	ScreenMovies
	ScreenProfile
)

func (s Screen) String() string {
	switch s {
	case ScreenSignup:
		return "Sign up"
	case ScreenMovies:
		return "Movies"
	case ScreenProfile:
		return "Profile"
	default:
		return "Sign in"
	}
}

// ImageResolver turns a stored image path into a displayable URL.
// *api.Client satisfies it.
type ImageResolver interface {
	ResolveImageURL(path string) string
}

// Options configures the UI.
type Options struct {
	Context         context.Context
	Images          ImageResolver
	Session         *session.Holder
	Account         *account.Service
	Movies          *movies.List
	Catalog         *movies.Catalog
	Recommendations *movies.Recommendations
	Rating          *rating.Controller
	Profile         *profile.Controller

	// Changes signals that cached data or controller state changed.
	Changes <-chan struct{}

	APIBaseURL string
	ThemeName  string
	LastEmail  string
	LastTab    string
	PrefsPath  string
	LogPath    string
}

type flashKind int

const (
	flashInfo flashKind = iota
	flashSuccess
	flashError
)

// Model is the root application state for Bubble Tea.
type Model struct {
	// Configuration
	ctx        context.Context
	images     ImageResolver
	session    *session.Holder
	account    *account.Service
	movies     *movies.List
	catalog    *movies.Catalog
	recs       *movies.Recommendations
	rating     *rating.Controller
	profile    *profile.Controller
	changes    <-chan struct{}
	apiBaseURL string
	prefsPath  string
	logPath    string
	log        zerolog.Logger

	// UI state
	keys     keyMap
	theme    Theme
	screen   Screen
	width    int
	height   int
	ready    bool
	showHelp bool
	help     viewport.Model
	modal    Modal
	spinner  spinner.Model

	// authed is the session state last rendered. A drop to false that the
	// user did not ask for means the session expired.
	authed bool

	// inflight tracks load commands already issued, by name.
	inflight map[string]bool

	flash     string
	flashKind flashKind
	flashSeq  int

	login    loginForm
	signup   signupForm
	browse   movieState
	profEdit profileState
}

// New creates a new Bubble Tea model.
func New(opts Options) Model {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}

	themeName := opts.ThemeName
	if themeName == "" {
		themeName = "Dracula"
	}

	prefsPath := opts.PrefsPath
	if prefsPath == "" {
		prefsPath = prefs.DefaultPath()
	}

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	m := Model{
		ctx:        ctx,
		images:     opts.Images,
		session:    opts.Session,
		account:    opts.Account,
		movies:     opts.Movies,
		catalog:    opts.Catalog,
		recs:       opts.Recommendations,
		rating:     opts.Rating,
		profile:    opts.Profile,
		changes:    opts.Changes,
		apiBaseURL: opts.APIBaseURL,
		prefsPath:  prefsPath,
		logPath:    opts.LogPath,
		log:        logging.Component("ui"),
		keys:       DefaultKeyMap(),
		theme:      GetTheme(themeName),
		spinner:    sp,
		inflight:   make(map[string]bool),
		login:      newLoginForm(opts.LastEmail),
		signup:     newSignupForm(),
		browse:     newMovieState(opts.LastTab),
	}
	m.authed = m.session != nil && m.session.Authenticated()
	if m.authed {
		m.screen = ScreenMovies
	} else {
		m.screen = ScreenLogin
		m.login.focus(m.login.initialFocus())
	}
	m.applySpinnerStyle()
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		waitForChange(m.changes),
		m.spinner.Tick,
	}
	// Init has a value receiver, so in-flight bookkeeping starts with the
	// first change message.
	if m.authed {
		cmds = append(cmds,
			loadCmd(m.ctx, "movies", m.movies.Load),
			loadCatalogCmd(m.ctx, m.catalog),
			loadRecsCmd(m.ctx, m.recs),
		)
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.resizeInputs()
		return m, m.syncSentinel()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case changeMsg:
		return m.handleChange()

	case loadDoneMsg:
		delete(m.inflight, msg.name)
		if msg.err != nil && !errors.Is(msg.err, query.ErrDisabled) && !errors.Is(msg.err, context.Canceled) {
			m.log.Debug().Err(msg.err).Str("query", msg.name).Msg("load failed")
		}
		return m, nil

	case flashExpiredMsg:
		if msg.seq == m.flashSeq {
			m.flash = ""
		}
		return m, nil

	case loginResultMsg:
		return m.handleLoginResult(msg)

	case signupResultMsg:
		return m.handleSignupResult(msg)

	case rateResultMsg:
		return m.handleRateResult(msg)

	case moreResultMsg:
		if msg.err != nil {
			m.log.Debug().Err(msg.err).Msg("load more failed")
		}
		return m, nil

	case profileSavedMsg:
		return m.handleProfileSaved(msg)
	}

	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	if m.showHelp {
		return m.renderHelp()
	}

	if m.modal != nil {
		return m.modal.View(m.theme, m.width, m.height)
	}

	return m.renderMain()
}

// typing reports whether a text input currently owns printable keys.
func (m Model) typing() bool {
	switch m.screen {
	case ScreenLogin:
		return true
	case ScreenSignup:
		return m.signup.focusIdx < len(m.signup.inputs)
	case ScreenMovies:
		return m.browse.searching
	case ScreenProfile:
		return m.profEdit.editing && m.profEdit.focusIdx < len(m.profEdit.inputs)
	}
	return false
}

// handleKey processes keyboard input.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.showHelp {
		return m.handleHelpKey(msg)
	}

	if key.Matches(msg, m.keys.ForceQuit) {
		return m, tea.Quit
	}

	if m.modal != nil {
		modal, cmd, closed := m.modal.Update(msg, m.keys)
		if closed {
			m.modal = nil
			return m.handleModalClosed(modal, cmd)
		}
		m.modal = modal
		return m, cmd
	}

	if !m.typing() {
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Help):
			m.openHelp()
			return m, nil
		case key.Matches(msg, m.keys.CycleTheme):
			m.theme = GetTheme(NextTheme(m.theme.Name))
			m.applySpinnerStyle()
			m.savePrefs(func(p *prefs.Prefs) { p.Theme = m.theme.Name })
			return m, nil
		case key.Matches(msg, m.keys.ShowLog):
			return m.openLog()
		}
		if m.authed {
			switch {
			case key.Matches(msg, m.keys.ViewMovies):
				return m.switchScreen(ScreenMovies)
			case key.Matches(msg, m.keys.ViewProfile):
				return m.switchScreen(ScreenProfile)
			case key.Matches(msg, m.keys.SignOut):
				return m.signOut()
			}
		}
	}

	switch m.screen {
	case ScreenLogin:
		return m.handleLoginKey(msg)
	case ScreenSignup:
		return m.handleSignupKey(msg)
	case ScreenMovies:
		return m.handleMoviesKey(msg)
	case ScreenProfile:
		return m.handleProfileKey(msg)
	}
	return m, nil
}

// switchScreen activates s and issues the loads it needs.
func (m Model) switchScreen(s Screen) (tea.Model, tea.Cmd) {
	if m.screen == ScreenProfile && s != ScreenProfile && m.profEdit.editing {
		_ = m.profile.Cancel()
		m.profEdit.stopEditing()
	}
	m.screen = s
	switch s {
	case ScreenLogin:
		m.login.focus(m.login.initialFocus())
	case ScreenSignup:
		m.signup.focus(0)
	}
	return m, m.ensureLoaded()
}

// signOut clears the session and returns to the sign-in screen.
func (m Model) signOut() (tea.Model, tea.Cmd) {
	m.authed = false
	if err := m.account.Logout(); err != nil {
		m.log.Warn().Err(err).Msg("sign out")
	}
	m.browse.reset()
	m.profEdit.stopEditing()
	m.inflight = make(map[string]bool)
	model, cmd := m.switchScreen(ScreenLogin)
	next := model.(Model)
	return next, tea.Batch(cmd, next.setFlash(flashInfo, "Signed out."))
}

// handleChange re-renders after a data change, loads whatever the current
// screen still lacks and notices an expired session.
func (m Model) handleChange() (tea.Model, tea.Cmd) {
	cmds := []tea.Cmd{waitForChange(m.changes)}

	authed := m.session.Authenticated()
	if m.authed && !authed {
		m.authed = false
		m.browse.reset()
		m.profEdit.stopEditing()
		m.inflight = make(map[string]bool)
		model, cmd := m.switchScreen(ScreenLogin)
		m = model.(Model)
		cmds = append(cmds, cmd, m.setFlash(flashError, "Session expired. Please sign in again."))
		return m, tea.Batch(cmds...)
	}
	m.authed = authed

	m.restoreTab()
	m.browse.followTerm(m.movies.Snapshot().Term)
	if cmd := m.syncSentinel(); cmd != nil {
		cmds = append(cmds, cmd)
	}
	if cmd := m.ensureLoaded(); cmd != nil {
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

// ensureLoaded issues loads for the current screen's queries that have not
// been fetched yet.
func (m *Model) ensureLoaded() tea.Cmd {
	var cmds []tea.Cmd
	need := func(name string, status query.Status, cmd tea.Cmd) {
		if status != query.StatusIdle || m.inflight[name] {
			return
		}
		m.inflight[name] = true
		cmds = append(cmds, cmd)
	}

	switch m.screen {
	case ScreenSignup:
		need("categories", m.catalog.Entry().Status, loadCatalogCmd(m.ctx, m.catalog))
	case ScreenMovies:
		need("movies", m.movies.Snapshot().Status, loadCmd(m.ctx, "movies", m.movies.Load))
		need("categories", m.catalog.Entry().Status, loadCatalogCmd(m.ctx, m.catalog))
		if m.authed {
			need("recommendations", m.recs.Entry().Status, loadRecsCmd(m.ctx, m.recs))
		}
	case ScreenProfile:
		if m.authed {
			need("profile", m.profile.Snapshot().Status, loadProfileCmd(m.ctx, m.profile))
		}
		need("categories", m.catalog.Entry().Status, loadCatalogCmd(m.ctx, m.catalog))
	}
	if len(cmds) == 0 {
		return nil
	}
	return tea.Batch(cmds...)
}

// setFlash shows a transient message and schedules its removal.
func (m *Model) setFlash(kind flashKind, text string) tea.Cmd {
	m.flashSeq++
	m.flash = text
	m.flashKind = kind
	seq := m.flashSeq
	return tea.Tick(FlashDuration, func(time.Time) tea.Msg {
		return flashExpiredMsg{seq: seq}
	})
}

func (m *Model) savePrefs(fn func(*prefs.Prefs)) {
	if m.prefsPath == "" {
		return
	}
	if err := prefs.Update(m.prefsPath, fn); err != nil {
		m.log.Warn().Err(err).Msg("save preferences")
	}
}

func (m *Model) applySpinnerStyle() {
	m.spinner.Style = m.theme.Styles().AccentText
}

func (m *Model) resizeInputs() {
	width := min(max(m.width-24, 20), 60)
	m.login.setWidth(width)
	m.signup.setWidth(width)
	m.profEdit.setWidth(width)
	m.browse.search.Width = min(max(m.width-20, 10), 60)
}

// renderMain renders the full UI.
func (m Model) renderMain() string {
	var b strings.Builder

	// Header line 1: logo + status
	b.WriteString(m.renderHeader())
	b.WriteString("\n")

	// Header line 2: command bar
	b.WriteString(m.renderCommandBar())
	b.WriteString("\n")

	// Main content
	b.WriteString(m.renderContent())

	return b.String()
}

// renderContent renders the main content area based on current screen.
func (m Model) renderContent() string {
	switch m.screen {
	case ScreenLogin:
		return m.renderLogin()
	case ScreenSignup:
		return m.renderSignup()
	case ScreenMovies:
		return m.renderMovies()
	case ScreenProfile:
		return m.renderProfile()
	default:
		return ""
	}
}

func (m Model) contentHeight() int {
	return max(m.height-headerLines, 1)
}

// Messages

type changeMsg struct{}

type loadDoneMsg struct {
	name string
	err  error
}

type flashExpiredMsg struct{ seq int }

type moreResultMsg struct{ err error }

// Commands

// waitForChange blocks until the next change signal. A closed or nil channel
// ends the subscription.
func waitForChange(ch <-chan struct{}) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return changeMsg{}
	}
}

func loadCmd(ctx context.Context, name string, fn func(context.Context) error) tea.Cmd {
	return func() tea.Msg {
		return loadDoneMsg{name: name, err: fn(ctx)}
	}
}

func loadCatalogCmd(ctx context.Context, c *movies.Catalog) tea.Cmd {
	return loadCmd(ctx, "categories", func(ctx context.Context) error {
		_, err := c.Load(ctx)
		return err
	})
}

func loadRecsCmd(ctx context.Context, r *movies.Recommendations) tea.Cmd {
	return loadCmd(ctx, "recommendations", func(ctx context.Context) error {
		_, err := r.Load(ctx)
		return err
	})
}

func loadProfileCmd(ctx context.Context, p *profile.Controller) tea.Cmd {
	return loadCmd(ctx, "profile", func(ctx context.Context) error {
		_, err := p.Load(ctx)
		return err
	})
}

// Run starts the Bubble Tea program.
func Run(opts Options) error {
	m := New(opts)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(m.ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && m.ctx.Err() != nil {
		return nil
	}
	return err
}
