package ui

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/crypto/bcrypt"

	"github.com/five82/marquee/internal/account"
	"github.com/five82/marquee/internal/api"
	"github.com/five82/marquee/internal/devserver"
	"github.com/five82/marquee/internal/movies"
	"github.com/five82/marquee/internal/prefs"
	"github.com/five82/marquee/internal/profile"
	"github.com/five82/marquee/internal/query"
	"github.com/five82/marquee/internal/rating"
	"github.com/five82/marquee/internal/session"
)

type testEnv struct {
	ctx       context.Context
	client    *api.Client
	holder    *session.Holder
	prefsPath string
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// newTestModel wires a model against an in-memory backend the same way the
// app layer does.
func newTestModel(t *testing.T, signedIn bool) (Model, testEnv) {
	t.Helper()
	srv, err := devserver.New(devserver.Options{Seed: true, BcryptCost: bcrypt.MinCost, Secret: []byte("ui-test")})
	if err != nil {
		t.Fatalf("devserver.New returned error: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	ctx := testContext(t)
	holder := session.NewHolder(nil)
	client, err := api.NewClient(api.Options{BaseURL: ts.URL, Tokens: holder, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	cache := query.NewCache()
	t.Cleanup(holder.Subscribe(func(s session.Session) {
		if s.Token == "" {
			cache.Clear()
		}
	}))

	if signedIn {
		resp, err := client.Login(ctx, api.Credentials{Email: devserver.DemoEmail, Password: devserver.DemoPassword})
		if err != nil {
			t.Fatalf("Login returned error: %v", err)
		}
		if err := holder.SetSession(session.Session{Token: resp.Token, UserID: resp.User.ID}); err != nil {
			t.Fatalf("SetSession returned error: %v", err)
		}
	}

	env := testEnv{
		ctx:       ctx,
		client:    client,
		holder:    holder,
		prefsPath: filepath.Join(t.TempDir(), "prefs.toml"),
	}
	m := New(Options{
		Context: ctx,
		Images:  client,
		Session: holder,
		Account: account.NewService(client, holder, cache),
		Movies: movies.NewList(movies.Options{
			Source:      client,
			Cache:       cache,
			PageSize:    5,
			SearchDelay: 10 * time.Millisecond,
		}),
		Catalog:         movies.NewCatalog(client, cache),
		Recommendations: movies.NewRecommendations(client, cache, holder),
		Rating:          rating.NewController(client, cache, holder),
		Profile:         profile.NewController(client, cache, holder),
		APIBaseURL:      ts.URL,
		PrefsPath:       env.prefsPath,
	})
	m, _ = update(m, tea.WindowSizeMsg{Width: 130, Height: 40})
	return m, env
}

func update(m Model, msg tea.Msg) (Model, tea.Cmd) {
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

// run executes cmd and feeds its message back into the model.
func run(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	if cmd == nil {
		t.Fatal("expected a command")
	}
	m, _ = update(m, cmd())
	return m
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func typeText(m Model, s string) Model {
	m, _ = update(m, runes(s))
	return m
}

var (
	keyEnter = tea.KeyMsg{Type: tea.KeyEnter}
	keyTab   = tea.KeyMsg{Type: tea.KeyTab}
	keyEsc   = tea.KeyMsg{Type: tea.KeyEsc}
	keySpace = tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	keyCtrlS = tea.KeyMsg{Type: tea.KeyCtrlS}
	keyCtrlN = tea.KeyMsg{Type: tea.KeyCtrlN}
	keyBack  = tea.KeyMsg{Type: tea.KeyBackspace}
)

func TestNew_ScreenFollowsSession(t *testing.T) {
	m, _ := newTestModel(t, false)
	if m.screen != ScreenLogin || m.authed {
		t.Fatalf("screen = %v authed = %v, want sign in", m.screen, m.authed)
	}
	if m.login.focusIdx != loginEmail {
		t.Fatalf("focus = %d, want email", m.login.focusIdx)
	}
	if !strings.Contains(m.View(), "marquee") {
		t.Fatal("view missing header")
	}

	m, _ = newTestModel(t, true)
	if m.screen != ScreenMovies || !m.authed {
		t.Fatalf("screen = %v authed = %v, want movies", m.screen, m.authed)
	}
}

func TestLogin_SignsInAndRemembersEmail(t *testing.T) {
	m, env := newTestModel(t, false)

	m = typeText(m, devserver.DemoEmail)
	m, _ = update(m, keyEnter)
	if m.login.focusIdx != loginPassword {
		t.Fatalf("focus = %d, want password", m.login.focusIdx)
	}
	m = typeText(m, devserver.DemoPassword)
	m, cmd := update(m, keyEnter)
	if !m.login.submitting {
		t.Fatal("submit did not start")
	}
	m = run(t, m, cmd)

	if m.screen != ScreenMovies || !m.authed || !env.holder.Authenticated() {
		t.Fatalf("screen = %v authed = %v", m.screen, m.authed)
	}
	if m.login.inputs[loginPassword].Value() != "" {
		t.Fatal("password kept after sign in")
	}
	if !strings.Contains(m.flash, "Demo Viewer") {
		t.Fatalf("flash = %q", m.flash)
	}
	if got := prefs.Load(env.prefsPath).LastEmail; got != devserver.DemoEmail {
		t.Fatalf("LastEmail = %q", got)
	}
}

func TestLogin_Errors(t *testing.T) {
	m, _ := newTestModel(t, false)

	m, _ = update(m, keyTab)
	m, cmd := update(m, keyEnter)
	m = run(t, m, cmd)
	if m.login.errs[account.FieldEmail] != "Email is required" || m.login.errs[account.FieldPassword] != "Password is required" {
		t.Fatalf("errs = %v", m.login.errs)
	}

	m, _ = update(m, tea.KeyMsg{Type: tea.KeyShiftTab})
	m = typeText(m, devserver.DemoEmail)
	if _, ok := m.login.errs[account.FieldEmail]; ok {
		t.Fatal("editing email did not clear its error")
	}
	m, _ = update(m, keyEnter)
	m = typeText(m, "wrong-password")
	m, cmd = update(m, keyEnter)
	m = run(t, m, cmd)
	if m.login.err != "Invalid email or password" || m.screen != ScreenLogin {
		t.Fatalf("err = %q screen = %v", m.login.err, m.screen)
	}
}

func TestSignup_ValidatesThenRegisters(t *testing.T) {
	m, env := newTestModel(t, false)

	m, _ = update(m, keyCtrlN)
	if m.screen != ScreenSignup {
		t.Fatalf("screen = %v, want sign up", m.screen)
	}
	m, cmd := update(m, keyCtrlS)
	if cmd != nil {
		t.Fatal("invalid form was submitted")
	}
	if len(m.signup.errs) != 6 {
		t.Fatalf("errs = %v, want every field", m.signup.errs)
	}

	if _, err := m.catalog.Load(env.ctx); err != nil {
		t.Fatalf("catalog Load returned error: %v", err)
	}
	for _, value := range []string{"Ada", "ada@example.com", "secret1", "1 Loop", "1990-04-02"} {
		m = typeText(m, value)
		m, _ = update(m, keyEnter)
	}
	if !m.signup.onChooser() {
		t.Fatalf("focus = %d, want category chooser", m.signup.focusIdx)
	}
	if len(m.signup.errs) != 1 || m.signup.errs[account.FieldCategories] == "" {
		t.Fatalf("errs = %v, want only categories left", m.signup.errs)
	}
	m, _ = update(m, keySpace)
	m, cmd = update(m, keyEnter)
	m = run(t, m, cmd)

	if m.screen != ScreenLogin {
		t.Fatalf("screen = %v, want sign in", m.screen)
	}
	if m.flash != "User created successfully" || m.login.inputs[loginEmail].Value() != "ada@example.com" {
		t.Fatalf("flash = %q email = %q", m.flash, m.login.inputs[loginEmail].Value())
	}
	if m.login.focusIdx != loginPassword {
		t.Fatal("sign in did not focus the password")
	}
}

func TestMovies_TabsFilterAndRatingUpdatesList(t *testing.T) {
	m, env := newTestModel(t, true)
	if _, err := m.catalog.Load(env.ctx); err != nil {
		t.Fatalf("catalog Load returned error: %v", err)
	}
	if err := m.movies.Load(env.ctx); err != nil {
		t.Fatalf("movies Load returned error: %v", err)
	}

	cats := m.catalog.Cached()
	m, _ = update(m, runes("]"))
	if tab := m.currentTab(); tab.categoryID != cats[0].ID {
		t.Fatalf("tab = %+v, want %s", tab, cats[0].Name)
	}
	if got := m.movies.Snapshot().Category; got != cats[0].ID {
		t.Fatalf("list category = %q", got)
	}
	if got := prefs.Load(env.prefsPath).LastTab; got != cats[0].Name {
		t.Fatalf("LastTab = %q", got)
	}
	m, _ = update(m, runes("["))
	if tab := m.currentTab(); tab.label != tabAll {
		t.Fatalf("tab = %+v, want All", tab)
	}

	first := m.movies.Snapshot().Movies[0]
	m, cmd := update(m, runes("4"))
	m = run(t, m, cmd)
	if !strings.HasPrefix(m.flash, "Rated "+first.Title) || m.flashKind != flashSuccess {
		t.Fatalf("flash = %q", m.flash)
	}
	var found bool
	for _, movie := range m.movies.Snapshot().Movies {
		if movie.ID == first.ID {
			found = true
			if got := rating.DisplayRating(movie, env.holder.UserID()); got != 4 {
				t.Fatalf("rating = %d, want 4", got)
			}
		}
	}
	if !found {
		t.Fatal("rated movie missing after refetch")
	}

	m, _ = update(m, runes("["))
	if tab := m.currentTab(); !tab.mine {
		t.Fatalf("tab = %+v, want My Ratings", tab)
	}
	rated := m.visibleMovies(m.movies.Snapshot())
	if len(rated) != 1 || rated[0].ID != first.ID {
		t.Fatalf("my ratings = %v", rated)
	}
}

func TestMovies_SearchAppliesOnEnter(t *testing.T) {
	m, env := newTestModel(t, true)
	if err := m.movies.Load(env.ctx); err != nil {
		t.Fatalf("movies Load returned error: %v", err)
	}

	m, _ = update(m, runes("/"))
	if !m.browse.searching || !m.typing() {
		t.Fatal("search did not take focus")
	}
	m = typeText(m, "arrival")
	m, cmd := update(m, keyEnter)
	if m.browse.searching {
		t.Fatal("enter kept search focus")
	}
	m = run(t, m, cmd)

	view := m.movies.Snapshot()
	if view.Term != "arrival" || len(view.Movies) != 1 || view.Movies[0].Title != "Arrival" {
		t.Fatalf("view = term %q movies %v", view.Term, view.Movies)
	}

	m, cmd = update(m, keyEsc)
	m = run(t, m, cmd)
	if got := m.movies.Snapshot().Term; got != "" {
		t.Fatalf("term after clearing = %q", got)
	}
}

func TestChange_ExpiredSessionReturnsToLogin(t *testing.T) {
	m, env := newTestModel(t, true)

	if err := env.holder.ClearToken(); err != nil {
		t.Fatalf("ClearToken returned error: %v", err)
	}
	m, _ = update(m, changeMsg{})
	if m.screen != ScreenLogin || m.authed {
		t.Fatalf("screen = %v authed = %v", m.screen, m.authed)
	}
	if m.flash != "Session expired. Please sign in again." || m.flashKind != flashError {
		t.Fatalf("flash = %q", m.flash)
	}
}

func TestSignOut(t *testing.T) {
	m, env := newTestModel(t, true)

	m, _ = update(m, runes("X"))
	if m.screen != ScreenLogin || env.holder.Authenticated() {
		t.Fatalf("screen = %v authenticated = %v", m.screen, env.holder.Authenticated())
	}
	if m.flash != "Signed out." {
		t.Fatalf("flash = %q", m.flash)
	}

	// A later change must not be mistaken for an expiry.
	m, _ = update(m, changeMsg{})
	if m.flash != "Signed out." {
		t.Fatalf("flash after change = %q", m.flash)
	}
}

func TestGlobalKeys_HelpAndTheme(t *testing.T) {
	m, env := newTestModel(t, true)

	m, _ = update(m, runes("?"))
	if !m.showHelp || !strings.Contains(m.View(), "Keyboard Shortcuts") {
		t.Fatal("help not shown")
	}
	m, _ = update(m, runes("x"))
	if m.showHelp {
		t.Fatal("help not closed")
	}

	m, _ = update(m, runes("T"))
	if m.theme.Name != "Slate" {
		t.Fatalf("theme = %q", m.theme.Name)
	}
	if got := prefs.Load(env.prefsPath).Theme; got != "Slate" {
		t.Fatalf("saved theme = %q", got)
	}
}

func TestFlash_ExpiresOnlyForLatest(t *testing.T) {
	m, _ := newTestModel(t, true)
	m.setFlash(flashInfo, "first")
	stale := m.flashSeq
	m.setFlash(flashInfo, "second")

	m, _ = update(m, flashExpiredMsg{seq: stale})
	if m.flash != "second" {
		t.Fatalf("flash = %q, want second", m.flash)
	}
	m, _ = update(m, flashExpiredMsg{seq: m.flashSeq})
	if m.flash != "" {
		t.Fatalf("flash = %q, want cleared", m.flash)
	}
}

func TestProfile_EditValidatesDateAndSaves(t *testing.T) {
	m, env := newTestModel(t, true)

	m, _ = update(m, runes("p"))
	if m.screen != ScreenProfile {
		t.Fatalf("screen = %v", m.screen)
	}
	if _, err := m.profile.Load(env.ctx); err != nil {
		t.Fatalf("profile Load returned error: %v", err)
	}

	m, _ = update(m, runes("e"))
	if !m.profEdit.editing || m.profEdit.inputs[0].Value() != "Demo Viewer" {
		t.Fatalf("editing = %v", m.profEdit.editing)
	}
	m = typeText(m, " Jr")

	for range 3 {
		m, _ = update(m, keyTab)
	}
	if got := m.profEdit.inputs[m.profEdit.focusIdx].Value(); got != "1990-04-02" {
		t.Fatalf("dob input = %q", got)
	}
	m = typeText(m, "x")
	if m.profEdit.dobErr == "" {
		t.Fatal("invalid date accepted")
	}
	m, _ = update(m, keyCtrlS)
	if m.flashKind != flashError || !m.profEdit.editing {
		t.Fatalf("save with a bad date: flash = %q", m.flash)
	}

	m, _ = update(m, keyBack)
	if m.profEdit.dobErr != "" {
		t.Fatalf("dobErr = %q after fixing the date", m.profEdit.dobErr)
	}
	m, cmd := update(m, keyCtrlS)
	m = run(t, m, cmd)
	if m.profEdit.editing || m.flash != "Profile updated successfully" {
		t.Fatalf("editing = %v flash = %q", m.profEdit.editing, m.flash)
	}
	if p, _ := m.profile.Profile(); p.Name != "Demo Viewer Jr" {
		t.Fatalf("profile name = %q", p.Name)
	}
}

func TestProfile_EscapeDiscardsDraft(t *testing.T) {
	m, env := newTestModel(t, true)
	m, _ = update(m, runes("p"))
	if _, err := m.profile.Load(env.ctx); err != nil {
		t.Fatalf("profile Load returned error: %v", err)
	}

	m, _ = update(m, runes("e"))
	m = typeText(m, "zzz")
	m, _ = update(m, keyEsc)
	if m.profEdit.editing || m.profile.Snapshot().State != profile.Viewing {
		t.Fatal("escape did not leave edit mode")
	}
	if p, _ := m.profile.Profile(); p.Name != "Demo Viewer" {
		t.Fatalf("profile name = %q", p.Name)
	}
}
