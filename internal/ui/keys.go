package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines all keyboard bindings for the application.
type keyMap struct {
	// Global
	Quit        key.Binding
	ForceQuit   key.Binding
	Help        key.Binding
	CycleTheme  key.Binding
	ViewMovies  key.Binding
	ViewProfile key.Binding
	SignOut     key.Binding
	ShowLog     key.Binding
	Escape      key.Binding

	// Forms
	NextField key.Binding
	PrevField key.Binding
	Submit    key.Binding
	Save      key.Binding
	Toggle    key.Binding
	ToSignup  key.Binding

	// Movie list
	Search   key.Binding
	Up       key.Binding
	Down     key.Binding
	Top      key.Binding
	Bottom   key.Binding
	PageUp   key.Binding
	PageDown key.Binding
	PrevTab  key.Binding
	NextTab  key.Binding
	Rate     key.Binding
	Retry    key.Binding

	// Profile
	Edit  key.Binding
	Image key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() keyMap {
	return keyMap{
		Quit: key.NewBinding(
			key.WithKeys("q"),
			key.WithHelp("q", "Quit"),
		),
		ForceQuit: key.NewBinding(
			key.WithKeys("ctrl+c"),
			key.WithHelp("ctrl+c", "Quit"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "Toggle help"),
		),
		CycleTheme: key.NewBinding(
			key.WithKeys("T"),
			key.WithHelp("T", "Cycle theme"),
		),
		ViewMovies: key.NewBinding(
			key.WithKeys("m"),
			key.WithHelp("m", "Movies"),
		),
		ViewProfile: key.NewBinding(
			key.WithKeys("p"),
			key.WithHelp("p", "Profile"),
		),
		SignOut: key.NewBinding(
			key.WithKeys("X"),
			key.WithHelp("X", "Sign out"),
		),
		ShowLog: key.NewBinding(
			key.WithKeys("L"),
			key.WithHelp("L", "Client log"),
		),
		Escape: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "Back / cancel"),
		),

		NextField: key.NewBinding(
			key.WithKeys("tab", "down"),
			key.WithHelp("tab", "Next field"),
		),
		PrevField: key.NewBinding(
			key.WithKeys("shift+tab", "up"),
			key.WithHelp("shift+tab", "Previous field"),
		),
		Submit: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "Submit"),
		),
		Save: key.NewBinding(
			key.WithKeys("ctrl+s"),
			key.WithHelp("ctrl+s", "Save"),
		),
		Toggle: key.NewBinding(
			key.WithKeys(" "),
			key.WithHelp("space", "Toggle category"),
		),
		ToSignup: key.NewBinding(
			key.WithKeys("ctrl+n"),
			key.WithHelp("ctrl+n", "Create account"),
		),

		Search: key.NewBinding(
			key.WithKeys("/"),
			key.WithHelp("/", "Search titles"),
		),
		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/up", "Move up"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/down", "Move down"),
		),
		Top: key.NewBinding(
			key.WithKeys("g", "home"),
			key.WithHelp("g", "Go to top"),
		),
		Bottom: key.NewBinding(
			key.WithKeys("G", "end"),
			key.WithHelp("G", "Go to bottom"),
		),
		PageUp: key.NewBinding(
			key.WithKeys("pgup", "ctrl+u"),
			key.WithHelp("ctrl+u", "Page up"),
		),
		PageDown: key.NewBinding(
			key.WithKeys("pgdown", "ctrl+d"),
			key.WithHelp("ctrl+d", "Page down"),
		),
		PrevTab: key.NewBinding(
			key.WithKeys("[", "left", "h"),
			key.WithHelp("[", "Previous category"),
		),
		NextTab: key.NewBinding(
			key.WithKeys("]", "right", "l"),
			key.WithHelp("]", "Next category"),
		),
		Rate: key.NewBinding(
			key.WithKeys("1", "2", "3", "4", "5"),
			key.WithHelp("1-5", "Rate movie"),
		),
		Retry: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "Retry"),
		),

		Edit: key.NewBinding(
			key.WithKeys("e"),
			key.WithHelp("e", "Edit profile"),
		),
		Image: key.NewBinding(
			key.WithKeys("ctrl+o"),
			key.WithHelp("ctrl+o", "Choose avatar image"),
		),
	}
}

// ShortHelp returns key bindings for the short help view.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Help, k.Quit}
}

// FullHelp returns key bindings for the full help view.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.ViewMovies, k.ViewProfile, k.SignOut},
		{k.Search, k.Up, k.Down, k.Top, k.Bottom, k.PageUp, k.PageDown},
		{k.PrevTab, k.NextTab, k.Rate, k.Retry},
		{k.Edit, k.Image, k.Save, k.Escape},
		{k.NextField, k.PrevField, k.Submit, k.Toggle, k.ToSignup},
		{k.CycleTheme, k.ShowLog, k.Help, k.Quit},
	}
}
