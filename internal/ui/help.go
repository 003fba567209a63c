package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const helpWidth = 44

// openHelp shows the help overlay, scrollable when the terminal is short.
func (m *Model) openHelp() {
	content := m.helpContent()
	height := max(min(lipgloss.Height(content), m.height-6), 3)
	m.help = viewport.New(helpWidth, height)
	m.help.SetContent(content)
	m.showHelp = true
}

// handleHelpKey scrolls the overlay; any other key closes it.
func (m Model) handleHelpKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Up, m.keys.Down, m.keys.PageUp, m.keys.PageDown) {
		var cmd tea.Cmd
		m.help, cmd = m.help.Update(msg)
		return m, cmd
	}
	m.showHelp = false
	return m, nil
}

// helpContent lists every binding of the key map by group.
func (m Model) helpContent() string {
	styles := m.theme.Styles()

	titles := []string{"Screens", "Movies", "Ratings", "Profile", "Forms", "General"}
	groups := m.keys.FullHelp()

	var b strings.Builder

	// Title
	b.WriteString(styles.Text.Bold(true).Render("Keyboard Shortcuts"))
	b.WriteString("\n")
	b.WriteString(styles.FaintText.Render(strings.Repeat("─", 30)))
	b.WriteString("\n\n")

	keyStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color(m.theme.Warning)).
		Width(12)

	for i, group := range groups {
		if i < len(titles) {
			b.WriteString(styles.AccentText.Bold(true).Render(titles[i]))
			b.WriteString("\n")
		}
		for _, binding := range group {
			if !binding.Enabled() {
				continue
			}
			h := binding.Help()
			b.WriteString(keyStyle.Render(h.Key))
			b.WriteString(styles.Text.Render(h.Desc))
			b.WriteString("\n")
		}
		if i < len(groups)-1 {
			b.WriteString("\n")
		}
	}

	short := make([]string, 0, 2)
	for _, binding := range m.keys.ShortHelp() {
		short = append(short, helpLabel(binding))
	}
	b.WriteString("\n")
	b.WriteString(styles.FaintText.Render(strings.Join(short, "  •  ")))
	return b.String()
}

// renderHelp renders the help overlay.
func (m Model) renderHelp() string {
	styles := m.theme.Styles()

	body := m.help.View()
	if !m.help.AtTop() || !m.help.AtBottom() {
		body += "\n" + styles.FaintText.Render("j/k to scroll, any other key closes")
	}

	modal := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(m.theme.Accent)).
		Padding(1, 2).
		Width(helpWidth + 6)

	return lipgloss.Place(
		m.width,
		m.height,
		lipgloss.Center,
		lipgloss.Center,
		modal.Render(body),
		lipgloss.WithWhitespaceChars(" "),
		lipgloss.WithWhitespaceForeground(lipgloss.Color(m.theme.Background)),
	)
}

func helpLabel(b key.Binding) string {
	h := b.Help()
	return h.Key + " " + strings.ToLower(h.Desc)
}
