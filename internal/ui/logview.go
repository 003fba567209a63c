package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/five82/marquee/internal/logtail"
)

// logTailLines bounds how much of the client log the viewer loads.
const logTailLines = 300

// logModal shows the tail of the client's own log file.
type logModal struct {
	path     string
	viewport viewport.Model
	count    int
	err      error
}

// openLog reads the client log and shows it scrolled to the newest line.
func (m Model) openLog() (tea.Model, tea.Cmd) {
	width := max(min(m.width-8, 120), 20)
	height := max(m.height-8, 3)

	lm := logModal{path: m.logPath, viewport: viewport.New(width, height)}
	if m.logPath == "" {
		lm.viewport.SetContent(m.theme.Styles().FaintText.Render("Logging to a file is not configured."))
		m.modal = lm
		return m, nil
	}

	entries, err := logtail.ReadEntries(m.logPath, logTailLines)
	if err != nil {
		m.log.Warn().Err(err).Str("path", m.logPath).Msg("read client log")
		lm.err = err
	}
	lm.count = len(entries)
	lm.viewport.SetContent(renderLogEntries(m.theme, entries, width))
	lm.viewport.GotoBottom()
	m.modal = lm
	return m, nil
}

// Update implements Modal.
func (lm logModal) Update(msg tea.Msg, keys keyMap) (Modal, tea.Cmd, bool) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return lm, nil, false
	}
	switch {
	case key.Matches(keyMsg, keys.Escape, keys.Quit, keys.ShowLog):
		return lm, nil, true
	case key.Matches(keyMsg, keys.Top):
		lm.viewport.GotoTop()
		return lm, nil, false
	case key.Matches(keyMsg, keys.Bottom):
		lm.viewport.GotoBottom()
		return lm, nil, false
	}
	var cmd tea.Cmd
	lm.viewport, cmd = lm.viewport.Update(msg)
	return lm, cmd, false
}

// View implements Modal.
func (lm logModal) View(theme Theme, width, height int) string {
	styles := theme.Styles()

	title := styles.Text.Bold(true).Render("Client log")
	if lm.path != "" {
		title += "  " + styles.FaintText.Render(truncateMiddle(lm.path, 60))
	}

	var b strings.Builder
	b.WriteString(title)
	b.WriteString("\n\n")
	b.WriteString(lm.viewport.View())
	b.WriteString("\n\n")
	if lm.err != nil {
		b.WriteString(styles.DangerText.Render("Couldn't read log: " + lm.err.Error()))
		b.WriteString("\n")
	}
	b.WriteString(styles.FaintText.Render(fmt.Sprintf("%d entries. j/k to scroll, esc to close", lm.count)))

	modal := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(theme.Accent)).
		Padding(0, 1)

	return lipgloss.Place(
		width,
		height,
		lipgloss.Center,
		lipgloss.Center,
		modal.Render(b.String()),
		lipgloss.WithWhitespaceChars(" "),
		lipgloss.WithWhitespaceForeground(lipgloss.Color(theme.Background)),
	)
}

// renderLogEntries formats entries one per line, colored by level.
func renderLogEntries(theme Theme, entries []logtail.Entry, width int) string {
	styles := theme.Styles()
	if len(entries) == 0 {
		return styles.FaintText.Render("No log entries yet.")
	}

	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		levelStyle := styles.MutedText
		switch strings.ToLower(e.Level) {
		case "warn":
			levelStyle = styles.WarningText
		case "error", "fatal", "panic":
			levelStyle = styles.DangerText
		case "info":
			levelStyle = styles.InfoText
		}

		ts := "--:--:--"
		if !e.Time.IsZero() {
			ts = e.Time.Local().Format("15:04:05")
		}
		text := e.Message
		if e.Error != "" {
			text += ": " + e.Error
		}
		if len(e.Fields) > 0 {
			text += " " + strings.Join(e.Fields, " ")
		}

		prefix := styles.FaintText.Render(ts) + " " + levelStyle.Render(logtail.LevelTag(e.Level)) + " "
		used := len(ts) + 5
		if e.Component != "" {
			prefix += styles.AccentText.Render(padRight(truncate(e.Component, 8), 8)) + " "
			used += 9
		}
		lines = append(lines, prefix+styles.Text.Render(truncate(text, max(width-used, 10))))
	}
	return strings.Join(lines, "\n")
}
