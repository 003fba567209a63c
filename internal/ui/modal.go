package ui

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/five82/marquee/internal/profile"
)

// Modal is the interface for modal dialogs.
// The Update method returns the updated modal, a command, and a bool indicating if the modal should close.
type Modal interface {
	Update(msg tea.Msg, keys keyMap) (Modal, tea.Cmd, bool)
	View(theme Theme, width, height int) string
}

// imageModal asks for the path of an avatar image and stages it.
type imageModal struct {
	input  textinput.Model
	stage  func(path string) error
	err    string
	staged string
}

func newImageModal(stage func(path string) error) imageModal {
	in := textinput.New()
	in.Prompt = "› "
	in.Placeholder = "~/Pictures/avatar.png"
	in.CharLimit = 512
	in.Width = 48
	in.Focus()
	return imageModal{input: in, stage: stage}
}

// Update implements Modal.
func (im imageModal) Update(msg tea.Msg, keys keyMap) (Modal, tea.Cmd, bool) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		var cmd tea.Cmd
		im.input, cmd = im.input.Update(msg)
		return im, cmd, false
	}

	switch {
	case key.Matches(keyMsg, keys.Escape):
		return im, nil, true
	case key.Matches(keyMsg, keys.Submit):
		path := expandHome(strings.TrimSpace(im.input.Value()))
		if path == "" {
			im.err = "Enter a file path"
			return im, nil, false
		}
		if err := im.stage(path); err != nil {
			im.err = imageErrorMessage(err)
			return im, nil, false
		}
		im.staged = filepath.Base(path)
		return im, nil, true
	}

	var cmd tea.Cmd
	im.input, cmd = im.input.Update(msg)
	im.err = ""
	return im, cmd, false
}

// View implements Modal.
func (im imageModal) View(theme Theme, width, height int) string {
	styles := theme.Styles()

	var b strings.Builder
	b.WriteString(styles.Text.Bold(true).Render("Choose avatar image"))
	b.WriteString("\n\n")
	b.WriteString(im.input.View())
	b.WriteString("\n\n")
	if im.err != "" {
		b.WriteString(styles.DangerText.Render(im.err))
		b.WriteString("\n")
	}
	b.WriteString(styles.FaintText.Render("PNG, JPEG, GIF or WebP up to 5 MiB. enter to stage, esc to cancel"))

	modal := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(theme.Accent)).
		Padding(1, 2).
		Width(60)

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

func imageErrorMessage(err error) string {
	switch {
	case errors.Is(err, profile.ErrNotImage):
		return "That file is not an image"
	case errors.Is(err, profile.ErrImageTooLarge):
		return "Image must be 5 MiB or smaller"
	case errors.Is(err, profile.ErrNotEditing):
		return "Start editing the profile first"
	default:
		return err.Error()
	}
}

// expandHome replaces a leading ~ with the home directory.
func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
