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
	"github.com/five82/marquee/internal/profile"
	"github.com/five82/marquee/internal/query"
)

var profileFields = []struct {
	field profile.Field
	label string
}{
	{profile.FieldName, "Name"},
	{profile.FieldEmail, "Email"},
	{profile.FieldAddress, "Address"},
	{profile.FieldDOB, "Date of birth"},
}

// profileState is the profile screen's edit state. The draft itself lives
// in the profile controller; inputs mirror it while editing.
type profileState struct {
	editing   bool
	inputs    []textinput.Model
	focusIdx  int
	catCursor int
	dobErr    string
	width     int
}

func (s *profileState) startEditing(d profile.Draft) {
	values := map[profile.Field]string{
		profile.FieldName:    d.Name,
		profile.FieldEmail:   d.Email,
		profile.FieldAddress: d.Address,
	}
	if !d.DOB.IsZero() {
		values[profile.FieldDOB] = d.DOB.Format(profile.DateLayout)
	}

	s.inputs = make([]textinput.Model, len(profileFields))
	for i, f := range profileFields {
		in := textinput.New()
		in.Prompt = ""
		in.CharLimit = 200
		if f.field == profile.FieldDOB {
			in.Placeholder = "YYYY-MM-DD"
		}
		in.SetValue(values[f.field])
		if s.width > 0 {
			in.Width = s.width
		}
		s.inputs[i] = in
	}
	s.editing = true
	s.catCursor = 0
	s.dobErr = ""
	s.focus(0)
}

func (s *profileState) stopEditing() {
	s.editing = false
	s.inputs = nil
	s.focusIdx = 0
	s.dobErr = ""
}

func (s *profileState) focus(idx int) {
	n := len(s.inputs) + 1
	s.focusIdx = ((idx % n) + n) % n
	for i := range s.inputs {
		if i == s.focusIdx {
			s.inputs[i].Focus()
		} else {
			s.inputs[i].Blur()
		}
	}
}

func (s *profileState) setWidth(w int) {
	s.width = w
	for i := range s.inputs {
		s.inputs[i].Width = w
	}
}

func (s profileState) onChooser() bool {
	return s.editing && s.focusIdx == len(s.inputs)
}

type profileSavedMsg struct {
	message string
	err     error
}

func saveProfileCmd(ctx context.Context, c *profile.Controller) tea.Cmd {
	return func() tea.Msg {
		message, err := c.Save(ctx)
		return profileSavedMsg{message: message, err: err}
	}
}

// handleProfileKey processes keyboard input for the profile screen.
func (m Model) handleProfileKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	s := &m.profEdit
	if !s.editing {
		switch {
		case key.Matches(msg, m.keys.Edit):
			if err := m.profile.BeginEdit(); err != nil {
				if errors.Is(err, profile.ErrNoProfile) {
					return m, m.setFlash(flashInfo, "Profile is still loading.")
				}
				return m, nil
			}
			s.startEditing(m.profile.Snapshot().Draft)
			return m, textinput.Blink
		case key.Matches(msg, m.keys.Retry):
			return m, loadProfileCmd(m.ctx, m.profile)
		}
		return m, nil
	}

	view := m.profile.Snapshot()
	if view.State == profile.Saving {
		return m, nil
	}
	cats := m.catalog.Cached()

	if s.onChooser() {
		switch {
		case key.Matches(msg, m.keys.Up):
			s.catCursor = max(s.catCursor-1, 0)
			return m, nil
		case key.Matches(msg, m.keys.Down):
			s.catCursor = max(min(s.catCursor+1, len(cats)-1), 0)
			return m, nil
		case key.Matches(msg, m.keys.Toggle):
			if s.catCursor < len(cats) {
				_ = m.profile.ToggleDraftCategory(cats[s.catCursor].ID)
			}
			return m, nil
		}
	}

	switch {
	case key.Matches(msg, m.keys.Escape):
		_ = m.profile.Cancel()
		s.stopEditing()
		return m, m.setFlash(flashInfo, "Changes discarded.")
	case key.Matches(msg, m.keys.Save):
		return m.saveProfile()
	case key.Matches(msg, m.keys.Image):
		m.modal = newImageModal(m.profile.StageImage)
		return m, textinput.Blink
	case key.Matches(msg, m.keys.NextField):
		s.focus(s.focusIdx + 1)
		return m, nil
	case key.Matches(msg, m.keys.PrevField):
		s.focus(s.focusIdx - 1)
		return m, nil
	case key.Matches(msg, m.keys.Submit):
		if s.onChooser() {
			return m.saveProfile()
		}
		s.focus(s.focusIdx + 1)
		return m, nil
	}

	if s.onChooser() {
		return m, nil
	}
	field := profileFields[s.focusIdx].field
	before := s.inputs[s.focusIdx].Value()
	var cmd tea.Cmd
	s.inputs[s.focusIdx], cmd = s.inputs[s.focusIdx].Update(msg)
	if v := s.inputs[s.focusIdx].Value(); v != before {
		err := m.profile.UpdateDraftField(field, v)
		if field == profile.FieldDOB {
			s.dobErr = ""
			if errors.Is(err, profile.ErrInvalidDate) {
				s.dobErr = "Date of birth must be YYYY-MM-DD"
			}
		}
	}
	return m, cmd
}

func (m Model) saveProfile() (tea.Model, tea.Cmd) {
	if m.profEdit.dobErr != "" {
		return m, m.setFlash(flashError, "Fix the date of birth before saving.")
	}
	return m, saveProfileCmd(m.ctx, m.profile)
}

func (m Model) handleProfileSaved(msg profileSavedMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		if errors.Is(msg.err, profile.ErrNotEditing) {
			return m, nil
		}
		return m, m.setFlash(flashError, "Couldn't save profile: "+api.Message(msg.err))
	}
	m.profEdit.stopEditing()
	return m, m.setFlash(flashSuccess, msg.message)
}

// handleModalClosed reacts to a modal finishing.
func (m Model) handleModalClosed(modal Modal, cmd tea.Cmd) (tea.Model, tea.Cmd) {
	if im, ok := modal.(imageModal); ok && im.staged != "" {
		return m, tea.Batch(cmd, m.setFlash(flashSuccess, "Avatar "+im.staged+" staged. ctrl+s to save."))
	}
	return m, cmd
}

// renderProfile renders the profile card or the edit form.
func (m Model) renderProfile() string {
	styles := m.theme.Styles()
	view := m.profile.Snapshot()

	var body string
	switch {
	case !view.HasProfile && view.Err != nil:
		body = styles.DangerText.Render("Couldn't load profile: "+api.Message(view.Err)) + "\n\n" +
			styles.FaintText.Render("press r to retry")
	case !view.HasProfile:
		body = m.spinner.View() + " " + styles.MutedText.Render("Loading profile...")
	case m.profEdit.editing:
		body = m.renderProfileForm(view)
	default:
		body = m.renderProfileCard(view)
	}

	panel := styles.FocusedPanel.Width(min(m.width-4, 84)).Render(body)
	return lipgloss.Place(m.width, m.contentHeight(), lipgloss.Center, lipgloss.Center, panel)
}

func (m Model) renderProfileCard(view profile.View) string {
	styles := m.theme.Styles()
	p := view.Profile

	dob := "-"
	if t := p.DateOfBirth(); !t.IsZero() {
		dob = t.Format("January 2, 2006")
	}
	avatar := "none"
	if p.Image != "" && m.images != nil {
		avatar = m.images.ResolveImageURL(p.Image)
	}

	rows := []struct{ label, value string }{
		{"Name", p.Name},
		{"Email", p.Email},
		{"Address", p.Address},
		{"Date of birth", dob},
		{"Categories", m.profile.DisplayCategories(movies.Lookup(m.catalog.Cached()))},
		{"Avatar", avatar},
	}

	var b strings.Builder
	b.WriteString(styles.Text.Bold(true).Render("Your profile"))
	if view.Status == query.StatusLoading {
		b.WriteString(" " + m.spinner.View())
	}
	b.WriteString("\n\n")
	for _, r := range rows {
		b.WriteString(styles.MutedText.Render(padRight(r.label, 15)))
		b.WriteString(styles.Text.Render(ternary(r.value == "", "-", r.value)))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	if view.Err != nil {
		b.WriteString(styles.WarningText.Render("Showing saved profile: " + api.Message(view.Err)))
		b.WriteString("\n")
	}
	if view.Message != "" {
		b.WriteString(styles.SuccessText.Render(view.Message))
		b.WriteString("\n")
	}
	b.WriteString(styles.FaintText.Render("e to edit"))
	return b.String()
}

func (m Model) renderProfileForm(view profile.View) string {
	styles := m.theme.Styles()
	s := m.profEdit

	var b strings.Builder
	b.WriteString(styles.Text.Bold(true).Render("Edit profile"))
	b.WriteString("\n\n")
	for i, f := range profileFields {
		errMsg := ""
		if f.field == profile.FieldDOB {
			errMsg = s.dobErr
		}
		b.WriteString(m.renderField(f.label, s.inputs[i], s.focusIdx == i, errMsg))
	}

	labelStyle := styles.MutedText
	if s.onChooser() {
		labelStyle = styles.AccentText.Bold(true)
	}
	b.WriteString(labelStyle.Render("Categories"))
	b.WriteString("\n")
	selected := make(map[string]bool, len(view.Draft.Categories))
	for _, id := range view.Draft.Categories {
		selected[id] = true
	}
	b.WriteString(m.renderCategoryChooser(m.catalog.Cached(), selected, s.catCursor, s.onChooser(), 6))
	b.WriteString("\n")

	b.WriteString(styles.MutedText.Render(padRight("Avatar", 14)))
	if view.Image != nil {
		b.WriteString(styles.AccentText.Render(fmt.Sprintf("%s (%s, %d KB)",
			view.Image.Filename, view.Image.ContentType, (len(view.Image.Data)+1023)/1024)))
	} else {
		b.WriteString(styles.FaintText.Render("unchanged, ctrl+o to choose a file"))
	}
	b.WriteString("\n\n")

	switch {
	case view.State == profile.Saving:
		b.WriteString(m.spinner.View() + " " + styles.MutedText.Render("Saving..."))
	case view.SaveErr != nil:
		b.WriteString(styles.DangerText.Render("Couldn't save: " + api.Message(view.SaveErr)))
	default:
		b.WriteString(styles.FaintText.Render("tab to move, space to toggle, ctrl+s to save, esc to cancel"))
	}
	return b.String()
}
