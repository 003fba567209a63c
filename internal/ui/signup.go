package ui

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/five82/marquee/internal/account"
	"github.com/five82/marquee/internal/api"
)

// signupFields lists the text inputs in display order.
var signupFields = []struct {
	key         string
	label       string
	placeholder string
}{
	{account.FieldName, "Name", "Ada Lovelace"},
	{account.FieldEmail, "Email", "you@example.com"},
	{account.FieldPassword, "Password", "at least 6 characters"},
	{account.FieldAddress, "Address", "street, city"},
	{account.FieldDOB, "Date of birth", "YYYY-MM-DD"},
}

// signupForm is the registration screen state. focusIdx equal to
// len(inputs) means the category chooser has focus.
type signupForm struct {
	inputs     []textinput.Model
	focusIdx   int
	catCursor  int
	selected   map[string]bool
	errs       account.FieldErrors
	err        string
	submitting bool
}

func newSignupForm() signupForm {
	inputs := make([]textinput.Model, len(signupFields))
	for i, field := range signupFields {
		in := textinput.New()
		in.Prompt = ""
		in.Placeholder = field.placeholder
		in.CharLimit = 200
		if field.key == account.FieldPassword {
			in.EchoMode = textinput.EchoPassword
			in.EchoCharacter = '•'
		}
		inputs[i] = in
	}
	return signupForm{inputs: inputs, selected: make(map[string]bool)}
}

func (f *signupForm) focus(idx int) {
	n := len(f.inputs) + 1
	f.focusIdx = ((idx % n) + n) % n
	for i := range f.inputs {
		if i == f.focusIdx {
			f.inputs[i].Focus()
		} else {
			f.inputs[i].Blur()
		}
	}
}

func (f *signupForm) setWidth(w int) {
	for i := range f.inputs {
		f.inputs[i].Width = w
	}
}

func (f signupForm) onChooser() bool {
	return f.focusIdx == len(f.inputs)
}

// form collects the inputs, keeping categories in catalog order.
func (f signupForm) form(cats []api.Category) account.Form {
	values := make(map[string]string, len(f.inputs))
	for i, field := range signupFields {
		values[field.key] = f.inputs[i].Value()
	}
	var ids []string
	for _, c := range cats {
		if f.selected[c.ID] {
			ids = append(ids, c.ID)
		}
	}
	return account.Form{
		Name:       values[account.FieldName],
		Email:      values[account.FieldEmail],
		Password:   values[account.FieldPassword],
		Address:    values[account.FieldAddress],
		DOB:        values[account.FieldDOB],
		Categories: ids,
	}
}

type signupResultMsg struct {
	email   string
	message string
	err     error
}

func signupCmd(ctx context.Context, svc *account.Service, form account.Form) tea.Cmd {
	return func() tea.Msg {
		message, err := svc.Signup(ctx, form)
		return signupResultMsg{email: strings.TrimSpace(form.Email), message: message, err: err}
	}
}

// handleSignupKey processes keyboard input for the sign-up screen.
func (m Model) handleSignupKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	f := &m.signup
	cats := m.catalog.Cached()

	if f.onChooser() {
		switch {
		case key.Matches(msg, m.keys.Up):
			f.catCursor = max(f.catCursor-1, 0)
			return m, nil
		case key.Matches(msg, m.keys.Down):
			f.catCursor = max(min(f.catCursor+1, len(cats)-1), 0)
			return m, nil
		case key.Matches(msg, m.keys.Toggle):
			if f.catCursor < len(cats) {
				id := cats[f.catCursor].ID
				f.selected[id] = !f.selected[id]
				f.errs.Clear(account.FieldCategories)
			}
			return m, nil
		}
	}

	switch {
	case key.Matches(msg, m.keys.Escape):
		return m.switchScreen(ScreenLogin)
	case key.Matches(msg, m.keys.NextField):
		f.focus(f.focusIdx + 1)
		return m, nil
	case key.Matches(msg, m.keys.PrevField):
		f.focus(f.focusIdx - 1)
		return m, nil
	case key.Matches(msg, m.keys.Save):
		return m.submitSignup()
	case key.Matches(msg, m.keys.Submit):
		if !f.onChooser() {
			f.focus(f.focusIdx + 1)
			return m, nil
		}
		return m.submitSignup()
	}

	if f.onChooser() {
		return m, nil
	}
	before := f.inputs[f.focusIdx].Value()
	var cmd tea.Cmd
	f.inputs[f.focusIdx], cmd = f.inputs[f.focusIdx].Update(msg)
	if f.inputs[f.focusIdx].Value() != before {
		f.errs.Clear(signupFields[f.focusIdx].key)
		f.err = ""
	}
	return m, cmd
}

func (m Model) submitSignup() (tea.Model, tea.Cmd) {
	f := &m.signup
	if f.submitting {
		return m, nil
	}
	form := f.form(m.catalog.Cached())
	if errs := account.Validate(form); errs != nil {
		f.errs = errs
		return m, nil
	}
	f.submitting = true
	f.err = ""
	f.errs = nil
	return m, signupCmd(m.ctx, m.account, form)
}

func (m Model) handleSignupResult(msg signupResultMsg) (tea.Model, tea.Cmd) {
	m.signup.submitting = false
	if msg.err != nil {
		var fe account.FieldErrors
		if errors.As(msg.err, &fe) {
			m.signup.errs = fe
			return m, nil
		}
		m.signup.err = account.ErrorMessage(msg.err, "Sign up failed")
		return m, nil
	}

	m.signup = newSignupForm()
	m.resizeInputs()
	m.login.inputs[loginEmail].SetValue(msg.email)
	m.login.inputs[loginPassword].SetValue("")
	m.login.err = ""
	model, cmd := m.switchScreen(ScreenLogin)
	next := model.(Model)
	return next, tea.Batch(cmd, next.setFlash(flashSuccess, msg.message))
}

// renderSignup renders the registration form and category chooser.
func (m Model) renderSignup() string {
	styles := m.theme.Styles()
	f := m.signup

	var b strings.Builder
	b.WriteString(styles.Text.Bold(true).Render("Create an account"))
	b.WriteString("\n\n")
	for i, field := range signupFields {
		b.WriteString(m.renderField(field.label, f.inputs[i], f.focusIdx == i, f.errs[field.key]))
	}

	labelStyle := styles.MutedText
	if f.onChooser() {
		labelStyle = styles.AccentText.Bold(true)
	}
	b.WriteString(labelStyle.Render("Favorite categories"))
	b.WriteString("\n")
	b.WriteString(m.renderCategoryChooser(m.catalog.Cached(), f.selected, f.catCursor, f.onChooser(), 6))
	if msg := f.errs[account.FieldCategories]; msg != "" {
		b.WriteString(styles.DangerText.Render(msg))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	switch {
	case f.submitting:
		b.WriteString(m.spinner.View() + " " + styles.MutedText.Render("Creating account..."))
	case f.err != "":
		b.WriteString(styles.DangerText.Render(f.err))
	default:
		b.WriteString(styles.FaintText.Render("tab to move, space to pick categories, ctrl+s to submit, esc to go back"))
	}

	panel := styles.FocusedPanel.Width(min(m.width-4, 80)).Render(b.String())
	return lipgloss.Place(m.width, m.contentHeight(), lipgloss.Center, lipgloss.Center, panel)
}

// renderCategoryChooser renders a scrolling checklist of categories.
func (m Model) renderCategoryChooser(cats []api.Category, selected map[string]bool, cursor int, focused bool, rows int) string {
	styles := m.theme.Styles()
	if len(cats) == 0 {
		entry := m.catalog.Entry()
		if entry.Err != nil {
			return styles.DangerText.Render("Couldn't load categories") + "\n"
		}
		return m.spinner.View() + " " + styles.MutedText.Render("Loading categories...") + "\n"
	}

	start := 0
	if cursor >= rows {
		start = cursor - rows + 1
	}
	end := min(start+rows, len(cats))

	var b strings.Builder
	for i := start; i < end; i++ {
		c := cats[i]
		box := ternary(selected[c.ID], "[x]", "[ ]")
		line := box + " " + c.Name
		switch {
		case focused && i == cursor:
			b.WriteString(styles.Selected.Render(" " + line + " "))
		case selected[c.ID]:
			b.WriteString(" " + styles.AccentText.Render(line))
		default:
			b.WriteString(" " + styles.Text.Render(line))
		}
		b.WriteString("\n")
	}
	if len(cats) > rows {
		b.WriteString(styles.FaintText.Render(" " + formatRange(start, end, len(cats))))
		b.WriteString("\n")
	}
	return b.String()
}
