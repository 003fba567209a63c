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
	"github.com/five82/marquee/internal/prefs"
)

const (
	loginEmail = iota
	loginPassword
)

// loginForm is the sign-in screen state.
type loginForm struct {
	inputs     []textinput.Model
	focusIdx   int
	errs       account.FieldErrors
	err        string
	submitting bool
}

func newLoginForm(lastEmail string) loginForm {
	email := textinput.New()
	email.Placeholder = "you@example.com"
	email.Prompt = ""
	email.CharLimit = 254
	email.SetValue(strings.TrimSpace(lastEmail))

	password := textinput.New()
	password.Placeholder = "password"
	password.Prompt = ""
	password.EchoMode = textinput.EchoPassword
	password.EchoCharacter = '•'

	return loginForm{inputs: []textinput.Model{email, password}}
}

// initialFocus starts on the password when the email is remembered.
func (f loginForm) initialFocus() int {
	if f.inputs[loginEmail].Value() != "" {
		return loginPassword
	}
	return loginEmail
}

func (f *loginForm) focus(idx int) {
	n := len(f.inputs)
	f.focusIdx = ((idx % n) + n) % n
	for i := range f.inputs {
		if i == f.focusIdx {
			f.inputs[i].Focus()
		} else {
			f.inputs[i].Blur()
		}
	}
}

func (f *loginForm) setWidth(w int) {
	for i := range f.inputs {
		f.inputs[i].Width = w
	}
}

func (f loginForm) fieldKey(idx int) string {
	if idx == loginPassword {
		return account.FieldPassword
	}
	return account.FieldEmail
}

type loginResultMsg struct {
	email string
	user  api.UserProfile
	err   error
}

func loginCmd(ctx context.Context, svc *account.Service, email, password string) tea.Cmd {
	return func() tea.Msg {
		user, err := svc.Login(ctx, email, password)
		return loginResultMsg{email: strings.TrimSpace(email), user: user, err: err}
	}
}

// handleLoginKey processes keyboard input for the sign-in screen.
func (m Model) handleLoginKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	f := &m.login
	switch {
	case key.Matches(msg, m.keys.ToSignup):
		return m.switchScreen(ScreenSignup)
	case key.Matches(msg, m.keys.NextField):
		f.focus(f.focusIdx + 1)
		return m, nil
	case key.Matches(msg, m.keys.PrevField):
		f.focus(f.focusIdx - 1)
		return m, nil
	case key.Matches(msg, m.keys.Submit):
		if f.focusIdx == loginEmail {
			f.focus(loginPassword)
			return m, nil
		}
		if f.submitting {
			return m, nil
		}
		f.submitting = true
		f.err = ""
		f.errs = nil
		return m, loginCmd(m.ctx, m.account, f.inputs[loginEmail].Value(), f.inputs[loginPassword].Value())
	}

	before := f.inputs[f.focusIdx].Value()
	var cmd tea.Cmd
	f.inputs[f.focusIdx], cmd = f.inputs[f.focusIdx].Update(msg)
	if f.inputs[f.focusIdx].Value() != before {
		f.errs.Clear(f.fieldKey(f.focusIdx))
		f.err = ""
	}
	return m, cmd
}

func (m Model) handleLoginResult(msg loginResultMsg) (tea.Model, tea.Cmd) {
	f := &m.login
	f.submitting = false
	if msg.err != nil {
		var fe account.FieldErrors
		if errors.As(msg.err, &fe) {
			f.errs = fe
			return m, nil
		}
		f.err = account.ErrorMessage(msg.err, "Login failed")
		return m, nil
	}

	f.inputs[loginPassword].SetValue("")
	f.errs = nil
	f.err = ""
	m.authed = true
	m.savePrefs(func(p *prefs.Prefs) { p.LastEmail = msg.email })

	name := msg.user.Name
	if name == "" {
		name = msg.email
	}
	model, cmd := m.switchScreen(ScreenMovies)
	next := model.(Model)
	return next, tea.Batch(cmd, next.setFlash(flashSuccess, "Welcome, "+name+"!"))
}

// renderLogin renders the sign-in form.
func (m Model) renderLogin() string {
	styles := m.theme.Styles()
	f := m.login

	var b strings.Builder
	b.WriteString(styles.Text.Bold(true).Render("Sign in"))
	b.WriteString("\n\n")
	b.WriteString(m.renderField("Email", f.inputs[loginEmail], f.focusIdx == loginEmail, f.errs[account.FieldEmail]))
	b.WriteString(m.renderField("Password", f.inputs[loginPassword], f.focusIdx == loginPassword, f.errs[account.FieldPassword]))

	switch {
	case f.submitting:
		b.WriteString(m.spinner.View() + " " + styles.MutedText.Render("Signing in..."))
	case f.err != "":
		b.WriteString(styles.DangerText.Render(f.err))
	default:
		b.WriteString(styles.FaintText.Render("enter to sign in, ctrl+n to create an account"))
	}

	panel := styles.FocusedPanel.Width(min(m.width-4, 72)).Render(b.String())
	return lipgloss.Place(m.width, m.contentHeight(), lipgloss.Center, lipgloss.Center, panel)
}

// renderField renders a labeled input with its validation message.
func (m Model) renderField(label string, input textinput.Model, focused bool, errMsg string) string {
	styles := m.theme.Styles()
	labelStyle := styles.MutedText
	if focused {
		labelStyle = styles.AccentText.Bold(true)
	}

	var b strings.Builder
	b.WriteString(labelStyle.Render(padRight(label, 14)))
	b.WriteString(input.View())
	b.WriteString("\n")
	if errMsg != "" {
		b.WriteString(strings.Repeat(" ", 14))
		b.WriteString(styles.DangerText.Render(errMsg))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	return b.String()
}
