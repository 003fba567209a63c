// Package account implements sign-in, sign-up and sign-out.
package account

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/five82/marquee/internal/api"
	"github.com/five82/marquee/internal/logging"
	"github.com/five82/marquee/internal/profile"
	"github.com/five82/marquee/internal/query"
	"github.com/five82/marquee/internal/session"
)

// Backend is the subset of the REST client used by Service.
type Backend interface {
	Login(ctx context.Context, creds api.Credentials) (api.LoginResponse, error)
	Signup(ctx context.Context, req api.SignupRequest) (api.MessageResponse, error)
}

// Sessions stores the signed-in session. *session.Holder satisfies it.
type Sessions interface {
	SetSession(s session.Session) error
	ClearToken() error
}

// Service runs the account flows against the shared session and cache.
type Service struct {
	backend  Backend
	sessions Sessions
	cache    *query.Cache
	log      zerolog.Logger
}

// NewService returns a Service.
func NewService(backend Backend, sessions Sessions, cache *query.Cache) *Service {
	return &Service{
		backend:  backend,
		sessions: sessions,
		cache:    cache,
		log:      logging.Component("account"),
	}
}

// Login signs in and stores the session. The cached profile is invalidated
// so the next read fetches the new user.
func (s *Service) Login(ctx context.Context, email, password string) (api.UserProfile, error) {
	email = strings.TrimSpace(email)
	errs := FieldErrors{}
	if email == "" {
		errs[FieldEmail] = "Email is required"
	}
	if password == "" {
		errs[FieldPassword] = "Password is required"
	}
	if len(errs) > 0 {
		return api.UserProfile{}, errs
	}

	resp, err := s.backend.Login(ctx, api.Credentials{Email: email, Password: password})
	if err != nil {
		s.log.Info().Err(err).Str("email", email).Msg("login failed")
		return api.UserProfile{}, err
	}
	if resp.Token == "" {
		return api.UserProfile{}, fmt.Errorf("login response missing token")
	}
	if err := s.sessions.SetSession(session.Session{Token: resp.Token, UserID: resp.User.ID}); err != nil {
		return api.UserProfile{}, fmt.Errorf("store session: %w", err)
	}
	if err := s.cache.Invalidate(ctx, profile.UserKey); err != nil {
		s.log.Debug().Err(err).Msg("refresh profile after login failed")
	}
	s.log.Info().Str("user", resp.User.ID).Msg("signed in")
	return resp.User, nil
}

// Signup validates form and registers the account. Validation failures are
// returned as FieldErrors without a request being made.
func (s *Service) Signup(ctx context.Context, form Form) (string, error) {
	if errs := Validate(form); errs != nil {
		return "", errs
	}
	form = form.normalized()
	resp, err := s.backend.Signup(ctx, api.SignupRequest{
		Name:       form.Name,
		Email:      form.Email,
		Password:   form.Password,
		Address:    form.Address,
		DOB:        form.DOB,
		Categories: append([]string(nil), form.Categories...),
	})
	if err != nil {
		return "", err
	}
	msg := resp.Message
	if msg == "" {
		msg = "Sign up successful! Please log in."
	}
	return msg, nil
}

// Logout clears the session and every cached query.
func (s *Service) Logout() error {
	err := s.sessions.ClearToken()
	s.cache.Clear()
	if err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	s.log.Info().Msg("signed out")
	return nil
}

// ErrorMessage returns the text to show for err, using fallback when the
// error carries nothing useful for a user.
func ErrorMessage(err error, fallback string) string {
	if err == nil {
		return ""
	}
	var fe FieldErrors
	if errors.As(err, &fe) {
		return fe.Error()
	}
	var httpErr *api.HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.Message != "" {
			return httpErr.Message
		}
		return fallback
	}
	if api.IsNetwork(err) {
		return api.Message(err)
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return fallback
}
