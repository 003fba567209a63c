// Package session holds the bearer token shared by every REST call.
//
// A Holder is created once by the composition root and passed explicitly to
// the API client and to each controller. Changes are published to subscribers
// instead of being read from ambient global state.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/five82/marquee/internal/logging"
)

// Session is the authenticated identity of the current user.
type Session struct {
	Token     string    `json:"token"`
	UserID    string    `json:"userId,omitempty"`
	ExpiresAt time.Time `json:"expiresAt,omitempty"`
}

// Valid reports whether the session carries a token that has not expired.
func (s Session) Valid(now time.Time) bool {
	if s.Token == "" {
		return false
	}
	return s.ExpiresAt.IsZero() || now.Before(s.ExpiresAt)
}

// ErrNoSession is returned by a Store with nothing persisted.
var ErrNoSession = errors.New("no persisted session")

// Store persists the session across restarts.
type Store interface {
	Load() (Session, error)
	Save(Session) error
	Clear() error
}

// Holder is the single source of truth for the bearer token.
type Holder struct {
	mu      sync.RWMutex
	current Session
	store   Store
	subs    map[int]func(Session)
	nextSub int
	now     func() time.Time
}

// NewHolder builds a Holder backed by store. A nil store keeps the session in
// memory only.
func NewHolder(store Store) *Holder {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Holder{
		store: store,
		subs:  make(map[int]func(Session)),
		now:   time.Now,
	}
}

// Load restores the persisted session. Expired sessions are discarded.
func (h *Holder) Load() error {
	persisted, err := h.store.Load()
	if errors.Is(err, ErrNoSession) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	persisted = withClaims(persisted)
	if !persisted.Valid(h.now()) {
		logging.Info().Msg("discarding expired session")
		return h.store.Clear()
	}

	h.mu.Lock()
	h.current = persisted
	h.mu.Unlock()
	h.notify(persisted)
	return nil
}

// SetToken stores a bare token, deriving the user id from its claims.
func (h *Holder) SetToken(token string) error {
	return h.SetSession(Session{Token: token})
}

// SetSession stores s in memory and in the durable store and notifies
// subscribers. An empty token clears the session.
func (h *Holder) SetSession(s Session) error {
	if s.Token == "" {
		return h.ClearToken()
	}
	s = withClaims(s)

	h.mu.Lock()
	h.current = s
	h.mu.Unlock()

	err := h.store.Save(s)
	h.notify(s)
	if err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	return nil
}

// ClearToken removes the token from memory and from the durable store.
// Subscribers are only notified when a session was actually present.
func (h *Holder) ClearToken() error {
	h.mu.Lock()
	had := h.current.Token != ""
	h.current = Session{}
	h.mu.Unlock()

	err := h.store.Clear()
	if had {
		h.notify(Session{})
	}
	if err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// Token returns the bearer token, or "" when signed out.
func (h *Holder) Token() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current.Token
}

// UserID returns the signed-in user's id, or "".
func (h *Holder) UserID() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current.UserID
}

// Current returns a copy of the session.
func (h *Holder) Current() Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// Authenticated reports whether a usable token is present.
func (h *Holder) Authenticated() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current.Valid(h.now())
}

// Subscribe registers fn for session changes and returns its cancel func.
// Callbacks run on the goroutine that changed the session.
func (h *Holder) Subscribe(fn func(Session)) func() {
	h.mu.Lock()
	id := h.nextSub
	h.nextSub++
	h.subs[id] = fn
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
	}
}

func (h *Holder) notify(s Session) {
	h.mu.RLock()
	fns := make([]func(Session), 0, len(h.subs))
	for _, fn := range h.subs {
		fns = append(fns, fn)
	}
	h.mu.RUnlock()

	for _, fn := range fns {
		fn(s)
	}
}
