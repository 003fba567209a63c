package session

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return tok
}

func TestHolder_SetTokenDerivesClaims(t *testing.T) {
	h := NewHolder(NewMemoryStore())
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	tok := signedToken(t, jwt.MapClaims{"id": "user-1", "exp": exp.Unix()})

	if err := h.SetToken(tok); err != nil {
		t.Fatalf("SetToken returned error: %v", err)
	}
	if got := h.UserID(); got != "user-1" {
		t.Fatalf("UserID = %q, want user-1", got)
	}
	if got := h.Current().ExpiresAt; !got.Equal(exp) {
		t.Fatalf("ExpiresAt = %v, want %v", got, exp)
	}
	if !h.Authenticated() {
		t.Fatal("Authenticated() = false, want true")
	}
}

func TestHolder_OpaqueTokenKeepsExplicitUserID(t *testing.T) {
	h := NewHolder(nil)
	if err := h.SetSession(Session{Token: "opaque", UserID: "u-9"}); err != nil {
		t.Fatalf("SetSession returned error: %v", err)
	}
	if h.Token() != "opaque" || h.UserID() != "u-9" {
		t.Fatalf("session = %#v, want opaque/u-9", h.Current())
	}
}

func TestHolder_ClearTokenNotifiesOnce(t *testing.T) {
	store := NewMemoryStore()
	h := NewHolder(store)

	var events []Session
	cancel := h.Subscribe(func(s Session) { events = append(events, s) })
	defer cancel()

	if err := h.SetToken("abc"); err != nil {
		t.Fatalf("SetToken returned error: %v", err)
	}
	if err := h.ClearToken(); err != nil {
		t.Fatalf("ClearToken returned error: %v", err)
	}
	if err := h.ClearToken(); err != nil {
		t.Fatalf("second ClearToken returned error: %v", err)
	}

	if len(events) != 2 {
		t.Fatalf("got %d notifications, want 2 (set + one clear)", len(events))
	}
	if events[1].Token != "" {
		t.Fatalf("clear notification token = %q, want empty", events[1].Token)
	}
	if _, err := store.Load(); !errors.Is(err, ErrNoSession) {
		t.Fatalf("store.Load after clear err = %v, want ErrNoSession", err)
	}
	if h.Authenticated() {
		t.Fatal("Authenticated() = true after clear")
	}
}

func TestHolder_UnsubscribeStopsNotifications(t *testing.T) {
	h := NewHolder(nil)
	calls := 0
	cancel := h.Subscribe(func(Session) { calls++ })
	cancel()
	_ = h.SetToken("x")
	if calls != 0 {
		t.Fatalf("calls = %d after unsubscribe, want 0", calls)
	}
}

func TestHolder_LoadDiscardsExpired(t *testing.T) {
	store := NewMemoryStore()
	expired := signedToken(t, jwt.MapClaims{"sub": "u", "exp": time.Now().Add(-time.Minute).Unix()})
	_ = store.Save(Session{Token: expired})

	h := NewHolder(store)
	if err := h.Load(); err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if h.Token() != "" {
		t.Fatalf("Token = %q, want empty for expired session", h.Token())
	}
	if _, err := store.Load(); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expired session should be cleared from store, err = %v", err)
	}
}

func TestHolder_LoadRestoresPersisted(t *testing.T) {
	store := NewMemoryStore()
	_ = store.Save(Session{Token: "persisted", UserID: "u-1"})

	h := NewHolder(store)
	if err := h.Load(); err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if h.Token() != "persisted" || h.UserID() != "u-1" {
		t.Fatalf("session = %#v, want persisted/u-1", h.Current())
	}
}

func TestBadgerStore_RoundTrip(t *testing.T) {
	store, err := OpenBadgerStore(t.TempDir())
	if err != nil {
		t.Fatalf("OpenBadgerStore returned error: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	if _, err := store.Load(); !errors.Is(err, ErrNoSession) {
		t.Fatalf("empty Load err = %v, want ErrNoSession", err)
	}

	want := Session{Token: "tok", UserID: "u-2"}
	if err := store.Save(want); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if got.Token != want.Token || got.UserID != want.UserID {
		t.Fatalf("Load = %#v, want %#v", got, want)
	}

	if err := store.Clear(); err != nil {
		t.Fatalf("Clear returned error: %v", err)
	}
	if _, err := store.Load(); !errors.Is(err, ErrNoSession) {
		t.Fatalf("Load after Clear err = %v, want ErrNoSession", err)
	}
}
