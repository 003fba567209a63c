package profile

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"

	"github.com/five82/marquee/internal/api"
	"github.com/five82/marquee/internal/query"
)

type fakeSession struct {
	token  string
	userID string
}

func (f fakeSession) Token() string  { return f.token }
func (f fakeSession) UserID() string { return f.userID }

type fakeBackend struct {
	user        api.UserProfile
	whoamiCalls int
	updates     []api.ProfileUpdate
	updateErr   error
	whoamiErr   error
}

func (f *fakeBackend) WhoAmI(context.Context) (api.UserProfile, error) {
	f.whoamiCalls++
	if f.whoamiErr != nil {
		return api.UserProfile{}, f.whoamiErr
	}
	return f.user.Clone(), nil
}

func (f *fakeBackend) UpdateProfile(_ context.Context, userID string, update api.ProfileUpdate) (api.MessageResponse, error) {
	if f.updateErr != nil {
		return api.MessageResponse{}, f.updateErr
	}
	f.updates = append(f.updates, update)
	f.user.Name = update.Name
	f.user.Email = update.Email
	f.user.Address = update.Address
	f.user.Categories = api.RefsFromIDs(update.Categories)
	if update.Image != nil {
		f.user.Image = "uploads/" + update.Image.Filename
	}
	return api.MessageResponse{Message: "Profile updated"}, nil
}

// pngHeader is enough for http.DetectContentType to report image/png.
var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func newLoaded(t *testing.T) (*Controller, *fakeBackend) {
	t.Helper()
	backend := &fakeBackend{user: api.UserProfile{
		ID:         "u1",
		Name:       "Ada",
		Email:      "ada@example.com",
		Address:    "1 Loop",
		DOB:        "1990-04-02T00:00:00.000Z",
		Categories: api.CategoryRefs{{ID: "c1", Name: "Action"}},
	}}
	c := NewController(backend, query.NewCache(), fakeSession{token: "tok", userID: "u1"})
	if _, err := c.Load(context.Background()); err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	return c, backend
}

func TestLoad_NoTokenNeverFetches(t *testing.T) {
	backend := &fakeBackend{}
	c := NewController(backend, query.NewCache(), fakeSession{})
	if _, err := c.Load(context.Background()); !errors.Is(err, query.ErrDisabled) {
		t.Fatalf("Load err = %v, want ErrDisabled", err)
	}
	if backend.whoamiCalls != 0 {
		t.Fatalf("whoami calls = %d, want 0", backend.whoamiCalls)
	}
	if v := c.Snapshot(); v.HasProfile || v.Status != query.StatusIdle {
		t.Fatalf("view = %+v, want idle without profile", v)
	}
}

func TestLoad_AlwaysRefetches(t *testing.T) {
	c, backend := newLoaded(t)
	if _, err := c.Load(context.Background()); err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if backend.whoamiCalls != 2 {
		t.Fatalf("whoami calls = %d, want 2", backend.whoamiCalls)
	}
}

func TestDraftDoesNotAliasCommittedProfile(t *testing.T) {
	c, _ := newLoaded(t)
	if err := c.BeginEdit(); err != nil {
		t.Fatalf("BeginEdit returned error: %v", err)
	}
	if err := c.UpdateDraftField(FieldName, "Grace"); err != nil {
		t.Fatalf("UpdateDraftField returned error: %v", err)
	}
	if err := c.ToggleDraftCategory("c2"); err != nil {
		t.Fatalf("ToggleDraftCategory returned error: %v", err)
	}

	v := c.Snapshot()
	if v.Profile.Name != "Ada" || len(v.Profile.Categories) != 1 {
		t.Fatalf("committed profile changed by draft edits: %+v", v.Profile)
	}
	if v.Draft.Name != "Grace" || !v.Draft.HasCategory("c2") {
		t.Fatalf("draft = %+v", v.Draft)
	}
	v.Draft.Categories[0] = "mutated"
	if c.Snapshot().Draft.Categories[0] == "mutated" {
		t.Fatal("Snapshot exposes the internal draft slice")
	}
}

func TestStateTransitions(t *testing.T) {
	c, _ := newLoaded(t)
	if err := c.UpdateDraftField(FieldName, "x"); !errors.Is(err, ErrNotEditing) {
		t.Fatalf("edit while viewing err = %v, want ErrNotEditing", err)
	}
	if err := c.Cancel(); !errors.Is(err, ErrNotEditing) {
		t.Fatalf("Cancel while viewing err = %v", err)
	}
	if err := c.BeginEdit(); err != nil {
		t.Fatalf("BeginEdit returned error: %v", err)
	}
	if err := c.BeginEdit(); !errors.Is(err, ErrNotViewing) {
		t.Fatalf("second BeginEdit err = %v, want ErrNotViewing", err)
	}
	if err := c.UpdateDraftField(FieldDOB, "02/04/1990"); !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("bad dob err = %v, want ErrInvalidDate", err)
	}
	if err := c.UpdateDraftField("age", "3"); !errors.Is(err, ErrUnknownField) {
		t.Fatalf("unknown field err = %v", err)
	}
	if err := c.StageImageReader("a.png", bytes.NewReader(pngHeader)); err != nil {
		t.Fatalf("StageImageReader returned error: %v", err)
	}
	if err := c.Cancel(); err != nil {
		t.Fatalf("Cancel returned error: %v", err)
	}
	v := c.Snapshot()
	if v.State != Viewing || v.Image != nil || v.Draft.Name != "" {
		t.Fatalf("view after cancel = %+v", v)
	}
}

func TestStageImage_Validation(t *testing.T) {
	c, _ := newLoaded(t)
	_ = c.BeginEdit()

	if err := c.StageImageReader("notes.txt", strings.NewReader("plain text")); !errors.Is(err, ErrNotImage) {
		t.Fatalf("text file err = %v, want ErrNotImage", err)
	}
	big := append(append([]byte(nil), pngHeader...), make([]byte, MaxImageBytes)...)
	if err := c.StageImageReader("big.png", bytes.NewReader(big)); !errors.Is(err, ErrImageTooLarge) {
		t.Fatalf("big file err = %v, want ErrImageTooLarge", err)
	}

	path := filepath.Join(t.TempDir(), "me.png")
	if err := os.WriteFile(path, pngHeader, 0o600); err != nil {
		t.Fatalf("write temp image: %v", err)
	}
	if err := c.StageImage(path); err != nil {
		t.Fatalf("StageImage returned error: %v", err)
	}
	img := c.Snapshot().Image
	if img == nil || img.Filename != "me.png" || img.ContentType != "image/png" {
		t.Fatalf("staged = %+v", img)
	}
	if !strings.HasPrefix(img.Preview, "data:image/png;base64,") {
		t.Fatalf("preview = %q", img.Preview)
	}
}

func TestSave_SuccessCommitsAndRefetches(t *testing.T) {
	c, backend := newLoaded(t)
	_ = c.BeginEdit()
	_ = c.UpdateDraftField(FieldAddress, "2 Loop")
	_ = c.UpdateDraftField(FieldDOB, "1991-05-06")
	_ = c.SetDraftCategories([]string{"c1", "c2"})
	_ = c.StageImageReader("me.png", bytes.NewReader(pngHeader))

	msg, err := c.Save(context.Background())
	if err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	if msg != "Profile updated" {
		t.Fatalf("message = %q", msg)
	}
	if len(backend.updates) != 1 {
		t.Fatalf("updates = %d, want 1", len(backend.updates))
	}
	sent := backend.updates[0]
	if sent.Address != "2 Loop" || sent.DOB.Format(DateLayout) != "1991-05-06" || len(sent.Categories) != 2 || sent.Image == nil {
		t.Fatalf("sent update = %+v", sent)
	}

	v := c.Snapshot()
	if v.State != Viewing || v.Image != nil {
		t.Fatalf("view after save = %+v", v)
	}
	if v.Profile.Address != "2 Loop" || v.Profile.Image != "uploads/me.png" {
		t.Fatalf("profile not refreshed: %+v", v.Profile)
	}
	if backend.whoamiCalls != 2 {
		t.Fatalf("whoami calls = %d, want 2 (load + refetch)", backend.whoamiCalls)
	}
}

func TestSave_FailedRefetchKeepsCommittedProfile(t *testing.T) {
	c, backend := newLoaded(t)
	_ = c.BeginEdit()
	_ = c.UpdateDraftField(FieldName, "Grace")
	backend.whoamiErr = &api.NetworkError{Op: "GET /whoami", Err: errors.New("connection refused")}

	if _, err := c.Save(context.Background()); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	if backend.whoamiCalls != 2 {
		t.Fatalf("whoami calls = %d, want 2 (load + refetch)", backend.whoamiCalls)
	}
	p, ok := c.Profile()
	if !ok || p.Name != "Grace" {
		t.Fatalf("Profile() = %+v, %v, want committed name Grace", p, ok)
	}
	v := c.Snapshot()
	if !v.HasProfile || v.State != Viewing || v.Profile.Name != "Grace" {
		t.Fatalf("view after save = %+v", v)
	}
}

func TestSave_FailureKeepsDraft(t *testing.T) {
	c, backend := newLoaded(t)
	backend.updateErr = &api.HTTPError{Status: 500, Message: "Server error"}
	_ = c.BeginEdit()
	_ = c.UpdateDraftField(FieldName, "Grace")

	if _, err := c.Save(context.Background()); err == nil {
		t.Fatal("expected save error")
	}
	v := c.Snapshot()
	if v.State != Editing || v.Draft.Name != "Grace" || v.SaveErr == nil {
		t.Fatalf("view after failed save = %+v", v)
	}
	if v.Profile.Name != "Ada" {
		t.Fatalf("committed profile changed on failure: %+v", v.Profile)
	}
}

func TestDisplayCategories_BothShapes(t *testing.T) {
	lookup := func(id string) (string, bool) {
		names := map[string]string{"catA": "Action", "catB": "Drama"}
		name, ok := names[id]
		return name, ok
	}
	for _, body := range []string{
		`["catA","catB"]`,
		`[{"_id":"catA","name":"Action"},{"_id":"catB","name":"Drama"}]`,
	} {
		var refs api.CategoryRefs
		if err := json.Unmarshal([]byte(body), &refs); err != nil {
			t.Fatalf("decode %s: %v", body, err)
		}
		if got := DisplayCategories(refs, lookup); got != "Action, Drama" {
			t.Fatalf("DisplayCategories(%s) = %q, want %q", body, got, "Action, Drama")
		}
	}
	if got := DisplayCategories(nil, lookup); got != "No categories selected" {
		t.Fatalf("empty = %q", got)
	}
	if got := DisplayCategories(api.RefsFromIDs([]string{"catZ"}), lookup); got != "catZ" {
		t.Fatalf("unknown id = %q, want catZ", got)
	}
}
