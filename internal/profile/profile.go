// Package profile implements the profile view/edit state machine: a draft
// copy of the committed profile, a staged avatar image, and a multipart save
// that refreshes the cached profile.
package profile

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/five82/marquee/internal/api"
	"github.com/five82/marquee/internal/logging"
	"github.com/five82/marquee/internal/query"
)

// UserKey holds the signed-in user's profile.
var UserKey = query.Key{"user"}

// MaxImageBytes bounds staged avatar images.
const MaxImageBytes = 5 << 20

// DateLayout is the accepted date-of-birth input format.
const DateLayout = "2006-01-02"

var (
	ErrNotViewing    = errors.New("profile is not in viewing state")
	ErrNotEditing    = errors.New("profile is not being edited")
	ErrNoProfile     = errors.New("profile not loaded")
	ErrUnknownField  = errors.New("unknown profile field")
	ErrInvalidDate   = errors.New("date of birth must be YYYY-MM-DD")
	ErrImageTooLarge = fmt.Errorf("image exceeds %d MiB", MaxImageBytes>>20)
	ErrNotImage      = errors.New("file is not an image")
)

// State is the edit lifecycle state.
type State int

const (
	Viewing State = iota
	Editing
	Saving
)

func (s State) String() string {
	switch s {
	case Editing:
		return "editing"
	case Saving:
		return "saving"
	default:
		return "viewing"
	}
}

// Field names an editable text field of the draft.
type Field string

const (
	FieldName    Field = "name"
	FieldEmail   Field = "email"
	FieldAddress Field = "address"
	FieldDOB     Field = "dob"
)

// Draft is the editable copy of a profile. It never shares memory with the
// committed profile.
type Draft struct {
	Name       string
	Email      string
	Address    string
	DOB        time.Time
	Categories []string
}

func (d Draft) clone() Draft {
	d.Categories = append([]string(nil), d.Categories...)
	return d
}

// HasCategory reports whether id is selected in the draft.
func (d Draft) HasCategory(id string) bool {
	for _, c := range d.Categories {
		if c == id {
			return true
		}
	}
	return false
}

// StagedImage is an avatar chosen but not yet uploaded.
type StagedImage struct {
	Filename    string
	ContentType string
	Data        []byte
	// Preview is a data URL of the image.
	Preview string
}

// Backend is the subset of the REST client the controller uses.
type Backend interface {
	WhoAmI(ctx context.Context) (api.UserProfile, error)
	UpdateProfile(ctx context.Context, userID string, update api.ProfileUpdate) (api.MessageResponse, error)
}

// Session reports the current credentials. *session.Holder satisfies it.
type Session interface {
	Token() string
	UserID() string
}

// View is what the profile screen renders.
type View struct {
	State      State
	Profile    api.UserProfile
	HasProfile bool
	Status     query.Status
	Err        error
	Draft      Draft
	Image      *StagedImage
	SaveErr    error
	Message    string
}

// Controller drives the profile screen.
type Controller struct {
	backend Backend
	cache   *query.Cache
	session Session
	log     zerolog.Logger

	mu      sync.Mutex
	state   State
	draft   Draft
	image   *StagedImage
	saveErr error
	message string
}

// NewController returns a Controller in the Viewing state.
func NewController(backend Backend, cache *query.Cache, session Session) *Controller {
	return &Controller{
		backend: backend,
		cache:   cache,
		session: session,
		log:     logging.Component("profile"),
	}
}

// Load fetches the profile. Without a token it returns query.ErrDisabled
// and makes no request.
func (c *Controller) Load(ctx context.Context) (api.UserProfile, error) {
	return query.Fetch(ctx, c.cache, query.Query[api.UserProfile]{
		Key:       UserKey,
		StaleTime: query.StaleProfile,
		Disabled:  c.session.Token() == "",
		Fn:        c.backend.WhoAmI,
	})
}

// Profile returns the committed profile from the cache.
func (c *Controller) Profile() (api.UserProfile, bool) {
	return query.Get[api.UserProfile](c.cache, UserKey)
}

// Snapshot returns the current view.
func (c *Controller) Snapshot() View {
	entry, _ := c.cache.Entry(UserKey)
	profile, ok := entry.Data.(api.UserProfile)

	c.mu.Lock()
	defer c.mu.Unlock()
	v := View{
		State:      c.state,
		Profile:    profile.Clone(),
		HasProfile: ok && entry.HasData(),
		Status:     entry.Status,
		Err:        entry.Err,
		Draft:      c.draft.clone(),
		SaveErr:    c.saveErr,
		Message:    c.message,
	}
	if c.image != nil {
		img := *c.image
		v.Image = &img
	}
	return v
}

// BeginEdit copies the committed profile into a fresh draft.
func (c *Controller) BeginEdit() error {
	profile, ok := c.Profile()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Viewing {
		return ErrNotViewing
	}
	if !ok {
		return ErrNoProfile
	}
	c.draft = DraftFrom(profile)
	c.image = nil
	c.saveErr = nil
	c.message = ""
	c.state = Editing
	return nil
}

// DraftFrom builds a draft that shares no memory with p.
func DraftFrom(p api.UserProfile) Draft {
	return Draft{
		Name:       p.Name,
		Email:      p.Email,
		Address:    p.Address,
		DOB:        p.DateOfBirth(),
		Categories: p.Categories.IDs(),
	}
}

// UpdateDraftField sets one text field of the draft.
func (c *Controller) UpdateDraftField(field Field, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Editing {
		return ErrNotEditing
	}
	switch field {
	case FieldName:
		c.draft.Name = value
	case FieldEmail:
		c.draft.Email = value
	case FieldAddress:
		c.draft.Address = value
	case FieldDOB:
		value = strings.TrimSpace(value)
		if value == "" {
			c.draft.DOB = time.Time{}
			return nil
		}
		t, err := time.Parse(DateLayout, value)
		if err != nil {
			return ErrInvalidDate
		}
		c.draft.DOB = t
	default:
		return fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	return nil
}

// SetDraftCategories replaces the draft's category selection.
func (c *Controller) SetDraftCategories(ids []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Editing {
		return ErrNotEditing
	}
	c.draft.Categories = append([]string(nil), ids...)
	return nil
}

// ToggleDraftCategory adds or removes id from the draft's selection.
func (c *Controller) ToggleDraftCategory(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Editing {
		return ErrNotEditing
	}
	out := make([]string, 0, len(c.draft.Categories)+1)
	found := false
	for _, existing := range c.draft.Categories {
		if existing == id {
			found = true
			continue
		}
		out = append(out, existing)
	}
	if !found {
		out = append(out, id)
	}
	c.draft.Categories = out
	return nil
}

// StageImage reads the image at path for upload on the next Save.
func (c *Controller) StageImage(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open image: %w", err)
	}
	defer func() { _ = f.Close() }()
	return c.StageImageReader(filepath.Base(path), f)
}

// StageImageReader stages an image read from r, replacing any previously
// staged one.
func (c *Controller) StageImageReader(name string, r io.Reader) error {
	c.mu.Lock()
	editing := c.state == Editing
	c.mu.Unlock()
	if !editing {
		return ErrNotEditing
	}

	data, err := io.ReadAll(io.LimitReader(r, MaxImageBytes+1))
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}
	if len(data) > MaxImageBytes {
		return ErrImageTooLarge
	}
	contentType := http.DetectContentType(data)
	if !strings.HasPrefix(contentType, "image/") {
		return ErrNotImage
	}
	img := &StagedImage{
		Filename:    name,
		ContentType: contentType,
		Data:        data,
		Preview:     "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data),
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Editing {
		return ErrNotEditing
	}
	c.image = img
	return nil
}

// Cancel discards the draft and staged image.
func (c *Controller) Cancel() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Editing {
		return ErrNotEditing
	}
	c.state = Viewing
	c.draft = Draft{}
	c.image = nil
	c.saveErr = nil
	return nil
}

// Save uploads the draft. On success the draft becomes the committed profile
// and the profile is refetched; on failure the controller stays in Editing
// with the draft intact. The returned string is the server's message.
func (c *Controller) Save(ctx context.Context) (string, error) {
	profile, _ := c.Profile()

	c.mu.Lock()
	if c.state != Editing {
		c.mu.Unlock()
		return "", ErrNotEditing
	}
	draft := c.draft.clone()
	image := c.image
	c.state = Saving
	c.saveErr = nil
	c.mu.Unlock()

	userID := c.session.UserID()
	if userID == "" {
		userID = profile.ID
	}
	update := api.ProfileUpdate{
		Name:       draft.Name,
		Email:      draft.Email,
		Address:    draft.Address,
		DOB:        draft.DOB,
		Categories: draft.Categories,
	}
	if image != nil {
		update.Image = &api.Upload{Filename: image.Filename, ContentType: image.ContentType, Data: image.Data}
	}

	resp, err := c.backend.UpdateProfile(ctx, userID, update)
	if err != nil {
		c.mu.Lock()
		c.state = Editing
		c.saveErr = err
		c.mu.Unlock()
		c.log.Warn().Err(err).Msg("profile save failed")
		return "", err
	}

	message := resp.Message
	if message == "" {
		message = "Profile updated successfully!"
	}
	c.cache.SetData(UserKey, commit(profile, draft))

	c.mu.Lock()
	c.state = Viewing
	c.draft = Draft{}
	c.image = nil
	c.message = message
	c.mu.Unlock()

	// The user query is always stale, so Load refetches. A failed refetch
	// keeps the committed value.
	if _, err := c.Load(ctx); err != nil {
		c.log.Debug().Err(err).Msg("refetch profile after save failed")
	}
	return message, nil
}

// commit applies draft to p, keeping category names already known.
func commit(p api.UserProfile, d Draft) api.UserProfile {
	names := make(map[string]string, len(p.Categories))
	for _, ref := range p.Categories {
		names[ref.ID] = ref.Name
	}
	out := p.Clone()
	out.Name = d.Name
	out.Email = d.Email
	out.Address = d.Address
	if !d.DOB.IsZero() {
		out.DOB = d.DOB.UTC().Format(time.RFC3339)
	}
	out.Categories = make(api.CategoryRefs, 0, len(d.Categories))
	for _, id := range d.Categories {
		out.Categories = append(out.Categories, api.CategoryRef{ID: id, Name: names[id]})
	}
	return out
}

// DisplayCategories renders the committed profile's categories.
func (c *Controller) DisplayCategories(lookup func(id string) (string, bool)) string {
	profile, _ := c.Profile()
	return DisplayCategories(profile.Categories, lookup)
}

// DisplayCategories joins category names with ", ". Embedded names win;
// bare ids are resolved through lookup and fall back to the id itself.
func DisplayCategories(refs api.CategoryRefs, lookup func(id string) (string, bool)) string {
	if len(refs) == 0 {
		return "No categories selected"
	}
	names := make([]string, 0, len(refs))
	for _, ref := range refs {
		switch {
		case ref.Name != "":
			names = append(names, ref.Name)
		case lookup != nil:
			if name, ok := lookup(ref.ID); ok {
				names = append(names, name)
				continue
			}
			names = append(names, ref.ID)
		default:
			names = append(names, ref.ID)
		}
	}
	return strings.Join(names, ", ")
}
