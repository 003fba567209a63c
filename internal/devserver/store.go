package devserver

import (
	"errors"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/five82/marquee/internal/api"
)

var (
	errNotFound  = errors.New("not found")
	errDuplicate = errors.New("already exists")
)

type user struct {
	ID           string
	Name         string
	Email        string
	PasswordHash []byte
	Address      string
	DOB          time.Time
	Categories   []string
	Image        string
}

type upload struct {
	ContentType string
	Data        []byte
}

// store is the in-memory backing data for the dev backend.
type store struct {
	mu         sync.RWMutex
	categories []api.Category
	movies     []api.Movie
	users      map[string]*user
	byEmail    map[string]string
	uploads    map[string]upload
}

func newStore() *store {
	return &store{
		users:   make(map[string]*user),
		byEmail: make(map[string]string),
		uploads: make(map[string]upload),
	}
}

// stableID derives a deterministic id so seeded data is addressable across
// restarts.
func stableID(kind, name string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("marquee:"+kind+":"+name)).String()
}

func (s *store) addCategory(name string) api.Category {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := api.Category{ID: stableID("category", name), Name: name}
	s.categories = append(s.categories, c)
	return c
}

func (s *store) addMovie(m api.Movie) api.Movie {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID == "" {
		m.ID = stableID("movie", m.Title)
	}
	m = m.Clone()
	m.AverageRating = average(m.Ratings)
	s.movies = append(s.movies, m)
	return m
}

func (s *store) addUser(u user) (*user, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	email := strings.ToLower(strings.TrimSpace(u.Email))
	if _, ok := s.byEmail[email]; ok {
		return nil, errDuplicate
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.Email = email
	stored := u
	s.users[stored.ID] = &stored
	s.byEmail[email] = stored.ID
	return &stored, nil
}

func (s *store) userByEmail(email string) (user, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return user{}, false
	}
	return *s.users[id], true
}

func (s *store) userByID(id string) (user, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return user{}, false
	}
	return *u, true
}

// updateUser applies fn to the stored user. Changing the email to one held
// by another account fails with errDuplicate.
func (s *store) updateUser(id string, fn func(*user)) (user, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return user{}, errNotFound
	}
	next := *u
	next.Categories = append([]string(nil), u.Categories...)
	fn(&next)
	next.Email = strings.ToLower(strings.TrimSpace(next.Email))
	if next.Email != u.Email {
		if owner, taken := s.byEmail[next.Email]; taken && owner != id {
			return user{}, errDuplicate
		}
		delete(s.byEmail, u.Email)
		s.byEmail[next.Email] = id
	}
	*u = next
	return next, nil
}

func (s *store) profile(u user) api.UserProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make(map[string]string, len(s.categories))
	for _, c := range s.categories {
		names[c.ID] = c.Name
	}
	refs := make(api.CategoryRefs, 0, len(u.Categories))
	for _, id := range u.Categories {
		refs = append(refs, api.CategoryRef{ID: id, Name: names[id]})
	}
	p := api.UserProfile{
		ID:         u.ID,
		Name:       u.Name,
		Email:      u.Email,
		Address:    u.Address,
		Image:      u.Image,
		Categories: refs,
	}
	if !u.DOB.IsZero() {
		p.DOB = u.DOB.UTC().Format(time.RFC3339)
	}
	return p
}

func (s *store) listCategories() []api.Category {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]api.Category(nil), s.categories...)
}

func (s *store) hasCategory(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.categories {
		if c.ID == id {
			return true
		}
	}
	return false
}

// moviePage returns page (1-based) of the movies whose title contains term.
func (s *store) moviePage(term string, page, limit int) api.MoviePage {
	s.mu.RLock()
	defer s.mu.RUnlock()

	term = strings.ToLower(strings.TrimSpace(term))
	matched := make([]api.Movie, 0, len(s.movies))
	for _, m := range s.movies {
		if term == "" || strings.Contains(strings.ToLower(m.Title), term) {
			matched = append(matched, m)
		}
	}

	total := len(matched)
	totalPages := (total + limit - 1) / limit
	start := (page - 1) * limit
	end := min(start+limit, total)
	out := api.MoviePage{
		Movies:      []api.Movie{},
		CurrentPage: page,
		TotalPages:  totalPages,
		TotalMovies: total,
	}
	for i := start; i < end; i++ {
		out.Movies = append(out.Movies, matched[i].Clone())
	}
	return out
}

func (s *store) rate(movieID, userID string, stars int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.movies {
		m := &s.movies[i]
		if m.ID != movieID {
			continue
		}
		replaced := false
		for j := range m.Ratings {
			if m.Ratings[j].UserID == userID {
				m.Ratings[j].Rating = stars
				replaced = true
			}
		}
		if !replaced {
			m.Ratings = append(m.Ratings, api.Rating{UserID: userID, Rating: stars})
		}
		m.AverageRating = average(m.Ratings)
		return nil
	}
	return errNotFound
}

func (s *store) snapshotMovies() []api.Movie {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]api.Movie, 0, len(s.movies))
	for _, m := range s.movies {
		out = append(out, m.Clone())
	}
	return out
}

func (s *store) categoryNames(ids []string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		for _, c := range s.categories {
			if c.ID == id {
				names = append(names, c.Name)
				break
			}
		}
	}
	sort.Strings(names)
	return names
}

func (s *store) putUpload(name string, u upload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploads[name] = u
}

func (s *store) getUpload(name string) (upload, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.uploads[name]
	return u, ok
}

func average(ratings []api.Rating) float64 {
	if len(ratings) == 0 {
		return 0
	}
	sum := 0
	for _, r := range ratings {
		sum += r.Rating
	}
	return math.Round(float64(sum)/float64(len(ratings))*10) / 10
}
