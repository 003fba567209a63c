package api

import (
	"bytes"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

const dateLayout = "2006-01-02"

// Rating is one user's star rating for a movie.
type Rating struct {
	UserID string `json:"userId"`
	Rating int    `json:"rating"`
}

// Movie mirrors the catalog entries returned by /movies.
type Movie struct {
	ID            string   `json:"_id"`
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	ReleaseYear   int      `json:"releaseYear"`
	Categories    []string `json:"categories"`
	AverageRating float64  `json:"averageRating"`
	Ratings       []Rating `json:"ratings"`
	Poster        string   `json:"poster,omitempty"`
	UserRating    int      `json:"userRating,omitempty"`
}

// RatingBy returns userID's rating for the movie, or 0.
func (m Movie) RatingBy(userID string) int {
	if userID == "" {
		return 0
	}
	for _, r := range m.Ratings {
		if r.UserID == userID {
			return r.Rating
		}
	}
	return 0
}

// HasCategory reports whether the movie is tagged with categoryID.
func (m Movie) HasCategory(categoryID string) bool {
	for _, c := range m.Categories {
		if c == categoryID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the movie.
func (m Movie) Clone() Movie {
	m.Categories = append([]string(nil), m.Categories...)
	m.Ratings = append([]Rating(nil), m.Ratings...)
	return m
}

// MoviePage is one page of the /movies listing.
type MoviePage struct {
	Movies      []Movie `json:"movies"`
	CurrentPage int     `json:"currentPage"`
	TotalPages  int     `json:"totalPages"`
	TotalMovies int     `json:"totalMovies"`
}

// HasMore reports whether pages remain after this one.
func (p MoviePage) HasMore() bool {
	return p.CurrentPage < p.TotalPages
}

// UnmarshalJSON accepts both {currentPage,totalPages,totalMovies} and the
// older {page,limit,total} shape, normalizing to the former.
func (p *MoviePage) UnmarshalJSON(data []byte) error {
	var raw struct {
		Movies      []Movie `json:"movies"`
		CurrentPage *int    `json:"currentPage"`
		TotalPages  *int    `json:"totalPages"`
		TotalMovies *int    `json:"totalMovies"`
		Page        *int    `json:"page"`
		Limit       *int    `json:"limit"`
		Total       *int    `json:"total"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*p = MoviePage{Movies: raw.Movies}
	switch {
	case raw.CurrentPage != nil:
		p.CurrentPage = *raw.CurrentPage
	case raw.Page != nil:
		p.CurrentPage = *raw.Page
	}
	switch {
	case raw.TotalMovies != nil:
		p.TotalMovies = *raw.TotalMovies
	case raw.Total != nil:
		p.TotalMovies = *raw.Total
	}
	switch {
	case raw.TotalPages != nil:
		p.TotalPages = *raw.TotalPages
	case raw.Limit != nil && *raw.Limit > 0:
		p.TotalPages = (p.TotalMovies + *raw.Limit - 1) / *raw.Limit
	}
	return nil
}

// Category is reference data used for tabs and profile interests.
type Category struct {
	ID   string `json:"_id"`
	Name string `json:"name"`
}

// CategoryRef is a category as embedded in a profile. Name is empty when the
// backend sent a bare id.
type CategoryRef struct {
	ID   string `json:"_id"`
	Name string `json:"name,omitempty"`
}

// CategoryRefs decodes from either ["id", ...] or [{"_id":..,"name":..}, ...].
type CategoryRefs []CategoryRef

// UnmarshalJSON normalizes both category shapes into CategoryRefs.
func (c *CategoryRefs) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*c = nil
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	out := make(CategoryRefs, 0, len(items))
	for _, item := range items {
		trimmed := bytes.TrimSpace(item)
		if len(trimmed) > 0 && trimmed[0] == '"' {
			var id string
			if err := json.Unmarshal(trimmed, &id); err != nil {
				return err
			}
			out = append(out, CategoryRef{ID: id})
			continue
		}
		var obj struct {
			UnderscoreID string `json:"_id"`
			ID           string `json:"id"`
			Name         string `json:"name"`
		}
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return err
		}
		id := obj.UnderscoreID
		if id == "" {
			id = obj.ID
		}
		out = append(out, CategoryRef{ID: id, Name: obj.Name})
	}
	*c = out
	return nil
}

// IDs returns the category ids in order.
func (c CategoryRefs) IDs() []string {
	ids := make([]string, 0, len(c))
	for _, ref := range c {
		ids = append(ids, ref.ID)
	}
	return ids
}

// RefsFromIDs builds refs from bare ids.
func RefsFromIDs(ids []string) CategoryRefs {
	out := make(CategoryRefs, 0, len(ids))
	for _, id := range ids {
		out = append(out, CategoryRef{ID: id})
	}
	return out
}

// UserProfile mirrors the user object returned by /user/whoami and /user/login.
type UserProfile struct {
	ID         string       `json:"_id"`
	Name       string       `json:"name"`
	Email      string       `json:"email"`
	Address    string       `json:"address"`
	Image      string       `json:"image"`
	DOB        string       `json:"dob"`
	Categories CategoryRefs `json:"categories"`
}

// DateOfBirth parses DOB, returning the zero time when absent or malformed.
func (u UserProfile) DateOfBirth() time.Time {
	return parseTime(u.DOB)
}

// Clone returns a deep copy of the profile.
func (u UserProfile) Clone() UserProfile {
	u.Categories = append(CategoryRefs(nil), u.Categories...)
	return u
}

// WhoAmIResponse mirrors /user/whoami.
type WhoAmIResponse struct {
	User UserProfile `json:"user"`
}

// Credentials is the /user/login request body.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse mirrors /user/login.
type LoginResponse struct {
	Token string      `json:"token"`
	User  UserProfile `json:"user"`
}

// SignupRequest is the /user/signup request body.
type SignupRequest struct {
	Name       string   `json:"name"`
	Email      string   `json:"email"`
	Password   string   `json:"password"`
	Address    string   `json:"address"`
	DOB        string   `json:"dob"`
	Categories []string `json:"categories"`
}

// MessageResponse is the generic {message} acknowledgement.
type MessageResponse struct {
	Message string `json:"message"`
}

// RateRequest is the /movies/:id/rate request body.
type RateRequest struct {
	UserID string `json:"userId"`
	Rating int    `json:"rating"`
}

// Label decodes from a string or an array of strings (joined with ", ").
type Label string

// UnmarshalJSON accepts "Drama" and ["Drama","Crime"].
func (l *Label) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var parts []string
		if err := json.Unmarshal(trimmed, &parts); err != nil {
			return err
		}
		*l = Label(strings.Join(parts, ", "))
		return nil
	}
	if bytes.Equal(trimmed, []byte("null")) {
		*l = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err != nil {
		return err
	}
	*l = Label(s)
	return nil
}

// RecommendedMovie is the read-only projection returned by /recommendation.
type RecommendedMovie struct {
	Title         string  `json:"title"`
	Description   string  `json:"description"`
	ReleaseYear   int     `json:"releaseYear"`
	Categories    Label   `json:"categories"`
	AverageRating float64 `json:"averageRating"`
}

// MovieQuery configures /movies requests.
type MovieQuery struct {
	Page   int
	Limit  int
	Search string
}

// Upload is a file attached to a multipart request.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ProfileUpdate is the multipart body of PUT /user/profile/:id.
type ProfileUpdate struct {
	Name       string
	Email      string
	Address    string
	DOB        time.Time
	Categories []string
	Image      *Upload
}

func parseTime(value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, dateLayout} {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	return time.Time{}
}
