// Package devserver is an in-memory implementation of the movie backend's
// REST contract, for local development and end-to-end tests of the client.
package devserver

import (
	"errors"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/five82/marquee/internal/api"
	"github.com/five82/marquee/internal/logging"
)

const (
	maxUploadBytes     = 6 << 20
	maxPageLimit       = 100
	maxRecommendations = 10
	dateLayout         = "2006-01-02"
)

var errNotImage = errors.New("upload is not an image")

// Options configure a Server.
type Options struct {
	// Secret signs issued tokens. Empty generates a random secret.
	Secret []byte
	// TokenTTL defaults to 24h.
	TokenTTL time.Duration
	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
	// Seed loads the demo catalog and the demo account.
	Seed bool
	Now  func() time.Time
}

// Server serves the REST endpoints from memory.
type Server struct {
	store      *store
	secret     []byte
	tokenTTL   time.Duration
	bcryptCost int
	now        func() time.Time
	log        zerolog.Logger
}

// New builds a Server.
func New(opts Options) (*Server, error) {
	s := &Server{
		store:      newStore(),
		secret:     opts.Secret,
		tokenTTL:   opts.TokenTTL,
		bcryptCost: opts.BcryptCost,
		now:        opts.Now,
		log:        logging.Component("devserver"),
	}
	if len(s.secret) == 0 {
		s.secret = []byte(uuid.NewString())
	}
	if s.tokenTTL <= 0 {
		s.tokenTTL = tokenLifetime
	}
	if s.bcryptCost == 0 {
		s.bcryptCost = bcrypt.DefaultCost
	}
	if s.now == nil {
		s.now = time.Now
	}
	if opts.Seed {
		if err := s.seed(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(s.requestLog)

	r.Get("/categories", s.handleCategories)
	r.Get("/movies", s.handleMovies)
	r.Get("/uploads/{name}", s.handleUpload)

	r.Route("/user", func(r chi.Router) {
		r.Post("/login", s.handleLogin)
		r.Post("/signup", s.handleSignup)
		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)
			r.Get("/whoami", s.handleWhoAmI)
			r.Put("/profile/{userID}", s.handleUpdateProfile)
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Post("/movies/{movieID}/rate", s.handleRate)
		r.Get("/recommendation/{userID}", s.handleRecommendations)
	})
	return r
}

func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Str("request_id", r.Header.Get("X-Request-ID")).
			Msg("request")
	})
}

func (s *Server) handleCategories(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.store.listCategories())
}

func (s *Server) handleMovies(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := positiveParam(q.Get("page"), 1)
	if err != nil {
		writeError(w, http.StatusBadRequest, "page must be a positive integer")
		return
	}
	limit, err := positiveParam(q.Get("limit"), api.DefaultPageLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}
	limit = min(limit, maxPageLimit)
	writeJSON(w, http.StatusOK, s.store.moviePage(q.Get("q"), page, limit))
}

func positiveParam(raw string, fallback int) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, errors.New("invalid")
	}
	return n, nil
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds api.Credentials
	if err := decodeJSON(r, &creds); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	u, ok := s.store.userByEmail(creds.Email)
	if !ok || !checkPassword(u.PasswordHash, creds.Password) {
		writeError(w, http.StatusBadRequest, "Invalid email or password")
		return
	}
	token, err := s.issueToken(u)
	if err != nil {
		s.log.Error().Err(err).Msg("issue token")
		writeError(w, http.StatusInternalServerError, "Could not sign in")
		return
	}
	writeJSON(w, http.StatusOK, api.LoginResponse{Token: token, User: s.store.profile(u)})
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req api.SignupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Email) == "" ||
		len(req.Password) < 6 || strings.TrimSpace(req.Address) == "" {
		writeError(w, http.StatusBadRequest, "Name, email, address and a password of at least 6 characters are required")
		return
	}
	dob, err := parseDate(req.DOB)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date of birth")
		return
	}
	cats, ok := s.knownCategories(req.Categories)
	if !ok || len(cats) == 0 {
		writeError(w, http.StatusBadRequest, "Please select at least one valid category")
		return
	}
	hash, err := s.hashPassword(req.Password)
	if err != nil {
		s.log.Error().Err(err).Msg("hash password")
		writeError(w, http.StatusInternalServerError, "Could not create account")
		return
	}
	u, err := s.store.addUser(user{
		Name:         strings.TrimSpace(req.Name),
		Email:        req.Email,
		PasswordHash: hash,
		Address:      strings.TrimSpace(req.Address),
		DOB:          dob,
		Categories:   cats,
	})
	if errors.Is(err, errDuplicate) {
		writeError(w, http.StatusBadRequest, "User already exists")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Could not create account")
		return
	}
	s.log.Info().Str("user", u.ID).Msg("account created")
	writeJSON(w, http.StatusCreated, api.MessageResponse{Message: "User created successfully"})
}

func (s *Server) knownCategories(ids []string) ([]string, bool) {
	out := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		if !s.store.hasCategory(id) {
			return nil, false
		}
		seen[id] = true
		out = append(out, id)
	}
	return out, true
}

func (s *Server) handleWhoAmI(w http.ResponseWriter, r *http.Request) {
	u, ok := s.store.userByID(callerID(r.Context()))
	if !ok {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	writeJSON(w, http.StatusOK, api.WhoAmIResponse{User: s.store.profile(u)})
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID != callerID(r.Context()) {
		writeError(w, http.StatusForbidden, "You can only update your own profile")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Upload is too large")
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}
	form := r.MultipartForm

	var dob time.Time
	if raw := strings.TrimSpace(r.FormValue("dob")); raw != "" {
		parsed, err := parseDate(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date of birth")
			return
		}
		dob = parsed
	}
	cats, ok := s.knownCategories(form.Value["categories"])
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown category")
		return
	}

	image, err := s.saveImage(r)
	switch {
	case errors.Is(err, errNotImage):
		writeError(w, http.StatusBadRequest, "Only image uploads are allowed")
		return
	case err != nil:
		writeError(w, http.StatusBadRequest, "Invalid image upload")
		return
	}

	_, err = s.store.updateUser(userID, func(u *user) {
		if v := strings.TrimSpace(r.FormValue("name")); v != "" {
			u.Name = v
		}
		if v := strings.TrimSpace(r.FormValue("email")); v != "" {
			u.Email = v
		}
		if _, present := form.Value["address"]; present {
			u.Address = strings.TrimSpace(r.FormValue("address"))
		}
		if !dob.IsZero() {
			u.DOB = dob
		}
		if _, present := form.Value["categories"]; present {
			u.Categories = cats
		}
		if image != "" {
			u.Image = image
		}
	})
	switch {
	case errors.Is(err, errDuplicate):
		writeError(w, http.StatusBadRequest, "Email is already in use")
		return
	case err != nil:
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	writeJSON(w, http.StatusOK, api.MessageResponse{Message: "Profile updated successfully"})
}

// saveImage stores the optional "image" part and returns its public path.
func (s *Server) saveImage(r *http.Request) (string, error) {
	file, header, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		return "", err
	}
	contentType := http.DetectContentType(data)
	if !strings.HasPrefix(contentType, "image/") {
		return "", errNotImage
	}
	name := uuid.NewString() + strings.ToLower(path.Ext(header.Filename))
	s.store.putUpload(name, upload{ContentType: contentType, Data: data})
	return "/uploads/" + name, nil
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	u, ok := s.store.getUpload(chi.URLParam(r, "name"))
	if !ok {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}
	w.Header().Set("Content-Type", u.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(u.Data)))
	_, _ = w.Write(u.Data)
}

func (s *Server) handleRate(w http.ResponseWriter, r *http.Request) {
	var req api.RateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	caller := callerID(r.Context())
	if req.UserID != "" && req.UserID != caller {
		writeError(w, http.StatusForbidden, "You can only rate as yourself")
		return
	}
	if req.Rating < 1 || req.Rating > 5 {
		writeError(w, http.StatusBadRequest, "Rating must be between 1 and 5")
		return
	}
	if err := s.store.rate(chi.URLParam(r, "movieID"), caller, req.Rating); err != nil {
		writeError(w, http.StatusNotFound, "Movie not found")
		return
	}
	writeJSON(w, http.StatusOK, api.MessageResponse{Message: "Rating submitted successfully"})
}

func (s *Server) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID != callerID(r.Context()) {
		writeError(w, http.StatusForbidden, "You can only view your own recommendations")
		return
	}
	u, ok := s.store.userByID(userID)
	if !ok {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	writeJSON(w, http.StatusOK, s.recommend(u, maxRecommendations))
}

func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	return time.Parse(dateLayout, raw)
}

func decodeJSON(r *http.Request, dest any) error {
	defer func() { _ = r.Body.Close() }()
	return json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(dest)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, api.MessageResponse{Message: message})
}
