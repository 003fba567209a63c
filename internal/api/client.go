package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"github.com/five82/marquee/internal/logging"
)

// TokenSource supplies the bearer token and is told to forget it on 401.
// *session.Holder satisfies it.
type TokenSource interface {
	Token() string
	ClearToken() error
}

// Backend is the set of REST calls the controllers depend on. It is
// implemented by *Client and can be faked in tests.
type Backend interface {
	Login(ctx context.Context, creds Credentials) (LoginResponse, error)
	Signup(ctx context.Context, req SignupRequest) (MessageResponse, error)
	WhoAmI(ctx context.Context) (UserProfile, error)
	UpdateProfile(ctx context.Context, userID string, update ProfileUpdate) (MessageResponse, error)
	Movies(ctx context.Context, query MovieQuery) (MoviePage, error)
	RateMovie(ctx context.Context, movieID string, req RateRequest) (MessageResponse, error)
	Recommendations(ctx context.Context, userID string) ([]RecommendedMovie, error)
	Categories(ctx context.Context) ([]Category, error)
}

// Ensure Client implements Backend at compile time.
var _ Backend = (*Client)(nil)

const (
	// DefaultTimeout bounds every request when Options.Timeout is zero.
	DefaultTimeout = 10 * time.Second
	// DefaultPageLimit is the /movies page size when none is given.
	DefaultPageLimit = 12
)

const (
	defaultBaseURL   = "http://localhost:3000"
	defaultUserAgent = "marquee/0.1"
	breakerTrips     = 5
	breakerTimeout   = 15 * time.Second
)

// Options configures a Client.
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	Tokens     TokenSource
	HTTPClient *http.Client
}

// Client talks to the movie backend's REST API.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	userAgent string
	tokens    TokenSource
	breaker   *gobreaker.CircuitBreaker[*http.Response]
	log       zerolog.Logger
}

// NewClient builds a Client for opts.BaseURL.
func NewClient(opts Options) (*Client, error) {
	base, err := parseBaseURL(opts.BaseURL)
	if err != nil {
		return nil, err
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	log := logging.Component("api")
	breaker := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:    "api",
		Timeout: breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerTrips
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	})

	return &Client{
		baseURL:   base,
		http:      httpClient,
		userAgent: defaultUserAgent,
		tokens:    opts.Tokens,
		breaker:   breaker,
		log:       log,
	}, nil
}

// BaseURL returns the resolved API root.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Login exchanges credentials for a token and the user's profile.
func (c *Client) Login(ctx context.Context, creds Credentials) (LoginResponse, error) {
	var payload LoginResponse
	if err := c.doJSON(ctx, http.MethodPost, &url.URL{Path: "/user/login"}, creds, &payload); err != nil {
		return LoginResponse{}, err
	}
	return payload, nil
}

// Signup registers a new account.
func (c *Client) Signup(ctx context.Context, req SignupRequest) (MessageResponse, error) {
	var payload MessageResponse
	if err := c.doJSON(ctx, http.MethodPost, &url.URL{Path: "/user/signup"}, req, &payload); err != nil {
		return MessageResponse{}, err
	}
	return payload, nil
}

// WhoAmI fetches the authenticated user's profile. A timestamp parameter
// defeats intermediary caches.
func (c *Client) WhoAmI(ctx context.Context) (UserProfile, error) {
	values := url.Values{}
	values.Set("t", strconv.FormatInt(time.Now().UnixMilli(), 10))
	rel := &url.URL{Path: "/user/whoami", RawQuery: values.Encode()}
	var payload WhoAmIResponse
	if err := c.doJSON(ctx, http.MethodGet, rel, nil, &payload); err != nil {
		return UserProfile{}, err
	}
	return payload.User, nil
}

// UpdateProfile sends the profile form as multipart/form-data.
func (c *Client) UpdateProfile(ctx context.Context, userID string, update ProfileUpdate) (MessageResponse, error) {
	if strings.TrimSpace(userID) == "" {
		return MessageResponse{}, fmt.Errorf("user id required")
	}
	body, contentType, err := encodeProfile(update)
	if err != nil {
		return MessageResponse{}, err
	}
	rel := &url.URL{Path: "/user/profile/" + userID}
	var payload MessageResponse
	if err := c.doURL(ctx, http.MethodPut, rel, body, contentType, &payload); err != nil {
		return MessageResponse{}, err
	}
	return payload, nil
}

// Movies fetches one page of the catalog.
func (c *Client) Movies(ctx context.Context, query MovieQuery) (MoviePage, error) {
	page := query.Page
	if page < 1 {
		page = 1
	}
	limit := query.Limit
	if limit < 1 {
		limit = DefaultPageLimit
	}
	values := url.Values{}
	values.Set("page", strconv.Itoa(page))
	values.Set("limit", strconv.Itoa(limit))
	if q := strings.TrimSpace(query.Search); q != "" {
		values.Set("q", q)
	}
	rel := &url.URL{Path: "/movies", RawQuery: values.Encode()}
	var payload MoviePage
	if err := c.doJSON(ctx, http.MethodGet, rel, nil, &payload); err != nil {
		return MoviePage{}, err
	}
	return payload, nil
}

// RateMovie records the user's rating for movieID.
func (c *Client) RateMovie(ctx context.Context, movieID string, req RateRequest) (MessageResponse, error) {
	rel := &url.URL{Path: "/movies/" + movieID + "/rate"}
	var payload MessageResponse
	if err := c.doJSON(ctx, http.MethodPost, rel, req, &payload); err != nil {
		return MessageResponse{}, err
	}
	return payload, nil
}

// Recommendations fetches the server-computed recommendations for userID.
func (c *Client) Recommendations(ctx context.Context, userID string) ([]RecommendedMovie, error) {
	rel := &url.URL{Path: "/recommendation/" + userID}
	var payload []RecommendedMovie
	if err := c.doJSON(ctx, http.MethodGet, rel, nil, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// Categories fetches the category reference list.
func (c *Client) Categories(ctx context.Context) ([]Category, error) {
	var payload []Category
	if err := c.doJSON(ctx, http.MethodGet, &url.URL{Path: "/categories"}, nil, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// ResolveImageURL turns a server-relative image path into an absolute URL.
// Absolute URLs and data URLs pass through unchanged.
func (c *Client) ResolveImageURL(path string) string {
	path = strings.TrimSpace(path)
	if path == "" || strings.HasPrefix(path, "data:") {
		return path
	}
	ref, err := url.Parse(path)
	if err != nil {
		return path
	}
	if ref.IsAbs() {
		return path
	}
	return c.endpoint(ref).String()
}

// endpoint joins rel onto the base URL, keeping any base path prefix.
func (c *Client) endpoint(rel *url.URL) *url.URL {
	u := *c.baseURL
	path := rel.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u.Path = c.baseURL.Path + path
	u.RawQuery = rel.RawQuery
	return &u
}

func (c *Client) doJSON(ctx context.Context, method string, rel *url.URL, body any, dest any) error {
	var reader io.Reader
	contentType := ""
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
		contentType = "application/json"
	}
	return c.doURL(ctx, method, rel, reader, contentType, dest)
}

func (c *Client) doURL(ctx context.Context, method string, rel *url.URL, body io.Reader, contentType string, dest any) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	reqURL := c.endpoint(rel)
	req, err := http.NewRequestWithContext(ctx, method, reqURL.String(), body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-ID", requestID)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.tokens != nil {
		if token := c.tokens.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	started := time.Now()
	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		return c.http.Do(req)
	})
	if err != nil {
		c.log.Debug().Err(err).Str("method", method).Str("path", rel.Path).Str("request_id", requestID).Msg("request failed")
		return &NetworkError{Op: method + " " + rel.Path, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	c.log.Debug().
		Str("method", method).
		Str("path", rel.Path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(started)).
		Str("request_id", requestID).
		Msg("request completed")

	if resp.StatusCode >= 400 {
		apiErr := &HTTPError{
			Status:  resp.StatusCode,
			Message: readErrorMessage(resp.Body),
			Method:  method,
			Path:    rel.Path,
		}
		if resp.StatusCode == http.StatusUnauthorized && c.tokens != nil {
			if clearErr := c.tokens.ClearToken(); clearErr != nil {
				c.log.Warn().Err(clearErr).Msg("clear session after 401")
			}
		}
		return apiErr
	}
	if dest == nil {
		return nil
	}
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(dest); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// readErrorMessage extracts {message} or {error} from an error body.
func readErrorMessage(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 64<<10))
	if err != nil || len(data) == 0 {
		return ""
	}
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return ""
	}
	if msg := strings.TrimSpace(payload.Message); msg != "" {
		return msg
	}
	return strings.TrimSpace(payload.Error)
}

func encodeProfile(update ProfileUpdate) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fields := []struct{ name, value string }{
		{"name", update.Name},
		{"email", update.Email},
		{"address", update.Address},
	}
	if !update.DOB.IsZero() {
		fields = append(fields, struct{ name, value string }{"dob", update.DOB.UTC().Format(time.RFC3339)})
	}
	for _, f := range fields {
		if err := w.WriteField(f.name, f.value); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", f.name, err)
		}
	}
	for _, id := range update.Categories {
		if err := w.WriteField("categories", id); err != nil {
			return nil, "", fmt.Errorf("write field categories: %w", err)
		}
	}
	if update.Image != nil && len(update.Image.Data) > 0 {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, update.Image.Filename))
		ct := update.Image.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		header.Set("Content-Type", ct)
		part, err := w.CreatePart(header)
		if err != nil {
			return nil, "", fmt.Errorf("create image part: %w", err)
		}
		if _, err := part.Write(update.Image.Data); err != nil {
			return nil, "", fmt.Errorf("write image part: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

func parseBaseURL(raw string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		trimmed = defaultBaseURL
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse api base url %q: %w", raw, err)
	}
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}
