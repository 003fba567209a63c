package devserver

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/five82/marquee/internal/api"
	"github.com/five82/marquee/internal/session"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

func newTestBackend(t *testing.T) (*api.Client, *session.Holder) {
	t.Helper()
	srv, err := New(Options{Seed: true, BcryptCost: bcrypt.MinCost, Secret: []byte("test-secret")})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	holder := session.NewHolder(nil)
	client, err := api.NewClient(api.Options{BaseURL: ts.URL, Tokens: holder, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	return client, holder
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func signIn(t *testing.T, client *api.Client, holder *session.Holder) api.UserProfile {
	t.Helper()
	resp, err := client.Login(testContext(t), api.Credentials{Email: DemoEmail, Password: DemoPassword})
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if err := holder.SetToken(resp.Token); err != nil {
		t.Fatalf("SetToken returned error: %v", err)
	}
	return resp.User
}

func TestLogin(t *testing.T) {
	client, holder := newTestBackend(t)

	_, err := client.Login(testContext(t), api.Credentials{Email: DemoEmail, Password: "wrong"})
	var httpErr *api.HTTPError
	if !errors.As(err, &httpErr) || httpErr.Status != http.StatusBadRequest || httpErr.Message != "Invalid email or password" {
		t.Fatalf("err = %v, want 400 invalid credentials", err)
	}

	user := signIn(t, client, holder)
	if holder.UserID() != user.ID {
		t.Fatalf("token subject = %q, want %q", holder.UserID(), user.ID)
	}
	if holder.Current().ExpiresAt.IsZero() {
		t.Fatal("token expiry not read from claims")
	}

	me, err := client.WhoAmI(testContext(t))
	if err != nil {
		t.Fatalf("WhoAmI returned error: %v", err)
	}
	if me.Email != DemoEmail || len(me.Categories) != 2 || me.Categories[0].Name != "Drama" {
		t.Fatalf("whoami = %+v", me)
	}
	if got := me.DateOfBirth(); got.Year() != 1990 || got.Month() != time.April {
		t.Fatalf("dob = %v", got)
	}
}

func TestMoviesPagination(t *testing.T) {
	client, _ := newTestBackend(t)
	ctx := testContext(t)

	first, err := client.Movies(ctx, api.MovieQuery{Page: 1, Limit: 12})
	if err != nil {
		t.Fatalf("Movies returned error: %v", err)
	}
	if len(first.Movies) != 12 || first.TotalPages != 3 || first.TotalMovies != len(seedMovies) || !first.HasMore() {
		t.Fatalf("page 1 = %d movies, %d pages, %d total", len(first.Movies), first.TotalPages, first.TotalMovies)
	}
	last, err := client.Movies(ctx, api.MovieQuery{Page: 3, Limit: 12})
	if err != nil {
		t.Fatalf("Movies returned error: %v", err)
	}
	if len(last.Movies) != len(seedMovies)-24 || last.HasMore() {
		t.Fatalf("page 3 = %d movies, more=%v", len(last.Movies), last.HasMore())
	}

	found, err := client.Movies(ctx, api.MovieQuery{Search: "matrix"})
	if err != nil {
		t.Fatalf("Movies returned error: %v", err)
	}
	if found.TotalMovies != 1 || found.Movies[0].Title != "The Matrix" {
		t.Fatalf("search = %+v", found)
	}
	if found.Movies[0].AverageRating == 0 || len(found.Movies[0].Ratings) == 0 {
		t.Fatalf("seeded ratings missing: %+v", found.Movies[0])
	}
}

func TestRate(t *testing.T) {
	client, holder := newTestBackend(t)
	ctx := testContext(t)

	page, err := client.Movies(ctx, api.MovieQuery{Search: "arrival"})
	if err != nil || len(page.Movies) != 1 {
		t.Fatalf("Movies = %+v, %v", page, err)
	}
	movie := page.Movies[0]

	_, err = client.RateMovie(ctx, movie.ID, api.RateRequest{Rating: 4})
	if !api.IsUnauthorized(err) {
		t.Fatalf("anonymous rate err = %v, want 401", err)
	}

	user := signIn(t, client, holder)
	if _, err := client.RateMovie(ctx, movie.ID, api.RateRequest{UserID: user.ID, Rating: 7}); api.StatusCode(err) != http.StatusBadRequest {
		t.Fatalf("out of range err = %v, want 400", err)
	}
	if _, err := client.RateMovie(ctx, movie.ID, api.RateRequest{UserID: "someone-else", Rating: 3}); api.StatusCode(err) != http.StatusForbidden {
		t.Fatalf("foreign user err = %v, want 403", err)
	}
	if _, err := client.RateMovie(ctx, movie.ID, api.RateRequest{UserID: user.ID, Rating: 2}); err != nil {
		t.Fatalf("RateMovie returned error: %v", err)
	}
	if _, err := client.RateMovie(ctx, movie.ID, api.RateRequest{UserID: user.ID, Rating: 3}); err != nil {
		t.Fatalf("RateMovie returned error: %v", err)
	}

	page, err = client.Movies(ctx, api.MovieQuery{Search: "arrival"})
	if err != nil {
		t.Fatalf("Movies returned error: %v", err)
	}
	got := page.Movies[0]
	if got.RatingBy(user.ID) != 3 || len(got.Ratings) != len(movie.Ratings)+1 {
		t.Fatalf("ratings = %+v", got.Ratings)
	}
	// Seeded 5 and 4, plus 3.
	if got.AverageRating != 4 {
		t.Fatalf("average = %v, want 4", got.AverageRating)
	}
}

func TestRecommendations(t *testing.T) {
	client, holder := newTestBackend(t)
	ctx := testContext(t)
	user := signIn(t, client, holder)

	page, err := client.Movies(ctx, api.MovieQuery{Search: "arrival"})
	if err != nil {
		t.Fatalf("Movies returned error: %v", err)
	}
	if _, err := client.RateMovie(ctx, page.Movies[0].ID, api.RateRequest{UserID: user.ID, Rating: 5}); err != nil {
		t.Fatalf("RateMovie returned error: %v", err)
	}

	recs, err := client.Recommendations(ctx, user.ID)
	if err != nil {
		t.Fatalf("Recommendations returned error: %v", err)
	}
	if len(recs) == 0 || len(recs) > maxRecommendations {
		t.Fatalf("got %d recommendations", len(recs))
	}
	for _, r := range recs {
		if r.Title == "Arrival" {
			t.Fatal("rated movie was recommended")
		}
		if r.Categories == "" {
			t.Fatalf("recommendation %q has no categories", r.Title)
		}
	}
	if !strings.Contains(string(recs[0].Categories), "Drama") && !strings.Contains(string(recs[0].Categories), "Sci-Fi") {
		t.Fatalf("top recommendation %q (%s) ignores interests", recs[0].Title, recs[0].Categories)
	}

	if _, err := client.Recommendations(ctx, "someone-else"); api.StatusCode(err) != http.StatusForbidden {
		t.Fatalf("foreign recommendations err = %v, want 403", err)
	}
}

func TestSignup(t *testing.T) {
	client, holder := newTestBackend(t)
	ctx := testContext(t)

	cats, err := client.Categories(ctx)
	if err != nil || len(cats) != len(seedCategories) {
		t.Fatalf("Categories = %v, %v", cats, err)
	}

	req := api.SignupRequest{
		Name:       "Ada",
		Email:      "ada@example.com",
		Password:   "secret1",
		Address:    "1 Loop",
		DOB:        "1985-12-10",
		Categories: []string{cats[0].ID},
	}
	if _, err := client.Signup(ctx, req); err != nil {
		t.Fatalf("Signup returned error: %v", err)
	}
	_, err = client.Signup(ctx, req)
	if got := api.Message(err); got != "User already exists" {
		t.Fatalf("duplicate signup message = %q", got)
	}

	bad := req
	bad.Email = "other@example.com"
	bad.Categories = []string{"nope"}
	if _, err := client.Signup(ctx, bad); api.StatusCode(err) != http.StatusBadRequest {
		t.Fatalf("unknown category err = %v, want 400", err)
	}

	resp, err := client.Login(ctx, api.Credentials{Email: "ADA@example.com", Password: "secret1"})
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if err := holder.SetToken(resp.Token); err != nil {
		t.Fatalf("SetToken: %v", err)
	}
	if resp.User.Name != "Ada" || resp.User.Categories[0].Name != cats[0].Name {
		t.Fatalf("user = %+v", resp.User)
	}
}

func TestUpdateProfile(t *testing.T) {
	client, holder := newTestBackend(t)
	ctx := testContext(t)
	user := signIn(t, client, holder)

	cats, err := client.Categories(ctx)
	if err != nil {
		t.Fatalf("Categories returned error: %v", err)
	}
	update := api.ProfileUpdate{
		Name:       "Renamed",
		Email:      DemoEmail,
		Address:    "2 Reel Road",
		DOB:        time.Date(1991, time.May, 3, 0, 0, 0, 0, time.UTC),
		Categories: []string{cats[0].ID},
		Image:      &api.Upload{Filename: "me.png", ContentType: "image/png", Data: pngHeader},
	}
	if _, err := client.UpdateProfile(ctx, user.ID, update); err != nil {
		t.Fatalf("UpdateProfile returned error: %v", err)
	}

	me, err := client.WhoAmI(ctx)
	if err != nil {
		t.Fatalf("WhoAmI returned error: %v", err)
	}
	if me.Name != "Renamed" || me.Address != "2 Reel Road" || len(me.Categories) != 1 || me.DateOfBirth().Year() != 1991 {
		t.Fatalf("profile = %+v", me)
	}
	if !strings.HasPrefix(me.Image, "/uploads/") || !strings.HasSuffix(me.Image, ".png") {
		t.Fatalf("image = %q", me.Image)
	}

	resp, err := http.Get(client.ResolveImageURL(me.Image))
	if err != nil {
		t.Fatalf("GET image: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "image/png" || len(body) != len(pngHeader) {
		t.Fatalf("image response = %d %q (%d bytes)", resp.StatusCode, resp.Header.Get("Content-Type"), len(body))
	}

	notImage := update
	notImage.Image = &api.Upload{Filename: "me.png", ContentType: "image/png", Data: []byte("plain text")}
	if _, err := client.UpdateProfile(ctx, user.ID, notImage); api.Message(err) != "Only image uploads are allowed" {
		t.Fatalf("non-image upload err = %v", err)
	}
	if _, err := client.UpdateProfile(ctx, "someone-else", update); api.StatusCode(err) != http.StatusForbidden {
		t.Fatalf("foreign profile err = %v, want 403", err)
	}
}

func TestExpiredTokenIsRejected(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	srv, err := New(Options{Seed: true, BcryptCost: bcrypt.MinCost, TokenTTL: time.Hour, Now: func() time.Time { return now }})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	u, _ := srv.store.userByEmail(DemoEmail)
	token, err := srv.issueToken(u)
	if err != nil {
		t.Fatalf("issueToken returned error: %v", err)
	}
	if _, err := srv.verifyToken(token); err != nil {
		t.Fatalf("fresh token rejected: %v", err)
	}
	now = now.Add(2 * time.Hour)
	if _, err := srv.verifyToken(token); err == nil {
		t.Fatal("expired token accepted")
	}
}
