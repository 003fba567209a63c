package account

import (
	"context"
	"errors"
	"testing"

	"github.com/five82/marquee/internal/api"
	"github.com/five82/marquee/internal/query"
	"github.com/five82/marquee/internal/session"
)

type fakeBackend struct {
	loginErr    error
	signupCalls int
	lastSignup  api.SignupRequest
}

func (f *fakeBackend) Login(_ context.Context, creds api.Credentials) (api.LoginResponse, error) {
	if f.loginErr != nil {
		return api.LoginResponse{}, f.loginErr
	}
	return api.LoginResponse{Token: "tok-" + creds.Email, User: api.UserProfile{ID: "u1", Email: creds.Email}}, nil
}

func (f *fakeBackend) Signup(_ context.Context, req api.SignupRequest) (api.MessageResponse, error) {
	f.signupCalls++
	f.lastSignup = req
	return api.MessageResponse{}, nil
}

func validForm() Form {
	return Form{
		Name:       " Ada ",
		Email:      "ada@example.com",
		Password:   "secret1",
		Address:    "1 Loop",
		DOB:        "1990-04-02",
		Categories: []string{"c1"},
	}
}

func TestValidate_Messages(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(*Form)
		field string
		want  string
	}{
		{"name blank", func(f *Form) { f.Name = "   " }, FieldName, "Name is required"},
		{"email missing", func(f *Form) { f.Email = "" }, FieldEmail, "Email is required"},
		{"email shape", func(f *Form) { f.Email = "ada@example" }, FieldEmail, "Email is invalid"},
		{"password missing", func(f *Form) { f.Password = "" }, FieldPassword, "Password is required"},
		{"password short", func(f *Form) { f.Password = "12345" }, FieldPassword, "Password must be at least 6 characters"},
		{"address missing", func(f *Form) { f.Address = "" }, FieldAddress, "Address is required"},
		{"dob missing", func(f *Form) { f.DOB = "" }, FieldDOB, "Date of birth is required"},
		{"dob malformed", func(f *Form) { f.DOB = "04/02/1990" }, FieldDOB, "Date of birth must be YYYY-MM-DD"},
		{"no categories", func(f *Form) { f.Categories = nil }, FieldCategories, "Please select at least one category"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			form := validForm()
			tt.edit(&form)
			errs := Validate(form)
			if len(errs) != 1 {
				t.Fatalf("errors = %v, want exactly one", errs)
			}
			if got := errs[tt.field]; got != tt.want {
				t.Fatalf("errs[%s] = %q, want %q", tt.field, got, tt.want)
			}
		})
	}

	if errs := Validate(validForm()); errs != nil {
		t.Fatalf("valid form errors = %v", errs)
	}
}

func TestFieldErrors_Clear(t *testing.T) {
	errs := Validate(Form{})
	if len(errs) != 6 {
		t.Fatalf("empty form errors = %v, want 6 fields", errs)
	}
	errs.Clear(FieldName)
	if _, ok := errs[FieldName]; ok {
		t.Fatal("Clear did not remove the field error")
	}
}

func TestSignup_ValidationBlocksRequest(t *testing.T) {
	backend := &fakeBackend{}
	svc := NewService(backend, session.NewHolder(nil), query.NewCache())

	form := validForm()
	form.Password = "123"
	_, err := svc.Signup(context.Background(), form)
	var fe FieldErrors
	if !errors.As(err, &fe) || fe[FieldPassword] == "" {
		t.Fatalf("err = %v, want password field error", err)
	}
	if backend.signupCalls != 0 {
		t.Fatalf("signup calls = %d, want 0", backend.signupCalls)
	}

	msg, err := svc.Signup(context.Background(), validForm())
	if err != nil {
		t.Fatalf("Signup returned error: %v", err)
	}
	if msg != "Sign up successful! Please log in." {
		t.Fatalf("message = %q", msg)
	}
	if backend.lastSignup.Name != "Ada" || backend.lastSignup.DOB != "1990-04-02" {
		t.Fatalf("sent = %+v", backend.lastSignup)
	}
}

func TestLoginAndLogout(t *testing.T) {
	backend := &fakeBackend{}
	holder := session.NewHolder(nil)
	cache := query.NewCache()
	svc := NewService(backend, holder, cache)

	user, err := svc.Login(context.Background(), " ada@example.com ", "pw")
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if user.ID != "u1" || holder.Token() != "tok-ada@example.com" || holder.UserID() != "u1" {
		t.Fatalf("session = %+v user = %+v", holder.Current(), user)
	}

	cache.SetData(query.Key{"movies", ""}, 1)
	if err := svc.Logout(); err != nil {
		t.Fatalf("Logout returned error: %v", err)
	}
	if holder.Authenticated() {
		t.Fatal("still authenticated after logout")
	}
	if _, ok := cache.Entry(query.Key{"movies", ""}); ok {
		t.Fatal("cache not cleared on logout")
	}
}

func TestLogin_ErrorsAndMessages(t *testing.T) {
	svc := NewService(&fakeBackend{}, session.NewHolder(nil), query.NewCache())
	if _, err := svc.Login(context.Background(), "", ""); err == nil {
		t.Fatal("expected field errors for empty credentials")
	}

	backend := &fakeBackend{loginErr: &api.HTTPError{Status: 400, Message: "Invalid credentials"}}
	svc = NewService(backend, session.NewHolder(nil), query.NewCache())
	_, err := svc.Login(context.Background(), "a@b.c", "pw")
	if got := ErrorMessage(err, "Login failed"); got != "Invalid credentials" {
		t.Fatalf("ErrorMessage = %q", got)
	}
	if got := ErrorMessage(&api.HTTPError{Status: 500}, "Login failed"); got != "Login failed" {
		t.Fatalf("ErrorMessage fallback = %q", got)
	}
	if got := ErrorMessage(nil, "x"); got != "" {
		t.Fatalf("ErrorMessage(nil) = %q", got)
	}
}
