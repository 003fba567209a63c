package account

import (
	"errors"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once

	emailShape = regexp.MustCompile(`\S+@\S+\.\S+`)
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		_ = v.RegisterValidation("emailshape", func(fl validator.FieldLevel) bool {
			return emailShape.MatchString(fl.Field().String())
		})
		validate = v
	})
	return validate
}

// Form is the signup form.
type Form struct {
	Name       string   `validate:"required"`
	Email      string   `validate:"required,emailshape"`
	Password   string   `validate:"required,min=6"`
	Address    string   `validate:"required"`
	DOB        string   `validate:"required,datetime=2006-01-02"`
	Categories []string `validate:"min=1"`
}

// Form field keys used in FieldErrors.
const (
	FieldName       = "name"
	FieldEmail      = "email"
	FieldPassword   = "password"
	FieldAddress    = "address"
	FieldDOB        = "dob"
	FieldCategories = "categories"
)

var fieldKeys = map[string]string{
	"Name":       FieldName,
	"Email":      FieldEmail,
	"Password":   FieldPassword,
	"Address":    FieldAddress,
	"DOB":        FieldDOB,
	"Categories": FieldCategories,
}

var messages = map[string]string{
	FieldName + ".required":       "Name is required",
	FieldEmail + ".required":      "Email is required",
	FieldEmail + ".emailshape":    "Email is invalid",
	FieldPassword + ".required":   "Password is required",
	FieldPassword + ".min":        "Password must be at least 6 characters",
	FieldAddress + ".required":    "Address is required",
	FieldDOB + ".required":        "Date of birth is required",
	FieldDOB + ".datetime":        "Date of birth must be YYYY-MM-DD",
	FieldCategories + ".min":      "Please select at least one category",
	FieldCategories + ".required": "Please select at least one category",
}

// FieldErrors maps form field keys to messages.
type FieldErrors map[string]string

func (f FieldErrors) Error() string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, f[k])
	}
	return strings.Join(parts, "; ")
}

// Clear removes the error for field, as done when the user edits it.
func (f FieldErrors) Clear(field string) {
	delete(f, field)
}

// normalized trims the fields whose surrounding whitespace is not
// significant. Passwords are left as typed.
func (f Form) normalized() Form {
	f.Name = strings.TrimSpace(f.Name)
	f.Email = strings.TrimSpace(f.Email)
	f.Address = strings.TrimSpace(f.Address)
	f.DOB = strings.TrimSpace(f.DOB)
	return f
}

// Validate checks the form and returns per-field messages, or nil when the
// form is valid.
func Validate(form Form) FieldErrors {
	err := getValidator().Struct(form.normalized())
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return FieldErrors{"form": err.Error()}
	}
	out := make(FieldErrors, len(verrs))
	for _, fe := range verrs {
		key, ok := fieldKeys[fe.StructField()]
		if !ok {
			key = strings.ToLower(fe.StructField())
		}
		if _, seen := out[key]; seen {
			continue
		}
		msg, ok := messages[key+"."+fe.Tag()]
		if !ok {
			msg = fe.Error()
		}
		out[key] = msg
	}
	return out
}
