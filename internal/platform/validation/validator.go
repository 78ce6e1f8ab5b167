// Package validation adapts go-playground/validator to echo and renders
// failures as human-readable messages keyed by JSON field path.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"
)

// phonePattern allows an optional leading "+" followed by 8 to 20 digits,
// spaces, hyphens or parentheses.
var phonePattern = regexp.MustCompile(`^\+?[0-9\s()-]{8,20}$`)

var timeType = reflect.TypeOf(time.Time{})

// Errors maps a JSON field path such as "contactInfo.email" to a message.
type Errors map[string]string

func (e Errors) Error() string {
	parts := make([]string, 0, len(e))
	for f, m := range e {
		parts = append(parts, f+": "+m)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Validator implements echo.Validator.
type Validator struct {
	v   *validator.Validate
	now func() time.Time
}

// Option configures a Validator.
type Option func(*Validator)

// WithClock overrides the time source used by the past and future rules.
func WithClock(now func() time.Time) Option {
	return func(cv *Validator) { cv.now = now }
}

// New registers the custom rules used by request DTOs:
//
//	phone        phone number pattern
//	notblank     non-empty after trimming whitespace
//	past         a date strictly before today
//	future       a date strictly after today
//	recordnumber 5 to 50 characters
func New(opts ...Option) *Validator {
	cv := &Validator{v: validator.New(), now: time.Now}
	for _, o := range opts {
		o(cv)
	}

	cv.v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})

	mustRegister(cv.v, "phone", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	})
	mustRegister(cv.v, "notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	mustRegister(cv.v, "past", func(fl validator.FieldLevel) bool {
		t, ok := asTime(fl.Field())
		return ok && dayOf(t).Before(dayOf(cv.now()))
	})
	mustRegister(cv.v, "future", func(fl validator.FieldLevel) bool {
		t, ok := asTime(fl.Field())
		return ok && dayOf(t).After(dayOf(cv.now()))
	})
	cv.v.RegisterAlias("recordnumber", "min=5,max=50")

	return cv
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register %s validator: %v", tag, err))
	}
}

// asTime accepts time.Time and any type convertible to it.
func asTime(v reflect.Value) (time.Time, bool) {
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return time.Time{}, false
		}
		v = v.Elem()
	}
	if !v.Type().ConvertibleTo(timeType) {
		return time.Time{}, false
	}
	return v.Convert(timeType).Interface().(time.Time), true
}

func dayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Validate returns nil or an Errors value.
func (cv *Validator) Validate(i interface{}) error {
	err := cv.v.Struct(i)
	if err == nil {
		return nil
	}
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return err
	}

	out := make(Errors, len(ves))
	for _, fe := range ves {
		path := fieldPath(fe.Namespace())
		if _, seen := out[path]; seen {
			continue
		}
		out[path] = message(fe)
	}
	return out
}

// fieldPath drops the root struct name from a namespace like
// "CreatePatientRequest.contactInfo.email".
func fieldPath(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func message(fe validator.FieldError) string {
	label := humanize(fe.Field())
	switch fe.Tag() {
	case "required", "notblank":
		return label + " is required"
	case "max":
		return fmt.Sprintf("%s must be less than %s characters", label, fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", label, fe.Param())
	case "recordnumber":
		return label + " must be between 5 and 50 characters"
	case "email", "phone":
		return "Invalid " + strings.ToLower(label) + " format"
	case "past":
		return label + " must be in the past"
	case "future":
		return label + " must be in the future"
	default:
		return fmt.Sprintf("%s is invalid (%s)", label, fe.Tag())
	}
}

// humanize turns "dateOfBirth" into "Date of birth".
func humanize(field string) string {
	if i := strings.IndexByte(field, '['); i >= 0 {
		field = field[:i]
	}
	var b strings.Builder
	for i, r := range field {
		switch {
		case i == 0:
			b.WriteRune(unicode.ToUpper(r))
		case unicode.IsUpper(r):
			b.WriteByte(' ')
			b.WriteRune(unicode.ToLower(r))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
