package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	if err := v.RegisterValidation("pagealigned", pageAligned); err != nil {
		panic(err)
	}
	return v
}

// pageAligned reports whether a ByteSize field is a whole multiple of the
// system page size.
func pageAligned(fl validator.FieldLevel) bool {
	return fl.Field().Uint()%uint64(os.Getpagesize()) == 0
}

// Validate checks cfg against the `validate` struct tags on Config.
// LogLevel is normalized to uppercase first so a lowercase flag or
// environment value still passes the oneof check.
func Validate(cfg *Config) error {
	cfg.LogLevel = upper(cfg.LogLevel)

	if err := validate.Struct(cfg); err != nil {
		return fieldError(err)
	}
	return nil
}

// fieldError turns validator's ValidationErrors into one message per
// failed field, naming the field and the constraint it failed.
func fieldError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "pagealigned":
			msgs = append(msgs, fmt.Sprintf("%s (%v) must be a whole multiple of the system page size (%d)", fe.Field(), fe.Value(), os.Getpagesize()))
		case "gt":
			msgs = append(msgs, fmt.Sprintf("%s must be > %s, got %v", fe.Field(), fe.Param(), fe.Value()))
		case "gte":
			msgs = append(msgs, fmt.Sprintf("%s must be >= %s, got %v", fe.Field(), fe.Param(), fe.Value()))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of %s, got %q", fe.Field(), fe.Param(), fe.Value()))
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", fe.Field()))
		default:
			msgs = append(msgs, fe.Error())
		}
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}

func upper(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - ('a' - 'A')
		}
	}
	return string(b)
}
