package validator

import (
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	phoneRegex     = regexp.MustCompile(`^\+?[0-9][0-9\s-]{6,18}$`)
	studentIDRegex = regexp.MustCompile(`^[0-9]{4}-[0-9]{3,6}$`)
)

// New returns a validator with the clinic's custom rules registered. It is
// meant to be installed as gin's binding engine and reused directly by
// services.
func New() (*validator.Validate, error) {
	v := validator.New()

	if err := v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return phoneRegex.MatchString(fl.Field().String())
	}); err != nil {
		return nil, err
	}

	if err := v.RegisterValidation("student_id", func(fl validator.FieldLevel) bool {
		return studentIDRegex.MatchString(fl.Field().String())
	}); err != nil {
		return nil, err
	}

	return v, nil
}

// IsPhone validates a contact number outside of struct binding.
func IsPhone(s string) bool {
	return phoneRegex.MatchString(s)
}

// HasEmailDomain checks that an address belongs to the given domain,
// case-insensitively.
func HasEmailDomain(email, domain string) bool {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return false
	}
	return strings.EqualFold(email[at+1:], domain)
}
