package domain

import (
	"errors"
	"regexp"
	"strings"
	"time"
)

// Principal is an authentication identity. The password is write-only: only its hash is ever read back.
type Principal struct {
	ID             string
	Email          string
	PasswordHash   string
	EmailConfirmed bool
	CreatedAt      time.Time
}

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// ErrInvalidEmail is returned by ValidateEmail for an empty or malformed address.
var ErrInvalidEmail = errors.New("invalid email format")

// NormalizeEmail trims and lower-cases an email address. Principals are unique case-insensitively.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail checks that email has a plausible address shape.
func ValidateEmail(email string) error {
	if email == "" || !emailPattern.MatchString(email) {
		return ErrInvalidEmail
	}
	return nil
}
