package authlink

import (
	"errors"
	"strings"
	"unicode/utf8"
)

// ErrInvalidEmail rejects input that does not look like a deliverable address.
var ErrInvalidEmail = errors.New("invalid email address")

// NormalizeEmail canonicalizes and validates a user-supplied email address.
// The check is deliberately shallow; the magic link is the real proof of
// ownership, this only filters obvious garbage before spending a send.
func NormalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" || utf8.RuneCountInString(email) > 320 {
		return "", ErrInvalidEmail
	}

	at := strings.Index(email, "@")
	if at < 0 || at != strings.LastIndex(email, "@") {
		return "", ErrInvalidEmail
	}
	local, domain := email[:at], email[at+1:]
	if local == "" || domain == "" {
		return "", ErrInvalidEmail
	}
	for _, part := range []string{local, domain} {
		if strings.Contains(part, "..") ||
			strings.HasPrefix(part, ".") || strings.HasSuffix(part, ".") {
			return "", ErrInvalidEmail
		}
	}
	// Bare hostnames like "localhost" cannot receive external mail.
	if !strings.Contains(domain, ".") {
		return "", ErrInvalidEmail
	}
	return email, nil
}
