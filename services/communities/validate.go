package communities

import (
	"html"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

const (
	slugMinLen = 3
	slugMaxLen = 50
	nameMinLen = 3
	nameMaxLen = 100
	descMaxLen = 500
)

var (
	slugPattern = regexp.MustCompile(`^[a-z0-9_-]+$`)

	// stripPolicy removes every HTML element; descriptions are stored as plain text.
	stripPolicy = bluemonday.StrictPolicy()
)

// ValidateSlug checks slug format and length. The input is lowercased and
// trimmed before checking so user input like " My-Slug " normalizes cleanly.
func ValidateSlug(raw string) (string, error) {
	slug := strings.ToLower(strings.TrimSpace(raw))
	if n := utf8.RuneCountInString(slug); n < slugMinLen || n > slugMaxLen {
		return "", &ValidationError{Field: "slug", Reason: "must be 3-50 characters"}
	}
	if !slugPattern.MatchString(slug) {
		return "", &ValidationError{Field: "slug", Reason: "only lowercase letters, digits, '-' and '_' are allowed"}
	}
	return slug, nil
}

// ValidateName checks the display name length.
func ValidateName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if n := utf8.RuneCountInString(name); n < nameMinLen || n > nameMaxLen {
		return "", &ValidationError{Field: "name", Reason: "must be 3-100 characters"}
	}
	return name, nil
}

// ValidateDescription strips HTML and checks the length. An empty result is
// valid and means "no description".
func ValidateDescription(raw string) (string, error) {
	desc := StripHTML(raw)
	if utf8.RuneCountInString(desc) > descMaxLen {
		return "", &ValidationError{Field: "description", Reason: "must be at most 500 characters"}
	}
	return desc, nil
}

// StripHTML reduces markup to plain text.
func StripHTML(raw string) string {
	sanitized := stripPolicy.Sanitize(raw)
	return strings.TrimSpace(html.UnescapeString(sanitized))
}

// ValidateDraft applies all field validations. This is the authoritative
// check: the wizard runs the same validators per step as a UX optimization,
// but Create never trusts its caller.
func ValidateDraft(d Draft) (Draft, error) {
	slug, err := ValidateSlug(d.Slug)
	if err != nil {
		return Draft{}, err
	}
	name, err := ValidateName(d.Name)
	if err != nil {
		return Draft{}, err
	}
	desc, err := ValidateDescription(d.Description)
	if err != nil {
		return Draft{}, err
	}
	return Draft{Slug: slug, Name: name, Description: desc, Private: d.Private}, nil
}
