package logging

import (
	"regexp"
	"strings"
)

var (
	emailRe = regexp.MustCompile(`(?i)[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}`)
	phoneRe = regexp.MustCompile(`\b\+?\d[\d\s\-]{7,}\d\b`)
)

// Redactor masks emails and phone numbers in free text before it is logged.
type Redactor struct {
	Enabled bool
}

// Text returns in with PII masked when the redactor is enabled.
func (r Redactor) Text(in string) string {
	if !r.Enabled || strings.TrimSpace(in) == "" {
		return in
	}
	out := emailRe.ReplaceAllString(in, "[REDACTED_EMAIL]")
	return phoneRe.ReplaceAllString(out, "[REDACTED_PHONE]")
}
