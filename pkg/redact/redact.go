// Package redact scrubs contact details from student speech before it
// reaches logs or turn artifacts.
package redact

import (
	"regexp"
	"strings"
	"sync/atomic"
)

var enabled atomic.Bool

type rule struct {
	re    *regexp.Regexp
	token string
}

var rules = []rule{
	{regexp.MustCompile(`(?i)[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}`), "[REDACTED_EMAIL]"},
	{regexp.MustCompile(`\b\+?\d[\d\s\-]{7,}\d\b`), "[REDACTED_PHONE]"},
}

// SetEnabled toggles redaction process wide. The engine sets it once
// from the privacy config before any turn runs.
func SetEnabled(v bool) { enabled.Store(v) }

// Enabled reports whether redaction is active.
func Enabled() bool { return enabled.Load() }

// Text replaces emails and phone numbers with placeholder tokens. With
// redaction disabled the input passes through untouched.
func Text(in string) string {
	if !enabled.Load() || strings.TrimSpace(in) == "" {
		return in
	}
	out := in
	for _, r := range rules {
		out = r.re.ReplaceAllString(out, r.token)
	}
	return out
}
