// Package redact masks personal data and credentials in text that ends up in
// logs: transcripts, assistant replies and upstream error bodies.
package redact

import (
	"regexp"
	"unicode/utf8"
)

var (
	emailPattern  = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	cardPattern   = regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`)
	phonePattern  = regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`)
	bearerPattern = regexp.MustCompile(`(?i)\bbearer\s+[a-z0-9._\-~+/]+=*`)
	keyPattern    = regexp.MustCompile(`\b(?:sk|xi|sk_live|sk_test)[-_][A-Za-z0-9]{16,}\b`)
)

type rule struct {
	pattern *regexp.Regexp
	marker  string
}

// Cards run before phones so long digit runs are not classified as phones.
var rules = []rule{
	{bearerPattern, "Bearer [REDACTED]"},
	{keyPattern, "[REDACTED_KEY]"},
	{emailPattern, "[REDACTED_EMAIL]"},
	{cardPattern, "[REDACTED_CARD]"},
	{phonePattern, "[REDACTED_PHONE]"},
}

// Text masks emails, card numbers, phone numbers, bearer tokens and API keys.
func Text(input string) (redacted string, changed bool) {
	out := input
	for _, r := range rules {
		next := r.pattern.ReplaceAllString(out, r.marker)
		changed = changed || next != out
		out = next
	}
	return out, changed
}

// ForLog redacts input and truncates it to at most max runes.
func ForLog(input string, max int) string {
	out, _ := Text(input)
	if max <= 0 || utf8.RuneCountInString(out) <= max {
		return out
	}
	runes := []rune(out)
	return string(runes[:max]) + "…"
}
