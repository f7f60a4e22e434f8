package policy

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	emailPattern  = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern  = regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`)
	cardPattern   = regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`)
	apiKeyPattern = regexp.MustCompile(`\b(?:sk|ak)-[A-Za-z0-9_\-]{16,}\b`)
)

// RedactPII masks common high-risk PII patterns and provider API keys.
func RedactPII(input string) (redacted string, changed bool) {
	out := input

	next := apiKeyPattern.ReplaceAllString(out, "[REDACTED_KEY]")
	changed = changed || next != out
	out = next

	next = emailPattern.ReplaceAllString(out, "[REDACTED_EMAIL]")
	changed = changed || next != out
	out = next

	// Run card redaction before phone to avoid card numbers being classified as phone.
	next = cardPattern.ReplaceAllString(out, "[REDACTED_CARD]")
	changed = changed || next != out
	out = next

	next = phonePattern.ReplaceAllString(out, "[REDACTED_PHONE]")
	changed = changed || next != out
	out = next

	return out, changed
}

// Preview returns a redacted, single-line prefix of text of at most maxRunes
// runes, for log lines.
func Preview(text string, maxRunes int) string {
	out, _ := RedactPII(text)
	out = strings.Join(strings.Fields(out), " ")
	if maxRunes <= 0 || utf8.RuneCountInString(out) <= maxRunes {
		return out
	}
	runes := []rune(out)
	return string(runes[:maxRunes]) + "…"
}
