package embedder

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	// \s is ASCII only; \p{Z} adds no-break and other Unicode spaces
	whitespaceRun = regexp.MustCompile(`[\s\p{Z}]+`)
	disallowed    = regexp.MustCompile(`[^\p{L}\p{N}_\s\p{Z}\-.,!?]`)
)

// Clean normalizes text before embedding: trims, collapses whitespace, strips
// characters outside letters, digits, underscore, whitespace and -.,!? and
// truncates to maxLen runes. maxLen <= 0 disables truncation.
func Clean(text string, maxLen int) string {
	text = strings.TrimSpace(text)
	text = whitespaceRun.ReplaceAllString(text, " ")
	text = disallowed.ReplaceAllString(text, "")
	text = whitespaceRun.ReplaceAllString(text, " ")

	if maxLen > 0 && utf8.RuneCountInString(text) > maxLen {
		runes := []rune(text)
		text = string(runes[:maxLen])
	}

	return strings.TrimSpace(text)
}

// Prepare cleans text and reports whether it is long enough to embed
func Prepare(text string, maxLen, minLen int) (string, bool) {
	cleaned := Clean(text, maxLen)
	if cleaned == "" || utf8.RuneCountInString(cleaned) < minLen {
		return cleaned, false
	}
	return cleaned, true
}
