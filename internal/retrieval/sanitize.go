package retrieval

import (
	"regexp"
	"strings"
	"unicode"
)

// MaxPassageChars is the per-passage cap applied after sanitization.
const MaxPassageChars = 1200

var (
	blankRuns  = regexp.MustCompile(`\n{3,}`)
	rolePrefix = regexp.MustCompile(`(?im)^\s*(system|assistant|user)\s*:`)
)

// Sanitize prepares stored passage text for prompt inclusion: strips NUL and
// control characters (keeping newline and tab), collapses blank-line runs,
// neutralizes lines that start with a chat role prefix, and truncates to
// MaxPassageChars at a rune boundary. Stored content is not trusted; it may
// contain injection attempts.
func Sanitize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if r == '\n' || r == '\t' {
			b.WriteRune(r)
			continue
		}
		if unicode.IsControl(r) || r == '\u200b' || r == '\u200c' || r == '\u200d' || r == '\ufeff' {
			continue
		}
		b.WriteRune(r)
	}

	out := blankRuns.ReplaceAllString(b.String(), "\n\n")
	out = rolePrefix.ReplaceAllString(out, "$1 -")
	out = strings.TrimSpace(out)

	return truncateRunes(out, MaxPassageChars)
}

// truncateRunes cuts s to at most n runes, never splitting a rune.
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
