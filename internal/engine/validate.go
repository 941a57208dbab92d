package engine

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	// MaxMessageChars is the maximum accepted message length in runes.
	MaxMessageChars = 10000

	// Repetition filtering only applies beyond this length; short messages
	// like "no!!!" are legitimate.
	repetitionMinChars = 100
	repetitionMaxRatio = 0.8
)

// ValidateMessage checks a user message before any session mutation.
// The returned message is the trimmed form to use for the turn.
func ValidateMessage(text string) (string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", ErrEmptyMessage
	}

	n := utf8.RuneCountInString(trimmed)
	if n > MaxMessageChars {
		return "", fmt.Errorf("%w: %d characters (limit %d)", ErrMessageTooLong, n, MaxMessageChars)
	}

	if n > repetitionMinChars && repeatRatio(trimmed) > repetitionMaxRatio {
		return "", ErrLowSignal
	}

	return trimmed, nil
}

// repeatRatio returns the share of the most frequent rune.
func repeatRatio(s string) float64 {
	counts := make(map[rune]int)
	total := 0
	for _, r := range s {
		counts[r]++
		total++
	}
	maxCount := 0
	for _, c := range counts {
		if c > maxCount {
			maxCount = c
		}
	}
	return float64(maxCount) / float64(total)
}
