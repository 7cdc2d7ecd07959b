package utils

import (
	"strings"
	"unicode/utf8"
)

func CountWords(text string) int {
	words := strings.Fields(text)
	wordCount := len(words)

	return wordCount
}

// CharCount counts characters, not bytes.
func CharCount(s string) int {
	return utf8.RuneCountInString(s)
}

// TruncateChars returns the first maxChars characters of s. It never splits a
// multi-byte character.
func TruncateChars(s string, maxChars int) string {
	if maxChars <= 0 {
		return ""
	}
	if len(s) <= maxChars {
		return s
	}

	count := 0
	for i := range s {
		if count == maxChars {
			return s[:i]
		}
		count++
	}
	return s
}

func Truncate(s string, maxLength int) string {
	defaultString := "Unknown"

	if strings.TrimSpace(s) == "" {
		return defaultString
	}

	return TruncateChars(s, maxLength)
}
