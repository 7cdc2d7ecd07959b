package processor

import "strings"

const (
	DefaultSummaryWords = 40
	summaryEllipsis     = " ..."
)

// Summarize returns the first maxWords words of text joined by single spaces,
// with " ..." appended when words were dropped.
func Summarize(text string, maxWords int) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return ""
	}
	if maxWords <= 0 {
		maxWords = DefaultSummaryWords
	}
	if len(words) <= maxWords {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:maxWords], " ") + summaryEllipsis
}
