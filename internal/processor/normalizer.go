package processor

import (
	"strings"

	"github.com/wgomg/tably/internal/utils"
)

const (
	maxNormalizedTextChars = 500
	emptyPlaceholder       = "(empty)"
)

// Normalize builds the text a tab is embedded from: the title and the first
// 500 characters of its body.
func Normalize(tab TabRecord) string {
	text := strings.TrimSpace(tab.Title + " " + utils.TruncateChars(tab.Text, maxNormalizedTextChars))
	if text == "" {
		return emptyPlaceholder
	}
	return text
}
