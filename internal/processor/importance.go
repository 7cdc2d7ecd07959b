package processor

import "github.com/wgomg/tably/internal/utils"

// ScoreImportance ranks a tab from its category and title length in
// characters. url is accepted for future rules and currently unused.
func ScoreImportance(title, url string, category Category) Importance {
	n := utils.CharCount(title)

	switch category {
	case CategoryDev, CategoryDocs, CategoryEmail:
		if n > 20 {
			return ImportanceReadNow
		}
		return ImportanceSaveForLater
	case CategorySocial, CategoryVideo:
		if n < 15 {
			return ImportanceCloseCandidate
		}
		return ImportanceSaveForLater
	default:
		if n > 30 {
			return ImportanceSaveForLater
		}
		return ImportanceCloseCandidate
	}
}
