// Package extract turns a tab's HTML into the plain text the pipeline reads.
package extract

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"

	"github.com/wgomg/tably/internal/utils"
)

// MaxTextChars matches the cap the browser extension puts on page text.
const MaxTextChars = 4000

// Text returns the readable text of rawHTML, capped at MaxTextChars. It
// prefers the main article as found by readability and falls back to the
// whole body when no article is detected.
func Text(rawURL, rawHTML string) (string, error) {
	if strings.TrimSpace(rawHTML) == "" {
		return "", nil
	}

	text, articleErr := articleText(rawURL, rawHTML)
	if text == "" {
		var err error
		text, err = bodyText(rawHTML)
		if err != nil {
			if articleErr != nil {
				return "", fmt.Errorf("%w; fallback: %v", articleErr, err)
			}
			return "", err
		}
	}

	return utils.TruncateChars(text, MaxTextChars), nil
}

func articleText(rawURL, rawHTML string) (string, error) {
	pageURL, err := url.Parse(rawURL)
	if err != nil {
		pageURL = &url.URL{}
	}

	article, err := readability.NewParser().Parse(strings.NewReader(rawHTML), pageURL)
	if err != nil {
		return "", fmt.Errorf("readability: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(article.Content))
	if err != nil {
		return "", fmt.Errorf("parse article: %w", err)
	}
	return collapseSpace(doc.Text()), nil
}

func bodyText(rawHTML string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	doc.Find("script, style, noscript, template, svg").Remove()

	body := doc.Find("body")
	if body.Length() == 0 {
		return collapseSpace(doc.Text()), nil
	}
	return collapseSpace(body.Text()), nil
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
