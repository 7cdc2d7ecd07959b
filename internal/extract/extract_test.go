package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const articlePage = `<!DOCTYPE html>
<html><head><title>Pipelines</title><script>var tracking = "ignored";</script></head>
<body>
<nav><a href="/">Home</a> <a href="/blog">Blog</a></nav>
<article>
<h1>Go Concurrency Patterns: Pipelines</h1>
<p>Go's concurrency primitives make it easy to construct streaming data pipelines
that make efficient use of I/O and multiple CPUs. This article presents examples of
such pipelines, highlights subtleties that arise when operations fail, and introduces
techniques for dealing with failures cleanly.</p>
<p>There's no formal definition of a pipeline in Go; it's just one of many kinds of
concurrent programs. Informally, a pipeline is a series of stages connected by channels,
where each stage is a group of goroutines running the same function.</p>
</article>
<footer>Copyright</footer>
</body></html>`

func TestTextExtractsArticle(t *testing.T) {
	text, err := Text("https://go.dev/blog/pipelines", articlePage)
	require.NoError(t, err)

	assert.Contains(t, text, "streaming data pipelines")
	assert.NotContains(t, text, "tracking")
	assert.NotContains(t, text, "\n")
}

func TestTextFallsBackToBody(t *testing.T) {
	text, err := Text("not a url", `<html><body><div>Inbox <b>(3)</b></div><script>x()</script></body></html>`)
	require.NoError(t, err)
	assert.Equal(t, "Inbox (3)", text)
}

func TestTextCapsLength(t *testing.T) {
	page := "<html><body><p>" + strings.Repeat("word ", 2000) + "</p></body></html>"

	text, err := Text("https://example.com", page)
	require.NoError(t, err)
	assert.Equal(t, MaxTextChars, len([]rune(text)))
}

func TestTextEmptyInput(t *testing.T) {
	text, err := Text("https://example.com", "   ")
	require.NoError(t, err)
	assert.Equal(t, "", text)
}
