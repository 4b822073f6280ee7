package harvest

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ──────────────────────────────────────────────────────────────────────────
// Text sanitization
// ──────────────────────────────────────────────────────────────────────────

var (
	reMarkdownImage = regexp.MustCompile(`!\[([^\]]*)\]\([^)]*\)`)
	reMarkdownLink  = regexp.MustCompile(`\[([^\]]+)\]\([^)]*\)`)
	reHeadingMarks  = regexp.MustCompile(`(?m)^\s{0,3}#{1,6}\s+`)
	reQuoteMarks    = regexp.MustCompile(`(?m)^\s{0,3}>\s?`)
	reEmphasisMarks = regexp.MustCompile("(\\*{1,3}|~~|`{1,3})")
)

// StripHTML returns the text content of s with markup removed and entities
// decoded. Plain text passes through untouched.
func StripHTML(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}
	doc.Find("script, style, noscript").Remove()
	return doc.Text()
}

// StripMarkdown removes the markdown constructs that survive as noise in
// plain text: images become their alt text, links keep only the label, and
// emphasis, heading, and blockquote markers are dropped. Underscores stay
// because handles and identifiers use them.
func StripMarkdown(s string) string {
	s = reMarkdownImage.ReplaceAllString(s, "$1")
	s = reMarkdownLink.ReplaceAllString(s, "$1")
	s = reHeadingMarks.ReplaceAllString(s, "")
	s = reQuoteMarks.ReplaceAllString(s, "")
	s = reEmphasisMarks.ReplaceAllString(s, "")
	return s
}

// CollapseWhitespace folds every whitespace run, newlines included, into a
// single space and trims the ends.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Sanitize is the harvester's body cleanup: HTML out, whitespace collapsed.
func Sanitize(s string) string {
	return CollapseWhitespace(StripHTML(s))
}
