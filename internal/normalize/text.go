package normalize

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/nhle/contextcatcher/internal/model"
)

var (
	stripPolicy = bluemonday.StrictPolicy()

	blockBreak = regexp.MustCompile(`(?i)<br\s*/?>|</(p|div|li|tr|h[1-6])>`)
	blankRuns  = regexp.MustCompile(`\n\s*\n+`)
)

// PlainText returns the message's text body, or a tag-free rendering of
// the HTML body when the message has no text part.
func PlainText(m model.NormalizedMessage) string {
	if strings.TrimSpace(m.BodyText) != "" || m.BodyHTML == "" {
		return m.BodyText
	}
	return HTMLToText(m.BodyHTML)
}

// HTMLToText strips all markup, keeping block boundaries as line breaks.
func HTMLToText(s string) string {
	s = blockBreak.ReplaceAllString(s, "$0\n")
	s = html.UnescapeString(stripPolicy.Sanitize(s))
	s = blankRuns.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
