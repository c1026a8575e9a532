// Package sanitize turns model output into plain text suitable for a
// Telegram message sent without a parse mode.
package sanitize

import (
	"bytes"
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
)

var (
	blockTags  = regexp.MustCompile(`<br\s*/?>|</?p>|</?div>|</?pre>|</?h[1-6]>|</?li>`)
	blankLines = regexp.MustCompile(`\n\s*\n+`)
)

// Policy represents a sanitization policy for text content
type Policy struct {
	policy   *bluemonday.Policy
	markdown goldmark.Markdown
}

// NewTelegramPolicy creates a new Policy for stripping HTML and markdown
func NewTelegramPolicy() *Policy {
	return &Policy{
		policy:   bluemonday.StrictPolicy(),
		markdown: goldmark.New(),
	}
}

// SanitizeText strips HTML and markdown from the input text
func (p *Policy) SanitizeText(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}

	var buf bytes.Buffer
	if err := p.markdown.Convert([]byte(text), &buf); err != nil {
		return strings.TrimSpace(text)
	}

	htmlText := blockTags.ReplaceAllString(buf.String(), "\n")
	sanitized := p.policy.Sanitize(htmlText)
	sanitized = blankLines.ReplaceAllString(sanitized, "\n\n")
	sanitized = html.UnescapeString(sanitized)

	return strings.TrimSpace(sanitized)
}
