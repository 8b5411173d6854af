package extraction

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	htmlPolicy = bluemonday.StrictPolicy()

	// Structural tags become newlines before stripping so words from
	// adjacent blocks do not run together.
	lineBreakTags = regexp.MustCompile(`(?i)<br\s*/?>|</p>|</div>|</li>|</tr>|</h[1-6]>`)
	styleBlocks   = regexp.MustCompile(`(?is)<(style|script|head)[^>]*>.*?</(style|script|head)>`)
	spaceRuns     = regexp.MustCompile(`[ \t\x{00a0}]+`)
	blankRuns     = regexp.MustCompile(`\n{3,}`)
)

// EmailBodyText reduces an HTML (or plain) email body to the text the
// extractor should see: tags stripped, entities decoded, whitespace
// normalized.
func EmailBodyText(body string) string {
	if strings.TrimSpace(body) == "" {
		return ""
	}

	cleaned := styleBlocks.ReplaceAllString(body, "\n")
	cleaned = lineBreakTags.ReplaceAllString(cleaned, "\n")
	cleaned = htmlPolicy.Sanitize(cleaned)
	cleaned = html.UnescapeString(cleaned)
	cleaned = strings.ReplaceAll(cleaned, "\r\n", "\n")
	cleaned = spaceRuns.ReplaceAllString(cleaned, " ")

	lines := strings.Split(cleaned, "\n")
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}
	cleaned = strings.Join(lines, "\n")
	cleaned = blankRuns.ReplaceAllString(cleaned, "\n\n")
	return strings.TrimSpace(cleaned)
}
