package email

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// stripTags removes every element and attribute, keeping text content.
// bluemonday policies are safe for concurrent use.
var stripTags = bluemonday.StrictPolicy()

var (
	breakRe      = regexp.MustCompile(`(?i)<br\s*/?>`)
	blockCloseRe = regexp.MustCompile(`(?i)</(p|div|li|tr|h[1-6])>`)
	spaceRunRe   = regexp.MustCompile(`[ \t]{2,}`)
	blankRunRe   = regexp.MustCompile(`\n{3,}`)
)

// HTMLToText derives a readable plain-text body from an HTML one. Block-end
// tags become newlines before everything is stripped, entities are decoded
// afterwards (the sanitizer re-escapes text content), and whitespace runs
// are squeezed.
func HTMLToText(s string) string {
	s = breakRe.ReplaceAllString(s, "\n")
	s = blockCloseRe.ReplaceAllString(s, "\n")
	s = stripTags.Sanitize(s)
	s = html.UnescapeString(s)

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(spaceRunRe.ReplaceAllString(line, " "))
	}
	s = strings.Join(lines, "\n")
	s = blankRunRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
