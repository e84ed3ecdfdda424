package subtitle

import (
	"regexp"
	"strings"
)

var (
	ssaOverrideRe = regexp.MustCompile(`\{\\[^}]*\}`)
	htmlTagRe     = regexp.MustCompile(`</?(?i:b|i|u|s|font|ruby|rt|c|v|lang)(?:[ .][^>]*)?>`)
	whitespaceRe  = regexp.MustCompile(`[ \t]+`)
)

// StripMarkup removes inline styling from cue text: SSA/ASS override
// blocks like {\an8\i1} and HTML-style tags like <i> or <font color=...>.
// Plain text in braces or angle brackets is preserved.
func StripMarkup(text string) string {
	text = ssaOverrideRe.ReplaceAllString(text, "")
	text = htmlTagRe.ReplaceAllString(text, "")

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(whitespaceRe.ReplaceAllString(line, " "))
		if line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}
