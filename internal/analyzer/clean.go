package analyzer

import (
	"regexp"
	"strings"
)

var (
	bulletRe     = regexp.MustCompile(`(?m)^[ \t]*(?:[-*•+]|\d+[.)])[ \t]+`)
	headingRe    = regexp.MustCompile(`(?m)^[ \t]*#{1,6}[ \t]*`)
	underscoreRe = regexp.MustCompile(`(^|[^\w])_{1,2}([^_\n]+?)_{1,2}([^\w]|$)`)
	blankRunRe   = regexp.MustCompile(`\n{3,}`)
	emphasis     = strings.NewReplacer("**", "", "*", "", "`", "")
)

// CleanText strips markdown bullets, headings and emphasis markers.
func CleanText(text string) string {
	text = bulletRe.ReplaceAllString(text, "")
	text = headingRe.ReplaceAllString(text, "")
	text = emphasis.Replace(text)
	text = underscoreRe.ReplaceAllString(text, "$1$2$3")
	text = blankRunRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
