package summarizer

import (
	"fmt"
	"strings"

	"github.com/mng48301/searchai/internal/storage"
)

// SummaryPrompt builds the overview prompt. Each source is cut to maxChars.
func SummaryPrompt(query string, results []storage.SiteResult, maxChars int) string {
	var sources strings.Builder
	for i, r := range results {
		fmt.Fprintf(&sources, "\nSource %d (%s):\n%s\n", i+1, r.URL, truncate(r.Content, maxChars))
	}

	return fmt.Sprintf(`Based on the search query: %q

Analyze the following content from %d different sources and provide:
1. A comprehensive summary (3-4 sentences)
2. Key points or findings
3. Any relevant data, prices, or statistics found

Content to analyze:
%s
Format the response clearly with main points and findings.`, query, len(results), sources.String())
}

// CleanSummary strips markdown emphasis and heading markers.
func CleanSummary(text string) string {
	return strings.TrimSpace(strings.NewReplacer("*", "", "#", "").Replace(text))
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
