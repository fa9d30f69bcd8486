package scraper

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	// DefaultPriceSelectors pick out price-like fragments, which are listed
	// ahead of the page body.
	DefaultPriceSelectors = []string{
		".price", "#price", `[class*="price"]`,
		`[class*="amount"]`, `[class*="cost"]`,
		".offer", ".sale-price",
	}

	// DefaultTextSelector covers the elements whose text forms the body.
	DefaultTextSelector = "p, h1, h2, h3, li, td"

	stripSelector = "script, style, nav, footer, noscript"
)

// Extractor turns an HTML document into plain text.
type Extractor struct {
	PriceSelectors []string
	TextSelector   string
}

// NewExtractor returns an extractor using the default selectors.
func NewExtractor() *Extractor {
	return &Extractor{
		PriceSelectors: DefaultPriceSelectors,
		TextSelector:   DefaultTextSelector,
	}
}

// Extract returns price snippets followed by the body text, one line per
// matched element.
func (e *Extractor) Extract(body []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	doc.Find(stripSelector).Remove()

	seen := make(map[string]struct{})
	var lines []string
	for _, sel := range e.PriceSelectors {
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			if text := collapse(s.Text()); text != "" {
				if _, dup := seen[text]; !dup {
					seen[text] = struct{}{}
					lines = append(lines, text)
				}
			}
		})
	}

	textSel := e.TextSelector
	if textSel == "" {
		textSel = DefaultTextSelector
	}
	var parts []string
	doc.Find(textSel).Each(func(_ int, s *goquery.Selection) {
		// Skip containers whose text is already covered by a nested match.
		if s.Find(textSel).Length() > 0 {
			return
		}
		if text := collapse(s.Text()); text != "" {
			parts = append(parts, text)
		}
	})
	lines = append(lines, parts...)

	return strings.Join(lines, "\n"), nil
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
