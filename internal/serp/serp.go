// Package serp discovers candidate pages for a query from a search engine.
package serp

import (
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/purell"
)

// Result is one organic search hit.
type Result struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

// Provider abstracts a search engine that returns ranked results for a
// query. The limit parameter caps the number of results returned.
type Provider interface {
	Search(ctx context.Context, query string, limit int) ([]Result, error)
}

// ExcludedHosts are host fragments whose pages are never useful sources.
var ExcludedHosts = []string{"google.", "youtube.", "facebook.", "linkedin.", "twitter."}

const normalizeFlags = purell.FlagsSafe | purell.FlagRemoveFragment

// Filter drops non-http(s) links and excluded hosts, normalizes the
// remaining URLs and removes duplicates, keeping rank order. A limit <= 0
// keeps everything.
func Filter(results []Result, limit int) []Result {
	seen := make(map[string]struct{}, len(results))
	out := make([]Result, 0, len(results))
	for _, r := range results {
		if limit > 0 && len(out) >= limit {
			break
		}
		normalized, ok := normalize(r.URL)
		if !ok {
			continue
		}
		if _, dup := seen[normalized]; dup {
			continue
		}
		seen[normalized] = struct{}{}
		r.URL = normalized
		out = append(out, r)
	}
	return out
}

func normalize(raw string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", false
	}
	host := strings.ToLower(u.Hostname())
	for _, frag := range ExcludedHosts {
		if strings.Contains(host, frag) {
			return "", false
		}
	}
	normalized, err := purell.NormalizeURLString(u.String(), normalizeFlags)
	if err != nil {
		return "", false
	}
	return normalized, true
}
