package serp

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/mng48301/searchai/internal/scraper"
)

// DefaultDuckDuckGoEndpoint is the JavaScript-free DuckDuckGo results page.
const DefaultDuckDuckGoEndpoint = "https://html.duckduckgo.com/html/"

// DuckDuckGo scrapes the DuckDuckGo HTML results page.
type DuckDuckGo struct {
	endpoint string
	fetcher  *scraper.Fetcher
	logger   *slog.Logger
}

// NewDuckDuckGo returns a provider querying endpoint through fetcher. An
// empty endpoint uses DefaultDuckDuckGoEndpoint.
func NewDuckDuckGo(endpoint string, fetcher *scraper.Fetcher, logger *slog.Logger) *DuckDuckGo {
	if endpoint == "" {
		endpoint = DefaultDuckDuckGoEndpoint
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DuckDuckGo{endpoint: endpoint, fetcher: fetcher, logger: logger}
}

// Search returns up to limit filtered organic results. Ads are skipped.
func (d *DuckDuckGo) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if limit < 0 {
		return nil, fmt.Errorf("limit cannot be negative: %d", limit)
	}

	base, err := url.Parse(d.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid search endpoint: %w", err)
	}
	q := base.Query()
	q.Set("q", query)
	base.RawQuery = q.Encode()

	page, err := d.fetcher.Fetch(ctx, base.String())
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, fmt.Errorf("parse results: %w", err)
	}

	var raw []Result
	doc.Find("a.result__a").Each(func(_ int, s *goquery.Selection) {
		if s.Closest(".result--ad").Length() > 0 {
			return
		}
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		target := resolveRedirect(base, href)
		if target == "" {
			return
		}
		raw = append(raw, Result{URL: target, Title: strings.TrimSpace(s.Text())})
	})

	results := Filter(raw, limit)
	d.logger.Debug("search results", "query", query, "raw", len(raw), "kept", len(results))
	return results, nil
}

// resolveRedirect unwraps DuckDuckGo's /l/?uddg= redirect links.
func resolveRedirect(base *url.URL, href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	u := base.ResolveReference(ref)
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	if u.Host == base.Host {
		return ""
	}
	return u.String()
}
