package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// ErrDisallowed is returned for URLs excluded by robots.txt.
var ErrDisallowed = errors.New("disallowed by robots.txt")

// PageScraper fetches a URL and extracts its readable text.
type PageScraper struct {
	fetcher   *Fetcher
	extractor *Extractor
	auditor   *RobotsTxtAuditor
	userAgent string
	logger    *slog.Logger
}

// ScraperOption configures a PageScraper.
type ScraperOption func(*PageScraper)

// WithRobots enables robots.txt checks under the given user-agent token.
func WithRobots(userAgent string) ScraperOption {
	return func(s *PageScraper) {
		if userAgent == "" {
			userAgent = "*"
		}
		s.userAgent = userAgent
		s.auditor = NewRobotsTxtAuditor(s.fetcher, s.logger)
	}
}

// WithExtractor replaces the default extractor.
func WithExtractor(e *Extractor) ScraperOption {
	return func(s *PageScraper) { s.extractor = e }
}

// NewPageScraper builds a scraper over fetcher.
func NewPageScraper(fetcher *Fetcher, logger *slog.Logger, opts ...ScraperOption) *PageScraper {
	if logger == nil {
		logger = slog.Default()
	}
	s := &PageScraper{
		fetcher:   fetcher,
		extractor: NewExtractor(),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scrape returns the text content of targetURL. Non-HTML responses are
// returned as trimmed text.
func (s *PageScraper) Scrape(ctx context.Context, targetURL string) (string, error) {
	if s.auditor != nil {
		allowed, err := s.auditor.IsAllowed(ctx, targetURL, s.userAgent)
		if err != nil {
			return "", err
		}
		if !allowed {
			return "", ErrDisallowed
		}
	}

	page, err := s.fetcher.Fetch(ctx, targetURL)
	if err != nil {
		return "", err
	}

	contentType := strings.ToLower(page.Header.Get("Content-Type"))
	if contentType != "" && !strings.Contains(contentType, "html") {
		if strings.HasPrefix(contentType, "text/") {
			return strings.TrimSpace(string(page.Body)), nil
		}
		return "", fmt.Errorf("unsupported content type %q", contentType)
	}

	text, err := s.extractor.Extract(page.Body)
	if err != nil {
		return "", err
	}
	s.logger.Debug("scraped page", "url", targetURL, "chars", len(text))
	return text, nil
}
