// Package summarizer calls a Gemini-compatible generateContent endpoint to
// summarize scraped pages and answer follow-up questions.
package summarizer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	jmespath "github.com/jmespath-community/go-jmespath"

	"github.com/mng48301/searchai/internal/storage"
	"github.com/mng48301/searchai/pkg/httpclient"
)

const (
	DefaultEndpoint = "https://generativelanguage.googleapis.com/v1beta"
	DefaultModel    = "gemini-1.5-flash"
	// DefaultTextPath selects the generated text in a generateContent response.
	DefaultTextPath = "candidates[0].content.parts[0].text"
	// DefaultMaxSourceChars caps each source's content inside a prompt.
	DefaultMaxSourceChars = 2000
)

var (
	// ErrRateLimited is returned when the model API rejects a call with 429.
	ErrRateLimited = errors.New("model rate limited")
	// ErrEmptyResponse is returned when the model produced no text.
	ErrEmptyResponse = errors.New("model returned no text")
	// ErrNotConfigured is returned when no API key is set.
	ErrNotConfigured = errors.New("model API key not configured")
)

// Config configures the model client.
type Config struct {
	Endpoint       string
	APIKey         string
	Model          string
	TextPath       string
	Timeout        time.Duration
	MaxSourceChars int
}

// Client talks to the model API.
type Client struct {
	cfg    Config
	http   *httpclient.Client
	logger *slog.Logger
}

// New validates cfg and returns a client.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.TextPath == "" {
		cfg.TextPath = DefaultTextPath
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxSourceChars <= 0 {
		cfg.MaxSourceChars = DefaultMaxSourceChars
	}
	if logger == nil {
		logger = slog.Default()
	}

	if _, err := jmespath.Compile(cfg.TextPath); err != nil {
		return nil, fmt.Errorf("invalid text path %q: %w", cfg.TextPath, err)
	}
	if _, err := url.Parse(cfg.Endpoint); err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}

	hc, err := httpclient.New(httpclient.Config{Timeout: cfg.Timeout})
	if err != nil {
		return nil, err
	}
	return &Client{cfg: cfg, http: hc, logger: logger}, nil
}

// Summarize asks the model for an overview of results in the context of
// query. Markdown emphasis and heading markers are removed from the reply.
func (c *Client) Summarize(ctx context.Context, query string, results []storage.SiteResult) (string, error) {
	text, err := c.generate(ctx, SummaryPrompt(query, results, c.cfg.MaxSourceChars))
	if err != nil {
		return "", err
	}
	return CleanSummary(text), nil
}

// Answer sends instruction followed by contextText and returns the raw reply.
func (c *Client) Answer(ctx context.Context, instruction, contextText string) (string, error) {
	prompt := instruction + "\n\nContent:\n" + contextText
	return c.generate(ctx, prompt)
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Parts []part `json:"parts"`
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

func (c *Client) generate(ctx context.Context, prompt string) (string, error) {
	if c.cfg.APIKey == "" {
		return "", ErrNotConfigured
	}

	endpoint := strings.TrimRight(c.cfg.Endpoint, "/") + "/models/" + url.PathEscape(c.cfg.Model) + ":generateContent"
	header := http.Header{}
	header.Set("x-goog-api-key", c.cfg.APIKey)

	start := time.Now()
	resp, err := c.http.PostJSON(ctx, endpoint, generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
	}, header)
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", ErrRateLimited
	case resp.StatusCode >= http.StatusBadRequest:
		return "", fmt.Errorf("generate: status %d: %s", resp.StatusCode, snippet(resp.Body))
	}

	var payload any
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	value, err := jmespath.Search(c.cfg.TextPath, payload)
	if err != nil {
		return "", fmt.Errorf("extract text: %w", err)
	}
	text, _ := value.(string)
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyResponse
	}

	c.logger.Debug("model call", "model", c.cfg.Model, "prompt_chars", len(prompt), "duration", time.Since(start))
	return text, nil
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
