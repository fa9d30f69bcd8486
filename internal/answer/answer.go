// Package answer answers follow-up questions about a stored search and
// shapes the reply as text, a table or a chart series.
package answer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/mng48301/searchai/internal/analyzer"
	"github.com/mng48301/searchai/internal/metrics"
	"github.com/mng48301/searchai/internal/storage"
)

const (
	// FallbackMessage replaces any answer that could not be produced.
	FallbackMessage = "Sorry, I couldn't answer that question. Please try rephrasing it."
	// NoContentMessage is shown when the stored search has no usable text.
	NoContentMessage = "No content available for this search"
	// NoSeriesNote is appended when a chart was requested but no series was found.
	NoSeriesNote = "No numeric series could be extracted for a chart."

	// DefaultMaxContextChars caps the stored content sent with a question.
	DefaultMaxContextChars = 12000
)

// ErrNoContent is returned when the stored search holds no content.
var ErrNoContent = errors.New("no content available")

// Format is the shape of a Response.
type Format string

const (
	FormatText  Format = "text"
	FormatTable Format = "table"
	FormatChart Format = "chart"
)

// Chart is a single labelled series ready for plotting.
type Chart struct {
	SeriesName string           `json:"seriesName"`
	Points     []analyzer.Point `json:"points"`
	XTitle     string           `json:"xTitle"`
	YTitle     string           `json:"yTitle"`
}

// Response is a formatted answer.
type Response struct {
	Format Format          `json:"format"`
	Answer string          `json:"answer"`
	Intent analyzer.Intent `json:"intent"`
	Table  *analyzer.Table `json:"table,omitempty"`
	Chart  *Chart          `json:"chart,omitempty"`
}

// Model produces free text for an instruction over some context.
type Model interface {
	Answer(ctx context.Context, instruction, contextText string) (string, error)
}

// Cache stores formatted responses.
type Cache interface {
	Get(ctx context.Context, key string) (*Response, bool, error)
	Set(ctx context.Context, key string, resp *Response) error
}

// Option configures a Service.
type Option func(*Service)

// WithCache enables response caching.
func WithCache(c Cache) Option {
	return func(s *Service) { s.cache = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMaxContextChars caps the context sent to the model.
func WithMaxContextChars(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxContext = n
		}
	}
}

// Service answers follow-up questions against stored searches.
type Service struct {
	store      storage.Backend
	model      Model
	cache      Cache
	group      singleflight.Group
	logger     *slog.Logger
	maxContext int
}

// NewService returns a Service reading documents from store.
func NewService(store storage.Backend, model Model, opts ...Option) *Service {
	s := &Service{
		store:      store,
		model:      model,
		logger:     slog.Default(),
		maxContext: DefaultMaxContextChars,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ask answers question about the search stored for originalQuery. It
// returns storage.ErrNotFound for an unknown query and ErrNoContent when
// the search kept no text. Every other failure becomes a text response
// carrying FallbackMessage.
func (s *Service) Ask(ctx context.Context, originalQuery, question string) (*Response, error) {
	doc, err := storage.FindByQuery(ctx, s.store, originalQuery)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
		s.logger.Error("follow-up lookup failed", "query", originalQuery, "err", err)
		return fallback(analyzer.IntentGeneral), nil
	}

	contextText := BuildContext(doc.SiteResults)
	if contextText == "" {
		return nil, ErrNoContent
	}

	key := CacheKey(originalQuery, question, doc.JobID)
	// The shared call outlives any single caller.
	shared := context.WithoutCancel(ctx)
	v, _, _ := s.group.Do(key, func() (any, error) {
		if resp, ok := s.cached(shared, key); ok {
			return resp, nil
		}
		resp := s.answer(shared, question, truncate(contextText, s.maxContext))
		if resp.Answer != FallbackMessage {
			s.remember(shared, key, resp)
		}
		return resp, nil
	})
	resp := v.(*Response)
	metrics.FollowUps.WithLabelValues(string(resp.Intent), string(resp.Format)).Inc()
	return resp, nil
}

func (s *Service) cached(ctx context.Context, key string) (*Response, bool) {
	if s.cache == nil {
		return nil, false
	}
	resp, ok, err := s.cache.Get(ctx, key)
	switch {
	case err != nil:
		metrics.AnswerCacheLookups.WithLabelValues("error").Inc()
		s.logger.Warn("answer cache read failed", "err", err)
		return nil, false
	case !ok:
		metrics.AnswerCacheLookups.WithLabelValues("miss").Inc()
		return nil, false
	}
	metrics.AnswerCacheLookups.WithLabelValues("hit").Inc()
	return resp, true
}

func (s *Service) remember(ctx context.Context, key string, resp *Response) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, resp); err != nil {
		s.logger.Warn("answer cache write failed", "err", err)
	}
}

func (s *Service) answer(ctx context.Context, question, contextText string) (resp *Response) {
	intent := analyzer.Classify(question)
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("follow-up panicked", "panic", fmt.Sprint(r))
			resp = fallback(intent)
		}
	}()

	raw, err := s.model.Answer(ctx, Instruction(intent, question), contextText)
	if err != nil {
		s.logger.Error("follow-up model call failed", "intent", intent, "err", err)
		return fallback(intent)
	}
	return Shape(intent, question, raw, contextText)
}

// Shape turns a raw model answer into a Response for intent.
func Shape(intent analyzer.Intent, question, raw, contextText string) *Response {
	cleaned := analyzer.CleanText(raw)
	if cleaned == "" {
		return fallback(intent)
	}

	switch {
	case intent == analyzer.IntentVisualization,
		intent == analyzer.IntentPrice && analyzer.WantsChart(question):
		points := analyzer.ExtractSeries(raw)
		if len(points) == 0 {
			points = analyzer.ExtractSeries(contextText)
		}
		if len(points) == 0 {
			return &Response{Format: FormatText, Intent: intent, Answer: cleaned + "\n\n" + NoSeriesNote}
		}
		return &Response{Format: FormatChart, Intent: intent, Answer: cleaned, Chart: newChart(intent, points)}

	case intent == analyzer.IntentTable, intent == analyzer.IntentPrice:
		if table, ok := analyzer.ExtractTable(raw); ok {
			return &Response{Format: FormatTable, Intent: intent, Answer: cleaned, Table: &table}
		}
	}
	return &Response{Format: FormatText, Intent: intent, Answer: cleaned}
}

func newChart(intent analyzer.Intent, points []analyzer.Point) *Chart {
	if intent == analyzer.IntentPrice {
		return &Chart{SeriesName: "Price", Points: points, XTitle: "Item", YTitle: "Price"}
	}
	return &Chart{SeriesName: "Value", Points: points, XTitle: "Label", YTitle: "Value"}
}

func fallback(intent analyzer.Intent) *Response {
	return &Response{Format: FormatText, Intent: intent, Answer: FallbackMessage}
}

// BuildContext joins the trimmed, non-empty contents of results.
func BuildContext(results []storage.SiteResult) string {
	parts := make([]string, 0, len(results))
	for _, r := range results {
		if c := strings.TrimSpace(r.Content); c != "" {
			parts = append(parts, c)
		}
	}
	return strings.Join(parts, "\n\n")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
