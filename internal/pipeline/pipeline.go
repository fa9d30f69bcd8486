// Package pipeline runs search jobs: discover sites for a query, scrape
// the first few, summarize what was found and store the result.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/mng48301/searchai/internal/jobs"
	"github.com/mng48301/searchai/internal/metrics"
	"github.com/mng48301/searchai/internal/serp"
	"github.com/mng48301/searchai/internal/storage"
	"github.com/mng48301/searchai/internal/summarizer"
)

// FanOut is how many discovered sites a job fetches.
const FanOut = 3

const (
	// UnavailableSummary replaces a summary the model could not produce.
	UnavailableSummary = "AI analysis temporarily unavailable"
	// SummaryErrorPrefix starts a summary replaced by a model error.
	SummaryErrorPrefix = "Error generating summary: "
)

var (
	// ErrDiscoveryEmpty is returned when no sites were found for a query.
	ErrDiscoveryEmpty = errors.New("no websites found")
	// ErrAllFetchesFailed is returned when no site produced usable content.
	ErrAllFetchesFailed = errors.New("could not extract content from websites")
	// ErrCancelled is returned when a job stopped on a cancellation request.
	ErrCancelled = errors.New("search cancelled")
)

// ContentFetcher returns the readable text of a page.
type ContentFetcher interface {
	Scrape(ctx context.Context, url string) (string, error)
}

// Summarizer condenses scraped pages into a summary for query.
type Summarizer interface {
	Summarize(ctx context.Context, query string, results []storage.SiteResult) (string, error)
}

// Config tunes a Pipeline. Zero values use defaults.
type Config struct {
	// DiscoveryLimit is how many candidates discovery is asked for. Only
	// the first FanOut are fetched. Defaults to 5.
	DiscoveryLimit int
	// MinContentLength is the trimmed length content must exceed to be
	// kept. Defaults to 100.
	MinContentLength int

	DiscoveryTimeout time.Duration
	FetchTimeout     time.Duration
	SummarizeTimeout time.Duration
	StoreTimeout     time.Duration
}

func (c *Config) applyDefaults() {
	if c.DiscoveryLimit <= 0 {
		c.DiscoveryLimit = 5
	}
	if c.MinContentLength <= 0 {
		c.MinContentLength = 100
	}
	if c.DiscoveryTimeout <= 0 {
		c.DiscoveryTimeout = 20 * time.Second
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 30 * time.Second
	}
	if c.SummarizeTimeout <= 0 {
		c.SummarizeTimeout = 60 * time.Second
	}
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = 10 * time.Second
	}
}

// Outcome is the final state of a job run synchronously.
type Outcome struct {
	JobID   string
	Query   string
	Stage   jobs.Stage
	Summary string
	Sites   []string
}

// Pipeline drives jobs through their stages and reports progress to a
// jobs.Tracker.
type Pipeline struct {
	cfg        Config
	tracker    *jobs.Tracker
	discovery  serp.Provider
	fetcher    ContentFetcher
	summarizer Summarizer
	store      storage.Backend
	logger     *slog.Logger
	now        func() time.Time
	wg         sync.WaitGroup
}

// New wires a Pipeline.
func New(cfg Config, tracker *jobs.Tracker, discovery serp.Provider, fetcher ContentFetcher,
	sum Summarizer, store storage.Backend, logger *slog.Logger) *Pipeline {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		cfg:        cfg,
		tracker:    tracker,
		discovery:  discovery,
		fetcher:    fetcher,
		summarizer: sum,
		store:      store,
		logger:     logger,
		now:        time.Now,
	}
}

// Start registers a job for query and runs it in the background. The run
// is detached from ctx cancellation; use the tracker to cancel it.
func (p *Pipeline) Start(ctx context.Context, query string) string {
	job, token := p.tracker.Create(query)
	ctx = context.WithoutCancel(ctx)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		_, _ = p.execute(ctx, job.ID, query, token)
	}()
	return job.ID
}

// Run executes a job for query and waits for it to finish. Like Start, the
// run ignores ctx cancellation. The error is ErrDiscoveryEmpty,
// ErrAllFetchesFailed, ErrCancelled or a store error; the Outcome carries
// the job id in every case.
func (p *Pipeline) Run(ctx context.Context, query string) (Outcome, error) {
	job, token := p.tracker.Create(query)
	return p.execute(context.WithoutCancel(ctx), job.ID, query, token)
}

// Wait blocks until every job started with Start has finished.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

func (p *Pipeline) execute(ctx context.Context, id, query string, token *jobs.Token) (out Outcome, err error) {
	logger := p.logger.With("job_id", id)
	out = Outcome{JobID: id, Query: query}
	metrics.JobsStarted.Inc()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pipeline panic: %v", r)
			logger.Error("search job panicked", "panic", fmt.Sprint(r))
			p.finishFailed(logger, id, err)
			out.Stage = jobs.StageFailed
		}
		metrics.JobsFinished.WithLabelValues(string(out.Stage)).Inc()
	}()

	logger.Info("search job started", "query", query)

	start := p.now()
	p.advance(logger, id, jobs.StageDiscovering, 10)
	urls, err := p.discover(ctx, query)
	metrics.ObserveStage(string(jobs.StageDiscovering), start)
	if err != nil {
		logger.Warn("discovery failed", "err", err)
		p.finishFailed(logger, id, ErrDiscoveryEmpty)
		out.Stage = jobs.StageFailed
		return out, ErrDiscoveryEmpty
	}
	p.advance(logger, id, jobs.StageDiscovering, 20)

	start = p.now()
	p.advance(logger, id, jobs.StageFetching, 20)
	results, cancelled := p.fetchAll(ctx, logger, id, urls, token)
	metrics.ObserveStage(string(jobs.StageFetching), start)
	if cancelled {
		logger.Info("search job cancelled")
		if err := p.tracker.MarkCancelled(id); err != nil {
			logger.Error("failed to mark job cancelled", "err", err)
		}
		out.Stage = jobs.StageCancelled
		return out, ErrCancelled
	}
	if len(results) == 0 {
		p.finishFailed(logger, id, ErrAllFetchesFailed)
		out.Stage = jobs.StageFailed
		return out, ErrAllFetchesFailed
	}

	start = p.now()
	p.advance(logger, id, jobs.StageSummarizing, 70)
	summary := p.summarize(ctx, logger, query, results)
	metrics.ObserveStage(string(jobs.StageSummarizing), start)

	start = p.now()
	p.advance(logger, id, jobs.StagePersisting, 90)
	doc := &storage.SearchDocument{
		Query:       query,
		JobID:       id,
		Sites:       sitesOf(results),
		Summary:     summary,
		Status:      storage.StatusCompleted,
		CreatedAt:   p.now().UTC(),
		SiteResults: results,
	}
	err = p.save(ctx, doc)
	metrics.ObserveStage(string(jobs.StagePersisting), start)
	if err != nil {
		logger.Error("failed to store search result", "err", err)
		p.finishFailed(logger, id, err)
		out.Stage = jobs.StageFailed
		return out, err
	}

	if err := p.tracker.Complete(id, summary, doc.Sites); err != nil {
		logger.Error("failed to complete job", "err", err)
	}
	logger.Info("search job completed", "sites", len(doc.Sites))
	out.Stage = jobs.StageCompleted
	out.Summary = summary
	out.Sites = doc.Sites
	return out, nil
}

func (p *Pipeline) discover(ctx context.Context, query string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.DiscoveryTimeout)
	defer cancel()

	found, err := p.discovery.Search(ctx, query, p.cfg.DiscoveryLimit)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, ErrDiscoveryEmpty
	}
	urls := make([]string, 0, min(len(found), FanOut))
	for _, r := range found[:min(len(found), FanOut)] {
		urls = append(urls, r.URL)
	}
	return urls, nil
}

// fetchAll scrapes urls in order. Cancellation is honored before each
// fetch and once after the last one.
func (p *Pipeline) fetchAll(ctx context.Context, logger *slog.Logger, id string, urls []string, token *jobs.Token) ([]storage.SiteResult, bool) {
	var results []storage.SiteResult
	n := len(urls)
	for i, u := range urls {
		if token.Cancelled() {
			return nil, true
		}
		content, err := p.scrape(ctx, u)
		switch {
		case err != nil:
			logger.Warn("failed to fetch site", "url", u, "err", err)
			metrics.SitesSkipped.WithLabelValues("error").Inc()
		case utf8.RuneCountInString(content) <= p.cfg.MinContentLength:
			logger.Info("skipping site with too little content", "url", u, "chars", utf8.RuneCountInString(content))
			metrics.SitesSkipped.WithLabelValues("short").Inc()
		default:
			results = append(results, storage.SiteResult{URL: u, Content: content, FetchedAt: p.now().UTC()})
		}
		p.advance(logger, id, jobs.StageFetching, 20+(i+1)*40/n)
	}
	if token.Cancelled() {
		return nil, true
	}
	return results, false
}

func (p *Pipeline) scrape(ctx context.Context, url string) (content string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scrape panic: %v", r)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, p.cfg.FetchTimeout)
	defer cancel()

	content, err = p.fetcher.Scrape(ctx, url)
	return strings.TrimSpace(content), err
}

func (p *Pipeline) summarize(ctx context.Context, logger *slog.Logger, query string, results []storage.SiteResult) (summary string) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("summarizer panicked", "panic", fmt.Sprint(r))
			metrics.SummaryFallbacks.WithLabelValues("error").Inc()
			summary = SummaryErrorPrefix + fmt.Sprint(r)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, p.cfg.SummarizeTimeout)
	defer cancel()

	summary, err := p.summarizer.Summarize(ctx, query, results)
	switch {
	case errors.Is(err, summarizer.ErrRateLimited):
		logger.Warn("summarizer rate limited")
		metrics.SummaryFallbacks.WithLabelValues("rate_limited").Inc()
		return UnavailableSummary
	case errors.Is(err, summarizer.ErrEmptyResponse):
		metrics.SummaryFallbacks.WithLabelValues("empty").Inc()
		return UnavailableSummary
	case err != nil:
		logger.Error("summarizer failed", "err", err)
		metrics.SummaryFallbacks.WithLabelValues("error").Inc()
		return SummaryErrorPrefix + err.Error()
	case strings.TrimSpace(summary) == "":
		metrics.SummaryFallbacks.WithLabelValues("empty").Inc()
		return UnavailableSummary
	}
	return summary
}

func (p *Pipeline) save(ctx context.Context, doc *storage.SearchDocument) error {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.StoreTimeout)
	defer cancel()

	if err := p.store.Save(ctx, doc); err != nil {
		return fmt.Errorf("store search result: %w", err)
	}
	return nil
}

func (p *Pipeline) advance(logger *slog.Logger, id string, stage jobs.Stage, progress int) {
	if err := p.tracker.Advance(id, stage, progress); err != nil {
		logger.Warn("failed to update job progress", "stage", stage, "err", err)
	}
}

func (p *Pipeline) finishFailed(logger *slog.Logger, id string, cause error) {
	if err := p.tracker.Fail(id, cause.Error()); err != nil {
		logger.Error("failed to mark job failed", "err", err)
	}
}

func sitesOf(results []storage.SiteResult) []string {
	sites := make([]string, len(results))
	for i, r := range results {
		sites[i] = r.URL
	}
	return sites
}
