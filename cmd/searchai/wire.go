package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mng48301/searchai/internal/answer"
	"github.com/mng48301/searchai/internal/config"
	"github.com/mng48301/searchai/internal/fingerprint"
	"github.com/mng48301/searchai/internal/jobs"
	"github.com/mng48301/searchai/internal/pipeline"
	"github.com/mng48301/searchai/internal/scraper"
	"github.com/mng48301/searchai/internal/serp"
	"github.com/mng48301/searchai/internal/storage"
	"github.com/mng48301/searchai/internal/storage/jsonbackend"
	"github.com/mng48301/searchai/internal/storage/mongo"
	"github.com/mng48301/searchai/internal/storage/postgres"
	"github.com/mng48301/searchai/internal/storage/sqlite"
	"github.com/mng48301/searchai/internal/summarizer"
	"github.com/mng48301/searchai/pkg/proxy"
	"github.com/mng48301/searchai/pkg/ratelimit"
	"github.com/mng48301/searchai/pkg/useragent"
)

// robotsAgent is the token matched against robots.txt groups.
const robotsAgent = "searchai"

// app holds the wired components shared by the commands.
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	store    storage.Backend
	redis    redis.UniversalClient
	tracker  *jobs.Tracker
	pipeline *pipeline.Pipeline
	answers  *answer.Service
}

// openStore connects the configured result store.
func openStore(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (storage.Backend, error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		return sqlite.New(cfg.SQLiteDSN)
	case config.BackendPostgres:
		return postgres.New(ctx, cfg.PostgresDSN, logger)
	case config.BackendMongo:
		return mongo.New(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection)
	case config.BackendJSON:
		return jsonbackend.New(cfg.JSONPath)
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
}

func newFetcher(cfg config.FetchConfig) (*scraper.Fetcher, error) {
	profile, err := fingerprint.ParseProfile(cfg.Fingerprint)
	if err != nil {
		return nil, err
	}

	var proxies *proxy.Pool
	if len(cfg.ProxyURLs) > 0 {
		if proxies, err = proxy.NewPool(proxy.Config{}, cfg.ProxyURLs...); err != nil {
			return nil, fmt.Errorf("proxy pool: %w", err)
		}
	}

	return scraper.NewFetcher(scraper.FetchConfig{
		Timeout:            cfg.Timeout,
		UseCookieJar:       true,
		MaxBodyBytes:       cfg.MaxBodyBytes,
		ProxyPool:          proxies,
		UAPool:             useragent.NewPool(cfg.UserAgents),
		Fingerprint:        profile,
		Limiter:            ratelimit.NewLimiter(cfg.RPS, cfg.Jitter),
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	})
}

// connectRedis returns nil when no URL is configured.
func connectRedis(ctx context.Context, rawURL string) (redis.UniversalClient, error) {
	if rawURL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, errors.Join(fmt.Errorf("ping redis: %w", err), client.Close())
	}
	return client, nil
}

// setup wires every component from cfg.
func setup(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	store, err := openStore(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Storage.Backend, err)
	}
	a := &app{cfg: cfg, logger: logger, store: store}

	if a.redis, err = connectRedis(ctx, cfg.Cache.RedisURL); err != nil {
		return nil, errors.Join(err, a.Close())
	}

	fetcher, err := newFetcher(cfg.Fetch)
	if err != nil {
		return nil, errors.Join(err, a.Close())
	}

	llm, err := summarizer.New(summarizer.Config{
		Endpoint:       cfg.LLM.Endpoint,
		APIKey:         cfg.LLM.APIKey,
		Model:          cfg.LLM.Model,
		TextPath:       cfg.LLM.TextPath,
		Timeout:        cfg.LLM.Timeout,
		MaxSourceChars: cfg.LLM.MaxSourceChars,
	}, logger)
	if err != nil {
		return nil, errors.Join(err, a.Close())
	}
	if cfg.LLM.APIKey == "" {
		logger.Warn("LLM_API_KEY not set, summaries and answers will fall back to placeholders")
	}

	endpoint := cfg.Fetch.SearchEndpoint
	if endpoint == "" {
		endpoint = serp.DefaultDuckDuckGoEndpoint
	}
	discovery := serp.NewDuckDuckGo(endpoint, fetcher, logger)

	var scrapeOpts []scraper.ScraperOption
	if cfg.Fetch.RespectRobots {
		scrapeOpts = append(scrapeOpts, scraper.WithRobots(robotsAgent))
	}
	pages := scraper.NewPageScraper(fetcher, logger, scrapeOpts...)

	a.tracker = jobs.NewTracker(jobs.Options{TTL: cfg.Jobs.TTL, MaxEntries: cfg.Jobs.MaxEntries})
	a.pipeline = pipeline.New(pipeline.Config{
		DiscoveryLimit:   cfg.Pipeline.DiscoveryLimit,
		MinContentLength: cfg.Pipeline.MinContentLength,
		DiscoveryTimeout: cfg.Pipeline.DiscoveryTimeout,
		FetchTimeout:     cfg.Pipeline.FetchTimeout,
		SummarizeTimeout: cfg.Pipeline.SummarizeTimeout,
		StoreTimeout:     cfg.Pipeline.StoreTimeout,
	}, a.tracker, discovery, pages, llm, store, logger)

	answerOpts := []answer.Option{
		answer.WithLogger(logger),
		answer.WithMaxContextChars(cfg.LLM.MaxContextChars),
	}
	if a.redis != nil {
		answerOpts = append(answerOpts, answer.WithCache(answer.NewRedisCache(a.redis, cfg.Cache.TTL)))
	}
	a.answers = answer.NewService(store, llm, answerOpts...)

	return a, nil
}

// Close releases the store and the redis client.
func (a *app) Close() error {
	var errs []error
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	return errors.Join(errs...)
}
