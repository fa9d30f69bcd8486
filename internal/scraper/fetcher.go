package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/mng48301/searchai/internal/bypass"
	"github.com/mng48301/searchai/internal/fingerprint"
	"github.com/mng48301/searchai/internal/metrics"
	"github.com/mng48301/searchai/pkg/httpclient"
	"github.com/mng48301/searchai/pkg/proxy"
	"github.com/mng48301/searchai/pkg/ratelimit"
	"github.com/mng48301/searchai/pkg/useragent"
)

type contextKey string

const proxyKey contextKey = "proxy_url"

// ErrBlocked is returned when a response is a bot-protection challenge page.
var ErrBlocked = errors.New("blocked by bot protection")

// StatusError reports an HTTP error status from the target.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.StatusCode)
}

// FetchConfig configures how pages are requested.
type FetchConfig struct {
	Timeout      time.Duration
	MaxRedirects int
	UseCookieJar bool
	MaxBodyBytes int64
	ProxyPool    *proxy.Pool
	UAPool       *useragent.Pool
	Fingerprint  fingerprint.Profile
	Limiter      *ratelimit.Limiter
	// InsecureSkipVerify disables certificate checks. Only for tests.
	InsecureSkipVerify bool
}

// Page is a fetched HTTP response.
type Page struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
	Duration   time.Duration
	// Vendor names the bot wall when the page was a challenge.
	Vendor string
}

// Fetcher performs single URL fetches with user-agent rotation, proxy
// rotation, rate limiting and TLS fingerprinting.
type Fetcher struct {
	config FetchConfig
	client *httpclient.Client
}

// NewFetcher initializes a new Fetcher with the given configuration.
// One client is held across requests so connections and cookies are reused.
func NewFetcher(cfg FetchConfig) (*Fetcher, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.UAPool == nil {
		cfg.UAPool = useragent.NewPool(nil)
	}
	if cfg.Fingerprint == "" {
		cfg.Fingerprint = fingerprint.ProfileChrome
	}

	// The proxy for a request travels in its context so that one transport
	// can rotate proxies per request.
	proxyFunc := func(req *http.Request) (*url.URL, error) {
		if u, ok := req.Context().Value(proxyKey).(*url.URL); ok && u != nil {
			return u, nil
		}
		return http.ProxyFromEnvironment(req)
	}

	transport, err := fingerprint.Transport(cfg.Fingerprint, fingerprint.Options{
		Proxy:              proxyFunc,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to setup transport: %w", err)
	}

	client, err := httpclient.New(httpclient.Config{
		Timeout:      cfg.Timeout,
		MaxRedirects: cfg.MaxRedirects,
		UseCookieJar: cfg.UseCookieJar,
		MaxBodyBytes: cfg.MaxBodyBytes,
		Transport:    transport,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	return &Fetcher{config: cfg, client: client}, nil
}

// Fetch GETs targetURL. The returned page is non-nil whenever a response
// arrived, even if err reports an error status or a bot wall.
func (f *Fetcher) Fetch(ctx context.Context, targetURL string) (*Page, error) {
	if err := f.config.Limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	var activeProxy *url.URL
	if f.config.ProxyPool != nil {
		activeProxy = f.config.ProxyPool.Next()
	}
	reqCtx := ctx
	if activeProxy != nil {
		reqCtx = context.WithValue(ctx, proxyKey, activeProxy)
	}

	header := http.Header{}
	header.Set("User-Agent", f.config.UAPool.Next())
	header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	header.Set("Accept-Language", "en-US,en;q=0.5")

	domain := ""
	if u, err := url.Parse(targetURL); err == nil {
		domain = u.Hostname()
	}

	start := time.Now()
	resp, err := f.client.Get(reqCtx, targetURL, header)
	if resp == nil {
		if activeProxy != nil {
			_ = f.config.ProxyPool.MarkFailure(activeProxy)
			metrics.ProxyFailures.WithLabelValues(activeProxy.Redacted()).Inc()
		}
		metrics.RecordFetch(metrics.Fetch{Domain: domain, Failed: true, Duration: time.Since(start)})
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if activeProxy != nil {
		_ = f.config.ProxyPool.MarkSuccess(activeProxy)
	}

	page := &Page{
		URL:        targetURL,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       resp.Body,
		Duration:   resp.Duration,
	}
	vendor, blocked := bypass.Detect(resp.StatusCode, resp.Header, resp.Body)
	if blocked {
		page.Vendor = vendor
	}

	metrics.RecordFetch(metrics.Fetch{
		Domain:     domain,
		StatusCode: resp.StatusCode,
		Failed:     err != nil || resp.StatusCode >= http.StatusBadRequest,
		Blocked:    blocked,
		Vendor:     vendor,
		Bytes:      len(resp.Body),
		Duration:   resp.Duration,
	})

	switch {
	case err != nil:
		return page, fmt.Errorf("read body: %w", err)
	case blocked:
		return page, fmt.Errorf("%w (%s)", ErrBlocked, vendor)
	case resp.StatusCode >= http.StatusBadRequest:
		return page, &StatusError{StatusCode: resp.StatusCode}
	}
	return page, nil
}
