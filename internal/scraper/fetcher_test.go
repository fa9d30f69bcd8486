package scraper

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mng48301/searchai/internal/fingerprint"
	"github.com/mng48301/searchai/pkg/proxy"
	"github.com/mng48301/searchai/pkg/useragent"
)

func newTestFetcher(t *testing.T, cfg FetchConfig) *Fetcher {
	t.Helper()
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	cfg.Fingerprint = fingerprint.ProfileGo
	f, err := NewFetcher(cfg)
	if err != nil {
		t.Fatalf("failed to create fetcher: %v", err)
	}
	return f
}

func TestFetcher_Success(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "TestBrowser/1.0" {
			t.Errorf("expected rotated User-Agent header, got %q", r.Header.Get("User-Agent"))
		}
		w.Header().Set("X-Test", "true")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	defer ts.Close()

	fetcher := newTestFetcher(t, FetchConfig{UAPool: useragent.NewPool([]string{"TestBrowser/1.0"})})

	page, err := fetcher.Fetch(context.Background(), ts.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", page.StatusCode)
	}
	if string(page.Body) != "ok" {
		t.Errorf("expected body 'ok', got %s", string(page.Body))
	}
	if page.Header.Get("X-Test") != "true" {
		t.Errorf("expected X-Test header 'true', got %v", page.Header.Get("X-Test"))
	}
	if page.Duration == 0 {
		t.Errorf("expected non-zero duration")
	}
}

func TestFetcher_Timeout(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	fetcher := newTestFetcher(t, FetchConfig{Timeout: 10 * time.Millisecond})

	page, err := fetcher.Fetch(context.Background(), ts.URL)
	if err == nil || !strings.Contains(err.Error(), "request failed") {
		t.Errorf("expected timeout error, got %v", err)
	}
	if page != nil {
		t.Errorf("expected no page on transport failure")
	}
}

func TestFetcher_ErrorStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	fetcher := newTestFetcher(t, FetchConfig{})

	page, err := fetcher.Fetch(context.Background(), ts.URL)
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusNotFound {
		t.Fatalf("expected StatusError 404, got %v", err)
	}
	if page == nil || page.StatusCode != http.StatusNotFound {
		t.Errorf("expected page with status 404")
	}
}

func TestFetcher_BotWall(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", "cloudflare")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("Attention Required! | Cloudflare"))
	}))
	defer ts.Close()

	fetcher := newTestFetcher(t, FetchConfig{})

	page, err := fetcher.Fetch(context.Background(), ts.URL)
	if !errors.Is(err, ErrBlocked) {
		t.Fatalf("expected ErrBlocked, got %v", err)
	}
	if page.Vendor != "Cloudflare" {
		t.Errorf("expected Cloudflare vendor, got %q", page.Vendor)
	}
}

func TestFetcher_Proxy(t *testing.T) {
	// The proxy answers every request itself instead of forwarding it.
	proxyServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer proxyServer.Close()

	pool, err := proxy.NewPool(proxy.Config{MaxFailures: 1, Cooldown: time.Second}, proxyServer.URL)
	if err != nil {
		t.Fatalf("failed to build proxy pool: %v", err)
	}

	targetServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer targetServer.Close()

	fetcher := newTestFetcher(t, FetchConfig{ProxyPool: pool})

	page, _ := fetcher.Fetch(context.Background(), targetServer.URL)
	if page == nil || page.StatusCode != http.StatusTeapot {
		t.Fatalf("expected 418 Teapot from proxy, got %+v", page)
	}
}

func TestFetcher_ProxyFailureMetricHidesCredentials(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	deadAddr := dead.Listener.Addr().String()
	dead.Close()

	pool, err := proxy.NewPool(proxy.Config{}, "http://scraper:hunter2@"+deadAddr)
	if err != nil {
		t.Fatalf("failed to build proxy pool: %v", err)
	}
	fetcher := newTestFetcher(t, FetchConfig{ProxyPool: pool, Timeout: time.Second})

	if _, err := fetcher.Fetch(context.Background(), "http://example.invalid/"); err == nil {
		t.Fatal("expected the dead proxy to fail the request")
	}

	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	found := false
	for _, mf := range families {
		if mf.GetName() != "searchai_proxy_failures_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if strings.Contains(lp.GetValue(), "hunter2") {
					t.Errorf("proxy password exposed in label %q", lp.GetValue())
				}
				if strings.Contains(lp.GetValue(), deadAddr) {
					found = true
				}
			}
		}
	}
	if !found {
		t.Errorf("expected a proxy failure series for %s", deadAddr)
	}
}
