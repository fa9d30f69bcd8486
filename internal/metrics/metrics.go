package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	FetchRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "searchai_fetch_requests_total",
			Help: "Total number of page fetches executed",
		},
		[]string{"domain", "status", "blocked", "vendor"},
	)

	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "searchai_fetch_duration_seconds",
			Help:    "Duration of page fetches in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"domain"},
	)

	FetchBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "searchai_fetch_bytes_total",
			Help: "Total bytes downloaded across all fetches",
		},
		[]string{"domain"},
	)

	ProxyFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "searchai_proxy_failures_total",
			Help: "Total number of proxy failures during fetches",
		},
		[]string{"proxy_url"},
	)

	JobsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "searchai_jobs_started_total",
			Help: "Total number of pipeline runs started",
		},
	)

	JobsFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "searchai_jobs_finished_total",
			Help: "Pipeline runs by terminal stage",
		},
		[]string{"stage"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "searchai_stage_duration_seconds",
			Help:    "Time spent in each pipeline stage",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"stage"},
	)

	SitesSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "searchai_sites_skipped_total",
			Help: "Discovered sites dropped during fetching",
		},
		[]string{"reason"},
	)

	SummaryFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "searchai_summary_fallbacks_total",
			Help: "Placeholder summaries substituted for failed model calls",
		},
		[]string{"reason"},
	)

	FollowUps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "searchai_followups_total",
			Help: "Follow-up questions answered by intent and response format",
		},
		[]string{"intent", "format"},
	)

	AnswerCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "searchai_answer_cache_lookups_total",
			Help: "Answer cache lookups by result",
		},
		[]string{"result"},
	)
)

// Fetch describes one completed fetch for RecordFetch.
type Fetch struct {
	Domain     string
	StatusCode int
	Failed     bool
	Blocked    bool
	Vendor     string
	Bytes      int
	Duration   time.Duration
}

// RecordFetch updates the fetch collectors.
func RecordFetch(f Fetch) {
	status := strconv.Itoa(f.StatusCode)
	if f.Failed && f.StatusCode == 0 {
		status = "error"
	}

	FetchRequestsTotal.WithLabelValues(f.Domain, status, strconv.FormatBool(f.Blocked), f.Vendor).Inc()
	FetchDuration.WithLabelValues(f.Domain).Observe(f.Duration.Seconds())
	FetchBytesTotal.WithLabelValues(f.Domain).Add(float64(f.Bytes))
}

// ObserveStage records how long a pipeline stage took.
func ObserveStage(stage string, since time.Time) {
	StageDuration.WithLabelValues(stage).Observe(time.Since(since).Seconds())
}

// Server encapsulates an HTTP server for Prometheus metrics.
type Server struct {
	srv    *http.Server
	ln     net.Listener
	logger *slog.Logger
}

// Start begins listening on addr and exposes /metrics. Use ":0" to pick a
// free port; Addr reports the bound address.
func Start(addr string, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	s := &Server{
		srv:    &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		ln:     ln,
		logger: logger,
	}

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "err", err)
		}
	}()

	return s, nil
}

// Addr returns the address the server listens on.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	if s == nil || s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
