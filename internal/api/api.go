// Package api exposes search jobs, stored results and follow-up questions
// over HTTP.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/mng48301/searchai/internal/answer"
	"github.com/mng48301/searchai/internal/jobs"
	"github.com/mng48301/searchai/internal/pipeline"
	"github.com/mng48301/searchai/internal/report"
	"github.com/mng48301/searchai/internal/storage"
)

// Searcher starts search jobs.
type Searcher interface {
	Start(ctx context.Context, query string) string
	Run(ctx context.Context, query string) (pipeline.Outcome, error)
}

// Asker answers follow-up questions about stored searches.
type Asker interface {
	Ask(ctx context.Context, originalQuery, question string) (*answer.Response, error)
}

// Handlers serves the HTTP API.
type Handlers struct {
	Tracker  *jobs.Tracker
	Searches Searcher
	Store    storage.Backend
	Answers  Asker
	Logger   *slog.Logger
}

// NewRouter registers every route and wraps them in the standard
// middleware chain.
func NewRouter(h *Handlers) http.Handler {
	if h.Logger == nil {
		h.Logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /{$}", h.Dashboard)
	mux.HandleFunc("POST /search", h.StartSearch)
	mux.HandleFunc("POST /search/{$}", h.StartSearch)
	mux.HandleFunc("GET /search", h.RunSearch)
	mux.HandleFunc("GET /search/{$}", h.RunSearch)
	mux.HandleFunc("GET /search/{id}/status", h.GetStatus)
	mux.HandleFunc("DELETE /search/{query}", h.DeleteByQuery)
	mux.HandleFunc("POST /cancel/{id}", h.Cancel)
	mux.HandleFunc("GET /data", h.AllResults)
	mux.HandleFunc("GET /data/{$}", h.AllResults)
	mux.HandleFunc("GET /source_detail", h.SourceDetail)
	mux.HandleFunc("POST /ask_context", h.AskFollowUp)

	var handler http.Handler = mux
	handler = CORS()(handler)
	handler = Logging(h.Logger)(handler)
	handler = Recover(h.Logger)(handler)
	return handler
}

// Health reports liveness.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type searchRequest struct {
	Query string `json:"query"`
}

// StartSearch begins a background job and returns its id.
func (h *Handlers) StartSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("query"))
	if query == "" && r.ContentLength != 0 {
		var req searchRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		query = strings.TrimSpace(req.Query)
	}
	if query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	id := h.Searches.Start(r.Context(), query)
	writeJSON(w, http.StatusAccepted, map[string]string{"jobId": id})
}

type searchResponse struct {
	Status  string   `json:"status"`
	JobID   string   `json:"jobId"`
	Query   string   `json:"query,omitempty"`
	Sites   []string `json:"sites,omitempty"`
	Summary string   `json:"summary,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// RunSearch runs a job to completion and returns its outcome.
func (h *Handlers) RunSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("query"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	out, err := h.Searches.Run(r.Context(), query)
	resp := searchResponse{Status: string(out.Stage), JobID: out.JobID}
	switch {
	case errors.Is(err, pipeline.ErrCancelled):
	case err != nil:
		resp.Error = err.Error()
	default:
		resp.Query = query
		resp.Sites = out.Sites
		resp.Summary = out.Summary
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetStatus returns a snapshot of a job.
func (h *Handlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	job, err := h.Tracker.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// Cancel requests cancellation of a job.
func (h *Handlers) Cancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := h.Tracker.Cancel(id); err != nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	job, err := h.Tracker.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"accepted": true, "stage": job.Stage})
}

// AllResults lists stored searches, newest first. limit and offset page
// through them.
func (h *Handlers) AllResults(w http.ResponseWriter, r *http.Request) {
	filter, ok := pageFilter(w, r)
	if !ok {
		return
	}
	docs, err := h.Store.Query(r.Context(), filter)
	if err != nil {
		h.Logger.Error("failed to list results", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to list results")
		return
	}
	if docs == nil {
		docs = []*storage.SearchDocument{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": docs})
}

func pageFilter(w http.ResponseWriter, r *http.Request) (storage.Filter, bool) {
	var f storage.Filter
	for name, dst := range map[string]*int{"limit": &f.Limit, "offset": &f.Offset} {
		raw := r.URL.Query().Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid "+name)
			return f, false
		}
		*dst = n
	}
	return f, true
}

// SourceDetail returns the stored content of one scraped page.
func (h *Handlers) SourceDetail(w http.ResponseWriter, r *http.Request) {
	url := r.URL.Query().Get("url")
	if url == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	res, err := storage.FindSource(r.Context(), h.Store, url)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "source not found")
	case err != nil:
		h.Logger.Error("failed to load source", "url", url, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to load source")
	default:
		writeJSON(w, http.StatusOK, map[string]string{"url": res.URL, "content": res.Content})
	}
}

// DeleteByQuery removes every stored search for a query.
func (h *Handlers) DeleteByQuery(w http.ResponseWriter, r *http.Request) {
	query := r.PathValue("query")
	n, err := h.Store.Delete(r.Context(), query)
	if err != nil {
		h.Logger.Error("failed to delete results", "query", query, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to delete results")
		return
	}
	if n == 0 {
		writeError(w, http.StatusNotFound, "no results for query")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "deleted": n})
}

type askRequest struct {
	OriginalQuery string `json:"originalQuery"`
	UserQuestion  string `json:"userQuestion"`
}

// AskFollowUp answers a question about a stored search.
func (h *Handlers) AskFollowUp(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.OriginalQuery) == "" || strings.TrimSpace(req.UserQuestion) == "" {
		writeError(w, http.StatusBadRequest, "originalQuery and userQuestion are required")
		return
	}

	resp, err := h.Answers.Ask(r.Context(), req.OriginalQuery, req.UserQuestion)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "no stored search for query")
	case errors.Is(err, answer.ErrNoContent):
		writeJSON(w, http.StatusOK, &answer.Response{Format: answer.FormatText, Answer: answer.NoContentMessage})
	case err != nil:
		h.Logger.Error("follow-up failed", "err", err)
		writeJSON(w, http.StatusOK, &answer.Response{Format: answer.FormatText, Answer: answer.FallbackMessage})
	default:
		writeJSON(w, http.StatusOK, resp)
	}
}

// Dashboard renders an HTML overview of stored searches.
func (h *Handlers) Dashboard(w http.ResponseWriter, r *http.Request) {
	docs, err := h.Store.Query(r.Context(), storage.Filter{Limit: 200})
	if err != nil {
		h.Logger.Error("failed to load dashboard", "err", err)
		http.Error(w, "failed to load results", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := report.WriteHTML(w, report.GenerateSummary(docs)); err != nil {
		h.Logger.Error("failed to render dashboard", "err", err)
	}
}
