package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mng48301/searchai/internal/answer"
	"github.com/mng48301/searchai/internal/jobs"
	"github.com/mng48301/searchai/internal/pipeline"
	"github.com/mng48301/searchai/internal/storage"
	"github.com/mng48301/searchai/internal/storage/jsonbackend"
	"github.com/mng48301/searchai/internal/storage/storagetest"
)

type fakeSearcher struct {
	mu      sync.Mutex
	tracker *jobs.Tracker
	outcome pipeline.Outcome
	err     error
	queries []string
}

func (f *fakeSearcher) Start(_ context.Context, query string) string {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	f.mu.Unlock()
	job, _ := f.tracker.Create(query)
	return job.ID
}

func (f *fakeSearcher) Run(_ context.Context, query string) (pipeline.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	return f.outcome, f.err
}

func (f *fakeSearcher) set(out pipeline.Outcome, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcome, f.err = out, err
}

func (f *fakeSearcher) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}

type fakeModel struct{ reply string }

func (m fakeModel) Answer(context.Context, string, string) (string, error) { return m.reply, nil }

type fixture struct {
	srv      *httptest.Server
	tracker  *jobs.Tracker
	searcher *fakeSearcher
	store    storage.Backend
}

func newFixture(t *testing.T, reply string) *fixture {
	t.Helper()
	store, err := jsonbackend.New(filepath.Join(t.TempDir(), "results.ndjson"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	tracker := jobs.NewTracker(jobs.Options{})
	searcher := &fakeSearcher{tracker: tracker}
	h := &Handlers{
		Tracker:  tracker,
		Searches: searcher,
		Store:    store,
		Answers:  answer.NewService(store, fakeModel{reply: reply}),
	}
	srv := httptest.NewServer(NewRouter(h))
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, tracker: tracker, searcher: searcher, store: store}
}

func (f *fixture) do(t *testing.T, method, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp, out
}

func TestHealth(t *testing.T) {
	f := newFixture(t, "")
	resp, body := f.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t, "")
	resp, _ := f.do(t, http.MethodOptions, "/search", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), "POST")
}

func TestStartSearch(t *testing.T) {
	f := newFixture(t, "")

	resp, body := f.do(t, http.MethodPost, "/search", `{"query":"laptop prices"}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	id, _ := body["jobId"].(string)
	require.NotEmpty(t, id)

	resp, body = f.do(t, http.MethodGet, "/search/"+id+"/status", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, id, body["jobId"])
	assert.Equal(t, "starting", body["stage"])
	assert.EqualValues(t, 0, body["progress"])

	resp, _ = f.do(t, http.MethodPost, "/search?query=phones", "")
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, []string{"laptop prices", "phones"}, f.searcher.seen())
}

func TestStartSearch_BadRequest(t *testing.T) {
	f := newFixture(t, "")
	resp, body := f.do(t, http.MethodPost, "/search", `{"query":"  "}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "query is required", body["error"])

	resp, _ = f.do(t, http.MethodPost, "/search", `{not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRunSearch(t *testing.T) {
	f := newFixture(t, "")

	f.searcher.set(pipeline.Outcome{JobID: "j1", Stage: jobs.StageCompleted, Summary: "s", Sites: []string{"https://a.example/"}}, nil)
	resp, body := f.do(t, http.MethodGet, "/search?query=laptops", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "completed", body["status"])
	assert.Equal(t, "laptops", body["query"])
	assert.Equal(t, "s", body["summary"])

	f.searcher.set(pipeline.Outcome{JobID: "j2", Stage: jobs.StageFailed}, pipeline.ErrDiscoveryEmpty)
	_, body = f.do(t, http.MethodGet, "/search?query=laptops", "")
	assert.Equal(t, "failed", body["status"])
	assert.Equal(t, "no websites found", body["error"])

	f.searcher.set(pipeline.Outcome{JobID: "j3", Stage: jobs.StageCancelled}, pipeline.ErrCancelled)
	_, body = f.do(t, http.MethodGet, "/search?query=laptops", "")
	assert.Equal(t, "cancelled", body["status"])
	assert.Equal(t, "j3", body["jobId"])
	assert.NotContains(t, body, "error")
}

func TestStatusAndCancel_NotFound(t *testing.T) {
	f := newFixture(t, "")
	resp, body := f.do(t, http.MethodGet, "/search/nope/status", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "job not found", body["error"])

	resp, _ = f.do(t, http.MethodPost, "/cancel/nope", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCancel(t *testing.T) {
	f := newFixture(t, "")
	job, token := f.tracker.Create("q")
	require.NoError(t, f.tracker.Advance(job.ID, jobs.StageDiscovering, 10))

	resp, body := f.do(t, http.MethodPost, "/cancel/"+job.ID, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["accepted"])
	assert.Equal(t, "cancelling", body["stage"])
	assert.True(t, token.Cancelled())
}

func TestResultsSourceAndDelete(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, f.store.Save(ctx, storagetest.Document("j1", "laptops", now.Add(-time.Minute), "https://a.example/")))
	require.NoError(t, f.store.Save(ctx, storagetest.Document("j2", "phones", now, "https://b.example/")))

	resp, body := f.do(t, http.MethodGet, "/data", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data, _ := body["data"].([]any)
	require.Len(t, data, 2)
	assert.Equal(t, "phones", data[0].(map[string]any)["query"])

	_, body = f.do(t, http.MethodGet, "/data?limit=1&offset=1", "")
	data, _ = body["data"].([]any)
	require.Len(t, data, 1)
	assert.Equal(t, "laptops", data[0].(map[string]any)["query"])

	resp, _ = f.do(t, http.MethodGet, "/data?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = f.do(t, http.MethodGet, "/source_detail?url="+url.QueryEscape("https://a.example/"), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "content from https://a.example/", body["content"])

	resp, _ = f.do(t, http.MethodGet, "/source_detail?url="+url.QueryEscape("https://missing.example/"), "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = f.do(t, http.MethodDelete, "/search/laptops", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "success", body["status"])

	resp, _ = f.do(t, http.MethodDelete, "/search/laptops", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestTrailingSlashRoutes(t *testing.T) {
	f := newFixture(t, "")
	require.NoError(t, f.store.Save(context.Background(), storagetest.Document("j1", "laptops", time.Now().UTC(), "https://a.example/")))

	resp, body := f.do(t, http.MethodGet, "/data/", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["data"], 1)

	resp, body = f.do(t, http.MethodPost, "/search/", `{"query":"phones"}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.NotEmpty(t, body["jobId"])

	f.searcher.set(pipeline.Outcome{JobID: "j9", Stage: jobs.StageCompleted, Summary: "s"}, nil)
	resp, body = f.do(t, http.MethodGet, "/search/?query=laptops", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "j9", body["jobId"])
}

func TestDataEmpty(t *testing.T) {
	f := newFixture(t, "")
	_, body := f.do(t, http.MethodGet, "/data", "")
	assert.Equal(t, []any{}, body["data"])
}

func TestAskFollowUp(t *testing.T) {
	f := newFixture(t, "Widget: $19.99\nGadget: $24.99")
	doc := storagetest.Document("j1", "widgets", time.Now().UTC(), "https://shop.example/")
	doc.SiteResults[0].Content = "Widget: $19.99\nGadget: $24.99"
	require.NoError(t, f.store.Save(context.Background(), doc))

	resp, body := f.do(t, http.MethodPost, "/ask_context", `{"originalQuery":"widgets","userQuestion":"show me a chart of prices"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "chart", body["format"])
	chart, _ := body["chart"].(map[string]any)
	require.NotNil(t, chart)
	assert.Len(t, chart["points"], 2)

	resp, _ = f.do(t, http.MethodPost, "/ask_context", `{"originalQuery":"gizmos","userQuestion":"what?"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPost, "/ask_context", `{"originalQuery":"widgets"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAskFollowUp_NoContent(t *testing.T) {
	f := newFixture(t, "ok")
	doc := storagetest.Document("j1", "empty", time.Now().UTC(), "https://shop.example/")
	doc.SiteResults[0].Content = "   "
	require.NoError(t, f.store.Save(context.Background(), doc))

	_, body := f.do(t, http.MethodPost, "/ask_context", `{"originalQuery":"empty","userQuestion":"what?"}`)
	assert.Equal(t, answer.NoContentMessage, body["answer"])
	assert.Equal(t, "text", body["format"])
}

func TestDashboard(t *testing.T) {
	f := newFixture(t, "")
	require.NoError(t, f.store.Save(context.Background(), storagetest.Document("j1", "laptops", time.Now().UTC(), "https://a.example/")))

	resp, err := http.Get(f.srv.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")

	resp2, err := http.Get(f.srv.URL + "/unknown")
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp2.StatusCode)
}
