package summarizer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mng48301/searchai/internal/storage"
)

func modelServer(t *testing.T, status int, body string) (*httptest.Server, *generateRequest) {
	t.Helper()
	var got generateRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/test-model:generateContent", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("x-goog-api-key"))
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(ts.Close)
	return ts, &got
}

func newClient(t *testing.T, endpoint string) *Client {
	t.Helper()
	c, err := New(Config{Endpoint: endpoint, APIKey: "secret", Model: "test-model"}, nil)
	require.NoError(t, err)
	return c
}

func TestClient_Summarize(t *testing.T) {
	ts, req := modelServer(t, http.StatusOK,
		`{"candidates":[{"content":{"parts":[{"text":"## Overview\n**Laptops** cost $999."}]}}]}`)
	c := newClient(t, ts.URL)

	long := strings.Repeat("x", 5000)
	summary, err := c.Summarize(context.Background(), "laptop prices", []storage.SiteResult{
		{URL: "https://a.test/", Content: long},
	})
	require.NoError(t, err)
	assert.Equal(t, "Overview\nLaptops cost $999.", summary)

	require.Len(t, req.Contents, 1)
	prompt := req.Contents[0].Parts[0].Text
	assert.Contains(t, prompt, `"laptop prices"`)
	assert.Contains(t, prompt, "Source 1 (https://a.test/)")
	assert.NotContains(t, prompt, strings.Repeat("x", 2001))
}

func TestClient_RateLimited(t *testing.T) {
	ts, _ := modelServer(t, http.StatusTooManyRequests, `{"error":{"code":429}}`)
	_, err := newClient(t, ts.URL).Answer(context.Background(), "q", "ctx")
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestClient_EmptyResponse(t *testing.T) {
	ts, _ := modelServer(t, http.StatusOK, `{"candidates":[],"promptFeedback":{"blockReason":"SAFETY"}}`)
	_, err := newClient(t, ts.URL).Answer(context.Background(), "q", "ctx")
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestClient_ServerError(t *testing.T) {
	ts, _ := modelServer(t, http.StatusInternalServerError, `boom`)
	_, err := newClient(t, ts.URL).Answer(context.Background(), "q", "ctx")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestClient_Answer(t *testing.T) {
	ts, req := modelServer(t, http.StatusOK, `{"candidates":[{"content":{"parts":[{"text":"Widget: $19.99"}]}}]}`)
	answer, err := newClient(t, ts.URL).Answer(context.Background(), "List prices.", "Widget costs 19.99")
	require.NoError(t, err)
	assert.Equal(t, "Widget: $19.99", answer)
	assert.True(t, strings.HasPrefix(req.Contents[0].Parts[0].Text, "List prices.\n\nContent:\nWidget costs 19.99"))
}

func TestClient_CustomTextPath(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"output":{"text":"hello"}}`))
	}))
	defer ts.Close()

	c, err := New(Config{Endpoint: ts.URL, APIKey: "k", Model: "m", TextPath: "output.text"}, nil)
	require.NoError(t, err)
	answer, err := c.Answer(context.Background(), "i", "c")
	require.NoError(t, err)
	assert.Equal(t, "hello", answer)
}

func TestNew_InvalidTextPath(t *testing.T) {
	_, err := New(Config{TextPath: "candidates[0"}, nil)
	assert.Error(t, err)
}

func TestClient_NotConfigured(t *testing.T) {
	c, err := New(Config{}, nil)
	require.NoError(t, err)
	_, err = c.Answer(context.Background(), "i", "c")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "héll", truncate("héllo", 4))
	assert.Equal(t, "abc", truncate("abc", 10))
}
