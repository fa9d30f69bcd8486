package httpclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestClient_Timeout(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	client, err := New(Config{Timeout: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := client.Get(context.Background(), ts.URL, nil); err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestClient_Redirects(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/1":
			http.Redirect(w, r, "/2", http.StatusFound)
		case "/2":
			http.Redirect(w, r, "/3", http.StatusFound)
		default:
			_, _ = w.Write([]byte("done"))
		}
	}))
	defer ts.Close()

	limited, _ := New(Config{MaxRedirects: 1})
	if _, err := limited.Get(context.Background(), ts.URL+"/1", nil); err == nil {
		t.Errorf("expected error after exceeding redirect limit")
	}

	following, _ := New(Config{})
	resp, err := following.Get(context.Background(), ts.URL+"/1", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(resp.Body) != "done" {
		t.Errorf("expected body 'done', got %q", resp.Body)
	}

	none, _ := New(Config{MaxRedirects: -1})
	resp, err = none.Get(context.Background(), ts.URL+"/1", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusFound {
		t.Errorf("expected 302 when redirects are disabled, got %d", resp.StatusCode)
	}
}

func TestClient_BodyLimit(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("a", 100)))
	}))
	defer ts.Close()

	client, _ := New(Config{MaxBodyBytes: 10})
	resp, err := client.Get(context.Background(), ts.URL, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Body) != 10 || !resp.Truncated {
		t.Errorf("expected 10 truncated bytes, got %d (truncated=%v)", len(resp.Body), resp.Truncated)
	}
}

func TestClient_PostJSON(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("expected JSON content type, got %q", r.Header.Get("Content-Type"))
		}
		if r.Header.Get("X-Key") != "secret" {
			t.Errorf("expected custom header to be forwarded")
		}
		var in map[string]string
		_ = json.NewDecoder(r.Body).Decode(&in)
		_ = json.NewEncoder(w).Encode(map[string]string{"echo": in["msg"]})
	}))
	defer ts.Close()

	client, _ := New(Config{})
	resp, err := client.PostJSON(context.Background(), ts.URL, map[string]string{"msg": "hi"}, http.Header{"X-Key": {"secret"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(string(resp.Body), `"echo":"hi"`) {
		t.Errorf("unexpected body %s", resp.Body)
	}
}

func TestClient_CookieJar(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/set" {
			http.SetCookie(w, &http.Cookie{Name: "session", Value: "abc"})
			return
		}
		c, err := r.Cookie("session")
		if err != nil || c.Value != "abc" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	client, err := New(Config{UseCookieJar: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := client.Get(context.Background(), ts.URL+"/set", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp, err := client.Get(context.Background(), ts.URL+"/check", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected cookie to persist, got status %d", resp.StatusCode)
	}
}
