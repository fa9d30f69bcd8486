package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/mng48301/searchai/internal/pipeline"
	"github.com/mng48301/searchai/internal/storage"
)

func TestGenerateSummary(t *testing.T) {
	now := time.Now()

	docs := []*storage.SearchDocument{
		{
			Query:       "laptop prices",
			JobID:       "job-2",
			Sites:       []string{"https://www.shop.example/a", "https://news.example/b"},
			Summary:     "Laptops are cheaper this year.",
			CreatedAt:   now.Add(2 * time.Second),
			SiteResults: []storage.SiteResult{{Content: "abc"}, {Content: "défg"}},
		},
		{
			Query:     "phones",
			JobID:     "job-1",
			Sites:     []string{"https://shop.example/c"},
			Summary:   pipeline.UnavailableSummary,
			CreatedAt: now,
		},
		{
			Query:     "tablets",
			JobID:     "job-0",
			Sites:     nil,
			Summary:   pipeline.SummaryErrorPrefix + "quota",
			CreatedAt: now.Add(time.Second),
		},
	}

	summary := GenerateSummary(docs)

	if summary.TotalSearches != 3 {
		t.Errorf("expected 3 searches, got %d", summary.TotalSearches)
	}
	if summary.TotalSites != 3 {
		t.Errorf("expected 3 sites, got %d", summary.TotalSites)
	}
	if summary.TotalChars != 7 {
		t.Errorf("expected 7 chars, got %d", summary.TotalChars)
	}
	if summary.PlaceholderCount != 2 {
		t.Errorf("expected 2 placeholder summaries, got %d", summary.PlaceholderCount)
	}
	if summary.SitesByHost["shop.example"] != 2 {
		t.Errorf("expected 2 sites for shop.example, got %d", summary.SitesByHost["shop.example"])
	}
	if summary.Duration != 2*time.Second {
		t.Errorf("expected 2s duration, got %v", summary.Duration)
	}
	if len(summary.Entries) != 3 || summary.Entries[0].Query != "laptop prices" {
		t.Errorf("expected entries in input order, got %+v", summary.Entries)
	}
}

func TestGenerateSummary_Empty(t *testing.T) {
	summary := GenerateSummary(nil)
	if summary.TotalSearches != 0 || summary.SitesByHost == nil {
		t.Errorf("unexpected empty summary %+v", summary)
	}
}

func TestExcerpt(t *testing.T) {
	long := strings.Repeat("word ", 100)
	got := excerpt(long)
	if !strings.HasSuffix(got, "...") {
		t.Errorf("expected truncated excerpt, got %q", got)
	}
	if excerpt("  short \n text ") != "short text" {
		t.Errorf("expected whitespace to be collapsed")
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, Summary{TotalSearches: 5}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(buf.String(), `"totalSearches": 5`) {
		t.Errorf("expected JSON to contain totalSearches: 5")
	}
}

func TestWriteText(t *testing.T) {
	summary := Summary{
		TotalSearches: 2,
		SitesByHost:   map[string]int{"shop.example": 4},
		Entries:       []Entry{{Query: "laptop prices", Sites: []string{"a", "b"}, Excerpt: "cheap"}},
	}
	var buf bytes.Buffer
	if err := WriteText(&buf, summary); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "Searches:      2") {
		t.Errorf("expected text to contain search count")
	}
	if !strings.Contains(out, "shop.example: 4") {
		t.Errorf("expected text to contain host count")
	}
	if !strings.Contains(out, "laptop prices (2 sites)") {
		t.Errorf("expected text to list the search")
	}
}

func TestWriteHTML(t *testing.T) {
	summary := Summary{
		TotalSearches: 1,
		Entries:       []Entry{{Query: "<script>alert(1)</script>", Sites: []string{"https://shop.example/"}}},
	}
	var buf bytes.Buffer
	if err := WriteHTML(&buf, summary); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "<title>Search Results Dashboard</title>") {
		t.Errorf("expected HTML title")
	}
	if strings.Contains(out, "<script>alert(1)</script>") {
		t.Errorf("expected query to be escaped")
	}
	if !strings.Contains(out, "https://shop.example/") {
		t.Errorf("expected site link")
	}
}
