// Package storagetest holds behaviour checks shared by every storage.Backend.
package storagetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mng48301/searchai/internal/storage"
)

// Document builds a completed document for query with one site result per url.
func Document(jobID, query string, createdAt time.Time, urls ...string) *storage.SearchDocument {
	doc := &storage.SearchDocument{
		Query:     query,
		JobID:     jobID,
		Sites:     urls,
		Summary:   "summary of " + query,
		Status:    storage.StatusCompleted,
		CreatedAt: createdAt,
	}
	for _, u := range urls {
		doc.SiteResults = append(doc.SiteResults, storage.SiteResult{
			URL:       u,
			Content:   "content from " + u,
			FetchedAt: createdAt,
		})
	}
	return doc
}

// Run exercises b. The backend must start empty.
func Run(t *testing.T, b storage.Backend) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	older := Document("job-1", "laptop prices", now.Add(-2*time.Hour), "https://a.test/", "https://b.test/")
	newer := Document("job-2", "laptop prices", now.Add(-time.Hour), "https://c.test/")
	other := Document("job-3", "phone prices", now, "https://b.test/")

	for _, d := range []*storage.SearchDocument{older, newer, other} {
		if err := b.Save(ctx, d); err != nil {
			t.Fatalf("Failed to save %s: %v", d.JobID, err)
		}
	}

	all, err := b.Query(ctx, storage.Filter{})
	if err != nil {
		t.Fatalf("Failed to query all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("Expected 3 documents, got %d", len(all))
	}
	if all[0].JobID != "job-3" || all[2].JobID != "job-1" {
		t.Errorf("Expected newest first, got %s..%s", all[0].JobID, all[2].JobID)
	}

	got := all[2]
	if got.Query != older.Query || got.Summary != older.Summary || got.Status != storage.StatusCompleted {
		t.Errorf("Document fields not preserved: %+v", got)
	}
	if len(got.Sites) != 2 || got.Sites[0] != "https://a.test/" || got.Sites[1] != "https://b.test/" {
		t.Errorf("Expected ordered sites, got %v", got.Sites)
	}
	if len(got.SiteResults) != 2 || got.SiteResults[1].Content != "content from https://b.test/" {
		t.Errorf("Expected site results to round-trip, got %+v", got.SiteResults)
	}
	if got.CreatedAt.Unix() != older.CreatedAt.Unix() {
		t.Errorf("Expected CreatedAt %v, got %v", older.CreatedAt, got.CreatedAt)
	}

	byQuery, err := b.Query(ctx, storage.Filter{Query: "laptop prices"})
	if err != nil {
		t.Fatalf("Failed to query by query: %v", err)
	}
	if len(byQuery) != 2 || byQuery[0].JobID != "job-2" {
		t.Errorf("Expected job-2 then job-1 for query filter, got %d docs", len(byQuery))
	}

	byURL, err := b.Query(ctx, storage.Filter{URL: "https://b.test/"})
	if err != nil {
		t.Fatalf("Failed to query by url: %v", err)
	}
	if len(byURL) != 2 {
		t.Errorf("Expected 2 documents for url filter, got %d", len(byURL))
	}

	page, err := b.Query(ctx, storage.Filter{Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("Failed to query page: %v", err)
	}
	if len(page) != 1 || page[0].JobID != "job-2" {
		t.Errorf("Expected job-2 for limit 1 offset 1, got %v", page)
	}

	src, err := storage.FindSource(ctx, b, "https://a.test/")
	if err != nil {
		t.Fatalf("Failed to find source: %v", err)
	}
	if src.Content != "content from https://a.test/" {
		t.Errorf("Unexpected source content %q", src.Content)
	}

	n, err := b.Delete(ctx, "laptop prices")
	if err != nil {
		t.Fatalf("Failed to delete: %v", err)
	}
	if n != 2 {
		t.Errorf("Expected 2 deleted documents, got %d", n)
	}
	if _, err := storage.FindByQuery(ctx, b, "laptop prices"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
	if _, err := storage.FindSource(ctx, b, "https://a.test/"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected source gone after delete, got %v", err)
	}

	n, err = b.Delete(ctx, "laptop prices")
	if err != nil || n != 0 {
		t.Errorf("Expected no-op second delete, got %d, %v", n, err)
	}

	remaining, err := b.Query(ctx, storage.Filter{})
	if err != nil {
		t.Fatalf("Failed to query remaining: %v", err)
	}
	if len(remaining) != 1 || remaining[0].JobID != "job-3" {
		t.Errorf("Expected only job-3 to remain, got %d docs", len(remaining))
	}
}

// RunDuplicate checks that saving the same job twice reports ErrDuplicate.
func RunDuplicate(t *testing.T, b storage.Backend) {
	t.Helper()
	ctx := context.Background()
	doc := Document("dup-job", "dup", time.Now().UTC(), "https://dup.test/")
	if err := b.Save(ctx, doc); err != nil {
		t.Fatalf("Failed to save: %v", err)
	}
	if err := b.Save(ctx, doc); !errors.Is(err, storage.ErrDuplicate) {
		t.Errorf("Expected ErrDuplicate, got %v", err)
	}
}
