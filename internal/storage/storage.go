// Package storage defines the persisted search document model and the
// backends that store it.
package storage

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"
)

var (
	// ErrNotFound is returned when no stored document matches a lookup.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a document for the same job already exists.
	ErrDuplicate = errors.New("document already exists")
)

// StatusCompleted is the only status persisted documents carry.
const StatusCompleted = "completed"

// SiteResult is the extracted content of one successfully scraped page.
type SiteResult struct {
	URL       string    `json:"url" bson:"url"`
	Content   string    `json:"content" bson:"content"`
	FetchedAt time.Time `json:"fetchedAt" bson:"fetchedAt"`
}

// SearchDocument is the result of one completed search job. It is never
// modified after it is saved.
type SearchDocument struct {
	Query       string       `json:"query" bson:"query"`
	JobID       string       `json:"jobId" bson:"jobId"`
	Sites       []string     `json:"sites" bson:"sites"`
	Summary     string       `json:"summary" bson:"summary"`
	Status      string       `json:"status" bson:"status"`
	CreatedAt   time.Time    `json:"createdAt" bson:"createdAt"`
	SiteResults []SiteResult `json:"siteResults" bson:"siteResults"`
}

// Source returns the stored result for url.
func (d *SearchDocument) Source(url string) (SiteResult, bool) {
	i := slices.IndexFunc(d.SiteResults, func(r SiteResult) bool { return r.URL == url })
	if i < 0 {
		return SiteResult{}, false
	}
	return d.SiteResults[i], true
}

// Filter selects stored documents. Empty fields match everything.
type Filter struct {
	Query string
	// URL matches documents holding a site result for this URL.
	URL    string
	Limit  int
	Offset int
}

// Backend defines the interface for storing and querying search documents.
// Query returns newest documents first.
type Backend interface {
	Save(ctx context.Context, doc *SearchDocument) error
	Query(ctx context.Context, filter Filter) ([]*SearchDocument, error)
	// Delete removes every document stored for query and reports how many
	// were removed.
	Delete(ctx context.Context, query string) (int, error)
	Close() error
}

// FindByQuery returns the newest document stored for query.
func FindByQuery(ctx context.Context, b Backend, query string) (*SearchDocument, error) {
	docs, err := b.Query(ctx, Filter{Query: query, Limit: 1})
	if err != nil {
		return nil, fmt.Errorf("find %q: %w", query, err)
	}
	if len(docs) == 0 {
		return nil, ErrNotFound
	}
	return docs[0], nil
}

// FindSource returns the stored content for url from the newest document
// that scraped it.
func FindSource(ctx context.Context, b Backend, url string) (SiteResult, error) {
	docs, err := b.Query(ctx, Filter{URL: url, Limit: 1})
	if err != nil {
		return SiteResult{}, fmt.Errorf("find source %q: %w", url, err)
	}
	if len(docs) == 0 {
		return SiteResult{}, ErrNotFound
	}
	res, ok := docs[0].Source(url)
	if !ok {
		return SiteResult{}, ErrNotFound
	}
	return res, nil
}
