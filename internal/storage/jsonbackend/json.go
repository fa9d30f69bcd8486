package jsonbackend

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"sync"

	"github.com/mng48301/searchai/internal/storage"
)

// ensure jsonBackend implements storage.Backend
var _ storage.Backend = (*jsonBackend)(nil)

type jsonBackend struct {
	mu   sync.Mutex
	file *os.File
}

// New creates a new NDJSON-backed storage.Backend.
func New(filePath string) (storage.Backend, error) {
	f, err := os.OpenFile(filePath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filePath, err)
	}
	return &jsonBackend{file: f}, nil
}

func (b *jsonBackend) Save(ctx context.Context, doc *storage.SearchDocument) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	docs, err := b.readAll()
	if err != nil {
		return err
	}
	if slices.ContainsFunc(docs, func(d *storage.SearchDocument) bool { return d.JobID == doc.JobID }) {
		return fmt.Errorf("save %s: %w", doc.JobID, storage.ErrDuplicate)
	}

	if _, err := b.file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("seek: %w", err)
	}
	if _, err := b.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write document: %w", err)
	}
	return nil
}

func (b *jsonBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.SearchDocument, error) {
	b.mu.Lock()
	docs, err := b.readAll()
	b.mu.Unlock()
	if err != nil {
		return nil, err
	}

	filtered := docs[:0]
	for _, d := range docs {
		if filter.Query != "" && d.Query != filter.Query {
			continue
		}
		if filter.URL != "" {
			if _, ok := d.Source(filter.URL); !ok {
				continue
			}
		}
		filtered = append(filtered, d)
	}

	// Newest first; later lines win ties.
	slices.Reverse(filtered)
	slices.SortStableFunc(filtered, func(a, b *storage.SearchDocument) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(filtered) {
			return []*storage.SearchDocument{}, nil
		}
		filtered = filtered[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(filtered) {
		filtered = filtered[:filter.Limit]
	}
	return filtered, nil
}

// Delete rewrites the file without the documents stored for query.
func (b *jsonBackend) Delete(ctx context.Context, query string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	docs, err := b.readAll()
	if err != nil {
		return 0, err
	}

	var buf bytes.Buffer
	removed := 0
	for _, d := range docs {
		if d.Query == query {
			removed++
			continue
		}
		data, err := json.Marshal(d)
		if err != nil {
			return 0, fmt.Errorf("encode document: %w", err)
		}
		buf.Write(data)
		buf.WriteByte('\n')
	}
	if removed == 0 {
		return 0, nil
	}

	if err := b.file.Truncate(0); err != nil {
		return 0, fmt.Errorf("truncate: %w", err)
	}
	if _, err := b.file.WriteAt(buf.Bytes(), 0); err != nil {
		return 0, fmt.Errorf("rewrite: %w", err)
	}
	return removed, nil
}

func (b *jsonBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.file.Close()
}

// readAll must be called with the lock held.
func (b *jsonBackend) readAll() ([]*storage.SearchDocument, error) {
	if _, err := b.file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek: %w", err)
	}

	scanner := bufio.NewScanner(b.file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16<<20)

	var docs []*storage.SearchDocument
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var d storage.SearchDocument
		if err := json.Unmarshal(line, &d); err != nil {
			return nil, fmt.Errorf("decode document: %w", err)
		}
		docs = append(docs, &d)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read documents: %w", err)
	}
	return docs, nil
}
