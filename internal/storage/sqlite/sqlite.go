package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/mng48301/searchai/internal/storage"
)

// ensure sqliteBackend implements storage.Backend
var _ storage.Backend = (*sqliteBackend)(nil)

type sqliteBackend struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS search_documents (
	job_id TEXT PRIMARY KEY,
	query TEXT NOT NULL,
	sites TEXT NOT NULL,
	summary TEXT NOT NULL,
	status TEXT NOT NULL,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_search_documents_query ON search_documents(query);
CREATE TABLE IF NOT EXISTS site_results (
	job_id TEXT NOT NULL,
	position INTEGER NOT NULL,
	url TEXT NOT NULL,
	content TEXT NOT NULL,
	fetched_at DATETIME NOT NULL,
	PRIMARY KEY (job_id, position)
);
CREATE INDEX IF NOT EXISTS idx_site_results_url ON site_results(url);
`

// New creates a new SQLite-backed storage.Backend.
func New(dsn string) (storage.Backend, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection serializes writers and keeps in-memory DSNs alive.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &sqliteBackend{db: db}, nil
}

func (b *sqliteBackend) Save(ctx context.Context, doc *storage.SearchDocument) error {
	sitesJSON, err := json.Marshal(doc.Sites)
	if err != nil {
		return fmt.Errorf("encode sites: %w", err)
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
	INSERT INTO search_documents (job_id, query, sites, summary, status, created_at)
	VALUES (?, ?, ?, ?, ?, ?)`,
		doc.JobID, doc.Query, string(sitesJSON), doc.Summary, doc.Status, doc.CreatedAt.UTC(),
	)
	if err != nil {
		if isConstraint(err) {
			return fmt.Errorf("save %s: %w", doc.JobID, storage.ErrDuplicate)
		}
		return fmt.Errorf("insert document: %w", err)
	}

	for i, r := range doc.SiteResults {
		_, err = tx.ExecContext(ctx, `
		INSERT INTO site_results (job_id, position, url, content, fetched_at)
		VALUES (?, ?, ?, ?, ?)`,
			doc.JobID, i, r.URL, r.Content, r.FetchedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("insert site result: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (b *sqliteBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.SearchDocument, error) {
	query := `SELECT job_id, query, sites, summary, status, created_at FROM search_documents WHERE 1=1`
	args := []any{}

	if filter.Query != "" {
		query += ` AND query = ?`
		args = append(args, filter.Query)
	}
	if filter.URL != "" {
		query += ` AND job_id IN (SELECT job_id FROM site_results WHERE url = ?)`
		args = append(args, filter.URL)
	}

	query += ` ORDER BY created_at DESC, rowid DESC`

	if filter.Limit > 0 || filter.Offset > 0 {
		limit := filter.Limit
		if limit <= 0 {
			limit = -1
		}
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, filter.Offset)
	}

	docs, err := b.queryDocuments(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	// Rows must be closed before further queries on the single connection.
	for _, d := range docs {
		if d.SiteResults, err = b.siteResults(ctx, d.JobID); err != nil {
			return nil, err
		}
	}
	return docs, nil
}

func (b *sqliteBackend) queryDocuments(ctx context.Context, query string, args ...any) ([]*storage.SearchDocument, error) {
	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	var docs []*storage.SearchDocument
	for rows.Next() {
		var d storage.SearchDocument
		var sitesJSON string
		if err := rows.Scan(&d.JobID, &d.Query, &sitesJSON, &d.Summary, &d.Status, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		if err := json.Unmarshal([]byte(sitesJSON), &d.Sites); err != nil {
			return nil, fmt.Errorf("decode sites: %w", err)
		}
		docs = append(docs, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return docs, nil
}

func (b *sqliteBackend) siteResults(ctx context.Context, jobID string) ([]storage.SiteResult, error) {
	rows, err := b.db.QueryContext(ctx,
		`SELECT url, content, fetched_at FROM site_results WHERE job_id = ? ORDER BY position`, jobID)
	if err != nil {
		return nil, fmt.Errorf("query site results: %w", err)
	}
	defer rows.Close()

	results := []storage.SiteResult{}
	for rows.Next() {
		var r storage.SiteResult
		var fetchedAt time.Time
		if err := rows.Scan(&r.URL, &r.Content, &fetchedAt); err != nil {
			return nil, fmt.Errorf("scan site result: %w", err)
		}
		r.FetchedAt = fetchedAt
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate site results: %w", err)
	}
	return results, nil
}

func (b *sqliteBackend) Delete(ctx context.Context, query string) (int, error) {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM site_results WHERE job_id IN (SELECT job_id FROM search_documents WHERE query = ?)`, query); err != nil {
		return 0, fmt.Errorf("delete site results: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM search_documents WHERE query = ?`, query)
	if err != nil {
		return 0, fmt.Errorf("delete documents: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return int(n), nil
}

func (b *sqliteBackend) Close() error {
	return b.db.Close()
}

func isConstraint(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY || se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
