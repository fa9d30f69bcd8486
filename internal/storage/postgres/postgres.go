package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mng48301/searchai/internal/storage"
)

// ensure postgresBackend implements storage.Backend
var _ storage.Backend = (*postgresBackend)(nil)

type postgresBackend struct {
	pool *pgxpool.Pool
}

// New connects to dsn, applies migrations and returns a Postgres-backed
// storage.Backend.
func New(ctx context.Context, dsn string, logger *slog.Logger) (storage.Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	if err := RunMigrations(pool, logger.With("component", "migrations")); err != nil {
		pool.Close()
		return nil, err
	}

	return &postgresBackend{pool: pool}, nil
}

func (b *postgresBackend) Save(ctx context.Context, doc *storage.SearchDocument) error {
	return pgx.BeginFunc(ctx, b.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
		INSERT INTO search_documents (job_id, query, sites, summary, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
			doc.JobID, doc.Query, doc.Sites, doc.Summary, doc.Status, doc.CreatedAt,
		)
		if err != nil {
			return mapError(doc.JobID, err)
		}

		batch := &pgx.Batch{}
		for i, r := range doc.SiteResults {
			batch.Queue(`
			INSERT INTO site_results (job_id, position, url, content, fetched_at)
			VALUES ($1, $2, $3, $4, $5)`,
				doc.JobID, i, r.URL, r.Content, r.FetchedAt,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert site results: %w", err)
		}
		return nil
	})
}

func (b *postgresBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.SearchDocument, error) {
	query := `SELECT job_id, query, sites, summary, status, created_at FROM search_documents WHERE 1=1`
	args := []any{}
	paramCount := 1

	if filter.Query != "" {
		query += fmt.Sprintf(` AND query = $%d`, paramCount)
		args = append(args, filter.Query)
		paramCount++
	}
	if filter.URL != "" {
		query += fmt.Sprintf(` AND job_id IN (SELECT job_id FROM site_results WHERE url = $%d)`, paramCount)
		args = append(args, filter.URL)
		paramCount++
	}

	query += ` ORDER BY created_at DESC, job_id DESC`

	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, paramCount)
		args = append(args, filter.Limit)
		paramCount++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, paramCount)
		args = append(args, filter.Offset)
	}

	rows, err := b.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	docs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*storage.SearchDocument, error) {
		var d storage.SearchDocument
		err := row.Scan(&d.JobID, &d.Query, &d.Sites, &d.Summary, &d.Status, &d.CreatedAt)
		return &d, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan documents: %w", err)
	}
	if len(docs) == 0 {
		return docs, nil
	}

	ids := make([]string, len(docs))
	byID := make(map[string]*storage.SearchDocument, len(docs))
	for i, d := range docs {
		ids[i] = d.JobID
		d.SiteResults = []storage.SiteResult{}
		byID[d.JobID] = d
	}

	rows, err = b.pool.Query(ctx, `
	SELECT job_id, url, content, fetched_at FROM site_results
	WHERE job_id = ANY($1) ORDER BY job_id, position`, ids)
	if err != nil {
		return nil, fmt.Errorf("query site results: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var jobID string
		var r storage.SiteResult
		if err := rows.Scan(&jobID, &r.URL, &r.Content, &r.FetchedAt); err != nil {
			return nil, fmt.Errorf("scan site result: %w", err)
		}
		if d, ok := byID[jobID]; ok {
			d.SiteResults = append(d.SiteResults, r)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate site results: %w", err)
	}

	return docs, nil
}

func (b *postgresBackend) Delete(ctx context.Context, query string) (int, error) {
	// site_results rows go with their document through ON DELETE CASCADE.
	tag, err := b.pool.Exec(ctx, `DELETE FROM search_documents WHERE query = $1`, query)
	if err != nil {
		return 0, fmt.Errorf("delete documents: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (b *postgresBackend) Close() error {
	b.pool.Close()
	return nil
}

func mapError(jobID string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return fmt.Errorf("save %s: %w", jobID, storage.ErrDuplicate)
	}
	return fmt.Errorf("insert document: %w", err)
}
