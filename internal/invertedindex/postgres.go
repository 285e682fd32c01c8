package invertedindex

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"memoryd/internal/model"
)

// postgresIndex backs the inverted index with a tsvector GENERATED ALWAYS AS
// column plus a GIN index, grounded on the teacher's postgres_search.go.
type postgresIndex struct {
	pool *pgxpool.Pool
}

// NewPostgresIndex opens a pool against dsn and ensures the search table
// exists.
func NewPostgresIndex(ctx context.Context, dsn string) (Index, error) {
	pool, err := newPgPool(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if _, err := pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS search_documents (
    id        TEXT PRIMARY KEY,
    user_id   TEXT NOT NULL DEFAULT '',
    group_id  TEXT NOT NULL DEFAULT '',
    timestamp TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    text      TEXT NOT NULL,
    source    JSONB NOT NULL DEFAULT '{}'::jsonb,
    ts        tsvector GENERATED ALWAYS AS (to_tsvector('simple', coalesce(text, ''))) STORED
);
CREATE INDEX IF NOT EXISTS search_documents_ts_idx ON search_documents USING GIN (ts);
CREATE INDEX IF NOT EXISTS search_documents_user_idx ON search_documents(user_id);
CREATE INDEX IF NOT EXISTS search_documents_group_idx ON search_documents(group_id);
`); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure search_documents table: %w", err)
	}
	return &postgresIndex{pool: pool}, nil
}

func newPgPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 8
	cfg.MinConns = 0
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 5 * time.Minute
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	cctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pool.Ping(cctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func (p *postgresIndex) Upsert(ctx context.Context, doc Doc) error {
	source, err := json.Marshal(doc.Source)
	if err != nil {
		return fmt.Errorf("marshal source: %w", err)
	}
	_, err = p.pool.Exec(ctx, `
INSERT INTO search_documents (id, user_id, group_id, timestamp, text, source)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE
SET user_id = EXCLUDED.user_id, group_id = EXCLUDED.group_id,
    timestamp = EXCLUDED.timestamp, text = EXCLUDED.text, source = EXCLUDED.source`,
		doc.ID, doc.UserID, doc.GroupID, doc.Timestamp, doc.Text, source)
	return err
}

// buildQuery joins terms with "or" so websearch_to_tsquery matches any of
// them, falling back to plainto_tsquery's simpler AND-of-words semantics
// when websearch_to_tsquery rejects the combined syntax (grounded on the
// teacher's websearch-then-plainto fallback pattern).
func buildQuery(terms []string) string {
	cleaned := make([]string, 0, len(terms))
	for _, t := range terms {
		if t = strings.TrimSpace(t); t != "" {
			cleaned = append(cleaned, t)
		}
	}
	return strings.Join(cleaned, " or ")
}

func (p *postgresIndex) MultiSearch(ctx context.Context, terms []string, filter model.Filter, size, from int) ([]Hit, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	q := buildQuery(terms)
	if q == "" {
		return nil, nil
	}
	if size <= 0 {
		size = 10
	}

	where := []string{}
	args := []any{q}
	if filter.UserID != "" && filter.UserID != model.AllSentinel {
		args = append(args, filter.UserID)
		where = append(where, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if filter.GroupID != "" && filter.GroupID != model.AllSentinel {
		args = append(args, filter.GroupID)
		where = append(where, fmt.Sprintf("group_id = $%d", len(args)))
	}
	if filter.StartTime != nil {
		args = append(args, *filter.StartTime)
		where = append(where, fmt.Sprintf("timestamp >= $%d", len(args)))
	}
	if filter.EndTime != nil {
		args = append(args, *filter.EndTime)
		where = append(where, fmt.Sprintf("timestamp <= $%d", len(args)))
	}
	extraWhere := ""
	if len(where) > 0 {
		extraWhere = " AND " + strings.Join(where, " AND ")
	}
	args = append(args, size, from)

	hits, err := p.runSearch(ctx, "websearch_to_tsquery('simple', $1)", extraWhere, args)
	if err != nil {
		hits, err = p.runSearch(ctx, "plainto_tsquery('simple', $1)", extraWhere, args)
	}
	return hits, err
}

func (p *postgresIndex) runSearch(ctx context.Context, tsQueryExpr, extraWhere string, args []any) ([]Hit, error) {
	stmt := fmt.Sprintf(`
SELECT id, ts_rank(ts, %s) AS score,
       ts_headline('simple', text, %s) AS snippet, source
FROM search_documents
WHERE ts @@ %s%s
ORDER BY score DESC
LIMIT $%d OFFSET $%d`, tsQueryExpr, tsQueryExpr, tsQueryExpr, extraWhere, len(args)-1, len(args))

	rows, err := p.pool.Query(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Hit
	for rows.Next() {
		var h Hit
		var source []byte
		if err := rows.Scan(&h.ID, &h.Score, &h.Snippet, &source); err != nil {
			return nil, err
		}
		if len(source) > 0 {
			if err := json.Unmarshal(source, &h.Source); err != nil {
				return nil, fmt.Errorf("decode source for %s: %w", h.ID, err)
			}
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// Refresh is a no-op: a GIN index over a GENERATED ALWAYS AS column updates
// synchronously with the row it belongs to, so there's no separate commit
// step to trigger.
func (p *postgresIndex) Refresh(context.Context) error { return nil }

func (p *postgresIndex) Delete(ctx context.Context, ids []string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM search_documents WHERE id = ANY($1)`, ids)
	return err
}
