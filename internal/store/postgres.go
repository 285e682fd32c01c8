package store

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"memoryd/internal/model"
)

// postgresBackend stores every collection's documents in one generic JSONB
// table, with the common filterable columns (user_id, group_id, timestamp)
// lifted into real columns so filtering/sorting doesn't require a JSONB
// index per entity type.
type postgresBackend struct {
	pool *pgxpool.Pool
}

// NewPostgresBackend opens a pool against dsn and ensures the documents
// table exists. Pool tuning mirrors the teacher's factory.go newPgPool.
func NewPostgresBackend(ctx context.Context, dsn string) (Backend, error) {
	pool, err := newPgPool(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if _, err := pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS documents (
    collection TEXT NOT NULL,
    id         TEXT NOT NULL,
    user_id    TEXT NOT NULL DEFAULT '',
    group_id   TEXT NOT NULL DEFAULT '',
    timestamp  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    doc        JSONB NOT NULL,
    deleted    BOOLEAN NOT NULL DEFAULT FALSE,
    PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS documents_collection_user_idx ON documents(collection, user_id);
CREATE INDEX IF NOT EXISTS documents_collection_group_idx ON documents(collection, group_id);
CREATE INDEX IF NOT EXISTS documents_collection_ts_idx ON documents(collection, timestamp);
`); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure documents table: %w", err)
	}
	return &postgresBackend{pool: pool}, nil
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

func (b *postgresBackend) GetByID(ctx context.Context, collection, id string) (record, bool, error) {
	var r record
	err := b.pool.QueryRow(ctx, `
SELECT id, user_id, group_id, timestamp, doc, deleted
FROM documents WHERE collection = $1 AND id = $2 AND deleted = FALSE`, collection, id,
	).Scan(&r.ID, &r.UserID, &r.GroupID, &r.Timestamp, &r.Doc, &r.Deleted)
	if err == pgx.ErrNoRows {
		return record{}, false, nil
	}
	if err != nil {
		return record{}, false, err
	}
	return r, true, nil
}

// jsonFieldName allows only simple identifiers through to a JSONB ->> key
// lookup; Postgres has no parameter placeholder for identifiers/keys, so
// this is the injection guard for GetByFieldEq's dynamic field argument.
var jsonFieldName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func (b *postgresBackend) GetByFieldEq(ctx context.Context, collection, field string, value any) ([]record, error) {
	if !jsonFieldName.MatchString(field) {
		return nil, fmt.Errorf("invalid field name: %q", field)
	}
	query := fmt.Sprintf(`
SELECT id, user_id, group_id, timestamp, doc, deleted
FROM documents WHERE collection = $1 AND deleted = FALSE AND doc->>'%s' = $2`, field)
	rows, err := b.pool.Query(ctx, query, collection, fmt.Sprintf("%v", value))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []record
	for rows.Next() {
		var r record
		if err := rows.Scan(&r.ID, &r.UserID, &r.GroupID, &r.Timestamp, &r.Doc, &r.Deleted); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (b *postgresBackend) UpsertByID(ctx context.Context, collection string, r record) error {
	_, err := b.pool.Exec(ctx, `
INSERT INTO documents (collection, id, user_id, group_id, timestamp, doc, deleted)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (collection, id) DO UPDATE
SET user_id = EXCLUDED.user_id, group_id = EXCLUDED.group_id,
    timestamp = EXCLUDED.timestamp, doc = EXCLUDED.doc, deleted = EXCLUDED.deleted`,
		collection, r.ID, r.UserID, r.GroupID, r.Timestamp, r.Doc, r.Deleted)
	return err
}

func (b *postgresBackend) FindManyPaged(ctx context.Context, collection string, filter model.Filter, sort SortSpec, limit, offset int) ([]record, int, error) {
	where := `collection = $1 AND deleted = FALSE`
	args := []any{collection}
	if filter.UserID != "" && filter.UserID != model.AllSentinel {
		args = append(args, filter.UserID)
		where += fmt.Sprintf(" AND user_id = $%d", len(args))
	}
	if filter.GroupID != "" && filter.GroupID != model.AllSentinel {
		args = append(args, filter.GroupID)
		where += fmt.Sprintf(" AND group_id = $%d", len(args))
	}
	if filter.StartTime != nil {
		args = append(args, *filter.StartTime)
		where += fmt.Sprintf(" AND timestamp >= $%d", len(args))
	}
	if filter.EndTime != nil {
		args = append(args, *filter.EndTime)
		where += fmt.Sprintf(" AND timestamp <= $%d", len(args))
	}

	var total int
	if err := b.pool.QueryRow(ctx, `SELECT count(*) FROM documents WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	orderCol := "timestamp"
	if sort.Field == "id" {
		orderCol = "id"
	}
	orderDir := "ASC"
	if sort.Desc {
		orderDir = "DESC"
	}
	if limit <= 0 {
		limit = total
	}
	args = append(args, limit, offset)
	query := fmt.Sprintf(`SELECT id, user_id, group_id, timestamp, doc, deleted FROM documents
WHERE %s ORDER BY %s %s LIMIT $%d OFFSET $%d`, where, orderCol, orderDir, len(args)-1, len(args))

	rows, err := b.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []record
	for rows.Next() {
		var r record
		if err := rows.Scan(&r.ID, &r.UserID, &r.GroupID, &r.Timestamp, &r.Doc, &r.Deleted); err != nil {
			return nil, 0, err
		}
		out = append(out, r)
	}
	return out, total, rows.Err()
}

func (b *postgresBackend) SoftDelete(ctx context.Context, collection string, ids []string) error {
	_, err := b.pool.Exec(ctx, `UPDATE documents SET deleted = TRUE WHERE collection = $1 AND id = ANY($2)`, collection, ids)
	return err
}
