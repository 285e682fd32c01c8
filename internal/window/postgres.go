package window

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"memoryd/internal/model"
)

// postgresRepository stores window entries with a BIGSERIAL sequence column
// that exists purely to break create_time ties by insertion order, grounded
// on the teacher's chat_messages(created_at ASC, id ASC) ordering.
type postgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository opens a pool against dsn and ensures the window
// table exists.
func NewPostgresRepository(ctx context.Context, dsn string) (Repository, error) {
	pool, err := newPgPool(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if _, err := pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS window_entries (
    seq         BIGSERIAL PRIMARY KEY,
    group_id    TEXT NOT NULL DEFAULT '',
    message_id  TEXT NOT NULL,
    sender      TEXT NOT NULL,
    sender_name TEXT NOT NULL DEFAULT '',
    role        TEXT NOT NULL,
    content     TEXT NOT NULL,
    create_time TIMESTAMPTZ NOT NULL,
    refer_list  TEXT[] NOT NULL DEFAULT '{}',
    sync_status SMALLINT NOT NULL DEFAULT -1,
    UNIQUE (group_id, message_id)
);
CREATE INDEX IF NOT EXISTS window_entries_group_time_idx ON window_entries(group_id, create_time, seq);
`); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure window_entries table: %w", err)
	}
	return &postgresRepository{pool: pool}, nil
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

func (r *postgresRepository) Append(ctx context.Context, msg model.RawMessage) error {
	_, err := r.pool.Exec(ctx, `
INSERT INTO window_entries (group_id, message_id, sender, sender_name, role, content, create_time, refer_list, sync_status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (group_id, message_id) DO NOTHING`,
		msg.GroupID, msg.MessageID, msg.Sender, msg.SenderName, msg.Role, msg.Content, msg.CreateTime, msg.ReferList, model.SyncStatusLog)
	return err
}

func (r *postgresRepository) Range(ctx context.Context, groupID string, start, end time.Time) ([]model.WindowEntry, error) {
	rows, err := r.pool.Query(ctx, `
SELECT group_id, message_id, sender, sender_name, role, content, create_time, refer_list, sync_status
FROM window_entries
WHERE group_id = $1 AND create_time >= $2 AND create_time <= $3
ORDER BY create_time ASC, seq ASC
LIMIT $4`, groupID, start, end, MaxRangeSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.WindowEntry
	for rows.Next() {
		var e model.WindowEntry
		var status int
		if err := rows.Scan(&e.GroupID, &e.MessageID, &e.Sender, &e.SenderName, &e.Role, &e.Content, &e.CreateTime, &e.ReferList, &status); err != nil {
			return nil, err
		}
		e.SyncStatus = model.SyncStatus(status)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *postgresRepository) SetStatus(ctx context.Context, groupID string, messageIDs []string, status model.SyncStatus) error {
	if len(messageIDs) == 0 {
		return nil
	}
	_, err := r.pool.Exec(ctx, `
UPDATE window_entries
SET sync_status = $3
WHERE group_id = $1 AND message_id = ANY($2) AND sync_status < $3`,
		groupID, messageIDs, int(status))
	return err
}
