package lock

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"memoryd/internal/config"
	"memoryd/internal/obslog"
)

const pollInterval = 50 * time.Millisecond

// redisLocker implements the distributed leg of Locker via SetNX, grounded
// on the teacher's workspaces.RedisGenerationCache.AcquireCommitLock. The
// TTL exists for crash recovery (a holder that dies without releasing),
// not as a duration cap — spec §5 says ingest has no outer timeout, so
// the default TTL is generous rather than tight.
type redisLocker struct {
	client  redis.UniversalClient
	ttl     time.Duration
	metrics obslog.Metrics
}

// NewRedisLocker builds a Locker backed by cfg, or returns nil, nil when
// cfg.Addr is blank (disabled). metrics may be nil: contention counts are
// then dropped rather than recorded.
func NewRedisLocker(cfg config.RedisConfig, ttlSeconds int, metrics obslog.Metrics) (Locker, error) {
	if cfg.Addr == "" {
		return nil, nil
	}
	opts := &redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}
	if cfg.TLSInsecureSkipVerify {
		opts.TLSConfig = &tls.Config{InsecureSkipVerify: true}
	}
	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}
	ttl := time.Duration(ttlSeconds) * time.Second
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if metrics == nil {
		metrics = obslog.NoopMetrics{}
	}
	return &redisLocker{client: client, ttl: ttl, metrics: metrics}, nil
}

func (l *redisLocker) key(name string) string { return "memoryd:lock:" + name }

func (l *redisLocker) Acquire(ctx context.Context, name string) (func(context.Context), error) {
	token := uuid.NewString()
	key := l.key(name)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			return func(releaseCtx context.Context) { l.release(releaseCtx, key, token) }, nil
		}
		l.metrics.IncCounter("lock_contention_total", map[string]string{"name": name})
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// release deletes key only if it still holds this token, avoiding deleting
// a lock some other holder acquired after ours expired. This is a
// get-then-delete check rather than an atomic script, so it is advisory
// against the rare case of a TTL expiry racing a late release — acceptable
// since the lock's purpose is avoiding concurrent writers, not correctness
// under crash recovery down to the microsecond.
func (l *redisLocker) release(ctx context.Context, key, token string) {
	cur, err := l.client.Get(ctx, key).Result()
	if err != nil {
		return
	}
	if cur == token {
		l.client.Del(ctx, key)
	}
}
