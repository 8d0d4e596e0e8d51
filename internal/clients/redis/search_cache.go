package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/doccache-backend/internal/domain/docs"
	"github.com/yungbote/doccache-backend/internal/platform/logger"
)

const defaultKeyPrefix = "doccache:search:"

// ExpiryGrace keeps a key alive briefly past expires_at so reads near the
// boundary still see the row and judge it expired themselves.
const ExpiryGrace = 5 * time.Minute

type SearchCacheConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// SearchCache is a search-cache store on Redis. Rows are removed by key expiry,
// so DeleteExpired has nothing to do.
type SearchCache struct {
	log    *logger.Logger
	rdb    goredis.UniversalClient
	prefix string
}

func NewSearchCache(log *logger.Logger, cfg SearchCacheConfig) (*SearchCache, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewSearchCacheWithClient(log, rdb, cfg.KeyPrefix), nil
}

func NewSearchCacheWithClient(log *logger.Logger, rdb goredis.UniversalClient, prefix string) *SearchCache {
	if strings.TrimSpace(prefix) == "" {
		prefix = defaultKeyPrefix
	}
	if log == nil {
		log = logger.Nop()
	}
	return &SearchCache{log: log.With("service", "RedisSearchCache"), rdb: rdb, prefix: prefix}
}

func (c *SearchCache) key(queryHash string) string { return c.prefix + queryHash }

func (c *SearchCache) Get(ctx context.Context, queryHash string) (*docs.SearchCacheEntry, error) {
	raw, err := c.rdb.Get(ctx, c.key(queryHash)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	var e docs.SearchCacheEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		// A corrupt value is a miss; the next Put replaces it.
		c.log.Warn("dropping undecodable search cache value", "query_hash", queryHash, "error", err)
		return nil, nil
	}
	return &e, nil
}

func (c *SearchCache) Put(ctx context.Context, entry *docs.SearchCacheEntry) error {
	if entry == nil {
		return nil
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	ttl := KeyTTL(entry.ExpiresAt, entry.CreatedAt)
	if err := c.rdb.Set(ctx, c.key(entry.QueryHash), raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (c *SearchCache) Delete(ctx context.Context, queryHash string) error {
	if err := c.rdb.Del(ctx, c.key(queryHash)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (c *SearchCache) DeleteExpired(context.Context, time.Time, int) (int64, error) {
	return 0, nil
}

func (c *SearchCache) Close() error { return c.rdb.Close() }

// KeyTTL is the Redis expiry for an entry written at now: the remaining
// lifetime plus ExpiryGrace, never less than ExpiryGrace.
func KeyTTL(expiresAt, now time.Time) time.Duration {
	d := expiresAt.Sub(now)
	if d < 0 {
		d = 0
	}
	return d + ExpiryGrace
}
