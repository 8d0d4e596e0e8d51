package searchcache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/facebookgo/clock"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/datatypes"

	"github.com/yungbote/doccache-backend/internal/domain/docs"
	apperrors "github.com/yungbote/doccache-backend/internal/pkg/errors"
	"github.com/yungbote/doccache-backend/internal/platform/logger"
)

// Store persists cache entries by fingerprint. Get returns (nil, nil) for an
// absent key; Put replaces whatever is stored under the same fingerprint.
type Store interface {
	Get(ctx context.Context, queryHash string) (*docs.SearchCacheEntry, error)
	Put(ctx context.Context, entry *docs.SearchCacheEntry) error
	Delete(ctx context.Context, queryHash string) error
	// DeleteExpired removes at most limit rows with expires_at <= now.
	DeleteExpired(ctx context.Context, now time.Time, limit int) (int64, error)
}

type QueryCache struct {
	store      Store
	clock      clock.Clock
	defaultTTL time.Duration
	log        *logger.Logger
}

func New(store Store, clk clock.Clock, defaultTTL time.Duration, baseLog *logger.Logger) *QueryCache {
	if clk == nil {
		clk = clock.New()
	}
	if defaultTTL <= 0 {
		defaultTTL = time.Hour
	}
	if baseLog == nil {
		baseLog = logger.Nop()
	}
	return &QueryCache{
		store:      store,
		clock:      clk,
		defaultTTL: defaultTTL,
		log:        baseLog.With("module", "QueryCache"),
	}
}

func (c *QueryCache) DefaultTTL() time.Duration { return c.defaultTTL }

// Lookup returns the live entry for (query, hint). An entry past its expiry is a
// miss but stays in the store until a sweep removes it.
func (c *QueryCache) Lookup(ctx context.Context, query, technologyHint string) (*docs.SearchCacheEntry, bool, error) {
	if strings.TrimSpace(query) == "" {
		return nil, false, apperrors.Invalid("query", "", "must not be empty")
	}
	key := Fingerprint(query, technologyHint)

	ctx, span := otel.Tracer("doccache").Start(ctx, "searchcache.lookup")
	defer span.End()
	span.SetAttributes(attribute.String("query_hash", key))

	entry, err := c.store.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	now := c.clock.Now().UTC()
	if entry.Expired(now) {
		if entry != nil {
			c.log.WithContext(ctx).Debug("search cache entry expired", "query_hash", key, "expires_at", entry.ExpiresAt)
		}
		span.SetAttributes(attribute.Bool("hit", false))
		return nil, false, nil
	}
	span.SetAttributes(attribute.Bool("hit", true))
	return entry, true, nil
}

// Store overwrites the entry for (query, hint). ttl <= 0 uses the cache default.
func (c *QueryCache) Store(ctx context.Context, query, technologyHint string, results any, ttl time.Duration) (*docs.SearchCacheEntry, error) {
	if strings.TrimSpace(query) == "" {
		return nil, apperrors.Invalid("query", "", "must not be empty")
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	payload, err := encodeResults(results)
	if err != nil {
		return nil, apperrors.Invalid("results", "", err.Error())
	}
	now := c.clock.Now().UTC()
	entry := &docs.SearchCacheEntry{
		QueryHash:      Fingerprint(query, technologyHint),
		OriginalQuery:  query,
		SearchResults:  payload,
		TechnologyHint: strings.ToLower(strings.TrimSpace(technologyHint)),
		ExpiresAt:      now.Add(ttl),
		CreatedAt:      now,
	}
	if err := c.store.Put(ctx, entry); err != nil {
		return nil, err
	}
	c.log.WithContext(ctx).Debug("search cache stored", "query_hash", entry.QueryHash, "original_query", query, "ttl", ttl)
	return entry, nil
}

func (c *QueryCache) Invalidate(ctx context.Context, query, technologyHint string) error {
	if strings.TrimSpace(query) == "" {
		return apperrors.Invalid("query", "", "must not be empty")
	}
	return c.store.Delete(ctx, Fingerprint(query, technologyHint))
}

// DeleteExpired sweeps expired rows in batches of batchSize until none remain or
// ctx is done. Returns the number of rows removed.
func (c *QueryCache) DeleteExpired(ctx context.Context, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 500
	}
	now := c.clock.Now().UTC()
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := c.store.DeleteExpired(ctx, now, batchSize)
		total += n
		if err != nil {
			return total, err
		}
		if n < int64(batchSize) {
			return total, nil
		}
	}
}

func encodeResults(results any) (datatypes.JSON, error) {
	switch v := results.(type) {
	case nil:
		return datatypes.JSON("[]"), nil
	case datatypes.JSON:
		if len(v) == 0 {
			return datatypes.JSON("[]"), nil
		}
		if !json.Valid(v) {
			return nil, fmt.Errorf("results are not valid JSON")
		}
		return v, nil
	case json.RawMessage:
		if len(v) == 0 {
			return datatypes.JSON("[]"), nil
		}
		if !json.Valid(v) {
			return nil, fmt.Errorf("results are not valid JSON")
		}
		return datatypes.JSON(v), nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return datatypes.JSON(b), nil
	}
}
