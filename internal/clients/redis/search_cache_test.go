package redis

import (
	"context"
	"os"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"gorm.io/datatypes"

	"github.com/yungbote/doccache-backend/internal/domain/docs"
	"github.com/yungbote/doccache-backend/internal/platform/logger"
)

func TestKeyTTL(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	if got := KeyTTL(now.Add(time.Hour), now); got != time.Hour+ExpiryGrace {
		t.Fatalf("KeyTTL = %s", got)
	}
	if got := KeyTTL(now.Add(-time.Hour), now); got != ExpiryGrace {
		t.Fatalf("past expiry KeyTTL = %s", got)
	}
}

func TestSearchCacheRoundTrip(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set TEST_REDIS_ADDR to run redis integration tests")
	}
	rdb := goredis.NewClient(&goredis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })
	c := NewSearchCacheWithClient(logger.Nop(), rdb, "doccache:test:"+time.Now().Format("150405.000")+":")
	ctx := context.Background()

	now := time.Now().UTC()
	e := &docs.SearchCacheEntry{
		QueryHash:     "abc",
		OriginalQuery: "react hooks",
		SearchResults: datatypes.JSON(`[{"title":"x"}]`),
		ExpiresAt:     now.Add(time.Minute),
		CreatedAt:     now,
	}
	if err := c.Put(ctx, e); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := c.Get(ctx, "abc")
	if err != nil || got == nil || got.OriginalQuery != "react hooks" || !got.ExpiresAt.Equal(e.ExpiresAt) {
		t.Fatalf("Get: %+v err=%v", got, err)
	}
	if ttl := rdb.TTL(ctx, c.key("abc")).Val(); ttl <= ExpiryGrace {
		t.Fatalf("key ttl = %s", ttl)
	}
	if err := c.Delete(ctx, "abc"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if got, err := c.Get(ctx, "abc"); err != nil || got != nil {
		t.Fatalf("after Delete: %+v err=%v", got, err)
	}
}
