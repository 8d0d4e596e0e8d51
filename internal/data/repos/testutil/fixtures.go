package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/yungbote/doccache-backend/internal/domain/docs"
)

// SeedDocument writes doc and n chunks directly, bypassing the repo's dedup path.
func SeedDocument(tb testing.TB, ctx context.Context, tx *gorm.DB, doc *types.Document, n int) *types.Document {
	tb.Helper()
	if err := tx.WithContext(ctx).Create(doc).Error; err != nil {
		tb.Fatalf("seed document: %v", err)
	}
	for i := 0; i < n; i++ {
		c := &types.DocumentChunk{
			ID:         uuid.New(),
			DocumentID: doc.ID,
			Workspace:  doc.Workspace,
			Position:   i,
			Content:    "chunk",
			CreatedAt:  doc.CreatedAt,
		}
		if err := tx.WithContext(ctx).Create(c).Error; err != nil {
			tb.Fatalf("seed chunk: %v", err)
		}
	}
	return doc
}

func SeedCacheEntry(tb testing.TB, ctx context.Context, tx *gorm.DB, queryHash string, createdAt, expiresAt time.Time) *types.SearchCacheEntry {
	tb.Helper()
	e := &types.SearchCacheEntry{
		QueryHash:     queryHash,
		OriginalQuery: "q " + queryHash,
		SearchResults: datatypes.JSON(`[]`),
		ExpiresAt:     expiresAt,
		CreatedAt:     createdAt,
	}
	if err := tx.WithContext(ctx).Create(e).Error; err != nil {
		tb.Fatalf("seed cache entry: %v", err)
	}
	return e
}
