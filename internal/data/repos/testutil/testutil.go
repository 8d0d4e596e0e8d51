package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/doccache-backend/internal/data/db"
	types "github.com/yungbote/doccache-backend/internal/domain/docs"
	"github.com/yungbote/doccache-backend/internal/platform/logger"
)

var (
	logOnce sync.Once
	logg    *logger.Logger
	logErr  error
)

func Logger(tb testing.TB) *logger.Logger {
	tb.Helper()
	logOnce.Do(func() {
		logg, logErr = logger.New("test")
	})
	if logErr != nil {
		tb.Fatalf("failed to init logger: %v", logErr)
	}
	return logg
}

// DB returns a fresh, migrated in-memory database private to the calling test.
func DB(tb testing.TB) *gorm.DB {
	tb.Helper()
	gdb, err := db.OpenSQLite(":memory:", nil, true)
	if err != nil {
		tb.Fatalf("failed to open test db: %v", err)
	}
	if err := db.AutoMigrateAll(gdb); err != nil {
		tb.Fatalf("failed to migrate test db: %v", err)
	}
	tb.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return gdb
}

func Tx(tb testing.TB, db *gorm.DB) *gorm.DB {
	tb.Helper()
	tx := db.Begin()
	if tx.Error != nil {
		tb.Fatalf("begin tx: %v", tx.Error)
	}
	tb.Cleanup(func() {
		_ = tx.Rollback().Error
	})
	return tx
}

// Document builds a minimal valid document. expiresIn == nil leaves expires_at unset.
func Document(workspace, technology, body, provider string, now time.Time, expiresIn *time.Duration) *types.Document {
	d := &types.Document{
		ID:               uuid.New(),
		Workspace:        workspace,
		Title:            technology + " doc",
		Technology:       technology,
		ContentHash:      uuid.NewString(),
		Content:          body,
		ProcessingStatus: types.StatusCompleted,
		QualityScore:     types.NeutralQuality,
		Metadata:         datatypes.JSON(`{}`),
		SourceProvider:   provider,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if expiresIn != nil {
		at := now.Add(*expiresIn)
		d.ExpiresAt = &at
	}
	return d
}

func Dur(d time.Duration) *time.Duration { return &d }

func Chunks(n int) []*types.DocumentChunk {
	out := make([]*types.DocumentChunk, n)
	for i := range out {
		out[i] = &types.DocumentChunk{Position: i, Content: "chunk"}
	}
	return out
}
