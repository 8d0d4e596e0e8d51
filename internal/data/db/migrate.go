package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/doccache-backend/internal/domain/docs"
)

func AutoMigrateAll(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&docs.Document{},
		&docs.DocumentChunk{},
		&docs.SearchCacheEntry{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
