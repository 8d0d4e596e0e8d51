package docs

import (
	"time"

	"gorm.io/datatypes"
)

// SearchCacheEntry is one cached search result set, keyed by query fingerprint.
// Rows past ExpiresAt are logically absent even if not yet swept.
type SearchCacheEntry struct {
	QueryHash      string         `gorm:"column:query_hash;primaryKey" json:"query_hash"`
	OriginalQuery  string         `gorm:"column:original_query;type:text;not null" json:"original_query"`
	SearchResults  datatypes.JSON `gorm:"column:search_results;type:jsonb" json:"search_results"`
	TechnologyHint string         `gorm:"column:technology_hint" json:"technology_hint"`
	ExpiresAt      time.Time      `gorm:"column:expires_at;not null;index" json:"expires_at"`
	CreatedAt      time.Time      `gorm:"column:created_at;not null" json:"created_at"`
}

func (SearchCacheEntry) TableName() string { return "search_cache" }

func (e *SearchCacheEntry) Expired(now time.Time) bool {
	return e == nil || !e.ExpiresAt.After(now)
}
