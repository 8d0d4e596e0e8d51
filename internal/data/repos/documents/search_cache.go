package documents

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/doccache-backend/internal/domain/docs"
	"github.com/yungbote/doccache-backend/internal/platform/logger"
)

// SearchCacheRepo is the relational search-cache store.
type SearchCacheRepo interface {
	Get(ctx context.Context, queryHash string) (*types.SearchCacheEntry, error)
	Put(ctx context.Context, entry *types.SearchCacheEntry) error
	Delete(ctx context.Context, queryHash string) error
	DeleteExpired(ctx context.Context, now time.Time, limit int) (int64, error)
}

type searchCacheRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSearchCacheRepo(db *gorm.DB, baseLog *logger.Logger) SearchCacheRepo {
	return &searchCacheRepo{db: db, log: baseLog.With("repo", "SearchCacheRepo")}
}

func (r *searchCacheRepo) Get(ctx context.Context, queryHash string) (*types.SearchCacheEntry, error) {
	var out types.SearchCacheEntry
	if err := r.db.WithContext(ctx).Where("query_hash = ?", queryHash).Take(&out).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &out, nil
}

func (r *searchCacheRepo) Put(ctx context.Context, entry *types.SearchCacheEntry) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "query_hash"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"original_query",
				"search_results",
				"technology_hint",
				"expires_at",
				"created_at",
			}),
		}).
		Create(entry).Error
}

func (r *searchCacheRepo) Delete(ctx context.Context, queryHash string) error {
	return r.db.WithContext(ctx).Where("query_hash = ?", queryHash).Delete(&types.SearchCacheEntry{}).Error
}

func (r *searchCacheRepo) DeleteExpired(ctx context.Context, now time.Time, limit int) (int64, error) {
	var hashes []string
	if err := r.db.WithContext(ctx).
		Model(&types.SearchCacheEntry{}).
		Where("expires_at <= ?", now).
		Order("expires_at ASC").
		Limit(limit).
		Pluck("query_hash", &hashes).Error; err != nil {
		return 0, err
	}
	if len(hashes) == 0 {
		return 0, nil
	}
	// The expiry check is repeated so a row refreshed since the scan survives.
	res := r.db.WithContext(ctx).
		Where("query_hash IN ? AND expires_at <= ?", hashes, now).
		Delete(&types.SearchCacheEntry{})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		r.log.Debug("search cache rows expired", "count", res.RowsAffected)
	}
	return res.RowsAffected, nil
}
