package app

import (
	"context"
	"errors"

	"gorm.io/gorm"

	httpH "github.com/yungbote/doccache-backend/internal/http/handlers"
	"github.com/yungbote/doccache-backend/internal/platform/logger"
)

type Handlers struct {
	Health      *httpH.HealthHandler
	Search      *httpH.SearchHandler
	SearchCache *httpH.SearchCacheHandler
	Ingest      *httpH.IngestHandler
	Expiration  *httpH.ExpirationHandler
}

func wireHandlers(log *logger.Logger, db *gorm.DB, svc Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:      httpH.NewHealthHandler(gormPinger{db: db}),
		Search:      httpH.NewSearchHandler(svc.DocSearch),
		SearchCache: httpH.NewSearchCacheHandler(svc.Cache),
		Ingest:      httpH.NewIngestHandler(svc.Ingestion, svc.Expiration),
		Expiration:  httpH.NewExpirationHandler(svc.Expiration),
	}
}

type gormPinger struct{ db *gorm.DB }

func (p gormPinger) Ping(ctx context.Context) error {
	if p.db == nil {
		return errors.New("database not configured")
	}
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
