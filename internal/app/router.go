package app

import (
	"github.com/gin-gonic/gin"

	apphttp "github.com/yungbote/doccache-backend/internal/http"
	"github.com/yungbote/doccache-backend/internal/platform/logger"
)

func wireRouter(log *logger.Logger, cfg Config, handlers Handlers) *gin.Engine {
	return apphttp.NewRouter(apphttp.RouterConfig{
		Log:                log,
		ServiceName:        "doccache",
		CORSOrigins:        cfg.CORSOrigins,
		HealthHandler:      handlers.Health,
		SearchHandler:      handlers.Search,
		SearchCacheHandler: handlers.SearchCache,
		IngestHandler:      handlers.Ingest,
		ExpirationHandler:  handlers.Expiration,
	})
}
