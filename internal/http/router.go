package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/doccache-backend/internal/http/handlers"
	httpMW "github.com/yungbote/doccache-backend/internal/http/middleware"
	"github.com/yungbote/doccache-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log         *logger.Logger
	ServiceName string
	CORSOrigins []string

	HealthHandler      *httpH.HealthHandler
	SearchHandler      *httpH.SearchHandler
	SearchCacheHandler *httpH.SearchCacheHandler
	IngestHandler      *httpH.IngestHandler
	ExpirationHandler  *httpH.ExpirationHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "doccache"
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(serviceName))
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.CORS(cfg.CORSOrigins...))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	api := r.Group("/api")
	{
		// Search
		if cfg.SearchHandler != nil {
			api.POST("/search", cfg.SearchHandler.Search)
			api.GET("/providers", cfg.SearchHandler.ListProviders)
		}

		// Search cache
		if cfg.SearchCacheHandler != nil {
			api.POST("/search-cache/lookup", cfg.SearchCacheHandler.Lookup)
			api.PUT("/search-cache", cfg.SearchCacheHandler.Store)
			api.DELETE("/search-cache", cfg.SearchCacheHandler.Invalidate)
		}

		// Ingestion
		if cfg.IngestHandler != nil {
			api.POST("/ingest", cfg.IngestHandler.Ingest)
		}

		// Expiration
		if cfg.ExpirationHandler != nil {
			ws := api.Group("/workspaces/:workspace")
			ws.GET("/expired", cfg.ExpirationHandler.GetExpired)
			ws.GET("/expired/optimized", cfg.ExpirationHandler.GetExpiredOptimized)
			ws.POST("/cleanup", cfg.ExpirationHandler.Cleanup)
			ws.GET("/providers/:provider", cfg.ExpirationHandler.GetByProvider)
			ws.GET("/statistics", cfg.ExpirationHandler.Statistics)
		}
	}

	return r
}
