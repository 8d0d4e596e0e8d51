package app

import (
	"fmt"
	"strings"
	"time"

	redisclient "github.com/yungbote/doccache-backend/internal/clients/redis"
	"github.com/yungbote/doccache-backend/internal/modules/doccache/expiration"
	"github.com/yungbote/doccache-backend/internal/modules/doccache/ingestion"
	"github.com/yungbote/doccache-backend/internal/modules/doccache/ttl"
	"github.com/yungbote/doccache-backend/internal/platform/envutil"
	"github.com/yungbote/doccache-backend/internal/platform/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	CacheBackendPostgres = "postgres"
	CacheBackendRedis    = "redis"
)

type ProviderConfig struct {
	Name       string
	URL        string
	APIKey     string
	MaxRetries int
}

type Config struct {
	LogMode     string
	Port        string
	Environment string
	Version     string
	CORSOrigins []string

	DBDriver   string
	SQLitePath string

	// CacheBackend is "postgres" (the search_cache table) or "redis".
	CacheBackend string
	CacheTTL     time.Duration
	Redis        redisclient.SearchCacheConfig

	Ingest           ingestion.Config
	Workspace        string
	FallbackLanguage string
	TTLPolicy        ttl.Policy

	FetchTimeout time.Duration
	Provider     ProviderConfig

	Expiration     expiration.Config
	SweepSchedule  string
	SweepBatchSize int
}

// LoadConfig reads the environment. Only a bad TTL policy file or an unknown
// driver/backend name is an error; everything else falls back to defaults.
func LoadConfig(log *logger.Logger) (Config, error) {
	cfg := Config{
		LogMode:     envutil.String("LOG_MODE", "development"),
		Port:        envutil.String("PORT", "8080"),
		Environment: envutil.String("APP_ENV", "development"),
		Version:     envutil.String("APP_VERSION", "dev"),
		CORSOrigins: envutil.List("CORS_ALLOWED_ORIGINS"),

		DBDriver:   strings.ToLower(envutil.String("DB_DRIVER", DriverPostgres)),
		SQLitePath: envutil.String("SQLITE_PATH", "doccache.db"),

		CacheTTL: envutil.Duration("SEARCH_CACHE_TTL", time.Hour),
		Redis: redisclient.SearchCacheConfig{
			Addr:      envutil.String("REDIS_ADDR", ""),
			Password:  envutil.String("REDIS_PASSWORD", ""),
			DB:        envutil.Int("REDIS_DB", 0),
			KeyPrefix: envutil.String("REDIS_SEARCH_CACHE_PREFIX", ""),
		},

		Ingest: ingestion.Config{
			PoolSize:    envutil.Int("INGEST_WORKER_POOL_SIZE", 8),
			ItemTimeout: envutil.Duration("INGEST_ITEM_TIMEOUT", 15*time.Second),
			RetryDelay:  envutil.Duration("INGEST_RETRY_DELAY", 100*time.Millisecond),
			ChunkSize:   envutil.Int("INGEST_CHUNK_SIZE", 1500),
		},
		Workspace:        envutil.String("DOCCACHE_DEFAULT_WORKSPACE", "docs"),
		FallbackLanguage: envutil.String("FALLBACK_LANGUAGE", "en"),

		FetchTimeout: envutil.Duration("FETCH_TIMEOUT", 20*time.Second),
		Provider: ProviderConfig{
			Name:       envutil.String("PROVIDER_NAME", "http"),
			URL:        envutil.String("PROVIDER_URL", ""),
			APIKey:     envutil.String("PROVIDER_API_KEY", ""),
			MaxRetries: envutil.Int("PROVIDER_MAX_RETRIES", 2),
		},

		Expiration: expiration.Config{
			Workspaces:         envutil.List("DOCCACHE_WORKSPACES"),
			BatchBudget:        envutil.Duration("CLEANUP_BATCH_BUDGET", 30*time.Second),
			ExpiringSoonWindow: envutil.Duration("EXPIRING_SOON_WINDOW", 24*time.Hour),
		},
		SweepSchedule:  envutil.String("EXPIRY_SWEEP_SCHEDULE", "@every 1h"),
		SweepBatchSize: envutil.Int("EXPIRY_SWEEP_BATCH_SIZE", 500),
	}

	switch cfg.DBDriver {
	case DriverPostgres, DriverSQLite:
	default:
		return cfg, fmt.Errorf("DB_DRIVER must be %q or %q, got %q", DriverPostgres, DriverSQLite, cfg.DBDriver)
	}

	backend := strings.ToLower(envutil.String("SEARCH_CACHE_BACKEND", ""))
	switch backend {
	case "":
		backend = CacheBackendPostgres
		if cfg.Redis.Addr != "" {
			backend = CacheBackendRedis
		}
	case CacheBackendPostgres, CacheBackendRedis:
	default:
		return cfg, fmt.Errorf("SEARCH_CACHE_BACKEND must be %q or %q, got %q", CacheBackendPostgres, CacheBackendRedis, backend)
	}
	cfg.CacheBackend = backend

	policy, err := ttl.LoadPolicy(envutil.String("TTL_POLICY_FILE", ""))
	if err != nil {
		return cfg, err
	}
	cfg.TTLPolicy = policy

	if log != nil {
		log.Info("config loaded",
			"db_driver", cfg.DBDriver,
			"search_cache_backend", cfg.CacheBackend,
			"provider_configured", cfg.Provider.URL != "",
			"workspaces", cfg.Expiration.Workspaces,
			"sweep_schedule", cfg.SweepSchedule,
		)
	}
	return cfg, nil
}
