package app

import (
	"fmt"

	"github.com/yungbote/doccache-backend/internal/clients/provider"
	redisclient "github.com/yungbote/doccache-backend/internal/clients/redis"
	"github.com/yungbote/doccache-backend/internal/modules/doccache/searchcache"
	"github.com/yungbote/doccache-backend/internal/platform/logger"
)

type Clients struct {
	// Provider is nil when PROVIDER_URL is unset.
	Provider *provider.Client
	// Redis is nil unless the redis cache backend is selected.
	Redis *redisclient.SearchCache
}

func wireClients(log *logger.Logger, cfg Config) (Clients, error) {
	var out Clients
	if cfg.Provider.URL != "" {
		p, err := provider.New(provider.Config{
			Name:       cfg.Provider.Name,
			URL:        cfg.Provider.URL,
			APIKey:     cfg.Provider.APIKey,
			Timeout:    cfg.FetchTimeout,
			MaxRetries: cfg.Provider.MaxRetries,
		}, log)
		if err != nil {
			return out, fmt.Errorf("init provider client: %w", err)
		}
		out.Provider = p
	} else {
		log.Warn("PROVIDER_URL not set; /api/search serves cache hits only")
	}

	if cfg.CacheBackend == CacheBackendRedis {
		rc, err := redisclient.NewSearchCache(log, cfg.Redis)
		if err != nil {
			return out, fmt.Errorf("init redis search cache: %w", err)
		}
		out.Redis = rc
	}
	return out, nil
}

func (c Clients) Close() {
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
}

// searchCacheStore picks the store behind the query cache.
func searchCacheStore(clients Clients, repos Repos) searchcache.Store {
	if clients.Redis != nil {
		return clients.Redis
	}
	return repos.SearchCache
}
