package app

import (
	"github.com/facebookgo/clock"

	"github.com/yungbote/doccache-backend/internal/jobs/expiry"
	"github.com/yungbote/doccache-backend/internal/modules/doccache/expiration"
	"github.com/yungbote/doccache-backend/internal/modules/doccache/ingestion"
	"github.com/yungbote/doccache-backend/internal/modules/doccache/metadata"
	"github.com/yungbote/doccache-backend/internal/modules/doccache/searchcache"
	"github.com/yungbote/doccache-backend/internal/modules/doccache/ttl"
	"github.com/yungbote/doccache-backend/internal/platform/logger"
	"github.com/yungbote/doccache-backend/internal/services"
)

type Services struct {
	TTL        *ttl.Calculator
	Normalizer *metadata.Normalizer
	Ingestion  *ingestion.Pipeline
	Cache      *searchcache.QueryCache
	Expiration *expiration.Manager
	DocSearch  services.DocSearchService
	Scheduler  *expiry.Scheduler
}

func wireServices(log *logger.Logger, cfg Config, clk clock.Clock, repos Repos, clients Clients) (Services, error) {
	log.Info("Wiring services...")

	calc := ttl.NewCalculator(cfg.TTLPolicy)
	normalizer := metadata.NewNormalizer(nil, calc, clk, metadata.NormalizerConfig{
		Workspace:        cfg.Workspace,
		FallbackLanguage: cfg.FallbackLanguage,
	})
	pipeline := ingestion.NewPipeline(normalizer, repos.Documents, cfg.Ingest, log)
	cache := searchcache.New(searchCacheStore(clients, repos), clk, cfg.CacheTTL, log)
	manager := expiration.NewManager(repos.Documents, cache, clk, cfg.Expiration, log)

	var fetchers []services.Fetcher
	if clients.Provider != nil {
		fetchers = append(fetchers, clients.Provider)
	}
	docSearch := services.NewDocSearchService(log, cache, pipeline, manager, services.DocSearchConfig{
		FetchTimeout: cfg.FetchTimeout,
		CacheTTL:     cfg.CacheTTL,
	}, fetchers...)

	scheduler, err := expiry.NewScheduler(manager, expiry.Config{
		Schedule:   cfg.SweepSchedule,
		BatchSize:  cfg.SweepBatchSize,
		SweepCache: cfg.CacheBackend == CacheBackendPostgres,
	}, log)
	if err != nil {
		return Services{}, err
	}

	return Services{
		TTL:        calc,
		Normalizer: normalizer,
		Ingestion:  pipeline,
		Cache:      cache,
		Expiration: manager,
		DocSearch:  docSearch,
		Scheduler:  scheduler,
	}, nil
}
