package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/yungbote/doccache-backend/internal/clients/provider"
	"github.com/yungbote/doccache-backend/internal/domain/docs"
	"github.com/yungbote/doccache-backend/internal/modules/doccache/ingestion"
	"github.com/yungbote/doccache-backend/internal/modules/doccache/searchcache"
	apperrors "github.com/yungbote/doccache-backend/internal/pkg/errors"
	"github.com/yungbote/doccache-backend/internal/platform/ctxutil"
	"github.com/yungbote/doccache-backend/internal/platform/logger"
)

// ErrNoFetcher is returned on a cache miss when no provider is configured.
var ErrNoFetcher = errors.New("no search provider configured")

// Fetcher is an external documentation source. provider.Client satisfies it.
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context, req provider.FetchRequest) ([]docs.RawResult, error)
}

type WorkspaceValidator interface {
	ValidateWorkspace(workspace string) (string, error)
}

type SearchRequest struct {
	Query          string `json:"query"`
	TechnologyHint string `json:"technology,omitempty"`
	Workspace      string `json:"workspace,omitempty"`
	// Provider selects a registered fetcher by name; empty uses the default one.
	Provider string `json:"provider,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

type SearchResponse struct {
	CacheHit bool                   `json:"cache_hit"`
	Results  json.RawMessage        `json:"results"`
	Batch    *ingestion.BatchResult `json:"batch,omitempty"`
}

type DocSearchService interface {
	Search(ctx context.Context, req SearchRequest) (*SearchResponse, error)
	Providers() []string
}

type DocSearchConfig struct {
	FetchTimeout time.Duration
	CacheTTL     time.Duration
}

type docSearchService struct {
	log        *logger.Logger
	cache      *searchcache.QueryCache
	pipeline   *ingestion.Pipeline
	workspaces WorkspaceValidator
	fetchers   map[string]Fetcher
	defaultFx  string
	cfg        DocSearchConfig
}

// NewDocSearchService registers fetchers by Name(); the first one is the default.
func NewDocSearchService(
	baseLog *logger.Logger,
	cache *searchcache.QueryCache,
	pipeline *ingestion.Pipeline,
	workspaces WorkspaceValidator,
	cfg DocSearchConfig,
	fetchers ...Fetcher,
) DocSearchService {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 20 * time.Second
	}
	s := &docSearchService{
		log:        baseLog.With("service", "DocSearchService"),
		cache:      cache,
		pipeline:   pipeline,
		workspaces: workspaces,
		fetchers:   map[string]Fetcher{},
		cfg:        cfg,
	}
	for _, f := range fetchers {
		if f == nil {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(f.Name()))
		if s.defaultFx == "" {
			s.defaultFx = name
		}
		s.fetchers[name] = f
	}
	return s
}

func (s *docSearchService) Providers() []string {
	out := make([]string, 0, len(s.fetchers))
	for name := range s.fetchers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Search serves from the query cache when it can. On a miss it fetches from the
// provider, ingests every result and caches the provider response.
func (s *docSearchService) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	ctx = ctxutil.Default(ctx)
	if strings.TrimSpace(req.Query) == "" {
		return nil, apperrors.Invalid("query", "", "must not be empty")
	}
	workspace := docs.DefaultWorkspace
	if strings.TrimSpace(req.Workspace) != "" {
		ws, err := s.workspaces.ValidateWorkspace(req.Workspace)
		if err != nil {
			return nil, err
		}
		workspace = ws
	}
	log := s.log.WithContext(ctx)

	entry, hit, err := s.cache.Lookup(ctx, req.Query, req.TechnologyHint)
	if err != nil {
		// A broken cache should not take search down with it.
		log.Warn("search cache lookup failed", "error", err)
	}
	if hit {
		return &SearchResponse{CacheHit: true, Results: json.RawMessage(entry.SearchResults)}, nil
	}

	fetcher, err := s.fetcher(req.Provider)
	if err != nil {
		return nil, err
	}

	fctx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	raws, err := fetcher.Fetch(fctx, provider.FetchRequest{
		Query:          req.Query,
		TechnologyHint: req.TechnologyHint,
		Limit:          req.Limit,
	})
	cancel()
	if err != nil {
		return nil, fmt.Errorf("fetch from %s: %w", fetcher.Name(), err)
	}
	for i := range raws {
		if raws[i].TechnologyHint == "" {
			raws[i].TechnologyHint = req.TechnologyHint
		}
	}

	batch, err := s.pipeline.IngestInto(ctx, workspace, raws, fetcher.Name(), ctxutil.CorrelationID(ctx))
	if err != nil {
		return nil, err
	}

	stored, err := s.cache.Store(ctx, req.Query, req.TechnologyHint, raws, s.cfg.CacheTTL)
	if err != nil {
		log.Warn("search cache store failed", "error", err)
		payload, mErr := json.Marshal(raws)
		if mErr != nil {
			return nil, mErr
		}
		return &SearchResponse{Results: payload, Batch: batch}, nil
	}
	log.Info("search served from provider",
		"provider", fetcher.Name(),
		"query", req.Query,
		"results", len(raws),
		"ingested", batch.SucceededCount(),
		"failed", batch.FailedCount(),
	)
	return &SearchResponse{Results: json.RawMessage(stored.SearchResults), Batch: batch}, nil
}

func (s *docSearchService) fetcher(name string) (Fetcher, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = s.defaultFx
	}
	if name == "" {
		return nil, ErrNoFetcher
	}
	f, ok := s.fetchers[name]
	if !ok {
		return nil, apperrors.Invalid("provider", name, "not a configured provider")
	}
	return f, nil
}
