package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/facebookgo/clock"
	"github.com/gin-gonic/gin"

	"github.com/yungbote/doccache-backend/internal/data/repos/documents"
	"github.com/yungbote/doccache-backend/internal/data/repos/testutil"
	"github.com/yungbote/doccache-backend/internal/domain/docs"
	"github.com/yungbote/doccache-backend/internal/modules/doccache/expiration"
	"github.com/yungbote/doccache-backend/internal/modules/doccache/ingestion"
	"github.com/yungbote/doccache-backend/internal/modules/doccache/metadata"
	"github.com/yungbote/doccache-backend/internal/modules/doccache/searchcache"
	"github.com/yungbote/doccache-backend/internal/modules/doccache/ttl"
	apperrors "github.com/yungbote/doccache-backend/internal/pkg/errors"
	"github.com/yungbote/doccache-backend/internal/platform/dbctx"
	"github.com/yungbote/doccache-backend/internal/services"
)

var baseNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	engine *gin.Engine
	repo   documents.DocumentRepo
	clock  *clock.Mock
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	gdb := testutil.DB(t)
	log := testutil.Logger(t)
	clk := clock.NewMock()
	clk.Add(baseNow.Sub(time.Unix(0, 0)))

	repo := documents.NewDocumentRepo(gdb, log)
	cache := searchcache.New(documents.NewSearchCacheRepo(gdb, log), clk, time.Hour, log)
	mgr := expiration.NewManager(repo, cache, clk, expiration.Config{}, log)
	norm := metadata.NewNormalizer(nil, ttl.NewCalculator(ttl.DefaultPolicy()), clk, metadata.NormalizerConfig{})
	pipe := ingestion.NewPipeline(norm, repo, ingestion.Config{PoolSize: 2}, log)

	r := gin.New()
	ih := NewIngestHandler(pipe, mgr)
	eh := NewExpirationHandler(mgr)
	ch := NewSearchCacheHandler(cache)
	r.POST("/api/ingest", ih.Ingest)
	r.PUT("/api/search-cache", ch.Store)
	r.POST("/api/search-cache/lookup", ch.Lookup)
	r.DELETE("/api/search-cache", ch.Invalidate)
	ws := r.Group("/api/workspaces/:workspace")
	ws.GET("/expired", eh.GetExpired)
	ws.GET("/expired/optimized", eh.GetExpiredOptimized)
	ws.POST("/cleanup", eh.Cleanup)
	ws.GET("/providers/:provider", eh.GetByProvider)
	ws.GET("/statistics", eh.Statistics)
	return fixture{engine: r, repo: repo, clock: clk}
}

func (f fixture) seed(t *testing.T, provider string, expiresIn time.Duration, chunks int) {
	t.Helper()
	d := testutil.Document(docs.DefaultWorkspace, "react", "body", provider, baseNow, testutil.Dur(expiresIn))
	if _, _, err := f.repo.Upsert(dbctx.Context{Ctx: context.Background()}, d, testutil.Chunks(chunks)); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func do(t *testing.T, h http.Handler, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var out map[string]any
	if rec.Body.Len() > 0 {
		_ = json.Unmarshal(rec.Body.Bytes(), &out)
	}
	return rec, out
}

func errorCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func TestIngestReportsPartialSuccess(t *testing.T) {
	f := newFixture(t)
	rec, body := do(t, f.engine, http.MethodPost, "/api/ingest", map[string]any{
		"source_provider": "context7",
		"correlation_id":  "corr-42",
		"results": []map[string]any{
			{"title": "a", "url": "https://react.dev/a", "content": "First body about hooks."},
			{"title": "broken", "url": "https://react.dev/b"},
			{"title": "c", "url": "https://react.dev/c", "content": "Third body about effects."},
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	if body["succeeded_count"] != float64(2) || body["failed_count"] != float64(1) || body["total"] != float64(3) {
		t.Fatalf("body = %v", body)
	}
	if body["correlation_id"] != "corr-42" || rec.Header().Get("X-Correlation-Id") != "corr-42" {
		t.Fatalf("correlation id not echoed: %v", body["correlation_id"])
	}
	failed := body["failed"].([]any)
	first := failed[0].(map[string]any)
	if first["index"] != float64(1) || first["reason"] != string(apperrors.ReasonNormalization) {
		t.Fatalf("failure = %v", first)
	}
}

func TestIngestValidation(t *testing.T) {
	f := newFixture(t)
	cases := map[string]map[string]any{
		"missing provider": {"results": []map[string]any{{"content": "x"}}},
		"bad workspace":    {"source_provider": "p", "workspace": "Not Valid", "results": []map[string]any{}},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			rec, body := do(t, f.engine, http.MethodPost, "/api/ingest", req)
			if rec.Code != http.StatusBadRequest || errorCode(body) != "validation_error" {
				t.Fatalf("status=%d body=%v", rec.Code, body)
			}
		})
	}
}

type systemicIngester struct{}

func (systemicIngester) IngestInto(_ context.Context, _ string, raws []docs.RawResult, _, corr string) (*ingestion.BatchResult, error) {
	return &ingestion.BatchResult{CorrelationID: corr, Total: len(raws)}, fmt.Errorf("ingest batch: %w", apperrors.ErrStoreUnavailable)
}

func TestIngestSystemicFailureIs503(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/api/ingest", NewIngestHandler(systemicIngester{}, nil).Ingest)
	rec, body := do(t, r, http.MethodPost, "/api/ingest", map[string]any{
		"source_provider": "p",
		"results":         []map[string]any{{"content": "x"}},
	})
	if rec.Code != http.StatusServiceUnavailable || errorCode(body) != "store_unavailable" {
		t.Fatalf("status=%d body=%v", rec.Code, body)
	}
}

func TestExpiredListShapes(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "github", -2*time.Hour, 1)
	f.seed(t, "github", -time.Hour, 1)
	f.seed(t, "brave", 48*time.Hour, 1)

	rec, body := do(t, f.engine, http.MethodGet, "/api/workspaces/docs/expired", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	if body["workspace"] != "docs" || body["count"] != float64(2) || body["limit"] != float64(100) {
		t.Fatalf("body = %v", body)
	}
	if _, ok := body["optimized"]; ok {
		t.Fatalf("plain variant must not carry optimized")
	}
	if got := len(body["expired_documents"].([]any)); got != 2 {
		t.Fatalf("expired_documents = %d", got)
	}

	rec, opt := do(t, f.engine, http.MethodGet, "/api/workspaces/docs/expired/optimized?limit=1", nil)
	if rec.Code != http.StatusOK || opt["optimized"] != true || opt["count"] != float64(1) || opt["limit"] != float64(1) {
		t.Fatalf("status=%d body=%v", rec.Code, opt)
	}
}

func TestExpirationRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	for _, path := range []string{
		"/api/workspaces/docs/expired?limit=abc",
		"/api/workspaces/docs/expired?limit=5000",
		"/api/workspaces/BAD/expired",
		"/api/workspaces/BAD/statistics",
	} {
		rec, body := do(t, f.engine, http.MethodGet, path, nil)
		if rec.Code != http.StatusBadRequest || errorCode(body) != "validation_error" {
			t.Fatalf("%s: status=%d body=%v", path, rec.Code, body)
		}
	}
	rec, _ := do(t, f.engine, http.MethodPost, "/api/workspaces/docs/cleanup?batch_size=-1", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("negative batch size: status=%d", rec.Code)
	}
}

func TestCleanupShape(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "github", -time.Hour, 3)
	f.seed(t, "github", time.Hour, 2)

	rec, body := do(t, f.engine, http.MethodPost, "/api/workspaces/docs/cleanup", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	if body["workspace"] != "docs" || body["batch_size"] != float64(500) {
		t.Fatalf("body = %v", body)
	}
	res := body["cleanup_result"].(map[string]any)
	if res["deleted_documents"] != float64(1) || res["deleted_chunks"] != float64(3) {
		t.Fatalf("cleanup_result = %v", res)
	}
	for _, k := range []string{"message", "duration_seconds"} {
		if _, ok := res[k]; !ok {
			t.Fatalf("cleanup_result missing %q: %v", k, res)
		}
	}

	_, again := do(t, f.engine, http.MethodPost, "/api/workspaces/docs/cleanup?batch_size=10", nil)
	if again["cleanup_result"].(map[string]any)["deleted_documents"] != float64(0) {
		t.Fatalf("second cleanup = %v", again)
	}
}

func TestStatisticsAndProviderShapes(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "github", -time.Hour, 2)
	f.seed(t, "github", 2*time.Hour, 1)
	f.seed(t, "brave", 10*24*time.Hour, 1)

	rec, body := do(t, f.engine, http.MethodGet, "/api/workspaces/docs/statistics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	stats := body["statistics"].(map[string]any)
	for _, k := range []string{
		"total_chunks", "total_documents", "expired_documents", "expired_chunks",
		"expiring_soon_documents", "expiring_soon_chunks", "providers",
		"oldest_expiry", "newest_expiry", "documents_by_expiry",
	} {
		if _, ok := stats[k]; !ok {
			t.Fatalf("statistics missing %q", k)
		}
	}
	if stats["total_documents"] != float64(3) || stats["expired_documents"] != float64(1) || stats["total_chunks"] != float64(4) {
		t.Fatalf("statistics = %v", stats)
	}
	if stats["providers"].(map[string]any)["github"] != float64(2) {
		t.Fatalf("providers = %v", stats["providers"])
	}

	rec, prov := do(t, f.engine, http.MethodGet, "/api/workspaces/docs/providers/GitHub?limit=10", nil)
	if rec.Code != http.StatusOK || prov["count"] != float64(2) || prov["source_provider"] != "GitHub" || prov["limit"] != float64(10) {
		t.Fatalf("status=%d body=%v", rec.Code, prov)
	}
}

func TestSearchCacheRoundTrip(t *testing.T) {
	f := newFixture(t)

	rec, _ := do(t, f.engine, http.MethodPut, "/api/search-cache", map[string]any{
		"query":       "React Hooks",
		"technology":  "react",
		"results":     []map[string]any{{"title": "useState"}},
		"ttl_seconds": 60,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("put status = %d body=%s", rec.Code, rec.Body.String())
	}

	_, hit := do(t, f.engine, http.MethodPost, "/api/search-cache/lookup", map[string]any{"query": "react   hooks", "technology": "react"})
	if hit["cache_hit"] != true {
		t.Fatalf("lookup = %v", hit)
	}

	f.clock.Add(2 * time.Minute)
	_, miss := do(t, f.engine, http.MethodPost, "/api/search-cache/lookup", map[string]any{"query": "react hooks", "technology": "react"})
	if miss["cache_hit"] != false {
		t.Fatalf("expired entry should miss: %v", miss)
	}

	rec, _ = do(t, f.engine, http.MethodDelete, "/api/search-cache?query=react+hooks&technology=react", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec, body := do(t, f.engine, http.MethodPost, "/api/search-cache/lookup", map[string]any{"query": ""})
	if rec.Code != http.StatusBadRequest || errorCode(body) != "validation_error" {
		t.Fatalf("empty query: status=%d body=%v", rec.Code, body)
	}
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("connection refused") }

func TestHealthCheck(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ok", NewHealthHandler(nil).HealthCheck)
	r.GET("/down", NewHealthHandler(failingPinger{}).HealthCheck)

	if rec, _ := do(t, r, http.MethodGet, "/ok", nil); rec.Code != http.StatusOK {
		t.Fatalf("ok status = %d", rec.Code)
	}
	if rec, _ := do(t, r, http.MethodGet, "/down", nil); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("down status = %d", rec.Code)
	}
}

type stubSearch struct{ err error }

func (s stubSearch) Search(context.Context, services.SearchRequest) (*services.SearchResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &services.SearchResponse{CacheHit: true, Results: json.RawMessage(`[{"title":"x"}]`)}, nil
}

func (stubSearch) Providers() []string { return []string{"context7"} }

func TestSearchHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ok := gin.New()
	ok.POST("/api/search", NewSearchHandler(stubSearch{}).Search)
	rec, body := do(t, ok, http.MethodPost, "/api/search", map[string]any{"query": "q"})
	if rec.Code != http.StatusOK || body["cache_hit"] != true {
		t.Fatalf("status=%d body=%v", rec.Code, body)
	}

	none := gin.New()
	none.POST("/api/search", NewSearchHandler(stubSearch{err: services.ErrNoFetcher}).Search)
	rec, body = do(t, none, http.MethodPost, "/api/search", map[string]any{"query": "q"})
	if rec.Code != http.StatusServiceUnavailable || errorCode(body) != "no_provider" {
		t.Fatalf("status=%d body=%v", rec.Code, body)
	}
}
