package expiration

import (
	"context"
	"errors"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"github.com/facebookgo/clock"
	"github.com/google/uuid"

	"github.com/yungbote/doccache-backend/internal/data/repos/documents"
	"github.com/yungbote/doccache-backend/internal/data/repos/testutil"
	"github.com/yungbote/doccache-backend/internal/domain/docs"
	apperrors "github.com/yungbote/doccache-backend/internal/pkg/errors"
	"github.com/yungbote/doccache-backend/internal/platform/dbctx"
)

var baseNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func mockClock() *clock.Mock {
	clk := clock.NewMock()
	clk.Add(baseNow.Sub(time.Unix(0, 0)))
	return clk
}

type seedDoc struct {
	workspace string
	provider  string
	expiresIn *time.Duration
	chunks    int
}

func seed(t *testing.T, repo documents.DocumentRepo, rows []seedDoc) []*docs.Document {
	t.Helper()
	out := make([]*docs.Document, 0, len(rows))
	for _, r := range rows {
		ws := r.workspace
		if ws == "" {
			ws = docs.DefaultWorkspace
		}
		d := testutil.Document(ws, "react", "body", r.provider, baseNow, r.expiresIn)
		stored, _, err := repo.Upsert(dbctx.Context{Ctx: context.Background()}, d, testutil.Chunks(r.chunks))
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
		out = append(out, stored)
	}
	return out
}

func newManager(t *testing.T, cfg Config) (*Manager, documents.DocumentRepo) {
	t.Helper()
	repo := documents.NewDocumentRepo(testutil.DB(t), testutil.Logger(t))
	return NewManager(repo, nil, mockClock(), cfg, testutil.Logger(t)), repo
}

func TestGetStatisticsExample(t *testing.T) {
	m, repo := newManager(t, Config{})
	past, soon, later := testutil.Dur(-time.Hour), testutil.Dur(2*time.Hour), testutil.Dur(10*24*time.Hour)
	seed(t, repo, []seedDoc{
		{provider: "github", expiresIn: past, chunks: 2},
		{provider: "github", expiresIn: later, chunks: 1},
		{provider: "context7", expiresIn: past, chunks: 3},
		{provider: "context7", expiresIn: past, chunks: 1},
		{provider: "context7", expiresIn: soon, chunks: 2},
		{provider: "brave", expiresIn: later, chunks: 1},
		{provider: "brave", expiresIn: later, chunks: 1},
		{provider: "brave", expiresIn: testutil.Dur(40 * 24 * time.Hour), chunks: 1},
		{provider: "brave", expiresIn: testutil.Dur(3 * 24 * time.Hour), chunks: 1},
		{provider: "brave", chunks: 1},
		{workspace: "other", provider: "github", expiresIn: past, chunks: 5},
	})

	st, err := m.GetStatistics(context.Background(), "docs")
	if err != nil {
		t.Fatalf("GetStatistics: %v", err)
	}
	if st.TotalDocuments != 10 || st.ExpiredDocuments != 3 {
		t.Fatalf("total=%d expired=%d", st.TotalDocuments, st.ExpiredDocuments)
	}
	wantProviders := map[string]int64{"github": 2, "context7": 3, "brave": 5}
	if !reflect.DeepEqual(st.Providers, wantProviders) {
		t.Fatalf("providers = %v", st.Providers)
	}
	if st.TotalChunks != 14 || st.ExpiredChunks != 6 {
		t.Fatalf("chunks total=%d expired=%d", st.TotalChunks, st.ExpiredChunks)
	}
	if st.ExpiringSoonDocuments != 1 || st.ExpiringSoonChunks != 2 {
		t.Fatalf("expiring soon docs=%d chunks=%d", st.ExpiringSoonDocuments, st.ExpiringSoonChunks)
	}
	wantBuckets := map[string]int64{
		BucketExpired: 3, BucketWithin24h: 1, BucketWithin7d: 1,
		BucketWithin30d: 3, BucketBeyond30d: 1, BucketNever: 1,
	}
	if !reflect.DeepEqual(st.DocumentsByExpiry, wantBuckets) {
		t.Fatalf("buckets = %v", st.DocumentsByExpiry)
	}
	if st.OldestExpiry == nil || !st.OldestExpiry.Equal(baseNow.Add(-time.Hour)) {
		t.Fatalf("oldest = %v", st.OldestExpiry)
	}
	if st.NewestExpiry == nil || !st.NewestExpiry.Equal(baseNow.Add(40*24*time.Hour)) {
		t.Fatalf("newest = %v", st.NewestExpiry)
	}
}

func TestCleanupExpiredIsIdempotent(t *testing.T) {
	m, repo := newManager(t, Config{})
	past := testutil.Dur(-time.Minute)
	rows := make([]seedDoc, 0, 9)
	for i := 0; i < 7; i++ {
		rows = append(rows, seedDoc{provider: "p", expiresIn: past, chunks: 2})
	}
	rows = append(rows, seedDoc{provider: "p", expiresIn: testutil.Dur(time.Hour), chunks: 2}, seedDoc{provider: "p", chunks: 1})
	seed(t, repo, rows)

	ctx := context.Background()
	res, err := m.CleanupExpired(ctx, "docs", 3)
	if err != nil {
		t.Fatalf("CleanupExpired: %v", err)
	}
	if res.DeletedDocuments != 7 || res.DeletedChunks != 14 {
		t.Fatalf("first run = %+v", res)
	}
	if res.Batches != 3 {
		t.Fatalf("batches = %d, want 3", res.Batches)
	}
	again, err := m.CleanupExpired(ctx, "docs", 3)
	if err != nil || again.DeletedDocuments != 0 || again.DeletedChunks != 0 {
		t.Fatalf("second run = %+v err=%v", again, err)
	}
	if again.Message != "no expired documents to delete" {
		t.Fatalf("message = %q", again.Message)
	}
	chunks, _ := repo.CountChunks(dbctx.Context{Ctx: ctx}, "docs", documents.ExpiryRange{})
	if chunks != 3 {
		t.Fatalf("orphaned or missing chunks: %d", chunks)
	}
}

func TestExpiredVariantsReturnIdenticalResults(t *testing.T) {
	m, repo := newManager(t, Config{})
	rows := []seedDoc{}
	for _, off := range []time.Duration{-time.Hour, -3 * time.Hour, -time.Hour, -2 * time.Hour, time.Hour, -10 * time.Minute} {
		rows = append(rows, seedDoc{provider: "p", expiresIn: testutil.Dur(off)})
	}
	rows = append(rows, seedDoc{provider: "p"})
	seed(t, repo, rows)

	for _, limit := range []int{0, 1, 2, 5, 1000} {
		plain, err := m.GetExpired(context.Background(), "docs", limit)
		if err != nil {
			t.Fatalf("GetExpired: %v", err)
		}
		opt, err := m.GetExpiredOptimized(context.Background(), "docs", limit)
		if err != nil {
			t.Fatalf("GetExpiredOptimized: %v", err)
		}
		if len(plain) != len(opt) {
			t.Fatalf("limit %d: %d vs %d rows", limit, len(plain), len(opt))
		}
		for i := range plain {
			if plain[i].ID != opt[i].ID || !plain[i].ExpiresAt.Equal(*opt[i].ExpiresAt) {
				t.Fatalf("limit %d row %d differs", limit, i)
			}
		}
	}
}

func TestWorkspaceAndLimitValidation(t *testing.T) {
	m, _ := newManager(t, Config{Workspaces: []string{"docs", "kb"}})
	ctx := context.Background()
	for _, ws := range []string{"", "Docs", "../etc", "-x", "unknown"} {
		if _, err := m.GetExpired(ctx, ws, 10); !apperrors.IsValidation(err) {
			t.Fatalf("workspace %q: want validation error, got %v", ws, err)
		}
	}
	if _, err := m.GetExpired(ctx, "kb", 10); err != nil {
		t.Fatalf("allowed workspace rejected: %v", err)
	}
	for _, limit := range []int{-1, 1001} {
		if _, err := m.GetExpired(ctx, "docs", limit); !apperrors.IsValidation(err) {
			t.Fatalf("limit %d: want validation error, got %v", limit, err)
		}
	}
	if _, err := m.CleanupExpired(ctx, "docs", 5001); !apperrors.IsValidation(err) {
		t.Fatalf("batch size: want validation error, got %v", err)
	}
	if _, err := m.GetByProvider(ctx, "docs", "  ", 10); !apperrors.IsValidation(err) {
		t.Fatalf("empty provider: want validation error, got %v", err)
	}
	if _, err := m.GetStatistics(ctx, "nope"); !apperrors.IsValidation(err) {
		t.Fatalf("statistics: want validation error, got %v", err)
	}
}

func TestGetByProvider(t *testing.T) {
	m, repo := newManager(t, Config{})
	seed(t, repo, []seedDoc{{provider: "github"}, {provider: "github"}, {provider: "brave"}})
	rows, err := m.GetByProvider(context.Background(), "docs", " GitHub ", 10)
	if err != nil || len(rows) != 2 {
		t.Fatalf("GetByProvider: len=%d err=%v", len(rows), err)
	}
}

// flakyRepo fails deletes according to fail, otherwise delegates.
type flakyRepo struct {
	documents.DocumentRepo
	fail  func(ctx context.Context, ids []uuid.UUID) error
	calls int32
}

func (r *flakyRepo) DeleteExpiredByIDs(dbc dbctx.Context, ws string, ids []uuid.UUID, now time.Time) (int64, int64, error) {
	atomic.AddInt32(&r.calls, 1)
	if err := r.fail(dbc.Ctx, ids); err != nil {
		return 0, 0, err
	}
	return r.DocumentRepo.DeleteExpiredByIDs(dbc, ws, ids, now)
}

func TestCleanupRetriesFailedBatchSmaller(t *testing.T) {
	base := documents.NewDocumentRepo(testutil.DB(t), testutil.Logger(t))
	past := testutil.Dur(-time.Minute)
	rows := make([]seedDoc, 8)
	for i := range rows {
		rows[i] = seedDoc{provider: "p", expiresIn: past, chunks: 1}
	}
	seed(t, base, rows)

	repo := &flakyRepo{DocumentRepo: base, fail: func(_ context.Context, ids []uuid.UUID) error {
		if len(ids) > 2 {
			return errors.New("statement too large")
		}
		return nil
	}}
	m := NewManager(repo, nil, mockClock(), Config{}, testutil.Logger(t))
	res, err := m.CleanupExpired(context.Background(), "docs", 4)
	if err != nil {
		t.Fatalf("CleanupExpired: %v", err)
	}
	if res.DeletedDocuments != 8 || len(res.FailedBatches) != 0 {
		t.Fatalf("result = %+v", res)
	}
}

func TestCleanupReportsBatchThatStillFails(t *testing.T) {
	base := documents.NewDocumentRepo(testutil.DB(t), testutil.Logger(t))
	rows := make([]seedDoc, 6)
	for i := range rows {
		rows[i] = seedDoc{provider: "p", expiresIn: testutil.Dur(-time.Duration(i+1) * time.Hour), chunks: 1}
	}
	seeded := seed(t, base, rows)
	// The oldest document always fails.
	poison := seeded[5].ID

	repo := &flakyRepo{DocumentRepo: base, fail: func(_ context.Context, ids []uuid.UUID) error {
		for _, id := range ids {
			if id == poison {
				return errors.New("row locked")
			}
		}
		return nil
	}}
	m := NewManager(repo, nil, mockClock(), Config{}, testutil.Logger(t))
	res, err := m.CleanupExpired(context.Background(), "docs", 2)
	if err != nil {
		t.Fatalf("CleanupExpired: %v", err)
	}
	if res.DeletedDocuments != 5 {
		t.Fatalf("deleted = %d, want 5 (other batches unaffected)", res.DeletedDocuments)
	}
	if len(res.FailedBatches) != 1 || res.FailedBatches[0].Documents != 1 {
		t.Fatalf("failed batches = %+v", res.FailedBatches)
	}
	if _, err := base.GetByID(dbctx.Context{Ctx: context.Background()}, poison); err != nil {
		t.Fatalf("poisoned document should remain: %v", err)
	}
}

func TestCleanupStopsWhenBatchBudgetExceeded(t *testing.T) {
	base := documents.NewDocumentRepo(testutil.DB(t), testutil.Logger(t))
	rows := make([]seedDoc, 4)
	for i := range rows {
		rows[i] = seedDoc{provider: "p", expiresIn: testutil.Dur(-time.Duration(i+1) * time.Hour)}
	}
	seed(t, base, rows)

	var batch int32
	repo := &flakyRepo{DocumentRepo: base, fail: func(ctx context.Context, _ []uuid.UUID) error {
		if atomic.AddInt32(&batch, 1) == 2 {
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	}}
	m := NewManager(repo, nil, mockClock(), Config{BatchBudget: 20 * time.Millisecond}, testutil.Logger(t))
	res, err := m.CleanupExpired(context.Background(), "docs", 2)
	if err != nil {
		t.Fatalf("CleanupExpired: %v", err)
	}
	if !res.Partial || res.DeletedDocuments != 2 {
		t.Fatalf("result = %+v", res)
	}
	if atomic.LoadInt32(&repo.calls) != 2 {
		t.Fatalf("timed-out batch must not be retried, calls=%d", repo.calls)
	}
}

func TestCleanupAbortsOnSystemicError(t *testing.T) {
	base := documents.NewDocumentRepo(testutil.DB(t), testutil.Logger(t))
	seed(t, base, []seedDoc{{provider: "p", expiresIn: testutil.Dur(-time.Hour)}})
	repo := &flakyRepo{DocumentRepo: base, fail: func(context.Context, []uuid.UUID) error {
		return apperrors.ErrStoreUnavailable
	}}
	m := NewManager(repo, nil, mockClock(), Config{}, testutil.Logger(t))
	if _, err := m.CleanupExpired(context.Background(), "docs", 10); !errors.Is(err, apperrors.ErrStoreUnavailable) {
		t.Fatalf("want store unavailable, got %v", err)
	}
	if repo.calls != 1 {
		t.Fatalf("systemic error retried, calls=%d", repo.calls)
	}
}

type countingSweeper struct{ batch int }

func (s *countingSweeper) DeleteExpired(_ context.Context, batchSize int) (int64, error) {
	s.batch = batchSize
	return 3, nil
}

func TestCleanupExpiredCache(t *testing.T) {
	repo := documents.NewDocumentRepo(testutil.DB(t), testutil.Logger(t))
	sw := &countingSweeper{}
	m := NewManager(repo, sw, mockClock(), Config{}, testutil.Logger(t))
	n, err := m.CleanupExpiredCache(context.Background(), 0)
	if err != nil || n != 3 || sw.batch != 500 {
		t.Fatalf("n=%d batch=%d err=%v", n, sw.batch, err)
	}
}
