package documents

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/doccache-backend/internal/data/repos/testutil"
	types "github.com/yungbote/doccache-backend/internal/domain/docs"
	"github.com/yungbote/doccache-backend/internal/platform/dbctx"
)

var baseNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func TestDocumentRepoUpsertDedupes(t *testing.T) {
	db := testutil.DB(t)
	repo := NewDocumentRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background()}

	first := testutil.Document("docs", "react", "hooks body", "context7", baseNow, testutil.Dur(24*time.Hour))
	first.ContentHash = "hash-1"
	stored, created, err := repo.Upsert(dbc, first, testutil.Chunks(3))
	if err != nil || !created {
		t.Fatalf("Upsert first: created=%v err=%v", created, err)
	}

	later := baseNow.Add(2 * time.Hour)
	second := testutil.Document("docs", "react", "hooks body", "brave", later, testutil.Dur(48*time.Hour))
	second.ContentHash = "hash-1"
	again, created, err := repo.Upsert(dbc, second, testutil.Chunks(2))
	if err != nil {
		t.Fatalf("Upsert second: %v", err)
	}
	if created {
		t.Fatalf("second upsert should update, not create")
	}
	if again.ID != stored.ID {
		t.Fatalf("content_id changed: %s -> %s", stored.ID, again.ID)
	}
	wantExp := later.Add(48 * time.Hour)
	if again.ExpiresAt == nil || !again.ExpiresAt.Equal(wantExp) {
		t.Fatalf("expires_at = %v, want %v", again.ExpiresAt, wantExp)
	}
	if !again.UpdatedAt.Equal(later) {
		t.Fatalf("updated_at = %v, want %v", again.UpdatedAt, later)
	}
	if !again.CreatedAt.Equal(baseNow) {
		t.Fatalf("created_at = %v, want %v", again.CreatedAt, baseNow)
	}
	if again.SourceProvider != "brave" {
		t.Fatalf("provider = %q", again.SourceProvider)
	}

	n, err := repo.CountDocuments(dbc, "docs", ExpiryRange{})
	if err != nil || n != 1 {
		t.Fatalf("CountDocuments: n=%d err=%v", n, err)
	}
	chunks, err := repo.ListChunks(dbc, stored.ID)
	if err != nil || len(chunks) != 2 {
		t.Fatalf("chunks should be replaced: len=%d err=%v", len(chunks), err)
	}

	// Same hash under another technology or workspace is a different document.
	other := testutil.Document("docs", "vue", "hooks body", "brave", later, nil)
	other.ContentHash = "hash-1"
	if _, created, err := repo.Upsert(dbc, other, nil); err != nil || !created {
		t.Fatalf("other technology: created=%v err=%v", created, err)
	}
	elsewhere := testutil.Document("kb", "react", "hooks body", "brave", later, nil)
	elsewhere.ContentHash = "hash-1"
	if _, created, err := repo.Upsert(dbc, elsewhere, nil); err != nil || !created {
		t.Fatalf("other workspace: created=%v err=%v", created, err)
	}
}

func TestDocumentRepoExpiredQueriesAgree(t *testing.T) {
	db := testutil.DB(t)
	repo := NewDocumentRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background()}

	offsets := []time.Duration{-5 * time.Hour, -1 * time.Hour, -3 * time.Hour, 2 * time.Hour, -1 * time.Hour}
	for _, off := range offsets {
		if _, _, err := repo.Upsert(dbc, testutil.Document("docs", "go", "b", "p", baseNow, testutil.Dur(off)), nil); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	if _, _, err := repo.Upsert(dbc, testutil.Document("docs", "go", "b", "p", baseNow, nil), nil); err != nil {
		t.Fatalf("seed never: %v", err)
	}
	if _, _, err := repo.Upsert(dbc, testutil.Document("other", "go", "b", "p", baseNow, testutil.Dur(-time.Hour)), nil); err != nil {
		t.Fatalf("seed other workspace: %v", err)
	}

	for _, limit := range []int{1, 2, 3, 10} {
		plain, err := repo.ListExpired(dbc, "docs", baseNow, limit)
		if err != nil {
			t.Fatalf("ListExpired: %v", err)
		}
		indexed, err := repo.ListExpiredIndexed(dbc, "docs", baseNow, limit)
		if err != nil {
			t.Fatalf("ListExpiredIndexed: %v", err)
		}
		if !reflect.DeepEqual(ids(plain), ids(indexed)) {
			t.Fatalf("limit %d: plain %v != indexed %v", limit, ids(plain), ids(indexed))
		}
	}

	all, _ := repo.ListExpired(dbc, "docs", baseNow, 10)
	if len(all) != 4 {
		t.Fatalf("expired count = %d, want 4", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].ExpiresAt.Before(*all[i-1].ExpiresAt) {
			t.Fatalf("not ordered oldest-expiry-first")
		}
	}
}

func TestDocumentRepoKeysetAndDelete(t *testing.T) {
	db := testutil.DB(t)
	repo := NewDocumentRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background()}

	for i := 0; i < 5; i++ {
		d := testutil.Document("docs", "go", "b", "p", baseNow, testutil.Dur(-time.Duration(i+1)*time.Hour))
		if _, _, err := repo.Upsert(dbc, d, testutil.Chunks(2)); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	page1, err := repo.ExpiredKeysAfter(dbc, "docs", baseNow, nil, 3)
	if err != nil || len(page1) != 3 {
		t.Fatalf("page1: len=%d err=%v", len(page1), err)
	}
	page2, err := repo.ExpiredKeysAfter(dbc, "docs", baseNow, &page1[2], 3)
	if err != nil || len(page2) != 2 {
		t.Fatalf("page2: len=%d err=%v", len(page2), err)
	}
	seen := map[uuid.UUID]bool{}
	for _, k := range append(page1, page2...) {
		if seen[k.ID] {
			t.Fatalf("duplicate key %s across pages", k.ID)
		}
		seen[k.ID] = true
	}

	docsDeleted, chunksDeleted, err := repo.DeleteExpiredByIDs(dbc, "docs", []uuid.UUID{page1[0].ID, page1[1].ID}, baseNow)
	if err != nil || docsDeleted != 2 || chunksDeleted != 4 {
		t.Fatalf("DeleteExpiredByIDs: docs=%d chunks=%d err=%v", docsDeleted, chunksDeleted, err)
	}
	// Deleting again is a no-op.
	docsDeleted, chunksDeleted, err = repo.DeleteExpiredByIDs(dbc, "docs", []uuid.UUID{page1[0].ID}, baseNow)
	if err != nil || docsDeleted != 0 || chunksDeleted != 0 {
		t.Fatalf("second delete: docs=%d chunks=%d err=%v", docsDeleted, chunksDeleted, err)
	}
	// A document that is not expired at the given time is kept.
	docsDeleted, _, err = repo.DeleteExpiredByIDs(dbc, "docs", []uuid.UUID{page1[2].ID}, baseNow.Add(-10*time.Hour))
	if err != nil || docsDeleted != 0 {
		t.Fatalf("unexpired delete: docs=%d err=%v", docsDeleted, err)
	}
	if n, _ := repo.CountChunks(dbc, "docs", ExpiryRange{}); n != 6 {
		t.Fatalf("remaining chunks = %d, want 6", n)
	}
}

func TestDocumentRepoStatsQueries(t *testing.T) {
	db := testutil.DB(t)
	repo := NewDocumentRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background()}

	seed := []struct {
		provider string
		exp      *time.Duration
	}{
		{"github", testutil.Dur(-2 * time.Hour)},
		{"github", testutil.Dur(3 * time.Hour)},
		{"context7", testutil.Dur(-30 * time.Minute)},
		{"context7", nil},
	}
	for _, s := range seed {
		if _, _, err := repo.Upsert(dbc, testutil.Document("docs", "go", "b", s.provider, baseNow, s.exp), testutil.Chunks(1)); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	now := baseNow
	expired, err := repo.CountDocuments(dbc, "docs", ExpiryRange{To: &now})
	if err != nil || expired != 2 {
		t.Fatalf("expired = %d err=%v", expired, err)
	}
	expiredChunks, err := repo.CountChunks(dbc, "docs", ExpiryRange{To: &now})
	if err != nil || expiredChunks != 2 {
		t.Fatalf("expired chunks = %d err=%v", expiredChunks, err)
	}
	never, _ := repo.CountDocuments(dbc, "docs", ExpiryRange{Never: true})
	if never != 1 {
		t.Fatalf("never = %d", never)
	}
	providers, err := repo.ProviderCounts(dbc, "docs")
	if err != nil || providers["github"] != 2 || providers["context7"] != 2 {
		t.Fatalf("providers = %v err=%v", providers, err)
	}
	oldest, newest, err := repo.ExpiryBounds(dbc, "docs")
	if err != nil {
		t.Fatalf("ExpiryBounds: %v", err)
	}
	if oldest == nil || !oldest.Equal(baseNow.Add(-2*time.Hour)) {
		t.Fatalf("oldest = %v", oldest)
	}
	if newest == nil || !newest.Equal(baseNow.Add(3*time.Hour)) {
		t.Fatalf("newest = %v", newest)
	}
	if o, n, err := repo.ExpiryBounds(dbc, "empty"); err != nil || o != nil || n != nil {
		t.Fatalf("empty workspace bounds: %v %v %v", o, n, err)
	}

	byProvider, err := repo.ListByProvider(dbc, "docs", "github", 1)
	if err != nil || len(byProvider) != 1 || byProvider[0].SourceProvider != "github" {
		t.Fatalf("ListByProvider: %v err=%v", byProvider, err)
	}
}

func ids(ds []*types.Document) []uuid.UUID {
	out := make([]uuid.UUID, len(ds))
	for i, d := range ds {
		out[i] = d.ID
	}
	return out
}

func TestDocumentRepoReadsThroughTransaction(t *testing.T) {
	db := testutil.DB(t)
	repo := NewDocumentRepo(db, testutil.Logger(t))
	tx := testutil.Tx(t, db)
	ctx := context.Background()

	d := testutil.SeedDocument(t, ctx, tx,
		testutil.Document("docs", "go", "body", "p", baseNow, testutil.Dur(-time.Hour)), 3)

	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	got, err := repo.GetByID(dbc, d.ID)
	if err != nil || got.ID != d.ID {
		t.Fatalf("GetByID: %+v err=%v", got, err)
	}
	chunks, err := repo.ListChunks(dbc, d.ID)
	if err != nil || len(chunks) != 3 {
		t.Fatalf("ListChunks: n=%d err=%v", len(chunks), err)
	}
	for i, c := range chunks {
		if c.Position != i {
			t.Fatalf("chunk %d position = %d", i, c.Position)
		}
	}
	expired, err := repo.ListExpired(dbc, "docs", baseNow, 10)
	if err != nil || len(expired) != 1 {
		t.Fatalf("ListExpired: n=%d err=%v", len(expired), err)
	}
}
