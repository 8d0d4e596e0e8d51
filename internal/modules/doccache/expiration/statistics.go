package expiration

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/doccache-backend/internal/data/db"
	"github.com/yungbote/doccache-backend/internal/data/repos/documents"
	"github.com/yungbote/doccache-backend/internal/platform/dbctx"
)

const (
	BucketExpired   = "expired"
	BucketWithin24h = "within_24h"
	BucketWithin7d  = "within_7d"
	BucketWithin30d = "within_30d"
	BucketBeyond30d = "beyond_30d"
	BucketNever     = "never"
)

type Statistics struct {
	TotalChunks           int64            `json:"total_chunks"`
	TotalDocuments        int64            `json:"total_documents"`
	ExpiredDocuments      int64            `json:"expired_documents"`
	ExpiredChunks         int64            `json:"expired_chunks"`
	ExpiringSoonDocuments int64            `json:"expiring_soon_documents"`
	ExpiringSoonChunks    int64            `json:"expiring_soon_chunks"`
	Providers             map[string]int64 `json:"providers"`
	OldestExpiry          *time.Time       `json:"oldest_expiry"`
	NewestExpiry          *time.Time       `json:"newest_expiry"`
	DocumentsByExpiry     map[string]int64 `json:"documents_by_expiry"`
}

func (m *Manager) GetStatistics(ctx context.Context, workspace string) (*Statistics, error) {
	ws, err := m.ValidateWorkspace(workspace)
	if err != nil {
		return nil, err
	}
	now := m.now()
	soon := now.Add(m.cfg.ExpiringSoonWindow)
	day := now.Add(24 * time.Hour)
	week := now.Add(7 * 24 * time.Hour)
	month := now.Add(30 * 24 * time.Hour)

	st := &Statistics{DocumentsByExpiry: map[string]int64{}}
	buckets := []struct {
		name string
		rng  documents.ExpiryRange
		n    int64
	}{
		{name: BucketExpired, rng: documents.ExpiryRange{To: &now}},
		{name: BucketWithin24h, rng: documents.ExpiryRange{From: &now, To: &day}},
		{name: BucketWithin7d, rng: documents.ExpiryRange{From: &day, To: &week}},
		{name: BucketWithin30d, rng: documents.ExpiryRange{From: &week, To: &month}},
		{name: BucketBeyond30d, rng: documents.ExpiryRange{From: &month}},
		{name: BucketNever, rng: documents.ExpiryRange{Never: true}},
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	gdbc := dbctx.Context{Ctx: gctx}

	count := func(dst *int64, f func(dbctx.Context, string, documents.ExpiryRange) (int64, error), rng documents.ExpiryRange) {
		g.Go(func() error {
			n, err := f(gdbc, ws, rng)
			if err != nil {
				return err
			}
			*dst = n
			return nil
		})
	}
	count(&st.TotalDocuments, m.repo.CountDocuments, documents.ExpiryRange{})
	count(&st.TotalChunks, m.repo.CountChunks, documents.ExpiryRange{})
	count(&st.ExpiredDocuments, m.repo.CountDocuments, documents.ExpiryRange{To: &now})
	count(&st.ExpiredChunks, m.repo.CountChunks, documents.ExpiryRange{To: &now})
	count(&st.ExpiringSoonDocuments, m.repo.CountDocuments, documents.ExpiryRange{From: &now, To: &soon})
	count(&st.ExpiringSoonChunks, m.repo.CountChunks, documents.ExpiryRange{From: &now, To: &soon})
	for i := range buckets {
		count(&buckets[i].n, m.repo.CountDocuments, buckets[i].rng)
	}
	g.Go(func() error {
		p, err := m.repo.ProviderCounts(gdbc, ws)
		if err != nil {
			return err
		}
		st.Providers = p
		return nil
	})
	g.Go(func() error {
		oldest, newest, err := m.repo.ExpiryBounds(gdbc, ws)
		if err != nil {
			return err
		}
		st.OldestExpiry, st.NewestExpiry = oldest, newest
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, db.Classify(err)
	}

	for _, b := range buckets {
		st.DocumentsByExpiry[b.name] = b.n
	}
	if st.Providers == nil {
		st.Providers = map[string]int64{}
	}
	return st, nil
}
