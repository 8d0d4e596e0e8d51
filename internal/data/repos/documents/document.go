package documents

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/doccache-backend/internal/domain/docs"
	apperrors "github.com/yungbote/doccache-backend/internal/pkg/errors"
	"github.com/yungbote/doccache-backend/internal/platform/dbctx"
	"github.com/yungbote/doccache-backend/internal/platform/logger"
)

// ExpiryKey identifies a document in expiry order; it doubles as a keyset cursor.
type ExpiryKey struct {
	ID        uuid.UUID `gorm:"column:content_id"`
	ExpiresAt time.Time `gorm:"column:expires_at"`
}

// ExpiryRange selects documents by expires_at: From is inclusive, To exclusive.
// Never selects documents without an expiry and ignores From/To.
type ExpiryRange struct {
	From  *time.Time
	To    *time.Time
	Never bool
}

type DocumentRepo interface {
	// Upsert writes doc keyed by (workspace, technology, content_hash) and replaces
	// its chunks in the same transaction. It returns the stored row and whether it
	// was newly created.
	Upsert(dbc dbctx.Context, doc *types.Document, chunks []*types.DocumentChunk) (*types.Document, bool, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Document, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Document, error)
	ListChunks(dbc dbctx.Context, documentID uuid.UUID) ([]*types.DocumentChunk, error)

	ListExpired(dbc dbctx.Context, workspace string, now time.Time, limit int) ([]*types.Document, error)
	ListExpiredIndexed(dbc dbctx.Context, workspace string, now time.Time, limit int) ([]*types.Document, error)
	ExpiredKeysAfter(dbc dbctx.Context, workspace string, now time.Time, after *ExpiryKey, limit int) ([]ExpiryKey, error)
	DeleteExpiredByIDs(dbc dbctx.Context, workspace string, ids []uuid.UUID, now time.Time) (int64, int64, error)

	ListByProvider(dbc dbctx.Context, workspace, provider string, limit int) ([]*types.Document, error)

	CountDocuments(dbc dbctx.Context, workspace string, r ExpiryRange) (int64, error)
	CountChunks(dbc dbctx.Context, workspace string, r ExpiryRange) (int64, error)
	ProviderCounts(dbc dbctx.Context, workspace string) (map[string]int64, error)
	ExpiryBounds(dbc dbctx.Context, workspace string) (*time.Time, *time.Time, error)
}

type documentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDocumentRepo(db *gorm.DB, baseLog *logger.Logger) DocumentRepo {
	return &documentRepo{db: db, log: baseLog.With("repo", "DocumentRepo")}
}

var upsertColumns = []string{
	"title",
	"source_url",
	"content",
	"processing_status",
	"quality_score",
	"metadata",
	"expires_at",
	"source_provider",
	"updated_at",
}

func (r *documentRepo) Upsert(dbc dbctx.Context, doc *types.Document, chunks []*types.DocumentChunk) (*types.Document, bool, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if doc == nil {
		return nil, false, apperrors.Invalid("document", "", "nil")
	}
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}

	var (
		stored  types.Document
		created bool
	)
	err := t.WithContext(dbc.Ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "workspace"},
				{Name: "technology"},
				{Name: "content_hash"},
			},
			DoUpdates: clause.AssignmentColumns(upsertColumns),
		}).Create(doc).Error; err != nil {
			return err
		}

		// On conflict the row keeps its original content_id, so read it back.
		if err := tx.
			Where("workspace = ? AND technology = ? AND content_hash = ?", doc.Workspace, doc.Technology, doc.ContentHash).
			Take(&stored).Error; err != nil {
			return err
		}
		created = stored.ID == doc.ID

		if err := tx.Where("document_id = ?", stored.ID).Delete(&types.DocumentChunk{}).Error; err != nil {
			return err
		}
		if len(chunks) == 0 {
			return nil
		}
		for _, c := range chunks {
			c.ID = uuid.Nil
			c.DocumentID = stored.ID
			c.Workspace = stored.Workspace
			if c.CreatedAt.IsZero() {
				c.CreatedAt = stored.UpdatedAt
			}
		}
		return tx.CreateInBatches(chunks, 200).Error
	})
	if err != nil {
		return nil, false, err
	}
	return &stored, created, nil
}

func (r *documentRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Document, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out types.Document
	if err := t.WithContext(dbc.Ctx).Where("content_id = ?", id).Take(&out).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &out, nil
}

func (r *documentRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Document, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.Document
	if len(ids) == 0 {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).Where("content_id IN ?", ids).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *documentRepo) ListChunks(dbc dbctx.Context, documentID uuid.UUID) ([]*types.DocumentChunk, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.DocumentChunk
	if err := t.WithContext(dbc.Ctx).
		Where("document_id = ?", documentID).
		Order("position ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *documentRepo) ListExpired(dbc dbctx.Context, workspace string, now time.Time, limit int) ([]*types.Document, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.Document
	if err := t.WithContext(dbc.Ctx).
		Where("workspace = ? AND expires_at IS NOT NULL AND expires_at < ?", workspace, now).
		Order("expires_at ASC").
		Order("content_id ASC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// ListExpiredIndexed returns the same rows as ListExpired. The id scan reads only
// idx_document_workspace_expiry (workspace, expires_at, content_id), and full rows
// are then fetched by primary key.
func (r *documentRepo) ListExpiredIndexed(dbc dbctx.Context, workspace string, now time.Time, limit int) ([]*types.Document, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	keys, err := r.ExpiredKeysAfter(dbctx.Context{Ctx: dbc.Ctx, Tx: t}, workspace, now, nil, limit)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return []*types.Document{}, nil
	}
	ids := make([]uuid.UUID, len(keys))
	for i, k := range keys {
		ids[i] = k.ID
	}
	rows, err := r.GetByIDs(dbctx.Context{Ctx: dbc.Ctx, Tx: t}, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]*types.Document, len(rows))
	for _, d := range rows {
		byID[d.ID] = d
	}
	out := make([]*types.Document, 0, len(keys))
	for _, id := range ids {
		// A row deleted between the two reads is simply skipped.
		if d, ok := byID[id]; ok {
			out = append(out, d)
		}
	}
	return out, nil
}

func (r *documentRepo) ExpiredKeysAfter(dbc dbctx.Context, workspace string, now time.Time, after *ExpiryKey, limit int) ([]ExpiryKey, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	q := t.WithContext(dbc.Ctx).
		Model(&types.Document{}).
		Select("content_id", "expires_at").
		Where("workspace = ? AND expires_at IS NOT NULL AND expires_at < ?", workspace, now)
	if after != nil {
		q = q.Where("(expires_at > ? OR (expires_at = ? AND content_id > ?))", after.ExpiresAt, after.ExpiresAt, after.ID)
	}
	var out []ExpiryKey
	if err := q.
		Order("expires_at ASC").
		Order("content_id ASC").
		Limit(limit).
		Scan(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteExpiredByIDs deletes the documents among ids that are still expired at
// now, together with their chunks, in one transaction.
func (r *documentRepo) DeleteExpiredByIDs(dbc dbctx.Context, workspace string, ids []uuid.UUID, now time.Time) (int64, int64, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if len(ids) == 0 {
		return 0, 0, nil
	}
	var deletedDocs, deletedChunks int64
	err := t.WithContext(dbc.Ctx).Transaction(func(tx *gorm.DB) error {
		var live []uuid.UUID
		if err := tx.Model(&types.Document{}).
			Where("workspace = ? AND content_id IN ? AND expires_at IS NOT NULL AND expires_at < ?", workspace, ids, now).
			Pluck("content_id", &live).Error; err != nil {
			return err
		}
		if len(live) == 0 {
			return nil
		}
		res := tx.Where("document_id IN ?", live).Delete(&types.DocumentChunk{})
		if res.Error != nil {
			return res.Error
		}
		deletedChunks = res.RowsAffected
		res = tx.Where("content_id IN ?", live).Delete(&types.Document{})
		if res.Error != nil {
			return res.Error
		}
		deletedDocs = res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return deletedDocs, deletedChunks, nil
}

func (r *documentRepo) ListByProvider(dbc dbctx.Context, workspace, provider string, limit int) ([]*types.Document, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.Document
	if err := t.WithContext(dbc.Ctx).
		Where("workspace = ? AND source_provider = ?", workspace, provider).
		Order("updated_at DESC").
		Order("content_id ASC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *documentRepo) CountDocuments(dbc dbctx.Context, workspace string, rng ExpiryRange) (int64, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var n int64
	q := applyRange(t.WithContext(dbc.Ctx).Model(&types.Document{}).Where("workspace = ?", workspace), "expires_at", rng)
	if err := q.Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

func (r *documentRepo) CountChunks(dbc dbctx.Context, workspace string, rng ExpiryRange) (int64, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var n int64
	q := t.WithContext(dbc.Ctx).
		Model(&types.DocumentChunk{}).
		Joins("JOIN document ON document.content_id = document_chunk.document_id").
		Where("document.workspace = ?", workspace)
	q = applyRange(q, "document.expires_at", rng)
	if err := q.Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

func (r *documentRepo) ProviderCounts(dbc dbctx.Context, workspace string) (map[string]int64, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var rows []struct {
		SourceProvider string
		N              int64
	}
	if err := t.WithContext(dbc.Ctx).
		Model(&types.Document{}).
		Select("source_provider, COUNT(*) AS n").
		Where("workspace = ?", workspace).
		Group("source_provider").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.SourceProvider] = row.N
	}
	return out, nil
}

// ExpiryBounds returns the earliest and latest expires_at in the workspace, nil
// when no document expires.
func (r *documentRepo) ExpiryBounds(dbc dbctx.Context, workspace string) (*time.Time, *time.Time, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	edge := func(order string) (*time.Time, error) {
		var ts []time.Time
		if err := t.WithContext(dbc.Ctx).
			Model(&types.Document{}).
			Where("workspace = ? AND expires_at IS NOT NULL", workspace).
			Order("expires_at "+order).
			Limit(1).
			Pluck("expires_at", &ts).Error; err != nil {
			return nil, err
		}
		if len(ts) == 0 {
			return nil, nil
		}
		v := ts[0].UTC()
		return &v, nil
	}
	oldest, err := edge("ASC")
	if err != nil {
		return nil, nil, err
	}
	newest, err := edge("DESC")
	if err != nil {
		return nil, nil, err
	}
	return oldest, newest, nil
}

func applyRange(q *gorm.DB, col string, rng ExpiryRange) *gorm.DB {
	if rng.Never {
		return q.Where(col + " IS NULL")
	}
	if rng.From != nil {
		q = q.Where(col+" >= ?", *rng.From)
	}
	if rng.To != nil {
		q = q.Where(col+" < ?", *rng.To)
	}
	return q
}
