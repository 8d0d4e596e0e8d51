package expiration

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/facebookgo/clock"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/yungbote/doccache-backend/internal/data/db"
	"github.com/yungbote/doccache-backend/internal/data/repos/documents"
	"github.com/yungbote/doccache-backend/internal/domain/docs"
	apperrors "github.com/yungbote/doccache-backend/internal/pkg/errors"
	"github.com/yungbote/doccache-backend/internal/platform/dbctx"
	"github.com/yungbote/doccache-backend/internal/platform/logger"
)

var workspacePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// CacheSweeper removes expired search-cache rows; searchcache.QueryCache satisfies it.
type CacheSweeper interface {
	DeleteExpired(ctx context.Context, batchSize int) (int64, error)
}

type Config struct {
	// Workspaces restricts valid workspace names; empty allows any well-formed name.
	Workspaces         []string
	DefaultLimit       int
	MaxLimit           int
	DefaultBatchSize   int
	MaxBatchSize       int
	BatchBudget        time.Duration
	ExpiringSoonWindow time.Duration
}

func (c Config) withDefaults() Config {
	if c.DefaultLimit <= 0 {
		c.DefaultLimit = 100
	}
	if c.MaxLimit <= 0 {
		c.MaxLimit = 1000
	}
	if c.DefaultBatchSize <= 0 {
		c.DefaultBatchSize = 500
	}
	if c.MaxBatchSize <= 0 {
		c.MaxBatchSize = 5000
	}
	if c.BatchBudget <= 0 {
		c.BatchBudget = 30 * time.Second
	}
	if c.ExpiringSoonWindow <= 0 {
		c.ExpiringSoonWindow = 24 * time.Hour
	}
	return c
}

type Manager struct {
	repo    documents.DocumentRepo
	cache   CacheSweeper
	clock   clock.Clock
	cfg     Config
	allowed map[string]bool
	log     *logger.Logger
}

func NewManager(repo documents.DocumentRepo, cache CacheSweeper, clk clock.Clock, cfg Config, baseLog *logger.Logger) *Manager {
	if clk == nil {
		clk = clock.New()
	}
	if baseLog == nil {
		baseLog = logger.Nop()
	}
	cfg = cfg.withDefaults()
	var allowed map[string]bool
	if len(cfg.Workspaces) > 0 {
		allowed = make(map[string]bool, len(cfg.Workspaces))
		for _, w := range cfg.Workspaces {
			allowed[strings.ToLower(strings.TrimSpace(w))] = true
		}
	}
	return &Manager{
		repo:    repo,
		cache:   cache,
		clock:   clk,
		cfg:     cfg,
		allowed: allowed,
		log:     baseLog.With("module", "ExpirationManager"),
	}
}

// Workspaces returns the configured allow-list, or the default workspace when
// any name is accepted.
func (m *Manager) Workspaces() []string {
	if len(m.cfg.Workspaces) == 0 {
		return []string{docs.DefaultWorkspace}
	}
	return append([]string(nil), m.cfg.Workspaces...)
}

func (m *Manager) ValidateWorkspace(workspace string) (string, error) {
	ws := strings.TrimSpace(workspace)
	if !workspacePattern.MatchString(ws) {
		return "", apperrors.Invalid("workspace", workspace, "must match "+workspacePattern.String())
	}
	if m.allowed != nil && !m.allowed[ws] {
		return "", apperrors.Invalid("workspace", workspace, "not a configured workspace")
	}
	return ws, nil
}

// ResolveLimit applies the default for 0 and rejects values outside [1, MaxLimit].
func (m *Manager) ResolveLimit(limit int) (int, error) {
	return resolveBound("limit", limit, m.cfg.DefaultLimit, m.cfg.MaxLimit)
}

func (m *Manager) ResolveBatchSize(batchSize int) (int, error) {
	return resolveBound("batch_size", batchSize, m.cfg.DefaultBatchSize, m.cfg.MaxBatchSize)
}

func resolveBound(field string, v, def, max int) (int, error) {
	switch {
	case v == 0:
		return def, nil
	case v < 0 || v > max:
		return 0, apperrors.Invalid(field, strconv.Itoa(v), fmt.Sprintf("must be between 1 and %d", max))
	default:
		return v, nil
	}
}

// GetExpired lists documents with expires_at < now, oldest expiry first.
func (m *Manager) GetExpired(ctx context.Context, workspace string, limit int) ([]*docs.Document, error) {
	ws, limit, err := m.scope(workspace, limit)
	if err != nil {
		return nil, err
	}
	rows, err := m.repo.ListExpired(dbctx.Context{Ctx: ctx}, ws, m.now(), limit)
	if err != nil {
		return nil, db.Classify(err)
	}
	return rows, nil
}

// GetExpiredOptimized returns exactly what GetExpired returns, reading ids through
// the (workspace, expires_at, content_id) index first.
func (m *Manager) GetExpiredOptimized(ctx context.Context, workspace string, limit int) ([]*docs.Document, error) {
	ws, limit, err := m.scope(workspace, limit)
	if err != nil {
		return nil, err
	}
	rows, err := m.repo.ListExpiredIndexed(dbctx.Context{Ctx: ctx}, ws, m.now(), limit)
	if err != nil {
		return nil, db.Classify(err)
	}
	return rows, nil
}

func (m *Manager) GetByProvider(ctx context.Context, workspace, provider string, limit int) ([]*docs.Document, error) {
	ws, limit, err := m.scope(workspace, limit)
	if err != nil {
		return nil, err
	}
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return nil, apperrors.Invalid("source_provider", "", "must not be empty")
	}
	rows, err := m.repo.ListByProvider(dbctx.Context{Ctx: ctx}, ws, provider, limit)
	if err != nil {
		return nil, db.Classify(err)
	}
	return rows, nil
}

func (m *Manager) scope(workspace string, limit int) (string, int, error) {
	ws, err := m.ValidateWorkspace(workspace)
	if err != nil {
		return "", 0, err
	}
	limit, err = m.ResolveLimit(limit)
	if err != nil {
		return "", 0, err
	}
	return ws, limit, nil
}

type BatchFailure struct {
	Documents int    `json:"documents"`
	Error     string `json:"error"`
}

type CleanupResult struct {
	DeletedDocuments int64          `json:"deleted_documents"`
	DeletedChunks    int64          `json:"deleted_chunks"`
	Message          string         `json:"message"`
	DurationSeconds  float64        `json:"duration_seconds"`
	Batches          int            `json:"batches"`
	FailedBatches    []BatchFailure `json:"failed_batches,omitempty"`
	// Partial is set when a batch ran out of its time budget and the run stopped early.
	Partial bool `json:"partial,omitempty"`
}

// CleanupExpired deletes expired documents and their chunks, batchSize at a time.
// Each batch is one transaction with its own time budget. A failed batch is
// retried once as two half-size batches; what still fails is reported and
// skipped. Running it again right after deletes nothing.
func (m *Manager) CleanupExpired(ctx context.Context, workspace string, batchSize int) (*CleanupResult, error) {
	ws, err := m.ValidateWorkspace(workspace)
	if err != nil {
		return nil, err
	}
	batchSize, err = m.ResolveBatchSize(batchSize)
	if err != nil {
		return nil, err
	}

	ctx, span := otel.Tracer("doccache").Start(ctx, "expiration.cleanup")
	defer span.End()
	span.SetAttributes(attribute.String("workspace", ws), attribute.Int("batch_size", batchSize))

	log := m.log.WithContext(ctx).With("workspace", ws)
	start := time.Now()
	now := m.now()
	res := &CleanupResult{}

	finish := func(err error) (*CleanupResult, error) {
		res.DurationSeconds = time.Since(start).Seconds()
		res.Message = cleanupMessage(res)
		span.SetAttributes(
			attribute.Int64("deleted_documents", res.DeletedDocuments),
			attribute.Int64("deleted_chunks", res.DeletedChunks),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "cleanup aborted")
			log.Error("cleanup aborted", "error", err, "deleted_documents", res.DeletedDocuments)
			return res, err
		}
		log.Info("cleanup done",
			"deleted_documents", res.DeletedDocuments,
			"deleted_chunks", res.DeletedChunks,
			"batches", res.Batches,
			"failed_batches", len(res.FailedBatches),
			"partial", res.Partial,
		)
		return res, nil
	}

	var cursor *documents.ExpiryKey
	for {
		if ctx.Err() != nil {
			res.Partial = true
			return finish(nil)
		}
		keys, err := m.repo.ExpiredKeysAfter(dbctx.Context{Ctx: ctx}, ws, now, cursor, batchSize)
		if err != nil {
			return finish(db.Classify(err))
		}
		if len(keys) == 0 {
			return finish(nil)
		}
		ids := make([]uuid.UUID, len(keys))
		for i, k := range keys {
			ids[i] = k.ID
		}

		docsN, chunksN, err := m.deleteBatch(ctx, ws, ids, now)
		res.Batches++
		res.DeletedDocuments += docsN
		res.DeletedChunks += chunksN
		if err != nil {
			var budget *apperrors.TimeoutError
			switch {
			case apperrors.IsSystemic(err):
				return finish(err)
			case errors.As(err, &budget):
				res.Partial = true
				log.Warn("cleanup batch exceeded its time budget", "budget", m.cfg.BatchBudget)
				return finish(nil)
			default:
				var pf *apperrors.CleanupPartialFailure
				if errors.As(err, &pf) {
					res.FailedBatches = append(res.FailedBatches, BatchFailure{Documents: pf.Documents, Error: pf.Error()})
				}
				log.Warn("cleanup batch failed after retry", "error", err)
			}
		}

		last := keys[len(keys)-1]
		cursor = &last
		if len(keys) < batchSize {
			return finish(nil)
		}
	}
}

// deleteBatch runs one batch under the time budget; on failure it retries the
// batch once as two smaller batches.
func (m *Manager) deleteBatch(ctx context.Context, ws string, ids []uuid.UUID, now time.Time) (int64, int64, error) {
	bctx, cancel := context.WithTimeout(ctx, m.cfg.BatchBudget)
	defer cancel()

	docsN, chunksN, err := m.repo.DeleteExpiredByIDs(dbctx.Context{Ctx: bctx}, ws, ids, now)
	if err == nil {
		return docsN, chunksN, nil
	}
	if classified := m.batchError(ctx, bctx, err); classified != nil {
		return 0, 0, classified
	}
	m.log.WithContext(ctx).Warn("cleanup batch failed, retrying smaller", "documents", len(ids), "error", err)

	var (
		docsTotal, chunksTotal int64
		lastErr                error
		failedN                int
		halfSize               = (len(ids) + 1) / 2
	)
	for lo := 0; lo < len(ids); lo += halfSize {
		hi := lo + halfSize
		if hi > len(ids) {
			hi = len(ids)
		}
		d, c, herr := m.repo.DeleteExpiredByIDs(dbctx.Context{Ctx: bctx}, ws, ids[lo:hi], now)
		if herr != nil {
			if classified := m.batchError(ctx, bctx, herr); classified != nil {
				return docsTotal, chunksTotal, classified
			}
			lastErr = herr
			failedN += hi - lo
			continue
		}
		docsTotal += d
		chunksTotal += c
	}
	if lastErr != nil {
		return docsTotal, chunksTotal, &apperrors.CleanupPartialFailure{BatchSize: halfSize, Documents: failedN, Err: lastErr}
	}
	return docsTotal, chunksTotal, nil
}

// batchError returns a non-nil error when the failure is not worth a retry:
// the store is gone, or the batch ran out of time.
func (m *Manager) batchError(ctx, bctx context.Context, err error) error {
	err = db.Classify(err)
	if apperrors.IsSystemic(err) {
		return err
	}
	if bctx.Err() != nil && ctx.Err() == nil {
		return &apperrors.TimeoutError{Op: "cleanup batch", After: m.cfg.BatchBudget, Err: err}
	}
	if ctx.Err() != nil {
		return &apperrors.TimeoutError{Op: "cleanup", Err: ctx.Err()}
	}
	return nil
}

func cleanupMessage(r *CleanupResult) string {
	var b strings.Builder
	if r.DeletedDocuments == 0 && len(r.FailedBatches) == 0 {
		b.WriteString("no expired documents to delete")
	} else {
		fmt.Fprintf(&b, "deleted %d expired documents and %d chunks", r.DeletedDocuments, r.DeletedChunks)
	}
	if n := len(r.FailedBatches); n > 0 {
		fmt.Fprintf(&b, "; %d batch(es) failed", n)
	}
	if r.Partial {
		b.WriteString("; stopped early, run again to continue")
	}
	return b.String()
}

// CleanupExpiredCache sweeps expired search-cache rows.
func (m *Manager) CleanupExpiredCache(ctx context.Context, batchSize int) (int64, error) {
	if m.cache == nil {
		return 0, nil
	}
	batchSize, err := m.ResolveBatchSize(batchSize)
	if err != nil {
		return 0, err
	}
	n, err := m.cache.DeleteExpired(ctx, batchSize)
	if err != nil {
		return n, db.Classify(err)
	}
	if n > 0 {
		m.log.WithContext(ctx).Info("search cache swept", "deleted", n)
	}
	return n, nil
}

func (m *Manager) now() time.Time { return m.clock.Now().UTC() }
