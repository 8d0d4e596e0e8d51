package ingestion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/doccache-backend/internal/data/db"
	"github.com/yungbote/doccache-backend/internal/domain/docs"
	apperrors "github.com/yungbote/doccache-backend/internal/pkg/errors"
	"github.com/yungbote/doccache-backend/internal/platform/ctxutil"
	"github.com/yungbote/doccache-backend/internal/platform/dbctx"
	"github.com/yungbote/doccache-backend/internal/platform/logger"
)

type Normalizer interface {
	Normalize(raw *docs.RawResult, sourceProvider string) (*docs.Document, error)
}

// DocumentWriter is the store side of ingestion; DocumentRepo satisfies it.
type DocumentWriter interface {
	Upsert(dbc dbctx.Context, doc *docs.Document, chunks []*docs.DocumentChunk) (*docs.Document, bool, error)
}

type Config struct {
	PoolSize    int
	ItemTimeout time.Duration
	RetryDelay  time.Duration
	ChunkSize   int
}

func (c Config) withDefaults() Config {
	if c.PoolSize <= 0 {
		c.PoolSize = 8
	}
	if c.ItemTimeout <= 0 {
		c.ItemTimeout = 15 * time.Second
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 100 * time.Millisecond
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = 1500
	}
	return c
}

type Failure struct {
	Index  int                     `json:"index"`
	Reason apperrors.FailureReason `json:"reason"`
	Error  string                  `json:"error"`
}

// Outcome is the result for one input item, at its input position.
type Outcome struct {
	Index     int
	ContentID uuid.UUID
	Created   bool
	Err       error
}

type BatchResult struct {
	CorrelationID string      `json:"correlation_id"`
	Total         int         `json:"total"`
	Succeeded     []uuid.UUID `json:"succeeded"`
	Failed        []Failure   `json:"failed"`
	Created       int         `json:"created"`
	Outcomes      []Outcome   `json:"-"`
}

func (b *BatchResult) SucceededCount() int { return len(b.Succeeded) }
func (b *BatchResult) FailedCount() int    { return len(b.Failed) }

type Pipeline struct {
	normalizer Normalizer
	writer     DocumentWriter
	cfg        Config
	log        *logger.Logger
}

func NewPipeline(normalizer Normalizer, writer DocumentWriter, cfg Config, baseLog *logger.Logger) *Pipeline {
	if baseLog == nil {
		baseLog = logger.Nop()
	}
	return &Pipeline{
		normalizer: normalizer,
		writer:     writer,
		cfg:        cfg.withDefaults(),
		log:        baseLog.With("module", "IngestionPipeline"),
	}
}

// Ingest normalizes and stores every raw result on a bounded worker pool. One
// item failing never fails the others; the returned error is non-nil only when
// the store is unreachable, in which case the partial result is still returned.
func (p *Pipeline) Ingest(ctx context.Context, raws []docs.RawResult, sourceProvider, correlationID string) (*BatchResult, error) {
	return p.IngestInto(ctx, "", raws, sourceProvider, correlationID)
}

// IngestInto is Ingest with documents stored under workspace instead of the
// normalizer's configured one. An empty workspace keeps the configured one.
func (p *Pipeline) IngestInto(ctx context.Context, workspace string, raws []docs.RawResult, sourceProvider, correlationID string) (*BatchResult, error) {
	workspace = strings.TrimSpace(workspace)
	sourceProvider = strings.TrimSpace(sourceProvider)
	if sourceProvider == "" {
		return nil, apperrors.Invalid("source_provider", "", "must not be empty")
	}
	if strings.TrimSpace(correlationID) == "" {
		correlationID = uuid.NewString()
	}
	ctx = ctxutil.WithCorrelationID(ctx, correlationID)

	ctx, span := otel.Tracer("doccache").Start(ctx, "ingest.batch")
	defer span.End()
	span.SetAttributes(
		attribute.String("correlation_id", correlationID),
		attribute.String("source_provider", sourceProvider),
		attribute.Int("batch_size", len(raws)),
		attribute.String("workspace", workspace),
	)

	log := p.log.WithContext(ctx)
	start := time.Now()

	outcomes := make([]Outcome, len(raws))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.PoolSize)

	for i := range raws {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				outcomes[i] = Outcome{Index: i, Err: err}
				return nil
			}
			outcomes[i] = p.ingestOne(gctx, i, &raws[i], workspace, sourceProvider)
			if apperrors.IsSystemic(outcomes[i].Err) {
				return outcomes[i].Err
			}
			return nil
		})
	}
	batchErr := g.Wait()

	res := &BatchResult{
		CorrelationID: correlationID,
		Total:         len(raws),
		Succeeded:     make([]uuid.UUID, 0, len(raws)),
		Failed:        make([]Failure, 0),
		Outcomes:      outcomes,
	}
	for _, o := range outcomes {
		if o.Err == nil {
			res.Succeeded = append(res.Succeeded, o.ContentID)
			if o.Created {
				res.Created++
			}
			continue
		}
		res.Failed = append(res.Failed, Failure{
			Index:  o.Index,
			Reason: apperrors.Reason(o.Err),
			Error:  o.Err.Error(),
		})
	}

	span.SetAttributes(
		attribute.Int("succeeded", res.SucceededCount()),
		attribute.Int("failed", res.FailedCount()),
	)
	if batchErr != nil {
		span.RecordError(batchErr)
		span.SetStatus(codes.Error, "store unavailable")
		log.Error("ingest batch aborted", "error", batchErr, "succeeded", res.SucceededCount(), "failed", res.FailedCount())
		return res, fmt.Errorf("ingest batch: %w", batchErr)
	}
	log.Info("ingest batch done",
		"source_provider", sourceProvider,
		"total", res.Total,
		"succeeded", res.SucceededCount(),
		"failed", res.FailedCount(),
		"created", res.Created,
		"duration", time.Since(start),
	)
	return res, nil
}

func (p *Pipeline) ingestOne(ctx context.Context, idx int, raw *docs.RawResult, workspace, provider string) Outcome {
	itemCtx, cancel := context.WithTimeout(ctx, p.cfg.ItemTimeout)
	defer cancel()

	itemCtx, span := otel.Tracer("doccache").Start(itemCtx, "ingest.item")
	defer span.End()
	span.SetAttributes(attribute.Int("index", idx))

	out := Outcome{Index: idx}
	log := p.log.WithContext(itemCtx).With("index", idx)

	doc, err := p.normalizer.Normalize(raw, provider)
	if err != nil {
		var nerr *apperrors.NormalizationError
		if !errors.As(err, &nerr) {
			err = &apperrors.NormalizationError{Reason: "normalize", Err: err}
		}
		out.Err = err
		span.RecordError(err)
		log.Warn("normalization failed", "error", err)
		return out
	}
	if workspace != "" {
		doc.Workspace = workspace
	}
	chunks := Chunk(doc.Content, p.cfg.ChunkSize)

	type written struct {
		doc     *docs.Document
		created bool
	}
	attempt := 0
	w, err := backoff.Retry(itemCtx, func() (written, error) {
		attempt++
		stored, created, err := p.writer.Upsert(dbctx.Context{Ctx: itemCtx}, doc, chunks)
		if err == nil {
			return written{doc: stored, created: created}, nil
		}
		err = db.Classify(err)
		if apperrors.IsSystemic(err) || apperrors.IsValidation(err) || itemCtx.Err() != nil {
			return written{}, backoff.Permanent(err)
		}
		log.Warn("document write failed", "attempt", attempt, "error", err)
		return written{}, err
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(p.cfg.RetryDelay)),
		backoff.WithMaxTries(2),
	)
	if err != nil {
		out.Err = p.itemError(ctx, itemCtx, err)
		span.RecordError(out.Err)
		span.SetStatus(codes.Error, string(apperrors.Reason(out.Err)))
		log.Warn("document write gave up", "reason", apperrors.Reason(out.Err), "error", err)
		return out
	}

	out.ContentID = w.doc.ID
	out.Created = w.created
	span.SetAttributes(
		attribute.String("content_id", w.doc.ID.String()),
		attribute.Bool("created", w.created),
	)
	log.Debug("document stored", "content_id", w.doc.ID, "technology", w.doc.Technology, "created", w.created, "chunks", len(chunks))
	return out
}

// itemError maps a write failure to the taxonomy: an item whose own deadline
// fired is a timeout; a systemic error stays systemic; anything else is a
// store write failure.
func (p *Pipeline) itemError(batchCtx, itemCtx context.Context, err error) error {
	var perm *backoff.PermanentError
	if errors.As(err, &perm) && perm.Err != nil {
		err = perm.Err
	}
	if apperrors.IsSystemic(err) {
		return err
	}
	if errors.Is(itemCtx.Err(), context.DeadlineExceeded) && batchCtx.Err() == nil {
		return &apperrors.TimeoutError{Op: "ingest item", After: p.cfg.ItemTimeout, Err: err}
	}
	return &apperrors.StoreWriteError{Op: "upsert document", Err: err}
}
