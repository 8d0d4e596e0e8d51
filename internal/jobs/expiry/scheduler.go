package expiry

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron"

	"github.com/yungbote/doccache-backend/internal/modules/doccache/expiration"
	"github.com/yungbote/doccache-backend/internal/platform/ctxutil"
	"github.com/yungbote/doccache-backend/internal/platform/logger"
)

// Sweeper is the part of the expiration manager the scheduler drives.
type Sweeper interface {
	Workspaces() []string
	CleanupExpired(ctx context.Context, workspace string, batchSize int) (*expiration.CleanupResult, error)
	CleanupExpiredCache(ctx context.Context, batchSize int) (int64, error)
}

type Config struct {
	// Schedule is a robfig/cron spec ("@every 1h", "0 */30 * * * *"). Empty disables Start.
	Schedule  string
	BatchSize int
	// SweepCache also removes expired search-cache rows on every run.
	SweepCache bool
}

type WorkspaceReport struct {
	Workspace string                    `json:"workspace"`
	Result    *expiration.CleanupResult `json:"cleanup_result,omitempty"`
	Error     string                    `json:"error,omitempty"`
}

type Report struct {
	RunID             string            `json:"run_id"`
	Workspaces        []WorkspaceReport `json:"workspaces"`
	CacheEntriesSwept int64             `json:"cache_entries_swept"`
	CacheError        string            `json:"cache_error,omitempty"`
	Duration          time.Duration     `json:"duration"`
}

// Failed reports whether any workspace or the cache sweep returned an error.
func (r *Report) Failed() bool {
	if r.CacheError != "" {
		return true
	}
	for _, w := range r.Workspaces {
		if w.Error != "" {
			return true
		}
	}
	return false
}

type Scheduler struct {
	sweeper Sweeper
	cfg     Config
	log     *logger.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	cancel  context.CancelFunc
	running int32
}

func NewScheduler(sweeper Sweeper, cfg Config, baseLog *logger.Logger) (*Scheduler, error) {
	cfg.Schedule = strings.TrimSpace(cfg.Schedule)
	if cfg.Schedule != "" {
		if _, err := cron.Parse(cfg.Schedule); err != nil {
			return nil, fmt.Errorf("expiry schedule %q: %w", cfg.Schedule, err)
		}
	}
	if baseLog == nil {
		baseLog = logger.Nop()
	}
	return &Scheduler{
		sweeper: sweeper,
		cfg:     cfg,
		log:     baseLog.With("component", "ExpiryScheduler"),
	}, nil
}

// Start registers the sweep on the cron schedule. Runs stop when ctx is done or
// Stop is called. A run that is still going when the next tick fires is skipped.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil || s.cfg.Schedule == "" {
		if s.cfg.Schedule == "" {
			s.log.Info("Expiry sweep disabled (no schedule)")
		}
		return
	}
	runCtx, cancel := context.WithCancel(ctxutil.Default(ctx))
	c := cron.New()
	// Schedule was validated in NewScheduler.
	_ = c.AddFunc(s.cfg.Schedule, func() { s.tick(runCtx) })
	c.Start()
	s.cron = c
	s.cancel = cancel
	s.log.Info("Expiry sweep scheduled", "schedule", s.cfg.Schedule, "workspaces", s.sweeper.Workspaces())
}

func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil {
		return
	}
	s.cron.Stop()
	s.cancel()
	s.cron = nil
	s.cancel = nil
	s.log.Info("Expiry sweep stopped")
}

func (s *Scheduler) tick(ctx context.Context) {
	if !atomic.CompareAndSwapInt32(&s.running, 0, 1) {
		s.log.Warn("Expiry sweep still running; skipping tick")
		return
	}
	defer atomic.StoreInt32(&s.running, 0)
	s.RunOnce(ctx)
}

// RunOnce cleans every workspace in turn, then the search cache. One workspace
// failing does not stop the others.
func (s *Scheduler) RunOnce(ctx context.Context) *Report {
	ctx = ctxutil.Default(ctx)
	rep := &Report{RunID: uuid.NewString()}
	ctx = ctxutil.WithCorrelationID(ctx, rep.RunID)
	log := s.log.WithContext(ctx)
	start := time.Now()

	for _, ws := range s.sweeper.Workspaces() {
		if ctx.Err() != nil {
			break
		}
		wr := WorkspaceReport{Workspace: ws}
		res, err := s.sweeper.CleanupExpired(ctx, ws, s.cfg.BatchSize)
		wr.Result = res
		if err != nil {
			wr.Error = err.Error()
			log.Error("Expiry sweep failed", "workspace", ws, "error", err)
		} else if res != nil {
			log.Info("Expiry sweep done", "workspace", ws, "deleted_documents", res.DeletedDocuments, "deleted_chunks", res.DeletedChunks, "partial", res.Partial)
		}
		rep.Workspaces = append(rep.Workspaces, wr)
	}

	if s.cfg.SweepCache && ctx.Err() == nil {
		n, err := s.sweeper.CleanupExpiredCache(ctx, s.cfg.BatchSize)
		rep.CacheEntriesSwept = n
		if err != nil {
			rep.CacheError = err.Error()
			log.Error("Search cache sweep failed", "error", err)
		}
	}
	rep.Duration = time.Since(start)
	return rep
}
