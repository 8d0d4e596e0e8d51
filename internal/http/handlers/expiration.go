package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/doccache-backend/internal/domain/docs"
	"github.com/yungbote/doccache-backend/internal/http/response"
	"github.com/yungbote/doccache-backend/internal/modules/doccache/expiration"
)

// ExpirationService is satisfied by *expiration.Manager.
type ExpirationService interface {
	ResolveLimit(limit int) (int, error)
	ResolveBatchSize(batchSize int) (int, error)
	GetExpired(ctx context.Context, workspace string, limit int) ([]*docs.Document, error)
	GetExpiredOptimized(ctx context.Context, workspace string, limit int) ([]*docs.Document, error)
	GetByProvider(ctx context.Context, workspace, provider string, limit int) ([]*docs.Document, error)
	CleanupExpired(ctx context.Context, workspace string, batchSize int) (*expiration.CleanupResult, error)
	GetStatistics(ctx context.Context, workspace string) (*expiration.Statistics, error)
}

type ExpirationHandler struct {
	exp ExpirationService
}

func NewExpirationHandler(exp ExpirationService) *ExpirationHandler {
	return &ExpirationHandler{exp: exp}
}

func (h *ExpirationHandler) limit(c *gin.Context) (int, bool) {
	raw, err := intQuery(c, "limit")
	if err == nil {
		raw, err = h.exp.ResolveLimit(raw)
	}
	if err != nil {
		response.RespondAPIError(c, err, "invalid_limit")
		return 0, false
	}
	return raw, true
}

// GET /api/workspaces/:workspace/expired
func (h *ExpirationHandler) GetExpired(c *gin.Context) {
	h.listExpired(c, false)
}

// GET /api/workspaces/:workspace/expired/optimized
func (h *ExpirationHandler) GetExpiredOptimized(c *gin.Context) {
	h.listExpired(c, true)
}

func (h *ExpirationHandler) listExpired(c *gin.Context, optimized bool) {
	ws := c.Param("workspace")
	limit, ok := h.limit(c)
	if !ok {
		return
	}
	list := h.exp.GetExpired
	if optimized {
		list = h.exp.GetExpiredOptimized
	}
	rows, err := list(c.Request.Context(), ws, limit)
	if err != nil {
		response.RespondAPIError(c, err, "get_expired_failed")
		return
	}
	body := gin.H{
		"workspace":         ws,
		"expired_documents": rows,
		"count":             len(rows),
		"limit":             limit,
	}
	if optimized {
		body["optimized"] = true
	}
	response.RespondOK(c, body)
}

// GET /api/workspaces/:workspace/providers/:provider
func (h *ExpirationHandler) GetByProvider(c *gin.Context) {
	ws := c.Param("workspace")
	provider := c.Param("provider")
	limit, ok := h.limit(c)
	if !ok {
		return
	}
	rows, err := h.exp.GetByProvider(c.Request.Context(), ws, provider, limit)
	if err != nil {
		response.RespondAPIError(c, err, "get_by_provider_failed")
		return
	}
	response.RespondOK(c, gin.H{
		"workspace":       ws,
		"source_provider": provider,
		"documents":       rows,
		"count":           len(rows),
		"limit":           limit,
	})
}

// POST /api/workspaces/:workspace/cleanup
func (h *ExpirationHandler) Cleanup(c *gin.Context) {
	ws := c.Param("workspace")
	batchSize, err := intQuery(c, "batch_size")
	if err == nil {
		batchSize, err = h.exp.ResolveBatchSize(batchSize)
	}
	if err != nil {
		response.RespondAPIError(c, err, "invalid_batch_size")
		return
	}
	res, err := h.exp.CleanupExpired(c.Request.Context(), ws, batchSize)
	if err != nil {
		response.RespondAPIError(c, err, "cleanup_failed")
		return
	}
	response.RespondOK(c, gin.H{
		"workspace":      ws,
		"cleanup_result": res,
		"batch_size":     batchSize,
	})
}

// GET /api/workspaces/:workspace/statistics
func (h *ExpirationHandler) Statistics(c *gin.Context) {
	ws := c.Param("workspace")
	stats, err := h.exp.GetStatistics(c.Request.Context(), ws)
	if err != nil {
		response.RespondAPIError(c, err, "statistics_failed")
		return
	}
	response.RespondOK(c, gin.H{"workspace": ws, "statistics": stats})
}

var _ ExpirationService = (*expiration.Manager)(nil)
