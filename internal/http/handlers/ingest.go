package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/doccache-backend/internal/domain/docs"
	"github.com/yungbote/doccache-backend/internal/http/response"
	"github.com/yungbote/doccache-backend/internal/modules/doccache/ingestion"
	"github.com/yungbote/doccache-backend/internal/platform/ctxutil"
)

type Ingester interface {
	IngestInto(ctx context.Context, workspace string, raws []docs.RawResult, sourceProvider, correlationID string) (*ingestion.BatchResult, error)
}

type WorkspaceValidator interface {
	ValidateWorkspace(workspace string) (string, error)
}

type IngestHandler struct {
	ingester   Ingester
	workspaces WorkspaceValidator
}

func NewIngestHandler(ingester Ingester, workspaces WorkspaceValidator) *IngestHandler {
	return &IngestHandler{ingester: ingester, workspaces: workspaces}
}

type ingestRequest struct {
	SourceProvider string           `json:"source_provider"`
	CorrelationID  string           `json:"correlation_id"`
	Workspace      string           `json:"workspace"`
	Results        []docs.RawResult `json:"results"`
}

type ingestResponse struct {
	CorrelationID  string              `json:"correlation_id"`
	Total          int                 `json:"total"`
	SucceededCount int                 `json:"succeeded_count"`
	FailedCount    int                 `json:"failed_count"`
	Created        int                 `json:"created"`
	Succeeded      []uuid.UUID         `json:"succeeded"`
	Failed         []ingestion.Failure `json:"failed"`
}

func toIngestResponse(res *ingestion.BatchResult) ingestResponse {
	return ingestResponse{
		CorrelationID:  res.CorrelationID,
		Total:          res.Total,
		SucceededCount: res.SucceededCount(),
		FailedCount:    res.FailedCount(),
		Created:        res.Created,
		Succeeded:      res.Succeeded,
		Failed:         res.Failed,
	}
}

// POST /api/ingest
// Partial success is still a 200; the body lists every failed index.
func (h *IngestHandler) Ingest(c *gin.Context) {
	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if strings.TrimSpace(req.Workspace) != "" && h.workspaces != nil {
		if _, err := h.workspaces.ValidateWorkspace(req.Workspace); err != nil {
			response.RespondAPIError(c, err, "ingest_failed")
			return
		}
	}
	corrID := strings.TrimSpace(req.CorrelationID)
	if corrID == "" {
		corrID = ctxutil.CorrelationID(c.Request.Context())
	}

	res, err := h.ingester.IngestInto(c.Request.Context(), req.Workspace, req.Results, req.SourceProvider, corrID)
	if err != nil {
		if res != nil {
			c.Header("X-Correlation-Id", res.CorrelationID)
		}
		response.RespondAPIError(c, err, "ingest_failed")
		return
	}
	c.Header("X-Correlation-Id", res.CorrelationID)
	response.RespondOK(c, toIngestResponse(res))
}
