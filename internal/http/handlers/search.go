package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/doccache-backend/internal/http/response"
	"github.com/yungbote/doccache-backend/internal/services"
)

type SearchHandler struct {
	search services.DocSearchService
}

func NewSearchHandler(search services.DocSearchService) *SearchHandler {
	return &SearchHandler{search: search}
}

// POST /api/search
func (h *SearchHandler) Search(c *gin.Context) {
	var req services.SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	res, err := h.search.Search(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, services.ErrNoFetcher) {
			response.RespondError(c, http.StatusServiceUnavailable, "no_provider", err)
			return
		}
		response.RespondAPIError(c, err, "search_failed")
		return
	}
	response.RespondOK(c, res)
}

// GET /api/providers
func (h *SearchHandler) ListProviders(c *gin.Context) {
	response.RespondOK(c, gin.H{"providers": h.search.Providers()})
}
