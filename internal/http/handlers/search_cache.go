package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/doccache-backend/internal/http/response"
	"github.com/yungbote/doccache-backend/internal/modules/doccache/searchcache"
)

type SearchCacheHandler struct {
	cache *searchcache.QueryCache
}

func NewSearchCacheHandler(cache *searchcache.QueryCache) *SearchCacheHandler {
	return &SearchCacheHandler{cache: cache}
}

type cacheKeyRequest struct {
	Query      string `json:"query"`
	Technology string `json:"technology"`
}

type cachePutRequest struct {
	Query      string          `json:"query"`
	Technology string          `json:"technology"`
	Results    json.RawMessage `json:"results"`
	TTLSeconds int             `json:"ttl_seconds"`
}

// POST /api/search-cache/lookup
func (h *SearchCacheHandler) Lookup(c *gin.Context) {
	var req cacheKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	entry, hit, err := h.cache.Lookup(c.Request.Context(), req.Query, req.Technology)
	if err != nil {
		response.RespondAPIError(c, err, "cache_lookup_failed")
		return
	}
	if !hit {
		response.RespondOK(c, gin.H{"cache_hit": false})
		return
	}
	response.RespondOK(c, gin.H{"cache_hit": true, "entry": entry})
}

// PUT /api/search-cache
func (h *SearchCacheHandler) Store(c *gin.Context) {
	var req cachePutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if req.TTLSeconds < 0 {
		response.RespondError(c, http.StatusBadRequest, "validation_error", errNegativeTTL)
		return
	}
	entry, err := h.cache.Store(c.Request.Context(), req.Query, req.Technology, req.Results, time.Duration(req.TTLSeconds)*time.Second)
	if err != nil {
		response.RespondAPIError(c, err, "cache_store_failed")
		return
	}
	response.RespondOK(c, gin.H{"entry": entry})
}

// DELETE /api/search-cache?query=&technology=
func (h *SearchCacheHandler) Invalidate(c *gin.Context) {
	if err := h.cache.Invalidate(c.Request.Context(), c.Query("query"), c.Query("technology")); err != nil {
		response.RespondAPIError(c, err, "cache_invalidate_failed")
		return
	}
	response.RespondOK(c, gin.H{"deleted": true})
}
