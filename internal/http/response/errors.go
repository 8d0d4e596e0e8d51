package response

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/doccache-backend/internal/platform/apierr"
)

// RespondAPIError classifies err (validation 400, not found 404, store
// unavailable 503) and writes the error envelope. fallbackCode is used for 500s.
func RespondAPIError(c *gin.Context, err error, fallbackCode string) {
	ae := apierr.FromError(err, fallbackCode)
	if ae == nil {
		RespondError(c, 500, fallbackCode, err)
		return
	}
	_ = c.Error(err)
	RespondError(c, ae.Status, ae.Code, ae.Err)
}
