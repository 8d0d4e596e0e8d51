package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/doccache-backend/internal/platform/ctxutil"
)

type APIError struct {
	Message       string `json:"message"`
	Code          string `json:"code,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// RespondError writes the error envelope. The request's correlation id is echoed
// so a failed ingest or cleanup can be matched to its log lines.
func RespondError(c *gin.Context, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	ae := APIError{Message: msg, Code: code}
	if td := ctxutil.GetTraceData(c.Request.Context()); td != nil {
		ae.CorrelationID = td.CorrelationID
	}
	c.JSON(status, ErrorEnvelope{Error: ae})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}
