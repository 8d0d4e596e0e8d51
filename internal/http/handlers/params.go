package handlers

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	apperrors "github.com/yungbote/doccache-backend/internal/pkg/errors"
)

// intQuery reads an optional integer query parameter. Missing means 0.
func intQuery(c *gin.Context, name string) (int, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.Invalid(name, raw, "must be an integer")
	}
	return v, nil
}
