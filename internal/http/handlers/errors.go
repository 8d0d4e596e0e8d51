package handlers

import (
	apperrors "github.com/yungbote/doccache-backend/internal/pkg/errors"
)

var errNegativeTTL = apperrors.Invalid("ttl_seconds", "", "must not be negative")
