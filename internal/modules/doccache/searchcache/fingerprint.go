package searchcache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/yungbote/doccache-backend/internal/normalization"
)

// NormalizeQuery case-folds, collapses whitespace and trims.
func NormalizeQuery(q string) string {
	return normalization.Canonical(q)
}

// Fingerprint is the cache key for (query, technology hint). Two queries that
// differ only in case or whitespace share a fingerprint.
func Fingerprint(query, technologyHint string) string {
	h := sha256.New()
	h.Write([]byte(NormalizeQuery(query)))
	h.Write([]byte{0})
	h.Write([]byte(strings.ToLower(strings.TrimSpace(technologyHint))))
	return hex.EncodeToString(h.Sum(nil))
}
