package metadata

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/yungbote/doccache-backend/internal/domain/docs"
)

// StructuredExtractor trusts explicit provider fields (e.g. a documentation
// aggregator that already reports library, version and doc type) and never guesses.
type StructuredExtractor struct{}

func (StructuredExtractor) Extract(raw docs.RawResult, hint string) Signals {
	s := emptySignals()
	f := raw.Fields
	if len(f) == 0 {
		return s
	}

	// Identity fields are read but never consumed; metadata keeps them verbatim.
	if v, _ := firstString(f, "technology", "library", "framework"); v != "" {
		s.Technology = normalizeTech(v)
	}
	if v, _ := firstString(f, "library_id", "libraryId"); v != "" {
		owner, tech := splitLibraryID(v)
		if s.Technology == "" {
			s.Technology = tech
		}
		s.Owner = owner
	}
	if v, _ := firstString(f, "owner", "org", "namespace"); v != "" && s.Owner == "" {
		s.Owner = strings.ToLower(v)
	}
	if v, key := firstString(f, "doc_type", "document_type", "type"); v != "" {
		if dt := docs.ParseDocumentType(strings.ToLower(v)); dt != docs.DocTypeUnknown {
			s.DocumentType = dt
			s.Consumed = append(s.Consumed, key)
		}
	}
	if v, key := firstString(f, "version_state", "channel"); v != "" {
		if vs := docs.ParseVersionState(strings.ToLower(v)); vs != docs.VersionUnknown {
			s.VersionState = vs
			s.Consumed = append(s.Consumed, key)
		}
	}
	if v, _ := firstString(f, "version"); v != "" {
		s.Version = v
	}
	if q, ok := floatField(f, "quality_score"); ok {
		if q >= 0 && q <= 1 {
			s.QualityScore = q
			s.QualityDetail = map[string]any{"source": "provider"}
			s.Consumed = append(s.Consumed, "quality_score")
		} else {
			s.Warnings = append(s.Warnings, fmt.Sprintf("provider quality_score %v out of range", q))
		}
	}
	if v, _ := firstString(f, "language", "lang"); v != "" {
		if tag, ok := canonicalLanguage(v); ok {
			s.Language = tag
		} else {
			s.Warnings = append(s.Warnings, fmt.Sprintf("unrecognized language %q", v))
		}
	}
	return s
}

func firstString(f map[string]any, keys ...string) (string, string) {
	for _, k := range keys {
		v, ok := f[k]
		if !ok || v == nil {
			continue
		}
		if s, ok := v.(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				return s, k
			}
		}
	}
	return "", ""
}

func floatField(f map[string]any, key string) (float64, bool) {
	switch v := f[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		x, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return x, err == nil
	default:
		return 0, false
	}
}

// splitLibraryID handles "/owner/project" style ids.
func splitLibraryID(id string) (owner, tech string) {
	parts := strings.FieldsFunc(strings.ToLower(id), func(r rune) bool { return r == '/' })
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return "", normalizeTech(parts[0])
	default:
		return parts[0], normalizeTech(parts[1])
	}
}
