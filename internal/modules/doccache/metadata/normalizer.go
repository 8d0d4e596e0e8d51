package metadata

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/facebookgo/clock"
	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/doccache-backend/internal/domain/docs"
	"github.com/yungbote/doccache-backend/internal/modules/doccache/ttl"
	"github.com/yungbote/doccache-backend/internal/normalization"
	apperrors "github.com/yungbote/doccache-backend/internal/pkg/errors"
)

const (
	// FallbackTechnology is used when neither the result nor the caller names one.
	FallbackTechnology = "general"

	MetaWarnings = "normalization_warnings"
	// MetaProviderFields holds provider values that a normalized field replaced.
	MetaProviderFields = "provider_fields"
)

type NormalizerConfig struct {
	Workspace        string
	FallbackLanguage string
}

// Normalizer turns provider results into canonical documents. Apart from the
// clock read for expires_at it has no side effects.
type Normalizer struct {
	extractor Extractor
	ttl       *ttl.Calculator
	clock     clock.Clock
	cfg       NormalizerConfig
}

func NewNormalizer(extractor Extractor, calc *ttl.Calculator, clk clock.Clock, cfg NormalizerConfig) *Normalizer {
	if extractor == nil {
		extractor = DefaultExtractor()
	}
	if calc == nil {
		calc = ttl.NewCalculator(ttl.DefaultPolicy())
	}
	if clk == nil {
		clk = clock.New()
	}
	if strings.TrimSpace(cfg.Workspace) == "" {
		cfg.Workspace = docs.DefaultWorkspace
	}
	if lang, ok := canonicalLanguage(cfg.FallbackLanguage); ok {
		cfg.FallbackLanguage = lang
	} else {
		cfg.FallbackLanguage = "en"
	}
	return &Normalizer{extractor: extractor, ttl: calc, clock: clk, cfg: cfg}
}

// DefaultExtractor prefers structured provider fields and falls back to heuristics.
func DefaultExtractor() Extractor {
	return Chain{StructuredExtractor{}, HeuristicExtractor{}}
}

// Normalize builds a Document from raw. Extraction problems degrade to defaults
// and are listed under metadata.normalization_warnings; only a result with no
// usable body returns a *NormalizationError.
func (n *Normalizer) Normalize(raw *docs.RawResult, sourceProvider string) (doc *docs.Document, err error) {
	if raw == nil {
		return nil, &apperrors.NormalizationError{Reason: "nil raw result"}
	}
	defer func() {
		if r := recover(); r != nil {
			doc = nil
			err = &apperrors.NormalizationError{Reason: "extraction panic", Err: fmt.Errorf("%v", r)}
		}
	}()

	body := raw.Body()
	canonical := normalization.Canonical(body)
	if canonical == "" {
		return nil, &apperrors.NormalizationError{Reason: "empty body"}
	}

	hint := normalizeTech(raw.TechnologyHint)
	sig := n.extractor.Extract(*raw, hint)
	warnings := append([]string(nil), sig.Warnings...)

	tech := sig.Technology
	if tech == "" {
		tech = hint
	}
	if tech == "" {
		tech = FallbackTechnology
		warnings = append(warnings, "technology not detected; using "+FallbackTechnology)
	}

	docType := sig.DocumentType
	if docType == "" {
		docType = docs.DocTypeUnknown
	}
	versionState := sig.VersionState
	if versionState == "" {
		versionState = docs.VersionUnknown
	}
	quality := sig.QualityScore
	if quality < 0 || quality > 1 {
		quality = docs.NeutralQuality
		warnings = append(warnings, "no quality signal; using neutral score")
	}
	lang := sig.Language
	if lang == "" {
		lang = n.cfg.FallbackLanguage
		warnings = append(warnings, "language detection inconclusive; using "+lang)
	}

	ttlRes := n.ttl.Compute(ttl.Signals{
		Technology:   tech,
		DocumentType: docType,
		Content:      raw.Title + "\n" + body,
		VersionState: versionState,
		QualityScore: quality,
	})

	now := n.clock.Now().UTC()
	expiresAt := now.Add(time.Duration(ttlRes.Days) * 24 * time.Hour)

	title := strings.TrimSpace(raw.Title)
	if title == "" {
		title = titleFromBody(body)
		warnings = append(warnings, "missing title; derived from body")
	}

	provider := strings.ToLower(strings.TrimSpace(sourceProvider))

	derived := map[string]any{
		"doc_type":      string(docType),
		"version_state": string(versionState),
		"language":      lang,
		"ttl_days":      ttlRes.Days,
	}
	if sig.Owner != "" {
		derived["owner"] = sig.Owner
	}
	if sig.Version != "" {
		derived["version"] = sig.Version
	}
	if ttlRes.Deprecated {
		derived["deprecated"] = true
	}
	if sig.QualityDetail != nil {
		derived["quality_signals"] = sig.QualityDetail
	}
	if raw.Snippet != "" && raw.Content != "" {
		derived["snippet"] = raw.Snippet
	}
	meta := mergeMetadata(raw.Fields, sig.Consumed, derived)
	if len(warnings) > 0 {
		meta[MetaWarnings] = warnings
	}
	metaJSON, mErr := json.Marshal(meta)
	if mErr != nil {
		// Provider fields that cannot be encoded are dropped rather than failing the document.
		metaJSON, _ = json.Marshal(map[string]any{
			"doc_type":   string(docType),
			"language":   lang,
			"ttl_days":   ttlRes.Days,
			MetaWarnings: append(warnings, "provider metadata not serializable: "+mErr.Error()),
		})
	}

	return &docs.Document{
		ID:               uuid.New(),
		Workspace:        n.cfg.Workspace,
		Title:            title,
		SourceURL:        strings.TrimSpace(raw.URL),
		Technology:       tech,
		ContentHash:      ContentHash(body),
		Content:          body,
		ProcessingStatus: docs.StatusCompleted,
		QualityScore:     quality,
		Metadata:         datatypes.JSON(metaJSON),
		ExpiresAt:        &expiresAt,
		SourceProvider:   provider,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

// ContentHash is the dedup key: sha256 over the canonical (case and whitespace
// collapsed) body.
func ContentHash(body string) string {
	sum := sha256.Sum256([]byte(normalization.Canonical(body)))
	return hex.EncodeToString(sum[:])
}

// mergeMetadata overlays derived onto the unconsumed provider fields. A provider
// value replaced by a different derived one moves under MetaProviderFields.
func mergeMetadata(fields map[string]any, consumed []string, derived map[string]any) map[string]any {
	skip := make(map[string]bool, len(consumed))
	for _, k := range consumed {
		skip[k] = true
	}
	out := make(map[string]any, len(fields)+len(derived)+1)
	for k, v := range fields {
		if skip[k] {
			continue
		}
		out[k] = v
	}
	var replaced map[string]any
	for k, v := range derived {
		if old, ok := out[k]; ok && !reflect.DeepEqual(old, v) {
			if replaced == nil {
				replaced = map[string]any{}
			}
			replaced[k] = old
		}
		out[k] = v
	}
	if replaced != nil {
		out[MetaProviderFields] = replaced
	}
	return out
}

func titleFromBody(body string) string {
	line := strings.TrimSpace(body)
	if i := strings.IndexAny(line, "\r\n"); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimSpace(strings.TrimLeft(line, "# "))
	r := []rune(line)
	if len(r) > 120 {
		return string(r[:120])
	}
	return line
}
