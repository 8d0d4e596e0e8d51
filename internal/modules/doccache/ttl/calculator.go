package ttl

import (
	"math"
	"regexp"
	"strings"

	"github.com/yungbote/doccache-backend/internal/domain/docs"
)

// Signals are the inputs of a TTL decision. Zero values are neutral.
type Signals struct {
	Technology   string
	DocumentType docs.DocumentType
	Content      string
	VersionState docs.VersionState
	// QualityScore outside [0,1] (or NaN) is treated as docs.NeutralQuality.
	QualityScore float64
}

// Factor records one step of the computation, in application order.
type Factor struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Days  float64 `json:"days"`
}

type Result struct {
	Days       int      `json:"days"`
	Deprecated bool     `json:"deprecated,omitempty"`
	Factors    []Factor `json:"factors"`
}

// Calculator is pure: no I/O, no clock, safe for concurrent use.
type Calculator struct {
	policy       Policy
	deprecated   *regexp.Regexp
	stable       *regexp.Regexp
	experimental *regexp.Regexp
}

func NewCalculator(p Policy) *Calculator {
	if err := p.Validate(); err != nil {
		p = DefaultPolicy()
	}
	p = p.clone()
	techs := make(map[string]float64, len(p.TechnologyMultipliers))
	for k, v := range p.TechnologyMultipliers {
		techs[normalizeTechnology(k)] = v
	}
	p.TechnologyMultipliers = techs
	return &Calculator{
		policy:       p,
		deprecated:   markerPattern(p.DeprecatedMarkers),
		stable:       markerPattern(p.StableMarkers),
		experimental: markerPattern(p.ExperimentalMarkers),
	}
}

// Policy returns a copy of the policy in use; changing it does not affect c.
func (c *Calculator) Policy() Policy { return c.policy.clone() }

// ComputeDays returns the TTL in whole days, always within [MinDays, MaxDays].
func (c *Calculator) ComputeDays(s Signals) int {
	return c.Compute(s).Days
}

func (c *Calculator) Compute(s Signals) Result {
	p := c.policy
	res := Result{Factors: make([]Factor, 0, 6)}

	days := p.BaseDays
	res.Factors = append(res.Factors, Factor{Name: "base", Value: p.BaseDays, Days: days})

	if c.deprecated != nil && c.deprecated.MatchString(s.Content) {
		res.Deprecated = true
		res.Days = p.MinDays
		res.Factors = append(res.Factors, Factor{Name: "deprecated", Value: float64(p.MinDays), Days: float64(p.MinDays)})
		return res
	}

	techMul := 1.0
	if m, ok := p.TechnologyMultipliers[normalizeTechnology(s.Technology)]; ok && m > 0 {
		techMul = m
	}
	days *= techMul
	res.Factors = append(res.Factors, Factor{Name: "technology", Value: techMul, Days: days})

	if adj, ok := p.DocumentTypes[docs.ParseDocumentType(string(s.DocumentType))]; ok {
		days = adj.apply(days)
		res.Factors = append(res.Factors, Factor{Name: "document_type", Value: adj.Add, Days: days})
	}

	if c.stable != nil && c.stable.MatchString(s.Content) {
		days *= p.StableFactor
		res.Factors = append(res.Factors, Factor{Name: "stable", Value: p.StableFactor, Days: days})
	}
	if c.experimental != nil && c.experimental.MatchString(s.Content) {
		days *= p.ExperimentalFactor
		res.Factors = append(res.Factors, Factor{Name: "experimental", Value: p.ExperimentalFactor, Days: days})
	}

	versionMul := 1.0
	if v, ok := p.VersionFactors[docs.ParseVersionState(string(s.VersionState))]; ok && v > 0 {
		versionMul = v
	}
	days *= versionMul
	res.Factors = append(res.Factors, Factor{Name: "version_state", Value: versionMul, Days: days})

	q := s.QualityScore
	if math.IsNaN(q) || q < 0 || q > 1 {
		q = docs.NeutralQuality
	}
	qualityMul := p.QualityFloor + q*(p.QualityCeil-p.QualityFloor)
	days *= qualityMul
	res.Factors = append(res.Factors, Factor{Name: "quality", Value: qualityMul, Days: days})

	res.Days = clampDays(days, p.MinDays, p.MaxDays)
	return res
}

func clampDays(days float64, lo, hi int) int {
	if math.IsNaN(days) || math.IsInf(days, -1) {
		return lo
	}
	if math.IsInf(days, 1) {
		return hi
	}
	r := int(math.Round(days))
	if r < lo {
		return lo
	}
	if r > hi {
		return hi
	}
	return r
}

// markerPattern builds a case-insensitive, word-bounded alternation so "lts" does
// not fire inside "results".
func markerPattern(markers []string) *regexp.Regexp {
	parts := make([]string, 0, len(markers))
	for _, m := range markers {
		m = strings.TrimSpace(m)
		if m == "" {
			continue
		}
		parts = append(parts, regexp.QuoteMeta(strings.ToLower(m)))
	}
	if len(parts) == 0 {
		return nil
	}
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(parts, "|") + `)\b`)
}
