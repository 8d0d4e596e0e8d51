package ttl

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/doccache-backend/internal/domain/docs"
)

// Adjustment is applied as (days + Add) * Mul. A zero Mul means 1.
type Adjustment struct {
	Add float64 `yaml:"add"`
	Mul float64 `yaml:"mul"`
}

func (a Adjustment) apply(days float64) float64 {
	mul := a.Mul
	if mul <= 0 {
		mul = 1
	}
	return (days + a.Add) * mul
}

// CeilingDays is the longest TTL any policy may allow.
const CeilingDays = 90

// Policy holds every tunable of the TTL computation. It is passed to NewCalculator
// by value and never mutated afterwards.
type Policy struct {
	BaseDays float64 `yaml:"base_days"`
	MinDays  int     `yaml:"min_days"`
	MaxDays  int     `yaml:"max_days"`

	TechnologyMultipliers map[string]float64               `yaml:"technology_multipliers"`
	DocumentTypes         map[docs.DocumentType]Adjustment `yaml:"document_types"`

	DeprecatedMarkers   []string `yaml:"deprecated_markers"`
	StableMarkers       []string `yaml:"stable_markers"`
	ExperimentalMarkers []string `yaml:"experimental_markers"`
	StableFactor        float64  `yaml:"stable_factor"`
	ExperimentalFactor  float64  `yaml:"experimental_factor"`

	VersionFactors map[docs.VersionState]float64 `yaml:"version_factors"`

	// Quality factor is QualityFloor + quality*(QualityCeil-QualityFloor).
	QualityFloor float64 `yaml:"quality_floor"`
	QualityCeil  float64 `yaml:"quality_ceil"`
}

func DefaultPolicy() Policy {
	return Policy{
		BaseDays: 7,
		MinDays:  1,
		MaxDays:  90,
		TechnologyMultipliers: map[string]float64{
			"nextjs":      0.5,
			"next.js":     0.5,
			"langchain":   0.4,
			"openai":      0.5,
			"react":       0.7,
			"vue":         0.7,
			"svelte":      0.6,
			"angular":     0.8,
			"tailwindcss": 0.8,
			"kubernetes":  0.9,
			"typescript":  1.2,
			"python":      1.5,
			"go":          1.5,
			"rust":        1.3,
			"java":        1.6,
			"postgresql":  2.0,
			"sql":         2.0,
			"linux":       2.0,
			"http":        2.5,
		},
		DocumentTypes: map[docs.DocumentType]Adjustment{
			docs.DocTypeAPIReference: {Add: 14},
			docs.DocTypeGuide:        {Add: 7},
			docs.DocTypeTutorial:     {Add: 5},
			docs.DocTypeChangelog:    {Add: -4},
			docs.DocTypeUnknown:      {},
		},
		DeprecatedMarkers:   []string{"deprecated", "no longer maintained", "end of life", "end-of-life", "obsolete", "unmaintained"},
		StableMarkers:       []string{"stable", "lts", "long-term support", "generally available"},
		ExperimentalMarkers: []string{"experimental", "unstable", "preview", "release candidate", "nightly"},
		StableFactor:        1.5,
		ExperimentalFactor:  0.5,
		VersionFactors: map[docs.VersionState]float64{
			docs.VersionLatest:  1.2,
			docs.VersionBeta:    0.6,
			docs.VersionAlpha:   0.4,
			docs.VersionUnknown: 1.0,
		},
		QualityFloor: 0.5,
		QualityCeil:  1.5,
	}
}

// LoadPolicy overlays the YAML file at path onto DefaultPolicy. Maps are merged
// key by key; scalars and marker lists replace the default when set.
func LoadPolicy(path string) (Policy, error) {
	p := DefaultPolicy()
	path = strings.TrimSpace(path)
	if path == "" {
		return p, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("read ttl policy: %w", err)
	}
	var overlay Policy
	if err := yaml.Unmarshal(raw, &overlay); err != nil {
		return p, fmt.Errorf("parse ttl policy %s: %w", path, err)
	}
	p.merge(overlay)
	if err := p.Validate(); err != nil {
		return DefaultPolicy(), err
	}
	return p, nil
}

func (p *Policy) merge(o Policy) {
	if o.BaseDays > 0 {
		p.BaseDays = o.BaseDays
	}
	if o.MinDays > 0 {
		p.MinDays = o.MinDays
	}
	if o.MaxDays > 0 {
		p.MaxDays = o.MaxDays
	}
	for k, v := range o.TechnologyMultipliers {
		p.TechnologyMultipliers[normalizeTechnology(k)] = v
	}
	for k, v := range o.DocumentTypes {
		p.DocumentTypes[k] = v
	}
	for k, v := range o.VersionFactors {
		p.VersionFactors[k] = v
	}
	if len(o.DeprecatedMarkers) > 0 {
		p.DeprecatedMarkers = o.DeprecatedMarkers
	}
	if len(o.StableMarkers) > 0 {
		p.StableMarkers = o.StableMarkers
	}
	if len(o.ExperimentalMarkers) > 0 {
		p.ExperimentalMarkers = o.ExperimentalMarkers
	}
	if o.StableFactor > 0 {
		p.StableFactor = o.StableFactor
	}
	if o.ExperimentalFactor > 0 {
		p.ExperimentalFactor = o.ExperimentalFactor
	}
	if o.QualityFloor > 0 {
		p.QualityFloor = o.QualityFloor
	}
	if o.QualityCeil > 0 {
		p.QualityCeil = o.QualityCeil
	}
}

func (p Policy) Validate() error {
	if p.MinDays < 1 {
		return fmt.Errorf("ttl policy: min_days must be >= 1 (got %d)", p.MinDays)
	}
	if p.MaxDays > CeilingDays {
		return fmt.Errorf("ttl policy: max_days must be <= %d (got %d)", CeilingDays, p.MaxDays)
	}
	if p.MaxDays < p.MinDays {
		return fmt.Errorf("ttl policy: max_days %d below min_days %d", p.MaxDays, p.MinDays)
	}
	if p.BaseDays <= 0 {
		return fmt.Errorf("ttl policy: base_days must be positive")
	}
	for tech, m := range p.TechnologyMultipliers {
		if m <= 0 {
			return fmt.Errorf("ttl policy: multiplier for %q must be positive", tech)
		}
	}
	return nil
}

// clone returns p with its own copies of every map and slice.
func (p Policy) clone() Policy {
	out := p
	out.TechnologyMultipliers = make(map[string]float64, len(p.TechnologyMultipliers))
	for k, v := range p.TechnologyMultipliers {
		out.TechnologyMultipliers[k] = v
	}
	out.DocumentTypes = make(map[docs.DocumentType]Adjustment, len(p.DocumentTypes))
	for k, v := range p.DocumentTypes {
		out.DocumentTypes[k] = v
	}
	out.VersionFactors = make(map[docs.VersionState]float64, len(p.VersionFactors))
	for k, v := range p.VersionFactors {
		out.VersionFactors[k] = v
	}
	out.DeprecatedMarkers = append([]string(nil), p.DeprecatedMarkers...)
	out.StableMarkers = append([]string(nil), p.StableMarkers...)
	out.ExperimentalMarkers = append([]string(nil), p.ExperimentalMarkers...)
	return out
}

func normalizeTechnology(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
