package metadata

import (
	"github.com/yungbote/doccache-backend/internal/domain/docs"
)

// Signals is what an Extractor pulls out of a raw result. Empty fields mean
// "no opinion" and are filled by the next extractor in a Chain or by defaults.
type Signals struct {
	Technology   string
	Owner        string
	DocumentType docs.DocumentType
	VersionState docs.VersionState
	Version      string
	// QualityScore < 0 means unknown.
	QualityScore  float64
	QualityDetail map[string]any
	Language      string
	// Consumed lists Fields keys interpreted by the extractor.
	Consumed []string
	Warnings []string
}

func emptySignals() Signals {
	return Signals{QualityScore: -1}
}

// Extractor derives signals from a raw result. hint is the caller-supplied technology.
type Extractor interface {
	Extract(raw docs.RawResult, hint string) Signals
}

// Chain asks each extractor in order and keeps the first non-empty value per field.
type Chain []Extractor

func (c Chain) Extract(raw docs.RawResult, hint string) Signals {
	out := emptySignals()
	for _, ex := range c {
		if ex == nil {
			continue
		}
		s := ex.Extract(raw, hint)
		if out.Technology == "" {
			out.Technology = s.Technology
		}
		if out.Owner == "" {
			out.Owner = s.Owner
		}
		if out.DocumentType == "" || out.DocumentType == docs.DocTypeUnknown {
			if s.DocumentType != "" {
				out.DocumentType = s.DocumentType
			}
		}
		if out.VersionState == "" || out.VersionState == docs.VersionUnknown {
			if s.VersionState != "" {
				out.VersionState = s.VersionState
			}
		}
		if out.Version == "" {
			out.Version = s.Version
		}
		if out.QualityScore < 0 && s.QualityScore >= 0 {
			out.QualityScore = s.QualityScore
			out.QualityDetail = s.QualityDetail
		}
		if out.Language == "" {
			out.Language = s.Language
		}
		out.Consumed = append(out.Consumed, s.Consumed...)
		out.Warnings = append(out.Warnings, s.Warnings...)
	}
	return out
}
