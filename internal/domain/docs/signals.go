package docs

type DocumentType string

const (
	DocTypeAPIReference DocumentType = "api-reference"
	DocTypeGuide        DocumentType = "guide"
	DocTypeTutorial     DocumentType = "tutorial"
	DocTypeChangelog    DocumentType = "changelog"
	DocTypeUnknown      DocumentType = "unknown"
)

func ParseDocumentType(s string) DocumentType {
	switch DocumentType(s) {
	case DocTypeAPIReference, DocTypeGuide, DocTypeTutorial, DocTypeChangelog:
		return DocumentType(s)
	default:
		return DocTypeUnknown
	}
}

type VersionState string

const (
	VersionLatest  VersionState = "latest"
	VersionBeta    VersionState = "beta"
	VersionAlpha   VersionState = "alpha"
	VersionUnknown VersionState = "unknown"
)

func ParseVersionState(s string) VersionState {
	switch VersionState(s) {
	case VersionLatest, VersionBeta, VersionAlpha:
		return VersionState(s)
	default:
		return VersionUnknown
	}
}

// NeutralQuality is used whenever no quality signal could be derived.
const NeutralQuality = 0.5
