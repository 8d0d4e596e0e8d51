package normalization

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var folder = cases.Fold()

func ParseInputString(input string) string {
	return strings.ToLower(strings.TrimSpace(input))
}

// CollapseWhitespace trims s and replaces every run of Unicode whitespace with one space.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Canonical is the comparison form used for fingerprints and content hashes:
// NFKC, Unicode case-folded, whitespace collapsed.
func Canonical(s string) string {
	if s == "" {
		return ""
	}
	s = norm.NFKC.String(s)
	s = folder.String(s)
	return CollapseWhitespace(s)
}
