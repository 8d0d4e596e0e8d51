package metadata

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/language"
)

// Function words per language. Short, high-frequency, and mostly disjoint.
var stopwords = map[string][]string{
	"en": {"the", "and", "is", "are", "of", "to", "in", "that", "with", "for", "this", "you", "can", "be"},
	"es": {"el", "la", "los", "las", "de", "que", "y", "en", "para", "con", "una", "es", "por", "se"},
	"fr": {"le", "la", "les", "des", "et", "est", "une", "pour", "dans", "que", "vous", "avec", "sur", "du"},
	"de": {"der", "die", "das", "und", "ist", "nicht", "mit", "sie", "für", "ein", "eine", "auf", "zu", "wird"},
	"pt": {"o", "os", "as", "de", "que", "e", "não", "para", "com", "uma", "em", "você", "do", "da"},
}

var stopwordIndex = func() map[string][]string {
	idx := map[string][]string{}
	for lang, words := range stopwords {
		for _, w := range words {
			idx[w] = append(idx[w], lang)
		}
	}
	return idx
}()

const (
	minLanguageHits   = 5
	minLanguageMargin = 1.5
	maxLanguageTokens = 2000
)

// detectLanguage returns an ISO 639-1 code when one language clearly dominates
// the function words; ok is false when the evidence is thin or split.
func detectLanguage(text string) (string, bool) {
	if hasCJK(text) {
		return detectCJK(text), true
	}
	counts := map[string]int{}
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	if len(tokens) > maxLanguageTokens {
		tokens = tokens[:maxLanguageTokens]
	}
	for _, tok := range tokens {
		langs := stopwordIndex[tok]
		if len(langs) == 1 {
			counts[langs[0]]++
		}
	}
	if len(counts) == 0 {
		return "", false
	}
	langs := make([]string, 0, len(counts))
	for lang := range counts {
		langs = append(langs, lang)
	}
	sort.Slice(langs, func(i, j int) bool {
		if counts[langs[i]] != counts[langs[j]] {
			return counts[langs[i]] > counts[langs[j]]
		}
		return langs[i] < langs[j]
	})
	best := langs[0]
	second := 0
	if len(langs) > 1 {
		second = counts[langs[1]]
	}
	if counts[best] < minLanguageHits {
		return "", false
	}
	if second > 0 && float64(counts[best]) < minLanguageMargin*float64(second) {
		return "", false
	}
	return best, true
}

func hasCJK(text string) bool {
	n := 0
	for _, r := range text {
		if unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul) {
			n++
			if n >= 20 {
				return true
			}
		}
	}
	return false
}

func detectCJK(text string) string {
	var han, kana, hangul int
	for _, r := range text {
		switch {
		case unicode.In(r, unicode.Hiragana, unicode.Katakana):
			kana++
		case unicode.Is(unicode.Hangul, r):
			hangul++
		case unicode.Is(unicode.Han, r):
			han++
		}
	}
	switch {
	case hangul > han && hangul > kana:
		return "ko"
	case kana > 0:
		return "ja"
	default:
		return "zh"
	}
}

// canonicalLanguage parses a BCP 47 tag such as "en-US" or "pt_BR" and returns
// its base language code.
func canonicalLanguage(raw string) (string, bool) {
	raw = strings.ReplaceAll(strings.TrimSpace(raw), "_", "-")
	if raw == "" {
		return "", false
	}
	tag, err := language.Parse(raw)
	if err != nil {
		return "", false
	}
	base, conf := tag.Base()
	if conf == language.No {
		return "", false
	}
	return base.String(), true
}
