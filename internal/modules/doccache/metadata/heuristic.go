package metadata

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/yungbote/doccache-backend/internal/domain/docs"
)

// HeuristicExtractor guesses signals from URL shape, title and body text.
// It is approximate by nature; every guess it cannot make is left empty.
type HeuristicExtractor struct{}

var (
	reVersion  = regexp.MustCompile(`(?i)\bv?(\d+\.\d+(?:\.\d+)?)\b`)
	reAlpha    = regexp.MustCompile(`(?i)\balpha\b`)
	reBeta     = regexp.MustCompile(`(?i)\b(?:beta|rc\d*)\b`)
	reLatest   = regexp.MustCompile(`(?i)\blatest\b`)
	reHTMLHead = regexp.MustCompile(`(?i)<h[1-4][\s>]`)
	reMDHead   = regexp.MustCompile(`(?m)^#{1,4}\s+\S`)
	reCode     = regexp.MustCompile("(?s)```|<code[\\s>]|<pre[\\s>]|(?m)^(?:    |\\t)\\S")
)

// Documentation sites whose host alone names the technology. Any other host says
// nothing about the technology, so the caller's hint is used instead.
var knownDocHosts = map[string]string{
	"react.dev":                 "react",
	"reactjs.org":               "react",
	"nextjs.org":                "nextjs",
	"vuejs.org":                 "vue",
	"svelte.dev":                "svelte",
	"angular.dev":               "angular",
	"angular.io":                "angular",
	"tailwindcss.com":           "tailwindcss",
	"typescriptlang.org":        "typescript",
	"nodejs.org":                "nodejs",
	"expressjs.com":             "express",
	"docs.python.org":           "python",
	"docs.djangoproject.com":    "django",
	"fastapi.tiangolo.com":      "fastapi",
	"flask.palletsprojects.com": "flask",
	"go.dev":                    "go",
	"golang.org":                "go",
	"doc.rust-lang.org":         "rust",
	"kubernetes.io":             "kubernetes",
	"docs.docker.com":           "docker",
	"postgresql.org":            "postgresql",
	"python.langchain.com":      "langchain",
	"js.langchain.com":          "langchain",
	"platform.openai.com":       "openai",
}

var docTypeKeywords = []struct {
	dt    docs.DocumentType
	words []string
}{
	{docs.DocTypeChangelog, []string{"changelog", "change log", "release notes", "release-notes", "releases", "what's new", "whats-new", "migration"}},
	{docs.DocTypeAPIReference, []string{"api reference", "api-reference", "/api/", "reference", "/reference/", "api docs", "godoc", "pkg.go.dev"}},
	{docs.DocTypeTutorial, []string{"tutorial", "getting started", "getting-started", "quickstart", "quick start", "walkthrough", "step by step", "learn"}},
	{docs.DocTypeGuide, []string{"guide", "how to", "how-to", "howto", "handbook", "best practices", "/docs/"}},
}

func (HeuristicExtractor) Extract(raw docs.RawResult, hint string) Signals {
	s := emptySignals()

	owner, tech := technologyFromURL(raw.URL)
	s.Owner = owner
	s.Technology = tech

	s.DocumentType = classifyDocType(raw.Title, raw.URL)
	s.VersionState, s.Version = detectVersion(raw.Title + "\n" + raw.Body())

	body := raw.Body()
	if strings.TrimSpace(body) != "" {
		s.QualityScore, s.QualityDetail = scoreQuality(body)
		if lang, ok := detectLanguage(body); ok {
			s.Language = lang
		}
	}
	return s
}

// technologyFromURL recognizes the URL shapes documentation providers emit.
func technologyFromURL(raw string) (owner, tech string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", ""
	}
	host := strings.ToLower(strings.TrimPrefix(u.Hostname(), "www."))
	segs := strings.FieldsFunc(strings.ToLower(u.Path), func(r rune) bool { return r == '/' })

	switch {
	case host == "github.com" || host == "gitlab.com" || host == "context7.com":
		if len(segs) >= 2 {
			return segs[0], normalizeTech(strings.TrimSuffix(segs[1], ".git"))
		}
		return "", ""
	case host == "npmjs.com" || strings.HasSuffix(host, ".npmjs.com"):
		if len(segs) >= 2 && segs[0] == "package" {
			if strings.HasPrefix(segs[1], "@") && len(segs) >= 3 {
				return strings.TrimPrefix(segs[1], "@"), normalizeTech(segs[2])
			}
			return "", normalizeTech(segs[1])
		}
		return "", ""
	case host == "pypi.org":
		if len(segs) >= 2 && segs[0] == "project" {
			return "", normalizeTech(segs[1])
		}
		return "", ""
	case host == "pkg.go.dev":
		if len(segs) >= 3 && segs[0] == "github.com" {
			return segs[1], normalizeTech(segs[2])
		}
		if len(segs) >= 1 {
			return "", "go"
		}
		return "", ""
	case strings.HasSuffix(host, ".readthedocs.io"):
		return "", normalizeTech(strings.TrimSuffix(host, ".readthedocs.io"))
	case strings.HasSuffix(host, ".github.io"):
		owner := strings.TrimSuffix(host, ".github.io")
		if len(segs) >= 1 {
			return owner, normalizeTech(segs[0])
		}
		return owner, normalizeTech(owner)
	}

	// Subdomains such as www.react.dev or es.react.dev resolve through their parent.
	for h := host; strings.Contains(h, "."); h = h[strings.Index(h, ".")+1:] {
		if tech, ok := knownDocHosts[h]; ok {
			return "", tech
		}
	}
	return "", ""
}

func classifyDocType(title, rawURL string) docs.DocumentType {
	hay := strings.ToLower(title + " " + rawURL)
	for _, k := range docTypeKeywords {
		for _, w := range k.words {
			if strings.Contains(hay, w) {
				return k.dt
			}
		}
	}
	return docs.DocTypeUnknown
}

func detectVersion(text string) (docs.VersionState, string) {
	version := ""
	if m := reVersion.FindStringSubmatch(text); len(m) == 2 {
		version = m[1]
	}
	switch {
	case reAlpha.MatchString(text):
		return docs.VersionAlpha, version
	case reBeta.MatchString(text):
		return docs.VersionBeta, version
	case reLatest.MatchString(text):
		return docs.VersionLatest, version
	default:
		return docs.VersionUnknown, version
	}
}

// scoreQuality rewards code samples, structure and substance.
func scoreQuality(body string) (float64, map[string]any) {
	n := len([]rune(body))
	hasCode := reCode.MatchString(body)
	headings := len(reMDHead.FindAllStringIndex(body, -1)) + len(reHTMLHead.FindAllStringIndex(body, -1))

	score := 0.3
	switch {
	case n >= 2000:
		score += 0.25
	case n >= 500:
		score += 0.15
	case n < 100:
		score -= 0.2
	}
	if hasCode {
		score += 0.25
	}
	switch {
	case headings >= 3:
		score += 0.2
	case headings >= 1:
		score += 0.1
	}
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score, map[string]any{
		"source":   "heuristic",
		"length":   n,
		"has_code": hasCode,
		"headings": headings,
	}
}

func normalizeTech(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "@")
	return s
}
