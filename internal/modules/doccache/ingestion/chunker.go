package ingestion

import (
	"regexp"
	"strings"

	"github.com/yungbote/doccache-backend/internal/domain/docs"
)

var paragraphBreak = regexp.MustCompile(`\n\s*\n`)

// Chunk splits body into paragraph-aligned pieces of at most size runes.
// Paragraphs longer than size are cut by runes.
func Chunk(body string, size int) []*docs.DocumentChunk {
	texts := chunkText(body, size)
	out := make([]*docs.DocumentChunk, len(texts))
	for i, t := range texts {
		out[i] = &docs.DocumentChunk{Position: i, Content: t}
	}
	return out
}

func chunkText(body string, size int) []string {
	body = strings.TrimSpace(strings.ReplaceAll(body, "\r\n", "\n"))
	if body == "" {
		return nil
	}
	if size <= 0 {
		return []string{body}
	}

	var (
		out []string
		cur strings.Builder
		n   int
	)
	flush := func() {
		if cur.Len() > 0 {
			out = append(out, cur.String())
			cur.Reset()
			n = 0
		}
	}
	for _, para := range paragraphBreak.Split(body, -1) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		pr := []rune(para)
		if len(pr) > size {
			flush()
			out = append(out, chunkByRunes(pr, size)...)
			continue
		}
		if n > 0 && n+2+len(pr) > size {
			flush()
		}
		if n > 0 {
			cur.WriteString("\n\n")
			n += 2
		}
		cur.WriteString(para)
		n += len(pr)
	}
	flush()
	return out
}

func chunkByRunes(r []rune, n int) []string {
	out := make([]string, 0, (len(r)/n)+1)
	for i := 0; i < len(r); i += n {
		end := i + n
		if end > len(r) {
			end = len(r)
		}
		if s := strings.TrimSpace(string(r[i:end])); s != "" {
			out = append(out, s)
		}
	}
	return out
}
