package ai

import (
	"encoding/json"
	"regexp"
	"strings"

	"notes-ai-jobs/internal/domain"
)

var (
	fenceOpen  = regexp.MustCompile("(?i)^```(?:json)?\\s*")
	fenceClose = regexp.MustCompile("\\s*```$")
)

// ExtractJSON pulls the JSON document out of a model answer. It drops Markdown
// fences and surrounding prose and repairs stray backslashes.
func ExtractJSON(raw string) (json.RawMessage, error) {
	s := strings.TrimSpace(raw)
	s = fenceOpen.ReplaceAllString(s, "")
	s = fenceClose.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)

	s = sliceDocument(s)
	s = fixInvalidBackslashes(s)

	if !json.Valid([]byte(s)) {
		return nil, domain.ErrInvalidLLMJSON
	}
	return json.RawMessage(s), nil
}

// sliceDocument keeps the span from the first opening bracket to the last
// matching closer. Arrays win only when they start before any object.
func sliceDocument(s string) string {
	brace := strings.IndexByte(s, '{')
	bracket := strings.IndexByte(s, '[')
	if brace == -1 && bracket == -1 {
		return s
	}
	var start, end int
	if bracket != -1 && (brace == -1 || bracket < brace) {
		start, end = bracket, strings.LastIndexByte(s, ']')
	} else {
		start, end = brace, strings.LastIndexByte(s, '}')
	}
	if end < start {
		return s[start:]
	}
	return s[start : end+1]
}

// fixInvalidBackslashes doubles any backslash that does not begin a valid JSON escape.
func fixInvalidBackslashes(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		if i+1 < len(s) {
			switch s[i+1] {
			case '"', '\\', '/', 'b', 'f', 'n', 'r', 't', 'u':
				b.WriteByte(c)
				b.WriteByte(s[i+1])
				i++
				continue
			}
		}
		b.WriteString(`\\`)
	}
	return b.String()
}
