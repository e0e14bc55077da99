package llm

import (
	"fmt"
	"strings"
)

// Language models asked for "JSON only" still wrap the payload in prose,
// markdown fences, or trailing commentary. These helpers pull the first
// structurally balanced JSON value out of free text so callers can treat
// parse failure as a typed error instead of crashing a cycle.

// FirstJSONObject returns the first balanced {...} in text
func FirstJSONObject(text string) (string, error) {
	return firstBalanced(text, '{', '}')
}

// FirstJSONArray returns the first balanced [...] in text
func FirstJSONArray(text string) (string, error) {
	return firstBalanced(text, '[', ']')
}

// StripFences removes surrounding markdown code fences, if any
func StripFences(text string) string {
	t := strings.TrimSpace(text)
	if !strings.HasPrefix(t, "```") {
		return t
	}
	t = strings.TrimPrefix(t, "```")
	// Drop the optional language tag on the opening fence
	if idx := strings.IndexByte(t, '\n'); idx >= 0 {
		first := strings.TrimSpace(t[:idx])
		if len(first) <= 10 && !strings.ContainsAny(first, "{}[]") {
			t = t[idx+1:]
		}
	}
	t = strings.TrimSuffix(strings.TrimSpace(t), "```")
	return strings.TrimSpace(t)
}

func firstBalanced(text string, open, close byte) (string, error) {
	s := StripFences(text)

	start := strings.IndexByte(s, open)
	if start < 0 {
		return "", fmt.Errorf("no %q found in response", string(open))
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return s[start : i+1], nil
			}
		}
	}

	return "", fmt.Errorf("unbalanced %q in response", string(open))
}
