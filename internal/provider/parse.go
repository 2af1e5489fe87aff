package provider

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/tabtriage/tabtriage/internal/types"
)

// ParseReply extracts a unit-id → category map from a raw provider
// reply. Attempts, in order: the whole trimmed text; the substring
// between the first '{' and last '}'; that substring with fenced-code
// markers stripped. Unknown keys, ids not in valid, and values outside
// 1..3 are dropped silently; ids absent from the reply are simply not
// in the result. A reply with no recoverable object fails with
// ErrUnparseable.
func ParseReply(raw string, valid map[int]bool) (map[int]types.Category, error) {
	trimmed := strings.TrimSpace(raw)

	if m, ok := tryParse(trimmed, valid); ok {
		return m, nil
	}

	if sub, ok := braceSubstring(trimmed); ok {
		if m, ok := tryParse(sub, valid); ok {
			return m, nil
		}
	}

	stripped := stripFences(trimmed)
	if sub, ok := braceSubstring(stripped); ok {
		if m, ok := tryParse(sub, valid); ok {
			return m, nil
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrUnparseable, snippet(trimmed))
}

// tryParse decodes one candidate as a JSON object and narrows its
// entries into categories.
func tryParse(candidate string, valid map[int]bool) (map[int]types.Category, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(candidate), &obj); err != nil {
		return nil, false
	}
	if obj == nil {
		return nil, false
	}

	out := make(map[int]types.Category)
	for key, value := range obj {
		id, err := strconv.Atoi(strings.TrimSpace(key))
		if err != nil {
			continue
		}
		if valid != nil && !valid[id] {
			continue
		}
		cat, ok := narrowCategory(value)
		if !ok {
			continue
		}
		out[id] = cat
	}
	return out, true
}

// narrowCategory accepts a category as a JSON number or numeric string
// and rejects anything outside the assignable tiers 1..3.
func narrowCategory(value any) (types.Category, bool) {
	var n int
	switch v := value.(type) {
	case float64:
		n = int(v)
		if float64(n) != v {
			return 0, false
		}
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, false
		}
		n = parsed
	default:
		return 0, false
	}
	cat := types.Category(n)
	if cat < types.CanClose || cat > types.Important {
		return 0, false
	}
	return cat, true
}

func braceSubstring(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:]
		} else {
			s = strings.TrimPrefix(s, "```")
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func snippet(s string) string {
	if len(s) > 80 {
		return s[:80] + "…"
	}
	return s
}
