package interpreter

import (
	"encoding/json"
	"strings"
)

// extractJSONBlocks pulls every top-level JSON object out of free-form
// model output. The fast path parses the whole text as a JSON array or
// object; otherwise a balance-aware scan walks the text tracking brace
// depth, string literals, and escapes, so braces inside quoted values do
// not confuse it. Unparseable fragments are skipped, not fatal.
func extractJSONBlocks(text string) []map[string]any {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	text = stripCodeFences(text)

	// Whole-text parse first: a bare array of actions, a single object, or
	// an {"actions": [...]} wrapper.
	var asArray []map[string]any
	if err := json.Unmarshal([]byte(text), &asArray); err == nil {
		return asArray
	}
	var asObject map[string]any
	if err := json.Unmarshal([]byte(text), &asObject); err == nil {
		if wrapped, ok := asObject["actions"].([]any); ok {
			var out []map[string]any
			for _, item := range wrapped {
				if obj, ok := item.(map[string]any); ok {
					out = append(out, obj)
				}
			}
			if len(out) > 0 {
				return out
			}
		}
		return []map[string]any{asObject}
	}

	var out []map[string]any
	depth := 0
	start := -1
	inString := false
	escaped := false
	for i := 0; i < len(text); i++ {
		c := text[i]
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
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 && start >= 0 {
				var obj map[string]any
				if err := json.Unmarshal([]byte(text[start:i+1]), &obj); err == nil {
					out = append(out, obj)
				}
				start = -1
			}
		}
	}
	return out
}

// stripCodeFences removes a surrounding markdown fence if present, keeping
// the inner payload.
func stripCodeFences(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	rest := strings.TrimPrefix(text, "```")
	if idx := strings.IndexByte(rest, '\n'); idx >= 0 {
		rest = rest[idx+1:]
	}
	if idx := strings.LastIndex(rest, "```"); idx >= 0 {
		rest = rest[:idx]
	}
	return strings.TrimSpace(rest)
}
