package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseJSONObject parses raw as a JSON object. When raw is not valid JSON
// as a whole, the substring from the first '{' to the last '}' is parsed
// instead, which recovers objects wrapped in prose or code fences. Values
// that are not objects are rejected at both stages.
func ParseJSONObject(raw string) (map[string]any, error) {
	if obj, ok := parseObject(raw); ok {
		return obj, nil
	}
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		if obj, ok := parseObject(raw[start : end+1]); ok {
			return obj, nil
		}
	}
	return nil, fmt.Errorf("%w: no JSON object in %d bytes", ErrMalformedOutput, len(raw))
}

func parseObject(s string) (map[string]any, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}

// StringField returns obj[key] as a string. Non-string values are
// stringified and missing ones are "".
func StringField(obj map[string]any, key string) string {
	v, ok := obj[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return stringify(v)
}

// ListField returns obj[key] as a list of strings. A string becomes a
// one-element list, other entries are stringified, and missing or empty
// values give an empty, non-nil slice.
func ListField(obj map[string]any, key string) []string {
	out := []string{}
	switch v := obj[key].(type) {
	case nil:
	case []any:
		for _, e := range v {
			if e == nil {
				continue
			}
			if s := stringify(e); s != "" {
				out = append(out, s)
			}
		}
	case string:
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	default:
		out = append(out, stringify(v))
	}
	return out
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64, bool:
		return fmt.Sprint(t)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
