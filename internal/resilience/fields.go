package resilience

import (
	"sort"
	"strconv"
	"strings"
)

// Lookup resolves a dotted path in parsed response data.
func Lookup(data map[string]any, path string) (any, bool) {
	var cur any = data
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[part]; !ok {
			return nil, false
		}
	}
	return cur, true
}

// String returns the value at path as trimmed text. Numbers and booleans are
// formatted; objects and arrays are flattened.
func String(data map[string]any, path string) string {
	v, ok := Lookup(data, path)
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return strings.TrimSpace(textOf(t))
	}
}

// Float returns the value at path as a number, accepting numeric strings
// and percentages ("85%" is 0.85).
func Float(data map[string]any, path string) (float64, bool) {
	v, ok := Lookup(data, path)
	if !ok {
		return 0, false
	}
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		s := strings.TrimSpace(t)
		pct := strings.HasSuffix(s, "%")
		s = strings.TrimSuffix(s, "%")
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, false
		}
		if pct {
			f /= 100
		}
		return f, true
	default:
		return 0, false
	}
}

// Bool returns the value at path as a boolean, accepting "yes"/"no" style
// strings.
func Bool(data map[string]any, path string) (bool, bool) {
	v, ok := Lookup(data, path)
	if !ok {
		return false, false
	}
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "yes", "y", "1":
			return true, true
		case "false", "no", "n", "0":
			return false, true
		}
	}
	return false, false
}

// Strings returns the value at path as a list of non-empty strings. A
// single string becomes a one-element list.
func Strings(data map[string]any, path string) []string {
	v, ok := Lookup(data, path)
	if !ok {
		return []string{}
	}
	out := []string{}
	switch t := v.(type) {
	case string:
		if s := strings.TrimSpace(t); s != "" {
			out = append(out, s)
		}
	case []any:
		for _, e := range t {
			var s string
			switch ev := e.(type) {
			case string:
				s = ev
			case float64:
				s = strconv.FormatFloat(ev, 'f', -1, 64)
			default:
				s = textOf(ev)
			}
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

// Objects returns the value at path as a list of objects, skipping other
// element types.
func Objects(data map[string]any, path string) []map[string]any {
	v, ok := Lookup(data, path)
	if !ok {
		return nil
	}
	list, ok := v.([]any)
	if !ok {
		if m, isMap := v.(map[string]any); isMap {
			return []map[string]any{m}
		}
		return nil
	}
	out := make([]map[string]any, 0, len(list))
	for _, e := range list {
		if m, isMap := e.(map[string]any); isMap {
			out = append(out, m)
		}
	}
	return out
}

// Object returns the value at path as an object, or nil.
func Object(data map[string]any, path string) map[string]any {
	v, _ := Lookup(data, path)
	m, _ := v.(map[string]any)
	return m
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
