package resilience

import (
	"math"
	"strings"
)

// Quality weights; they sum to MaxQuality.
const (
	completenessWeight = 7.0
	specificityWeight  = 2.0
	boilerplateWeight  = 1.0

	MaxQuality = 10.0
)

// DefaultMinTextLength is the shortest free-text answer treated as specific.
const DefaultMinTextLength = 20

var boilerplatePhrases = []string{
	"lorem ipsum",
	"placeholder",
	"to be determined",
	"tbd",
	"n/a",
	"insert ",
	"[your",
	"<your",
	"as an ai",
	"i cannot",
	"not specified",
	"example.com",
	"xxx",
}

// QualitySpec is the per-phase definition of a good response. Field names
// may be dotted to reach into nested objects ("strategic_insights.risk").
type QualitySpec struct {
	Required      []string
	TextFields    []string
	MinTextLength int
}

// ScoreQuality rates parsed data from 0 to 10: up to 7 for required fields
// present and non-empty, up to 2 for free-text fields meeting the minimum
// length, and 1 for the absence of boilerplate. A missing text field counts
// against specificity.
func ScoreQuality(data map[string]any, spec QualitySpec) float64 {
	if data == nil {
		return 0
	}
	minLen := spec.MinTextLength
	if minLen <= 0 {
		minLen = DefaultMinTextLength
	}

	completeness := 1.0
	if len(spec.Required) > 0 {
		present := 0
		for _, f := range spec.Required {
			if v, ok := Lookup(data, f); ok && !isEmpty(v) {
				present++
			}
		}
		completeness = float64(present) / float64(len(spec.Required))
	}

	specificity, clean := 1.0, 1.0
	if len(spec.TextFields) > 0 {
		specific, dirty := 0, 0
		for _, f := range spec.TextFields {
			v, _ := Lookup(data, f)
			text := strings.TrimSpace(textOf(v))
			if len(text) >= minLen {
				specific++
			}
			if hasBoilerplate(text) {
				dirty++
			}
		}
		specificity = float64(specific) / float64(len(spec.TextFields))
		clean = 1 - float64(dirty)/float64(len(spec.TextFields))
	}

	score := completenessWeight*completeness + specificityWeight*specificity + boilerplateWeight*clean
	return math.Round(score*100) / 100
}

func hasBoilerplate(text string) bool {
	lower := strings.ToLower(text)
	for _, p := range boilerplatePhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	default:
		return false
	}
}

// textOf flattens the string content of v.
func textOf(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		parts := make([]string, 0, len(t))
		for _, e := range t {
			if s := textOf(e); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, " ")
	case map[string]any:
		parts := make([]string, 0, len(t))
		for _, k := range sortedKeys(t) {
			if s := textOf(t[k]); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, " ")
	default:
		return ""
	}
}
