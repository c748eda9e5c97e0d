package resilience

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var fiveFieldSpec = QualitySpec{
	Required:      []string{"workflow_validation", "action_items", "risk_assessment", "initial_response", "business_process"},
	TextFields:    []string{"risk_assessment", "initial_response", "business_process"},
	MinTextLength: 20,
}

func TestScoreQuality_Complete(t *testing.T) {
	t.Parallel()

	data := map[string]any{
		"workflow_validation": "Confirmed: START, new purchase request",
		"action_items":        []any{map[string]any{"task": "Send order confirmation", "owner": "sales"}},
		"risk_assessment":     "Large order from a new buyer; verify credit terms before shipping.",
		"initial_response":    "Thank you for your order. We are confirming stock and will reply today.",
		"business_process":    "Order intake and credit verification",
	}
	score := ScoreQuality(data, fiveFieldSpec)
	assert.GreaterOrEqual(t, score, 8.0)
	assert.InDelta(t, MaxQuality, score, 0.001)
}

func TestScoreQuality_MissingThreeOfFive(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data map[string]any
	}{
		{"text fields missing", map[string]any{
			"workflow_validation": "Confirmed: START",
			"action_items":        []any{"call back the customer about the quote"},
		}},
		{"best case remaining fields", map[string]any{
			"risk_assessment":  "Credit exposure is significant for this account.",
			"initial_response": "Thanks, we will confirm availability shortly today.",
		}},
		{"empty values count as missing", map[string]any{
			"workflow_validation": "Confirmed: START",
			"action_items":        []any{},
			"risk_assessment":     "   ",
			"initial_response":    "We will follow up with the shipping schedule today.",
			"business_process":    nil,
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Less(t, ScoreQuality(tt.data, fiveFieldSpec), DefaultQualityThreshold)
		})
	}
}

func TestScoreQuality_Boilerplate(t *testing.T) {
	t.Parallel()

	data := map[string]any{
		"workflow_validation": "Confirmed",
		"action_items":        []any{"x"},
		"risk_assessment":     "Lorem ipsum dolor sit amet, consectetur",
		"initial_response":    "Dear [Your Name], thank you for reaching out to us",
		"business_process":    "TBD pending further analysis of the thread",
	}
	score := ScoreQuality(data, fiveFieldSpec)
	assert.InDelta(t, 9.0, score, 0.001)
}

func TestScoreQuality_ShortText(t *testing.T) {
	t.Parallel()

	data := map[string]any{
		"workflow_validation": "ok",
		"action_items":        []any{"a"},
		"risk_assessment":     "low",
		"initial_response":    "ok",
		"business_process":    "sales",
	}
	assert.InDelta(t, 8.0, ScoreQuality(data, fiveFieldSpec), 0.001)
}

func TestScoreQuality_NestedAndDefaults(t *testing.T) {
	t.Parallel()

	spec := QualitySpec{
		Required:   []string{"strategic_insights.opportunity", "executive_summary"},
		TextFields: []string{"strategic_insights.opportunity"},
	}
	data := map[string]any{
		"strategic_insights": map[string]any{"opportunity": "Cross-sell maintenance contracts to the plant."},
		"executive_summary":  "Expansion opportunity",
	}
	assert.InDelta(t, 10.0, ScoreQuality(data, spec), 0.001)
	assert.Zero(t, ScoreQuality(nil, spec))
	assert.InDelta(t, 10.0, ScoreQuality(map[string]any{"any": 1}, QualitySpec{}), 0.001)
}

func TestFieldAccessors(t *testing.T) {
	t.Parallel()

	data := map[string]any{
		"confidence": "85%",
		"score":      0.4,
		"escalate":   "Yes",
		"list":       []any{"a", " ", 3.0, map[string]any{"k": "v"}},
		"single":     "one",
		"obj":        map[string]any{"inner": map[string]any{"x": "deep"}},
		"items":      []any{map[string]any{"task": "t"}, "skip"},
	}

	c, ok := Float(data, "confidence")
	assert.True(t, ok)
	assert.InDelta(t, 0.85, c, 0.0001)
	_, ok = Float(data, "missing")
	assert.False(t, ok)

	b, ok := Bool(data, "escalate")
	assert.True(t, ok)
	assert.True(t, b)

	assert.Equal(t, []string{"a", "3", "v"}, Strings(data, "list"))
	assert.Equal(t, []string{"one"}, Strings(data, "single"))
	assert.Equal(t, []string{}, Strings(data, "missing"))
	assert.Equal(t, "deep", String(data, "obj.inner.x"))
	assert.Equal(t, "0.4", String(data, "score"))
	assert.Len(t, Objects(data, "items"), 1)
	assert.NotNil(t, Object(data, "obj"))
	assert.Nil(t, Object(data, "single"))
}
