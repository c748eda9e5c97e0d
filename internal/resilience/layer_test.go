package resilience

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/email-analyzer/internal/model"
)

func TestLayer_Evaluate(t *testing.T) {
	t.Parallel()

	l := NewLayer(0)
	assert.InDelta(t, DefaultQualityThreshold, l.QualityThreshold, 0.001)

	good := "```json\n" + `{"workflow_validation": "Confirmed: START for new order",
"action_items": [{"task": "Confirm stock"}],
"risk_assessment": "Stock is tight for the requested ship date.",
"initial_response": "Thanks for the order; we are checking availability.",
"business_process": "Order intake for the west region"}` + "\n```"

	ev := l.Evaluate(good, fiveFieldSpec)
	assert.True(t, ev.Accepted)
	assert.Equal(t, model.ProvenanceModel, ev.Provenance())
	assert.False(t, ev.ExtractionFailed)

	ev = l.Evaluate(`{workflow_validation: "ok"}`, fiveFieldSpec)
	assert.False(t, ev.Accepted)
	assert.Equal(t, ReasonLowQuality, ev.Reason)
	assert.Equal(t, model.ProvenanceHybrid, ev.Provenance())
	assert.Equal(t, model.ProvenanceRepaired, ev.Parsed.Provenance)

	ev = l.Evaluate("plain prose only", fiveFieldSpec)
	assert.False(t, ev.Accepted)
	assert.True(t, ev.ExtractionFailed)
	assert.Equal(t, ReasonNoData, ev.Reason)

	ev = l.Evaluate("", fiveFieldSpec)
	assert.True(t, ev.ExtractionFailed)
	assert.Equal(t, ReasonEmptyOutput, ev.Reason)

	ev = TransportFailure(context.DeadlineExceeded)
	assert.False(t, ev.Accepted)
	assert.False(t, ev.ExtractionFailed)
	assert.Equal(t, model.ProvenanceHybrid, ev.Provenance())
}

func p1Fixture() model.Phase1Result {
	ents := model.NewEntitySet()
	ents.Add(model.EntityPONumbers, "45892347")
	ents.Add(model.EntityDollarAmounts, "$250,000")
	return model.Phase1Result{
		MessageID:       "m-1",
		WorkflowState:   model.WorkflowStart,
		Priority:        model.PriorityCritical,
		Entities:        ents,
		KeyPhrases:      []string{"urgent", "order"},
		SenderCategory:  model.SenderStandard,
		UrgencyScore:    2,
		FinancialImpact: 250000,
	}
}

func TestEnhancementFallback(t *testing.T) {
	t.Parallel()

	p1 := p1Fixture()
	p2 := EnhancementFallback(p1, nil)

	assert.Equal(t, p1, p2.Phase1Result)
	assert.Equal(t, "Confirmed: START", p2.WorkflowValidation)
	assert.Equal(t, FallbackUnableToAssess, p2.RiskAssessment)
	assert.InDelta(t, 0.5, p2.Confidence, 0.0001)
	assert.Equal(t, model.ProvenanceHybrid, p2.EnhanceProvenance)
	assert.Equal(t, model.WorkflowStart, p2.TriageWorkflowState)
	assert.Equal(t, model.PriorityCritical, p2.TriagePriority)
	assert.NotNil(t, p2.MissedEntities)
	assert.Len(t, p2.ActionItems, 1)

	low := EnhancementFallback(p1, map[string]any{"confidence": 0.2})
	assert.InDelta(t, 0.2, low.Confidence, 0.0001)
	high := EnhancementFallback(p1, map[string]any{"confidence": 0.95})
	assert.InDelta(t, 0.5, high.Confidence, 0.0001)

	p1.Priority = model.PriorityMedium
	assert.Empty(t, EnhancementFallback(p1, nil).ActionItems)
}

func TestInsightFallback(t *testing.T) {
	t.Parallel()

	p2 := EnhancementFallback(p1Fixture(), nil)
	p2.RiskAssessment = "Credit exposure on a new account"
	p3 := InsightFallback(p2)

	assert.Equal(t, p2, p3.Phase2Result)
	assert.Equal(t, "Credit exposure on a new account", p3.ExecutiveSummary)
	assert.Equal(t, "$250,000.00", p3.RevenueImpact)
	assert.True(t, p3.EscalationNeeded)
	assert.Equal(t, model.ProvenanceHybrid, p3.InsightProvenance)
	assert.NotNil(t, p3.CrossEmailPatterns)
}

func TestFormatCurrency(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "$0.00", FormatCurrency(0))
	assert.Equal(t, "$1,200.50", FormatCurrency(1200.5))
	assert.Equal(t, "$250,000.00", FormatCurrency(250000))
}
