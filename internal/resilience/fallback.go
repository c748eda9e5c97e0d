package resilience

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/email-analyzer/internal/model"
)

// Labels used by hybrid results so a reader can tell them from model text.
const (
	FallbackConfirmedPrefix = "Confirmed: "
	FallbackUnableToAssess  = "Unable to assess"
	FallbackNoDraft         = "No draft available (automated enhancement unavailable)"
	FallbackReviewTask      = "Review message manually (automated analysis unavailable)"
	FallbackOwner           = "unassigned"
	FallbackDeadline        = "next business day"

	// FallbackConfidenceCap bounds the confidence of any hybrid result.
	FallbackConfidenceCap = 0.5
)

var currencyPrinter = message.NewPrinter(language.English)

// FormatCurrency renders amount as US dollars with grouping, e.g.
// "$250,000.00".
func FormatCurrency(amount float64) string {
	return currencyPrinter.Sprintf("$%.2f", amount)
}

// EnhancementFallback synthesizes a Phase2Result from the triage result.
// Every triage field is carried forward unchanged. partial is the
// low-quality parse, if any; only its confidence is consulted, and capped.
func EnhancementFallback(p1 model.Phase1Result, partial map[string]any) model.Phase2Result {
	confidence := FallbackConfidenceCap
	if c, ok := Float(partial, "confidence"); ok && c < confidence {
		confidence = model.ClampConfidence(c)
	}

	actions := []model.ActionItem{}
	if p1.Priority.Rank() >= model.PriorityHigh.Rank() {
		actions = append(actions, model.ActionItem{
			Task:     FallbackReviewTask,
			Owner:    FallbackOwner,
			Deadline: FallbackDeadline,
		})
	}

	return model.Phase2Result{
		Phase1Result:        p1,
		TriageWorkflowState: p1.WorkflowState,
		TriagePriority:      p1.Priority,
		WorkflowValidation:  FallbackConfirmedPrefix + string(p1.WorkflowState),
		MissedEntities:      model.NewEntitySet(),
		ActionItems:         actions,
		RiskAssessment:      FallbackUnableToAssess,
		InitialResponse:     FallbackNoDraft,
		Confidence:          confidence,
		BusinessProcess:     FallbackUnableToAssess,
		EnhanceProvenance:   model.ProvenanceHybrid,
	}
}

// InsightFallback synthesizes a Phase3Result from the enhancement result.
// The executive summary falls back to the risk assessment and the revenue
// impact to the triage financial impact.
func InsightFallback(p2 model.Phase2Result) model.Phase3Result {
	summary := p2.RiskAssessment
	if summary == "" {
		summary = FallbackUnableToAssess
	}
	return model.Phase3Result{
		Phase2Result: p2,
		StrategicInsights: model.StrategicInsights{
			Opportunity:  FallbackUnableToAssess,
			Risk:         summary,
			Relationship: FallbackUnableToAssess,
		},
		ExecutiveSummary:   summary,
		EscalationNeeded:   p2.Priority == model.PriorityCritical,
		RevenueImpact:      FormatCurrency(p2.FinancialImpact),
		CrossEmailPatterns: []string{},
		InsightProvenance:  model.ProvenanceHybrid,
	}
}
