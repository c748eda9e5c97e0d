package pipeline

import (
	"context"

	"github.com/sells-group/email-analyzer/internal/llm"
	"github.com/sells-group/email-analyzer/internal/model"
	"github.com/sells-group/email-analyzer/internal/resilience"
)

// InsightGenerator runs the strategic insight phase.
type InsightGenerator struct {
	gen   llm.Generator
	layer *resilience.Layer
	cfg   PhaseConfig
	spec  resilience.QualitySpec
}

// NewInsightGenerator creates an InsightGenerator.
func NewInsightGenerator(gen llm.Generator, layer *resilience.Layer, cfg PhaseConfig, minText int) *InsightGenerator {
	return &InsightGenerator{gen: gen, layer: layer, cfg: cfg, spec: insightQuality(minText)}
}

// Generate produces the Phase 3 result for msg from the enhancement result,
// which carries the triage result. chain and siblings describe the
// conversation and may be empty. Like Enhance it never fails.
func (g *InsightGenerator) Generate(ctx context.Context, msg model.Message, p2 model.Phase2Result,
	chain *model.ChainAnalysis, siblings []model.Message) (model.Phase3Result, Call) {
	call := invoke(ctx, g.gen, g.layer, model.PhaseInsight, g.cfg,
		insightSystem, buildInsightPrompt(msg, p2, chain, siblings), insightSchema, g.spec)

	var p3 model.Phase3Result
	if call.Evaluation.Accepted {
		p3 = decodeInsight(p2, call.Evaluation.Data)
	} else {
		p3 = resilience.InsightFallback(p2)
	}
	p3.InsightProvenance = call.Evaluation.Provenance()
	p3.InsightQuality = call.Evaluation.Score
	p3.InsightElapsed = call.Elapsed
	return p3, call
}

func decodeInsight(p2 model.Phase2Result, data map[string]any) model.Phase3Result {
	p3 := model.Phase3Result{
		Phase2Result: p2,
		StrategicInsights: model.StrategicInsights{
			Opportunity:  resilience.String(data, "strategic_insights.opportunity"),
			Risk:         resilience.String(data, "strategic_insights.risk"),
			Relationship: resilience.String(data, "strategic_insights.relationship"),
		},
		ExecutiveSummary:   resilience.String(data, "executive_summary"),
		RevenueImpact:      resilience.String(data, "revenue_impact"),
		CrossEmailPatterns: resilience.Strings(data, "cross_email_patterns"),
	}
	fb := resilience.InsightFallback(p2)
	if esc, ok := resilience.Bool(data, "escalation_needed"); ok {
		p3.EscalationNeeded = esc
	} else {
		p3.EscalationNeeded = fb.EscalationNeeded
	}
	fillMissing(&p3.StrategicInsights.Opportunity, fb.StrategicInsights.Opportunity)
	fillMissing(&p3.StrategicInsights.Risk, fb.StrategicInsights.Risk)
	fillMissing(&p3.StrategicInsights.Relationship, fb.StrategicInsights.Relationship)
	fillMissing(&p3.ExecutiveSummary, fb.ExecutiveSummary)
	fillMissing(&p3.RevenueImpact, fb.RevenueImpact)
	return p3
}
