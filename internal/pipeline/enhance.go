package pipeline

import (
	"context"
	"strings"

	"github.com/sells-group/email-analyzer/internal/llm"
	"github.com/sells-group/email-analyzer/internal/model"
	"github.com/sells-group/email-analyzer/internal/resilience"
)

// Enhancer runs the contextual enhancement phase.
type Enhancer struct {
	gen   llm.Generator
	layer *resilience.Layer
	cfg   PhaseConfig
	spec  resilience.QualitySpec
}

// NewEnhancer creates an Enhancer. minText is the free-text length a
// response needs to count as specific; zero uses the default.
func NewEnhancer(gen llm.Generator, layer *resilience.Layer, cfg PhaseConfig, minText int) *Enhancer {
	return &Enhancer{gen: gen, layer: layer, cfg: cfg, spec: enhanceQuality(minText)}
}

// Enhance produces the Phase 2 result for msg. It always returns a usable
// result; when the model fails or answers poorly the result is a hybrid
// built from p1 and Call says why.
func (e *Enhancer) Enhance(ctx context.Context, msg model.Message, p1 model.Phase1Result) (model.Phase2Result, Call) {
	call := invoke(ctx, e.gen, e.layer, model.PhaseEnhance, e.cfg,
		enhanceSystem, buildEnhancePrompt(msg, p1), enhanceSchema, e.spec)

	var p2 model.Phase2Result
	if call.Evaluation.Accepted {
		p2 = decodeEnhancement(p1, call.Evaluation.Data)
	} else {
		p2 = resilience.EnhancementFallback(p1, call.Evaluation.Data)
	}
	p2.EnhanceProvenance = call.Evaluation.Provenance()
	p2.EnhanceQuality = call.Evaluation.Score
	p2.EnhanceElapsed = call.Elapsed
	return p2, call
}

// decodeEnhancement builds a Phase2Result from accepted response data.
// Invalid enum values keep the triage value.
func decodeEnhancement(p1 model.Phase1Result, data map[string]any) model.Phase2Result {
	p2 := model.Phase2Result{
		Phase1Result:        p1,
		TriageWorkflowState: p1.WorkflowState,
		TriagePriority:      p1.Priority,
		WorkflowValidation:  resilience.String(data, "workflow_validation"),
		MissedEntities:      missedEntities(data, p1.Entities),
		ActionItems:         actionItems(data),
		RiskAssessment:      resilience.String(data, "risk_assessment"),
		InitialResponse:     resilience.String(data, "initial_response"),
		BusinessProcess:     resilience.String(data, "business_process"),
	}
	p2.Entities = p1.Entities.Clone()
	if ws, ok := model.ParseWorkflowState(resilience.String(data, "workflow_state")); ok {
		p2.WorkflowState = ws
	}
	if pr, ok := model.ParsePriority(resilience.String(data, "priority")); ok {
		p2.Priority = pr
	}
	fb := resilience.EnhancementFallback(p1, nil)
	if c, ok := resilience.Float(data, "confidence"); ok {
		p2.Confidence = model.ClampConfidence(c)
	} else {
		p2.Confidence = fb.Confidence
	}
	fillMissing(&p2.WorkflowValidation, fb.WorkflowValidation)
	fillMissing(&p2.RiskAssessment, fb.RiskAssessment)
	fillMissing(&p2.InitialResponse, fb.InitialResponse)
	fillMissing(&p2.BusinessProcess, fb.BusinessProcess)
	return p2
}

// fillMissing sets *field to def when the model left it blank.
func fillMissing(field *string, def string) {
	if strings.TrimSpace(*field) == "" {
		*field = def
	}
}

// missedEntities keeps only values the triage pass did not already find.
func missedEntities(data map[string]any, known model.EntitySet) model.EntitySet {
	out := model.NewEntitySet()
	obj := resilience.Object(data, "missed_entities")
	for key := range obj {
		kind := model.EntityKind(strings.ToLower(strings.ReplaceAll(strings.TrimSpace(key), " ", "_")))
		if kind == "" {
			continue
		}
		seen := make(map[string]bool)
		for _, v := range known.Get(kind) {
			seen[v] = true
		}
		for _, v := range resilience.Strings(obj, key) {
			if !seen[v] {
				out.Add(kind, v)
			}
		}
	}
	return out
}

func actionItems(data map[string]any) []model.ActionItem {
	items := []model.ActionItem{}
	for _, obj := range resilience.Objects(data, "action_items") {
		task := resilience.String(obj, "task")
		if task == "" {
			continue
		}
		items = append(items, model.ActionItem{
			Task:          task,
			Owner:         resilience.String(obj, "owner"),
			Deadline:      resilience.String(obj, "deadline"),
			RevenueImpact: resilience.String(obj, "revenue_impact"),
		})
	}
	// Plain string items are accepted as tasks without owner or deadline.
	if len(items) == 0 {
		for _, task := range resilience.Strings(data, "action_items") {
			items = append(items, model.ActionItem{Task: task})
		}
	}
	return items
}
