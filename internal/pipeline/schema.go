package pipeline

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// enhanceOutput is the shape the enhancement prompt asks for. It is only
// used to derive the schema; responses are read field by field so partial
// answers can be salvaged.
type enhanceOutput struct {
	WorkflowValidation string              `json:"workflow_validation" jsonschema:"required,description=Confirm or correct the triage workflow state and say why"`
	WorkflowState      string              `json:"workflow_state,omitempty" jsonschema:"enum=START,enum=IN_PROGRESS,enum=COMPLETION,description=Corrected workflow state; omit to keep the triage value"`
	Priority           string              `json:"priority,omitempty" jsonschema:"enum=LOW,enum=MEDIUM,enum=HIGH,enum=CRITICAL,description=Corrected priority; omit to keep the triage value"`
	MissedEntities     map[string][]string `json:"missed_entities" jsonschema:"description=Entities the triage pass did not find keyed by kind"`
	ActionItems        []actionItemOutput  `json:"action_items" jsonschema:"required"`
	RiskAssessment     string              `json:"risk_assessment" jsonschema:"required"`
	InitialResponse    string              `json:"initial_response" jsonschema:"required,description=Draft reply to the sender"`
	Confidence         float64             `json:"confidence" jsonschema:"required,minimum=0,maximum=1"`
	BusinessProcess    string              `json:"business_process,omitempty"`
}

type actionItemOutput struct {
	Task          string `json:"task" jsonschema:"required"`
	Owner         string `json:"owner" jsonschema:"required"`
	Deadline      string `json:"deadline" jsonschema:"required"`
	RevenueImpact string `json:"revenue_impact,omitempty"`
}

// insightOutput is the shape the strategic insight prompt asks for.
type insightOutput struct {
	StrategicInsights  strategicOutput `json:"strategic_insights" jsonschema:"required"`
	ExecutiveSummary   string          `json:"executive_summary" jsonschema:"required"`
	EscalationNeeded   bool            `json:"escalation_needed" jsonschema:"required"`
	RevenueImpact      string          `json:"revenue_impact" jsonschema:"required,description=Estimated revenue at stake in dollars"`
	CrossEmailPatterns []string        `json:"cross_email_patterns,omitempty" jsonschema:"description=Patterns visible across the conversation"`
}

type strategicOutput struct {
	Opportunity  string `json:"opportunity" jsonschema:"required"`
	Risk         string `json:"risk" jsonschema:"required"`
	Relationship string `json:"relationship" jsonschema:"required"`
}

// outputSchema is a reflected JSON schema in the two forms the pipeline
// needs: a map for providers with structured output and indented text for
// the prompt.
type outputSchema struct {
	Name string
	Map  map[string]any
	Text string
}

func schemaFor[T any](name string) outputSchema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties:  false,
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
	}
	var v T
	schema := reflector.Reflect(v)
	schema.Version = ""

	raw, err := json.Marshal(schema)
	if err != nil {
		panic(err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		panic(err)
	}
	text, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		panic(err)
	}
	return outputSchema{Name: name, Map: m, Text: string(text)}
}

var (
	enhanceSchema = schemaFor[enhanceOutput]("email_enhancement")
	insightSchema = schemaFor[insightOutput]("email_insight")
)
