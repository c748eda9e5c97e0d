package model

import (
	"strings"
	"time"
)

// WorkflowState is the stage of the business workflow a message belongs to.
type WorkflowState string

const (
	WorkflowStart      WorkflowState = "START"
	WorkflowInProgress WorkflowState = "IN_PROGRESS"
	WorkflowCompletion WorkflowState = "COMPLETION"
)

// ParseWorkflowState normalizes s into a WorkflowState.
func ParseWorkflowState(s string) (WorkflowState, bool) {
	norm := strings.ToUpper(strings.TrimSpace(s))
	norm = strings.NewReplacer(" ", "_", "-", "_").Replace(norm)
	switch WorkflowState(norm) {
	case WorkflowStart, WorkflowInProgress, WorkflowCompletion:
		return WorkflowState(norm), true
	case "COMPLETE", "COMPLETED":
		return WorkflowCompletion, true
	case "INPROGRESS":
		return WorkflowInProgress, true
	}
	return "", false
}

// Priority is the triage priority of a message.
type Priority string

const (
	PriorityLow      Priority = "LOW"
	PriorityMedium   Priority = "MEDIUM"
	PriorityHigh     Priority = "HIGH"
	PriorityCritical Priority = "CRITICAL"
)

// Rank orders priorities from LOW (0) to CRITICAL (3).
func (p Priority) Rank() int {
	switch p {
	case PriorityMedium:
		return 1
	case PriorityHigh:
		return 2
	case PriorityCritical:
		return 3
	default:
		return 0
	}
}

// ParsePriority normalizes s into a Priority.
func ParsePriority(s string) (Priority, bool) {
	switch p := Priority(strings.ToUpper(strings.TrimSpace(s))); p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return p, true
	}
	return "", false
}

// SenderCategory classifies the sender of a message.
type SenderCategory string

const (
	SenderKeyAccount SenderCategory = "KEY_ACCOUNT"
	SenderStandard   SenderCategory = "STANDARD"
)

// Provenance records where the structured output of a model phase came from.
type Provenance string

const (
	ProvenanceModel    Provenance = "model"
	ProvenanceRepaired Provenance = "repaired"
	ProvenanceHybrid   Provenance = "hybrid"
)

// Phase1Result is the deterministic triage output for one message.
type Phase1Result struct {
	MessageID       string         `json:"message_id"`
	WorkflowState   WorkflowState  `json:"workflow_state"`
	Priority        Priority       `json:"priority"`
	Entities        EntitySet      `json:"entities"`
	KeyPhrases      []string       `json:"key_phrases"`
	SenderCategory  SenderCategory `json:"sender_category"`
	UrgencyScore    int            `json:"urgency_score"` // weighted keyword count; subject matches count twice
	FinancialImpact float64        `json:"financial_impact"`

	// TriageElapsed is excluded from JSON so identical input serializes
	// identically. Timings are kept on Analysis.
	TriageElapsed time.Duration `json:"-"`
}

// ActionItem is a follow-up task proposed by the enhancement phase.
type ActionItem struct {
	Task          string `json:"task"`
	Owner         string `json:"owner"`
	Deadline      string `json:"deadline"`
	RevenueImpact string `json:"revenue_impact,omitempty"`
}

// Phase2Result extends Phase1Result with context-conditioned enhancement.
// WorkflowState and Priority of the embedded Phase1Result hold the revised
// values when the model explicitly corrected them; the triage values are
// kept in TriageWorkflowState and TriagePriority.
type Phase2Result struct {
	Phase1Result

	TriageWorkflowState WorkflowState `json:"triage_workflow_state"`
	TriagePriority      Priority      `json:"triage_priority"`
	WorkflowValidation  string        `json:"workflow_validation"`
	MissedEntities      EntitySet     `json:"missed_entities"`
	ActionItems         []ActionItem  `json:"action_items"`
	RiskAssessment      string        `json:"risk_assessment"`
	InitialResponse     string        `json:"initial_response"`
	Confidence          float64       `json:"confidence"`
	BusinessProcess     string        `json:"business_process"`
	EnhanceProvenance   Provenance    `json:"enhance_provenance"`
	EnhanceQuality      float64       `json:"enhance_quality"`

	EnhanceElapsed time.Duration `json:"-"`
}

// AllEntities returns the triage entities merged with the entities the
// enhancement phase surfaced.
func (r Phase2Result) AllEntities() EntitySet {
	return r.Entities.Merge(r.MissedEntities)
}

// StrategicInsights holds the executive-level reading of a message.
type StrategicInsights struct {
	Opportunity  string `json:"opportunity"`
	Risk         string `json:"risk"`
	Relationship string `json:"relationship"`
}

// Phase3Result extends Phase2Result with strategic insight.
type Phase3Result struct {
	Phase2Result

	StrategicInsights  StrategicInsights `json:"strategic_insights"`
	ExecutiveSummary   string            `json:"executive_summary"`
	EscalationNeeded   bool              `json:"escalation_needed"`
	RevenueImpact      string            `json:"revenue_impact"`
	CrossEmailPatterns []string          `json:"cross_email_patterns,omitempty"`
	InsightProvenance  Provenance        `json:"insight_provenance"`
	InsightQuality     float64           `json:"insight_quality"`

	InsightElapsed time.Duration `json:"-"`
}

// ClampConfidence bounds c to [0, 1].
func ClampConfidence(c float64) float64 {
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	default:
		return c
	}
}
