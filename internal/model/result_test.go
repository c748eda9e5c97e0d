package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWorkflowState(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want WorkflowState
		ok   bool
	}{
		{"START", WorkflowStart, true},
		{"in progress", WorkflowInProgress, true},
		{"in-progress", WorkflowInProgress, true},
		{"completed", WorkflowCompletion, true},
		{" COMPLETION ", WorkflowCompletion, true},
		{"pending", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, ok := ParseWorkflowState(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPriorityRankAndParse(t *testing.T) {
	t.Parallel()

	assert.Less(t, PriorityLow.Rank(), PriorityMedium.Rank())
	assert.Less(t, PriorityMedium.Rank(), PriorityHigh.Rank())
	assert.Less(t, PriorityHigh.Rank(), PriorityCritical.Rank())

	p, ok := ParsePriority("critical")
	assert.True(t, ok)
	assert.Equal(t, PriorityCritical, p)

	_, ok = ParsePriority("urgent")
	assert.False(t, ok)
}

func TestClampConfidence(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0.0, ClampConfidence(-0.2))
	assert.Equal(t, 1.0, ClampConfidence(7))
	assert.Equal(t, 0.42, ClampConfidence(0.42))
}

func TestPhase3Result_KeepsEveryEarlierField(t *testing.T) {
	t.Parallel()

	p1 := Phase1Result{
		MessageID:       "m-1",
		WorkflowState:   WorkflowStart,
		Priority:        PriorityHigh,
		Entities:        NewEntitySet(),
		KeyPhrases:      []string{"order"},
		SenderCategory:  SenderKeyAccount,
		UrgencyScore:    1,
		FinancialImpact: 1200,
		TriageElapsed:   time.Millisecond,
	}
	p2 := Phase2Result{
		Phase1Result:      p1,
		RiskAssessment:    "Supplier delay risk",
		Confidence:        0.8,
		EnhanceProvenance: ProvenanceModel,
	}
	p3 := Phase3Result{
		Phase2Result:      p2,
		ExecutiveSummary:  "Summary",
		InsightProvenance: ProvenanceHybrid,
	}

	data, err := json.Marshal(p3)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	for _, key := range []string{
		"message_id", "workflow_state", "priority", "entities", "key_phrases",
		"sender_category", "urgency_score", "financial_impact",
		"workflow_validation", "missed_entities", "action_items", "risk_assessment",
		"initial_response", "confidence", "business_process", "enhance_provenance",
		"strategic_insights", "executive_summary", "escalation_needed",
		"revenue_impact", "insight_provenance",
	} {
		assert.Contains(t, raw, key)
	}
	assert.Equal(t, "model", raw["enhance_provenance"])
	assert.Equal(t, "hybrid", raw["insight_provenance"])
	assert.NotContains(t, raw, "TriageElapsed")
}

func TestAnalysis_FinalPhaseAndProvenance(t *testing.T) {
	t.Parallel()

	a := &Analysis{Phase1: Phase1Result{Priority: PriorityLow}}
	assert.Equal(t, PhaseTriage, a.FinalPhase())
	assert.Empty(t, a.Provenance())
	assert.Equal(t, PriorityLow, a.Priority())

	a.Phase2 = &Phase2Result{EnhanceProvenance: ProvenanceRepaired}
	a.Phase2.Priority = PriorityHigh
	assert.Equal(t, PhaseEnhance, a.FinalPhase())
	assert.Equal(t, PriorityHigh, a.Priority())

	a.Phase3 = &Phase3Result{Phase2Result: *a.Phase2, InsightProvenance: ProvenanceHybrid}
	assert.Equal(t, PhaseInsight, a.FinalPhase())
	assert.Equal(t, map[Phase]Provenance{
		PhaseEnhance: ProvenanceRepaired,
		PhaseInsight: ProvenanceHybrid,
	}, a.Provenance())
}

func TestAnalysisDecision(t *testing.T) {
	t.Parallel()

	d := AnalysisDecision{Phases: []Phase{PhaseTriage, PhaseEnhance}}
	assert.True(t, d.Includes(PhaseEnhance))
	assert.False(t, d.Includes(PhaseInsight))
	assert.Equal(t, PhaseEnhance, d.Highest())
	assert.Equal(t, "1,2", d.String())
	assert.Equal(t, "3_insight", PhaseInsight.String())
}

func TestMessage_ChainKeyAndImportance(t *testing.T) {
	t.Parallel()

	m := Message{ID: "m-1", Importance: "HIGH"}
	assert.Equal(t, "m-1", m.ChainKey())
	assert.True(t, m.HighImportance())

	m.ConversationID = "conv-7"
	m.Importance = ImportanceNormal
	assert.Equal(t, "conv-7", m.ChainKey())
	assert.False(t, m.HighImportance())
}
