package model

import "time"

// Analysis is the full outcome of running the pipeline on one message.
// Phase2 and Phase3 are nil when the policy did not select them.
type Analysis struct {
	ID          string           `json:"id"`
	MessageID   string           `json:"message_id"`
	Message     Message          `json:"message"`
	Decision    AnalysisDecision `json:"decision"`
	Chain       *ChainAnalysis   `json:"chain,omitempty"`
	Phase1      Phase1Result     `json:"phase1"`
	Phase2      *Phase2Result    `json:"phase2,omitempty"`
	Phase3      *Phase3Result    `json:"phase3,omitempty"`
	Degraded    bool             `json:"degraded"`
	CostUSD     float64          `json:"cost_usd"`
	TimingsMs   map[string]int64 `json:"timings_ms"`
	CreatedAt   time.Time        `json:"created_at"`
	CompletedAt time.Time        `json:"completed_at"`
}

// FinalPhase returns the deepest phase that produced a result.
func (a *Analysis) FinalPhase() Phase {
	switch {
	case a.Phase3 != nil:
		return PhaseInsight
	case a.Phase2 != nil:
		return PhaseEnhance
	default:
		return PhaseTriage
	}
}

// Provenance returns the provenance of each model-backed phase that ran.
func (a *Analysis) Provenance() map[Phase]Provenance {
	out := make(map[Phase]Provenance, 2)
	if a.Phase2 != nil {
		out[PhaseEnhance] = a.Phase2.EnhanceProvenance
	}
	if a.Phase3 != nil {
		out[PhaseInsight] = a.Phase3.InsightProvenance
	}
	return out
}

// Priority returns the effective priority after any enhancement revision.
func (a *Analysis) Priority() Priority {
	switch {
	case a.Phase3 != nil:
		return a.Phase3.Priority
	case a.Phase2 != nil:
		return a.Phase2.Priority
	default:
		return a.Phase1.Priority
	}
}
