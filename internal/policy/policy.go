// Package policy decides how many analysis phases a message is worth.
package policy

import (
	"fmt"
	"strings"

	"github.com/sells-group/email-analyzer/internal/model"
)

// DefaultHighValueThreshold is the financial impact above which a message
// qualifies for strategic insight.
const DefaultHighValueThreshold = 10000.0

// Config holds the named policy constants.
type Config struct {
	// HighValueThreshold gates phase 3 on financial impact. Zero means
	// DefaultHighValueThreshold.
	HighValueThreshold float64
	// DisableInsight never selects phase 3. Used when no insight model is
	// configured.
	DisableInsight bool
}

// Policy is the phase-selection policy. It is deterministic and
// side-effect free.
type Policy struct {
	cfg Config
}

// New creates a Policy from cfg.
func New(cfg Config) *Policy {
	if cfg.HighValueThreshold <= 0 {
		cfg.HighValueThreshold = DefaultHighValueThreshold
	}
	return &Policy{cfg: cfg}
}

// HighValueThreshold returns the effective threshold.
func (p *Policy) HighValueThreshold() float64 {
	return p.cfg.HighValueThreshold
}

// Decide returns the ordered phases to run for a triaged message. chain may
// be nil when no conversation context is available. A low-value message
// always gets phase 1 only; triage already raises high-importance messages
// to CRITICAL.
func (p *Policy) Decide(p1 model.Phase1Result, chain *model.ChainAnalysis, importance model.Importance) model.AnalysisDecision {
	if LowValue(p1) {
		return model.AnalysisDecision{
			Phases: []model.Phase{model.PhaseTriage},
			Reason: "low-value informational email",
		}
	}

	phases := []model.Phase{model.PhaseTriage, model.PhaseEnhance}
	triggers := p.insightTriggers(p1, chain, importance)
	if len(triggers) == 0 || p.cfg.DisableInsight {
		reason := "standard business email"
		if len(triggers) > 0 {
			reason = "insight disabled; " + strings.Join(triggers, ", ")
		}
		return model.AnalysisDecision{Phases: phases, Reason: reason}
	}

	return model.AnalysisDecision{
		Phases: append(phases, model.PhaseInsight),
		Reason: "high value: " + strings.Join(triggers, ", "),
	}
}

// LowValue reports whether p1 describes a low-value informational email:
// LOW priority with no financial impact and no urgency.
func LowValue(p1 model.Phase1Result) bool {
	return p1.Priority == model.PriorityLow && p1.FinancialImpact == 0 && p1.UrgencyScore == 0
}

func (p *Policy) insightTriggers(p1 model.Phase1Result, chain *model.ChainAnalysis, importance model.Importance) []string {
	var triggers []string
	if p1.Priority == model.PriorityCritical {
		triggers = append(triggers, "critical priority")
	}
	if p1.FinancialImpact > p.cfg.HighValueThreshold {
		triggers = append(triggers, fmt.Sprintf("financial impact %.2f > %.2f", p1.FinancialImpact, p.cfg.HighValueThreshold))
	}
	if p1.SenderCategory == model.SenderKeyAccount && p1.UrgencyScore > 0 {
		triggers = append(triggers, "urgent key account")
	}
	if n := len(p1.Entities.Get(model.EntityPONumbers)); n > 0 {
		triggers = append(triggers, fmt.Sprintf("%d purchase order(s)", n))
	}
	if isHigh(importance) {
		triggers = append(triggers, "high importance")
	}
	if chain != nil && chain.IsComplete {
		triggers = append(triggers, fmt.Sprintf("complete %s chain (%d)", chain.ChainType, chain.CompletenessScore))
	}
	return triggers
}

func isHigh(importance model.Importance) bool {
	return model.Message{Importance: importance}.HighImportance()
}
