package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/email-analyzer/internal/model"
	"github.com/sells-group/email-analyzer/internal/triage"
)

func p1(priority model.Priority, urgency int, impact float64) model.Phase1Result {
	return model.Phase1Result{
		Priority:        priority,
		UrgencyScore:    urgency,
		FinancialImpact: impact,
		Entities:        model.NewEntitySet(),
		SenderCategory:  model.SenderStandard,
		KeyPhrases:      []string{},
	}
}

func TestDecide_UrgentHighValueOrder(t *testing.T) {
	t.Parallel()

	msg := model.Message{ID: "a", Subject: "URGENT: $250,000 order, PO 45892347"}
	r := triage.New().Extract(msg)

	d := New(Config{}).Decide(r, nil, msg.Importance)
	assert.Equal(t, []model.Phase{model.PhaseTriage, model.PhaseEnhance, model.PhaseInsight}, d.Phases)
	assert.Contains(t, d.Reason, "critical priority")
	assert.Contains(t, d.Reason, "purchase order")
}

func TestDecide_Newsletter(t *testing.T) {
	t.Parallel()

	msg := model.Message{ID: "b", Subject: "FYI: weekly newsletter", Body: "Highlights from this week."}
	r := triage.New().Extract(msg)

	d := New(Config{}).Decide(r, nil, msg.Importance)
	assert.Equal(t, []model.Phase{model.PhaseTriage}, d.Phases)
	assert.Equal(t, "low-value informational email", d.Reason)
}

func TestDecide_LowValueShortCircuitIgnoresChain(t *testing.T) {
	t.Parallel()

	chain := &model.ChainAnalysis{CompletenessScore: 100, IsComplete: true}
	d := New(Config{}).Decide(p1(model.PriorityLow, 0, 0), chain, model.ImportanceNormal)
	assert.Equal(t, []model.Phase{model.PhaseTriage}, d.Phases)

	d = New(Config{}).Decide(p1(model.PriorityLow, 0, 0), nil, model.ImportanceHigh)
	assert.Equal(t, []model.Phase{model.PhaseTriage}, d.Phases)
}

func TestDecide_Triggers(t *testing.T) {
	t.Parallel()

	withPO := p1(model.PriorityMedium, 0, 0)
	withPO.Entities.Add(model.EntityPONumbers, "12345678")

	keyAccount := p1(model.PriorityHigh, 1, 0)
	keyAccount.SenderCategory = model.SenderKeyAccount

	calmKeyAccount := p1(model.PriorityMedium, 0, 0)
	calmKeyAccount.SenderCategory = model.SenderKeyAccount

	tests := []struct {
		name       string
		in         model.Phase1Result
		chain      *model.ChainAnalysis
		importance model.Importance
		insight    bool
	}{
		{"medium plain", p1(model.PriorityMedium, 0, 0), nil, "", false},
		{"critical", p1(model.PriorityCritical, 2, 0), nil, "", true},
		{"above threshold", p1(model.PriorityMedium, 0, 10000.01), nil, "", true},
		{"at threshold", p1(model.PriorityMedium, 0, 10000), nil, "", false},
		{"urgent key account", keyAccount, nil, "", true},
		{"calm key account", calmKeyAccount, nil, "", false},
		{"po number", withPO, nil, "", true},
		{"high importance", p1(model.PriorityMedium, 0, 0), nil, model.ImportanceHigh, true},
		{"complete chain", p1(model.PriorityMedium, 0, 0), &model.ChainAnalysis{CompletenessScore: 80, IsComplete: true}, "", true},
		{"incomplete chain", p1(model.PriorityMedium, 0, 0), &model.ChainAnalysis{CompletenessScore: 60}, "", false},
	}

	pol := New(Config{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := pol.Decide(tt.in, tt.chain, tt.importance)
			assert.True(t, d.Includes(model.PhaseTriage))
			assert.True(t, d.Includes(model.PhaseEnhance))
			assert.Equal(t, tt.insight, d.Includes(model.PhaseInsight))
			assert.NotEmpty(t, d.Reason)
		})
	}
}

func TestDecide_CustomThreshold(t *testing.T) {
	t.Parallel()

	pol := New(Config{HighValueThreshold: 1000})
	assert.InDelta(t, 1000, pol.HighValueThreshold(), 0.001)
	assert.True(t, pol.Decide(p1(model.PriorityMedium, 0, 1500), nil, "").Includes(model.PhaseInsight))
	assert.InDelta(t, DefaultHighValueThreshold, New(Config{}).HighValueThreshold(), 0.001)
}

func TestDecide_InsightDisabled(t *testing.T) {
	t.Parallel()

	d := New(Config{DisableInsight: true}).Decide(p1(model.PriorityCritical, 3, 0), nil, "")
	assert.Equal(t, []model.Phase{model.PhaseTriage, model.PhaseEnhance}, d.Phases)
	assert.Contains(t, d.Reason, "insight disabled")
}

func TestDecide_Properties(t *testing.T) {
	t.Parallel()

	priorities := []model.Priority{model.PriorityLow, model.PriorityMedium, model.PriorityHigh, model.PriorityCritical}
	importances := []model.Importance{"", model.ImportanceLow, model.ImportanceHigh}
	chains := []*model.ChainAnalysis{nil, {IsComplete: true, CompletenessScore: 90}}
	pol := New(Config{})

	for _, pr := range priorities {
		for urgency := 0; urgency < 3; urgency++ {
			for _, impact := range []float64{0, 50, 20000} {
				for _, imp := range importances {
					for _, ch := range chains {
						in := p1(pr, urgency, impact)
						d := pol.Decide(in, ch, imp)
						again := pol.Decide(in, ch, imp)

						assert.Equal(t, d, again)
						assert.Equal(t, model.PhaseTriage, d.Phases[0])
						if d.Includes(model.PhaseInsight) {
							assert.True(t, d.Includes(model.PhaseEnhance))
						}
						if pr == model.PriorityLow && urgency == 0 && impact == 0 {
							assert.Equal(t, []model.Phase{model.PhaseTriage}, d.Phases)
						}
					}
				}
			}
		}
	}
}
