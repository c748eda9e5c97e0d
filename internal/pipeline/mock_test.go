package pipeline

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/email-analyzer/internal/llm"
	"github.com/sells-group/email-analyzer/internal/model"
)

// --- Generator Mock ---

type mockGenerator struct {
	mock.Mock
}

func (m *mockGenerator) Generate(ctx context.Context, prompt string, opts llm.Options) (*llm.Response, error) {
	args := m.Called(ctx, prompt, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*llm.Response), args.Error(1)
}

func (m *mockGenerator) Provider() string { return "mock" }

const (
	testEnhanceModel = "claude-haiku-4-5-20251001"
	testInsightModel = "claude-sonnet-4-5-20250929"
)

func forModel(name string) any {
	return mock.MatchedBy(func(o llm.Options) bool { return o.Model == name })
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Enhance.Model = testEnhanceModel
	cfg.Enhance.Timeout = 50 * time.Millisecond
	cfg.Insight.Model = testInsightModel
	cfg.Insight.Timeout = 50 * time.Millisecond
	return cfg
}

func textResponse(modelName, text string) *llm.Response {
	return &llm.Response{
		Text:  text,
		Model: modelName,
		Usage: llm.Usage{InputTokens: 1200, OutputTokens: 300},
	}
}

const goodEnhancement = "Here is the analysis:\n```json\n" + `{
  "workflow_validation": "Confirmed START: new order request with a purchase order reference",
  "workflow_state": "START",
  "priority": "CRITICAL",
  "missed_entities": {"po_numbers": ["45892347"], "contacts": ["Jordan Lee"]},
  "action_items": [
    {"task": "Confirm stock for the 250k order", "owner": "Sales ops", "deadline": "today"}
  ],
  "risk_assessment": "Large order on a tight timeline; a stock shortfall would put the account at risk.",
  "initial_response": "Thank you for your order. We are confirming availability and will reply within the hour.",
  "confidence": 0.86,
  "business_process": "order intake"
}` + "\n```"

const goodInsight = `{
  "strategic_insights": {
    "opportunity": "Bundle a service contract with the 250k order for recurring revenue.",
    "risk": "Missing the requested date could push the buyer to a competitor.",
    "relationship": "Buyer is escalating directly; assign an executive sponsor."
  },
  "executive_summary": "Critical 250k order needs same-day confirmation and executive attention.",
  "escalation_needed": true,
  "revenue_impact": "$250,000 immediate, $40,000 annual service upside",
  "cross_email_patterns": ["Second rush order this quarter"]
}`

// repairableEnhancement has bare keys and a trailing comma.
const repairableEnhancement = `Sure. {workflow_validation: "Confirmed IN_PROGRESS: the customer is asking for a shipment status",
  action_items: [{task: "Send tracking details", owner: "Logistics", deadline: "end of day"}],
  risk_assessment: "Low risk; the shipment is in transit and on schedule per the carrier.",
  initial_response: "Your order shipped yesterday and should arrive on Thursday.",
  confidence: 0.8,}`

var (
	scenarioA = model.Message{
		ID:         "msg-a",
		Subject:    "URGENT: $250,000 order, PO 45892347",
		Body:       "Please confirm we can ship the full order by Friday.",
		Sender:     "buyer@acme-industrial.com",
		ReceivedAt: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	}
	scenarioB = model.Message{
		ID:         "msg-b",
		Subject:    "FYI: weekly newsletter",
		Body:       "This week in the industry: trade show recap and new product spotlights.",
		Sender:     "news@vendor-updates.com",
		ReceivedAt: time.Date(2026, 3, 2, 9, 5, 0, 0, time.UTC),
	}
	// scenarioD is a standard business email that selects phases 1 and 2.
	scenarioD = model.Message{
		ID:         "msg-d",
		Subject:    "Delivery schedule question",
		Body:       "Hi team, could you confirm the delivery date for our replacement parts order of $1,200? Thanks, Dana",
		Sender:     "dana@smallshop.com",
		ReceivedAt: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
	}
)
