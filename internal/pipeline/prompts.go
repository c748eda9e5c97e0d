package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/sells-group/email-analyzer/internal/model"
	"github.com/sells-group/email-analyzer/internal/resilience"
)

// maxBodyChars bounds the message body embedded in a prompt.
const maxBodyChars = 8000

// maxSiblingDigest bounds the conversation digest in the insight prompt.
const maxSiblingDigest = 10

const enhanceSystem = `You are an operations analyst for a B2B distributor reviewing inbound business email.
A deterministic triage pass has already extracted entities, priority and workflow state.
Add only what the triage pass could not. Never repeat extracted values back.
Answer with a single JSON object and nothing else.`

const enhancePrompt = `Triage result (already extracted, do not repeat):
%s

Email
From: %s
Subject: %s
Body:
%s

Tasks:
1. Confirm or correct workflow_state (START, IN_PROGRESS, COMPLETION) in workflow_validation.
2. List entities the triage patterns missed in missed_entities, keyed by kind.
3. Propose action_items with an owner and a deadline.
4. Assess the business risk in risk_assessment.
5. Draft an initial_response to the sender.
6. Give your confidence from 0 to 1.

Return JSON matching this schema:
%s`

const insightSystem = `You are a strategic account advisor briefing sales leadership on high-value email.
Two earlier passes have already triaged and enhanced this message.
Add only new strategic value: hidden implications, cross-account opportunities,
relationship and escalation signals, revenue angles. Do not restate earlier findings.
Answer with a single JSON object and nothing else.`

const insightPrompt = `Triage and enhancement results (do not repeat):
%s

Entities found so far:
%s

Conversation:
%s

Email
From: %s
Subject: %s
Body:
%s

Return JSON matching this schema:
%s`

// enhanceQuality is the quality bar for enhancement responses.
func enhanceQuality(minText int) resilience.QualitySpec {
	return resilience.QualitySpec{
		Required:      []string{"workflow_validation", "action_items", "risk_assessment", "initial_response", "confidence"},
		TextFields:    []string{"risk_assessment", "initial_response"},
		MinTextLength: minText,
	}
}

// insightQuality is the quality bar for strategic insight responses.
func insightQuality(minText int) resilience.QualitySpec {
	return resilience.QualitySpec{
		Required: []string{
			"strategic_insights.opportunity", "strategic_insights.risk", "strategic_insights.relationship",
			"executive_summary", "revenue_impact",
		},
		TextFields:    []string{"executive_summary", "strategic_insights.opportunity", "strategic_insights.risk"},
		MinTextLength: minText,
	}
}

func buildEnhancePrompt(msg model.Message, p1 model.Phase1Result) string {
	return fmt.Sprintf(enhancePrompt,
		mustJSON(p1),
		msg.Sender,
		msg.Subject,
		truncate(msg.Body, maxBodyChars),
		enhanceSchema.Text,
	)
}

func buildInsightPrompt(msg model.Message, p2 model.Phase2Result, chain *model.ChainAnalysis, siblings []model.Message) string {
	return fmt.Sprintf(insightPrompt,
		mustJSON(p2),
		mustJSON(p2.AllEntities()),
		conversationDigest(msg, chain, siblings),
		msg.Sender,
		msg.Subject,
		truncate(msg.Body, maxBodyChars),
		insightSchema.Text,
	)
}

// conversationDigest summarizes the chain and the most recent sibling
// subjects so the model can report cross-email patterns.
func conversationDigest(msg model.Message, chain *model.ChainAnalysis, siblings []model.Message) string {
	var b strings.Builder
	if chain != nil {
		fmt.Fprintf(&b, "%d messages, type %s, completeness %d/100", chain.MessageCount, chain.ChainType, chain.CompletenessScore)
		if len(chain.Signals) > 0 {
			fmt.Fprintf(&b, " (%s)", strings.Join(chain.Signals, ", "))
		}
		b.WriteString("\n")
	}

	var others []model.Message
	for _, s := range siblings {
		if s.ID != msg.ID {
			others = append(others, s)
		}
	}
	if len(others) > maxSiblingDigest {
		others = others[len(others)-maxSiblingDigest:]
	}
	for _, s := range others {
		fmt.Fprintf(&b, "- %s %s: %s\n", s.ReceivedAt.Format("2006-01-02"), s.Sender, s.Subject)
	}
	if b.Len() == 0 {
		return "single message, no prior conversation"
	}
	return strings.TrimRight(b.String(), "\n")
}

func mustJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

// truncate cuts s to at most n bytes on a rune boundary.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "\n[truncated]"
}
