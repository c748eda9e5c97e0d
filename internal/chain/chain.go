// Package chain scores how completely a conversation covers a business
// workflow from first request to resolution.
package chain

import (
	"sort"
	"strings"

	"github.com/sells-group/email-analyzer/internal/model"
)

// Score weights. The sum of the marker weights plus both bonuses exceeds 100
// so a chain can saturate without every signal present.
const (
	startWeight      = 35
	progressWeight   = 25
	resolutionWeight = 35
	lengthBonus      = 10
	longChainBonus   = 10
	maxScore         = 100
)

// Signal names reported in ChainAnalysis.Signals.
const (
	SignalStart      = "start"
	SignalProgress   = "progress"
	SignalResolution = "resolution"
	SignalLength     = "length>=3"
	SignalLongChain  = "length>=5"
)

var (
	startMarkers      = []string{"request", "quote", "inquiry", "need", "interested"}
	replyMarkers      = []string{"re:", "fw:", "fwd:"}
	progressMarkers   = []string{"update", "status", "follow up", "follow-up", "working on"}
	resolutionMarkers = []string{"complete", "closed", "resolved", "thank you", "delivered", "shipped", "approved", "confirmed"}
)

// signature maps a pair of keyword sets to a chain type. A signature
// matches when at least one keyword of every set is present.
type signature struct {
	chainType model.ChainType
	all       [][]string
}

// signatures are checked in order; the first match wins.
var signatures = []signature{
	{model.ChainQuoteToDelivery, [][]string{{"quote"}, {"resolved", "delivered", "shipped", "approved", "accepted"}}},
	{model.ChainOrderFulfillment, [][]string{{"order"}, {"shipped", "delivered", "approved"}}},
	{model.ChainSupportResolution, [][]string{{"support", "issue"}, {"resolved"}}},
	{model.ChainReturnProcessing, [][]string{{"return", "rma"}, {"processed"}}},
	{model.ChainCompletedWorkflow, [][]string{{"completed", "closed", "resolved", "done"}}},
}

// Score computes the completeness of a conversation. msgs should be the
// full ordered set of messages sharing conversationID; an empty slice
// scores zero.
func Score(conversationID string, msgs []model.Message) model.ChainAnalysis {
	var subjects, all strings.Builder
	for _, m := range msgs {
		s := strings.ToLower(m.Subject)
		subjects.WriteString(s)
		subjects.WriteByte('\n')
		all.WriteString(s)
		all.WriteByte('\n')
		all.WriteString(strings.ToLower(m.Body))
		all.WriteByte('\n')
	}
	subj := subjects.String()
	text := all.String()

	score := 0
	signals := []string{}

	if containsAny(subj, startMarkers) {
		score += startWeight
		signals = append(signals, SignalStart)
	}
	progress := containsAny(subj, replyMarkers) || containsAny(subj, progressMarkers)
	if progress {
		score += progressWeight
		signals = append(signals, SignalProgress)
	}
	if containsAny(text, resolutionMarkers) {
		score += resolutionWeight
		signals = append(signals, SignalResolution)
	}
	if len(msgs) >= 3 {
		score += lengthBonus
		signals = append(signals, SignalLength)
	}
	if len(msgs) >= 5 && progress {
		score += longChainBonus
		signals = append(signals, SignalLongChain)
	}
	score = clamp(score)

	return model.ChainAnalysis{
		ConversationID:    conversationID,
		MessageCount:      len(msgs),
		CompletenessScore: score,
		IsComplete:        score >= model.CompleteThreshold,
		ChainType:         classify(text),
		Signals:           signals,
	}
}

// classify returns the first matching workflow signature for text.
func classify(text string) model.ChainType {
	for _, sig := range signatures {
		matched := true
		for _, set := range sig.all {
			if !containsAny(text, set) {
				matched = false
				break
			}
		}
		if matched {
			return sig.chainType
		}
	}
	return model.ChainOther
}

// GroupByConversation buckets messages by Message.ChainKey and orders each
// bucket by receive time. The input slice is not modified.
func GroupByConversation(msgs []model.Message) map[string][]model.Message {
	groups := make(map[string][]model.Message)
	for _, m := range msgs {
		k := m.ChainKey()
		groups[k] = append(groups[k], m)
	}
	for _, g := range groups {
		sort.SliceStable(g, func(i, j int) bool {
			return g[i].ReceivedAt.Before(g[j].ReceivedAt)
		})
	}
	return groups
}

func clamp(score int) int {
	switch {
	case score < 0:
		return 0
	case score > maxScore:
		return maxScore
	default:
		return score
	}
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
