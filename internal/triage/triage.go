// Package triage implements the deterministic first analysis pass: entity
// extraction and workflow/priority classification from raw message text.
package triage

import (
	"strconv"
	"strings"
	"time"

	"github.com/sells-group/email-analyzer/internal/model"
)

// DefaultMaxKeyPhrases bounds Phase1Result.KeyPhrases.
const DefaultMaxKeyPhrases = 10

var (
	completionKeywords = []string{"resolved", "completed", "closed"}
	progressKeywords   = []string{"update", "status", "working on"}
	urgencyKeywords    = []string{"urgent", "critical", "asap", "immediate", "emergency", "escalate"}
	infoKeywords       = []string{"fyi", "info"}

	// businessKeywords surface as key phrases when present.
	businessKeywords = []string{
		"purchase order", "order", "quote", "invoice", "payment", "shipment",
		"delivery", "contract", "renewal", "return", "rma", "support", "issue",
		"pricing", "discount", "backorder", "cancel",
	}
)

// Option configures an Extractor.
type Option func(*Extractor)

// WithKeyAccounts sets the sender allow-list. A sender is a key account
// when its address contains any entry, case-insensitively.
func WithKeyAccounts(substrings []string) Option {
	return func(e *Extractor) {
		e.keyAccounts = e.keyAccounts[:0]
		for _, s := range substrings {
			if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
				e.keyAccounts = append(e.keyAccounts, s)
			}
		}
	}
}

// WithPatterns replaces the extraction table.
func WithPatterns(table PatternTable) Option {
	return func(e *Extractor) {
		e.patterns = table
	}
}

// WithMaxKeyPhrases bounds the key phrase list.
func WithMaxKeyPhrases(n int) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.maxKeyPhrases = n
		}
	}
}

// Extractor runs the triage pass. It holds no mutable state and is safe
// for concurrent use.
type Extractor struct {
	patterns      PatternTable
	keyAccounts   []string
	maxKeyPhrases int
}

// New creates an Extractor with the default pattern table.
func New(opts ...Option) *Extractor {
	e := &Extractor{
		patterns:      DefaultPatterns(),
		maxKeyPhrases: DefaultMaxKeyPhrases,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Extract produces the Phase 1 result for msg. It never fails: anything
// not found is left as an empty collection or a default value.
func (e *Extractor) Extract(msg model.Message) model.Phase1Result {
	start := time.Now()

	text := msg.Subject + "\n" + msg.Body
	lowerSubject := strings.ToLower(msg.Subject)
	lowerBody := strings.ToLower(msg.Body)
	lower := lowerSubject + "\n" + lowerBody

	entities := e.extractEntities(text)
	urgency := urgencyScore(lowerSubject, lowerBody)

	result := model.Phase1Result{
		MessageID:       msg.ID,
		WorkflowState:   workflowState(lower),
		Priority:        priority(urgency, msg.HighImportance(), containsAny(lower, infoKeywords)),
		Entities:        entities,
		KeyPhrases:      e.keyPhrases(lower),
		SenderCategory:  e.senderCategory(msg.Sender),
		UrgencyScore:    urgency,
		FinancialImpact: SumDollarAmounts(entities.Get(model.EntityDollarAmounts)),
	}
	result.TriageElapsed = time.Since(start)
	return result
}

func (e *Extractor) extractEntities(text string) model.EntitySet {
	set := model.NewEntitySet()
	for _, row := range e.patterns {
		if set[row.Kind] == nil {
			set[row.Kind] = []string{}
		}
		for _, re := range row.Patterns {
			for _, m := range re.FindAllStringSubmatch(text, -1) {
				value := m[0]
				if len(m) > 1 {
					value = m[1]
				}
				value = strings.TrimSpace(value)
				if len(value) < row.MinLength {
					continue
				}
				set.Add(row.Kind, value)
			}
		}
	}
	return set
}

// workflowState checks completion keywords first, then progress keywords.
func workflowState(lower string) model.WorkflowState {
	switch {
	case containsAny(lower, completionKeywords):
		return model.WorkflowCompletion
	case containsAny(lower, progressKeywords):
		return model.WorkflowInProgress
	default:
		return model.WorkflowStart
	}
}

// urgencyScore counts urgency keyword occurrences. Subject-line occurrences
// count twice.
func urgencyScore(lowerSubject, lowerBody string) int {
	score := 0
	for _, kw := range urgencyKeywords {
		score += 2*strings.Count(lowerSubject, kw) + strings.Count(lowerBody, kw)
	}
	return score
}

func priority(urgency int, highImportance, informational bool) model.Priority {
	switch {
	case urgency >= 2 || highImportance:
		return model.PriorityCritical
	case urgency == 1:
		return model.PriorityHigh
	case informational:
		return model.PriorityLow
	default:
		return model.PriorityMedium
	}
}

func (e *Extractor) senderCategory(sender string) model.SenderCategory {
	addr := strings.ToLower(sender)
	for _, ka := range e.keyAccounts {
		if strings.Contains(addr, ka) {
			return model.SenderKeyAccount
		}
	}
	return model.SenderStandard
}

// keyPhrases collects matched signal keywords in a fixed order.
func (e *Extractor) keyPhrases(lower string) []string {
	phrases := []string{}
	groups := [][]string{urgencyKeywords, completionKeywords, progressKeywords, businessKeywords, infoKeywords}
	for _, group := range groups {
		for _, kw := range group {
			if len(phrases) >= e.maxKeyPhrases {
				return phrases
			}
			if strings.Contains(lower, kw) {
				phrases = append(phrases, kw)
			}
		}
	}
	return phrases
}

// SumDollarAmounts parses "$1,234.56" style tokens and sums them, skipping
// anything unparsable.
func SumDollarAmounts(amounts []string) float64 {
	var total float64
	for _, a := range amounts {
		if v, ok := ParseDollarAmount(a); ok {
			total += v
		}
	}
	return total
}

// ParseDollarAmount parses a single "$1,234.56" token.
func ParseDollarAmount(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
