package chain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/email-analyzer/internal/model"
)

func msg(id, conv, subject, body string, at int) model.Message {
	return model.Message{
		ID:             id,
		ConversationID: conv,
		Subject:        subject,
		Body:           body,
		ReceivedAt:     time.Date(2025, 3, 1, at, 0, 0, 0, time.UTC),
	}
}

func TestScore_QuoteToApprovedOrder(t *testing.T) {
	t.Parallel()

	msgs := []model.Message{
		msg("1", "c1", "Quote request for 500 valves", "We would like pricing.", 1),
		msg("2", "c1", "Re: Quote request for 500 valves", "Attached is quote 123456.", 2),
		msg("3", "c1", "Re: Quote request for 500 valves", "Can you do better on lead time?", 3),
		msg("4", "c1", "Re: Quote request for 500 valves", "Revised pricing attached.", 4),
		msg("5", "c1", "Order approved", "The order approved by finance today.", 5),
	}

	got := Score("c1", msgs)

	assert.Equal(t, "c1", got.ConversationID)
	assert.Equal(t, 5, got.MessageCount)
	assert.Contains(t, []model.ChainType{model.ChainQuoteToDelivery, model.ChainOrderFulfillment}, got.ChainType)
	assert.GreaterOrEqual(t, got.CompletenessScore, 70)
	assert.True(t, got.IsComplete)
	assert.LessOrEqual(t, got.CompletenessScore, 100)
	assert.Equal(t, []string{SignalStart, SignalProgress, SignalResolution, SignalLength, SignalLongChain}, got.Signals)
}

func TestScore_SingleStartMessage(t *testing.T) {
	t.Parallel()

	got := Score("c2", []model.Message{msg("1", "c2", "Inquiry about pricing", "Hello", 1)})
	assert.Equal(t, startWeight, got.CompletenessScore)
	assert.False(t, got.IsComplete)
	assert.Equal(t, model.ChainOther, got.ChainType)
}

func TestScore_Empty(t *testing.T) {
	t.Parallel()

	got := Score("none", nil)
	assert.Zero(t, got.CompletenessScore)
	assert.False(t, got.IsComplete)
	assert.Equal(t, model.ChainOther, got.ChainType)
	assert.NotNil(t, got.Signals)
}

func TestScore_ChainTypes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want model.ChainType
	}{
		{"quote delivered", "quote 123 was delivered", model.ChainQuoteToDelivery},
		{"order shipped", "your order has shipped", model.ChainOrderFulfillment},
		{"support resolved", "the support issue is resolved", model.ChainSupportResolution},
		{"rma processed", "rma 5566 processed", model.ChainReturnProcessing},
		{"generic completion", "task completed", model.ChainCompletedWorkflow},
		{"quote wins over order", "quote and order approved", model.ChainQuoteToDelivery},
		{"no signature", "lunch on friday?", model.ChainOther},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Score("c", []model.Message{msg("1", "c", "hello", tt.body, 1)})
			assert.Equal(t, tt.want, got.ChainType)
		})
	}
}

func TestScore_Monotonic(t *testing.T) {
	t.Parallel()

	sequence := []model.Message{
		msg("1", "c", "Need replacement parts", "Do you stock these?", 1),
		msg("2", "c", "Re: Need replacement parts", "Checking stock.", 2),
		msg("3", "c", "Status update", "Still checking.", 3),
		msg("4", "c", "Re: Status update", "Parts shipped today.", 4),
		msg("5", "c", "Re: Re: Status update", "Thank you, received.", 5),
		msg("6", "c", "Fw: Status update", "Forwarding for records.", 6),
	}

	prev := -1
	for i := 1; i <= len(sequence); i++ {
		got := Score("c", sequence[:i])
		assert.GreaterOrEqual(t, got.CompletenessScore, prev, "after %d messages", i)
		assert.GreaterOrEqual(t, got.CompletenessScore, 0)
		assert.LessOrEqual(t, got.CompletenessScore, 100)
		assert.Equal(t, got.CompletenessScore >= model.CompleteThreshold, got.IsComplete)
		prev = got.CompletenessScore
	}
	assert.Equal(t, 100, prev)
}

func TestScore_LongChainBonusNeedsProgress(t *testing.T) {
	t.Parallel()

	var msgs []model.Message
	for i := 0; i < 5; i++ {
		msgs = append(msgs, msg("m", "c", "hello", "thanks", i))
	}
	got := Score("c", msgs)
	assert.Equal(t, lengthBonus, got.CompletenessScore)
	assert.NotContains(t, got.Signals, SignalLongChain)
}

func TestGroupByConversation(t *testing.T) {
	t.Parallel()

	in := []model.Message{
		msg("b2", "b", "second", "", 5),
		msg("a1", "a", "only", "", 1),
		msg("b1", "b", "first", "", 2),
		msg("solo", "", "no thread", "", 3),
	}

	groups := GroupByConversation(in)
	require.Len(t, groups, 3)
	require.Len(t, groups["b"], 2)
	assert.Equal(t, "b1", groups["b"][0].ID)
	assert.Equal(t, "b2", groups["b"][1].ID)
	assert.Len(t, groups["solo"], 1)
	assert.Equal(t, "b2", in[0].ID)
}
