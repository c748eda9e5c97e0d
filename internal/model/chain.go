package model

// CompleteThreshold is the completeness score at or above which a chain is
// treated as a finished start-to-finish workflow. It is deliberately not
// configurable.
const CompleteThreshold = 70

// ChainType labels the business workflow a conversation represents.
type ChainType string

const (
	ChainQuoteToDelivery   ChainType = "QUOTE_TO_DELIVERY"
	ChainOrderFulfillment  ChainType = "ORDER_FULFILLMENT"
	ChainSupportResolution ChainType = "SUPPORT_RESOLUTION"
	ChainReturnProcessing  ChainType = "RETURN_PROCESSING"
	ChainCompletedWorkflow ChainType = "COMPLETED_WORKFLOW"
	ChainOther             ChainType = "OTHER"
)

// ChainAnalysis is the completeness estimate for one conversation.
type ChainAnalysis struct {
	ConversationID    string    `json:"conversation_id"`
	MessageCount      int       `json:"message_count"`
	CompletenessScore int       `json:"completeness_score"`
	IsComplete        bool      `json:"is_complete"`
	ChainType         ChainType `json:"chain_type"`
	Signals           []string  `json:"signals,omitempty"`
}
