package model

import (
	"strings"
	"time"
)

// Importance is the sender-assigned importance flag of a message.
type Importance string

const (
	ImportanceLow    Importance = "low"
	ImportanceNormal Importance = "normal"
	ImportanceHigh   Importance = "high"
)

// Message is a single business email as handed over by the message source.
// The analysis core never mutates a Message.
type Message struct {
	ID             string     `json:"id" yaml:"id"`
	Subject        string     `json:"subject" yaml:"subject"`
	Body           string     `json:"body" yaml:"body"`
	Sender         string     `json:"sender" yaml:"sender"`
	ReceivedAt     time.Time  `json:"received_at" yaml:"received_at"`
	ConversationID string     `json:"conversation_id,omitempty" yaml:"conversation_id,omitempty"`
	Importance     Importance `json:"importance,omitempty" yaml:"importance,omitempty"`
}

// HighImportance reports whether the message carries the high importance flag.
func (m Message) HighImportance() bool {
	return strings.EqualFold(string(m.Importance), string(ImportanceHigh))
}

// ChainKey returns the key used to group the message into a conversation.
// Messages without a conversation identifier form a chain of their own.
func (m Message) ChainKey() string {
	if m.ConversationID != "" {
		return m.ConversationID
	}
	return m.ID
}
