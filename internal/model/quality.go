package model

import "time"

// QualityRecord describes the outcome of a single model call.
type QualityRecord struct {
	ID               string        `json:"id"`
	MessageID        string        `json:"message_id"`
	Phase            Phase         `json:"phase"`
	Model            string        `json:"model"`
	ResponseLength   int           `json:"response_length"`
	Score            float64       `json:"score"`
	Provenance       Provenance    `json:"provenance"`
	UsedFallback     bool          `json:"used_fallback"`
	ExtractionFailed bool          `json:"extraction_failed"`
	TransportError   string        `json:"transport_error,omitempty"`
	Elapsed          time.Duration `json:"elapsed"`
	CreatedAt        time.Time     `json:"created_at"`
}
