package resilience

import (
	"time"

	"github.com/sells-group/email-analyzer/internal/model"
)

// DLQ error types.
const (
	ErrorTypeTransient = "transient"
	ErrorTypePermanent = "permanent"
)

// DLQEntry is a message whose model phase degraded because the endpoint
// failed. The analysis was still saved with a hybrid result; the entry lets
// an operator re-run the message once the endpoint is healthy.
type DLQEntry struct {
	ID           string        `json:"id"`
	Message      model.Message `json:"message"`
	Error        string        `json:"error"`
	ErrorType    string        `json:"error_type"`
	FailedPhase  model.Phase   `json:"failed_phase"`
	RetryCount   int           `json:"retry_count"`
	MaxRetries   int           `json:"max_retries"`
	NextRetryAt  time.Time     `json:"next_retry_at"`
	CreatedAt    time.Time     `json:"created_at"`
	LastFailedAt time.Time     `json:"last_failed_at"`
}

// DLQFilter selects entries from the dead letter queue.
type DLQFilter struct {
	ErrorType string `json:"error_type,omitempty"`
	Limit     int    `json:"limit,omitempty"`
	// DueBefore, when set, keeps only entries whose NextRetryAt has passed.
	DueBefore time.Time `json:"due_before,omitempty"`
}

// CanRetry reports whether the entry still has retries left.
func (e *DLQEntry) CanRetry() bool {
	return e.RetryCount < e.MaxRetries
}

// ClassifyError returns ErrorTypeTransient or ErrorTypePermanent.
func ClassifyError(err error) string {
	if IsTransient(err) {
		return ErrorTypeTransient
	}
	return ErrorTypePermanent
}

// NextRetry returns the earliest time an entry with retryCount prior
// attempts should be retried: one minute doubled per attempt, capped at
// one hour.
func NextRetry(now time.Time, retryCount int) time.Time {
	delay := time.Minute
	for i := 0; i < retryCount && delay < time.Hour; i++ {
		delay *= 2
	}
	if delay > time.Hour {
		delay = time.Hour
	}
	return now.Add(delay)
}
