package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/email-analyzer/internal/resilience"
)

// RetrySummary counts the outcome of one dead letter retry pass.
type RetrySummary struct {
	Attempted int `json:"attempted"`
	Recovered int `json:"recovered"`
	Failed    int `json:"failed"`
}

// RetryDLQ re-analyzes dead letter entries that are due. An entry whose
// model phases now succeed is removed; one that fails again is pushed back
// with a longer delay until its retries run out.
func (p *Pipeline) RetryDLQ(ctx context.Context, filter resilience.DLQFilter) (RetrySummary, error) {
	var sum RetrySummary
	if p.store == nil {
		return sum, eris.New("pipeline: retry dlq: no store configured")
	}
	if filter.DueBefore.IsZero() {
		filter.DueBefore = p.now().UTC()
	}

	entries, err := p.store.ListDLQ(ctx, filter)
	if err != nil {
		return sum, eris.Wrap(err, "pipeline: retry dlq")
	}

	for _, entry := range entries {
		log := zap.L().With(zap.String("dlq_id", entry.ID), zap.String("message_id", entry.Message.ID))
		sum.Attempted++

		_, transportErr, err := p.run(ctx, entry.Message, nil, runOptions{persist: true, enqueue: false})
		if err != nil {
			return sum, eris.Wrapf(err, "pipeline: retry dlq %s", entry.ID)
		}

		if transportErr == nil {
			if err := p.store.RemoveDLQ(ctx, entry.ID); err != nil {
				return sum, eris.Wrapf(err, "pipeline: remove dlq %s", entry.ID)
			}
			sum.Recovered++
			log.Info("pipeline: dlq entry recovered", zap.Int("retry_count", entry.RetryCount))
			continue
		}

		sum.Failed++
		next := resilience.NextRetry(p.now().UTC(), entry.RetryCount+1)
		if err := p.store.IncrementDLQRetry(ctx, entry.ID, next, transportErr.Error()); err != nil {
			return sum, eris.Wrapf(err, "pipeline: increment dlq %s", entry.ID)
		}
		log.Warn("pipeline: dlq retry failed",
			zap.Int("retry_count", entry.RetryCount+1),
			zap.Int("max_retries", entry.MaxRetries),
			zap.Time("next_retry_at", next),
			zap.Error(transportErr),
		)
	}
	return sum, nil
}
