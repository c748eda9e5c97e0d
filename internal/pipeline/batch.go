package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/email-analyzer/internal/chain"
	"github.com/sells-group/email-analyzer/internal/model"
)

// AnalyzeBatch analyzes msgs with at most Config.MaxConcurrent messages in
// flight. Each message sees the other messages of its conversation in the
// batch as siblings. Results are returned in input order and saved in one
// bulk write at the end.
//
// Like Analyze, a degraded message does not fail the batch; only
// cancellation or a strict persistence failure does.
func (p *Pipeline) AnalyzeBatch(ctx context.Context, msgs []model.Message) ([]*model.Analysis, error) {
	groups := chain.GroupByConversation(msgs)
	results := make([]*model.Analysis, len(msgs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.MaxConcurrent)

	for i, msg := range msgs {
		g.Go(func() error {
			a, _, err := p.run(gctx, msg, groups[msg.ChainKey()], runOptions{persist: false, enqueue: true})
			if err != nil {
				return err
			}
			results[i] = a
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, eris.Wrap(err, "pipeline: analyze batch")
	}

	if p.store != nil {
		if err := p.store.SaveAnalyses(ctx, results); err != nil {
			if p.cfg.StrictPersistence {
				return results, eris.Wrap(err, "pipeline: save batch")
			}
			zap.L().Warn("pipeline: batch persistence failed", zap.Int("analyses", len(results)), zap.Error(err))
		}
	}

	degraded := 0
	for _, a := range results {
		if a.Degraded {
			degraded++
		}
	}
	zap.L().Info("pipeline: batch complete",
		zap.Int("messages", len(msgs)),
		zap.Int("degraded", degraded),
		zap.Float64("cost_usd", p.tracker.Total()),
	)
	return results, nil
}
