package pipeline

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/email-analyzer/internal/llm"
	"github.com/sells-group/email-analyzer/internal/model"
	"github.com/sells-group/email-analyzer/internal/resilience"
)

// PhaseConfig holds the model settings of one model-backed phase.
type PhaseConfig struct {
	Model           string
	Timeout         time.Duration
	MaxOutputTokens int64
	Temperature     float64
}

// DefaultEnhanceConfig favors speed: short timeout, small output budget.
func DefaultEnhanceConfig() PhaseConfig {
	return PhaseConfig{
		Model:           "claude-haiku-4-5-20251001",
		Timeout:         60 * time.Second,
		MaxOutputTokens: 1024,
		Temperature:     0.2,
	}
}

// DefaultInsightConfig allows a longer, larger answer.
func DefaultInsightConfig() PhaseConfig {
	return PhaseConfig{
		Model:           "claude-sonnet-4-5-20250929",
		Timeout:         180 * time.Second,
		MaxOutputTokens: 2048,
		Temperature:     0.3,
	}
}

// Call describes one model call made by a phase: the raw response if any,
// the transport error if the model never answered, and how the resilience
// layer judged the text.
type Call struct {
	Phase      model.Phase
	Model      string
	Response   *llm.Response
	Err        error
	Evaluation resilience.Evaluation
	Elapsed    time.Duration
}

// Degraded reports whether the phase result is a hybrid fallback.
func (c Call) Degraded() bool {
	return !c.Evaluation.Accepted
}

// Record converts the call into a quality record.
func (c Call) Record(messageID string, now time.Time) model.QualityRecord {
	rec := model.QualityRecord{
		MessageID:        messageID,
		Phase:            c.Phase,
		Model:            c.Model,
		Score:            c.Evaluation.Score,
		Provenance:       c.Evaluation.Provenance(),
		UsedFallback:     c.Degraded(),
		ExtractionFailed: c.Evaluation.ExtractionFailed,
		Elapsed:          c.Elapsed,
		CreatedAt:        now,
	}
	if c.Response != nil {
		rec.ResponseLength = len(c.Response.Text)
		if c.Response.Model != "" {
			rec.Model = c.Response.Model
		}
	}
	if c.Err != nil {
		rec.TransportError = c.Err.Error()
	}
	return rec
}

// invoke runs one model call and evaluates the answer. It never fails:
// a transport error or an empty answer becomes an Evaluation that is not
// accepted.
func invoke(ctx context.Context, gen llm.Generator, layer *resilience.Layer, phase model.Phase, cfg PhaseConfig,
	system, prompt string, schema outputSchema, spec resilience.QualitySpec) Call {
	start := time.Now()
	resp, err := gen.Generate(ctx, prompt, llm.Options{
		Model:           cfg.Model,
		System:          system,
		Temperature:     cfg.Temperature,
		MaxOutputTokens: cfg.MaxOutputTokens,
		Timeout:         cfg.Timeout,
		Schema:          schema.Map,
		SchemaName:      schema.Name,
		Phase:           phase,
	})
	call := Call{Phase: phase, Model: cfg.Model, Response: resp, Elapsed: time.Since(start)}

	switch {
	case errors.Is(err, llm.ErrEmptyResponse):
		call.Evaluation = layer.Evaluate("", spec)
	case err != nil:
		call.Err = err
		call.Evaluation = resilience.TransportFailure(err)
		zap.L().Warn("pipeline: model call failed",
			zap.String("phase", phase.String()),
			zap.String("model", cfg.Model),
			zap.String("failure", string(resilience.Classify(err))),
			zap.Int64("duration_ms", call.Elapsed.Milliseconds()),
			zap.Error(err),
		)
	default:
		call.Evaluation = layer.Evaluate(resp.Text, spec)
	}
	return call
}
