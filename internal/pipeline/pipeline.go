// Package pipeline runs the adaptive three-phase analysis of business email:
// deterministic triage, contextual enhancement and strategic insight, with
// the later phases selected per message by the phase policy.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/email-analyzer/internal/chain"
	"github.com/sells-group/email-analyzer/internal/cost"
	"github.com/sells-group/email-analyzer/internal/llm"
	"github.com/sells-group/email-analyzer/internal/model"
	"github.com/sells-group/email-analyzer/internal/policy"
	"github.com/sells-group/email-analyzer/internal/quality"
	"github.com/sells-group/email-analyzer/internal/resilience"
	"github.com/sells-group/email-analyzer/internal/store"
	"github.com/sells-group/email-analyzer/internal/triage"
)

// Config holds the pipeline settings.
type Config struct {
	Enhance          PhaseConfig
	Insight          PhaseConfig
	QualityThreshold float64
	MinTextLength    int
	// MaxConcurrent bounds in-flight messages in AnalyzeBatch.
	MaxConcurrent int
	// DLQMaxRetries is the retry budget given to new dead letter entries.
	DLQMaxRetries int
	// StrictPersistence turns store write failures into Analyze errors.
	// Otherwise they are logged and the analysis is still returned.
	StrictPersistence bool
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		Enhance:          DefaultEnhanceConfig(),
		Insight:          DefaultInsightConfig(),
		QualityThreshold: resilience.DefaultQualityThreshold,
		MinTextLength:    resilience.DefaultMinTextLength,
		MaxConcurrent:    4,
		DLQMaxRetries:    3,
	}
}

// Observer is called with every completed analysis.
type Observer func(a *model.Analysis)

// Pipeline orchestrates the analysis phases for single messages and
// batches. It is safe for concurrent use; the only shared mutable state is
// the quality recorder and the cost tracker.
type Pipeline struct {
	cfg       Config
	triage    *triage.Extractor
	policy    *policy.Policy
	enhancer  *Enhancer
	insight   *InsightGenerator
	store     store.Store
	recorder  quality.Recorder
	costCalc  *cost.Calculator
	tracker   *cost.Tracker
	observers []Observer
	now       func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithExtractor replaces the default triage extractor.
func WithExtractor(e *triage.Extractor) Option {
	return func(p *Pipeline) { p.triage = e }
}

// WithPolicy replaces the default phase policy.
func WithPolicy(pol *policy.Policy) Option {
	return func(p *Pipeline) { p.policy = pol }
}

// WithStore persists analyses, quality records and dead letters.
func WithStore(st store.Store) Option {
	return func(p *Pipeline) { p.store = st }
}

// WithRecorder sets the quality recorder every model call reports to.
func WithRecorder(r quality.Recorder) Option {
	return func(p *Pipeline) { p.recorder = r }
}

// WithCost prices model usage and accumulates spend.
func WithCost(calc *cost.Calculator, tracker *cost.Tracker) Option {
	return func(p *Pipeline) {
		if tracker == nil {
			tracker = cost.NewTracker()
		}
		p.costCalc = calc
		p.tracker = tracker
	}
}

// WithObserver registers a callback for completed analyses.
func WithObserver(o Observer) Option {
	return func(p *Pipeline) { p.observers = append(p.observers, o) }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// New creates a Pipeline that calls gen for the model-backed phases.
func New(cfg Config, gen llm.Generator, opts ...Option) *Pipeline {
	layer := resilience.NewLayer(cfg.QualityThreshold)
	p := &Pipeline{
		cfg:      cfg,
		triage:   triage.New(),
		policy:   policy.New(policy.Config{}),
		enhancer: NewEnhancer(gen, layer, cfg.Enhance, cfg.MinTextLength),
		insight:  NewInsightGenerator(gen, layer, cfg.Insight, cfg.MinTextLength),
		recorder: quality.NewAggregator(0),
		costCalc: cost.NewCalculator(cost.DefaultRates()),
		tracker:  cost.NewTracker(),
		now:      time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	if p.cfg.MaxConcurrent < 1 {
		p.cfg.MaxConcurrent = 1
	}
	return p
}

// Analyze runs the selected phases for msg. siblings are the other messages
// of msg's conversation, in any order; msg itself may be included.
//
// A failing model phase never fails Analyze: the phase degrades to a hybrid
// result and the message is recorded in the dead letter queue. Analyze
// returns an error only when ctx is cancelled or, with StrictPersistence,
// when the store rejects a write.
func (p *Pipeline) Analyze(ctx context.Context, msg model.Message, siblings []model.Message) (*model.Analysis, error) {
	a, _, err := p.run(ctx, msg, siblings, runOptions{persist: true, enqueue: true})
	return a, err
}

type runOptions struct {
	persist bool
	enqueue bool
}

// run performs one analysis. transportErr is the first model transport
// failure, if any.
func (p *Pipeline) run(ctx context.Context, msg model.Message, siblings []model.Message, opts runOptions) (a *model.Analysis, transportErr error, err error) {
	log := zap.L().With(zap.String("message_id", msg.ID))
	start := p.now()

	a = &model.Analysis{
		ID:        uuid.New().String(),
		MessageID: msg.ID,
		Message:   msg,
		TimingsMs: make(map[string]int64),
		CreatedAt: start.UTC(),
	}

	trackPhase := func(name string, fn func()) {
		phaseStart := time.Now()
		fn()
		duration := time.Since(phaseStart).Milliseconds()
		a.TimingsMs[name] = duration
		log.Debug("pipeline: phase complete",
			zap.String("phase", name),
			zap.Int64("duration_ms", duration),
		)
	}

	// ===== Phase 1: deterministic triage =====
	trackPhase(model.PhaseTriage.String(), func() {
		a.Phase1 = p.triage.Extract(msg)
	})

	// ===== Chain completeness (advisory input to the policy) =====
	if conv := conversation(msg, siblings); len(conv) > 1 {
		trackPhase("chain", func() {
			c := chain.Score(msg.ChainKey(), conv)
			a.Chain = &c
		})
	}

	a.Decision = p.policy.Decide(a.Phase1, a.Chain, msg.Importance)
	log.Debug("pipeline: phases selected",
		zap.String("decision", a.Decision.String()),
		zap.String("reason", a.Decision.Reason),
	)

	var calls []Call

	// ===== Phase 2: contextual enhancement =====
	if a.Decision.Includes(model.PhaseEnhance) {
		var call Call
		trackPhase(model.PhaseEnhance.String(), func() {
			var p2 model.Phase2Result
			p2, call = p.enhancer.Enhance(ctx, msg, a.Phase1)
			a.Phase2 = &p2
		})
		calls = append(calls, call)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, nil, eris.Wrapf(ctxErr, "pipeline: analyze %s", msg.ID)
		}
	}

	// ===== Phase 3: strategic insight =====
	if a.Decision.Includes(model.PhaseInsight) && a.Phase2 != nil {
		var call Call
		trackPhase(model.PhaseInsight.String(), func() {
			var p3 model.Phase3Result
			p3, call = p.insight.Generate(ctx, msg, *a.Phase2, a.Chain, siblings)
			a.Phase3 = &p3
		})
		calls = append(calls, call)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, nil, eris.Wrapf(ctxErr, "pipeline: analyze %s", msg.ID)
		}
	}

	// ===== Accounting =====
	now := p.now().UTC()
	records := make([]model.QualityRecord, 0, len(calls))
	var failedPhase model.Phase
	for _, call := range calls {
		rec := call.Record(msg.ID, now)
		rec.ID = uuid.New().String()
		p.recorder.Record(rec)
		records = append(records, rec)

		a.CostUSD += p.price(call)
		if call.Degraded() {
			a.Degraded = true
			log.Warn("pipeline: phase degraded to hybrid result",
				zap.String("phase", call.Phase.String()),
				zap.String("provenance", string(rec.Provenance)),
				zap.Float64("quality_score", rec.Score),
				zap.String("reason", call.Evaluation.Reason),
			)
		}
		if call.Err != nil && transportErr == nil {
			transportErr = call.Err
			failedPhase = call.Phase
		}
	}
	a.CompletedAt = p.now().UTC()

	// ===== Persistence =====
	if p.store != nil {
		if err := p.store.SaveQualityRecords(ctx, records); err != nil {
			if perr := p.persistFailure(log, "save quality records", err); perr != nil {
				return a, transportErr, perr
			}
		}
		if opts.enqueue && transportErr != nil {
			if err := p.store.EnqueueDLQ(ctx, p.deadLetter(msg, transportErr, failedPhase)); err != nil {
				if perr := p.persistFailure(log, "enqueue dlq", err); perr != nil {
					return a, transportErr, perr
				}
			}
		}
		if opts.persist {
			if err := p.store.SaveAnalysis(ctx, a); err != nil {
				if perr := p.persistFailure(log, "save analysis", err); perr != nil {
					return a, transportErr, perr
				}
			}
		}
	}

	log.Info("pipeline: analysis complete",
		zap.String("decision", a.Decision.String()),
		zap.String("final_phase", a.FinalPhase().String()),
		zap.String("priority", string(a.Priority())),
		zap.Bool("degraded", a.Degraded),
		zap.Float64("cost_usd", a.CostUSD),
		zap.Int64("duration_ms", a.CompletedAt.Sub(start).Milliseconds()),
	)
	for _, o := range p.observers {
		o(a)
	}
	return a, transportErr, nil
}

func (p *Pipeline) price(call Call) float64 {
	if call.Response == nil || p.costCalc == nil {
		return 0
	}
	m := call.Response.Model
	if m == "" {
		m = call.Model
	}
	u := call.Response.Usage
	usd := p.costCalc.Model(m, u.InputTokens, u.OutputTokens, u.CacheWriteTokens, u.CacheReadTokens)
	if p.tracker != nil {
		p.tracker.Add(m, usd)
	}
	return usd
}

func (p *Pipeline) deadLetter(msg model.Message, err error, phase model.Phase) resilience.DLQEntry {
	now := p.now().UTC()
	return resilience.DLQEntry{
		Message:      msg,
		Error:        err.Error(),
		ErrorType:    resilience.ClassifyError(err),
		FailedPhase:  phase,
		MaxRetries:   p.cfg.DLQMaxRetries,
		NextRetryAt:  resilience.NextRetry(now, 0),
		CreatedAt:    now,
		LastFailedAt: now,
	}
}

func (p *Pipeline) persistFailure(log *zap.Logger, op string, err error) error {
	if p.cfg.StrictPersistence {
		return eris.Wrapf(err, "pipeline: %s", op)
	}
	log.Warn("pipeline: persistence failed", zap.String("op", op), zap.Error(err))
	return nil
}

// CostTracker returns the spend tracker.
func (p *Pipeline) CostTracker() *cost.Tracker {
	return p.tracker
}

// conversation returns msg and its siblings without duplicates.
func conversation(msg model.Message, siblings []model.Message) []model.Message {
	conv := make([]model.Message, 0, len(siblings)+1)
	conv = append(conv, msg)
	for _, s := range siblings {
		if s.ID != msg.ID {
			conv = append(conv, s)
		}
	}
	return conv
}
