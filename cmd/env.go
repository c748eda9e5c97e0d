package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/email-analyzer/internal/config"
	"github.com/sells-group/email-analyzer/internal/cost"
	"github.com/sells-group/email-analyzer/internal/llm"
	"github.com/sells-group/email-analyzer/internal/monitoring"
	"github.com/sells-group/email-analyzer/internal/pipeline"
	"github.com/sells-group/email-analyzer/internal/policy"
	"github.com/sells-group/email-analyzer/internal/quality"
	"github.com/sells-group/email-analyzer/internal/resilience"
	"github.com/sells-group/email-analyzer/internal/sink"
	"github.com/sells-group/email-analyzer/internal/store"
	"github.com/sells-group/email-analyzer/internal/triage"
	anthropicpkg "github.com/sells-group/email-analyzer/pkg/anthropic"
	"github.com/sells-group/email-analyzer/pkg/ollama"
	openaipkg "github.com/sells-group/email-analyzer/pkg/openai"
)

// appEnv holds everything the analyze/watch/serve/dlq commands share.
type appEnv struct {
	Store     store.Store
	Pipeline  *pipeline.Pipeline
	Guard     *llm.Guard
	Quality   *quality.Aggregator
	Publisher *sink.KafkaPublisher // nil when no broker is configured
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Publisher != nil {
		if err := e.Publisher.Close(); err != nil {
			zap.L().Warn("close kafka publisher", zap.Error(err))
		}
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// Collector builds a metrics collector over the environment's store,
// quality aggregator and circuit breakers.
func (e *appEnv) Collector() *monitoring.Collector {
	return monitoring.NewCollector(e.Store,
		monitoring.WithQuality(e.Quality),
		monitoring.WithCircuits(e.Guard.Breakers()),
	)
}

// initEnv validates configuration for mode, opens the store and builds the
// pipeline. Callers should defer env.Close().
func initEnv(ctx context.Context, c *config.Config, mode string) (*appEnv, error) {
	if err := c.Validate(mode); err != nil {
		return nil, err
	}

	gen, err := newGenerator(c)
	if err != nil {
		return nil, err
	}

	extractor, err := newExtractor(c.Triage)
	if err != nil {
		return nil, err
	}

	st, err := openStore(ctx, c.Store)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	env := &appEnv{
		Store:   st,
		Guard:   newGuard(gen, c),
		Quality: quality.NewAggregator(c.Quality.HighQualityThreshold),
	}

	opts := []pipeline.Option{
		pipeline.WithExtractor(extractor),
		pipeline.WithPolicy(policy.New(policy.Config{
			HighValueThreshold: c.Policy.HighValueThreshold,
			DisableInsight:     !c.Policy.EnablePhase3,
		})),
		pipeline.WithStore(st),
		pipeline.WithRecorder(env.Quality),
		pipeline.WithCost(cost.NewCalculator(c.Pricing), cost.NewTracker()),
	}

	if c.Kafka.Enabled() {
		env.Publisher = sink.NewKafkaPublisher(sink.NewKafkaWriter(c.Kafka.Brokers), c.Kafka.Topic, c.Kafka.MetricsTopic)
		opts = append(opts, pipeline.WithObserver(env.Publisher.Observer()))
		zap.L().Info("kafka publishing enabled",
			zap.Strings("brokers", c.Kafka.Brokers),
			zap.String("topic", c.Kafka.Topic),
		)
	}

	env.Pipeline = pipeline.New(pipelineConfig(c), env.Guard, opts...)

	zap.L().Debug("environment ready",
		zap.String("mode", mode),
		zap.String("store", c.Store.Driver),
		zap.String("provider", c.Model.Provider),
	)
	return env, nil
}

// pipelineConfig maps application config onto the pipeline's settings.
func pipelineConfig(c *config.Config) pipeline.Config {
	pc := pipeline.DefaultConfig()
	pc.Enhance = phaseConfig(pc.Enhance, c.Model.Phase2Model, c.Phase2)
	pc.Insight = phaseConfig(pc.Insight, c.Model.Phase3Model, c.Phase3)
	if c.Quality.QualityThreshold > 0 {
		pc.QualityThreshold = c.Quality.QualityThreshold
	}
	if c.Quality.MinTextLength > 0 {
		pc.MinTextLength = c.Quality.MinTextLength
	}
	if c.Batch.MaxConcurrentMessages > 0 {
		pc.MaxConcurrent = c.Batch.MaxConcurrentMessages
	}
	if c.DLQ.MaxRetries > 0 {
		pc.DLQMaxRetries = c.DLQ.MaxRetries
	}
	pc.StrictPersistence = c.Store.StrictPersistence
	return pc
}

func phaseConfig(base pipeline.PhaseConfig, modelName string, pc config.PhaseConfig) pipeline.PhaseConfig {
	if modelName != "" {
		base.Model = modelName
	}
	if pc.TimeoutSecs > 0 {
		base.Timeout = time.Duration(pc.TimeoutSecs) * time.Second
	}
	if pc.MaxOutputTokens > 0 {
		base.MaxOutputTokens = pc.MaxOutputTokens
	}
	base.Temperature = pc.Temperature
	return base
}

// newGenerator builds the provider client named by model.provider.
func newGenerator(c *config.Config) (llm.Generator, error) {
	// The HTTP client bound sits above the longest phase so the per-attempt
	// timeout in the guard always fires first.
	timeout := time.Duration(max(c.Phase2.TimeoutSecs, c.Phase3.TimeoutSecs)+30) * time.Second

	switch c.Model.Provider {
	case llm.ProviderAnthropic:
		opts := []anthropicpkg.Option{anthropicpkg.WithRequestTimeout(timeout)}
		if c.Model.BaseURL != "" {
			opts = append(opts, anthropicpkg.WithBaseURL(c.Model.BaseURL))
		}
		return llm.NewAnthropicGenerator(anthropicpkg.NewClient(c.Model.Key, opts...)), nil
	case llm.ProviderOpenAI:
		return llm.NewOpenAIGenerator(openaipkg.NewClient(c.Model.Key, c.Model.BaseURL, timeout)), nil
	case llm.ProviderOllama:
		opts := []ollama.Option{ollama.WithModel(c.Model.Phase2Model)}
		if c.Model.BaseURL != "" {
			opts = append(opts, ollama.WithBaseURL(c.Model.BaseURL))
		}
		return llm.NewOllamaGenerator(ollama.NewClient(opts...)), nil
	default:
		return nil, eris.Errorf("unsupported model provider: %s", c.Model.Provider)
	}
}

// newGuard wraps gen with the rate limit, breaker and retry settings.
func newGuard(gen llm.Generator, c *config.Config) *llm.Guard {
	return llm.NewGuard(gen,
		llm.WithBreakers(resilience.NewBreakers(resilience.FromCircuitConfig(c.Circuit.FailureThreshold, c.Circuit.ResetTimeoutSecs))),
		llm.WithRateLimit(c.Batch.RequestsPerSecond, c.Batch.Burst),
		llm.WithRetry(resilience.FromRetryConfig(c.Retry.MaxAttempts, c.Retry.InitialBackoffMs)),
	)
}

// newExtractor builds the triage extractor with configured key accounts
// and any extra patterns.
func newExtractor(tc config.TriageConfig) (*triage.Extractor, error) {
	opts := []triage.Option{triage.WithKeyAccounts(tc.KeyAccountDomains)}
	if tc.MaxKeyPhrases > 0 {
		opts = append(opts, triage.WithMaxKeyPhrases(tc.MaxKeyPhrases))
	}
	if tc.PatternsFile != "" {
		extra, err := triage.LoadPatterns(tc.PatternsFile)
		if err != nil {
			return nil, eris.Wrap(err, "load triage patterns")
		}
		opts = append(opts, triage.WithPatterns(triage.DefaultPatterns().With(extra)))
	}
	return triage.New(opts...), nil
}

// openStore opens the configured store driver.
func openStore(ctx context.Context, sc config.StoreConfig) (store.Store, error) {
	switch sc.Driver {
	case "sqlite":
		dsn := sc.DatabaseURL
		if dsn == "" {
			dsn = "email-analyzer.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, sc.DatabaseURL, nil)
	case "memory":
		return store.NewMemory(), nil
	default:
		return nil, eris.Errorf("unsupported store driver: %s", sc.Driver)
	}
}
