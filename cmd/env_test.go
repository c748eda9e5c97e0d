package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/email-analyzer/internal/config"
	"github.com/sells-group/email-analyzer/internal/cost"
	"github.com/sells-group/email-analyzer/internal/llm"
	"github.com/sells-group/email-analyzer/internal/store"
)

func testConfig() *config.Config {
	c := &config.Config{}
	c.Store.Driver = "memory"
	c.Model.Provider = "ollama"
	c.Model.Phase2Model = "qwen3-8b"
	c.Model.Phase3Model = "qwen3-32b"
	c.Phase2 = config.PhaseConfig{TimeoutSecs: 5, MaxOutputTokens: 512, Temperature: 0.1}
	c.Phase3 = config.PhaseConfig{TimeoutSecs: 10, MaxOutputTokens: 1024, Temperature: 0.3}
	c.Policy.HighValueThreshold = 10000
	c.Policy.EnablePhase3 = true
	c.Quality.QualityThreshold = 6
	c.Quality.HighQualityThreshold = 8
	c.Quality.MinTextLength = 20
	c.Batch.MaxConcurrentMessages = 2
	c.Circuit.FailureThreshold = 5
	c.Circuit.ResetTimeoutSecs = 30
	c.Retry.MaxAttempts = 1
	c.DLQ.MaxRetries = 3
	c.Monitoring.FallbackRateThreshold = 0.3
	c.Monitoring.LookbackHours = 24
	c.Server.Port = 8080
	c.Pricing = cost.DefaultRates()
	return c
}

func TestPipelineConfig(t *testing.T) {
	c := testConfig()
	c.Store.StrictPersistence = true

	pc := pipelineConfig(c)
	assert.Equal(t, "qwen3-8b", pc.Enhance.Model)
	assert.Equal(t, 5*time.Second, pc.Enhance.Timeout)
	assert.Equal(t, int64(512), pc.Enhance.MaxOutputTokens)
	assert.InDelta(t, 0.1, pc.Enhance.Temperature, 0.001)
	assert.Equal(t, "qwen3-32b", pc.Insight.Model)
	assert.Equal(t, 10*time.Second, pc.Insight.Timeout)
	assert.InDelta(t, 6.0, pc.QualityThreshold, 0.001)
	assert.Equal(t, 20, pc.MinTextLength)
	assert.Equal(t, 2, pc.MaxConcurrent)
	assert.Equal(t, 3, pc.DLQMaxRetries)
	assert.True(t, pc.StrictPersistence)
}

func TestPipelineConfig_ZeroValuesKeepDefaults(t *testing.T) {
	pc := pipelineConfig(&config.Config{})
	assert.NotEmpty(t, pc.Enhance.Model)
	assert.Positive(t, pc.Enhance.Timeout)
	assert.Positive(t, pc.MaxConcurrent)
}

func TestNewGenerator(t *testing.T) {
	c := testConfig()

	tests := []struct {
		provider string
		want     string
	}{
		{"anthropic", llm.ProviderAnthropic},
		{"openai", llm.ProviderOpenAI},
		{"ollama", llm.ProviderOllama},
	}
	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			c.Model.Provider = tt.provider
			c.Model.Key = "test-key"
			gen, err := newGenerator(c)
			require.NoError(t, err)
			assert.Equal(t, tt.want, gen.Provider())
		})
	}

	c.Model.Provider = "bard"
	_, err := newGenerator(c)
	assert.Error(t, err)
}

func TestNewExtractor_Patterns(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "patterns.yaml")
	require.NoError(t, os.WriteFile(path, []byte("patterns:\n  - kind: contract_ids\n    regex: ['(?i)\\bcontract\\s*#?\\s*([A-Z]{2}-\\d{4,8})']\n"), 0o644))

	ex, err := newExtractor(config.TriageConfig{PatternsFile: path, MaxKeyPhrases: 3})
	require.NoError(t, err)
	assert.NotNil(t, ex)

	_, err = newExtractor(config.TriageConfig{PatternsFile: filepath.Join(dir, "missing.yaml")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load triage patterns")
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	st, err := openStore(ctx, config.StoreConfig{Driver: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &store.MemoryStore{}, st)

	st, err = openStore(ctx, config.StoreConfig{Driver: "sqlite", DatabaseURL: filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err)
	require.NoError(t, st.Migrate(ctx))
	require.NoError(t, st.Close())

	_, err = openStore(ctx, config.StoreConfig{Driver: "mongo"})
	assert.Error(t, err)
}

func TestInitEnv(t *testing.T) {
	env, err := initEnv(context.Background(), testConfig(), "analyze")
	require.NoError(t, err)
	defer env.Close()

	assert.NotNil(t, env.Pipeline)
	assert.NotNil(t, env.Guard)
	assert.Nil(t, env.Publisher, "kafka is off without brokers")
	assert.NotNil(t, env.Collector())
}

func TestInitEnv_KafkaPublisher(t *testing.T) {
	c := testConfig()
	c.Kafka.Brokers = []string{"localhost:9092"}
	c.Kafka.Topic = "email-analyses"

	env, err := initEnv(context.Background(), c, "analyze")
	require.NoError(t, err)
	defer env.Close()
	assert.NotNil(t, env.Publisher)
	assert.NotNil(t, snapshotPublisher(env))
}

func TestInitEnv_InvalidConfig(t *testing.T) {
	c := testConfig()
	c.Batch.MaxConcurrentMessages = 0

	_, err := initEnv(context.Background(), c, "analyze")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch.max_concurrent_messages")

	_, err = initEnv(context.Background(), testConfig(), "dlq")
	require.Error(t, err, "dlq needs a persistent store")
}
