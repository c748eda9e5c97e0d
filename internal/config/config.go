package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/email-analyzer/internal/cost"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Model      ModelConfig      `yaml:"model" mapstructure:"model"`
	Phase2     PhaseConfig      `yaml:"phase2" mapstructure:"phase2"`
	Phase3     PhaseConfig      `yaml:"phase3" mapstructure:"phase3"`
	Triage     TriageConfig     `yaml:"triage" mapstructure:"triage"`
	Policy     PolicyConfig     `yaml:"policy" mapstructure:"policy"`
	Quality    QualityConfig    `yaml:"quality" mapstructure:"quality"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Circuit    CircuitConfig    `yaml:"circuit" mapstructure:"circuit"`
	Retry      RetryConfig      `yaml:"retry" mapstructure:"retry"`
	DLQ        DLQConfig        `yaml:"dlq" mapstructure:"dlq"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Kafka      KafkaConfig      `yaml:"kafka" mapstructure:"kafka"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Pricing    cost.Rates       `yaml:"pricing" mapstructure:"pricing"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	// StrictPersistence fails an analysis when the store rejects a write.
	StrictPersistence bool `yaml:"strict_persistence" mapstructure:"strict_persistence"`
}

// ModelConfig selects the generative model backend.
type ModelConfig struct {
	Provider    string `yaml:"provider" mapstructure:"provider"`
	Key         string `yaml:"key" mapstructure:"key"`
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	Phase2Model string `yaml:"phase2_model" mapstructure:"phase2_model"`
	Phase3Model string `yaml:"phase3_model" mapstructure:"phase3_model"`
}

// PhaseConfig holds per-phase model call settings.
type PhaseConfig struct {
	TimeoutSecs     int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxOutputTokens int64   `yaml:"max_output_tokens" mapstructure:"max_output_tokens"`
	Temperature     float64 `yaml:"temperature" mapstructure:"temperature"`
}

// TriageConfig configures the deterministic extraction pass.
type TriageConfig struct {
	KeyAccountDomains []string `yaml:"key_account_domains" mapstructure:"key_account_domains"`
	PatternsFile      string   `yaml:"patterns_file" mapstructure:"patterns_file"`
	MaxKeyPhrases     int      `yaml:"max_key_phrases" mapstructure:"max_key_phrases"`
}

// PolicyConfig holds the phase selection constants.
type PolicyConfig struct {
	HighValueThreshold float64 `yaml:"high_value_threshold" mapstructure:"high_value_threshold"`
	EnablePhase3       bool    `yaml:"enable_phase3" mapstructure:"enable_phase3"`
}

// QualityConfig holds the response quality gates.
type QualityConfig struct {
	QualityThreshold     float64 `yaml:"quality_threshold" mapstructure:"quality_threshold"`
	HighQualityThreshold float64 `yaml:"high_quality_threshold" mapstructure:"high_quality_threshold"`
	MinTextLength        int     `yaml:"min_text_length" mapstructure:"min_text_length"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	MaxConcurrentMessages int     `yaml:"max_concurrent_messages" mapstructure:"max_concurrent_messages"`
	RequestsPerSecond     float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst                 int     `yaml:"burst" mapstructure:"burst"`
}

// CircuitConfig configures the model endpoint circuit breaker.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// RetryConfig configures model call attempts. One attempt per phase is the
// default.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
}

// DLQConfig configures the dead letter queue.
type DLQConfig struct {
	MaxRetries int `yaml:"max_retries" mapstructure:"max_retries"`
}

// MonitoringConfig configures quality checks and alerting.
type MonitoringConfig struct {
	WebhookURL                 string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FallbackRateThreshold      float64 `yaml:"fallback_rate_threshold" mapstructure:"fallback_rate_threshold"`
	ExtractionFailureThreshold float64 `yaml:"extraction_failure_threshold" mapstructure:"extraction_failure_threshold"`
	CostThresholdUSD           float64 `yaml:"cost_threshold_usd" mapstructure:"cost_threshold_usd"`
	LookbackHours              int     `yaml:"lookback_hours" mapstructure:"lookback_hours"`
	CheckIntervalSecs          int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
}

// KafkaConfig configures the analysis and metrics publisher.
type KafkaConfig struct {
	Brokers      []string `yaml:"brokers" mapstructure:"brokers"`
	Topic        string   `yaml:"topic" mapstructure:"topic"`
	MetricsTopic string   `yaml:"metrics_topic" mapstructure:"metrics_topic"`
}

// Enabled reports whether a broker is configured.
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("EMAIL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "email-analyzer.db")
	v.SetDefault("model.provider", "anthropic")
	v.SetDefault("model.phase2_model", "claude-haiku-4-5-20251001")
	v.SetDefault("model.phase3_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("phase2.timeout_secs", 60)
	v.SetDefault("phase2.max_output_tokens", 1024)
	v.SetDefault("phase2.temperature", 0.2)
	v.SetDefault("phase3.timeout_secs", 180)
	v.SetDefault("phase3.max_output_tokens", 2048)
	v.SetDefault("phase3.temperature", 0.3)
	v.SetDefault("triage.key_account_domains", []string{})
	v.SetDefault("triage.max_key_phrases", 10)
	v.SetDefault("policy.high_value_threshold", 10000.0)
	v.SetDefault("policy.enable_phase3", true)
	v.SetDefault("quality.quality_threshold", 6.0)
	v.SetDefault("quality.high_quality_threshold", 8.0)
	v.SetDefault("quality.min_text_length", 20)
	v.SetDefault("batch.max_concurrent_messages", 4)
	v.SetDefault("batch.requests_per_second", 0)
	v.SetDefault("batch.burst", 1)
	v.SetDefault("circuit.failure_threshold", 5)
	v.SetDefault("circuit.reset_timeout_secs", 30)
	v.SetDefault("retry.max_attempts", 1)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("dlq.max_retries", 3)
	v.SetDefault("monitoring.fallback_rate_threshold", 0.3)
	v.SetDefault("monitoring.extraction_failure_threshold", 0.2)
	v.SetDefault("monitoring.cost_threshold_usd", 0)
	v.SetDefault("monitoring.lookback_hours", 24)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("kafka.topic", "email-analyses")
	v.SetDefault("kafka.metrics_topic", "email-analyzer-metrics")
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	if len(cfg.Pricing.Models) == 0 {
		cfg.Pricing = cost.DefaultRates()
	}

	return &cfg, nil
}

// Validate checks the configuration for the given command mode
// ("analyze", "watch", "serve", "dlq"). All problems are reported at once.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "sqlite", "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required")
		}
	case "memory":
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q is not one of sqlite, postgres, memory", c.Store.Driver))
	}

	switch c.Model.Provider {
	case "anthropic", "openai":
		if c.Model.Key == "" && c.Model.BaseURL == "" {
			errs = append(errs, "model.key is required")
		}
	case "ollama":
	default:
		errs = append(errs, fmt.Sprintf("model.provider %q is not one of anthropic, openai, ollama", c.Model.Provider))
	}
	if c.Model.Phase2Model == "" {
		errs = append(errs, "model.phase2_model is required")
	}
	if c.Policy.EnablePhase3 && c.Model.Phase3Model == "" {
		errs = append(errs, "model.phase3_model is required when policy.enable_phase3 is set")
	}

	if c.Phase2.TimeoutSecs <= 0 || c.Phase3.TimeoutSecs <= 0 {
		errs = append(errs, "phase2.timeout_secs and phase3.timeout_secs must be positive")
	}
	if c.Quality.QualityThreshold < 0 || c.Quality.QualityThreshold > 10 {
		errs = append(errs, fmt.Sprintf("quality.quality_threshold must be between 0 and 10, got %.2f", c.Quality.QualityThreshold))
	}
	if c.Quality.HighQualityThreshold < c.Quality.QualityThreshold {
		errs = append(errs, "quality.high_quality_threshold must not be below quality.quality_threshold")
	}
	if c.Policy.HighValueThreshold < 0 {
		errs = append(errs, "policy.high_value_threshold must not be negative")
	}
	if c.Batch.MaxConcurrentMessages <= 0 {
		errs = append(errs, "batch.max_concurrent_messages must be positive")
	}
	if c.Batch.RequestsPerSecond < 0 {
		errs = append(errs, "batch.requests_per_second must not be negative")
	}
	if r := c.Monitoring.FallbackRateThreshold; r < 0 || r > 1 {
		errs = append(errs, "monitoring.fallback_rate_threshold must be between 0 and 1")
	}

	switch mode {
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server.port must be between 1 and 65535, got %d", c.Server.Port))
		}
	case "dlq", "metrics":
		if c.Store.Driver == "memory" {
			errs = append(errs, mode+" commands need a persistent store driver")
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("config: invalid for %s: %s", mode, strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
