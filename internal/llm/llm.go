// Package llm is the generative-model boundary of the analyzer: a prompt
// string in, text out, behind one interface regardless of provider.
package llm

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/email-analyzer/internal/model"
)

// Providers.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderOllama    = "ollama"
)

// ErrEmptyResponse is returned when the model answered with no text.
var ErrEmptyResponse = eris.New("llm: empty response")

// Options are the per-call generation settings.
type Options struct {
	Model           string
	System          string
	Temperature     float64
	MaxOutputTokens int64
	// Timeout bounds a single attempt. Zero means no per-call bound beyond
	// the caller's context.
	Timeout time.Duration

	// Schema optionally constrains output to JSON matching it. Providers
	// without structured output support ignore it.
	Schema     map[string]any
	SchemaName string

	// Phase tags retry logs with the analysis pass making the call.
	Phase model.Phase
}

// Usage is the token accounting for one call.
type Usage struct {
	InputTokens      int64 `json:"input_tokens"`
	OutputTokens     int64 `json:"output_tokens"`
	CacheWriteTokens int64 `json:"cache_write_tokens"`
	CacheReadTokens  int64 `json:"cache_read_tokens"`
}

// Response is the model's text answer.
type Response struct {
	Text    string
	Model   string
	Usage   Usage
	Elapsed time.Duration
}

// Generator produces text for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts Options) (*Response, error)
	// Provider names the backend, used to key circuit breakers.
	Provider() string
}
