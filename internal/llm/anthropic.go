package llm

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/email-analyzer/internal/resilience"
	"github.com/sells-group/email-analyzer/pkg/anthropic"
)

// AnthropicGenerator generates through the Anthropic Messages API. The
// system prompt is sent as a cached block.
type AnthropicGenerator struct {
	client anthropic.Client
}

// NewAnthropicGenerator wraps client.
func NewAnthropicGenerator(client anthropic.Client) *AnthropicGenerator {
	return &AnthropicGenerator{client: client}
}

// Provider implements Generator.
func (g *AnthropicGenerator) Provider() string { return ProviderAnthropic }

// Generate implements Generator.
func (g *AnthropicGenerator) Generate(ctx context.Context, prompt string, opts Options) (*Response, error) {
	start := time.Now()
	temp := opts.Temperature
	resp, err := g.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       opts.Model,
		MaxTokens:   opts.MaxOutputTokens,
		System:      anthropic.BuildCachedSystemBlocks(opts.System, ""),
		Messages:    []anthropic.Message{{Role: "user", Content: prompt}},
		Temperature: &temp,
	})
	if err != nil {
		return nil, classifyStatus(err, anthropic.StatusCode(err))
	}
	return &Response{
		Text:  resp.Text(),
		Model: opts.Model,
		Usage: Usage{
			InputTokens:      resp.Usage.InputTokens,
			OutputTokens:     resp.Usage.OutputTokens,
			CacheWriteTokens: resp.Usage.CacheCreationInputTokens,
			CacheReadTokens:  resp.Usage.CacheReadInputTokens,
		},
		Elapsed: time.Since(start),
	}, nil
}

// classifyStatus marks overload and server errors as transient so they
// count toward the circuit breaker and the DLQ retry class.
func classifyStatus(err error, status int) error {
	if resilience.IsTransientHTTPStatus(status) {
		return resilience.NewTransientError(err, status)
	}
	return eris.Wrap(err, "llm: generate")
}
