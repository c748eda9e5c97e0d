package llm

import (
	"context"
	"time"

	"github.com/sells-group/email-analyzer/pkg/openai"
)

// OpenAIGenerator generates through the Responses API, hosted or any
// compatible server.
type OpenAIGenerator struct {
	client openai.Client
}

// NewOpenAIGenerator wraps client.
func NewOpenAIGenerator(client openai.Client) *OpenAIGenerator {
	return &OpenAIGenerator{client: client}
}

// Provider implements Generator.
func (g *OpenAIGenerator) Provider() string { return ProviderOpenAI }

// Generate implements Generator.
func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string, opts Options) (*Response, error) {
	start := time.Now()
	temp := opts.Temperature
	resp, err := g.client.Generate(ctx, openai.Request{
		Model:           opts.Model,
		Instructions:    opts.System,
		Input:           prompt,
		MaxOutputTokens: opts.MaxOutputTokens,
		Temperature:     &temp,
		Schema:          opts.Schema,
		SchemaName:      opts.SchemaName,
	})
	if err != nil {
		return nil, classifyStatus(err, openai.StatusCode(err))
	}
	return &Response{
		Text:  resp.Text,
		Model: opts.Model,
		Usage: Usage{
			InputTokens:     resp.InputTokens - resp.CachedTokens,
			OutputTokens:    resp.OutputTokens,
			CacheReadTokens: resp.CachedTokens,
		},
		Elapsed: time.Since(start),
	}, nil
}
