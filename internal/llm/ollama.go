package llm

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sells-group/email-analyzer/pkg/ollama"
)

// OllamaGenerator generates through a local /api/generate server.
type OllamaGenerator struct {
	client ollama.Client
}

// NewOllamaGenerator wraps client.
func NewOllamaGenerator(client ollama.Client) *OllamaGenerator {
	return &OllamaGenerator{client: client}
}

// Provider implements Generator.
func (g *OllamaGenerator) Provider() string { return ProviderOllama }

// Generate implements Generator. A schema is passed as the server's
// structured output format; without one, plain JSON mode is requested.
func (g *OllamaGenerator) Generate(ctx context.Context, prompt string, opts Options) (*Response, error) {
	start := time.Now()
	format := ollama.JSONFormat
	if opts.Schema != nil {
		if raw, err := json.Marshal(opts.Schema); err == nil {
			format = raw
		}
	}
	temp := opts.Temperature
	resp, err := g.client.Generate(ctx, ollama.GenerateRequest{
		Model:  opts.Model,
		Prompt: prompt,
		System: opts.System,
		Format: format,
		Options: &ollama.ModelOptions{
			Temperature: &temp,
			NumPredict:  int(opts.MaxOutputTokens),
		},
	})
	if err != nil {
		return nil, classifyStatus(err, ollama.StatusCode(err))
	}
	model := resp.Model
	if model == "" {
		model = opts.Model
	}
	return &Response{
		Text:  resp.Response,
		Model: model,
		Usage: Usage{
			InputTokens:  resp.PromptEvalCount,
			OutputTokens: resp.EvalCount,
		},
		Elapsed: time.Since(start),
	}, nil
}
