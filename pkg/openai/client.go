// Package openai wraps the OpenAI Responses API for single-prompt text
// generation. Any server implementing the Responses API can be targeted
// through the base URL.
package openai

import (
	"context"
	"errors"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
	"github.com/rotisserie/eris"
)

// Client generates text from a prompt.
type Client interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}

// Request is a single generation request.
type Request struct {
	Model           string
	Instructions    string
	Input           string
	MaxOutputTokens int64
	Temperature     *float64

	// Schema, when set, asks the server for JSON matching it.
	Schema     map[string]any
	SchemaName string
}

// Response is the generated text and its token usage.
type Response struct {
	ID           string
	Model        string
	Text         string
	InputTokens  int64
	OutputTokens int64
	CachedTokens int64
}

type sdkClient struct {
	client openai.Client
}

// NewClient creates a Client. baseURL may be empty for the hosted API.
// SDK-level retries are disabled; the caller owns the attempt policy.
func NewClient(apiKey, baseURL string, timeout time.Duration) Client {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(timeout))
	}
	return &sdkClient{client: openai.NewClient(opts...)}
}

func (c *sdkClient) Generate(ctx context.Context, req Request) (*Response, error) {
	params := responses.ResponseNewParams{
		Model: req.Model,
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: []responses.ResponseInputItemUnionParam{
				responses.ResponseInputItemParamOfMessage(req.Input, responses.EasyInputMessageRoleUser),
			},
		},
	}
	if req.Instructions != "" {
		params.Instructions = openai.String(req.Instructions)
	}
	if req.MaxOutputTokens > 0 {
		params.MaxOutputTokens = openai.Int(req.MaxOutputTokens)
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	if req.Schema != nil {
		name := req.SchemaName
		if name == "" {
			name = "response"
		}
		params.Text = responses.ResponseTextConfigParam{
			Format: responses.ResponseFormatTextConfigUnionParam{
				OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
					Name:   name,
					Schema: req.Schema,
					Strict: openai.Bool(false),
					Type:   "json_schema",
				},
			},
		}
	}

	resp, err := c.client.Responses.New(ctx, params)
	if err != nil {
		return nil, eris.Wrap(err, "openai: create response")
	}
	return &Response{
		ID:           resp.ID,
		Model:        string(resp.Model),
		Text:         resp.OutputText(),
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
		CachedTokens: resp.Usage.InputTokensDetails.CachedTokens,
	}, nil
}

// StatusCode returns the HTTP status of an API error, or 0.
func StatusCode(err error) int {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
