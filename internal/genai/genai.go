// Package genai wraps the OpenAI chat-completion API for the prompt flows.
package genai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// ErrNoChoicesReturned indicates the provider reply contained no choices.
var ErrNoChoicesReturned = errors.New("no choices returned")

// chatService defines the minimal interface for chat completions, so tests
// can substitute a mock provider.
type chatService interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Opts holds configuration options for the GenAI client.
type Opts struct {
	APIKey     string       // provider API key (overrides $OPENAI_API_KEY)
	Model      string       // chat model name
	BaseURL    string       // alternate API endpoint for OpenAI-compatible providers
	HTTPClient *http.Client // custom HTTP client, mainly for tests
}

// Option defines a configuration option for the GenAI client.
type Option func(*Opts)

// WithAPIKey sets the provider API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) {
		o.APIKey = key
	}
}

// WithModel sets the chat model used for completions.
func WithModel(model string) Option {
	return func(o *Opts) {
		o.Model = model
	}
}

// WithBaseURL points the client at an OpenAI-compatible endpoint.
func WithBaseURL(url string) Option {
	return func(o *Opts) {
		o.BaseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *Opts) {
		o.HTTPClient = hc
	}
}

// Client wraps the OpenAI chat-completion service for the prompt flows.
type Client struct {
	chat  chatService
	model shared.ChatModel
}

// NewClient creates a GenAI client, applying any provided options. The API
// key falls back to the OPENAI_API_KEY environment variable.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		slog.Error("GenAI client API key not set")
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(cfg.HTTPClient))
	}

	model := shared.ChatModel(cfg.Model)
	if model == "" {
		model = openai.ChatModelGPT4oMini
	}

	cli := openai.NewClient(reqOpts...)
	slog.Debug("GenAI client created", "model", model, "base_url_set", cfg.BaseURL != "")
	return &Client{chat: &cli.Chat.Completions, model: model}, nil
}

// Generate produces a completion for the given system and user prompts.
func (c *Client) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return c.generate(ctx, systemPrompt, userPrompt, false)
}

// GenerateJSON produces a completion constrained to a JSON object reply.
// The prompt flows re-validate the object against their output schemas.
func (c *Client) GenerateJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return c.generate(ctx, systemPrompt, userPrompt, true)
}

func (c *Client) generate(ctx context.Context, systemPrompt, userPrompt string, jsonMode bool) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
	}
	if jsonMode {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	resp, err := c.chat.New(ctx, params)
	if err != nil {
		slog.Error("GenAI completion failed", "error", err, "json_mode", jsonMode)
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		slog.Error("GenAI completion returned no choices", "json_mode", jsonMode)
		return "", ErrNoChoicesReturned
	}
	content := resp.Choices[0].Message.Content
	slog.Debug("GenAI completion succeeded", "json_mode", jsonMode, "content_length", len(content))
	return content, nil
}
