// Package genai provides AI reply generation using the OpenAI API.
package genai

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultFallbackReply is sent when the provider fails and no custom fallback
// is configured. Generation failures must never surface to the lead.
const DefaultFallbackReply = "Thanks for reaching out! Let me get back to you with the details shortly."

// GenerateOpts tunes a single generation call. Zero values use provider defaults.
type GenerateOpts struct {
	Temperature float64
	MaxTokens   int64
}

// Reply is the result of a generation call.
type Reply struct {
	Text       string
	TokensUsed int64
}

// Generator produces reply text from a system and user prompt.
type Generator interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string, opts GenerateOpts) (Reply, error)
}

// Opts holds configuration options for the GenAI client.
type Opts struct {
	APIKey string
	Model  string
}

// Option defines a configuration option for the GenAI client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithModel overrides the chat model.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = model }
}

// Client wraps the OpenAI chat completion API.
type Client struct {
	client openai.Client
	model  string
}

// Compile-time check that Client implements Generator.
var _ Generator = (*Client)(nil)

// NewClient initializes a GenAI client. The API key falls back to the
// OPENAI_API_KEY environment variable.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}
	if cfg.Model == "" {
		cfg.Model = openai.ChatModelGPT4oMini
	}
	return &Client{
		client: openai.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:  cfg.Model,
	}, nil
}

// Generate produces a reply for the given prompts.
func (c *Client) Generate(ctx context.Context, systemPrompt, userPrompt string, opts GenerateOpts) (Reply, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
	}
	if opts.Temperature > 0 {
		params.Temperature = openai.Float(opts.Temperature)
	}
	if opts.MaxTokens > 0 {
		params.MaxTokens = openai.Int(opts.MaxTokens)
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return Reply{}, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Reply{}, fmt.Errorf("no choices returned")
	}
	return Reply{
		Text:       resp.Choices[0].Message.Content,
		TokensUsed: resp.Usage.TotalTokens,
	}, nil
}

// SafeGenerator wraps a Generator so that provider failures never propagate:
// on error or empty output it returns the fallback reply instead.
type SafeGenerator struct {
	Inner    Generator
	Fallback string
}

// Compile-time check that SafeGenerator implements Generator.
var _ Generator = (*SafeGenerator)(nil)

// Generate delegates to the inner generator and substitutes the fallback
// reply on failure. The returned error is always nil.
func (s *SafeGenerator) Generate(ctx context.Context, systemPrompt, userPrompt string, opts GenerateOpts) (Reply, error) {
	reply, err := s.Inner.Generate(ctx, systemPrompt, userPrompt, opts)
	if err == nil && reply.Text != "" {
		return reply, nil
	}
	if err != nil {
		slog.Warn("SafeGenerator: generation failed, using fallback reply", "error", err)
	} else {
		slog.Warn("SafeGenerator: empty generation, using fallback reply")
	}
	fallback := s.Fallback
	if fallback == "" {
		fallback = DefaultFallbackReply
	}
	return Reply{Text: fallback}, nil
}
