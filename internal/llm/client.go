// Package llm provides the generation client for docqd.
//
// Generation is an external capability: the engine structures calls to it,
// bounds each call with a timeout, and throttles request rate. The text
// quality itself is not engineered here.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
	"golang.org/x/time/rate"
)

var (
	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrCallFailed indicates a generation call failure (including
	// timeout). Retryable by callers that can afford a retry.
	ErrCallFailed = errors.New("generation call failed")

	// ErrEmptyResponse indicates the model returned no choices.
	ErrEmptyResponse = errors.New("empty generation response")
)

// Client is the generation interface consumed by the agent, planner and
// notes synthesizer.
type Client interface {
	// Complete sends system instructions plus a user turn and returns
	// the generated text. A single call is bounded by the configured
	// timeout; timeouts surface as ErrCallFailed, never a hang.
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// Config holds configuration for the OpenAI-compatible generation client.
type Config struct {
	BaseURL string
	Model   string
	APIKey  string

	// Timeout bounds a single generation call.
	Timeout time.Duration

	// RequestsPerSecond throttles calls to the endpoint.
	RequestsPerSecond float64

	Temperature float64
	MaxTokens   int
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Timeout == 0 {
		c.Timeout = 120 * time.Second
	}
	if c.RequestsPerSecond == 0 {
		c.RequestsPerSecond = 2
	}
	if c.Temperature == 0 {
		c.Temperature = 0.7
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 8192
	}
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: base URL required", ErrInvalidConfig)
	}
	if c.Model == "" {
		return fmt.Errorf("%w: model required", ErrInvalidConfig)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive", ErrInvalidConfig)
	}
	return nil
}

// OpenAIClient implements Client against an OpenAI-compatible chat
// completion endpoint via langchaingo.
type OpenAIClient struct {
	model   llms.Model
	config  Config
	limiter *rate.Limiter
}

// NewOpenAIClient creates a generation client with the given configuration.
func NewOpenAIClient(config Config) (*OpenAIClient, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	apiKey := config.APIKey
	if apiKey == "" {
		apiKey = "placeholder"
	}

	model, err := openai.New(
		openai.WithBaseURL(config.BaseURL),
		openai.WithModel(config.Model),
		openai.WithToken(apiKey),
	)
	if err != nil {
		return nil, fmt.Errorf("creating OpenAI client: %w", err)
	}

	return &OpenAIClient{
		model:   model,
		config:  config,
		limiter: rate.NewLimiter(rate.Limit(config.RequestsPerSecond), 1),
	}, nil
}

// Complete sends one generation request and returns the response text.
func (c *OpenAIClient) Complete(ctx context.Context, system, prompt string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("%w: rate limiter: %v", ErrCallFailed, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	messages := []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, system),
		llms.TextParts(schema.ChatMessageTypeHuman, prompt),
	}

	resp, err := c.model.GenerateContent(ctx, messages,
		llms.WithTemperature(c.config.Temperature),
		llms.WithMaxTokens(c.config.MaxTokens),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCallFailed, err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}

	return resp.Choices[0].Content, nil
}
