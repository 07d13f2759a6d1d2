package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// ErrNoChoices is returned when the API answers without any completion.
var ErrNoChoices = errors.New("completion returned no choices")

// OpenAIConfig configures OpenAIClient. Zero sampling values keep the
// defaults below.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string // optional; for gateways exposing the same API
	Model   string

	MaxCompletionTokens int
	Temperature         float32
	Timeout             time.Duration
}

// Sampling defaults.
const (
	DefaultModel       = "gpt-4o-mini"
	DefaultTemperature = 0.7
	DefaultTimeout     = 30 * time.Second
)

// OpenAIClient implements Completer over github.com/sashabaranov/go-openai.
// Sampling is fixed per client: top_p 1, no penalties, a single choice.
type OpenAIClient struct {
	client *openai.Client
	cfg    OpenAIConfig
}

// NewOpenAIClient builds a client. An empty API key is an error.
func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("OPENAI_API_KEY is not set")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = DefaultTemperature
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	return &OpenAIClient{client: openai.NewClientWithConfig(oc), cfg: cfg}, nil
}

// Model returns the configured model identifier.
func (o *OpenAIClient) Model() string { return o.cfg.Model }

// Complete sends messages and returns the first choice's content. The call
// is bounded by the configured timeout and never retried.
func (o *OpenAIClient) Complete(ctx context.Context, messages []Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model:            o.cfg.Model,
		Messages:         toOpenAI(messages),
		Temperature:      o.cfg.Temperature,
		TopP:             1,
		N:                1,
		PresencePenalty:  0,
		FrequencyPenalty: 0,
	}
	if o.cfg.MaxCompletionTokens > 0 {
		req.MaxCompletionTokens = o.cfg.MaxCompletionTokens
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion (%s): %w", o.cfg.Model, err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}
	return resp.Choices[0].Message.Content, nil
}

func toOpenAI(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	return out
}
