package ai

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	openai "github.com/sashabaranov/go-openai"

	"github.com/sells-group/boq-extractor/internal/resilience"
)

// chatClient is the slice of the go-openai client used here.
type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIProvider calls an OpenAI-compatible chat completions endpoint.
type OpenAIProvider struct {
	client    chatClient
	model     string
	maxTokens int
	guard     guard
}

// NewOpenAI creates an OpenAI provider. baseURL targets a compatible
// gateway when set.
func NewOpenAI(key, model, baseURL string, maxTokens int, opts GuardOptions) *OpenAIProvider {
	var client chatClient
	if key != "" {
		cfg := openai.DefaultConfig(key)
		if baseURL != "" {
			cfg.BaseURL = baseURL
		}
		client = openai.NewClientWithConfig(cfg)
	}
	return newOpenAIWithClient(client, key, model, maxTokens, opts)
}

func newOpenAIWithClient(client chatClient, key, model string, maxTokens int, opts GuardOptions) *OpenAIProvider {
	if maxTokens <= 0 {
		maxTokens = 8192
	}
	return &OpenAIProvider{
		client:    client,
		model:     model,
		maxTokens: maxTokens,
		guard:     newGuard(ProviderOpenAI, key, opts),
	}
}

// Name implements Provider.
func (p *OpenAIProvider) Name() string { return ProviderOpenAI }

// Available implements Provider.
func (p *OpenAIProvider) Available() bool {
	return p.client != nil && p.guard.available()
}

// Complete implements Provider.
func (p *OpenAIProvider) Complete(ctx context.Context, prompt Prompt) (string, error) {
	return p.guard.call(ctx, func(ctx context.Context) (string, error) {
		resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: p.model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: prompt.System},
				{Role: openai.ChatMessageRoleUser, Content: prompt.User},
			},
			MaxTokens:   p.maxTokens,
			Temperature: 0,
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
		})
		if err != nil {
			var apiErr *openai.APIError
			if errors.As(err, &apiErr) && resilience.IsTransientHTTPStatus(apiErr.HTTPStatusCode) {
				return "", resilience.NewTransientError(err, apiErr.HTTPStatusCode)
			}
			return "", eris.Wrap(err, "ai: openai chat completion")
		}
		if len(resp.Choices) == 0 {
			return "", eris.New("ai: openai returned no choices")
		}
		return resp.Choices[0].Message.Content, nil
	})
}
