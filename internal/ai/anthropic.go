package ai

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/boq-extractor/pkg/anthropic"
)

// AnthropicProvider calls the Anthropic Messages API.
type AnthropicProvider struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	guard     guard
}

// NewAnthropic creates an Anthropic provider. A nil client is created from key.
func NewAnthropic(client anthropic.Client, key, model string, maxTokens int, opts GuardOptions) *AnthropicProvider {
	if client == nil && key != "" {
		client = anthropic.NewClient(key)
	}
	if maxTokens <= 0 {
		maxTokens = 8192
	}
	return &AnthropicProvider{
		client:    client,
		model:     model,
		maxTokens: int64(maxTokens),
		guard:     newGuard(ProviderAnthropic, key, opts),
	}
}

// Name implements Provider.
func (p *AnthropicProvider) Name() string { return ProviderAnthropic }

// Available implements Provider.
func (p *AnthropicProvider) Available() bool {
	return p.client != nil && p.guard.available()
}

// Complete implements Provider.
func (p *AnthropicProvider) Complete(ctx context.Context, prompt Prompt) (string, error) {
	return p.guard.call(ctx, func(ctx context.Context) (string, error) {
		temp := 0.0
		resp, err := p.client.CreateMessage(ctx, anthropic.MessageRequest{
			Model:       p.model,
			MaxTokens:   p.maxTokens,
			System:      anthropic.CachedSystem(prompt.System),
			Messages:    []anthropic.Message{{Role: "user", Content: prompt.User}},
			Temperature: &temp,
		})
		if err != nil {
			return "", err
		}
		resp.Usage.LogCost(p.model, "extraction")
		if resp.StopReason == "max_tokens" {
			return "", eris.New("ai: anthropic response hit max tokens")
		}
		return resp.Text(), nil
	})
}
