package ai

import (
	"context"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/rotisserie/eris"
	"google.golang.org/api/option"
)

// generator is the slice of *genai.GenerativeModel used here.
type generator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// GeminiProvider calls the Google Gemini API.
type GeminiProvider struct {
	client *genai.Client
	model  generator
	guard  guard
}

// NewGemini creates a Gemini provider. Without a key the provider is
// returned unavailable and no client is opened.
func NewGemini(ctx context.Context, key, model string, maxTokens int, opts GuardOptions) (*GeminiProvider, error) {
	p := &GeminiProvider{guard: newGuard(ProviderGemini, key, opts)}
	if key == "" {
		return p, nil
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(key))
	if err != nil {
		return nil, eris.Wrap(err, "ai: create gemini client")
	}
	m := client.GenerativeModel(model)
	m.SetTemperature(0)
	if maxTokens > 0 {
		m.SetMaxOutputTokens(int32(maxTokens))
	}
	m.ResponseMIMEType = "application/json"
	m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(SystemPrompt)}}

	p.client = client
	p.model = m
	return p, nil
}

// Name implements Provider.
func (p *GeminiProvider) Name() string { return ProviderGemini }

// Available implements Provider.
func (p *GeminiProvider) Available() bool {
	return p.model != nil && p.guard.available()
}

// Complete implements Provider. The system prompt is set on the model.
func (p *GeminiProvider) Complete(ctx context.Context, prompt Prompt) (string, error) {
	return p.guard.call(ctx, func(ctx context.Context) (string, error) {
		resp, err := p.model.GenerateContent(ctx, genai.Text(prompt.User))
		if err != nil {
			return "", eris.Wrap(err, "ai: gemini generate")
		}
		if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
			return "", eris.New("ai: gemini returned no candidates")
		}
		var b strings.Builder
		for _, part := range resp.Candidates[0].Content.Parts {
			if t, ok := part.(genai.Text); ok {
				b.WriteString(string(t))
			}
		}
		return b.String(), nil
	})
}

// Close releases the underlying client.
func (p *GeminiProvider) Close() error {
	if p.client == nil {
		return nil
	}
	return p.client.Close()
}
