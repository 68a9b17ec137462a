package groq

import (
	"context"

	"github.com/andrew/mentor-gateway/internal/agents"
)

const (
	defaultBaseURL = "https://api.groq.com"
	defaultModel   = "llama-3.3-70b-versatile"
)

// Provider implements agents.Provider for the Groq OpenAI-compatible API
type Provider struct {
	*agents.BaseProvider
}

// NewProvider creates a new Groq provider
func NewProvider(opts agents.Options) *Provider {
	if opts.Name == "" {
		opts.Name = "groq"
	}
	return &Provider{BaseProvider: agents.NewBaseProvider(opts, defaultBaseURL, defaultModel)}
}

func (p *Provider) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + p.APIKey()}
}

// Probe lists models to verify reachability and the credential
func (p *Provider) Probe(ctx context.Context) bool {
	return p.ProbeURL(ctx, p.BaseURL()+"/openai/v1/models", p.headers())
}

// Complete sends a chat completion to Groq
func (p *Provider) Complete(ctx context.Context, req agents.CompletionRequest) (*agents.CompletionResponse, error) {
	return p.Execute(ctx, req, func(ctx context.Context) (*agents.CompletionResponse, error) {
		payload := agents.NewChatPayload(p.Model(req), p.MaxTokens(req), req)
		body, err := p.PostJSON(ctx, p.BaseURL()+"/openai/v1/chat/completions", p.headers(), payload)
		if err != nil {
			return nil, err
		}
		return agents.ParseChatResponse(body)
	})
}
