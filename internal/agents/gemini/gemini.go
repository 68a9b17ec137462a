package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/andrew/mentor-gateway/internal/agents"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com"
	defaultModel   = "gemini-1.5-flash"
)

// Provider implements agents.Provider for the Gemini generateContent API
type Provider struct {
	*agents.BaseProvider
}

// NewProvider creates a new Gemini provider
func NewProvider(opts agents.Options) *Provider {
	if opts.Name == "" {
		opts.Name = "gemini"
	}
	return &Provider{BaseProvider: agents.NewBaseProvider(opts, defaultBaseURL, defaultModel)}
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
	Temperature     *float64 `json:"temperature,omitempty"`
}

type generateRequest struct {
	Contents          []content        `json:"contents"`
	SystemInstruction *content         `json:"systemInstruction,omitempty"`
	GenerationConfig  generationConfig `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
	ModelVersion string `json:"modelVersion"`
}

func (p *Provider) headers() map[string]string {
	return map[string]string{"x-goog-api-key": p.APIKey()}
}

// Probe lists models to verify reachability and the credential
func (p *Provider) Probe(ctx context.Context) bool {
	return p.ProbeURL(ctx, p.BaseURL()+"/v1beta/models", p.headers())
}

// Complete sends a generateContent call to Gemini
func (p *Provider) Complete(ctx context.Context, req agents.CompletionRequest) (*agents.CompletionResponse, error) {
	return p.Execute(ctx, req, func(ctx context.Context) (*agents.CompletionResponse, error) {
		model := p.Model(req)
		url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", p.BaseURL(), model)

		body, err := p.PostJSON(ctx, url, p.headers(), buildRequest(req, p.MaxTokens(req)))
		if err != nil {
			return nil, err
		}

		var parsed generateResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
		if len(parsed.Candidates) == 0 {
			return nil, errors.New("response contained no candidates")
		}

		var text strings.Builder
		for _, pt := range parsed.Candidates[0].Content.Parts {
			text.WriteString(pt.Text)
		}

		if parsed.ModelVersion != "" {
			model = parsed.ModelVersion
		}
		return &agents.CompletionResponse{
			Content:          text.String(),
			Model:            model,
			PromptTokens:     parsed.UsageMetadata.PromptTokenCount,
			CompletionTokens: parsed.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      parsed.UsageMetadata.TotalTokenCount,
		}, nil
	})
}

// buildRequest maps chat roles onto Gemini's user/model turns.
// System messages are merged into the system instruction.
func buildRequest(req agents.CompletionRequest, maxTokens int) generateRequest {
	out := generateRequest{
		GenerationConfig: generationConfig{
			MaxOutputTokens: maxTokens,
			Temperature:     req.Temperature,
		},
	}

	var system []part
	for _, msg := range req.Messages {
		switch msg.Role {
		case agents.RoleSystem:
			system = append(system, part{Text: msg.Content})
		case agents.RoleAssistant:
			out.Contents = append(out.Contents, content{Role: "model", Parts: []part{{Text: msg.Content}}})
		default:
			out.Contents = append(out.Contents, content{Role: "user", Parts: []part{{Text: msg.Content}}})
		}
	}
	if len(system) > 0 {
		out.SystemInstruction = &content{Parts: system}
	}
	return out
}
