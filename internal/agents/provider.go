package agents

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"
)

// Message roles accepted by CompletionRequest
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var (
	// ErrMissingAPIKey is returned when a provider has no credential configured
	ErrMissingAPIKey = errors.New("missing api key")

	// ErrEmptyRequest is returned when a request carries no messages
	ErrEmptyRequest = errors.New("request has no messages")
)

// Provider defines the capability contract every upstream completion service implements
type Provider interface {
	// Name returns the provider name (e.g., "groq", "gemini")
	Name() string

	// Configured reports whether the provider has the credentials it needs
	Configured() bool

	// Probe performs a lightweight reachability and credential check.
	// It never returns an error; any failure is reported as false.
	Probe(ctx context.Context) bool

	// Complete sends the request upstream and returns the parsed response
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// QuotaStatus returns the provider's daily token quota
	QuotaStatus(ctx context.Context) (QuotaStatus, error)

	// SetConsumed overrides the tokens consumed today, e.g. from a persisted usage log
	SetConsumed(tokens int64)
}

// Message is a single role-tagged chat message
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is the provider-agnostic completion request
type CompletionRequest struct {
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
	Model       string    `json:"model,omitempty"`

	// Endpoint labels the caller in the usage log (e.g. "mentor", "interview")
	Endpoint string `json:"-"`
}

// Prompt joins the message contents, used for token estimates
func (r CompletionRequest) Prompt() string {
	var b strings.Builder
	for _, msg := range r.Messages {
		b.WriteString(msg.Content)
		b.WriteByte('\n')
	}
	return b.String()
}

// CompletionResponse is the provider-agnostic completion response
type CompletionResponse struct {
	Content          string        `json:"content"`
	Provider         string        `json:"provider"`
	Model            string        `json:"model"`
	PromptTokens     int           `json:"prompt_tokens"`
	CompletionTokens int           `json:"completion_tokens"`
	TotalTokens      int           `json:"total_tokens"`
	ResponseTime     time.Duration `json:"response_time"`

	// Placeholder marks a synthetic response produced without a successful upstream call
	Placeholder bool `json:"placeholder,omitempty"`
}

// CompletionError wraps a failed upstream call
type CompletionError struct {
	Provider   string
	StatusCode int
	Cause      error
}

func (e *CompletionError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s completion failed with status %d: %v", e.Provider, e.StatusCode, e.Cause)
	}
	return fmt.Sprintf("%s completion failed: %v", e.Provider, e.Cause)
}

func (e *CompletionError) Unwrap() error {
	return e.Cause
}

// Retriable reports whether the upstream status indicates quota, auth or server trouble
func (e *CompletionError) Retriable() bool {
	return IsRetriableStatus(e.StatusCode)
}

// IsRetriableStatus reports whether an HTTP status is one a placeholder may stand in for
func IsRetriableStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests, http.StatusForbidden,
		http.StatusInternalServerError, http.StatusServiceUnavailable:
		return true
	}
	return false
}

// EstimateTokens approximates the token count of text at four characters per token, rounding up
func EstimateTokens(text string) int {
	return (utf8.RuneCountInString(text) + 3) / 4
}
