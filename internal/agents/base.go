package agents

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/felixgeelhaar/fortify/timeout"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultMaxTokens = 1024
)

// Options configures a BaseProvider
type Options struct {
	Name              string
	APIKey            string
	BaseURL           string
	Model             string
	Timeout           time.Duration
	DailyTokenLimit   int64
	RequestsPerMinute int

	// DegradeInPlace returns a labeled placeholder on retriable upstream failures
	// instead of an error. Only useful when no orchestrator fallback exists.
	DegradeInPlace bool

	HTTPClient *http.Client
	Now        func() time.Time
}

// BaseProvider contains common provider functionality
type BaseProvider struct {
	name           string
	apiKey         string
	baseURL        string
	model          string
	timeout        time.Duration
	degradeInPlace bool
	httpClient     *http.Client
	limiter        *rate.Limiter
	quota          *QuotaTracker
}

// NewBaseProvider creates the shared plumbing for an HTTP completion provider
func NewBaseProvider(opts Options, defaultBaseURL, defaultModel string) *BaseProvider {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.Model == "" {
		opts.Model = defaultModel
	}
	if opts.Timeout == 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}

	limit := rate.Inf
	burst := 1
	if opts.RequestsPerMinute > 0 {
		limit = rate.Limit(float64(opts.RequestsPerMinute) / 60.0)
		burst = opts.RequestsPerMinute
	}

	return &BaseProvider{
		name:           opts.Name,
		apiKey:         strings.TrimSpace(opts.APIKey),
		baseURL:        strings.TrimRight(opts.BaseURL, "/"),
		model:          opts.Model,
		timeout:        opts.Timeout,
		degradeInPlace: opts.DegradeInPlace,
		httpClient:     opts.HTTPClient,
		limiter:        rate.NewLimiter(limit, burst),
		quota:          NewQuotaTracker(opts.DailyTokenLimit, opts.Now),
	}
}

// Name returns the provider name
func (b *BaseProvider) Name() string {
	return b.name
}

// Configured reports whether an API key is present
func (b *BaseProvider) Configured() bool {
	return b.apiKey != ""
}

// APIKey returns the configured credential
func (b *BaseProvider) APIKey() string {
	return b.apiKey
}

// BaseURL returns the upstream base URL without a trailing slash
func (b *BaseProvider) BaseURL() string {
	return b.baseURL
}

// Model resolves the model for a request
func (b *BaseProvider) Model(req CompletionRequest) string {
	if req.Model != "" {
		return req.Model
	}
	return b.model
}

// MaxTokens resolves the max-token limit for a request
func (b *BaseProvider) MaxTokens(req CompletionRequest) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	return defaultMaxTokens
}

// QuotaStatus returns the tracked daily quota
func (b *BaseProvider) QuotaStatus(ctx context.Context) (QuotaStatus, error) {
	return b.quota.Status(), nil
}

// SetConsumed seeds the quota counter
func (b *BaseProvider) SetConsumed(tokens int64) {
	b.quota.Set(tokens)
}

// ProbeURL issues a GET and reports whether the upstream answered 200.
// A missing credential short-circuits to false without touching the network.
func (b *BaseProvider) ProbeURL(ctx context.Context, url string, headers map[string]string) bool {
	if !b.Configured() {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode == http.StatusOK
}

// PostJSON sends a JSON payload and returns the response body.
// Non-2xx responses are returned as *StatusError.
func (b *BaseProvider) PostJSON(ctx context.Context, url string, headers map[string]string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	return respBody, nil
}

// StatusError is a non-2xx upstream response
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned status %d: %s", e.StatusCode, e.Body)
}

// Execute runs an upstream call with pacing, a bounded timeout and quota accounting
func (b *BaseProvider) Execute(ctx context.Context, req CompletionRequest, call func(ctx context.Context) (*CompletionResponse, error)) (*CompletionResponse, error) {
	if !b.Configured() {
		return nil, &CompletionError{Provider: b.name, Cause: ErrMissingAPIKey}
	}
	if len(req.Messages) == 0 {
		return nil, &CompletionError{Provider: b.name, Cause: ErrEmptyRequest}
	}

	startTime := time.Now()

	if err := b.limiter.Wait(ctx); err != nil {
		return nil, &CompletionError{Provider: b.name, Cause: fmt.Errorf("rate limiter: %w", err)}
	}

	deadline := timeout.New[*CompletionResponse](timeout.Config{
		DefaultTimeout: b.timeout,
	})
	resp, err := deadline.Execute(ctx, b.timeout, call)
	if err != nil {
		cerr := &CompletionError{Provider: b.name, Cause: err}
		var statusErr *StatusError
		if errors.As(err, &statusErr) {
			cerr.StatusCode = statusErr.StatusCode
		}
		if b.degradeInPlace && cerr.Retriable() {
			return b.Placeholder(req, time.Since(startTime)), nil
		}
		return nil, cerr
	}

	resp.Provider = b.name
	if resp.Model == "" {
		resp.Model = b.Model(req)
	}
	if resp.PromptTokens == 0 && resp.CompletionTokens == 0 && resp.TotalTokens == 0 {
		// upstream reported no usage
		resp.PromptTokens = EstimateTokens(req.Prompt())
		resp.CompletionTokens = EstimateTokens(resp.Content)
	}
	if resp.TotalTokens == 0 {
		resp.TotalTokens = resp.PromptTokens + resp.CompletionTokens
	}
	resp.ResponseTime = time.Since(startTime)

	b.quota.Add(resp.TotalTokens)

	return resp, nil
}

// Placeholder builds a clearly labeled synthetic response
func (b *BaseProvider) Placeholder(req CompletionRequest, elapsed time.Duration) *CompletionResponse {
	return &CompletionResponse{
		Content: fmt.Sprintf("[%s unavailable] The AI service is temporarily busy. "+
			"This is a placeholder response; please try again shortly.", b.name),
		Provider:     b.name,
		Model:        "placeholder",
		ResponseTime: elapsed,
		Placeholder:  true,
	}
}
