package agents

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func userRequest(content string) CompletionRequest {
	return CompletionRequest{Messages: []Message{{Role: RoleUser, Content: content}}}
}

func TestExecuteRequiresAPIKey(t *testing.T) {
	b := NewBaseProvider(Options{Name: "groq"}, "http://localhost", "m")

	called := false
	_, err := b.Execute(context.Background(), userRequest("hi"), func(ctx context.Context) (*CompletionResponse, error) {
		called = true
		return &CompletionResponse{}, nil
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingAPIKey)
	assert.False(t, called)
	assert.False(t, b.Configured())
}

func TestExecuteRejectsEmptyRequest(t *testing.T) {
	b := NewBaseProvider(Options{Name: "groq", APIKey: "k"}, "http://localhost", "m")

	_, err := b.Execute(context.Background(), CompletionRequest{}, func(ctx context.Context) (*CompletionResponse, error) {
		return &CompletionResponse{}, nil
	})
	assert.ErrorIs(t, err, ErrEmptyRequest)
}

func TestExecuteAccountsTokens(t *testing.T) {
	b := NewBaseProvider(Options{Name: "groq", APIKey: "k", DailyTokenLimit: 1000}, "http://localhost", "default-model")

	resp, err := b.Execute(context.Background(), userRequest("hi"), func(ctx context.Context) (*CompletionResponse, error) {
		return &CompletionResponse{Content: "hello", PromptTokens: 30, CompletionTokens: 70}, nil
	})
	require.NoError(t, err)

	assert.Equal(t, "groq", resp.Provider)
	assert.Equal(t, "default-model", resp.Model)
	assert.Equal(t, 100, resp.TotalTokens)

	quota, err := b.QuotaStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(900), quota.Remaining)
}

func TestExecuteEstimatesTokensWithoutUsage(t *testing.T) {
	b := NewBaseProvider(Options{Name: "gemini", APIKey: "k", DailyTokenLimit: 1000}, "http://localhost", "m")

	// "explain maps" plus newline is 13 runes, the reply is 20
	resp, err := b.Execute(context.Background(), userRequest("explain maps"), func(ctx context.Context) (*CompletionResponse, error) {
		return &CompletionResponse{Content: "maps are hash tables"}, nil
	})
	require.NoError(t, err)

	assert.Equal(t, 4, resp.PromptTokens)
	assert.Equal(t, 5, resp.CompletionTokens)
	assert.Equal(t, 9, resp.TotalTokens)

	quota, err := b.QuotaStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(991), quota.Remaining)
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("go"))
	assert.Equal(t, 2, EstimateTokens("héllo"))

	req := CompletionRequest{Messages: []Message{{Role: RoleSystem, Content: "a"}, {Role: RoleUser, Content: "b"}}}
	assert.Equal(t, "a\nb\n", req.Prompt())
}

func TestExecuteWrapsStatusErrors(t *testing.T) {
	b := NewBaseProvider(Options{Name: "groq", APIKey: "k"}, "http://localhost", "m")

	_, err := b.Execute(context.Background(), userRequest("hi"), func(ctx context.Context) (*CompletionResponse, error) {
		return nil, &StatusError{StatusCode: http.StatusTooManyRequests, Body: "slow down"}
	})
	require.Error(t, err)

	var cerr *CompletionError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, "groq", cerr.Provider)
	assert.Equal(t, http.StatusTooManyRequests, cerr.StatusCode)
	assert.True(t, cerr.Retriable())
}

func TestExecuteDegradesInPlace(t *testing.T) {
	b := NewBaseProvider(Options{Name: "groq", APIKey: "k", DegradeInPlace: true}, "http://localhost", "m")

	resp, err := b.Execute(context.Background(), userRequest("hi"), func(ctx context.Context) (*CompletionResponse, error) {
		return nil, &StatusError{StatusCode: http.StatusServiceUnavailable}
	})
	require.NoError(t, err)
	assert.True(t, resp.Placeholder)
	assert.Equal(t, "placeholder", resp.Model)
	assert.Contains(t, resp.Content, "groq unavailable")

	// Non-retriable failures still surface
	_, err = b.Execute(context.Background(), userRequest("hi"), func(ctx context.Context) (*CompletionResponse, error) {
		return nil, &StatusError{StatusCode: http.StatusBadRequest}
	})
	assert.Error(t, err)
}

func TestExecuteTimesOut(t *testing.T) {
	b := NewBaseProvider(Options{Name: "groq", APIKey: "k", Timeout: 20 * time.Millisecond}, "http://localhost", "m")

	_, err := b.Execute(context.Background(), userRequest("hi"), func(ctx context.Context) (*CompletionResponse, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
			return &CompletionResponse{Content: "too late"}, nil
		}
	})
	assert.Error(t, err)
}

func TestProbeURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	good := NewBaseProvider(Options{Name: "p", APIKey: "good"}, server.URL, "m")
	assert.True(t, good.ProbeURL(context.Background(), server.URL, map[string]string{"Authorization": "Bearer good"}))

	bad := NewBaseProvider(Options{Name: "p", APIKey: "bad"}, server.URL, "m")
	assert.False(t, bad.ProbeURL(context.Background(), server.URL, map[string]string{"Authorization": "Bearer bad"}))

	unconfigured := NewBaseProvider(Options{Name: "p"}, server.URL, "m")
	assert.False(t, unconfigured.ProbeURL(context.Background(), server.URL, nil))
}

func TestParseChatResponse(t *testing.T) {
	resp, err := ParseChatResponse([]byte(`{"model":"x","choices":[{"message":{"role":"assistant","content":"ok"}}],"usage":{"prompt_tokens":1,"completion_tokens":2,"total_tokens":3}}`))
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, 3, resp.TotalTokens)

	_, err = ParseChatResponse([]byte(`{"choices":[]}`))
	assert.Error(t, err)

	_, err = ParseChatResponse([]byte(`not json`))
	assert.Error(t, err)
}
