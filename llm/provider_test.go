package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordedRequest captures what a provider put on the wire.
type recordedRequest struct {
	Path   string
	Header http.Header
	Body   map[string]any
}

func newTestServer(t *testing.T, status int, header http.Header, body string) (*httptest.Server, *recordedRequest) {
	t.Helper()
	rec := &recordedRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.Path = r.URL.Path
		rec.Header = r.Header.Clone()
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &rec.Body)
		for k, vs := range header {
			for _, v := range vs {
				w.Header().Add(k, v)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

func userRequest(text string) Request {
	return Request{
		Messages:    []ChatMessage{UserMessage(text)},
		Temperature: 0.1,
		MaxTokens:   50,
	}
}

const openAISuccess = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "model": "gpt-4o-mini-2024-07-18",
  "choices": [{"index": 0, "message": {"role": "assistant", "content": "4"}, "finish_reason": "stop"}],
  "usage": {"prompt_tokens": 5, "completion_tokens": 1, "total_tokens": 6}
}`

func TestOpenAIComplete(t *testing.T) {
	srv, rec := newTestServer(t, http.StatusOK, nil, openAISuccess)

	p := NewOpenAIProvider("sk-test", "gpt-4o-mini", ClientOptions{BaseURL: srv.URL + "/v1"})
	defer p.Close()

	resp, err := p.Complete(context.Background(), userRequest("What is 2+2?"))
	require.NoError(t, err)

	assert.Equal(t, "4", resp.Text)
	assert.Equal(t, TokenUsage{PromptTokens: 5, CompletionTokens: 1, TotalTokens: 6}, resp.Usage)
	assert.Equal(t, "gpt-4o-mini-2024-07-18", resp.Model)
	assert.Equal(t, "/v1/chat/completions", rec.Path)
	assert.Equal(t, "Bearer sk-test", rec.Header.Get("Authorization"))
	assert.Equal(t, "gpt-4o-mini", rec.Body["model"])
	assert.EqualValues(t, 50, rec.Body["max_tokens"])
}

func TestOpenAIRequestModelOverride(t *testing.T) {
	srv, rec := newTestServer(t, http.StatusOK, nil, openAISuccess)

	p := NewOpenAIProvider("sk-test", "gpt-4o-mini", ClientOptions{BaseURL: srv.URL})
	req := userRequest("hi")
	req.Model = "gpt-4o"

	_, err := p.Complete(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", rec.Body["model"])
}

func TestOpenAIStatusClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"unauthorized", http.StatusUnauthorized, ErrAuth},
		{"forbidden", http.StatusForbidden, ErrAuth},
		{"rate limited", http.StatusTooManyRequests, ErrRateLimit},
		{"gateway timeout", http.StatusGatewayTimeout, ErrTimeout},
		{"server error", http.StatusInternalServerError, ErrTransport},
		{"bad request", http.StatusBadRequest, ErrProvider},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := `{"error": {"message": "nope", "type": "invalid_request_error"}}`
			srv, _ := newTestServer(t, tt.status, nil, body)

			p := NewOpenAIProvider("sk-test", "gpt-4o-mini", ClientOptions{BaseURL: srv.URL})
			_, err := p.Complete(context.Background(), userRequest("hi"))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)

			var perr *Error
			require.True(t, errors.As(err, &perr))
			assert.Equal(t, tt.status, perr.StatusCode)
			assert.Equal(t, "openai", perr.Provider)
		})
	}
}

func TestOpenAINoChoices(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusOK, nil, `{"id": "x", "choices": [], "usage": {}}`)

	p := NewOpenAIProvider("sk-test", "gpt-4o-mini", ClientOptions{BaseURL: srv.URL})
	_, err := p.Complete(context.Background(), userRequest("hi"))
	assert.ErrorIs(t, err, ErrProvider)
}

func TestErrorDoesNotLeakAPIKey(t *testing.T) {
	const key = "sk-test-invalid-key-12345xyz"
	body := `{"error": {"message": "Incorrect API key provided", "type": "invalid_request_error"}}`
	srv, _ := newTestServer(t, http.StatusUnauthorized, nil, body)

	p := NewOpenAIProvider(key, "gpt-4o-mini", ClientOptions{BaseURL: srv.URL})
	_, err := p.Complete(context.Background(), userRequest("hi"))
	require.Error(t, err)
	assert.NotContains(t, err.Error(), key)
	assert.NotContains(t, err.Error(), "Authorization:")
}

func TestContextDeadlineIsTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	p := NewOpenAIProvider("sk-test", "gpt-4o-mini", ClientOptions{BaseURL: srv.URL})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := p.Complete(ctx, userRequest("hi"))
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestDeepSeekUsesOpenAIWireFormat(t *testing.T) {
	srv, rec := newTestServer(t, http.StatusOK, nil, openAISuccess)

	p := NewDeepSeekProvider("ds-test", ModelDeepSeekChat, ClientOptions{BaseURL: srv.URL})
	resp, err := p.Complete(context.Background(), userRequest("What is 2+2?"))
	require.NoError(t, err)

	assert.Equal(t, "deepseek", p.Name())
	assert.Equal(t, "4", resp.Text)
	assert.Equal(t, "/chat/completions", rec.Path)
	assert.Equal(t, ModelDeepSeekChat, rec.Body["model"])
}

const anthropicSuccess = `{
  "id": "msg_01",
  "type": "message",
  "role": "assistant",
  "model": "claude-sonnet-4-20250514",
  "content": [{"type": "text", "text": "4"}],
  "stop_reason": "end_turn",
  "usage": {"input_tokens": 12, "output_tokens": 1}
}`

func TestAnthropicComplete(t *testing.T) {
	srv, rec := newTestServer(t, http.StatusOK, nil, anthropicSuccess)

	p := NewAnthropicProvider("sk-ant-test", ModelAnthropicClaudeSonnet4, ClientOptions{BaseURL: srv.URL})
	defer p.Close()

	req := Request{
		Messages: []ChatMessage{
			SystemMessage("Be brief."),
			SystemMessage("Answer in digits."),
			UserMessage("What is 2+2?"),
		},
		Temperature: 0.1,
		MaxTokens:   50,
	}
	resp, err := p.Complete(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "4", resp.Text)
	assert.Equal(t, TokenUsage{PromptTokens: 12, CompletionTokens: 1, TotalTokens: 13}, resp.Usage)
	assert.Equal(t, "/v1/messages", rec.Path)
	assert.Equal(t, "sk-ant-test", rec.Header.Get("X-Api-Key"))

	system, ok := rec.Body["system"].([]any)
	require.True(t, ok, "system prompt should travel in the top-level system field")
	require.Len(t, system, 1)
	assert.Equal(t, "Be brief. Answer in digits.", system[0].(map[string]any)["text"])

	messages, ok := rec.Body["messages"].([]any)
	require.True(t, ok)
	assert.Len(t, messages, 1)
}

func TestAnthropicRateLimitCarriesRetryAfter(t *testing.T) {
	header := http.Header{"Retry-After": []string{"7"}}
	body := `{"type": "error", "error": {"type": "rate_limit_error", "message": "slow down"}}`
	srv, _ := newTestServer(t, http.StatusTooManyRequests, header, body)

	p := NewAnthropicProvider("sk-ant-test", ModelAnthropicClaudeSonnet4, ClientOptions{BaseURL: srv.URL})
	_, err := p.Complete(context.Background(), userRequest("hi"))
	require.ErrorIs(t, err, ErrRateLimit)

	var perr *Error
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, 7*time.Second, perr.RetryAfter)
}

func TestOpenAIRateLimitLeavesRetryAfterUnset(t *testing.T) {
	header := http.Header{"Retry-After": []string{"7"}}
	body := `{"error": {"message": "slow down", "type": "rate_limit_error"}}`
	srv, _ := newTestServer(t, http.StatusTooManyRequests, header, body)

	p := NewOpenAIProvider("sk-test", ModelOpenAIGPT4oMini, ClientOptions{BaseURL: srv.URL})
	_, err := p.Complete(context.Background(), userRequest("hi"))
	require.ErrorIs(t, err, ErrRateLimit)

	var perr *Error
	require.True(t, errors.As(err, &perr))
	assert.Zero(t, perr.RetryAfter, "OpenAI errors carry no headers")
}

const geminiSuccess = `{
  "candidates": [{"content": {"role": "model", "parts": [{"text": "4"}]}, "finishReason": "STOP"}],
  "usageMetadata": {"promptTokenCount": 9, "candidatesTokenCount": 1, "totalTokenCount": 10},
  "modelVersion": "gemini-2.5-flash"
}`

func TestGeminiComplete(t *testing.T) {
	srv, rec := newTestServer(t, http.StatusOK, nil, geminiSuccess)

	p := NewGeminiProvider("g-test", ModelGeminiFlash25, ClientOptions{BaseURL: srv.URL})
	defer p.Close()

	resp, err := p.Complete(context.Background(), userRequest("What is 2+2?"))
	require.NoError(t, err)

	assert.Equal(t, "4", resp.Text)
	assert.Equal(t, TokenUsage{PromptTokens: 9, CompletionTokens: 1, TotalTokens: 10}, resp.Usage)
	assert.Equal(t, "gemini-2.5-flash", resp.Model)
	assert.True(t, strings.HasSuffix(rec.Path, "models/gemini-2.5-flash:generateContent"), rec.Path)
}

func TestGeminiNoCandidates(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusOK, nil, `{"candidates": []}`)

	p := NewGeminiProvider("g-test", ModelGeminiFlash25, ClientOptions{BaseURL: srv.URL})
	_, err := p.Complete(context.Background(), userRequest("hi"))
	assert.ErrorIs(t, err, ErrProvider)
}

func TestGeminiStatusClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"unauthorized", http.StatusUnauthorized, ErrAuth},
		{"rate limited", http.StatusTooManyRequests, ErrRateLimit},
		{"unavailable", http.StatusServiceUnavailable, ErrTransport},
		{"bad request", http.StatusBadRequest, ErrProvider},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := `{"error": {"code": ` + strconv.Itoa(tt.status) + `, "message": "nope", "status": "FAILED"}}`
			srv, _ := newTestServer(t, tt.status, nil, body)

			p := NewGeminiProvider("g-test", ModelGeminiFlash25, ClientOptions{BaseURL: srv.URL})
			_, err := p.Complete(context.Background(), userRequest("hi"))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)

			var perr *Error
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, tt.status, perr.StatusCode)
			assert.Equal(t, "gemini", perr.Provider)
			assert.NotContains(t, err.Error(), "g-test")
		})
	}
}

func TestConvertToGeminiMessages(t *testing.T) {
	contents, system := convertToGeminiMessages([]ChatMessage{
		SystemMessage("rule one"),
		AssistantMessage("earlier answer"),
		UserMessage("first"),
		UserMessage("second"),
		AssistantMessage("reply"),
		SystemMessage("rule two"),
	})

	assert.Equal(t, "rule one\nrule two", system)
	require.Len(t, contents, 4)

	assert.Equal(t, "user", contents[0].Role)
	assert.Equal(t, geminiPlaceholder, contents[0].Parts[0].Text)
	assert.Equal(t, "model", contents[1].Role)
	assert.Equal(t, "user", contents[2].Role)
	assert.Equal(t, "first\nsecond", contents[2].Parts[0].Text)
	assert.Equal(t, "model", contents[3].Role)
}

func TestConvertToAnthropicMessages(t *testing.T) {
	messages, system := convertToAnthropicMessages([]ChatMessage{
		SystemMessage("a"),
		UserMessage("q"),
		SystemMessage("b"),
		AssistantMessage("r"),
	})
	assert.Equal(t, "a b", system)
	assert.Len(t, messages, 2)
}
