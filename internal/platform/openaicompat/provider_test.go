package openaicompat

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tiptoro/tiptoro-api/internal/llm"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const completionBody = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1700000000,
  "model": "deepseek-chat",
  "choices": [{
    "index": 0,
    "message": {"role": "assistant", "content": "{\"nodes\":[\"fractions\"]}"},
    "finish_reason": "stop"
  }],
  "usage": {"prompt_tokens": 30, "completion_tokens": 7, "total_tokens": 37}
}`

type capture struct {
	mu       sync.Mutex
	requests []map[string]any
}

func (c *capture) all() []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]map[string]any(nil), c.requests...)
}

// newTestServer serves chat completions with status and body, capturing
// each request body.
func newTestServer(t *testing.T, status int, body string) (*httptest.Server, *capture, *atomic.Int32) {
	t.Helper()
	var (
		captured = &capture{}
		calls    atomic.Int32
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
			captured.mu.Lock()
			captured.requests = append(captured.requests, req)
			captured.mu.Unlock()
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, captured, &calls
}

func newTestProvider(t *testing.T, baseURL string) *Provider {
	t.Helper()
	p, err := NewProvider(Config{Name: "deepseek", APIKey: "sk-test", BaseURL: baseURL}, discardLogger())
	require.NoError(t, err)
	return p
}

func TestNewProvider(t *testing.T) {
	t.Parallel()

	_, err := NewProvider(Config{}, discardLogger())
	assert.ErrorIs(t, err, llm.ErrInvalidConfig)

	_, err = NewProvider(Config{APIKey: "k"}, nil)
	assert.Error(t, err)

	p, err := NewProvider(Config{APIKey: "k"}, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, DefaultName, p.Name())
}

func TestProvider_Complete(t *testing.T) {
	t.Parallel()

	srv, captured, _ := newTestServer(t, http.StatusOK, completionBody)
	p := newTestProvider(t, srv.URL+"/v1")

	resp, err := p.Complete(context.Background(), &llm.CompletionRequest{
		Model: "deepseek-chat",
		Messages: []llm.Message{
			llm.SystemMessage("Analyze mistakes."),
			llm.UserMessage("1/2 + 1/3 = 2/5"),
		},
		Temperature: 0.2,
		MaxTokens:   300,
		TopP:        0.9,
		JSONMode:    true,
	})

	require.NoError(t, err)
	assert.Equal(t, `{"nodes":["fractions"]}`, resp.Content)
	assert.Equal(t, "deepseek-chat", resp.Model)
	assert.Equal(t, "deepseek", resp.Provider)
	assert.Equal(t, 30, resp.InputTokens)
	assert.Equal(t, 7, resp.OutputTokens)

	requests := captured.all()
	require.Len(t, requests, 1)
	req := requests[0]
	assert.Equal(t, "deepseek-chat", req["model"])
	assert.Equal(t, 300.0, req["max_tokens"])
	assert.InDelta(t, 0.2, req["temperature"], 1e-9)
	assert.Equal(t, map[string]any{"type": "json_object"}, req["response_format"])

	msgs, ok := req["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "user", msgs[1].(map[string]any)["role"])
	assert.Equal(t, "1/2 + 1/3 = 2/5", msgs[1].(map[string]any)["content"])
}

func TestProvider_Complete_Images(t *testing.T) {
	t.Parallel()

	srv, captured, _ := newTestServer(t, http.StatusOK, completionBody)
	p := newTestProvider(t, srv.URL)

	_, err := p.Complete(context.Background(), &llm.CompletionRequest{
		Model:    "gpt-4o-mini",
		Messages: []llm.Message{llm.UserMessage("read", llm.Image{Data: []byte("hi"), MIMEType: "image/png"})},
	})
	require.NoError(t, err)

	requests := captured.all()
	require.Len(t, requests, 1)
	msgs := requests[0]["messages"].([]any)
	content, ok := msgs[0].(map[string]any)["content"].([]any)
	require.True(t, ok, "image messages are sent as content parts")
	require.Len(t, content, 2)

	image := content[0].(map[string]any)
	assert.Equal(t, "image_url", image["type"])
	assert.Equal(t, "data:image/png;base64,aGk=", image["image_url"].(map[string]any)["url"])
	assert.Equal(t, "text", content[1].(map[string]any)["type"])
}

func TestProvider_Complete_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		status    int
		body      string
		wantErr   error
		permanent bool
	}{
		{
			name:      "bad request",
			status:    http.StatusBadRequest,
			body:      `{"error":{"message":"bad model","type":"invalid_request_error"}}`,
			wantErr:   llm.ErrInvalidRequest,
			permanent: true,
		},
		{
			name:   "rate limited",
			status: http.StatusTooManyRequests,
			body:   `{"error":{"message":"slow down","type":"rate_limit"}}`,
		},
		{
			name:   "server error",
			status: http.StatusInternalServerError,
			body:   `{"error":{"message":"oops","type":"server_error"}}`,
		},
		{
			name:      "no choices",
			status:    http.StatusOK,
			body:      `{"id":"x","object":"chat.completion","model":"m","choices":[]}`,
			wantErr:   llm.ErrInvalidResponse,
			permanent: true,
		},
		{
			name:      "content filter",
			status:    http.StatusOK,
			body:      `{"id":"x","object":"chat.completion","model":"m","choices":[{"index":0,"message":{"role":"assistant","content":""},"finish_reason":"content_filter"}]}`,
			wantErr:   llm.ErrContentBlocked,
			permanent: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _, calls := newTestServer(t, tt.status, tt.body)
			p := newTestProvider(t, srv.URL)

			_, err := p.Complete(context.Background(), &llm.CompletionRequest{
				Model:    "m",
				Messages: []llm.Message{llm.UserMessage("q")},
			})

			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			assert.Equal(t, tt.permanent, llm.IsPermanent(err))
			assert.Equal(t, int32(1), calls.Load(), "SDK retries must be disabled")
		})
	}
}

func TestProvider_Complete_NoMessages(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, "http://127.0.0.1:1")
	_, err := p.Complete(context.Background(), &llm.CompletionRequest{Model: "m"})
	assert.ErrorIs(t, err, llm.ErrInvalidRequest)
}
