package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockdesk/backend/internal/storage/models"
	"github.com/stockdesk/backend/pkg/config"
)

type recorderFunc func(ctx context.Context, usage Usage) error

func (f recorderFunc) RecordUsage(ctx context.Context, usage Usage) error {
	return f(ctx, usage)
}

type chatRequest struct {
	Model     string `json:"model"`
	MaxTokens int    `json:"max_tokens"`
	Messages  []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func completionBody(content string) string {
	body, _ := json.Marshal(map[string]any{
		"id":     "cmpl-1",
		"object": "chat.completion",
		"model":  "gpt-test",
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]string{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
		"usage": map[string]int{"prompt_tokens": 12, "completion_tokens": 5, "total_tokens": 17},
	})
	return string(body)
}

func newTestClient(t *testing.T, handler http.HandlerFunc, recorder UsageRecorder, opts Options) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	opts.APIKey = "sk-test"
	opts.Model = "gpt-test"
	opts.BaseURL = server.URL + "/v1"
	opts.RetryDelay = time.Millisecond
	if opts.Timeout == 0 {
		opts.Timeout = 5 * time.Second
	}

	c, err := NewClient(opts, recorder)
	require.NoError(t, err)
	return c
}

func TestNewClient_Misconfigured(t *testing.T) {
	_, err := NewClient(Options{Model: "gpt-test"}, nil)
	assert.ErrorIs(t, err, config.ErrMisconfigured)

	_, err = NewClient(Options{APIKey: "sk-test"}, nil)
	assert.ErrorIs(t, err, config.ErrMisconfigured)
}

func TestComplete_SendsWindowedHistoryAndRecordsUsage(t *testing.T) {
	var got chatRequest
	var recorded Usage

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(completionBody("Còn 42 cái.")))
	}, recorderFunc(func(_ context.Context, u Usage) error {
		recorded = u
		return nil
	}), Options{HistoryWindow: 2, MaxTokens: 100})

	history := []models.Message{
		{Role: models.RoleUser, Content: "q1"},
		{Role: models.RoleAssistant, Content: "a1"},
		{Role: models.RoleUser, Content: "q2"},
		{Role: models.RoleAssistant, Content: "a2"},
	}
	resp, err := c.Complete(context.Background(), CompletionRequest{
		SystemPrompt: "sys",
		UserPrompt:   "q3",
		History:      history,
	})
	require.NoError(t, err)

	assert.Equal(t, "Còn 42 cái.", resp.Content)
	assert.Equal(t, 12, resp.Usage.PromptTokens)
	assert.Equal(t, 5, recorded.CompletionTokens)
	assert.Equal(t, "gpt-test", recorded.Model)

	assert.Equal(t, 100, got.MaxTokens)
	require.Len(t, got.Messages, 4)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "q2", got.Messages[1].Content)
	assert.Equal(t, "assistant", got.Messages[2].Role)
	assert.Equal(t, "q3", got.Messages[3].Content)
}

func TestComplete_RetriesServerErrors(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
			return
		}
		w.Write([]byte(completionBody("ok")))
	}, nil, Options{MaxAttempts: 2})

	resp, err := c.Complete(context.Background(), CompletionRequest{SystemPrompt: "s", UserPrompt: "u"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestComplete_ProviderCallsBoundedByMaxAttempts(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
	}, nil, Options{MaxAttempts: 3})

	_, err := c.Complete(context.Background(), CompletionRequest{SystemPrompt: "s", UserPrompt: "u"})
	assert.ErrorIs(t, err, ErrModelUnavailable)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestComplete_ClientErrorIsNotRetried(t *testing.T) {
	var calls int32
	recorded := false
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	}, recorderFunc(func(context.Context, Usage) error {
		recorded = true
		return nil
	}), Options{MaxAttempts: 3})

	_, err := c.Complete(context.Background(), CompletionRequest{SystemPrompt: "s", UserPrompt: "u"})
	assert.ErrorIs(t, err, ErrModelUnavailable)
	assert.NotContains(t, err.Error(), "bad key")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.False(t, recorded)
}

func TestComplete_EmptyContentIsUnavailable(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(completionBody("   ")))
	}, nil, Options{})

	_, err := c.Complete(context.Background(), CompletionRequest{SystemPrompt: "s", UserPrompt: "u"})
	assert.ErrorIs(t, err, ErrModelUnavailable)
}

func TestComplete_EmptyContentStillRecordsUsage(t *testing.T) {
	var calls, records int32
	var recorded Usage
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(completionBody("   ")))
	}, recorderFunc(func(_ context.Context, u Usage) error {
		atomic.AddInt32(&records, 1)
		recorded = u
		return nil
	}), Options{MaxAttempts: 1})

	_, err := c.Complete(context.Background(), CompletionRequest{SystemPrompt: "s", UserPrompt: "u"})
	assert.ErrorIs(t, err, ErrModelUnavailable)
	assert.Equal(t, atomic.LoadInt32(&calls), atomic.LoadInt32(&records))
	assert.Equal(t, int32(1), atomic.LoadInt32(&records))
	assert.Equal(t, 17, recorded.TotalTokens)
	assert.Equal(t, "gpt-test", recorded.Model)
}

func TestComplete_Timeout(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}, nil, Options{Timeout: 50 * time.Millisecond})

	_, err := c.Complete(context.Background(), CompletionRequest{SystemPrompt: "s", UserPrompt: "u"})
	assert.ErrorIs(t, err, ErrModelUnavailable)
}

func TestComplete_RecorderFailureKeepsAnswer(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(completionBody("ok")))
	}, recorderFunc(func(context.Context, Usage) error {
		return errors.New("db down")
	}), Options{})

	resp, err := c.Complete(context.Background(), CompletionRequest{SystemPrompt: "s", UserPrompt: "u"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
}
