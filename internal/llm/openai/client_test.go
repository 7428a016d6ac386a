package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/docextract/internal/common"
	"github.com/joseph-ayodele/docextract/internal/llm"
)

func completion(content string) []byte {
	b, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{{"message": map[string]any{"role": "assistant", "content": content}}},
	})
	return b
}

func TestClient_ExtractFields(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write(completion(`{"receipt_number": "12345", "total_amount": "$325.00"}`))
	}))
	defer srv.Close()

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	c := NewClient(Config{APIKey: "sk-secret", BaseURL: srv.URL + "/v1/"}, logger)

	fields, raw, err := c.ExtractFields(context.Background(), llm.ExtractRequest{OCRText: "Receipt #12345", SourceName: "r.png"})
	require.NoError(t, err)
	assert.Equal(t, llm.Fields{"receipt_number": "12345", "total_amount": "$325.00"}, fields)
	assert.JSONEq(t, `{"receipt_number": "12345", "total_amount": "$325.00"}`, string(raw))

	assert.Equal(t, "llama-3.3-70b", got["model"])
	assert.Equal(t, map[string]any{"type": "json_object"}, got["response_format"])
	msgs := got["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, llm.SystemPrompt, msgs[0].(map[string]any)["content"])

	assert.NotContains(t, logs.String(), "sk-secret")
}

func TestClient_NonObjectIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(completion(`["not", "an", "object"]`))
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "k", BaseURL: srv.URL}, nil)
	fields, _, err := c.ExtractFields(context.Background(), llm.ExtractRequest{OCRText: "x"})
	assert.ErrorIs(t, err, common.ErrExtraction)
	assert.Nil(t, fields)

	contained := llm.Extract(context.Background(), c, "x")
	assert.NotEmpty(t, contained[llm.ErrorKey])
}

func TestClient_ServerErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "k", BaseURL: srv.URL}, nil)
	_, _, err := c.ExtractFields(context.Background(), llm.ExtractRequest{OCRText: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrExtraction)
	assert.True(t, common.IsRetryable(err))
}

func TestClient_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "k", BaseURL: srv.URL, Timeout: 50 * time.Millisecond}, nil)
	_, _, err := c.ExtractFields(context.Background(), llm.ExtractRequest{OCRText: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_MissingKey(t *testing.T) {
	// the key comes from Config only, never from the process environment
	t.Setenv("LLM_API_KEY", "sk-from-env")
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, nil)
	_, _, err := c.ExtractFields(context.Background(), llm.ExtractRequest{OCRText: "x"})
	assert.ErrorIs(t, err, common.ErrExtraction)
	assert.Zero(t, calls.Load())
}

func TestConfig_LogValueRedacts(t *testing.T) {
	var buf bytes.Buffer
	slog.New(slog.NewJSONHandler(&buf, nil)).Info("cfg", "llm", Config{APIKey: "sk-secret", Model: "m"})
	assert.NotContains(t, buf.String(), "sk-secret")
	assert.Contains(t, buf.String(), `"api_key_set":true`)
}
