package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CaseChat/internal/session"
)

func TestCompleteReturnsAssistantMessage(t *testing.T) {
	var gotReq Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"model": "gpt-3.5-turbo",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "Hello doctor!"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 3, "total_tokens": 15}
		}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key", time.Second, nil)
	msg, err := c.Complete(context.Background(), Request{
		Model:       "gpt-3.5-turbo",
		Temperature: 0.7,
		Messages: []session.Message{
			{Role: session.RoleSystem, Content: "sim"},
			{Role: session.RoleUser, Content: "55M cough+fever"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, session.RoleAssistant, msg.Role)
	assert.Equal(t, "Hello doctor!", msg.Content)

	// The whole history is replayed verbatim.
	require.Len(t, gotReq.Messages, 2)
	assert.Equal(t, "gpt-3.5-turbo", gotReq.Model)
	assert.InDelta(t, 0.7, gotReq.Temperature, 1e-9)
}

func TestCompleteAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error": {"message": "rate limit exceeded", "type": "rate_limit_error"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key", time.Second, nil)
	_, err := c.Complete(context.Background(), Request{Model: "gpt-3.5-turbo"})

	var gerr *Error
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, http.StatusTooManyRequests, gerr.Status)
	assert.Equal(t, "rate limit exceeded", gerr.Message)
	assert.NotEmpty(t, gerr.Body)
}

func TestCompleteEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id": "chatcmpl-1", "choices": []}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key", time.Second, nil)
	_, err := c.Complete(context.Background(), Request{Model: "gpt-3.5-turbo"})

	var gerr *Error
	require.ErrorAs(t, err, &gerr)
	assert.Contains(t, gerr.Message, "empty response")
}

func TestCompleteNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	c := NewClient(srv.URL, "test-key", time.Second, nil)
	_, err := c.Complete(context.Background(), Request{Model: "gpt-3.5-turbo"})

	var gerr *Error
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, 0, gerr.Status)
}
