package model

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *openAIProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	p, err := newOpenAIProvider(&Config{
		APIKey:     "test-key",
		BaseURL:    srv.URL,
		Model:      "test-model",
		TimeoutSec: 5,
	})
	require.NoError(t, err)
	return p
}

func TestOpenAIComplete(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)

		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": `[{"action":"show_lists"}]`}},
			},
		})
	})

	out, err := p.Complete(context.Background(), "sys", "user")
	require.NoError(t, err)
	assert.Equal(t, `[{"action":"show_lists"}]`, out)
}

func TestOpenAIServerErrorIsTransient(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"overloaded","type":"server_error"}}`, http.StatusServiceUnavailable)
	})

	_, err := p.Complete(context.Background(), "sys", "user")
	require.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.Contains(t, err.Error(), "overloaded")
}

func TestOpenAIRateLimitIsTransient(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := p.Complete(context.Background(), "sys", "user")
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

func TestOpenAIAuthErrorIsNotTransient(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"bad key","type":"invalid_request_error"}}`, http.StatusUnauthorized)
	})

	_, err := p.Complete(context.Background(), "sys", "user")
	require.Error(t, err)
	assert.False(t, IsTransient(err))
}

func TestOpenAIRequiresAPIKey(t *testing.T) {
	_, err := newOpenAIProvider(&Config{})
	require.Error(t, err)
}
