// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClientWithConfig(&ClientConfig{
		BaseURL:    srv.URL + "/",
		Timeout:    5 * time.Second,
		RetryDelay: time.Millisecond,
	})
}

// =============================================================================
// MESSAGE TESTS
// =============================================================================

func TestMessageConstructors(t *testing.T) {
	assert.Equal(t, Message{Role: "user", Content: "Hello"}, NewUserMessage("Hello"))
	assert.Equal(t, Message{Role: "assistant", Content: "Hi"}, NewAssistantMessage("Hi"))
	assert.Equal(t, Message{Role: "system", Content: "Be brief"}, NewSystemMessage("Be brief"))
}

func TestChatResponse_TokensPerSecond(t *testing.T) {
	resp := &ChatResponse{EvalCount: 100, EvalDuration: int64(2 * time.Second)}
	assert.InDelta(t, 50.0, resp.TokensPerSecond(), 0.001)
	assert.Equal(t, 0.0, (&ChatResponse{}).TokensPerSecond())
}

func TestModelInfo_FormatSize(t *testing.T) {
	tests := []struct {
		size int64
		want string
	}{
		{512, "512 B"},
		{2048, "2.0 KB"},
		{5 * 1024 * 1024, "5.0 MB"},
		{4_700_000_000, "4.4 GB"},
	}
	for _, tt := range tests {
		m := &ModelInfo{Size: tt.size}
		assert.Equal(t, tt.want, m.FormatSize())
	}
}

// =============================================================================
// CLIENT TESTS
// =============================================================================

func TestNewClientWithConfig_Defaults(t *testing.T) {
	c := NewClientWithConfig(&ClientConfig{BaseURL: "http://example:11434/"})
	assert.Equal(t, "http://example:11434", c.Config().BaseURL)
	assert.Equal(t, "llama3.2", c.Config().DefaultModel)
	assert.Equal(t, 2, c.Config().MaxRetries)
	assert.Equal(t, 5*time.Minute, c.Config().Timeout)
}

func TestClient_Chat(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)

		var req ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llama3.2", req.Model)
		assert.False(t, req.Stream)
		require.Len(t, req.Messages, 2)
		require.NotNil(t, req.Options)
		assert.Equal(t, 0.2, req.Options.Temperature)

		_ = json.NewEncoder(w).Encode(ChatResponse{
			Model:   req.Model,
			Message: NewAssistantMessage("Hello back"),
			Done:    true,
		})
	})

	resp, err := client.Chat(context.Background(), "", []Message{
		NewSystemMessage("Be brief"),
		NewUserMessage("Hello"),
	}, &Options{Temperature: 0.2})
	require.NoError(t, err)
	assert.Equal(t, "Hello back", resp.Message.Content)
	assert.True(t, resp.Done)
}

func TestClient_ChatModelNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := client.Chat(context.Background(), "missing", nil, nil)
	assert.True(t, IsModelNotFound(err))
}

func TestClient_ChatRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(OllamaError{Error: "loading model"})
			return
		}
		_ = json.NewEncoder(w).Encode(ChatResponse{Message: NewAssistantMessage("ready"), Done: true})
	})

	resp, err := client.Chat(context.Background(), "m", []Message{NewUserMessage("hi")}, nil)
	require.NoError(t, err)
	assert.Equal(t, "ready", resp.Message.Content)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_ChatGivesUpAfterRetries(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(OllamaError{Error: "out of memory"})
	})

	_, err := client.Chat(context.Background(), "m", nil, nil)
	require.Error(t, err)
	assert.Equal(t, "out of memory", err.Error())
	assert.Equal(t, int32(3), calls.Load(), "first attempt plus two retries")
}

func TestClient_ChatBadRequestNotRetried(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	})

	_, err := client.Chat(context.Background(), "m", nil, nil)
	var ce *ClientError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ErrTypeInvalidResponse, ce.Type)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_NotRunning(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := NewClientWithConfig(&ClientConfig{BaseURL: url, MaxRetries: -1})
	err := client.CheckRunning(context.Background())
	assert.True(t, IsNotRunning(err))

	_, err = client.Chat(context.Background(), "m", nil, nil)
	assert.True(t, IsNotRunning(err))
}

func TestClient_Timeout(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := client.Chat(ctx, "m", nil, nil)
	assert.True(t, IsTimeout(err))
}

func TestClient_ListModels(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/tags", r.URL.Path)
		_ = json.NewEncoder(w).Encode(ListModelsResponse{Models: []ModelInfo{
			{Name: "llama3.2:latest", Size: 2_000_000_000},
			{Name: "qwen2.5:7b"},
		}})
	})

	models, err := client.ListModels(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 2)
	assert.Equal(t, "llama3.2:latest", models[0].Name)
}

func TestClient_CheckRunning(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("Ollama is running"))
	})
	assert.NoError(t, client.CheckRunning(context.Background()))
}
