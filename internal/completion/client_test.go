package completion

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seiko-companion/internal/config"
	"seiko-companion/internal/persona"
)

func fakeAPI(t *testing.T, handler func(w http.ResponseWriter, req openai.ChatCompletionRequest)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		var req openai.ChatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		handler(w, req)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeReply(w http.ResponseWriter, content string) {
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":     "cmpl-1",
		"object": "chat.completion",
		"model":  "test-model",
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]any{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
	})
}

func newTestClient(srv *httptest.Server, timeout time.Duration) *Client {
	cfg := config.Config{
		CompletionAPIKey:  "test-key",
		CompletionBaseURL: srv.URL + "/v1/",
		Model:             "test-model",
		CompletionTimeout: timeout,
	}
	return New(cfg, persona.Default())
}

func TestComplete_Success(t *testing.T) {
	var seen openai.ChatCompletionRequest
	srv := fakeAPI(t, func(w http.ResponseWriter, req openai.ChatCompletionRequest) {
		seen = req
		writeReply(w, "  hi there  ")
	})

	reply, err := newTestClient(srv, 0).Complete(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "hi there", reply)

	assert.Equal(t, "test-model", seen.Model)
	require.Len(t, seen.Messages, 2)
	assert.Equal(t, openai.ChatMessageRoleSystem, seen.Messages[0].Role)
	assert.Equal(t, persona.Default().System, seen.Messages[0].Content)
	assert.Equal(t, openai.ChatMessageRoleUser, seen.Messages[1].Role)
	assert.Equal(t, "hello", seen.Messages[1].Content)
	assert.Equal(t, persona.Default().Style.MaxTokens, seen.MaxTokens)
}

func TestComplete_SendsBearerKey(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		writeReply(w, "ok")
	}))
	defer srv.Close()

	_, err := newTestClient(srv, 0).Complete(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "Bearer test-key", auth)
}

func TestComplete_Failures(t *testing.T) {
	tests := []struct {
		name      string
		handler   func(w http.ResponseWriter, req openai.ChatCompletionRequest)
		malformed bool
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, _ openai.ChatCompletionRequest) {
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
			},
		},
		{
			name: "unauthorized",
			handler: func(w http.ResponseWriter, _ openai.ChatCompletionRequest) {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":{"message":"invalid api key"}}`))
			},
		},
		{
			name: "not json",
			handler: func(w http.ResponseWriter, _ openai.ChatCompletionRequest) {
				_, _ = w.Write([]byte(`<html>gateway</html>`))
			},
		},
		{
			name: "no choices",
			handler: func(w http.ResponseWriter, _ openai.ChatCompletionRequest) {
				_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","choices":[]}`))
			},
			malformed: true,
		},
		{
			name: "blank content",
			handler: func(w http.ResponseWriter, _ openai.ChatCompletionRequest) {
				writeReply(w, " \n ")
			},
			malformed: true,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := fakeAPI(t, tc.handler)
			_, err := newTestClient(srv, 0).Complete(context.Background(), "hello")
			require.Error(t, err)
			assert.Equal(t, tc.malformed, errors.Is(err, ErrMalformedResponse))
		})
	}
}

func TestComplete_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := fakeAPI(t, func(w http.ResponseWriter, _ openai.ChatCompletionRequest) {
		<-release
		writeReply(w, "too late")
	})
	defer close(release)

	_, err := newTestClient(srv, 20*time.Millisecond).Complete(context.Background(), "hello")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNew_ClientCredentials(t *testing.T) {
	var tokenCalls int
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls++
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"gateway-token","token_type":"bearer","expires_in":3600}`))
	})
	var auth string
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		writeReply(w, "ok")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(config.Config{
		CompletionBaseURL:      srv.URL + "/v1",
		CompletionTokenURL:     srv.URL + "/oauth/token",
		CompletionClientID:     "seiko",
		CompletionClientSecret: "secret",
		Model:                  "test-model",
	}, persona.Default())

	for i := 0; i < 2; i++ {
		reply, err := c.Complete(context.Background(), "hello")
		require.NoError(t, err)
		assert.Equal(t, "ok", reply)
	}
	assert.Equal(t, "Bearer gateway-token", auth)
	assert.Equal(t, 1, tokenCalls)
}

func TestFunc(t *testing.T) {
	f := Func(func(_ context.Context, prompt string) (string, error) {
		return strings.ToUpper(prompt), nil
	})
	got, err := f.Complete(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "HI", got)
}
