package llm

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

	"github.com/munbongshin/RAGSEARCH/pkg/config"
)

func testConfig(url string) config.LLMConfig {
	return config.LLMConfig{
		DefaultBackend: "ollama",
		OllamaHost:     url,
		GroqAPIKey:     "gsk_test",
		GroqBaseURL:    url,
		OpenAIBaseURL:  url,
		MaxTokens:      512,
		Temperature:    0.2,
		ReadTimeout:    10 * time.Second,
	}
}

func TestOpenAICompatChat(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")

		var req chatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llama-3.3-70b", req.Model)
		assert.Equal(t, 512, req.MaxTokens)

		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "forty-two"}},
			},
		})
	}))
	defer srv.Close()

	p := NewGroqProvider(testConfig(srv.URL))
	out, err := p.Chat(context.Background(), ChatRequest{
		Model:    "llama-3.3-70b",
		Messages: []Message{{Role: "user", Content: "answer?"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "forty-two", out)
	assert.Equal(t, "Bearer gsk_test", gotAuth)
}

func TestOpenAICompatThrottleHintRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":{"message":"Rate limit reached. Please try again in 0.01s."}}`))
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "after retry"}},
			},
		})
	}))
	defer srv.Close()

	p := NewGroqProvider(testConfig(srv.URL))
	out, err := p.Chat(context.Background(), ChatRequest{
		Model:    "m",
		Messages: []Message{{Role: "user", Content: "q"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "after retry", out)
	assert.Equal(t, int32(2), calls.Load())
}

func TestOpenAICompatThrottleExhaustion(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"Rate limit reached. Please try again in 0.01s."}}`))
	}))
	defer srv.Close()

	p := NewGroqProvider(testConfig(srv.URL))
	_, err := p.Chat(context.Background(), ChatRequest{
		Model:    "m",
		Messages: []Message{{Role: "user", Content: "q"}},
	})

	var rateLimited *RateLimitError
	require.ErrorAs(t, err, &rateLimited)
	assert.Equal(t, "Groq", rateLimited.Backend)
	assert.Equal(t, throttleRetries+1, rateLimited.Attempts)
	assert.Equal(t, int32(throttleRetries+1), calls.Load())
}

func TestOpenAICompatThrottleRespectsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`try again in 5m`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	p := NewGroqProvider(testConfig(srv.URL))
	_, err := p.Chat(ctx, ChatRequest{Model: "m", Messages: []Message{{Role: "user", Content: "q"}}})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestOpenAICompatAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"message": "model not found"},
		})
	}))
	defer srv.Close()

	p := NewOpenAIProvider(testConfig(srv.URL))
	_, err := p.Chat(context.Background(), ChatRequest{Model: "nope"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model not found")
}

func TestOpenAICompatModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/models", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]string{{"id": "llama-3.3-70b"}, {"id": "mixtral-8x7b"}},
		})
	}))
	defer srv.Close()

	p := NewGroqProvider(testConfig(srv.URL))
	models, err := p.Models(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"llama-3.3-70b", "mixtral-8x7b"}, models)
}

func TestOllamaChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat", r.URL.Path)

		var req ollamaChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.False(t, req.Stream)
		assert.Equal(t, "gemma2", req.Model)

		json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]string{"role": "assistant", "content": "local answer"},
		})
	}))
	defer srv.Close()

	p := NewOllamaProvider(testConfig(srv.URL))
	out, err := p.Chat(context.Background(), ChatRequest{
		Model:    "gemma2",
		Messages: []Message{{Role: "user", Content: "q"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "local answer", out)
}

func TestOllamaModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/tags", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"models": []map[string]string{{"name": "gemma2:latest"}},
		})
	}))
	defer srv.Close()

	p := NewOllamaProvider(testConfig(srv.URL))
	models, err := p.Models(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"gemma2:latest"}, models)
}

func TestManagerResolution(t *testing.T) {
	cfg := testConfig("http://localhost:11434")
	m := NewManager(cfg)

	p, err := m.Get("GROQ")
	require.NoError(t, err)
	assert.Equal(t, "Groq", p.Name())

	p, err = m.Get("")
	require.NoError(t, err)
	assert.Equal(t, "Ollama", p.Name())

	_, err = m.Get("claude")
	require.Error(t, err)

	assert.ElementsMatch(t, []string{"Groq", "Ollama", "OpenAI"}, m.Names())
}

func TestManagerSkipsUnconfigured(t *testing.T) {
	cfg := testConfig("http://localhost:11434")
	cfg.GroqAPIKey = ""
	cfg.OpenAIBaseURL = ""
	m := NewManager(cfg)

	assert.Equal(t, []string{"Ollama"}, m.Names())
	_, err := m.Get("groq")
	require.Error(t, err)
}
