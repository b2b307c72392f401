package embedder

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

func newTestProvider(t *testing.T, handler http.HandlerFunc) *OllamaProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewOllamaProvider(config.EmbedderConfig{
		Host:       srv.URL,
		Model:      "nomic-embed-text",
		Dimension:  4,
		Timeout:    5 * time.Second,
		MaxRetries: 3,
	})
}

func embedHandler(t *testing.T, dim int, calls *int32) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			atomic.AddInt32(calls, 1)
		}
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.NotEmpty(t, req.Prompt)

		vec := make([]float32, dim)
		for i := range vec {
			vec[i] = float32(i)
		}
		json.NewEncoder(w).Encode(embedResponse{Embedding: vec})
	}
}

func TestEmbedOne(t *testing.T) {
	p := newTestProvider(t, embedHandler(t, 4, nil))

	vec, err := p.EmbedOne(context.Background(), "hello")
	require.NoError(t, err)
	assert.Len(t, vec, 4)
	assert.Equal(t, 4, p.Dimension())
}

func TestEmbedBatchPreservesOrder(t *testing.T) {
	var calls int32
	p := newTestProvider(t, embedHandler(t, 4, &calls))

	vectors, err := p.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Len(t, vectors, 3)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestEmbedDimensionMismatch(t *testing.T) {
	p := newTestProvider(t, embedHandler(t, 7, nil))

	_, err := p.EmbedOne(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimension mismatch")
}

func TestEmbedTruncatesOversizeInput(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.LessOrEqual(t, len([]rune(req.Prompt)), maxInputRunes)
		json.NewEncoder(w).Encode(embedResponse{Embedding: []float32{1, 2, 3, 4}})
	})

	long := make([]rune, maxInputRunes*2)
	for i := range long {
		long[i] = 'x'
	}
	_, err := p.EmbedOne(context.Background(), string(long))
	require.NoError(t, err)
}

func TestEmbedBackendError(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	})

	_, err := p.EmbedOne(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}
