package embeddings

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
	"go.uber.org/zap"

	"talent-match/internal/config"
)

var fastRetry = RetryConfig{MaxRetries: 3, InitialWait: time.Millisecond, MaxWait: 5 * time.Millisecond, Multiplier: 2}

func ollamaServer(t *testing.T, failures int32, status int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if n <= failures {
			http.Error(w, "busy", status)
			return
		}
		assert.Equal(t, "/api/embed", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{"embeddings": [][]float32{{0.1, 0.2, 0.3}}})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestResilientRetriesTransientErrors(t *testing.T) {
	srv, calls := ollamaServer(t, 2, http.StatusServiceUnavailable)
	e := NewResilient(NewOllamaClient(srv.URL, "nomic-embed-text", time.Second), fastRetry, 0, 0, zap.NewNop())

	vec, err := e.Embed(context.Background(), "go developer")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, "ollama:nomic-embed-text", e.ModelVersion())
}

func TestResilientGivesUp(t *testing.T) {
	srv, calls := ollamaServer(t, 100, http.StatusTooManyRequests)
	e := NewResilient(NewOllamaClient(srv.URL, "m", time.Second), fastRetry, 0, 0, zap.NewNop())

	_, err := e.Embed(context.Background(), "go developer")
	require.ErrorIs(t, err, ErrEmbeddingUnavailable)
	assert.Equal(t, int32(fastRetry.MaxRetries+1), calls.Load())
}

func TestResilientDoesNotRetryClientErrors(t *testing.T) {
	srv, calls := ollamaServer(t, 100, http.StatusBadRequest)
	e := NewResilient(NewOllamaClient(srv.URL, "m", time.Second), fastRetry, 0, 0, zap.NewNop())

	_, err := e.Embed(context.Background(), "go developer")
	require.ErrorIs(t, err, ErrEmbeddingUnavailable)
	assert.Equal(t, int32(1), calls.Load())
}

func TestOpenAIClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]any{"data": []map[string]any{{"embedding": []float32{1, 0}}}})
	}))
	defer srv.Close()

	c := NewOpenAIClient(srv.URL, "text-embedding-3-small", "sk-test", time.Second)
	vec, err := c.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0}, vec)
}

func TestHashEmbedder(t *testing.T) {
	h := NewHashEmbedder(64)
	ctx := context.Background()

	a, err := h.Embed(ctx, "Senior Go engineer, Kubernetes")
	require.NoError(t, err)
	b, _ := h.Embed(ctx, "senior   go engineer kubernetes")
	c, _ := h.Embed(ctx, "pastry chef, french cuisine")

	assert.Len(t, a, 64)
	assert.Equal(t, a, b)
	assert.InDelta(t, 1.0, CosineSimilarity(a, b), 1e-6)
	assert.Greater(t, CosineSimilarity(a, b), CosineSimilarity(a, c))
	assert.Equal(t, "hash-v1-64", h.ModelVersion())
}

func TestVectorHelpers(t *testing.T) {
	v := []float32{0.5, -1.25, 3}
	assert.Equal(t, v, DeserializeEmbedding(SerializeEmbedding(v)))
	assert.Nil(t, DeserializeEmbedding([]byte{1, 2, 3}))

	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 1}, []float32{2, 2}), 1e-6)
	assert.Zero(t, CosineSimilarity([]float32{1}, []float32{1, 0}))
	assert.Zero(t, CosineSimilarity([]float32{0, 0}, []float32{1, 0}))
	assert.True(t, Equal([]float32{1, 2}, []float32{1, 2}))
	assert.False(t, Equal([]float32{1, 2}, []float32{1}))
}

func TestNewEmbedderProviders(t *testing.T) {
	ctx := context.Background()

	e, err := NewEmbedder(ctx, config.EmbeddingConfig{Provider: "hash", Dimensions: 32}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "hash-v1-32", e.ModelVersion())

	_, err = NewEmbedder(ctx, config.EmbeddingConfig{Provider: "openai"}, zap.NewNop())
	assert.Error(t, err)

	_, err = NewEmbedder(ctx, config.EmbeddingConfig{Provider: "word2vec"}, zap.NewNop())
	assert.Error(t, err)
}
