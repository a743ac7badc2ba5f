package embedders

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ohadalab/sycora/pkg/config"
)

func newTestEmbedder(t *testing.T, baseURL string) *OpenAIEmbedder {
	t.Helper()
	t.Setenv("TEST_EMBED_KEY", "sk-test")

	embedder, err := NewOpenAIEmbedder("openai", &config.ProviderConfig{
		Type:      config.ProviderTypeOpenAI,
		APIKeyEnv: "TEST_EMBED_KEY",
		BaseURL:   baseURL,
		Models:    config.ModelsConfig{Embedding: "text-embedding-3-small"},
	})
	require.NoError(t, err)
	return embedder
}

func TestOpenAIEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req openAIEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "text-embedding-3-small", req.Model)
		assert.Equal(t, 1024, req.Dimensions, "requested width matches the configured dimension")
		require.Len(t, req.Input, 1)
		assert.Equal(t, "bilan comptable", req.Input[0])

		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"embedding": []float32{0.1, 0.2, 0.3}, "index": 0},
			},
		})
	}))
	defer srv.Close()

	embedder := newTestEmbedder(t, srv.URL)
	vector, err := embedder.Embed(context.Background(), "bilan comptable")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vector)
}

func TestOpenAIEmbedTruncatesLongInput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openAIEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "un deux", req.Input[0])

		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"embedding": []float32{1}, "index": 0}},
		})
	}))
	defer srv.Close()

	embedder := newTestEmbedder(t, srv.URL)
	embedder.maxWords = 2

	_, err := embedder.Embed(context.Background(), "un deux trois quatre")
	require.NoError(t, err)
}

func TestOpenAIEmbedAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "rate limited", "type": "rate_limit_error"},
		})
	}))
	defer srv.Close()

	embedder := newTestEmbedder(t, srv.URL)
	_, err := embedder.Embed(context.Background(), "bilan")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestOpenAIEmbedEmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"data": []any{}})
	}))
	defer srv.Close()

	embedder := newTestEmbedder(t, srv.URL)
	_, err := embedder.Embed(context.Background(), "bilan")
	assert.Error(t, err)
}
