package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"researchcopilot/pkg/config"
)

func TestOllama_EmbedBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embed", r.URL.Path)
		var req struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "nomic-embed-text", req.Model)

		vecs := make([][]float32, len(req.Input))
		for i := range req.Input {
			vecs[i] = []float32{float32(i), 1}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"model": req.Model, "embeddings": vecs})
	}))
	defer srv.Close()

	e := NewOllama(srv.URL, "")
	assert.Equal(t, "nomic-embed-text", e.Model())

	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0, 1}, {1, 1}}, vecs)

	vec, err := e.Embed(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1}, vec)
}

func TestOllama_VectorCountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model":"m","embeddings":[[1,2]]}`))
	}))
	defer srv.Close()

	_, err := NewOllama(srv.URL, "m").EmbedBatch(context.Background(), []string{"a", "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "got 1 vectors for 2 inputs")
}

func TestEmptyInput(t *testing.T) {
	_, err := NewOllama("", "").Embed(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyInput)

	_, err = NewOpenAI("key").EmbedBatch(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestOpenAI_ReordersByIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"object": "list",
			"model": "text-embedding-3-small",
			"data": [
				{"object": "embedding", "index": 1, "embedding": [0.5, 0.25]},
				{"object": "embedding", "index": 0, "embedding": [1, 0]}
			],
			"usage": {"prompt_tokens": 2, "total_tokens": 2}
		}`))
	}))
	defer srv.Close()

	e := NewOpenAI("key", WithBaseURL(srv.URL), WithModel(""))
	assert.Equal(t, "text-embedding-3-small", e.Model())

	vecs, err := e.EmbedBatch(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {0.5, 0.25}}, vecs)
}

func TestNew_SelectsProvider(t *testing.T) {
	cfg := config.Default()
	e, err := New(&cfg)
	require.NoError(t, err)
	assert.IsType(t, &Ollama{}, e)
	assert.Equal(t, "nomic-embed-text", e.Model())

	cfg.Retrieval.EmbedProvider = config.ProviderOpenAI
	_, err = New(&cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), config.EnvOpenAIAPIKey)

	cfg.Retrieval.EmbedAPIKey = "key"
	cfg.Retrieval.EmbedModel = "text-embedding-3-large"
	e, err = New(&cfg)
	require.NoError(t, err)
	assert.IsType(t, &OpenAI{}, e)
	assert.Equal(t, "text-embedding-3-large", e.Model())

	cfg.Retrieval.EmbedProvider = "word2vec"
	_, err = New(&cfg)
	assert.Error(t, err)
}
