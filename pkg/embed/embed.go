// Package embed converts query text into dense vectors for the retrieval index.
//
// Two backends are provided:
//
//   - [Ollama]: a local Ollama server (default model nomic-embed-text)
//   - [OpenAI]: the OpenAI embeddings API or any compatible provider
//
// The same model must be used at query time as at indexing time.
package embed

import (
	"context"
	"errors"
	"fmt"

	"researchcopilot/pkg/config"
)

// Embedder converts text into dense float32 vectors.
type Embedder interface {
	// Embed returns the embedding vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns embedding vectors for multiple texts, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Model returns the embedding model identifier.
	Model() string
}

// Common errors.
var (
	// ErrEmptyInput is returned when the input text is empty.
	ErrEmptyInput = errors.New("embed: empty input")
)

// New builds the embedder selected by cfg. Ollama falls back to the reasoning
// engine's base URL when no embedding URL is set.
func New(cfg *config.Config) (Embedder, error) {
	r := cfg.Retrieval
	switch r.EmbedProvider {
	case "", config.ProviderOllama:
		base := r.EmbedBaseURL
		if base == "" && cfg.LLM.Provider == config.ProviderOllama {
			base = cfg.LLM.BaseURL
		}
		return NewOllama(base, r.EmbedModel), nil
	case config.ProviderOpenAI:
		key := r.EmbedAPIKey
		if key == "" && cfg.LLM.Provider == config.ProviderOpenAI {
			key = cfg.LLM.APIKey
		}
		if key == "" {
			return nil, fmt.Errorf("embed provider %q requires %s", r.EmbedProvider, config.EnvOpenAIAPIKey)
		}
		return NewOpenAI(key, WithModel(r.EmbedModel), WithBaseURL(r.EmbedBaseURL)), nil
	default:
		return nil, fmt.Errorf("unknown embed provider %q", r.EmbedProvider)
	}
}

func float64sToFloat32s(in []float64) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v)
	}
	return out
}
