package embed

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"
)

const (
	ollamaDefaultHost  = "http://localhost:11434"
	ollamaDefaultModel = "nomic-embed-text"
)

// Ollama implements [Embedder] against a local Ollama server.
type Ollama struct {
	client *api.Client
	model  string
}

var _ Embedder = (*Ollama)(nil)

// NewOllama creates an Ollama embedder. An unparsable host falls back to localhost.
func NewOllama(host, model string) *Ollama {
	if host == "" {
		host = ollamaDefaultHost
	}
	base, err := url.Parse(host)
	if err != nil || base.Host == "" {
		base, _ = url.Parse(ollamaDefaultHost)
	}
	if model == "" {
		model = ollamaDefaultModel
	}
	return &Ollama{client: api.NewClient(base, http.DefaultClient), model: model}
}

// Embed returns the embedding for a single text.
func (o *Ollama) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyInput
	}
	vecs, err := o.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in one request.
func (o *Ollama) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}
	resp, err := o.client.Embed(ctx, &api.EmbedRequest{Model: o.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("ollama embed (%s): %w", o.model, err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama embed (%s): got %d vectors for %d inputs", o.model, len(resp.Embeddings), len(texts))
	}
	return resp.Embeddings, nil
}

// Model returns the Ollama model name.
func (o *Ollama) Model() string {
	return o.model
}
