package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"

	"researchcopilot/pkg/embed"
	"researchcopilot/pkg/knowledge"
	"researchcopilot/pkg/utils"
)

// RAGChunk is one retrieved passage.
type RAGChunk struct {
	DocID   string  `json:"doc_id,omitempty"`
	ChunkID string  `json:"chunk_id,omitempty"`
	Text    string  `json:"text"`
	Score   float64 `json:"score"`
	Source  string  `json:"source,omitempty"`
}

// RAGRetrieveOutput is the rag_retrieve payload.
type RAGRetrieveOutput struct {
	Chunks    []RAGChunk `json:"chunks"`
	LatencyMS int64      `json:"latency_ms"`
}

type ragRetrieveInput struct {
	Q             string  `json:"q"`
	K             int     `json:"k"`
	IndexLocation string  `json:"index_location"`
	Collection    string  `json:"collection"`
	MinScore      float64 `json:"min_score"`
}

func ragInputSchema() *jsonschema.Schema {
	return objectSchema([]string{"q"}, map[string]*jsonschema.Schema{
		"q":              requiredString("Natural-language query."),
		"k":              intRange("Number of chunks to return.", 1, 20, intPtr(5)),
		"index_location": stringDefault("Directory holding the local index.", "chroma"),
		"collection":     stringDefault("Collection name inside the index.", "research_corpus"),
		"min_score":      numberRange("Minimum similarity score (0..1).", 0, 1, 0.2),
	})
}

func ragOutputSchema() *jsonschema.Schema {
	return objectSchema([]string{"chunks", "latency_ms"}, map[string]*jsonschema.Schema{
		"chunks": arrayOf(objectSchema([]string{"text", "score"}, map[string]*jsonschema.Schema{
			"doc_id":   typed("string"),
			"chunk_id": typed("string"),
			"text":     typed("string"),
			"score":    typed("number"),
			"source":   typed("string"),
		})),
		"latency_ms": typed("integer"),
	})
}

// RAGRetrieve embeds a query and returns the nearest chunks of the local corpus.
type RAGRetrieve struct {
	embedder  embed.Embedder
	openIndex func(location string) (ChunkIndex, error)
}

func newRAGRetrieve(deps *Deps) (Capability, error) {
	return &RAGRetrieve{embedder: deps.Embedder, openIndex: deps.OpenIndex}, nil
}

// OpenKnowledgeIndex opens the SQLite chunk index at location.
func OpenKnowledgeIndex(location string) (ChunkIndex, error) {
	store, err := knowledge.Open(location)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// Name returns the capability name.
func (r *RAGRetrieve) Name() string {
	return ToolRAGRetrieve
}

// Invoke scores every chunk, drops those under min_score and keeps the best k.
func (r *RAGRetrieve) Invoke(ctx context.Context, input map[string]any) (any, error) {
	if r.embedder == nil || r.openIndex == nil {
		return nil, permanent(ToolRAGRetrieve, fmt.Errorf("%w: retrieval needs an embedder and an index", ErrNotConfigured))
	}
	var in ragRetrieveInput
	if err := decodeInput(input, &in); err != nil {
		return nil, permanent(ToolRAGRetrieve, err)
	}
	in.Q = strings.TrimSpace(in.Q)
	if in.Q == "" {
		return nil, permanent(ToolRAGRetrieve, ErrEmptyQuery)
	}

	start := time.Now()
	vector, err := r.embedder.Embed(ctx, in.Q)
	if err != nil {
		return nil, transportError(ToolRAGRetrieve, fmt.Errorf("embed query: %w", err))
	}

	index, err := r.openIndex(in.IndexLocation)
	if err != nil {
		return nil, permanent(ToolRAGRetrieve, err)
	}
	defer func() { _ = index.Close() }()

	matches, err := index.Query(ctx, in.Collection, vector, 0)
	if err != nil {
		return nil, permanent(ToolRAGRetrieve, err)
	}

	return RAGRetrieveOutput{
		Chunks:    selectChunks(matches, in.MinScore, in.K),
		LatencyMS: time.Since(start).Milliseconds(),
	}, nil
}

// selectChunks clamps similarities into [0,1], applies the score threshold and
// then caps the result at k. matches must already be ordered best first.
func selectChunks(matches []knowledge.Match, minScore float64, k int) []RAGChunk {
	chunks := make([]RAGChunk, 0, min(len(matches), k))
	for _, m := range matches {
		score := max(0, min(1, m.Similarity))
		if score < minScore {
			continue
		}
		meta := m.Metadata
		chunkID := utils.FirstString(meta, "chunk_id", "id")
		if chunkID == "" {
			chunkID = m.ID
		}
		chunks = append(chunks, RAGChunk{
			DocID:   utils.FirstString(meta, "doc_id", "source", "path"),
			ChunkID: chunkID,
			Text:    strings.TrimSpace(m.Text),
			Score:   score,
			Source:  utils.FirstString(meta, "source", "path", "url"),
		})
		if len(chunks) == k {
			break
		}
	}
	return chunks
}
