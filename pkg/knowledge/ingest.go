package knowledge

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"researchcopilot/pkg/embed"
)

// Chunking defaults used by the index command.
const (
	DefaultChunkSize    = 1200
	DefaultChunkOverlap = 200
	embedBatchSize      = 32
)

// indexedExtensions lists the plain-text files IndexDirectory reads.
//
//nolint:gochecknoglobals // read-only lookup table
var indexedExtensions = map[string]bool{".txt": true, ".md": true, ".markdown": true, ".rst": true}

// IngestStats summarizes one IndexDirectory run.
type IngestStats struct {
	Files  int
	Chunks int
}

// ChunkText splits text into windows of at most size runes that overlap by
// overlap runes. Windows end on a paragraph or line break when one falls in
// the second half of the window.
func ChunkText(text string, size, overlap int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	runes := []rune(strings.TrimSpace(text))
	var chunks []string
	for start := 0; start < len(runes); {
		end := min(start+size, len(runes))
		if end < len(runes) {
			if cut := lastBreak(runes[start:end]); cut > size/2 {
				end = start + cut
			}
		}
		if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end == len(runes) {
			break
		}
		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}

func lastBreak(window []rune) int {
	for i := len(window) - 1; i > 0; i-- {
		if window[i] == '\n' {
			return i
		}
	}
	return -1
}

// IndexDirectory chunks every text file under dir, embeds the chunks and upserts
// them into collection. Chunk ids are "<relative path>#<n>" so re-indexing a
// file replaces its chunks.
func IndexDirectory(ctx context.Context, store *Store, embedder embed.Embedder, collection, dir string) (IngestStats, error) {
	var stats IngestStats
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !indexedExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			rel = path
		}
		rel = filepath.ToSlash(rel)

		texts := ChunkText(string(data), DefaultChunkSize, DefaultChunkOverlap)
		if len(texts) == 0 {
			return nil
		}
		chunks, err := embedChunks(ctx, embedder, collection, rel, texts)
		if err != nil {
			return err
		}
		if err := store.Upsert(ctx, chunks); err != nil {
			return err
		}
		stats.Files++
		stats.Chunks += len(chunks)
		store.logger.Info("indexed %s (%d chunks)", rel, len(chunks))
		return nil
	})
	if err != nil {
		return stats, fmt.Errorf("index %s: %w", dir, err)
	}
	return stats, nil
}

func embedChunks(ctx context.Context, embedder embed.Embedder, collection, docID string, texts []string) ([]Chunk, error) {
	chunks := make([]Chunk, 0, len(texts))
	for start := 0; start < len(texts); start += embedBatchSize {
		batch := texts[start:min(start+embedBatchSize, len(texts))]
		vectors, err := embedder.EmbedBatch(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("failed to embed %s: %w", docID, err)
		}
		if len(vectors) != len(batch) {
			return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(batch))
		}
		for i, text := range batch {
			n := start + i
			chunks = append(chunks, Chunk{
				ID:         docID + "#" + strconv.Itoa(n),
				Collection: collection,
				Text:       text,
				Metadata: map[string]any{
					"doc_id":   docID,
					"chunk_id": strconv.Itoa(n),
					"source":   docID,
					"model":    embedder.Model(),
				},
				Embedding: vectors[i],
			})
		}
	}
	return chunks, nil
}
