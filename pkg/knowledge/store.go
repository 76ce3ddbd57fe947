// Package knowledge stores embedded text chunks of the local research corpus
// and answers nearest-neighbour queries over them.
package knowledge

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	_ "modernc.org/sqlite" // SQLite driver

	"researchcopilot/pkg/logx"
)

// IndexFile is the database file name inside an index location.
const IndexFile = "index.db"

// ErrIndexNotFound is returned by Open when the location holds no index.
var ErrIndexNotFound = errors.New("retrieval index not found")

// Chunk is one stored passage with its embedding.
//
//nolint:govet // fieldalignment: Logical grouping preferred over memory optimization
type Chunk struct {
	ID         string
	Collection string
	Text       string
	Metadata   map[string]any
	Embedding  []float32
}

// Match is a chunk returned by Query with its cosine similarity to the query vector.
type Match struct {
	ID         string
	Text       string
	Metadata   map[string]any
	Similarity float64
}

// Store is a chunk index backed by a single SQLite file.
type Store struct {
	db       *sql.DB
	location string
	logger   *logx.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS chunks (
	collection TEXT NOT NULL,
	id         TEXT NOT NULL,
	text       TEXT NOT NULL,
	metadata   TEXT NOT NULL DEFAULT '{}',
	embedding  BLOB NOT NULL,
	dim        INTEGER NOT NULL,
	indexed_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS idx_chunks_collection ON chunks(collection);
`

// Open opens an existing index at location.
func Open(location string) (*Store, error) {
	path := filepath.Join(location, IndexFile)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w at %s", ErrIndexNotFound, location)
		}
		return nil, fmt.Errorf("failed to stat index: %w", err)
	}
	return openDB(location, path)
}

// Create opens the index at location, creating the directory and schema when missing.
func Create(location string) (*Store, error) {
	if err := os.MkdirAll(location, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}
	return openDB(location, filepath.Join(location, IndexFile))
}

func openDB(location, path string) (*Store, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf(
		"file:%s?_journal_mode=WAL&_busy_timeout=5000",
		path,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping index: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize index schema: %w", err)
	}

	// SQLite only supports one writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return &Store{db: db, location: location, logger: logx.NewLogger("knowledge")}, nil
}

// Location returns the directory the index lives in.
func (s *Store) Location() string {
	return s.location
}

// Close releases the database handle.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close index: %w", err)
	}
	return nil
}

// Upsert inserts or replaces chunks in one transaction.
func (s *Store) Upsert(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is safe to call after commit

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO chunks (collection, id, text, metadata, embedding, dim)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare chunk statement: %w", err)
	}
	defer stmt.Close() //nolint:errcheck // Close in defer is safe

	for i := range chunks {
		c := &chunks[i]
		if c.ID == "" || c.Collection == "" {
			return fmt.Errorf("chunk %d: id and collection are required", i)
		}
		meta := c.Metadata
		if meta == nil {
			meta = map[string]any{}
		}
		metaJSON, err := json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("chunk %s: failed to encode metadata: %w", c.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, c.Collection, c.ID, c.Text, string(metaJSON), encodeVector(c.Embedding), len(c.Embedding)); err != nil {
			return fmt.Errorf("failed to insert chunk %s: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit chunks: %w", err)
	}
	return nil
}

// Count returns the number of chunks stored in collection.
func (s *Store) Count(ctx context.Context, collection string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks WHERE collection = ?`, collection).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return n, nil
}

// Query scores every chunk in collection against vector and returns the best
// matches, most similar first. A limit of zero or less returns all of them.
// Chunks whose dimension differs from the query vector are skipped.
func (s *Store) Query(ctx context.Context, collection string, vector []float32, limit int) ([]Match, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, text, metadata, embedding, dim FROM chunks WHERE collection = ?
	`, collection)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close() //nolint:errcheck // Close in defer is safe

	matches := []Match{}
	skipped := 0
	for rows.Next() {
		var (
			id, text, metaJSON string
			blob               []byte
			dim                int
		)
		if err := rows.Scan(&id, &text, &metaJSON, &blob, &dim); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		if dim != len(vector) {
			skipped++
			continue
		}
		meta := map[string]any{}
		if err := json.Unmarshal([]byte(metaJSON), &meta); err != nil {
			s.logger.Warn("chunk %s has unreadable metadata: %v", id, err)
		}
		matches = append(matches, Match{
			ID:         id,
			Text:       text,
			Metadata:   meta,
			Similarity: CosineSimilarity(vector, decodeVector(blob)),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read chunks: %w", err)
	}
	if skipped > 0 {
		logx.Debug(ctx, "retrieval", "skipped %d chunks with mismatched dimension in %s", skipped, collection)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// CosineSimilarity returns the cosine of the angle between a and b, or 0 when
// either is a zero vector or their lengths differ.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return v
}
