package retrieval

import (
	"context"
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
)

// Querier is the subset of pgxpool.Pool the searcher needs. Defined here so
// tests can substitute a fake and the package does not depend on the pool
// type directly.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const searchPassagesSQL = `
SELECT content
FROM passages
WHERE collection = $1
ORDER BY embedding <=> $2
LIMIT $3`

// PGSearcher performs cosine-distance vector search over the passages table
// using pgvector. Query embedding comes from a Genkit embedder.
type PGSearcher struct {
	db       Querier
	embedder ai.Embedder
}

// NewPGSearcher creates a PGSearcher. Both dependencies are required.
func NewPGSearcher(db Querier, embedder ai.Embedder) (*PGSearcher, error) {
	if db == nil {
		return nil, fmt.Errorf("querier is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	return &PGSearcher{db: db, embedder: embedder}, nil
}

// Search implements Searcher.
func (s *PGSearcher) Search(ctx context.Context, collection, query string, limit int) ([]Passage, error) {
	resp, err := s.embedder.Embed(ctx, &ai.EmbedRequest{
		Input: []*ai.Document{ai.DocumentFromText(query, nil)},
	})
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return nil, fmt.Errorf("embedder returned no embedding")
	}
	vec := pgvector.NewVector(resp.Embeddings[0].Embedding)

	rows, err := s.db.Query(ctx, searchPassagesSQL, collection, vec, limit)
	if err != nil {
		return nil, fmt.Errorf("searching passages: %w", err)
	}
	defer rows.Close()

	var out []Passage
	for rows.Next() {
		var content string
		if err := rows.Scan(&content); err != nil {
			return nil, fmt.Errorf("scanning passage: %w", err)
		}
		out = append(out, Passage{Collection: collection, Content: content})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading passages: %w", err)
	}
	return out, nil
}
