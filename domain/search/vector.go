// Package search holds the retrieval-side domain types: vector index
// matches, filters, scored results and the re-ranking stage.
package search

import "context"

// Match is a raw similarity hit from the vector index.
type Match struct {
	id         string
	similarity float64
}

// NewMatch creates a Match.
func NewMatch(id string, similarity float64) Match {
	return Match{id: id, similarity: similarity}
}

// ID returns the record id.
func (m Match) ID() string { return m.id }

// Similarity returns the cosine similarity.
func (m Match) Similarity() float64 { return m.similarity }

// VectorIndex performs similarity search over stored vectors.
type VectorIndex interface {
	// Search returns up to limit matches ordered by descending similarity.
	Search(ctx context.Context, vector []float64, limit int) ([]Match, error)
}
