package persistence

import (
	"math"
	"sort"

	"gorm.io/gorm"

	"github.com/helixml/codestore/domain/search"
)

// vectorTable stores and searches the vector half of a pair. Implementations
// differ per dialect; both use the same table name and id column.
type vectorTable interface {
	migrate(tx *gorm.DB, dimension int) error
	upsert(tx *gorm.DB, id string, vector []float64) error
	search(tx *gorm.DB, query []float64, limit int) ([]search.Match, error)
}

// CosineSimilarity computes the cosine similarity between two vectors.
// Returns a value between -1 (opposite) and 1 (identical), and 0 when the
// lengths differ or either vector has zero magnitude.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, magA, magB float64
	for i := range a {
		dot += a[i] * b[i]
		magA += a[i] * a[i]
		magB += b[i] * b[i]
	}

	if magA == 0 || magB == 0 {
		return 0
	}

	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

// topK orders matches by similarity, highest first, ties by id, and keeps k.
func topK(matches []search.Match, k int) []search.Match {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Similarity() != matches[j].Similarity() {
			return matches[i].Similarity() > matches[j].Similarity()
		}
		return matches[i].ID() < matches[j].ID()
	})
	if k < len(matches) {
		matches = matches[:k]
	}
	return matches
}
