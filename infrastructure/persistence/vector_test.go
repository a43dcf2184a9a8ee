package persistence

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/helixml/codestore/domain/search"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		a        []float64
		b        []float64
		expected float64
	}{
		{"identical", []float64{1, 2, 3}, []float64{1, 2, 3}, 1},
		{"orthogonal", []float64{1, 0}, []float64{0, 1}, 0},
		{"opposite", []float64{1, 0}, []float64{-1, 0}, -1},
		{"length mismatch", []float64{1, 0}, []float64{1}, 0},
		{"zero vector", []float64{0, 0}, []float64{1, 1}, 0},
		{"empty", nil, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, CosineSimilarity(tt.a, tt.b), 1e-9)
		})
	}
}

func TestTopK_TiesBrokenByID(t *testing.T) {
	matches := []search.Match{
		search.NewMatch("b", 0.5),
		search.NewMatch("a", 0.5),
		search.NewMatch("c", 0.9),
	}
	got := topK(matches, 2)
	assert.Equal(t, "c", got[0].ID())
	assert.Equal(t, "a", got[1].ID())
	assert.Len(t, got, 2)
}

func TestFloat64Slice_ScanValue(t *testing.T) {
	v, err := Float64Slice{1.5, 2}.Value()
	assert.NoError(t, err)

	var f Float64Slice
	assert.NoError(t, f.Scan(v))
	assert.Equal(t, Float64Slice{1.5, 2}, f)

	assert.NoError(t, f.Scan(nil))
	assert.Nil(t, f)
	assert.Error(t, f.Scan(42))
}
