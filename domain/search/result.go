package search

import "github.com/helixml/codestore/domain/record"

// Scored is a retrieved record with its final score.
type Scored struct {
	record record.Record
	score  float64
}

// NewScored creates a Scored.
func NewScored(r record.Record, score float64) Scored {
	return Scored{record: r, score: score}
}

// Record returns the record.
func (s Scored) Record() record.Record { return s.record }

// Score returns the score.
func (s Scored) Score() float64 { return s.score }

// WithScore returns a copy with a different score.
func (s Scored) WithScore(score float64) Scored {
	s.score = score
	return s
}
