// Package service provides application layer services that orchestrate domain operations.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/helixml/codestore/domain/record"
	"github.com/helixml/codestore/domain/search"
	"github.com/helixml/codestore/domain/tracking"
)

// Retrieval defaults.
const (
	DefaultOversample     = 5
	DefaultExpansionScore = 0.5
)

// RecordReader fetches records by id and by parent.
type RecordReader interface {
	Get(ctx context.Context, ids []string) ([]record.Record, error)
	Children(ctx context.Context, parentIDs []string) ([]record.Record, error)
}

// RetrievalOption configures a Retrieval.
type RetrievalOption func(*Retrieval)

// WithOversample sets how many candidates are fetched per requested result.
func WithOversample(n int) RetrievalOption {
	return func(r *Retrieval) {
		if n > 0 {
			r.oversample = n
		}
	}
}

// WithRanker replaces the default ranker.
func WithRanker(ranker search.Ranker) RetrievalOption {
	return func(r *Retrieval) { r.ranker = ranker }
}

// WithSiblingExpansion controls whether the parents of chunk hits pull in
// their other children, and the score those children get.
func WithSiblingExpansion(enabled bool, score float64) RetrievalOption {
	return func(r *Retrieval) {
		r.siblings = enabled
		r.expansionScore = score
	}
}

// WithRetrievalObserver sets the event observer.
func WithRetrievalObserver(o tracking.Observer) RetrievalOption {
	return func(r *Retrieval) {
		if o != nil {
			r.observer = o
		}
	}
}

// WithRetrievalLogger sets the logger.
func WithRetrievalLogger(l *slog.Logger) RetrievalOption {
	return func(r *Retrieval) {
		if l != nil {
			r.logger = l
		}
	}
}

// Retrieval answers similarity queries: vector search → filter →
// parent/child expansion → dedup → re-rank → top-K.
type Retrieval struct {
	index          search.VectorIndex
	records        RecordReader
	oversample     int
	ranker         search.Ranker
	siblings       bool
	expansionScore float64
	observer       tracking.Observer
	logger         *slog.Logger
}

// NewRetrieval creates a new Retrieval.
func NewRetrieval(index search.VectorIndex, records RecordReader, opts ...RetrievalOption) *Retrieval {
	r := &Retrieval{
		index:          index,
		records:        records,
		oversample:     DefaultOversample,
		ranker:         search.NewRanker(search.DefaultRankConfig()),
		siblings:       true,
		expansionScore: DefaultExpansionScore,
		observer:       tracking.NopObserver{},
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Retrieve returns at most topK records ranked for the query. Storage
// failures surface as errors instead of partial rankings.
func (r *Retrieval) Retrieve(
	ctx context.Context,
	queryVector []float64,
	queryText string,
	topK int,
	filters search.Filters,
) ([]search.Scored, error) {
	if topK <= 0 {
		return []search.Scored{}, nil
	}
	start := time.Now()

	matches, err := r.index.Search(ctx, queryVector, topK*r.oversample)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	if len(matches) == 0 {
		r.report(ctx, tracking.Retrieval{Duration: time.Since(start)})
		return []search.Scored{}, nil
	}

	candidates, err := r.candidates(ctx, matches, filters)
	if err != nil {
		return nil, err
	}
	filtered := len(matches) - len(candidates)

	merged, expanded, err := r.expand(ctx, candidates, filters)
	if err != nil {
		return nil, err
	}

	results := r.ranker.Rank(queryText, topK, merged)

	r.report(ctx, tracking.Retrieval{
		Candidates: len(matches),
		Filtered:   filtered,
		Expanded:   expanded,
		Returned:   len(results),
		Duration:   time.Since(start),
	})
	return results, nil
}

// candidates fetches metadata for the matches and keeps those passing the
// filters, in similarity order.
func (r *Retrieval) candidates(ctx context.Context, matches []search.Match, filters search.Filters) ([]search.Scored, error) {
	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.ID()
	}

	records, err := r.records.Get(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("fetch candidates: %w", err)
	}
	byID := make(map[string]record.Record, len(records))
	for _, rec := range records {
		byID[rec.ID()] = rec
	}

	out := make([]search.Scored, 0, len(matches))
	for _, m := range matches {
		rec, ok := byID[m.ID()]
		if !ok || !filters.Match(rec) {
			continue
		}
		out = append(out, search.NewScored(rec, m.Similarity()))
	}
	return out, nil
}

// expand adds the children of summary hits with the summary's score and,
// when enabled, the siblings of chunk hits with the expansion score. Items
// reachable more than once keep their highest score and first position.
func (r *Retrieval) expand(ctx context.Context, candidates []search.Scored, filters search.Filters) ([]search.Scored, int, error) {
	merged := make([]search.Scored, 0, len(candidates))
	position := make(map[string]int, len(candidates))
	add := func(s search.Scored) bool {
		id := s.Record().ID()
		if i, ok := position[id]; ok {
			if s.Score() > merged[i].Score() {
				merged[i] = merged[i].WithScore(s.Score())
			}
			return false
		}
		position[id] = len(merged)
		merged = append(merged, s)
		return true
	}

	for _, c := range candidates {
		add(c)
	}

	parentScores := make(map[string]float64)
	var parents []string
	note := func(id string, score float64) {
		if prev, ok := parentScores[id]; ok {
			if score > prev {
				parentScores[id] = score
			}
			return
		}
		parentScores[id] = score
		parents = append(parents, id)
	}

	for _, c := range candidates {
		rec := c.Record()
		if rec.Kind() == record.KindSummary {
			note(rec.ID(), c.Score())
		}
	}
	if r.siblings {
		for _, c := range candidates {
			rec := c.Record()
			if rec.Kind() != record.KindChunk || rec.ParentID() == "" {
				continue
			}
			if i, hit := position[rec.ParentID()]; hit {
				note(rec.ParentID(), merged[i].Score())
			} else {
				note(rec.ParentID(), r.expansionScore)
			}
		}
	}

	if len(parents) == 0 {
		return merged, 0, nil
	}

	children, err := r.records.Children(ctx, parents)
	if err != nil {
		return nil, 0, fmt.Errorf("fetch children: %w", err)
	}

	byParent := make(map[string][]record.Record, len(parents))
	for _, child := range children {
		byParent[child.ParentID()] = append(byParent[child.ParentID()], child)
	}

	expanded := 0
	for _, parent := range parents {
		for _, child := range byParent[parent] {
			if !filters.Match(child) {
				continue
			}
			if add(search.NewScored(child, parentScores[parent])) {
				expanded++
			}
		}
	}
	return merged, expanded, nil
}

func (r *Retrieval) report(ctx context.Context, e tracking.Retrieval) {
	r.logger.DebugContext(ctx, "retrieval complete",
		slog.Int("candidates", e.Candidates),
		slog.Int("filtered", e.Filtered),
		slog.Int("expanded", e.Expanded),
		slog.Int("returned", e.Returned),
		slog.Duration("duration", e.Duration),
	)
	r.observer.OnRetrieval(ctx, e)
}
