package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/helixml/codestore/domain/embedding"
	"github.com/helixml/codestore/domain/record"
)

// Generator produces embeddings for a list of texts.
type Generator interface {
	Generate(ctx context.Context, texts []string, requestID string) (embedding.Result, error)
}

// IndexItem is a record awaiting its vector, optionally pointing at the
// summary item it belongs to within the same Index call.
type IndexItem struct {
	record record.Record
	parent int
}

// NewIndexItem wraps a record with no in-call parent.
func NewIndexItem(r record.Record) IndexItem {
	return IndexItem{record: r, parent: -1}
}

// WithParent returns a copy whose parent is the item at index in the same call.
func (i IndexItem) WithParent(index int) IndexItem {
	i.parent = index
	return i
}

// Record returns the wrapped record.
func (i IndexItem) Record() record.Record { return i.record }

// Parent returns the in-call parent index.
func (i IndexItem) Parent() (int, bool) { return i.parent, i.parent >= 0 }

// IndexReport counts what happened to the items of one Index call.
type IndexReport struct {
	embedded int
	stored   int
	failed   int
	skipped  int
}

// Embedded returns how many items received a vector.
func (r IndexReport) Embedded() int { return r.embedded }

// Stored returns how many records were written.
func (r IndexReport) Stored() int { return r.stored }

// Failed returns how many items were neither stored nor skipped.
func (r IndexReport) Failed() int { return r.failed }

// Skipped returns how many items were unchanged and left alone.
func (r IndexReport) Skipped() int { return r.skipped }

// Indexer embeds records and writes them to a store.
type Indexer struct {
	generator Generator
	store     record.Store
	dimension int
	logger    *slog.Logger
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithDimension drops vectors whose size differs from dim before they reach the store.
func WithDimension(dim int) IndexerOption {
	return func(i *Indexer) { i.dimension = dim }
}

// WithIndexerLogger sets the logger.
func WithIndexerLogger(l *slog.Logger) IndexerOption {
	return func(i *Indexer) {
		if l != nil {
			i.logger = l
		}
	}
}

// NewIndexer creates a new Indexer.
func NewIndexer(generator Generator, store record.Store, opts ...IndexerOption) (*Indexer, error) {
	if generator == nil {
		return nil, fmt.Errorf("NewIndexer: nil generator")
	}
	if store == nil {
		return nil, fmt.Errorf("NewIndexer: nil store")
	}
	i := &Indexer{generator: generator, store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// Index embeds and stores items: skip unchanged → embed summaries → store
// summaries → embed chunks → store chunks. Individual item failures are
// counted in the report; the error reports whole groups that failed.
func (s *Indexer) Index(ctx context.Context, items []IndexItem) (IndexReport, error) {
	var report IndexReport
	if len(items) == 0 {
		return report, nil
	}

	skip, err := s.unchanged(ctx, items)
	if err != nil {
		return report, fmt.Errorf("check unchanged: %w", err)
	}
	report.skipped = len(skip)

	var summaries, chunks []int
	for idx, item := range items {
		if _, ok := skip[idx]; ok {
			continue
		}
		if strings.TrimSpace(embedText(item.record)) == "" {
			report.failed++
			continue
		}
		if item.record.Kind() == record.KindSummary {
			summaries = append(summaries, idx)
		} else {
			chunks = append(chunks, idx)
		}
	}

	ids := make(map[int]string, len(items))
	var groupErrors []error
	for _, group := range [][]int{summaries, chunks} {
		if len(group) == 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := s.indexGroup(ctx, items, group, ids, &report); err != nil {
			var cfgErr *embedding.ConfigurationError
			if errors.As(err, &cfgErr) {
				return report, err
			}
			groupErrors = append(groupErrors, err)
		}
	}

	if len(groupErrors) > 0 {
		return report, fmt.Errorf("%d index groups failed: %w", len(groupErrors), errors.Join(groupErrors...))
	}
	return report, nil
}

func (s *Indexer) indexGroup(ctx context.Context, items []IndexItem, group []int, ids map[int]string, report *IndexReport) error {
	texts := make([]string, len(group))
	for j, idx := range group {
		texts[j] = embedText(items[idx].record)
	}

	result, err := s.generator.Generate(ctx, texts, "")
	if err != nil {
		report.failed += len(group)
		return fmt.Errorf("embed %d items: %w", len(group), err)
	}

	entries := make([]record.Entry, 0, len(group))
	owners := make([]int, 0, len(group))
	for j, idx := range group {
		v := result.Embeddings()[j]
		if v == nil {
			report.failed++
			continue
		}
		report.embedded++

		if s.dimension > 0 && v.Dimensions() != s.dimension {
			report.failed++
			s.logger.WarnContext(ctx, "dropping vector with wrong dimension",
				slog.String("backend", v.Backend()),
				slog.Int("expected", s.dimension),
				slog.Int("actual", v.Dimensions()),
			)
			continue
		}

		rec := items[idx].record.Embedded(v.Backend(), v.Model(), v.Dimensions())
		if parent, ok := items[idx].Parent(); ok {
			parentID, resolved := ids[parent]
			if !resolved {
				report.failed++
				s.logger.WarnContext(ctx, "dropping item whose parent was not indexed",
					slog.Int("item", idx),
					slog.Int("parent", parent),
				)
				continue
			}
			rec = rec.WithParent(parentID)
		}
		entries = append(entries, record.NewEntry(rec, v.Values()))
		owners = append(owners, idx)
	}

	if len(entries) == 0 {
		return nil
	}

	upsert, err := s.store.BulkUpsert(ctx, entries)
	if err != nil {
		report.failed += len(entries)
		return fmt.Errorf("store %d records: %w", len(entries), err)
	}
	report.stored += len(upsert.Written())
	report.failed += len(upsert.Failed())

	written := make(map[string]struct{}, len(upsert.Written()))
	for _, id := range upsert.Written() {
		written[id] = struct{}{}
	}
	for k, e := range entries {
		if _, ok := written[e.Record().ID()]; ok {
			ids[owners[k]] = e.Record().ID()
		}
	}
	return nil
}

// unchanged returns the indices of items whose content hash their owner
// already stored for the same file. A summary stays in the work set while
// any of its in-call children needs indexing, so the child can reference it.
func (s *Indexer) unchanged(ctx context.Context, items []IndexItem) (map[int]struct{}, error) {
	type fileKey struct{ owner, path string }
	hashes := make(map[fileKey]map[string]struct{})
	skip := make(map[int]struct{})
	for idx, item := range items {
		path := item.record.FilePathRelative()
		if path == "" {
			continue
		}
		key := fileKey{owner: item.record.OwnerID(), path: path}
		known, ok := hashes[key]
		if !ok {
			var err error
			known, err = s.store.ChunkHashesForOwnerFile(ctx, key.owner, path)
			if err != nil {
				return nil, err
			}
			hashes[key] = known
		}
		if _, ok := known[item.record.ContentHash()]; ok {
			skip[idx] = struct{}{}
		}
	}

	for idx, item := range items {
		if _, skipped := skip[idx]; skipped {
			continue
		}
		if parent, ok := item.Parent(); ok {
			delete(skip, parent)
		}
	}
	return skip, nil
}

func embedText(r record.Record) string {
	if r.Kind() == record.KindSummary && r.SummaryText() != "" {
		return r.SummaryText()
	}
	return r.SourceText()
}
