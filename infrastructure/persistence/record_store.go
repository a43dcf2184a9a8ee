package persistence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/helixml/codestore/domain/record"
	"github.com/helixml/codestore/domain/search"
	"github.com/helixml/codestore/domain/tracking"
	"github.com/helixml/codestore/internal/database"
)

// ErrInvalidParent indicates a parent id that does not name a summary record.
var ErrInvalidParent = errors.New("parent is not a summary record")

// RecordStore keeps records and their vectors in the same database so each
// pair is written and deleted in one transaction. It implements record.Store
// and search.VectorIndex.
type RecordStore struct {
	db        database.Database
	dimension int
	vectors   vectorTable
	mapper    recordMapper
	retry     RetryPolicy
	observer  tracking.Observer
	logger    *slog.Logger
	now       func() time.Time
}

// StoreOption configures a RecordStore.
type StoreOption func(*RecordStore)

// WithRetryPolicy replaces the default retry policy.
func WithRetryPolicy(p RetryPolicy) StoreOption {
	return func(s *RecordStore) { s.retry = p }
}

// WithStoreObserver sets the event observer.
func WithStoreObserver(o tracking.Observer) StoreOption {
	return func(s *RecordStore) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithStoreLogger sets the logger.
func WithStoreLogger(l *slog.Logger) StoreOption {
	return func(s *RecordStore) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewRecordStore creates a RecordStore for vectors of the given dimension.
// The tables must exist; see AutoMigrate.
func NewRecordStore(db database.Database, dimension int, opts ...StoreOption) (*RecordStore, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("NewRecordStore: dimension must be positive, got %d", dimension)
	}
	s := &RecordStore{
		db:        db,
		dimension: dimension,
		vectors:   vectorsFor(db),
		retry:     DefaultRetryPolicy(),
		observer:  tracking.NopObserver{},
		logger:    slog.Default(),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	s.retry.observer = s.observer
	s.retry.logger = s.logger
	return s, nil
}

// Dimension returns the vector dimension the store accepts.
func (s *RecordStore) Dimension() int { return s.dimension }

// BulkUpsert writes entries in one transaction. Every vector is checked
// first; a wrong dimension fails the whole call with *record.ValidationError
// and nothing is written. Entries that fail inside the transaction roll back
// to their own savepoint and are reported in UpsertReport.Failed.
func (s *RecordStore) BulkUpsert(ctx context.Context, entries []record.Entry) (record.UpsertReport, error) {
	if len(entries) == 0 {
		return record.NewUpsertReport(nil, nil), nil
	}

	for _, e := range entries {
		if len(e.Vector()) != s.dimension {
			return record.UpsertReport{}, record.NewValidationError(e.Record().ID(), s.dimension, len(e.Vector()))
		}
	}

	var report record.UpsertReport
	err := s.retry.Do(ctx, "bulk_upsert", func(ctx context.Context) error {
		var written []string
		failed := make(map[string]error)

		err := database.WithTransaction(ctx, s.db, func(tx *gorm.DB) error {
			summaries, err := s.knownSummaries(tx, entries)
			if err != nil {
				return err
			}

			for i, e := range entries {
				r := e.Record()
				if parent := r.ParentID(); parent != "" {
					if _, ok := summaries[parent]; !ok {
						err := fmt.Errorf("%w: %s", ErrInvalidParent, parent)
						s.skip(ctx, r.ID(), err)
						failed[r.ID()] = err
						continue
					}
				}

				err := database.WithSavepoint(tx, fmt.Sprintf("entry_%d", i), func(tx *gorm.DB) error {
					return s.write(tx, e)
				})
				if err != nil {
					s.skip(ctx, r.ID(), err)
					failed[r.ID()] = err
					continue
				}

				written = append(written, r.ID())
				if r.Kind() == record.KindSummary {
					summaries[r.ID()] = struct{}{}
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		report = record.NewUpsertReport(written, failed)
		return nil
	})
	if err != nil {
		return record.UpsertReport{}, err
	}
	return report, nil
}

// knownSummaries returns the referenced parent ids that already exist as summaries.
func (s *RecordStore) knownSummaries(tx *gorm.DB, entries []record.Entry) (map[string]struct{}, error) {
	var parents []string
	seen := make(map[string]struct{})
	for _, e := range entries {
		p := e.Record().ParentID()
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		parents = append(parents, p)
	}

	known := make(map[string]struct{}, len(parents))
	if len(parents) == 0 {
		return known, nil
	}

	var found []string
	err := tx.Model(&RecordModel{}).
		Where("id IN ? AND kind = ?", parents, string(record.KindSummary)).
		Pluck("id", &found).Error
	if err != nil {
		return nil, fmt.Errorf("load parents: %w", err)
	}
	for _, id := range found {
		known[id] = struct{}{}
	}
	return known, nil
}

func (s *RecordStore) write(tx *gorm.DB, e record.Entry) error {
	r := e.Record()
	if r.CreatedAt().IsZero() {
		r = r.WithCreatedAt(s.now())
	}
	model, err := s.mapper.ToModel(r)
	if err != nil {
		return err
	}

	err = tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&model).Error
	if err != nil {
		return fmt.Errorf("write record: %w", err)
	}

	if err := s.vectors.upsert(tx, r.ID(), e.Vector()); err != nil {
		return fmt.Errorf("write vector: %w", err)
	}
	return nil
}

func (s *RecordStore) skip(ctx context.Context, id string, err error) {
	s.logger.WarnContext(ctx, "skipping record",
		slog.String("id", id),
		slog.String("error", err.Error()),
	)
	s.observer.OnRecordSkipped(ctx, tracking.RecordSkipped{ID: id, Err: err})
}

// BulkDelete removes the records and vectors for ids in one transaction.
// Surviving children of a deleted summary have their parent link cleared.
func (s *RecordStore) BulkDelete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.retry.Do(ctx, "bulk_delete", func(ctx context.Context) error {
		return database.WithTransaction(ctx, s.db, func(tx *gorm.DB) error {
			if err := tx.Model(&RecordModel{}).
				Where("parent_id IN ? AND id NOT IN ?", ids, ids).
				Update("parent_id", "").Error; err != nil {
				return fmt.Errorf("clear parent links: %w", err)
			}
			if err := tx.Exec("DELETE FROM "+vectorsTable+" WHERE id IN ?", ids).Error; err != nil {
				return fmt.Errorf("delete vectors: %w", err)
			}
			if err := tx.Where("id IN ?", ids).Delete(&RecordModel{}).Error; err != nil {
				return fmt.Errorf("delete records: %w", err)
			}
			return nil
		})
	})
}

// Get returns the records for ids, omitting ids that do not exist.
func (s *RecordStore) Get(ctx context.Context, ids []string) ([]record.Record, error) {
	if len(ids) == 0 {
		return []record.Record{}, nil
	}
	return s.find(ctx, "get", func(tx *gorm.DB) *gorm.DB {
		return tx.Where("id IN ?", ids)
	})
}

// Children returns the records whose parent is one of parentIDs, oldest first.
func (s *RecordStore) Children(ctx context.Context, parentIDs []string) ([]record.Record, error) {
	if len(parentIDs) == 0 {
		return []record.Record{}, nil
	}
	return s.find(ctx, "children", func(tx *gorm.DB) *gorm.DB {
		return tx.Where("parent_id IN ?", parentIDs).Order("created_at ASC").Order("id ASC")
	})
}

func (s *RecordStore) find(ctx context.Context, operation string, scope func(*gorm.DB) *gorm.DB) ([]record.Record, error) {
	var models []RecordModel
	err := s.retry.Do(ctx, operation, func(ctx context.Context) error {
		models = nil
		return scope(s.db.Session(ctx)).Find(&models).Error
	})
	if err != nil {
		return nil, err
	}

	records := make([]record.Record, 0, len(models))
	for _, m := range models {
		r, err := s.mapper.ToDomain(m)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, nil
}

// LatestHashesByFile maps each file of the owner to the file hash of the
// record with the newest created_at.
func (s *RecordStore) LatestHashesByFile(ctx context.Context, ownerID string) (map[string]string, error) {
	var rows []struct {
		FilePathRelative string `gorm:"column:file_path_relative"`
		FileHash         string `gorm:"column:file_hash"`
	}
	err := s.retry.Do(ctx, "latest_hashes_by_file", func(ctx context.Context) error {
		rows = nil
		return s.db.Session(ctx).Model(&RecordModel{}).
			Select("file_path_relative, file_hash").
			Where("owner_id = ? AND file_path_relative <> ''", ownerID).
			Order("created_at ASC").
			Order("id ASC").
			Scan(&rows).Error
	})
	if err != nil {
		return nil, err
	}

	hashes := make(map[string]string)
	for _, row := range rows {
		hashes[row.FilePathRelative] = row.FileHash
	}
	return hashes, nil
}

// ChunkHashesForFile returns the content hashes stored for a file, matched
// on its relative or absolute path.
func (s *RecordStore) ChunkHashesForFile(ctx context.Context, filePath string) (map[string]struct{}, error) {
	return s.chunkHashes(ctx, "chunk_hashes_for_file", func(tx *gorm.DB) *gorm.DB {
		return tx.Where("file_path_relative = ? OR file_path_absolute = ?", filePath, filePath)
	})
}

// ChunkHashesForOwnerFile is ChunkHashesForFile restricted to one owner.
func (s *RecordStore) ChunkHashesForOwnerFile(ctx context.Context, ownerID, filePath string) (map[string]struct{}, error) {
	return s.chunkHashes(ctx, "chunk_hashes_for_owner_file", func(tx *gorm.DB) *gorm.DB {
		return tx.Where("owner_id = ? AND (file_path_relative = ? OR file_path_absolute = ?)", ownerID, filePath, filePath)
	})
}

func (s *RecordStore) chunkHashes(ctx context.Context, operation string, scope func(*gorm.DB) *gorm.DB) (map[string]struct{}, error) {
	var hashes []string
	err := s.retry.Do(ctx, operation, func(ctx context.Context) error {
		hashes = nil
		return scope(s.db.Session(ctx).Model(&RecordModel{})).
			Distinct().
			Pluck("content_hash", &hashes).Error
	})
	if err != nil {
		return nil, err
	}

	set := make(map[string]struct{}, len(hashes))
	for _, h := range hashes {
		set[h] = struct{}{}
	}
	return set, nil
}

// FilePathsForOwner lists the distinct relative file paths of an owner.
func (s *RecordStore) FilePathsForOwner(ctx context.Context, ownerID string) ([]string, error) {
	var paths []string
	err := s.retry.Do(ctx, "file_paths_for_owner", func(ctx context.Context) error {
		paths = nil
		return s.db.Session(ctx).Model(&RecordModel{}).
			Where("owner_id = ? AND file_path_relative <> ''", ownerID).
			Distinct().
			Order("file_path_relative ASC").
			Pluck("file_path_relative", &paths).Error
	})
	if err != nil {
		return nil, err
	}
	if paths == nil {
		paths = []string{}
	}
	return paths, nil
}

// UpdateFileHash sets the file hash on every record of one file of an owner.
func (s *RecordStore) UpdateFileHash(ctx context.Context, ownerID, filePath, fileHash string) error {
	return s.retry.Do(ctx, "update_file_hash", func(ctx context.Context) error {
		return s.db.Session(ctx).Model(&RecordModel{}).
			Where("owner_id = ? AND file_path_relative = ?", ownerID, filePath).
			Update("file_hash", fileHash).Error
	})
}

// Stats aggregates the records of ownerID, or of all owners when it is empty.
func (s *RecordStore) Stats(ctx context.Context, ownerID string) (record.Stats, error) {
	stats := record.Stats{
		ByKind: map[record.Kind]int64{},
		ByFile: map[string]int64{},
	}

	scoped := func(tx *gorm.DB) *gorm.DB {
		tx = tx.Model(&RecordModel{})
		if ownerID != "" {
			tx = tx.Where("owner_id = ?", ownerID)
		}
		return tx
	}

	err := s.retry.Do(ctx, "stats", func(ctx context.Context) error {
		tx := s.db.Session(ctx)

		if err := scoped(tx).Count(&stats.Total).Error; err != nil {
			return fmt.Errorf("count: %w", err)
		}

		var kinds []struct {
			Kind  string `gorm:"column:kind"`
			Count int64  `gorm:"column:count"`
		}
		if err := scoped(tx).Select("kind, COUNT(*) AS count").Group("kind").Scan(&kinds).Error; err != nil {
			return fmt.Errorf("count by kind: %w", err)
		}
		for _, k := range kinds {
			stats.ByKind[record.Kind(k.Kind)] = k.Count
		}

		var files []struct {
			FilePathRelative string `gorm:"column:file_path_relative"`
			Count            int64  `gorm:"column:count"`
		}
		if err := scoped(tx).
			Select("file_path_relative, COUNT(*) AS count").
			Where("file_path_relative <> ''").
			Group("file_path_relative").
			Scan(&files).Error; err != nil {
			return fmt.Errorf("count by file: %w", err)
		}
		for _, f := range files {
			stats.ByFile[f.FilePathRelative] = f.Count
		}

		var avg float64
		if err := scoped(tx).
			Select("COALESCE(AVG(LENGTH(source_text)), 0)").
			Where("kind = ?", string(record.KindChunk)).
			Scan(&avg).Error; err != nil {
			return fmt.Errorf("average chunk length: %w", err)
		}
		stats.AverageChunkLength = avg
		return nil
	})
	if err != nil {
		return record.Stats{}, err
	}
	return stats, nil
}

// Search returns the ids of the vectors most similar to vector, best first.
func (s *RecordStore) Search(ctx context.Context, vector []float64, limit int) ([]search.Match, error) {
	if limit <= 0 {
		return []search.Match{}, nil
	}
	if len(vector) != s.dimension {
		return nil, record.NewValidationError("", s.dimension, len(vector))
	}

	var matches []search.Match
	err := s.retry.Do(ctx, "search", func(ctx context.Context) error {
		var err error
		matches, err = s.vectors.search(s.db.Session(ctx).Table(vectorsTable), vector, limit)
		return err
	})
	if err != nil {
		return nil, err
	}
	return matches, nil
}
