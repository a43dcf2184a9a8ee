package record

import "context"

// UpsertReport describes the outcome of a bulk upsert.
type UpsertReport struct {
	written []string
	failed  map[string]error
}

// NewUpsertReport creates an UpsertReport.
func NewUpsertReport(written []string, failed map[string]error) UpsertReport {
	if failed == nil {
		failed = map[string]error{}
	}
	return UpsertReport{written: written, failed: failed}
}

// Written returns the ids that were stored.
func (r UpsertReport) Written() []string { return r.written }

// Failed returns the ids that were skipped with their errors.
func (r UpsertReport) Failed() map[string]error { return r.failed }

// Stats aggregates the stored records of one owner, or of all owners.
type Stats struct {
	Total              int64
	ByKind             map[Kind]int64
	ByFile             map[string]int64
	AverageChunkLength float64
}

// Store persists records together with their vectors.
type Store interface {
	// BulkUpsert writes entries in one transaction. Entries that fail
	// individually are reported and skipped.
	BulkUpsert(ctx context.Context, entries []Entry) (UpsertReport, error)
	// BulkDelete removes records and vectors for the ids together.
	BulkDelete(ctx context.Context, ids []string) error
	// Get returns the records for ids in no particular order, omitting missing ones.
	Get(ctx context.Context, ids []string) ([]Record, error)
	// Children returns the records whose parent is one of parentIDs.
	Children(ctx context.Context, parentIDs []string) ([]Record, error)
	// LatestHashesByFile maps each file of the owner to the file hash of its newest record.
	LatestHashesByFile(ctx context.Context, ownerID string) (map[string]string, error)
	// ChunkHashesForFile returns the content hashes stored for a file.
	ChunkHashesForFile(ctx context.Context, filePath string) (map[string]struct{}, error)
	// ChunkHashesForOwnerFile returns the content hashes one owner stored
	// for a file.
	ChunkHashesForOwnerFile(ctx context.Context, ownerID, filePath string) (map[string]struct{}, error)
	// FilePathsForOwner lists the distinct files of an owner.
	FilePathsForOwner(ctx context.Context, ownerID string) ([]string, error)
	// UpdateFileHash sets the file hash on every record of one file.
	UpdateFileHash(ctx context.Context, ownerID, filePath, fileHash string) error
	// Stats aggregates records of ownerID, or of everyone when ownerID is empty.
	Stats(ctx context.Context, ownerID string) (Stats, error)
}
