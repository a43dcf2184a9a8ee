// Package record defines the persisted unit of retrieval and the store contract.
package record

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Kind distinguishes raw chunks from summaries of them.
type Kind string

// Kind values.
const (
	KindChunk   Kind = "chunk"
	KindSummary Kind = "summary"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindChunk || k == KindSummary
}

// ID derives the record id from its owner, content hash and backend.
// Re-embedding the same content with the same backend yields the same id.
func ID(ownerID, contentHash, backendName string) string {
	h := sha256.New()
	h.Write([]byte(ownerID))
	h.Write([]byte{0})
	h.Write([]byte(contentHash))
	h.Write([]byte{0})
	h.Write([]byte(backendName))
	return hex.EncodeToString(h.Sum(nil))
}

// ContentHash returns the hex sha256 of text.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Record is an embedded chunk or summary with its structural metadata.
// Empty optional strings stand for absent values.
type Record struct {
	id               string
	ownerID          string
	sourceText       string
	entityName       string
	backendName      string
	modelName        string
	contentHash      string
	fileHash         string
	filePathRelative string
	filePathAbsolute string
	summaryText      string
	vectorDimensions int
	kind             Kind
	parentID         string
	createdAt        time.Time
	metadata         Metadata
}

// Option configures a Record at construction.
type Option func(*Record)

// New creates a chunk record for ownerID. The content hash defaults to the
// hash of sourceText and the id is derived once the backend is known.
func New(ownerID, sourceText string, opts ...Option) Record {
	r := Record{
		ownerID:     ownerID,
		sourceText:  sourceText,
		contentHash: ContentHash(sourceText),
		kind:        KindChunk,
		metadata:    NewMetadata(),
	}
	for _, opt := range opts {
		opt(&r)
	}
	r.id = ID(r.ownerID, r.contentHash, r.backendName)
	return r
}

// Reconstruct rebuilds a Record from persistence without deriving anything.
func Reconstruct(
	id, ownerID, sourceText, entityName, backendName, modelName,
	contentHash, fileHash, filePathRelative, filePathAbsolute, summaryText string,
	vectorDimensions int, kind Kind, parentID string, createdAt time.Time, metadata Metadata,
) Record {
	return Record{
		id:               id,
		ownerID:          ownerID,
		sourceText:       sourceText,
		entityName:       entityName,
		backendName:      backendName,
		modelName:        modelName,
		contentHash:      contentHash,
		fileHash:         fileHash,
		filePathRelative: filePathRelative,
		filePathAbsolute: filePathAbsolute,
		summaryText:      summaryText,
		vectorDimensions: vectorDimensions,
		kind:             kind,
		parentID:         parentID,
		createdAt:        createdAt,
		metadata:         metadata,
	}
}

// WithEntityName sets the named code entity.
func WithEntityName(name string) Option {
	return func(r *Record) { r.entityName = name }
}

// WithContentHash overrides the content hash.
func WithContentHash(hash string) Option {
	return func(r *Record) { r.contentHash = hash }
}

// WithFileHash sets the hash of the whole source file.
func WithFileHash(hash string) Option {
	return func(r *Record) { r.fileHash = hash }
}

// WithFilePaths sets the relative and absolute source file paths.
func WithFilePaths(relative, absolute string) Option {
	return func(r *Record) {
		r.filePathRelative = relative
		r.filePathAbsolute = absolute
	}
}

// WithSummaryText sets the generated gloss of the chunk.
func WithSummaryText(text string) Option {
	return func(r *Record) { r.summaryText = text }
}

// WithKind sets the record kind.
func WithKind(kind Kind) Option {
	return func(r *Record) { r.kind = kind }
}

// WithParentID links a chunk to its summary record.
func WithParentID(id string) Option {
	return func(r *Record) { r.parentID = id }
}

// WithBackend sets the producing backend and model.
func WithBackend(backendName, modelName string) Option {
	return func(r *Record) {
		r.backendName = backendName
		r.modelName = modelName
	}
}

// WithCreatedAt sets the ingestion timestamp.
func WithCreatedAt(t time.Time) Option {
	return func(r *Record) { r.createdAt = t }
}

// WithMetadata sets the structured metadata.
func WithMetadata(m Metadata) Option {
	return func(r *Record) { r.metadata = m }
}

// ID returns the record id.
func (r Record) ID() string { return r.id }

// OwnerID returns the tenant scope.
func (r Record) OwnerID() string { return r.ownerID }

// SourceText returns the embedded text.
func (r Record) SourceText() string { return r.sourceText }

// EntityName returns the named code entity, if any.
func (r Record) EntityName() string { return r.entityName }

// BackendName returns the backend that produced the vector.
func (r Record) BackendName() string { return r.backendName }

// ModelName returns the model that produced the vector.
func (r Record) ModelName() string { return r.modelName }

// ContentHash returns the content hash.
func (r Record) ContentHash() string { return r.contentHash }

// FileHash returns the source file hash.
func (r Record) FileHash() string { return r.fileHash }

// FilePathRelative returns the repository-relative path.
func (r Record) FilePathRelative() string { return r.filePathRelative }

// FilePathAbsolute returns the absolute path.
func (r Record) FilePathAbsolute() string { return r.filePathAbsolute }

// SummaryText returns the generated gloss, if any.
func (r Record) SummaryText() string { return r.summaryText }

// VectorDimensions returns the stored vector length.
func (r Record) VectorDimensions() int { return r.vectorDimensions }

// Kind returns the record kind.
func (r Record) Kind() Kind { return r.kind }

// ParentID returns the parent summary id, if any.
func (r Record) ParentID() string { return r.parentID }

// CreatedAt returns the ingestion time.
func (r Record) CreatedAt() time.Time { return r.createdAt }

// Metadata returns the structured metadata.
func (r Record) Metadata() Metadata { return r.metadata }

// Embedded returns a copy produced by the given backend with a vector of
// dims components. The id is re-derived for the new backend.
func (r Record) Embedded(backendName, modelName string, dims int) Record {
	r.backendName = backendName
	r.modelName = modelName
	r.vectorDimensions = dims
	r.id = ID(r.ownerID, r.contentHash, backendName)
	return r
}

// WithParent returns a copy linked to the given summary id.
func (r Record) WithParent(id string) Record {
	r.parentID = id
	return r
}

// WithCreatedAt returns a copy with the given ingestion time.
func (r Record) WithCreatedAt(t time.Time) Record {
	r.createdAt = t
	return r
}

// Entry pairs a record with its vector for writing.
type Entry struct {
	record Record
	vector []float64
}

// NewEntry creates an Entry. The record's vector dimensions follow the vector.
func NewEntry(r Record, vector []float64) Entry {
	r.vectorDimensions = len(vector)
	return Entry{record: r, vector: vector}
}

// Record returns the metadata half.
func (e Entry) Record() Record { return e.record }

// Vector returns the vector half.
func (e Entry) Vector() []float64 { return e.vector }
