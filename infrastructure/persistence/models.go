package persistence

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"
)

// Table names.
const (
	recordsTable = "embedding_records"
	vectorsTable = "embedding_vectors"
)

// RecordModel is the GORM model for the metadata half of a stored pair.
type RecordModel struct {
	ID               string    `gorm:"column:id;primaryKey;size:64"`
	OwnerID          string    `gorm:"column:owner_id;index;not null"`
	SourceText       string    `gorm:"column:source_text;type:text;not null"`
	EntityName       string    `gorm:"column:entity_name"`
	BackendName      string    `gorm:"column:backend_name;index"`
	ModelName        string    `gorm:"column:model_name"`
	ContentHash      string    `gorm:"column:content_hash;index;size:64"`
	FileHash         string    `gorm:"column:file_hash;size:64"`
	FilePathRelative string    `gorm:"column:file_path_relative;index"`
	FilePathAbsolute string    `gorm:"column:file_path_absolute"`
	SummaryText      string    `gorm:"column:summary_text;type:text"`
	VectorDimensions int       `gorm:"column:vector_dimensions"`
	Kind             string    `gorm:"column:kind;index;size:16"`
	ParentID         string    `gorm:"column:parent_id;index;size:64"`
	Metadata         string    `gorm:"column:metadata;type:text"`
	CreatedAt        time.Time `gorm:"column:created_at;index"`
}

// TableName returns the table name.
func (RecordModel) TableName() string { return recordsTable }

// Float64Slice is a custom type for JSON serialization of []float64 in SQLite.
type Float64Slice []float64

// Scan implements sql.Scanner for reading JSON from SQLite.
func (f *Float64Slice) Scan(value any) error {
	if value == nil {
		*f = nil
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into Float64Slice", value)
	}

	return json.Unmarshal(data, f)
}

// Value implements driver.Valuer for writing JSON to SQLite.
func (f Float64Slice) Value() (driver.Value, error) {
	if f == nil {
		return nil, nil
	}
	return json.Marshal(f)
}

// SQLiteVectorModel is the vector half of a stored pair in SQLite.
type SQLiteVectorModel struct {
	ID        string       `gorm:"column:id;primaryKey;size:64"`
	Embedding Float64Slice `gorm:"column:embedding;type:json;not null"`
}

// TableName returns the table name.
func (SQLiteVectorModel) TableName() string { return vectorsTable }

// PgVectorModel is the vector half of a stored pair in PostgreSQL.
type PgVectorModel struct {
	ID        string          `gorm:"column:id;primaryKey;size:64"`
	Embedding pgvector.Vector `gorm:"column:embedding;type:vector"`
}

// TableName returns the table name.
func (PgVectorModel) TableName() string { return vectorsTable }

func toFloat32(values []float64) []float32 {
	out := make([]float32, len(values))
	for i, v := range values {
		out[i] = float32(v)
	}
	return out
}
