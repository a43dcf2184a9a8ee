package persistence

import (
	"errors"
	"fmt"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/helixml/codestore/domain/search"
)

// SQL specific to pgvector (extension, dynamic-dimension table, index, catalog).
const (
	pgvCreateExtension = `CREATE EXTENSION IF NOT EXISTS vector`

	pgvCreateTableTemplate = `
CREATE TABLE IF NOT EXISTS %s (
    id VARCHAR(64) PRIMARY KEY,
    embedding VECTOR(%d) NOT NULL
)`

	pgvCreateIndexTemplate = `
CREATE INDEX IF NOT EXISTS %s_embedding_idx
ON %s
USING hnsw (embedding vector_cosine_ops)`

	pgvCheckDimensionTemplate = `
SELECT a.atttypmod AS dimension
FROM pg_attribute a
JOIN pg_class c ON a.attrelid = c.oid
WHERE c.relname = '%s'
AND a.attname = 'embedding'`
)

// ErrDimensionMismatch indicates the vector table was created for another dimension.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// pgVectors stores vectors in a pgvector column and searches with the
// cosine distance operator.
type pgVectors struct{}

func (pgVectors) migrate(tx *gorm.DB, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("pgvector table needs a positive dimension, got %d", dimension)
	}
	if err := tx.Exec(pgvCreateExtension).Error; err != nil {
		return fmt.Errorf("create extension: %w", err)
	}
	if err := tx.Exec(fmt.Sprintf(pgvCreateTableTemplate, vectorsTable, dimension)).Error; err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	if err := tx.Exec(fmt.Sprintf(pgvCreateIndexTemplate, vectorsTable, vectorsTable)).Error; err != nil {
		return fmt.Errorf("create index: %w", err)
	}

	var existing int
	result := tx.Raw(fmt.Sprintf(pgvCheckDimensionTemplate, vectorsTable)).Scan(&existing)
	if result.Error != nil && !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return fmt.Errorf("check dimension: %w", result.Error)
	}
	if result.RowsAffected > 0 && existing != dimension {
		return fmt.Errorf("%w: database has %d, configured %d", ErrDimensionMismatch, existing, dimension)
	}
	return nil
}

func (pgVectors) upsert(tx *gorm.DB, id string, vector []float64) error {
	model := PgVectorModel{ID: id, Embedding: pgvector.NewVector(toFloat32(vector))}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"embedding"}),
	}).Create(&model).Error
}

func (pgVectors) search(tx *gorm.DB, query []float64, limit int) ([]search.Match, error) {
	var rows []struct {
		ID       string  `gorm:"column:id"`
		Distance float64 `gorm:"column:distance"`
	}
	err := tx.Table(vectorsTable).
		Select("id, embedding <=> ? AS distance", pgvector.NewVector(toFloat32(query))).
		Order("distance ASC").
		Order("id ASC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	matches := make([]search.Match, len(rows))
	for i, row := range rows {
		// Cosine distance is 1 - cosine similarity.
		matches[i] = search.NewMatch(row.ID, 1-row.Distance)
	}
	return matches, nil
}
