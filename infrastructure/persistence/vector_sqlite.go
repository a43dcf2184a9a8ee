package persistence

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/helixml/codestore/domain/search"
)

// sqliteVectors keeps vectors as JSON arrays and searches by brute-force cosine.
type sqliteVectors struct{}

func (sqliteVectors) migrate(tx *gorm.DB, _ int) error {
	return tx.AutoMigrate(&SQLiteVectorModel{})
}

func (sqliteVectors) upsert(tx *gorm.DB, id string, vector []float64) error {
	model := SQLiteVectorModel{ID: id, Embedding: Float64Slice(vector)}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"embedding"}),
	}).Create(&model).Error
}

func (sqliteVectors) search(tx *gorm.DB, query []float64, limit int) ([]search.Match, error) {
	var rows []SQLiteVectorModel
	if err := tx.Find(&rows).Error; err != nil {
		return nil, err
	}

	matches := make([]search.Match, 0, len(rows))
	for _, row := range rows {
		if len(row.Embedding) != len(query) {
			continue
		}
		matches = append(matches, search.NewMatch(row.ID, CosineSimilarity(query, row.Embedding)))
	}
	return topK(matches, limit), nil
}
