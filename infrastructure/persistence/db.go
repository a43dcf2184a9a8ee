// Package persistence provides the gorm-backed record and vector store.
package persistence

import (
	"context"
	"fmt"

	"github.com/helixml/codestore/internal/database"
)

// AutoMigrate creates the record and vector tables. The dimension fixes the
// vector column size on PostgreSQL; SQLite accepts any.
func AutoMigrate(ctx context.Context, db database.Database, dimension int) error {
	tx := db.Session(ctx)
	if err := tx.AutoMigrate(&RecordModel{}); err != nil {
		return fmt.Errorf("migrate records: %w", err)
	}
	if err := vectorsFor(db).migrate(tx, dimension); err != nil {
		return fmt.Errorf("migrate vectors: %w", err)
	}
	return nil
}

func vectorsFor(db database.Database) vectorTable {
	if db.IsPostgres() {
		return pgVectors{}
	}
	return sqliteVectors{}
}
