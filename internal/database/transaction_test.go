package database

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newItemsDB(t *testing.T) Database {
	t.Helper()
	ctx := context.Background()
	db, err := NewDatabase(ctx, "sqlite:///:memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Session(ctx).Exec("CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT NOT NULL UNIQUE)").Error)
	return db
}

func countItems(t *testing.T, db Database) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Session(context.Background()).Raw("SELECT COUNT(*) FROM items").Scan(&count).Error)
	return count
}

func TestWithTransaction_Commits(t *testing.T) {
	db := newItemsDB(t)

	err := WithTransaction(context.Background(), db, func(tx *gorm.DB) error {
		return tx.Exec("INSERT INTO items (name) VALUES (?)", "one").Error
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), countItems(t, db))
}

func TestWithTransaction_RollsBackOnError(t *testing.T) {
	db := newItemsDB(t)
	boom := errors.New("boom")

	err := WithTransaction(context.Background(), db, func(tx *gorm.DB) error {
		if err := tx.Exec("INSERT INTO items (name) VALUES (?)", "one").Error; err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, int64(0), countItems(t, db))
}

func TestWithTransaction_RollsBackOnPanic(t *testing.T) {
	db := newItemsDB(t)

	assert.Panics(t, func() {
		_ = WithTransaction(context.Background(), db, func(tx *gorm.DB) error {
			_ = tx.Exec("INSERT INTO items (name) VALUES (?)", "one").Error
			panic("unexpected")
		})
	})
	assert.Equal(t, int64(0), countItems(t, db))
}

func TestWithSavepoint_KeepsOtherWrites(t *testing.T) {
	db := newItemsDB(t)

	err := WithTransaction(context.Background(), db, func(tx *gorm.DB) error {
		if err := WithSavepoint(tx, "sp_1", func(tx *gorm.DB) error {
			return tx.Exec("INSERT INTO items (name) VALUES (?)", "one").Error
		}); err != nil {
			return err
		}

		// Duplicate name violates the unique constraint; only this savepoint is undone.
		dupErr := WithSavepoint(tx, "sp_2", func(tx *gorm.DB) error {
			if err := tx.Exec("INSERT INTO items (name) VALUES (?)", "two").Error; err != nil {
				return err
			}
			return tx.Exec("INSERT INTO items (name) VALUES (?)", "one").Error
		})
		assert.Error(t, dupErr)

		return WithSavepoint(tx, "sp_3", func(tx *gorm.DB) error {
			return tx.Exec("INSERT INTO items (name) VALUES (?)", "three").Error
		})
	})
	require.NoError(t, err)

	var names []string
	require.NoError(t, db.Session(context.Background()).Raw("SELECT name FROM items ORDER BY name").Scan(&names).Error)
	assert.Equal(t, []string{"one", "three"}, names)
}
