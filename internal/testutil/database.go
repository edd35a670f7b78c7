package testutil

import (
	"context"
	"testing"

	"dstash/internal/database"
)

// NewTestDB creates an in-memory SQLite database with all migrations
// applied. The database is automatically closed when the test completes.
func NewTestDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	if err := db.MigrateUp(); err != nil {
		db.Close()
		t.Fatalf("failed to migrate database: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

// MustTx runs fn in one transaction and fails the test if the
// transaction errors. Use db.InTx directly when the error itself is
// under test.
func MustTx(t *testing.T, db *database.DB, fn func(*database.Tx) error) {
	t.Helper()

	if err := db.InTx(context.Background(), fn); err != nil {
		t.Fatalf("transaction failed: %v", err)
	}
}
