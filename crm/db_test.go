// ABOUTME: Shared test database setup for the crm package
// ABOUTME: Opens an in-memory SQLite database with the schema applied
package crm

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	db.SetMaxOpenConns(1)

	if err := InitSchema(db); err != nil {
		t.Fatalf("Failed to initialize schema: %v", err)
	}

	return db
}
