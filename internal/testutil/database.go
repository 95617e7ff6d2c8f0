package testutil

import (
	"database/sql"
	"testing"

	_ "modernc.org/sqlite" // Test Package
)

// SetupTestDB creates an in-memory SQLite database for testing.
// The database is automatically cleaned up when the test completes.
//
// Example usage:
//
//	func TestSomething(t *testing.T) {
//	    db := testutil.SetupTestDB(t)
//	    // db is ready to use with schema created
//	}
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	// In-memory database (destroyed when connection closes). Pragmas ride on
	// the DSN so they reach every connection, and the pool is capped at one
	// connection: each :memory: connection is its own empty database, so a
	// second pooled connection would see no schema and no foreign_keys.
	db, err := sql.Open("sqlite", "file::memory:?_pragma=foreign_keys(1)")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	db.SetMaxOpenConns(1)

	// Test connection
	if err := db.Ping(); err != nil {
		t.Fatalf("Failed to ping test database: %v", err)
	}

	// Create schema
	if err := createTestSchema(db); err != nil {
		t.Fatalf("Failed to create test schema: %v", err)
	}

	// Cleanup when test ends
	t.Cleanup(func() {
		db.Close()
	})

	return db
}

// createTestSchema creates all database tables for testing.
// Schema is synchronized with the production database schema.
func createTestSchema(db *sql.DB) error {
	schema := `
		-- Linked item table
		CREATE TABLE IF NOT EXISTS linked_item (
			id VARCHAR(36) NOT NULL PRIMARY KEY,
			user_id VARCHAR(36) NOT NULL,
			item_id VARCHAR(100) NOT NULL,
			institution_name VARCHAR(255) DEFAULT '' NOT NULL,
			access_token_encrypted TEXT NOT NULL,
			key_version INTEGER NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			CONSTRAINT unique_user_item UNIQUE (user_id, item_id)
		);

		-- Account table
		CREATE TABLE IF NOT EXISTS account (
			id VARCHAR(36) NOT NULL PRIMARY KEY,
			user_id VARCHAR(36) NOT NULL,
			linked_item_id VARCHAR(36),
			external_account_id VARCHAR(100) NOT NULL,
			name VARCHAR(255) NOT NULL,
			type VARCHAR(20) NOT NULL,
			institution VARCHAR(255) DEFAULT '' NOT NULL,
			total_value FLOAT DEFAULT 0 NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			FOREIGN KEY(linked_item_id) REFERENCES linked_item(id) ON DELETE CASCADE,
			CONSTRAINT unique_user_external_account UNIQUE (user_id, external_account_id)
		);

		-- Holding table
		CREATE TABLE IF NOT EXISTS holding (
			id VARCHAR(36) NOT NULL PRIMARY KEY,
			account_id VARCHAR(36) NOT NULL,
			symbol VARCHAR(20) NOT NULL,
			security_name VARCHAR(255) DEFAULT '' NOT NULL,
			shares FLOAT DEFAULT 0 NOT NULL,
			avg_cost FLOAT DEFAULT 0 NOT NULL,
			current_price FLOAT DEFAULT 0 NOT NULL,
			total_value FLOAT DEFAULT 0 NOT NULL,
			gain_loss FLOAT DEFAULT 0 NOT NULL,
			gain_loss_pct FLOAT DEFAULT 0 NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			FOREIGN KEY(account_id) REFERENCES account(id) ON DELETE CASCADE,
			CONSTRAINT unique_account_symbol UNIQUE (account_id, symbol)
		);

		-- Link attempt table
		CREATE TABLE IF NOT EXISTS link_attempt (
			id VARCHAR(36) NOT NULL PRIMARY KEY,
			user_id VARCHAR(36) NOT NULL,
			state VARCHAR(20) NOT NULL,
			reason VARCHAR(255) DEFAULT '' NOT NULL,
			expires_at DATETIME NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);

		-- Indexes for performance
		CREATE INDEX IF NOT EXISTS ix_linked_item_user_id ON linked_item(user_id);
		CREATE INDEX IF NOT EXISTS ix_account_user_id ON account(user_id);
		CREATE INDEX IF NOT EXISTS ix_account_linked_item_id ON account(linked_item_id);
		CREATE INDEX IF NOT EXISTS ix_holding_account_id ON holding(account_id);
		CREATE INDEX IF NOT EXISTS ix_link_attempt_user_state ON link_attempt(user_id, state);
		CREATE INDEX IF NOT EXISTS ix_link_attempt_expires_at ON link_attempt(expires_at);
	`

	_, err := db.Exec(schema)
	return err
}

// CleanDatabase truncates all tables in dependency order.
// Useful for reusing the same database across multiple tests.
//
// Example usage:
//
//	func TestMultipleThings(t *testing.T) {
//	    db := testutil.SetupTestDB(t)
//
//	    t.Run("First test", func(t *testing.T) {
//	        // Create data
//	        testutil.CleanDatabase(t, db)  // Clean after
//	    })
//
//	    t.Run("Second test", func(t *testing.T) {
//	        // Fresh clean database
//	    })
//	}
func CleanDatabase(t *testing.T, db *sql.DB) {
	t.Helper()

	// Order matters: delete children before parents due to foreign keys
	tables := []string{
		"holding",
		"account",
		"linked_item",
		"link_attempt",
	}

	for _, table := range tables {
		//nolint:gosec // G202: Table names are from hardcoded slice, no SQL injection risk
		query := "DELETE FROM " + table
		if _, err := db.Exec(query); err != nil {
			t.Fatalf("Failed to clean table %s: %v", table, err)
		}
	}
}

// CountRows returns the number of rows in a table.
// Useful for assertions in tests.
//
// Example usage:
//
//	count := testutil.CountRows(t, db, "holding")
func CountRows(t *testing.T, db *sql.DB, table string) int {
	t.Helper()

	var count int
	query := "SELECT COUNT(*) FROM " + table
	err := db.QueryRow(query).Scan(&count)
	if err != nil {
		t.Fatalf("Failed to count rows in %s: %v", table, err)
	}

	return count
}

// AssertRowCount asserts that a table has the expected number of rows.
//
// Example usage:
//
//	testutil.AssertRowCount(t, db, "holding", 2)
func AssertRowCount(t *testing.T, db *sql.DB, table string, expected int) {
	t.Helper()

	actual := CountRows(t, db, table)
	if actual != expected {
		t.Errorf("Expected %d rows in %s, got %d", expected, table, actual)
	}
}
