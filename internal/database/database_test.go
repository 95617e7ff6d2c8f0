package database_test

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/portview/portfolio-backend/internal/database"
)

func openMigrated(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.Open(filepath.Join(t.TempDir(), "portfolio.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := database.Migrate(db); err != nil {
		t.Fatalf("Migrate() failed: %v", err)
	}
	return db
}

func TestOpenEnforcesForeignKeysOnEveryConnection(t *testing.T) {
	db := openMigrated(t)

	seed := `
		INSERT INTO linked_item (id, user_id, item_id, institution_name, access_token_encrypted, key_version, created_at, updated_at)
		VALUES ('li-1', 'user-1', 'item-1', 'Vanguard', 'ciphertext', 1, datetime('now'), datetime('now'));
		INSERT INTO account (id, user_id, linked_item_id, external_account_id, name, type, institution, total_value, created_at, updated_at)
		VALUES ('acct-1', 'user-1', 'li-1', 'ext-1', 'Brokerage', 'brokerage', 'Vanguard', 100, datetime('now'), datetime('now'));
		INSERT INTO holding (id, account_id, symbol, security_name, shares, avg_cost, current_price, total_value, gain_loss, gain_loss_pct, created_at, updated_at)
		VALUES ('h-1', 'acct-1', 'AAPL', 'Apple Inc', 10, 150, 160, 1600, 100, 6.67, datetime('now'), datetime('now'));
	`
	if _, err := db.Exec(seed); err != nil {
		t.Fatalf("Failed to seed rows: %v", err)
	}

	// Drop every idle connection so the statements below run on connections
	// the pool opens fresh.
	db.SetMaxIdleConns(0)

	t.Run("pragma is on for a fresh connection", func(t *testing.T) {
		var on int
		if err := db.QueryRow("PRAGMA foreign_keys").Scan(&on); err != nil {
			t.Fatalf("Failed to read pragma: %v", err)
		}
		if on != 1 {
			t.Fatalf("foreign_keys = %d, want 1", on)
		}
	})

	t.Run("deleting a linked item cascades on a fresh connection", func(t *testing.T) {
		if _, err := db.Exec("DELETE FROM linked_item WHERE id = 'li-1'"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}

		for _, table := range []string{"account", "holding"} {
			var count int
			if err := db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&count); err != nil {
				t.Fatalf("Failed to count %s: %v", table, err)
			}
			if count != 0 {
				t.Errorf("Expected 0 rows in %s after cascade, got %d", table, count)
			}
		}
	})
}

func TestDSN(t *testing.T) {
	tests := []struct {
		name   string
		dbPath string
		want   string
	}{
		{"plain path", "./data/portfolio.db", "file:./data/portfolio.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"},
		{"existing file scheme", "file:portfolio.db", "file:portfolio.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"},
		{"existing query parameters", "file:portfolio.db?mode=ro", "file:portfolio.db?mode=ro&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := database.DSN(tt.dbPath); got != tt.want {
				t.Errorf("DSN(%q) = %q, want %q", tt.dbPath, got, tt.want)
			}
		})
	}
}
