package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bijaykarki/meromart-backend/pkg/migrate"
)

const migrationsDir = "../../db/migrations"

func TestInitMigrationContainsConstraints(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join(migrationsDir, "*_init_schema.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no init schema migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"CREATE TABLE IF NOT EXISTS orders",
		"CREATE TABLE IF NOT EXISTS order_items",
		"merchant_txn_id     TEXT UNIQUE",
		"CHECK (stock >= 0)",
		"FOREIGN KEY (order_id) REFERENCES orders(id) ON DELETE CASCADE",
		"CONSTRAINT idx_wishlist_user_product UNIQUE (user_id, product_id)",
		"DROP TABLE IF EXISTS orders",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestMigrationsDirValidates(t *testing.T) {
	if err := migrate.ValidateDir(migrationsDir); err != nil {
		t.Fatalf("validate migrations dir: %v", err)
	}
}
