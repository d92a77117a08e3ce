package migrate_test

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/angelmondragon/lankacart-backend/pkg/migrate"
)

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", "*_"+suffix+".sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no %s migration file found", suffix)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}

func TestMigrationsDirIsValid(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("validate migrations: %v", err)
	}
}

func TestEmbeddedMigrationsMatchDisk(t *testing.T) {
	if err := migrate.Validate(migrate.Migrations()); err != nil {
		t.Fatalf("validate embedded migrations: %v", err)
	}
	onDisk, err := filepath.Glob(filepath.Join("migrations", "*.sql"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	embedded, err := fs.Glob(migrate.Migrations(), "*.sql")
	if err != nil {
		t.Fatalf("glob embedded: %v", err)
	}
	if len(onDisk) != len(embedded) {
		t.Fatalf("embedded set has %d files, disk has %d", len(embedded), len(onDisk))
	}
}

func TestMigrationsContainConstraints(t *testing.T) {
	cases := map[string][]string{
		"create_inventory_entries": {
			"CREATE TABLE IF NOT EXISTS inventory_entries",
			"PRIMARY KEY (product_id, variant_id)",
			"CHECK (available_stock >= 0)",
			"DROP TABLE IF EXISTS inventory_entries",
		},
		"create_carts": {
			"CREATE UNIQUE INDEX IF NOT EXISTS ux_carts_anonymous_token",
			"CREATE UNIQUE INDEX IF NOT EXISTS ux_carts_user_id",
			"CREATE UNIQUE INDEX IF NOT EXISTS ux_cart_lines_item ON cart_lines (cart_id, product_id, variant_id)",
			"FOREIGN KEY (cart_id) REFERENCES carts(id) ON DELETE CASCADE",
		},
		"create_orders": {
			"CREATE UNIQUE INDEX IF NOT EXISTS ux_orders_number",
			"CREATE UNIQUE INDEX IF NOT EXISTS ux_orders_idempotency_key",
			"CREATE UNIQUE INDEX IF NOT EXISTS ux_orders_provider_txn_id",
			"CREATE UNIQUE INDEX IF NOT EXISTS ux_payments_order_id",
			"shipping_address jsonb NOT NULL",
			"DROP TABLE IF EXISTS orders",
		},
		"create_checkout_sessions": {
			"CREATE UNIQUE INDEX IF NOT EXISTS ux_checkout_sessions_reference",
		},
		"create_outbox": {
			"CREATE TABLE IF NOT EXISTS outbox_events",
			"CREATE TABLE IF NOT EXISTS outbox_dlq",
			"WHERE published_at IS NULL",
		},
	}

	for suffix, checks := range cases {
		content := readMigration(t, suffix)
		for _, sub := range checks {
			if !strings.Contains(content, sub) {
				t.Errorf("%s: missing expected statement %q", suffix, sub)
			}
		}
	}
}

func TestValidateDirRejectsBadNames(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "create_things.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := migrate.ValidateDir(dir); err == nil {
		t.Fatal("expected invalid filename error")
	}
}

func TestValidateRejectsDownBeforeUp(t *testing.T) {
	dir := t.TempDir()
	body := "-- +goose Down\nDROP TABLE x;\n-- +goose Up\nCREATE TABLE x();\n"
	if err := os.WriteFile(filepath.Join(dir, "20260101000000_swap.sql"), []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := migrate.ValidateDir(dir); err == nil {
		t.Fatal("expected ordering error")
	}
}

func TestCreateSQLMigration(t *testing.T) {
	dir := t.TempDir()
	path, err := migrate.CreateSQLMigration(dir, "Add Order Notes!")
	if err != nil {
		t.Fatalf("create migration: %v", err)
	}
	if !strings.HasSuffix(path, "_add_order_notes.sql") {
		t.Fatalf("unexpected path %s", path)
	}
	if err := migrate.ValidateDir(dir); err != nil {
		t.Fatalf("created migration should validate: %v", err)
	}
}
