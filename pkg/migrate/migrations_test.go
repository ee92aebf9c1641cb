package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/angelmondragon/storefront-backend/pkg/migrate"
)

func TestMigrationsDirIsValid(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("validate migrations: %v", err)
	}
}

func TestCancellationMigrationEnforcesUniqueness(t *testing.T) {
	content := readMigration(t, "*_create_cancellations_and_refunds.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS cancellation_requests",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_cancellation_requests_pending_order",
		"WHERE status = 'PENDING'",
		"CREATE TABLE IF NOT EXISTS refunds",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_refunds_cancellation_request",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestOrdersMigrationGuardsGatewayPayment(t *testing.T) {
	content := readMigration(t, "*_create_orders.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS orders",
		"CREATE TABLE IF NOT EXISTS payment_intents",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_orders_gateway_payment",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_payment_intents_reference",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestCreateSQLMigrationWritesTemplate(t *testing.T) {
	dir := t.TempDir()
	path, err := migrate.CreateSQLMigration(dir, "Add Refund Notes")
	if err != nil {
		t.Fatalf("create migration: %v", err)
	}
	if !strings.HasSuffix(path, "_add_refund_notes.sql") {
		t.Fatalf("unexpected path %s", path)
	}
	if err := migrate.ValidateDir(dir); err != nil {
		t.Fatalf("generated migration failed validation: %v", err)
	}
}

func TestValidateDirRejectsBrokenFiles(t *testing.T) {
	cases := map[string]struct {
		name    string
		content string
	}{
		"bad filename":   {"create_orders.sql", "-- +goose Up\n-- +goose Down\n"},
		"missing down":   {"20260301090000_orders.sql", "-- +goose Up\nSELECT 1;\n"},
		"unbalanced":     {"20260301090000_orders.sql", "-- +goose Up\n-- +goose StatementBegin\n-- +goose Down\n"},
		"down before up": {"20260301090000_orders.sql", "-- +goose Down\n-- +goose Up\n"},
	}
	for label, tc := range cases {
		t.Run(label, func(t *testing.T) {
			dir := t.TempDir()
			if err := os.WriteFile(filepath.Join(dir, tc.name), []byte(tc.content), 0o644); err != nil {
				t.Fatalf("write fixture: %v", err)
			}
			if err := migrate.ValidateDir(dir); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestValidateDirRejectsDuplicateVersions(t *testing.T) {
	dir := t.TempDir()
	body := []byte("-- +goose Up\n-- +goose Down\n")
	for _, name := range []string{"20260301090000_orders.sql", "20260301090000_refunds.sql"} {
		if err := os.WriteFile(filepath.Join(dir, name), body, 0o644); err != nil {
			t.Fatalf("write fixture: %v", err)
		}
	}
	if err := migrate.ValidateDir(dir); err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Fatalf("expected duplicate version error, got %v", err)
	}
}

func TestNewRunnerRequiresDB(t *testing.T) {
	if _, err := migrate.NewRunner(nil, "migrations", nil); err == nil {
		t.Fatalf("expected error without db")
	}
}

func readMigration(t *testing.T, pattern string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", pattern))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no migration file matching %s", pattern)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}
