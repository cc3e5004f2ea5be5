package postgres

import (
	"context"
	"os"
	"testing"
	"time"
)

// openPostgresStoreForIntegrationTest connects to the database named by BMS_POSTGRES_TEST_DSN (or
// BMS_POSTGRES_DSN as a fallback), applies all migrations and truncates the
// data tables so every test starts from a clean slate. Tests are skipped when
// no DSN is configured, which keeps `go test ./...` green on machines without
// a local PostgreSQL.
func openPostgresStoreForIntegrationTest(t *testing.T) *Store {
	t.Helper()

	dsn := ""
	for _, candidate := range []string{
		os.Getenv("BMS_POSTGRES_TEST_DSN"),
		os.Getenv("BMS_POSTGRES_DSN"),
	} {
		if candidate != "" {
			dsn = candidate
			break
		}
	}
	if dsn == "" {
		t.Skip("set BMS_POSTGRES_TEST_DSN to run postgres integration tests")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	if err := store.MigrateUp(ctx, 0); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	for _, table := range []string{
		"timeline_events",
		"idempotency_keys",
		"outbox_messages",
		"billing_records",
		"reservations",
		"listings",
	} {
		if _, err := store.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			t.Fatalf("clean table %s: %v", table, err)
		}
	}

	return store
}
