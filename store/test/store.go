package test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/hrygo/harvestline/internal/profile"
	"github.com/hrygo/harvestline/store"
	"github.com/hrygo/harvestline/store/db"
)

// NewTestingStore returns a migrated store. It uses SQLite in a temp dir
// unless HARVESTLINE_TEST_POSTGRES_DSN points at a pgvector-enabled database.
func NewTestingStore(ctx context.Context, t *testing.T) *store.Store {
	t.Helper()
	p := getTestingProfile(t)
	driver, err := db.NewDBDriver(p)
	if err != nil {
		t.Fatalf("failed to create db driver: %v", err)
	}
	st := store.New(driver, p)
	if err := st.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate db: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

func getTestingProfile(t *testing.T) *profile.Profile {
	dir := t.TempDir()
	if dsn := os.Getenv("HARVESTLINE_TEST_POSTGRES_DSN"); dsn != "" {
		return &profile.Profile{Mode: "dev", Data: dir, Driver: "postgres", DSN: dsn}
	}
	return &profile.Profile{
		Mode:   "dev",
		Data:   dir,
		Driver: "sqlite",
		DSN:    filepath.Join(dir, "harvestline_test.db"),
	}
}

// IsPostgres reports whether the testing store talks to PostgreSQL.
func IsPostgres() bool {
	return os.Getenv("HARVESTLINE_TEST_POSTGRES_DSN") != ""
}
