// Package repotest connects repository integration tests to a migrated
// Postgres named by TEST_DATABASE_URL
package repotest

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/hollomancer/sbir-analytics-sub004/internal/database"
)

func Logger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

// DB returns a migrated database, skipping the test when none is configured
func DB(t *testing.T, tables ...string) database.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	conn, err := sqlx.ConnectContext(context.Background(), "postgres", dsn)
	require.NoError(t, err, "Failed to connect to test database")

	db := database.NewDatabaseInstance(conn, Logger())
	t.Cleanup(func() { _ = db.Close() })

	ms := database.NewMigrationService(Logger(), &database.MigrationConfig{MigrationFolderPath: migrationsDir()})
	require.NoError(t, ms.MigratePostgres(db, "resolver"))

	for _, table := range tables {
		_, err := db.ExecContext(context.Background(), "TRUNCATE "+table)
		require.NoError(t, err)
	}
	return db
}

func migrationsDir() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "..", "db", "pg")
}
