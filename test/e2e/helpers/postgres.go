//go:build integration

// Package helpers starts the services used by the end-to-end tests.
package helpers

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/txn2/table-loader/pkg/database/migrate"
)

// Postgres database credentials used by the e2e container.
const (
	PostgresDatabase = "testdb"
	PostgresUser     = "test"
	PostgresPassword = "test"
)

// StartPostgres starts a PostgreSQL container and returns its DSN. The
// container is terminated when the test ends.
func StartPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase(PostgresDatabase),
		postgres.WithUsername(PostgresUser),
		postgres.WithPassword(PostgresPassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(5*time.Minute),
		),
	)
	if err != nil {
		t.Fatalf("starting postgres container: %v", err)
	}
	t.Cleanup(func() { _ = pgContainer.Terminate(ctx) })

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("getting postgres connection string: %v", err)
	}
	return dsn
}

// SeedPostgres applies the migrations in dir to the database at dsn.
func SeedPostgres(t *testing.T, dsn, dir string) {
	t.Helper()

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("opening postgres: %v", err)
	}
	defer func() { _ = db.Close() }()

	if err := migrate.SeedDir(db, dir); err != nil {
		t.Fatalf("seeding postgres: %v", err)
	}
}
