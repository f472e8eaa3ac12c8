package registry

import (
	"context"

	"github.com/txn2/table-loader/pkg/catalog"
	"github.com/txn2/table-loader/pkg/catalog/mysql"
	"github.com/txn2/table-loader/pkg/catalog/postgres"
	"github.com/txn2/table-loader/pkg/catalog/sqlite"
)

// Driver names accepted in connection configuration.
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// RegisterBuiltinDrivers registers all built-in catalog drivers.
func RegisterBuiltinDrivers(r *Registry) {
	r.RegisterDriver(DriverMySQL, MySQLOpener)
	r.RegisterDriver(DriverPostgres, PostgresOpener)
	r.RegisterDriver(DriverSQLite, SQLiteOpener)
}

// NewBuiltinRegistry returns a registry holding the built-in drivers.
func NewBuiltinRegistry() *Registry {
	r := NewRegistry()
	RegisterBuiltinDrivers(r)
	return r
}

// MySQLOpener opens a MySQL catalog.
func MySQLOpener(ctx context.Context, conn catalog.Connection) (catalog.Catalog, error) {
	return mysql.Open(ctx, conn)
}

// PostgresOpener opens a PostgreSQL catalog.
func PostgresOpener(ctx context.Context, conn catalog.Connection) (catalog.Catalog, error) {
	return postgres.Open(ctx, conn)
}

// SQLiteOpener opens a SQLite catalog.
func SQLiteOpener(ctx context.Context, conn catalog.Connection) (catalog.Catalog, error) {
	return sqlite.Open(ctx, conn)
}
