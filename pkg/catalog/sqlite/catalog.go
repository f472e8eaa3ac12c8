// Package sqlite provides a SQLite implementation of catalog.Catalog. The
// source identifier is the name of an attached database ("main" for the
// opened file).
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3" // registers the sqlite3 driver

	"github.com/txn2/table-loader/pkg/catalog"
)

const (
	// DriverName is the database/sql driver name.
	DriverName = "sqlite3"

	// MainSource is the schema name of the opened database file.
	MainSource = "main"

	memoryPath = ":memory:"
)

// Catalog reads tables from a SQLite database over one dedicated
// connection.
type Catalog struct {
	db     *sql.DB
	conn   *sql.Conn
	ownsDB bool
	schema string
}

// Path returns the database path for conn: the explicit DSN, else the
// database field, else an in-memory database.
func Path(conn catalog.Connection) string {
	switch {
	case conn.DSN != "":
		return conn.DSN
	case conn.Database != "":
		return conn.Database
	default:
		return memoryPath
	}
}

// Open opens the database file described by conn. Each entry of
// conn.Params attaches the file at its value under the schema name of its
// key.
func Open(ctx context.Context, conn catalog.Connection) (*Catalog, error) {
	db, err := sql.Open(DriverName, Path(conn))
	if err != nil {
		return nil, &catalog.ConfigurationError{Reason: fmt.Sprintf("opening sqlite database: %v", err)}
	}

	c, err := New(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	c.ownsDB = true

	names := make([]string, 0, len(conn.Params))
	for name := range conn.Params {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := c.Attach(ctx, name, conn.Params[name]); err != nil {
			_ = c.Close()
			return nil, err
		}
	}
	return c, nil
}

// New creates a Catalog on an existing pool. The pool stays owned by the
// caller; Close only releases the connection taken from it.
func New(ctx context.Context, db *sql.DB) (*Catalog, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, catalog.WrapDataSource("connect", "", err)
	}
	return &Catalog{db: db, conn: conn, schema: MainSource}, nil
}

// Attach attaches the database file at path under schema name.
func (c *Catalog) Attach(ctx context.Context, name, path string) error {
	if name == "" {
		return &catalog.ConfigurationError{Reason: "attached database name is required"}
	}
	_, err := c.conn.ExecContext(ctx, "ATTACH DATABASE ? AS "+QuoteIdentifier(name), path)
	return catalog.WrapDataSource("attach", name, err)
}

// SwitchSource selects an attached database by name.
func (c *Catalog) SwitchSource(ctx context.Context, name string) bool {
	if name == "" {
		return false
	}
	result, err := catalog.Query(ctx, c.conn, "PRAGMA database_list")
	if err != nil {
		return false
	}
	names, ok := result.Column("name")
	if !ok {
		return false
	}
	for _, n := range names {
		if fmt.Sprint(n) == name {
			c.schema = name
			return true
		}
	}
	return false
}

// TableExists reports whether the current database holds a table or view
// named name.
func (c *Catalog) TableExists(ctx context.Context, name string) bool {
	query, args, err := c.masterQuery("1").Where(sq.Eq{"name": name}).Limit(1).ToSql()
	if err != nil {
		return false
	}
	var one int
	return c.conn.QueryRowContext(ctx, query, args...).Scan(&one) == nil
}

// ListTables returns the tables and views of the current database in
// creation order.
func (c *Catalog) ListTables(ctx context.Context) ([]string, error) {
	query, args, err := c.masterQuery("name").OrderBy("rowid").ToSql()
	if err != nil {
		return nil, catalog.WrapDataSource("list tables", "", err)
	}
	result, err := catalog.Query(ctx, c.conn, query, args...)
	if err != nil {
		return nil, catalog.WrapDataSource("list tables", "", err)
	}
	return catalog.FirstColumn(result), nil
}

// SelectWithCondition selects every column of table, appending condition
// verbatim after the FROM clause.
func (c *Catalog) SelectWithCondition(ctx context.Context, table, condition string) (*catalog.Result, error) {
	qb := sq.Select("*").From(QuoteIdentifier(c.schema) + "." + QuoteIdentifier(table))
	if condition = strings.TrimSpace(condition); condition != "" {
		qb = qb.Suffix(condition)
	}
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, catalog.WrapDataSource("select", table, err)
	}
	result, err := catalog.Query(ctx, c.conn, query, args...)
	if err != nil {
		return nil, catalog.WrapDataSource("select", table, err)
	}
	return result, nil
}

// Ping checks the connection is still usable.
func (c *Catalog) Ping(ctx context.Context) error {
	return catalog.WrapDataSource("ping", "", c.conn.PingContext(ctx))
}

// Close releases the connection and, when the pool was opened by Open, the
// pool.
func (c *Catalog) Close() error {
	err := c.conn.Close()
	if c.ownsDB {
		err = errors.Join(err, c.db.Close())
	}
	if err != nil {
		return fmt.Errorf("closing sqlite catalog: %w", err)
	}
	return nil
}

func (c *Catalog) masterQuery(column string) sq.SelectBuilder {
	return sq.Select(column).
		From(QuoteIdentifier(c.schema) + ".sqlite_master").
		Where(sq.Eq{"type": []string{"table", "view"}}).
		Where(sq.NotLike{"name": "sqlite_%"})
}

// QuoteIdentifier quotes name with double quotes.
func QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Verify interface compliance.
var (
	_ catalog.Catalog = (*Catalog)(nil)
	_ catalog.Pinger  = (*Catalog)(nil)
)
