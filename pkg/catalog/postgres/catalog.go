// Package postgres provides a PostgreSQL implementation of catalog.Catalog.
// The source identifier is a schema of the connected database.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"github.com/txn2/table-loader/pkg/catalog"
)

const (
	// DriverName is the database/sql driver name.
	DriverName = "postgres"

	// DefaultPort is the PostgreSQL server port used when none is configured.
	DefaultPort = 5432

	defaultSSLMode = "disable"
)

// psq is the PostgreSQL statement builder with dollar placeholders.
var psq = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// listedTableTypes are the relation kinds reported by ListTables.
var listedTableTypes = []string{"BASE TABLE", "VIEW"}

// Catalog reads tables from a PostgreSQL database over one dedicated
// session, so the search_path set by SwitchSource stays in effect.
type Catalog struct {
	db     *sql.DB
	conn   *sql.Conn
	ownsDB bool
}

// DSN builds a lib/pq keyword/value connection string from conn. An
// explicit conn.DSN wins.
func DSN(conn catalog.Connection) string {
	if conn.DSN != "" {
		return conn.DSN
	}
	params := map[string]string{
		"sslmode": defaultSSLMode,
	}
	for k, v := range conn.Params {
		params[k] = v
	}
	if conn.Host != "" {
		params["host"] = conn.Host
	}
	port := conn.Port
	if port == 0 {
		port = DefaultPort
	}
	params["port"] = strconv.Itoa(port)
	if conn.User != "" {
		params["user"] = conn.User
	}
	if conn.Password != "" {
		params["password"] = conn.Password
	}
	if conn.Database != "" {
		params["dbname"] = conn.Database
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+quoteValue(params[k]))
	}
	return strings.Join(parts, " ")
}

// quoteValue quotes a keyword/value parameter when it is empty or contains
// spaces, quotes or backslashes.
func quoteValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// Open connects to the database described by conn.
func Open(ctx context.Context, conn catalog.Connection) (*Catalog, error) {
	db, err := sql.Open(DriverName, DSN(conn))
	if err != nil {
		return nil, &catalog.ConfigurationError{Reason: fmt.Sprintf("opening postgres connection: %v", err)}
	}

	c, err := New(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	c.ownsDB = true
	return c, nil
}

// New creates a Catalog on an existing pool. The pool stays owned by the
// caller; Close only releases the session taken from it.
func New(ctx context.Context, db *sql.DB) (*Catalog, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, catalog.WrapDataSource("connect", "", err)
	}
	return &Catalog{db: db, conn: conn}, nil
}

// DB returns the underlying pool.
func (c *Catalog) DB() *sql.DB {
	return c.db
}

// SwitchSource points search_path at the named schema once it is known to
// exist.
func (c *Catalog) SwitchSource(ctx context.Context, name string) bool {
	if name == "" {
		return false
	}
	query, args, err := psq.Select("1").
		From("information_schema.schemata").
		Where(sq.Eq{"schema_name": name}).
		ToSql()
	if err != nil {
		return false
	}

	var one int
	if err := c.conn.QueryRowContext(ctx, query, args...).Scan(&one); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			slog.Debug("postgres: schema lookup failed", "schema", name, "error", err)
		}
		return false
	}

	if _, err := c.conn.ExecContext(ctx, "SET search_path TO "+pq.QuoteIdentifier(name)); err != nil {
		slog.Debug("postgres: setting search_path failed", "schema", name, "error", err)
		return false
	}
	return true
}

// TableExists looks the table up in information_schema for the current
// schema.
func (c *Catalog) TableExists(ctx context.Context, name string) bool {
	query, args, err := psq.Select("1").
		From("information_schema.tables").
		Where("table_schema = current_schema()").
		Where(sq.Eq{"table_name": name}).
		Limit(1).
		ToSql()
	if err != nil {
		return false
	}

	var one int
	if err := c.conn.QueryRowContext(ctx, query, args...).Scan(&one); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			slog.Debug("postgres: table lookup failed", "table", name, "error", err)
		}
		return false
	}
	return true
}

// ListTables returns the tables and views of the current schema.
func (c *Catalog) ListTables(ctx context.Context) ([]string, error) {
	query, args, err := psq.Select("table_name").
		From("information_schema.tables").
		Where("table_schema = current_schema()").
		Where(sq.Eq{"table_type": listedTableTypes}).
		OrderBy("table_name").
		ToSql()
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
	query, args, err := SelectQuery(table, condition)
	if err != nil {
		return nil, catalog.WrapDataSource("select", table, err)
	}
	result, err := catalog.Query(ctx, c.conn, query, args...)
	if err != nil {
		return nil, catalog.WrapDataSource("select", table, err)
	}
	return result, nil
}

// Ping checks the session is still alive.
func (c *Catalog) Ping(ctx context.Context) error {
	return catalog.WrapDataSource("ping", "", c.conn.PingContext(ctx))
}

// Close releases the session and, when the pool was opened by Open, the pool.
func (c *Catalog) Close() error {
	err := c.conn.Close()
	if c.ownsDB {
		if dbErr := c.db.Close(); err == nil {
			err = dbErr
		}
	}
	if err != nil {
		return fmt.Errorf("closing postgres catalog: %w", err)
	}
	return nil
}

// SelectQuery builds the statement used by SelectWithCondition. The
// condition is opaque, so the statement is built without placeholder
// rewriting.
func SelectQuery(table, condition string) (string, []any, error) {
	qb := sq.Select("*").From(pq.QuoteIdentifier(table))
	if condition = strings.TrimSpace(condition); condition != "" {
		qb = qb.Suffix(condition)
	}
	return qb.ToSql()
}

// Verify interface compliance.
var (
	_ catalog.Catalog = (*Catalog)(nil)
	_ catalog.Pinger  = (*Catalog)(nil)
)
