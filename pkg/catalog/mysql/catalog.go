// Package mysql provides a MySQL implementation of catalog.Catalog.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	driver "github.com/go-sql-driver/mysql"

	"github.com/txn2/table-loader/pkg/catalog"
)

const (
	// DriverName is the database/sql driver name.
	DriverName = "mysql"

	// DefaultPort is the MySQL server port used when none is configured.
	DefaultPort = 3306

	// showTables lists the tables of the current database.
	showTables = "SHOW TABLES"

	connMaxLifetime = 3 * time.Minute
	maxConns        = 10
)

// Catalog reads tables from a MySQL server over one dedicated session, so
// the database selected with SwitchSource stays in effect for later calls.
type Catalog struct {
	db     *sql.DB
	conn   *sql.Conn
	ownsDB bool
}

// DSN builds a go-sql-driver DSN from conn. An explicit conn.DSN wins.
func DSN(conn catalog.Connection) string {
	if conn.DSN != "" {
		return conn.DSN
	}
	cfg := driver.NewConfig()
	cfg.User = conn.User
	cfg.Passwd = conn.Password
	cfg.Net = "tcp"
	if conn.Port == 0 {
		conn.Port = DefaultPort
	}
	cfg.Addr = conn.Address()
	cfg.DBName = conn.Database
	cfg.ParseTime = true
	if len(conn.Params) > 0 {
		cfg.Params = make(map[string]string, len(conn.Params))
		for k, v := range conn.Params {
			cfg.Params[k] = v
		}
	}
	return cfg.FormatDSN()
}

// Open connects to the server described by conn.
func Open(ctx context.Context, conn catalog.Connection) (*Catalog, error) {
	db, err := sql.Open(DriverName, DSN(conn))
	if err != nil {
		return nil, &catalog.ConfigurationError{Reason: fmt.Sprintf("opening mysql connection: %v", err)}
	}
	db.SetConnMaxLifetime(connMaxLifetime)
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)

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

// SwitchSource issues USE for the named database.
func (c *Catalog) SwitchSource(ctx context.Context, name string) bool {
	if name == "" {
		return false
	}
	if _, err := c.conn.ExecContext(ctx, "USE "+QuoteIdentifier(name)); err != nil {
		slog.Debug("mysql: switching database failed", "database", name, "error", err)
		return false
	}
	return true
}

// TableExists looks the table up in information_schema for the current
// database.
func (c *Catalog) TableExists(ctx context.Context, name string) bool {
	query, args, err := sq.Select("1").
		From("information_schema.tables").
		Where("table_schema = DATABASE()").
		Where(sq.Eq{"table_name": name}).
		Limit(1).
		ToSql()
	if err != nil {
		return false
	}

	var one int
	err = c.conn.QueryRowContext(ctx, query, args...).Scan(&one)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			slog.Debug("mysql: table lookup failed", "table", name, "error", err)
		}
		return false
	}
	return true
}

// ListTables runs SHOW TABLES.
func (c *Catalog) ListTables(ctx context.Context) ([]string, error) {
	result, err := catalog.Query(ctx, c.conn, showTables)
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
		return fmt.Errorf("closing mysql catalog: %w", err)
	}
	return nil
}

// SelectQuery builds the statement used by SelectWithCondition.
func SelectQuery(table, condition string) (string, []any, error) {
	qb := sq.Select("*").From(QuoteIdentifier(table))
	if condition = strings.TrimSpace(condition); condition != "" {
		qb = qb.Suffix(condition)
	}
	return qb.ToSql()
}

// QuoteIdentifier quotes name with backticks, doubling embedded backticks.
func QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// Verify interface compliance.
var (
	_ catalog.Catalog = (*Catalog)(nil)
	_ catalog.Pinger  = (*Catalog)(nil)
)
