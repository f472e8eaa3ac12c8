package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/txn2/table-loader/pkg/catalog"
)

const pgTestSchema = "sales"

func newTestCatalog(t *testing.T) (*Catalog, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	c, err := New(context.Background(), db)
	require.NoError(t, err)
	return c, mock
}

func TestDSN(t *testing.T) {
	t.Run("built from fields", func(t *testing.T) {
		dsn := DSN(catalog.Connection{
			Host:     "db.local",
			User:     "reader",
			Password: "it's secret",
			Database: "warehouse",
		})
		assert.Equal(t, `dbname=warehouse host=db.local password='it\'s secret' port=5432 sslmode=disable user=reader`, dsn)
	})

	t.Run("params override sslmode", func(t *testing.T) {
		dsn := DSN(catalog.Connection{Host: "h", Port: 6543, Params: map[string]string{"sslmode": "require"}})
		assert.Equal(t, "host=h port=6543 sslmode=require", dsn)
	})

	t.Run("explicit dsn wins", func(t *testing.T) {
		dsn := DSN(catalog.Connection{Host: "ignored", DSN: "postgres://u@h/db?sslmode=disable"})
		assert.Equal(t, "postgres://u@h/db?sslmode=disable", dsn)
	})
}

func TestSwitchSource(t *testing.T) {
	ctx := context.Background()

	t.Run("existing schema", func(t *testing.T) {
		c, mock := newTestCatalog(t)
		mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM information_schema.schemata WHERE schema_name = $1")).
			WithArgs(pgTestSchema).
			WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(int64(1)))
		mock.ExpectExec(regexp.QuoteMeta(`SET search_path TO "sales"`)).
			WillReturnResult(sqlmock.NewResult(0, 0))

		assert.True(t, c.SwitchSource(ctx, pgTestSchema))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown schema", func(t *testing.T) {
		c, mock := newTestCatalog(t)
		mock.ExpectQuery("SELECT 1 FROM information_schema.schemata").
			WithArgs("nope").
			WillReturnRows(sqlmock.NewRows([]string{"?column?"}))

		assert.False(t, c.SwitchSource(ctx, "nope"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("search_path failure", func(t *testing.T) {
		c, mock := newTestCatalog(t)
		mock.ExpectQuery("SELECT 1 FROM information_schema.schemata").
			WithArgs(pgTestSchema).
			WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(int64(1)))
		mock.ExpectExec("SET search_path").WillReturnError(errors.New("permission denied"))

		assert.False(t, c.SwitchSource(ctx, pgTestSchema))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestTableExists(t *testing.T) {
	ctx := context.Background()
	c, mock := newTestCatalog(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = $1 LIMIT 1")).
		WithArgs("orders").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(int64(1)))
	assert.True(t, c.TableExists(ctx, "orders"))

	mock.ExpectQuery("SELECT 1 FROM information_schema.tables").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))
	assert.False(t, c.TableExists(ctx, "ghost"))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListTables(t *testing.T) {
	ctx := context.Background()

	t.Run("tables and views", func(t *testing.T) {
		c, mock := newTestCatalog(t)
		mock.ExpectQuery(regexp.QuoteMeta("SELECT table_name FROM information_schema.tables WHERE table_schema = current_schema() AND table_type IN ($1,$2) ORDER BY table_name")).
			WithArgs("BASE TABLE", "VIEW").
			WillReturnRows(sqlmock.NewRows([]string{"table_name"}).AddRow("customers").AddRow("orders"))

		tables, err := c.ListTables(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"customers", "orders"}, tables)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failure", func(t *testing.T) {
		c, mock := newTestCatalog(t)
		mock.ExpectQuery("SELECT table_name").WillReturnError(errors.New("connection reset by peer"))

		_, err := c.ListTables(ctx)
		assert.ErrorIs(t, err, catalog.ErrDataSource)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSelectWithCondition(t *testing.T) {
	ctx := context.Background()

	t.Run("question marks in the condition are left alone", func(t *testing.T) {
		c, mock := newTestCatalog(t)
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "orders" WHERE note = '?'`)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "note"}).AddRow(int64(3), "?"))

		result, err := c.SelectWithCondition(ctx, "orders", "WHERE note = '?'")
		require.NoError(t, err)
		assert.Equal(t, [][]any{{int64(3), "?"}}, result.Rows)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failure", func(t *testing.T) {
		c, mock := newTestCatalog(t)
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "orders"`)).WillReturnError(errors.New("relation does not exist"))

		_, err := c.SelectWithCondition(ctx, "orders", "")
		var dsErr *catalog.DataSourceError
		require.ErrorAs(t, err, &dsErr)
		assert.Equal(t, "orders", dsErr.Table)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSelectQuery(t *testing.T) {
	query, args, err := SelectQuery(`we"ird`, "")
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "we""ird"`, query)
	assert.Empty(t, args)
}

func TestDBAndClose(t *testing.T) {
	c, mock := newTestCatalog(t)
	assert.NotNil(t, c.DB())
	assert.NoError(t, c.Ping(context.Background()))
	assert.NoError(t, c.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}
