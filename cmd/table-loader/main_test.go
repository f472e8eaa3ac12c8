package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/txn2/table-loader/pkg/catalog"
	"github.com/txn2/table-loader/pkg/catalog/sqlite"
	"github.com/txn2/table-loader/pkg/config"
	"github.com/txn2/table-loader/pkg/resultcache"
)

const mainTestFilePerms = 0o600

// writeFixture creates a SQLite database and a config file pointing at it,
// returning the config path.
func writeFixture(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "shop.db")

	db, err := sql.Open(sqlite.DriverName, dbPath)
	require.NoError(t, err)
	for _, stmt := range []string{
		`CREATE TABLE orders (id INTEGER PRIMARY KEY, total REAL)`,
		`CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT)`,
		`INSERT INTO orders (id, total) VALUES (1, 9.99), (2, 5.0)`,
		`INSERT INTO users (id, name) VALUES (1, 'alice')`,
	} {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
	require.NoError(t, db.Close())

	body := fmt.Sprintf("connection:\n  driver: sqlite\n  database: %s\n%s", dbPath, extra)
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(body), mainTestFilePerms))
	return cfgPath
}

func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), args, &stdout, &stderr)
	return stdout.String(), stderr.String(), err
}

func TestRun_Version(t *testing.T) {
	stdout, _, err := runCLI(t, "-version")
	require.NoError(t, err)
	assert.Equal(t, "table-loader version dev\n", stdout)
}

func TestRun_ConfigRequired(t *testing.T) {
	_, _, err := runCLI(t)
	require.Error(t, err)
	assert.ErrorIs(t, err, catalog.ErrConfiguration)
}

func TestRun_BadFlag(t *testing.T) {
	_, stderr, err := runCLI(t, "-no-such-flag")
	require.Error(t, err)
	assert.Contains(t, stderr, "no-such-flag")
}

func TestRun_InvalidConfig(t *testing.T) {
	cfgPath := writeFixture(t, "server:\n  transport: carrier-pigeon\n")
	_, _, err := runCLI(t, "-config", cfgPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.transport")
}

func TestRun_Summary(t *testing.T) {
	stdout, stderr, err := runCLI(t, "-config", writeFixture(t, ""))
	require.NoError(t, err)
	assert.Equal(t, "orders: 2 rows\nusers: 1 rows\n", stdout)
	assert.Empty(t, stderr)
}

func TestRun_ConditionsAndDiagnostics(t *testing.T) {
	cfgPath := writeFixture(t, `tables: [orders, ghost]
conditions:
  orders: "WHERE total > 6"
  phantom: "LIMIT 1"
`)
	stdout, stderr, err := runCLI(t, "-config", cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "orders: 1 rows\n", stdout)
	assert.Contains(t, stderr, "warning: tables not found in source: ghost")
	assert.Contains(t, stderr, "phantom")
}

func TestRun_PrintTables(t *testing.T) {
	stdout, _, err := runCLI(t, "-config", writeFixture(t, ""), "-print-tables")
	require.NoError(t, err)
	assert.Equal(t, "orders\nusers\n", stdout)
}

func TestRun_Show(t *testing.T) {
	stdout, _, err := runCLI(t, "-config", writeFixture(t, "tables: [users, orders]\n"), "-show", "-max-rows", "1")
	require.NoError(t, err)
	assert.Contains(t, stdout, "users (1 of 1 rows)")
	assert.Contains(t, stdout, "orders (1 of 2 rows)")
	assert.Contains(t, stdout, "alice")
	assert.Contains(t, stdout, "name")
}

func TestApplyOverrides(t *testing.T) {
	cfg, err := config.Parse([]byte("connection: {driver: sqlite}\nrefresh: true"))
	require.NoError(t, err)

	opts, err := parseFlags([]string{"-refresh=false", "-transport", "http", "-address", ":9999", "-max-rows", "7"}, &bytes.Buffer{})
	require.NoError(t, err)
	applyOverrides(cfg, opts)

	assert.False(t, cfg.Refresh)
	assert.Equal(t, config.TransportHTTP, cfg.Server.Transport)
	assert.Equal(t, ":9999", cfg.Server.Address)
	assert.Equal(t, 7, cfg.Toolkit.DefaultMaxRows)

	// Unset flags leave the config alone.
	cfg.Refresh = true
	opts, err = parseFlags(nil, &bytes.Buffer{})
	require.NoError(t, err)
	applyOverrides(cfg, opts)
	assert.True(t, cfg.Refresh)
}

func TestPrintSummary_SkipsUnloaded(t *testing.T) {
	var out bytes.Buffer
	err := printSummary(&out, []string{"a", "b"}, map[string]*catalog.Result{
		"b": catalog.NewResult([]string{"x"}, []any{1}),
	})
	require.NoError(t, err)
	assert.Equal(t, "b: 1 rows\n", out.String())
}

func TestRenderResults_Empty(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, renderResults(&out, nil, nil, 0))
	assert.Equal(t, "no tables loaded\n", out.String())
}

func TestFormatCell(t *testing.T) {
	assert.Equal(t, "NULL", formatCell(nil))
	assert.Equal(t, "9.99", formatCell(9.99))
	assert.Equal(t, "alice", formatCell("alice"))
}

func TestHTTPHandler(t *testing.T) {
	ctx := context.Background()
	cat := catalog.NewMemoryCatalog().
		AddTable("shop", "orders", catalog.NewResult([]string{"id"}, []any{"o-1"}))

	cfg, err := config.Parse([]byte("connection: {driver: sqlite}\ndatabase: shop"))
	require.NoError(t, err)

	server, err := newMCPServer(cfg, cat, resultcache.New())
	require.NoError(t, err)
	httpServer := httptest.NewServer(newHTTPHandler(server, newChecker(cat, 0)))
	defer httpServer.Close()

	for _, path := range []string{"/healthz", "/readyz"} {
		resp, err := http.Get(httpServer.URL + path)
		require.NoError(t, err)
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "0.0.1"}, nil)
	session, err := client.Connect(ctx, &mcp.StreamableClientTransport{Endpoint: httpServer.URL}, nil)
	require.NoError(t, err)
	defer func() { _ = session.Close() }()

	result, err := session.CallTool(ctx, &mcp.CallToolParams{Name: "loader_list_tables"})
	require.NoError(t, err)
	require.False(t, result.IsError)
	require.NotEmpty(t, result.Content)

	text, ok := result.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	var out struct {
		Tables []string `json:"tables"`
	}
	require.NoError(t, json.Unmarshal([]byte(text.Text), &out))
	assert.Equal(t, []string{"orders"}, out.Tables)
}

func TestServeHTTP_ShutsDownOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	checker := newChecker(catalog.NewMemoryCatalog(), 0)
	checker.SetReady()
	cancel()

	err := serveHTTP(ctx, "127.0.0.1:0", http.NotFoundHandler(), checker)
	assert.NoError(t, err)
	assert.Equal(t, "draining", checker.State())
}

// stallingCatalog is a catalog whose Ping blocks until its context ends.
type stallingCatalog struct {
	*catalog.MemoryCatalog
}

func (stallingCatalog) Ping(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestNewChecker_ProbeTimeout(t *testing.T) {
	checker := newChecker(stallingCatalog{catalog.NewMemoryCatalog()}, 20*time.Millisecond)

	start := time.Now()
	err := checker.Check(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)

	assert.NoError(t, newChecker(catalog.NewMemoryCatalog(), time.Millisecond).Check(context.Background()))
}

func TestSeed(t *testing.T) {
	cfg, err := config.Parse([]byte("connection: {driver: postgres}\ndatabase: public"))
	require.NoError(t, err)

	assert.NoError(t, seed(cfg, catalog.NewMemoryCatalog()))

	cfg.Seed.MigrationsDir = t.TempDir()
	err = seed(cfg, catalog.NewMemoryCatalog())
	assert.ErrorIs(t, err, catalog.ErrConfiguration)
}
