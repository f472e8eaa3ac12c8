// Package tables exposes the table loader as MCP tools.
package tables

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/txn2/table-loader/pkg/catalog"
	"github.com/txn2/table-loader/pkg/loader"
	"github.com/txn2/table-loader/pkg/resultcache"
)

const (
	toolListTables = "loader_list_tables"
	toolReadTables = "loader_read_tables"
	toolClearCache = "loader_clear_cache"

	defaultMaxRows = 100
)

// Config configures a Toolkit.
type Config struct {
	// Source is the database or schema every tool reads from.
	Source string

	// DefaultMaxRows caps rows returned per table when a call does not set
	// max_rows.
	DefaultMaxRows int

	Logger *slog.Logger
}

// Toolkit serves loader tools over one catalog and a shared result cache.
type Toolkit struct {
	name    string
	catalog catalog.Catalog
	cache   *resultcache.Cache
	cfg     Config
	logger  *slog.Logger

	// mu serializes tool calls; the catalog holds one session.
	mu sync.Mutex
}

// New creates a table toolkit.
func New(name string, cat catalog.Catalog, cache *resultcache.Cache, cfg Config) (*Toolkit, error) {
	if cat == nil {
		return nil, errors.New("tables toolkit requires a catalog")
	}
	if cache == nil {
		return nil, errors.New("tables toolkit requires a result cache")
	}
	if cfg.DefaultMaxRows <= 0 {
		cfg.DefaultMaxRows = defaultMaxRows
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Toolkit{
		name:    name,
		catalog: cat,
		cache:   cache,
		cfg:     cfg,
		logger:  logger,
	}, nil
}

// Kind returns the toolkit kind.
func (*Toolkit) Kind() string {
	return "tables"
}

// Name returns the toolkit instance name.
func (t *Toolkit) Name() string {
	return t.name
}

// Connection returns the source the tools read from.
func (t *Toolkit) Connection() string {
	return t.cfg.Source
}

// Tools returns the list of tool names provided by this toolkit.
func (*Toolkit) Tools() []string {
	return []string{toolListTables, toolReadTables, toolClearCache}
}

// RegisterTools registers the table tools with the MCP server.
func (t *Toolkit) RegisterTools(s *mcp.Server) {
	mcp.AddTool(s, &mcp.Tool{
		Name:        toolListTables,
		Description: "List every table in the configured source, in catalog order.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, t.handleListTables)

	mcp.AddTool(s, &mcp.Tool{
		Name: toolReadTables,
		Description: "Read tables from the configured source through the shared result cache. " +
			"Conditions map a table name, or GLOBAL for every table, to a SQL fragment appended after FROM. " +
			"refresh clears the whole cache and reads only the first table.",
	}, t.handleReadTables)

	mcp.AddTool(s, &mcp.Tool{
		Name:        toolClearCache,
		Description: "Drop every cached table result.",
	}, t.handleClearCache)
}

// Close releases resources. The catalog is owned by the caller.
func (*Toolkit) Close() error {
	return nil
}

type listTablesInput struct{}

type listTablesOutput struct {
	Source string   `json:"source"`
	Tables []string `json:"tables"`
	Count  int      `json:"count"`
}

func (t *Toolkit) handleListTables(ctx context.Context, _ *mcp.CallToolRequest, _ listTablesInput) (*mcp.CallToolResult, any, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	l, err := t.newLoader(ctx, loader.Config{Tables: []string{}})
	if err != nil {
		return errorResult(err), nil, nil //nolint:nilerr // MCP protocol: tool errors are returned in CallToolResult.IsError
	}
	tables, err := l.ListAllTables(ctx)
	if err != nil {
		return errorResult(err), nil, nil //nolint:nilerr // MCP protocol: tool errors are returned in CallToolResult.IsError
	}
	if tables == nil {
		tables = []string{}
	}

	return jsonResult(listTablesOutput{Source: t.cfg.Source, Tables: tables, Count: len(tables)})
}

type readTablesInput struct {
	Tables     []string          `json:"tables,omitempty" jsonschema:"tables to read; omit to read every table"`
	Conditions map[string]string `json:"conditions,omitempty" jsonschema:"table name or GLOBAL mapped to a SQL filter fragment"`
	Refresh    bool              `json:"refresh,omitempty" jsonschema:"clear the shared cache before reading"`
	MaxRows    int               `json:"max_rows,omitempty" jsonschema:"maximum rows returned per table"`
}

type tableOutput struct {
	Columns   []string `json:"columns"`
	Rows      [][]any  `json:"rows"`
	RowCount  int      `json:"row_count"`
	Truncated bool     `json:"truncated,omitempty"`
}

type diagnosticOutput struct {
	Kind    string   `json:"kind"`
	Tables  []string `json:"tables"`
	Message string   `json:"message"`
}

type readTablesOutput struct {
	LoaderID    string                 `json:"loader_id"`
	Tables      map[string]tableOutput `json:"tables"`
	Diagnostics []diagnosticOutput     `json:"diagnostics"`
}

func (t *Toolkit) handleReadTables(ctx context.Context, _ *mcp.CallToolRequest, input readTablesInput) (*mcp.CallToolResult, any, error) {
	if input.MaxRows < 0 {
		return errorResult(errors.New("max_rows must not be negative")), nil, nil
	}
	maxRows := input.MaxRows
	if maxRows == 0 {
		maxRows = t.cfg.DefaultMaxRows
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	l, err := t.newLoader(ctx, loader.Config{
		Refresh:    input.Refresh,
		Tables:     input.Tables,
		Conditions: input.Conditions,
	})
	if err != nil {
		return errorResult(err), nil, nil //nolint:nilerr // MCP protocol: tool errors are returned in CallToolResult.IsError
	}

	results, err := l.ReadData(ctx)
	if err != nil {
		return errorResult(err), nil, nil //nolint:nilerr // MCP protocol: tool errors are returned in CallToolResult.IsError
	}

	out := readTablesOutput{
		LoaderID:    l.ID(),
		Tables:      make(map[string]tableOutput, len(results)),
		Diagnostics: make([]diagnosticOutput, 0, len(l.Diagnostics())),
	}
	for name, result := range results {
		head := result.Head(maxRows)
		out.Tables[name] = tableOutput{
			Columns:   result.Columns,
			Rows:      head.Rows,
			RowCount:  result.Len(),
			Truncated: head.Len() < result.Len(),
		}
	}
	for _, d := range l.Diagnostics() {
		out.Diagnostics = append(out.Diagnostics, diagnosticOutput{
			Kind:    string(d.Kind),
			Tables:  d.Tables,
			Message: d.Message(),
		})
	}

	return jsonResult(out)
}

type clearCacheInput struct{}

type clearCacheOutput struct {
	KeysDropped int      `json:"keys_dropped"`
	Keys        []string `json:"keys"`
}

func (t *Toolkit) handleClearCache(_ context.Context, _ *mcp.CallToolRequest, _ clearCacheInput) (*mcp.CallToolResult, any, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := clearCacheOutput{Keys: []string{}}
	_ = t.cache.Exclusive(func() error {
		for _, key := range t.cache.Keys() {
			out.Keys = append(out.Keys, key.String())
		}
		out.KeysDropped = t.cache.Clear()
		return nil
	})
	t.logger.Info("result cache cleared", "keys_dropped", out.KeysDropped)
	return jsonResult(out)
}

func (t *Toolkit) newLoader(ctx context.Context, cfg loader.Config) (*loader.Loader, error) {
	cfg.Source = t.cfg.Source
	cfg.Logger = t.logger
	return loader.New(ctx, t.catalog, t.cache, cfg)
}

func jsonResult(v any) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult(err), nil, nil //nolint:nilerr // MCP protocol: tool errors are returned in CallToolResult.IsError
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil, nil
}

func errorResult(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: "Error: " + err.Error()}},
		IsError: true,
	}
}
