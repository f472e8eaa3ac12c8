// Package loader reads a set of tables from a catalog through a shared
// result cache.
package loader

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"

	"github.com/google/uuid"

	"github.com/txn2/table-loader/pkg/catalog"
	"github.com/txn2/table-loader/pkg/conditions"
	"github.com/txn2/table-loader/pkg/resultcache"
)

// Wildcard requests every table of the source.
const Wildcard = "*"

// Config configures a Loader.
type Config struct {
	// Source is the database, schema or attached file to read from.
	Source string

	// Refresh clears the shared cache and refetches on ReadData.
	Refresh bool

	// Tables to load. Nil means every table.
	Tables []string

	// Conditions maps table name, or conditions.Global, to a filter
	// fragment appended to that table's SELECT.
	Conditions map[string]string

	Logger *slog.Logger
}

// Loader resolves a table set against a catalog and reads it through a
// cache shared with other loaders.
type Loader struct {
	id      string
	catalog catalog.Catalog
	cache   *resultcache.Cache
	logger  *slog.Logger

	source      string
	refresh     bool
	tables      []string
	conditions  conditions.Resolved
	diagnostics []Diagnostic
	results     map[string]*catalog.Result
}

// New switches cat to cfg.Source and resolves the table set and its
// conditions. Requested tables that do not exist and conditions for tables
// outside the set are recorded as diagnostics, not errors.
func New(ctx context.Context, cat catalog.Catalog, cache *resultcache.Cache, cfg Config) (*Loader, error) {
	if cat == nil {
		return nil, &catalog.ConfigurationError{Reason: "catalog is required"}
	}
	if cache == nil {
		return nil, &catalog.ConfigurationError{Reason: "result cache is required"}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.New().String()

	l := &Loader{
		id:      id,
		catalog: cat,
		cache:   cache,
		logger:  logger.With("loader_id", id, "source", cfg.Source),
		source:  cfg.Source,
		refresh: cfg.Refresh,
		results: make(map[string]*catalog.Result),
	}

	if err := l.selectSource(ctx); err != nil {
		return nil, err
	}

	requested := cfg.Tables
	if requested == nil {
		requested = []string{Wildcard}
	}
	if err := l.resolveTables(ctx, requested); err != nil {
		return nil, err
	}

	resolved, unknown := conditions.Resolve(l.tables, cfg.Conditions)
	l.conditions = resolved
	if len(unknown) > 0 {
		l.report(Diagnostic{Kind: KindUnknownConditionTables, Tables: unknown})
	}

	l.logger.Debug("loader ready", "tables", len(l.tables), "refresh", l.refresh)
	return l, nil
}

func (l *Loader) resolveTables(ctx context.Context, requested []string) error {
	if slices.Contains(requested, Wildcard) {
		tables, err := l.ListAllTables(ctx)
		if err != nil {
			return err
		}
		l.tables = tables
		return nil
	}

	var missing []string
	l.tables = make([]string, 0, len(requested))
	for _, table := range requested {
		if l.catalog.TableExists(ctx, table) {
			l.tables = append(l.tables, table)
			continue
		}
		missing = append(missing, table)
	}
	if len(missing) > 0 {
		l.report(Diagnostic{Kind: KindMissingTables, Tables: missing})
	}
	return nil
}

// selectSource points the catalog session at this loader's source. Other
// loaders may share the catalog and move it between sources.
func (l *Loader) selectSource(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("selecting source: %w", err)
	}
	if !l.catalog.SwitchSource(ctx, l.source) {
		return &catalog.ConfigurationError{Source: l.source, Reason: "unable to switch to source"}
	}
	return nil
}

func (l *Loader) report(d Diagnostic) {
	l.diagnostics = append(l.diagnostics, d)
	l.logger.Warn(d.Message(), "kind", string(d.Kind), "tables", d.Tables)
}

// ReadData loads every table of the set in order, serving cached results
// where the shared cache holds one for the table's condition. With Refresh
// set, the entire shared cache is cleared and only the first table is
// fetched.
//
// A fetch failure aborts the remaining tables. Results loaded before the
// failure stay in the cache and in Results.
func (l *Loader) ReadData(ctx context.Context) (map[string]*catalog.Result, error) {
	err := l.cache.Exclusive(func() error {
		if len(l.tables) == 0 {
			return nil
		}
		if err := l.selectSource(ctx); err != nil {
			return err
		}
		for _, table := range l.tables {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("reading tables: %w", err)
			}

			condition := l.conditions.For(table)
			key := resultcache.Key{Source: l.source, Table: table}
			log := l.logger.With("table", table, "condition", condition)

			if l.refresh {
				dropped := l.cache.Clear()
				log.Debug("cache cleared for refresh", "keys_dropped", dropped)
				result, err := l.fetch(ctx, key, condition)
				if err != nil {
					return err
				}
				l.results[table] = result
				return nil
			}

			if l.cache.HasKey(key) {
				if result, ok := l.cache.Lookup(key, condition); ok {
					log.Debug("loading table", "cache", "hit")
					l.results[table] = result
					continue
				}
			}

			log.Debug("loading table", "cache", "miss")
			result, err := l.fetch(ctx, key, condition)
			if err != nil {
				return err
			}
			l.results[table] = result
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return l.Results(), nil
}

func (l *Loader) fetch(ctx context.Context, key resultcache.Key, condition string) (*catalog.Result, error) {
	result, err := l.catalog.SelectWithCondition(ctx, key.Table, condition)
	if err != nil {
		l.logger.Warn("fetching table failed", "table", key.Table, "error", err)
		return nil, catalog.WrapDataSource("select", key.Table, err)
	}
	if result == nil {
		result = catalog.NewResult(nil)
	}
	l.cache.Store(key, condition, result)
	return result, nil
}

// ListAllTables returns every table of the source in catalog order.
func (l *Loader) ListAllTables(ctx context.Context) ([]string, error) {
	if err := l.selectSource(ctx); err != nil {
		return nil, err
	}
	tables, err := l.catalog.ListTables(ctx)
	if err != nil {
		return nil, catalog.WrapDataSource("list tables", "", err)
	}
	return tables, nil
}

// PrintAllTables writes every table name of the source to w, one per line.
func (l *Loader) PrintAllTables(ctx context.Context, w io.Writer) error {
	tables, err := l.ListAllTables(ctx)
	if err != nil {
		return err
	}
	for _, table := range tables {
		if _, err := fmt.Fprintln(w, table); err != nil {
			return fmt.Errorf("writing table list: %w", err)
		}
	}
	return nil
}

// Results returns the tables loaded so far.
func (l *Loader) Results() map[string]*catalog.Result {
	return maps.Clone(l.results)
}

// Tables returns the resolved table set in load order.
func (l *Loader) Tables() []string {
	return slices.Clone(l.tables)
}

// Conditions returns the resolved per-table conditions.
func (l *Loader) Conditions() conditions.Resolved {
	return maps.Clone(l.conditions)
}

// Diagnostics returns the anomalies recorded while resolving the table set.
func (l *Loader) Diagnostics() []Diagnostic {
	return slices.Clone(l.diagnostics)
}

// ID returns the instance id attached to this loader's log lines.
func (l *Loader) ID() string {
	return l.id
}

// Source returns the source identifier.
func (l *Loader) Source() string {
	return l.source
}
